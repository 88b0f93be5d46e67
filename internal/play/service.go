package play

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"

	"github.com/park285/chessnerd/internal/cache"
	"github.com/park285/chessnerd/internal/config"
	"github.com/park285/chessnerd/internal/domain"
	"github.com/park285/chessnerd/internal/msgcat"
	"github.com/park285/chessnerd/internal/obslog"
	"github.com/park285/chessnerd/internal/render"
	"github.com/park285/chessnerd/internal/session"
	"github.com/park285/chessnerd/internal/store"
)

var (
	ErrSessionNotFound = errors.New("game session not found")
	ErrForbidden       = errors.New("not a participant of this game")
	ErrTooManyGames    = errors.New("too many concurrent games")
	ErrInvalidRequest  = errors.New("invalid game request")
	ErrUnsupported     = errors.New("operation not supported for this game mode")
)

const (
	defaultEngine      = "random"
	subscriberBuffer   = 16
	persistTimeout     = 10 * time.Second
	defaultFinishedTTL = 10 * time.Minute
)

// Time controls offered by the quick-start presets, in seconds.
var Presets = map[string]int{
	domain.CategoryBullet: 60,
	domain.CategoryBlitz:  180,
	domain.CategoryRapid:  600,
	domain.CategoryCasual: 600,
}

type Config struct {
	MaxConcurrentGames int
	ReplyDelay         time.Duration
	ThinkMin           time.Duration
	ThinkMax           time.Duration
	DefaultTimeControl int
	DefaultIncrement   int
	// FinishedTTL is how long an ended game stays readable before it is dropped.
	FinishedTTL time.Duration
}

func ConfigFrom(cfg *config.AppConfig) Config {
	return Config{
		MaxConcurrentGames: cfg.MaxConcurrentGames,
		ReplyDelay:         cfg.AIReplyDelay,
		ThinkMin:           cfg.AIThinkMin,
		ThinkMax:           cfg.AIThinkMax,
		DefaultTimeControl: cfg.DefaultTimeControl,
		DefaultIncrement:   cfg.DefaultIncrement,
		FinishedTTL:        cfg.FinishedGameTTL,
	}
}

// StartRequest describes a new game. Zero values fall back to the service defaults; a nil
// Increment does too, while a pointer to zero asks for no increment.
type StartRequest struct {
	Mode        session.Mode
	TimeControl int
	Increment   *int
	GameType    string
	HumanSide   session.Side
	Engine      string
	StartFEN    string
}

// State is a session snapshot plus the game's seating.
type State struct {
	session.Snapshot
	GameType string
	Engine   string
	WhiteID  string
	BlackID  string
}

// Notice is a user-facing message published on the game stream.
type Notice struct {
	Kind    string
	Message string
	Failure bool
}

// Event is one frame of the game stream: either a state or a notice.
type Event struct {
	State  *State
	Notice *Notice
}

// MoveResult reports whether a submitted move was accepted. Rejections leave the state unchanged.
type MoveResult struct {
	Accepted bool
	Reason   string
	State    State
}

// Metrics receives game lifecycle counts.
type Metrics interface {
	GameStarted(mode, gameType string)
	GameEnded(mode, result string)
}

type nopMetrics struct{}

func (nopMetrics) GameStarted(string, string) {}
func (nopMetrics) GameEnded(string, string)   {}

// Seconds returns a pointer to n for optional request fields.
func Seconds(n int) *int { return &n }

type Option func(*Service)

func WithClock(c clockwork.Clock) Option { return func(s *Service) { s.clock = c } }

// WithSelector sets the factory for automated opponents; one selector per game.
func WithSelector(fn func() session.MoveSelector) Option {
	return func(s *Service) { s.newSelector = fn }
}

func WithLogger(l *zap.Logger) Option { return func(s *Service) { s.logger = l } }

func WithCatalog(c *msgcat.Catalog) Option { return func(s *Service) { s.msgs = c } }

func WithProfileCache(p *cache.Profiles) Option { return func(s *Service) { s.profiles = p } }

func WithMetrics(m Metrics) Option { return func(s *Service) { s.metrics = m } }

// Service owns every live game session.
type Service struct {
	repo        store.Repository
	profiles    *cache.Profiles
	msgs        *msgcat.Catalog
	clock       clockwork.Clock
	newSelector func() session.MoveSelector
	metrics     Metrics
	logger      *zap.Logger
	cfg         Config

	mu    sync.RWMutex
	games map[string]*game
}

func NewService(repo store.Repository, cfg Config, opts ...Option) *Service {
	s := &Service{repo: repo, cfg: cfg, games: make(map[string]*game)}
	for _, opt := range opts {
		opt(s)
	}
	if s.clock == nil {
		s.clock = clockwork.NewRealClock()
	}
	if s.newSelector == nil {
		s.newSelector = func() session.MoveSelector { return session.NewRandomSelector(0) }
	}
	if s.metrics == nil {
		s.metrics = nopMetrics{}
	}
	if s.logger == nil {
		s.logger = obslog.L()
	}
	if s.cfg.FinishedTTL <= 0 {
		s.cfg.FinishedTTL = defaultFinishedTTL
	}
	return s
}

// Active is the number of sessions still being played. Ended games awaiting eviction are not counted.
func (s *Service) Active() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.playingLocked(nil)
}

func (s *Service) playingLocked(except *game) int {
	n := 0
	for _, g := range s.games {
		if g != except && g.sess.Status() == session.StatusPlaying {
			n++
		}
	}
	return n
}

func (s *Service) atCapacityLocked(except *game) bool {
	limit := s.cfg.MaxConcurrentGames
	return limit > 0 && s.playingLocked(except) >= limit
}

// Start opens an ai or local game for userID. Online games are started by the lobby.
func (s *Service) Start(ctx context.Context, userID string, req StartRequest) (State, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return State{}, fmt.Errorf("%w: missing user", ErrInvalidRequest)
	}
	if req.Mode == "" {
		req.Mode = session.ModeAI
	}
	if req.Mode == session.ModeOnline {
		return State{}, fmt.Errorf("%w: online games start from the lobby", ErrInvalidRequest)
	}
	g := &game{owner: userID}
	switch req.Mode {
	case session.ModeAI:
		if !req.HumanSide.Valid() {
			req.HumanSide = session.White
		}
		if req.HumanSide == session.White {
			g.whiteID = userID
		} else {
			g.blackID = userID
		}
	case session.ModeLocal:
		g.whiteID, g.blackID = userID, userID
	default:
		return State{}, fmt.Errorf("%w: mode %q", ErrInvalidRequest, req.Mode)
	}
	return s.open(ctx, g, req)
}

// StartOnline opens a game between two users, each bound to a side.
func (s *Service) StartOnline(ctx context.Context, whiteID, blackID string, req StartRequest) (State, error) {
	whiteID, blackID = strings.TrimSpace(whiteID), strings.TrimSpace(blackID)
	if whiteID == "" || blackID == "" || whiteID == blackID {
		return State{}, fmt.Errorf("%w: online games need two players", ErrInvalidRequest)
	}
	req.Mode = session.ModeOnline
	return s.open(ctx, &game{owner: whiteID, whiteID: whiteID, blackID: blackID}, req)
}

func (s *Service) open(_ context.Context, g *game, req StartRequest) (State, error) {
	req, err := s.normalize(req)
	if err != nil {
		return State{}, err
	}
	g.req = req
	g.subs = make(map[int]chan Event)
	id := uuid.NewString()

	sess, err := session.New(id, session.Config{
		InitialSeconds:   req.TimeControl,
		IncrementSeconds: *req.Increment,
		Mode:             req.Mode,
		HumanSide:        req.HumanSide,
		ReplyDelay:       s.cfg.ReplyDelay,
		ThinkMin:         s.cfg.ThinkMin,
		ThinkMax:         s.cfg.ThinkMax,
		StartFEN:         req.StartFEN,
	},
		session.WithClock(s.clock),
		session.WithSelector(s.newSelector()),
		session.WithLogger(s.logger),
		session.OnEnd(func(result session.Result, history []string, final session.Snapshot) {
			s.finish(g, result, history, final)
		}),
		session.OnChange(func(snap session.Snapshot) {
			st := g.state(snap)
			g.publish(Event{State: &st})
		}),
	)
	if err != nil {
		return State{}, fmt.Errorf("%w: %v", ErrInvalidRequest, err)
	}
	g.sess = sess

	s.mu.Lock()
	if s.atCapacityLocked(nil) {
		s.mu.Unlock()
		sess.Close()
		return State{}, ErrTooManyGames
	}
	s.games[id] = g
	s.mu.Unlock()

	if err := sess.Start(); err != nil {
		s.remove(id)
		return State{}, err
	}
	s.metrics.GameStarted(string(req.Mode), req.GameType)
	s.logger.Info("game_start",
		zap.String("game_id", id),
		zap.String("mode", string(req.Mode)),
		zap.String("game_type", req.GameType),
		zap.Int("time_control", req.TimeControl),
		zap.Int("increment", *req.Increment),
		zap.String("white", g.whiteID),
		zap.String("black", g.blackID),
	)
	return g.state(sess.Snapshot()), nil
}

func (s *Service) normalize(req StartRequest) (StartRequest, error) {
	req.GameType = strings.ToLower(strings.TrimSpace(req.GameType))
	if req.GameType != "" {
		if _, ok := Presets[req.GameType]; !ok {
			return req, fmt.Errorf("%w: game type %q", ErrInvalidRequest, req.GameType)
		}
	}
	if req.Increment == nil {
		req.Increment = Seconds(s.cfg.DefaultIncrement)
	} else {
		req.Increment = Seconds(*req.Increment)
	}
	if req.TimeControl < 0 || *req.Increment < 0 {
		return req, fmt.Errorf("%w: negative time control", ErrInvalidRequest)
	}
	if req.TimeControl == 0 {
		req.TimeControl = Presets[req.GameType]
	}
	if req.TimeControl == 0 {
		req.TimeControl = s.cfg.DefaultTimeControl
	}
	if req.GameType == "" {
		req.GameType = categorize(req.Mode, req.TimeControl)
	}
	if req.Mode == session.ModeAI && strings.TrimSpace(req.Engine) == "" {
		req.Engine = defaultEngine
	}
	if req.Mode != session.ModeAI {
		req.Engine = ""
	}
	return req, nil
}

// categorize maps a time control to a rating category. Local games are always casual.
func categorize(mode session.Mode, seconds int) string {
	switch {
	case mode == session.ModeLocal:
		return domain.CategoryCasual
	case seconds < Presets[domain.CategoryBlitz]:
		return domain.CategoryBullet
	case seconds < Presets[domain.CategoryRapid]:
		return domain.CategoryBlitz
	default:
		return domain.CategoryRapid
	}
}

func (s *Service) lookup(id, userID string) (*game, error) {
	s.mu.RLock()
	g, ok := s.games[strings.TrimSpace(id)]
	s.mu.RUnlock()
	if !ok {
		return nil, ErrSessionNotFound
	}
	if !g.participant(userID) {
		return nil, ErrForbidden
	}
	return g, nil
}

func (s *Service) remove(id string) *game {
	s.mu.Lock()
	defer s.mu.Unlock()
	g, ok := s.games[id]
	if !ok {
		return nil
	}
	delete(s.games, id)
	return g
}

func (s *Service) Get(_ context.Context, id, userID string) (State, error) {
	g, err := s.lookup(id, userID)
	if err != nil {
		return State{}, err
	}
	return g.state(g.sess.Snapshot()), nil
}

// Move submits a move for userID. Rule and turn violations are reported in the result, not as errors.
func (s *Service) Move(_ context.Context, id, userID string, attempt session.MoveAttempt) (MoveResult, error) {
	g, err := s.lookup(id, userID)
	if err != nil {
		return MoveResult{}, err
	}
	attempt.By = ""
	if g.req.Mode == session.ModeOnline {
		attempt.By = g.sideOf(userID)
	}
	snap, err := g.sess.Submit(attempt)
	if errors.Is(err, session.ErrClosed) {
		return MoveResult{}, err
	}
	if err != nil {
		s.logger.Debug("game_move_rejected",
			zap.String("game_id", id),
			zap.String("from", attempt.From),
			zap.String("to", attempt.To),
			zap.Error(err),
		)
		return MoveResult{Accepted: false, Reason: err.Error(), State: g.state(snap)}, nil
	}
	return MoveResult{Accepted: true, State: g.state(snap)}, nil
}

// Resign ends the game for side. An empty side means the caller's own side; in local games the
// side on move.
func (s *Service) Resign(_ context.Context, id, userID string, side session.Side) (State, error) {
	g, err := s.lookup(id, userID)
	if err != nil {
		return State{}, err
	}
	switch g.req.Mode {
	case session.ModeOnline:
		own := g.sideOf(userID)
		if side != "" && side != own {
			return State{}, ErrForbidden
		}
		side = own
	case session.ModeAI:
		if side == "" {
			side = g.req.HumanSide
		}
	default:
		if side == "" {
			side = g.sess.Snapshot().ActiveSide
		}
	}
	snap, err := g.sess.Resign(side)
	if err != nil {
		return g.state(snap), err
	}
	return g.state(snap), nil
}

// Reset restarts the game. Online games cannot be reset by one player. Reviving an ended game
// counts against the concurrency limit again.
func (s *Service) Reset(_ context.Context, id, userID string) (State, error) {
	g, err := s.lookup(id, userID)
	if err != nil {
		return State{}, err
	}
	if g.req.Mode == session.ModeOnline {
		return State{}, ErrUnsupported
	}
	s.mu.RLock()
	full := g.sess.Status() != session.StatusPlaying && s.atCapacityLocked(g)
	s.mu.RUnlock()
	if full {
		return State{}, ErrTooManyGames
	}
	g.stopEviction()
	return g.state(g.sess.Reset()), nil
}

// Close tears a session down and ends its streams.
func (s *Service) Close(_ context.Context, id, userID string) error {
	if _, err := s.lookup(id, userID); err != nil {
		return err
	}
	g := s.remove(strings.TrimSpace(id))
	if g == nil {
		return ErrSessionNotFound
	}
	g.stopEviction()
	g.sess.Close()
	g.closeSubs()
	s.logger.Info("game_close", zap.String("game_id", g.sess.ID()), zap.String("user_id", userID))
	return nil
}

// Shutdown closes every session.
func (s *Service) Shutdown() {
	s.mu.Lock()
	games := s.games
	s.games = make(map[string]*game)
	s.mu.Unlock()
	for _, g := range games {
		g.stopEviction()
		g.sess.Close()
		g.closeSubs()
	}
}

// scheduleEviction drops g once it has stayed ended for FinishedTTL. A Reset in the meantime
// cancels it.
func (s *Service) scheduleEviction(g *game, gen uint64) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.closed {
		return
	}
	if g.evict != nil {
		g.evict.Stop()
	}
	g.evict = s.clock.AfterFunc(s.cfg.FinishedTTL, func() { s.evict(g, gen) })
}

func (s *Service) evict(g *game, gen uint64) {
	snap := g.sess.Snapshot()
	if snap.Status == session.StatusPlaying || snap.Generation != gen {
		return
	}
	id := g.sess.ID()
	s.mu.Lock()
	if s.games[id] != g {
		s.mu.Unlock()
		return
	}
	delete(s.games, id)
	s.mu.Unlock()

	g.sess.Close()
	g.closeSubs()
	s.logger.Info("game_evicted", zap.String("game_id", id), zap.String("status", string(snap.Status)))
}

// Subscribe streams events for a game starting with its current state. Frames are dropped
// for subscribers that fall behind. The returned func unsubscribes.
func (s *Service) Subscribe(_ context.Context, id, userID string) (<-chan Event, func(), error) {
	g, err := s.lookup(id, userID)
	if err != nil {
		return nil, nil, err
	}
	ch, cancel := g.subscribe()
	st := g.state(g.sess.Snapshot())
	g.deliver(ch, Event{State: &st})
	return ch, cancel, nil
}

// BoardPNG renders the current position. The board is flipped for the black player, and the
// last move is highlighted unless opts already names squares.
func (s *Service) BoardPNG(ctx context.Context, id, userID string, opts render.Options) ([]byte, error) {
	g, err := s.lookup(id, userID)
	if err != nil {
		return nil, err
	}
	snap := g.sess.Snapshot()
	if g.sideOf(userID) == session.Black {
		opts.Flip = true
	}
	if last := snap.LastMoveUCI(); opts.From == "" && opts.To == "" && len(last) >= 4 {
		opts.From, opts.To = last[:2], last[2:4]
	}
	return render.RenderPNG(ctx, snap.FEN, opts)
}

type game struct {
	sess    *session.Session
	req     StartRequest
	owner   string
	whiteID string
	blackID string

	mu      sync.Mutex
	subs    map[int]chan Event
	nextSub int
	lastSeq uint64
	closed  bool
	evict   clockwork.Timer
}

func (g *game) participant(userID string) bool {
	userID = strings.TrimSpace(userID)
	return userID != "" && (userID == g.owner || userID == g.whiteID || userID == g.blackID)
}

// sideOf is the side bound to userID, empty when the user plays both or neither.
func (g *game) sideOf(userID string) session.Side {
	switch {
	case g.whiteID == g.blackID:
		return ""
	case userID == g.whiteID:
		return session.White
	case userID == g.blackID:
		return session.Black
	default:
		return ""
	}
}

func (g *game) state(snap session.Snapshot) State {
	return State{
		Snapshot: snap,
		GameType: g.req.GameType,
		Engine:   g.req.Engine,
		WhiteID:  g.whiteID,
		BlackID:  g.blackID,
	}
}

func (g *game) subscribe() (chan Event, func()) {
	ch := make(chan Event, subscriberBuffer)
	g.mu.Lock()
	if g.closed {
		g.mu.Unlock()
		close(ch)
		return ch, func() {}
	}
	key := g.nextSub
	g.nextSub++
	g.subs[key] = ch
	g.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			g.mu.Lock()
			defer g.mu.Unlock()
			if c, ok := g.subs[key]; ok {
				delete(g.subs, key)
				close(c)
			}
		})
	}
}

// publish fans ev out to subscribers. State frames older than the last one published are dropped.
func (g *game) publish(ev Event) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.closed {
		return
	}
	if ev.State != nil {
		if ev.State.Seq <= g.lastSeq {
			return
		}
		g.lastSeq = ev.State.Seq
	}
	for _, ch := range g.subs {
		select {
		case ch <- ev:
		default:
		}
	}
}

func (g *game) deliver(ch chan Event, ev Event) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.closed {
		return
	}
	select {
	case ch <- ev:
	default:
	}
}

func (g *game) notify(n Notice) { g.publish(Event{Notice: &n}) }

func (g *game) stopEviction() {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.evict != nil {
		g.evict.Stop()
		g.evict = nil
	}
}

func (g *game) closeSubs() {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.closed {
		return
	}
	g.closed = true
	for key, ch := range g.subs {
		delete(g.subs, key)
		close(ch)
	}
}
