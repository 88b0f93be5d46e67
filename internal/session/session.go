package session

import (
	"context"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"
)

const selectTimeout = 5 * time.Second

// EndFunc receives the terminal result once per generation, never on Reset.
type EndFunc func(result Result, history []string, final Snapshot)

// ChangeFunc receives a snapshot after every state change, including clock ticks.
type ChangeFunc func(Snapshot)

type Option func(*Session)

func WithClock(c clockwork.Clock) Option { return func(s *Session) { s.clock = c } }

func WithSelector(sel MoveSelector) Option { return func(s *Session) { s.selector = sel } }

func WithLogger(l *zap.Logger) Option { return func(s *Session) { s.logger = l } }

func OnEnd(fn EndFunc) Option { return func(s *Session) { s.onEnd = fn } }

func OnChange(fn ChangeFunc) Option { return func(s *Session) { s.onChange = fn } }

// WithSeed fixes the source of the reply "thinking" jitter.
func WithSeed(seed int64) Option {
	return func(s *Session) { s.rng = rand.New(rand.NewSource(seed)) }
}

// Session is the game clock and turn state machine for one board. All transitions run under mu;
// callbacks run after mu is released, so consumers order snapshots by Seq.
type Session struct {
	id       string
	cfg      Config
	base     *Position
	clock    clockwork.Clock
	selector MoveSelector
	logger   *zap.Logger
	onEnd    EndFunc
	onChange ChangeFunc
	rng      *rand.Rand

	mu         sync.Mutex
	pos        *Position
	history    []string
	movesUCI   []string
	white      int
	black      int
	active     Side
	status     Status
	result     Result
	method     string
	busy       bool
	notified   bool
	generation uint64
	seq        uint64
	startedAt  time.Time
	endedAt    time.Time

	running  bool
	closed   bool
	tickStop chan struct{}
	reply    clockwork.Timer
}

func New(id string, cfg Config, opts ...Option) (*Session, error) {
	cfg = cfg.withDefaults()
	base, err := ParseFEN(cfg.StartFEN)
	if err != nil {
		return nil, err
	}
	s := &Session{id: id, cfg: cfg, base: base}
	for _, opt := range opts {
		opt(s)
	}
	if s.clock == nil {
		s.clock = clockwork.NewRealClock()
	}
	if s.selector == nil {
		s.selector = NewRandomSelector(0)
	}
	if s.logger == nil {
		s.logger = zap.NewNop()
	}
	if s.rng == nil {
		s.rng = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	s.initLocked()
	return s, nil
}

func (s *Session) ID() string { return s.id }

func (s *Session) Config() Config { return s.cfg }

// AutomatedSide is the side played by the selector in ModeAI, empty otherwise.
func (s *Session) AutomatedSide() Side {
	if s.cfg.Mode != ModeAI {
		return ""
	}
	return s.cfg.HumanSide.Opponent()
}

func (s *Session) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked()
}

func (s *Session) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status
}

// Start arms the one-second clock. Calling it again is a no-op.
func (s *Session) Start() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrClosed
	}
	if s.running {
		s.mu.Unlock()
		return nil
	}
	s.running = true
	if s.status == StatusPlaying {
		s.startTickerLocked()
	}
	if s.status == StatusPlaying && s.cfg.Mode == ModeAI && s.active == s.AutomatedSide() && s.reply == nil {
		s.busy = false
		s.scheduleReplyLocked()
	}
	snap := s.snapshotLocked()
	s.mu.Unlock()
	s.emit(snap, false)
	return nil
}

// Close releases the clock and any pending reply. The session stays readable.
func (s *Session) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.closed = true
	s.running = false
	s.stopTickerLocked()
	s.cancelReplyLocked()
}

// Submit validates and applies a human move.
func (s *Session) Submit(a MoveAttempt) (Snapshot, error) {
	s.mu.Lock()
	if err := s.canMoveLocked(a.By); err != nil {
		snap := s.snapshotLocked()
		s.mu.Unlock()
		return snap, err
	}
	applied, err := s.pos.ApplyAttempt(a)
	if err != nil {
		snap := s.snapshotLocked()
		s.mu.Unlock()
		return snap, err
	}
	mover := s.active
	ended := s.acceptLocked(applied, mover)
	if !ended && s.cfg.Mode == ModeAI {
		s.scheduleReplyLocked()
	}
	snap := s.snapshotLocked()
	s.mu.Unlock()

	s.logger.Debug("session_move",
		zap.String("session_id", s.id),
		zap.String("side", string(mover)),
		zap.String("san", applied.SAN),
		zap.String("status", string(snap.Status)),
	)
	s.emit(snap, ended)
	return snap, nil
}

// SubmitMove is Submit reduced to accepted/rejected.
func (s *Session) SubmitMove(from, to, promotion string) bool {
	_, err := s.Submit(MoveAttempt{From: from, To: to, Promotion: promotion})
	return err == nil
}

func (s *Session) canMoveLocked(by Side) error {
	if s.closed {
		return ErrClosed
	}
	if s.status != StatusPlaying {
		return ErrNotPlaying
	}
	if s.busy {
		return ErrNotYourTurn
	}
	if s.cfg.Mode == ModeAI && s.active != s.cfg.HumanSide {
		return ErrNotYourTurn
	}
	if by != "" && by != s.active {
		return ErrNotYourTurn
	}
	return nil
}

// AutomatedReply plays the selector's move for the automated side.
func (s *Session) AutomatedReply(ctx context.Context) bool {
	s.mu.Lock()
	ok, ended, san := s.automatedReplyLocked(ctx)
	snap := s.snapshotLocked()
	s.mu.Unlock()
	if !ok {
		return false
	}
	s.logger.Debug("session_automated_reply",
		zap.String("session_id", s.id),
		zap.String("san", san),
		zap.String("status", string(snap.Status)),
	)
	s.emit(snap, ended)
	return true
}

func (s *Session) automatedReplyLocked(ctx context.Context) (ok, ended bool, san string) {
	if s.closed || s.status != StatusPlaying || s.cfg.Mode != ModeAI || s.active != s.AutomatedSide() {
		return false, false, ""
	}
	s.cancelReplyLocked()
	uci, err := s.selector.SelectMove(ctx, s.pos)
	if err != nil {
		s.logger.Warn("session_select_failed", zap.String("session_id", s.id), zap.Error(err))
		return false, false, ""
	}
	applied, err := s.pos.Apply(uci)
	if err != nil {
		s.logger.Warn("session_select_illegal",
			zap.String("session_id", s.id),
			zap.String("uci", uci),
			zap.Error(err),
		)
		return false, false, ""
	}
	ended = s.acceptLocked(applied, s.active)
	return true, ended, applied.SAN
}

// Tick consumes one second from the side on move.
func (s *Session) Tick() {
	s.mu.Lock()
	gen := s.generation
	s.mu.Unlock()
	s.tick(gen)
}

// tick is a clock tick armed for generation gen; ticks from an earlier generation are ignored.
func (s *Session) tick(gen uint64) {
	s.mu.Lock()
	if s.closed || s.status != StatusPlaying || gen != s.generation {
		s.mu.Unlock()
		return
	}
	ended := false
	if s.active == White {
		s.white = max(s.white-1, 0)
		if s.white == 0 {
			ended = s.timeForfeitLocked(White)
		}
	} else {
		s.black = max(s.black-1, 0)
		if s.black == 0 {
			ended = s.timeForfeitLocked(Black)
		}
	}
	snap := s.snapshotLocked()
	s.mu.Unlock()
	if ended {
		s.logger.Info("session_time_forfeit",
			zap.String("session_id", s.id),
			zap.String("flagged", string(snap.ActiveSide)),
			zap.String("result", string(snap.Result)),
		)
	}
	s.emit(snap, ended)
}

func (s *Session) timeForfeitLocked(flagged Side) bool {
	s.status = StatusCheckmate
	s.result = winnerResult(flagged.Opponent())
	s.method = MethodTimeout
	return s.finishLocked()
}

// Resign ends the game in favour of the side that did not resign.
func (s *Session) Resign(side Side) (Snapshot, error) {
	if !side.Valid() {
		return s.Snapshot(), fmt.Errorf("resign: %w", ErrInvalidSide)
	}
	s.mu.Lock()
	if s.closed {
		snap := s.snapshotLocked()
		s.mu.Unlock()
		return snap, ErrClosed
	}
	if s.status != StatusPlaying {
		snap := s.snapshotLocked()
		s.mu.Unlock()
		return snap, ErrNotPlaying
	}
	s.status = StatusResigned
	s.result = winnerResult(side.Opponent())
	s.method = MethodResignation
	ended := s.finishLocked()
	snap := s.snapshotLocked()
	s.mu.Unlock()

	s.logger.Info("session_resign",
		zap.String("session_id", s.id),
		zap.String("resigner", string(side)),
		zap.String("result", string(snap.Result)),
	)
	s.emit(snap, ended)
	return snap, nil
}

// Reset starts a fresh generation from the configured position and clocks.
func (s *Session) Reset() Snapshot {
	s.mu.Lock()
	s.cancelReplyLocked()
	s.stopTickerLocked()
	s.generation++
	s.initLocked()
	if s.running && !s.closed {
		s.startTickerLocked()
		if s.cfg.Mode == ModeAI && s.active == s.AutomatedSide() {
			s.scheduleReplyLocked()
		}
	}
	snap := s.snapshotLocked()
	s.mu.Unlock()
	s.emit(snap, false)
	return snap
}

func (s *Session) initLocked() {
	s.pos = s.base
	s.history = nil
	s.movesUCI = nil
	s.white = s.cfg.InitialSeconds
	s.black = s.cfg.InitialSeconds
	s.active = s.base.Turn()
	s.status = StatusPlaying
	s.result = ResultNone
	s.method = ""
	s.busy = false
	s.notified = false
	s.startedAt = s.clock.Now()
	s.endedAt = time.Time{}
}

func (s *Session) acceptLocked(applied Applied, mover Side) bool {
	s.pos = applied.Position
	s.history = append(s.history, applied.SAN)
	s.movesUCI = append(s.movesUCI, applied.UCI)
	if mover == White {
		s.white += s.cfg.IncrementSeconds
	} else {
		s.black += s.cfg.IncrementSeconds
	}
	s.active = mover.Opponent()

	if applied.Outcome == ResultNone {
		return false
	}
	if applied.Outcome == ResultDraw {
		s.status = StatusDraw
	} else {
		s.status = StatusCheckmate
	}
	s.result = applied.Outcome
	s.method = applied.Method
	return s.finishLocked()
}

// finishLocked releases timers and reports whether the end callback is still owed.
func (s *Session) finishLocked() bool {
	s.stopTickerLocked()
	s.cancelReplyLocked()
	s.endedAt = s.clock.Now()
	if s.notified {
		return false
	}
	s.notified = true
	return true
}

func (s *Session) startTickerLocked() {
	if s.tickStop != nil {
		return
	}
	ticker := s.clock.NewTicker(time.Second)
	stop := make(chan struct{})
	s.tickStop = stop
	gen := s.generation
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-stop:
				return
			case <-ticker.Chan():
				select {
				case <-stop:
					return
				default:
				}
				s.tick(gen)
			}
		}
	}()
}

func (s *Session) stopTickerLocked() {
	if s.tickStop == nil {
		return
	}
	close(s.tickStop)
	s.tickStop = nil
}

func (s *Session) scheduleReplyLocked() {
	if s.reply != nil {
		return
	}
	s.busy = true
	if !s.running {
		return
	}
	delay := s.cfg.ReplyDelay + s.thinkTimeLocked()
	gen := s.generation
	s.reply = s.clock.AfterFunc(delay, func() { s.fireReply(gen) })
}

func (s *Session) fireReply(gen uint64) {
	s.mu.Lock()
	if gen != s.generation {
		s.mu.Unlock()
		return
	}
	s.reply = nil
	s.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), selectTimeout)
	defer cancel()
	s.AutomatedReply(ctx)
}

func (s *Session) cancelReplyLocked() {
	if s.reply != nil {
		s.reply.Stop()
		s.reply = nil
	}
	s.busy = false
}

func (s *Session) thinkTimeLocked() time.Duration {
	span := s.cfg.ThinkMax - s.cfg.ThinkMin
	if span <= 0 {
		return s.cfg.ThinkMin
	}
	return s.cfg.ThinkMin + time.Duration(s.rng.Int63n(int64(span)+1))
}

func (s *Session) snapshotLocked() Snapshot {
	s.seq++
	return Snapshot{
		ID:             s.id,
		Generation:     s.generation,
		Seq:            s.seq,
		Mode:           s.cfg.Mode,
		HumanSide:      s.cfg.HumanSide,
		FEN:            s.pos.FEN(),
		MoveHistory:    append([]string(nil), s.history...),
		MovesUCI:       append([]string(nil), s.movesUCI...),
		WhiteRemaining: s.white,
		BlackRemaining: s.black,
		ActiveSide:     s.active,
		Status:         s.status,
		Result:         s.result,
		Method:         s.method,
		Busy:           s.busy,
		InitialSeconds: s.cfg.InitialSeconds,
		Increment:      s.cfg.IncrementSeconds,
		StartedAt:      s.startedAt,
		EndedAt:        s.endedAt,
	}
}

func (s *Session) emit(snap Snapshot, ended bool) {
	if ended && s.onEnd != nil {
		s.onEnd(snap.Result, append([]string(nil), snap.MoveHistory...), snap)
	}
	if s.onChange != nil {
		s.onChange(snap)
	}
}
