package play

import (
	"context"
	"errors"
	"math"
	"strings"
	"sync"
	"time"

	nchess "github.com/corentings/chess/v2"
	"github.com/corentings/chess/v2/opening"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/park285/chessnerd/internal/domain"
	"github.com/park285/chessnerd/internal/session"
	"github.com/park285/chessnerd/internal/store"
)

const kFactor = 24

var (
	ecoOnce sync.Once
	ecoBook *opening.BookECO
)

func bookECO() *opening.BookECO {
	ecoOnce.Do(func() { ecoBook = opening.NewBookECO() })
	return ecoBook
}

// engineRatings approximates the strength of each automated opponent.
var engineRatings = map[string]int{
	defaultEngine: 400,
}

func engineApproxRating(engine string) int {
	if r, ok := engineRatings[strings.ToLower(strings.TrimSpace(engine))]; ok {
		return r
	}
	return 800
}

// finish runs on the terminal callback: announce, persist the game, then update ratings.
// Failures are reported on the stream; the session itself is never rolled back.
func (s *Service) finish(g *game, result session.Result, history []string, final session.Snapshot) {
	s.metrics.GameEnded(string(g.req.Mode), string(result))
	s.logger.Info("game_end",
		zap.String("game_id", final.ID),
		zap.String("result", string(result)),
		zap.String("method", final.Method),
		zap.Int("moves", len(history)),
	)
	g.notify(Notice{Kind: "game_end", Message: s.endMessage(final)})
	s.scheduleEviction(g, final.Generation)

	ctx, cancel := context.WithTimeout(context.Background(), persistTimeout)
	defer cancel()

	rec := s.buildRecord(g, final)
	if err := s.repo.InsertGame(ctx, rec); err != nil {
		s.logger.Error("game_persist_error", zap.String("game_id", final.ID), zap.Error(err))
		g.notify(Notice{
			Kind:    "persist_failed",
			Message: s.msgs.Text("game.persist_failed", nil, "Failed to save game."),
			Failure: true,
		})
		return
	}
	if err := s.updateProfiles(ctx, g, result, rec.EndedAt); err != nil {
		s.logger.Error("game_profile_error", zap.String("game_id", final.ID), zap.Error(err))
		g.notify(Notice{
			Kind:    "profile_failed",
			Message: s.msgs.Text("game.profile_failed", nil, "Failed to update your rating."),
			Failure: true,
		})
	}
}

func (s *Service) endMessage(final session.Snapshot) string {
	data := map[string]string{"Winner": winnerName(final.Result), "Method": final.Method}
	switch {
	case final.Method == session.MethodTimeout:
		return s.msgs.Text("game.end.timeout", data, "Time's up!")
	case final.Status == session.StatusResigned:
		return s.msgs.Text("game.end.resigned", data, "Resignation")
	case final.Status == session.StatusDraw:
		return s.msgs.Text("game.end.draw", data, "Draw!")
	default:
		return s.msgs.Text("game.end.checkmate", data, "Checkmate!")
	}
}

func winnerName(r session.Result) string {
	switch r {
	case session.WhiteWins:
		return "White"
	case session.BlackWins:
		return "Black"
	default:
		return ""
	}
}

func (s *Service) buildRecord(g *game, final session.Snapshot) *domain.GameRecord {
	rec := &domain.GameRecord{
		ID:          uuid.NewString(),
		Mode:        string(g.req.Mode),
		GameType:    g.req.GameType,
		TimeControl: final.InitialSeconds,
		Increment:   final.Increment,
		AIEngine:    g.req.Engine,
		Result:      string(final.Result),
		Method:      final.Method,
		Moves:       append([]string(nil), final.MoveHistory...),
		FinalFEN:    final.FEN,
		StartedAt:   final.StartedAt,
		EndedAt:     final.EndedAt,
	}
	switch g.req.Mode {
	case session.ModeLocal:
		rec.WhitePlayerID = g.owner
	default:
		rec.WhitePlayerID, rec.BlackPlayerID = g.whiteID, g.blackID
	}
	if rec.EndedAt.IsZero() {
		rec.EndedAt = s.clock.Now()
	}

	pos, err := session.Replay(g.req.StartFEN, final.MovesUCI)
	if err != nil {
		s.logger.Warn("game_replay_failed", zap.String("game_id", final.ID), zap.Error(err))
		return rec
	}
	rec.PGN, rec.Opening = pgnAndOpening(pos.Game(), final)
	return rec
}

// pgnAndOpening renders the PGN and looks up the ECO label for the moves played.
func pgnAndOpening(game *nchess.Game, final session.Snapshot) (string, string) {
	if final.Status == session.StatusResigned {
		if final.Result == session.WhiteWins {
			game.Resign(nchess.Black)
		} else {
			game.Resign(nchess.White)
		}
	}
	label := ""
	if book := bookECO(); book != nil {
		if eco := book.Find(game.Moves()); eco != nil {
			label = strings.TrimSpace(eco.Code() + " " + eco.Title())
		}
	}
	return game.String(), label
}

type seat struct {
	userID  string
	side    session.Side
	profile *domain.Profile
}

// updateProfiles applies the result to each bound player. Local games carry no ratings.
func (s *Service) updateProfiles(ctx context.Context, g *game, result session.Result, endedAt time.Time) error {
	if g.req.Mode == session.ModeLocal {
		return nil
	}
	var seats []*seat
	if g.whiteID != "" {
		seats = append(seats, &seat{userID: g.whiteID, side: session.White})
	}
	if g.blackID != "" {
		seats = append(seats, &seat{userID: g.blackID, side: session.Black})
	}
	for _, st := range seats {
		p, err := s.repo.GetProfile(ctx, st.userID)
		if errors.Is(err, store.ErrNotFound) {
			np := domain.NewProfile(st.userID, "", endedAt)
			p, err = &np, nil
		}
		if err != nil {
			return err
		}
		st.profile = p
	}

	category := g.req.GameType
	rated := category != domain.CategoryCasual
	opponent := map[session.Side]int{}
	for _, st := range seats {
		opponent[st.side.Opponent()] = st.profile.Rating(category)
	}

	for _, st := range seats {
		opp, ok := opponent[st.side]
		if !ok {
			opp = engineApproxRating(g.req.Engine)
		}
		delta := applyResult(st.profile, category, scoreFor(st.side, result), opp, rated, endedAt)
		if err := s.repo.UpsertProfile(ctx, st.profile); err != nil {
			return err
		}
		if err := s.profiles.Set(ctx, st.profile); err != nil {
			s.logger.Warn("profile_cache_failed", zap.String("user_id", st.userID), zap.Error(err))
		}
		s.logger.Info("profile_rating_update",
			zap.String("user_id", st.userID),
			zap.String("category", category),
			zap.Int("delta", delta),
		)
	}
	return nil
}

func scoreFor(side session.Side, result session.Result) float64 {
	switch {
	case result == session.ResultDraw:
		return 0.5
	case (result == session.WhiteWins) == (side == session.White):
		return 1
	default:
		return 0
	}
}

func expectedScore(rating, opponent int) float64 {
	return 1 / (1 + math.Pow(10, float64(opponent-rating)/400))
}

// applyResult records one game on p and returns the rating change.
func applyResult(p *domain.Profile, category string, score float64, opponent int, rated bool, endedAt time.Time) int {
	p.TotalGames++
	switch score {
	case 1:
		p.Wins++
	case 0:
		p.Losses++
	default:
		p.Draws++
	}
	p.UpdatedAt = endedAt
	if !rated {
		return 0
	}
	prev := p.Rating(category)
	next := int(math.Round(float64(prev) + kFactor*(score-expectedScore(prev, opponent))))
	p.SetRating(category, next)
	return next - prev
}
