package session

import (
	"fmt"
	"strings"

	nchess "github.com/corentings/chess/v2"
)

// Position is an opaque handle on a rules-engine position. It carries the game history so
// repetition draws stay detectable. A Position is never mutated after construction.
type Position struct {
	game *nchess.Game
}

// Applied is the outcome of applying one move to a Position.
type Applied struct {
	Position *Position
	SAN      string
	UCI      string
	Outcome  Result
	Method   string
}

func NewPosition() *Position {
	return &Position{game: nchess.NewGame()}
}

// ParseFEN builds a position from a FEN string. An empty string is the standard start.
func ParseFEN(fen string) (*Position, error) {
	fen = strings.TrimSpace(fen)
	if fen == "" || fen == "startpos" {
		return NewPosition(), nil
	}
	opt, err := nchess.FEN(fen)
	if err != nil {
		return nil, fmt.Errorf("parse fen: %w", err)
	}
	return &Position{game: nchess.NewGame(opt)}, nil
}

func (p *Position) FEN() string { return p.game.FEN() }

func (p *Position) Turn() Side {
	if p.game.Position().Turn() == nchess.White {
		return White
	}
	return Black
}

// LegalMoves lists the legal moves in UCI notation.
func (p *Position) LegalMoves() []string {
	moves := p.game.ValidMoves()
	out := make([]string, 0, len(moves))
	for i := range moves {
		out = append(out, strings.ToLower(moves[i].String()))
	}
	return out
}

// Moves returns the moves played to reach this position.
func (p *Position) Moves() []*nchess.Move { return p.game.Moves() }

// Apply plays a UCI move on a private copy of the position.
func (p *Position) Apply(uci string) (applied Applied, err error) {
	defer func() {
		if r := recover(); r != nil {
			applied, err = Applied{}, fmt.Errorf("%w: %v", ErrIllegalMove, r)
		}
	}()

	text := strings.ToLower(strings.TrimSpace(uci))
	if text == "" {
		return Applied{}, ErrIllegalMove
	}

	next := p.game.Clone()
	before := next.Position()
	mv, err := nchess.UCINotation{}.Decode(before, text)
	if err != nil {
		return Applied{}, fmt.Errorf("%w: %v", ErrIllegalMove, err)
	}
	san := nchess.AlgebraicNotation{}.Encode(before, mv)
	if err := next.Move(mv, nil); err != nil {
		return Applied{}, fmt.Errorf("%w: %v", ErrIllegalMove, err)
	}

	applied = Applied{Position: &Position{game: next}, SAN: san, UCI: text}
	switch next.Outcome() {
	case nchess.WhiteWon:
		applied.Outcome = WhiteWins
	case nchess.BlackWon:
		applied.Outcome = BlackWins
	case nchess.Draw:
		applied.Outcome = ResultDraw
	}
	if applied.Outcome != ResultNone {
		applied.Method = strings.ToLower(next.Method().String())
	}
	return applied, nil
}

// ApplyAttempt plays a from/to move. Without a promotion preference a queen promotion is tried
// when the plain move is illegal; with one, the plain move is the fallback.
func (p *Position) ApplyAttempt(a MoveAttempt) (Applied, error) {
	from := strings.ToLower(strings.TrimSpace(a.From))
	to := strings.ToLower(strings.TrimSpace(a.To))
	if !validSquare(from) || !validSquare(to) {
		return Applied{}, ErrIllegalMove
	}
	promo := strings.ToLower(strings.TrimSpace(a.Promotion))
	if len(promo) > 1 || !strings.Contains("qrbn", promo) {
		return Applied{}, ErrIllegalMove
	}

	candidates := []string{from + to, from + to + "q"}
	if promo != "" {
		candidates = []string{from + to + promo, from + to}
	}
	var firstErr error
	for _, c := range candidates {
		applied, err := p.Apply(c)
		if err == nil {
			return applied, nil
		}
		if firstErr == nil {
			firstErr = err
		}
	}
	return Applied{}, firstErr
}

func validSquare(sq string) bool {
	return len(sq) == 2 && sq[0] >= 'a' && sq[0] <= 'h' && sq[1] >= '1' && sq[1] <= '8'
}

// Game returns a copy of the underlying library game, history included.
func (p *Position) Game() *nchess.Game { return p.game.Clone() }

// Replay rebuilds a position by applying UCI moves from startFEN.
func Replay(startFEN string, uci []string) (*Position, error) {
	pos, err := ParseFEN(startFEN)
	if err != nil {
		return nil, err
	}
	for i, mv := range uci {
		applied, err := pos.Apply(mv)
		if err != nil {
			return nil, fmt.Errorf("replay move %d %q: %w", i+1, mv, err)
		}
		pos = applied.Position
	}
	return pos, nil
}
