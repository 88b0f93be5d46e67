package session

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

var (
	ErrNotPlaying   = errors.New("session is not in play")
	ErrNotYourTurn  = errors.New("not your turn")
	ErrIllegalMove  = errors.New("illegal move")
	ErrNoLegalMoves = errors.New("no legal moves")
	ErrClosed       = errors.New("session closed")
	ErrInvalidSide  = errors.New("invalid side")
)

// Side identifies a chess side.
type Side string

const (
	White Side = "white"
	Black Side = "black"
)

func (s Side) Opponent() Side {
	if s == White {
		return Black
	}
	return White
}

func (s Side) Valid() bool { return s == White || s == Black }

// ParseSide accepts white/black and their one-letter forms.
func ParseSide(raw string) (Side, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "white", "w":
		return White, nil
	case "black", "b":
		return Black, nil
	default:
		return "", fmt.Errorf("unknown side %q", raw)
	}
}

// Status is the lifecycle state of a session. Anything but StatusPlaying is terminal.
type Status string

const (
	StatusPlaying   Status = "playing"
	StatusCheckmate Status = "checkmate"
	StatusDraw      Status = "draw"
	StatusResigned  Status = "resigned"
)

func (s Status) Terminal() bool { return s != StatusPlaying }

// Result is reported to the end-of-game callback.
type Result string

const (
	ResultNone Result = ""
	WhiteWins  Result = "white_wins"
	BlackWins  Result = "black_wins"
	ResultDraw Result = "draw"
)

func winnerResult(side Side) Result {
	if side == White {
		return WhiteWins
	}
	return BlackWins
}

// Mode selects who controls each side.
type Mode string

const (
	ModeAI     Mode = "ai"
	ModeLocal  Mode = "local"
	ModeOnline Mode = "online"
)

func ParseMode(raw string) (Mode, error) {
	switch m := Mode(strings.ToLower(strings.TrimSpace(raw))); m {
	case ModeAI, ModeLocal, ModeOnline:
		return m, nil
	default:
		return "", fmt.Errorf("unknown game mode %q", raw)
	}
}

// Termination methods recorded next to the result.
const (
	MethodTimeout     = "timeout"
	MethodResignation = "resignation"
)

const defaultInitialSeconds = 600

type Config struct {
	InitialSeconds   int
	IncrementSeconds int
	Mode             Mode
	// HumanSide is the side the human controls in ModeAI.
	HumanSide Side
	// ReplyDelay is the fixed wait before the automated side moves.
	ReplyDelay time.Duration
	// ThinkMin and ThinkMax bound an extra random wait on top of ReplyDelay.
	ThinkMin time.Duration
	ThinkMax time.Duration
	StartFEN string
}

func (c Config) withDefaults() Config {
	if c.InitialSeconds <= 0 {
		c.InitialSeconds = defaultInitialSeconds
	}
	if c.IncrementSeconds < 0 {
		c.IncrementSeconds = 0
	}
	if c.Mode == "" {
		c.Mode = ModeLocal
	}
	if !c.HumanSide.Valid() {
		c.HumanSide = White
	}
	if c.ReplyDelay < 0 {
		c.ReplyDelay = 0
	}
	if c.ThinkMin < 0 {
		c.ThinkMin = 0
	}
	if c.ThinkMax < c.ThinkMin {
		c.ThinkMax = c.ThinkMin
	}
	c.StartFEN = strings.TrimSpace(c.StartFEN)
	return c
}

// MoveAttempt is a transient move request. By, when set, must match the side on move.
type MoveAttempt struct {
	From      string
	To        string
	Promotion string
	By        Side
}

// Snapshot is an immutable copy of a session's state.
type Snapshot struct {
	ID         string
	Generation uint64
	// Seq increases with every snapshot taken from one session, across generations.
	Seq            uint64
	Mode           Mode
	HumanSide      Side
	FEN            string
	MoveHistory    []string
	MovesUCI       []string
	WhiteRemaining int
	BlackRemaining int
	ActiveSide     Side
	Status         Status
	Result         Result
	Method         string
	Busy           bool
	InitialSeconds int
	Increment      int
	StartedAt      time.Time
	EndedAt        time.Time
}

func (s Snapshot) Remaining(side Side) int {
	if side == White {
		return s.WhiteRemaining
	}
	return s.BlackRemaining
}

func (s Snapshot) LastMoveUCI() string {
	if n := len(s.MovesUCI); n > 0 {
		return s.MovesUCI[n-1]
	}
	return ""
}
