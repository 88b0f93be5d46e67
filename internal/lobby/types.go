package lobby

import (
	"strings"
	"time"
)

// State is the lifecycle of a lobby.
type State string

const (
	StateWaiting State = "waiting"
	StateActive  State = "active"
)

// ColorChoice is the creator's color preference.
type ColorChoice string

const (
	ColorWhite  ColorChoice = "white"
	ColorBlack  ColorChoice = "black"
	ColorRandom ColorChoice = "random"
)

func ParseColor(raw string) ColorChoice {
	switch ColorChoice(strings.ToLower(strings.TrimSpace(raw))) {
	case ColorWhite, "w":
		return ColorWhite
	case ColorBlack, "b":
		return ColorBlack
	default:
		return ColorRandom
	}
}

// Preference is what the creator asks for. Zero values use the game service defaults.
type Preference struct {
	Color       ColorChoice `json:"color"`
	GameType    string      `json:"game_type,omitempty"`
	TimeControl int         `json:"time_control,omitempty"`
	Increment   *int        `json:"increment,omitempty"`
}

// Meta is stored as JSON under lobby:<code>.
type Meta struct {
	Code      string     `json:"code"`
	State     State      `json:"state"`
	CreatedAt time.Time  `json:"created_at"`
	Pref      Preference `json:"pref"`

	CreatorID   string `json:"creator_id"`
	CreatorName string `json:"creator_name"`

	WhiteID   string `json:"white_id,omitempty"`
	WhiteName string `json:"white_name,omitempty"`
	BlackID   string `json:"black_id,omitempty"`
	BlackName string `json:"black_name,omitempty"`

	GameID string `json:"game_id,omitempty"`
}

type MakeResult struct {
	Code    string
	Meta    *Meta
	Message string
}

type JoinResult struct {
	Started bool
	GameID  string
	Meta    *Meta
	Message string
}

var (
	ErrInvalidArgs     = errf("invalid arguments")
	ErrLobbyGone       = errf("lobby not found or expired")
	ErrLobbyActive     = errf("lobby already active")
	ErrFull            = errf("lobby already has two participants")
	ErrCreatorHasLobby = errf("user already has a lobby")
	ErrNotCreator      = errf("only the creator can cancel a lobby")
)

type staticErr string

func (e staticErr) Error() string { return string(e) }

func errf(s string) error { return staticErr(s) }
