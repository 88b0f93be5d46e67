package chessdto

import "time"

// GameSummary is a finished game as listed on the dashboard.
type GameSummary struct {
	ID            string    `json:"id"`
	WhitePlayerID string    `json:"white_player_id,omitempty"`
	BlackPlayerID string    `json:"black_player_id,omitempty"`
	Mode          string    `json:"mode"`
	GameType      string    `json:"game_type"`
	TimeControl   int       `json:"time_control"`
	Increment     int       `json:"increment"`
	Result        string    `json:"result"`
	Method        string    `json:"result_method"`
	Opening       string    `json:"opening,omitempty"`
	MoveCount     int       `json:"move_count"`
	PGN           string    `json:"pgn,omitempty"`
	EndedAt       time.Time `json:"ended_at"`
}
