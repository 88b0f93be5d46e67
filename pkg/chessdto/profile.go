package chessdto

import "time"

type Profile struct {
	ID          string    `json:"id"`
	Username    string    `json:"username"`
	DisplayName string    `json:"display_name"`
	BlitzElo    int       `json:"blitz_elo"`
	RapidElo    int       `json:"rapid_elo"`
	BulletElo   int       `json:"bullet_elo"`
	Wins        int       `json:"wins"`
	Losses      int       `json:"losses"`
	Draws       int       `json:"draws"`
	TotalGames  int       `json:"total_games"`
	UpdatedAt   time.Time `json:"updated_at"`
}

type Preset struct {
	GameType    string `json:"game_type"`
	Mode        string `json:"mode"`
	TimeControl int    `json:"time_control"`
}

type DashboardResponse struct {
	Profile     Profile       `json:"profile"`
	DisplayName string        `json:"display_name"`
	WinRate     int           `json:"win_rate"`
	RecentGames []GameSummary `json:"recent_games"`
	Presets     []Preset      `json:"presets"`
}
