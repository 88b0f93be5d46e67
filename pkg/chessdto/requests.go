package chessdto

import "time"

type SignUpRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	Username string `json:"username"`
}

type SignInRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type ResetRequest struct {
	Email string `json:"email"`
}

type ResetConfirmRequest struct {
	Token    string `json:"token"`
	Password string `json:"password"`
}

type UserInfo struct {
	ID       string `json:"id"`
	Username string `json:"username"`
}

type AuthResponse struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
	User      UserInfo  `json:"user"`
}

type StartGameRequest struct {
	Mode        string `json:"mode"`
	TimeControl int    `json:"time_control"`
	Increment   *int   `json:"increment,omitempty"`
	GameType    string `json:"game_type"`
	HumanSide   string `json:"human_side"`
	Engine      string `json:"ai_engine"`
	StartFEN    string `json:"fen,omitempty"`
}

type ResignRequest struct {
	Side string `json:"side"`
}

type CompleteLessonRequest struct {
	Score int `json:"score"`
}

type LessonProgressResponse struct {
	LessonID      string     `json:"lesson_id"`
	Attempts      int        `json:"attempts"`
	Completed     bool       `json:"completed"`
	Score         *int       `json:"score"`
	CompletedAt   *time.Time `json:"completed_at"`
	LastAttemptAt *time.Time `json:"last_attempt_at"`
	Message       string     `json:"message,omitempty"`
}

type MakeLobbyRequest struct {
	Name        string `json:"name"`
	Color       string `json:"color"`
	GameType    string `json:"game_type"`
	TimeControl int    `json:"time_control"`
	Increment   *int   `json:"increment,omitempty"`
}

type JoinLobbyRequest struct {
	Name string `json:"name"`
}

type LobbyInfo struct {
	Code        string    `json:"code"`
	State       string    `json:"state"`
	CreatorName string    `json:"creator_name"`
	GameType    string    `json:"game_type,omitempty"`
	TimeControl int       `json:"time_control,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
	GameID      string    `json:"game_id,omitempty"`
	Message     string    `json:"message,omitempty"`
}
