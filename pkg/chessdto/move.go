package chessdto

type MoveRequest struct {
	From      string `json:"from"`
	To        string `json:"to"`
	Promotion string `json:"promotion,omitempty"`
}

// MoveResponse answers every move submission; a rejected move is not an HTTP error.
type MoveResponse struct {
	Accepted bool       `json:"accepted"`
	Reason   string     `json:"reason,omitempty"`
	State    *GameState `json:"state"`
}
