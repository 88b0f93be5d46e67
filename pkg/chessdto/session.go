package chessdto

import "strings"

type MaterialScore struct {
	White int `json:"white"`
	Black int `json:"black"`
}

var pieceValues = map[rune]int{'p': 1, 'n': 3, 'b': 3, 'r': 5, 'q': 9}

// MaterialFromFEN counts material from the placement field of a FEN.
func MaterialFromFEN(fen string) MaterialScore {
	var m MaterialScore
	placement, _, _ := strings.Cut(strings.TrimSpace(fen), " ")
	for _, r := range placement {
		lower := r | 0x20
		v, ok := pieceValues[lower]
		if !ok {
			continue
		}
		if r == lower {
			m.Black += v
		} else {
			m.White += v
		}
	}
	return m
}

// GameState is the wire form of a live game.
type GameState struct {
	ID             string        `json:"id"`
	Generation     uint64        `json:"generation"`
	Mode           string        `json:"mode"`
	GameType       string        `json:"game_type"`
	Engine         string        `json:"ai_engine,omitempty"`
	HumanSide      string        `json:"human_side,omitempty"`
	WhiteID        string        `json:"white_player_id,omitempty"`
	BlackID        string        `json:"black_player_id,omitempty"`
	FEN            string        `json:"fen"`
	MoveHistory    []string      `json:"move_history"`
	LastMove       string        `json:"last_move,omitempty"`
	WhiteRemaining int           `json:"white_time"`
	BlackRemaining int           `json:"black_time"`
	ActiveSide     string        `json:"active_side"`
	Status         string        `json:"status"`
	Result         string        `json:"result,omitempty"`
	Method         string        `json:"result_method,omitempty"`
	Busy           bool          `json:"busy"`
	TimeControl    int           `json:"time_control"`
	Increment      int           `json:"increment"`
	Material       MaterialScore `json:"material"`
}

// Notice is a user-facing message pushed on the game stream.
type Notice struct {
	Kind    string `json:"kind"`
	Message string `json:"message"`
	Failure bool   `json:"failure,omitempty"`
}

// StreamFrame is one WebSocket message: a state or a notice.
type StreamFrame struct {
	Type   string     `json:"type"`
	State  *GameState `json:"state,omitempty"`
	Notice *Notice    `json:"notice,omitempty"`
}
