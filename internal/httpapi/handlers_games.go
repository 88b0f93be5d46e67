package httpapi

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"

	"github.com/park285/chessnerd/internal/obslog"
	"github.com/park285/chessnerd/internal/play"
	"github.com/park285/chessnerd/internal/render"
	"github.com/park285/chessnerd/internal/session"
	"github.com/park285/chessnerd/pkg/chessdto"
)

const (
	wsWriteTimeout = 5 * time.Second
	wsPingInterval = 30 * time.Second
)

func chiParam(r *http.Request, key string) string { return chi.URLParam(r, key) }

func (s *Server) handleStartGame(w http.ResponseWriter, r *http.Request) {
	var req chessdto.StartGameRequest
	if err := decode(r, w, &req); err != nil {
		writeBadJSON(w)
		return
	}
	start := play.StartRequest{
		TimeControl: req.TimeControl,
		Increment:   req.Increment,
		GameType:    req.GameType,
		Engine:      req.Engine,
		StartFEN:    req.StartFEN,
	}
	if req.Mode != "" {
		mode, err := session.ParseMode(req.Mode)
		if err != nil {
			writeError(w, r, play.ErrInvalidRequest)
			return
		}
		start.Mode = mode
	}
	if req.HumanSide != "" {
		side, err := session.ParseSide(req.HumanSide)
		if err != nil {
			writeError(w, r, session.ErrInvalidSide)
			return
		}
		start.HumanSide = side
	}
	st, err := s.deps.Games.Start(r.Context(), currentUser(r).UserID, start)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, gameStateDTO(st))
}

func (s *Server) handleGetGame(w http.ResponseWriter, r *http.Request) {
	st, err := s.deps.Games.Get(r.Context(), chiParam(r, "id"), currentUser(r).UserID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, gameStateDTO(st))
}

func (s *Server) handleMove(w http.ResponseWriter, r *http.Request) {
	var req chessdto.MoveRequest
	if err := decode(r, w, &req); err != nil {
		writeBadJSON(w)
		return
	}
	res, err := s.deps.Games.Move(r.Context(), chiParam(r, "id"), currentUser(r).UserID, session.MoveAttempt{
		From:      req.From,
		To:        req.To,
		Promotion: req.Promotion,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	st := gameStateDTO(res.State)
	writeJSON(w, http.StatusOK, chessdto.MoveResponse{Accepted: res.Accepted, Reason: res.Reason, State: &st})
}

func (s *Server) handleResign(w http.ResponseWriter, r *http.Request) {
	var req chessdto.ResignRequest
	if err := decode(r, w, &req); err != nil {
		writeBadJSON(w)
		return
	}
	var side session.Side
	if req.Side != "" {
		parsed, err := session.ParseSide(req.Side)
		if err != nil {
			writeError(w, r, session.ErrInvalidSide)
			return
		}
		side = parsed
	}
	st, err := s.deps.Games.Resign(r.Context(), chiParam(r, "id"), currentUser(r).UserID, side)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, gameStateDTO(st))
}

func (s *Server) handleResetGame(w http.ResponseWriter, r *http.Request) {
	st, err := s.deps.Games.Reset(r.Context(), chiParam(r, "id"), currentUser(r).UserID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, gameStateDTO(st))
}

func (s *Server) handleCloseGame(w http.ResponseWriter, r *http.Request) {
	if err := s.deps.Games.Close(r.Context(), chiParam(r, "id"), currentUser(r).UserID); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleBoard(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	size, _ := strconv.Atoi(q.Get("size"))
	opts := render.Options{Size: size}
	if flip, err := strconv.ParseBool(q.Get("flip")); err == nil {
		opts.Flip = flip
	}
	img, err := s.deps.Games.BoardPNG(r.Context(), chiParam(r, "id"), currentUser(r).UserID, opts)
	if err != nil {
		writeError(w, r, err)
		return
	}
	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(img)
}

// handleStream pushes state and notice frames until the game closes or the client leaves.
func (s *Server) handleStream(w http.ResponseWriter, r *http.Request) {
	gameID, userID := chiParam(r, "id"), currentUser(r).UserID
	events, cancel, err := s.deps.Games.Subscribe(r.Context(), gameID, userID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	defer cancel()

	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{OriginPatterns: s.origins})
	if err != nil {
		obslog.L().Warn("ws_accept_failed", zap.String("game_id", gameID), zap.Error(err))
		return
	}
	defer conn.CloseNow()
	ctx := conn.CloseRead(r.Context())

	ping := time.NewTicker(wsPingInterval)
	defer ping.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-events:
			if !ok {
				_ = conn.Close(websocket.StatusNormalClosure, "game closed")
				return
			}
			if err := writeFrame(ctx, conn, streamFrame(ev)); err != nil {
				obslog.L().Debug("ws_write_failed", zap.String("game_id", gameID), zap.Error(err))
				return
			}
		case <-ping.C:
			pctx, pcancel := context.WithTimeout(ctx, wsWriteTimeout)
			err := conn.Ping(pctx)
			pcancel()
			if err != nil {
				return
			}
		}
	}
}

func writeFrame(ctx context.Context, conn *websocket.Conn, frame chessdto.StreamFrame) error {
	wctx, cancel := context.WithTimeout(ctx, wsWriteTimeout)
	defer cancel()
	return wsjson.Write(wctx, conn, frame)
}

func streamFrame(ev play.Event) chessdto.StreamFrame {
	if ev.Notice != nil {
		return chessdto.StreamFrame{Type: "notice", Notice: &chessdto.Notice{
			Kind:    ev.Notice.Kind,
			Message: ev.Notice.Message,
			Failure: ev.Notice.Failure,
		}}
	}
	st := gameStateDTO(*ev.State)
	return chessdto.StreamFrame{Type: "state", State: &st}
}

func gameStateDTO(st play.State) chessdto.GameState {
	out := chessdto.GameState{
		ID:             st.ID,
		Generation:     st.Generation,
		Mode:           string(st.Mode),
		GameType:       st.GameType,
		Engine:         st.Engine,
		WhiteID:        st.WhiteID,
		BlackID:        st.BlackID,
		FEN:            st.FEN,
		MoveHistory:    st.MoveHistory,
		LastMove:       st.LastMoveUCI(),
		WhiteRemaining: st.WhiteRemaining,
		BlackRemaining: st.BlackRemaining,
		ActiveSide:     string(st.ActiveSide),
		Status:         string(st.Status),
		Result:         string(st.Result),
		Method:         st.Method,
		Busy:           st.Busy,
		TimeControl:    st.InitialSeconds,
		Increment:      st.Increment,
		Material:       chessdto.MaterialFromFEN(st.FEN),
	}
	if out.MoveHistory == nil {
		out.MoveHistory = []string{}
	}
	if st.Mode == session.ModeAI {
		out.HumanSide = string(st.HumanSide)
	}
	return out
}
