package httpapi

import (
	"net/http"

	"github.com/park285/chessnerd/internal/lobby"
	"github.com/park285/chessnerd/pkg/chessdto"
)

func (s *Server) lobbyOr503(w http.ResponseWriter, r *http.Request) *lobby.Manager {
	if s.deps.Lobby == nil {
		writeError(w, r, errLobbyUnavailable)
		return nil
	}
	return s.deps.Lobby
}

func (s *Server) handleListLobbies(w http.ResponseWriter, r *http.Request) {
	lm := s.lobbyOr503(w, r)
	if lm == nil {
		return
	}
	metas, err := lm.List(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	out := make([]chessdto.LobbyInfo, 0, len(metas))
	for _, m := range metas {
		out = append(out, lobbyInfo(m, ""))
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleMakeLobby(w http.ResponseWriter, r *http.Request) {
	lm := s.lobbyOr503(w, r)
	if lm == nil {
		return
	}
	var req chessdto.MakeLobbyRequest
	if err := decode(r, w, &req); err != nil {
		writeBadJSON(w)
		return
	}
	me := currentUser(r)
	name := req.Name
	if name == "" {
		name = me.Username
	}
	res, err := lm.Make(r.Context(), me.UserID, name, lobby.Preference{
		Color:       lobby.ParseColor(req.Color),
		GameType:    req.GameType,
		TimeControl: req.TimeControl,
		Increment:   req.Increment,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, lobbyInfo(res.Meta, res.Message))
}

func (s *Server) handleGetLobby(w http.ResponseWriter, r *http.Request) {
	lm := s.lobbyOr503(w, r)
	if lm == nil {
		return
	}
	meta, err := lm.Get(r.Context(), chiParam(r, "code"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, lobbyInfo(meta, ""))
}

func (s *Server) handleCancelLobby(w http.ResponseWriter, r *http.Request) {
	lm := s.lobbyOr503(w, r)
	if lm == nil {
		return
	}
	if err := lm.Cancel(r.Context(), chiParam(r, "code"), currentUser(r).UserID); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleJoinLobby(w http.ResponseWriter, r *http.Request) {
	lm := s.lobbyOr503(w, r)
	if lm == nil {
		return
	}
	var req chessdto.JoinLobbyRequest
	if err := decode(r, w, &req); err != nil {
		writeBadJSON(w)
		return
	}
	me := currentUser(r)
	name := req.Name
	if name == "" {
		name = me.Username
	}
	res, err := lm.Join(r.Context(), chiParam(r, "code"), me.UserID, name)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, lobbyInfo(res.Meta, res.Message))
}

func lobbyInfo(m *lobby.Meta, msg string) chessdto.LobbyInfo {
	return chessdto.LobbyInfo{
		Code:        m.Code,
		State:       string(m.State),
		CreatorName: m.CreatorName,
		GameType:    m.Pref.GameType,
		TimeControl: m.Pref.TimeControl,
		CreatedAt:   m.CreatedAt,
		GameID:      m.GameID,
		Message:     msg,
	}
}
