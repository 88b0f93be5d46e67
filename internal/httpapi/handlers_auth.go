package httpapi

import (
	"net/http"
	"strconv"

	"github.com/park285/chessnerd/internal/auth"
	"github.com/park285/chessnerd/internal/dashboard"
	"github.com/park285/chessnerd/internal/domain"
	"github.com/park285/chessnerd/pkg/chessdto"
)

func (s *Server) handleSignUp(w http.ResponseWriter, r *http.Request) {
	var req chessdto.SignUpRequest
	if err := decode(r, w, &req); err != nil {
		writeBadJSON(w)
		return
	}
	tok, err := s.deps.Auth.SignUp(r.Context(), req.Email, req.Password, req.Username)
	if err != nil {
		writeError(w, r, err)
		return
	}
	s.deps.Cookies.Set(w, tok.Value, tok.ExpiresAt)
	writeJSON(w, http.StatusCreated, authResponse(tok))
}

func (s *Server) handleSignIn(w http.ResponseWriter, r *http.Request) {
	var req chessdto.SignInRequest
	if err := decode(r, w, &req); err != nil {
		writeBadJSON(w)
		return
	}
	tok, err := s.deps.Auth.SignIn(r.Context(), req.Email, req.Password)
	if err != nil {
		writeError(w, r, err)
		return
	}
	s.deps.Cookies.Set(w, tok.Value, tok.ExpiresAt)
	writeJSON(w, http.StatusOK, authResponse(tok))
}

func (s *Server) handlePasswordReset(w http.ResponseWriter, r *http.Request) {
	var req chessdto.ResetRequest
	if err := decode(r, w, &req); err != nil {
		writeBadJSON(w)
		return
	}
	if err := s.deps.Auth.RequestPasswordReset(r.Context(), req.Email); err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]bool{"ok": true})
}

func (s *Server) handleConfirmReset(w http.ResponseWriter, r *http.Request) {
	var req chessdto.ResetConfirmRequest
	if err := decode(r, w, &req); err != nil {
		writeBadJSON(w)
		return
	}
	if err := s.deps.Auth.ConfirmPasswordReset(r.Context(), req.Token, req.Password); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleSignOut(w http.ResponseWriter, r *http.Request) {
	s.deps.Cookies.Clear(w)
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleMe(w http.ResponseWriter, r *http.Request) {
	id := currentUser(r)
	writeJSON(w, http.StatusOK, chessdto.UserInfo{ID: id.UserID, Username: id.Username})
}

func (s *Server) handleDashboard(w http.ResponseWriter, r *http.Request) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	sum, err := s.deps.Dashboard.Summary(r.Context(), currentUser(r).UserID, limit)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, dashboardResponse(sum))
}

func authResponse(tok *auth.Token) chessdto.AuthResponse {
	return chessdto.AuthResponse{
		Token:     tok.Value,
		ExpiresAt: tok.ExpiresAt,
		User:      chessdto.UserInfo{ID: tok.Identity.UserID, Username: tok.Identity.Username},
	}
}

func dashboardResponse(sum *dashboard.Summary) chessdto.DashboardResponse {
	out := chessdto.DashboardResponse{
		Profile:     profileDTO(sum.Profile),
		DisplayName: sum.DisplayName,
		WinRate:     sum.WinRate,
		RecentGames: make([]chessdto.GameSummary, 0, len(sum.RecentGames)),
		Presets:     make([]chessdto.Preset, 0, len(sum.Presets)),
	}
	for _, g := range sum.RecentGames {
		out.RecentGames = append(out.RecentGames, gameSummaryDTO(g))
	}
	for _, p := range sum.Presets {
		out.Presets = append(out.Presets, chessdto.Preset{GameType: p.GameType, Mode: p.Mode, TimeControl: p.TimeControl})
	}
	return out
}

func profileDTO(p domain.Profile) chessdto.Profile {
	return chessdto.Profile{
		ID:          p.ID,
		Username:    p.Username,
		DisplayName: p.Name(),
		BlitzElo:    p.BlitzElo,
		RapidElo:    p.RapidElo,
		BulletElo:   p.BulletElo,
		Wins:        p.Wins,
		Losses:      p.Losses,
		Draws:       p.Draws,
		TotalGames:  p.TotalGames,
		UpdatedAt:   p.UpdatedAt,
	}
}

func gameSummaryDTO(g *domain.GameRecord) chessdto.GameSummary {
	return chessdto.GameSummary{
		ID:            g.ID,
		WhitePlayerID: g.WhitePlayerID,
		BlackPlayerID: g.BlackPlayerID,
		Mode:          g.Mode,
		GameType:      g.GameType,
		TimeControl:   g.TimeControl,
		Increment:     g.Increment,
		Result:        g.Result,
		Method:        g.Method,
		Opening:       g.Opening,
		MoveCount:     len(g.Moves),
		PGN:           g.PGN,
		EndedAt:       g.EndedAt,
	}
}
