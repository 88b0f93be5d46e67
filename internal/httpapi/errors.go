package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"

	"go.uber.org/zap"

	"github.com/park285/chessnerd/internal/auth"
	"github.com/park285/chessnerd/internal/lessons"
	"github.com/park285/chessnerd/internal/lobby"
	"github.com/park285/chessnerd/internal/obslog"
	"github.com/park285/chessnerd/internal/play"
	"github.com/park285/chessnerd/internal/session"
	"github.com/park285/chessnerd/internal/store"
	"github.com/park285/chessnerd/pkg/chessdto"
)

var errLobbyUnavailable = errors.New("online lobby requires redis")

type errorMapping struct {
	err       error
	status    int
	code      string
	retryable bool
}

var errorTable = []errorMapping{
	{auth.ErrInvalidInput, http.StatusBadRequest, "invalid_input", false},
	{auth.ErrEmailTaken, http.StatusConflict, "email_taken", false},
	{auth.ErrInvalidCredentials, http.StatusUnauthorized, "invalid_credentials", false},
	{auth.ErrInvalidToken, http.StatusUnauthorized, "unauthorized", false},
	{auth.ErrInvalidResetToken, http.StatusBadRequest, "invalid_reset_token", false},

	{play.ErrSessionNotFound, http.StatusNotFound, "game_not_found", false},
	{play.ErrForbidden, http.StatusForbidden, "forbidden", false},
	{play.ErrTooManyGames, http.StatusServiceUnavailable, "too_many_games", true},
	{play.ErrInvalidRequest, http.StatusBadRequest, "invalid_request", false},
	{play.ErrUnsupported, http.StatusConflict, "unsupported", false},
	{session.ErrNotPlaying, http.StatusConflict, "not_playing", false},
	{session.ErrInvalidSide, http.StatusBadRequest, "invalid_side", false},
	{session.ErrClosed, http.StatusNotFound, "game_not_found", false},

	{lessons.ErrLessonNotFound, http.StatusNotFound, "lesson_not_found", false},
	{lessons.ErrInvalidScore, http.StatusBadRequest, "invalid_score", false},

	{lobby.ErrInvalidArgs, http.StatusBadRequest, "invalid_request", false},
	{lobby.ErrLobbyGone, http.StatusNotFound, "lobby_not_found", false},
	{lobby.ErrLobbyActive, http.StatusConflict, "lobby_active", false},
	{lobby.ErrFull, http.StatusConflict, "lobby_full", false},
	{lobby.ErrCreatorHasLobby, http.StatusConflict, "lobby_exists", false},
	{lobby.ErrNotCreator, http.StatusForbidden, "forbidden", false},
	{errLobbyUnavailable, http.StatusServiceUnavailable, "lobby_unavailable", false},

	{store.ErrNotFound, http.StatusNotFound, "not_found", false},
	{store.ErrDuplicate, http.StatusConflict, "duplicate", false},
}

// classify maps an error to a status and a client-facing domain error.
func classify(err error) (int, chessdto.DomainError) {
	for _, m := range errorTable {
		if errors.Is(err, m.err) {
			return m.status, chessdto.DomainError{Code: m.code, Message: err.Error(), Retryable: m.retryable}
		}
	}
	return http.StatusInternalServerError, chessdto.DomainError{Code: "internal", Message: "internal error", Retryable: true}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, r *http.Request, err error) {
	status, de := classify(err)
	if status >= http.StatusInternalServerError {
		obslog.L().Error("http_error",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", status),
			zap.Error(err),
		)
	}
	if de.Retryable && status == http.StatusServiceUnavailable {
		w.Header().Set("Retry-After", "5")
	}
	writeJSON(w, status, de.Response())
}

func writeBadJSON(w http.ResponseWriter) {
	writeJSON(w, http.StatusBadRequest, chessdto.ErrorResponse{Error: "bad_json", Message: "request body is not valid JSON"})
}
