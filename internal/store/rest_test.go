package store

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/park285/chessnerd/internal/domain"
	"github.com/park285/chessnerd/internal/restdb"
)

func TestRESTMapsErrorsAndFilters(t *testing.T) {
	var gamesQuery string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.URL.Path == "/users" && r.Method == http.MethodGet:
			_, _ = w.Write([]byte(`[]`))
		case r.URL.Path == "/users" && r.Method == http.MethodPost:
			w.WriteHeader(http.StatusConflict)
		case r.URL.Path == "/games":
			gamesQuery = r.URL.Query().Get("or")
			_, _ = w.Write([]byte(`[{"id":"g1","moves":["e4","e5"],"result":"draw"}]`))
		case r.URL.Path == "/lessons":
			_, _ = w.Write([]byte(`[{"id":"b","title":"B","difficulty":"master","is_active":true},{"id":"a","title":"A","difficulty":"beginner","is_active":true}]`))
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer srv.Close()

	repo := NewREST(restdb.NewClient(srv.URL, "key"))
	ctx := context.Background()

	_, err := repo.UserByEmail(ctx, "nobody@example.com")
	require.ErrorIs(t, err, ErrNotFound)
	require.ErrorIs(t, repo.CreateUser(ctx, &domain.User{ID: "x", Email: "a@b.c"}), ErrDuplicate)

	games, err := repo.RecentGames(ctx, "u1", 5)
	require.NoError(t, err)
	require.Len(t, games, 1)
	require.Equal(t, []string{"e4", "e5"}, games[0].Moves)
	require.Equal(t, "(white_player_id.eq.u1,black_player_id.eq.u1)", gamesQuery)

	lessons, err := repo.ActiveLessons(ctx)
	require.NoError(t, err)
	require.Equal(t, "a", lessons[0].ID)
}
