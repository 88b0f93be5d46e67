package restdb

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type row struct {
	ID    string `json:"id"`
	Title string `json:"title"`
}

func TestSelectBuildsPostgrestQuery(t *testing.T) {
	var gotQuery url.Values
	var gotKey, gotAuth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/rest/v1/lessons", r.URL.Path)
		gotQuery = r.URL.Query()
		gotKey = r.Header.Get("apikey")
		gotAuth = r.Header.Get("Authorization")
		_, _ = w.Write([]byte(`[{"id":"l1","title":"Forks"},{"id":"l2","title":"Pins"}]`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL+"/rest/v1/", "k123")
	var out []row
	err := c.From("lessons").Eq("is_active", true).Order("title", true).Limit(5).Select(context.Background(), &out)
	require.NoError(t, err)
	require.Len(t, out, 2)
	require.Equal(t, "Pins", out[1].Title)
	require.Equal(t, "*", gotQuery.Get("select"))
	require.Equal(t, "eq.true", gotQuery.Get("is_active"))
	require.Equal(t, "title.asc", gotQuery.Get("order"))
	require.Equal(t, "5", gotQuery.Get("limit"))
	require.Equal(t, "k123", gotKey)
	require.Equal(t, "Bearer k123", gotAuth)
}

func TestSingleNotFound(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`[]`))
	}))
	defer srv.Close()

	var out row
	err := NewClient(srv.URL, "").From("lessons").Eq("id", "nope").Single(context.Background(), &out)
	require.ErrorIs(t, err, ErrNotFound)
}

func TestUpsertSendsPreferAndArray(t *testing.T) {
	var prefer, onConflict string
	var body []map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		prefer = r.Header.Get("Prefer")
		onConflict = r.URL.Query().Get("on_conflict")
		b, _ := io.ReadAll(r.Body)
		require.NoError(t, json.Unmarshal(b, &body))
		w.WriteHeader(http.StatusCreated)
	}))
	defer srv.Close()

	err := NewClient(srv.URL, "").From("user_lesson_progress").
		Upsert(context.Background(), row{ID: "a", Title: "b"}, "user_id,lesson_id", nil)
	require.NoError(t, err)
	require.Equal(t, "resolution=merge-duplicates,return=minimal", prefer)
	require.Equal(t, "user_id,lesson_id", onConflict)
	require.Len(t, body, 1)
	require.Equal(t, "a", body[0]["id"])
}

func TestRetriesServerErrors(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		_, _ = w.Write([]byte(`[{"id":"x"}]`))
	}))
	defer srv.Close()

	var out []row
	err := NewClient(srv.URL, "", WithRetry(3)).From("games").Select(context.Background(), &out)
	require.NoError(t, err)
	require.Equal(t, int32(3), calls.Load())
	require.Equal(t, "x", out[0].ID)
}

func TestClientErrorsAreNotRetried(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		if r.Method == http.MethodPost {
			w.WriteHeader(http.StatusConflict)
			_, _ = w.Write([]byte(`{"code":"23505"}`))
			return
		}
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "", WithTimeout(2*time.Second))
	err := c.From("games").Select(context.Background(), &[]row{})
	var serr *StatusError
	require.True(t, errors.As(err, &serr))
	require.Equal(t, http.StatusBadRequest, serr.Status)
	require.Equal(t, int32(1), calls.Load())

	err = c.From("games").Insert(context.Background(), []row{{ID: "g"}}, nil)
	require.ErrorIs(t, err, ErrConflict)
}
