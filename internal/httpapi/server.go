package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/rs/cors"
	"go.uber.org/zap"

	"github.com/park285/chessnerd/internal/auth"
	"github.com/park285/chessnerd/internal/dashboard"
	"github.com/park285/chessnerd/internal/lessons"
	"github.com/park285/chessnerd/internal/lobby"
	"github.com/park285/chessnerd/internal/obslog"
	"github.com/park285/chessnerd/internal/play"
)

const (
	requestTimeout = 10 * time.Second
	maxBodyBytes   = 1 << 20
)

// Deps are the services behind the API. Lobby may be nil when Redis is not configured.
type Deps struct {
	Auth      *auth.Service
	Cookies   auth.Cookies
	Games     *play.Service
	Lobby     *lobby.Manager
	Dashboard *dashboard.Service
	Lessons   *lessons.Service
	Metrics   *Metrics
	Origins   []string
}

type Server struct {
	r       *chi.Mux
	deps    Deps
	handler http.Handler
	origins []string
}

func New(deps Deps) *Server {
	if deps.Metrics == nil {
		deps.Metrics = NewMetrics()
	}
	s := &Server{r: chi.NewRouter(), deps: deps, origins: originPatterns(deps.Origins)}

	s.r.Use(chimw.RequestID)
	s.r.Use(chimw.RealIP)
	s.r.Use(chimw.Recoverer)
	s.r.Use(deps.Metrics.Middleware)
	s.r.Use(requestLogger)

	s.r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{"ok": true, "active_games": deps.Games.Active()})
	})
	s.r.Handle("/metrics", deps.Metrics.Handler())

	requireAuth := deps.Auth.Require(deps.Cookies, func(w http.ResponseWriter, r *http.Request, err error) {
		writeError(w, r, auth.ErrInvalidToken)
	})

	s.r.Group(func(r chi.Router) {
		r.Use(chimw.Timeout(requestTimeout))
		r.Use(jsonContentType)

		r.Route("/auth", func(r chi.Router) {
			r.Post("/signup", s.handleSignUp)
			r.Post("/signin", s.handleSignIn)
			r.Post("/reset", s.handlePasswordReset)
			r.Post("/reset/confirm", s.handleConfirmReset)
			r.Post("/signout", s.handleSignOut)
			r.With(requireAuth).Get("/me", s.handleMe)
		})

		r.Get("/lessons", s.handleListLessons)

		r.Group(func(r chi.Router) {
			r.Use(requireAuth)
			r.Get("/me/dashboard", s.handleDashboard)

			r.Post("/games", s.handleStartGame)
			r.Get("/games/{id}", s.handleGetGame)
			r.Delete("/games/{id}", s.handleCloseGame)
			r.Post("/games/{id}/moves", s.handleMove)
			r.Post("/games/{id}/resign", s.handleResign)
			r.Post("/games/{id}/reset", s.handleResetGame)
			r.Get("/games/{id}/board.png", s.handleBoard)

			r.Get("/lessons/progress", s.handleLessonProgress)
			r.Get("/lessons/{id}", s.handleGetLesson)
			r.Post("/lessons/{id}/start", s.handleStartLesson)
			r.Post("/lessons/{id}/complete", s.handleCompleteLesson)

			r.Get("/lobby", s.handleListLobbies)
			r.Post("/lobby", s.handleMakeLobby)
			r.Get("/lobby/{code}", s.handleGetLobby)
			r.Delete("/lobby/{code}", s.handleCancelLobby)
			r.Post("/lobby/{code}/join", s.handleJoinLobby)
		})
	})

	// Streams outlive the request timeout.
	s.r.With(requireAuth).Get("/games/{id}/ws", s.handleStream)

	s.r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "not_found", "path": r.URL.Path})
	})

	s.handler = cors.New(cors.Options{
		AllowedOrigins:   deps.Origins,
		AllowCredentials: true,
		AllowedMethods: []string{
			http.MethodHead,
			http.MethodGet,
			http.MethodPost,
			http.MethodDelete,
		},
		AllowedHeaders: []string{"Authorization", "Content-Type"},
	}).Handler(s.r)
	return s
}

// Handler is the router wrapped with CORS.
func (s *Server) Handler() http.Handler { return s.handler }

// Router exposes the bare router.
func (s *Server) Router() chi.Router { return s.r }

// Serve runs the HTTP server until ctx is cancelled, then drains for up to grace.
func (s *Server) Serve(ctx context.Context, addr string, grace time.Duration) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.handler,
		ReadHeaderTimeout: 5 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() { errCh <- srv.ListenAndServe() }()
	obslog.L().Info("http_listen", zap.String("addr", addr))

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), grace)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errCh; !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func jsonContentType(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json; charset=utf-8")
		next.ServeHTTP(w, r)
	})
}

func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := chimw.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		obslog.L().Debug("http_request",
			zap.String("request_id", chimw.GetReqID(r.Context())),
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.Status()),
			zap.Duration("elapsed", time.Since(start)),
		)
	})
}

// decode reads a JSON body. An empty body leaves v untouched.
func decode(r *http.Request, w http.ResponseWriter, v any) error {
	err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(v)
	if errors.Is(err, io.EOF) {
		return nil
	}
	return err
}

func currentUser(r *http.Request) auth.Identity {
	id, _ := auth.FromContext(r.Context())
	return id
}

// originPatterns turns configured origins into host patterns for the websocket origin check.
func originPatterns(origins []string) []string {
	out := make([]string, 0, len(origins))
	for _, o := range origins {
		o = strings.TrimSpace(o)
		if o == "" {
			continue
		}
		if o == "*" {
			out = append(out, "*")
			continue
		}
		if u, err := url.Parse(o); err == nil && u.Host != "" {
			out = append(out, u.Host)
			continue
		}
		out = append(out, o)
	}
	return out
}
