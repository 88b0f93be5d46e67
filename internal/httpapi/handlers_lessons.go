package httpapi

import (
	"net/http"

	"github.com/park285/chessnerd/internal/domain"
	"github.com/park285/chessnerd/pkg/chessdto"
)

func (s *Server) handleListLessons(w http.ResponseWriter, r *http.Request) {
	ls, err := s.deps.Lessons.List(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	if ls == nil {
		ls = []*domain.Lesson{}
	}
	writeJSON(w, http.StatusOK, ls)
}

func (s *Server) handleGetLesson(w http.ResponseWriter, r *http.Request) {
	l, err := s.deps.Lessons.Get(r.Context(), chiParam(r, "id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, l)
}

func (s *Server) handleLessonProgress(w http.ResponseWriter, r *http.Request) {
	ps, err := s.deps.Lessons.Progress(r.Context(), currentUser(r).UserID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	out := make([]chessdto.LessonProgressResponse, 0, len(ps))
	for _, p := range ps {
		out = append(out, progressDTO(p, ""))
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleStartLesson(w http.ResponseWriter, r *http.Request) {
	up, err := s.deps.Lessons.Start(r.Context(), currentUser(r).UserID, chiParam(r, "id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, progressDTO(up.Progress, up.Message))
}

func (s *Server) handleCompleteLesson(w http.ResponseWriter, r *http.Request) {
	var req chessdto.CompleteLessonRequest
	if err := decode(r, w, &req); err != nil {
		writeBadJSON(w)
		return
	}
	up, err := s.deps.Lessons.Complete(r.Context(), currentUser(r).UserID, chiParam(r, "id"), req.Score)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, progressDTO(up.Progress, up.Message))
}

func progressDTO(p *domain.LessonProgress, msg string) chessdto.LessonProgressResponse {
	return chessdto.LessonProgressResponse{
		LessonID:      p.LessonID,
		Attempts:      p.Attempts,
		Completed:     p.Completed,
		Score:         p.Score,
		CompletedAt:   p.CompletedAt,
		LastAttemptAt: p.LastAttemptAt,
		Message:       msg,
	}
}
