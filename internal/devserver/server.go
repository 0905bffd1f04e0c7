// Package devserver is a scripted stand-in for the CodeCoach backend. It
// serves the same HTTP and websocket routes with canned tutor replies so
// the client can be developed and tested offline.
package devserver

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/abhisek/codecoach/internal/api"
	"github.com/abhisek/codecoach/internal/session"
)

// Options configures a Server.
type Options struct {
	// ChunkDelay is the pause between streamed words.
	ChunkDelay time.Duration
	Logger     *zap.Logger
}

type tutorSession struct {
	id         string
	problem    string
	language   string
	skillLevel string
	model      string
	stage      session.Stage
	completed  bool
	challenge  *scriptedChallenge
	turns      int
}

// Server holds the in-memory sessions and the router.
type Server struct {
	opts   Options
	logger *zap.Logger
	router chi.Router

	mu       sync.Mutex
	sessions map[string]*tutorSession
}

// New creates a scripted backend.
func New(opts Options) *Server {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Server{
		opts:     opts,
		logger:   logger,
		sessions: make(map[string]*tutorSession),
	}

	r := chi.NewRouter()
	r.Use(chiMiddleware.RequestID)
	r.Use(chiMiddleware.Recoverer)
	r.Use(chiMiddleware.Heartbeat("/health"))

	r.Route("/api", func(r chi.Router) {
		r.Post("/start_session", s.startSession)
		r.Route("/session/{id}", func(r chi.Router) {
			r.Post("/stage/next", s.withSession(s.nextStage))
			r.Post("/complete", s.withSession(s.complete))
			r.Get("/explain/{concept}", s.withSession(s.explain))
			r.Post("/explain/{concept}", s.withSession(s.explain))
			r.Post("/hint", s.withSession(s.hint))
			r.Post("/challenge", s.withSession(s.challenge))
			r.Post("/challenge/check", s.withSession(s.checkChallenge))
			r.Post("/feedback", s.withSession(s.feedback(false)))
			r.Post("/feedback_v2", s.withSession(s.feedback(true)))
			r.Get("/status", s.withSession(s.status))
		})
	})
	r.Get("/ws/chat/{id}", s.chat)

	s.router = r
	return s
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// ListenAndServe serves on addr until ctx is canceled, then shuts down
// gracefully.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:        addr,
		Handler:     s,
		ReadTimeout: 30 * time.Second,
		IdleTimeout: 120 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("devserver listening", zap.String("addr", addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

// Expire forgets a session, as the real backend does when it restarts.
func (s *Server) Expire(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.sessions[id]
	delete(s.sessions, id)
	return ok
}

// Stage returns the server-side stage of a session.
func (s *Server) Stage(id string) (session.Stage, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ts, ok := s.sessions[id]
	if !ok {
		return "", false
	}
	return ts.stage, true
}

// SetStage forces a session's stage.
func (s *Server) SetStage(id string, st session.Stage) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	ts, ok := s.sessions[id]
	if ok {
		ts.stage = st
	}
	return ok
}

// JSON writes v with the given status code.
func JSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, `{"detail": "failed to encode response"}`, http.StatusInternalServerError)
	}
}

// Detail writes a FastAPI-style error body.
func Detail(w http.ResponseWriter, status int, detail string) {
	JSON(w, status, map[string]string{"detail": detail})
}

func validationError(w http.ResponseWriter, field, msg string) {
	JSON(w, http.StatusUnprocessableEntity, map[string]any{
		"detail": []map[string]any{{"loc": []string{"body", field}, "msg": msg, "type": "value_error"}},
	})
}

type sessionHandler func(w http.ResponseWriter, r *http.Request, ts *tutorSession)

// withSession resolves {id} and holds the lock while h runs. Unknown ids
// get the 404 the client treats as session expiry.
func (s *Server) withSession(h sessionHandler) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")
		s.mu.Lock()
		defer s.mu.Unlock()
		ts, ok := s.sessions[id]
		if !ok {
			Detail(w, http.StatusNotFound, "Session not found.")
			return
		}
		h(w, r, ts)
	}
}

func decode(r *http.Request, v any) error {
	dec := json.NewDecoder(r.Body)
	return dec.Decode(v)
}

func (s *Server) startSession(w http.ResponseWriter, r *http.Request) {
	var req api.StartRequest
	if err := decode(r, &req); err != nil {
		validationError(w, "", "invalid JSON body")
		return
	}
	if strings.TrimSpace(req.Problem) == "" {
		validationError(w, "problem", "field required")
		return
	}

	ts := &tutorSession{
		id:         uuid.NewString(),
		problem:    req.Problem,
		language:   req.Language,
		skillLevel: req.SkillLevel,
		model:      req.Model,
		stage:      session.FirstStage(),
	}
	s.mu.Lock()
	s.sessions[ts.id] = ts
	s.mu.Unlock()

	s.logger.Info("session started", zap.String("session_id", ts.id), zap.String("model", ts.model))
	JSON(w, http.StatusOK, map[string]any{
		"success":   true,
		"sessionId": ts.id,
		"message":   greeting(ts.problem, ts.language, ts.skillLevel),
	})
}

func (s *Server) nextStage(w http.ResponseWriter, r *http.Request, ts *tutorSession) {
	next, ok := ts.stage.Next()
	if !ok {
		JSON(w, http.StatusOK, map[string]any{
			"success":  false,
			"message":  "Already at the last learning stage.",
			"newStage": ts.stage,
		})
		return
	}
	prev := ts.stage
	ts.stage = next
	ts.challenge = nil
	s.logger.Info("stage advanced", zap.String("session_id", ts.id), zap.String("stage", string(next)))
	JSON(w, http.StatusOK, map[string]any{
		"success":           true,
		"transitionMessage": transition(prev, next),
		"newStage":          next,
		"isLastStage":       next.IsLast(),
		"stageIndex":        next.Index(),
		"totalStages":       len(session.Stages()),
	})
}

func (s *Server) complete(w http.ResponseWriter, r *http.Request, ts *tutorSession) {
	if !ts.stage.IsLast() {
		JSON(w, http.StatusOK, map[string]any{
			"success":      false,
			"message":      "Please complete all learning stages before summarizing.",
			"currentStage": ts.stage,
		})
		return
	}
	ts.completed = true
	JSON(w, http.StatusOK, map[string]any{
		"success":           true,
		"learningCompleted": true,
		"summary":           summary(ts.problem),
		"message":           "Congratulations! You have completed learning this problem. You can now start a new problem.",
	})
}

func (s *Server) explain(w http.ResponseWriter, r *http.Request, ts *tutorSession) {
	// chi matches on RawPath when the request carries one, so the
	// parameter is still escaped only in that case.
	concept := chi.URLParam(r, "concept")
	if r.URL.RawPath != "" {
		var err error
		if concept, err = url.PathUnescape(concept); err != nil {
			concept = ""
		}
	}
	if strings.TrimSpace(concept) == "" {
		JSON(w, http.StatusOK, map[string]any{"success": false, "error": "No concept given."})
		return
	}
	JSON(w, http.StatusOK, map[string]any{"success": true, "explanation": explanation(concept, ts.language)})
}

func (s *Server) hint(w http.ResponseWriter, r *http.Request, ts *tutorSession) {
	var req api.HintRequest
	if err := decode(r, &req); err != nil {
		validationError(w, "hintRequest", "invalid JSON body")
		return
	}
	if strings.TrimSpace(req.HintRequest) == "" {
		JSON(w, http.StatusOK, map[string]any{"success": false, "error": "Tell me what you are stuck on."})
		return
	}
	JSON(w, http.StatusOK, map[string]any{"success": true, "hint": hint(ts.stage, req.HintRequest)})
}

func (s *Server) challenge(w http.ResponseWriter, r *http.Request, ts *tutorSession) {
	c := challenges[ts.stage]
	ts.challenge = &c
	JSON(w, http.StatusOK, map[string]any{
		"success": true,
		"challengeData": api.ChallengeData{
			Challenge:     c.text(ts.stage),
			CorrectAnswer: c.correctLabel(),
			Explanation:   c.explanation,
		},
	})
}

func (s *Server) checkChallenge(w http.ResponseWriter, r *http.Request, ts *tutorSession) {
	var req api.CheckRequest
	if err := decode(r, &req); err != nil {
		validationError(w, "answer", "invalid JSON body")
		return
	}
	if ts.challenge == nil {
		JSON(w, http.StatusOK, map[string]any{"success": false, "error": "No active challenge."})
		return
	}
	c := ts.challenge
	if c.accepts(req.Answer) {
		JSON(w, http.StatusOK, map[string]any{
			"success":     true,
			"isCorrect":   true,
			"feedback":    "Correct!",
			"explanation": c.explanation,
		})
		return
	}
	JSON(w, http.StatusOK, map[string]any{
		"success":   true,
		"isCorrect": false,
		"feedback":  "Not quite. Have another look at the options.",
	})
}

func (s *Server) feedback(v2 bool) sessionHandler {
	return func(w http.ResponseWriter, r *http.Request, ts *tutorSession) {
		var req api.FeedbackRequest
		if err := decode(r, &req); err != nil {
			validationError(w, "code", "invalid JSON body")
			return
		}
		text := codeFeedback(ts.language, req.Code)
		if v2 {
			JSON(w, http.StatusOK, map[string]any{"success": true, "analysis": text, "analysis_type": "static"})
			return
		}
		JSON(w, http.StatusOK, map[string]any{"success": true, "feedback": text})
	}
}

func (s *Server) status(w http.ResponseWriter, r *http.Request, ts *tutorSession) {
	last := ts.stage.IsLast()
	JSON(w, http.StatusOK, map[string]any{
		"success":           true,
		"currentStage":      ts.stage,
		"currentStageIndex": ts.stage.Index(),
		"totalStages":       len(session.Stages()),
		"isLastStage":       last,
		"learningCompleted": ts.completed,
		"canTransitionNext": !last && !ts.completed,
		"canComplete":       last && !ts.completed,
	})
}
