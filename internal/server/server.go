package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"net/http"
	"strconv"
	"time"

	"github.com/samvad-hq/samvad-post-fetcher/internal/domain"
	"github.com/samvad-hq/samvad-post-fetcher/internal/fetcher"
	"github.com/samvad-hq/samvad-post-fetcher/internal/logger"
	"github.com/samvad-hq/samvad-post-fetcher/internal/ratelimit"
)

// FetchAPI is the part of fetcher.Service exposed over HTTP.
type FetchAPI interface {
	Fetch(ctx context.Context, handle string, limit int) (fetcher.Result, error)
	InvalidateCache(handle string) (int, error)
	RateLimiterStatus() ratelimit.Status
}

// DefaultLimit applies when a posts request carries no limit.
const DefaultLimit = 12

// Server exposes the fetch service as a small JSON API.
type Server struct {
	api  FetchAPI
	log  logger.Logger
	now  func() time.Time
	http *http.Server
}

// New builds a server listening on addr.
func New(addr string, api FetchAPI, log logger.Logger) *Server {
	s := &Server{
		api: api,
		log: logger.Ensure(log),
		now: time.Now,
	}
	s.http = &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

// Handler returns the routed handler with request logging.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /v1/posts", s.handlePosts)
	mux.HandleFunc("DELETE /v1/cache", s.handleInvalidate)
	mux.HandleFunc("GET /v1/ratelimit", s.handleRateLimit)
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	return s.logRequests(mux)
}

// Run serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		s.log.InfoObj("http server listening", "http_addr", s.http.Addr)
		if err := s.http.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := s.http.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("http shutdown: %w", err)
	}
	return nil
}

type postsResponse struct {
	Handle string        `json:"handle"`
	Count  int           `json:"count"`
	Posts  []domain.Post `json:"posts"`
	Cached bool          `json:"cached"`
}

func (s *Server) handlePosts(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	limit := DefaultLimit
	if raw := q.Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			s.writeError(w, domain.Validation("limit must be an integer, got %q", raw))
			return
		}
		limit = n
	}

	res, err := s.api.Fetch(r.Context(), q.Get("handle"), limit)
	if err != nil {
		s.writeError(w, err)
		return
	}
	posts := res.Posts
	if posts == nil {
		posts = []domain.Post{}
	}
	writeJSON(w, http.StatusOK, postsResponse{
		Handle: res.Handle,
		Count:  len(posts),
		Posts:  posts,
		Cached: res.Cached,
	})
}

func (s *Server) handleInvalidate(w http.ResponseWriter, r *http.Request) {
	removed, err := s.api.InvalidateCache(r.URL.Query().Get("handle"))
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"removed": removed})
}

func (s *Server) handleRateLimit(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.api.RateLimiterStatus())
}

type errorBody struct {
	Error errorDetail `json:"error"`
}

type errorDetail struct {
	Kind    domain.Kind `json:"kind"`
	Message string      `json:"message"`
}

func (s *Server) writeError(w http.ResponseWriter, err error) {
	kind := domain.KindOf(err)
	status := statusFor(kind)

	if kind == domain.KindRateLimit {
		wait := s.api.RateLimiterStatus().ResetAt.Sub(s.now())
		w.Header().Set("Retry-After", strconv.Itoa(int(math.Max(1, math.Ceil(wait.Seconds())))))
	}

	msg := err.Error()
	var de *domain.Error
	if errors.As(err, &de) && de.Message != "" {
		msg = de.Message
	}
	writeJSON(w, status, errorBody{Error: errorDetail{Kind: kind, Message: msg}})
}

func statusFor(kind domain.Kind) int {
	switch kind {
	case domain.KindValidation:
		return http.StatusBadRequest
	case domain.KindRateLimit:
		return http.StatusTooManyRequests
	case domain.KindTimeout:
		return http.StatusGatewayTimeout
	default:
		return http.StatusBadGateway
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		s.log.InfoObj("http request", "http_request", map[string]any{
			"method":      r.Method,
			"path":        r.URL.Path,
			"query":       r.URL.RawQuery,
			"status":      rec.status,
			"duration_ms": time.Since(start).Milliseconds(),
		})
	})
}
