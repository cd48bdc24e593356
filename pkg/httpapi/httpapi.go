// Package httpapi is the HTTP surface of §6: admission, job lookup, result
// retrieval, cache probing, health/metrics, and the live status feed. It
// wraps pkg/intake.Intake rather than talking to core.Store directly, the
// same separation the teacher draws between pkg/api (transport) and
// pkg/agent (domain logic). Routing, CORS, and the writeJSON/writeError
// helpers are carried over in shape from the teacher's pkg/api/server.go;
// the agent-management surface (ManagedAgent, Settings, hooks broadcasting
// agent lifecycle events) has no equivalent here and is not adapted.
package httpapi

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"go.uber.org/zap"

	"github.com/plattargus/detalhar/pkg/core"
	"github.com/plattargus/detalhar/pkg/intake"
	"github.com/plattargus/detalhar/pkg/metrics"
	"github.com/plattargus/detalhar/pkg/queue"
)

// Server is the detalhar HTTP API server.
type Server struct {
	intake     *intake.Intake
	events     *queue.EventLog
	apiKey     string
	apiKeyHdr  string
	origins    []string
	hub        *Hub
	log        *zap.SugaredLogger
	httpServer *http.Server
}

// Config holds server construction parameters.
type Config struct {
	Intake         *intake.Intake
	Events         *queue.EventLog
	APIKey         string
	APIKeyHeader   string // defaults to "X-API-Key"
	AllowedOrigins []string
	Logger         *zap.SugaredLogger
}

// New creates a Server from cfg.
func New(cfg Config) *Server {
	hdr := cfg.APIKeyHeader
	if hdr == "" {
		hdr = "X-API-Key"
	}
	origins := cfg.AllowedOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	log := cfg.Logger
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	return &Server{
		intake:    cfg.Intake,
		events:    cfg.Events,
		apiKey:    cfg.APIKey,
		apiKeyHdr: hdr,
		origins:   origins,
		hub:       NewHub(),
		log:       log,
	}
}

// routes builds the mux, split out from Start so tests can exercise routing,
// auth, and CORS without binding a real listener.
func (s *Server) routes() *http.ServeMux {
	mux := http.NewServeMux()

	mux.HandleFunc("/enqueue", s.middleware(s.authRequired, s.handleEnqueue))
	mux.HandleFunc("/jobs/", s.middleware(s.authRequired, s.handleJobs))
	mux.HandleFunc("/nup/", s.middleware(s.authRequired, s.handleCacheLookup))
	mux.HandleFunc("/health", s.middleware(nil, s.handleHealth))
	mux.Handle("/metrics", metrics.Handler())
	mux.HandleFunc("/ws", s.handleWebSocket)

	return mux
}

// Start serves on addr until it returns ErrServerClosed (on Stop) or fails.
func (s *Server) Start(addr string) error {
	mux := s.routes()

	s.httpServer = &http.Server{Addr: addr, Handler: mux}

	go s.hub.Run()
	if s.events != nil {
		go s.pumpEvents()
	}

	s.log.Infow("http server starting", "addr", addr)
	return s.httpServer.ListenAndServe()
}

// Stop gracefully shuts the server down.
func (s *Server) Stop(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

// pumpEvents forwards the Redis-backed lifecycle log onto the WebSocket hub
// for as long as the process runs; Subscribe blocks internally on XREAD.
func (s *Server) pumpEvents() {
	ctx := context.Background()
	if err := s.events.Subscribe(ctx, func(ev queue.Event) {
		s.hub.Broadcast(Event{
			Type:      string(ev.Type),
			JobID:     ev.JobID,
			Stage:     ev.Stage,
			Error:     ev.Error,
			Timestamp: ev.Timestamp,
		})
	}); err != nil {
		s.log.Warnw("event subscription ended", "error", err)
	}
}

// middleware chains CORS handling and an optional auth check ahead of next.
func (s *Server) middleware(auth func(http.ResponseWriter, *http.Request) bool, next http.HandlerFunc) http.HandlerFunc {
	return s.corsMiddleware(func(w http.ResponseWriter, r *http.Request) {
		if auth != nil && !auth(w, r) {
			return
		}
		next(w, r)
	})
}

// corsMiddleware adds CORS headers, mirroring the teacher's origin-allowlist
// handling including the OPTIONS preflight short-circuit.
func (s *Server) corsMiddleware(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")
		allowed := false
		for _, o := range s.origins {
			if o == "*" || o == origin {
				allowed = true
				break
			}
		}
		if allowed {
			w.Header().Set("Access-Control-Allow-Origin", origin)
		}
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, "+s.apiKeyHdr)
		w.Header().Set("Content-Type", "application/json")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}
		next(w, r)
	}
}

// authRequired rejects a request whose API key header does not match in
// constant time (§6: absent or wrong key -> 401). It writes the response
// itself and returns false when the request should stop here.
func (s *Server) authRequired(w http.ResponseWriter, r *http.Request) bool {
	got := r.Header.Get(s.apiKeyHdr)
	if subtle.ConstantTimeCompare([]byte(got), []byte(s.apiKey)) != 1 {
		writeError(w, http.StatusUnauthorized, "invalid or missing api key")
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}

// writeDomainError maps the core sentinel taxonomy of §7 onto HTTP status
// codes, falling back to 500 for anything unrecognized.
func writeDomainError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, core.ErrBadRequest):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, core.ErrUnauthorized):
		writeError(w, http.StatusUnauthorized, err.Error())
	case errors.Is(err, core.ErrConflict):
		writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, core.ErrNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	default:
		writeError(w, http.StatusInternalServerError, err.Error())
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

// handleEnqueue serves POST /enqueue (§6).
func (s *Server) handleEnqueue(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	var req intake.EnqueueRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("malformed body: %v", err))
		return
	}
	resp, err := s.intake.Enqueue(r.Context(), req)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

// handleJobs serves GET /jobs/{job_id}, /jobs/{job_id}/result and
// /jobs/{job_id}/result/full (§6), dispatched by path suffix since they all
// hang off the same job_id segment.
func (s *Server) handleJobs(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	path := r.URL.Path[len("/jobs/"):]
	switch {
	case path == "":
		writeError(w, http.StatusBadRequest, "job_id is required")
	case hasSuffix(path, "/result/full"):
		s.writeResultFull(w, r, path[:len(path)-len("/result/full")])
	case hasSuffix(path, "/result"):
		s.writeResult(w, r, path[:len(path)-len("/result")])
	default:
		s.writeJob(w, r, path)
	}
}

func (s *Server) writeJob(w http.ResponseWriter, r *http.Request, jobID string) {
	job, err := s.intake.GetJob(r.Context(), jobID)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, job)
}

func (s *Server) writeResult(w http.ResponseWriter, r *http.Request, jobID string) {
	result, err := s.intake.GetResult(r.Context(), jobID)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	w.Write(result)
}

func (s *Server) writeResultFull(w http.ResponseWriter, r *http.Request, jobID string) {
	path, err := s.intake.GetResultFull(r.Context(), jobID)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	http.ServeFile(w, r, path)
}

// handleCacheLookup serves GET /nup/{nup}/cache?scope= (§6).
func (s *Server) handleCacheLookup(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	path := r.URL.Path[len("/nup/"):]
	const suffix = "/cache"
	if !hasSuffix(path, suffix) {
		writeError(w, http.StatusBadRequest, "unknown route")
		return
	}
	nup := path[:len(path)-len(suffix)]
	if nup == "" {
		writeError(w, http.StatusBadRequest, "nup is required")
		return
	}
	resp, err := s.intake.CacheLookup(r.Context(), nup, r.URL.Query().Get("scope"))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func hasSuffix(s, suffix string) bool {
	return len(s) >= len(suffix) && s[len(s)-len(suffix):] == suffix
}
