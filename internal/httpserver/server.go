package httpserver

import (
	"context"
	"encoding/json"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"

	"scholarmind/portal/internal/audit"
	"scholarmind/portal/internal/auth"
	"scholarmind/portal/internal/config"
	"scholarmind/portal/internal/guard"
	"scholarmind/portal/internal/library"
)

// ClientDirectory hands out the session store of one browser client.
type ClientDirectory interface {
	ForClient(clientID string) (*auth.Store, error)
	CurrentSession(clientID string) (auth.SessionUser, bool)
	Watch(clientID string, fn func(auth.Change)) (func(), error)
	Roster() []auth.UserView
}

type AuditLogger interface {
	Record(e audit.Entry) error
}

type Deps struct {
	Clients         ClientDirectory
	Catalogue       *library.Catalogue
	Rules           guard.Rules
	Audit           AuditLogger
	Logger          *slog.Logger
	Cookie          config.AuthConfig
	FrontendDistDir string
}

type Server struct {
	httpServer *http.Server
}

func New(cfg config.HTTPConfig, deps Deps) *Server {
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	h := newHandlers(deps)

	srv := &http.Server{
		Addr:         cfg.Addr,
		Handler:      loggingMiddleware(deps.Logger, h.router()),
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  60 * time.Second,
	}
	// Event streams never go idle; end them so Shutdown can drain.
	srv.RegisterOnShutdown(h.closeStreams)
	return &Server{httpServer: srv}
}

type handlers struct {
	deps    Deps
	log     *slog.Logger
	cookies *clientCookies

	streamsDone chan struct{}
	closeOnce   sync.Once
}

func NewHandler(deps Deps) http.Handler {
	return newHandlers(deps).router()
}

func newHandlers(deps Deps) *handlers {
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	if deps.Rules.LoginPath() == "" {
		deps.Rules = guard.DefaultRules()
	}
	if deps.Catalogue == nil {
		deps.Catalogue = library.Default()
	}
	return &handlers{
		deps:        deps,
		log:         deps.Logger,
		cookies:     newClientCookies(deps.Cookie),
		streamsDone: make(chan struct{}),
	}
}

func (h *handlers) closeStreams() {
	h.closeOnce.Do(func() { close(h.streamsDone) })
}

func (h *handlers) router() http.Handler {
	notAllowed := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	})

	r := mux.NewRouter()
	r.MethodNotAllowedHandler = notAllowed
	r.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	}).Methods(http.MethodGet)
	r.HandleFunc("/readyz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
	}).Methods(http.MethodGet)

	api := r.PathPrefix("/v1").Subrouter()
	api.MethodNotAllowedHandler = notAllowed
	api.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, http.StatusNotFound, "route not found")
	})
	api.HandleFunc("/info", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{
			"service": "scholarmind-portal",
			"version": "0.1.0",
		})
	}).Methods(http.MethodGet)

	clientAPI := api.NewRoute().Subrouter()
	clientAPI.MethodNotAllowedHandler = notAllowed
	clientAPI.Use(h.withClient)
	h.registerAuthHandlers(clientAPI)
	h.registerLibraryHandlers(clientAPI)

	r.PathPrefix("/").Methods(http.MethodGet, http.MethodHead).Handler(h.pages())

	return r
}

func (s *Server) Start() error {
	return s.httpServer.ListenAndServe()
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20))
	return dec.Decode(dst)
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(statusCode int) {
	r.status = statusCode
	r.ResponseWriter.WriteHeader(statusCode)
}

// Unwrap lets http.ResponseController reach the flusher underneath.
func (r *statusRecorder) Unwrap() http.ResponseWriter {
	return r.ResponseWriter
}

func loggingMiddleware(log *slog.Logger, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		reqID := strings.TrimSpace(r.Header.Get("X-Request-Id"))
		if reqID == "" {
			reqID = uuid.NewString()
		}
		w.Header().Set("X-Request-Id", reqID)
		r = r.WithContext(context.WithValue(r.Context(), requestIDKey{}, reqID))
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		start := time.Now()
		next.ServeHTTP(rec, r)
		log.Info("http request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", rec.status,
			"duration_ms", time.Since(start).Milliseconds(),
			"request_id", reqID,
		)
	})
}

type requestIDKey struct{}

func requestIDFromContext(ctx context.Context) string {
	v := ctx.Value(requestIDKey{})
	if v == nil {
		return ""
	}
	if s, ok := v.(string); ok {
		return s
	}
	return ""
}

func clientIP(r *http.Request) string {
	if fwd := strings.TrimSpace(r.Header.Get("X-Forwarded-For")); fwd != "" {
		parts := strings.Split(fwd, ",")
		return strings.TrimSpace(parts[0])
	}
	if realIP := strings.TrimSpace(r.Header.Get("X-Real-IP")); realIP != "" {
		return realIP
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err == nil {
		return host
	}
	return r.RemoteAddr
}

func (h *handlers) audit(r *http.Request, e audit.Entry) {
	if h.deps.Audit == nil {
		return
	}
	e.Client = clientIDFrom(r.Context())
	e.RequestID = requestIDFromContext(r.Context())
	e.RemoteIP = clientIP(r)
	if err := h.deps.Audit.Record(e); err != nil {
		h.log.Warn("audit write failed", "action", e.Action, "error", err)
	}
}
