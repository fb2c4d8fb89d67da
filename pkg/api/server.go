// Package api exposes a credential registry over HTTP/JSON.
//
// The calling identity is taken from the X-SmartKey-Caller header. The API
// does not authenticate it: a deployment puts the server behind a gateway
// that verifies the caller and sets the header.
package api

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/smartkey-protocol/smartkey-go/pkg/fault"
	"github.com/smartkey-protocol/smartkey-go/pkg/identity"
	"github.com/smartkey-protocol/smartkey-go/pkg/registry"
	"github.com/smartkey-protocol/smartkey-go/pkg/version"
)

// Header names.
const (
	HeaderCaller    = "X-SmartKey-Caller"
	HeaderRequestID = "X-Request-ID"
)

// maxBodyBytes bounds request bodies.
const maxBodyBytes = 64 << 10

// ServerConfig configures a Server.
type ServerConfig struct {
	// Version is reported by the health endpoint. Defaults to version.Current.
	Version string

	// Logger is the request logger. Defaults to slog.Default().
	Logger *slog.Logger
}

// Server serves the registry API.
type Server struct {
	registry *registry.Registry
	config   ServerConfig
	logger   *slog.Logger
	mux      *http.ServeMux
	prefix   string
}

// NewServer creates a server for reg.
func NewServer(reg *registry.Registry, cfg ServerConfig) *Server {
	if cfg.Version == "" {
		cfg.Version = version.Current
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	s := &Server{
		registry: reg,
		config:   cfg,
		logger:   logger,
		mux:      http.NewServeMux(),
		prefix:   version.PathPrefix(version.MustCurrent().Major),
	}
	s.registerRoutes()
	return s
}

// Handler returns the root handler, with request ids and logging applied.
func (s *Server) Handler() http.Handler {
	return s.withRequestID(s.mux)
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.Handler().ServeHTTP(w, r)
}

func (s *Server) registerRoutes() {
	s.handle("GET /health", s.handleHealth)
	s.handle("GET /interfaces/{id}", s.handleInterface)

	s.handle("POST /tokens", s.withCaller(s.handleMint))
	s.handle("GET /tokens/{id}", s.handleGetToken)
	s.handle("DELETE /tokens/{id}", s.withCaller(s.handleBurn))
	s.handle("POST /tokens/{id}/transfer", s.withCaller(s.handleTransfer))
	s.handle("POST /tokens/{id}/approve", s.withCaller(s.handleApprove))
	s.handle("POST /tokens/{id}/user", s.withCaller(s.handleSetUser))
	s.handle("POST /tokens/{id}/timeout", s.withCaller(s.handleSetTimeout))
	s.handle("GET /tokens/{id}/expired", s.handleCheckTimeout)
	s.handle("POST /tokens/{id}/owner-engagement/start", s.withCaller(s.handleStartOwnerEngagement))
	s.handle("POST /tokens/{id}/user-engagement/start", s.withCaller(s.handleStartUserEngagement))

	s.handle("POST /device/owner-engagement", s.withCaller(s.handleOwnerEngagement))
	s.handle("POST /device/user-engagement", s.withCaller(s.handleUserEngagement))
	s.handle("POST /device/delegate", s.withCaller(s.handleDelegate))
	s.handle("POST /device/timestamp", s.withCaller(s.handleUpdateTimestamp))
	s.handle("GET /devices/{addr}/token", s.handleTokenOfDevice)

	s.handle("POST /operators", s.withCaller(s.handleSetOperator))
	s.handle("GET /owners/{addr}/operators/{operator}", s.handleIsOperator)
	s.handle("GET /owners/{addr}/balance", s.handleOwnerBalance)
	s.handle("GET /users/{addr}/balance", s.handleUserBalance)
}

// handle registers pattern ("METHOD /path") under the versioned prefix.
func (s *Server) handle(pattern string, h http.HandlerFunc) {
	var method, path string
	if _, err := fmt.Sscanf(pattern, "%s %s", &method, &path); err != nil {
		panic(fmt.Sprintf("api: bad route pattern %q", pattern))
	}
	s.mux.HandleFunc(method+" "+s.prefix+path, h)
}

// withRequestID assigns every request an id, echoes it in the response and
// logs the outcome.
func (s *Server) withRequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(HeaderRequestID)
		if id == "" {
			id = uuid.NewString()
		}
		w.Header().Set(HeaderRequestID, id)

		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r.WithContext(ContextWithRequestID(r.Context(), id)))

		s.logger.Debug("request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", rec.status,
			"request_id", id,
			"duration", time.Since(start))
	})
}

// withCaller parses the caller header into the request context.
func (s *Server) withCaller(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		raw := r.Header.Get(HeaderCaller)
		if raw == "" {
			s.writeError(w, r, fault.BadInput("missing "+HeaderCaller+" header"))
			return
		}
		caller, err := identity.ParseAddress(raw)
		if err != nil {
			s.writeError(w, r, fault.BadInput("invalid "+HeaderCaller+" header"))
			return
		}
		next(w, r.WithContext(ContextWithCaller(r.Context(), caller)))
	}
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

// writeJSON writes a JSON response with the given status code.
func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

// writeError renders err as the JSON error envelope.
func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	rich := fault.ToServiceError(err)
	body := ErrorBody{Error: ErrorDetail{
		Message:   rich.Message,
		TextCode:  rich.TextCode,
		Category:  fmt.Sprint(rich.Category),
		Code:      rich.Code,
		RequestID: RequestIDFromContext(r.Context()),
	}}
	if kind := fault.KindOf(err); kind != fault.KindUnknown {
		body.Error.Kind = kind.String()
	}
	if rich.Code >= http.StatusInternalServerError {
		s.logger.Error("request failed", "path", r.URL.Path, "error", err)
	}
	writeJSON(w, rich.Code, body)
}

// decode reads a JSON body into v.
func decode(w http.ResponseWriter, r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return fault.BadInput("invalid request body: " + err.Error())
	}
	return nil
}
