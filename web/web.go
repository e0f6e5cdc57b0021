// Package web is the customer-facing frontend service: it resolves a live
// gateway backend, proxies availability and booking to it, and layers on
// the display enrichment and seat estimation the booking UI needs.
package web

import (
	"context"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/dlerazeezcore/the-book-platform/api"
	"github.com/dlerazeezcore/the-book-platform/env"
	"github.com/dlerazeezcore/the-book-platform/httpserver"
	"github.com/dlerazeezcore/the-book-platform/logger"
	"github.com/dlerazeezcore/the-book-platform/metrics"
	"github.com/dlerazeezcore/the-book-platform/version"
)

const (
	DefaultPort = "8000"

	permissionsCacheTTL = 30 * time.Second
)

// Config is configuration for the web Server.
type Config struct {
	// Addr is the TCP address to bind. Defaults to 0.0.0.0:8000; the
	// PORT environment variable overrides the default port.
	Addr string

	// DataDir holds the users store. Defaults to "data".
	DataDir string

	// Env configures backend resolution and the users store. Defaults to
	// the process environment.
	Env *env.Environment

	// StatsdHost enables statsd metrics when set.
	StatsdHost string
}

// Server is the frontend HTTP server.
type Server struct {
	conf     Config
	logger   logger.Logger
	env      *env.Environment
	resolver *Resolver
	users    *UserStore

	collector *metrics.Collector
	svr       *httpserver.Server

	permsMu sync.Mutex
	perms   map[string]any
	permsAt time.Time

	// now is swapped out in tests
	now func() time.Time
}

// NewServer creates a frontend server. The listener is bound immediately.
func NewServer(l logger.Logger, conf Config) (*Server, error) {
	if conf.Env == nil {
		conf.Env = env.FromSlice(os.Environ())
	}
	if conf.Addr == "" {
		conf.Addr = "0.0.0.0:" + conf.Env.GetOrDefault("PORT", DefaultPort)
	}
	if conf.DataDir == "" {
		conf.DataDir = "data"
	}

	s := &Server{
		conf:      conf,
		logger:    l,
		env:       conf.Env,
		resolver:  NewResolver(l, BackendCandidates(conf.Env)),
		users:     NewUserStore(l, filepath.Join(conf.DataDir, "users.json"), conf.Env),
		collector: metrics.NewCollector(l, metrics.CollectorConfig{StatsdHost: conf.StatsdHost}),
		now:       time.Now,
	}

	svr, err := httpserver.NewServer(l, conf.Addr, s.router())
	if err != nil {
		return nil, err
	}
	s.svr = svr

	return s, nil
}

// Addr is the bound listen address.
func (s *Server) Addr() string {
	return s.svr.Addr()
}

// Start begins serving requests.
func (s *Server) Start() error {
	if err := s.collector.Start(); err != nil {
		return err
	}

	// Normalizes stale records and guarantees the super admin account.
	if users, err := s.users.Load(); err != nil {
		s.logger.Warn("Users store unavailable: %v", err)
	} else {
		s.logger.Debug("Users store loaded with %d account(s)", len(users))
	}

	s.logger.Info("Web %s listening on %s", version.BuildID(), s.Addr())
	s.svr.Start()
	return nil
}

// Stop gracefully shuts the server down.
func (s *Server) Stop() error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	err := s.svr.Shutdown(ctx)
	if cerr := s.collector.Stop(); cerr != nil && err == nil {
		err = cerr
	}
	return err
}

func (s *Server) router() chi.Router {
	r := chi.NewRouter()
	r.Use(
		httpserver.LoggerMiddleware("Web", s.logger),
		httpserver.MetricsMiddleware(s.collector.Scope(metrics.Tags{"service": "web"})),
	)

	r.Get("/__build", s.handleBuild)
	r.Get("/health", s.handleHealth)

	r.Post("/api/availability", s.handleAvailability)
	r.Post("/api/book", s.handleBook)
	r.Get("/api/features", s.handleFeatures)
	r.Post("/api/seats-estimate", s.handleSeatsEstimate)

	return r
}

// backend returns a client for the currently resolved gateway.
func (s *Server) backend(ctx context.Context) *api.Client {
	return api.NewClient(s.logger, api.Config{Endpoint: s.resolver.Resolve(ctx)})
}

func (s *Server) handleBuild(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	_, _ = w.Write([]byte(version.BuildID()))
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	httpserver.WriteJSON(w, http.StatusOK, map[string]any{
		"ok":      true,
		"build":   version.BuildID(),
		"backend": s.resolver.Resolve(r.Context()),
	})
}

type availabilityForm struct {
	searchPayload
	// keys used only by seats-estimate, tolerated here so clients can
	// reuse one request shape
	KeysOut []string `json:"keys_out,omitempty"`
	KeysIn  []string `json:"keys_in,omitempty"`
}

func (f *availabilityForm) normalize() {
	f.From = strings.ToUpper(strings.TrimSpace(f.From))
	f.To = strings.ToUpper(strings.TrimSpace(f.To))
	f.TripType = strings.ToLower(strings.TrimSpace(f.TripType))
	if f.TripType != "roundtrip" {
		f.TripType = "oneway"
	}
	f.Cabin = strings.ToLower(strings.TrimSpace(f.Cabin))
	if f.Cabin == "" {
		f.Cabin = "economy"
	}
	if f.Pax.Adults < 1 {
		f.Pax.Adults = 1
	}
	if f.Pax.Children < 0 {
		f.Pax.Children = 0
	}
	if f.Pax.Infants < 0 {
		f.Pax.Infants = 0
	}
}

func (s *Server) handleAvailability(w http.ResponseWriter, r *http.Request) {
	var form availabilityForm
	if err := httpserver.ReadJSON(r, &form); err != nil {
		httpserver.WriteError(w, err, http.StatusBadRequest)
		return
	}
	form.normalize()

	resp, err := s.backend(r.Context()).Availability(r.Context(), form.searchPayload)
	if err != nil {
		httpserver.WriteError(w, err, http.StatusBadGateway)
		return
	}

	enrichResults(resp.Results, form.Cabin)
	enrichResults(resp.ResultsReturn, form.Cabin)

	httpserver.WriteJSON(w, http.StatusOK, map[string]any{
		"meta":           resp.Meta,
		"results":        resp.Results,
		"results_return": resp.ResultsReturn,
		"seats_enabled":  s.seatsEstimationEnabled(r.Context()),
	})
}

func (s *Server) handleBook(w http.ResponseWriter, r *http.Request) {
	var payload map[string]any
	if err := httpserver.ReadJSON(r, &payload); err != nil {
		httpserver.WriteError(w, err, http.StatusBadRequest)
		return
	}

	// Passed through unchanged, pending replies included.
	body, status, err := s.backend(r.Context()).Book(r.Context(), payload)
	if err != nil {
		httpserver.WriteError(w, err, http.StatusBadGateway)
		return
	}
	httpserver.WriteJSON(w, status, body)
}

func (s *Server) handleFeatures(w http.ResponseWriter, r *http.Request) {
	httpserver.WriteJSON(w, http.StatusOK, map[string]any{
		"status":           "ok",
		"seats_estimation": s.seatsEstimationEnabled(r.Context()),
	})
}

func (s *Server) handleSeatsEstimate(w http.ResponseWriter, r *http.Request) {
	var form availabilityForm
	if err := httpserver.ReadJSON(r, &form); err != nil {
		httpserver.WriteError(w, err, http.StatusBadRequest)
		return
	}
	form.normalize()

	if !s.seatsEstimationEnabled(r.Context()) {
		httpserver.WriteJSON(w, http.StatusForbidden, map[string]any{
			"status": "error",
			"error":  "Seat estimation is disabled.",
		})
		return
	}

	seatsOut, seatsIn := estimateSeats(r.Context(), s.backend(r.Context()), form.searchPayload, form.KeysOut, form.KeysIn)
	httpserver.WriteJSON(w, http.StatusOK, map[string]any{
		"status":    "ok",
		"seats_out": seatsOut,
		"seats_in":  seatsIn,
	})
}

// seatsEstimationEnabled consults the gateway permissions, cached briefly.
// An unreachable gateway counts as enabled, matching the default policy.
func (s *Server) seatsEstimationEnabled(ctx context.Context) bool {
	perms := s.backendPermissions(ctx)

	providers, _ := perms["providers"].(map[string]any)
	ota, ok := providers["OTA"].(map[string]any)
	if !ok {
		ota, ok = providers["ota"].(map[string]any)
	}
	if !ok {
		return true
	}
	if v, present := ota["seats_estimation_enabled"]; present {
		return v == true
	}
	return true
}

func (s *Server) backendPermissions(ctx context.Context) map[string]any {
	s.permsMu.Lock()
	defer s.permsMu.Unlock()

	now := s.now()
	if s.perms != nil && now.Sub(s.permsAt) < permissionsCacheTTL {
		return s.perms
	}

	perms, err := s.backend(ctx).Permissions(ctx)
	if err != nil {
		s.logger.Warn("Fetching backend permissions: %v", err)
		return map[string]any{}
	}
	s.perms = perms
	s.permsAt = now
	return perms
}
