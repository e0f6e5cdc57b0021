// Package gateway is the backend API service: flight availability and
// booking through the Wings OTA upstream, provider permissions, email
// notifications, FIB payments and the eSIM shop.
package gateway

import (
	"context"
	"errors"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/dlerazeezcore/the-book-platform/env"
	"github.com/dlerazeezcore/the-book-platform/httpserver"
	"github.com/dlerazeezcore/the-book-platform/logger"
	"github.com/dlerazeezcore/the-book-platform/metrics"
	"github.com/dlerazeezcore/the-book-platform/version"
	"github.com/dlerazeezcore/the-book-platform/wings"
	"github.com/go-chi/chi/v5"
)

const DefaultAddr = "127.0.0.1:5050"

// Config is configuration for the gateway Server.
type Config struct {
	// Addr is the TCP address to bind. Defaults to 127.0.0.1:5050.
	Addr string

	// DataDir holds the JSON stores (permissions, FIB accounts, eSIM).
	DataDir string

	// Env is the environment the Wings client, mailer and payments are
	// configured from. Defaults to the process environment.
	Env *env.Environment

	// StatsdHost enables statsd metrics when set.
	StatsdHost string
}

// Server is the gateway HTTP server.
type Server struct {
	conf   Config
	logger logger.Logger
	env    *env.Environment

	wingsClient *wings.Client
	permissions *PermissionsStore
	mailer      *Mailer
	payments    *FIBClient
	esim        *ESIMClient

	collector *metrics.Collector
	svr       *httpserver.Server

	// now is swapped out in tests
	now func() time.Time
}

// NewServer creates a gateway server. The listener is bound immediately.
func NewServer(l logger.Logger, conf Config) (*Server, error) {
	if conf.Addr == "" {
		conf.Addr = DefaultAddr
	}
	if conf.DataDir == "" {
		conf.DataDir = "data"
	}
	if conf.Env == nil {
		conf.Env = env.FromSlice(os.Environ())
	}

	s := &Server{
		conf:        conf,
		logger:      l,
		env:         conf.Env,
		permissions: NewPermissionsStore(filepath.Join(conf.DataDir, "permissions.json")),
		mailer:      MailerFromEnvironment(l, conf.Env),
		collector:   metrics.NewCollector(l, metrics.CollectorConfig{StatsdHost: conf.StatsdHost}),
		now:         time.Now,
	}

	if wc, ok := wings.ConfigFromEnvironment(conf.Env); ok {
		s.wingsClient = wings.NewClient(l, wc)
	}

	s.payments = NewFIBClient(l, conf.Env, NewFIBStore(filepath.Join(conf.DataDir, "fib.json")))
	s.esim = NewESIMClient(l, conf.Env, NewESIMStore(filepath.Join(conf.DataDir, "esim.json")))

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

	if s.wingsClient == nil {
		// Make the misconfiguration explicit up front rather than as a
		// mystery 500 later.
		s.logger.Warn("Wings credentials not configured. Set WINGS_AUTH_TOKEN (or AUTH_TOKEN) and optionally WINGS_BASE_URL/SEARCH_URL/BOOK_URL.")
	}

	s.logger.Info("Gateway %s listening on %s", version.BuildID(), s.Addr())
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
		httpserver.LoggerMiddleware("Gateway", s.logger),
		httpserver.MetricsMiddleware(s.collector.Scope(metrics.Tags{"service": "gateway"})),
	)

	r.Get("/__build", s.handleBuild)
	r.Get("/health", s.handleHealth)

	r.Post("/api/availability", s.handleAvailability)
	r.Post("/api/book", s.handleBook)

	r.Get("/api/permissions", s.handleGetPermissions)
	r.Post("/api/permissions", s.handleSetPermissions)
	r.Get("/api/permissions/status", s.handlePermissionsStatus)

	r.Post("/api/notify/email", s.handleNotifyEmail)

	r.Get("/api/other-apis/fib", s.handleFIBConfigGet)
	r.Post("/api/other-apis/fib", s.handleFIBConfigSet)
	r.Post("/api/other-apis/fib/create-payment", s.handleFIBCreatePayment)

	r.Get("/api/other-apis/esim", s.handleESIMConfigGet)
	r.Post("/api/other-apis/esim", s.handleESIMConfigSet)
	r.Get("/api/other-apis/esim/ping", s.handleESIMPing)

	r.Get("/api/esim/settings", s.handleESIMSettings)
	r.Get("/api/esim/bundles", s.handleESIMBundles)
	r.Post("/api/esim/quote", s.handleESIMQuote)
	r.Post("/api/esim/orders", s.handleESIMOrderCreate)
	r.Get("/api/esim/orders", s.handleESIMOrdersList)
	r.Get("/api/esim/orders/{orderID}", s.handleESIMOrderGet)
	r.Get("/api/esim/balance", s.handleESIMBalance)

	return r
}

func (s *Server) handleBuild(w http.ResponseWriter, _ *http.Request) {
	httpserver.WriteJSON(w, http.StatusOK, map[string]string{
		"build": version.BuildID(),
		"mode":  "wings",
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	ok := s.wingsClient != nil
	httpserver.WriteJSON(w, http.StatusOK, map[string]any{
		"ok":               ok,
		"build":            version.BuildID(),
		"mode":             "wings",
		"wings_configured": ok,
	})
}

func (s *Server) handleGetPermissions(w http.ResponseWriter, _ *http.Request) {
	httpserver.WriteJSON(w, http.StatusOK, s.permissions.Load())
}

func (s *Server) handleSetPermissions(w http.ResponseWriter, r *http.Request) {
	var p Permissions
	if err := httpserver.ReadJSON(r, &p); err != nil {
		httpserver.WriteError(w, err, http.StatusBadRequest)
		return
	}

	saved, err := s.permissions.Save(p)
	if err != nil {
		httpserver.WriteError(w, err, http.StatusBadRequest)
		return
	}
	httpserver.WriteJSON(w, http.StatusOK, saved)
}

func (s *Server) handlePermissionsStatus(w http.ResponseWriter, _ *http.Request) {
	httpserver.WriteJSON(w, http.StatusOK, map[string]any{
		"providers": s.permissions.Status(s.now()),
	})
}

var errWingsNotConfigured = errors.New(
	"Wings credentials not configured. Set WINGS_AUTH_TOKEN (or AUTH_TOKEN) and optionally WINGS_BASE_URL/SEARCH_URL/BOOK_URL",
)
