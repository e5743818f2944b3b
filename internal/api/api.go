// Package api provides the HTTP REST API server.
package api

import (
	"context"
	"crypto/tls"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/star-labs/logscanner/internal/api/health"
	"github.com/star-labs/logscanner/internal/export"
	"github.com/star-labs/logscanner/internal/ingest"
	"github.com/star-labs/logscanner/internal/parser"
	"github.com/star-labs/logscanner/internal/query"
)

// Config contains HTTP API server configuration.
type Config struct {
	Address         string
	MaxFileSize     int64
	AllowedTypes    []string
	HTTPTLSEnabled  bool
	HTTPTLSCertFile string
	HTTPTLSKeyFile  string
	Verbose         bool
}

// SetDefaults applies default values for missing configuration.
func (c *Config) SetDefaults() {
	if c.Address == "" {
		c.Address = ":8080"
	}
	if c.MaxFileSize == 0 {
		c.MaxFileSize = 50 * 1024 * 1024
	}
	if len(c.AllowedTypes) == 0 {
		c.AllowedTypes = []string{"log", "txt"}
	}
}

// Server is the HTTP API server.
type Server struct {
	config        *Config
	controller    *ingest.Controller
	executor      *query.Executor
	exporter      *export.Exporter
	registry      *parser.Registry
	server        *http.Server
	healthHandler *health.Handler
}

// New creates a new API server over the pipeline components.
func New(cfg *Config, controller *ingest.Controller, executor *query.Executor, exporter *export.Exporter, registry *parser.Registry) (*Server, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is required")
	}
	if controller == nil || executor == nil || exporter == nil || registry == nil {
		return nil, fmt.Errorf("controller, executor, exporter, and registry are required")
	}

	cfg.SetDefaults()

	s := &Server{
		config:        cfg,
		controller:    controller,
		executor:      executor,
		exporter:      exporter,
		registry:      registry,
		healthHandler: health.NewHandler(),
	}

	router := s.setupRouter()

	s.server = &http.Server{
		Addr:        cfg.Address,
		Handler:     router,
		ReadTimeout: 15 * time.Second,
		// WriteTimeout stays 0 because exports can stream large result
		// sets; handlers bound their own work with context deadlines.
		WriteTimeout: 0,
		IdleTimeout:  60 * time.Second,
	}
	if cfg.HTTPTLSEnabled {
		s.server.TLSConfig = &tls.Config{
			MinVersion: tls.VersionTLS13,
		}
	}

	return s, nil
}

// Run starts the HTTP server and blocks until context is canceled.
func (s *Server) Run(ctx context.Context) error {
	errChan := make(chan error, 1)

	go func() {
		log.Printf("HTTP API listening on %s", s.config.Address)
		var err error
		if s.config.HTTPTLSEnabled {
			err = s.server.ListenAndServeTLS(s.config.HTTPTLSCertFile, s.config.HTTPTLSKeyFile)
		} else {
			err = s.server.ListenAndServe()
		}
		if err != nil && err != http.ErrServerClosed {
			errChan <- err
		}
	}()

	select {
	case <-ctx.Done():
		log.Printf("shutting down HTTP API server...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return s.server.Shutdown(shutdownCtx)
	case err := <-errChan:
		return err
	}
}

// Address returns the configured listen address.
func (s *Server) Address() string {
	return s.config.Address
}

// RegisterHealthChecker adds a health checker to the server.
func (s *Server) RegisterHealthChecker(c health.Checker) {
	if s.healthHandler != nil {
		s.healthHandler.RegisterChecker(c)
	}
}
