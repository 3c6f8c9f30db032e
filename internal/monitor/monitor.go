// Package monitor serves the HTTP observability surface: live pipeline
// status, run history from the journal, bitrate charts and PNG plots, and
// the tsweb debug handlers.
package monitor

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/tailscale/tailsql/server/tailsql"
	"tailscale.com/tsweb"

	"github.com/banshee-data/tspipe/internal/httputil"
	"github.com/banshee-data/tspipe/internal/journal"
	"github.com/banshee-data/tspipe/internal/monitoring"
	"github.com/banshee-data/tspipe/internal/pipeline"
	"github.com/banshee-data/tspipe/internal/timeutil"
	"github.com/banshee-data/tspipe/internal/version"
)

// StatusSource is the view of a running pipeline the monitor needs.
// *pipeline.Pipeline satisfies it.
type StatusSource interface {
	Snapshot() []pipeline.StageStatus
	Aborted() bool
}

// Config contains the web server configuration.
type Config struct {
	Address string
	Source  StatusSource
	Journal *journal.Journal // optional; enables run history and the SQL console
	RunID   string           // journal run the collector appends samples to
	PlotDir string           // optional; enables PNG plot export
	Clock   timeutil.Clock   // nil for the real clock

	// SampleInterval is the bitrate sampling period, default 5s.
	SampleInterval time.Duration
}

// Server is the monitoring HTTP server plus its sampling collector.
type Server struct {
	addr      string
	source    StatusSource
	journal   *journal.Journal
	plotDir   string
	clock     timeutil.Clock
	collector *Collector
	server    *http.Server
}

// NewServer creates a monitor server from the provided configuration.
func NewServer(cfg Config) *Server {
	if cfg.Clock == nil {
		cfg.Clock = timeutil.RealClock{}
	}
	if cfg.SampleInterval <= 0 {
		cfg.SampleInterval = 5 * time.Second
	}
	s := &Server{
		addr:      cfg.Address,
		source:    cfg.Source,
		journal:   cfg.Journal,
		plotDir:   cfg.PlotDir,
		clock:     cfg.Clock,
		collector: NewCollector(cfg.Clock, cfg.SampleInterval, cfg.Source, cfg.Journal, cfg.RunID),
	}
	s.server = &http.Server{
		Addr:    s.addr,
		Handler: s.setupRoutes(),
	}
	return s
}

// Handler exposes the route table for tests.
func (s *Server) Handler() http.Handler { return s.server.Handler }

// Collector returns the sampling collector backing the charts.
func (s *Server) Collector() *Collector { return s.collector }

// Start begins sampling and serving, then blocks until ctx is cancelled and
// the server has shut down.
func (s *Server) Start(ctx context.Context) error {
	s.collector.Start()
	go func() {
		monitoring.Logf("monitor listening on %s", s.addr)
		if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			monitoring.Logf("monitor server failed: %v", err)
		}
	}()

	<-ctx.Done()
	s.collector.Stop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := s.server.Shutdown(shutdownCtx); err != nil {
		monitoring.Logf("monitor shutdown error: %v", err)
		if err := s.server.Close(); err != nil {
			monitoring.Logf("monitor force close error: %v", err)
		}
	}
	return nil
}

func (s *Server) setupRoutes() *http.ServeMux {
	mux := http.NewServeMux()

	mux.HandleFunc("/health", s.handleHealth)
	mux.HandleFunc("/api/status", s.handleStatus)
	mux.HandleFunc("/api/runs", s.handleRuns)
	mux.HandleFunc("/api/runs/", s.handleRun)
	mux.HandleFunc("/charts/bitrate", s.handleBitrateChart)
	mux.HandleFunc("/api/plots/bitrate", s.handleBitratePlot)

	debug := tsweb.Debugger(mux)
	if s.journal != nil {
		tsql, err := tailsql.NewServer(tailsql.Options{
			RoutePrefix: "/debug/sql/",
		})
		if err != nil {
			monitoring.Logf("sql console unavailable: %v", err)
		} else {
			tsql.SetDB("sqlite://journal", s.journal.DB(), &tailsql.DBOptions{
				Label: "Run journal",
			})
			debug.Handle("sql/", "Journal SQL console", tsql.NewMux())
		}
	}

	return mux
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	httputil.WriteJSONOK(w, map[string]string{"status": "ok"})
}

type statusResponse struct {
	Version string                 `json:"version"`
	Aborted bool                   `json:"aborted"`
	Stages  []pipeline.StageStatus `json:"stages"`
	BitRate BitRateStats           `json:"bitrate_stats"`
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}
	httputil.WriteJSONOK(w, statusResponse{
		Version: version.Version,
		Aborted: s.source.Aborted(),
		Stages:  s.source.Snapshot(),
		BitRate: bitrateStats(s.collector.Samples()),
	})
}

func (s *Server) handleRuns(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}
	if s.journal == nil {
		httputil.NotFound(w, "journal not enabled")
		return
	}
	limit := 20
	if q := r.URL.Query().Get("limit"); q != "" {
		v, err := strconv.Atoi(q)
		if err != nil || v < 0 {
			httputil.BadRequest(w, "invalid limit")
			return
		}
		limit = v
	}
	runs, err := s.journal.Runs(limit)
	if err != nil {
		httputil.InternalServerError(w, err.Error())
		return
	}
	httputil.WriteJSONOK(w, runs)
}

// handleRun serves /api/runs/{id}, /api/runs/{id}/samples and
// /api/runs/{id}/events.
func (s *Server) handleRun(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}
	if s.journal == nil {
		httputil.NotFound(w, "journal not enabled")
		return
	}
	parts := strings.Split(strings.TrimPrefix(r.URL.Path, "/api/runs/"), "/")
	id := parts[0]
	if id == "" {
		httputil.BadRequest(w, "missing run id")
		return
	}
	if _, err := s.journal.Run(id); err != nil {
		if errors.Is(err, journal.ErrNoRun) {
			httputil.NotFound(w, "no such run")
		} else {
			httputil.InternalServerError(w, err.Error())
		}
		return
	}

	switch {
	case len(parts) == 1:
		run, err := s.journal.Run(id)
		if err != nil {
			httputil.InternalServerError(w, err.Error())
			return
		}
		httputil.WriteJSONOK(w, run)
	case len(parts) == 2 && parts[1] == "samples":
		samples, err := s.journal.Samples(id)
		if err != nil {
			httputil.InternalServerError(w, err.Error())
			return
		}
		httputil.WriteJSONOK(w, samples)
	case len(parts) == 2 && parts[1] == "events":
		events, err := s.journal.Events(id)
		if err != nil {
			httputil.InternalServerError(w, err.Error())
			return
		}
		httputil.WriteJSONOK(w, events)
	default:
		httputil.NotFound(w, "not found")
	}
}
