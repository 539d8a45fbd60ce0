// Package outflowd provides the daemon scaffolding for the Outflow
// scheduler service.
package outflowd

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/outflow-crm/outflow/internal/config"
	"github.com/outflow-crm/outflow/internal/scheduler"
	"github.com/rs/zerolog"
)

// Options configure the daemon runtime.
type Options struct {
	// HealthAddr is the bind address for the health endpoint. Empty
	// disables it.
	HealthAddr string

	// Version is the build version reported by the health endpoint.
	Version string
}

// Daemon is the long-running process that owns the scheduler lifecycle.
// It runs server-side on its own clock; no client session drives it.
type Daemon struct {
	cfg    *config.Config
	logger zerolog.Logger
	opts   Options
	sched  *scheduler.Scheduler
}

// New constructs a daemon around an already-wired scheduler.
func New(cfg *config.Config, logger zerolog.Logger, sched *scheduler.Scheduler, opts Options) (*Daemon, error) {
	if cfg == nil {
		return nil, errors.New("config is required")
	}
	if sched == nil {
		return nil, errors.New("scheduler is required")
	}
	if opts.HealthAddr == "" {
		opts.HealthAddr = cfg.Daemon.HealthAddr
	}

	return &Daemon{
		cfg:    cfg,
		logger: logger,
		opts:   opts,
		sched:  sched,
	}, nil
}

// Run starts the scheduler and the health endpoint and blocks until the
// context is canceled.
func (d *Daemon) Run(ctx context.Context) error {
	if ctx == nil {
		return errors.New("context is required")
	}

	if err := d.sched.Start(ctx); err != nil {
		return fmt.Errorf("start scheduler: %w", err)
	}

	var healthServer *http.Server
	errCh := make(chan error, 1)

	if d.opts.HealthAddr != "" {
		listener, err := net.Listen("tcp", d.opts.HealthAddr)
		if err != nil {
			_ = d.sched.Stop()
			return fmt.Errorf("listen on %s: %w", d.opts.HealthAddr, err)
		}

		mux := http.NewServeMux()
		mux.HandleFunc("/healthz", d.handleHealth)
		healthServer = &http.Server{Handler: mux}

		d.logger.Info().
			Str("bind", d.opts.HealthAddr).
			Str("version", d.opts.Version).
			Msg("outflowd health endpoint starting")

		go func() {
			if err := healthServer.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
				errCh <- err
			}
		}()
	}

	d.logger.Info().Msg("outflowd running")

	select {
	case <-ctx.Done():
		d.logger.Info().Msg("outflowd shutting down...")
	case err := <-errCh:
		d.logger.Error().Err(err).Msg("health server error")
		_ = d.sched.Stop()
		return fmt.Errorf("health server: %w", err)
	}

	if healthServer != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = healthServer.Shutdown(shutdownCtx)
	}
	if err := d.sched.Stop(); err != nil && !errors.Is(err, scheduler.ErrSchedulerNotRunning) {
		return fmt.Errorf("stop scheduler: %w", err)
	}

	d.logger.Info().Msg("outflowd shutdown complete")
	return nil
}

// healthResponse is the health endpoint payload.
type healthResponse struct {
	Status    string          `json:"status"`
	Version   string          `json:"version,omitempty"`
	Scheduler scheduler.Stats `json:"scheduler"`
}

func (d *Daemon) handleHealth(w http.ResponseWriter, r *http.Request) {
	stats := d.sched.Stats()

	resp := healthResponse{
		Status:    "ok",
		Version:   d.opts.Version,
		Scheduler: stats,
	}
	w.Header().Set("Content-Type", "application/json")
	if !stats.Running {
		resp.Status = "degraded"
		w.WriteHeader(http.StatusServiceUnavailable)
	}

	if err := json.NewEncoder(w).Encode(resp); err != nil {
		d.logger.Warn().Err(err).Msg("failed to write health response")
	}
}
