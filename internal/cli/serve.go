package cli

import (
	"context"
	"fmt"
	"os"
	"runtime"
	"runtime/pprof"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"workermgr/internal/common/fsutil"
	"workermgr/internal/config"
	"workermgr/internal/httpapi"
	"workermgr/internal/logging"
	"workermgr/internal/manager"
	"workermgr/internal/service"
)

const shutdownTimeout = 10 * time.Second

// runServe starts the manager and serves the control socket until ctx is
// canceled, the accept timeout fires, or a connection fails.
func runServe(ctx context.Context, cfg config.Config) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	logging.Init(logging.Config{Level: cfg.LogLevel, JSON: cfg.LogJSON})
	log := logging.WithComponent("manager")

	if err := expandPaths(&cfg); err != nil {
		return err
	}

	log.Info().Int("pid", os.Getpid()).Str("go", runtime.Version()).Msg("worker manager started")

	emitter, err := service.NewPrometheusEmitter(prometheus.DefaultRegisterer)
	if err != nil {
		return fmt.Errorf("register service metrics: %w", err)
	}
	mcfg := manager.ManagerConfig{
		Loader:          service.ManifestLoader{BudgetMB: cfg.MemoryBudgetMB},
		Emitter:         emitter,
		Publisher:       manager.NewLogPublisher(logging.WithComponent("events")),
		Logger:          &log,
		WorkerBin:       cfg.WorkerBin,
		WorkerArgs:      cfg.WorkerArgs,
		ProbeAttempts:   cfg.ProbeAttempts,
		ProbeInterval:   time.Duration(cfg.ProbeIntervalMS) * time.Millisecond,
		StopGrace:       time.Duration(cfg.StopGraceMS) * time.Millisecond,
		AcceptTimeout:   time.Duration(cfg.AcceptTimeoutSeconds) * time.Second,
		NoAcceptTimeout: cfg.Debug,
		StrictScaleDown: cfg.StrictScaleDown,
	}
	if cfg.StateFile != "" {
		ledger, err := manager.OpenBoltLedger(cfg.StateFile)
		if err != nil {
			return err
		}
		mcfg.Ledger = ledger
	}
	m := manager.NewWithConfig(mcfg)
	shutdown := func() {
		sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := m.Shutdown(sctx); err != nil {
			log.Warn().Err(err).Msg("shutdown")
		}
	}

	if n, err := m.ReapOrphans(); err != nil {
		log.Warn().Err(err).Msg("reap orphaned workers")
	} else if n > 0 {
		log.Info().Int("count", n).Msg("reaped orphaned workers")
	}

	l, err := manager.Listen(manager.ListenConfig{
		SockType: cfg.SockType,
		SockName: cfg.SockName,
		Host:     cfg.Host,
		Port:     cfg.Port,
	})
	if err != nil {
		shutdown()
		return err
	}
	defer shutdown()
	defer l.Close()
	log.Info().Str("addr", l.Addr().String()).Msg("listening")

	if cfg.MetricsAddr != "" {
		httpapi.SetLogger(logging.WithComponent("httpapi"))
		go func() {
			if err := httpapi.ListenAndServe(ctx, cfg.MetricsAddr, m); err != nil {
				log.Error().Err(err).Str("addr", cfg.MetricsAddr).Msg("ops http server")
			}
		}()
	}

	if cfg.ProfilePath != "" {
		f, err := os.Create(cfg.ProfilePath)
		if err != nil {
			return fmt.Errorf("create profile: %w", err)
		}
		defer f.Close()
		if err := pprof.StartCPUProfile(f); err != nil {
			return fmt.Errorf("start profile: %w", err)
		}
		defer pprof.StopCPUProfile()
	}

	return m.Serve(ctx, l)
}

// expandPaths resolves a leading ~ in every path setting.
func expandPaths(cfg *config.Config) error {
	for _, p := range []*string{&cfg.SockName, &cfg.StateFile, &cfg.WorkerBin, &cfg.ProfilePath} {
		v, err := fsutil.ExpandHome(*p)
		if err != nil {
			return err
		}
		*p = v
	}
	return nil
}
