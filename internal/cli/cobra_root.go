package cli

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"workermgr/internal/config"
	"workermgr/internal/logging"
	"workermgr/internal/service"
	"workermgr/internal/worker"
)

func buildRootCmd() *cobra.Command { return buildRootCmdWith(runServe) }

// buildRootCmdWith builds the command tree with run as the serve action.
func buildRootCmdWith(run func(context.Context, config.Config) error) *cobra.Command {
	root := &cobra.Command{
		Use:           "workermgr",
		Short:         "Model worker manager",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(buildServeCmd(run), buildWorkerCmd(), buildCtlCmd())
	return root
}

// serveFlag binds one config field to a flag. apply copies the flag value
// from src into dst.
type serveFlag struct {
	name  string
	apply func(dst, src *config.Config)
}

var serveFlags = []serveFlag{
	{"sock-type", func(d, s *config.Config) { d.SockType = s.SockType }},
	{"sock-name", func(d, s *config.Config) { d.SockName = s.SockName }},
	{"host", func(d, s *config.Config) { d.Host = s.Host }},
	{"port", func(d, s *config.Config) { d.Port = s.Port }},
	{"debug", func(d, s *config.Config) { d.Debug = s.Debug }},
	{"worker-bin", func(d, s *config.Config) { d.WorkerBin = s.WorkerBin }},
	{"strict-scale-down", func(d, s *config.Config) { d.StrictScaleDown = s.StrictScaleDown }},
	{"state-file", func(d, s *config.Config) { d.StateFile = s.StateFile }},
	{"memory-budget-mb", func(d, s *config.Config) { d.MemoryBudgetMB = s.MemoryBudgetMB }},
	{"metrics-addr", func(d, s *config.Config) { d.MetricsAddr = s.MetricsAddr }},
	{"log-level", func(d, s *config.Config) { d.LogLevel = s.LogLevel }},
	{"log-json", func(d, s *config.Config) { d.LogJSON = s.LogJSON }},
	{"profile", func(d, s *config.Config) { d.ProfilePath = s.ProfilePath }},
}

func buildServeCmd(run func(context.Context, config.Config) error) *cobra.Command {
	var configPath string
	var fl config.Config
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the worker manager on a control socket",
		Example: "  workermgr serve --sock-type unix --sock-name /tmp/.ts.sock\n" +
			"  workermgr serve --sock-type tcp --port 9000 --metrics-addr :9090",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := resolveServeConfig(cmd, configPath, fl)
			if err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return run(ctx, cfg)
		},
	}
	f := cmd.Flags()
	f.StringVar(&configPath, "config", envStr("config", ""), "Config file (.yaml, .json or .toml)")
	f.StringVar(&fl.SockType, "sock-type", envStr("sock-type", ""), "Control socket type: unix|tcp")
	f.StringVar(&fl.SockName, "sock-name", envStr("sock-name", ""), "Unix control socket path")
	f.StringVar(&fl.Host, "host", envStr("host", ""), "TCP host (default 127.0.0.1)")
	f.StringVar(&fl.Port, "port", envStr("port", ""), "TCP port")
	f.BoolVar(&fl.Debug, "debug", envBool("debug", false), "Wait for the first connection forever")
	f.StringVar(&fl.WorkerBin, "worker-bin", envStr("worker-bin", ""), "Worker executable (default: this binary with 'worker')")
	f.BoolVar(&fl.StrictScaleDown, "strict-scale-down", envBool("strict-scale-down", false), "Report real scale down results instead of DONE")
	f.StringVar(&fl.StateFile, "state-file", envStr("state-file", ""), "BoltDB file recording worker pids for orphan reaping")
	f.IntVar(&fl.MemoryBudgetMB, "memory-budget-mb", envInt("memory-budget-mb", 0), "Model memory budget in MB (0=unlimited)")
	f.StringVar(&fl.MetricsAddr, "metrics-addr", envStr("metrics-addr", ""), "Ops HTTP listen address for /metrics, /healthz and /workers")
	f.StringVar(&fl.LogLevel, "log-level", envStr("log-level", "info"), "Log level: debug|info|warn|error")
	f.BoolVar(&fl.LogJSON, "log-json", envBool("log-json", false), "Log JSON instead of console output")
	f.StringVar(&fl.ProfilePath, "profile", envStr("profile", ""), "Write a CPU profile of the serve loop to this file")
	return cmd
}

// resolveServeConfig layers the configuration: config file, then every flag
// given on the command line or through its WORKERMGR_* variable.
func resolveServeConfig(cmd *cobra.Command, path string, fl config.Config) (config.Config, error) {
	var cfg config.Config
	if path != "" {
		var err error
		if cfg, err = config.Load(path); err != nil {
			return cfg, err
		}
	} else {
		cfg.LogLevel = fl.LogLevel
	}
	for _, sf := range serveFlags {
		if cmd.Flags().Changed(sf.name) || envSet(sf.name) {
			sf.apply(&cfg, &fl)
		}
	}
	return cfg, cfg.Validate()
}

func buildWorkerCmd() *cobra.Command {
	return &cobra.Command{
		Use:    "worker",
		Short:  "Run one model worker (started by the manager)",
		Hidden: true,
		Args:   cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			logging.Init(logging.Config{Level: envStr("log-level", "info"), JSON: envBool("log-json", false)})
			spec, err := worker.DecodeSpec(os.Stdin)
			if err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return worker.Run(ctx, spec, service.ManifestLoader{}, os.Stdout, logging.WithComponent("worker"))
		},
	}
}
