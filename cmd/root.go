// Package cmd implements the webfleet command line interface.
package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/webfleet-sh/webfleet/pkg/audit"
	"github.com/webfleet-sh/webfleet/pkg/config"
	"github.com/webfleet-sh/webfleet/pkg/formatter"
	"github.com/webfleet-sh/webfleet/pkg/logging"
	"github.com/webfleet-sh/webfleet/pkg/manager"
	"github.com/webfleet-sh/webfleet/pkg/progress"
	"github.com/webfleet-sh/webfleet/pkg/runner"
	"github.com/webfleet-sh/webfleet/pkg/telemetry"
)

var (
	cfgFile   string
	verbose   bool
	noColor   bool
	plainMode bool

	// Version is set via ldflags during release builds.
	Version = "dev"
)

var rootCmd = &cobra.Command{
	Use:   "webfleet",
	Short: "Deploy and manage web applications on a single Linux host",
	Long: `Webfleet deploys web applications (Next.js, Node.js, FastAPI, static sites)
on a single Linux server: it fetches the source, installs dependencies, builds,
generates the nginx virtual host and systemd unit, optionally provisions a TLS
certificate, and tracks everything in a JSON registry.`,
	Version:       Version,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		return telemetry.Init(telemetry.DefaultConfig(Version))
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		telemetry.Shutdown(ctx)
	},
}

// Execute runs the CLI. Failures exit 1; an interrupt exits 0 so wrapping
// scripts do not treat a manual abort as a deployment failure.
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	err := rootCmd.ExecuteContext(ctx)
	if ctx.Err() != nil {
		output().Warning("interrupted")
		os.Exit(0)
	}
	if err != nil {
		output().Error("%v", err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default "+config.DefaultConfigFile+")")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")
	rootCmd.PersistentFlags().BoolVar(&noColor, "no-color", false, "disable colored output")
	rootCmd.PersistentFlags().BoolVar(&plainMode, "plain", false, "line-per-step progress instead of a live indicator")
}

// loadConfig builds the viper instance and reads the configuration.
func loadConfig() (*config.Config, error) {
	v := viper.New()
	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		v.SetConfigFile(config.DefaultConfigFile)
	}
	v.SetEnvPrefix("WEBFLEET")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	cfg, err := config.Load(v)
	if err != nil {
		return nil, err
	}
	if verbose {
		cfg.Verbose = true
	}
	return cfg, nil
}

func output() *formatter.Output {
	return formatter.New(verbose, noColor)
}

func reporter() progress.Reporter {
	if plainMode || verbose {
		return &progress.Plain{W: os.Stdout}
	}
	return &progress.Live{W: os.Stdout}
}

// newManager builds the orchestrator with the real runner and the
// configured audit log.
func newManager(cfg *config.Config) *manager.Manager {
	log := logging.New(levelFor(cfg))

	auditLogger := audit.Logger(audit.NewNoOpLogger())
	if fileLogger, err := audit.NewFileLogger(filepath.Join(cfg.Paths.LogDir, "webfleet")); err == nil {
		auditLogger = fileLogger
	} else {
		log.Warn().Err(err).Msg("audit log unavailable")
	}

	return manager.New(cfg, runner.NewLocal(true),
		manager.WithLogger(log),
		manager.WithProgress(reporter()),
		manager.WithAudit(auditLogger),
	)
}

func levelFor(cfg *config.Config) string {
	if cfg.Verbose {
		return "debug"
	}
	return "info"
}

// parseEnvFlags turns repeated --env KEY=VALUE flags into a map.
func parseEnvFlags(pairs []string) (map[string]string, error) {
	if len(pairs) == 0 {
		return nil, nil
	}
	vars := make(map[string]string, len(pairs))
	for _, pair := range pairs {
		key, value, ok := strings.Cut(pair, "=")
		if !ok || key == "" {
			return nil, fmt.Errorf("invalid --env %q, expected KEY=VALUE", pair)
		}
		vars[key] = value
	}
	return vars, nil
}
