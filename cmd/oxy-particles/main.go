// Command oxy-particles runs the dissolve particle demo. The run command opens a window and renders the GPU frame
// plan, emulate executes the same plan headless on the CPU and validate checks the shaders and the binding contract
// without touching a GPU.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/Carmen-Shannon/oxy-particles/config"
	"github.com/Carmen-Shannon/oxy-particles/logger"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

// app carries the state shared by every subcommand once the root pre-run has loaded it.
type app struct {
	configPath string
	logLevel   string

	cfg *config.Config
	log *zap.Logger
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCommand().ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		stop()
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	a := &app{}
	root := &cobra.Command{
		Use:           "oxy-particles",
		Short:         "GPU driven dissolve particle demo",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return a.load()
		},
		PersistentPostRun: func(*cobra.Command, []string) {
			if a.log != nil {
				_ = a.log.Sync()
			}
		},
	}
	root.PersistentFlags().StringVarP(&a.configPath, "config", "c", "", "YAML configuration file")
	root.PersistentFlags().StringVar(&a.logLevel, "log-level", "", "overrides log.level of the configuration")

	root.AddCommand(
		newRunCommand(a),
		newEmulateCommand(a),
		newValidateCommand(a),
	)
	return root
}

// load reads the configuration and builds the process logger.
func (a *app) load() error {
	cfg, err := config.Load(a.configPath)
	if err != nil {
		return err
	}
	if a.logLevel != "" {
		cfg.Log.Level = a.logLevel
	}

	log, err := logger.New(logger.Config{
		Environment: cfg.Log.Environment,
		Level:       cfg.Log.Level,
		Encoding:    cfg.Log.Encoding,
		Component:   "oxy-particles",
	})
	if err != nil {
		return fmt.Errorf("build logger: %w", err)
	}
	logger.SetLogger(log)

	a.cfg = cfg
	a.log = log
	return nil
}
