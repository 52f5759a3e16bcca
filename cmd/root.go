// Package cmd defines and implements the CLI commands for the cnstatus executable.
package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/JakeFAU/cyphernode-status/internal/config"
	"github.com/JakeFAU/cyphernode-status/internal/logging"
)

const serviceName = "cnstatus"

// runtimeKeyType is the key for storing the Runtime in the context.
type runtimeKeyType string

const runtimeKey runtimeKeyType = "runtime"

// Runtime carries the services every subcommand needs.
type Runtime struct {
	Config config.Config
	Logger *zap.Logger
}

// newRuntime is the runtime factory. It's a variable so tests can replace it.
var newRuntime = func(cfgPath string) (*Runtime, error) {
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	logger, err := logging.New(cfg.Logging, serviceName)
	if err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}
	return &Runtime{Config: cfg, Logger: logger}, nil
}

// newRootCmd creates and configures the root command.
func newRootCmd() *cobra.Command {
	var cfgFile string

	cmd := &cobra.Command{
		Use:   serviceName,
		Short: "Cyphernode verification status page.",
		Long: `cnstatus serves a status page for a cyphernode bitcoin node and estimates
how long the node's initial block verification still needs.`,
		SilenceUsage: true,

		// Builds the runtime after flags are parsed and injects it for subcommands.
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			rt, err := newRuntime(cfgFile)
			if err != nil {
				return err
			}
			zap.ReplaceGlobals(rt.Logger)
			cmd.SetContext(context.WithValue(cmd.Context(), runtimeKey, rt))
			return nil
		},

		PersistentPostRun: func(cmd *cobra.Command, _ []string) {
			if rt, err := resolveRuntime(cmd.Context()); err == nil {
				_ = rt.Logger.Sync()
			}
		},
	}

	cmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is data/config.yaml or ./config.yaml)")

	cmd.AddCommand(newServeCmd())
	cmd.AddCommand(newWatchCmd())

	return cmd
}

func resolveRuntime(ctx context.Context) (*Runtime, error) {
	if ctx == nil {
		return nil, errors.New("runtime not initialized")
	}
	rt, ok := ctx.Value(runtimeKey).(*Runtime)
	if !ok || rt == nil {
		return nil, errors.New("runtime not initialized")
	}
	return rt, nil
}

// Execute is the main entry point. SIGINT and SIGTERM cancel the command
// context.
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "%s: %v\n", serviceName, err)
		stop()
		os.Exit(1)
	}
}
