package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/JakeFAU/cyphernode-status/internal/clock/system"
	"github.com/JakeFAU/cyphernode-status/internal/poller"
	"github.com/JakeFAU/cyphernode-status/internal/progress"
	"github.com/JakeFAU/cyphernode-status/internal/progress/sinks"
)

// newWatchCmd creates the 'watch' subcommand.
func newWatchCmd() *cobra.Command {
	var (
		origin string
		base   string
		width  int
	)
	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Track verification progress of a status page in the terminal",
		Long: `Polls a status page's verificationprogress endpoint every five seconds and
draws the progress bar and ETA in the terminal until interrupted.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runWatchCommand(cmd, origin, base, width)
		},
	}
	cmd.Flags().StringVar(&origin, "url", "", "status page origin (default derived from server.listen or poller.origin)")
	cmd.Flags().StringVar(&base, "base", "", "base reference the status path is appended to (default poller.base_href, then server.base_href)")
	cmd.Flags().IntVar(&width, "width", 0, "progress bar width in cells")
	return cmd
}

func runWatchCommand(cmd *cobra.Command, origin, base string, width int) error {
	rt, err := resolveRuntime(cmd.Context())
	if err != nil {
		return err
	}
	cfg := rt.Config
	if origin == "" {
		origin = cfg.PollerOrigin()
	}
	if base == "" {
		base = cfg.PollerBaseHref()
	}

	statusURL, err := poller.ResolveStatusURL(origin, base)
	if err != nil {
		return fmt.Errorf("resolve status url: %w", err)
	}

	hub := progress.NewHub(progress.Config{
		Backlog:     cfg.Progress.Backlog,
		SinkTimeout: cfg.SinkTimeout(),
		BaseContext: cmd.Context(),
		Logger:      rt.Logger.Named("hub"),
	}, sinks.NewTerminalSink(cmd.OutOrStdout(), width))
	defer func() {
		if err := hub.Close(context.Background()); err != nil {
			rt.Logger.Warn("progress hub close failed", zap.Error(err))
		}
	}()

	p, err := poller.New(statusURL, poller.Options{
		Client:  newStatusClient(cfg),
		Clock:   system.New(),
		Emitter: hub,
		Logger:  rt.Logger.Named("poller"),
	})
	if err != nil {
		return fmt.Errorf("build poller: %w", err)
	}

	p.Run(cmd.Context())
	return nil
}
