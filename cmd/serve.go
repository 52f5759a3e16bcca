package cmd

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"google.golang.org/api/option"

	"github.com/JakeFAU/cyphernode-status/internal/api"
	"github.com/JakeFAU/cyphernode-status/internal/auth"
	"github.com/JakeFAU/cyphernode-status/internal/clock/system"
	"github.com/JakeFAU/cyphernode-status/internal/config"
	"github.com/JakeFAU/cyphernode-status/internal/metrics"
	"github.com/JakeFAU/cyphernode-status/internal/poller"
	"github.com/JakeFAU/cyphernode-status/internal/progress"
	"github.com/JakeFAU/cyphernode-status/internal/progress/sinks"
	pubsubpublisher "github.com/JakeFAU/cyphernode-status/internal/publisher/pubsub"
	"github.com/JakeFAU/cyphernode-status/internal/telemetry"
)

const shutdownTimeout = 10 * time.Second

// newServeCmd creates the 'serve' subcommand.
func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Serve the status page and track verification progress",
		Long: `Starts the status page backend. It proxies the gatekeeper status call,
signing each request with the configured key, and runs an in-process tracker
that polls the page's own status endpoint to keep the rendered ETA current.`,
		RunE: runServeCommand,
	}
}

func runServeCommand(cmd *cobra.Command, _ []string) error {
	rt, err := resolveRuntime(cmd.Context())
	if err != nil {
		return err
	}
	ctx := cmd.Context()

	tp, err := telemetry.InitTracerProvider(ctx, serviceName)
	if err != nil {
		return fmt.Errorf("init tracing: %w", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := tp.Shutdown(shutdownCtx); err != nil {
			rt.Logger.Warn("tracer shutdown failed", zap.Error(err))
		}
	}()

	svc, err := newService(ctx, rt.Config, rt.Logger, serviceOptions{Registerer: prometheus.DefaultRegisterer})
	if err != nil {
		return err
	}

	ln, err := net.Listen("tcp", rt.Config.Server.Listen)
	if err != nil {
		svc.close()
		return fmt.Errorf("listen on %s: %w", rt.Config.Server.Listen, err)
	}
	return svc.serve(ctx, ln)
}

type serviceOptions struct {
	Registerer    prometheus.Registerer
	PubSubOptions []option.ClientOption
	Clock         poller.Clock
}

// service is the assembled status backend: HTTP handler, presenter hub and
// the optional in-process tracker.
type service struct {
	logger  *zap.Logger
	handler http.Handler
	hub     *progress.Hub
	view    *sinks.ViewSink
	poller  *poller.Poller
	closers []func() error
}

func newService(ctx context.Context, cfg config.Config, logger *zap.Logger, opts serviceOptions) (*service, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if opts.Registerer == nil {
		opts.Registerer = prometheus.NewRegistry()
	}
	if opts.Clock == nil {
		opts.Clock = system.New()
	}
	metrics.Init()

	svc := &service{logger: logger}

	signer, err := loadSigner(cfg.Gatekeeper, logger)
	if err != nil {
		return nil, err
	}
	client := newStatusClient(cfg)
	proxy := api.NewStatusProxy(cfg.Gatekeeper.StatusURL, signer, cfg.Gatekeeper.KeyLabel, client, logger.Named("proxy"))

	svc.view = sinks.NewViewSink()
	sinkList := []progress.Sink{svc.view, sinks.NewLogSink(logger.Named("progress"))}

	promSink, err := sinks.NewPrometheusSink(opts.Registerer)
	if err != nil {
		return nil, fmt.Errorf("progress metrics: %w", err)
	}
	sinkList = append(sinkList, promSink)

	if cfg.PubSub.ProjectID != "" {
		pub, err := pubsubpublisher.Dial(ctx, cfg.PubSub.ProjectID, opts.PubSubOptions...)
		if err != nil {
			return nil, fmt.Errorf("pubsub publisher: %w", err)
		}
		svc.closers = append(svc.closers, pub.Close)
		sinkList = append(sinkList, sinks.NewPublisherSink(pub, cfg.PubSub.TopicName))
		logger.Info("publishing progress notifications",
			zap.String("project_id", cfg.PubSub.ProjectID),
			zap.String("topic", cfg.PubSub.TopicName),
		)
	}

	svc.hub = progress.NewHub(progress.Config{
		Backlog:     cfg.Progress.Backlog,
		SinkTimeout: cfg.SinkTimeout(),
		BaseContext: ctx,
		Logger:      logger.Named("hub"),
	}, sinkList...)

	apiServer, err := api.NewServer(cfg, svc.view, proxy, logger.Named("api"))
	if err != nil {
		svc.close()
		return nil, fmt.Errorf("build api server: %w", err)
	}
	svc.handler = apiServer.Handler()

	if cfg.Poller.Enabled {
		statusURL, err := poller.ResolveStatusURL(cfg.PollerOrigin(), cfg.PollerBaseHref())
		if err != nil {
			svc.close()
			return nil, fmt.Errorf("resolve status url: %w", err)
		}
		svc.poller, err = poller.New(statusURL, poller.Options{
			Client:  client,
			Clock:   opts.Clock,
			Emitter: svc.hub,
			Logger:  logger.Named("poller"),
		})
		if err != nil {
			svc.close()
			return nil, fmt.Errorf("build poller: %w", err)
		}
	}

	return svc, nil
}

// loadSigner returns nil when no key file is configured, so status calls go
// out unsigned.
func loadSigner(cfg config.GatekeeperConfig, logger *zap.Logger) (api.Signer, error) {
	if cfg.KeyFile == "" {
		logger.Warn("no gatekeeper key file configured; status calls are unsigned")
		return nil, nil
	}
	keys, err := auth.LoadKeyFile(cfg.KeyFile)
	if err != nil {
		return nil, fmt.Errorf("load gatekeeper keys: %w", err)
	}
	if cfg.KeyLabel != "" && !keys.Has(cfg.KeyLabel) {
		logger.Warn("gatekeeper key label not found in key file", zap.String("key_label", cfg.KeyLabel))
	}
	logger.Info("gatekeeper keys loaded", zap.Int("keys", keys.Len()))
	return keys, nil
}

// serve runs the HTTP server and tracker until ctx is done or the server
// fails, then shuts everything down.
func (s *service) serve(ctx context.Context, ln net.Listener) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	srv := &http.Server{
		Handler:           s.handler,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("http server started", zap.String("addr", ln.Addr().String()))
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("http server error", zap.Error(err))
			errCh <- err
			cancel()
		}
	}()

	var wg sync.WaitGroup
	if s.poller != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			s.poller.Run(ctx)
		}()
	}

	<-ctx.Done()
	s.logger.Info("shutdown initiated")

	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancelShutdown()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		s.logger.Error("server shutdown error", zap.Error(err))
	}
	wg.Wait()
	s.close()
	s.logger.Info("shutdown complete")

	select {
	case err := <-errCh:
		return fmt.Errorf("http server: %w", err)
	default:
		return nil
	}
}

func (s *service) close() {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if s.hub != nil {
		if err := s.hub.Close(ctx); err != nil {
			s.logger.Warn("progress hub close failed", zap.Error(err))
		}
	}
	for _, closeFn := range s.closers {
		if err := closeFn(); err != nil {
			s.logger.Warn("close failed", zap.Error(err))
		}
	}
}
