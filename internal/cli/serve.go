package cli

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"smartalerts/internal/api"
	"smartalerts/internal/config"
	"smartalerts/internal/feed"
	"smartalerts/internal/ingest"
	"smartalerts/internal/logging"
	"smartalerts/internal/notify"
	"smartalerts/internal/notify/ws"
	"smartalerts/internal/service"
)

func newServeCmd(opts *rootOptions, version string) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API with ingest and alert feed",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return runServe(ctx, opts, version)
		},
	}
}

func runServe(ctx context.Context, opts *rootOptions, version string) error {
	cfg, err := loadConfig(opts)
	if err != nil {
		return err
	}
	// The process level lives in the global level so config reloads can
	// change it in both directions.
	logger := logging.New(cfg.LogLevel, cfg.LogPretty).Level(zerolog.TraceLevel)
	applyLogLevel(cfg.LogLevel)
	logger.Info().Str("version", version).Str("storage", cfg.Storage.Driver).Msg("starting smartalerts")

	kv, err := openKV(ctx, cfg.Storage)
	if err != nil {
		return err
	}
	defer kv.Close()

	svcOpts := serviceOptions(cfg, kv, logger)

	var hub *ws.Hub
	if cfg.Notifications.Browser.Enabled {
		hub = ws.NewHub(logging.Component(logger, "ws"))
		svcOpts.Host = hub
	}

	if cfg.Feed.Kafka.Enabled {
		pub, err := feed.NewPublisher(cfg.Feed.Kafka, logger)
		if err != nil {
			return err
		}
		defer pub.Close()
		svcOpts.Sinks = map[string]notify.Sender{"kafka_feed": pub}
		logger.Info().Strs("brokers", cfg.Feed.Kafka.Brokers).Str("topic", cfg.Feed.Kafka.Topic).Msg("alert feed enabled")
	}

	svc, err := service.New(svcOpts)
	if err != nil {
		return err
	}
	defer svc.Close()

	ingestDone := ingest.StartKafka(ctx, cfg.Ingest.Kafka, svc, logging.Component(logger, "ingest"))
	ingest.StartFileTail(ctx, cfg.Ingest.FileTail, svc, logging.Component(logger, "ingest"))

	if cfg.API.Enabled {
		apiOpts := api.Options{
			Logger:            logging.Component(logger, "api"),
			Version:           version,
			PermissionTimeout: cfg.Notifications.Browser.PromptTimeout,
			DefaultInterval:   cfg.Monitoring.Interval,
		}
		if hub != nil {
			apiOpts.WS = http.HandlerFunc(hub.HandleWS)
		}
		api.Start(ctx, cfg.API.Addr, api.NewServer(svc, apiOpts).Handler(), logger)
	} else {
		logger.Info().Msg("api disabled")
	}

	if path := config.ResolvePath(opts.configPath); path != "" {
		go watchConfig(ctx, path, logger)
	}

	<-ctx.Done()
	logger.Info().Msg("shutting down")
	<-ingestDone
	return nil
}

// watchConfig applies log level changes live. Other settings need a
// restart and are only reported.
func watchConfig(ctx context.Context, path string, logger zerolog.Logger) {
	mgr, err := config.NewManager(path)
	if err != nil {
		logger.Warn().Err(err).Msg("config watch disabled")
		return
	}
	stopCh := make(chan struct{})
	go func() {
		<-ctx.Done()
		close(stopCh)
	}()
	mgr.Watch(3*time.Second, func(cfg *config.Config) {
		applyLogLevel(cfg.LogLevel)
		logger.Info().Str("path", path).Str("log_level", cfg.LogLevel).Msg("config reloaded; storage, channel and listener changes apply after restart")
	}, func(err error) {
		logger.Warn().Err(err).Str("path", path).Msg("config reload failed")
	}, stopCh)
}

func applyLogLevel(level string) {
	lvl, err := zerolog.ParseLevel(level)
	if err != nil || lvl == zerolog.NoLevel {
		lvl = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(lvl)
}
