package cli

import (
	"context"
	"fmt"
	"io"

	"github.com/rs/zerolog"

	"smartalerts/internal/config"
	"smartalerts/internal/logging"
	"smartalerts/internal/model"
	"smartalerts/internal/notify"
	"smartalerts/internal/service"
	"smartalerts/internal/storage"
)

// runtime is the opened storage plus the service built on it.
type runtime struct {
	cfg    *config.Config
	logger zerolog.Logger
	kv     storage.KV
	svc    *service.SmartAlerts
}

func loadConfig(opts *rootOptions) (*config.Config, error) {
	cfg, err := config.LoadOrDefault(config.ResolvePath(opts.configPath))
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if opts.logLevel != "" {
		cfg.LogLevel = opts.logLevel
	}
	return cfg, nil
}

func openKV(ctx context.Context, cfg config.StorageConfig) (storage.KV, error) {
	kv, err := storage.NewStore(cfg)
	if err != nil {
		return nil, fmt.Errorf("open storage: %w", err)
	}
	if err := kv.Init(ctx); err != nil {
		_ = kv.Close()
		return nil, fmt.Errorf("init storage: %w", err)
	}
	return kv, nil
}

// senders returns the external channel senders enabled in cfg.
func senders(cfg config.NotificationsConfig) map[model.Channel]notify.Sender {
	out := map[model.Channel]notify.Sender{}
	if cfg.Email.Enabled {
		out[model.ChannelEmail] = notify.NewEmailSender(cfg.Email)
	}
	if cfg.SMS.Enabled {
		out[model.ChannelSMS] = notify.NewSMSSender(cfg.SMS)
	}
	return out
}

func serviceOptions(cfg *config.Config, kv storage.KV, logger zerolog.Logger) service.Options {
	return service.Options{
		KV:            kv,
		Senders:       senders(cfg.Notifications),
		Logger:        logger,
		AlertLimit:    cfg.Alerts.StoreLimit,
		Locale:        cfg.Alerts.Locale,
		StrictBetween: cfg.Alerts.StrictBetween,
		TickTimeout:   cfg.Monitoring.TickTimeout,
	}
}

// openRuntime wires a service for one-shot commands. Logs go to logOut so
// command output stays clean.
func openRuntime(ctx context.Context, opts *rootOptions, logOut io.Writer) (*runtime, error) {
	cfg, err := loadConfig(opts)
	if err != nil {
		return nil, err
	}
	logger := logging.NewWithWriter(logOut, cfg.LogLevel, cfg.LogPretty)
	kv, err := openKV(ctx, cfg.Storage)
	if err != nil {
		return nil, err
	}
	svc, err := service.New(serviceOptions(cfg, kv, logger))
	if err != nil {
		_ = kv.Close()
		return nil, err
	}
	return &runtime{cfg: cfg, logger: logger, kv: kv, svc: svc}, nil
}

func (r *runtime) Close() error {
	_ = r.svc.Close()
	return r.kv.Close()
}
