package notify

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"smartalerts/internal/metrics"
	"smartalerts/internal/model"
	"smartalerts/internal/storage"
)

type Options struct {
	Logger zerolog.Logger
	// Host backs the browser channel and permission prompts. Nil means
	// the environment cannot show notifications.
	Host Host
	// Senders for channels other than browser.
	Senders map[model.Channel]Sender
	// DeliveryTimeout bounds each background delivery.
	DeliveryTimeout time.Duration
}

type sink struct {
	name   string
	sender Sender
}

// Dispatcher delivers alerts to every enabled channel. Channel settings are
// persisted under storage.KeyNotificationSettings.
type Dispatcher struct {
	mu       sync.Mutex
	coll     *storage.Collection[model.NotificationSetting]
	settings []model.NotificationSetting
	host     Host
	senders  map[model.Channel]Sender
	sinks    []sink
	timeout  time.Duration
	logger   zerolog.Logger
	wg       sync.WaitGroup
}

func NewDispatcher(kv storage.KV, opts Options) *Dispatcher {
	d := &Dispatcher{
		coll:     storage.NewCollection[model.NotificationSetting](kv, storage.KeyNotificationSettings),
		settings: model.DefaultNotificationSettings(),
		host:     opts.Host,
		senders:  make(map[model.Channel]Sender),
		timeout:  opts.DeliveryTimeout,
		logger:   opts.Logger,
	}
	if d.timeout <= 0 {
		d.timeout = 30 * time.Second
	}
	if opts.Host != nil {
		d.senders[model.ChannelBrowser] = NewBrowserSender(opts.Host)
	}
	for ch, s := range opts.Senders {
		d.senders[ch] = s
	}
	return d
}

// AddSink registers a sender that receives every alert regardless of
// channel settings, such as an event feed.
func (d *Dispatcher) AddSink(name string, s Sender) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.sinks = append(d.sinks, sink{name: name, sender: s})
}

// Dispatch starts one background delivery per enabled channel and per sink
// and returns immediately. Failures are logged and counted.
func (d *Dispatcher) Dispatch(ctx context.Context, alert model.Alert) {
	settings := d.Settings(ctx)
	d.mu.Lock()
	sinks := append([]sink(nil), d.sinks...)
	d.mu.Unlock()

	bg := context.WithoutCancel(ctx)
	for _, st := range settings {
		if !st.Enabled {
			continue
		}
		sender, ok := d.senders[st.Type]
		if !ok {
			continue
		}
		d.deliver(bg, string(st.Type), sender, alert)
	}
	for _, s := range sinks {
		d.deliver(bg, s.name, s.sender, alert)
	}
}

// Wait blocks until in-flight deliveries finish.
func (d *Dispatcher) Wait() {
	d.wg.Wait()
}

func (d *Dispatcher) deliver(ctx context.Context, channel string, sender Sender, alert model.Alert) {
	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		log := d.logger.With().Str("channel", channel).Str("alert_id", alert.ID).Logger()
		defer func() {
			if r := recover(); r != nil {
				log.Error().
					Interface("panic", r).
					Bytes("stack", debug.Stack()).
					Msg("notification sender panic recovered")
				metrics.PanicsRecovered.WithLabelValues("notify").Inc()
				metrics.NotificationsTotal.WithLabelValues(channel, "failed").Inc()
			}
		}()

		ctx, cancel := context.WithTimeout(ctx, d.timeout)
		defer cancel()
		err := sender.Deliver(ctx, alert)
		switch {
		case err == nil:
			metrics.NotificationsTotal.WithLabelValues(channel, "sent").Inc()
			log.Debug().Msg("notification delivered")
		case errors.Is(err, ErrSkipped):
			metrics.NotificationsTotal.WithLabelValues(channel, "skipped").Inc()
			log.Debug().Err(err).Msg("notification skipped")
		default:
			metrics.NotificationsTotal.WithLabelValues(channel, "failed").Inc()
			log.Error().Err(err).Msg("notification delivery failed")
		}
	}()
}

// Settings returns the persisted channel settings, defaults when nothing
// was stored yet.
func (d *Dispatcher) Settings(ctx context.Context) []model.NotificationSetting {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]model.NotificationSetting(nil), d.load(ctx)...)
}

func (d *Dispatcher) UpdateSettings(ctx context.Context, channel model.Channel, enabled bool) ([]model.NotificationSetting, error) {
	if !channel.Valid() {
		return nil, fmt.Errorf("%w: %q", model.ErrUnknownChannel, channel)
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	settings := d.load(ctx)
	found := false
	for i := range settings {
		if settings[i].Type == channel {
			settings[i].Enabled = enabled
			found = true
		}
	}
	if !found {
		settings = append(settings, model.NotificationSetting{Type: channel, Enabled: enabled})
	}
	d.settings = settings
	if err := d.coll.Save(ctx, settings); err != nil {
		d.logger.Error().Err(err).Str("key", d.coll.Key()).Msg("failed to persist notification settings")
		metrics.PersistenceFailures.WithLabelValues(d.coll.Key(), "write").Inc()
	}
	return append([]model.NotificationSetting(nil), settings...), nil
}

// RequestPermission reports unsupported without a host, never re-prompts
// after a denial, and otherwise asks the host.
func (d *Dispatcher) RequestPermission(ctx context.Context) model.Permission {
	if d.host == nil {
		return model.PermissionUnsupported
	}
	switch p := d.host.Permission(); p {
	case model.PermissionUnsupported, model.PermissionDenied, model.PermissionGranted:
		return p
	}
	p, err := d.host.Prompt(ctx)
	if err != nil {
		d.logger.Warn().Err(err).Msg("notification permission prompt failed")
		return model.PermissionDefault
	}
	return p
}

func (d *Dispatcher) load(ctx context.Context) []model.NotificationSetting {
	items, found, err := d.coll.Load(ctx)
	if err != nil {
		d.logger.Error().Err(err).Str("key", d.coll.Key()).Msg("failed to read notification settings, using in-memory copy")
		metrics.PersistenceFailures.WithLabelValues(d.coll.Key(), "read").Inc()
		return append([]model.NotificationSetting(nil), d.settings...)
	}
	if found {
		d.settings = items
	}
	return append([]model.NotificationSetting(nil), d.settings...)
}
