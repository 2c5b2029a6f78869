// Package service assembles the threshold store, alert store, evaluation
// engine, notification dispatcher and monitoring loop behind one object.
package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"smartalerts/internal/alerts"
	"smartalerts/internal/engine"
	"smartalerts/internal/logging"
	"smartalerts/internal/model"
	"smartalerts/internal/monitor"
	"smartalerts/internal/notify"
	"smartalerts/internal/storage"
	"smartalerts/internal/thresholds"
)

type Options struct {
	// KV is required. Instances sharing a KV share thresholds, alerts and
	// notification settings.
	KV      storage.KV
	Host    notify.Host
	Senders map[model.Channel]notify.Sender
	// Sinks receive every alert independent of channel settings.
	Sinks map[string]notify.Sender

	Logger          zerolog.Logger
	AlertLimit      int
	Locale          string
	StrictBetween   bool
	TickTimeout     time.Duration
	DeliveryTimeout time.Duration
	Now             func() time.Time
	NewID           func() string
}

type SmartAlerts struct {
	thresholds *thresholds.Store
	alerts     *alerts.Store
	engine     *engine.Engine
	dispatcher *notify.Dispatcher
	monitor    *monitor.Loop
	logger     zerolog.Logger
}

type Status struct {
	Thresholds        int    `json:"thresholds"`
	EnabledThresholds int    `json:"enabledThresholds"`
	Alerts            int    `json:"alerts"`
	UnreadAlerts      int    `json:"unreadAlerts"`
	AlertLimit        int    `json:"alertLimit"`
	Monitoring        bool   `json:"monitoring"`
	Interval          string `json:"interval,omitempty"`
}

func New(opts Options) (*SmartAlerts, error) {
	if opts.KV == nil {
		return nil, errors.New("service: storage is required")
	}
	logger := opts.Logger
	s := &SmartAlerts{logger: logger}
	s.thresholds = thresholds.NewStore(opts.KV, thresholds.Options{
		Logger:        logging.Component(logger, "thresholds"),
		StrictBetween: opts.StrictBetween,
		Now:           opts.Now,
		NewID:         opts.NewID,
	})
	s.alerts = alerts.NewStore(opts.KV, opts.AlertLimit, logging.Component(logger, "alerts"))
	s.dispatcher = notify.NewDispatcher(opts.KV, notify.Options{
		Logger:          logging.Component(logger, "notify"),
		Host:            opts.Host,
		Senders:         opts.Senders,
		DeliveryTimeout: opts.DeliveryTimeout,
	})
	for name, sink := range opts.Sinks {
		s.dispatcher.AddSink(name, sink)
	}
	s.engine = engine.NewEngine(s.thresholds, s.alerts, s.dispatcher, engine.Options{
		Logger: logging.Component(logger, "engine"),
		Locale: opts.Locale,
		Now:    opts.Now,
		NewID:  opts.NewID,
	})
	s.monitor = monitor.New(s.engine.CheckData, monitor.Options{
		Logger:      logging.Component(logger, "monitor"),
		TickTimeout: opts.TickTimeout,
	})
	return s, nil
}

func (s *SmartAlerts) AddThreshold(ctx context.Context, spec model.ThresholdSpec) (model.Threshold, error) {
	return s.thresholds.Add(ctx, spec)
}

func (s *SmartAlerts) GetThresholds(ctx context.Context) []model.Threshold {
	return s.thresholds.List(ctx)
}

// UpdateThreshold returns an error wrapping model.ErrNotFound for an
// unknown id.
// GetThreshold returns model.ErrNotFound for unknown ids.
func (s *SmartAlerts) GetThreshold(ctx context.Context, id string) (model.Threshold, error) {
	th, ok := s.thresholds.Get(ctx, id)
	if !ok {
		return model.Threshold{}, fmt.Errorf("threshold %q: %w", id, model.ErrNotFound)
	}
	return th, nil
}

func (s *SmartAlerts) UpdateThreshold(ctx context.Context, id string, patch model.ThresholdPatch) (model.Threshold, error) {
	return s.thresholds.Update(ctx, id, patch)
}

// DeleteThreshold is a no-op for an unknown id. Alerts the threshold
// already produced are kept.
func (s *SmartAlerts) DeleteThreshold(ctx context.Context, id string) error {
	return s.thresholds.Delete(ctx, id)
}

func (s *SmartAlerts) CheckData(ctx context.Context, records []model.Record) ([]model.Alert, error) {
	return s.engine.CheckData(ctx, records)
}

func (s *SmartAlerts) GetAlerts(ctx context.Context, unreadOnly bool) []model.Alert {
	return s.alerts.List(ctx, unreadOnly)
}

func (s *SmartAlerts) MarkAsRead(ctx context.Context, id string) {
	s.alerts.MarkRead(ctx, id)
}

func (s *SmartAlerts) MarkAllAsRead(ctx context.Context) {
	s.alerts.MarkAllRead(ctx)
}

func (s *SmartAlerts) DeleteAlert(ctx context.Context, id string) {
	s.alerts.Delete(ctx, id)
}

func (s *SmartAlerts) ClearAlerts(ctx context.Context) {
	s.alerts.Clear(ctx)
}

func (s *SmartAlerts) RequestNotificationPermission(ctx context.Context) model.Permission {
	return s.dispatcher.RequestPermission(ctx)
}

func (s *SmartAlerts) GetNotificationSettings(ctx context.Context) []model.NotificationSetting {
	return s.dispatcher.Settings(ctx)
}

func (s *SmartAlerts) UpdateNotificationSettings(ctx context.Context, channel model.Channel, enabled bool) ([]model.NotificationSetting, error) {
	return s.dispatcher.UpdateSettings(ctx, channel, enabled)
}

func (s *SmartAlerts) StartMonitoring(records []model.Record, interval time.Duration) error {
	return s.monitor.Start(records, interval)
}

func (s *SmartAlerts) StopMonitoring() {
	s.monitor.Stop()
}

func (s *SmartAlerts) Status(ctx context.Context) Status {
	all := s.thresholds.List(ctx)
	enabled := 0
	for _, th := range all {
		if th.Enabled {
			enabled++
		}
	}
	st := Status{
		Thresholds:        len(all),
		EnabledThresholds: enabled,
		Alerts:            len(s.alerts.List(ctx, false)),
		UnreadAlerts:      s.alerts.UnreadCount(ctx),
		AlertLimit:        s.alerts.Limit(),
		Monitoring:        s.monitor.Running(),
	}
	if d := s.monitor.Interval(); d > 0 {
		st.Interval = d.String()
	}
	return st
}

// WaitForDeliveries blocks until background notifications finish.
func (s *SmartAlerts) WaitForDeliveries() {
	s.dispatcher.Wait()
}

// Close stops monitoring and waits for in-flight deliveries. The KV is
// owned by the caller.
func (s *SmartAlerts) Close() error {
	s.monitor.Stop()
	s.dispatcher.Wait()
	return nil
}
