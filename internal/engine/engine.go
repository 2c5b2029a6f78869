package engine

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"smartalerts/internal/fieldpath"
	"smartalerts/internal/metrics"
	"smartalerts/internal/model"
)

type ThresholdSource interface {
	Enabled(ctx context.Context) []model.Threshold
}

type AlertSink interface {
	Add(ctx context.Context, alert model.Alert)
}

// Notifier receives every created alert. Dispatch must not block on
// delivery.
type Notifier interface {
	Dispatch(ctx context.Context, alert model.Alert)
}

type Options struct {
	Logger zerolog.Logger
	Locale string
	Now    func() time.Time
	NewID  func() string
}

type Engine struct {
	thresholds ThresholdSource
	alerts     AlertSink
	notifier   Notifier
	logger     zerolog.Logger
	locale     string
	now        func() time.Time
	newID      func() string
}

func NewEngine(thresholds ThresholdSource, alerts AlertSink, notifier Notifier, opts Options) *Engine {
	e := &Engine{
		thresholds: thresholds,
		alerts:     alerts,
		notifier:   notifier,
		logger:     opts.Logger,
		locale:     opts.Locale,
		now:        opts.Now,
		newID:      opts.NewID,
	}
	if e.locale == "" {
		e.locale = "en"
	}
	if e.now == nil {
		e.now = func() time.Time { return time.Now().UTC() }
	}
	if e.newID == nil {
		e.newID = func() string { return uuid.NewString() }
	}
	return e
}

// CheckData evaluates every enabled threshold against every record, records
// in input order and thresholds in store order. Each match is stored,
// dispatched and returned in that same order. A record without the
// threshold's field is skipped for that threshold. The only error is a
// cancelled ctx, returned with the alerts created so far.
func (e *Engine) CheckData(ctx context.Context, records []model.Record) ([]model.Alert, error) {
	start := time.Now()
	metrics.EvaluationsTotal.Inc()
	defer func() {
		metrics.EvaluationDuration.Observe(time.Since(start).Seconds())
	}()

	thresholds := e.thresholds.Enabled(ctx)
	out := make([]model.Alert, 0)
	for _, record := range records {
		if err := ctx.Err(); err != nil {
			return out, err
		}
		metrics.RecordsEvaluated.Inc()
		for _, th := range thresholds {
			value, ok := fieldpath.Lookup(record, th.Field)
			if !ok {
				continue
			}
			if !Match(th, value) {
				continue
			}
			alert := e.newAlert(th, value, record)
			e.alerts.Add(ctx, alert)
			metrics.AlertsCreated.WithLabelValues(string(alert.Severity)).Inc()
			e.logger.Info().
				Str("alert_id", alert.ID).
				Str("threshold_id", th.ID).
				Str("field", th.Field).
				Str("severity", string(th.Severity)).
				Msg("threshold matched")
			if e.notifier != nil {
				e.notifier.Dispatch(ctx, alert)
			}
			out = append(out, alert)
		}
	}
	return out, nil
}

func (e *Engine) newAlert(th model.Threshold, value any, record model.Record) model.Alert {
	return model.Alert{
		ID:          e.newID(),
		ThresholdID: th.ID,
		Title:       th.Name,
		Message:     alertMessage(e.locale, th, value),
		Severity:    th.Severity,
		Timestamp:   e.now(),
		Read:        false,
		Data:        record,
	}
}
