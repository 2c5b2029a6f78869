// Package monitor re-evaluates a fixed record snapshot on an interval.
package monitor

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
)

type CheckFunc func(ctx context.Context, records []model.Record) ([]model.Alert, error)

type Options struct {
	Logger zerolog.Logger
	// TickTimeout bounds a single evaluation. Zero means no limit.
	TickTimeout time.Duration
}

// Loop runs at most one ticker at a time. Starting again replaces the
// active ticker and its dataset.
type Loop struct {
	check       CheckFunc
	tickTimeout time.Duration
	logger      zerolog.Logger

	mu       sync.Mutex
	cancel   context.CancelFunc
	done     chan struct{}
	interval time.Duration
}

func New(check CheckFunc, opts Options) *Loop {
	return &Loop{
		check:       check,
		tickTimeout: opts.TickTimeout,
		logger:      opts.Logger,
	}
}

// Start evaluates records every interval until Stop or the next Start.
// The first evaluation happens after one interval.
func (l *Loop) Start(records []model.Record, interval time.Duration) error {
	if interval <= 0 {
		return fmt.Errorf("%w: %s", model.ErrInvalidInterval, interval)
	}
	snapshot := append([]model.Record(nil), records...)

	l.mu.Lock()
	defer l.mu.Unlock()
	l.stopLocked()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	l.cancel = cancel
	l.done = done
	l.interval = interval
	metrics.MonitoringActive.Set(1)
	l.logger.Info().Dur("interval", interval).Int("records", len(snapshot)).Msg("monitoring started")

	go l.run(ctx, done, snapshot, interval)
	return nil
}

// Stop cancels the active ticker and waits for an in-flight tick. Safe to
// call when nothing is running.
func (l *Loop) Stop() {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.stopLocked() {
		l.logger.Info().Msg("monitoring stopped")
	}
}

func (l *Loop) Running() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.cancel != nil
}

// Interval returns the active interval, zero when stopped.
func (l *Loop) Interval() time.Duration {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.interval
}

func (l *Loop) stopLocked() bool {
	if l.cancel == nil {
		return false
	}
	l.cancel()
	<-l.done
	l.cancel = nil
	l.done = nil
	l.interval = 0
	metrics.MonitoringActive.Set(0)
	return true
}

func (l *Loop) run(ctx context.Context, done chan struct{}, records []model.Record, interval time.Duration) {
	defer close(done)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			l.tick(ctx, records)
		}
	}
}

func (l *Loop) tick(ctx context.Context, records []model.Record) {
	defer func() {
		if r := recover(); r != nil {
			l.logger.Error().
				Interface("panic", r).
				Bytes("stack", debug.Stack()).
				Msg("monitoring tick panic recovered")
			metrics.PanicsRecovered.WithLabelValues("monitor").Inc()
			metrics.MonitoringTicks.WithLabelValues("panic").Inc()
		}
	}()

	if l.tickTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, l.tickTimeout)
		defer cancel()
	}
	created, err := l.check(ctx, records)
	if err != nil {
		if errors.Is(ctx.Err(), context.Canceled) {
			return
		}
		l.logger.Error().Err(err).Msg("monitoring tick failed")
		metrics.MonitoringTicks.WithLabelValues("error").Inc()
		return
	}
	metrics.MonitoringTicks.WithLabelValues("ok").Inc()
	l.logger.Debug().Int("alerts", len(created)).Msg("monitoring tick complete")
}
