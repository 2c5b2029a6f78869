// Package ingest feeds records from external sources into the evaluation
// engine.
package ingest

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"smartalerts/internal/metrics"
	"smartalerts/internal/model"
)

var ErrEmptyPayload = errors.New("empty payload")

type Checker interface {
	CheckData(ctx context.Context, records []model.Record) ([]model.Alert, error)
}

// DecodeRecords accepts a single JSON object or an array of objects.
func DecodeRecords(data []byte) ([]model.Record, error) {
	trim := bytes.TrimSpace(data)
	if len(trim) == 0 {
		return nil, ErrEmptyPayload
	}
	if trim[0] == '[' {
		var list []model.Record
		if err := json.Unmarshal(trim, &list); err != nil {
			return nil, fmt.Errorf("decode records: %w", err)
		}
		out := list[:0]
		for _, r := range list {
			if r != nil {
				out = append(out, r)
			}
		}
		return out, nil
	}
	var obj model.Record
	if err := json.Unmarshal(trim, &obj); err != nil {
		return nil, fmt.Errorf("decode record: %w", err)
	}
	if obj == nil {
		return nil, ErrEmptyPayload
	}
	return []model.Record{obj}, nil
}

// evaluate decodes payload and hands it to checker, counting the outcome
// under source.
func evaluate(ctx context.Context, checker Checker, source string, payload []byte, logger zerolog.Logger) {
	records, err := DecodeRecords(payload)
	if err != nil {
		metrics.IngestRecordsTotal.WithLabelValues(source, "invalid").Inc()
		logger.Warn().Err(err).Str("source", source).Msg("dropping undecodable payload")
		return
	}
	created, err := checker.CheckData(ctx, records)
	if err != nil {
		metrics.IngestRecordsTotal.WithLabelValues(source, "failed").Add(float64(len(records)))
		logger.Warn().Err(err).Str("source", source).Msg("record evaluation failed")
		return
	}
	metrics.IngestRecordsTotal.WithLabelValues(source, "accepted").Add(float64(len(records)))
	if len(created) > 0 {
		logger.Debug().Str("source", source).Int("records", len(records)).Int("alerts", len(created)).Msg("records evaluated")
	}
}

func BackoffSleep(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		d = 200 * time.Millisecond
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return true
	case <-ctx.Done():
		return false
	}
}
