package thresholds

import (
	"fmt"
	"math"
	"strings"

	"smartalerts/internal/model"
)

// WarnBetweenWithoutMax is reported for a between threshold created
// without maxValue. Such a threshold compares against an upper bound of 0.
const WarnBetweenWithoutMax = "between threshold has no maxValue; upper bound defaults to 0"

// Validate checks a threshold definition. Hard problems are returned as an
// error wrapping model.ErrInvalidThreshold; soft problems come back as
// warnings unless strict is set.
func Validate(spec model.ThresholdSpec, strict bool) ([]string, error) {
	if strings.TrimSpace(spec.Field) == "" {
		return nil, fmt.Errorf("%w: field is required", model.ErrInvalidThreshold)
	}
	if !spec.Operator.Valid() {
		return nil, fmt.Errorf("%w: unknown operator %q", model.ErrInvalidThreshold, spec.Operator)
	}
	if !spec.Severity.Valid() {
		return nil, fmt.Errorf("%w: unknown severity %q", model.ErrInvalidThreshold, spec.Severity)
	}
	if spec.Value == nil {
		return nil, fmt.Errorf("%w: value is required", model.ErrInvalidThreshold)
	}
	if !finite(spec.Value) || !finite(spec.MaxValue) {
		return nil, fmt.Errorf("%w: value and maxValue must be finite", model.ErrInvalidThreshold)
	}
	var warnings []string
	if spec.Operator == model.OpBetween && spec.MaxValue == nil {
		if strict {
			return nil, fmt.Errorf("%w: between requires maxValue", model.ErrInvalidThreshold)
		}
		warnings = append(warnings, WarnBetweenWithoutMax)
	}
	return warnings, nil
}

// finite reports false for NaN and infinite floats, which cannot be stored
// as JSON.
func finite(v any) bool {
	var f float64
	switch n := v.(type) {
	case float64:
		f = n
	case float32:
		f = float64(n)
	default:
		return true
	}
	return !math.IsNaN(f) && !math.IsInf(f, 0)
}
