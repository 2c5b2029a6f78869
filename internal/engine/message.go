package engine

import (
	"fmt"
	"strconv"

	"smartalerts/internal/model"
)

var severityLabels = map[string]map[model.Severity]string{
	"en": {
		model.SeverityLow:      "Low",
		model.SeverityMedium:   "Medium",
		model.SeverityHigh:     "High",
		model.SeverityCritical: "Critical",
	},
	"ar": {
		model.SeverityLow:      "منخفض",
		model.SeverityMedium:   "متوسط",
		model.SeverityHigh:     "عالي",
		model.SeverityCritical: "حرج",
	},
}

var messageFormats = map[string]string{
	"en": "%s: %s = %s (severity: %s)",
	"ar": "%s: %s = %s (الخطورة: %s)",
}

// SeverityLabel returns the display label for s in locale, falling back
// to English.
func SeverityLabel(locale string, s model.Severity) string {
	labels, ok := severityLabels[locale]
	if !ok {
		labels = severityLabels["en"]
	}
	if label, ok := labels[s]; ok {
		return label
	}
	return string(s)
}

func alertMessage(locale string, th model.Threshold, value any) string {
	format, ok := messageFormats[locale]
	if !ok {
		format = messageFormats["en"]
	}
	return fmt.Sprintf(format, th.Name, th.Field, formatValue(value), SeverityLabel(locale, th.Severity))
}

func formatValue(v any) string {
	switch n := v.(type) {
	case string:
		return n
	case float64:
		return strconv.FormatFloat(n, 'f', -1, 64)
	case float32:
		return strconv.FormatFloat(float64(n), 'f', -1, 32)
	}
	return fmt.Sprint(v)
}
