package model

import (
	"encoding/json"
	"time"
)

type Operator string

const (
	OpGreaterThan Operator = "greaterThan"
	OpLessThan    Operator = "lessThan"
	OpEquals      Operator = "equals"
	OpNotEquals   Operator = "notEquals"
	OpBetween     Operator = "between"
)

func (o Operator) Valid() bool {
	switch o {
	case OpGreaterThan, OpLessThan, OpEquals, OpNotEquals, OpBetween:
		return true
	}
	return false
}

type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

func (s Severity) Valid() bool {
	switch s {
	case SeverityLow, SeverityMedium, SeverityHigh, SeverityCritical:
		return true
	}
	return false
}

type Channel string

const (
	ChannelBrowser Channel = "browser"
	ChannelEmail   Channel = "email"
	ChannelSMS     Channel = "sms"
)

// Channels lists every notification channel in dispatch order.
var Channels = []Channel{ChannelBrowser, ChannelEmail, ChannelSMS}

func (c Channel) Valid() bool {
	switch c {
	case ChannelBrowser, ChannelEmail, ChannelSMS:
		return true
	}
	return false
}

type Permission string

const (
	PermissionUnsupported Permission = "unsupported"
	PermissionDefault     Permission = "default"
	PermissionGranted     Permission = "granted"
	PermissionDenied      Permission = "denied"
)

// Record is one input row handed to the engine. Values are JSON-like:
// numbers, strings, bools, nil or nested records.
type Record = map[string]any

type Threshold struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Field     string    `json:"field"`
	Operator  Operator  `json:"operator"`
	Value     any       `json:"value"`
	MaxValue  any       `json:"maxValue,omitempty"`
	Severity  Severity  `json:"severity"`
	Enabled   bool      `json:"enabled"`
	CreatedAt time.Time `json:"createdAt"`
}

type ThresholdSpec struct {
	Name     string   `json:"name"`
	Field    string   `json:"field"`
	Operator Operator `json:"operator"`
	Value    any      `json:"value"`
	MaxValue any      `json:"maxValue,omitempty"`
	Severity Severity `json:"severity"`
	Enabled  bool     `json:"enabled"`
}

// ThresholdPatch is a shallow update: every non-nil field replaces the
// stored value. An explicit JSON null for value or maxValue clears it.
type ThresholdPatch struct {
	Name     *string   `json:"name,omitempty"`
	Field    *string   `json:"field,omitempty"`
	Operator *Operator `json:"operator,omitempty"`
	Value    *any      `json:"value,omitempty"`
	MaxValue *any      `json:"maxValue,omitempty"`
	Severity *Severity `json:"severity,omitempty"`
	Enabled  *bool     `json:"enabled,omitempty"`
}

func (p *ThresholdPatch) UnmarshalJSON(data []byte) error {
	type plain ThresholdPatch
	if err := json.Unmarshal(data, (*plain)(p)); err != nil {
		return err
	}
	var present map[string]json.RawMessage
	if err := json.Unmarshal(data, &present); err != nil {
		return err
	}
	if _, ok := present["value"]; ok && p.Value == nil {
		p.Value = new(any)
	}
	if _, ok := present["maxValue"]; ok && p.MaxValue == nil {
		p.MaxValue = new(any)
	}
	return nil
}

type Alert struct {
	ID          string    `json:"id"`
	ThresholdID string    `json:"thresholdId"`
	Title       string    `json:"title"`
	Message     string    `json:"message"`
	Severity    Severity  `json:"severity"`
	Timestamp   time.Time `json:"timestamp"`
	Read        bool      `json:"read"`
	Data        Record    `json:"data"`
}

type NotificationSetting struct {
	Type    Channel `json:"type"`
	Enabled bool    `json:"enabled"`
}

// DefaultNotificationSettings returns browser on, email and sms off.
func DefaultNotificationSettings() []NotificationSetting {
	return []NotificationSetting{
		{Type: ChannelBrowser, Enabled: true},
		{Type: ChannelEmail, Enabled: false},
		{Type: ChannelSMS, Enabled: false},
	}
}
