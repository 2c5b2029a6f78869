// Package notify fans created alerts out to the configured delivery
// channels. Each channel has one Sender; deliveries run in the background
// and never report errors back to the evaluator.
package notify

import (
	"context"
	"errors"

	"smartalerts/internal/model"
)

// ErrSkipped is returned by a Sender that decided not to deliver, for
// example a browser channel without permission.
var ErrSkipped = errors.New("delivery skipped")

type Sender interface {
	Deliver(ctx context.Context, alert model.Alert) error
}

type SenderFunc func(ctx context.Context, alert model.Alert) error

func (f SenderFunc) Deliver(ctx context.Context, alert model.Alert) error {
	return f(ctx, alert)
}

// Notification is what a Host shows to the operator.
type Notification struct {
	Title              string         `json:"title"`
	Body               string         `json:"body"`
	Tag                string         `json:"tag"`
	RequireInteraction bool           `json:"requireInteraction"`
	Severity           model.Severity `json:"severity"`
}

// Host is the environment that can display notifications, such as a
// connected dashboard.
type Host interface {
	Permission() model.Permission
	// Prompt asks the operator for permission and blocks until they
	// answer or ctx ends.
	Prompt(ctx context.Context) (model.Permission, error)
	Show(ctx context.Context, n Notification) error
}

// NotificationFor builds the host notification for alert. Critical alerts
// stay on screen until dismissed.
func NotificationFor(alert model.Alert) Notification {
	return Notification{
		Title:              alert.Title,
		Body:               alert.Message,
		Tag:                alert.ID,
		RequireInteraction: alert.Severity == model.SeverityCritical,
		Severity:           alert.Severity,
	}
}
