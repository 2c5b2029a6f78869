package notify

import (
	"context"

	"smartalerts/internal/model"
)

type BrowserSender struct {
	host Host
}

func NewBrowserSender(host Host) *BrowserSender {
	return &BrowserSender{host: host}
}

// Deliver shows the alert only when the host already granted permission.
func (b *BrowserSender) Deliver(ctx context.Context, alert model.Alert) error {
	if b.host == nil || b.host.Permission() != model.PermissionGranted {
		return ErrSkipped
	}
	return b.host.Show(ctx, NotificationFor(alert))
}
