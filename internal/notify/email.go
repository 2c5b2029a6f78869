package notify

import (
	"context"
	"errors"
	"fmt"
	"mime"
	"net"
	"net/smtp"
	"strconv"
	"strings"
	"time"

	"smartalerts/internal/config"
	"smartalerts/internal/model"
)

type EmailSender struct {
	addr     string
	auth     smtp.Auth
	from     string
	to       []string
	sendMail func(addr string, a smtp.Auth, from string, to []string, msg []byte) error
}

func NewEmailSender(cfg config.EmailConfig) *EmailSender {
	var auth smtp.Auth
	if cfg.Username != "" {
		auth = smtp.PlainAuth("", cfg.Username, cfg.Password, cfg.Host)
	}
	return &EmailSender{
		addr:     net.JoinHostPort(cfg.Host, strconv.Itoa(cfg.Port)),
		auth:     auth,
		from:     cfg.From,
		to:       cfg.To,
		sendMail: smtp.SendMail,
	}
}

func (e *EmailSender) Deliver(ctx context.Context, alert model.Alert) error {
	if len(e.to) == 0 {
		return errors.New("email: no recipients configured")
	}
	msg := e.compose(alert)
	done := make(chan error, 1)
	go func() { done <- e.sendMail(e.addr, e.auth, e.from, e.to, msg) }()
	select {
	case err := <-done:
		if err != nil {
			return fmt.Errorf("email: %w", err)
		}
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (e *EmailSender) compose(alert model.Alert) []byte {
	var b strings.Builder
	fmt.Fprintf(&b, "From: %s\r\n", headerValue(e.from))
	fmt.Fprintf(&b, "To: %s\r\n", headerValue(strings.Join(e.to, ", ")))
	subject := fmt.Sprintf("[%s] %s", strings.ToUpper(string(alert.Severity)), headerValue(alert.Title))
	fmt.Fprintf(&b, "Subject: %s\r\n", mime.QEncoding.Encode("utf-8", subject))
	fmt.Fprintf(&b, "Date: %s\r\n", alert.Timestamp.Format(time.RFC1123Z))
	b.WriteString("MIME-Version: 1.0\r\n")
	b.WriteString("Content-Type: text/plain; charset=UTF-8\r\n")
	b.WriteString("\r\n")
	b.WriteString(alert.Message)
	b.WriteString("\r\n")
	fmt.Fprintf(&b, "\r\nAlert ID: %s\r\nThreshold ID: %s\r\n", alert.ID, alert.ThresholdID)
	return []byte(b.String())
}

var headerBreaks = strings.NewReplacer("\r\n", " ", "\r", " ", "\n", " ")

// headerValue folds line breaks so a value cannot start a new header.
func headerValue(s string) string {
	return headerBreaks.Replace(s)
}
