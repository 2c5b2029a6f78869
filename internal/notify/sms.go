package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"smartalerts/internal/config"
	"smartalerts/internal/model"
)

// SMSSender posts alerts to an HTTP SMS gateway.
type SMSSender struct {
	endpoint string
	token    string
	to       []string
	client   *http.Client
}

type smsRequest struct {
	To       []string `json:"to"`
	Message  string   `json:"message"`
	AlertID  string   `json:"alert_id"`
	Severity string   `json:"severity"`
}

func NewSMSSender(cfg config.SMSConfig) *SMSSender {
	return &SMSSender{
		endpoint: cfg.Endpoint,
		token:    cfg.Token,
		to:       cfg.To,
		client:   &http.Client{Timeout: cfg.Timeout},
	}
}

func (s *SMSSender) Deliver(ctx context.Context, alert model.Alert) error {
	body, err := json.Marshal(smsRequest{
		To:       s.to,
		Message:  alert.Title + ": " + alert.Message,
		AlertID:  alert.ID,
		Severity: string(alert.Severity),
	})
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("sms: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if s.token != "" {
		req.Header.Set("Authorization", "Bearer "+s.token)
	}
	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("sms: %w", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 1<<16))
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("sms: gateway returned %s", resp.Status)
	}
	return nil
}
