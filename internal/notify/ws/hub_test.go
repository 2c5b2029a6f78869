package ws

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"nhooyr.io/websocket"

	"smartalerts/internal/model"
	"smartalerts/internal/notify"
)

func dial(t *testing.T, h *Hub) (*websocket.Conn, func()) {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(h.HandleWS))
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, _, err := websocket.Dial(ctx, url, nil)
	if err != nil {
		srv.Close()
		t.Fatalf("dial: %v", err)
	}
	waitFor(t, func() bool { return h.Clients() == 1 })
	return conn, func() {
		conn.Close(websocket.StatusNormalClosure, "")
		srv.Close()
	}
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met before deadline")
}

func readFrame(t *testing.T, conn *websocket.Conn) frame {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_, data, err := conn.Read(ctx)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	var f frame
	if err := json.Unmarshal(data, &f); err != nil {
		t.Fatalf("decode: %v", err)
	}
	return f
}

func TestNoClientsIsUnsupported(t *testing.T) {
	h := NewHub(zerolog.Nop())
	if got := h.Permission(); got != model.PermissionUnsupported {
		t.Fatalf("got %s, want unsupported", got)
	}
	p, err := h.Prompt(context.Background())
	if err != nil || p != model.PermissionUnsupported {
		t.Fatalf("prompt: got %s, %v", p, err)
	}
	if err := h.Show(context.Background(), notify.Notification{Title: "x"}); !errors.Is(err, ErrNoClients) {
		t.Fatalf("expected ErrNoClients, got %v", err)
	}
}

func TestPromptReceivesDashboardAnswer(t *testing.T) {
	h := NewHub(zerolog.Nop())
	conn, closeFn := dial(t, h)
	defer closeFn()

	if got := h.Permission(); got != model.PermissionDefault {
		t.Fatalf("got %s, want default", got)
	}

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_, data, err := conn.Read(ctx)
		if err != nil {
			return
		}
		var f frame
		if json.Unmarshal(data, &f) != nil || f.Type != "permission_request" {
			return
		}
		reply, _ := json.Marshal(frame{Type: "permission", State: model.PermissionGranted})
		_ = conn.Write(ctx, websocket.MessageText, reply)
	}()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	p, err := h.Prompt(ctx)
	if err != nil {
		t.Fatalf("prompt: %v", err)
	}
	if p != model.PermissionGranted {
		t.Fatalf("got %s, want granted", p)
	}
	if h.Permission() != model.PermissionGranted {
		t.Fatalf("permission not remembered: %s", h.Permission())
	}
}

func TestPromptTimesOut(t *testing.T) {
	h := NewHub(zerolog.Nop())
	_, closeFn := dial(t, h)
	defer closeFn()

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	p, err := h.Prompt(ctx)
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline exceeded, got %v", err)
	}
	if p != model.PermissionDefault {
		t.Fatalf("got %s, want default", p)
	}
}

func TestShowPushesNotification(t *testing.T) {
	h := NewHub(zerolog.Nop())
	conn, closeFn := dial(t, h)
	defer closeFn()

	n := notify.Notification{
		Title:              "High Price",
		Body:               "High Price: price = 150 (severity: Critical)",
		Tag:                "alert-1",
		RequireInteraction: true,
		Severity:           model.SeverityCritical,
	}
	if err := h.Show(context.Background(), n); err != nil {
		t.Fatalf("show: %v", err)
	}
	f := readFrame(t, conn)
	if f.Type != "notification" || f.Notification == nil {
		t.Fatalf("unexpected frame %+v", f)
	}
	if *f.Notification != n {
		t.Fatalf("got %+v, want %+v", *f.Notification, n)
	}
}

func TestDisconnectUnregisters(t *testing.T) {
	h := NewHub(zerolog.Nop())
	conn, closeFn := dial(t, h)
	defer closeFn()
	conn.Close(websocket.StatusNormalClosure, "")
	waitFor(t, func() bool { return h.Clients() == 0 })
	if h.Permission() != model.PermissionUnsupported {
		t.Fatalf("expected unsupported after disconnect, got %s", h.Permission())
	}
}
