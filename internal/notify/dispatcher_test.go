package notify

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"smartalerts/internal/model"
	"smartalerts/internal/storage"
)

type fakeHost struct {
	mu         sync.Mutex
	permission model.Permission
	answer     model.Permission
	prompts    int
	shown      []Notification
	showErr    error
}

func (h *fakeHost) Permission() model.Permission {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.permission
}

func (h *fakeHost) Prompt(context.Context) (model.Permission, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.prompts++
	h.permission = h.answer
	return h.answer, nil
}

func (h *fakeHost) Show(_ context.Context, n Notification) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.showErr != nil {
		return h.showErr
	}
	h.shown = append(h.shown, n)
	return nil
}

type recordingSender struct {
	mu    sync.Mutex
	got   []model.Alert
	err   error
	panic bool
}

func (r *recordingSender) Deliver(_ context.Context, alert model.Alert) error {
	if r.panic {
		panic("sender exploded")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.got = append(r.got, alert)
	return r.err
}

func (r *recordingSender) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.got)
}

func testAlert(severity model.Severity) model.Alert {
	return model.Alert{
		ID:          "alert-1",
		ThresholdID: "th-1",
		Title:       "High Price",
		Message:     "High Price: price = 150 (severity: High)",
		Severity:    severity,
		Timestamp:   time.Unix(1700000000, 0).UTC(),
	}
}

func TestDefaultSettings(t *testing.T) {
	d := NewDispatcher(storage.NewMemory(), Options{Logger: zerolog.Nop()})
	got := d.Settings(context.Background())
	want := model.DefaultNotificationSettings()
	if len(got) != len(want) {
		t.Fatalf("expected %d settings, got %d", len(want), len(got))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("setting %d: got %+v, want %+v", i, got[i], want[i])
		}
	}
}

func TestUpdateSettingsPersists(t *testing.T) {
	ctx := context.Background()
	kv := storage.NewMemory()
	d := NewDispatcher(kv, Options{Logger: zerolog.Nop()})
	if _, err := d.UpdateSettings(ctx, model.ChannelEmail, true); err != nil {
		t.Fatalf("update: %v", err)
	}
	if _, err := d.UpdateSettings(ctx, model.ChannelBrowser, false); err != nil {
		t.Fatalf("update: %v", err)
	}

	reopened := NewDispatcher(kv, Options{Logger: zerolog.Nop()})
	got := reopened.Settings(ctx)
	want := map[model.Channel]bool{
		model.ChannelBrowser: false,
		model.ChannelEmail:   true,
		model.ChannelSMS:     false,
	}
	if len(got) != 3 {
		t.Fatalf("expected 3 settings, got %d", len(got))
	}
	for _, s := range got {
		if want[s.Type] != s.Enabled {
			t.Fatalf("%s: got enabled=%v", s.Type, s.Enabled)
		}
	}
}

func TestUpdateSettingsUnknownChannel(t *testing.T) {
	d := NewDispatcher(storage.NewMemory(), Options{Logger: zerolog.Nop()})
	_, err := d.UpdateSettings(context.Background(), model.Channel("pager"), true)
	if !errors.Is(err, model.ErrUnknownChannel) {
		t.Fatalf("expected ErrUnknownChannel, got %v", err)
	}
}

func TestDispatchOnlyEnabledChannels(t *testing.T) {
	ctx := context.Background()
	email := &recordingSender{}
	sms := &recordingSender{}
	d := NewDispatcher(storage.NewMemory(), Options{
		Logger:  zerolog.Nop(),
		Senders: map[model.Channel]Sender{model.ChannelEmail: email, model.ChannelSMS: sms},
	})
	if _, err := d.UpdateSettings(ctx, model.ChannelEmail, true); err != nil {
		t.Fatalf("update: %v", err)
	}

	d.Dispatch(ctx, testAlert(model.SeverityHigh))
	d.Wait()

	if email.count() != 1 {
		t.Fatalf("expected one email, got %d", email.count())
	}
	if sms.count() != 0 {
		t.Fatalf("expected no sms, got %d", sms.count())
	}
}

func TestDispatchIsolatesFailingChannel(t *testing.T) {
	ctx := context.Background()
	host := &fakeHost{permission: model.PermissionGranted}
	email := &recordingSender{err: errors.New("smtp down")}
	sms := &recordingSender{panic: true}
	d := NewDispatcher(storage.NewMemory(), Options{
		Logger:  zerolog.Nop(),
		Host:    host,
		Senders: map[model.Channel]Sender{model.ChannelEmail: email, model.ChannelSMS: sms},
	})
	for _, ch := range model.Channels {
		if _, err := d.UpdateSettings(ctx, ch, true); err != nil {
			t.Fatalf("update %s: %v", ch, err)
		}
	}

	d.Dispatch(ctx, testAlert(model.SeverityCritical))
	d.Wait()

	host.mu.Lock()
	defer host.mu.Unlock()
	if len(host.shown) != 1 {
		t.Fatalf("expected browser notification despite other failures, got %d", len(host.shown))
	}
	n := host.shown[0]
	if n.Tag != "alert-1" || !n.RequireInteraction {
		t.Fatalf("unexpected notification %+v", n)
	}
}

func TestBrowserWithoutPermissionIsSkipped(t *testing.T) {
	host := &fakeHost{permission: model.PermissionDefault}
	d := NewDispatcher(storage.NewMemory(), Options{Logger: zerolog.Nop(), Host: host})
	d.Dispatch(context.Background(), testAlert(model.SeverityLow))
	d.Wait()
	if len(host.shown) != 0 {
		t.Fatalf("expected nothing shown, got %d", len(host.shown))
	}
	if host.prompts != 0 {
		t.Fatalf("dispatch must not prompt, got %d prompts", host.prompts)
	}
}

func TestNonCriticalDoesNotRequireInteraction(t *testing.T) {
	n := NotificationFor(testAlert(model.SeverityHigh))
	if n.RequireInteraction {
		t.Fatal("high severity should not require interaction")
	}
	if n.Title != "High Price" || n.Body == "" {
		t.Fatalf("unexpected notification %+v", n)
	}
}

func TestSinkReceivesEveryAlert(t *testing.T) {
	ctx := context.Background()
	feed := &recordingSender{}
	d := NewDispatcher(storage.NewMemory(), Options{Logger: zerolog.Nop()})
	d.AddSink("feed", feed)
	for _, ch := range model.Channels {
		if _, err := d.UpdateSettings(ctx, ch, false); err != nil {
			t.Fatalf("update: %v", err)
		}
	}
	d.Dispatch(ctx, testAlert(model.SeverityMedium))
	d.Dispatch(ctx, testAlert(model.SeverityMedium))
	d.Wait()
	if feed.count() != 2 {
		t.Fatalf("expected 2 feed deliveries, got %d", feed.count())
	}
}

func TestDispatchOutlivesCallerContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	var seenErr error
	var mu sync.Mutex
	block := make(chan struct{})
	sender := SenderFunc(func(ctx context.Context, _ model.Alert) error {
		<-block
		mu.Lock()
		seenErr = ctx.Err()
		mu.Unlock()
		return nil
	})
	d := NewDispatcher(storage.NewMemory(), Options{Logger: zerolog.Nop()})
	d.AddSink("slow", sender)
	d.Dispatch(ctx, testAlert(model.SeverityLow))
	cancel()
	close(block)
	d.Wait()
	mu.Lock()
	defer mu.Unlock()
	if seenErr != nil {
		t.Fatalf("delivery context cancelled with caller: %v", seenErr)
	}
}

func TestRequestPermission(t *testing.T) {
	tests := []struct {
		name        string
		host        *fakeHost
		want        model.Permission
		wantPrompts int
	}{
		{name: "no host", host: nil, want: model.PermissionUnsupported},
		{name: "unsupported", host: &fakeHost{permission: model.PermissionUnsupported}, want: model.PermissionUnsupported},
		{name: "already granted", host: &fakeHost{permission: model.PermissionGranted}, want: model.PermissionGranted},
		{name: "denied never reprompts", host: &fakeHost{permission: model.PermissionDenied, answer: model.PermissionGranted}, want: model.PermissionDenied},
		{name: "prompt granted", host: &fakeHost{permission: model.PermissionDefault, answer: model.PermissionGranted}, want: model.PermissionGranted, wantPrompts: 1},
		{name: "prompt denied", host: &fakeHost{permission: model.PermissionDefault, answer: model.PermissionDenied}, want: model.PermissionDenied, wantPrompts: 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			opts := Options{Logger: zerolog.Nop()}
			if tt.host != nil {
				opts.Host = tt.host
			}
			d := NewDispatcher(storage.NewMemory(), opts)
			if got := d.RequestPermission(context.Background()); got != tt.want {
				t.Fatalf("got %s, want %s", got, tt.want)
			}
			if tt.host != nil && tt.host.prompts != tt.wantPrompts {
				t.Fatalf("prompts: got %d, want %d", tt.host.prompts, tt.wantPrompts)
			}
		})
	}
}
