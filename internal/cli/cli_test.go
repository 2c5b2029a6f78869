package cli

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"smartalerts/internal/config"
	"smartalerts/internal/model"
)

func writeConfig(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "smartalerts.yaml")
	content := "log_level: error\n" +
		"storage:\n" +
		"  driver: sqlite\n" +
		"  dsn: " + filepath.Join(dir, "alerts.db") + "\n"
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func run(t *testing.T, stdin string, args ...string) (string, error) {
	t.Helper()
	cmd := NewRootCmd("test")
	var out, errOut bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&errOut)
	cmd.SetIn(strings.NewReader(stdin))
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestVersion(t *testing.T) {
	out, err := run(t, "", "version")
	if err != nil {
		t.Fatalf("version: %v", err)
	}
	if strings.TrimSpace(out) != "smartalerts test" {
		t.Fatalf("unexpected output %q", out)
	}
}

func TestThresholdsCheckAndAlerts(t *testing.T) {
	cfg := writeConfig(t)

	out, err := run(t, "", "-c", cfg, "thresholds", "add",
		"--name", "High Price", "--field", "price", "--operator", "greaterThan",
		"--value", "2000", "--severity", "high")
	if err != nil {
		t.Fatalf("add: %v", err)
	}
	if !strings.Contains(out, "Added threshold") {
		t.Fatalf("unexpected add output %q", out)
	}

	out, err = run(t, "", "-c", cfg, "thresholds", "list")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if !strings.Contains(out, "High Price") || !strings.Contains(out, "greaterThan") {
		t.Fatalf("unexpected list output %q", out)
	}

	records := filepath.Join(t.TempDir(), "records.json")
	if err := os.WriteFile(records, []byte(`[{"id":"1","price":1500},{"id":"2","price":2500},{"id":"3","price":800}]`), 0o644); err != nil {
		t.Fatalf("write records: %v", err)
	}
	out, err = run(t, "", "-c", cfg, "check", "--file", records)
	if err != nil {
		t.Fatalf("check: %v", err)
	}
	var created []model.Alert
	if err := json.Unmarshal([]byte(out), &created); err != nil {
		t.Fatalf("decode check output: %v\n%s", err, out)
	}
	if len(created) != 1 || !strings.Contains(created[0].Message, "2500") {
		t.Fatalf("unexpected alerts %+v", created)
	}

	out, err = run(t, `{"price": 900}`, "-c", cfg, "check")
	if err != nil {
		t.Fatalf("check stdin: %v", err)
	}
	if strings.TrimSpace(out) != "[]" {
		t.Fatalf("expected no alerts, got %q", out)
	}

	out, err = run(t, "", "-c", cfg, "alerts", "list", "--unread")
	if err != nil {
		t.Fatalf("alerts list: %v", err)
	}
	if !strings.Contains(out, created[0].ID) {
		t.Fatalf("alert missing from list %q", out)
	}

	if _, err := run(t, "", "-c", cfg, "alerts", "read", "--all"); err != nil {
		t.Fatalf("alerts read: %v", err)
	}
	out, err = run(t, "", "-c", cfg, "alerts", "list", "--unread")
	if err != nil {
		t.Fatalf("alerts list: %v", err)
	}
	if !strings.Contains(out, "No alerts.") {
		t.Fatalf("expected no unread alerts, got %q", out)
	}

	if _, err := run(t, "", "-c", cfg, "alerts", "clear"); err != nil {
		t.Fatalf("alerts clear: %v", err)
	}
	out, _ = run(t, "", "-c", cfg, "alerts", "list")
	if !strings.Contains(out, "No alerts.") {
		t.Fatalf("expected empty alert list, got %q", out)
	}
}

func TestThresholdsAddRejectsInvalid(t *testing.T) {
	cfg := writeConfig(t)
	_, err := run(t, "", "-c", cfg, "thresholds", "add",
		"--name", "Bad", "--field", "price", "--operator", "above", "--value", "1")
	if err == nil {
		t.Fatal("expected error for unknown operator")
	}
}

func TestParseOperand(t *testing.T) {
	tests := []struct {
		in   string
		want any
	}{
		{"2000", float64(2000)},
		{"-1.5", -1.5},
		{"active", "active"},
		{"", ""},
		{"NaN", "NaN"},
		{"Inf", "Inf"},
		{"-infinity", "-infinity"},
		{"1e500", "1e500"},
	}
	for _, tt := range tests {
		if got := parseOperand(tt.in); got != tt.want {
			t.Fatalf("parseOperand(%q) = %#v, want %#v", tt.in, got, tt.want)
		}
	}
}

func TestCheckRejectsBadInput(t *testing.T) {
	cfg := writeConfig(t)
	if _, err := run(t, "not json", "-c", cfg, "check"); err == nil {
		t.Fatal("expected decode error")
	}
}

func TestThresholdsAddKeepsNonNumericOperand(t *testing.T) {
	cfg := writeConfig(t)
	if _, err := run(t, "", "-c", cfg, "thresholds", "add",
		"--name", "Status", "--field", "status", "--operator", "equals", "--value", "Inf"); err != nil {
		t.Fatalf("add: %v", err)
	}
	out, err := run(t, "", "-c", cfg, "thresholds", "list")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if !strings.Contains(out, "Status") || !strings.Contains(out, "Inf") {
		t.Fatalf("threshold was not stored: %q", out)
	}
}

func TestConfigInit(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "generated.yaml")

	out, err := run(t, "", "config", "init", path)
	if err != nil {
		t.Fatalf("init: %v", err)
	}
	if !strings.Contains(out, path) {
		t.Fatalf("unexpected output %q", out)
	}
	cfg, err := config.Load(path)
	if err != nil {
		t.Fatalf("load generated config: %v", err)
	}
	if cfg.Monitoring.Interval != config.DefaultConfig().Monitoring.Interval || cfg.Storage.Driver != "sqlite" {
		t.Fatalf("generated config lost defaults: %+v", cfg)
	}

	if _, err := run(t, "", "config", "init", path); err == nil {
		t.Fatal("expected refusal to overwrite")
	}
	if _, err := run(t, "", "config", "init", "--force", path); err != nil {
		t.Fatalf("forced init: %v", err)
	}

	jsonPath := filepath.Join(dir, "generated.json")
	if _, err := run(t, "", "-c", jsonPath, "config", "init"); err != nil {
		t.Fatalf("init json: %v", err)
	}
	if _, err := config.Load(jsonPath); err != nil {
		t.Fatalf("load json config: %v", err)
	}
}
