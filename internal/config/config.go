package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	LogLevel      string              `json:"log_level" yaml:"log_level"`
	LogPretty     bool                `json:"log_pretty" yaml:"log_pretty"`
	Storage       StorageConfig       `json:"storage" yaml:"storage"`
	Alerts        AlertsConfig        `json:"alerts" yaml:"alerts"`
	Monitoring    MonitoringConfig    `json:"monitoring" yaml:"monitoring"`
	Notifications NotificationsConfig `json:"notifications" yaml:"notifications"`
	Feed          FeedConfig          `json:"feed" yaml:"feed"`
	Ingest        IngestConfig        `json:"ingest" yaml:"ingest"`
	API           APIConfig           `json:"api" yaml:"api"`
}

type StorageConfig struct {
	Driver string `json:"driver" yaml:"driver"`
	DSN    string `json:"dsn" yaml:"dsn"`
}

type AlertsConfig struct {
	StoreLimit    int    `json:"store_limit" yaml:"store_limit"`
	Locale        string `json:"locale" yaml:"locale"`
	StrictBetween bool   `json:"strict_between" yaml:"strict_between"`
}

type MonitoringConfig struct {
	Interval    time.Duration `json:"interval" yaml:"interval"`
	TickTimeout time.Duration `json:"tick_timeout" yaml:"tick_timeout"`
}

type NotificationsConfig struct {
	Browser BrowserConfig `json:"browser" yaml:"browser"`
	Email   EmailConfig   `json:"email" yaml:"email"`
	SMS     SMSConfig     `json:"sms" yaml:"sms"`
}

type BrowserConfig struct {
	Enabled       bool          `json:"enabled" yaml:"enabled"`
	PromptTimeout time.Duration `json:"prompt_timeout" yaml:"prompt_timeout"`
}

type EmailConfig struct {
	Enabled  bool     `json:"enabled" yaml:"enabled"`
	Host     string   `json:"host" yaml:"host"`
	Port     int      `json:"port" yaml:"port"`
	Username string   `json:"username" yaml:"username"`
	Password string   `json:"password" yaml:"password"`
	From     string   `json:"from" yaml:"from"`
	To       []string `json:"to" yaml:"to"`
}

type SMSConfig struct {
	Enabled  bool          `json:"enabled" yaml:"enabled"`
	Endpoint string        `json:"endpoint" yaml:"endpoint"`
	Token    string        `json:"token" yaml:"token"`
	To       []string      `json:"to" yaml:"to"`
	Timeout  time.Duration `json:"timeout" yaml:"timeout"`
}

type FeedConfig struct {
	Kafka KafkaWriterConfig `json:"kafka" yaml:"kafka"`
}

type KafkaWriterConfig struct {
	Enabled      bool          `json:"enabled" yaml:"enabled"`
	Brokers      []string      `json:"brokers" yaml:"brokers"`
	Topic        string        `json:"topic" yaml:"topic"`
	MaxRetries   int           `json:"max_retries" yaml:"max_retries"`
	RetryBackoff time.Duration `json:"retry_backoff" yaml:"retry_backoff"`
	WriteTimeout time.Duration `json:"write_timeout" yaml:"write_timeout"`
}

type IngestConfig struct {
	Kafka    KafkaReaderConfig `json:"kafka" yaml:"kafka"`
	FileTail FileTailConfig    `json:"file_tail" yaml:"file_tail"`
}

type KafkaReaderConfig struct {
	Enabled bool     `json:"enabled" yaml:"enabled"`
	Brokers []string `json:"brokers" yaml:"brokers"`
	Topic   string   `json:"topic" yaml:"topic"`
	GroupID string   `json:"group_id" yaml:"group_id"`
}

type FileTailConfig struct {
	Enabled    bool     `json:"enabled" yaml:"enabled"`
	Files      []string `json:"files" yaml:"files"`
	StartAtEnd bool     `json:"start_at_end" yaml:"start_at_end"`
}

type APIConfig struct {
	Enabled bool   `json:"enabled" yaml:"enabled"`
	Addr    string `json:"addr" yaml:"addr"`
}

func DefaultConfig() *Config {
	return &Config{
		LogLevel: "info",
		Storage:  StorageConfig{Driver: "sqlite", DSN: "file:smartalerts.db?_pragma=busy_timeout(5000)"},
		Alerts:   AlertsConfig{StoreLimit: 100, Locale: "en"},
		Monitoring: MonitoringConfig{
			Interval:    60 * time.Second,
			TickTimeout: 30 * time.Second,
		},
		Notifications: NotificationsConfig{
			Browser: BrowserConfig{Enabled: true, PromptTimeout: 30 * time.Second},
			Email:   EmailConfig{Port: 587},
			SMS:     SMSConfig{Timeout: 10 * time.Second},
		},
		Feed: FeedConfig{Kafka: KafkaWriterConfig{
			Topic:        "smartalerts.alerts",
			MaxRetries:   3,
			RetryBackoff: 100 * time.Millisecond,
			WriteTimeout: 10 * time.Second,
		}},
		Ingest: IngestConfig{Kafka: KafkaReaderConfig{Topic: "smartalerts.records", GroupID: "smartalerts"}},
		API:    APIConfig{Enabled: true, Addr: ":8080"},
	}
}

func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	content, err := io.ReadAll(f)
	if err != nil {
		return nil, err
	}
	cfg := DefaultConfig()

	trimmed := strings.TrimSpace(string(content))
	if len(trimmed) == 0 {
		return nil, errors.New("config file is empty")
	}
	var decodeErr error
	if looksLikeJSON(trimmed) {
		decodeErr = json.Unmarshal([]byte(trimmed), cfg)
	} else {
		decodeErr = yaml.Unmarshal([]byte(trimmed), cfg)
	}
	if decodeErr != nil {
		return nil, decodeErr
	}
	applyDefaults(cfg)
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadOrDefault loads path when set, otherwise returns the defaults.
func LoadOrDefault(path string) (*Config, error) {
	if path == "" {
		return DefaultConfig(), nil
	}
	return Load(path)
}

func Save(path string, cfg *Config) error {
	if path == "" || cfg == nil {
		return errors.New("config path or config is empty")
	}
	var data []byte
	var err error
	ext := strings.ToLower(filepath.Ext(path))
	if ext == ".json" {
		data, err = json.MarshalIndent(cfg, "", "  ")
	} else {
		data, err = yaml.Marshal(cfg)
	}
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

func looksLikeJSON(s string) bool {
	for _, ch := range s {
		if ch == '{' || ch == '[' {
			return true
		}
		if ch > ' ' {
			return false
		}
	}
	return false
}

func applyDefaults(cfg *Config) {
	if cfg.Alerts.StoreLimit <= 0 {
		cfg.Alerts.StoreLimit = 100
	}
	if cfg.Alerts.Locale == "" {
		cfg.Alerts.Locale = "en"
	}
	if cfg.Storage.Driver == "" {
		cfg.Storage.Driver = "sqlite"
	}
	if cfg.Monitoring.Interval <= 0 {
		cfg.Monitoring.Interval = 60 * time.Second
	}
	if cfg.Monitoring.TickTimeout <= 0 {
		cfg.Monitoring.TickTimeout = 30 * time.Second
	}
	if cfg.Notifications.Browser.PromptTimeout <= 0 {
		cfg.Notifications.Browser.PromptTimeout = 30 * time.Second
	}
	if cfg.Notifications.Email.Port == 0 {
		cfg.Notifications.Email.Port = 587
	}
	if cfg.Notifications.SMS.Timeout <= 0 {
		cfg.Notifications.SMS.Timeout = 10 * time.Second
	}
	if cfg.Feed.Kafka.RetryBackoff <= 0 {
		cfg.Feed.Kafka.RetryBackoff = 100 * time.Millisecond
	}
	if cfg.Feed.Kafka.WriteTimeout <= 0 {
		cfg.Feed.Kafka.WriteTimeout = 10 * time.Second
	}
}

func Validate(cfg *Config) error {
	switch strings.ToLower(cfg.Storage.Driver) {
	case "memory", "sqlite", "postgres", "postgresql":
	default:
		return fmt.Errorf("storage.driver %q not supported", cfg.Storage.Driver)
	}
	switch cfg.Alerts.Locale {
	case "en", "ar":
	default:
		return fmt.Errorf("alerts.locale %q not supported", cfg.Alerts.Locale)
	}
	if cfg.API.Enabled && cfg.API.Addr == "" {
		return errors.New("api.addr required when api.enabled is true")
	}
	if cfg.Notifications.Email.Enabled {
		if cfg.Notifications.Email.Host == "" || cfg.Notifications.Email.From == "" || len(cfg.Notifications.Email.To) == 0 {
			return errors.New("notifications.email requires host, from, to")
		}
	}
	if cfg.Notifications.SMS.Enabled {
		if cfg.Notifications.SMS.Endpoint == "" || len(cfg.Notifications.SMS.To) == 0 {
			return errors.New("notifications.sms requires endpoint, to")
		}
	}
	if cfg.Feed.Kafka.Enabled {
		if len(cfg.Feed.Kafka.Brokers) == 0 || cfg.Feed.Kafka.Topic == "" {
			return errors.New("feed.kafka requires brokers, topic")
		}
	}
	if cfg.Ingest.Kafka.Enabled {
		if len(cfg.Ingest.Kafka.Brokers) == 0 || cfg.Ingest.Kafka.Topic == "" || cfg.Ingest.Kafka.GroupID == "" {
			return errors.New("ingest.kafka requires brokers, topic, group_id")
		}
	}
	if cfg.Ingest.FileTail.Enabled && len(cfg.Ingest.FileTail.Files) == 0 {
		return errors.New("ingest.file_tail requires files")
	}
	return nil
}

type Manager struct {
	path    string
	cfg     atomic.Value
	modTime time.Time
}

func NewManager(path string) (*Manager, error) {
	cfg, err := Load(path)
	if err != nil {
		return nil, err
	}
	m := &Manager{path: path}
	m.cfg.Store(cfg)
	info, err := os.Stat(path)
	if err == nil {
		m.modTime = info.ModTime()
	}
	return m, nil
}

// NewStaticManager wraps an in-memory config; Reload and Watch are no-ops.
func NewStaticManager(cfg *Config) *Manager {
	m := &Manager{}
	m.cfg.Store(cfg)
	return m
}

func (m *Manager) Get() *Config {
	if v := m.cfg.Load(); v != nil {
		return v.(*Config)
	}
	return DefaultConfig()
}

func (m *Manager) Path() string {
	return m.path
}

func (m *Manager) Reload() (*Config, error) {
	if m.path == "" {
		return m.Get(), nil
	}
	cfg, err := Load(m.path)
	if err != nil {
		return nil, err
	}
	m.cfg.Store(cfg)
	if info, err := os.Stat(m.path); err == nil {
		m.modTime = info.ModTime()
	}
	return cfg, nil
}

func (m *Manager) NeedsReload() (bool, error) {
	if m.path == "" {
		return false, nil
	}
	info, err := os.Stat(m.path)
	if err != nil {
		return false, err
	}
	return info.ModTime().After(m.modTime), nil
}

func (m *Manager) Watch(interval time.Duration, onReload func(*Config), onError func(error), stop <-chan struct{}) {
	if interval <= 0 {
		interval = 3 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			needs, err := m.NeedsReload()
			if err != nil {
				if onError != nil {
					onError(err)
				}
				continue
			}
			if !needs {
				continue
			}
			cfg, err := m.Reload()
			if err != nil {
				if onError != nil {
					onError(err)
				}
				continue
			}
			if onReload != nil {
				onReload(cfg)
			}
		case <-stop:
			return
		}
	}
}

func ResolvePath(path string) string {
	if path == "" {
		return path
	}
	if filepath.IsAbs(path) {
		return path
	}
	cwd, err := os.Getwd()
	if err != nil {
		return path
	}
	return filepath.Join(cwd, path)
}
