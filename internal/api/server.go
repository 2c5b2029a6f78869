package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"smartalerts/internal/ingest"
	"smartalerts/internal/model"
	"smartalerts/internal/service"
)

const maxBodyBytes = 2 << 20

// Service is what the HTTP layer needs from the alerting service.
type Service interface {
	AddThreshold(ctx context.Context, spec model.ThresholdSpec) (model.Threshold, error)
	GetThresholds(ctx context.Context) []model.Threshold
	GetThreshold(ctx context.Context, id string) (model.Threshold, error)
	UpdateThreshold(ctx context.Context, id string, patch model.ThresholdPatch) (model.Threshold, error)
	DeleteThreshold(ctx context.Context, id string) error
	CheckData(ctx context.Context, records []model.Record) ([]model.Alert, error)
	GetAlerts(ctx context.Context, unreadOnly bool) []model.Alert
	MarkAsRead(ctx context.Context, id string)
	MarkAllAsRead(ctx context.Context)
	DeleteAlert(ctx context.Context, id string)
	ClearAlerts(ctx context.Context)
	RequestNotificationPermission(ctx context.Context) model.Permission
	GetNotificationSettings(ctx context.Context) []model.NotificationSetting
	UpdateNotificationSettings(ctx context.Context, channel model.Channel, enabled bool) ([]model.NotificationSetting, error)
	StartMonitoring(records []model.Record, interval time.Duration) error
	StopMonitoring()
	Status(ctx context.Context) service.Status
}

type Options struct {
	Logger  zerolog.Logger
	Version string
	// WS serves dashboard connections at /ws when set.
	WS http.Handler
	// PermissionTimeout bounds how long a permission request waits for a
	// dashboard to answer.
	PermissionTimeout time.Duration
	// DefaultInterval is used by POST /monitoring/start when the request
	// names no interval.
	DefaultInterval time.Duration
}

type Server struct {
	svc               Service
	ws                http.Handler
	logger            zerolog.Logger
	version           string
	permissionTimeout time.Duration
	defaultInterval   time.Duration
	started           time.Time
}

type statusResponse struct {
	Status  string         `json:"status"`
	Time    string         `json:"time"`
	Version string         `json:"version"`
	Uptime  string         `json:"uptime"`
	Service service.Status `json:"service"`
}

type thresholdRequest struct {
	Name     string         `json:"name"`
	Field    string         `json:"field"`
	Operator model.Operator `json:"operator"`
	Value    any            `json:"value"`
	MaxValue any            `json:"maxValue"`
	Severity model.Severity `json:"severity"`
	Enabled  *bool          `json:"enabled"`
}

type settingRequest struct {
	Type    model.Channel `json:"type"`
	Enabled bool          `json:"enabled"`
}

type monitoringRequest struct {
	Records    []model.Record `json:"records"`
	Interval   string         `json:"interval"`
	IntervalMs *int64         `json:"intervalMs"`
}

func NewServer(svc Service, opts Options) *Server {
	s := &Server{
		svc:               svc,
		ws:                opts.WS,
		logger:            opts.Logger,
		version:           opts.Version,
		permissionTimeout: opts.PermissionTimeout,
		defaultInterval:   opts.DefaultInterval,
		started:           time.Now(),
	}
	if s.permissionTimeout <= 0 {
		s.permissionTimeout = 30 * time.Second
	}
	return s
}

func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("GET /status", s.handleStatus)
	mux.Handle("GET /metrics", promhttp.Handler())

	mux.HandleFunc("GET /thresholds", s.handleListThresholds)
	mux.HandleFunc("POST /thresholds", s.handleAddThreshold)
	mux.HandleFunc("GET /thresholds/{id}", s.handleGetThreshold)
	mux.HandleFunc("PATCH /thresholds/{id}", s.handleUpdateThreshold)
	mux.HandleFunc("DELETE /thresholds/{id}", s.handleDeleteThreshold)

	mux.HandleFunc("POST /check", s.handleCheck)

	mux.HandleFunc("GET /alerts", s.handleListAlerts)
	mux.HandleFunc("POST /alerts/read", s.handleMarkAllRead)
	mux.HandleFunc("POST /alerts/{id}/read", s.handleMarkRead)
	mux.HandleFunc("DELETE /alerts/{id}", s.handleDeleteAlert)
	mux.HandleFunc("DELETE /alerts", s.handleClearAlerts)

	mux.HandleFunc("GET /notifications/settings", s.handleGetSettings)
	mux.HandleFunc("PUT /notifications/settings", s.handleUpdateSettings)
	mux.HandleFunc("POST /notifications/permission", s.handlePermission)

	mux.HandleFunc("POST /monitoring/start", s.handleStartMonitoring)
	mux.HandleFunc("POST /monitoring/stop", s.handleStopMonitoring)

	if s.ws != nil {
		mux.Handle("GET /ws", s.ws)
	}
	return Chain(mux, RequestID, Recovery(s.logger), Logging(s.logger))
}

// Start serves handler on addr until ctx ends.
func Start(ctx context.Context, addr string, handler http.Handler, logger zerolog.Logger) *http.Server {
	logger.Info().Str("addr", addr).Msg("api enabled")
	httpServer := &http.Server{Addr: addr, Handler: handler, ReadHeaderTimeout: 10 * time.Second}
	go func() {
		<-ctx.Done()
		ctxShutdown, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = httpServer.Shutdown(ctxShutdown)
	}()
	go func() {
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error().Err(err).Msg("api server error")
		}
	}()
	return httpServer
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, statusResponse{
		Status:  "ok",
		Time:    time.Now().UTC().Format(time.RFC3339Nano),
		Version: s.version,
		Uptime:  time.Since(s.started).Truncate(time.Second).String(),
		Service: s.svc.Status(r.Context()),
	})
}

func (s *Server) handleListThresholds(w http.ResponseWriter, r *http.Request) {
	list := s.svc.GetThresholds(r.Context())
	writeJSON(w, http.StatusOK, map[string]any{"thresholds": list, "count": len(list)})
}

func (s *Server) handleGetThreshold(w http.ResponseWriter, r *http.Request) {
	th, err := s.svc.GetThreshold(r.Context(), r.PathValue("id"))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, th)
}

func (s *Server) handleAddThreshold(w http.ResponseWriter, r *http.Request) {
	var req thresholdRequest
	if !decodeBody(w, r, &req) {
		return
	}
	enabled := true
	if req.Enabled != nil {
		enabled = *req.Enabled
	}
	th, err := s.svc.AddThreshold(r.Context(), model.ThresholdSpec{
		Name:     req.Name,
		Field:    req.Field,
		Operator: req.Operator,
		Value:    req.Value,
		MaxValue: req.MaxValue,
		Severity: req.Severity,
		Enabled:  enabled,
	})
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, th)
}

func (s *Server) handleUpdateThreshold(w http.ResponseWriter, r *http.Request) {
	var patch model.ThresholdPatch
	if !decodeBody(w, r, &patch) {
		return
	}
	th, err := s.svc.UpdateThreshold(r.Context(), r.PathValue("id"), patch)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, th)
}

func (s *Server) handleDeleteThreshold(w http.ResponseWriter, r *http.Request) {
	if err := s.svc.DeleteThreshold(r.Context(), r.PathValue("id")); err != nil {
		writeServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleCheck(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	records, err := ingest.DecodeRecords(body)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	created, err := s.svc.CheckData(r.Context(), records)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	if created == nil {
		created = []model.Alert{}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"alerts":  created,
		"count":   len(created),
		"records": len(records),
	})
}

func (s *Server) handleListAlerts(w http.ResponseWriter, r *http.Request) {
	unread := false
	if v := r.URL.Query().Get("unread"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			writeError(w, http.StatusBadRequest, "unread must be a boolean")
			return
		}
		unread = b
	}
	list := s.svc.GetAlerts(r.Context(), unread)
	writeJSON(w, http.StatusOK, map[string]any{"alerts": list, "count": len(list)})
}

func (s *Server) handleMarkRead(w http.ResponseWriter, r *http.Request) {
	s.svc.MarkAsRead(r.Context(), r.PathValue("id"))
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleMarkAllRead(w http.ResponseWriter, r *http.Request) {
	s.svc.MarkAllAsRead(r.Context())
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleDeleteAlert(w http.ResponseWriter, r *http.Request) {
	s.svc.DeleteAlert(r.Context(), r.PathValue("id"))
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleClearAlerts(w http.ResponseWriter, r *http.Request) {
	s.svc.ClearAlerts(r.Context())
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleGetSettings(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"settings": s.svc.GetNotificationSettings(r.Context())})
}

func (s *Server) handleUpdateSettings(w http.ResponseWriter, r *http.Request) {
	var req settingRequest
	if !decodeBody(w, r, &req) {
		return
	}
	settings, err := s.svc.UpdateNotificationSettings(r.Context(), req.Type, req.Enabled)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"settings": settings})
}

func (s *Server) handlePermission(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), s.permissionTimeout)
	defer cancel()
	writeJSON(w, http.StatusOK, map[string]any{"permission": s.svc.RequestNotificationPermission(ctx)})
}

func (s *Server) handleStartMonitoring(w http.ResponseWriter, r *http.Request) {
	var req monitoringRequest
	if !decodeBody(w, r, &req) {
		return
	}
	interval := s.defaultInterval
	if req.IntervalMs != nil {
		interval = time.Duration(*req.IntervalMs) * time.Millisecond
	}
	if req.Interval != "" {
		d, err := time.ParseDuration(req.Interval)
		if err != nil {
			writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid interval %q", req.Interval))
			return
		}
		interval = d
	}
	if err := s.svc.StartMonitoring(req.Records, interval); err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"monitoring": true,
		"interval":   interval.String(),
		"records":    len(req.Records),
	})
}

func (s *Server) handleStopMonitoring(w http.ResponseWriter, _ *http.Request) {
	s.svc.StopMonitoring()
	writeJSON(w, http.StatusOK, map[string]any{"monitoring": false})
}

func decodeBody(w http.ResponseWriter, r *http.Request, dst any) bool {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return false
	}
	if err := json.Unmarshal(body, dst); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return false
	}
	return true
}

func writeServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, model.ErrNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, model.ErrInvalidThreshold),
		errors.Is(err, model.ErrUnknownChannel),
		errors.Is(err, model.ErrInvalidInterval):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		writeError(w, http.StatusServiceUnavailable, err.Error())
	default:
		writeError(w, http.StatusInternalServerError, err.Error())
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
