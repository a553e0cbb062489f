package adminapi

import (
	"context"
	"net/http"
	"time"
)

// HealthResponse mirrors the teacher's HealthResponse shape (status,
// version, uptime, a free-form checks map), trimmed to what a single
// MQTT worker can actually report on.
type HealthResponse struct {
	Status        string            `json:"status"`
	Version       string            `json:"version"`
	UptimeSeconds int64             `json:"uptime_seconds"`
	Checks        map[string]string `json:"checks"`
}

type HealthHandler struct {
	mqtt      MQTTStatus
	db        DBHealthChecker
	version   string
	startTime time.Time
}

func NewHealthHandler(mqtt MQTTStatus, db DBHealthChecker, version string, startTime time.Time) *HealthHandler {
	return &HealthHandler{mqtt: mqtt, db: db, version: version, startTime: startTime}
}

func (h *HealthHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	checks := map[string]string{}
	status := "ok"

	if h.mqtt != nil {
		if h.mqtt.IsConnected() {
			checks["mqtt"] = "connected"
		} else {
			checks["mqtt"] = "disconnected"
			status = "degraded"
		}
		if last := h.mqtt.LastHeartbeat(); !last.IsZero() {
			checks["mqtt_heartbeat_age"] = time.Since(last).Round(time.Second).String()
		}
	}

	if h.db != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := h.db.HealthCheck(ctx); err != nil {
			checks["db"] = "error: " + err.Error()
			status = "degraded"
		} else {
			checks["db"] = "ok"
		}
	}

	code := http.StatusOK
	if status != "ok" {
		code = http.StatusServiceUnavailable
	}
	writeJSON(w, code, HealthResponse{
		Status:        status,
		Version:       h.version,
		UptimeSeconds: int64(time.Since(h.startTime).Seconds()),
		Checks:        checks,
	})
}
