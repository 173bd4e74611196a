package api

import (
	"context"
	"log/slog"
	"net/http"
)

type SystemHandler struct {
	// Ping checks the database; nil skips the check.
	Ping func(ctx context.Context) error
}

func (h *SystemHandler) HealthHandler(w http.ResponseWriter, r *http.Request) {
	if h.Ping != nil {
		if err := h.Ping(r.Context()); err != nil {
			logger.Error("health check", slog.Any("err", err))
			writeJSON(w, map[string]string{"status": "error", "service": "fixbuddy", "database": "unreachable"}, http.StatusServiceUnavailable)
			return
		}
	}
	writeJSON(w, map[string]string{"status": "ok", "service": "fixbuddy"}, http.StatusOK)
}

func (h *SystemHandler) VersionHandler(version, buildTime string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, map[string]string{"version": version, "buildTime": buildTime}, http.StatusOK)
	}
}
