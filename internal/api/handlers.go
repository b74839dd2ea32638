package api

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/nerrad567/switchhub/internal/device"
	"github.com/nerrad567/switchhub/internal/store"
)

// handleDailyUsage returns event counts per day, newest first. The window
// defaults to 31 days and can be set with ?days= up to store.MaxUsageDays.
func (s *Server) handleDailyUsage(w http.ResponseWriter, r *http.Request) {
	days, ok := intQuery(w, r, "days")
	if !ok {
		return
	}
	if days > store.MaxUsageDays {
		writeBadRequest(w, fmt.Sprintf("days must not exceed %d", store.MaxUsageDays))
		return
	}

	usage, err := s.store.DailyUsage(r.Context(), days)
	if err != nil {
		s.writeStoreError(w, r, "daily usage", err)
		return
	}
	if usage == nil {
		usage = []device.DailyUsage{}
	}
	writeJSON(w, http.StatusOK, usage)
}

// handleLatestStatus returns the latest stored status of every device.
func (s *Server) handleLatestStatus(w http.ResponseWriter, r *http.Request) {
	records, err := s.store.LatestStatusOfAllDevices(r.Context())
	if err != nil {
		s.writeStoreError(w, r, "latest status", err)
		return
	}
	if records == nil {
		records = []device.StatusRecord{}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"devices": records,
		"count":   len(records),
	})
}

// handleDeviceHistory returns recent rows for one device, newest first.
func (s *Server) handleDeviceHistory(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	if err := device.ValidateName(name); err != nil {
		writeBadRequest(w, err.Error())
		return
	}

	limit, ok := intQuery(w, r, "limit")
	if !ok {
		return
	}

	records, err := s.store.DeviceHistory(r.Context(), name, limit)
	if err != nil {
		s.writeStoreError(w, r, "device history", err)
		return
	}
	if records == nil {
		records = []device.StatusRecord{}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"device_name": name,
		"history":     records,
		"count":       len(records),
	})
}

// intQuery parses an optional non-negative integer query parameter. A
// missing parameter yields 0, letting the store apply its default.
func intQuery(w http.ResponseWriter, r *http.Request, key string) (int, bool) {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return 0, true
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		writeBadRequest(w, key+" must be a non-negative integer")
		return 0, false
	}
	return n, true
}

// writeStoreError maps store failures onto HTTP responses.
func (s *Server) writeStoreError(w http.ResponseWriter, r *http.Request, op string, err error) {
	switch {
	case errors.Is(err, store.ErrUnavailable), errors.Is(err, store.ErrClosed):
		s.logger.Warn("store unavailable", "op", op, "error", err,
			"request_id", r.Context().Value(ctxKeyRequestID))
		writeUnavailable(w, "status store unavailable")
	case errors.Is(err, store.ErrInvalidDevice):
		writeBadRequest(w, err.Error())
	default:
		s.logger.Error("store query failed", "op", op, "error", err,
			"request_id", r.Context().Value(ctxKeyRequestID))
		writeInternalError(w, "failed to query status store")
	}
}
