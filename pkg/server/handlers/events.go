package handlers

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"

	"wayfarer-hq/keeper/pkg/journal"
)

// Limits for the events endpoint.
const (
	DefaultEventLimit = 50
	MaxEventLimit     = 500
)

// EventsHandler lists recent lifecycle events, newest first.
type EventsHandler struct {
	source EventSource
	logger *slog.Logger
}

// NewEventsHandler creates an events handler.
func NewEventsHandler(source EventSource, logger *slog.Logger) *EventsHandler {
	return &EventsHandler{source: source, logger: logger}
}

// ServeHTTP implements http.Handler. ?limit=N bounds the result.
func (h *EventsHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if !allowRead(r.Method) {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	limit := DefaultEventLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			http.Error(w, fmt.Sprintf("invalid limit %q", raw), http.StatusBadRequest)
			return
		}
		limit = min(n, MaxEventLimit)
	}

	events, err := h.source.Recent(r.Context(), limit)
	if err != nil {
		h.logger.ErrorContext(r.Context(), "events query failed", "error", &QueryError{Op: "events", Err: err})
		http.Error(w, "Error reading events", http.StatusInternalServerError)
		return
	}
	if events == nil {
		events = []journal.Event{}
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{
		"count":  len(events),
		"events": events,
	})
}
