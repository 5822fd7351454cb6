package handlers

import (
	"context"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/wolfman30/lab-scheduling-assistant/internal/audit"
	"github.com/wolfman30/lab-scheduling-assistant/pkg/logging"
)

const maxAuditEvents = 200

// AuditQuerier lists recorded audit events.
type AuditQuerier interface {
	QueryEvents(ctx context.Context, filter audit.Filter) ([]audit.Event, error)
}

// AdminAuditHandler exposes booking and guardrail events to staff.
type AdminAuditHandler struct {
	events AuditQuerier
	logger *logging.Logger
}

func NewAdminAuditHandler(events AuditQuerier, logger *logging.Logger) *AdminAuditHandler {
	if logger == nil {
		logger = logging.Default()
	}
	return &AdminAuditHandler{events: events, logger: logger}
}

// ListEvents supports type, cedula, since (RFC3339) and limit filters.
// GET /admin/audit-events
func (h *AdminAuditHandler) ListEvents(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := audit.Filter{
		Type:   audit.EventType(strings.TrimSpace(q.Get("type"))),
		Cedula: strings.TrimSpace(q.Get("cedula")),
		Limit:  50,
	}
	if raw := q.Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			jsonError(w, "limit must be a positive integer", http.StatusBadRequest)
			return
		}
		filter.Limit = min(n, maxAuditEvents)
	}
	if raw := q.Get("since"); raw != "" {
		since, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			jsonError(w, "since must be RFC3339", http.StatusBadRequest)
			return
		}
		filter.StartTime = since
	}

	events, err := h.events.QueryEvents(r.Context(), filter)
	if err != nil {
		h.logger.Error("query audit events failed", "error", err)
		jsonError(w, "failed to query audit events", http.StatusInternalServerError)
		return
	}
	if events == nil {
		events = []audit.Event{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"events": events})
}
