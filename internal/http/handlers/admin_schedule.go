package handlers

import (
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/wolfman30/lab-scheduling-assistant/internal/scheduling"
	"github.com/wolfman30/lab-scheduling-assistant/pkg/logging"
)

const defaultBlockedDaysRange = 30

// AdminScheduleHandler lets staff close days and slots and inspect what the
// assistant will offer for a date.
type AdminScheduleHandler struct {
	calendar     scheduling.CalendarAdmin
	availability *scheduling.AvailabilityResolver
	logger       *logging.Logger
}

func NewAdminScheduleHandler(calendar scheduling.CalendarAdmin, availability *scheduling.AvailabilityResolver, logger *logging.Logger) *AdminScheduleHandler {
	if logger == nil {
		logger = logging.Default()
	}
	return &AdminScheduleHandler{calendar: calendar, availability: availability, logger: logger}
}

type blockedDayRequest struct {
	Date   string `json:"date"`
	Reason string `json:"reason"`
}

type blockedSlotRequest struct {
	Date     string `json:"date"`
	Time     string `json:"time"`
	Location string `json:"location"`
}

// ListBlockedDays returns closed days in [from, to]; both default to a
// window starting today.
// GET /admin/blocked-days?from=&to=
func (h *AdminScheduleHandler) ListBlockedDays(w http.ResponseWriter, r *http.Request) {
	dates := h.availability.Dates()
	today := dates.Today()
	from := strings.TrimSpace(r.URL.Query().Get("from"))
	to := strings.TrimSpace(r.URL.Query().Get("to"))
	if from == "" {
		from = today.Format(time.DateOnly)
	}
	if to == "" {
		to = today.AddDate(0, 0, defaultBlockedDaysRange).Format(time.DateOnly)
	}
	fromDay, err1 := dates.ParseISO(from)
	toDay, err2 := dates.ParseISO(to)
	if err1 != nil || err2 != nil || toDay.Before(fromDay) {
		jsonError(w, "from/to must be YYYY-MM-DD with from <= to", http.StatusBadRequest)
		return
	}

	days, err := h.calendar.BlockedDaysBetween(r.Context(), from, to)
	if err != nil {
		h.logger.Error("list blocked days failed", "from", from, "to", to, "error", err)
		jsonError(w, "failed to list blocked days", http.StatusInternalServerError)
		return
	}
	if days == nil {
		days = []scheduling.BlockedDay{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"from": from, "to": to, "blockedDays": days})
}

// AddBlockedDay closes a date.
// POST /admin/blocked-days
func (h *AdminScheduleHandler) AddBlockedDay(w http.ResponseWriter, r *http.Request) {
	var req blockedDayRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 64<<10)).Decode(&req); err != nil {
		jsonError(w, "invalid JSON", http.StatusBadRequest)
		return
	}
	date, ok := h.parseDate(req.Date)
	if !ok {
		jsonError(w, "date must be YYYY-MM-DD", http.StatusBadRequest)
		return
	}
	day := scheduling.BlockedDay{Date: date, Reason: strings.TrimSpace(req.Reason)}
	if err := h.calendar.AddBlockedDay(r.Context(), day); err != nil {
		h.logger.Error("add blocked day failed", "date", date, "error", err)
		jsonError(w, "failed to block day", http.StatusInternalServerError)
		return
	}
	h.logger.Info("blocked day added", "date", date)
	writeJSON(w, http.StatusCreated, day)
}

// RemoveBlockedDay reopens a date.
// DELETE /admin/blocked-days/{date}
func (h *AdminScheduleHandler) RemoveBlockedDay(w http.ResponseWriter, r *http.Request) {
	date, ok := h.parseDate(chi.URLParam(r, "date"))
	if !ok {
		jsonError(w, "date must be YYYY-MM-DD", http.StatusBadRequest)
		return
	}
	if err := h.calendar.RemoveBlockedDay(r.Context(), date); err != nil {
		h.logger.Error("remove blocked day failed", "date", date, "error", err)
		jsonError(w, "failed to unblock day", http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// AddBlockedSlot closes one grid time at one location.
// POST /admin/blocked-slots
func (h *AdminScheduleHandler) AddBlockedSlot(w http.ResponseWriter, r *http.Request) {
	slot, ok := h.decodeSlot(w, r)
	if !ok {
		return
	}
	if err := h.calendar.AddBlockedSlot(r.Context(), slot); err != nil {
		h.logger.Error("add blocked slot failed", "date", slot.Date, "time", slot.Time, "error", err)
		jsonError(w, "failed to block slot", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusCreated, slot)
}

// RemoveBlockedSlot reopens one slot.
// DELETE /admin/blocked-slots
func (h *AdminScheduleHandler) RemoveBlockedSlot(w http.ResponseWriter, r *http.Request) {
	slot, ok := h.decodeSlot(w, r)
	if !ok {
		return
	}
	if err := h.calendar.RemoveBlockedSlot(r.Context(), slot); err != nil {
		h.logger.Error("remove blocked slot failed", "date", slot.Date, "time", slot.Time, "error", err)
		jsonError(w, "failed to unblock slot", http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// DayAvailability shows the free hours the assistant would offer.
// GET /admin/availability/{date}
func (h *AdminScheduleHandler) DayAvailability(w http.ResponseWriter, r *http.Request) {
	day, err := h.availability.Day(r.Context(), chi.URLParam(r, "date"))
	if err != nil {
		if te, ok := scheduling.AsToolError(err); ok && te.Meta.Code != scheduling.CodeAvailabilityError {
			writeJSON(w, http.StatusUnprocessableEntity, map[string]any{"error": te.Message, "meta": te.Meta})
			return
		}
		h.logger.Error("admin availability failed", "error", err)
		jsonError(w, "failed to compute availability", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, day)
}

func (h *AdminScheduleHandler) decodeSlot(w http.ResponseWriter, r *http.Request) (scheduling.BlockedSlot, bool) {
	var req blockedSlotRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 64<<10)).Decode(&req); err != nil {
		jsonError(w, "invalid JSON", http.StatusBadRequest)
		return scheduling.BlockedSlot{}, false
	}
	date, ok := h.parseDate(req.Date)
	if !ok {
		jsonError(w, "date must be YYYY-MM-DD", http.StatusBadRequest)
		return scheduling.BlockedSlot{}, false
	}
	hhmm, ok := scheduling.NormalizeTime(req.Time)
	if !ok || !onGrid(h.availability.Grid(), hhmm) {
		jsonError(w, "time must be a slot between opening and closing", http.StatusBadRequest)
		return scheduling.BlockedSlot{}, false
	}
	location, ok := scheduling.NormalizeLocation(req.Location)
	if !ok {
		jsonError(w, "location must be sede_principal, sede_colonia_tovar or domicilio", http.StatusBadRequest)
		return scheduling.BlockedSlot{}, false
	}
	return scheduling.BlockedSlot{Date: date, Time: hhmm, Location: location}, true
}

func (h *AdminScheduleHandler) parseDate(raw string) (string, bool) {
	raw = strings.TrimSpace(raw)
	if _, err := h.availability.Dates().ParseISO(raw); err != nil {
		return "", false
	}
	return raw, true
}

func onGrid(grid []string, hhmm string) bool {
	for _, slot := range grid {
		if slot == hhmm {
			return true
		}
	}
	return false
}
