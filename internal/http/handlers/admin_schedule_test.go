package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/wolfman30/lab-scheduling-assistant/internal/audit"
	"github.com/wolfman30/lab-scheduling-assistant/internal/scheduling"
)

func newScheduleRouter(t *testing.T) (http.Handler, *scheduling.MemoryStore) {
	t.Helper()
	cfg := scheduling.DefaultConfig()
	cfg.Now = func() time.Time { return time.Date(2026, 10, 14, 14, 0, 0, 0, time.UTC) }
	store := scheduling.NewMemoryStore(cfg)
	resolver, err := scheduling.NewAvailabilityResolver(store, cfg, nil)
	require.NoError(t, err)

	h := NewAdminScheduleHandler(store, resolver, nil)
	r := chi.NewRouter()
	r.Get("/admin/blocked-days", h.ListBlockedDays)
	r.Post("/admin/blocked-days", h.AddBlockedDay)
	r.Delete("/admin/blocked-days/{date}", h.RemoveBlockedDay)
	r.Post("/admin/blocked-slots", h.AddBlockedSlot)
	r.Delete("/admin/blocked-slots", h.RemoveBlockedSlot)
	r.Get("/admin/availability/{date}", h.DayAvailability)
	return r, store
}

func serve(h http.Handler, method, target, body string) *httptest.ResponseRecorder {
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, target, nil)
	} else {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestAdminSchedule_BlockedDays(t *testing.T) {
	h, store := newScheduleRouter(t)

	rec := serve(h, http.MethodPost, "/admin/blocked-days", `{"date":"2026-10-16","reason":"Inventario"}`)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	blocked, err := store.IsDayBlocked(context.Background(), "2026-10-16")
	require.NoError(t, err)
	assert.True(t, blocked)

	rec = serve(h, http.MethodGet, "/admin/blocked-days", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var body struct {
		From        string                  `json:"from"`
		To          string                  `json:"to"`
		BlockedDays []scheduling.BlockedDay `json:"blockedDays"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "2026-10-14", body.From)
	assert.Equal(t, "2026-11-13", body.To)
	assert.Equal(t, []scheduling.BlockedDay{{Date: "2026-10-16", Reason: "Inventario"}}, body.BlockedDays)

	rec = serve(h, http.MethodGet, "/admin/availability/2026-10-16", "")
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	assert.Contains(t, rec.Body.String(), scheduling.CodeDateBlocked)

	rec = serve(h, http.MethodDelete, "/admin/blocked-days/2026-10-16", "")
	assert.Equal(t, http.StatusNoContent, rec.Code)
	blocked, _ = store.IsDayBlocked(context.Background(), "2026-10-16")
	assert.False(t, blocked)
}

func TestAdminSchedule_BlockedDaysValidation(t *testing.T) {
	h, _ := newScheduleRouter(t)

	cases := []struct {
		name, method, target, body string
	}{
		{"bad json", http.MethodPost, "/admin/blocked-days", `{`},
		{"bad date", http.MethodPost, "/admin/blocked-days", `{"date":"16/10/2026"}`},
		{"inverted range", http.MethodGet, "/admin/blocked-days?from=2026-10-20&to=2026-10-14", ""},
		{"bad path date", http.MethodDelete, "/admin/blocked-days/manana", ""},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rec := serve(h, tc.method, tc.target, tc.body)
			assert.Equal(t, http.StatusBadRequest, rec.Code)
			assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
		})
	}
}

func TestAdminSchedule_BlockedSlots(t *testing.T) {
	h, store := newScheduleRouter(t)

	rec := serve(h, http.MethodPost, "/admin/blocked-slots", `{"date":"2026-10-19","time":"9am","location":"principal"}`)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	assert.JSONEq(t, `{"date":"2026-10-19","time":"09:00","location":"sede_principal"}`, rec.Body.String())

	times, err := store.BlockedSlotTimes(context.Background(), "2026-10-19", scheduling.LocationMainSite)
	require.NoError(t, err)
	assert.Equal(t, []string{"09:00"}, times)

	rec = serve(h, http.MethodGet, "/admin/availability/2026-10-19", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var day scheduling.DayAvailability
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &day))
	assert.Equal(t, "lunes", day.DayName)
	assert.NotContains(t, day.Hours, "09:00")
	assert.Contains(t, day.Hours, "08:30")

	rec = serve(h, http.MethodDelete, "/admin/blocked-slots", `{"date":"2026-10-19","time":"09:00","location":"sede_principal"}`)
	assert.Equal(t, http.StatusNoContent, rec.Code)
	times, _ = store.BlockedSlotTimes(context.Background(), "2026-10-19", scheduling.LocationMainSite)
	assert.Empty(t, times)
}

func TestAdminSchedule_BlockedSlotValidation(t *testing.T) {
	h, _ := newScheduleRouter(t)

	for _, body := range []string{
		`{"date":"2026-10-19","time":"09:15","location":"sede_principal"}`,
		`{"date":"2026-10-19","time":"18:00","location":"sede_principal"}`,
		`{"date":"2026-10-19","time":"09:00","location":"valencia"}`,
		`{"date":"","time":"09:00","location":"sede_principal"}`,
	} {
		rec := serve(h, http.MethodPost, "/admin/blocked-slots", body)
		assert.Equal(t, http.StatusBadRequest, rec.Code, body)
	}
}

func TestAdminSchedule_SundayAvailability(t *testing.T) {
	h, _ := newScheduleRouter(t)
	rec := serve(h, http.MethodGet, "/admin/availability/2026-10-18", "")
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	assert.Contains(t, rec.Body.String(), scheduling.CodeDateUnavailable)
}

type stubAuditQuerier struct {
	events []audit.Event
	err    error
	got    audit.Filter
}

func (s *stubAuditQuerier) QueryEvents(ctx context.Context, filter audit.Filter) ([]audit.Event, error) {
	s.got = filter
	return s.events, s.err
}

func TestAdminAudit_ListEvents(t *testing.T) {
	q := &stubAuditQuerier{events: []audit.Event{{ID: "evt-1", Type: audit.EventBookingCreated, Cedula: "12345678"}}}
	h := NewAdminAuditHandler(q, nil)

	rec := httptest.NewRecorder()
	h.ListEvents(rec, httptest.NewRequest(http.MethodGet, "/admin/audit-events?type=booking.created&limit=500&since=2026-10-01T00:00:00Z", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"evt-1"`)
	assert.Equal(t, audit.EventBookingCreated, q.got.Type)
	assert.Equal(t, maxAuditEvents, q.got.Limit)
	assert.Equal(t, 2026, q.got.StartTime.Year())
}

func TestAdminAudit_Errors(t *testing.T) {
	h := NewAdminAuditHandler(&stubAuditQuerier{err: errors.New("db down")}, nil)

	rec := httptest.NewRecorder()
	h.ListEvents(rec, httptest.NewRequest(http.MethodGet, "/admin/audit-events?limit=abc", nil))
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = httptest.NewRecorder()
	h.ListEvents(rec, httptest.NewRequest(http.MethodGet, "/admin/audit-events", nil))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestJSONError(t *testing.T) {
	rec := httptest.NewRecorder()
	jsonError(rec, "oops", http.StatusTeapot)

	if rec.Code != http.StatusTeapot {
		t.Fatalf("expected status %d, got %d", http.StatusTeapot, rec.Code)
	}
	var body map[string]string
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("failed to decode json response: %v", err)
	}
	if body["error"] != "oops" {
		t.Fatalf("unexpected error message %q", body["error"])
	}
}
