package scheduling

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/wolfman30/lab-scheduling-assistant/pkg/logging"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
)

var tracer = otel.Tracer("lab.internal.scheduling")

// DayOption is one offered calendar date.
type DayOption struct {
	Date    string `json:"date"`
	DayName string `json:"dayName"`
}

// WeekAvailability answers "which days can I come" for the Mon-Sat week
// containing the requested date.
type WeekAvailability struct {
	RequestedDate string      `json:"requestedDate"`
	DayName       string      `json:"dayName"`
	WeekStart     string      `json:"weekStart"`
	WeekEnd       string      `json:"weekEnd"`
	Available     bool        `json:"available"`
	AvailableDays []DayOption `json:"availableDays"`
	Hours         []string    `json:"hours,omitempty"`
	FullyBooked   bool        `json:"fullyBooked,omitempty"`
	Suggestion    *DayOption  `json:"suggestion,omitempty"`
	Message       string      `json:"message"`
}

// DayAvailability lists the free hours of one date at the default location.
type DayAvailability struct {
	Date        string   `json:"date"`
	DayName     string   `json:"dayName"`
	Hours       []string `json:"hours"`
	FullyBooked bool     `json:"fullyBooked"`
	Message     string   `json:"message"`
}

// AvailabilityResolver combines the slot grid with blocked days, blocked
// slots and existing appointments.
type AvailabilityResolver struct {
	store  AvailabilityStore
	dates  *DateResolver
	cfg    Config
	grid   []string
	logger *logging.Logger
}

// NewAvailabilityResolver validates the clinic window and builds the grid once.
func NewAvailabilityResolver(store AvailabilityStore, cfg Config, logger *logging.Logger) (*AvailabilityResolver, error) {
	if store == nil {
		return nil, fmt.Errorf("scheduling: availability store required")
	}
	if logger == nil {
		logger = logging.Default()
	}
	cfg = cfg.withDefaults()
	grid, err := GenerateSlots(cfg.OpenTime, cfg.CloseTime, cfg.SlotStep)
	if err != nil {
		return nil, err
	}
	return &AvailabilityResolver{
		store:  store,
		dates:  NewDateResolver(cfg),
		cfg:    cfg,
		grid:   grid,
		logger: logger,
	}, nil
}

// Grid returns a copy of the configured slot grid.
func (r *AvailabilityResolver) Grid() []string {
	return append([]string(nil), r.grid...)
}

// Dates exposes the resolver's date parser.
func (r *AvailabilityResolver) Dates() *DateResolver {
	return r.dates
}

// Week reports open days in the week of the requested date. Sundays,
// blocked days and past days are never offered.
func (r *AvailabilityResolver) Week(ctx context.Context, text string) (*WeekAvailability, error) {
	ctx, span := tracer.Start(ctx, "scheduling.week_availability")
	defer span.End()

	date, ok := r.dates.Resolve(text)
	if !ok {
		return nil, invalidDateError(text)
	}
	span.SetAttributes(attribute.String("scheduling.date", date))
	requested, err := r.dates.ParseISO(date)
	if err != nil {
		return nil, invalidDateError(text)
	}
	today := r.cfg.Today()
	weekStart := requested.AddDate(0, 0, -((int(requested.Weekday()) + 6) % 7))
	weekEnd := weekStart.AddDate(0, 0, 6)

	blocked, err := r.store.BlockedDaysBetween(ctx, weekStart.Format(isoDateLayout), weekEnd.Format(isoDateLayout))
	if err != nil {
		r.logger.Error("week availability lookup failed", "date", date, "error", err)
		return nil, availabilityError(err)
	}
	blockedSet := make(map[string]struct{}, len(blocked))
	for _, b := range blocked {
		blockedSet[b.Date] = struct{}{}
	}

	out := &WeekAvailability{
		RequestedDate: date,
		DayName:       WeekdayName(requested),
		WeekStart:     weekStart.Format(isoDateLayout),
		WeekEnd:       weekEnd.Format(isoDateLayout),
		AvailableDays: []DayOption{},
	}
	for i := 0; i < 6; i++ {
		day := weekStart.AddDate(0, 0, i)
		if day.Before(today) {
			continue
		}
		iso := day.Format(isoDateLayout)
		if day.Equal(today) && r.dayElapsed(iso) {
			continue
		}
		if _, closed := blockedSet[iso]; closed {
			continue
		}
		out.AvailableDays = append(out.AvailableDays, DayOption{Date: iso, DayName: WeekdayName(day)})
		if iso == date {
			out.Available = true
		}
	}

	if out.Available {
		hours, err := r.FreeSlots(ctx, date)
		if err != nil {
			r.logger.Error("day slots lookup failed", "date", date, "error", err)
			return nil, availabilityError(err)
		}
		out.Hours = hours
		out.FullyBooked = len(hours) == 0
	}
	if len(out.AvailableDays) == 0 {
		next := requested.AddDate(0, 0, 7)
		if next.Weekday() == time.Sunday {
			next = next.AddDate(0, 0, 1)
		}
		out.Suggestion = &DayOption{Date: next.Format(isoDateLayout), DayName: WeekdayName(next)}
	}
	out.Message = FormatWeekAvailability(out)
	return out, nil
}

// Day lists free hours for one resolved date.
func (r *AvailabilityResolver) Day(ctx context.Context, text string) (*DayAvailability, error) {
	ctx, span := tracer.Start(ctx, "scheduling.day_availability")
	defer span.End()

	date, ok := r.dates.Resolve(text)
	if !ok {
		return nil, invalidDateError(text)
	}
	span.SetAttributes(attribute.String("scheduling.date", date))
	day, err := r.dates.ParseISO(date)
	if err != nil {
		return nil, invalidDateError(text)
	}
	if te := r.checkOpenDay(ctx, day, date); te != nil {
		return nil, te
	}
	hours, err := r.FreeSlots(ctx, date)
	if err != nil {
		r.logger.Error("day slots lookup failed", "date", date, "error", err)
		return nil, availabilityError(err)
	}
	out := &DayAvailability{
		Date:        date,
		DayName:     WeekdayName(day),
		Hours:       hours,
		FullyBooked: len(hours) == 0,
	}
	if out.FullyBooked {
		out.Message = fmt.Sprintf("El %s %s está abierto, pero ya no quedan horas disponibles.", out.DayName, date)
	} else {
		out.Message = fmt.Sprintf("Horas disponibles el %s %s: %s.", out.DayName, date, strings.Join(hours, ", "))
	}
	return out, nil
}

// checkOpenDay rejects Sundays and blocked days.
func (r *AvailabilityResolver) checkOpenDay(ctx context.Context, day time.Time, date string) *ToolError {
	if day.Weekday() == time.Sunday {
		return NewToolError(CodeDateUnavailable, "date", "Los domingos no atendemos. Por favor elige un día de lunes a sábado.")
	}
	blocked, err := r.store.IsDayBlocked(ctx, date)
	if err != nil {
		r.logger.Error("blocked day lookup failed", "date", date, "error", err)
		return availabilityError(err)
	}
	if blocked {
		return NewToolError(CodeDateBlocked, "date", fmt.Sprintf("El %s %s no hay atención. Por favor elige otro día.", WeekdayName(day), date))
	}
	return nil
}

// FreeSlots is the grid minus booked times and blocked slots at the
// default location. For today it also drops every time at or before the
// current clinic clock.
func (r *AvailabilityResolver) FreeSlots(ctx context.Context, date string) ([]string, error) {
	taken, err := r.takenTimes(ctx, date)
	if err != nil {
		return nil, err
	}
	blocked, err := r.store.BlockedSlotTimes(ctx, date, r.cfg.DefaultLocation)
	if err != nil {
		return nil, fmt.Errorf("scheduling: blocked slots: %w", err)
	}
	for _, b := range blocked {
		taken[b] = struct{}{}
	}
	cutoff := r.elapsedUntil(date)
	free := make([]string, 0, len(r.grid))
	for _, slot := range r.grid {
		if cutoff != "" && slot <= cutoff {
			continue
		}
		if _, ok := taken[slot]; !ok {
			free = append(free, slot)
		}
	}
	return free, nil
}

// SlotElapsed reports whether hhmm on date is already at or before the
// current clinic time.
func (r *AvailabilityResolver) SlotElapsed(date, hhmm string) bool {
	cutoff := r.elapsedUntil(date)
	return cutoff != "" && hhmm <= cutoff
}

// elapsedUntil is the current clinic HH:mm when date is today, else "".
// Grid times compare correctly as zero-padded strings.
func (r *AvailabilityResolver) elapsedUntil(date string) string {
	now := r.cfg.Now().In(r.cfg.Zone())
	if now.Format(isoDateLayout) != date {
		return ""
	}
	return now.Format(clockLayout)
}

// dayElapsed is true once the last grid time of date has passed.
func (r *AvailabilityResolver) dayElapsed(date string) bool {
	return len(r.grid) > 0 && r.SlotElapsed(date, r.grid[len(r.grid)-1])
}

// takenTimes maps booked timestamps to clinic-local HH:mm.
func (r *AvailabilityResolver) takenTimes(ctx context.Context, date string) (map[string]struct{}, error) {
	booked, err := r.store.BookedTimes(ctx, date)
	if err != nil {
		return nil, fmt.Errorf("scheduling: booked times: %w", err)
	}
	zone := r.cfg.Zone()
	taken := make(map[string]struct{}, len(booked))
	for _, ts := range booked {
		taken[ts.In(zone).Format(clockLayout)] = struct{}{}
	}
	return taken, nil
}

// FormatWeekAvailability renders a deterministic Spanish summary.
func FormatWeekAvailability(w *WeekAvailability) string {
	if w == nil {
		return ""
	}
	var b strings.Builder
	switch {
	case w.Available && w.FullyBooked:
		fmt.Fprintf(&b, "El %s %s está abierto, pero ya no quedan horas disponibles.", w.DayName, w.RequestedDate)
	case w.Available:
		fmt.Fprintf(&b, "El %s %s está disponible. Horas libres: %s.", w.DayName, w.RequestedDate, strings.Join(w.Hours, ", "))
	default:
		fmt.Fprintf(&b, "El %s %s no está disponible.", w.DayName, w.RequestedDate)
	}
	if len(w.AvailableDays) > 0 {
		days := make([]string, 0, len(w.AvailableDays))
		for _, d := range w.AvailableDays {
			days = append(days, fmt.Sprintf("%s %s", d.DayName, d.Date))
		}
		fmt.Fprintf(&b, " Días disponibles esa semana: %s.", strings.Join(days, ", "))
	}
	if w.Suggestion != nil {
		fmt.Fprintf(&b, " No hay días disponibles esa semana. Te sugiero el %s %s.", w.Suggestion.DayName, w.Suggestion.Date)
	}
	return b.String()
}
