package scheduling

import (
	"regexp"
	"strconv"
	"strings"
	"time"
)

var (
	isoDatePattern   = regexp.MustCompile(`\b(\d{4})-(\d{2})-(\d{2})\b`)
	dayMonthPattern  = regexp.MustCompile(`\b(\d{1,2})/(\d{1,2})(?:/(\d{2,4}))?\b`)
	dayAfterPattern  = regexp.MustCompile(`\b(pasado manana|day after tomorrow)\b`)
	tomorrowPattern  = regexp.MustCompile(`\b(manana|tomorrow)\b`)
	todayPattern     = regexp.MustCompile(`\b(hoy|today)\b`)
	dateTrimCutset   = " \t\r\n¿?¡!.,;:"
	relativeExact    = map[string]int{"hoy": 0, "today": 0, "manana": 1, "tomorrow": 1, "pasado manana": 2, "day after tomorrow": 2}
	weekdaysByName   = map[string]time.Weekday{}
	weekdayNamesES   = []string{"domingo", "lunes", "martes", "miércoles", "jueves", "viernes", "sábado"}
	weekdayKeysOrder []string
)

func init() {
	english := []string{"sunday", "monday", "tuesday", "wednesday", "thursday", "friday", "saturday"}
	for i, name := range weekdayNamesES {
		folded := Fold(name)
		weekdaysByName[folded] = time.Weekday(i)
		weekdaysByName[english[i]] = time.Weekday(i)
		weekdayKeysOrder = append(weekdayKeysOrder, folded, english[i])
	}
}

// WeekdayName returns the Spanish day name for t.
func WeekdayName(t time.Time) string {
	return weekdayNamesES[t.Weekday()]
}

// DateResolver turns free text into a concrete clinic calendar date.
type DateResolver struct {
	cfg Config
}

// NewDateResolver builds a resolver on the clinic clock.
func NewDateResolver(cfg Config) *DateResolver {
	return &DateResolver{cfg: cfg.withDefaults()}
}

// Today is the clinic's current date.
func (r *DateResolver) Today() time.Time {
	return r.cfg.Today()
}

// Resolve returns an ISO date and true, or "" and false when the text names
// no usable date. Rules apply in order: an ISO date strictly in the future,
// a D/M[/Y] date, an exact relative term, an exact weekday name, a weekday
// name inside a phrase, and finally a relative term inside a phrase.
func (r *DateResolver) Resolve(text string) (string, bool) {
	today := r.cfg.Today()
	folded := strings.Trim(strings.Join(strings.Fields(Fold(text)), " "), dateTrimCutset)
	if folded == "" {
		return "", false
	}

	if m := isoDatePattern.FindStringSubmatch(folded); m != nil {
		if d, ok := r.calendarDate(m[1], m[2], m[3]); ok && d.After(today) {
			return d.Format(isoDateLayout), true
		}
	}

	if m := dayMonthPattern.FindStringSubmatch(folded); m != nil {
		if d, ok := r.dayMonth(m[1], m[2], m[3], today); ok {
			return d.Format(isoDateLayout), true
		}
	}

	if offset, ok := relativeExact[folded]; ok {
		return today.AddDate(0, 0, offset).Format(isoDateLayout), true
	}

	if wd, ok := weekdaysByName[folded]; ok {
		return nextWeekday(today, wd).Format(isoDateLayout), true
	}

	if wd, ok := firstWeekdayIn(folded); ok {
		return nextWeekday(today, wd).Format(isoDateLayout), true
	}

	switch {
	case dayAfterPattern.MatchString(folded):
		return today.AddDate(0, 0, 2).Format(isoDateLayout), true
	case tomorrowPattern.MatchString(folded):
		return today.AddDate(0, 0, 1).Format(isoDateLayout), true
	case todayPattern.MatchString(folded):
		return today.Format(isoDateLayout), true
	}
	return "", false
}

// ParseISO parses an ISO date in the clinic zone.
func (r *DateResolver) ParseISO(date string) (time.Time, error) {
	return time.ParseInLocation(isoDateLayout, date, r.cfg.Zone())
}

func (r *DateResolver) calendarDate(y, m, d string) (time.Time, bool) {
	year, err1 := strconv.Atoi(y)
	month, err2 := strconv.Atoi(m)
	day, err3 := strconv.Atoi(d)
	if err1 != nil || err2 != nil || err3 != nil {
		return time.Time{}, false
	}
	t := time.Date(year, time.Month(month), day, 0, 0, 0, 0, r.cfg.Zone())
	// time.Date normalizes 31/02 into March; reject instead.
	if t.Year() != year || int(t.Month()) != month || t.Day() != day {
		return time.Time{}, false
	}
	return t, true
}

func (r *DateResolver) dayMonth(d, m, y string, today time.Time) (time.Time, bool) {
	if y != "" {
		if len(y) == 2 {
			y = "20" + y
		}
		t, ok := r.calendarDate(y, m, d)
		if !ok || !t.After(today) {
			return time.Time{}, false
		}
		return t, true
	}
	year := strconv.Itoa(today.Year())
	t, ok := r.calendarDate(year, m, d)
	if !ok {
		// 29/02 outside a leap year still has a next occurrence.
		t, ok = r.calendarDate(strconv.Itoa(today.Year()+1), m, d)
		if !ok {
			return time.Time{}, false
		}
	}
	for !t.After(today) {
		next, ok := r.calendarDate(strconv.Itoa(t.Year()+1), m, d)
		if !ok {
			next, ok = r.calendarDate(strconv.Itoa(t.Year()+4), m, d)
			if !ok {
				return time.Time{}, false
			}
		}
		t = next
	}
	return t, true
}

// firstWeekdayIn finds the earliest weekday name embedded in s.
func firstWeekdayIn(s string) (time.Weekday, bool) {
	best := -1
	var found time.Weekday
	for _, name := range weekdayKeysOrder {
		if idx := strings.Index(s, name); idx >= 0 && (best < 0 || idx < best) {
			best = idx
			found = weekdaysByName[name]
		}
	}
	return found, best >= 0
}

// nextWeekday is the next occurrence strictly after today; naming today's
// weekday means one week ahead.
func nextWeekday(today time.Time, wd time.Weekday) time.Time {
	days := (int(wd) - int(today.Weekday()) + 7) % 7
	if days == 0 {
		days = 7
	}
	return today.AddDate(0, 0, days)
}
