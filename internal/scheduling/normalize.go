package scheduling

import (
	"regexp"
	"strconv"
	"strings"
)

var (
	homeVisitWords = []string{"domicilio", "casa", "hogar", "home", "house"}
	mainSiteWords  = []string{"principal", "main", "maracay", "sede", "sucursal", "laboratorio", "branch", "clinic"}

	timePrefixes = []string{"como a las ", "a eso de las ", "a las ", "alas ", "las ", "at ", "tipo ", "type ", "around "}
	timeSuffixes = map[string]string{
		"de la manana": "am", "en la manana": "am", "de la tarde": "pm", "en la tarde": "pm",
		"in the morning": "am", "in the afternoon": "pm",
	}
	clockPattern    = regexp.MustCompile(`^(\d{1,2})(?:[:.h](\d{2}))?\s*(a\.?\s?m\.?|p\.?\s?m\.?)?\s*(?:hrs|hr|h)?$`)
	timeInText      = regexp.MustCompile(`(?:\b(?:a las|at|tipo|type)\s+)?\b(\d{1,2}(?::\d{2})?)\s*(a\.?\s?m\.?|p\.?\s?m\.?|de la manana|de la tarde)?`)
	noonWords       = []string{"mediodia", "medio dia", "noon", "midday", "12 del mediodia"}
	cedulaMinDigits = 7
	cedulaMaxDigits = 9
)

// NormalizeLocation maps free text onto an enumerated location. Colonia Tovar
// is checked first since its phrasing often also mentions "sede".
func NormalizeLocation(raw string) (Location, bool) {
	folded := strings.TrimSpace(Fold(raw))
	if folded == "" {
		return "", false
	}
	if l := Location(folded); l.Valid() {
		return l, true
	}
	if strings.Contains(folded, "tovar") {
		return LocationColoniaTovar, true
	}
	for _, w := range homeVisitWords {
		if strings.Contains(folded, w) {
			return LocationHomeVisit, true
		}
	}
	for _, w := range mainSiteWords {
		if strings.Contains(folded, w) {
			return LocationMainSite, true
		}
	}
	return "", false
}

// NormalizeTime parses a time of day into HH:mm. Bare hours from 1 to 6
// are read as afternoon since the clinic opens at 07:00.
func NormalizeTime(raw string) (string, bool) {
	s := strings.Trim(strings.Join(strings.Fields(Fold(raw)), " "), " .,;!?¿¡")
	if s == "" {
		return "", false
	}
	for _, w := range noonWords {
		if s == w || strings.HasPrefix(s, "a las "+w) || s == "al "+w || s == "at "+w {
			return "12:00", true
		}
	}
	for _, p := range timePrefixes {
		if strings.HasPrefix(s, p) {
			s = strings.TrimSpace(strings.TrimPrefix(s, p))
			break
		}
	}
	meridiem := ""
	for suffix, mer := range timeSuffixes {
		if strings.HasSuffix(s, suffix) {
			s = strings.TrimSpace(strings.TrimSuffix(s, suffix))
			meridiem = mer
			break
		}
	}
	m := clockPattern.FindStringSubmatch(s)
	if m == nil {
		return "", false
	}
	if m[3] != "" {
		meridiem = meridiemOf(m[3])
	}
	return buildClock(m[1], m[2], meridiem)
}

// FindTimeInText scans a sentence for the first recognizable time of day.
func FindTimeInText(text string) (string, bool) {
	folded := Fold(text)
	for _, w := range noonWords {
		if strings.Contains(folded, w) {
			return "12:00", true
		}
	}
	for _, m := range timeInText.FindAllStringSubmatch(folded, -1) {
		full := strings.TrimSpace(m[0])
		// A bare number is only a time when introduced or qualified.
		if !strings.Contains(m[1], ":") && m[2] == "" && !hasTimeLead(full) {
			continue
		}
		hour, minute, _ := strings.Cut(m[1], ":")
		meridiem := ""
		if m[2] != "" {
			meridiem = meridiemOf(m[2])
		}
		if hhmm, ok := buildClock(hour, minute, meridiem); ok {
			return hhmm, true
		}
	}
	return "", false
}

func hasTimeLead(s string) bool {
	for _, lead := range []string{"a las", "at", "tipo", "type"} {
		if strings.HasPrefix(s, lead+" ") {
			return true
		}
	}
	return false
}

func meridiemOf(s string) string {
	s = strings.NewReplacer(".", "", " ", "").Replace(s)
	switch s {
	case "am", "delamanana":
		return "am"
	case "pm", "delatarde":
		return "pm"
	}
	return ""
}

func buildClock(hourStr, minuteStr, meridiem string) (string, bool) {
	h, err := strconv.Atoi(hourStr)
	if err != nil {
		return "", false
	}
	minute := 0
	if minuteStr != "" {
		if minute, err = strconv.Atoi(minuteStr); err != nil {
			return "", false
		}
	}
	switch meridiem {
	case "pm":
		if h < 1 || h > 12 {
			return "", false
		}
		if h < 12 {
			h += 12
		}
	case "am":
		if h < 1 || h > 12 {
			return "", false
		}
		if h == 12 {
			h = 0
		}
	default:
		if h >= 1 && h <= 6 {
			h += 12
		}
	}
	if h > 23 || minute > 59 {
		return "", false
	}
	return formatClock(h, minute), true
}

// NormalizeCedula strips formatting and validates length.
func NormalizeCedula(raw string) (string, bool) {
	digits := DigitsOnly(raw)
	return digits, len(digits) >= cedulaMinDigits && len(digits) <= cedulaMaxDigits
}

// NormalizeCity matches raw against the allowed home-visit cities and
// returns the configured spelling.
func NormalizeCity(raw string, allowed []string) (string, bool) {
	folded := strings.TrimSpace(Fold(raw))
	if folded == "" {
		return "", false
	}
	for _, city := range allowed {
		if Fold(city) == folded {
			return city, true
		}
	}
	for _, city := range allowed {
		if strings.Contains(folded, Fold(city)) {
			return city, true
		}
	}
	return "", false
}
