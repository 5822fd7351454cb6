package conversation

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/wolfman30/lab-scheduling-assistant/internal/catalog"
	"github.com/wolfman30/lab-scheduling-assistant/internal/scheduling"
)

// BookingDraft is what the patient has already told us, rebuilt from the
// transcript on every turn.
type BookingDraft struct {
	Studies  []string            `json:"studies,omitempty"`
	Date     string              `json:"date,omitempty"`
	Time     string              `json:"time,omitempty"`
	Location scheduling.Location `json:"location,omitempty"`
	Cedula   string              `json:"cedula,omitempty"`
	Phone    string              `json:"phone,omitempty"`
	Email    string              `json:"email,omitempty"`
}

var (
	phonePattern  = regexp.MustCompile(`(?:\+?58[\s.-]?)?\(?0?4\d{2}\)?[\s.-]?\d{3}[\s.-]?\d{2}[\s.-]?\d{2}`)
	emailPattern  = regexp.MustCompile(`[A-Za-z0-9._%+-]+@[A-Za-z0-9.-]+\.[A-Za-z]{2,}`)
	cedulaPattern = regexp.MustCompile(`(?i)\b(?:[VE][\s-]?)?(\d{1,2}\.\d{3}\.\d{3}|\d{6,10})\b`)
	// "de la mañana" names a part of the day, not tomorrow.
	partOfDayPattern = regexp.MustCompile(`\b(de|en|por) la manana\b`)
	relativeDateCue  = regexp.MustCompile(`\b(hoy|manana|today|tomorrow)\b`)
)

// ExtractKnownSlots rebuilds the booking draft from the user's turns. Later
// turns override earlier ones; studies accumulate.
func ExtractKnownSlots(transcript []ChatMessage, dates *scheduling.DateResolver) BookingDraft {
	var draft BookingDraft
	seenStudy := map[string]struct{}{}
	for _, msg := range transcript {
		if msg.Role != ChatRoleUser {
			continue
		}
		text := msg.Content

		for _, study := range catalog.Detect(text) {
			if _, ok := seenStudy[study]; !ok {
				seenStudy[study] = struct{}{}
				draft.Studies = append(draft.Studies, study)
			}
		}

		if email := emailPattern.FindString(text); email != "" {
			draft.Email = strings.ToLower(email)
			text = strings.Replace(text, email, " ", 1)
		}
		if phone := phonePattern.FindString(text); phone != "" {
			draft.Phone = scheduling.DigitsOnly(phone)
			text = strings.Replace(text, phone, " ", 1)
		}
		for _, m := range cedulaPattern.FindAllStringSubmatch(text, -1) {
			if cedula, ok := scheduling.NormalizeCedula(m[1]); ok {
				draft.Cedula = cedula
				break
			}
		}

		if dates != nil && hasDateCue(text) {
			if date, ok := dates.Resolve(text); ok {
				draft.Date = date
			}
		}
		if hhmm, ok := scheduling.FindTimeInText(text); ok {
			draft.Time = hhmm
		}
		if loc, ok := scheduling.NormalizeLocation(text); ok && mentionsLocation(text) {
			draft.Location = loc
		}
	}
	return draft
}

// hasDateCue keeps "a las 8 de la mañana" from resolving to tomorrow.
func hasDateCue(text string) bool {
	if hasDateToken(text) {
		return true
	}
	folded := partOfDayPattern.ReplaceAllString(scheduling.Fold(text), " ")
	return relativeDateCue.MatchString(folded)
}

var locationCues = []string{"sede", "principal", "maracay", "tovar", "domicilio", "casa", "hogar", "home", "house", "sucursal", "branch"}

// mentionsLocation requires an explicit place word; "laboratorio" alone is
// too common in questions to count as a choice.
func mentionsLocation(text string) bool {
	folded := scheduling.Fold(text)
	for _, cue := range locationCues {
		if strings.Contains(folded, cue) {
			return true
		}
	}
	return false
}

// Missing lists the slots still to collect, in dialogue order.
func (d BookingDraft) Missing() []string {
	var out []string
	if len(d.Studies) == 0 {
		out = append(out, "estudios")
	}
	if d.Date == "" {
		out = append(out, "fecha")
	}
	if d.Time == "" {
		out = append(out, "hora")
	}
	if d.Location == "" {
		out = append(out, "sede")
	}
	if d.Cedula == "" {
		out = append(out, "cédula")
	}
	if d.Phone == "" {
		out = append(out, "teléfono")
	}
	return out
}

// Empty reports a draft with nothing collected yet.
func (d BookingDraft) Empty() bool {
	return len(d.Studies) == 0 && d.Date == "" && d.Time == "" && d.Location == "" &&
		d.Cedula == "" && d.Phone == "" && d.Email == ""
}

// Summary renders the draft for the system prompt.
func (d BookingDraft) Summary() string {
	var lines []string
	if len(d.Studies) > 0 {
		lines = append(lines, "- Estudios: "+strings.Join(d.Studies, ", "))
	}
	if d.Date != "" {
		lines = append(lines, "- Fecha: "+d.Date)
	}
	if d.Time != "" {
		lines = append(lines, "- Hora: "+d.Time)
	}
	if d.Location != "" {
		lines = append(lines, fmt.Sprintf("- Sede: %s (%s)", d.Location.DisplayName(), d.Location))
	}
	if d.Cedula != "" {
		lines = append(lines, "- Cédula: "+d.Cedula)
	}
	if d.Phone != "" {
		lines = append(lines, "- Teléfono: "+d.Phone)
	}
	if d.Email != "" {
		lines = append(lines, "- Correo: "+d.Email)
	}
	if missing := d.Missing(); len(missing) > 0 {
		lines = append(lines, "- Pendiente: "+strings.Join(missing, ", "))
	}
	return strings.Join(lines, "\n")
}
