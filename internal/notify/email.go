package notify

import (
	"context"
	"fmt"
	"html"
	"strings"
	"time"

	"github.com/wolfman30/lab-scheduling-assistant/pkg/logging"
)

const (
	defaultFromName      = "Laboratorio Clínico"
	confirmationCategory = "appointment-confirmation"
	noticeStampLayout    = "2006-01-02T15:04-07:00"
)

// Email is a rendered message. Providers only deliver it; every word of
// the copy is decided by the renderers in this file.
type Email struct {
	To       string
	ToName   string
	Subject  string
	Text     string
	HTML     string
	Category string
}

// EmailSender delivers a rendered Email.
type EmailSender interface {
	Send(ctx context.Context, msg Email) error
}

// noticeWhen renders the notice stamp as "19/10/2026 a las 09:30" in the
// stamp's own offset. Unparseable stamps pass through.
func noticeWhen(stamp string) string {
	t, err := time.Parse(noticeStampLayout, stamp)
	if err != nil {
		return stamp
	}
	return fmt.Sprintf("%s a las %s", t.Format("02/01/2006"), t.Format("15:04"))
}

// renderConfirmation turns a booking notice into the patient email. The
// cedula is masked in both bodies.
func renderConfirmation(clinic string, n AppointmentNotice) Email {
	when := noticeWhen(n.DateISO)
	cedula := logging.MaskDigits(n.Cedula)

	var text strings.Builder
	fmt.Fprintf(&text, "Hola %s,\n\nTu cita quedó agendada.\n\n", n.PatientName)
	fmt.Fprintf(&text, "Fecha: %s\nLugar: %s\n", when, n.Location)
	text.WriteString("Estudios:\n")
	for _, st := range n.Studies {
		fmt.Fprintf(&text, "  - %s\n", st)
	}
	fmt.Fprintf(&text, "Cédula: %s\nTeléfono: %s\n\n", cedula, n.Phone)
	text.WriteString("Recuerda asistir en ayunas si alguno de tus estudios lo requiere.\n\n")
	text.WriteString(clinic)

	var body strings.Builder
	fmt.Fprintf(&body, "<p>Hola %s,</p>\n<p>Tu cita quedó agendada.</p>\n", html.EscapeString(n.PatientName))
	fmt.Fprintf(&body, "<p><strong>Fecha:</strong> %s<br><strong>Lugar:</strong> %s</p>\n",
		html.EscapeString(when), html.EscapeString(n.Location))
	body.WriteString("<ul>")
	for _, st := range n.Studies {
		body.WriteString("<li>" + html.EscapeString(st) + "</li>")
	}
	body.WriteString("</ul>\n")
	fmt.Fprintf(&body, "<p><strong>Cédula:</strong> %s</p>\n<p>%s</p>", html.EscapeString(cedula), html.EscapeString(clinic))

	return Email{
		To:       strings.TrimSpace(n.To),
		ToName:   n.PatientName,
		Subject:  fmt.Sprintf("Confirmación de cita %s - %s", when, clinic),
		Text:     text.String(),
		HTML:     body.String(),
		Category: confirmationCategory,
	}
}

// LogSender records confirmations in the log instead of delivering them.
// It is the fallback when no provider is configured.
type LogSender struct {
	logger *logging.Logger
}

func NewLogSender(logger *logging.Logger) *LogSender {
	if logger == nil {
		logger = logging.Default()
	}
	return &LogSender{logger: logger}
}

func (s *LogSender) Send(ctx context.Context, msg Email) error {
	s.logger.Info("email delivery disabled, confirmation logged only",
		"to", logging.MaskEmail(msg.To),
		"subject", msg.Subject,
		"category", msg.Category,
	)
	return nil
}

var _ EmailSender = (*LogSender)(nil)
