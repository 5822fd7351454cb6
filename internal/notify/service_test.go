package notify

import (
	"context"
	"errors"
	"strings"
	"testing"
)

type recordingSender struct {
	msgs []Email
	err  error
}

func (r *recordingSender) Send(ctx context.Context, msg Email) error {
	r.msgs = append(r.msgs, msg)
	return r.err
}

func sampleNotice() AppointmentNotice {
	return AppointmentNotice{
		To:          "ana@example.com",
		PatientName: "Ana Pérez",
		Cedula:      "12345678",
		Phone:       "04141234567",
		Location:    "Sede Principal (Maracay)",
		Studies:     []string{"Hematología completa", "Glicemia"},
		DateISO:     "2026-10-19T09:30-04:00",
	}
}

func TestNotifyAppointment_SendsConfirmation(t *testing.T) {
	sender := &recordingSender{}
	svc := NewService(sender, "Laboratorio Central", nil)

	if err := svc.NotifyAppointment(context.Background(), sampleNotice()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(sender.msgs) != 1 {
		t.Fatalf("expected one email, got %d", len(sender.msgs))
	}
	msg := sender.msgs[0]
	if msg.To != "ana@example.com" || msg.ToName != "Ana Pérez" {
		t.Errorf("unexpected recipient %s <%s>", msg.ToName, msg.To)
	}
	if !strings.Contains(msg.Subject, "Laboratorio Central") {
		t.Errorf("subject should name the clinic, got %q", msg.Subject)
	}
	if !strings.Contains(msg.Text, "19/10/2026 a las 09:30") {
		t.Errorf("text should carry the local date and time, got %q", msg.Text)
	}
	if strings.Contains(msg.Text, "12345678") || strings.Contains(msg.HTML, "12345678") {
		t.Error("bodies should not carry the full cedula")
	}
	if !strings.Contains(msg.HTML, "<li>Glicemia</li>") {
		t.Errorf("html should list studies, got %q", msg.HTML)
	}
	if msg.Category != confirmationCategory {
		t.Errorf("expected confirmation category, got %q", msg.Category)
	}
}

func TestRenderConfirmation(t *testing.T) {
	notice := sampleNotice()
	notice.PatientName = "Ana <b>Pérez</b>"
	notice.To = " ana@example.com "
	msg := renderConfirmation("Laboratorio Central", notice)

	if msg.To != "ana@example.com" {
		t.Errorf("recipient should be trimmed, got %q", msg.To)
	}
	if msg.Subject != "Confirmación de cita 19/10/2026 a las 09:30 - Laboratorio Central" {
		t.Errorf("unexpected subject %q", msg.Subject)
	}
	for _, line := range []string{"  - Hematología completa\n", "  - Glicemia\n", "Cédula: *****678\n", "Lugar: Sede Principal (Maracay)\n"} {
		if !strings.Contains(msg.Text, line) {
			t.Errorf("text missing %q:\n%s", line, msg.Text)
		}
	}
	if strings.Contains(msg.HTML, "<b>") || !strings.Contains(msg.HTML, "Ana &lt;b&gt;Pérez&lt;/b&gt;") {
		t.Errorf("html should escape the patient name, got %q", msg.HTML)
	}
	if !strings.HasSuffix(msg.Text, "Laboratorio Central") {
		t.Errorf("text should be signed by the clinic, got %q", msg.Text)
	}
}

func TestRenderConfirmation_UnparseableStampPassesThrough(t *testing.T) {
	notice := sampleNotice()
	notice.DateISO = "lunes por la mañana"
	msg := renderConfirmation("Lab", notice)
	if !strings.Contains(msg.Text, "Fecha: lunes por la mañana\n") {
		t.Errorf("expected raw stamp in text, got %q", msg.Text)
	}
}

func TestNotifyAppointment_SenderError(t *testing.T) {
	svc := NewService(&recordingSender{err: errors.New("smtp down")}, "", nil)
	err := svc.NotifyAppointment(context.Background(), sampleNotice())
	if err == nil || !strings.Contains(err.Error(), "smtp down") {
		t.Fatalf("expected wrapped sender error, got %v", err)
	}
}

func TestNotifyAppointment_NoSenderIsNoop(t *testing.T) {
	svc := NewService(nil, "", nil)
	if err := svc.NotifyAppointment(context.Background(), sampleNotice()); err != nil {
		t.Fatalf("expected nil error without sender, got %v", err)
	}
}

func TestNotifyAppointment_RequiresRecipient(t *testing.T) {
	notice := sampleNotice()
	notice.To = " "
	if err := NewService(&recordingSender{}, "", nil).NotifyAppointment(context.Background(), notice); err == nil {
		t.Fatal("expected error without recipient")
	}
}
