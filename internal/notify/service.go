package notify

import (
	"context"
	"fmt"
	"strings"

	"github.com/wolfman30/lab-scheduling-assistant/pkg/logging"
)

// AppointmentNotice is the confirmation payload sent after a booking.
type AppointmentNotice struct {
	To          string   `json:"to"`
	PatientName string   `json:"patientName"`
	Cedula      string   `json:"cedula"`
	Phone       string   `json:"phone"`
	Location    string   `json:"location"`
	Studies     []string `json:"studies"`
	DateISO     string   `json:"dateIso"`
}

// Service renders and sends patient-facing confirmations.
type Service struct {
	email      EmailSender
	clinicName string
	logger     *logging.Logger
}

// NewService creates a notification service.
func NewService(email EmailSender, clinicName string, logger *logging.Logger) *Service {
	if logger == nil {
		logger = logging.Default()
	}
	if clinicName == "" {
		clinicName = defaultFromName
	}
	return &Service{email: email, clinicName: clinicName, logger: logger}
}

// NotifyAppointment emails the appointment confirmation.
func (s *Service) NotifyAppointment(ctx context.Context, notice AppointmentNotice) error {
	if s.email == nil {
		s.logger.Debug("notify: email sender not configured, skipping confirmation")
		return nil
	}
	if strings.TrimSpace(notice.To) == "" {
		return fmt.Errorf("notify: recipient required")
	}
	if err := s.email.Send(ctx, renderConfirmation(s.clinicName, notice)); err != nil {
		return fmt.Errorf("notify: appointment confirmation: %w", err)
	}
	s.logger.Info("appointment confirmation sent", "to", logging.MaskEmail(notice.To), "date", notice.DateISO)
	return nil
}
