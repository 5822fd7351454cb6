package scheduling

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/wolfman30/lab-scheduling-assistant/internal/audit"
	"github.com/wolfman30/lab-scheduling-assistant/internal/notify"
	"github.com/wolfman30/lab-scheduling-assistant/pkg/logging"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

// PatientInfo is the patient block of a booking request.
type PatientInfo struct {
	FirstName      string `json:"firstName"`
	MiddleName     string `json:"middleName,omitempty"`
	LastName       string `json:"lastName"`
	SecondLastName string `json:"secondLastName,omitempty"`
	Cedula         string `json:"cedula"`
	Phone          string `json:"phone"`
	Email          string `json:"email,omitempty"`
	Address        string `json:"address,omitempty"`
	City           string `json:"city,omitempty"`
}

// BookingRequest is the raw create-appointment tool input.
type BookingRequest struct {
	Patient  *PatientInfo `json:"patientInfo"`
	Studies  []string     `json:"studies"`
	Date     string       `json:"date"`
	Time     string       `json:"time"`
	Location string       `json:"location"`
}

// ValidatedBooking is a request that passed every field check.
type ValidatedBooking struct {
	Patient  PatientInfo
	Studies  []string
	DateText string
	Time     string
	Location Location
}

// BookingResult is returned to the model and the client after a write.
type BookingResult struct {
	AppointmentID string   `json:"appointmentId"`
	PatientID     string   `json:"patientId"`
	PatientName   string   `json:"patientName"`
	Date          string   `json:"date"`
	DayName       string   `json:"dayName"`
	Time          string   `json:"time"`
	Location      Location `json:"location"`
	LocationName  string   `json:"locationName"`
	Studies       []string `json:"studies"`
	Status        string   `json:"status"`
	EmailSent     bool     `json:"emailSent"`
	Message       string   `json:"message"`
}

// Notifier delivers the post-booking confirmation.
type Notifier interface {
	NotifyAppointment(ctx context.Context, notice notify.AppointmentNotice) error
}

// Auditor records booking events; implementations swallow their own errors.
type Auditor interface {
	Record(ctx context.Context, event audit.Event)
}

// Validator checks booking fields in a fixed order and stops at the first
// failure.
type Validator struct {
	cities []string
}

// NewValidator builds a validator for the configured home-visit cities.
func NewValidator(cfg Config) *Validator {
	cfg = cfg.withDefaults()
	return &Validator{cities: cfg.HomeVisitCities}
}

// Validate normalizes req or returns a *ToolError naming the first bad field.
func (v *Validator) Validate(req BookingRequest) (*ValidatedBooking, error) {
	studies := make([]string, 0, len(req.Studies))
	for _, s := range req.Studies {
		if s = strings.TrimSpace(s); s != "" {
			studies = append(studies, s)
		}
	}
	if len(studies) == 0 {
		return nil, NewToolError(CodeStudiesRequired, "studies", "Debes indicar al menos un estudio.")
	}
	if strings.TrimSpace(req.Date) == "" {
		return nil, NewToolError(CodeDateRequired, "date", "Debes indicar la fecha de la cita.")
	}
	if req.Patient == nil {
		return nil, NewToolError(CodePatientRequired, "patientInfo", "Faltan los datos del paciente.")
	}
	p := *req.Patient
	p.FirstName = strings.TrimSpace(p.FirstName)
	p.MiddleName = strings.TrimSpace(p.MiddleName)
	p.LastName = strings.TrimSpace(p.LastName)
	p.SecondLastName = strings.TrimSpace(p.SecondLastName)
	p.Email = strings.TrimSpace(p.Email)
	p.Address = strings.TrimSpace(p.Address)
	if p.FirstName == "" {
		return nil, NewToolError(CodeFirstNameRequired, "firstName", "Falta el nombre del paciente.")
	}
	if p.LastName == "" {
		return nil, NewToolError(CodeLastNameRequired, "lastName", "Falta el apellido del paciente.")
	}
	if strings.TrimSpace(p.Cedula) == "" {
		return nil, NewToolError(CodeCedulaRequired, "cedula", "Falta la cédula del paciente.")
	}
	cedula, ok := NormalizeCedula(p.Cedula)
	if !ok {
		return nil, NewToolError(CodeCedulaInvalid, "cedula", "La cédula debe tener entre 7 y 9 dígitos.")
	}
	p.Cedula = cedula
	p.Phone = DigitsOnly(p.Phone)
	if p.Phone == "" {
		return nil, NewToolError(CodePhoneRequired, "phone", "Falta el teléfono de contacto.")
	}
	location, ok := NormalizeLocation(req.Location)
	if !ok {
		return nil, NewToolError(CodeLocationInvalid, "location", "La ubicación debe ser Sede Principal, Sede Colonia Tovar o domicilio.")
	}
	if location == LocationHomeVisit {
		if p.Address == "" {
			return nil, NewToolError(CodeAddressRequired, "address", "Para el servicio a domicilio necesito la dirección completa.")
		}
		city, ok := NormalizeCity(p.City, v.cities)
		if !ok {
			return nil, NewToolError(CodeCityInvalid, "city",
				fmt.Sprintf("El servicio a domicilio solo está disponible en: %s.", strings.Join(v.cities, ", ")))
		}
		p.City = city
	}
	if strings.TrimSpace(req.Time) == "" {
		return nil, NewToolError(CodeTimeRequired, "time", "Debes indicar la hora de la cita.")
	}
	hhmm, ok := NormalizeTime(req.Time)
	if !ok {
		return nil, NewToolError(CodeTimeInvalid, "time", "No pude entender la hora. Usa el formato HH:mm, por ejemplo 09:30.")
	}
	return &ValidatedBooking{
		Patient:  p,
		Studies:  studies,
		DateText: req.Date,
		Time:     hhmm,
		Location: location,
	}, nil
}

// WriterConfig wires the AppointmentWriter.
type WriterConfig struct {
	Calendar      Config
	NotifyTimeout time.Duration
	Notifier      Notifier
	Auditor       Auditor
	Logger        *logging.Logger
}

// AppointmentWriter validates, re-checks availability and persists a booking.
type AppointmentWriter struct {
	store         Store
	availability  *AvailabilityResolver
	validator     *Validator
	cfg           Config
	notifier      Notifier
	auditor       Auditor
	notifyTimeout time.Duration
	logger        *logging.Logger
}

// NewAppointmentWriter builds a writer over store.
func NewAppointmentWriter(store Store, wc WriterConfig) (*AppointmentWriter, error) {
	if wc.Logger == nil {
		wc.Logger = logging.Default()
	}
	if wc.NotifyTimeout <= 0 {
		wc.NotifyTimeout = 10 * time.Second
	}
	availability, err := NewAvailabilityResolver(store, wc.Calendar, wc.Logger)
	if err != nil {
		return nil, err
	}
	cfg := wc.Calendar.withDefaults()
	return &AppointmentWriter{
		store:         store,
		availability:  availability,
		validator:     NewValidator(cfg),
		cfg:           cfg,
		notifier:      wc.Notifier,
		auditor:       wc.Auditor,
		notifyTimeout: wc.NotifyTimeout,
		logger:        wc.Logger,
	}, nil
}

// Availability exposes the resolver the writer re-checks against.
func (w *AppointmentWriter) Availability() *AvailabilityResolver {
	return w.availability
}

// Book runs validation, the calendar checks and the conflict pre-check, then
// upserts the patient and inserts the appointment. Writes detach from the
// caller's cancellation so a slow client cannot leave a half-written booking.
func (w *AppointmentWriter) Book(ctx context.Context, req BookingRequest) (*BookingResult, error) {
	ctx, span := tracer.Start(ctx, "scheduling.book")
	defer span.End()

	vb, err := w.validator.Validate(req)
	if err != nil {
		span.SetStatus(codes.Error, "validation failed")
		return nil, err
	}

	date, ok := w.availability.dates.Resolve(vb.DateText)
	if !ok {
		return nil, invalidDateError(vb.DateText)
	}
	day, err := w.availability.dates.ParseISO(date)
	if err != nil {
		return nil, invalidDateError(vb.DateText)
	}
	span.SetAttributes(
		attribute.String("scheduling.date", date),
		attribute.String("scheduling.time", vb.Time),
		attribute.String("scheduling.location", string(vb.Location)),
	)
	if te := w.availability.checkOpenDay(ctx, day, date); te != nil {
		return nil, te
	}
	if !containsString(w.availability.grid, vb.Time) {
		return nil, &ToolError{
			Message: fmt.Sprintf("La hora %s está fuera del horario de atención (%s a %s).", vb.Time, w.cfg.OpenTime, w.cfg.CloseTime),
			Meta:    ErrorMeta{Code: CodeTimeUnavailable, Field: "time", Time: vb.Time},
		}
	}
	if w.availability.SlotElapsed(date, vb.Time) {
		return nil, &ToolError{
			Message: fmt.Sprintf("La hora %s de hoy ya pasó. Por favor elige una hora posterior u otro día.", vb.Time),
			Meta:    ErrorMeta{Code: CodeTimeUnavailable, Field: "time", Time: vb.Time},
		}
	}
	blockedSlots, err := w.store.BlockedSlotTimes(ctx, date, vb.Location)
	if err != nil {
		return nil, availabilityError(err)
	}
	if containsString(blockedSlots, vb.Time) {
		return nil, &ToolError{
			Message: fmt.Sprintf("La hora %s no está disponible ese día. Por favor elige otra hora.", vb.Time),
			Meta:    ErrorMeta{Code: CodeTimeUnavailable, Field: "time", Time: vb.Time},
		}
	}
	taken, err := w.availability.takenTimes(ctx, date)
	if err != nil {
		return nil, availabilityError(err)
	}
	if _, busy := taken[vb.Time]; busy {
		w.recordConflict(ctx, vb, date)
		return nil, slotTakenError(vb.Time)
	}

	scheduledAt, err := time.Parse(appointmentStampLayout, date+"T"+vb.Time+w.cfg.OffsetSuffix())
	if err != nil {
		return nil, storeError(fmt.Errorf("build timestamp: %w", err))
	}

	writeCtx := context.WithoutCancel(ctx)
	patient, err := w.upsertPatient(writeCtx, vb.Patient)
	if err != nil {
		w.logger.Error("patient upsert failed", "cedula", logging.MaskDigits(vb.Patient.Cedula), "error", err)
		span.RecordError(err)
		return nil, storeError(err)
	}

	appt, err := w.store.InsertAppointment(writeCtx, Appointment{
		PatientID:   patient.ID,
		ScheduledAt: scheduledAt,
		Date:        date,
		Time:        vb.Time,
		Studies:     vb.Studies,
		Location:    vb.Location,
		Status:      StatusScheduled,
	})
	if errors.Is(err, ErrSlotTaken) {
		w.recordConflict(writeCtx, vb, date)
		return nil, slotTakenError(vb.Time)
	}
	if err != nil {
		w.logger.Error("appointment insert failed", "date", date, "time", vb.Time, "error", err)
		span.RecordError(err)
		return nil, storeError(err)
	}

	result := &BookingResult{
		AppointmentID: appt.ID,
		PatientID:     patient.ID,
		PatientName:   patient.FullName(),
		Date:          date,
		DayName:       WeekdayName(day),
		Time:          vb.Time,
		Location:      vb.Location,
		LocationName:  vb.Location.DisplayName(),
		Studies:       vb.Studies,
		Status:        appt.Status,
	}
	result.EmailSent = w.notify(writeCtx, vb, patient, date)
	result.Message = ConfirmationMessage(result)

	w.logger.Info("appointment booked",
		"appointment_id", appt.ID,
		"patient_id", patient.ID,
		"date", date,
		"time", vb.Time,
		"location", vb.Location,
		"email_sent", result.EmailSent,
	)
	w.record(writeCtx, audit.EventBookingCreated, vb, map[string]any{
		"appointmentId": appt.ID,
		"date":          date,
		"time":          vb.Time,
		"location":      vb.Location,
	})
	return result, nil
}

func (w *AppointmentWriter) upsertPatient(ctx context.Context, info PatientInfo) (*Patient, error) {
	p := Patient{
		Cedula:         info.Cedula,
		FirstName:      info.FirstName,
		MiddleName:     info.MiddleName,
		LastName:       info.LastName,
		SecondLastName: info.SecondLastName,
		Phone:          info.Phone,
		Email:          info.Email,
		Address:        info.Address,
		City:           info.City,
	}
	existing, err := w.store.FindPatientByCedula(ctx, info.Cedula)
	switch {
	case err == nil:
		p.ID = existing.ID
	case errors.Is(err, ErrPatientNotFound):
		id, genErr := w.store.GeneratePatientID(ctx, info.FirstName, info.LastName)
		if genErr != nil {
			return nil, fmt.Errorf("generate patient id: %w", genErr)
		}
		p.ID = id
	default:
		return nil, fmt.Errorf("find patient: %w", err)
	}
	return w.store.UpsertPatient(ctx, p)
}

// notify sends the confirmation when the patient gave an email. Failures
// are logged and never undo the booking.
func (w *AppointmentWriter) notify(ctx context.Context, vb *ValidatedBooking, patient *Patient, date string) bool {
	if w.notifier == nil || vb.Patient.Email == "" {
		return false
	}
	ctx, cancel := context.WithTimeout(ctx, w.notifyTimeout)
	defer cancel()
	err := w.notifier.NotifyAppointment(ctx, notify.AppointmentNotice{
		To:          vb.Patient.Email,
		PatientName: patient.FullName(),
		Cedula:      vb.Patient.Cedula,
		Phone:       vb.Patient.Phone,
		Location:    vb.Location.DisplayName(),
		Studies:     vb.Studies,
		DateISO:     date + "T" + vb.Time + w.cfg.OffsetSuffix(),
	})
	if err != nil {
		w.logger.Warn("appointment notification failed", "patient_id", patient.ID, "error", err)
		return false
	}
	return true
}

func (w *AppointmentWriter) recordConflict(ctx context.Context, vb *ValidatedBooking, date string) {
	w.logger.Info("slot conflict", "date", date, "time", vb.Time, "location", vb.Location)
	w.record(ctx, audit.EventBookingConflict, vb, map[string]any{
		"date":     date,
		"time":     vb.Time,
		"location": vb.Location,
	})
}

func (w *AppointmentWriter) record(ctx context.Context, eventType audit.EventType, vb *ValidatedBooking, details map[string]any) {
	if w.auditor == nil {
		return
	}
	raw, _ := json.Marshal(details)
	w.auditor.Record(ctx, audit.Event{
		Type:    eventType,
		Cedula:  vb.Patient.Cedula,
		Studies: vb.Studies,
		Details: raw,
	})
}

func slotTakenError(hhmm string) *ToolError {
	return &ToolError{
		Message: fmt.Sprintf("La hora %s ya está ocupada. Por favor elige otra hora.", hhmm),
		Meta:    ErrorMeta{Code: CodeSlotTaken, Field: "time", Time: hhmm},
	}
}

// ConfirmationMessage is the deterministic Spanish confirmation for a booking.
func ConfirmationMessage(r *BookingResult) string {
	if r == nil {
		return ""
	}
	msg := fmt.Sprintf("¡Listo, %s! Tu cita quedó agendada para el %s %s a las %s en %s. Estudios: %s.",
		r.PatientName, r.DayName, r.Date, r.Time, r.LocationName, strings.Join(r.Studies, ", "))
	if r.EmailSent {
		msg += " Te enviamos la confirmación por correo."
	}
	return msg
}
