package conversation

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/wolfman30/lab-scheduling-assistant/internal/catalog"
	"github.com/wolfman30/lab-scheduling-assistant/internal/observability/metrics"
	"github.com/wolfman30/lab-scheduling-assistant/internal/scheduling"
	"github.com/wolfman30/lab-scheduling-assistant/pkg/logging"
	"go.opentelemetry.io/otel/attribute"
)

const (
	ToolGetStudiesInfo      = "getStudiesInfo"
	ToolGetAvailability     = "getAvailability"
	ToolGetAvailableHours   = "getAvailableHours"
	ToolScheduleAppointment = "scheduleAppointment"
)

// Codes for failures that happen before a tool runs.
const (
	CodeUnknownTool      = "UNKNOWN_TOOL"
	CodeInvalidArguments = "INVALID_ARGUMENTS"
)

var dateParam = &ParamSchema{
	Type:        "string",
	Description: "Fecha pedida por el paciente: YYYY-MM-DD, DD/MM, un día de la semana (lunes) o hoy/mañana.",
}

// ToolSpecs declares the four scheduling tools.
func ToolSpecs() []ToolSpec {
	return []ToolSpec{
		{
			Name:        ToolGetStudiesInfo,
			Description: "Consulta descripción, preparación, precio y tiempo de entrega de un estudio de laboratorio.",
			Parameters: &ParamSchema{
				Type: "object",
				Properties: map[string]*ParamSchema{
					"studyName": {Type: "string", Description: "Nombre del estudio tal como lo dijo el paciente."},
				},
				Required: []string{"studyName"},
			},
		},
		{
			Name:        ToolGetAvailability,
			Description: "Indica qué días de la semana de la fecha pedida están abiertos y, si ese día está disponible, sus horas libres.",
			Parameters: &ParamSchema{
				Type:       "object",
				Properties: map[string]*ParamSchema{"date": dateParam},
				Required:   []string{"date"},
			},
		},
		{
			Name:        ToolGetAvailableHours,
			Description: "Lista las horas libres de una fecha ya confirmada.",
			Parameters: &ParamSchema{
				Type:       "object",
				Properties: map[string]*ParamSchema{"date": dateParam},
				Required:   []string{"date"},
			},
		},
		{
			Name:        ToolScheduleAppointment,
			Description: "Registra la cita cuando el paciente confirmó estudios, fecha, hora, sede y sus datos.",
			Parameters: &ParamSchema{
				Type: "object",
				Properties: map[string]*ParamSchema{
					"patientInfo": {
						Type: "object",
						Properties: map[string]*ParamSchema{
							"firstName":      {Type: "string", Description: "Primer nombre."},
							"middleName":     {Type: "string", Description: "Segundo nombre, si lo tiene."},
							"lastName":       {Type: "string", Description: "Primer apellido."},
							"secondLastName": {Type: "string", Description: "Segundo apellido, si lo tiene."},
							"cedula":         {Type: "string", Description: "Cédula de identidad, de 7 a 9 dígitos."},
							"phone":          {Type: "string", Description: "Teléfono de contacto."},
							"email":          {Type: "string", Description: "Correo electrónico (opcional)."},
							"address":        {Type: "string", Description: "Dirección, obligatoria para domicilio."},
							"city":           {Type: "string", Description: "Ciudad, obligatoria para domicilio."},
						},
						Required: []string{"firstName", "lastName", "cedula", "phone"},
					},
					"studies": {
						Type:        "array",
						Description: "Estudios a realizar.",
						Items:       &ParamSchema{Type: "string"},
					},
					"date": dateParam,
					"time": {Type: "string", Description: "Hora en formato HH:mm (24 horas)."},
					"location": {
						Type:        "string",
						Description: "Sede de la cita.",
						Enum:        []string{string(scheduling.LocationMainSite), string(scheduling.LocationColoniaTovar), string(scheduling.LocationHomeVisit)},
					},
				},
				Required: []string{"patientInfo", "studies", "date", "time", "location"},
			},
		},
	}
}

// ToolOutcome is one executed call. Payload is the JSON string returned to
// the model.
type ToolOutcome struct {
	Call         ToolCall
	Payload      string
	Message      string
	Meta         *scheduling.ErrorMeta
	Booking      *scheduling.BookingResult
	Availability any
}

// Failed reports a tool that returned an error payload.
func (o ToolOutcome) Failed() bool {
	return o.Meta != nil
}

// ToolExecutor runs model tool calls against the scheduling core.
type ToolExecutor struct {
	catalog      *catalog.Service
	availability *scheduling.AvailabilityResolver
	writer       *scheduling.AppointmentWriter
	readTimeout  time.Duration
	metrics      *metrics.ChatMetrics
	logger       *logging.Logger
}

// NewToolExecutor wires the executor. readTimeout bounds catalog and
// availability reads; bookings are never raced.
func NewToolExecutor(cat *catalog.Service, writer *scheduling.AppointmentWriter, readTimeout time.Duration, m *metrics.ChatMetrics, logger *logging.Logger) (*ToolExecutor, error) {
	if writer == nil {
		return nil, errors.New("conversation: appointment writer required")
	}
	if cat == nil {
		return nil, errors.New("conversation: catalog service required")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &ToolExecutor{
		catalog:      cat,
		availability: writer.Availability(),
		writer:       writer,
		readTimeout:  readTimeout,
		metrics:      m,
		logger:       logger,
	}, nil
}

// Execute runs one call. Failures are encoded in the outcome, never returned.
func (e *ToolExecutor) Execute(ctx context.Context, call ToolCall) ToolOutcome {
	ctx, span := tracer.Start(ctx, "conversation.tool")
	defer span.End()
	span.SetAttributes(attribute.String("tool.name", call.Name))

	out := ToolOutcome{Call: call}
	value, err := e.dispatch(ctx, call)
	if err != nil {
		te := e.toToolError(call, err)
		meta := te.Meta
		out.Meta = &meta
		out.Message = te.Message
		out.Payload = mustJSON(te)
		e.metrics.ObserveToolCall(call.Name, "error")
		if call.Name == ToolScheduleAppointment {
			e.metrics.ObserveBooking(meta.Code)
		}
		e.logger.Info("tool call failed", "tool", call.Name, "code", meta.Code, "field", meta.Field)
		return out
	}

	switch v := value.(type) {
	case *scheduling.BookingResult:
		out.Booking = v
		out.Message = v.Message
		e.metrics.ObserveBooking("ok")
	case *scheduling.WeekAvailability:
		out.Availability = v
		out.Message = v.Message
	case *scheduling.DayAvailability:
		out.Availability = v
		out.Message = v.Message
	}
	out.Payload = mustJSON(value)
	e.metrics.ObserveToolCall(call.Name, "ok")
	return out
}

func (e *ToolExecutor) dispatch(ctx context.Context, call ToolCall) (any, error) {
	switch call.Name {
	case ToolGetStudiesInfo:
		var args struct {
			StudyName string `json:"studyName"`
		}
		if err := decodeArgs(call.Args, &args); err != nil {
			return nil, err
		}
		return raceWithTimeout(ctx, e.readTimeout, func(ctx context.Context) (*catalog.LookupResult, error) {
			return e.catalog.Lookup(ctx, args.StudyName)
		})
	case ToolGetAvailability, ToolGetAvailableHours:
		var args struct {
			Date string `json:"date"`
		}
		if err := decodeArgs(call.Args, &args); err != nil {
			return nil, err
		}
		if strings.TrimSpace(args.Date) == "" {
			return nil, scheduling.NewToolError(scheduling.CodeDateRequired, "date", "Debes indicar la fecha que quieres consultar.")
		}
		if call.Name == ToolGetAvailability {
			return raceWithTimeout(ctx, e.readTimeout, func(ctx context.Context) (*scheduling.WeekAvailability, error) {
				return e.availability.Week(ctx, args.Date)
			})
		}
		return raceWithTimeout(ctx, e.readTimeout, func(ctx context.Context) (*scheduling.DayAvailability, error) {
			return e.availability.Day(ctx, args.Date)
		})
	case ToolScheduleAppointment:
		req, err := decodeBookingArgs(call.Args)
		if err != nil {
			return nil, err
		}
		return e.writer.Book(ctx, req)
	default:
		return nil, scheduling.NewToolError(CodeUnknownTool, "", fmt.Sprintf("La herramienta %q no existe.", call.Name))
	}
}

func (e *ToolExecutor) toToolError(call ToolCall, err error) *scheduling.ToolError {
	if te, ok := scheduling.AsToolError(err); ok {
		if te.Cause != nil {
			e.logger.Error("tool call store failure", "tool", call.Name, "code", te.Meta.Code, "error", te.Cause)
		}
		return te
	}
	e.logger.Warn("tool call did not complete", "tool", call.Name, "error", err)
	if call.Name == ToolGetStudiesInfo {
		return &scheduling.ToolError{
			Message: "No pude consultar el catálogo de estudios en este momento.",
			Meta:    scheduling.ErrorMeta{Code: scheduling.CodeStoreError, Field: "studyName"},
			Cause:   err,
		}
	}
	return &scheduling.ToolError{
		Message: availabilityFallbackText,
		Meta:    scheduling.ErrorMeta{Code: scheduling.CodeAvailabilityError, Field: "date"},
		Cause:   err,
	}
}

func decodeArgs(raw json.RawMessage, v any) error {
	if len(raw) == 0 {
		raw = json.RawMessage("{}")
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return invalidArgs(err)
	}
	return nil
}

func invalidArgs(cause error) *scheduling.ToolError {
	return &scheduling.ToolError{
		Message: "Los parámetros de la herramienta no son válidos.",
		Meta:    scheduling.ErrorMeta{Code: CodeInvalidArguments},
		Cause:   cause,
	}
}

// decodeBookingArgs accepts studies as an array or a comma separated string.
func decodeBookingArgs(raw json.RawMessage) (scheduling.BookingRequest, error) {
	var args struct {
		Patient  *scheduling.PatientInfo `json:"patientInfo"`
		Studies  json.RawMessage         `json:"studies"`
		Date     string                  `json:"date"`
		Time     string                  `json:"time"`
		Location string                  `json:"location"`
	}
	if err := decodeArgs(raw, &args); err != nil {
		return scheduling.BookingRequest{}, err
	}
	req := scheduling.BookingRequest{Patient: args.Patient, Date: args.Date, Time: args.Time, Location: args.Location}
	if len(args.Studies) > 0 && string(args.Studies) != "null" {
		if err := json.Unmarshal(args.Studies, &req.Studies); err != nil {
			var joined string
			if jerr := json.Unmarshal(args.Studies, &joined); jerr != nil {
				return scheduling.BookingRequest{}, invalidArgs(err)
			}
			req.Studies = strings.Split(joined, ",")
		}
	}
	return req, nil
}

func mustJSON(v any) string {
	data, err := json.Marshal(v)
	if err != nil {
		return `{"error":"No pude serializar el resultado."}`
	}
	return string(data)
}
