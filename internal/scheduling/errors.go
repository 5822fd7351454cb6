package scheduling

import (
	"encoding/json"
	"errors"
	"fmt"
)

var (
	// ErrPatientNotFound is returned by stores when no patient has the cedula.
	ErrPatientNotFound = errors.New("scheduling: patient not found")
	// ErrSlotTaken is returned by stores when the slot uniqueness constraint fires.
	ErrSlotTaken = errors.New("scheduling: slot already booked")
)

// Machine-readable codes carried in ToolError meta.
const (
	CodeStudiesRequired   = "STUDIES_REQUIRED"
	CodeDateRequired      = "DATE_REQUIRED"
	CodePatientRequired   = "PATIENT_REQUIRED"
	CodeFirstNameRequired = "FIRST_NAME_REQUIRED"
	CodeLastNameRequired  = "LAST_NAME_REQUIRED"
	CodeCedulaRequired    = "CEDULA_REQUIRED"
	CodeCedulaInvalid     = "CEDULA_INVALID"
	CodePhoneRequired     = "PHONE_REQUIRED"
	CodeLocationInvalid   = "LOCATION_INVALID"
	CodeAddressRequired   = "ADDRESS_REQUIRED"
	CodeCityInvalid       = "CITY_INVALID"
	CodeTimeRequired      = "TIME_REQUIRED"
	CodeTimeInvalid       = "TIME_INVALID"
	CodeInvalidDate       = "INVALID_DATE"
	CodeDateBlocked       = "DATE_BLOCKED"
	CodeDateUnavailable   = "DATE_UNAVAILABLE"
	CodeTimeUnavailable   = "TIME_UNAVAILABLE"
	CodeSlotTaken         = "SLOT_TAKEN"
	CodeAvailabilityError = "AVAILABILITY_ERROR"
	CodeStudyNotFound     = "STUDY_NOT_FOUND"
	CodeStoreError        = "STORE_ERROR"
)

// ExpectedDateFormat is echoed back when a date cannot be resolved.
const ExpectedDateFormat = "YYYY-MM-DD, DD/MM o un día de la semana (ej. lunes)"

// ErrorMeta is the structured context attached to a failed tool call.
type ErrorMeta struct {
	Code     string `json:"code"`
	Field    string `json:"field,omitempty"`
	Expected string `json:"expected,omitempty"`
	Time     string `json:"time,omitempty"`
}

// ToolError is a domain failure reported to the model and the client as
// {"error": ..., "meta": {...}} instead of being raised.
type ToolError struct {
	Message string
	Meta    ErrorMeta
	// Cause is kept for operator logs only and never serialized.
	Cause error
}

func (e *ToolError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s (%s): %v", e.Message, e.Meta.Code, e.Cause)
	}
	return fmt.Sprintf("%s (%s)", e.Message, e.Meta.Code)
}

func (e *ToolError) Unwrap() error { return e.Cause }

// MarshalJSON renders the tool contract shape.
func (e *ToolError) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Error string    `json:"error"`
		Meta  ErrorMeta `json:"meta"`
	}{Error: e.Message, Meta: e.Meta})
}

// NewToolError builds a ToolError without an underlying cause.
func NewToolError(code, field, message string) *ToolError {
	return &ToolError{Message: message, Meta: ErrorMeta{Code: code, Field: field}}
}

func invalidDateError(raw string) *ToolError {
	msg := "No pude entender la fecha indicada."
	if raw == "" {
		msg = "Debes indicar la fecha de la cita."
	}
	return &ToolError{
		Message: msg,
		Meta:    ErrorMeta{Code: CodeInvalidDate, Field: "date", Expected: ExpectedDateFormat},
	}
}

func availabilityError(cause error) *ToolError {
	return &ToolError{
		Message: "No pude verificar la disponibilidad en este momento. Intenta de nuevo en unos segundos.",
		Meta:    ErrorMeta{Code: CodeAvailabilityError, Field: "date"},
		Cause:   cause,
	}
}

func storeError(cause error) *ToolError {
	return &ToolError{
		Message: "No pude registrar la cita en este momento. Por favor intenta de nuevo.",
		Meta:    ErrorMeta{Code: CodeStoreError},
		Cause:   cause,
	}
}

// AsToolError extracts a ToolError from err.
func AsToolError(err error) (*ToolError, bool) {
	var te *ToolError
	if errors.As(err, &te) {
		return te, true
	}
	return nil, false
}
