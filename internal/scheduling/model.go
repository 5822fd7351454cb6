// Package scheduling resolves clinic availability and books lab appointments.
package scheduling

import (
	"strings"
	"time"
)

// Location is one of the three places a sample can be taken.
type Location string

const (
	LocationMainSite      Location = "sede_principal"
	LocationColoniaTovar  Location = "sede_colonia_tovar"
	LocationHomeVisit     Location = "domicilio"
	StatusScheduled                = "scheduled"
	StatusCancelled                = "cancelled"
	isoDateLayout                  = "2006-01-02"
	clockLayout                    = "15:04"
	appointmentStampLayout         = "2006-01-02T15:04-07:00"
)

// Locations lists the enumerated locations in display order.
var Locations = []Location{LocationMainSite, LocationColoniaTovar, LocationHomeVisit}

// Valid reports whether l is one of the enumerated values.
func (l Location) Valid() bool {
	switch l {
	case LocationMainSite, LocationColoniaTovar, LocationHomeVisit:
		return true
	}
	return false
}

// DisplayName is the patient-facing label.
func (l Location) DisplayName() string {
	switch l {
	case LocationMainSite:
		return "Sede Principal (Maracay)"
	case LocationColoniaTovar:
		return "Sede Colonia Tovar"
	case LocationHomeVisit:
		return "Servicio a domicilio"
	}
	return string(l)
}

// Patient is keyed by cedula (identity number).
type Patient struct {
	ID             string
	Cedula         string
	FirstName      string
	MiddleName     string
	LastName       string
	SecondLastName string
	Phone          string
	Email          string
	Address        string
	City           string
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// FullName joins the non-empty name parts.
func (p Patient) FullName() string {
	parts := make([]string, 0, 4)
	for _, s := range []string{p.FirstName, p.MiddleName, p.LastName, p.SecondLastName} {
		if s = strings.TrimSpace(s); s != "" {
			parts = append(parts, s)
		}
	}
	return strings.Join(parts, " ")
}

// Appointment is never updated by the chat flow once inserted.
type Appointment struct {
	ID          string
	PatientID   string
	ScheduledAt time.Time
	Date        string
	Time        string
	Studies     []string
	Location    Location
	Status      string
	CreatedAt   time.Time
}

// BlockedDay closes a whole calendar date.
type BlockedDay struct {
	Date   string `json:"date"`
	Reason string `json:"reason,omitempty"`
}

// BlockedSlot closes one time of day at one location.
type BlockedSlot struct {
	Date     string   `json:"date"`
	Time     string   `json:"time"`
	Location Location `json:"location"`
}
