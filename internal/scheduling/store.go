package scheduling

import (
	"context"
	"time"
)

// AvailabilityStore is the read side consulted before offering dates.
type AvailabilityStore interface {
	BlockedDaysBetween(ctx context.Context, from, to string) ([]BlockedDay, error)
	IsDayBlocked(ctx context.Context, date string) (bool, error)
	// BookedTimes returns scheduled_at of every non-cancelled appointment on date.
	BookedTimes(ctx context.Context, date string) ([]time.Time, error)
	BlockedSlotTimes(ctx context.Context, date string, location Location) ([]string, error)
}

// PatientStore owns patient identity records.
type PatientStore interface {
	FindPatientByCedula(ctx context.Context, cedula string) (*Patient, error)
	GeneratePatientID(ctx context.Context, firstName, lastName string) (string, error)
	// UpsertPatient inserts or, on cedula conflict, refreshes contact fields.
	UpsertPatient(ctx context.Context, p Patient) (*Patient, error)
}

// AppointmentStore persists bookings. InsertAppointment returns ErrSlotTaken
// when another live appointment already holds date, time and location.
type AppointmentStore interface {
	InsertAppointment(ctx context.Context, a Appointment) (*Appointment, error)
}

// CalendarAdmin manages blocked days and slots from the staff surface.
type CalendarAdmin interface {
	BlockedDaysBetween(ctx context.Context, from, to string) ([]BlockedDay, error)
	AddBlockedDay(ctx context.Context, day BlockedDay) error
	RemoveBlockedDay(ctx context.Context, date string) error
	AddBlockedSlot(ctx context.Context, slot BlockedSlot) error
	RemoveBlockedSlot(ctx context.Context, slot BlockedSlot) error
}

// Store is everything the booking flow touches.
type Store interface {
	AvailabilityStore
	PatientStore
	AppointmentStore
	CalendarAdmin
}
