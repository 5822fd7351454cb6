package scheduling

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryStore is an in-process Store used when DATABASE_URL is unset and in
// tests. It enforces the same slot uniqueness as the Postgres index.
type MemoryStore struct {
	mu           sync.Mutex
	patients     map[string]*Patient
	appointments []Appointment
	blockedDays  map[string]BlockedDay
	blockedSlots map[BlockedSlot]struct{}
	patientSeq   int
	now          func() time.Time
}

// NewMemoryStore creates an empty store in the clinic zone.
func NewMemoryStore(cfg Config) *MemoryStore {
	cfg = cfg.withDefaults()
	return &MemoryStore{
		patients:     make(map[string]*Patient),
		blockedDays:  make(map[string]BlockedDay),
		blockedSlots: make(map[BlockedSlot]struct{}),
		now:          cfg.Now,
	}
}

func (s *MemoryStore) BlockedDaysBetween(_ context.Context, from, to string) ([]BlockedDay, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []BlockedDay
	for date, day := range s.blockedDays {
		if date >= from && date <= to {
			out = append(out, day)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Date < out[j].Date })
	return out, nil
}

func (s *MemoryStore) IsDayBlocked(_ context.Context, date string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.blockedDays[date]
	return ok, nil
}

func (s *MemoryStore) BookedTimes(_ context.Context, date string) ([]time.Time, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []time.Time
	for _, a := range s.appointments {
		if a.Date == date && a.Status != StatusCancelled {
			out = append(out, a.ScheduledAt)
		}
	}
	return out, nil
}

func (s *MemoryStore) BlockedSlotTimes(_ context.Context, date string, location Location) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []string
	for slot := range s.blockedSlots {
		if slot.Date == date && slot.Location == location {
			out = append(out, slot.Time)
		}
	}
	sort.Strings(out)
	return out, nil
}

func (s *MemoryStore) FindPatientByCedula(_ context.Context, cedula string) (*Patient, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.patients[cedula]
	if !ok {
		return nil, ErrPatientNotFound
	}
	cp := *p
	return &cp, nil
}

// GeneratePatientID mirrors the generate_patient_id SQL function:
// initials plus a zero-padded sequence.
func (s *MemoryStore) GeneratePatientID(_ context.Context, firstName, lastName string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.patientSeq++
	return fmt.Sprintf("%s%s-%06d", initial(firstName), initial(lastName), s.patientSeq), nil
}

func initial(name string) string {
	folded := strings.TrimSpace(Fold(name))
	for _, r := range folded {
		if r >= 'a' && r <= 'z' {
			return strings.ToUpper(string(r))
		}
	}
	return "X"
}

func (s *MemoryStore) UpsertPatient(_ context.Context, p Patient) (*Patient, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now()
	if existing, ok := s.patients[p.Cedula]; ok {
		existing.FirstName = p.FirstName
		existing.MiddleName = p.MiddleName
		existing.LastName = p.LastName
		existing.SecondLastName = p.SecondLastName
		existing.Phone = p.Phone
		if p.Email != "" {
			existing.Email = p.Email
		}
		if p.Address != "" {
			existing.Address = p.Address
		}
		if p.City != "" {
			existing.City = p.City
		}
		existing.UpdatedAt = now
		cp := *existing
		return &cp, nil
	}
	if p.ID == "" {
		return nil, fmt.Errorf("scheduling: patient id required")
	}
	p.CreatedAt, p.UpdatedAt = now, now
	stored := p
	s.patients[p.Cedula] = &stored
	return &p, nil
}

func (s *MemoryStore) InsertAppointment(_ context.Context, a Appointment) (*Appointment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.appointments {
		if existing.Status != StatusCancelled && existing.Date == a.Date && existing.Time == a.Time && existing.Location == a.Location {
			return nil, ErrSlotTaken
		}
	}
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	if a.Status == "" {
		a.Status = StatusScheduled
	}
	a.CreatedAt = s.now()
	a.Studies = append([]string(nil), a.Studies...)
	s.appointments = append(s.appointments, a)
	return &a, nil
}

// Appointments returns a copy of every stored appointment.
func (s *MemoryStore) Appointments() []Appointment {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Appointment(nil), s.appointments...)
}

func (s *MemoryStore) AddBlockedDay(_ context.Context, day BlockedDay) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.blockedDays[day.Date] = day
	return nil
}

func (s *MemoryStore) RemoveBlockedDay(_ context.Context, date string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.blockedDays, date)
	return nil
}

func (s *MemoryStore) AddBlockedSlot(_ context.Context, slot BlockedSlot) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.blockedSlots[slot] = struct{}{}
	return nil
}

func (s *MemoryStore) RemoveBlockedSlot(_ context.Context, slot BlockedSlot) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.blockedSlots, slot)
	return nil
}
