package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/brianvoe/gofakeit/v7"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"

	"github.com/wolfman30/lab-scheduling-assistant/internal/app/bootstrap"
	"github.com/wolfman30/lab-scheduling-assistant/internal/catalog"
	appconfig "github.com/wolfman30/lab-scheduling-assistant/internal/config"
	"github.com/wolfman30/lab-scheduling-assistant/internal/scheduling"
	"github.com/wolfman30/lab-scheduling-assistant/pkg/logging"
)

func main() {
	_ = godotenv.Load()

	days := flag.Int("days", 14, "number of days ahead to fill")
	perDay := flag.Int("per-day", 6, "appointments per open day")
	blocked := flag.Int("blocked", 2, "blocked days to add")
	flag.Parse()

	cfg := appconfig.Load()
	logger := logging.NewWithFormat(cfg.LogLevel, "text", os.Stdout)
	if strings.TrimSpace(cfg.DatabaseURL) == "" {
		logger.Error("DATABASE_URL is required")
		os.Exit(1)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
	if err != nil {
		logger.Error("connect postgres", "error", err)
		os.Exit(1)
	}
	defer pool.Close()

	calendar := bootstrap.CalendarConfig(cfg)
	plan, err := buildPlan(gofakeit.New(0), calendar, *days, *perDay, *blocked)
	if err != nil {
		logger.Error("build seed plan", "error", err)
		os.Exit(1)
	}

	if err := seedStudies(ctx, pool, catalog.DefaultStudies()); err != nil {
		logger.Error("seed studies", "error", err)
		os.Exit(1)
	}
	stats, err := applyPlan(ctx, scheduling.NewPostgresStore(pool), plan)
	if err != nil {
		logger.Error("seed schedule", "error", err)
		os.Exit(1)
	}
	logger.Info("seed complete",
		"studies", len(catalog.DefaultStudies()),
		"patients", stats.patients,
		"appointments", stats.appointments,
		"skipped_slots", stats.skipped,
		"blocked_days", stats.blockedDays,
	)
}

type seedBooking struct {
	patient     scheduling.Patient
	appointment scheduling.Appointment
}

type seedPlan struct {
	blockedDays []scheduling.BlockedDay
	bookings    []seedBooking
}

type seedStats struct {
	patients, appointments, skipped, blockedDays int
}

var blockReasons = []string{"Mantenimiento de equipos", "Jornada de inventario", "Feriado regional", "Capacitación del personal"}

// buildPlan spreads fake bookings over the open days starting tomorrow.
// Sundays are skipped and the first blocked days are taken from the tail of
// the window so they never collide with a seeded appointment.
func buildPlan(faker *gofakeit.Faker, cfg scheduling.Config, days, perDay, blocked int) (*seedPlan, error) {
	if days <= 0 {
		return nil, errors.New("days must be positive")
	}
	grid, err := scheduling.GenerateSlots(cfg.OpenTime, cfg.CloseTime, cfg.SlotStep)
	if err != nil {
		return nil, err
	}
	zone := cfg.Zone()
	today := cfg.Today()

	var open []time.Time
	for i := 1; i <= days; i++ {
		day := today.AddDate(0, 0, i)
		if day.Weekday() != time.Sunday {
			open = append(open, day)
		}
	}
	if blocked > len(open) {
		blocked = len(open)
	}

	plan := &seedPlan{}
	for _, day := range open[len(open)-blocked:] {
		plan.blockedDays = append(plan.blockedDays, scheduling.BlockedDay{
			Date:   day.Format("2006-01-02"),
			Reason: blockReasons[faker.Number(0, len(blockReasons)-1)],
		})
	}

	studies := catalog.DefaultStudies()
	for _, day := range open[:len(open)-blocked] {
		date := day.Format("2006-01-02")
		picked := map[string]struct{}{}
		for n := 0; n < perDay && len(picked) < len(grid); n++ {
			slot := grid[faker.Number(0, len(grid)-1)]
			if _, dup := picked[slot]; dup {
				continue
			}
			picked[slot] = struct{}{}

			at, err := time.ParseInLocation("2006-01-02 15:04", date+" "+slot, zone)
			if err != nil {
				return nil, fmt.Errorf("parse slot %s %s: %w", date, slot, err)
			}
			patient := fakePatient(faker)
			plan.bookings = append(plan.bookings, seedBooking{
				patient: patient,
				appointment: scheduling.Appointment{
					ScheduledAt: at,
					Date:        date,
					Time:        slot,
					Studies:     []string{studies[faker.Number(0, len(studies)-1)].Name},
					Location:    scheduling.Locations[faker.Number(0, len(scheduling.Locations)-1)],
					Status:      scheduling.StatusScheduled,
				},
			})
		}
	}
	return plan, nil
}

func fakePatient(faker *gofakeit.Faker) scheduling.Patient {
	return scheduling.Patient{
		Cedula:         fmt.Sprintf("%d", faker.Number(5000000, 32000000)),
		FirstName:      faker.FirstName(),
		LastName:       faker.LastName(),
		SecondLastName: faker.LastName(),
		Phone:          fmt.Sprintf("0414%07d", faker.Number(0, 9999999)),
		Email:          strings.ToLower(faker.Email()),
		Address:        faker.Street(),
		City:           "Maracay",
	}
}

type seedStore interface {
	GeneratePatientID(ctx context.Context, firstName, lastName string) (string, error)
	UpsertPatient(ctx context.Context, p scheduling.Patient) (*scheduling.Patient, error)
	InsertAppointment(ctx context.Context, a scheduling.Appointment) (*scheduling.Appointment, error)
	AddBlockedDay(ctx context.Context, day scheduling.BlockedDay) error
}

// applyPlan is safe to rerun: taken slots are counted and skipped.
func applyPlan(ctx context.Context, store seedStore, plan *seedPlan) (seedStats, error) {
	var stats seedStats
	for _, day := range plan.blockedDays {
		if err := store.AddBlockedDay(ctx, day); err != nil {
			return stats, err
		}
		stats.blockedDays++
	}
	for _, b := range plan.bookings {
		id, err := store.GeneratePatientID(ctx, b.patient.FirstName, b.patient.LastName)
		if err != nil {
			return stats, err
		}
		b.patient.ID = id
		saved, err := store.UpsertPatient(ctx, b.patient)
		if err != nil {
			return stats, err
		}
		stats.patients++

		b.appointment.PatientID = saved.ID
		if _, err := store.InsertAppointment(ctx, b.appointment); err != nil {
			if errors.Is(err, scheduling.ErrSlotTaken) {
				stats.skipped++
				continue
			}
			return stats, err
		}
		stats.appointments++
	}
	return stats, nil
}

func seedStudies(ctx context.Context, pool *pgxpool.Pool, studies []catalog.Study) error {
	tx, err := pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	for _, s := range studies {
		_, err := tx.Exec(ctx, `
			INSERT INTO studies (name, description, preparation, price_usd, turnaround)
			VALUES ($1, $2, $3, $4, $5)
			ON CONFLICT (name) DO UPDATE SET
				description = EXCLUDED.description,
				preparation = EXCLUDED.preparation,
				price_usd = EXCLUDED.price_usd,
				turnaround = EXCLUDED.turnaround,
				active = TRUE
		`, s.Name, s.Description, s.Preparation, s.PriceUSD, s.Turnaround)
		if err != nil {
			return fmt.Errorf("insert study %q: %w", s.Name, err)
		}
	}
	return tx.Commit(ctx)
}
