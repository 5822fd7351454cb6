package config

import (
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("PORT", "")
	t.Setenv("ENV", "")
	t.Setenv("OPEN_TIME", "")
	t.Setenv("HOME_VISIT_CITIES", "")
	t.Setenv("FIRST_PASS_TIMEOUT", "")
	cfg := Load()
	if cfg.Port != "8080" {
		t.Fatalf("expected default port, got %s", cfg.Port)
	}
	if cfg.Env != "development" {
		t.Fatalf("expected default env, got %s", cfg.Env)
	}
	if cfg.OpenTime != "07:00" || cfg.CloseTime != "17:00" {
		t.Fatalf("expected default clinic window, got %s-%s", cfg.OpenTime, cfg.CloseTime)
	}
	if cfg.SlotStep != 30*time.Minute {
		t.Fatalf("expected 30m slot step, got %s", cfg.SlotStep)
	}
	if cfg.DefaultLocation != "sede_principal" {
		t.Fatalf("expected default location, got %s", cfg.DefaultLocation)
	}
	if len(cfg.HomeVisitCities) != 2 || cfg.HomeVisitCities[0] != "Maracay" {
		t.Fatalf("unexpected home visit cities %v", cfg.HomeVisitCities)
	}
	if cfg.FirstPassTimeout != 15*time.Second {
		t.Fatalf("expected first pass timeout 15s, got %s", cfg.FirstPassTimeout)
	}
	if cfg.UTCOffsetHours != -4 {
		t.Fatalf("expected UTC-4, got %d", cfg.UTCOffsetHours)
	}
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("PORT", "9090")
	t.Setenv("ENV", "production")
	t.Setenv("DATABASE_URL", "postgres://user@host/db")
	t.Setenv("OPEN_TIME", "06:30")
	t.Setenv("SLOT_STEP", "15m")
	t.Setenv("HOME_VISIT_CITIES", " Turmero , , Maracay ")
	t.Setenv("CLASSIFY_TIMEOUT", "3s")
	t.Setenv("HISTORY_WINDOW", "8")
	t.Setenv("CORS_ALLOWED_ORIGINS", "https://lab.example.com")
	cfg := Load()
	if cfg.Port != "9090" {
		t.Fatalf("expected override port, got %s", cfg.Port)
	}
	if cfg.DatabaseURL != "postgres://user@host/db" {
		t.Fatalf("expected db override, got %s", cfg.DatabaseURL)
	}
	if cfg.OpenTime != "06:30" {
		t.Fatalf("expected open time override, got %s", cfg.OpenTime)
	}
	if cfg.SlotStep != 15*time.Minute {
		t.Fatalf("expected slot step override, got %s", cfg.SlotStep)
	}
	if len(cfg.HomeVisitCities) != 2 || cfg.HomeVisitCities[0] != "Turmero" || cfg.HomeVisitCities[1] != "Maracay" {
		t.Fatalf("unexpected city list %v", cfg.HomeVisitCities)
	}
	if cfg.ClassifyTimeout != 3*time.Second {
		t.Fatalf("expected classify timeout override, got %s", cfg.ClassifyTimeout)
	}
	if cfg.HistoryWindow != 8 {
		t.Fatalf("expected history window override, got %d", cfg.HistoryWindow)
	}
	if len(cfg.CORSAllowedOrigins) != 1 {
		t.Fatalf("expected one CORS origin, got %v", cfg.CORSAllowedOrigins)
	}
}

func TestInvalidDurationFallsBack(t *testing.T) {
	t.Setenv("SECOND_PASS_TIMEOUT", "soon")
	cfg := Load()
	if cfg.SecondPassTimeout != 15*time.Second {
		t.Fatalf("expected default on invalid duration, got %s", cfg.SecondPassTimeout)
	}
}
