package scheduling

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// GenerateSlots lists every HH:mm from open to close inclusive at step.
func GenerateSlots(open, close string, step time.Duration) ([]string, error) {
	start, err := clockMinutes(open)
	if err != nil {
		return nil, fmt.Errorf("scheduling: open time: %w", err)
	}
	end, err := clockMinutes(close)
	if err != nil {
		return nil, fmt.Errorf("scheduling: close time: %w", err)
	}
	stepMin := int(step / time.Minute)
	if stepMin <= 0 {
		return nil, fmt.Errorf("scheduling: slot step must be at least one minute, got %s", step)
	}
	if end < start {
		return nil, fmt.Errorf("scheduling: close time %s before open time %s", close, open)
	}
	slots := make([]string, 0, (end-start)/stepMin+1)
	for m := start; m <= end; m += stepMin {
		slots = append(slots, formatClock(m/60, m%60))
	}
	return slots, nil
}

// DefaultSlots is the 07:00-17:00 half-hour grid.
func DefaultSlots() []string {
	d := DefaultConfig()
	slots, _ := GenerateSlots(d.OpenTime, d.CloseTime, d.SlotStep)
	return slots
}

func clockMinutes(s string) (int, error) {
	parts := strings.Split(strings.TrimSpace(s), ":")
	if len(parts) != 2 {
		return 0, fmt.Errorf("invalid clock %q", s)
	}
	h, err := strconv.Atoi(parts[0])
	if err != nil || h < 0 || h > 23 {
		return 0, fmt.Errorf("invalid hour in %q", s)
	}
	m, err := strconv.Atoi(parts[1])
	if err != nil || m < 0 || m > 59 {
		return 0, fmt.Errorf("invalid minute in %q", s)
	}
	return h*60 + m, nil
}

func formatClock(h, m int) string {
	return fmt.Sprintf("%02d:%02d", h, m)
}

func containsString(list []string, v string) bool {
	for _, s := range list {
		if s == v {
			return true
		}
	}
	return false
}
