package scheduling

import (
	"fmt"
	"time"
)

// Config carries the clinic calendar settings every component is built with.
type Config struct {
	OpenTime        string
	CloseTime       string
	SlotStep        time.Duration
	DefaultLocation Location
	HomeVisitCities []string
	// UTCOffsetHours is the fixed clinic offset; Venezuela is -4 all year.
	UTCOffsetHours int
	Now            func() time.Time
}

// DefaultConfig returns the clinic defaults.
func DefaultConfig() Config {
	return Config{
		OpenTime:        "07:00",
		CloseTime:       "17:00",
		SlotStep:        30 * time.Minute,
		DefaultLocation: LocationMainSite,
		HomeVisitCities: []string{"Maracay", "Colonia Tovar"},
		UTCOffsetHours:  -4,
		Now:             time.Now,
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.OpenTime == "" {
		c.OpenTime = d.OpenTime
	}
	if c.CloseTime == "" {
		c.CloseTime = d.CloseTime
	}
	if c.SlotStep <= 0 {
		c.SlotStep = d.SlotStep
	}
	if !c.DefaultLocation.Valid() {
		c.DefaultLocation = d.DefaultLocation
	}
	if len(c.HomeVisitCities) == 0 {
		c.HomeVisitCities = d.HomeVisitCities
	}
	if c.UTCOffsetHours == 0 {
		c.UTCOffsetHours = d.UTCOffsetHours
	}
	if c.Now == nil {
		c.Now = d.Now
	}
	return c
}

// Zone is the fixed-offset clinic time zone.
func (c Config) Zone() *time.Location {
	offset := c.UTCOffsetHours
	if offset == 0 {
		offset = -4
	}
	return time.FixedZone(fmt.Sprintf("UTC%+d", offset), offset*3600)
}

// OffsetSuffix renders the zone as "-04:00".
func (c Config) OffsetSuffix() string {
	offset := c.UTCOffsetHours
	if offset == 0 {
		offset = -4
	}
	sign := '+'
	if offset < 0 {
		sign = '-'
		offset = -offset
	}
	return fmt.Sprintf("%c%02d:00", sign, offset)
}

// Today is the current clinic date at midnight.
func (c Config) Today() time.Time {
	now := time.Now
	if c.Now != nil {
		now = c.Now
	}
	t := now().In(c.Zone())
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, c.Zone())
}
