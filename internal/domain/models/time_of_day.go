package models

import (
	"fmt"
	"strconv"
	"strings"
)

// TimeOfDay is a wall-clock hour and minute in the fixed civil offset.
type TimeOfDay struct {
	Hour   int `bson:"hour"`
	Minute int `bson:"minute"`
}

// ParseTimeOfDay accepts "HH:MM" (24h). Seconds are tolerated and dropped ("HH:MM:SS").
func ParseTimeOfDay(value string) (TimeOfDay, error) {
	parts := strings.Split(strings.TrimSpace(value), ":")
	if len(parts) < 2 || len(parts) > 3 {
		return TimeOfDay{}, NewValidationError("time_of_day", fmt.Sprintf("expected HH:MM, got %q", value))
	}

	hour, err := strconv.Atoi(parts[0])
	if err != nil {
		return TimeOfDay{}, NewValidationError("time_of_day", fmt.Sprintf("invalid hour in %q", value))
	}
	minute, err := strconv.Atoi(parts[1])
	if err != nil {
		return TimeOfDay{}, NewValidationError("time_of_day", fmt.Sprintf("invalid minute in %q", value))
	}
	if len(parts) == 3 {
		if _, err := strconv.Atoi(parts[2]); err != nil {
			return TimeOfDay{}, NewValidationError("time_of_day", fmt.Sprintf("invalid second in %q", value))
		}
	}

	t := TimeOfDay{Hour: hour, Minute: minute}
	if err := t.Validate(); err != nil {
		return TimeOfDay{}, err
	}
	return t, nil
}

// Validate ensures the hour and minute are within range.
func (t TimeOfDay) Validate() error {
	if t.Hour < 0 || t.Hour > 23 {
		return NewValidationError("time_of_day", fmt.Sprintf("hour %d out of range", t.Hour))
	}
	if t.Minute < 0 || t.Minute > 59 {
		return NewValidationError("time_of_day", fmt.Sprintf("minute %d out of range", t.Minute))
	}
	return nil
}

func (t TimeOfDay) String() string {
	return fmt.Sprintf("%02d:%02d", t.Hour, t.Minute)
}

// MarshalText renders the value as "HH:MM" for JSON payloads.
func (t TimeOfDay) MarshalText() ([]byte, error) {
	return []byte(t.String()), nil
}

// UnmarshalText parses "HH:MM".
func (t *TimeOfDay) UnmarshalText(text []byte) error {
	parsed, err := ParseTimeOfDay(string(text))
	if err != nil {
		return err
	}
	*t = parsed
	return nil
}
