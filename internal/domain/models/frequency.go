package models

import (
	"fmt"
	"strings"
)

// Frequency enumerates how often a feeding schedule repeats.
type Frequency string

const (
	FrequencyDaily          Frequency = "daily"
	FrequencyWeekly         Frequency = "weekly"
	FrequencyEveryTwoDays   Frequency = "every_two_days"
	FrequencyEveryThreeDays Frequency = "every_three_days"
)

var periodLengths = map[Frequency]int{
	FrequencyDaily:          1,
	FrequencyWeekly:         7,
	FrequencyEveryTwoDays:   2,
	FrequencyEveryThreeDays: 3,
}

// ParseFrequency normalises user input into a known Frequency.
func ParseFrequency(value string) (Frequency, error) {
	f := Frequency(strings.ToLower(strings.TrimSpace(value)))
	if !f.Valid() {
		return "", NewValidationError("frequency", fmt.Sprintf("unsupported value %q", value))
	}
	return f, nil
}

// Valid reports whether f is one of the supported frequencies.
func (f Frequency) Valid() bool {
	_, ok := periodLengths[f]
	return ok
}

// PeriodDays returns the number of days one period of f spans, or 0 for unknown values.
func (f Frequency) PeriodDays() int {
	return periodLengths[f]
}

// PerExecutionAmount converts a per-period quantity into the amount consumed by a single execution.
func (f Frequency) PerExecutionAmount(quantityPerPeriod float64) (float64, error) {
	days := f.PeriodDays()
	if days == 0 {
		return 0, NewValidationError("frequency", fmt.Sprintf("unsupported value %q", string(f)))
	}
	return quantityPerPeriod / float64(days), nil
}
