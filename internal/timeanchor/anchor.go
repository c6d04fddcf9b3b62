// Package timeanchor performs scheduling arithmetic in the fixed UTC-6 civil offset
// used by the zoo, independent of the host timezone.
package timeanchor

import (
	"fmt"
	"time"

	"github.com/mamadbah2/zoofeed/internal/domain/models"
)

// CivilOffset is the fixed offset from UTC. No daylight-saving rule applies.
const CivilOffset = -6 * time.Hour

// Civil is the fixed-offset location all schedule arithmetic runs in.
var Civil = time.FixedZone("UTC-6", int(CivilOffset/time.Second))

// Now is swapped in tests.
var Now = time.Now

// CivilNow returns the current instant viewed in the civil offset.
func CivilNow() time.Time {
	return Now().In(Civil)
}

// Anchor combines from's civil calendar date with the given time of day.
func Anchor(tod models.TimeOfDay, from time.Time) time.Time {
	local := from.In(Civil)
	return time.Date(local.Year(), local.Month(), local.Day(), tod.Hour, tod.Minute, 0, 0, Civil)
}

// NextExecution computes the next due instant for a schedule evaluated at from.
//
// Daily schedules use today's anchor when it is still ahead of from, otherwise
// tomorrow's. The other frequencies always advance a full period from today's
// anchor, even when that anchor lies before from.
func NextExecution(freq models.Frequency, tod models.TimeOfDay, from time.Time) (time.Time, error) {
	if err := tod.Validate(); err != nil {
		return time.Time{}, err
	}

	anchor := Anchor(tod, from)

	switch freq {
	case models.FrequencyDaily:
		if !anchor.After(from) {
			return anchor.AddDate(0, 0, 1), nil
		}
		return anchor, nil
	case models.FrequencyWeekly, models.FrequencyEveryTwoDays, models.FrequencyEveryThreeDays:
		return anchor.AddDate(0, 0, freq.PeriodDays()), nil
	default:
		return time.Time{}, models.NewValidationError("frequency", fmt.Sprintf("unsupported value %q", string(freq)))
	}
}
