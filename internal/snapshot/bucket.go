package snapshot

import (
	"fmt"
	"time"

	"github.com/rewired-gh/forecastodds/internal/models"
)

// BucketStart returns the UTC start of the calendar bucket containing t.
//
//	daily     00:00 of the calendar day
//	weekly    Monday 00:00 of the ISO week
//	monthly   first day of the calendar month
//	quarterly first day of Jan, Apr, Jul or Oct
//	annual    January 1st
func BucketStart(period models.Period, t time.Time) (time.Time, error) {
	t = t.UTC()
	y, m, d := t.Date()

	switch period {
	case models.PeriodDaily:
		return time.Date(y, m, d, 0, 0, 0, 0, time.UTC), nil
	case models.PeriodWeekly:
		sinceMonday := (int(t.Weekday()) + 6) % 7
		return time.Date(y, m, d-sinceMonday, 0, 0, 0, 0, time.UTC), nil
	case models.PeriodMonthly:
		return time.Date(y, m, 1, 0, 0, 0, 0, time.UTC), nil
	case models.PeriodQuarterly:
		first := time.Month((int(m)-1)/3*3 + 1)
		return time.Date(y, first, 1, 0, 0, 0, 0, time.UTC), nil
	case models.PeriodAnnual:
		return time.Date(y, time.January, 1, 0, 0, 0, 0, time.UTC), nil
	}
	return time.Time{}, fmt.Errorf("%w: unknown period %q", models.ErrValidation, period)
}
