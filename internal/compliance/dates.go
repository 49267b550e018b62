package compliance

import (
	"fmt"
	"time"
)

const isoLayout = "2006-01-02"

// AddMonths adds n calendar months to t, clamping the day to the end of the target month
// so 31 January + 1 month is 28 or 29 February.
func AddMonths(t time.Time, n int) time.Time {
	y, m, d := t.Date()
	first := time.Date(y, m+time.Month(n), 1, 0, 0, 0, 0, t.Location())
	last := first.AddDate(0, 1, -1).Day()
	if d > last {
		d = last
	}
	return time.Date(first.Year(), first.Month(), d, 0, 0, 0, 0, t.Location())
}

// NextDue picks the explicit end of the covered period when there is one, otherwise the
// inspection date plus the asset frequency. ok is false when neither is usable.
func NextDue(inspection, periodEnd *string, frequencyMonths int) (time.Time, bool) {
	if periodEnd != nil {
		if t, err := time.Parse(isoLayout, *periodEnd); err == nil {
			return t, true
		}
	}
	if inspection != nil && frequencyMonths > 0 {
		if t, err := time.Parse(isoLayout, *inspection); err == nil {
			return AddMonths(t, frequencyMonths), true
		}
	}
	return time.Time{}, false
}

// ReminderDate returns due minus leadDays, never earlier than today.
func ReminderDate(due time.Time, leadDays int, now time.Time) time.Time {
	today := truncateDay(now)
	r := due.AddDate(0, 0, -leadDays)
	if r.Before(today) {
		return today
	}
	return r
}

func reminderReason(assetName string, due, now time.Time) string {
	if due.Before(truncateDay(now)) {
		return fmt.Sprintf("%s overdue since %s", assetName, due.Format(isoLayout))
	}
	return fmt.Sprintf("%s due on %s", assetName, due.Format(isoLayout))
}

func truncateDay(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
