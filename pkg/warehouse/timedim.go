package warehouse

import (
	"fmt"
	"time"

	"github.com/tracklake/tracklake/pkg/source"
)

// TimeRow is one row of the time dimension: the playback instant decomposed
// into calendar components.
//
// Weekday numbering is 1=Sunday .. 7=Saturday, matching the warehouse's
// historical convention. Week is the ISO 8601 week of year.
type TimeRow struct {
	TS        int64
	StartTime time.Time
	Hour      int
	Day       int
	Week      int
	Month     int
	Year      int
	Weekday   int
}

// StartTime converts epoch milliseconds to a UTC timestamp, truncating toward
// zero to whole seconds. Deterministic and pure.
func StartTime(ts int64) time.Time {
	return time.Unix(ts/1000, 0).UTC()
}

// DecomposeTime derives one time dimension row from an epoch-millisecond
// timestamp. ts must be positive; anything else is a conversion failure and
// aborts the run.
func DecomposeTime(ts int64) (TimeRow, error) {
	if ts <= 0 {
		return TimeRow{}, fmt.Errorf("timestamp conversion failed: ts %d is out of range", ts)
	}
	t := StartTime(ts)
	_, week := t.ISOWeek()
	return TimeRow{
		TS:        ts,
		StartTime: t,
		Hour:      t.Hour(),
		Day:       t.Day(),
		Week:      week,
		Month:     int(t.Month()),
		Year:      t.Year(),
		Weekday:   int(t.Weekday()) + 1,
	}, nil
}

// BuildTimeDim derives the time dimension from filtered activity, one row per
// playback event. Row-local and order-independent.
func BuildTimeDim(events []source.ActivityRecord) ([]TimeRow, error) {
	rows := make([]TimeRow, len(events))
	for i, ev := range events {
		row, err := DecomposeTime(ev.TS)
		if err != nil {
			return nil, fmt.Errorf("session %d event %d: %w", ev.SessionID, i, err)
		}
		rows[i] = row
	}
	return rows, nil
}
