package warehouse

import (
	"github.com/tracklake/tracklake/pkg/source"
)

// PlaybackPage is the page value marking a playback event. The match is exact
// and case-sensitive; every other interaction type is discarded.
const PlaybackPage = "NextSong"

// UserRow is one row of the users dimension. Users are NOT deduplicated: a
// user whose subscription level changed mid-log appears once per playback
// event, with whatever level the event carried.
type UserRow struct {
	UserID    string
	FirstName string
	Gender    string
	LastName  string
	Level     string
	Location  string
}

// FilterPlayback retains only playback events. It runs once per job; both the
// users derivation and the fact join consume its output.
func FilterPlayback(events []source.ActivityRecord) []source.ActivityRecord {
	filtered := make([]source.ActivityRecord, 0, len(events))
	for _, ev := range events {
		if ev.Page == PlaybackPage {
			filtered = append(filtered, ev)
		}
	}
	return filtered
}

// BuildUsers projects filtered activity onto the users dimension.
func BuildUsers(events []source.ActivityRecord) []UserRow {
	rows := make([]UserRow, len(events))
	for i, ev := range events {
		rows[i] = UserRow{
			UserID:    string(ev.UserID),
			FirstName: ev.FirstName,
			Gender:    ev.Gender,
			LastName:  ev.LastName,
			Level:     ev.Level,
			Location:  ev.Location,
		}
	}
	return rows
}
