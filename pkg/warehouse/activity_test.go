package warehouse

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"

	"github.com/tracklake/tracklake/pkg/source"
)

func TestWarehouse_FilterPlayback(t *testing.T) {
	events := []source.ActivityRecord{
		{Page: "NextSong", UserID: "7", Song: "Test Song", TS: 1541639954796},
		{Page: "Home", UserID: "7", TS: 1541639960000},
		{Page: "NextSong", UserID: "42", Song: "Second Song", TS: 1541726354796},
		{Page: "Logout", UserID: "42", TS: 1541726360000},
		// Case-sensitive match: "nextsong" is not a playback event.
		{Page: "nextsong", UserID: "42", Song: "Second Song", TS: 1541726360000},
	}

	filtered := FilterPlayback(events)
	require.Len(t, filtered, 2)
	for _, ev := range filtered {
		require.Equal(t, PlaybackPage, ev.Page)
	}
	require.Equal(t, "Test Song", filtered[0].Song)
	require.Equal(t, "Second Song", filtered[1].Song)
}

func TestWarehouse_FilterPlayback_Empty(t *testing.T) {
	require.Empty(t, FilterPlayback(nil))
	require.Empty(t, FilterPlayback([]source.ActivityRecord{{Page: "Home"}}))
}

func TestWarehouse_BuildUsers(t *testing.T) {
	playback := []source.ActivityRecord{
		{Page: "NextSong", UserID: "7", FirstName: "Kate", LastName: "Harrell", Gender: "F", Level: "free", Location: "Lansing, MI"},
		// Same user after upgrading: kept as a second row, no dedup.
		{Page: "NextSong", UserID: "7", FirstName: "Kate", LastName: "Harrell", Gender: "F", Level: "paid", Location: "Lansing, MI"},
	}

	got := BuildUsers(playback)
	want := []UserRow{
		{UserID: "7", FirstName: "Kate", Gender: "F", LastName: "Harrell", Level: "free", Location: "Lansing, MI"},
		{UserID: "7", FirstName: "Kate", Gender: "F", LastName: "Harrell", Level: "paid", Location: "Lansing, MI"},
	}
	require.Empty(t, cmp.Diff(want, got))
}
