package source

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSource_FlexString_Unmarshal(t *testing.T) {
	type row struct {
		UserID FlexString `json:"userId"`
	}

	tests := []struct {
		name string
		json string
		want FlexString
	}{
		{
			name: "quoted string",
			json: `{"userId":"26"}`,
			want: "26",
		},
		{
			name: "bare number",
			json: `{"userId":26}`,
			want: "26",
		},
		{
			name: "null",
			json: `{"userId":null}`,
			want: "",
		},
		{
			name: "empty string",
			json: `{"userId":""}`,
			want: "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var r row
			require.NoError(t, json.Unmarshal([]byte(tt.json), &r))
			require.Equal(t, tt.want, r.UserID)
		})
	}
}

func TestSource_ActivityReader_ReadEvents(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "2018/11/2018-11-08-events.json",
		`{"page":"NextSong","userId":"7","firstName":"Kate","lastName":"Harrell","gender":"F","level":"paid","location":"Lansing, MI","sessionId":101,"userAgent":"Mozilla/5.0","song":"Test Song","ts":1541639954796}`+"\n"+
			`{"page":"Home","userId":"7","firstName":"Kate","lastName":"Harrell","gender":"F","level":"paid","location":"Lansing, MI","sessionId":101,"userAgent":"Mozilla/5.0","ts":1541639960000}`+"\n")
	writeFile(t, dir, "2018/11/2018-11-09-events.json",
		`{"page":"NextSong","userId":42,"firstName":"Jacob","lastName":"Klein","gender":"M","level":"free","location":"Tampa, FL","sessionId":202,"userAgent":"Mozilla/5.0","song":"Unknown Track","ts":1541726354796}`+"\n")

	reader, err := NewActivityReader(ActivityReaderConfig{
		Logger:   testLogger(),
		Lister:   &dirLister{root: dir},
		PoolSize: 4,
	})
	require.NoError(t, err)

	events, err := reader.ReadEvents(context.Background())
	require.NoError(t, err)
	require.Len(t, events, 3)

	bySession := make(map[int64][]ActivityRecord)
	for _, e := range events {
		bySession[e.SessionID] = append(bySession[e.SessionID], e)
	}
	require.Len(t, bySession[101], 2)
	require.Len(t, bySession[202], 1)

	playback := bySession[101][0]
	require.Equal(t, "NextSong", playback.Page)
	require.Equal(t, FlexString("7"), playback.UserID)
	require.Equal(t, "Kate", playback.FirstName)
	require.Equal(t, "Test Song", playback.Song)
	require.Equal(t, int64(1541639954796), playback.TS)

	// Home rows carry no song field; the decoder leaves it empty.
	home := bySession[101][1]
	require.Equal(t, "Home", home.Page)
	require.Empty(t, home.Song)

	// Numeric userId decodes to its string form.
	require.Equal(t, FlexString("42"), bySession[202][0].UserID)
}

func TestSource_ActivityReader_NonNumericTS(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "bad-events.json",
		`{"page":"NextSong","userId":"7","sessionId":101,"song":"Test Song","ts":"not-a-timestamp"}`+"\n")

	reader, err := NewActivityReader(ActivityReaderConfig{
		Logger:   testLogger(),
		Lister:   &dirLister{root: dir},
		PoolSize: 4,
	})
	require.NoError(t, err)

	_, err = reader.ReadEvents(context.Background())
	require.Error(t, err)
	require.Contains(t, err.Error(), "bad-events.json record 1")
}

func TestSource_ActivityReader_Validate(t *testing.T) {
	_, err := NewActivityReader(ActivityReaderConfig{Lister: &dirLister{root: t.TempDir()}, PoolSize: 4})
	require.Error(t, err)
	require.Contains(t, err.Error(), "logger is required")

	_, err = NewActivityReader(ActivityReaderConfig{Logger: testLogger(), PoolSize: 4})
	require.Error(t, err)
	require.Contains(t, err.Error(), "lister is required")

	_, err = NewActivityReader(ActivityReaderConfig{Logger: testLogger(), Lister: &dirLister{root: t.TempDir()}})
	require.Error(t, err)
	require.Contains(t, err.Error(), "pool size must be positive")
}
