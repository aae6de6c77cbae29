package warehouse

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/tracklake/tracklake/pkg/duck"
)

// unavailableDB fails to hand out connections.
type unavailableDB struct{}

func (d *unavailableDB) Catalog() string { return "test" }
func (d *unavailableDB) Schema() string  { return "main" }
func (d *unavailableDB) Close() error    { return nil }
func (d *unavailableDB) Conn(ctx context.Context) (duck.Connection, error) {
	return nil, errors.New("database unavailable")
}

func TestWarehouse_StoreConfig_Validate(t *testing.T) {
	_, err := NewStore(StoreConfig{DB: &unavailableDB{}})
	require.Error(t, err)
	require.Contains(t, err.Error(), "logger is required")

	_, err = NewStore(StoreConfig{Logger: testLogger()})
	require.Error(t, err)
	require.Contains(t, err.Error(), "db is required")

	_, err = NewStore(StoreConfig{Logger: testLogger(), DB: &unavailableDB{}})
	require.NoError(t, err)
}

func TestWarehouse_TableConfigs(t *testing.T) {
	tests := []struct {
		name        string
		cfg         duck.TableConfig
		wantColumns int
		wantPart    []string
	}{
		{
			name:        "songs",
			cfg:         SongsTableConfig(),
			wantColumns: 5,
			wantPart:    []string{"year", "artist_id"},
		},
		{
			name:        "artists",
			cfg:         ArtistsTableConfig(),
			wantColumns: 3,
			wantPart:    nil,
		},
		{
			name:        "users",
			cfg:         UsersTableConfig(),
			wantColumns: 6,
			wantPart:    nil,
		},
		{
			name:        "time",
			cfg:         TimeTableConfig(),
			wantColumns: 8,
			wantPart:    []string{"year", "month"},
		},
		{
			name:        "songplays",
			cfg:         SongplaysTableConfig(),
			wantColumns: 11,
			wantPart:    []string{"year", "month"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.Equal(t, tt.name, tt.cfg.TableName)
			require.Len(t, tt.cfg.Columns, tt.wantColumns)
			if tt.wantPart == nil {
				require.Empty(t, tt.cfg.PartitionBy)
			} else {
				require.Equal(t, tt.wantPart, tt.cfg.PartitionBy)
			}
		})
	}
}

func TestWarehouse_TableConfigs_ColumnsMatchSchema(t *testing.T) {
	require.Equal(t, "song_id:VARCHAR", SongsTableConfig().Columns[0])
	require.Equal(t, "songplay_id:UBIGINT", SongplaysTableConfig().Columns[0])
	require.Equal(t, "start_time:TIMESTAMP", TimeTableConfig().Columns[1])
	require.Equal(t, "weekday:INTEGER", TimeTableConfig().Columns[7])
}

func TestWarehouse_Store_WriteFailsWithoutConnection(t *testing.T) {
	store, err := NewStore(StoreConfig{Logger: testLogger(), DB: &unavailableDB{}})
	require.NoError(t, err)

	ctx := context.Background()
	require.ErrorContains(t, store.WriteSongs(ctx, []SongRow{{SongID: "S1"}}), "failed to get connection")
	require.ErrorContains(t, store.WriteArtists(ctx, []ArtistRow{{ArtistID: "A1"}}), "failed to get connection")
	require.ErrorContains(t, store.WriteUsers(ctx, []UserRow{{UserID: "7"}}), "failed to get connection")
	require.ErrorContains(t, store.WriteTime(ctx, []TimeRow{{TS: 1}}), "failed to get connection")
	require.ErrorContains(t, store.WriteSongplays(ctx, []SongplayRow{{SongplayID: 1}}), "failed to get connection")
}

func TestWarehouse_FormatFloat(t *testing.T) {
	require.Equal(t, "210.5", formatFloat(210.5))
	require.Equal(t, "95", formatFloat(95))
	require.Equal(t, "180.25", formatFloat(180.25))
}

func TestWarehouse_FormatTimestamp(t *testing.T) {
	ts := time.Date(2018, 11, 8, 1, 19, 14, 0, time.UTC)
	require.Equal(t, "2018-11-08 01:19:14", formatTimestamp(ts))

	// Non-UTC inputs are rendered in UTC.
	est := time.FixedZone("EST", -5*3600)
	require.Equal(t, "2018-11-08 01:19:14", formatTimestamp(ts.In(est)))
}
