package warehouse

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/tracklake/tracklake/pkg/duck"
	"github.com/tracklake/tracklake/pkg/metrics"
)

// timestampLayout is how TIMESTAMP values are rendered into the CSV staging
// file for DuckDB to parse.
const timestampLayout = "2006-01-02 15:04:05"

type StoreConfig struct {
	Logger *slog.Logger
	DB     duck.DB
}

func (cfg *StoreConfig) Validate() error {
	if cfg.Logger == nil {
		return errors.New("logger is required")
	}
	if cfg.DB == nil {
		return errors.New("db is required")
	}
	return nil
}

// Store writes the derived tables into the lake. Every write replaces the
// table's full contents; partitioning follows the warehouse schema.
type Store struct {
	log *slog.Logger
	cfg StoreConfig
	db  duck.DB
}

func NewStore(cfg StoreConfig) (*Store, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Store{
		log: cfg.Logger,
		cfg: cfg,
		db:  cfg.DB,
	}, nil
}

// tableConfig builds the duck table config for one warehouse table from the
// in-code schema.
func tableConfig(name string, partitionBy ...string) duck.TableConfig {
	for _, table := range WarehouseSchema().Tables {
		if table.Name != name {
			continue
		}
		columns := make([]string, len(table.Columns))
		for i, col := range table.Columns {
			columns[i] = col.Name + ":" + col.Type
		}
		return duck.TableConfig{
			TableName:   name,
			Columns:     columns,
			PartitionBy: partitionBy,
		}
	}
	panic(fmt.Sprintf("unknown warehouse table %q", name))
}

// SongsTableConfig returns the table config for the songs dimension.
func SongsTableConfig() duck.TableConfig {
	return tableConfig("songs", "year", "artist_id")
}

func (s *Store) WriteSongs(ctx context.Context, rows []SongRow) error {
	s.log.Debug("warehouse/store: writing songs", "count", len(rows))
	conn, err := s.db.Conn(ctx)
	if err != nil {
		return fmt.Errorf("failed to get connection: %w", err)
	}
	defer conn.Close()

	err = duck.OverwriteTableViaCSV(ctx, s.log, conn, SongsTableConfig(), len(rows), func(w *csv.Writer, i int) error {
		r := rows[i]
		return w.Write([]string{r.SongID, r.Title, formatFloat(r.Duration), strconv.Itoa(r.Year), r.ArtistID})
	})
	if err != nil {
		return err
	}
	metrics.RowsWritten.WithLabelValues("songs").Add(float64(len(rows)))
	return nil
}

// ArtistsTableConfig returns the table config for the artists dimension.
func ArtistsTableConfig() duck.TableConfig {
	return tableConfig("artists")
}

func (s *Store) WriteArtists(ctx context.Context, rows []ArtistRow) error {
	s.log.Debug("warehouse/store: writing artists", "count", len(rows))
	conn, err := s.db.Conn(ctx)
	if err != nil {
		return fmt.Errorf("failed to get connection: %w", err)
	}
	defer conn.Close()

	err = duck.OverwriteTableViaCSV(ctx, s.log, conn, ArtistsTableConfig(), len(rows), func(w *csv.Writer, i int) error {
		r := rows[i]
		return w.Write([]string{r.ArtistID, r.ArtistLocation, r.ArtistName})
	})
	if err != nil {
		return err
	}
	metrics.RowsWritten.WithLabelValues("artists").Add(float64(len(rows)))
	return nil
}

// UsersTableConfig returns the table config for the users dimension.
func UsersTableConfig() duck.TableConfig {
	return tableConfig("users")
}

func (s *Store) WriteUsers(ctx context.Context, rows []UserRow) error {
	s.log.Debug("warehouse/store: writing users", "count", len(rows))
	conn, err := s.db.Conn(ctx)
	if err != nil {
		return fmt.Errorf("failed to get connection: %w", err)
	}
	defer conn.Close()

	err = duck.OverwriteTableViaCSV(ctx, s.log, conn, UsersTableConfig(), len(rows), func(w *csv.Writer, i int) error {
		r := rows[i]
		return w.Write([]string{r.UserID, r.FirstName, r.Gender, r.LastName, r.Level, r.Location})
	})
	if err != nil {
		return err
	}
	metrics.RowsWritten.WithLabelValues("users").Add(float64(len(rows)))
	return nil
}

// TimeTableConfig returns the table config for the time dimension.
func TimeTableConfig() duck.TableConfig {
	return tableConfig("time", "year", "month")
}

func (s *Store) WriteTime(ctx context.Context, rows []TimeRow) error {
	s.log.Debug("warehouse/store: writing time", "count", len(rows))
	conn, err := s.db.Conn(ctx)
	if err != nil {
		return fmt.Errorf("failed to get connection: %w", err)
	}
	defer conn.Close()

	err = duck.OverwriteTableViaCSV(ctx, s.log, conn, TimeTableConfig(), len(rows), func(w *csv.Writer, i int) error {
		r := rows[i]
		return w.Write([]string{
			strconv.FormatInt(r.TS, 10),
			formatTimestamp(r.StartTime),
			strconv.Itoa(r.Hour),
			strconv.Itoa(r.Day),
			strconv.Itoa(r.Week),
			strconv.Itoa(r.Month),
			strconv.Itoa(r.Year),
			strconv.Itoa(r.Weekday),
		})
	})
	if err != nil {
		return err
	}
	metrics.RowsWritten.WithLabelValues("time").Add(float64(len(rows)))
	return nil
}

// SongplaysTableConfig returns the table config for the songplays fact table.
func SongplaysTableConfig() duck.TableConfig {
	return tableConfig("songplays", "year", "month")
}

func (s *Store) WriteSongplays(ctx context.Context, rows []SongplayRow) error {
	s.log.Debug("warehouse/store: writing songplays", "count", len(rows))
	conn, err := s.db.Conn(ctx)
	if err != nil {
		return fmt.Errorf("failed to get connection: %w", err)
	}
	defer conn.Close()

	err = duck.OverwriteTableViaCSV(ctx, s.log, conn, SongplaysTableConfig(), len(rows), func(w *csv.Writer, i int) error {
		r := rows[i]
		return w.Write([]string{
			strconv.FormatUint(r.SongplayID, 10),
			formatTimestamp(r.StartTime),
			r.UserID,
			r.Level,
			r.SongID,
			r.ArtistID,
			strconv.FormatInt(r.SessionID, 10),
			r.Location,
			r.UserAgent,
			strconv.Itoa(r.Year),
			strconv.Itoa(r.Month),
		})
	})
	if err != nil {
		return err
	}
	metrics.RowsWritten.WithLabelValues("songplays").Add(float64(len(rows)))
	return nil
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

func formatTimestamp(t time.Time) string {
	return t.UTC().Format(timestampLayout)
}
