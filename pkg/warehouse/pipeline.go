package warehouse

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/alitto/pond/v2"
	"github.com/jonboulle/clockwork"

	"github.com/tracklake/tracklake/pkg/duck"
	"github.com/tracklake/tracklake/pkg/metrics"
	"github.com/tracklake/tracklake/pkg/source"
)

// CatalogReader loads the song catalog into memory.
type CatalogReader interface {
	ReadSongs(ctx context.Context) ([]source.SongRecord, error)
}

// ActivityReader loads the activity event log into memory.
type ActivityReader interface {
	ReadEvents(ctx context.Context) ([]source.ActivityRecord, error)
}

// TableWriter persists the derived tables. *Store is the lake-backed
// implementation.
type TableWriter interface {
	WriteSongs(ctx context.Context, rows []SongRow) error
	WriteArtists(ctx context.Context, rows []ArtistRow) error
	WriteUsers(ctx context.Context, rows []UserRow) error
	WriteTime(ctx context.Context, rows []TimeRow) error
	WriteSongplays(ctx context.Context, rows []SongplayRow) error
}

type Config struct {
	Logger   *slog.Logger
	Clock    clockwork.Clock
	Catalog  CatalogReader
	Activity ActivityReader
	Writer   TableWriter

	// DB enables post-run schema validation; optional (nil skips it, used
	// by tests with in-memory writers).
	DB duck.DB

	// Shards is the parallelism of the fact join and of concurrent table
	// writes.
	Shards int
}

func (cfg *Config) Validate() error {
	if cfg.Logger == nil {
		return errors.New("logger is required")
	}
	if cfg.Clock == nil {
		return errors.New("clock is required")
	}
	if cfg.Catalog == nil {
		return errors.New("catalog reader is required")
	}
	if cfg.Activity == nil {
		return errors.New("activity reader is required")
	}
	if cfg.Writer == nil {
		return errors.New("table writer is required")
	}
	if cfg.Shards <= 0 {
		return errors.New("shards must be positive")
	}
	return nil
}

// Pipeline runs the full warehouse derivation once: catalog and activity
// extraction, the five table derivations, and the writes. The catalog must be
// fully materialized before the fact join runs; everything else overlaps
// where the data flow allows.
type Pipeline struct {
	log *slog.Logger
	cfg Config
}

func New(cfg Config) (*Pipeline, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Pipeline{
		log: cfg.Logger,
		cfg: cfg,
	}, nil
}

func (p *Pipeline) Run(ctx context.Context) error {
	start := p.cfg.Clock.Now()

	songs, err := p.cfg.Catalog.ReadSongs(ctx)
	if err != nil {
		return fmt.Errorf("catalog extraction failed: %w", err)
	}
	metrics.RowsRead.WithLabelValues("song_data").Add(float64(len(songs)))
	if err := ValidateCatalog(songs); err != nil {
		return err
	}
	p.log.Info("catalog extracted", "songs", len(songs))

	pool := pond.NewPool(p.cfg.Shards)
	group := pool.NewGroupContext(ctx)

	group.SubmitErr(func() error {
		return p.cfg.Writer.WriteSongs(ctx, BuildSongs(songs))
	})
	group.SubmitErr(func() error {
		return p.cfg.Writer.WriteArtists(ctx, BuildArtists(songs))
	})
	group.SubmitErr(func() error {
		return p.runActivity(ctx, songs)
	})

	if err := group.Wait(); err != nil {
		return err
	}

	if p.cfg.DB != nil {
		if err := ValidateWarehouse(ctx, p.cfg.DB, WarehouseSchema()); err != nil {
			return err
		}
	}

	p.log.Info("warehouse run completed", "duration", p.cfg.Clock.Since(start).String())
	return nil
}

// runActivity covers the activity half of the job: filter, users, time, and
// the fact join. The catalog handed in is already materialized.
func (p *Pipeline) runActivity(ctx context.Context, songs []source.SongRecord) error {
	events, err := p.cfg.Activity.ReadEvents(ctx)
	if err != nil {
		return fmt.Errorf("activity extraction failed: %w", err)
	}
	metrics.RowsRead.WithLabelValues("log_data").Add(float64(len(events)))

	playback := FilterPlayback(events)
	p.log.Info("activity extracted", "events", len(events), "playback", len(playback))

	timeRows, err := BuildTimeDim(playback)
	if err != nil {
		return err
	}

	join, err := BuildSongplays(ctx, playback, songs, p.cfg.Shards)
	if err != nil {
		return err
	}
	matchRate := join.MatchRate(len(playback))
	metrics.SongplaysUnmatched.Add(float64(join.Unmatched))
	metrics.SongplayMatchRate.Set(matchRate)
	p.log.Debug("songplays joined", "facts", len(join.Rows), "unmatched", join.Unmatched, "match_rate", fmt.Sprintf("%.3f", matchRate))

	pool := pond.NewPool(3)
	group := pool.NewGroupContext(ctx)
	group.SubmitErr(func() error {
		return p.cfg.Writer.WriteUsers(ctx, BuildUsers(playback))
	})
	group.SubmitErr(func() error {
		return p.cfg.Writer.WriteTime(ctx, timeRows)
	})
	group.SubmitErr(func() error {
		return p.cfg.Writer.WriteSongplays(ctx, join.Rows)
	})
	return group.Wait()
}
