package source

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/alitto/pond/v2"
)

// SongRecord is one row of the song/artist catalog corpus.
type SongRecord struct {
	SongID         string  `json:"song_id"`
	Title          string  `json:"title"`
	Duration       float64 `json:"duration"`
	Year           int     `json:"year"`
	ArtistID       string  `json:"artist_id"`
	ArtistName     string  `json:"artist_name"`
	ArtistLocation string  `json:"artist_location"`
}

type CatalogReaderConfig struct {
	Logger   *slog.Logger
	Lister   Lister
	PoolSize int
}

func (cfg *CatalogReaderConfig) Validate() error {
	if cfg.Logger == nil {
		return errors.New("logger is required")
	}
	if cfg.Lister == nil {
		return errors.New("lister is required")
	}
	if cfg.PoolSize <= 0 {
		return errors.New("pool size must be positive")
	}
	return nil
}

// CatalogReader loads the full song catalog into memory, decoding files
// concurrently through a bounded pool.
type CatalogReader struct {
	log  *slog.Logger
	cfg  CatalogReaderConfig
	pool pond.ResultPool[[]SongRecord]
}

func NewCatalogReader(cfg CatalogReaderConfig) (*CatalogReader, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &CatalogReader{
		log:  cfg.Logger,
		cfg:  cfg,
		pool: pond.NewResultPool[[]SongRecord](cfg.PoolSize),
	}, nil
}

func (r *CatalogReader) ReadSongs(ctx context.Context) ([]SongRecord, error) {
	keys, err := r.cfg.Lister.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list song data files: %w", err)
	}
	r.log.Debug("source/catalog: decoding song data files", "files", len(keys))

	group := r.pool.NewGroupContext(ctx)
	for _, key := range keys {
		key := key
		group.SubmitErr(func() ([]SongRecord, error) {
			return r.readFile(ctx, key)
		})
	}

	results, err := group.Wait()
	if err != nil {
		return nil, fmt.Errorf("failed to read song data: %w", err)
	}

	var songs []SongRecord
	for _, fileSongs := range results {
		songs = append(songs, fileSongs...)
	}
	return songs, nil
}

func (r *CatalogReader) readFile(ctx context.Context, key string) ([]SongRecord, error) {
	body, err := r.cfg.Lister.Open(ctx, key)
	if err != nil {
		return nil, err
	}
	defer body.Close()

	var songs []SongRecord
	dec := json.NewDecoder(body)
	for {
		var rec SongRecord
		if err := dec.Decode(&rec); err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			return nil, fmt.Errorf("failed to decode %s record %d: %w", key, len(songs)+1, err)
		}
		songs = append(songs, rec)
	}
	return songs, nil
}
