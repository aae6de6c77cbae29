package source

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/alitto/pond/v2"
)

// FlexString decodes a JSON string, number, or null into a string. The event
// simulator emits userId as a quoted string in most batches and as a bare
// number in older ones.
type FlexString string

func (f *FlexString) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		*f = ""
		return nil
	}
	if data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*f = FlexString(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return err
	}
	*f = FlexString(n.String())
	return nil
}

// ActivityRecord is one logged user interaction. Non-playback rows (Home,
// Login, ...) carry empty song and user fields; that is not an error.
type ActivityRecord struct {
	Page      string     `json:"page"`
	UserID    FlexString `json:"userId"`
	FirstName string     `json:"firstName"`
	LastName  string     `json:"lastName"`
	Gender    string     `json:"gender"`
	Level     string     `json:"level"`
	Location  string     `json:"location"`
	SessionID int64      `json:"sessionId"`
	UserAgent string     `json:"userAgent"`
	Song      string     `json:"song"`
	TS        int64      `json:"ts"`
}

type ActivityReaderConfig struct {
	Logger   *slog.Logger
	Lister   Lister
	PoolSize int
}

func (cfg *ActivityReaderConfig) Validate() error {
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

// ActivityReader loads the activity event log into memory, decoding files
// concurrently through a bounded pool. A non-numeric ts anywhere in the log
// fails the read; there is no skip-row mode.
type ActivityReader struct {
	log  *slog.Logger
	cfg  ActivityReaderConfig
	pool pond.ResultPool[[]ActivityRecord]
}

func NewActivityReader(cfg ActivityReaderConfig) (*ActivityReader, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &ActivityReader{
		log:  cfg.Logger,
		cfg:  cfg,
		pool: pond.NewResultPool[[]ActivityRecord](cfg.PoolSize),
	}, nil
}

func (r *ActivityReader) ReadEvents(ctx context.Context) ([]ActivityRecord, error) {
	keys, err := r.cfg.Lister.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list log data files: %w", err)
	}
	r.log.Debug("source/events: decoding log data files", "files", len(keys))

	group := r.pool.NewGroupContext(ctx)
	for _, key := range keys {
		key := key
		group.SubmitErr(func() ([]ActivityRecord, error) {
			return r.readFile(ctx, key)
		})
	}

	results, err := group.Wait()
	if err != nil {
		return nil, fmt.Errorf("failed to read log data: %w", err)
	}

	var events []ActivityRecord
	for _, fileEvents := range results {
		events = append(events, fileEvents...)
	}
	return events, nil
}

func (r *ActivityReader) readFile(ctx context.Context, key string) ([]ActivityRecord, error) {
	body, err := r.cfg.Lister.Open(ctx, key)
	if err != nil {
		return nil, err
	}
	defer body.Close()

	var events []ActivityRecord
	dec := json.NewDecoder(body)
	for {
		var rec ActivityRecord
		if err := dec.Decode(&rec); err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			return nil, fmt.Errorf("failed to decode %s record %d: %w", key, len(events)+1, err)
		}
		events = append(events, rec)
	}
	return events, nil
}
