package warehouse

import (
	"context"
	"fmt"
	"time"

	"github.com/alitto/pond/v2"

	"github.com/tracklake/tracklake/pkg/source"
)

// songplayShardBits is the number of low bits reserved for the shard-local
// counter of a songplay_id. The shard index occupies the bits above, so keys
// are unique across shards without any cross-shard coordination.
const songplayShardBits = 33

// SongplayRow is one row of the songplays fact table: one playback event
// matched to one catalog song. songplay_id is a surrogate key, unique within
// a run and meaningless across runs.
type SongplayRow struct {
	SongplayID uint64
	StartTime  time.Time
	UserID     string
	Level      string
	SongID     string
	ArtistID   string
	SessionID  int64
	Location   string
	UserAgent  string
	Year       int
	Month      int
}

// JoinResult carries the fact rows plus join diagnostics.
type JoinResult struct {
	Rows []SongplayRow
	// Unmatched counts playback events whose song title had no catalog
	// match. Those events produce no fact row and are not an error.
	Unmatched int
}

// MatchRate returns the fraction of playback events that produced at least
// one fact row. Returns 1 for an empty input.
func (r JoinResult) MatchRate(eventCount int) float64 {
	if eventCount == 0 {
		return 1
	}
	return float64(eventCount-r.Unmatched) / float64(eventCount)
}

type catalogEntry struct {
	songID   string
	artistID string
}

type shardResult struct {
	rows      []SongplayRow
	unmatched int
}

// BuildSongplays performs the inner equi-join of filtered activity against
// the catalog on activity.song == catalog.title (exact, case-sensitive). One
// fact row is emitted per matched (event, song) pair, so duplicate catalog
// titles fan out. Events are processed in shards; each shard assigns its own
// surrogate keys independently.
func BuildSongplays(ctx context.Context, events []source.ActivityRecord, songs []source.SongRecord, shards int) (JoinResult, error) {
	if shards <= 0 {
		shards = 1
	}

	// Catalog index, preserving input order of duplicate titles
	byTitle := make(map[string][]catalogEntry, len(songs))
	for _, s := range songs {
		byTitle[s.Title] = append(byTitle[s.Title], catalogEntry{songID: s.SongID, artistID: s.ArtistID})
	}

	shardSize := (len(events) + shards - 1) / shards

	pool := pond.NewResultPool[shardResult](shards)
	group := pool.NewGroupContext(ctx)
	for shard := 0; shard < shards; shard++ {
		shard := shard
		lo := shard * shardSize
		if lo >= len(events) {
			break
		}
		hi := min(lo+shardSize, len(events))
		group.SubmitErr(func() (shardResult, error) {
			return joinShard(events[lo:hi], byTitle, uint64(shard))
		})
	}

	results, err := group.Wait()
	if err != nil {
		return JoinResult{}, fmt.Errorf("songplays join failed: %w", err)
	}

	var out JoinResult
	for _, res := range results {
		out.Rows = append(out.Rows, res.rows...)
		out.Unmatched += res.unmatched
	}
	return out, nil
}

func joinShard(events []source.ActivityRecord, byTitle map[string][]catalogEntry, shard uint64) (shardResult, error) {
	var res shardResult
	var counter uint64
	for i, ev := range events {
		matches, ok := byTitle[ev.Song]
		if !ok {
			res.unmatched++
			continue
		}
		t, err := DecomposeTime(ev.TS)
		if err != nil {
			return shardResult{}, fmt.Errorf("session %d event %d: %w", ev.SessionID, i, err)
		}
		for _, m := range matches {
			res.rows = append(res.rows, SongplayRow{
				SongplayID: shard<<songplayShardBits | counter,
				StartTime:  t.StartTime,
				UserID:     string(ev.UserID),
				Level:      ev.Level,
				SongID:     m.songID,
				ArtistID:   m.artistID,
				SessionID:  ev.SessionID,
				Location:   ev.Location,
				UserAgent:  ev.UserAgent,
				Year:       t.Year,
				Month:      t.Month,
			})
			counter++
		}
	}
	return res, nil
}
