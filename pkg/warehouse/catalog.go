// Package warehouse derives the five analytic tables of the listening
// warehouse from the raw catalog and activity sources: the songs, artists,
// users and time dimensions, and the songplays fact table.
package warehouse

import (
	"fmt"

	"github.com/tracklake/tracklake/pkg/source"
)

// SchemaError reports a required input column that is absent or unusable.
// It is fatal; the run aborts.
type SchemaError struct {
	Table  string
	Column string
	Reason string
}

func (e *SchemaError) Error() string {
	return fmt.Sprintf("schema mismatch: table %s, column %s: %s", e.Table, e.Column, e.Reason)
}

// SongRow is one row of the songs dimension.
type SongRow struct {
	SongID   string
	Title    string
	Duration float64
	Year     int
	ArtistID string
}

// ArtistRow is one row of the artists dimension.
type ArtistRow struct {
	ArtistID       string
	ArtistLocation string
	ArtistName     string
}

// ValidateCatalog checks the catalog invariants: song_id and artist_id are
// non-null identifiers on every record.
func ValidateCatalog(songs []source.SongRecord) error {
	for i, s := range songs {
		if s.SongID == "" {
			return &SchemaError{Table: "songs", Column: "song_id", Reason: fmt.Sprintf("missing identifier at record %d", i)}
		}
		if s.ArtistID == "" {
			return &SchemaError{Table: "artists", Column: "artist_id", Reason: fmt.Sprintf("missing identifier at record %d", i)}
		}
	}
	return nil
}

// BuildSongs projects the catalog onto the songs dimension. Every catalog row
// produces exactly one song row; no filtering.
func BuildSongs(songs []source.SongRecord) []SongRow {
	rows := make([]SongRow, len(songs))
	for i, s := range songs {
		rows[i] = SongRow{
			SongID:   s.SongID,
			Title:    s.Title,
			Duration: s.Duration,
			Year:     s.Year,
			ArtistID: s.ArtistID,
		}
	}
	return rows
}

// BuildArtists projects the catalog onto the artists dimension.
func BuildArtists(songs []source.SongRecord) []ArtistRow {
	rows := make([]ArtistRow, len(songs))
	for i, s := range songs {
		rows[i] = ArtistRow{
			ArtistID:       s.ArtistID,
			ArtistLocation: s.ArtistLocation,
			ArtistName:     s.ArtistName,
		}
	}
	return rows
}
