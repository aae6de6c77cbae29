package warehouse

import (
	"context"
	"fmt"
	"strings"

	"github.com/tracklake/tracklake/pkg/duck"
)

type Schema struct {
	Name        string      `json:"name"`
	Description string      `json:"description,omitempty"`
	Tables      []TableInfo `json:"tables"`
}

type TableInfo struct {
	Name        string       `json:"name"`
	Description string       `json:"description,omitempty"`
	Columns     []ColumnInfo `json:"columns"`
}

type ColumnInfo struct {
	Name        string `json:"name"`
	Type        string `json:"type"`
	Description string `json:"description,omitempty"`
}

// WarehouseSchema is the in-code description of the five output tables. The
// store's table configs are derived from it, and ValidateWarehouse checks the
// written tables against it after a run.
func WarehouseSchema() *Schema {
	return &Schema{
		Name:        "tracklake",
		Description: "Listening warehouse: song and artist dimensions, users, time, and the songplays fact table",
		Tables: []TableInfo{
			{
				Name:        "songs",
				Description: "Song dimension, one row per catalog song",
				Columns: []ColumnInfo{
					{Name: "song_id", Type: "VARCHAR", Description: "Catalog song identifier"},
					{Name: "title", Type: "VARCHAR", Description: "Song title"},
					{Name: "duration", Type: "DOUBLE", Description: "Song length in seconds"},
					{Name: "year", Type: "INTEGER", Description: "Release year, 0 when unknown"},
					{Name: "artist_id", Type: "VARCHAR", Description: "Catalog artist identifier"},
				},
			},
			{
				Name:        "artists",
				Description: "Artist dimension, one row per catalog song record",
				Columns: []ColumnInfo{
					{Name: "artist_id", Type: "VARCHAR", Description: "Catalog artist identifier"},
					{Name: "artist_location", Type: "VARCHAR", Description: "Artist home location, free text"},
					{Name: "artist_name", Type: "VARCHAR", Description: "Artist name"},
				},
			},
			{
				Name:        "users",
				Description: "User dimension, one row per playback event; level changes are kept as separate rows",
				Columns: []ColumnInfo{
					{Name: "user_id", Type: "VARCHAR", Description: "User identifier from the event log"},
					{Name: "first_name", Type: "VARCHAR", Description: "User first name"},
					{Name: "gender", Type: "VARCHAR", Description: "User gender marker"},
					{Name: "last_name", Type: "VARCHAR", Description: "User last name"},
					{Name: "level", Type: "VARCHAR", Description: "Subscription tier at event time (free/paid)"},
					{Name: "location", Type: "VARCHAR", Description: "User location, free text"},
				},
			},
			{
				Name:        "time",
				Description: "Time dimension, one row per playback event",
				Columns: []ColumnInfo{
					{Name: "ts", Type: "BIGINT", Description: "Original event timestamp, epoch milliseconds"},
					{Name: "start_time", Type: "TIMESTAMP", Description: "Event timestamp truncated to whole UTC seconds"},
					{Name: "hour", Type: "INTEGER", Description: "Hour of day, 0-23"},
					{Name: "day", Type: "INTEGER", Description: "Day of month, 1-31"},
					{Name: "week", Type: "INTEGER", Description: "ISO 8601 week of year"},
					{Name: "month", Type: "INTEGER", Description: "Month, 1-12"},
					{Name: "year", Type: "INTEGER", Description: "Calendar year"},
					{Name: "weekday", Type: "INTEGER", Description: "Day of week, 1=Sunday .. 7=Saturday"},
				},
			},
			{
				Name:        "songplays",
				Description: "Playback fact table, one row per (event, catalog song) title match",
				Columns: []ColumnInfo{
					{Name: "songplay_id", Type: "UBIGINT", Description: "Surrogate key, unique within a run only"},
					{Name: "start_time", Type: "TIMESTAMP", Description: "Playback instant, UTC"},
					{Name: "user_id", Type: "VARCHAR", Description: "User identifier from the event log"},
					{Name: "level", Type: "VARCHAR", Description: "Subscription tier at event time"},
					{Name: "song_id", Type: "VARCHAR", Description: "Matched catalog song"},
					{Name: "artist_id", Type: "VARCHAR", Description: "Matched catalog artist"},
					{Name: "session_id", Type: "BIGINT", Description: "Listening session identifier"},
					{Name: "location", Type: "VARCHAR", Description: "User location at event time"},
					{Name: "user_agent", Type: "VARCHAR", Description: "Client user agent string"},
					{Name: "year", Type: "INTEGER", Description: "Partition column, year of start_time"},
					{Name: "month", Type: "INTEGER", Description: "Partition column, month of start_time"},
				},
			},
		},
	}
}

// ValidateWarehouse checks the written tables against the in-code schema:
// every table exists and every expected column is present.
func ValidateWarehouse(ctx context.Context, db duck.DB, schema *Schema) error {
	if len(schema.Tables) == 0 {
		return nil
	}

	tableNames := make([]string, len(schema.Tables))
	for i, table := range schema.Tables {
		tableNames[i] = fmt.Sprintf("'%s'", strings.ReplaceAll(table.Name, "'", "''"))
	}
	query := fmt.Sprintf(`
		SELECT
			table_name,
			column_name
		FROM information_schema.columns
		WHERE table_catalog = '%s' AND table_schema = '%s'
			AND table_name IN (%s)
		ORDER BY table_name, ordinal_position
	`, db.Catalog(), db.Schema(), strings.Join(tableNames, ", "))

	conn, err := db.Conn(ctx)
	if err != nil {
		return fmt.Errorf("failed to get connection: %w", err)
	}
	defer conn.Close()

	rows, err := conn.QueryContext(ctx, query)
	if err != nil {
		return fmt.Errorf("failed to query schema: %w", err)
	}
	defer rows.Close()

	tableColumns := make(map[string]map[string]bool)
	for rows.Next() {
		var tableName, columnName string
		if err := rows.Scan(&tableName, &columnName); err != nil {
			return fmt.Errorf("failed to scan schema row: %w", err)
		}
		if tableColumns[tableName] == nil {
			tableColumns[tableName] = make(map[string]bool)
		}
		tableColumns[tableName][columnName] = true
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("error iterating schema rows: %w", err)
	}

	var missing []string
	for _, table := range schema.Tables {
		columns, exists := tableColumns[table.Name]
		if !exists {
			missing = append(missing, fmt.Sprintf("table %s: in-code schema but not in database", table.Name))
			continue
		}
		for _, col := range table.Columns {
			if !columns[col.Name] {
				missing = append(missing, fmt.Sprintf("table %s, column %s: in-code schema but not in database", table.Name, col.Name))
			}
		}
	}

	if len(missing) > 0 {
		return fmt.Errorf("schema validation failed:\n  %s", strings.Join(missing, "\n  "))
	}

	return nil
}
