package duck

import (
	"context"
	"database/sql"
	"encoding/csv"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"
)

// TableConfig holds configuration for warehouse table writes.
type TableConfig struct {
	// TableName is the name of the table
	TableName string
	// Columns defines all columns in the table (in order)
	// Each column is a name:type pair, e.g., "start_time:TIMESTAMP", "song_id:VARCHAR"
	Columns []string
	// PartitionBy lists the columns the table is partitioned by in DuckLake.
	// Empty means unpartitioned.
	PartitionBy []string
}

func (cfg TableConfig) columnNames() ([]string, error) {
	names := make([]string, 0, len(cfg.Columns))
	for _, col := range cfg.Columns {
		parts := strings.SplitN(col, ":", 2)
		if len(parts) != 2 {
			return nil, fmt.Errorf("invalid column definition %q: expected format 'name:type'", col)
		}
		names = append(names, strings.TrimSpace(parts[0]))
	}
	return names, nil
}

// OverwriteTableViaCSV replaces the full contents of a warehouse table:
// - Creates the table (and its partitioning) if it doesn't exist
// - Loads the rows from CSV into a staging table
// - Deletes every existing row and inserts the staged rows in one transaction
//
// Each run recomputes every table from scratch, so the delete+insert pair is
// the table's overwrite semantics; readers never observe a half-written table.
func OverwriteTableViaCSV(
	ctx context.Context,
	log *slog.Logger,
	conn Connection,
	cfg TableConfig,
	count int,
	writeCSVFn func(*csv.Writer, int) error,
) error {
	writeStart := time.Now()
	defer func() {
		duration := time.Since(writeStart)
		log.Debug("table overwrite completed",
			"table", cfg.TableName,
			"rows", count,
			"duration", duration.String())
	}()

	if len(cfg.Columns) == 0 {
		return fmt.Errorf("columns cannot be empty")
	}

	if err := CreateTable(ctx, log, conn, cfg); err != nil {
		return fmt.Errorf("failed to create table: %w", err)
	}

	colNames, err := cfg.columnNames()
	if err != nil {
		return err
	}

	tmpFile, err := os.CreateTemp("", fmt.Sprintf("%s_rows_*.csv", cfg.TableName))
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	defer os.Remove(tmpFile.Name())
	defer tmpFile.Close()

	csvWriter := csv.NewWriter(tmpFile)
	csvWriter.Comma = ','

	for i := range count {
		select {
		case <-ctx.Done():
			return fmt.Errorf("context cancelled during CSV writing: %w", ctx.Err())
		default:
		}

		if err := writeCSVFn(csvWriter, i); err != nil {
			return fmt.Errorf("failed to write CSV row %d: %w", i, err)
		}
	}
	csvWriter.Flush()
	if err := csvWriter.Error(); err != nil {
		return fmt.Errorf("failed to flush CSV: %w", err)
	}

	// Retry the transaction with the same CSV file
	return retryWithBackoff(ctx, log, fmt.Sprintf("table %s", cfg.TableName), func() error {
		select {
		case <-ctx.Done():
			return fmt.Errorf("context cancelled before transaction for %s: %w", cfg.TableName, ctx.Err())
		default:
		}

		tx, err := conn.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("failed to begin transaction for %s: %w", cfg.TableName, err)
		}
		defer func() {
			if err := tx.Rollback(); err != nil && !errors.Is(err, sql.ErrTxDone) {
				log.Error("failed to rollback transaction", "table", cfg.TableName, "error", err)
			}
		}()

		db := conn.DB()
		qualified := fmt.Sprintf("%s.%s.%s", db.Catalog(), db.Schema(), cfg.TableName)

		if _, err := tx.ExecContext(ctx, fmt.Sprintf("DELETE FROM %s", qualified)); err != nil {
			return fmt.Errorf("failed to clear table: %w", err)
		}

		if count > 0 {
			stageTableName := fmt.Sprintf("%s_stage", cfg.TableName)
			if err := createStageTable(ctx, tx, cfg, stageTableName); err != nil {
				return fmt.Errorf("failed to create stage table: %w", err)
			}

			copySQL := fmt.Sprintf("COPY %s FROM '%s' (FORMAT CSV, HEADER false)", stageTableName, tmpFile.Name())
			if _, err := tx.ExecContext(ctx, copySQL); err != nil {
				return fmt.Errorf("failed to COPY FROM CSV: %w", err)
			}

			colList := strings.Join(colNames, ", ")
			insertSQL := fmt.Sprintf(`INSERT INTO %s (%s)
				SELECT %s FROM %s`,
				qualified,
				colList,
				colList,
				stageTableName)

			if _, err := tx.ExecContext(ctx, insertSQL); err != nil {
				return fmt.Errorf("failed to insert into table: %w", err)
			}

			if _, err := tx.ExecContext(ctx, fmt.Sprintf("DROP TABLE IF EXISTS %s", stageTableName)); err != nil {
				log.Error("failed to drop stage table", "error", err)
			}
		}

		if err := tx.Commit(); err != nil {
			return fmt.Errorf("failed to commit transaction: %w", err)
		}

		return nil
	})
}

// CreateTable creates the table and its partitioning if it doesn't exist.
func CreateTable(
	ctx context.Context,
	log *slog.Logger,
	conn Connection,
	cfg TableConfig,
) error {
	db := conn.DB()

	colDefs := make([]string, 0, len(cfg.Columns))
	for _, col := range cfg.Columns {
		parts := strings.SplitN(col, ":", 2)
		if len(parts) != 2 {
			return fmt.Errorf("invalid column definition %q: expected format 'name:type'", col)
		}
		colName := strings.TrimSpace(parts[0])
		colType := strings.TrimSpace(parts[1])
		colDefs = append(colDefs, fmt.Sprintf("%s %s", colName, colType))
	}

	createSQL := fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s.%s.%s (
		%s
	)`,
		db.Catalog(), db.Schema(), cfg.TableName,
		strings.Join(colDefs, ",\n\t\t"))

	if _, err := conn.ExecContext(ctx, createSQL); err != nil {
		return fmt.Errorf("failed to create table: %w", err)
	}

	if len(cfg.PartitionBy) > 0 {
		if _, ok := db.(*Lake); ok {
			partitionSQL := fmt.Sprintf(`ALTER TABLE %s.%s.%s SET PARTITIONED BY (%s)`,
				db.Catalog(), db.Schema(), cfg.TableName,
				strings.Join(cfg.PartitionBy, ", "))
			if _, err := conn.ExecContext(ctx, partitionSQL); err != nil {
				// Partitioning might fail if table already exists and is partitioned differently
				// Log but don't fail - this is idempotent
				log.Debug("failed to set partitioning (may already be partitioned)", "error", err)
			}
		}
	}

	return nil
}

// createStageTable creates a temporary staging table for CSV loading.
func createStageTable(
	ctx context.Context,
	tx *sql.Tx,
	cfg TableConfig,
	stageTableName string,
) error {
	colDefs := make([]string, 0, len(cfg.Columns))
	for _, col := range cfg.Columns {
		parts := strings.SplitN(col, ":", 2)
		if len(parts) != 2 {
			return fmt.Errorf("invalid column definition %q: expected format 'name:type'", col)
		}
		colName := strings.TrimSpace(parts[0])
		// Staging uses VARCHAR for all columns; DuckDB converts types on INSERT
		colDefs = append(colDefs, fmt.Sprintf("%s VARCHAR", colName))
	}

	createSQL := fmt.Sprintf(`CREATE TEMP TABLE %s (
		%s
	)`,
		stageTableName,
		strings.Join(colDefs, ",\n\t\t"))

	if _, err := tx.ExecContext(ctx, createSQL); err != nil {
		return fmt.Errorf("failed to create stage table: %w", err)
	}

	return nil
}
