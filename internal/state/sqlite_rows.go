package state

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/metricgrid-labs/metricgrid/pkg/core"
)

// insertBatchSize bounds the parameter count of one multi-row INSERT.
const insertBatchSize = 500

// InsertRows inserts materialized rows in fixed-size batches inside one
// transaction.
func (s *SQLiteStore) InsertRows(ctx context.Context, rows []core.MaterializedRow) error {
	if s.db == nil {
		return fmt.Errorf("database not opened")
	}
	if len(rows) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO materialized_rows (model_id, date_value, dimensions, measures) VALUES (?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("failed to prepare insert: %w", err)
	}
	defer stmt.Close()

	for start := 0; start < len(rows); start += insertBatchSize {
		end := start + insertBatchSize
		if end > len(rows) {
			end = len(rows)
		}
		for _, r := range rows[start:end] {
			var dims any
			if r.Dimensions != nil {
				b, err := json.Marshal(r.Dimensions)
				if err != nil {
					return fmt.Errorf("failed to encode dimensions: %w", err)
				}
				dims = string(b)
			}
			measures, err := json.Marshal(r.Measures)
			if err != nil {
				return fmt.Errorf("failed to encode measures: %w", err)
			}
			if _, err := stmt.ExecContext(ctx, r.ModelID, r.DateValue, dims, string(measures)); err != nil {
				return fmt.Errorf("failed to insert materialized row: %w", err)
			}
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit insert: %w", err)
	}
	return nil
}

// DeleteRows removes every materialized row for a model.
func (s *SQLiteStore) DeleteRows(ctx context.Context, modelID string) (int64, error) {
	if s.db == nil {
		return 0, fmt.Errorf("database not opened")
	}

	result, err := s.db.ExecContext(ctx,
		`DELETE FROM materialized_rows WHERE model_id = ?`, modelID)
	if err != nil {
		return 0, fmt.Errorf("failed to delete materialized rows: %w", err)
	}
	n, _ := result.RowsAffected()
	return n, nil
}

// DeleteRowsInRange removes rows with date in [start, end). An empty end
// leaves the upper bound open (date >= start).
func (s *SQLiteStore) DeleteRowsInRange(ctx context.Context, modelID, start, end string) (int64, error) {
	if s.db == nil {
		return 0, fmt.Errorf("database not opened")
	}

	var result sql.Result
	var err error
	if end == "" {
		result, err = s.db.ExecContext(ctx,
			`DELETE FROM materialized_rows WHERE model_id = ? AND date_value >= ?`, modelID, start)
	} else {
		result, err = s.db.ExecContext(ctx,
			`DELETE FROM materialized_rows WHERE model_id = ? AND date_value >= ? AND date_value < ?`, modelID, start, end)
	}
	if err != nil {
		return 0, fmt.Errorf("failed to delete materialized rows in range: %w", err)
	}
	n, _ := result.RowsAffected()
	return n, nil
}

// GetRowsInRange fetches rows with date in [start, end), ordered by date.
func (s *SQLiteStore) GetRowsInRange(ctx context.Context, modelID, start, end string) ([]core.MaterializedRow, error) {
	if s.db == nil {
		return nil, fmt.Errorf("database not opened")
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT model_id, date_value, dimensions, measures
		 FROM materialized_rows
		 WHERE model_id = ? AND date_value >= ? AND date_value < ?
		 ORDER BY date_value`,
		modelID, start, end)
	if err != nil {
		return nil, fmt.Errorf("failed to query materialized rows: %w", err)
	}
	defer rows.Close()

	var out []core.MaterializedRow
	for rows.Next() {
		var r core.MaterializedRow
		var dims sql.NullString
		var measures string
		if err := rows.Scan(&r.ModelID, &r.DateValue, &dims, &measures); err != nil {
			return nil, fmt.Errorf("failed to scan materialized row: %w", err)
		}
		if dims.Valid {
			if err := json.Unmarshal([]byte(dims.String), &r.Dimensions); err != nil {
				return nil, fmt.Errorf("bad dimensions payload: %w", err)
			}
		}
		if err := json.Unmarshal([]byte(measures), &r.Measures); err != nil {
			return nil, fmt.Errorf("bad measures payload: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}
