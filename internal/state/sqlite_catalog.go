package state

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/metricgrid-labs/metricgrid/pkg/core"
)

// --- Model catalog ---

// CreateModel inserts a new model definition.
func (s *SQLiteStore) CreateModel(ctx context.Context, m *core.ModelDefinition) error {
	if s.db == nil {
		return fmt.Errorf("database not opened")
	}
	if m.ID == "" {
		m.ID = generateID()
	}
	now := time.Now().UTC()
	m.CreatedAt = now
	m.UpdatedAt = now

	dims, err := json.Marshal(m.DimensionColumns)
	if err != nil {
		return fmt.Errorf("failed to encode dimension columns: %w", err)
	}
	measures, err := json.Marshal(m.MeasureColumns)
	if err != nil {
		return fmt.Errorf("failed to encode measure columns: %w", err)
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO models (id, name, source_query, primary_date_column, dimension_columns, measure_columns, grain, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		m.ID, m.Name, m.SourceQuery, m.PrimaryDateColumn, string(dims), string(measures), string(m.Grain), m.CreatedAt, m.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert model: %w", err)
	}
	return nil
}

// GetModel retrieves a model by ID.
func (s *SQLiteStore) GetModel(ctx context.Context, id string) (*core.ModelDefinition, error) {
	return s.getModel(ctx, `WHERE id = ?`, id)
}

// GetModelByName retrieves a model by name.
func (s *SQLiteStore) GetModelByName(ctx context.Context, name string) (*core.ModelDefinition, error) {
	return s.getModel(ctx, `WHERE name = ?`, name)
}

func (s *SQLiteStore) getModel(ctx context.Context, where string, arg any) (*core.ModelDefinition, error) {
	if s.db == nil {
		return nil, fmt.Errorf("database not opened")
	}

	row := s.db.QueryRowContext(ctx,
		`SELECT id, name, source_query, primary_date_column, dimension_columns, measure_columns, grain, last_refreshed_at, created_at, updated_at
		 FROM models `+where, arg)

	m, err := scanModel(row.Scan)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, core.ErrModelNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get model: %w", err)
	}
	return m, nil
}

// ListModels retrieves all models ordered by name.
func (s *SQLiteStore) ListModels(ctx context.Context) ([]*core.ModelDefinition, error) {
	if s.db == nil {
		return nil, fmt.Errorf("database not opened")
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT id, name, source_query, primary_date_column, dimension_columns, measure_columns, grain, last_refreshed_at, created_at, updated_at
		 FROM models ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("failed to list models: %w", err)
	}
	defer rows.Close()

	var models []*core.ModelDefinition
	for rows.Next() {
		m, err := scanModel(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("failed to scan model: %w", err)
		}
		models = append(models, m)
	}
	return models, rows.Err()
}

func scanModel(scan func(...any) error) (*core.ModelDefinition, error) {
	m := &core.ModelDefinition{}
	var dims, measures string
	var lastRefreshed sql.NullTime
	var grain string

	err := scan(&m.ID, &m.Name, &m.SourceQuery, &m.PrimaryDateColumn, &dims, &measures, &grain, &lastRefreshed, &m.CreatedAt, &m.UpdatedAt)
	if err != nil {
		return nil, err
	}

	m.Grain = core.Grain(grain)
	if lastRefreshed.Valid {
		m.LastRefreshedAt = &lastRefreshed.Time
	}
	if err := json.Unmarshal([]byte(dims), &m.DimensionColumns); err != nil {
		return nil, fmt.Errorf("bad dimension columns: %w", err)
	}
	if err := json.Unmarshal([]byte(measures), &m.MeasureColumns); err != nil {
		return nil, fmt.Errorf("bad measure columns: %w", err)
	}
	return m, nil
}

// StampModelRefreshed records the time of the last successful refresh.
func (s *SQLiteStore) StampModelRefreshed(ctx context.Context, id string, at time.Time) error {
	if s.db == nil {
		return fmt.Errorf("database not opened")
	}

	result, err := s.db.ExecContext(ctx,
		`UPDATE models SET last_refreshed_at = ?, updated_at = ? WHERE id = ?`,
		at.UTC(), time.Now().UTC(), id,
	)
	if err != nil {
		return fmt.Errorf("failed to stamp model refresh: %w", err)
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return core.ErrModelNotFound
	}
	return nil
}

// --- Metric catalog ---

// CreateMetric inserts a new metric definition.
func (s *SQLiteStore) CreateMetric(ctx context.Context, m *core.MetricDefinition) error {
	if s.db == nil {
		return fmt.Errorf("database not opened")
	}
	if m.ID == "" {
		m.ID = generateID()
	}
	now := time.Now().UTC()
	m.CreatedAt = now
	m.UpdatedAt = now

	filters, err := json.Marshal(m.Filters)
	if err != nil {
		return fmt.Errorf("failed to encode filters: %w", err)
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO metrics (id, name, model_id, measure_column, aggregation, filters, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		m.ID, m.Name, m.ModelID, m.MeasureColumn, string(m.Aggregation), string(filters), m.CreatedAt, m.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert metric: %w", err)
	}
	return nil
}

// GetMetricByName retrieves a metric by name.
func (s *SQLiteStore) GetMetricByName(ctx context.Context, name string) (*core.MetricDefinition, error) {
	if s.db == nil {
		return nil, fmt.Errorf("database not opened")
	}

	m := &core.MetricDefinition{}
	var agg, filters string

	err := s.db.QueryRowContext(ctx,
		`SELECT id, name, model_id, measure_column, aggregation, filters, created_at, updated_at
		 FROM metrics WHERE name = ?`, name,
	).Scan(&m.ID, &m.Name, &m.ModelID, &m.MeasureColumn, &agg, &filters, &m.CreatedAt, &m.UpdatedAt)

	if errors.Is(err, sql.ErrNoRows) {
		return nil, core.ErrMetricNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get metric: %w", err)
	}

	m.Aggregation = core.Aggregation(agg)
	if err := json.Unmarshal([]byte(filters), &m.Filters); err != nil {
		return nil, fmt.Errorf("bad metric filters: %w", err)
	}
	return m, nil
}

// ListMetrics retrieves all metrics ordered by name.
func (s *SQLiteStore) ListMetrics(ctx context.Context) ([]*core.MetricDefinition, error) {
	if s.db == nil {
		return nil, fmt.Errorf("database not opened")
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT id, name, model_id, measure_column, aggregation, filters, created_at, updated_at
		 FROM metrics ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("failed to list metrics: %w", err)
	}
	defer rows.Close()

	var metrics []*core.MetricDefinition
	for rows.Next() {
		m := &core.MetricDefinition{}
		var agg, filters string
		if err := rows.Scan(&m.ID, &m.Name, &m.ModelID, &m.MeasureColumn, &agg, &filters, &m.CreatedAt, &m.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan metric: %w", err)
		}
		m.Aggregation = core.Aggregation(agg)
		if err := json.Unmarshal([]byte(filters), &m.Filters); err != nil {
			return nil, fmt.Errorf("bad metric filters: %w", err)
		}
		metrics = append(metrics, m)
	}
	return metrics, rows.Err()
}
