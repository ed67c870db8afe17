package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/lib/pq"

	"weather-crop-platform/internal/models"
	"weather-crop-platform/pkg/database"
	"weather-crop-platform/pkg/logging"
	"weather-crop-platform/pkg/metrics"
)

// weatherRepository implements WeatherRepository on PostgreSQL.
type weatherRepository struct {
	db      *database.PostgresDB
	logger  *logging.StructuredLogger
	metrics *metrics.Collector
}

// NewWeatherRepository creates a new weather repository.
func NewWeatherRepository(db *database.PostgresDB, logger *logging.StructuredLogger, metricsCollector *metrics.Collector) WeatherRepository {
	return &weatherRepository{
		db:      db,
		logger:  logger,
		metrics: metricsCollector,
	}
}

// EnsureStation creates the station on first sighting. Re-running the same
// ingestion leaves the existing row, including its creation metadata, alone.
func (r *weatherRepository) EnsureStation(ctx context.Context, station *models.WeatherStation) error {
	query := `
		INSERT INTO weather_station (station_id, station_name, create_by, create_timestamp, update_by, update_timestamp)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (station_id) DO NOTHING
	`

	_, err := r.db.ExecContext(ctx, "ensure_station", query,
		station.StationID,
		station.StationName,
		station.CreateBy,
		station.CreateTimestamp,
		station.UpdateBy,
		station.UpdateTimestamp,
	)
	if err != nil {
		return fmt.Errorf("failed to ensure station: %w", err)
	}

	return nil
}

// GetStation retrieves a weather station by its identifier.
func (r *weatherRepository) GetStation(ctx context.Context, stationID string) (*models.WeatherStation, error) {
	query := `
		SELECT station_id, station_name, create_by, create_timestamp, update_by, update_timestamp
		FROM weather_station
		WHERE station_id = $1
	`

	var station models.WeatherStation
	err := r.db.GetContext(ctx, "get_station", &station, query, stationID)
	if err == sql.ErrNoRows {
		return nil, &NotFoundError{Resource: "weather_station", ID: stationID}
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get station: %w", err)
	}

	return &station, nil
}

// ExistingObservations reports which (station, date) keys already have rows,
// one batched lookup per station rather than one per record.
func (r *weatherRepository) ExistingObservations(ctx context.Context, records []*models.WeatherRecord) (map[string]struct{}, error) {
	byStation := make(map[string][]time.Time)
	for _, rec := range records {
		byStation[rec.StationID] = append(byStation[rec.StationID], rec.Date)
	}

	query := `
		SELECT date
		FROM weather_record
		WHERE station_id = $1 AND date = ANY($2)
	`

	existing := make(map[string]struct{})
	for stationID, dates := range byStation {
		var found []time.Time
		err := r.db.SelectContext(ctx, "existing_observations", &found, query, stationID, pq.Array(dates))
		if err != nil {
			return nil, fmt.Errorf("failed to select existing observation dates: %w", err)
		}
		for _, d := range found {
			existing[stationID+"/"+d.UTC().Format(models.DateLayout)] = struct{}{}
		}
	}

	return existing, nil
}

// ApplyObservations bulk-creates and bulk-updates observations in a single
// transaction. Updates touch only the metric fields and update metadata.
func (r *weatherRepository) ApplyObservations(ctx context.Context, toCreate, toUpdate []*models.WeatherRecord) error {
	if len(toCreate) == 0 && len(toUpdate) == 0 {
		return nil
	}

	tx, err := r.db.BeginTx(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if len(toCreate) > 0 {
		stmt, err := tx.PrepareContext(ctx, `
			INSERT INTO weather_record (station_id, date, max_temp, min_temp, precipitation,
				create_by, create_timestamp, update_by, update_timestamp)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		`)
		if err != nil {
			return fmt.Errorf("failed to prepare observation insert: %w", err)
		}
		defer stmt.Close()

		for _, rec := range toCreate {
			_, err := stmt.ExecContext(ctx,
				rec.StationID, rec.Date, rec.MaxTemp, rec.MinTemp, rec.Precipitation,
				rec.CreateBy, rec.CreateTimestamp, rec.UpdateBy, rec.UpdateTimestamp,
			)
			if err != nil {
				return fmt.Errorf("failed to insert observation %s: %w", rec.NaturalKey(), err)
			}
		}
	}

	if len(toUpdate) > 0 {
		stmt, err := tx.PrepareContext(ctx, `
			UPDATE weather_record
			SET max_temp = $1, min_temp = $2, precipitation = $3,
				update_by = $4, update_timestamp = $5
			WHERE station_id = $6 AND date = $7
		`)
		if err != nil {
			return fmt.Errorf("failed to prepare observation update: %w", err)
		}
		defer stmt.Close()

		for _, rec := range toUpdate {
			_, err := stmt.ExecContext(ctx,
				rec.MaxTemp, rec.MinTemp, rec.Precipitation,
				rec.UpdateBy, rec.UpdateTimestamp,
				rec.StationID, rec.Date,
			)
			if err != nil {
				return fmt.Errorf("failed to update observation %s: %w", rec.NaturalKey(), err)
			}
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit observation batch: %w", err)
	}

	r.metrics.ObserveBatch("weather", len(toCreate)+len(toUpdate))
	return nil
}

// UpsertObservations writes the batch with (station_id, date) as the
// conflict target, inside one transaction. It returns the number of rows
// newly created; with refresh false, conflicting rows are left untouched.
func (r *weatherRepository) UpsertObservations(ctx context.Context, records []*models.WeatherRecord, refresh bool) (int, error) {
	if len(records) == 0 {
		return 0, nil
	}

	refreshQuery := `
		INSERT INTO weather_record (station_id, date, max_temp, min_temp, precipitation,
			create_by, create_timestamp, update_by, update_timestamp)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (station_id, date) DO UPDATE SET
			max_temp = EXCLUDED.max_temp,
			min_temp = EXCLUDED.min_temp,
			precipitation = EXCLUDED.precipitation,
			update_by = EXCLUDED.update_by,
			update_timestamp = EXCLUDED.update_timestamp
		RETURNING (xmax = 0) AS inserted
	`
	ignoreQuery := `
		INSERT INTO weather_record (station_id, date, max_temp, min_temp, precipitation,
			create_by, create_timestamp, update_by, update_timestamp)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (station_id, date) DO NOTHING
	`

	tx, err := r.db.BeginTx(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	created := 0
	if refresh {
		stmt, err := tx.PrepareContext(ctx, refreshQuery)
		if err != nil {
			return 0, fmt.Errorf("failed to prepare observation upsert: %w", err)
		}
		defer stmt.Close()

		for _, rec := range records {
			var inserted bool
			err := stmt.QueryRowContext(ctx,
				rec.StationID, rec.Date, rec.MaxTemp, rec.MinTemp, rec.Precipitation,
				rec.CreateBy, rec.CreateTimestamp, rec.UpdateBy, rec.UpdateTimestamp,
			).Scan(&inserted)
			if err != nil {
				return 0, fmt.Errorf("failed to upsert observation %s: %w", rec.NaturalKey(), err)
			}
			if inserted {
				created++
			}
		}
	} else {
		stmt, err := tx.PrepareContext(ctx, ignoreQuery)
		if err != nil {
			return 0, fmt.Errorf("failed to prepare observation insert: %w", err)
		}
		defer stmt.Close()

		for _, rec := range records {
			res, err := stmt.ExecContext(ctx,
				rec.StationID, rec.Date, rec.MaxTemp, rec.MinTemp, rec.Precipitation,
				rec.CreateBy, rec.CreateTimestamp, rec.UpdateBy, rec.UpdateTimestamp,
			)
			if err != nil {
				return 0, fmt.Errorf("failed to insert observation %s: %w", rec.NaturalKey(), err)
			}
			n, err := res.RowsAffected()
			if err != nil {
				return 0, fmt.Errorf("failed to read rows affected: %w", err)
			}
			created += int(n)
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit observation batch: %w", err)
	}

	r.metrics.ObserveBatch("weather", len(records))
	return created, nil
}

// IterateObservations streams every stored observation through fn, in
// (station, date) order. Iteration stops at the first error fn returns.
func (r *weatherRepository) IterateObservations(ctx context.Context, fn func(*models.WeatherRecord) error) error {
	query := `
		SELECT id, station_id, date, max_temp, min_temp, precipitation,
		       create_by, create_timestamp, update_by, update_timestamp
		FROM weather_record
		ORDER BY station_id, date
	`

	rows, err := r.db.QueryxContext(ctx, "iterate_observations", query)
	if err != nil {
		return fmt.Errorf("failed to query observations: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var rec models.WeatherRecord
		if err := rows.StructScan(&rec); err != nil {
			return fmt.Errorf("failed to scan observation: %w", err)
		}
		if err := fn(&rec); err != nil {
			return err
		}
	}

	return rows.Err()
}

// GetObservations retrieves observations with filtering and pagination.
func (r *weatherRepository) GetObservations(ctx context.Context, filter ObservationFilter) ([]*models.WeatherRecord, int, error) {
	query := `
		SELECT id, station_id, date, max_temp, min_temp, precipitation,
		       create_by, create_timestamp, update_by, update_timestamp
		FROM weather_record
		WHERE 1=1
	`
	args := []interface{}{}
	argNum := 1

	if filter.StationContains != nil {
		query += fmt.Sprintf(" AND station_id LIKE '%%' || $%d || '%%'", argNum)
		args = append(args, *filter.StationContains)
		argNum++
	}

	if filter.Date != nil {
		query += fmt.Sprintf(" AND date = $%d", argNum)
		args = append(args, *filter.Date)
		argNum++
	}

	countQuery := "SELECT COUNT(*) FROM (" + query + ") AS count_query"
	var totalCount int
	if err := r.db.GetContext(ctx, "count_observations", &totalCount, countQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("failed to count observations: %w", err)
	}

	query += " ORDER BY station_id, date"
	query += fmt.Sprintf(" LIMIT $%d OFFSET $%d", argNum, argNum+1)
	args = append(args, filter.Limit, filter.Offset)

	var records []*models.WeatherRecord
	if err := r.db.SelectContext(ctx, "get_observations", &records, query, args...); err != nil {
		return nil, 0, fmt.Errorf("failed to get observations: %w", err)
	}

	return records, totalCount, nil
}

// ExistingStats reports which (station, year) keys already have stats rows.
func (r *weatherRepository) ExistingStats(ctx context.Context, stats []*models.StationYearStats) (map[string]struct{}, error) {
	byStation := make(map[string][]int64)
	for _, s := range stats {
		byStation[s.StationID] = append(byStation[s.StationID], int64(s.Year))
	}

	query := `
		SELECT year
		FROM weather_station_stats
		WHERE station_id = $1 AND year = ANY($2)
	`

	existing := make(map[string]struct{})
	for stationID, years := range byStation {
		var found []int
		err := r.db.SelectContext(ctx, "existing_stats", &found, query, stationID, pq.Array(years))
		if err != nil {
			return nil, fmt.Errorf("failed to select existing stats years: %w", err)
		}
		for _, y := range found {
			existing[fmt.Sprintf("%s/%d", stationID, y)] = struct{}{}
		}
	}

	return existing, nil
}

// ApplyStats bulk-creates and bulk-updates stats rows in one transaction.
func (r *weatherRepository) ApplyStats(ctx context.Context, toCreate, toUpdate []*models.StationYearStats) error {
	if len(toCreate) == 0 && len(toUpdate) == 0 {
		return nil
	}

	tx, err := r.db.BeginTx(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if len(toCreate) > 0 {
		stmt, err := tx.PrepareContext(ctx, `
			INSERT INTO weather_station_stats (station_id, year, avg_max_temp, avg_min_temp, total_precipitation,
				create_by, create_timestamp, update_by, update_timestamp)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		`)
		if err != nil {
			return fmt.Errorf("failed to prepare stats insert: %w", err)
		}
		defer stmt.Close()

		for _, s := range toCreate {
			_, err := stmt.ExecContext(ctx,
				s.StationID, s.Year, s.AvgMaxTemp, s.AvgMinTemp, s.TotalPrecipitation,
				s.CreateBy, s.CreateTimestamp, s.UpdateBy, s.UpdateTimestamp,
			)
			if err != nil {
				return fmt.Errorf("failed to insert stats %s: %w", s.NaturalKey(), err)
			}
		}
	}

	if len(toUpdate) > 0 {
		stmt, err := tx.PrepareContext(ctx, `
			UPDATE weather_station_stats
			SET avg_max_temp = $1, avg_min_temp = $2, total_precipitation = $3,
				update_by = $4, update_timestamp = $5
			WHERE station_id = $6 AND year = $7
		`)
		if err != nil {
			return fmt.Errorf("failed to prepare stats update: %w", err)
		}
		defer stmt.Close()

		for _, s := range toUpdate {
			_, err := stmt.ExecContext(ctx,
				s.AvgMaxTemp, s.AvgMinTemp, s.TotalPrecipitation,
				s.UpdateBy, s.UpdateTimestamp,
				s.StationID, s.Year,
			)
			if err != nil {
				return fmt.Errorf("failed to update stats %s: %w", s.NaturalKey(), err)
			}
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit stats batch: %w", err)
	}

	r.metrics.ObserveBatch("stats", len(toCreate)+len(toUpdate))
	return nil
}

// UpsertStats writes the batch with (station_id, year) as the conflict
// target and returns the number of rows newly created.
func (r *weatherRepository) UpsertStats(ctx context.Context, stats []*models.StationYearStats, refresh bool) (int, error) {
	if len(stats) == 0 {
		return 0, nil
	}

	refreshQuery := `
		INSERT INTO weather_station_stats (station_id, year, avg_max_temp, avg_min_temp, total_precipitation,
			create_by, create_timestamp, update_by, update_timestamp)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (station_id, year) DO UPDATE SET
			avg_max_temp = EXCLUDED.avg_max_temp,
			avg_min_temp = EXCLUDED.avg_min_temp,
			total_precipitation = EXCLUDED.total_precipitation,
			update_by = EXCLUDED.update_by,
			update_timestamp = EXCLUDED.update_timestamp
		RETURNING (xmax = 0) AS inserted
	`
	ignoreQuery := `
		INSERT INTO weather_station_stats (station_id, year, avg_max_temp, avg_min_temp, total_precipitation,
			create_by, create_timestamp, update_by, update_timestamp)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (station_id, year) DO NOTHING
	`

	tx, err := r.db.BeginTx(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	created := 0
	if refresh {
		stmt, err := tx.PrepareContext(ctx, refreshQuery)
		if err != nil {
			return 0, fmt.Errorf("failed to prepare stats upsert: %w", err)
		}
		defer stmt.Close()

		for _, s := range stats {
			var inserted bool
			err := stmt.QueryRowContext(ctx,
				s.StationID, s.Year, s.AvgMaxTemp, s.AvgMinTemp, s.TotalPrecipitation,
				s.CreateBy, s.CreateTimestamp, s.UpdateBy, s.UpdateTimestamp,
			).Scan(&inserted)
			if err != nil {
				return 0, fmt.Errorf("failed to upsert stats %s: %w", s.NaturalKey(), err)
			}
			if inserted {
				created++
			}
		}
	} else {
		stmt, err := tx.PrepareContext(ctx, ignoreQuery)
		if err != nil {
			return 0, fmt.Errorf("failed to prepare stats insert: %w", err)
		}
		defer stmt.Close()

		for _, s := range stats {
			res, err := stmt.ExecContext(ctx,
				s.StationID, s.Year, s.AvgMaxTemp, s.AvgMinTemp, s.TotalPrecipitation,
				s.CreateBy, s.CreateTimestamp, s.UpdateBy, s.UpdateTimestamp,
			)
			if err != nil {
				return 0, fmt.Errorf("failed to insert stats %s: %w", s.NaturalKey(), err)
			}
			n, err := res.RowsAffected()
			if err != nil {
				return 0, fmt.Errorf("failed to read rows affected: %w", err)
			}
			created += int(n)
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit stats batch: %w", err)
	}

	r.metrics.ObserveBatch("stats", len(stats))
	return created, nil
}

// GetStatistics retrieves yearly statistics with filtering and pagination.
func (r *weatherRepository) GetStatistics(ctx context.Context, filter StatisticsFilter) ([]*models.StationYearStats, int, error) {
	query := `
		SELECT id, station_id, year, avg_max_temp, avg_min_temp, total_precipitation,
		       create_by, create_timestamp, update_by, update_timestamp
		FROM weather_station_stats
		WHERE 1=1
	`
	args := []interface{}{}
	argNum := 1

	if filter.StationContains != nil {
		query += fmt.Sprintf(" AND station_id LIKE '%%' || $%d || '%%'", argNum)
		args = append(args, *filter.StationContains)
		argNum++
	}

	if filter.Year != nil {
		query += fmt.Sprintf(" AND year = $%d", argNum)
		args = append(args, *filter.Year)
		argNum++
	}

	countQuery := "SELECT COUNT(*) FROM (" + query + ") AS count_query"
	var totalCount int
	if err := r.db.GetContext(ctx, "count_statistics", &totalCount, countQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("failed to count statistics: %w", err)
	}

	query += " ORDER BY station_id, year"
	query += fmt.Sprintf(" LIMIT $%d OFFSET $%d", argNum, argNum+1)
	args = append(args, filter.Limit, filter.Offset)

	var stats []*models.StationYearStats
	if err := r.db.SelectContext(ctx, "get_statistics", &stats, query, args...); err != nil {
		return nil, 0, fmt.Errorf("failed to get statistics: %w", err)
	}

	return stats, totalCount, nil
}

// HealthCheck performs a repository health check.
func (r *weatherRepository) HealthCheck(ctx context.Context) error {
	return r.db.HealthCheck(ctx)
}
