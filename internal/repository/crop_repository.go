package repository

import (
	"context"
	"fmt"

	"github.com/lib/pq"

	"weather-crop-platform/internal/models"
	"weather-crop-platform/pkg/database"
	"weather-crop-platform/pkg/logging"
	"weather-crop-platform/pkg/metrics"
)

// cropRepository implements CropRepository on PostgreSQL.
type cropRepository struct {
	db      *database.PostgresDB
	logger  *logging.StructuredLogger
	metrics *metrics.Collector
}

// NewCropRepository creates a new crop yield repository.
func NewCropRepository(db *database.PostgresDB, logger *logging.StructuredLogger, metricsCollector *metrics.Collector) CropRepository {
	return &cropRepository{
		db:      db,
		logger:  logger,
		metrics: metricsCollector,
	}
}

// ExistingCropYears reports which years already have rows, in one lookup.
func (r *cropRepository) ExistingCropYears(ctx context.Context, records []*models.CropYieldRecord) (map[string]struct{}, error) {
	years := make([]int64, 0, len(records))
	for _, rec := range records {
		years = append(years, int64(rec.Year))
	}

	query := `
		SELECT year
		FROM crop_yield_record
		WHERE year = ANY($1)
	`

	var found []int
	if err := r.db.SelectContext(ctx, "existing_crop_years", &found, query, pq.Array(years)); err != nil {
		return nil, fmt.Errorf("failed to select existing crop years: %w", err)
	}

	existing := make(map[string]struct{}, len(found))
	for _, y := range found {
		existing[fmt.Sprintf("%d", y)] = struct{}{}
	}

	return existing, nil
}

// ApplyCropRecords bulk-creates and bulk-updates crop rows in one
// transaction. Updates touch only total_yield and update metadata.
func (r *cropRepository) ApplyCropRecords(ctx context.Context, toCreate, toUpdate []*models.CropYieldRecord) error {
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
			INSERT INTO crop_yield_record (year, total_yield, create_by, create_timestamp, update_by, update_timestamp)
			VALUES ($1, $2, $3, $4, $5, $6)
		`)
		if err != nil {
			return fmt.Errorf("failed to prepare crop insert: %w", err)
		}
		defer stmt.Close()

		for _, rec := range toCreate {
			_, err := stmt.ExecContext(ctx,
				rec.Year, rec.TotalYield,
				rec.CreateBy, rec.CreateTimestamp, rec.UpdateBy, rec.UpdateTimestamp,
			)
			if err != nil {
				return fmt.Errorf("failed to insert crop record for %d: %w", rec.Year, err)
			}
		}
	}

	if len(toUpdate) > 0 {
		stmt, err := tx.PrepareContext(ctx, `
			UPDATE crop_yield_record
			SET total_yield = $1, update_by = $2, update_timestamp = $3
			WHERE year = $4
		`)
		if err != nil {
			return fmt.Errorf("failed to prepare crop update: %w", err)
		}
		defer stmt.Close()

		for _, rec := range toUpdate {
			_, err := stmt.ExecContext(ctx,
				rec.TotalYield, rec.UpdateBy, rec.UpdateTimestamp, rec.Year,
			)
			if err != nil {
				return fmt.Errorf("failed to update crop record for %d: %w", rec.Year, err)
			}
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit crop batch: %w", err)
	}

	r.metrics.ObserveBatch("crop", len(toCreate)+len(toUpdate))
	return nil
}

// UpsertCropRecords writes the batch with year as the conflict target and
// returns the number of rows newly created.
func (r *cropRepository) UpsertCropRecords(ctx context.Context, records []*models.CropYieldRecord, refresh bool) (int, error) {
	if len(records) == 0 {
		return 0, nil
	}

	refreshQuery := `
		INSERT INTO crop_yield_record (year, total_yield, create_by, create_timestamp, update_by, update_timestamp)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (year) DO UPDATE SET
			total_yield = EXCLUDED.total_yield,
			update_by = EXCLUDED.update_by,
			update_timestamp = EXCLUDED.update_timestamp
		RETURNING (xmax = 0) AS inserted
	`
	ignoreQuery := `
		INSERT INTO crop_yield_record (year, total_yield, create_by, create_timestamp, update_by, update_timestamp)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (year) DO NOTHING
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
			return 0, fmt.Errorf("failed to prepare crop upsert: %w", err)
		}
		defer stmt.Close()

		for _, rec := range records {
			var inserted bool
			err := stmt.QueryRowContext(ctx,
				rec.Year, rec.TotalYield,
				rec.CreateBy, rec.CreateTimestamp, rec.UpdateBy, rec.UpdateTimestamp,
			).Scan(&inserted)
			if err != nil {
				return 0, fmt.Errorf("failed to upsert crop record for %d: %w", rec.Year, err)
			}
			if inserted {
				created++
			}
		}
	} else {
		stmt, err := tx.PrepareContext(ctx, ignoreQuery)
		if err != nil {
			return 0, fmt.Errorf("failed to prepare crop insert: %w", err)
		}
		defer stmt.Close()

		for _, rec := range records {
			res, err := stmt.ExecContext(ctx,
				rec.Year, rec.TotalYield,
				rec.CreateBy, rec.CreateTimestamp, rec.UpdateBy, rec.UpdateTimestamp,
			)
			if err != nil {
				return 0, fmt.Errorf("failed to insert crop record for %d: %w", rec.Year, err)
			}
			n, err := res.RowsAffected()
			if err != nil {
				return 0, fmt.Errorf("failed to read rows affected: %w", err)
			}
			created += int(n)
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit crop batch: %w", err)
	}

	r.metrics.ObserveBatch("crop", len(records))
	return created, nil
}

// GetCropRecords retrieves crop yield records ordered by year.
func (r *cropRepository) GetCropRecords(ctx context.Context, limit, offset int) ([]*models.CropYieldRecord, int, error) {
	var totalCount int
	if err := r.db.GetContext(ctx, "count_crop_records", &totalCount, "SELECT COUNT(*) FROM crop_yield_record"); err != nil {
		return nil, 0, fmt.Errorf("failed to count crop records: %w", err)
	}

	query := `
		SELECT id, year, total_yield, create_by, create_timestamp, update_by, update_timestamp
		FROM crop_yield_record
		ORDER BY year
		LIMIT $1 OFFSET $2
	`

	var records []*models.CropYieldRecord
	if err := r.db.SelectContext(ctx, "get_crop_records", &records, query, limit, offset); err != nil {
		return nil, 0, fmt.Errorf("failed to get crop records: %w", err)
	}

	return records, totalCount, nil
}
