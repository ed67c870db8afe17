package repository

import (
	"context"
	"fmt"
	"time"

	"weather-crop-platform/internal/models"
)

// WeatherRepository provides data access for stations, observations and
// derived yearly statistics.
type WeatherRepository interface {
	// Station operations. EnsureStation is idempotent: ingesting the same
	// file twice never creates a second station row.
	EnsureStation(ctx context.Context, station *models.WeatherStation) error
	GetStation(ctx context.Context, stationID string) (*models.WeatherStation, error)

	// Observation batch operations, consumed through the reconciler.
	ExistingObservations(ctx context.Context, records []*models.WeatherRecord) (map[string]struct{}, error)
	ApplyObservations(ctx context.Context, toCreate, toUpdate []*models.WeatherRecord) error
	UpsertObservations(ctx context.Context, records []*models.WeatherRecord, refresh bool) (int, error)

	// Observation read paths.
	IterateObservations(ctx context.Context, fn func(*models.WeatherRecord) error) error
	GetObservations(ctx context.Context, filter ObservationFilter) ([]*models.WeatherRecord, int, error)

	// Statistics batch operations and read path.
	ExistingStats(ctx context.Context, stats []*models.StationYearStats) (map[string]struct{}, error)
	ApplyStats(ctx context.Context, toCreate, toUpdate []*models.StationYearStats) error
	UpsertStats(ctx context.Context, stats []*models.StationYearStats, refresh bool) (int, error)
	GetStatistics(ctx context.Context, filter StatisticsFilter) ([]*models.StationYearStats, int, error)

	HealthCheck(ctx context.Context) error
}

// CropRepository provides data access for crop yield records.
type CropRepository interface {
	ExistingCropYears(ctx context.Context, records []*models.CropYieldRecord) (map[string]struct{}, error)
	ApplyCropRecords(ctx context.Context, toCreate, toUpdate []*models.CropYieldRecord) error
	UpsertCropRecords(ctx context.Context, records []*models.CropYieldRecord, refresh bool) (int, error)
	GetCropRecords(ctx context.Context, limit, offset int) ([]*models.CropYieldRecord, int, error)
}

// ObservationFilter defines filters for querying observations.
// StationContains matches station identifiers by substring; Date matches a
// single calendar date exactly.
type ObservationFilter struct {
	StationContains *string
	Date            *time.Time
	Limit           int
	Offset          int
}

// StatisticsFilter defines filters for querying yearly statistics.
type StatisticsFilter struct {
	StationContains *string
	Year            *int
	Limit           int
	Offset          int
}

// NotFoundError represents a resource that does not exist in the store.
type NotFoundError struct {
	Resource string
	ID       string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s not found: %s", e.Resource, e.ID)
}
