package services

import (
	"context"

	"weather-crop-platform/internal/models"
	"weather-crop-platform/internal/repository"
)

// RecordReader is the read-side slice of the repository the API needs.
type RecordReader interface {
	GetObservations(ctx context.Context, filter repository.ObservationFilter) ([]*models.WeatherRecord, int, error)
	GetStatistics(ctx context.Context, filter repository.StatisticsFilter) ([]*models.StationYearStats, int, error)
	HealthCheck(ctx context.Context) error
}

// WeatherService exposes filtered, paginated read access over stored
// observations and yearly statistics.
type WeatherService struct {
	reader RecordReader
}

// NewWeatherService creates a new read service.
func NewWeatherService(reader RecordReader) *WeatherService {
	return &WeatherService{reader: reader}
}

// GetObservations retrieves observations matching the filter.
func (s *WeatherService) GetObservations(ctx context.Context, filter repository.ObservationFilter) ([]*models.WeatherRecord, int, error) {
	return s.reader.GetObservations(ctx, filter)
}

// GetStatistics retrieves yearly statistics matching the filter.
func (s *WeatherService) GetStatistics(ctx context.Context, filter repository.StatisticsFilter) ([]*models.StationYearStats, int, error) {
	return s.reader.GetStatistics(ctx, filter)
}

// HealthCheck reports whether the backing store is reachable.
func (s *WeatherService) HealthCheck(ctx context.Context) error {
	return s.reader.HealthCheck(ctx)
}
