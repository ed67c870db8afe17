package repository

import (
	"context"

	"weather-crop-platform/internal/models"
	"weather-crop-platform/internal/reconcile"
)

// The batch stores below adapt the repositories to the reconciler's Store
// interface, one per reconciled entity.

type observationBatchStore struct {
	repo WeatherRepository
}

// NewObservationBatchStore exposes weather observations as a reconcile
// target keyed by (station, date).
func NewObservationBatchStore(repo WeatherRepository) reconcile.Store[*models.WeatherRecord] {
	return &observationBatchStore{repo: repo}
}

func (s *observationBatchStore) Key(rec *models.WeatherRecord) string {
	return rec.NaturalKey()
}

func (s *observationBatchStore) Existing(ctx context.Context, records []*models.WeatherRecord) (map[string]struct{}, error) {
	return s.repo.ExistingObservations(ctx, records)
}

func (s *observationBatchStore) ApplySplit(ctx context.Context, toCreate, toUpdate []*models.WeatherRecord) error {
	return s.repo.ApplyObservations(ctx, toCreate, toUpdate)
}

func (s *observationBatchStore) Upsert(ctx context.Context, records []*models.WeatherRecord, refresh bool) (int, error) {
	return s.repo.UpsertObservations(ctx, records, refresh)
}

type statsBatchStore struct {
	repo WeatherRepository
}

// NewStatsBatchStore exposes yearly statistics as a reconcile target keyed
// by (station, year).
func NewStatsBatchStore(repo WeatherRepository) reconcile.Store[*models.StationYearStats] {
	return &statsBatchStore{repo: repo}
}

func (s *statsBatchStore) Key(stats *models.StationYearStats) string {
	return stats.NaturalKey()
}

func (s *statsBatchStore) Existing(ctx context.Context, stats []*models.StationYearStats) (map[string]struct{}, error) {
	return s.repo.ExistingStats(ctx, stats)
}

func (s *statsBatchStore) ApplySplit(ctx context.Context, toCreate, toUpdate []*models.StationYearStats) error {
	return s.repo.ApplyStats(ctx, toCreate, toUpdate)
}

func (s *statsBatchStore) Upsert(ctx context.Context, stats []*models.StationYearStats, refresh bool) (int, error) {
	return s.repo.UpsertStats(ctx, stats, refresh)
}

type cropBatchStore struct {
	repo CropRepository
}

// NewCropBatchStore exposes crop yield records as a reconcile target keyed
// by year.
func NewCropBatchStore(repo CropRepository) reconcile.Store[*models.CropYieldRecord] {
	return &cropBatchStore{repo: repo}
}

func (s *cropBatchStore) Key(rec *models.CropYieldRecord) string {
	return rec.NaturalKey()
}

func (s *cropBatchStore) Existing(ctx context.Context, records []*models.CropYieldRecord) (map[string]struct{}, error) {
	return s.repo.ExistingCropYears(ctx, records)
}

func (s *cropBatchStore) ApplySplit(ctx context.Context, toCreate, toUpdate []*models.CropYieldRecord) error {
	return s.repo.ApplyCropRecords(ctx, toCreate, toUpdate)
}

func (s *cropBatchStore) Upsert(ctx context.Context, records []*models.CropYieldRecord, refresh bool) (int, error) {
	return s.repo.UpsertCropRecords(ctx, records, refresh)
}
