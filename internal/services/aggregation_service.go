package services

import (
	"context"
	"sort"

	"github.com/jonboulle/clockwork"

	"weather-crop-platform/internal/models"
	"weather-crop-platform/internal/reconcile"
	"weather-crop-platform/pkg/logging"
	"weather-crop-platform/pkg/metrics"
)

// StatsAggregationActor is recorded in the audit columns of stats rows.
const StatsAggregationActor = "calculate_weather_station_stats"

// ObservationSource streams stored weather observations.
type ObservationSource interface {
	IterateObservations(ctx context.Context, fn func(*models.WeatherRecord) error) error
}

// AggregationService recomputes yearly per-station statistics from all
// stored observations. Each run is a full recomputation: running it twice
// against unchanged observations produces identical stats rows.
type AggregationService struct {
	source  ObservationSource
	stats   *reconcile.Reconciler[*models.StationYearStats]
	clock   clockwork.Clock
	logger  *logging.StructuredLogger
	metrics *metrics.Collector
}

// NewAggregationService creates an aggregation service. Stats are derived
// data, so reconciliation always refreshes on conflict regardless of the
// ingestion conflict mode.
func NewAggregationService(
	source ObservationSource,
	statsStore reconcile.Store[*models.StationYearStats],
	strategy reconcile.Strategy,
	clock clockwork.Clock,
	logger *logging.StructuredLogger,
	metricsCollector *metrics.Collector,
) *AggregationService {
	return &AggregationService{
		source:  source,
		stats:   reconcile.New(statsStore, strategy, reconcile.RefreshOnConflict),
		clock:   clock,
		logger:  logger,
		metrics: metricsCollector,
	}
}

type groupKey struct {
	stationID string
	year      int
}

// statsAccumulator folds one (station, year) group. Each aggregate counts
// only the records where its own field is present: a record with nil
// precipitation still contributes to both temperature means.
type statsAccumulator struct {
	maxSum      float64
	maxCount    int
	minSum      float64
	minCount    int
	precipSum   float64
	precipCount int
}

func (a *statsAccumulator) add(rec *models.WeatherRecord) {
	if rec.MaxTemp != nil {
		a.maxSum += *rec.MaxTemp
		a.maxCount++
	}
	if rec.MinTemp != nil {
		a.minSum += *rec.MinTemp
		a.minCount++
	}
	if rec.Precipitation != nil {
		a.precipSum += *rec.Precipitation
		a.precipCount++
	}
}

// empty reports whether every record in the group had all three fields
// missing. Such groups are excluded from the result set entirely.
func (a *statsAccumulator) empty() bool {
	return a.maxCount == 0 && a.minCount == 0 && a.precipCount == 0
}

func (a *statsAccumulator) stats(key groupKey) *models.StationYearStats {
	s := &models.StationYearStats{
		StationID: key.stationID,
		Year:      key.year,
	}
	if a.maxCount > 0 {
		avg := a.maxSum / float64(a.maxCount)
		s.AvgMaxTemp = &avg
	}
	if a.minCount > 0 {
		avg := a.minSum / float64(a.minCount)
		s.AvgMinTemp = &avg
	}
	if a.precipCount > 0 {
		total := a.precipSum
		s.TotalPrecipitation = &total
	}
	return s
}

// RecomputeStats aggregates every stored observation into (station, year)
// groups and reconciles the result against the stats table.
func (s *AggregationService) RecomputeStats(ctx context.Context) (reconcile.Result, error) {
	start := s.clock.Now()

	groups := make(map[groupKey]*statsAccumulator)
	err := s.source.IterateObservations(ctx, func(rec *models.WeatherRecord) error {
		key := groupKey{stationID: rec.StationID, year: rec.Date.Year()}
		acc, ok := groups[key]
		if !ok {
			acc = &statsAccumulator{}
			groups[key] = acc
		}
		acc.add(rec)
		return nil
	})
	if err != nil {
		return reconcile.Result{}, err
	}

	now := s.clock.Now().UTC()
	batch := make([]*models.StationYearStats, 0, len(groups))
	for key, acc := range groups {
		if acc.empty() {
			continue
		}
		stats := acc.stats(key)
		stats.Stamp(StatsAggregationActor, now)
		batch = append(batch, stats)
	}

	// Deterministic write order keeps runs comparable in logs and tests.
	sort.Slice(batch, func(i, j int) bool {
		if batch[i].StationID != batch[j].StationID {
			return batch[i].StationID < batch[j].StationID
		}
		return batch[i].Year < batch[j].Year
	})

	result, err := s.stats.Reconcile(ctx, batch)
	if err != nil {
		return reconcile.Result{}, err
	}

	duration := s.clock.Since(start)
	s.metrics.AggregationDuration.Observe(duration.Seconds())
	s.metrics.AggregationGroups.Set(float64(len(batch)))
	s.metrics.RecordReconciled("stats", result.Created, result.Updated)

	s.logger.Info(ctx, "[STATS_COMPLETE] Statistics recomputation finished", logging.Fields{
		"groups":           len(batch),
		"created":          result.Created,
		"updated":          result.Updated,
		"duration_seconds": duration.Seconds(),
	})

	return result, nil
}
