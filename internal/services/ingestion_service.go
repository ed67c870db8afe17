package services

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"

	"weather-crop-platform/internal/ingest"
	"weather-crop-platform/internal/models"
	"weather-crop-platform/internal/reconcile"
	"weather-crop-platform/pkg/logging"
	"weather-crop-platform/pkg/metrics"
)

// Actor names recorded in the audit columns of ingested rows.
const (
	WeatherIngestActor = "ingest_weather_records"
	CropIngestActor    = "ingest_crop_yield_records"
)

// StationEnsurer creates a station row if it does not exist yet.
type StationEnsurer interface {
	EnsureStation(ctx context.Context, station *models.WeatherStation) error
}

// IngestionOptions fixes the reconciliation behavior for a run.
type IngestionOptions struct {
	Strategy reconcile.Strategy
	Mode     reconcile.Mode
	Workers  int
}

// IngestionService coordinates batch ingestion of weather and crop yield
// directories: it discovers input files, fans them out across a bounded
// worker pool and sums per-file reconciliation counts.
type IngestionService struct {
	stations     StationEnsurer
	observations *reconcile.Reconciler[*models.WeatherRecord]
	crops        *reconcile.Reconciler[*models.CropYieldRecord]
	workers      int
	clock        clockwork.Clock
	logger       *logging.StructuredLogger
	metrics      *metrics.Collector
}

// IngestionResult contains summed counts for one directory run.
type IngestionResult struct {
	Files    int
	Created  int
	Updated  int
	Duration time.Duration
}

// NewIngestionService creates an ingestion coordinator. The worker count is
// a fixed small bound, independent of how many files a run discovers.
func NewIngestionService(
	stations StationEnsurer,
	observationStore reconcile.Store[*models.WeatherRecord],
	cropStore reconcile.Store[*models.CropYieldRecord],
	opts IngestionOptions,
	clock clockwork.Clock,
	logger *logging.StructuredLogger,
	metricsCollector *metrics.Collector,
) *IngestionService {
	workers := opts.Workers
	if workers < 1 {
		workers = 1
	}

	return &IngestionService{
		stations:     stations,
		observations: reconcile.New(observationStore, opts.Strategy, opts.Mode),
		crops:        reconcile.New(cropStore, opts.Strategy, opts.Mode),
		workers:      workers,
		clock:        clock,
		logger:       logger,
		metrics:      metricsCollector,
	}
}

// IngestWeatherDirectory ingests every regular file in dir as one weather
// station file. An empty directory is a zero-count success.
func (s *IngestionService) IngestWeatherDirectory(ctx context.Context, dir string) (*IngestionResult, error) {
	return s.ingestDirectory(ctx, dir, "weather", s.ingestWeatherFile)
}

// IngestCropDirectory ingests every regular file in dir as one crop yield
// file.
func (s *IngestionService) IngestCropDirectory(ctx context.Context, dir string) (*IngestionResult, error) {
	return s.ingestDirectory(ctx, dir, "crop", s.ingestCropFile)
}

type fileOutcome struct {
	path   string
	result reconcile.Result
	err    error
}

// ingestDirectory runs one handler per discovered file on the worker pool,
// then fans results in. Other files' counts are always collected; the first
// error is propagated only after every dispatched file has settled.
func (s *IngestionService) ingestDirectory(
	ctx context.Context,
	dir, kind string,
	handler func(ctx context.Context, path string) (reconcile.Result, error),
) (*IngestionResult, error) {
	start := s.clock.Now()

	files, err := listRegularFiles(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s directory: %w", kind, err)
	}

	s.logger.Info(ctx, "[INGEST_START] Starting directory ingestion", logging.Fields{
		"kind":       kind,
		"dir":        dir,
		"file_count": len(files),
		"workers":    s.workers,
	})

	result := &IngestionResult{}
	if len(files) == 0 {
		return result, nil
	}

	workers := s.workers
	if workers > len(files) {
		workers = len(files)
	}

	jobs := make(chan string)
	outcomes := make(chan fileOutcome, len(files))

	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for path := range jobs {
				s.metrics.IngestionWorkersActive.Inc()
				res, err := handler(ctx, path)
				s.metrics.IngestionWorkersActive.Dec()
				outcomes <- fileOutcome{path: path, result: res, err: err}
			}
		}()
	}

	for _, path := range files {
		jobs <- path
	}
	close(jobs)
	wg.Wait()
	close(outcomes)

	var firstErr error
	for out := range outcomes {
		if out.err != nil {
			s.metrics.RecordFile(kind, "error")
			s.logger.Error(ctx, "[INGEST_FILE_ERROR] File ingestion failed", logging.Fields{
				"kind": kind,
				"file": out.path,
			}, out.err)
			if firstErr == nil {
				firstErr = fmt.Errorf("failed to ingest %s: %w", out.path, out.err)
			}
			continue
		}

		s.metrics.RecordFile(kind, "ok")
		s.metrics.RecordReconciled(kind, out.result.Created, out.result.Updated)
		result.Files++
		result.Created += out.result.Created
		result.Updated += out.result.Updated
	}

	result.Duration = s.clock.Since(start)
	s.metrics.IngestionDuration.Observe(result.Duration.Seconds())

	s.logger.Info(ctx, "[INGEST_COMPLETE] Directory ingestion finished", logging.Fields{
		"kind":             kind,
		"files":            result.Files,
		"created":          result.Created,
		"updated":          result.Updated,
		"duration_seconds": result.Duration.Seconds(),
	})

	return result, firstErr
}

// ingestWeatherFile runs the parse -> ensure-station -> reconcile pipeline
// for one weather file. The station row is ensured once per file, before
// per-record reconciliation.
func (s *IngestionService) ingestWeatherFile(ctx context.Context, path string) (reconcile.Result, error) {
	records, err := ingest.ParseWeatherFile(path)
	if err != nil {
		return reconcile.Result{}, err
	}

	now := s.clock.Now().UTC()

	stationID := ingest.StationIDFromPath(path)
	station := &models.WeatherStation{
		StationID:   stationID,
		StationName: stationID,
	}
	station.Stamp(WeatherIngestActor, now)

	if err := s.stations.EnsureStation(ctx, station); err != nil {
		return reconcile.Result{}, err
	}

	for _, rec := range records {
		rec.Stamp(WeatherIngestActor, now)
	}

	return s.observations.Reconcile(ctx, records)
}

// ingestCropFile runs the parse -> reconcile pipeline for one crop file.
func (s *IngestionService) ingestCropFile(ctx context.Context, path string) (reconcile.Result, error) {
	records, err := ingest.ParseCropYieldFile(path)
	if err != nil {
		return reconcile.Result{}, err
	}

	now := s.clock.Now().UTC()
	for _, rec := range records {
		rec.Stamp(CropIngestActor, now)
	}

	return s.crops.Reconcile(ctx, records)
}

// listRegularFiles enumerates regular files directly inside dir, sorted by
// name. Subdirectories are not descended into.
func listRegularFiles(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}

	files := make([]string, 0, len(entries))
	for _, entry := range entries {
		if entry.Type().IsRegular() {
			files = append(files, filepath.Join(dir, entry.Name()))
		}
	}

	return files, nil
}
