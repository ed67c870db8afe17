package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strings"

	"github.com/jonboulle/clockwork"
	"github.com/prometheus/client_golang/prometheus"

	"weather-crop-platform/internal/config"
	"weather-crop-platform/internal/ingest"
	"weather-crop-platform/internal/reconcile"
	"weather-crop-platform/internal/repository"
	"weather-crop-platform/internal/services"
	"weather-crop-platform/pkg/database"
	"weather-crop-platform/pkg/logging"
	"weather-crop-platform/pkg/metrics"
)

const version = "1.0.0"

func main() {
	weatherDir := flag.String("weather-dir", "", "Directory containing weather data files (overrides config)")
	cropDir := flag.String("crop-dir", "", "Directory containing crop yield data files (overrides config)")
	skipWeather := flag.Bool("skip-weather", false, "Skip weather ingestion")
	skipCrop := flag.Bool("skip-crop", false, "Skip crop yield ingestion")
	calculateStats := flag.Bool("calculate-stats", false, "Recompute yearly station statistics after ingestion")
	dryRun := flag.Bool("dry-run", false, "Parse input files and report record counts without writing")
	flag.Parse()

	cfg, err := config.LoadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "Invalid configuration: %v\n", err)
		os.Exit(1)
	}

	if *weatherDir != "" {
		cfg.Ingestion.WeatherDataDir = *weatherDir
	}
	if *cropDir != "" {
		cfg.Ingestion.CropYieldDataDir = *cropDir
	}

	logger := logging.NewStructuredLogger("weather-crop-ingester", version, logging.ParseLevel(cfg.Logging.Level))
	ctx := context.Background()

	if *dryRun {
		if err := runDryRun(cfg, *skipWeather, *skipCrop); err != nil {
			fmt.Fprintf(os.Stderr, "Dry run failed: %v\n", err)
			os.Exit(1)
		}
		return
	}

	mode, err := reconcile.ParseMode(cfg.Ingestion.OnConflict)
	if err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		os.Exit(1)
	}
	strategy, err := reconcile.ParseStrategy(cfg.Ingestion.Strategy)
	if err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		os.Exit(1)
	}

	logger.Info(ctx, "[INGESTER_START] Starting batch ingestion", logging.Fields{
		"version":     version,
		"weather_dir": cfg.Ingestion.WeatherDataDir,
		"crop_dir":    cfg.Ingestion.CropYieldDataDir,
		"workers":     cfg.Ingestion.Workers,
		"on_conflict": mode.String(),
		"strategy":    strategy.String(),
	})

	metricsCollector := metrics.NewCollector("weather_crop_ingester", prometheus.DefaultRegisterer)

	db, err := database.NewPostgresDB(&database.Config{
		Host:            cfg.Database.Host,
		Port:            cfg.Database.Port,
		User:            cfg.Database.User,
		Password:        cfg.Database.Password,
		Database:        cfg.Database.Database,
		SSLMode:         cfg.Database.SSLMode,
		MaxOpenConns:    cfg.Database.MaxOpenConns,
		MaxIdleConns:    cfg.Database.MaxIdleConns,
		ConnMaxLifetime: cfg.Database.ConnMaxLifetime.Std(),
		ConnMaxIdleTime: cfg.Database.ConnMaxIdleTime.Std(),
	}, logger, metricsCollector)
	if err != nil {
		logger.Fatal(ctx, "[INGESTER_ERROR] Failed to connect to database", logging.Fields{}, err)
	}
	defer db.Close()

	clock := clockwork.NewRealClock()
	weatherRepo := repository.NewWeatherRepository(db, logger, metricsCollector)
	cropRepo := repository.NewCropRepository(db, logger, metricsCollector)

	ingestionService := services.NewIngestionService(
		weatherRepo,
		repository.NewObservationBatchStore(weatherRepo),
		repository.NewCropBatchStore(cropRepo),
		services.IngestionOptions{
			Strategy: strategy,
			Mode:     mode,
			Workers:  cfg.Ingestion.Workers,
		},
		clock, logger, metricsCollector,
	)

	if !*skipWeather {
		result, err := ingestionService.IngestWeatherDirectory(ctx, cfg.Ingestion.WeatherDataDir)
		printResult("WEATHER INGESTION", result)
		if err != nil {
			logger.Fatal(ctx, "[INGESTION_ERROR] Weather ingestion failed", logging.Fields{}, err)
		}
	}

	if !*skipCrop {
		result, err := ingestionService.IngestCropDirectory(ctx, cfg.Ingestion.CropYieldDataDir)
		printResult("CROP YIELD INGESTION", result)
		if err != nil {
			logger.Fatal(ctx, "[INGESTION_ERROR] Crop yield ingestion failed", logging.Fields{}, err)
		}
	}

	if *calculateStats {
		aggregationService := services.NewAggregationService(
			weatherRepo,
			repository.NewStatsBatchStore(weatherRepo),
			strategy,
			clock, logger, metricsCollector,
		)

		result, err := aggregationService.RecomputeStats(ctx)
		if err != nil {
			logger.Fatal(ctx, "[STATS_ERROR] Statistics recomputation failed", logging.Fields{}, err)
		}

		fmt.Println(strings.Repeat("=", 60))
		fmt.Println("STATISTICS RECOMPUTATION")
		fmt.Println(strings.Repeat("=", 60))
		fmt.Printf("Stats Created: %d\n", result.Created)
		fmt.Printf("Stats Updated: %d\n", result.Updated)
	}

	logger.Info(ctx, "[INGESTER_COMPLETE] Batch ingestion completed", logging.Fields{})
}

func printResult(title string, result *services.IngestionResult) {
	if result == nil {
		return
	}
	fmt.Println(strings.Repeat("=", 60))
	fmt.Println(title)
	fmt.Println(strings.Repeat("=", 60))
	fmt.Printf("Files Ingested:  %d\n", result.Files)
	fmt.Printf("Records Created: %d\n", result.Created)
	fmt.Printf("Records Updated: %d\n", result.Updated)
	fmt.Printf("Duration:        %v\n", result.Duration)
}

// runDryRun parses the configured directories without touching the store.
func runDryRun(cfg *config.Config, skipWeather, skipCrop bool) error {
	if !skipWeather {
		entries, err := os.ReadDir(cfg.Ingestion.WeatherDataDir)
		if err != nil {
			return err
		}
		total := 0
		for _, entry := range entries {
			if !entry.Type().IsRegular() {
				continue
			}
			path := cfg.Ingestion.WeatherDataDir + "/" + entry.Name()
			records, err := ingest.ParseWeatherFile(path)
			if err != nil {
				return err
			}
			fmt.Printf("%s: station %s, %d records\n", path, ingest.StationIDFromPath(path), len(records))
			total += len(records)
		}
		fmt.Printf("Weather total: %d records\n", total)
	}

	if !skipCrop {
		entries, err := os.ReadDir(cfg.Ingestion.CropYieldDataDir)
		if err != nil {
			return err
		}
		total := 0
		for _, entry := range entries {
			if !entry.Type().IsRegular() {
				continue
			}
			path := cfg.Ingestion.CropYieldDataDir + "/" + entry.Name()
			records, err := ingest.ParseCropYieldFile(path)
			if err != nil {
				return err
			}
			fmt.Printf("%s: %d records\n", path, len(records))
			total += len(records)
		}
		fmt.Printf("Crop yield total: %d records\n", total)
	}

	return nil
}
