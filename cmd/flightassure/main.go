package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"flightassure/internal/geoio"
	"flightassure/pkg/cache"
	"flightassure/pkg/clearance"
	"flightassure/pkg/config"
	"flightassure/pkg/coverage"
	"flightassure/pkg/db"
	"flightassure/pkg/energy"
	"flightassure/pkg/geo"
	"flightassure/pkg/logging"
	"flightassure/pkg/los"
	"flightassure/pkg/model"
	"flightassure/pkg/request"
	"flightassure/pkg/sampler"
	"flightassure/pkg/terrain"
	"flightassure/pkg/tracker"
	"flightassure/pkg/version"
	"flightassure/pkg/viewshed"
)

var (
	initConfig = flag.Bool("init-config", false, "Generate default config file and exit")
	configPath = flag.String("config", "configs/flightassure.yaml", "Path to config file")
	mode       = flag.String("mode", "", "Analysis mode: clearance, los, viewshed, coverage, battery")
	planPath   = flag.String("plan", "", "Flight plan GeoJSON (clearance)")
	stations   = flag.String("stations", "", "Stations GeoJSON (los, viewshed, coverage)")
	aoiPath    = flag.String("aoi", "", "Area-of-operations GeoJSON (coverage)")
	telemetry  = flag.String("telemetry", "", "Telemetry CSV (battery)")
	outPath    = flag.String("out", "", "Output file (GeoJSON or JSON depending on mode)")
	clearTiles = flag.Bool("clear-tiles", false, "Drop the persistent tile cache before analyzing")
)

func main() {
	flag.Parse()

	if *initConfig {
		if err := config.GenerateDefault(*configPath); err != nil {
			fmt.Fprintf(os.Stderr, "Failed to generate config: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("Config file generated: %s\n", *configPath)
		return
	}

	if err := run(context.Background()); err != nil {
		if errors.Is(err, model.ErrCancelled) {
			fmt.Fprintln(os.Stderr, "Analysis cancelled")
			os.Exit(130)
		}
		fmt.Fprintf(os.Stderr, "Analysis failed: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Optional .env for the tile API key.
	_ = godotenv.Load()

	cfg, err := config.Load(*configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	cleanupLogs, err := logging.Init(&cfg.Log)
	if err != nil {
		return fmt.Errorf("failed to initialize logging: %w", err)
	}
	defer cleanupLogs()

	slog.Info("FlightAssure started", "version", version.Version, "mode", *mode)

	if *mode == "battery" {
		// Battery analysis needs no terrain stack.
		return runBattery(ctx)
	}

	oracle, tr, closeDB, err := initOracle(ctx, cfg)
	if err != nil {
		return err
	}
	defer closeDB()
	defer reportStats(tr)

	if *clearTiles {
		oracle.ClearCache(ctx)
		slog.Info("Tile cache cleared")
	}

	if err := oracle.EnsureReady(ctx); err != nil {
		return err
	}

	switch *mode {
	case "clearance":
		return runClearance(ctx, cfg, oracle)
	case "los":
		return runLOS(ctx, cfg, oracle)
	case "viewshed":
		return runViewshed(ctx, cfg, oracle)
	case "coverage":
		return runCoverage(ctx, cfg, oracle)
	default:
		return fmt.Errorf("unknown mode %q, want clearance, los, viewshed, coverage or battery", *mode)
	}
}

func initOracle(ctx context.Context, cfg *config.Config) (*terrain.Oracle, *tracker.Tracker, func(), error) {
	dbConn, err := db.Init(cfg.DB.Path)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("failed to initialize database: %w", err)
	}

	// Stale tiles expire after a month; terrain changes slowly.
	if err := dbConn.PruneTiles(30 * 24 * time.Hour); err != nil {
		slog.Warn("Tile pruning failed", "error", err)
	}

	tr := tracker.New()
	reqClient := request.New(cache.NewSQLiteCache(dbConn), tr, cfg.Request)
	oracle := terrain.NewOracle(reqClient, cache.NewSQLiteCache(dbConn), tr, cfg.Terrain)

	return oracle, tr, func() { dbConn.Close() }, nil
}

func runClearance(ctx context.Context, cfg *config.Config, oracle *terrain.Oracle) error {
	if *planPath == "" {
		return fmt.Errorf("clearance mode needs -plan")
	}

	waypoints, err := geoio.ReadPlan(*planPath)
	if err != nil {
		return err
	}

	samples, err := sampler.New(cfg.Analysis.Sampler).Sample(ctx, waypoints, progressLogger("sampling"))
	if err != nil {
		return err
	}

	points := make([]geo.Point, 0, len(samples))
	for _, smp := range samples {
		points = append(points, geo.Point{Lat: smp.Position.Lat, Lon: smp.Position.Lon})
	}
	if err := oracle.Preload(ctx, points); err != nil {
		return err
	}

	analyzer := clearance.New(oracle, cfg.Analysis.Clearance, time.Duration(cfg.Terrain.PointTimeout))
	result, err := analyzer.Analyze(ctx, waypoints, samples, progressLogger("clearance"))
	if err != nil {
		return err
	}

	slog.Info("Clearance verdict",
		"id", result.ID,
		"minimumClearance", result.MinimumClearance,
		"criticalPointDistance", result.CriticalPointDistance,
		"highestObstacle", result.HighestObstacle,
		"collisions", len(result.Collisions),
		"degraded", result.Degraded)

	if *outPath != "" {
		return geoio.WriteClearance(*outPath, result)
	}
	return nil
}

func runLOS(ctx context.Context, cfg *config.Config, oracle *terrain.Oracle) error {
	sts, err := loadStations(2)
	if err != nil {
		return err
	}

	checker := los.New(oracle, cfg.Analysis.LOS)
	a, b := stationEye(ctx, oracle, sts[0]), stationEye(ctx, oracle, sts[1])

	result, err := checker.Check(ctx, a, b)
	if err != nil {
		return err
	}

	profile, err := checker.Profile(ctx, a, b)
	if err != nil {
		return err
	}

	slog.Info("Line of sight", "from", sts[0].ID, "to", sts[1].ID, "clear", result.Clear)
	return writeJSON(map[string]interface{}{
		"from":    sts[0].ID,
		"to":      sts[1].ID,
		"result":  result,
		"profile": profile,
	})
}

func runViewshed(ctx context.Context, cfg *config.Config, oracle *terrain.Oracle) error {
	sts, err := loadStations(1)
	if err != nil {
		return err
	}
	station := sts[0]

	computer := viewshed.New(oracle, cfg.Analysis.Viewshed)
	poly, err := computer.Coverage(ctx, station.Position, progressLogger("viewshed"))
	if err != nil {
		return err
	}

	slog.Info("Viewshed computed", "station", station.ID, "vertices", len(poly[0]))
	if *outPath != "" {
		return geoio.WriteViewshed(*outPath, station.Position, poly)
	}
	return nil
}

func runCoverage(ctx context.Context, cfg *config.Config, oracle *terrain.Oracle) error {
	if *aoiPath == "" {
		return fmt.Errorf("coverage mode needs -aoi")
	}
	sts, err := loadStations(1)
	if err != nil {
		return err
	}

	aoi, err := geoio.ReadAOI(*aoiPath)
	if err != nil {
		return err
	}

	cells, err := coverage.GenerateGrid(aoi, cfg.Analysis.Grid)
	if err != nil {
		return err
	}
	if err := coverage.FillElevations(ctx, oracle, cells, progressLogger("elevations")); err != nil {
		return err
	}

	checker := los.New(oracle, cfg.Analysis.LOS)
	computer := viewshed.New(oracle, cfg.Analysis.Viewshed)

	results := make([]model.CoverageResult, 0, len(sts))
	for _, station := range sts {
		start := time.Now()
		result, err := coverage.StationCoverage(ctx, checker, oracle, station, cells, progressLogger("station "+station.ID))
		if err != nil {
			return err
		}

		if poly, err := computer.Coverage(ctx, station.Position, nil); err == nil {
			result.Polygon = poly
		} else if errors.Is(err, model.ErrCancelled) {
			return err
		}
		result.Elapsed = time.Since(start)
		results = append(results, result)
	}

	merged, err := coverage.Merge(results)
	if err != nil {
		return err
	}

	slog.Info("Coverage merged",
		"id", merged.ID,
		"stations", len(sts),
		"visibleCells", merged.VisibleCells,
		"totalCells", merged.TotalCells,
		"averageVisibility", merged.AverageVisibility,
		"skippedUnions", merged.SkippedUnions)

	if *outPath != "" {
		return geoio.WriteCoverage(*outPath, merged)
	}
	return nil
}

func runBattery(ctx context.Context) error {
	if *telemetry == "" {
		return fmt.Errorf("battery mode needs -telemetry")
	}

	samples, err := geoio.ReadTelemetry(*telemetry)
	if err != nil {
		return err
	}

	report, err := energy.New(energy.DefaultThresholds()).Analyze(ctx, samples)
	if err != nil {
		return err
	}

	slog.Info("Battery analysis",
		"totalTime", report.TotalTime,
		"totalDrawMAh", report.TotalDrawMAh,
		"drawPerMinuteMAh", report.DrawPerMinuteMAh)

	return writeJSON(report)
}

func loadStations(minimum int) ([]model.Station, error) {
	if *stations == "" {
		return nil, fmt.Errorf("%s mode needs -stations", *mode)
	}
	sts, err := geoio.ReadStations(*stations)
	if err != nil {
		return nil, err
	}
	if len(sts) < minimum {
		return nil, fmt.Errorf("%w: %s mode needs at least %d stations, got %d", model.ErrInsufficientPath, *mode, minimum, len(sts))
	}
	return sts, nil
}

// stationEye resolves a station's height-above-ground offset to an absolute
// altitude, falling back to ground 0 on lookup failure.
func stationEye(ctx context.Context, oracle *terrain.Oracle, station model.Station) model.Coordinate3D {
	ground := oracle.ElevationOrZero(ctx, station.Position.Lon, station.Position.Lat)
	return model.Coordinate3D{
		Lon: station.Position.Lon,
		Lat: station.Position.Lat,
		Alt: ground + station.Position.Alt,
	}
}

func writeJSON(v interface{}) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal result: %w", err)
	}
	if *outPath == "" {
		fmt.Println(string(data))
		return nil
	}
	return os.WriteFile(*outPath, data, 0o644)
}

// progressLogger reports long phases at coarse steps.
func progressLogger(phase string) model.ProgressFunc {
	last := -25
	return func(percent int) bool {
		if percent-last >= 25 {
			slog.Info("Progress", "phase", phase, "percent", percent)
			last = percent
		}
		return true
	}
}

func reportStats(tr *tracker.Tracker) {
	for provider, stats := range tr.Snapshot() {
		slog.Info("Provider statistics",
			"provider", provider,
			"cacheHits", stats.CacheHits,
			"cacheMisses", stats.CacheMisses,
			"fetchSuccess", stats.FetchSuccess,
			"fetchFailures", stats.FetchFailures)
	}
}
