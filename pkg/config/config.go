package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds the application configuration.
type Config struct {
	Request  RequestConfig  `yaml:"request"`
	Log      LogConfig      `yaml:"log"`
	DB       DBConfig       `yaml:"db"`
	Terrain  TerrainConfig  `yaml:"terrain"`
	Analysis AnalysisConfig `yaml:"analysis"`
}

// RequestConfig holds HTTP request settings.
type RequestConfig struct {
	Retries int           `yaml:"retries"`
	Timeout Duration      `yaml:"timeout"`
	Backoff BackoffConfig `yaml:"backoff"`
}

// BackoffConfig holds exponential backoff settings.
type BackoffConfig struct {
	BaseDelay Duration `yaml:"base_delay"`
	MaxDelay  Duration `yaml:"max_delay"`
}

// LogConfig holds logging settings.
type LogConfig struct {
	Server LogSettings `yaml:"server"`
}

// LogSettings holds settings for a specific logger.
type LogSettings struct {
	Path  string `yaml:"path"`
	Level string `yaml:"level"`
}

// DBConfig holds database settings.
type DBConfig struct {
	Path string `yaml:"path"`
}

// TerrainConfig holds elevation tile source settings.
// Tile URLs are templates with {z}, {x}, {y} and {key} placeholders.
type TerrainConfig struct {
	TileURL         string   `yaml:"tile_url"`
	FallbackTileURL string   `yaml:"fallback_tile_url"`
	APIKey          string   `yaml:"api_key"`
	Zoom            int      `yaml:"zoom"`
	TileSize        int      `yaml:"tile_size"`
	ReadyTimeout    Duration `yaml:"ready_timeout"`
	PointTimeout    Duration `yaml:"point_timeout"`
	ProbeLat        float64  `yaml:"probe_lat"`
	ProbeLon        float64  `yaml:"probe_lon"`
}

// AnalysisConfig groups the tunables of the analysis components. The spec
// constants (2 m, 5 m, 10 m, 3 m, 50 m) live here as defaults rather than in
// code, pending domain confirmation.
type AnalysisConfig struct {
	Sampler   SamplerConfig   `yaml:"sampler"`
	Clearance ClearanceConfig `yaml:"clearance"`
	LOS       LOSConfig       `yaml:"los"`
	Viewshed  ViewshedConfig  `yaml:"viewshed"`
	Grid      GridConfig      `yaml:"grid"`
}

// SamplerConfig holds path resampling settings.
type SamplerConfig struct {
	ResolutionM float64 `yaml:"resolution_m"`
}

// ClearanceConfig holds clearance analysis settings.
type ClearanceConfig struct {
	MaxSyntheticPerGap int     `yaml:"max_synthetic_per_gap"`
	MinGapM            float64 `yaml:"min_gap_m"`
	DuplicateWindowM   float64 `yaml:"duplicate_window_m"`
	MergeWindowM       float64 `yaml:"merge_window_m"`
	YieldEvery         int     `yaml:"yield_every"`
}

// LOSConfig holds line-of-sight settings.
type LOSConfig struct {
	StepM         float64 `yaml:"step_m"`
	FarEndOffsetM float64 `yaml:"far_end_offset_m"`
}

// ViewshedConfig holds radial visibility settings. The maximum range is a
// Distance so configs can say "5km" instead of counting zeros.
type ViewshedConfig struct {
	AngleStepDeg float64  `yaml:"angle_step_deg"`
	RadialStepM  float64  `yaml:"radial_step_m"`
	MaxRangeM    Distance `yaml:"max_range_m"`
}

// GridConfig holds coverage grid settings. Resolution is an H3 resolution.
type GridConfig struct {
	Resolution  int      `yaml:"resolution"`
	CellRadiusM Distance `yaml:"cell_radius_m"`
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		Request: RequestConfig{
			Retries: 3,
			Timeout: Duration(60 * time.Second),
			Backoff: BackoffConfig{
				BaseDelay: Duration(500 * time.Millisecond),
				MaxDelay:  Duration(30 * time.Second),
			},
		},
		Log: LogConfig{
			Server: LogSettings{
				Path:  "./logs/flightassure.log",
				Level: "INFO",
			},
		},
		DB: DBConfig{
			Path: "./data/flightassure.db",
		},
		Terrain: TerrainConfig{
			TileURL:         "https://api.mapbox.com/v4/mapbox.terrain-rgb/{z}/{x}/{y}.pngraw?access_token={key}",
			FallbackTileURL: "https://api.maptiler.com/tiles/terrain-rgb/{z}/{x}/{y}.png?key={key}",
			Zoom:            12,
			TileSize:        256,
			ReadyTimeout:    Duration(20 * time.Second),
			PointTimeout:    Duration(3 * time.Second),
		},
		Analysis: AnalysisConfig{
			Sampler: SamplerConfig{
				ResolutionM: 10,
			},
			Clearance: ClearanceConfig{
				MaxSyntheticPerGap: 10,
				MinGapM:            2,
				DuplicateWindowM:   2,
				MergeWindowM:       5,
				YieldEvery:         256,
			},
			LOS: LOSConfig{
				StepM:         10,
				FarEndOffsetM: 3,
			},
			Viewshed: ViewshedConfig{
				AngleStepDeg: 5,
				RadialStepM:  50,
				MaxRangeM:    5000,
			},
			Grid: GridConfig{
				Resolution:  9,
				CellRadiusM: 150,
			},
		},
	}
}

// Load reads the config file at path, layering it over the defaults.
// A missing file is not an error; the defaults are returned.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	if _, err := os.Stat(path); err == nil {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	// Env fallback for the tile API key; never written back to disk.
	if cfg.Terrain.APIKey == "" {
		if key := os.Getenv("TERRAIN_API_KEY"); key != "" {
			cfg.Terrain.APIKey = key
		}
	}

	return cfg, nil
}

// Save writes the config to path.
func Save(path string, cfg *Config) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	return os.WriteFile(path, data, 0o644)
}

// GenerateDefault writes a default config file if none exists yet.
func GenerateDefault(path string) error {
	if _, err := os.Stat(path); err == nil {
		return nil // File exists, do nothing
	}
	return Save(path, DefaultConfig())
}
