// Package config loads the floor filter service configuration from defaults,
// an optional YAML file and FLOORFILTER_* environment variables, in that order
// of increasing precedence.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/confmap"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"

	"floorfilter/internal/engine"
	"floorfilter/internal/layers"
)

const (
	EnvPrefix = "FLOORFILTER_"

	View2D = "2d"
	View3D = "3d"
)

type Config struct {
	HTTPAddr  string `koanf:"http_addr"`
	LogLevel  string `koanf:"log_level"`
	LogFormat string `koanf:"log_format"`

	DatabaseURL     string `koanf:"database_url"`
	GeoPackagePath  string `koanf:"geopackage_path"`
	LevelsTable     string `koanf:"levels_table"`
	FacilitiesTable string `koanf:"facilities_table"`
	WebMapPath      string `koanf:"webmap_path"`

	View                 string `koanf:"view"`
	ToggleFacilityShells bool   `koanf:"toggle_facility_shells"`
	ShowAllFloorPlans2D  bool   `koanf:"show_all_floor_plans_2d"`
	ActiveFacilityID     string `koanf:"active_facility_id"`
	ActiveLevelID        string `koanf:"active_level_id"`

	ReloadInterval time.Duration `koanf:"reload_interval"`

	LayerIdentifiers map[string]any  `koanf:"layer_identifiers"`
	LayerMappings    []layers.Mapping `koanf:"layer_mappings"`
}

func defaults() map[string]any {
	return map[string]any{
		"http_addr":        ":8081",
		"log_level":        "info",
		"log_format":       "json",
		"levels_table":     "levels",
		"facilities_table": "facilities",
		"view":             View2D,
		"reload_interval":  "0s",
	}
}

// Load reads configuration. path may be empty, in which case only defaults and
// the environment are used.
func Load(path string) (Config, error) {
	k := koanf.New(".")

	if err := k.Load(confmap.Provider(defaults(), "."), nil); err != nil {
		return Config{}, fmt.Errorf("failed to load defaults: %w", err)
	}

	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return Config{}, fmt.Errorf("error reading config file %s: %w", path, err)
		}
	}

	// FLOORFILTER_LOG_LEVEL -> log_level
	if err := k.Load(env.Provider(EnvPrefix, ".", func(s string) string {
		return strings.ToLower(strings.TrimPrefix(s, EnvPrefix))
	}), nil); err != nil {
		return Config{}, fmt.Errorf("failed to load env vars: %w", err)
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return Config{}, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	cfg.View = strings.ToLower(strings.TrimSpace(cfg.View))
	return cfg, nil
}

func (c Config) Validate() error {
	var errs []error
	if c.View != View2D && c.View != View3D {
		errs = append(errs, fmt.Errorf("view must be %q or %q, got %q", View2D, View3D, c.View))
	}
	if f := strings.ToLower(c.LogFormat); f != "json" && f != "console" {
		errs = append(errs, fmt.Errorf("log_format must be \"json\" or \"console\", got %q", c.LogFormat))
	}
	if strings.TrimSpace(c.WebMapPath) == "" {
		errs = append(errs, errors.New("webmap_path is required"))
	}
	switch {
	case c.DatabaseURL == "" && c.GeoPackagePath == "":
		errs = append(errs, errors.New("one of database_url or geopackage_path is required"))
	case c.DatabaseURL != "" && c.GeoPackagePath != "":
		errs = append(errs, errors.New("database_url and geopackage_path are mutually exclusive"))
	}
	if strings.TrimSpace(c.LevelsTable) == "" {
		errs = append(errs, errors.New("levels_table is required"))
	}
	if c.ReloadInterval < 0 {
		errs = append(errs, errors.New("reload_interval must not be negative"))
	}
	if c.ActiveLevelID != "" && c.ActiveFacilityID == "" {
		errs = append(errs, errors.New("active_level_id requires active_facility_id"))
	}
	if _, err := c.Identifiers(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

func (c Config) Is3D() bool {
	return c.View == View3D
}

// Identifiers returns the default layer identifiers with configured
// overrides applied.
func (c Config) Identifiers() (layers.Identifiers, error) {
	ids := layers.DefaultIdentifiers()
	if err := ids.Configure(c.LayerIdentifiers); err != nil {
		return nil, err
	}
	return ids, nil
}

// EngineOptions maps the configuration onto engine options.
func (c Config) EngineOptions() (engine.Options, error) {
	ids, err := c.Identifiers()
	if err != nil {
		return engine.Options{}, err
	}
	return engine.Options{
		Is3D:                 c.Is3D(),
		ToggleFacilityShells: c.ToggleFacilityShells,
		ShowAllFloorPlans2D:  c.ShowAllFloorPlans2D,
		ActiveFacilityID:     c.ActiveFacilityID,
		ActiveLevelID:        c.ActiveLevelID,
		Identifiers:          ids,
		Mappings:             c.LayerMappings,
	}, nil
}
