// Package config handles loading and validation of rollcall.yaml project
// configuration.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/dwsmith1983/rollcall/internal/calendar"
	"github.com/dwsmith1983/rollcall/internal/lease"
	"github.com/dwsmith1983/rollcall/pkg/types"
)

// FileName is the project config file looked up by Load.
const FileName = "rollcall.yaml"

// Supported storage providers.
const (
	ProviderDynamoDB  = "dynamodb"
	ProviderFirestore = "firestore"
)

// Load reads and parses rollcall.yaml from the given directory.
func Load(dir string) (*types.ProjectConfig, error) {
	return LoadFile(filepath.Join(dir, FileName))
}

// LoadFile reads, parses and validates a config file.
func LoadFile(path string) (*types.ProjectConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}

	var cfg types.ProjectConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}

	// Relative calendar dirs resolve against the config file.
	base := filepath.Dir(path)
	for i, d := range cfg.CalendarDirs {
		if !filepath.IsAbs(d) {
			cfg.CalendarDirs[i] = filepath.Join(base, d)
		}
	}

	if err := validate(&cfg); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}
	return &cfg, nil
}

func validate(cfg *types.ProjectConfig) error {
	switch cfg.Provider {
	case "":
		return fmt.Errorf("provider is required")
	case ProviderDynamoDB:
		if cfg.DynamoDB == nil {
			return fmt.Errorf("dynamodb config is required when provider is dynamodb")
		}
		if cfg.DynamoDB.TableName == "" {
			return fmt.Errorf("dynamodb.tableName is required")
		}
	case ProviderFirestore:
		if cfg.Firestore == nil {
			return fmt.Errorf("firestore config is required when provider is firestore")
		}
		if cfg.Firestore.ProjectID == "" {
			return fmt.Errorf("firestore.projectId is required")
		}
	default:
		return fmt.Errorf("unknown provider %q", cfg.Provider)
	}

	if _, err := Location(cfg); err != nil {
		return err
	}
	if cfg.Engine.LeaseDuration != "" {
		d, err := time.ParseDuration(cfg.Engine.LeaseDuration)
		if err != nil {
			return fmt.Errorf("engine.leaseDuration: %w", err)
		}
		if d <= 0 {
			return fmt.Errorf("engine.leaseDuration must be positive")
		}
	}
	if cfg.Engine.FetchConcurrency < 0 {
		return fmt.Errorf("engine.fetchConcurrency must not be negative")
	}
	if cfg.Engine.Calendar != "" && len(cfg.CalendarDirs) == 0 {
		return fmt.Errorf("engine.calendar %q set but no calendarDirs configured", cfg.Engine.Calendar)
	}

	if w := cfg.Watchdog; w != nil {
		for name, v := range map[string]string{"interval": w.Interval, "staleLeaseGrace": w.StaleLeaseGrace} {
			if v == "" {
				continue
			}
			if d, err := time.ParseDuration(v); err != nil || d <= 0 {
				return fmt.Errorf("watchdog.%s must be a positive duration, got %q", name, v)
			}
		}
		if w.MaxLagDays < 0 {
			return fmt.Errorf("watchdog.maxLagDays must not be negative")
		}
	}

	for i, a := range cfg.Alerts {
		switch a.Type {
		case types.AlertLog, types.AlertWebhook, types.AlertFile, types.AlertEventBridge, types.AlertSQS:
		default:
			return fmt.Errorf("alerts[%d]: unknown type %q", i, a.Type)
		}
	}
	return nil
}

// Location returns the reference timezone, UTC when unset.
func Location(cfg *types.ProjectConfig) (*time.Location, error) {
	loc, err := calendar.LoadLocation(cfg.Engine.Timezone)
	if err != nil {
		return nil, fmt.Errorf("engine.timezone: %w", err)
	}
	return loc, nil
}

// LeaseDuration returns the configured lease duration or the default.
func LeaseDuration(cfg *types.ProjectConfig) time.Duration {
	if d, err := time.ParseDuration(cfg.Engine.LeaseDuration); err == nil && d > 0 {
		return d
	}
	return lease.DefaultDuration
}

// WatchdogDurations returns the parsed watchdog interval and stale-lease
// grace. Unset values are zero, which the watchdog replaces with defaults.
func WatchdogDurations(w *types.WatchdogConfig) (interval, grace time.Duration) {
	if w == nil {
		return 0, 0
	}
	interval, _ = time.ParseDuration(w.Interval)
	grace, _ = time.ParseDuration(w.StaleLeaseGrace)
	return interval, grace
}

// LoadCalendar loads every calendar dir and returns the calendar named by
// engine.calendar, or nil when none is configured.
func LoadCalendar(cfg *types.ProjectConfig) (*types.Calendar, error) {
	if cfg.Engine.Calendar == "" {
		return nil, nil
	}
	reg := calendar.NewRegistry()
	for _, dir := range cfg.CalendarDirs {
		if err := reg.LoadDir(dir); err != nil {
			return nil, err
		}
	}
	cal := reg.Get(cfg.Engine.Calendar)
	if cal == nil {
		return nil, fmt.Errorf("calendar %q not found in %v", cfg.Engine.Calendar, cfg.CalendarDirs)
	}
	return cal, nil
}
