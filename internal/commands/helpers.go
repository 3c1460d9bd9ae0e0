// Package commands implements the CLI subcommands for the rollcall binary.
package commands

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/dwsmith1983/rollcall/internal/alert"
	"github.com/dwsmith1983/rollcall/internal/backfill"
	"github.com/dwsmith1983/rollcall/internal/config"
	"github.com/dwsmith1983/rollcall/internal/engine"
	"github.com/dwsmith1983/rollcall/internal/job"
	"github.com/dwsmith1983/rollcall/internal/lease"
	"github.com/dwsmith1983/rollcall/internal/provider"
	ddbprov "github.com/dwsmith1983/rollcall/internal/provider/dynamodb"
	fsprov "github.com/dwsmith1983/rollcall/internal/provider/firestore"
	"github.com/dwsmith1983/rollcall/internal/telemetry"
	"github.com/dwsmith1983/rollcall/pkg/types"
)

const shutdownTimeout = 10 * time.Second

// addConfigFlag registers the --config flag shared by every command that
// talks to the store.
func addConfigFlag(cmd *cobra.Command, path *string) {
	cmd.Flags().StringVarP(path, "config", "c", config.FileName, "Path to rollcall.yaml")
}

// newProvider creates the configured storage provider.
func newProvider(cfg *types.ProjectConfig) (provider.Provider, error) {
	switch cfg.Provider {
	case config.ProviderDynamoDB:
		if cfg.DynamoDB == nil {
			return nil, fmt.Errorf("dynamodb config is required when provider is dynamodb")
		}
		return ddbprov.New(cfg.DynamoDB)
	case config.ProviderFirestore:
		if cfg.Firestore == nil {
			return nil, fmt.Errorf("firestore config is required when provider is firestore")
		}
		return fsprov.New(cfg.Firestore)
	default:
		return nil, fmt.Errorf("unsupported provider: %s", cfg.Provider)
	}
}

// app is the wired set of components a command runs against.
type app struct {
	cfg        *types.ProjectConfig
	prov       provider.Provider
	loc        *time.Location
	dispatcher *alert.Dispatcher
	engine     *engine.Engine
	sweeper    *backfill.Sweeper
	nightly    *job.Runner
	logger     *slog.Logger

	shutdownTelemetry telemetry.ShutdownFunc
}

// openApp loads the config at path, connects the provider and wires the
// engine, backfill sweeper and alert dispatcher.
func openApp(ctx context.Context, path string) (*app, error) {
	cfg, err := config.LoadFile(path)
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}
	prov, err := newProvider(cfg)
	if err != nil {
		return nil, fmt.Errorf("creating provider: %w", err)
	}
	a, err := wireApp(ctx, cfg, prov, slog.Default())
	if err != nil {
		return nil, err
	}
	if err := prov.Start(ctx); err != nil {
		a.close()
		return nil, fmt.Errorf("connecting to provider: %w", err)
	}
	return a, nil
}

// wireApp builds every component around an already constructed provider.
func wireApp(ctx context.Context, cfg *types.ProjectConfig, prov provider.Provider, logger *slog.Logger) (*app, error) {
	loc, err := config.Location(cfg)
	if err != nil {
		return nil, err
	}
	cal, err := config.LoadCalendar(cfg)
	if err != nil {
		return nil, fmt.Errorf("loading calendar: %w", err)
	}

	shutdown, err := telemetry.Setup(ctx, cfg.Telemetry)
	if err != nil {
		return nil, fmt.Errorf("setting up telemetry: %w", err)
	}

	dispatcher, err := alert.NewDispatcher(ctx, cfg.Alerts, alert.WithLogger(logger))
	if err != nil {
		_ = shutdown(ctx)
		return nil, fmt.Errorf("creating alert dispatcher: %w", err)
	}

	leases := lease.New(lease.Options{
		Store:    prov,
		Location: loc,
		Duration: config.LeaseDuration(cfg),
		Logger:   logger,
	})
	eng := engine.New(engine.Options{
		Provider:         prov,
		Leases:           leases,
		Location:         loc,
		FetchConcurrency: cfg.Engine.FetchConcurrency,
		AlertFn:          dispatcher.AlertFunc(),
		Logger:           logger,
	})
	sweeper := backfill.New(backfill.Options{
		Provider:    prov,
		Calendar:    cal,
		Location:    loc,
		Concurrency: cfg.Engine.FetchConcurrency,
		Logger:      logger,
	})

	return &app{
		cfg:               cfg,
		prov:              prov,
		loc:               loc,
		dispatcher:        dispatcher,
		engine:            eng,
		sweeper:           sweeper,
		nightly:           job.NewRunner(sweeper, eng, logger),
		logger:            logger,
		shutdownTelemetry: shutdown,
	}, nil
}

// close stops the provider and flushes telemetry.
func (a *app) close() {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := a.prov.Stop(ctx); err != nil {
		a.logger.Warn("stopping provider", "error", err)
	}
	if err := a.shutdownTelemetry(ctx); err != nil {
		a.logger.Warn("flushing telemetry", "error", err)
	}
}

// newActorID returns a unique lease holder id for a CLI invocation.
func newActorID() string {
	host, err := os.Hostname()
	if err != nil || host == "" {
		host = "cli"
	}
	return host + "-" + ulid.Make().String()
}

// printJSON writes v as indented JSON to stdout.
func printJSON(v interface{}) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// subjectFile is the on-disk form of a subject and its enrollments.
type subjectFile struct {
	types.Subject `yaml:",inline"`
	Students      []studentFile `yaml:"students,omitempty"`
}

type studentFile struct {
	ID   string `yaml:"id"`
	Name string `yaml:"name,omitempty"`
}

// loadSubjectDir loads all subject YAML files from a directory. A missing
// directory yields no subjects.
func loadSubjectDir(dir string) ([]subjectFile, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, err
	}

	var subjects []subjectFile
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		name := entry.Name()
		if !strings.HasSuffix(name, ".yaml") && !strings.HasSuffix(name, ".yml") {
			continue
		}

		data, err := os.ReadFile(filepath.Join(dir, name))
		if err != nil {
			return nil, fmt.Errorf("reading %s: %w", name, err)
		}

		var s subjectFile
		if err := yaml.Unmarshal(data, &s); err != nil {
			return nil, fmt.Errorf("parsing %s: %w", name, err)
		}
		if s.ID == "" {
			continue
		}
		if len(s.Days) == 0 {
			return nil, fmt.Errorf("%s: subject %s has no meeting days", name, s.ID)
		}
		for _, st := range s.Students {
			if st.ID == "" {
				return nil, fmt.Errorf("%s: subject %s has a student without an id", name, s.ID)
			}
		}
		subjects = append(subjects, s)
	}
	return subjects, nil
}
