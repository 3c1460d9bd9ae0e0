// Package lambda provides shared initialization and helpers for the Lambda
// handlers.
package lambda

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"time"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	lambdasvc "github.com/aws/aws-sdk-go-v2/service/lambda"
	"github.com/aws/aws-sdk-go-v2/service/secretsmanager"

	"github.com/dwsmith1983/rollcall/internal/alert"
	"github.com/dwsmith1983/rollcall/internal/backfill"
	"github.com/dwsmith1983/rollcall/internal/calendar"
	"github.com/dwsmith1983/rollcall/internal/engine"
	"github.com/dwsmith1983/rollcall/internal/lease"
	"github.com/dwsmith1983/rollcall/internal/provider"
	"github.com/dwsmith1983/rollcall/internal/provider/dynamodb"
	"github.com/dwsmith1983/rollcall/internal/telemetry"
	"github.com/dwsmith1983/rollcall/pkg/types"
)

// Env holds the function settings read from environment variables.
type Env struct {
	TableName          string
	Region             string
	Timezone           string
	LeaseDuration      time.Duration
	FetchConcurrency   int
	EventBusName       string
	QueueURL           string
	StreakFunctionName string
	OTLPEndpoint       string
	ServiceName        string
	MaxLagDays         int
	CalendarDir        string
	CalendarName       string
	WebhookSecretID    string
	// WebhookURL is resolved from WebhookSecretID during Init.
	WebhookURL string
}

// LoadEnv reads Env from the process environment.
// Reads: TABLE_NAME, AWS_REGION (required), TIMEZONE, LEASE_DURATION,
// FETCH_CONCURRENCY, EVENT_BUS_NAME, NOTIFICATION_QUEUE_URL,
// STREAK_FUNCTION_NAME, OTEL_EXPORTER_OTLP_ENDPOINT, OTEL_SERVICE_NAME,
// WATCHDOG_MAX_LAG_DAYS, CALENDAR_DIR, CALENDAR, WEBHOOK_SECRET_ID.
func LoadEnv() (Env, error) {
	env := Env{
		TableName:          os.Getenv("TABLE_NAME"),
		Region:             os.Getenv("AWS_REGION"),
		Timezone:           os.Getenv("TIMEZONE"),
		EventBusName:       os.Getenv("EVENT_BUS_NAME"),
		QueueURL:           os.Getenv("NOTIFICATION_QUEUE_URL"),
		StreakFunctionName: os.Getenv("STREAK_FUNCTION_NAME"),
		OTLPEndpoint:       os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"),
		ServiceName:        envOrDefault("OTEL_SERVICE_NAME", "rollcall-lambda"),
		CalendarDir:        envOrDefault("CALENDAR_DIR", "/var/task/calendars"),
		CalendarName:       os.Getenv("CALENDAR"),
		WebhookSecretID:    os.Getenv("WEBHOOK_SECRET_ID"),
	}
	if env.TableName == "" {
		return Env{}, fmt.Errorf("TABLE_NAME environment variable required")
	}
	if env.Region == "" {
		return Env{}, fmt.Errorf("AWS_REGION environment variable required")
	}

	d, err := time.ParseDuration(envOrDefault("LEASE_DURATION", lease.DefaultDuration.String()))
	if err != nil || d <= 0 {
		return Env{}, fmt.Errorf("LEASE_DURATION must be a positive duration")
	}
	env.LeaseDuration = d

	if env.FetchConcurrency, err = envInt("FETCH_CONCURRENCY"); err != nil {
		return Env{}, err
	}
	if env.MaxLagDays, err = envInt("WATCHDOG_MAX_LAG_DAYS"); err != nil {
		return Env{}, err
	}
	return env, nil
}

// Deps holds shared dependencies for Lambda handlers.
type Deps struct {
	Provider provider.Provider
	Location *time.Location
	Engine   *engine.Engine
	Sweeper  *backfill.Sweeper
	// Notifier delivers alerts to the external sinks (EventBridge, SQS). The
	// engine itself only logs notifications; delivery is driven by the
	// table stream so that only committed notifications go out.
	Notifier           *alert.Dispatcher
	Invoker            InvokeAPI
	StreakFunctionName string
	MaxLagDays         int
	Logger             *slog.Logger
}

// Init creates shared dependencies from environment variables.
func Init(ctx context.Context) (*Deps, error) {
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))

	env, err := LoadEnv()
	if err != nil {
		return nil, err
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(env.Region))
	if err != nil {
		return nil, fmt.Errorf("loading AWS config: %w", err)
	}

	prov, err := dynamodb.New(&types.DynamoDBConfig{TableName: env.TableName, Region: env.Region})
	if err != nil {
		return nil, fmt.Errorf("creating DynamoDB provider: %w", err)
	}

	if _, err := telemetry.Setup(ctx, &types.TelemetryConfig{
		Enabled:     env.OTLPEndpoint != "",
		Endpoint:    env.OTLPEndpoint,
		ServiceName: env.ServiceName,
	}); err != nil {
		return nil, fmt.Errorf("setting up telemetry: %w", err)
	}

	if env.WebhookSecretID != "" {
		if env.WebhookURL, err = ResolveWebhookURL(ctx, secretsmanager.NewFromConfig(awsCfg), env.WebhookSecretID); err != nil {
			return nil, err
		}
	}

	var invoker InvokeAPI
	if env.StreakFunctionName != "" {
		invoker = lambdasvc.NewFromConfig(awsCfg)
	}
	return NewDeps(ctx, env, prov, invoker, logger, alert.WithAWSConfig(awsCfg))
}

// NewDeps wires handler dependencies around an existing provider.
func NewDeps(ctx context.Context, env Env, prov provider.Provider, invoker InvokeAPI, logger *slog.Logger, alertOpts ...alert.Option) (*Deps, error) {
	if logger == nil {
		logger = slog.Default()
	}
	loc, err := calendar.LoadLocation(env.Timezone)
	if err != nil {
		return nil, fmt.Errorf("TIMEZONE: %w", err)
	}

	cal, err := loadCalendar(env.CalendarDir, env.CalendarName)
	if err != nil {
		return nil, err
	}

	var sinks []types.AlertConfig
	if env.EventBusName != "" {
		sinks = append(sinks, types.AlertConfig{Type: types.AlertEventBridge, BusName: env.EventBusName})
	}
	if env.QueueURL != "" {
		sinks = append(sinks, types.AlertConfig{Type: types.AlertSQS, QueueURL: env.QueueURL})
	}
	if env.WebhookURL != "" {
		sinks = append(sinks, types.AlertConfig{Type: types.AlertWebhook, URL: env.WebhookURL})
	}
	if len(sinks) == 0 {
		sinks = append(sinks, types.AlertConfig{Type: types.AlertLog})
	}
	notifier, err := alert.NewDispatcher(ctx, sinks, append(alertOpts, alert.WithLogger(logger))...)
	if err != nil {
		return nil, fmt.Errorf("creating alert dispatcher: %w", err)
	}
	engineAlerts := alert.NewDispatcherWithSinks(logger, alert.NewLogSink(logger))

	leases := lease.New(lease.Options{
		Store:    prov,
		Location: loc,
		Duration: env.LeaseDuration,
		Logger:   logger,
	})
	eng := engine.New(engine.Options{
		Provider:         prov,
		Leases:           leases,
		Location:         loc,
		FetchConcurrency: env.FetchConcurrency,
		AlertFn:          engineAlerts.AlertFunc(),
		Logger:           logger,
	})
	sweeper := backfill.New(backfill.Options{
		Provider:    prov,
		Calendar:    cal,
		Location:    loc,
		Concurrency: env.FetchConcurrency,
		Logger:      logger,
	})

	return &Deps{
		Provider:           prov,
		Location:           loc,
		Engine:             eng,
		Sweeper:            sweeper,
		Notifier:           notifier,
		Invoker:            invoker,
		StreakFunctionName: env.StreakFunctionName,
		MaxLagDays:         env.MaxLagDays,
		Logger:             logger,
	}, nil
}

// loadCalendar returns the named calendar from dir, or nil when no name is
// configured.
func loadCalendar(dir, name string) (*types.Calendar, error) {
	if name == "" {
		return nil, nil
	}
	reg := calendar.NewRegistry()
	if err := reg.LoadDir(dir); err != nil {
		return nil, fmt.Errorf("loading calendars: %w", err)
	}
	cal := reg.Get(name)
	if cal == nil {
		return nil, fmt.Errorf("calendar %q not found in %s", name, dir)
	}
	return cal, nil
}

func envOrDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		return 0, fmt.Errorf("%s must be a non-negative integer", key)
	}
	return n, nil
}
