// Package alert fans threshold notifications out to external sinks.
package alert

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/sony/gobreaker"

	"github.com/dwsmith1983/rollcall/internal/metrics"
	"github.com/dwsmith1983/rollcall/pkg/types"
)

// Circuit breaker defaults per sink.
const (
	breakerFailThreshold = 5
	breakerCooldown      = 30 * time.Second
	breakerFailWindow    = 60 * time.Second
	sendTimeout          = 10 * time.Second
)

// Sink is an alert destination.
type Sink interface {
	Send(ctx context.Context, alert types.Alert) error
	Name() string
}

type guardedSink struct {
	sink    Sink
	breaker *gobreaker.CircuitBreaker
}

// Dispatcher routes alerts to configured sinks. Each sink sits behind its own
// circuit breaker so a failing destination fails fast instead of slowing
// every run.
type Dispatcher struct {
	sinks  []guardedSink
	logger *slog.Logger
}

// Option configures a Dispatcher.
type Option func(*dispatcherOptions)

type dispatcherOptions struct {
	logger      *slog.Logger
	awsConfig   *aws.Config
	eventBridge EventBridgeAPI
	sqs         SQSAPI
}

// WithLogger sets the dispatcher logger.
func WithLogger(l *slog.Logger) Option {
	return func(o *dispatcherOptions) { o.logger = l }
}

// WithAWSConfig sets the AWS config used to build EventBridge and SQS clients.
func WithAWSConfig(cfg aws.Config) Option {
	return func(o *dispatcherOptions) { o.awsConfig = &cfg }
}

// WithEventBridgeClient sets a custom EventBridge client (useful for testing).
func WithEventBridgeClient(c EventBridgeAPI) Option {
	return func(o *dispatcherOptions) { o.eventBridge = c }
}

// WithSQSClient sets a custom SQS client (useful for testing).
func WithSQSClient(c SQSAPI) Option {
	return func(o *dispatcherOptions) { o.sqs = c }
}

// NewDispatcher creates a dispatcher from alert configs.
func NewDispatcher(ctx context.Context, configs []types.AlertConfig, opts ...Option) (*Dispatcher, error) {
	o := &dispatcherOptions{}
	for _, fn := range opts {
		fn(o)
	}
	if o.logger == nil {
		o.logger = slog.Default()
	}

	var sinks []Sink
	for _, cfg := range configs {
		sink, err := newSink(ctx, cfg, o)
		if err != nil {
			return nil, fmt.Errorf("creating %s sink: %w", cfg.Type, err)
		}
		sinks = append(sinks, sink)
	}
	return NewDispatcherWithSinks(o.logger, sinks...), nil
}

// NewDispatcherWithSinks creates a dispatcher over already constructed sinks.
func NewDispatcherWithSinks(logger *slog.Logger, sinks ...Sink) *Dispatcher {
	if logger == nil {
		logger = slog.Default()
	}
	d := &Dispatcher{logger: logger}
	for _, s := range sinks {
		d.sinks = append(d.sinks, guardedSink{sink: s, breaker: newBreaker(s.Name(), logger)})
	}
	return d
}

func newBreaker(name string, logger *slog.Logger) *gobreaker.CircuitBreaker {
	return gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:     name,
		Interval: breakerFailWindow,
		Timeout:  breakerCooldown,
		ReadyToTrip: func(c gobreaker.Counts) bool {
			return c.ConsecutiveFailures >= breakerFailThreshold
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("alert sink circuit changed", "sink", name, "from", from.String(), "to", to.String())
		},
	})
}

// Dispatch sends an alert to all configured sinks. Failures are logged and
// counted but never returned.
func (d *Dispatcher) Dispatch(ctx context.Context, alert types.Alert) {
	_ = d.DispatchErr(ctx, alert)
}

// DispatchErr sends an alert to all configured sinks and returns the joined
// delivery errors, including sinks skipped by an open circuit. Every sink is
// attempted regardless of earlier failures.
func (d *Dispatcher) DispatchErr(ctx context.Context, alert types.Alert) error {
	if alert.Timestamp.IsZero() {
		alert.Timestamp = time.Now()
	}
	var errs []error
	for _, g := range d.sinks {
		_, err := g.breaker.Execute(func() (interface{}, error) {
			sctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), sendTimeout)
			defer cancel()
			return nil, g.sink.Send(sctx, alert)
		})
		if err != nil {
			metrics.AlertsFailed.Add(1)
			errs = append(errs, fmt.Errorf("%s sink: %w", g.sink.Name(), err))
			if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
				d.logger.Warn("alert sink unavailable", "sink", g.sink.Name(), "category", alert.Category)
				continue
			}
			d.logger.Error("alert delivery failed", "sink", g.sink.Name(), "category", alert.Category, "error", err)
			continue
		}
		metrics.AlertsDispatched.Add(1)
	}
	return errors.Join(errs...)
}

// AlertFunc returns a function suitable for use as the engine's alert callback.
func (d *Dispatcher) AlertFunc() func(context.Context, types.Alert) {
	return d.Dispatch
}

// Len returns the number of configured sinks.
func (d *Dispatcher) Len() int { return len(d.sinks) }

func newSink(ctx context.Context, cfg types.AlertConfig, o *dispatcherOptions) (Sink, error) {
	switch cfg.Type {
	case types.AlertLog:
		return NewLogSink(o.logger), nil
	case types.AlertWebhook:
		if cfg.URL == "" {
			return nil, fmt.Errorf("webhook URL required")
		}
		return NewWebhookSink(cfg.URL), nil
	case types.AlertFile:
		if cfg.Path == "" {
			return nil, fmt.Errorf("file path required")
		}
		return NewFileSink(cfg.Path)
	case types.AlertEventBridge:
		client := o.eventBridge
		if client == nil {
			awsCfg, err := o.loadAWS(ctx)
			if err != nil {
				return nil, err
			}
			client = newEventBridgeClient(awsCfg)
		}
		return NewEventBridgeSink(cfg.BusName, cfg.Source, client)
	case types.AlertSQS:
		client := o.sqs
		if client == nil {
			awsCfg, err := o.loadAWS(ctx)
			if err != nil {
				return nil, err
			}
			client = newSQSClient(awsCfg)
		}
		return NewSQSSink(cfg.QueueURL, client)
	default:
		return nil, fmt.Errorf("unknown alert type %q", cfg.Type)
	}
}

func (o *dispatcherOptions) loadAWS(ctx context.Context) (aws.Config, error) {
	if o.awsConfig != nil {
		return *o.awsConfig, nil
	}
	cfg, err := awsconfig.LoadDefaultConfig(ctx)
	if err != nil {
		return aws.Config{}, fmt.Errorf("loading AWS config: %w", err)
	}
	o.awsConfig = &cfg
	return cfg, nil
}
