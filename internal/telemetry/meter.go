package telemetry

import (
	"context"
	"fmt"
	"time"

	"github.com/hiroki-koketsu/task-assignment/internal/model"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
)

// Metrics holds the custom metrics instruments for the application.
type Metrics struct {
	RequestCounter    metric.Int64Counter
	RequestDuration   metric.Float64Histogram
	TransitionCounter metric.Int64Counter
	TasksGauge        metric.Int64ObservableGauge
}

// InitMeterProvider installs a global meter provider exporting over OTLP
// gRPC every 10 seconds.
func InitMeterProvider(ctx context.Context, s Settings) (*sdkmetric.MeterProvider, error) {
	conn, err := dialCollector(s)
	if err != nil {
		return nil, err
	}

	exporter, err := otlpmetricgrpc.New(ctx, otlpmetricgrpc.WithGRPCConn(conn))
	if err != nil {
		return nil, fmt.Errorf("failed to create metric exporter: %w", err)
	}

	res, err := newResource(s)
	if err != nil {
		return nil, err
	}

	mp := sdkmetric.NewMeterProvider(
		sdkmetric.WithReader(sdkmetric.NewPeriodicReader(exporter,
			sdkmetric.WithInterval(10*time.Second),
		)),
		sdkmetric.WithResource(res),
	)
	otel.SetMeterProvider(mp)

	return mp, nil
}

// TaskCounter reports the number of stored tasks.
type TaskCounter func(ctx context.Context) (int64, error)

// NewMetrics creates and registers custom metrics instruments.
func NewMetrics(meter metric.Meter, countTasks TaskCounter) (*Metrics, error) {
	m := &Metrics{}

	var err error

	m.RequestCounter, err = meter.Int64Counter(
		"http_requests_total",
		metric.WithDescription("Total number of HTTP requests"),
		metric.WithUnit("{request}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create request counter: %w", err)
	}

	m.RequestDuration, err = meter.Float64Histogram(
		"http_request_duration_seconds",
		metric.WithDescription("HTTP request duration in seconds"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create request duration histogram: %w", err)
	}

	m.TransitionCounter, err = meter.Int64Counter(
		"task_transitions_total",
		metric.WithDescription("Task status transition attempts by outcome"),
		metric.WithUnit("{transition}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create transition counter: %w", err)
	}

	m.TasksGauge, err = meter.Int64ObservableGauge(
		"tasks_total",
		metric.WithDescription("Current number of tasks in the system"),
		metric.WithUnit("{task}"),
		metric.WithInt64Callback(func(ctx context.Context, o metric.Int64Observer) error {
			n, err := countTasks(ctx)
			if err != nil {
				// Skip this collection; the store may be briefly unavailable.
				return nil
			}
			o.Observe(n)
			return nil
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create tasks gauge: %w", err)
	}

	return m, nil
}

// RecordTransition counts one transition attempt. An empty to means the
// engine refused before choosing a target.
func (m *Metrics) RecordTransition(ctx context.Context, from, to model.Status, outcome string) {
	if m == nil || m.TransitionCounter == nil {
		return
	}
	m.TransitionCounter.Add(ctx, 1, metric.WithAttributes(
		attribute.String("from", string(from)),
		attribute.String("to", string(to)),
		attribute.String("outcome", outcome),
	))
}
