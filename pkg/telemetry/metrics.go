// SPDX-License-Identifier: Apache-2.0
package telemetry

import (
	"context"
	stderrors "errors"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/jllopis/avatar/pkg/errors"
)

// ControlMetrics tracks the control core's message, task and persistence activity.
type ControlMetrics struct {
	dispatchCounter metric.Int64Counter
	taskCounter     metric.Int64Counter
	taskLatencyMs   metric.Float64Histogram
	saveLatencyMs   metric.Float64Histogram
	ingestCounter   metric.Int64Counter
	errorCounter    metric.Int64Counter
}

var (
	defaultMetricsOnce sync.Once
	defaultMetrics     *ControlMetrics
)

// Metrics returns the process-wide control metrics, created on first use
// against the global meter provider.
func Metrics() *ControlMetrics {
	defaultMetricsOnce.Do(func() {
		m, err := NewControlMetrics()
		if err != nil {
			return
		}
		defaultMetrics = m
	})
	return defaultMetrics
}

// NewControlMetrics creates the control core instruments.
func NewControlMetrics() (*ControlMetrics, error) {
	meter := otel.Meter("avatar/controller")

	dispatchCounter, err := meter.Int64Counter(
		"avatar.dispatch.count",
		metric.WithDescription("Inbound messages dispatched by sender role and outcome"),
	)
	if err != nil {
		return nil, err
	}
	taskCounter, err := meter.Int64Counter(
		"avatar.task.runs",
		metric.WithDescription("Scheduled task runs by task name"),
	)
	if err != nil {
		return nil, err
	}
	taskLatencyMs, err := meter.Float64Histogram(
		"avatar.task.latency_ms",
		metric.WithDescription("Scheduled task run latency"),
	)
	if err != nil {
		return nil, err
	}
	saveLatencyMs, err := meter.Float64Histogram(
		"avatar.persistence.save.latency_ms",
		metric.WithDescription("Snapshot save latency"),
	)
	if err != nil {
		return nil, err
	}
	ingestCounter, err := meter.Int64Counter(
		"avatar.schema.ingested",
		metric.WithDescription("Schemas ingested by kind"),
	)
	if err != nil {
		return nil, err
	}
	errorCounter, err := meter.Int64Counter(
		"avatar.errors.total",
		metric.WithDescription("Errors by code and component"),
	)
	if err != nil {
		return nil, err
	}

	return &ControlMetrics{
		dispatchCounter: dispatchCounter,
		taskCounter:     taskCounter,
		taskLatencyMs:   taskLatencyMs,
		saveLatencyMs:   saveLatencyMs,
		ingestCounter:   ingestCounter,
		errorCounter:    errorCounter,
	}, nil
}

// RecordDispatch counts one dispatched message.
func (m *ControlMetrics) RecordDispatch(ctx context.Context, role, outcome string) {
	if m == nil {
		return
	}
	m.dispatchCounter.Add(ctx, 1, metric.WithAttributes(
		attribute.String(AttrSenderRole, role),
		attribute.String(AttrOutcome, outcome),
	))
}

// RecordTaskRun counts one task run and its latency.
func (m *ControlMetrics) RecordTaskRun(ctx context.Context, name string, d time.Duration) {
	if m == nil {
		return
	}
	attrs := metric.WithAttributes(attribute.String(AttrTaskName, name))
	m.taskCounter.Add(ctx, 1, attrs)
	m.taskLatencyMs.Record(ctx, float64(d.Microseconds())/1000, attrs)
}

// RecordSave records snapshot save latency.
func (m *ControlMetrics) RecordSave(ctx context.Context, d time.Duration) {
	if m == nil {
		return
	}
	m.saveLatencyMs.Record(ctx, float64(d.Microseconds())/1000)
}

// RecordIngest counts one ingested schema.
func (m *ControlMetrics) RecordIngest(ctx context.Context, kind string) {
	if m == nil {
		return
	}
	m.ingestCounter.Add(ctx, 1, metric.WithAttributes(attribute.String(AttrSchemaKind, kind)))
}

// RecordError increments the error counter for err's code and component.
func (m *ControlMetrics) RecordError(ctx context.Context, err error, component string) {
	if m == nil || err == nil {
		return
	}
	code := "UNKNOWN"
	var e *errors.Error
	if stderrors.As(err, &e) {
		code = string(e.Code)
	}
	m.errorCounter.Add(ctx, 1, metric.WithAttributes(
		attribute.String(AttrErrorCode, code),
		attribute.String(AttrComponent, component),
	))
}
