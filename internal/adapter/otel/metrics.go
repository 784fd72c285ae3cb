package otel

import (
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
)

const meterName = "taskfleet"

// Metrics holds all TaskFleet metric instruments.
type Metrics struct {
	JobsProcessed metric.Int64Counter
	JobsFailed    metric.Int64Counter
	RoutesTotal   metric.Int64Counter
	CircuitOpens  metric.Int64Counter
	JobDuration   metric.Float64Histogram
	BudgetSpend   metric.Float64Histogram
}

// NewMetrics creates all metric instruments.
func NewMetrics() (*Metrics, error) {
	meter := otel.Meter(meterName)
	m := &Metrics{}
	var err error

	m.JobsProcessed, err = meter.Int64Counter("taskfleet.jobs.processed",
		metric.WithDescription("Number of jobs processed"))
	if err != nil {
		return nil, err
	}

	m.JobsFailed, err = meter.Int64Counter("taskfleet.jobs.failed",
		metric.WithDescription("Number of jobs failed"))
	if err != nil {
		return nil, err
	}

	m.RoutesTotal, err = meter.Int64Counter("taskfleet.routes",
		metric.WithDescription("Number of routing decisions"))
	if err != nil {
		return nil, err
	}

	m.CircuitOpens, err = meter.Int64Counter("taskfleet.circuit.opens",
		metric.WithDescription("Number of circuit breaker trips"))
	if err != nil {
		return nil, err
	}

	m.JobDuration, err = meter.Float64Histogram("taskfleet.job.duration_seconds",
		metric.WithDescription("Job processing duration in seconds"))
	if err != nil {
		return nil, err
	}

	m.BudgetSpend, err = meter.Float64Histogram("taskfleet.budget.spend_usd",
		metric.WithDescription("Committed spend per job in USD"))
	if err != nil {
		return nil, err
	}

	return m, nil
}
