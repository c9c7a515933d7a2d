package otel

import "go.opentelemetry.io/otel/metric"

// Metrics holds the dashboard's metric instruments.
type Metrics struct {
	RequestDuration  metric.Float64Histogram
	DispatchDuration metric.Float64Histogram
	DispatchErrors   metric.Int64Counter
	DispatchDropped  metric.Int64Counter
	TasksCreated     metric.Int64Counter
	TasksSpawned     metric.Int64Counter
	CronRuns         metric.Int64Counter
}

// NewMetrics creates all metric instruments from the given meter.
func NewMetrics(meter metric.Meter) (*Metrics, error) {
	m := &Metrics{}
	var err error

	m.RequestDuration, err = meter.Float64Histogram("dashboard.request.duration",
		metric.WithDescription("Inbound API request duration in seconds"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, err
	}

	m.DispatchDuration, err = meter.Float64Histogram("dashboard.dispatch.duration",
		metric.WithDescription("Outbound hook call duration in seconds"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, err
	}

	m.DispatchErrors, err = meter.Int64Counter("dashboard.dispatch.errors",
		metric.WithDescription("Failed outbound hook calls"),
	)
	if err != nil {
		return nil, err
	}

	m.DispatchDropped, err = meter.Int64Counter("dashboard.dispatch.dropped",
		metric.WithDescription("Task triggers dropped because the outbox was full"),
	)
	if err != nil {
		return nil, err
	}

	m.TasksCreated, err = meter.Int64Counter("dashboard.tasks.created",
		metric.WithDescription("Tasks created through the API"),
	)
	if err != nil {
		return nil, err
	}

	m.TasksSpawned, err = meter.Int64Counter("dashboard.tasks.spawned",
		metric.WithDescription("Task spawn re-dispatches"),
	)
	if err != nil {
		return nil, err
	}

	m.CronRuns, err = meter.Int64Counter("dashboard.cron.runs",
		metric.WithDescription("Manual cron run-now triggers"),
	)
	if err != nil {
		return nil, err
	}

	return m, nil
}
