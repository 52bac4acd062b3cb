// Package observer implements the runner's structured lifecycle events
// (run_start, job_start, job_end, run_summary) plus optional span and
// metric emission around them. Grounded on the teacher's
// internal/tracing package: WorkflowSpan/StartWorkflowRun/StartStep
// (internal/tracing/workflow.go) for the span shape, and
// MetricsCollector's counter/histogram pattern
// (internal/tracing/metrics.go) for the Prometheus side. An Observer
// is always usable with zero configuration: a nil logger is replaced
// with the default text logger on stderr, and a nil tracer, meter, or
// Prometheus registerer with a no-op implementation, rather than
// requiring every embedder to wire a full
// observability stack, since metric exporters and logging sinks are
// external collaborators, not part of the core's hard contract.
package observer

import (
	"context"
	"log/slog"
	"time"

	aflog "github.com/aetherflow/aetherflow/internal/log"
	afstore "github.com/aetherflow/aetherflow/internal/store"
	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	metricnoop "go.opentelemetry.io/otel/metric/noop"
	"go.opentelemetry.io/otel/trace"
	tracenoop "go.opentelemetry.io/otel/trace/noop"
)

// RunSpan tracks one run's span and start time across its lifetime.
type RunSpan struct {
	span    trace.Span
	started time.Time
	flowID  string
	runID   string
}

// JobSpan tracks one job's span and start time within a run.
type JobSpan struct {
	span    trace.Span
	started time.Time
	jobID   string
}

// Summary is the payload of the run_summary event: status counts and
// total duration, per spec.md §4.5 step 4.
type Summary struct {
	Counts   map[afstore.JobStatus]int
	Duration time.Duration
}

// Observer emits structured lifecycle events and, when configured,
// OpenTelemetry spans/metrics and Prometheus counters/histograms.
type Observer struct {
	logger *slog.Logger
	tracer trace.Tracer
	meter  metric.Meter

	runsTotal    metric.Int64Counter
	jobsTotal    metric.Int64Counter
	stepsTotal   metric.Int64Counter
	runDuration  metric.Float64Histogram
	jobDuration  metric.Float64Histogram
	stepDuration metric.Float64Histogram

	promRunsTotal    *prometheus.CounterVec
	promJobsTotal    *prometheus.CounterVec
	promStepsTotal   *prometheus.CounterVec
	promRunDuration  *prometheus.HistogramVec
	promJobDuration  *prometheus.HistogramVec
	promStepDuration *prometheus.HistogramVec
}

// New builds an Observer. Any of logger, tracer, meter, registerer may
// be nil; each is substituted with a harmless default so an embedder
// that wants no observability stack at all can pass every argument as
// its zero value.
func New(logger *slog.Logger, tracer trace.Tracer, meter metric.Meter, registerer prometheus.Registerer) (*Observer, error) {
	if logger == nil {
		logger = aflog.New(aflog.DefaultConfig())
	}
	if tracer == nil {
		tracer = tracenoop.NewTracerProvider().Tracer("aetherflow")
	}
	if meter == nil {
		meter = metricnoop.NewMeterProvider().Meter("aetherflow")
	}

	o := &Observer{logger: logger, tracer: tracer, meter: meter}

	var err error
	if o.runsTotal, err = meter.Int64Counter("aetherflow_runs_total",
		metric.WithDescription("Total number of flow runs"), metric.WithUnit("{run}")); err != nil {
		return nil, err
	}
	if o.jobsTotal, err = meter.Int64Counter("aetherflow_jobs_total",
		metric.WithDescription("Total number of jobs executed"), metric.WithUnit("{job}")); err != nil {
		return nil, err
	}
	if o.stepsTotal, err = meter.Int64Counter("aetherflow_steps_total",
		metric.WithDescription("Total number of steps executed"), metric.WithUnit("{step}")); err != nil {
		return nil, err
	}
	if o.runDuration, err = meter.Float64Histogram("aetherflow_run_duration_seconds",
		metric.WithDescription("Flow run duration in seconds"), metric.WithUnit("s")); err != nil {
		return nil, err
	}
	if o.jobDuration, err = meter.Float64Histogram("aetherflow_job_duration_seconds",
		metric.WithDescription("Job duration in seconds"), metric.WithUnit("s")); err != nil {
		return nil, err
	}
	if o.stepDuration, err = meter.Float64Histogram("aetherflow_step_duration_seconds",
		metric.WithDescription("Step duration in seconds"), metric.WithUnit("s")); err != nil {
		return nil, err
	}

	o.promRunsTotal = register(registerer, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "aetherflow_runs_total", Help: "Total number of flow runs",
	}, []string{"flow_id", "status"}))
	o.promJobsTotal = register(registerer, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "aetherflow_jobs_total", Help: "Total number of jobs executed",
	}, []string{"flow_id", "job_id", "status"}))
	o.promStepsTotal = register(registerer, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "aetherflow_steps_total", Help: "Total number of steps executed",
	}, []string{"flow_id", "job_id", "step_id", "status"}))
	o.promRunDuration = registerHist(registerer, prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name: "aetherflow_run_duration_seconds", Help: "Flow run duration in seconds",
	}, []string{"flow_id", "status"}))
	o.promJobDuration = registerHist(registerer, prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name: "aetherflow_job_duration_seconds", Help: "Job duration in seconds",
	}, []string{"flow_id", "job_id", "status"}))
	o.promStepDuration = registerHist(registerer, prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name: "aetherflow_step_duration_seconds", Help: "Step duration in seconds",
	}, []string{"flow_id", "job_id", "step_id", "status"}))

	return o, nil
}

// register registers vec against reg and tolerates a nil registerer or
// a duplicate-registration error (returning the already-registered
// collector in the latter case), so callers sharing one Registerer
// across multiple Observer instances don't panic.
func register(reg prometheus.Registerer, vec *prometheus.CounterVec) *prometheus.CounterVec {
	if reg == nil {
		return vec
	}
	if err := reg.Register(vec); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			return are.ExistingCollector.(*prometheus.CounterVec)
		}
	}
	return vec
}

func registerHist(reg prometheus.Registerer, vec *prometheus.HistogramVec) *prometheus.HistogramVec {
	if reg == nil {
		return vec
	}
	if err := reg.Register(vec); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			return are.ExistingCollector.(*prometheus.HistogramVec)
		}
	}
	return vec
}

// StartRun emits run_start and opens the run's root span.
func (o *Observer) StartRun(ctx context.Context, flowID, runID string) (context.Context, *RunSpan) {
	ctx, span := o.tracer.Start(ctx, "aetherflow.run",
		trace.WithAttributes(
			attribute.String("aetherflow.flow_id", flowID),
			attribute.String("aetherflow.run_id", runID),
		))
	o.logger.Info("run_start",
		slog.String(aflog.EventKey, "run_start"),
		slog.String(aflog.FlowIDKey, flowID),
		slog.String(aflog.RunIDKey, runID),
	)
	return ctx, &RunSpan{span: span, started: timeNow(), flowID: flowID, runID: runID}
}

// EndRun emits run_summary, records run metrics, and ends the run span.
func (o *Observer) EndRun(ctx context.Context, rs *RunSpan, summary Summary, runErr error) {
	status := "success"
	if runErr != nil {
		status = "failed"
		rs.span.SetStatus(codes.Error, runErr.Error())
	}
	rs.span.End()

	counts := make(map[string]int, len(summary.Counts))
	for k, v := range summary.Counts {
		counts[string(k)] = v
	}
	o.logger.Info("run_summary",
		slog.String(aflog.EventKey, "run_summary"),
		slog.String(aflog.FlowIDKey, rs.flowID),
		slog.String(aflog.RunIDKey, rs.runID),
		slog.Any("counts", counts),
		slog.Duration("duration", summary.Duration),
	)

	attrs := []attribute.KeyValue{
		attribute.String("aetherflow.flow_id", rs.flowID),
		attribute.String("status", status),
	}
	o.runsTotal.Add(ctx, 1, metric.WithAttributes(attrs...))
	o.runDuration.Record(ctx, summary.Duration.Seconds(), metric.WithAttributes(attrs...))
	o.promRunsTotal.WithLabelValues(rs.flowID, status).Inc()
	o.promRunDuration.WithLabelValues(rs.flowID, status).Observe(summary.Duration.Seconds())
}

// StartJob emits job_start and opens the job's span as a child of rs.
func (o *Observer) StartJob(ctx context.Context, rs *RunSpan, jobID string) (context.Context, *JobSpan) {
	ctx, span := o.tracer.Start(ctx, "aetherflow.job",
		trace.WithAttributes(attribute.String("aetherflow.job_id", jobID)))
	o.logger.Info("job_start",
		slog.String(aflog.EventKey, "job_start"),
		slog.String(aflog.FlowIDKey, rs.flowID),
		slog.String(aflog.RunIDKey, rs.runID),
		slog.String(aflog.JobIDKey, jobID),
	)
	return ctx, &JobSpan{span: span, started: timeNow(), jobID: jobID}
}

// EndJob emits job_end, records job metrics, and ends the job span.
func (o *Observer) EndJob(ctx context.Context, rs *RunSpan, js *JobSpan, status afstore.JobStatus, jobErr error) {
	if jobErr != nil {
		js.span.SetStatus(codes.Error, jobErr.Error())
	}
	js.span.End()
	duration := timeNow().Sub(js.started)

	attrs := []slog.Attr{
		slog.String(aflog.EventKey, "job_end"),
		slog.String(aflog.FlowIDKey, rs.flowID),
		slog.String(aflog.RunIDKey, rs.runID),
		slog.String(aflog.JobIDKey, js.jobID),
		slog.String("status", string(status)),
	}
	if jobErr != nil {
		attrs = append(attrs, slog.String("error", jobErr.Error()))
	}
	o.logger.LogAttrs(ctx, slog.LevelInfo, "job_end", attrs...)

	otelAttrs := []attribute.KeyValue{
		attribute.String("aetherflow.flow_id", rs.flowID),
		attribute.String("aetherflow.job_id", js.jobID),
		attribute.String("status", string(status)),
	}
	o.jobsTotal.Add(ctx, 1, metric.WithAttributes(otelAttrs...))
	o.jobDuration.Record(ctx, duration.Seconds(), metric.WithAttributes(otelAttrs...))
	o.promJobsTotal.WithLabelValues(rs.flowID, js.jobID, string(status)).Inc()
	o.promJobDuration.WithLabelValues(rs.flowID, js.jobID, string(status)).Observe(duration.Seconds())
}

// RecordStep records one step's outcome. A failing step raises an
// error instead of returning SKIPPED/SUCCESS, so the terminal status
// passed here is always one of those two; the runner logs the failure
// itself against *errors.StepError separately (see internal/runner).
func (o *Observer) RecordStep(ctx context.Context, rs *RunSpan, js *JobSpan, stepID string, status string, duration time.Duration) {
	o.logger.Info("step_end",
		slog.String(aflog.EventKey, "step_end"),
		slog.String(aflog.FlowIDKey, rs.flowID),
		slog.String(aflog.RunIDKey, rs.runID),
		slog.String(aflog.JobIDKey, js.jobID),
		slog.String(aflog.StepIDKey, stepID),
		slog.String("status", status),
	)

	attrs := []attribute.KeyValue{
		attribute.String("aetherflow.flow_id", rs.flowID),
		attribute.String("aetherflow.job_id", js.jobID),
		attribute.String("aetherflow.step_id", stepID),
		attribute.String("status", status),
	}
	o.stepsTotal.Add(ctx, 1, metric.WithAttributes(attrs...))
	o.stepDuration.Record(ctx, duration.Seconds(), metric.WithAttributes(attrs...))
	o.promStepsTotal.WithLabelValues(rs.flowID, js.jobID, stepID, status).Inc()
	o.promStepDuration.WithLabelValues(rs.flowID, js.jobID, stepID, status).Observe(duration.Seconds())
}

// StepFailed logs a step's raised error against its job, per the error
// handling design's "observer emits the failure".
func (o *Observer) StepFailed(ctx context.Context, rs *RunSpan, js *JobSpan, stepID string, stepErr error) {
	o.logger.LogAttrs(ctx, slog.LevelError, "step_failed",
		slog.String(aflog.EventKey, "step_failed"),
		slog.String(aflog.FlowIDKey, rs.flowID),
		slog.String(aflog.RunIDKey, rs.runID),
		slog.String(aflog.JobIDKey, js.jobID),
		slog.String(aflog.StepIDKey, stepID),
		slog.String("error", stepErr.Error()),
	)
}

// timeNow is a seam so tests can control span/job duration measurement
// without sleeping.
var timeNow = time.Now
