package analyzer

import (
	"context"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

// Package-level tracer and meter for analysis runs.
var (
	tracer = otel.Tracer("depgraph.analyzer")
	meter  = otel.Meter("depgraph.analyzer")
)

var (
	analyzeLatency metric.Float64Histogram
	analyzeTotal   metric.Int64Counter
	filesFailed    metric.Int64Counter
	callsResolved  metric.Int64Counter
	callsDangling  metric.Int64Counter

	metricsOnce sync.Once
	metricsErr  error
)

// initMetrics initializes the metrics. Safe to call multiple times.
func initMetrics() error {
	metricsOnce.Do(func() {
		var err error

		analyzeLatency, err = meter.Float64Histogram(
			"depgraph_analyze_duration_seconds",
			metric.WithDescription("Duration of a full two-phase analysis"),
			metric.WithUnit("s"),
		)
		if err != nil {
			metricsErr = err
			return
		}

		analyzeTotal, err = meter.Int64Counter(
			"depgraph_analyze_total",
			metric.WithDescription("Total number of analysis runs"),
		)
		if err != nil {
			metricsErr = err
			return
		}

		filesFailed, err = meter.Int64Counter(
			"depgraph_files_failed_total",
			metric.WithDescription("Files that could not be read or parsed"),
		)
		if err != nil {
			metricsErr = err
			return
		}

		callsResolved, err = meter.Int64Counter(
			"depgraph_call_names_resolved_total",
			metric.WithDescription("Call names that matched at least one function"),
		)
		if err != nil {
			metricsErr = err
			return
		}

		callsDangling, err = meter.Int64Counter(
			"depgraph_call_names_unresolved_total",
			metric.WithDescription("Call names that matched no function"),
		)
		if err != nil {
			metricsErr = err
			return
		}
	})
	return metricsErr
}

func recordAnalyzeMetrics(ctx context.Context, duration time.Duration, stats Stats, success bool) {
	if err := initMetrics(); err != nil {
		return
	}
	attrs := metric.WithAttributes(attribute.Bool("success", success))
	analyzeLatency.Record(ctx, duration.Seconds(), attrs)
	analyzeTotal.Add(ctx, 1, attrs)
	if !success {
		return
	}
	filesFailed.Add(ctx, int64(stats.FilesFailed))
	callsResolved.Add(ctx, int64(stats.CallNamesResolved))
	callsDangling.Add(ctx, int64(stats.CallNamesUnresolved))
}

func startAnalyzeSpan(ctx context.Context, fileCount, workers int) (context.Context, trace.Span) {
	return tracer.Start(ctx, "Analyzer.Analyze",
		trace.WithAttributes(
			attribute.Int("depgraph.file_count", fileCount),
			attribute.Int("depgraph.workers", workers),
		),
	)
}

func setAnalyzeSpanResult(span trace.Span, stats Stats) {
	span.SetAttributes(
		attribute.Int("depgraph.files_analyzed", stats.FilesAnalyzed),
		attribute.Int("depgraph.files_failed", stats.FilesFailed),
		attribute.Int("depgraph.functions", stats.Functions),
		attribute.Int("depgraph.file_edges", stats.FileEdges),
		attribute.Int("depgraph.call_edges", stats.CallEdges),
	)
}
