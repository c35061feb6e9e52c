package telemetry

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"go.opentelemetry.io/otel"
)

func TestInitNilContext(t *testing.T) {
	if _, err := Init(nil, Config{}); err != ErrNilContext {
		t.Errorf("Init(nil) error = %v, want ErrNilContext", err)
	}
}

func TestInitTracesWritesSpans(t *testing.T) {
	var buf bytes.Buffer
	ctx := context.Background()
	shutdown, err := Init(ctx, Config{ServiceName: "depgraph-test", Traces: true, Writer: &buf})
	if err != nil {
		t.Fatalf("Init: %v", err)
	}

	_, span := otel.Tracer("telemetry-test").Start(ctx, "test.span")
	span.End()

	if err := shutdown(ctx); err != nil {
		t.Fatalf("shutdown: %v", err)
	}
	if !strings.Contains(buf.String(), "test.span") {
		t.Errorf("span not exported:\n%s", buf.String())
	}
}

func TestInitMetricsFlushOnShutdown(t *testing.T) {
	var buf bytes.Buffer
	ctx := context.Background()
	shutdown, err := Init(ctx, Config{ServiceName: "depgraph-test", Metrics: true, Writer: &buf})
	if err != nil {
		t.Fatalf("Init: %v", err)
	}

	counter, err := otel.Meter("telemetry-test").Int64Counter("test.counter")
	if err != nil {
		t.Fatal(err)
	}
	counter.Add(ctx, 3)

	if err := shutdown(ctx); err != nil {
		t.Fatalf("shutdown: %v", err)
	}
	if !strings.Contains(buf.String(), "test.counter") {
		t.Errorf("metric not exported:\n%s", buf.String())
	}
}

func TestInitNothingEnabled(t *testing.T) {
	shutdown, err := Init(context.Background(), Config{})
	if err != nil {
		t.Fatal(err)
	}
	if err := shutdown(context.Background()); err != nil {
		t.Errorf("shutdown: %v", err)
	}
}
