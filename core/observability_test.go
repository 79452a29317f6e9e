package core

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestObserver_RecordsCountersAndLogsFailures(t *testing.T) {
	metrics := &captureMetricsRecorder{}
	logger := newCaptureLogger()
	observer := Observer{Logger: logger, Metrics: metrics}

	observer.Observe(context.Background(), time.Now(), "Reassembly Process", "partial", nil, map[string]any{"ref": "78"})
	observer.Observe(context.Background(), time.Now(), "reassembly-process", "", errors.New("boom"), nil)

	if len(metrics.counters) != 2 {
		t.Fatalf("expected 2 counters, got %d", len(metrics.counters))
	}
	first := metrics.counters[0]
	if first.name != "smshook.reassembly_process.total" {
		t.Fatalf("unexpected counter name %q", first.name)
	}
	if first.tags["outcome"] != "partial" || first.tags["status"] != "success" {
		t.Fatalf("unexpected counter tags %#v", first.tags)
	}
	if metrics.counters[1].tags["status"] != "failure" {
		t.Fatalf("expected failure status tag, got %#v", metrics.counters[1].tags)
	}
	if len(metrics.histograms) != 2 {
		t.Fatalf("expected 2 histograms, got %d", len(metrics.histograms))
	}

	records := logger.snapshot()
	if len(records) != 2 {
		t.Fatalf("expected 2 log records, got %d", len(records))
	}
	if records[0].level != "debug" || records[0].fields["ref"] != "78" {
		t.Fatalf("unexpected success record %+v", records[0])
	}
	if records[1].level != "error" || records[1].fields["error"] != "boom" {
		t.Fatalf("unexpected failure record %+v", records[1])
	}
}

func TestObserver_ZeroValueIsSafe(t *testing.T) {
	var observer Observer
	observer.Observe(context.Background(), time.Now(), "", "", nil, nil)
	observer.Log(context.Background(), "warn", "ignored", nil)
}
