package report_test

import (
	"bytes"
	"fmt"
	"log/slog"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/beastmode/nfscheck/internal/report"
)

func record(agg *report.Aggregator, probe string, passed bool, msg string) {
	agg.Record(report.Result{
		Probe:     probe,
		Passed:    passed,
		Message:   msg,
		Timestamp: time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC),
		Transport: "tcp",
	})
}

func TestSummary_AllPassed(t *testing.T) {
	agg := report.NewAggregator()
	for i := 0; i < 10; i++ {
		record(agg, fmt.Sprintf("probe_%d", i), true, "ok")
	}

	s := agg.Summary()
	assert.Equal(t, 10, s.Total)
	assert.Equal(t, 10, s.Passed)
	assert.Equal(t, 0, s.Failed)
	assert.InDelta(t, 100.0, s.Ratio, 1e-9)
}

func TestSummary_Mixed(t *testing.T) {
	agg := report.NewAggregator()
	for i := 0; i < 7; i++ {
		record(agg, fmt.Sprintf("pass_%d", i), true, "ok")
	}
	for i := 0; i < 3; i++ {
		record(agg, fmt.Sprintf("fail_%d", i), false, "broken")
	}

	s := agg.Summary()
	assert.Equal(t, 10, s.Total)
	assert.Equal(t, 7, s.Passed)
	assert.Equal(t, 3, s.Failed)
	assert.InDelta(t, 70.0, s.Ratio, 1e-9)
}

func TestSummary_EmptyIsNaN(t *testing.T) {
	agg := report.NewAggregator()

	s := agg.Summary()
	assert.Equal(t, 0, s.Total)
	assert.True(t, math.IsNaN(s.Ratio))
}

func TestResults_ReturnsCopyInOrder(t *testing.T) {
	agg := report.NewAggregator()
	record(agg, "first", true, "")
	record(agg, "second", false, "oops")

	got := agg.Results()
	require.Len(t, got, 2)
	assert.Equal(t, "first", got[0].Probe)
	assert.Equal(t, "second", got[1].Probe)

	// Mutating the returned slice must not touch the record set.
	got[0].Probe = "mangled"
	again := agg.Results()
	assert.Equal(t, "first", again[0].Probe)
}

func TestLogSink_MirrorsAndForwards(t *testing.T) {
	var buf bytes.Buffer
	log := slog.New(slog.NewTextHandler(&buf, nil))

	agg := report.NewAggregator()
	sink := &report.LogSink{Log: log, Next: agg}

	sink.Start("basic_file_operations", "create, read, delete")
	sink.Step("basic_file_operations", "created file")
	sink.Record(report.Result{Probe: "basic_file_operations", Passed: true, Transport: "tcp"})

	results := agg.Results()
	require.Len(t, results, 1)
	assert.Equal(t, "basic_file_operations", results[0].Probe)

	out := buf.String()
	assert.Contains(t, out, "probe starting")
	assert.Contains(t, out, "created file")
	assert.Contains(t, out, "status=PASS")
}
