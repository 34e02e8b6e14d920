package report

import (
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// Fixed report artifact location. The file is world-readable and
// world-writable so operators can collect or truncate it without caring
// which user ran the harness.
const (
	ReportDirName  = "test_reports"
	ReportFileName = "report.txt"
	reportFileMode = 0777
)

const (
	heavyRule  = "================================================================================"
	lightRule  = "--------------------------------------------------------------------------------"
	timeLayout = "2006-01-02 15:04:05"
)

// MetadataEntry is one key/value line in the run-information block.
// A slice keeps the operator-facing ordering stable.
type MetadataEntry struct {
	Key   string
	Value string
}

// Render writes the full text report: run metadata, the per-test journal
// with phase narration, and the summary block with failed tests
// enumerated by name and detail message.
func Render(w io.Writer, meta []MetadataEntry, agg *Aggregator, generatedAt time.Time) error {
	var b strings.Builder

	b.WriteString(heavyRule + "\n")
	b.WriteString("NFS3 PROTOCOL TEST DOCUMENTATION\n")
	b.WriteString(heavyRule + "\n\n")

	b.WriteString("TEST RUN INFORMATION\n")
	b.WriteString(lightRule + "\n")
	for _, m := range meta {
		fmt.Fprintf(&b, "%-25s: %s\n", m.Key, m.Value)
	}
	b.WriteString("\n")

	b.WriteString(heavyRule + "\n")
	b.WriteString("TEST RESULTS AND DOCUMENTATION\n")
	b.WriteString(heavyRule + "\n\n")

	agg.mu.Lock()
	journal := make([]journalEntry, len(agg.journal))
	copy(journal, agg.journal)
	agg.mu.Unlock()

	started := false
	for _, e := range journal {
		switch e.kind {
		case "start":
			if started {
				b.WriteString("\n")
			}
			started = true
			b.WriteString(lightRule + "\n")
			fmt.Fprintf(&b, "TEST: %s\n", e.probe)
			b.WriteString(lightRule + "\n")
			fmt.Fprintf(&b, "Purpose: %s\n", e.description)
			fmt.Fprintf(&b, "Started: %s\n\n", e.at.Format(timeLayout))
		case "step":
			fmt.Fprintf(&b, "  - %s\n", e.msg)
		case "result":
			status := "PASSED"
			if !e.result.Passed {
				status = "FAILED"
			}
			fmt.Fprintf(&b, "\nResult: %s\n", status)
			if e.result.Message != "" {
				fmt.Fprintf(&b, "Details: %s\n", e.result.Message)
			}
			fmt.Fprintf(&b, "Completed: %s\n", e.at.Format(timeLayout))
		}
	}
	b.WriteString("\n")

	b.WriteString(heavyRule + "\n")
	b.WriteString("TEST SUMMARY\n")
	b.WriteString(heavyRule + "\n")

	s := agg.Summary()
	fmt.Fprintf(&b, "Total Tests: %d\n", s.Total)
	fmt.Fprintf(&b, "Passed: %d\n", s.Passed)
	fmt.Fprintf(&b, "Failed: %d\n", s.Failed)
	if math.IsNaN(s.Ratio) {
		b.WriteString("Success Rate: N/A\n")
	} else {
		fmt.Fprintf(&b, "Success Rate: %.1f%%\n", s.Ratio)
	}
	b.WriteString("\n")

	if s.Failed > 0 {
		b.WriteString("Failed Tests:\n")
		for _, r := range agg.Results() {
			if !r.Passed {
				fmt.Fprintf(&b, "  x %s: %s\n", r.Probe, r.Message)
			}
		}
		b.WriteString("\n")
	}

	b.WriteString(heavyRule + "\n")
	fmt.Fprintf(&b, "Report generated: %s\n", generatedAt.Format(timeLayout))
	b.WriteString(heavyRule + "\n")

	_, err := io.WriteString(w, b.String())
	return err
}

// Write renders the report into baseDir/test_reports/report.txt and makes
// the artifact world-writable. The run never aborts because of test
// failures, so Write is called unconditionally at the end of a run.
func Write(baseDir string, meta []MetadataEntry, agg *Aggregator, generatedAt time.Time) (string, error) {
	dir := filepath.Join(baseDir, ReportDirName)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("failed to create report directory: %w", err)
	}

	path := filepath.Join(dir, ReportFileName)
	f, err := os.Create(path)
	if err != nil {
		return "", fmt.Errorf("failed to create report file: %w", err)
	}

	if err := Render(f, meta, agg, generatedAt); err != nil {
		f.Close()
		return "", fmt.Errorf("failed to render report: %w", err)
	}
	if err := f.Close(); err != nil {
		return "", fmt.Errorf("failed to close report file: %w", err)
	}

	if err := os.Chmod(path, reportFileMode); err != nil {
		return "", fmt.Errorf("failed to set report permissions: %w", err)
	}
	return path, nil
}
