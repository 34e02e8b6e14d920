// Package report collects structured probe results for a whole run and
// renders them for the operator.
//
// The aggregator is append-only: once recorded, a result is never edited,
// only summarized. Summary figures are always derived from the full record
// set on demand so they cannot diverge from the underlying results.
package report

import (
	"log/slog"
	"math"
	"sync"
	"time"
)

// Result is one probe outcome. Append-only once recorded.
type Result struct {
	// Probe is the test-case identifier.
	Probe string `json:"probe"`

	// Passed is the boolean outcome.
	Passed bool `json:"passed"`

	// Message is the free-text detail (throughput figures, failure cause).
	Message string `json:"message,omitempty"`

	// Timestamp is the wall-clock time the result was recorded.
	Timestamp time.Time `json:"timestamp"`

	// Transport is the transport the session used (tcp or udp).
	Transport string `json:"transport"`
}

// Summary holds the derived statistics for a record set.
type Summary struct {
	Total  int     `json:"total"`
	Passed int     `json:"passed"`
	Failed int     `json:"failed"`
	Ratio  float64 `json:"ratio"` // success percentage; NaN when Total is 0
}

// Sink receives probe narration and results. It is passed explicitly into
// the orchestrator and every probe; NopSink satisfies tests that don't
// care about reporting.
type Sink interface {
	// Start announces that a probe began executing.
	Start(probe, description string)

	// Step records one phase of a probe's execution.
	Step(probe, msg string)

	// Record appends a final result. Implementations must never fail or
	// panic: a broken sink must not mask a real test failure.
	Record(res Result)
}

// NopSink discards everything.
type NopSink struct{}

func (NopSink) Start(string, string) {}
func (NopSink) Step(string, string)  {}
func (NopSink) Record(Result)        {}

// LogSink mirrors sink traffic to a logger before forwarding to the next
// sink. Used to give the operator live progress while the aggregator
// accumulates the structured record set.
type LogSink struct {
	Log  *slog.Logger
	Next Sink
}

func (s *LogSink) Start(probe, description string) {
	s.Log.Info("probe starting", "probe", probe, "description", description)
	s.Next.Start(probe, description)
}

func (s *LogSink) Step(probe, msg string) {
	s.Log.Info(msg, "probe", probe)
	s.Next.Step(probe, msg)
}

func (s *LogSink) Record(res Result) {
	status := "PASS"
	if !res.Passed {
		status = "FAIL"
	}
	s.Log.Info("probe finished", "probe", res.Probe, "status", status, "detail", res.Message)
	s.Next.Record(res)
}

// journalEntry preserves the interleaving of probe starts, steps, and
// results for the rendered report.
type journalEntry struct {
	kind        string // "start" | "step" | "result"
	probe       string
	description string
	msg         string
	result      Result
	at          time.Time
}

// Aggregator is the append-only result sink shared across every mount
// session in a run. Safe for concurrent use; recording never fails.
type Aggregator struct {
	mu      sync.Mutex
	results []Result
	journal []journalEntry
	now     func() time.Time
}

// NewAggregator creates an empty aggregator using the wall clock.
func NewAggregator() *Aggregator {
	return NewAggregatorWithClock(time.Now)
}

// NewAggregatorWithClock creates an aggregator with an injected clock so
// tests and golden files get deterministic journal timestamps.
func NewAggregatorWithClock(now func() time.Time) *Aggregator {
	return &Aggregator{now: now}
}

// Start implements Sink.
func (a *Aggregator) Start(probe, description string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.journal = append(a.journal, journalEntry{
		kind: "start", probe: probe, description: description, at: a.now(),
	})
}

// Step implements Sink.
func (a *Aggregator) Step(probe, msg string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.journal = append(a.journal, journalEntry{kind: "step", probe: probe, msg: msg, at: a.now()})
}

// Record implements Sink. Append-only, no failure mode.
func (a *Aggregator) Record(res Result) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.results = append(a.results, res)
	a.journal = append(a.journal, journalEntry{kind: "result", probe: res.Probe, result: res, at: res.Timestamp})
}

// Results returns a copy of the record set in recording order.
func (a *Aggregator) Results() []Result {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]Result, len(a.results))
	copy(out, a.results)
	return out
}

// Summary computes counts and the success ratio from the current record
// set. With no records the ratio is NaN rather than a division fault.
func (a *Aggregator) Summary() Summary {
	a.mu.Lock()
	defer a.mu.Unlock()

	s := Summary{Total: len(a.results)}
	for _, r := range a.results {
		if r.Passed {
			s.Passed++
		} else {
			s.Failed++
		}
	}
	if s.Total == 0 {
		s.Ratio = math.NaN()
	} else {
		s.Ratio = float64(s.Passed) / float64(s.Total) * 100
	}
	return s
}

var _ Sink = (*Aggregator)(nil)
var _ Sink = NopSink{}
var _ Sink = (*LogSink)(nil)
