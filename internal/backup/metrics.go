package backup

import (
	"encoding/json"
	"sync"
	"time"
)

// OperationMetric records the outcome of one finished operation. Durations
// are reported in seconds so the JSON report is readable without conversion.
type OperationMetric struct {
	OperationID     string        `json:"operation_id"`
	Kind            OperationKind `json:"kind"`
	Database        string        `json:"database"`
	Success         bool          `json:"success"`
	Status          string        `json:"status"`
	DurationSeconds float64       `json:"duration_seconds"`
	SizeBytes       int64         `json:"size_bytes,omitempty"`
	Attempts        int           `json:"attempts"`
	Error           string        `json:"error,omitempty"`
	RecordedAt      time.Time     `json:"recorded_at"`
}

// MetricsCollector accumulates per-operation outcomes in memory. It is safe
// for concurrent executors to share one collector.
type MetricsCollector struct {
	mu      sync.Mutex
	metrics []OperationMetric
}

// NewMetricsCollector creates an empty collector
func NewMetricsCollector() *MetricsCollector {
	return &MetricsCollector{}
}

// Record appends a finished operation's metric
func (mc *MetricsCollector) Record(metric OperationMetric) {
	metric.RecordedAt = time.Now().UTC()
	mc.mu.Lock()
	defer mc.mu.Unlock()
	mc.metrics = append(mc.metrics, metric)
}

// Snapshot returns a copy of all recorded metrics
func (mc *MetricsCollector) Snapshot() []OperationMetric {
	mc.mu.Lock()
	defer mc.mu.Unlock()
	out := make([]OperationMetric, len(mc.metrics))
	copy(out, mc.metrics)
	return out
}

// Summary aggregates the recorded metrics
type Summary struct {
	Total        int     `json:"total"`
	Succeeded    int     `json:"succeeded"`
	Failed       int     `json:"failed"`
	TotalBytes   int64   `json:"total_bytes"`
	TotalSeconds float64 `json:"total_seconds"`
}

// Summarize computes aggregate counters over all recorded metrics
func (mc *MetricsCollector) Summarize() Summary {
	mc.mu.Lock()
	defer mc.mu.Unlock()
	var s Summary
	for _, m := range mc.metrics {
		s.Total++
		if m.Success {
			s.Succeeded++
		} else {
			s.Failed++
		}
		s.TotalBytes += m.SizeBytes
		s.TotalSeconds += m.DurationSeconds
	}
	return s
}

// ReportJSON renders the metrics and summary as indented JSON
func (mc *MetricsCollector) ReportJSON() ([]byte, error) {
	report := struct {
		Summary    Summary           `json:"summary"`
		Operations []OperationMetric `json:"operations"`
	}{
		Summary:    mc.Summarize(),
		Operations: mc.Snapshot(),
	}
	return json.MarshalIndent(report, "", "  ")
}
