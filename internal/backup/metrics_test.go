package backup

import (
	"encoding/json"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetricsCollectorRecordAndSummarize(t *testing.T) {
	mc := NewMetricsCollector()
	mc.Record(OperationMetric{
		OperationID:     "op-1",
		Kind:            KindBackup,
		Database:        "appdb",
		Success:         true,
		SizeBytes:       1024,
		DurationSeconds: 2,
		Attempts:        1,
	})
	mc.Record(OperationMetric{
		OperationID:     "op-2",
		Kind:            KindRestore,
		Database:        "appdb",
		Success:         false,
		DurationSeconds: 1.5,
		Attempts:        3,
		Error:           "psql exited with status 3",
	})

	summary := mc.Summarize()
	assert.Equal(t, 2, summary.Total)
	assert.Equal(t, 1, summary.Succeeded)
	assert.Equal(t, 1, summary.Failed)
	assert.Equal(t, int64(1024), summary.TotalBytes)
	assert.InDelta(t, 3.5, summary.TotalSeconds, 1e-9)

	snapshot := mc.Snapshot()
	require.Len(t, snapshot, 2)
	assert.False(t, snapshot[0].RecordedAt.IsZero(), "recording stamps the time")
}

func TestMetricsCollectorSnapshotIsACopy(t *testing.T) {
	mc := NewMetricsCollector()
	mc.Record(OperationMetric{OperationID: "op-1"})

	snapshot := mc.Snapshot()
	snapshot[0].OperationID = "mutated"

	assert.Equal(t, "op-1", mc.Snapshot()[0].OperationID)
}

func TestMetricsCollectorConcurrentRecord(t *testing.T) {
	mc := NewMetricsCollector()
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			mc.Record(OperationMetric{Success: true, SizeBytes: 1})
		}()
	}
	wg.Wait()

	summary := mc.Summarize()
	assert.Equal(t, 50, summary.Total)
	assert.Equal(t, int64(50), summary.TotalBytes)
}

func TestMetricsReportJSON(t *testing.T) {
	mc := NewMetricsCollector()
	mc.Record(OperationMetric{OperationID: "op-1", Success: true, DurationSeconds: 2.5})

	data, err := mc.ReportJSON()
	require.NoError(t, err)
	assert.Contains(t, string(data), `"duration_seconds": 2.5`,
		"the report carries seconds, not nanosecond counts")

	var report struct {
		Summary    Summary           `json:"summary"`
		Operations []OperationMetric `json:"operations"`
	}
	require.NoError(t, json.Unmarshal(data, &report))
	assert.Equal(t, 1, report.Summary.Total)
	require.Len(t, report.Operations, 1)
	assert.Equal(t, "op-1", report.Operations[0].OperationID)
}
