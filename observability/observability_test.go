package observability

import (
	"context"
	"database/sql"
	"testing"
	"time"

	_ "modernc.org/sqlite"
)

func setupObsDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		t.Fatal(err)
	}
	db.Exec("PRAGMA journal_mode=WAL")
	db.Exec("PRAGMA foreign_keys=ON")
	if err := Init(db); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func TestInit_CreatesAllTables(t *testing.T) {
	db := setupObsDB(t)
	tables := []string{
		"metrics_timeseries", "business_event_logs", "_observability_metadata",
	}
	for _, table := range tables {
		var count int
		db.QueryRow("SELECT COUNT(*) FROM sqlite_master WHERE type='table' AND name=?", table).Scan(&count)
		if count != 1 {
			t.Fatalf("table %s not found", table)
		}
	}
}

// --- MetricsManager ---

func TestMetricsManager_RecordAndQuery(t *testing.T) {
	db := setupObsDB(t)
	mm := NewMetricsManager(db, 100, time.Hour)

	mm.Record(&Metric{
		Name:      MetricBlobHandlesLive,
		Timestamp: time.Now(),
		Value:     7,
		Unit:      "count",
		Labels:    map[string]string{"host": "srv1"},
	})
	mm.RecordSimple(MetricGoroutinesCount, 10, "count")

	// Close flushes the buffer (single call, no defer to avoid double-close).
	mm.Close()

	// Re-create for query (Close stops the flush loop).
	mm2 := NewMetricsManager(db, 100, time.Hour)
	defer mm2.Close()

	metrics, err := mm2.Query(MetricBlobHandlesLive, nil, nil, 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(metrics) != 1 {
		t.Fatalf("blob_handles_live count: got %d", len(metrics))
	}
	if metrics[0].Value != 7 {
		t.Fatalf("value: got %f", metrics[0].Value)
	}
	if metrics[0].Labels["host"] != "srv1" {
		t.Fatalf("labels: got %v", metrics[0].Labels)
	}

	all, err := mm2.Query("", nil, nil, 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(all) != 2 {
		t.Fatalf("all metrics count: got %d", len(all))
	}
}

func TestMetricsManager_QueryWithTimeRange(t *testing.T) {
	db := setupObsDB(t)
	mm := NewMetricsManager(db, 100, time.Hour)

	now := time.Now()
	mm.Record(&Metric{Name: "m1", Timestamp: now.Add(-2 * time.Hour), Value: 1, Unit: "x"})
	mm.Record(&Metric{Name: "m1", Timestamp: now, Value: 2, Unit: "x"})
	mm.Close() // flushes

	// New manager for querying.
	mm2 := NewMetricsManager(db, 100, time.Hour)
	defer mm2.Close()

	start := now.Add(-time.Hour)
	metrics, err := mm2.Query("m1", &start, nil, 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(metrics) != 1 {
		t.Fatalf("time-filtered count: got %d", len(metrics))
	}
}

func TestMetricsManager_Cleanup(t *testing.T) {
	db := setupObsDB(t)
	mm := NewMetricsManager(db, 100, time.Hour)

	old := time.Now().Add(-40 * 24 * time.Hour)
	mm.Record(&Metric{Name: "old_metric", Timestamp: old, Value: 1, Unit: "x"})
	mm.Record(&Metric{Name: "new_metric", Timestamp: time.Now(), Value: 2, Unit: "x"})
	mm.Close() // flushes

	mm2 := NewMetricsManager(db, 100, time.Hour)
	defer mm2.Close()

	deleted, err := mm2.Cleanup(context.Background(), 30)
	if err != nil {
		t.Fatal(err)
	}
	if deleted != 1 {
		t.Fatalf("deleted: got %d", deleted)
	}
}

func TestMetricsManager_BufferFlushAtCapacity(t *testing.T) {
	db := setupObsDB(t)
	mm := NewMetricsManager(db, 2, time.Hour)
	defer mm.Close()

	mm.RecordSimple("a", 1, "count")
	mm.RecordSimple("b", 2, "count")

	// Buffer size 2 triggers a synchronous flush on the second Record.
	var count int
	db.QueryRow("SELECT COUNT(*) FROM metrics_timeseries").Scan(&count)
	if count != 2 {
		t.Fatalf("flushed rows: got %d", count)
	}
}

// --- EventLogger ---

func TestEventLogger_LogEvent(t *testing.T) {
	db := setupObsDB(t)
	el := NewEventLogger(db)

	el.LogEvent(context.Background(), BusinessEvent{
		EventType:   "slot_created",
		ServiceName: "galfo",
		EntityType:  "slot",
		EntityID:    "slot_1",
		Action:      "create",
		Success:     true,
	})

	var eventType, action string
	db.QueryRow("SELECT event_type, action FROM business_event_logs LIMIT 1").Scan(&eventType, &action)
	if eventType != "slot_created" {
		t.Fatalf("event_type: got %q", eventType)
	}
	if action != "create" {
		t.Fatalf("action: got %q", action)
	}
}

func TestEventLogger_WithIDGenerator(t *testing.T) {
	db := setupObsDB(t)
	gen := func() string { return "evt_custom" }
	el := NewEventLogger(db, WithEventIDGenerator(gen))

	el.LogEvent(context.Background(), BusinessEvent{
		EventType:   "test",
		ServiceName: "test",
		Action:      "test",
		Success:     true,
	})

	var eventID string
	db.QueryRow("SELECT event_id FROM business_event_logs LIMIT 1").Scan(&eventID)
	if eventID != "evt_custom" {
		t.Fatalf("custom event_id: got %q", eventID)
	}
}

// --- Retention Cleanup ---

func TestCleanup_Retention(t *testing.T) {
	db := setupObsDB(t)

	oldTs := time.Now().Add(-40 * 24 * time.Hour).Unix()
	db.Exec("INSERT INTO metrics_timeseries (metric_name, timestamp, value) VALUES ('m', ?, 1)", oldTs)
	db.Exec("INSERT INTO business_event_logs (event_id, event_type, service_name, action, success, created_at) VALUES ('e1', 'test', 'svc', 'act', 1, ?)", oldTs)

	err := Cleanup(context.Background(), db, RetentionConfig{
		EventLogsDays: 30,
		MetricsDays:   30,
	})
	if err != nil {
		t.Fatal(err)
	}

	var metricCount, eventCount int
	db.QueryRow("SELECT COUNT(*) FROM metrics_timeseries").Scan(&metricCount)
	db.QueryRow("SELECT COUNT(*) FROM business_event_logs").Scan(&eventCount)
	if metricCount != 0 {
		t.Fatalf("metrics_timeseries: got %d", metricCount)
	}
	if eventCount != 0 {
		t.Fatalf("business_event_logs: got %d", eventCount)
	}
}

func TestCleanup_SkipsZeroDays(t *testing.T) {
	db := setupObsDB(t)

	oldTs := time.Now().Add(-40 * 24 * time.Hour).Unix()
	db.Exec("INSERT INTO business_event_logs (event_id, event_type, service_name, action, success, created_at) VALUES ('e1', 'test', 'svc', 'act', 1, ?)", oldTs)

	err := Cleanup(context.Background(), db, RetentionConfig{
		EventLogsDays: 0, // disabled
	})
	if err != nil {
		t.Fatal(err)
	}

	var count int
	db.QueryRow("SELECT COUNT(*) FROM business_event_logs").Scan(&count)
	if count != 1 {
		t.Fatalf("should not clean when days=0: got %d", count)
	}
}
