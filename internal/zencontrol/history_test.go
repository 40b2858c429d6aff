package zencontrol

import (
	"context"
	"path/filepath"
	"testing"

	_ "github.com/nerrad567/zenbridge/migrations"

	"github.com/nerrad567/zenbridge/internal/infrastructure/database"
)

func newTestRecorder(t *testing.T) *Recorder {
	t.Helper()

	db, err := database.Open(database.Config{
		Path:        filepath.Join(t.TempDir(), "test.db"),
		WALMode:     true,
		BusyTimeout: 5,
	})
	if err != nil {
		t.Fatalf("opening test database: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	if err := db.Migrate(context.Background()); err != nil {
		t.Fatalf("running migrations: %v", err)
	}
	return NewRecorder(db, nil)
}

func TestRecorder_RecordChange(t *testing.T) {
	recorder := newTestRecorder(t)
	registry, _ := newTestRegistry()
	controller := registry.AddController("zc-1", "10.0.0.5", "")
	light := NewLight("light-1", "Hall Light", controller, false, nil, nil)

	ctx := context.Background()
	recorder.RecordChange(ctx, light, map[string]any{"state": "on"}, map[string]any{"state": "on", "brightness": 128})
	recorder.RecordChange(ctx, light, map[string]any{"brightness": 200}, map[string]any{"state": "on", "brightness": 200})

	entries, err := recorder.RecentHistory(ctx, "light-1", 10)
	if err != nil {
		t.Fatalf("RecentHistory() error = %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("history entries = %d, want 2", len(entries))
	}

	// Newest first.
	if entries[0].Changed["brightness"] != float64(200) {
		t.Errorf("newest entry = %v, want the brightness change", entries[0].Changed)
	}
	if entries[1].Changed["state"] != "on" {
		t.Errorf("oldest entry = %v, want the state change", entries[1].Changed)
	}
}

func TestRecorder_RecentHistoryLimit(t *testing.T) {
	recorder := newTestRecorder(t)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		if err := recorder.AppendHistory(ctx, "light-1", map[string]any{"brightness": i}); err != nil {
			t.Fatalf("AppendHistory() error = %v", err)
		}
	}

	entries, err := recorder.RecentHistory(ctx, "light-1", 3)
	if err != nil {
		t.Fatalf("RecentHistory() error = %v", err)
	}
	if len(entries) != 3 {
		t.Errorf("entries = %d, want limit 3", len(entries))
	}

	// Unknown devices return an empty history, not an error.
	entries, err = recorder.RecentHistory(ctx, "ghost", 10)
	if err != nil {
		t.Fatalf("RecentHistory(ghost) error = %v", err)
	}
	if len(entries) != 0 {
		t.Errorf("entries for unknown device = %d, want 0", len(entries))
	}
}

func TestRecorder_SnapshotUpsert(t *testing.T) {
	recorder := newTestRecorder(t)
	registry, _ := newTestRegistry()
	controller := registry.AddController("zc-1", "10.0.0.5", "")
	light := NewLight("light-1", "Hall Light", controller, false, nil, nil)

	ctx := context.Background()
	if err := recorder.SaveSnapshot(ctx, light, map[string]any{"state": "off"}); err != nil {
		t.Fatalf("SaveSnapshot() error = %v", err)
	}
	if err := recorder.SaveSnapshot(ctx, light, map[string]any{"state": "on"}); err != nil {
		t.Fatalf("second SaveSnapshot() error = %v", err)
	}

	var count int
	row := recorder.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM device_snapshots WHERE device_id = ?", "light-1")
	if err := row.Scan(&count); err != nil {
		t.Fatalf("counting snapshots: %v", err)
	}
	if count != 1 {
		t.Errorf("snapshot rows = %d, want upserted 1", count)
	}
}
