package zencontrol

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nerrad567/zenbridge/internal/infrastructure/database"
)

// Recorder persists device snapshots and an append-only change history, so
// the bridge can restore its view of the network after a restart and answer
// trend queries.
type Recorder struct {
	db     *database.DB
	logger Logger
}

// HistoryEntry is one recorded state change.
type HistoryEntry struct {
	DeviceID   string         `json:"device_id"`
	Changed    map[string]any `json:"changed"`
	RecordedAt time.Time      `json:"recorded_at"`
}

// NewRecorder creates a recorder over an open database.
func NewRecorder(db *database.DB, logger Logger) *Recorder {
	return &Recorder{db: db, logger: orNoop(logger)}
}

// SaveSnapshot upserts a device's current state.
func (r *Recorder) SaveSnapshot(ctx context.Context, device Device, full map[string]any) error {
	state, err := json.Marshal(full)
	if err != nil {
		return fmt.Errorf("marshaling device state: %w", err)
	}

	_, err = r.db.ExecContext(ctx, `
		INSERT INTO device_snapshots (device_id, controller_uid, device_type, name, state, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(device_id) DO UPDATE SET
			controller_uid = excluded.controller_uid,
			device_type = excluded.device_type,
			name = excluded.name,
			state = excluded.state,
			updated_at = excluded.updated_at`,
		device.ID(), device.ControllerUID(), device.Type(), device.Name(),
		string(state), time.Now().UTC().Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("saving device snapshot: %w", err)
	}
	return nil
}

// AppendHistory records the changed keys of one state transition.
func (r *Recorder) AppendHistory(ctx context.Context, deviceID string, changed map[string]any) error {
	doc, err := json.Marshal(changed)
	if err != nil {
		return fmt.Errorf("marshaling change set: %w", err)
	}

	_, err = r.db.ExecContext(ctx, `
		INSERT INTO device_state_history (device_id, changed, recorded_at)
		VALUES (?, ?, ?)`,
		deviceID, string(doc), time.Now().UTC().Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("appending state history: %w", err)
	}
	return nil
}

// RecordChange persists both the snapshot and the history row for one
// effective state change. Failures are logged, not raised; persistence must
// never block or break event routing.
func (r *Recorder) RecordChange(ctx context.Context, device Device, changed, full map[string]any) {
	if err := r.SaveSnapshot(ctx, device, full); err != nil {
		r.logger.Error("snapshot save failed", "device_id", device.ID(), "error", err)
	}
	if err := r.AppendHistory(ctx, device.ID(), changed); err != nil {
		r.logger.Error("history append failed", "device_id", device.ID(), "error", err)
	}
}

// RecentHistory returns the most recent state changes for a device, newest
// first, capped at limit.
func (r *Recorder) RecentHistory(ctx context.Context, deviceID string, limit int) ([]HistoryEntry, error) {
	if limit <= 0 {
		limit = 50
	}

	rows, err := r.db.QueryContext(ctx, `
		SELECT device_id, changed, recorded_at
		FROM device_state_history
		WHERE device_id = ?
		ORDER BY recorded_at DESC, id DESC
		LIMIT ?`,
		deviceID, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("querying state history: %w", err)
	}
	defer rows.Close() //nolint:errcheck // Read-only iteration

	var entries []HistoryEntry
	for rows.Next() {
		var entry HistoryEntry
		var changed, recordedAt string
		if err := rows.Scan(&entry.DeviceID, &changed, &recordedAt); err != nil {
			return nil, fmt.Errorf("scanning history row: %w", err)
		}
		if err := json.Unmarshal([]byte(changed), &entry.Changed); err != nil {
			return nil, fmt.Errorf("decoding change set: %w", err)
		}
		entry.RecordedAt, _ = time.Parse(time.RFC3339, recordedAt)
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating history rows: %w", err)
	}
	return entries, nil
}
