package history

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/spyglass-home/spyglass-core/internal/infrastructure/database"
	"github.com/spyglass-home/spyglass-core/internal/registry"

	_ "github.com/spyglass-home/spyglass-core/migrations"
)

func testRepository(t *testing.T) *Repository {
	t.Helper()

	db, err := database.Open(database.Config{
		Path: filepath.Join(t.TempDir(), "history.db"),
	})
	if err != nil {
		t.Fatalf("opening database: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	if err := db.Migrate(t.Context()); err != nil {
		t.Fatalf("migrating: %v", err)
	}
	return NewRepository(db)
}

// === State History ===

func TestRecordAndListStateChanges(t *testing.T) {
	repo := testRepository(t)
	ctx := t.Context()

	changes := []registry.Change{
		{Entity: registry.ServerID("office"), Field: "state", Old: "preparing", New: "ready"},
		{Entity: registry.CameraID("office", 3), Field: "status", Old: "preparing", New: "active"},
		{Entity: registry.CameraID("office", 3), Field: "sensitivity", Old: "50", New: "75"},
	}
	if err := repo.RecordStateChanges(ctx, changes); err != nil {
		t.Fatalf("recording: %v", err)
	}

	records, err := repo.StateChanges(ctx, Query{})
	if err != nil {
		t.Fatalf("listing: %v", err)
	}
	if len(records) != 3 {
		t.Fatalf("got %d records, want 3", len(records))
	}

	// Newest first: the sensitivity change leads.
	if records[0].Field != "sensitivity" || records[0].NewValue != "75" {
		t.Errorf("latest record = %+v", records[0])
	}
	if records[2].Entity != registry.ServerID("office") {
		t.Errorf("oldest record entity = %+v", records[2].Entity)
	}
	if records[0].RecordedAt.IsZero() {
		t.Error("timestamp not recorded")
	}
}

func TestRecordStateChangesEmpty(t *testing.T) {
	repo := testRepository(t)
	if err := repo.RecordStateChanges(t.Context(), nil); err != nil {
		t.Fatalf("empty record errored: %v", err)
	}
}

func TestStateChangesDeviceFilter(t *testing.T) {
	repo := testRepository(t)
	ctx := t.Context()

	repo.RecordStateChanges(ctx, []registry.Change{
		{Entity: registry.CameraID("office", 1), Field: "motion", Old: "false", New: "true"},
		{Entity: registry.CameraID("office", 2), Field: "motion", Old: "false", New: "true"},
		{Entity: registry.CameraID("barn", 1), Field: "motion", Old: "false", New: "true"},
	})

	records, err := repo.StateChanges(ctx, Query{Server: "office", Camera: 1, HasCamera: true})
	if err != nil {
		t.Fatalf("listing: %v", err)
	}
	if len(records) != 1 || records[0].Entity != registry.CameraID("office", 1) {
		t.Errorf("filtered records = %+v", records)
	}

	records, _ = repo.StateChanges(ctx, Query{Server: "office"})
	if len(records) != 2 {
		t.Errorf("server filter returned %d records, want 2", len(records))
	}
}

func TestStateChangesLimit(t *testing.T) {
	repo := testRepository(t)
	ctx := t.Context()

	for i := 0; i < 5; i++ {
		repo.RecordStateChanges(ctx, []registry.Change{
			{Entity: registry.CameraID("office", i), Field: "motion", Old: "false", New: "true"},
		})
	}

	records, err := repo.StateChanges(ctx, Query{Limit: 2})
	if err != nil {
		t.Fatalf("listing: %v", err)
	}
	if len(records) != 2 {
		t.Errorf("got %d records, want 2", len(records))
	}
}

// === Trigger History ===

func TestRecordAndListTriggerActivity(t *testing.T) {
	repo := testRepository(t)
	ctx := t.Context()

	if err := repo.RecordTrigger(ctx, TriggerRecord{
		TriggerID: "front-door",
		Entity:    registry.CameraID("office", 3),
		Reasons:   []string{"motion", "human"},
		Fired:     true,
	}); err != nil {
		t.Fatalf("recording fired: %v", err)
	}
	if err := repo.RecordTrigger(ctx, TriggerRecord{
		TriggerID:  "front-door",
		Entity:     registry.CameraID("office", 3),
		Confidence: map[string]int{"human": 85, "vehicle": 5},
		Fired:      false,
		Suppressed: "throttled",
	}); err != nil {
		t.Fatalf("recording suppressed: %v", err)
	}

	records, err := repo.TriggerActivity(ctx, "front-door", Query{})
	if err != nil {
		t.Fatalf("listing: %v", err)
	}
	if len(records) != 2 {
		t.Fatalf("got %d records, want 2", len(records))
	}

	suppressed := records[0]
	if suppressed.Fired || suppressed.Suppressed != "throttled" {
		t.Errorf("suppressed record = %+v", suppressed)
	}
	if suppressed.Confidence["human"] != 85 {
		t.Errorf("confidence round trip = %v", suppressed.Confidence)
	}

	fired := records[1]
	if !fired.Fired || len(fired.Reasons) != 2 || fired.Reasons[1] != "human" {
		t.Errorf("fired record = %+v", fired)
	}
}

func TestTriggerActivityFiltersByTrigger(t *testing.T) {
	repo := testRepository(t)
	ctx := t.Context()

	repo.RecordTrigger(ctx, TriggerRecord{TriggerID: "a", Entity: registry.CameraID("office", 1), Fired: true})
	repo.RecordTrigger(ctx, TriggerRecord{TriggerID: "b", Entity: registry.CameraID("office", 1), Fired: true})

	records, err := repo.TriggerActivity(ctx, "a", Query{})
	if err != nil {
		t.Fatalf("listing: %v", err)
	}
	if len(records) != 1 || records[0].TriggerID != "a" {
		t.Errorf("records = %+v", records)
	}

	all, _ := repo.TriggerActivity(ctx, "", Query{})
	if len(all) != 2 {
		t.Errorf("unfiltered returned %d records, want 2", len(all))
	}
}

// === Command History ===

func TestRecordAndListCommands(t *testing.T) {
	repo := testRepository(t)
	ctx := t.Context()

	if err := repo.RecordCommand(ctx, CommandRecord{
		Correlation: "8400b2a0-0001-4000-8000-000000000001",
		Entity:      registry.CameraID("office", 3),
		Command:     "set-sensitivity",
		Params:      `{"sensitivity":80}`,
		Status:      StatusAccepted,
	}); err != nil {
		t.Fatalf("recording accepted: %v", err)
	}
	if err := repo.RecordCommand(ctx, CommandRecord{
		Correlation: "8400b2a0-0001-4000-8000-000000000002",
		Entity:      registry.CameraID("office", 4),
		Command:     "ptz-motion",
		Status:      StatusFailed,
		ErrorCode:   "validation",
	}); err != nil {
		t.Fatalf("recording failed: %v", err)
	}

	records, err := repo.Commands(ctx, Query{})
	if err != nil {
		t.Fatalf("listing: %v", err)
	}
	if len(records) != 2 {
		t.Fatalf("got %d records, want 2", len(records))
	}
	if records[0].Status != StatusFailed || records[0].ErrorCode != "validation" {
		t.Errorf("latest record = %+v", records[0])
	}
	if records[1].Params != `{"sensitivity":80}` {
		t.Errorf("params round trip = %q", records[1].Params)
	}
}

// === Pruning ===

func TestPrune(t *testing.T) {
	repo := testRepository(t)
	ctx := t.Context()

	old := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	repo.now = func() time.Time { return old }
	repo.RecordStateChanges(ctx, []registry.Change{
		{Entity: registry.ServerID("office"), Field: "state", Old: "preparing", New: "ready"},
	})
	repo.RecordTrigger(ctx, TriggerRecord{TriggerID: "t", Entity: registry.CameraID("office", 1), Fired: true})

	recent := time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)
	repo.now = func() time.Time { return recent }
	repo.RecordCommand(ctx, CommandRecord{
		Correlation: "c1", Entity: registry.CameraID("office", 1),
		Command: "trigger-recording", Status: StatusAccepted,
	})

	removed, err := repo.Prune(ctx, time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC))
	if err != nil {
		t.Fatalf("pruning: %v", err)
	}
	if removed != 2 {
		t.Errorf("pruned %d rows, want 2", removed)
	}

	commands, _ := repo.Commands(ctx, Query{})
	if len(commands) != 1 {
		t.Errorf("recent command pruned: %d remain", len(commands))
	}
	states, _ := repo.StateChanges(ctx, Query{})
	if len(states) != 0 {
		t.Errorf("old state rows survived: %d remain", len(states))
	}
}
