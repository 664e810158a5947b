package history

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/spyglass-home/spyglass-core/internal/infrastructure/database"
	"github.com/spyglass-home/spyglass-core/internal/registry"
)

// Command dispatch statuses recorded against command_history rows.
const (
	StatusAccepted = "accepted"
	StatusFailed   = "failed"
)

// StateRecord is one persisted state-field transition.
type StateRecord struct {
	ID         int64
	Entity     registry.EntityID
	Field      string
	OldValue   string
	NewValue   string
	RecordedAt time.Time
}

// TriggerRecord is one persisted trigger evaluation that passed its
// filters, fired or suppressed.
type TriggerRecord struct {
	ID         int64
	TriggerID  string
	Entity     registry.EntityID
	Reasons    []string
	Confidence map[string]int
	Fired      bool
	Suppressed string
	RecordedAt time.Time
}

// CommandRecord is one persisted command dispatch outcome.
type CommandRecord struct {
	ID          int64
	Correlation string
	Entity      registry.EntityID
	Command     string
	Params      string
	Status      string
	ErrorCode   string
	RecordedAt  time.Time
}

// Query bounds a history listing.
type Query struct {
	// Server and Camera filter by device; empty server means all
	// devices, Camera is ignored unless HasCamera is set.
	Server    string
	Camera    int
	HasCamera bool

	// Limit caps the row count; zero applies DefaultLimit.
	Limit int
}

// DefaultLimit applies when a Query does not set its own.
const DefaultLimit = 100

// MaxLimit caps a caller-supplied limit.
const MaxLimit = 1000

// Repository persists the audit trail behind the history API: state
// transitions, trigger activity, and command outcomes. Live state never
// reads from here; the registry owns it.
type Repository struct {
	db *database.DB

	// now is replaceable for tests.
	now func() time.Time
}

// NewRepository creates a repository over an open database.
func NewRepository(db *database.DB) *Repository {
	return &Repository{db: db, now: time.Now}
}

// RecordStateChanges appends one row per change, in order, within a
// single transaction.
func (r *Repository) RecordStateChanges(ctx context.Context, changes []registry.Change) error {
	if len(changes) == 0 {
		return nil
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	stamp := r.timestamp()
	for _, c := range changes {
		_, err := tx.ExecContext(ctx,
			`INSERT INTO state_history (server_id, camera_num, field, old_value, new_value, recorded_at)
			 VALUES (?, ?, ?, ?, ?, ?)`,
			c.Entity.Server, c.Entity.Camera, c.Field, c.Old, c.New, stamp)
		if err != nil {
			return fmt.Errorf("recording state change: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing state changes: %w", err)
	}
	return nil
}

// RecordTrigger appends one trigger evaluation outcome.
func (r *Repository) RecordTrigger(ctx context.Context, rec TriggerRecord) error {
	confidence := ""
	if len(rec.Confidence) > 0 {
		raw, err := json.Marshal(rec.Confidence)
		if err != nil {
			return fmt.Errorf("encoding confidence: %w", err)
		}
		confidence = string(raw)
	}

	_, err := r.db.ExecContext(ctx,
		`INSERT INTO trigger_history (trigger_id, server_id, camera_num, reasons, confidence, fired, suppressed, recorded_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.TriggerID, rec.Entity.Server, rec.Entity.Camera,
		strings.Join(rec.Reasons, ","), confidence,
		boolToInt(rec.Fired), rec.Suppressed, r.timestamp())
	if err != nil {
		return fmt.Errorf("recording trigger activity: %w", err)
	}
	return nil
}

// RecordCommand appends one command dispatch outcome.
func (r *Repository) RecordCommand(ctx context.Context, rec CommandRecord) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO command_history (correlation, server_id, camera_num, command, params, status, error_code, recorded_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.Correlation, rec.Entity.Server, rec.Entity.Camera,
		rec.Command, rec.Params, rec.Status, rec.ErrorCode, r.timestamp())
	if err != nil {
		return fmt.Errorf("recording command: %w", err)
	}
	return nil
}

// StateChanges lists state transitions, newest first.
func (r *Repository) StateChanges(ctx context.Context, q Query) ([]StateRecord, error) {
	where, args := q.clauses()
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, server_id, camera_num, field, COALESCE(old_value, ''), new_value, recorded_at
		 FROM state_history`+where+` ORDER BY id DESC LIMIT ?`,
		append(args, q.limit())...)
	if err != nil {
		return nil, fmt.Errorf("querying state history: %w", err)
	}
	defer rows.Close()

	var records []StateRecord
	for rows.Next() {
		var rec StateRecord
		var stamp string
		err := rows.Scan(&rec.ID, &rec.Entity.Server, &rec.Entity.Camera,
			&rec.Field, &rec.OldValue, &rec.NewValue, &stamp)
		if err != nil {
			return nil, fmt.Errorf("scanning state history: %w", err)
		}
		rec.RecordedAt = parseTimestamp(stamp)
		records = append(records, rec)
	}
	return records, rows.Err()
}

// TriggerActivity lists trigger evaluations, newest first, optionally
// filtered to one trigger registration.
func (r *Repository) TriggerActivity(ctx context.Context, triggerID string, q Query) ([]TriggerRecord, error) {
	where, args := q.clauses()
	if triggerID != "" {
		if where == "" {
			where = " WHERE trigger_id = ?"
		} else {
			where += " AND trigger_id = ?"
		}
		args = append(args, triggerID)
	}

	rows, err := r.db.QueryContext(ctx,
		`SELECT id, trigger_id, server_id, camera_num, reasons, confidence, fired, suppressed, recorded_at
		 FROM trigger_history`+where+` ORDER BY id DESC LIMIT ?`,
		append(args, q.limit())...)
	if err != nil {
		return nil, fmt.Errorf("querying trigger history: %w", err)
	}
	defer rows.Close()

	var records []TriggerRecord
	for rows.Next() {
		var rec TriggerRecord
		var reasons, confidence, stamp string
		var fired int
		err := rows.Scan(&rec.ID, &rec.TriggerID, &rec.Entity.Server, &rec.Entity.Camera,
			&reasons, &confidence, &fired, &rec.Suppressed, &stamp)
		if err != nil {
			return nil, fmt.Errorf("scanning trigger history: %w", err)
		}
		if reasons != "" {
			rec.Reasons = strings.Split(reasons, ",")
		}
		if confidence != "" {
			if err := json.Unmarshal([]byte(confidence), &rec.Confidence); err != nil {
				return nil, fmt.Errorf("decoding confidence: %w", err)
			}
		}
		rec.Fired = fired != 0
		rec.RecordedAt = parseTimestamp(stamp)
		records = append(records, rec)
	}
	return records, rows.Err()
}

// Commands lists command outcomes, newest first.
func (r *Repository) Commands(ctx context.Context, q Query) ([]CommandRecord, error) {
	where, args := q.clauses()
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, correlation, server_id, camera_num, command, params, status, error_code, recorded_at
		 FROM command_history`+where+` ORDER BY id DESC LIMIT ?`,
		append(args, q.limit())...)
	if err != nil {
		return nil, fmt.Errorf("querying command history: %w", err)
	}
	defer rows.Close()

	var records []CommandRecord
	for rows.Next() {
		var rec CommandRecord
		var stamp string
		err := rows.Scan(&rec.ID, &rec.Correlation, &rec.Entity.Server, &rec.Entity.Camera,
			&rec.Command, &rec.Params, &rec.Status, &rec.ErrorCode, &stamp)
		if err != nil {
			return nil, fmt.Errorf("scanning command history: %w", err)
		}
		rec.RecordedAt = parseTimestamp(stamp)
		records = append(records, rec)
	}
	return records, rows.Err()
}

// Prune deletes rows older than the cutoff across all three tables and
// returns the total rows removed.
func (r *Repository) Prune(ctx context.Context, before time.Time) (int64, error) {
	cutoff := before.UTC().Format(time.RFC3339)

	var total int64
	for _, table := range []string{"state_history", "trigger_history", "command_history"} {
		res, err := r.db.ExecContext(ctx,
			"DELETE FROM "+table+" WHERE recorded_at < ?", cutoff)
		if err != nil {
			return total, fmt.Errorf("pruning %s: %w", table, err)
		}
		n, _ := res.RowsAffected()
		total += n
	}
	return total, nil
}

func (q Query) clauses() (string, []any) {
	var conds []string
	var args []any
	if q.Server != "" {
		conds = append(conds, "server_id = ?")
		args = append(args, q.Server)
		if q.HasCamera {
			conds = append(conds, "camera_num = ?")
			args = append(args, q.Camera)
		}
	}
	if len(conds) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(conds, " AND "), args
}

func (q Query) limit() int {
	switch {
	case q.Limit <= 0:
		return DefaultLimit
	case q.Limit > MaxLimit:
		return MaxLimit
	default:
		return q.Limit
	}
}

func (r *Repository) timestamp() string {
	return r.now().UTC().Format(time.RFC3339)
}

func parseTimestamp(s string) time.Time {
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}
	}
	return t
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
