package db

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/outflow-crm/outflow/internal/models"
	sqlite "modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"
)

// Run repository errors.
var (
	ErrRunNotFound = errors.New("run not found")

	// ErrDuplicateActiveRun is returned when an insert would create a
	// second active or paused run for the same lead.
	ErrDuplicateActiveRun = errors.New("lead already has an active or paused run")

	// ErrVersionConflict is returned when an update loses the optimistic
	// concurrency race. Callers treat it as benign and re-read.
	ErrVersionConflict = errors.New("run version conflict")
)

// RunRepository handles run persistence. Run rows are the only shared
// mutable state in the engine; all mutation goes through Update's
// compare-and-swap on the version column.
type RunRepository struct {
	db *DB
}

// NewRunRepository creates a new RunRepository.
func NewRunRepository(db *DB) *RunRepository {
	return &RunRepository{db: db}
}

const runColumns = `id, lead_id, sequence_id, current_step, status, next_due_at,
	steps_json, stop_conditions_json, steps_completed_json, pending_json,
	attempt_count, stopped_reason, enrolled_at, completed_at, version, updated_at`

// Create inserts a new run. The partial unique index on (lead_id) for
// live statuses makes concurrent enrollments of the same lead race safely:
// the loser gets ErrDuplicateActiveRun.
func (r *RunRepository) Create(ctx context.Context, run *models.Run) error {
	if err := run.Validate(); err != nil {
		return err
	}

	if run.ID == "" {
		run.ID = uuid.New().String()
	}
	now := time.Now().UTC()
	if run.EnrolledAt.IsZero() {
		run.EnrolledAt = now
	}
	if run.Version == 0 {
		run.Version = 1
	}
	run.UpdatedAt = now

	stepsJSON, err := json.Marshal(run.Steps)
	if err != nil {
		return fmt.Errorf("marshal steps: %w", err)
	}
	stopJSON, err := marshalNullable(run.StopConditions)
	if err != nil {
		return fmt.Errorf("marshal stop conditions: %w", err)
	}
	completedJSON, err := marshalNullable(run.StepsCompleted)
	if err != nil {
		return fmt.Errorf("marshal steps completed: %w", err)
	}
	pendingJSON, err := marshalNullable(run.Pending)
	if err != nil {
		return fmt.Errorf("marshal pending step: %w", err)
	}

	_, err = r.db.ExecContext(ctx, `
		INSERT INTO runs (
			id, lead_id, sequence_id, current_step, status, next_due_at,
			steps_json, stop_conditions_json, steps_completed_json, pending_json,
			attempt_count, stopped_reason, enrolled_at, completed_at, version, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		run.ID,
		run.LeadID,
		run.SequenceID,
		run.CurrentStep,
		string(run.Status),
		formatNullableTime(run.NextDueAt),
		string(stepsJSON),
		stopJSON,
		completedJSON,
		pendingJSON,
		run.AttemptCount,
		nullString(run.StoppedReason),
		run.EnrolledAt.Format(time.RFC3339Nano),
		formatNullableTime(run.CompletedAt),
		run.Version,
		run.UpdatedAt.Format(time.RFC3339Nano),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrDuplicateActiveRun
		}
		return fmt.Errorf("insert run: %w", err)
	}

	return nil
}

// Get retrieves a run by ID.
func (r *RunRepository) Get(ctx context.Context, id string) (*models.Run, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT `+runColumns+` FROM runs WHERE id = ?
	`, id)

	run, err := scanRunRow(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrRunNotFound
		}
		return nil, err
	}
	return run, nil
}

// GetActiveOrPausedByLead returns the lead's live run, if any.
func (r *RunRepository) GetActiveOrPausedByLead(ctx context.Context, leadID string) (*models.Run, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT `+runColumns+` FROM runs
		WHERE lead_id = ? AND status IN ('active', 'paused')
	`, leadID)

	run, err := scanRunRow(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrRunNotFound
		}
		return nil, err
	}
	return run, nil
}

// FindActiveDueBefore returns active runs whose due time is at or before ts,
// oldest due first, capped at limit.
func (r *RunRepository) FindActiveDueBefore(ctx context.Context, ts time.Time, limit int) ([]*models.Run, error) {
	if limit <= 0 {
		limit = 100
	}

	rows, err := r.db.QueryContext(ctx, `
		SELECT `+runColumns+` FROM runs
		WHERE status = 'active' AND next_due_at IS NOT NULL AND next_due_at <= ?
		ORDER BY next_due_at, id
		LIMIT ?
	`, ts.UTC().Format(time.RFC3339Nano), limit)
	if err != nil {
		return nil, fmt.Errorf("query due runs: %w", err)
	}
	defer rows.Close()

	return collectRuns(rows)
}

// ListFilter selects runs for List. Zero values mean no filter.
type ListFilter struct {
	LeadID         string
	SequenceID     string
	Status         models.RunStatus
	NeedsAttention bool
	Limit          int
}

// List returns runs matching the filter, newest enrollment first.
func (r *RunRepository) List(ctx context.Context, filter ListFilter) ([]*models.Run, error) {
	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}

	query := `SELECT ` + runColumns + ` FROM runs WHERE 1=1`
	args := []any{}

	if filter.LeadID != "" {
		query += ` AND lead_id = ?`
		args = append(args, filter.LeadID)
	}
	if filter.SequenceID != "" {
		query += ` AND sequence_id = ?`
		args = append(args, filter.SequenceID)
	}
	if filter.Status != "" {
		query += ` AND status = ?`
		args = append(args, string(filter.Status))
	}
	if filter.NeedsAttention {
		query += ` AND stopped_reason = ?`
		args = append(args, models.StoppedReasonExecutionFailedExhausted)
	}

	query += ` ORDER BY enrolled_at DESC, id LIMIT ?`
	args = append(args, limit)

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query runs: %w", err)
	}
	defer rows.Close()

	return collectRuns(rows)
}

// Update writes the run back if and only if the stored version still equals
// expectedVersion. On success the run's version is incremented in place.
// Losing the race returns ErrVersionConflict; the caller re-reads and
// decides whether to retry or abort.
func (r *RunRepository) Update(ctx context.Context, run *models.Run, expectedVersion int) error {
	if err := run.Validate(); err != nil {
		return err
	}

	completedJSON, err := marshalNullable(run.StepsCompleted)
	if err != nil {
		return fmt.Errorf("marshal steps completed: %w", err)
	}
	pendingJSON, err := marshalNullable(run.Pending)
	if err != nil {
		return fmt.Errorf("marshal pending step: %w", err)
	}

	now := time.Now().UTC()
	res, err := r.db.ExecContext(ctx, `
		UPDATE runs SET
			current_step = ?,
			status = ?,
			next_due_at = ?,
			steps_completed_json = ?,
			pending_json = ?,
			attempt_count = ?,
			stopped_reason = ?,
			completed_at = ?,
			version = version + 1,
			updated_at = ?
		WHERE id = ? AND version = ?
	`,
		run.CurrentStep,
		string(run.Status),
		formatNullableTime(run.NextDueAt),
		completedJSON,
		pendingJSON,
		run.AttemptCount,
		nullString(run.StoppedReason),
		formatNullableTime(run.CompletedAt),
		now.Format(time.RFC3339Nano),
		run.ID,
		expectedVersion,
	)
	if err != nil {
		return fmt.Errorf("update run: %w", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		// Either the run vanished or another writer won the race.
		// Distinguish for the caller.
		if _, getErr := r.Get(ctx, run.ID); getErr != nil {
			return getErr
		}
		return ErrVersionConflict
	}

	run.Version = expectedVersion + 1
	run.UpdatedAt = now
	return nil
}

func collectRuns(rows *sql.Rows) ([]*models.Run, error) {
	var runs []*models.Run
	for rows.Next() {
		run, err := scanRunRow(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, run)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate runs: %w", err)
	}
	return runs, nil
}

func scanRunRow(scanner rowScanner) (*models.Run, error) {
	var run models.Run
	var status, stepsJSON, enrolledAt, updatedAt string
	var nextDueAt, stopJSON, completedJSON, pendingJSON, stoppedReason, completedAt sql.NullString

	if err := scanner.Scan(
		&run.ID,
		&run.LeadID,
		&run.SequenceID,
		&run.CurrentStep,
		&status,
		&nextDueAt,
		&stepsJSON,
		&stopJSON,
		&completedJSON,
		&pendingJSON,
		&run.AttemptCount,
		&stoppedReason,
		&enrolledAt,
		&completedAt,
		&run.Version,
		&updatedAt,
	); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("scan run: %w", err)
	}

	run.Status = models.RunStatus(status)
	if err := json.Unmarshal([]byte(stepsJSON), &run.Steps); err != nil {
		return nil, fmt.Errorf("parse run steps: %w", err)
	}
	if stopJSON.Valid {
		if err := json.Unmarshal([]byte(stopJSON.String), &run.StopConditions); err != nil {
			return nil, fmt.Errorf("parse run stop conditions: %w", err)
		}
	}
	if completedJSON.Valid {
		if err := json.Unmarshal([]byte(completedJSON.String), &run.StepsCompleted); err != nil {
			return nil, fmt.Errorf("parse steps completed: %w", err)
		}
	}
	if pendingJSON.Valid {
		if err := json.Unmarshal([]byte(pendingJSON.String), &run.Pending); err != nil {
			return nil, fmt.Errorf("parse pending step: %w", err)
		}
	}
	if stoppedReason.Valid {
		run.StoppedReason = stoppedReason.String
	}
	run.NextDueAt = parseNullableTime(nextDueAt)
	run.CompletedAt = parseNullableTime(completedAt)
	run.EnrolledAt = parseTime(enrolledAt)
	run.UpdatedAt = parseTime(updatedAt)

	return &run, nil
}

func formatNullableTime(t *time.Time) *string {
	if t == nil {
		return nil
	}
	s := t.UTC().Format(time.RFC3339Nano)
	return &s
}

func parseNullableTime(s sql.NullString) *time.Time {
	if !s.Valid {
		return nil
	}
	t := parseTime(s.String)
	if t.IsZero() {
		return nil
	}
	return &t
}

func isUniqueViolation(err error) bool {
	var serr *sqlite.Error
	if errors.As(err, &serr) {
		code := serr.Code()
		return code == sqlite3.SQLITE_CONSTRAINT_UNIQUE || code == sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY
	}
	return false
}
