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
)

// Sequence repository errors.
var (
	ErrSequenceNotFound = errors.New("sequence not found")
)

// SequenceRepository handles sequence definition persistence.
type SequenceRepository struct {
	db *DB
}

// NewSequenceRepository creates a new SequenceRepository.
func NewSequenceRepository(db *DB) *SequenceRepository {
	return &SequenceRepository{db: db}
}

const sequenceColumns = `id, team_id, name, active, eligibility_tags_json,
	steps_json, stop_conditions_json, enrollment_count, created_at, updated_at`

// Create inserts a new sequence definition.
func (r *SequenceRepository) Create(ctx context.Context, seq *models.Sequence) error {
	if err := seq.Validate(); err != nil {
		return err
	}

	if seq.ID == "" {
		seq.ID = uuid.New().String()
	}
	now := time.Now().UTC()
	if seq.CreatedAt.IsZero() {
		seq.CreatedAt = now
	}
	seq.UpdatedAt = now

	tagsJSON, err := marshalNullable(seq.EligibilityTags)
	if err != nil {
		return fmt.Errorf("marshal eligibility tags: %w", err)
	}
	stepsJSON, err := json.Marshal(seq.Steps)
	if err != nil {
		return fmt.Errorf("marshal steps: %w", err)
	}
	stopJSON, err := marshalNullable(seq.StopConditions)
	if err != nil {
		return fmt.Errorf("marshal stop conditions: %w", err)
	}

	_, err = r.db.ExecContext(ctx, `
		INSERT INTO sequences (
			id, team_id, name, active, eligibility_tags_json,
			steps_json, stop_conditions_json, enrollment_count, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		seq.ID,
		seq.TeamID,
		seq.Name,
		boolToInt(seq.Active),
		tagsJSON,
		string(stepsJSON),
		stopJSON,
		seq.EnrollmentCount,
		seq.CreatedAt.Format(time.RFC3339Nano),
		seq.UpdatedAt.Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("insert sequence: %w", err)
	}

	return nil
}

// Get retrieves a sequence by ID.
func (r *SequenceRepository) Get(ctx context.Context, id string) (*models.Sequence, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT `+sequenceColumns+` FROM sequences WHERE id = ?
	`, id)
	return scanSequence(row)
}

// List returns all sequences in creation order.
func (r *SequenceRepository) List(ctx context.Context) ([]*models.Sequence, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+sequenceColumns+` FROM sequences ORDER BY created_at, id
	`)
	if err != nil {
		return nil, fmt.Errorf("query sequences: %w", err)
	}
	defer rows.Close()

	return collectSequences(rows)
}

// FindEligible returns active sequences for a team whose eligibility tags
// contain the given tag (or that carry no tags at all), in creation order.
// Tag matching happens in Go since tags are stored as JSON.
func (r *SequenceRepository) FindEligible(ctx context.Context, teamID, tag string) ([]*models.Sequence, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+sequenceColumns+`
		FROM sequences
		WHERE team_id = ? AND active = 1
		ORDER BY created_at, id
	`, teamID)
	if err != nil {
		return nil, fmt.Errorf("query eligible sequences: %w", err)
	}
	defer rows.Close()

	all, err := collectSequences(rows)
	if err != nil {
		return nil, err
	}

	var eligible []*models.Sequence
	for _, seq := range all {
		if seq.MatchesTag(tag) {
			eligible = append(eligible, seq)
		}
	}
	return eligible, nil
}

// Update rewrites a sequence definition. In-flight runs are unaffected
// since they carry their own step snapshot.
func (r *SequenceRepository) Update(ctx context.Context, seq *models.Sequence) error {
	if err := seq.Validate(); err != nil {
		return err
	}

	seq.UpdatedAt = time.Now().UTC()

	tagsJSON, err := marshalNullable(seq.EligibilityTags)
	if err != nil {
		return fmt.Errorf("marshal eligibility tags: %w", err)
	}
	stepsJSON, err := json.Marshal(seq.Steps)
	if err != nil {
		return fmt.Errorf("marshal steps: %w", err)
	}
	stopJSON, err := marshalNullable(seq.StopConditions)
	if err != nil {
		return fmt.Errorf("marshal stop conditions: %w", err)
	}

	res, err := r.db.ExecContext(ctx, `
		UPDATE sequences
		SET team_id = ?, name = ?, active = ?, eligibility_tags_json = ?,
			steps_json = ?, stop_conditions_json = ?, updated_at = ?
		WHERE id = ?
	`,
		seq.TeamID,
		seq.Name,
		boolToInt(seq.Active),
		tagsJSON,
		string(stepsJSON),
		stopJSON,
		seq.UpdatedAt.Format(time.RFC3339Nano),
		seq.ID,
	)
	if err != nil {
		return fmt.Errorf("update sequence: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return ErrSequenceNotFound
	}
	return nil
}

// SetActive flips the activation flag of a sequence.
func (r *SequenceRepository) SetActive(ctx context.Context, id string, active bool) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE sequences SET active = ?, updated_at = ? WHERE id = ?
	`, boolToInt(active), time.Now().UTC().Format(time.RFC3339Nano), id)
	if err != nil {
		return fmt.Errorf("update sequence active flag: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return ErrSequenceNotFound
	}
	return nil
}

// IncrementEnrollmentCount bumps the sequence's enrollment counter.
// Best-effort: callers log failures but do not fail enrollment on them.
func (r *SequenceRepository) IncrementEnrollmentCount(ctx context.Context, id string) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE sequences SET enrollment_count = enrollment_count + 1 WHERE id = ?
	`, id)
	if err != nil {
		return fmt.Errorf("increment enrollment count: %w", err)
	}
	return nil
}

func collectSequences(rows *sql.Rows) ([]*models.Sequence, error) {
	var sequences []*models.Sequence
	for rows.Next() {
		seq, err := scanSequenceFromRows(rows)
		if err != nil {
			return nil, err
		}
		sequences = append(sequences, seq)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate sequences: %w", err)
	}
	return sequences, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSequence(row *sql.Row) (*models.Sequence, error) {
	seq, err := scanSequenceRow(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrSequenceNotFound
		}
		return nil, err
	}
	return seq, nil
}

func scanSequenceFromRows(rows *sql.Rows) (*models.Sequence, error) {
	return scanSequenceRow(rows)
}

func scanSequenceRow(scanner rowScanner) (*models.Sequence, error) {
	var seq models.Sequence
	var active int
	var tagsJSON, stopJSON sql.NullString
	var stepsJSON, createdAt, updatedAt string

	if err := scanner.Scan(
		&seq.ID,
		&seq.TeamID,
		&seq.Name,
		&active,
		&tagsJSON,
		&stepsJSON,
		&stopJSON,
		&seq.EnrollmentCount,
		&createdAt,
		&updatedAt,
	); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("scan sequence: %w", err)
	}

	seq.Active = active != 0
	if tagsJSON.Valid {
		if err := json.Unmarshal([]byte(tagsJSON.String), &seq.EligibilityTags); err != nil {
			return nil, fmt.Errorf("parse eligibility tags: %w", err)
		}
	}
	if err := json.Unmarshal([]byte(stepsJSON), &seq.Steps); err != nil {
		return nil, fmt.Errorf("parse steps: %w", err)
	}
	if stopJSON.Valid {
		if err := json.Unmarshal([]byte(stopJSON.String), &seq.StopConditions); err != nil {
			return nil, fmt.Errorf("parse stop conditions: %w", err)
		}
	}
	seq.CreatedAt = parseTime(createdAt)
	seq.UpdatedAt = parseTime(updatedAt)

	return &seq, nil
}

func marshalNullable(v any) (*string, error) {
	if v == nil {
		return nil, nil
	}
	data, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	s := string(data)
	if s == "null" {
		return nil, nil
	}
	return &s, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func parseTime(s string) time.Time {
	if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
		return t
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t
	}
	return time.Time{}
}
