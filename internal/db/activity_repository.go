package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/outflow-crm/outflow/internal/models"
)

// Activity repository errors.
var (
	ErrInvalidActivity = errors.New("invalid activity")
)

// ActivityRepository records lead activity and answers the reply-signal
// queries the condition evaluator depends on.
type ActivityRepository struct {
	db *DB
}

// NewActivityRepository creates a new ActivityRepository.
func NewActivityRepository(db *DB) *ActivityRepository {
	return &ActivityRepository{db: db}
}

// Record inserts a new activity.
func (r *ActivityRepository) Record(ctx context.Context, activity *models.Activity) error {
	if err := activity.Validate(); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidActivity, err)
	}

	if activity.ID == "" {
		activity.ID = uuid.New().String()
	}
	if activity.Direction == "" {
		activity.Direction = models.ActivityDirectionOutbound
	}
	if activity.OccurredAt.IsZero() {
		activity.OccurredAt = time.Now().UTC()
	} else {
		activity.OccurredAt = activity.OccurredAt.UTC()
	}

	_, err := r.db.ExecContext(ctx, `
		INSERT INTO activities (id, lead_id, type, direction, description, occurred_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`,
		activity.ID,
		activity.LeadID,
		string(activity.Type),
		string(activity.Direction),
		nullString(activity.Description),
		activity.OccurredAt.Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("insert activity: %w", err)
	}

	return nil
}

// HasInboundSince reports whether the lead has any inbound reply activity
// at or after the given instant.
func (r *ActivityRepository) HasInboundSince(ctx context.Context, leadID string, since time.Time) (bool, error) {
	var n int
	err := r.db.QueryRowContext(ctx, `
		SELECT COUNT(1) FROM activities
		WHERE lead_id = ? AND direction = 'inbound' AND occurred_at >= ?
	`, leadID, since.UTC().Format(time.RFC3339Nano)).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("query inbound activity: %w", err)
	}
	return n > 0, nil
}

// ListByLead returns a lead's activities, oldest first.
func (r *ActivityRepository) ListByLead(ctx context.Context, leadID string, limit int) ([]*models.Activity, error) {
	if limit <= 0 {
		limit = 100
	}

	rows, err := r.db.QueryContext(ctx, `
		SELECT id, lead_id, type, direction, description, occurred_at
		FROM activities
		WHERE lead_id = ?
		ORDER BY occurred_at, id
		LIMIT ?
	`, leadID, limit)
	if err != nil {
		return nil, fmt.Errorf("query activities: %w", err)
	}
	defer rows.Close()

	var activities []*models.Activity
	for rows.Next() {
		var a models.Activity
		var actType, direction, occurredAt string
		var description sql.NullString
		if err := rows.Scan(&a.ID, &a.LeadID, &actType, &direction, &description, &occurredAt); err != nil {
			return nil, fmt.Errorf("scan activity: %w", err)
		}
		a.Type = models.ActivityType(actType)
		a.Direction = models.ActivityDirection(direction)
		if description.Valid {
			a.Description = description.String
		}
		a.OccurredAt = parseTime(occurredAt)
		activities = append(activities, &a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate activities: %w", err)
	}

	return activities, nil
}
