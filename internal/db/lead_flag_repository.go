package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/outflow-crm/outflow/internal/models"
)

// LeadFlagRepository stores the lead-level signals consulted by stop
// conditions. The engine only reads flags; the surrounding product (or the
// CLI, for operators) writes them.
type LeadFlagRepository struct {
	db *DB
}

// NewLeadFlagRepository creates a new LeadFlagRepository.
func NewLeadFlagRepository(db *DB) *LeadFlagRepository {
	return &LeadFlagRepository{db: db}
}

// Get returns the flags for a lead. A lead with no row has all flags unset.
func (r *LeadFlagRepository) Get(ctx context.Context, leadID string) (models.LeadFlags, error) {
	var flags models.LeadFlags
	var unsubscribed, doNotContact, converted, meetingScheduled int

	err := r.db.QueryRowContext(ctx, `
		SELECT unsubscribed, do_not_contact, converted, meeting_scheduled
		FROM lead_flags WHERE lead_id = ?
	`, leadID).Scan(&unsubscribed, &doNotContact, &converted, &meetingScheduled)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return models.LeadFlags{}, nil
		}
		return models.LeadFlags{}, fmt.Errorf("query lead flags: %w", err)
	}

	flags.Unsubscribed = unsubscribed != 0
	flags.DoNotContact = doNotContact != 0
	flags.Converted = converted != 0
	flags.MeetingScheduled = meetingScheduled != 0
	return flags, nil
}

// Set upserts the full flag set for a lead.
func (r *LeadFlagRepository) Set(ctx context.Context, leadID string, flags models.LeadFlags) error {
	if leadID == "" {
		return fmt.Errorf("lead id is required")
	}

	_, err := r.db.ExecContext(ctx, `
		INSERT INTO lead_flags (lead_id, unsubscribed, do_not_contact, converted, meeting_scheduled, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(lead_id) DO UPDATE SET
			unsubscribed = excluded.unsubscribed,
			do_not_contact = excluded.do_not_contact,
			converted = excluded.converted,
			meeting_scheduled = excluded.meeting_scheduled,
			updated_at = excluded.updated_at
	`,
		leadID,
		boolToInt(flags.Unsubscribed),
		boolToInt(flags.DoNotContact),
		boolToInt(flags.Converted),
		boolToInt(flags.MeetingScheduled),
		time.Now().UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("upsert lead flags: %w", err)
	}
	return nil
}
