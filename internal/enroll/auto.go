package enroll

import (
	"context"
	"errors"

	"github.com/outflow-crm/outflow/internal/db"
	"github.com/outflow-crm/outflow/internal/logging"
	"github.com/rs/zerolog"
)

// AutoEnroller enrolls newly-tagged leads into the first matching active
// sequence. It never displaces an existing enrollment.
type AutoEnroller struct {
	sequences *db.SequenceRepository
	service   *Service
	logger    zerolog.Logger
}

// NewAutoEnroller creates an AutoEnroller.
func NewAutoEnroller(sequences *db.SequenceRepository, service *Service) *AutoEnroller {
	return &AutoEnroller{
		sequences: sequences,
		service:   service,
		logger:    logging.Component("auto-enroll"),
	}
}

// OnLeadTagged finds the team's active sequences whose eligibility tags
// contain the given tag, in creation order, and enrolls the lead into the
// first match. A lead that already has a live run is left alone.
func (a *AutoEnroller) OnLeadTagged(ctx context.Context, leadID, tagID, teamID string) error {
	eligible, err := a.sequences.FindEligible(ctx, teamID, tagID)
	if err != nil {
		return err
	}
	if len(eligible) == 0 {
		a.logger.Debug().
			Str("lead_id", leadID).
			Str("tag", tagID).
			Msg("no eligible sequence for tag")
		return nil
	}

	seq := eligible[0]
	run, err := a.service.enroll(ctx, leadID, seq.ID, "auto")
	if err != nil {
		if errors.Is(err, ErrAlreadyEnrolled) {
			a.logger.Debug().
				Str("lead_id", leadID).
				Str("sequence_id", seq.ID).
				Msg("lead already enrolled, auto-enroll skipped")
			return nil
		}
		return err
	}

	a.logger.Info().
		Str("run_id", run.ID).
		Str("lead_id", leadID).
		Str("sequence_id", seq.ID).
		Str("tag", tagID).
		Msg("lead auto-enrolled")
	return nil
}
