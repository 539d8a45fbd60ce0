// Package conditions evaluates per-step execution conditions and
// sequence-level stop conditions. Everything here is pure: callers supply
// the evaluation instant and the lead signals.
package conditions

import (
	"time"

	"github.com/outflow-crm/outflow/internal/models"
)

// Outcome is the result of evaluating a step's conditions.
type Outcome int

const (
	// OutcomeProceed means the step executes now.
	OutcomeProceed Outcome = iota

	// OutcomeReschedule means the due time moves forward without the step
	// executing or advancing.
	OutcomeReschedule

	// OutcomeSkip means the step is marked done without executing and the
	// run advances.
	OutcomeSkip
)

// Decision is the outcome of Evaluate plus supporting detail.
type Decision struct {
	Outcome Outcome

	// Reason explains a skip or reschedule.
	Reason string

	// RescheduleTo is the corrected due time for OutcomeReschedule.
	RescheduleTo time.Time
}

// Input carries the signals Evaluate needs.
type Input struct {
	// Now is the evaluation instant.
	Now time.Time

	// HasReplied is whether the lead has inbound activity since enrollment.
	// The no-response condition deliberately measures from enrollment, not
	// from the previous step.
	HasReplied bool

	// Window is the business-hours window for only_business_hours steps.
	Window Window
}

// Evaluate decides whether a due step proceeds, is rescheduled, or is
// skipped. Scheduling constraints are checked before the no-response
// condition: a step that is both out-of-hours and already answered gets
// rescheduled first and skipped on the later evaluation.
func Evaluate(step models.Step, in Input) Decision {
	if step.Conditions.SkipWeekends {
		if shifted := NextWeekday(in.Now, in.Window.Location()); !shifted.Equal(in.Now) {
			return Decision{
				Outcome:      OutcomeReschedule,
				Reason:       "due time falls on a weekend",
				RescheduleTo: shifted,
			}
		}
	}

	if step.Conditions.OnlyBusinessHours && !in.Window.Contains(in.Now) {
		return Decision{
			Outcome:      OutcomeReschedule,
			Reason:       "outside business hours",
			RescheduleTo: in.Window.NextOpen(in.Now),
		}
	}

	if step.Conditions.OnlyIfNoResponse && in.HasReplied {
		return Decision{
			Outcome: OutcomeSkip,
			Reason:  "lead replied since enrollment",
		}
	}

	return Decision{Outcome: OutcomeProceed}
}

// EvaluateStop returns the first matching stop condition, if any.
// Conditions are orthogonal signals; any match stops the run.
func EvaluateStop(stopConditions []models.StopCondition, flags models.LeadFlags, hasReplied bool) (models.StopCondition, bool) {
	for _, sc := range stopConditions {
		switch sc {
		case models.StopConditionReplied:
			if hasReplied {
				return sc, true
			}
		case models.StopConditionMeetingScheduled:
			if flags.MeetingScheduled {
				return sc, true
			}
		case models.StopConditionUnsubscribed:
			if flags.Unsubscribed {
				return sc, true
			}
		case models.StopConditionDoNotContact:
			if flags.DoNotContact {
				return sc, true
			}
		case models.StopConditionConverted:
			if flags.Converted {
				return sc, true
			}
		}
	}
	return "", false
}

// NextDue computes a step's due time from a base instant, applying the
// step's scheduling constraints up front so the stored due time is already
// corrected and a tick is not wasted on an immediate reschedule.
func NextDue(step models.Step, from time.Time, window Window) time.Time {
	due := from.Add(step.Delay())

	if step.Conditions.SkipWeekends {
		due = NextWeekday(due, window.Location())
	}
	if step.Conditions.OnlyBusinessHours && !window.Contains(due) {
		due = window.NextOpen(due)
	}

	return due
}

// NextWeekday shifts an instant falling on Saturday or Sunday forward to
// the following Monday at the same time-of-day, in the given location.
// Weekday instants are returned unchanged.
func NextWeekday(t time.Time, loc *time.Location) time.Time {
	if loc == nil {
		loc = time.UTC
	}
	local := t.In(loc)
	switch local.Weekday() {
	case time.Saturday:
		return local.AddDate(0, 0, 2)
	case time.Sunday:
		return local.AddDate(0, 0, 1)
	default:
		return t
	}
}
