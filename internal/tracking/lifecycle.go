package tracking

import (
	"errors"
	"fmt"
	"time"
)

var (
	// ErrNotFound is returned by lifecycle operations for unknown record IDs.
	ErrNotFound = errors.New("tracking record not found")

	// ErrInvalidTransition is returned when a lifecycle action is not legal
	// from the record's current status.
	ErrInvalidTransition = errors.New("invalid tracking transition")

	// ErrAlreadyCorrelated is returned by Store.Create when a record for the
	// same (tenant, vendor, incident) already exists.
	ErrAlreadyCorrelated = errors.New("already correlated")
)

// resolutionStatus maps a human resolution type to the terminal status it
// produces.
var resolutionStatus = map[string]Status{
	"remediated":     StatusResolved,
	"accepted":       StatusResolved,
	"false_positive": StatusFalsePositive,
	"not_applicable": StatusNotApplicable,
}

// Resolve applies a human resolution action to the record. Only active
// records can be resolved; a second resolution attempt is an invalid
// transition, not a silent overwrite.
func (r *Record) Resolve(resolutionType, notes string, now time.Time) error {
	target, ok := resolutionStatus[resolutionType]
	if !ok {
		return fmt.Errorf("%w: unknown resolution type %q", ErrInvalidTransition, resolutionType)
	}
	if r.Status != StatusActive {
		return fmt.Errorf("%w: cannot resolve record in status %q", ErrInvalidTransition, r.Status)
	}

	r.Status = target
	r.Resolution = &Resolution{Type: resolutionType, Notes: notes, ResolvedAt: now}
	r.UpdatedAt = now
	return nil
}

// Qualify applies a human risk assessment. Qualification is independent of
// resolution: it neither requires nor implies it. Re-qualifying an already
// qualified record replaces the prior assessment.
func (r *Record) Qualify(assessment RiskAssessment, riskLevel string, now time.Time) error {
	if riskLevel == "" {
		return fmt.Errorf("%w: risk level is required", ErrInvalidTransition)
	}

	r.RiskStatus = RiskQualified
	r.RiskLevel = riskLevel
	r.Risk = &assessment
	r.UpdatedAt = now
	return nil
}
