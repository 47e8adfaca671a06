// Package tracking defines the Tracking Record: the persisted correlation
// between one incident and one vendor within a tenant, carrying match
// confidence, lifecycle status, and automation state.
package tracking

import (
	"time"

	"github.com/linnemanlabs/vendorwatch/internal/match"
)

// Status tracks where a record is in its lifecycle. All statuses other than
// active are terminal.
type Status string

const (
	StatusActive        Status = "active"
	StatusResolved      Status = "resolved"
	StatusFalsePositive Status = "false_positive"
	StatusNotApplicable Status = "not_applicable"
)

// Terminal reports whether the status admits no further transitions.
func (s Status) Terminal() bool {
	return s == StatusResolved || s == StatusFalsePositive || s == StatusNotApplicable
}

// RiskStatus tracks human risk qualification, independent of resolution.
type RiskStatus string

const (
	RiskPending   RiskStatus = "pending"
	RiskQualified RiskStatus = "qualified"
)

// Action names one of the four automation side effects.
type Action string

const (
	ActionTask       Action = "task"
	ActionAlert      Action = "alert"
	ActionAssessment Action = "assessment"
	ActionWorkflow   Action = "workflow"
)

// Actions in dispatch order.
var Actions = []Action{ActionTask, ActionAlert, ActionAssessment, ActionWorkflow}

// AutomationState records which side effects have fired for a record. A flag,
// once true, is never cleared by automated processing; it references the
// created side-effect entity and prevents re-dispatch.
type AutomationState struct {
	TaskCreated bool   `json:"task_created"`
	TaskID      string `json:"task_id,omitempty"`

	AlertSent bool   `json:"alert_sent"`
	AlertID   string `json:"alert_id,omitempty"`

	AssessmentTriggered bool   `json:"assessment_triggered"`
	AssessmentID        string `json:"assessment_id,omitempty"`

	WorkflowTriggered bool   `json:"workflow_triggered"`
	WorkflowID        string `json:"workflow_id,omitempty"`
}

// Completed reports whether the given action has already fired.
func (a AutomationState) Completed(action Action) bool {
	switch action {
	case ActionTask:
		return a.TaskCreated
	case ActionAlert:
		return a.AlertSent
	case ActionAssessment:
		return a.AssessmentTriggered
	case ActionWorkflow:
		return a.WorkflowTriggered
	default:
		return false
	}
}

// Pending reports whether any action has yet to fire.
func (a AutomationState) Pending() bool {
	return !a.TaskCreated || !a.AlertSent || !a.AssessmentTriggered || !a.WorkflowTriggered
}

// SetCompleted marks an action as fired and records the side-effect entity id.
func (a *AutomationState) SetCompleted(action Action, sideEffectID string) {
	switch action {
	case ActionTask:
		a.TaskCreated = true
		a.TaskID = sideEffectID
	case ActionAlert:
		a.AlertSent = true
		a.AlertID = sideEffectID
	case ActionAssessment:
		a.AssessmentTriggered = true
		a.AssessmentID = sideEffectID
	case ActionWorkflow:
		a.WorkflowTriggered = true
		a.WorkflowID = sideEffectID
	}
}

// Resolution captures how and why a record left the active state.
type Resolution struct {
	Type       string    `json:"type"`
	Notes      string    `json:"notes,omitempty"`
	ResolvedAt time.Time `json:"resolved_at"`
}

// RiskAssessment is the structured payload attached by a risk qualification.
type RiskAssessment struct {
	Summary string            `json:"summary,omitempty"`
	Factors map[string]string `json:"factors,omitempty"`
}

// Record is the correlation result for one (tenant, vendor, incident) triple.
// That triple is unique: correlation is idempotent across repeated scans.
type Record struct {
	ID         string `json:"id"`
	TenantID   string `json:"tenant_id"`
	VendorID   string `json:"vendor_id"`
	IncidentID string `json:"incident_id"`

	Confidence float64      `json:"match_confidence"`
	Method     string       `json:"match_method"`
	Detail     match.Detail `json:"match_detail"`

	Status     Status          `json:"status"`
	RiskStatus RiskStatus      `json:"risk_qualification_status"`
	RiskLevel  string          `json:"risk_level,omitempty"`
	Risk       *RiskAssessment `json:"risk_assessment,omitempty"`
	Resolution *Resolution     `json:"resolution,omitempty"`

	Automation AutomationState `json:"automation"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at,omitempty"`
}
