// Package automation performs the downstream side effects for new tracking
// records: task creation, alert delivery, assessment assignment, and
// workflow kickoff. Each action is idempotent and isolated; a failure in one
// never blocks the others.
package automation

import (
	"context"
	"time"
)

// SourceTypeTracking is the source tag stamped on side-effect entities so
// collaborators can trace them back to a tracking record.
const SourceTypeTracking = "vendor_security_tracking"

// Task priorities understood by the Task API.
const (
	PriorityUrgent = "urgent"
	PriorityHigh   = "high"
	PriorityMedium = "medium"
)

// Tenant roles used for assignee and recipient resolution.
const (
	RoleSecurityReviewer = "security_reviewer"
	RoleAdmin            = "admin"
	RoleBusinessReviewer = "business_reviewer"
)

// TaskRequest describes a review task to create.
type TaskRequest struct {
	TenantID    string    `json:"tenant_id"`
	AssigneeID  string    `json:"assignee_id"`
	Title       string    `json:"title"`
	Description string    `json:"description,omitempty"`
	Priority    string    `json:"priority"`
	DueDate     time.Time `json:"due_date"`
	SourceType  string    `json:"source_type"`
	SourceID    string    `json:"source_id"`
}

// TaskAPI creates review tasks in the external task system.
type TaskAPI interface {
	CreateTask(ctx context.Context, req TaskRequest) (taskID string, err error)
}

// AssessmentRequest links a vendor to an assessment.
type AssessmentRequest struct {
	AssessmentID string    `json:"assessment_id"`
	VendorID     string    `json:"vendor_id"`
	OwnerID      string    `json:"owner_id"`
	DueDate      time.Time `json:"due_date"`
}

// AssessmentAPI assigns assessments in the external assessment system.
type AssessmentAPI interface {
	AssignAssessment(ctx context.Context, req AssessmentRequest) (assignmentID string, err error)
}

// WorkflowAPI starts workflow instances in the external workflow system.
type WorkflowAPI interface {
	StartWorkflow(ctx context.Context, workflowID, vendorID string) (instanceID string, err error)
}

// Member is a tenant user as the directory sees them.
type Member struct {
	ID    string `json:"id"`
	Name  string `json:"name,omitempty"`
	Email string `json:"email,omitempty"`
	Role  string `json:"role"`
}

// RoleDirectory resolves tenant members by role, for assignee and alert
// recipient resolution.
type RoleDirectory interface {
	FindByRole(ctx context.Context, tenantID, role string) ([]Member, error)
}
