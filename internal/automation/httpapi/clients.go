package httpapi

import (
	"context"
	"fmt"
	"net/url"

	"github.com/linnemanlabs/vendorwatch/internal/automation"
)

// TaskClient implements automation.TaskAPI.
type TaskClient struct{ c *client }

// NewTaskClient builds a task API client.
func NewTaskClient(baseURL, token string) *TaskClient {
	return &TaskClient{c: newClient("task-api", baseURL, token)}
}

// CreateTask implements automation.TaskAPI.
func (t *TaskClient) CreateTask(ctx context.Context, req automation.TaskRequest) (string, error) {
	var resp struct {
		ID string `json:"id"`
	}
	if err := t.c.postJSON(ctx, "/api/v1/tasks", req, &resp); err != nil {
		return "", fmt.Errorf("task api: %w", err)
	}
	return resp.ID, nil
}

// AssessmentClient implements automation.AssessmentAPI.
type AssessmentClient struct{ c *client }

// NewAssessmentClient builds an assessment API client.
func NewAssessmentClient(baseURL, token string) *AssessmentClient {
	return &AssessmentClient{c: newClient("assessment-api", baseURL, token)}
}

// AssignAssessment implements automation.AssessmentAPI.
func (a *AssessmentClient) AssignAssessment(ctx context.Context, req automation.AssessmentRequest) (string, error) {
	var resp struct {
		AssignmentID string `json:"assignment_id"`
	}
	if err := a.c.postJSON(ctx, "/api/v1/assignments", req, &resp); err != nil {
		return "", fmt.Errorf("assessment api: %w", err)
	}
	return resp.AssignmentID, nil
}

// WorkflowClient implements automation.WorkflowAPI.
type WorkflowClient struct{ c *client }

// NewWorkflowClient builds a workflow API client.
func NewWorkflowClient(baseURL, token string) *WorkflowClient {
	return &WorkflowClient{c: newClient("workflow-api", baseURL, token)}
}

// StartWorkflow implements automation.WorkflowAPI.
func (w *WorkflowClient) StartWorkflow(ctx context.Context, workflowID, vendorID string) (string, error) {
	var resp struct {
		InstanceID string `json:"instance_id"`
	}
	payload := map[string]string{"workflow_id": workflowID, "vendor_id": vendorID}
	if err := w.c.postJSON(ctx, "/api/v1/workflow-instances", payload, &resp); err != nil {
		return "", fmt.Errorf("workflow api: %w", err)
	}
	return resp.InstanceID, nil
}

// DirectoryClient implements automation.RoleDirectory.
type DirectoryClient struct{ c *client }

// NewDirectoryClient builds a tenant directory client.
func NewDirectoryClient(baseURL, token string) *DirectoryClient {
	return &DirectoryClient{c: newClient("directory-api", baseURL, token)}
}

// FindByRole implements automation.RoleDirectory.
func (d *DirectoryClient) FindByRole(ctx context.Context, tenantID, role string) ([]automation.Member, error) {
	var resp struct {
		Members []automation.Member `json:"members"`
	}
	path := fmt.Sprintf("/api/v1/tenants/%s/members?role=%s", url.PathEscape(tenantID), url.QueryEscape(role))
	if err := d.c.getJSON(ctx, path, &resp); err != nil {
		return nil, fmt.Errorf("directory api: %w", err)
	}
	return resp.Members, nil
}
