// Package monitoring holds the per-tenant configuration that gates scanning
// and automation. The engine reads it; tenant administrators edit it
// elsewhere.
package monitoring

import (
	"context"
	"time"

	"github.com/linnemanlabs/vendorwatch/internal/incident"
)

// Config is one tenant's monitoring configuration.
type Config struct {
	TenantID string `json:"tenant_id" yaml:"tenant_id"`

	Enabled                 bool `json:"enabled" yaml:"enabled"`
	BreachMonitoringEnabled bool `json:"breach_monitoring_enabled" yaml:"breach_monitoring_enabled"`

	ScanInterval time.Duration `json:"scan_interval" yaml:"scan_interval"`

	// Relevance thresholds: incidents below both are skipped.
	MinSeverity incident.Severity `json:"min_severity" yaml:"min_severity"`
	MinScore    float64           `json:"min_score" yaml:"min_score"`

	// MinConfidence is the floor a match must clear to create a tracking
	// record.
	MinConfidence float64 `json:"min_confidence" yaml:"min_confidence"`

	AutoCreateTasks        bool `json:"auto_create_tasks" yaml:"auto_create_tasks"`
	AutoSendAlerts         bool `json:"auto_send_alerts" yaml:"auto_send_alerts"`
	AutoTriggerAssessments bool `json:"auto_trigger_assessments" yaml:"auto_trigger_assessments"`
	AutoStartWorkflows     bool `json:"auto_start_workflows" yaml:"auto_start_workflows"`

	DefaultAssessmentID string `json:"default_assessment_id,omitempty" yaml:"default_assessment_id"`
	DefaultWorkflowID   string `json:"default_workflow_id,omitempty" yaml:"default_workflow_id"`

	AlertChannels   []string `json:"alert_channels,omitempty" yaml:"alert_channels"`
	AlertRecipients []string `json:"alert_recipients,omitempty" yaml:"alert_recipients"`
}

// Defaults returns the configuration a tenant starts with.
func Defaults(tenantID string) *Config {
	return &Config{
		TenantID:                tenantID,
		Enabled:                 true,
		BreachMonitoringEnabled: true,
		ScanInterval:            24 * time.Hour,
		MinSeverity:             incident.SeverityLow,
		MinConfidence:           0.5,
		AutoCreateTasks:         true,
		AutoSendAlerts:          true,
		AlertChannels:           []string{"in_app"},
	}
}

// Relevant reports whether an incident clears the tenant's thresholds.
func (c *Config) Relevant(inc *incident.Incident) bool {
	if inc.Kind == incident.KindBreach && !c.BreachMonitoringEnabled {
		return false
	}
	if c.MinScore > 0 && inc.Score > 0 {
		return inc.Score >= c.MinScore
	}
	return inc.Severity.AtLeast(c.MinSeverity)
}

// Store reads tenant monitoring configuration. Implementations return
// Defaults for tenants with no stored configuration.
type Store interface {
	GetConfig(ctx context.Context, tenantID string) (*Config, error)
	ListTenants(ctx context.Context) ([]string, error)
}
