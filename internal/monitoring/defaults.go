package monitoring

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/linnemanlabs/vendorwatch/internal/incident"
)

// defaultsFile is the on-disk shape of a tenant-defaults file: overrides
// applied on top of Defaults() for every tenant that has no stored config.
type defaultsFile struct {
	Defaults yamlConfig `yaml:"defaults"`
}

// yamlConfig mirrors Config with pointer fields so absent keys fall through
// to the built-in defaults.
type yamlConfig struct {
	Enabled                 *bool    `yaml:"enabled"`
	BreachMonitoringEnabled *bool    `yaml:"breach_monitoring_enabled"`
	ScanInterval            *string  `yaml:"scan_interval"`
	MinSeverity             *string  `yaml:"min_severity"`
	MinScore                *float64 `yaml:"min_score"`
	MinConfidence           *float64 `yaml:"min_confidence"`
	AutoCreateTasks         *bool    `yaml:"auto_create_tasks"`
	AutoSendAlerts          *bool    `yaml:"auto_send_alerts"`
	AutoTriggerAssessments  *bool    `yaml:"auto_trigger_assessments"`
	AutoStartWorkflows      *bool    `yaml:"auto_start_workflows"`
	DefaultAssessmentID     *string  `yaml:"default_assessment_id"`
	DefaultWorkflowID       *string  `yaml:"default_workflow_id"`
	AlertChannels           []string `yaml:"alert_channels"`
	AlertRecipients         []string `yaml:"alert_recipients"`
}

// LoadDefaults reads a YAML defaults file and returns a function producing
// per-tenant default configs with the file's overrides applied.
func LoadDefaults(path string) (func(tenantID string) (*Config, error), error) {
	data, err := os.ReadFile(path) //nolint:gosec // path is from trusted config, not user input
	if err != nil {
		return nil, fmt.Errorf("read defaults file: %w", err)
	}

	var f defaultsFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse defaults file: %w", err)
	}

	// validate eagerly so a bad file fails at startup, not mid-scan
	if _, err := applyOverrides(Defaults("probe"), f.Defaults); err != nil {
		return nil, err
	}

	return func(tenantID string) (*Config, error) {
		return applyOverrides(Defaults(tenantID), f.Defaults)
	}, nil
}

func applyOverrides(c *Config, o yamlConfig) (*Config, error) {
	if o.Enabled != nil {
		c.Enabled = *o.Enabled
	}
	if o.BreachMonitoringEnabled != nil {
		c.BreachMonitoringEnabled = *o.BreachMonitoringEnabled
	}
	if o.ScanInterval != nil {
		d, err := time.ParseDuration(*o.ScanInterval)
		if err != nil {
			return nil, fmt.Errorf("scan_interval: %w", err)
		}
		c.ScanInterval = d
	}
	if o.MinSeverity != nil {
		c.MinSeverity = incident.Severity(strings.ToLower(*o.MinSeverity))
		if c.MinSeverity.Rank() == 0 {
			return nil, fmt.Errorf("min_severity: unknown severity %q", *o.MinSeverity)
		}
	}
	if o.MinScore != nil {
		c.MinScore = *o.MinScore
	}
	if o.MinConfidence != nil {
		if *o.MinConfidence < 0 || *o.MinConfidence > 1 {
			return nil, fmt.Errorf("min_confidence: %v outside [0,1]", *o.MinConfidence)
		}
		c.MinConfidence = *o.MinConfidence
	}
	if o.AutoCreateTasks != nil {
		c.AutoCreateTasks = *o.AutoCreateTasks
	}
	if o.AutoSendAlerts != nil {
		c.AutoSendAlerts = *o.AutoSendAlerts
	}
	if o.AutoTriggerAssessments != nil {
		c.AutoTriggerAssessments = *o.AutoTriggerAssessments
	}
	if o.AutoStartWorkflows != nil {
		c.AutoStartWorkflows = *o.AutoStartWorkflows
	}
	if o.DefaultAssessmentID != nil {
		c.DefaultAssessmentID = *o.DefaultAssessmentID
	}
	if o.DefaultWorkflowID != nil {
		c.DefaultWorkflowID = *o.DefaultWorkflowID
	}
	if len(o.AlertChannels) > 0 {
		c.AlertChannels = o.AlertChannels
	}
	if len(o.AlertRecipients) > 0 {
		c.AlertRecipients = o.AlertRecipients
	}
	return c, nil
}
