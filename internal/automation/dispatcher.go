package automation

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/linnemanlabs/go-core/log"
	"github.com/oklog/ulid/v2"

	"github.com/linnemanlabs/vendorwatch/internal/incident"
	"github.com/linnemanlabs/vendorwatch/internal/monitoring"
	"github.com/linnemanlabs/vendorwatch/internal/notify"
	"github.com/linnemanlabs/vendorwatch/internal/tracking"
	"github.com/linnemanlabs/vendorwatch/internal/vendor"
)

// Due-date policy for created side effects.
const (
	urgentTaskDue  = 3 * 24 * time.Hour
	defaultTaskDue = 7 * 24 * time.Hour
	assessmentDue  = 14 * 24 * time.Hour
)

// errConfigGap marks an action skipped because the tenant's setup is
// incomplete (no assignee, no default assessment). A gap is reported, not
// retried as a failure, and the claim is released so the action fires once
// the gap is fixed.
var errConfigGap = errors.New("configuration gap")

// Outcome summarizes one Dispatch call.
type Outcome struct {
	Succeeded []tracking.Action
	Skipped   []tracking.Action
	Failed    []tracking.Action
}

// Dispatcher runs the four automation actions for a tracking record.
type Dispatcher struct {
	store       tracking.Store
	tasks       TaskAPI
	assessments AssessmentAPI
	workflows   WorkflowAPI
	people      RoleDirectory
	channels    *notify.Registry
	metrics     *Metrics
	logger      log.Logger

	// timeout bounds each external side-effect call.
	timeout time.Duration
	now     func() time.Time
}

// NewDispatcher wires a dispatcher. metrics may be nil; logger may be nil.
func NewDispatcher(
	store tracking.Store,
	tasks TaskAPI,
	assessments AssessmentAPI,
	workflows WorkflowAPI,
	people RoleDirectory,
	channels *notify.Registry,
	metrics *Metrics,
	logger log.Logger,
	timeout time.Duration,
) *Dispatcher {
	if logger == nil {
		logger = log.Nop()
	}
	if channels == nil {
		channels = notify.NewRegistry()
	}
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Dispatcher{
		store:       store,
		tasks:       tasks,
		assessments: assessments,
		workflows:   workflows,
		people:      people,
		channels:    channels,
		metrics:     metrics,
		logger:      logger,
		timeout:     timeout,
		now:         time.Now,
	}
}

// Dispatch attempts every enabled, not-yet-fired action for the record. The
// four actions are independent: a failure or gap in one never prevents the
// others from running. Re-running Dispatch after a partial failure
// re-attempts only the actions whose flag is still false.
func (d *Dispatcher) Dispatch(ctx context.Context, rec *tracking.Record, cfg *monitoring.Config, inc *incident.Incident, vend vendor.Vendor) Outcome {
	L := d.logger.With("tracking_id", rec.ID, "tenant", rec.TenantID, "vendor", rec.VendorID)

	var out Outcome
	d.runAction(ctx, L, rec, tracking.ActionTask, cfg.AutoCreateTasks, &out, func(cctx context.Context) (string, error) {
		return d.createTask(cctx, rec, inc, vend)
	})
	d.runAction(ctx, L, rec, tracking.ActionAlert, cfg.AutoSendAlerts, &out, func(cctx context.Context) (string, error) {
		return d.sendAlert(cctx, rec, cfg, inc, vend)
	})
	d.runAction(ctx, L, rec, tracking.ActionAssessment, cfg.AutoTriggerAssessments, &out, func(cctx context.Context) (string, error) {
		return d.triggerAssessment(cctx, rec, cfg, vend)
	})
	d.runAction(ctx, L, rec, tracking.ActionWorkflow, cfg.AutoStartWorkflows, &out, func(cctx context.Context) (string, error) {
		return d.startWorkflow(cctx, cfg, vend)
	})
	return out
}

// runAction owns the idempotency protocol for one action: skip when the flag
// is already set, claim the flag with an atomic check-and-set, run the side
// effect under a timeout, and either record the side-effect id or release
// the claim.
func (d *Dispatcher) runAction(ctx context.Context, L log.Logger, rec *tracking.Record, action tracking.Action, enabled bool, out *Outcome, fn func(context.Context) (string, error)) {
	if !enabled || rec.Automation.Completed(action) {
		return
	}

	claimed, err := d.store.ClaimAutomation(ctx, rec.ID, action)
	if err != nil {
		L.Error(ctx, err, "automation claim failed", "action", string(action))
		out.Failed = append(out.Failed, action)
		d.observe(action, "failed")
		return
	}
	if !claimed {
		// another dispatcher got there first
		return
	}

	start := d.now()
	cctx, cancel := context.WithTimeout(ctx, d.timeout)
	sideEffectID, err := fn(cctx)
	cancel()
	if d.metrics != nil {
		d.metrics.ActionDuration.WithLabelValues(string(action)).Observe(d.now().Sub(start).Seconds())
	}

	switch {
	case errors.Is(err, errConfigGap):
		if relErr := d.store.ReleaseAutomation(ctx, rec.ID, action); relErr != nil {
			L.Error(ctx, relErr, "automation release failed", "action", string(action))
		}
		L.Warn(ctx, "automation skipped", "action", string(action), "reason", err.Error())
		out.Skipped = append(out.Skipped, action)
		d.observe(action, "skipped")

	case err != nil:
		if relErr := d.store.ReleaseAutomation(ctx, rec.ID, action); relErr != nil {
			L.Error(ctx, relErr, "automation release failed", "action", string(action))
		}
		L.Error(ctx, err, "automation action failed", "action", string(action))
		out.Failed = append(out.Failed, action)
		d.observe(action, "failed")

	default:
		if err := d.store.CompleteAutomation(ctx, rec.ID, action, sideEffectID); err != nil {
			// side effect fired; keep the flag set and log the id so the
			// reference can be restored manually
			L.Error(ctx, err, "automation complete failed", "action", string(action), "side_effect_id", sideEffectID)
		}
		rec.Automation.SetCompleted(action, sideEffectID)
		out.Succeeded = append(out.Succeeded, action)
		d.observe(action, "success")
	}
}

func (d *Dispatcher) observe(action tracking.Action, outcome string) {
	if d.metrics != nil {
		d.metrics.ActionsTotal.WithLabelValues(string(action), outcome).Inc()
	}
}

func (d *Dispatcher) createTask(ctx context.Context, rec *tracking.Record, inc *incident.Incident, vend vendor.Vendor) (string, error) {
	if d.tasks == nil {
		return "", fmt.Errorf("%w: no task service configured", errConfigGap)
	}

	assignee, err := d.resolveAssignee(ctx, rec.TenantID)
	if err != nil {
		return "", err
	}

	priority := taskPriority(inc.Severity)
	due := d.now().Add(defaultTaskDue)
	if priority == PriorityUrgent || priority == PriorityHigh {
		due = d.now().Add(urgentTaskDue)
	}

	return d.tasks.CreateTask(ctx, TaskRequest{
		TenantID:   rec.TenantID,
		AssigneeID: assignee.ID,
		Title:      fmt.Sprintf("Review security incident for %s: %s", vend.Name, inc.Title),
		Description: fmt.Sprintf(
			"Incident %s (%s, severity %s) was correlated to vendor %s with confidence %.2f (%s).",
			inc.ExternalID, inc.Kind, inc.Severity, vend.Name, rec.Confidence, rec.Method,
		),
		Priority:   priority,
		DueDate:    due,
		SourceType: SourceTypeTracking,
		SourceID:   rec.ID,
	})
}

func (d *Dispatcher) sendAlert(ctx context.Context, rec *tracking.Record, cfg *monitoring.Config, inc *incident.Incident, vend vendor.Vendor) (string, error) {
	recipients := cfg.AlertRecipients
	if len(recipients) == 0 {
		var err error
		recipients, err = d.defaultRecipients(ctx, rec.TenantID)
		if err != nil {
			return "", fmt.Errorf("resolve recipients: %w", err)
		}
	}

	channelNames := cfg.AlertChannels
	if len(channelNames) == 0 {
		channelNames = d.channels.Names()
	}
	if len(channelNames) == 0 {
		return "", fmt.Errorf("%w: no alert channels configured", errConfigGap)
	}

	alert := &notify.Alert{
		ID:         ulid.Make().String(),
		TenantID:   rec.TenantID,
		TrackingID: rec.ID,
		VendorName: vend.Name,
		Severity:   string(inc.Severity),
		Subject:    fmt.Sprintf("Security incident affecting %s", vend.Name),
		Body: fmt.Sprintf(
			"%s\n\n%s\n\nMatched by %s with confidence %.2f. Source: %s",
			inc.Title, inc.Description, rec.Method, rec.Confidence, inc.SourceURL,
		),
		Recipients: recipients,
		CreatedAt:  d.now(),
	}

	// fan out; one failing channel must not block the others, and one
	// success marks the alert sent
	var delivered bool
	var errs []error
	for _, name := range channelNames {
		ch, ok := d.channels.Get(name)
		if !ok {
			errs = append(errs, fmt.Errorf("unknown channel %q", name))
			continue
		}
		if err := ch.Send(ctx, alert); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", name, err))
			if d.metrics != nil {
				d.metrics.ChannelSends.WithLabelValues(name, "error").Inc()
			}
			continue
		}
		delivered = true
		if d.metrics != nil {
			d.metrics.ChannelSends.WithLabelValues(name, "success").Inc()
		}
	}

	if !delivered {
		return "", fmt.Errorf("all channels failed: %w", errors.Join(errs...))
	}
	return alert.ID, nil
}

func (d *Dispatcher) triggerAssessment(ctx context.Context, rec *tracking.Record, cfg *monitoring.Config, vend vendor.Vendor) (string, error) {
	if d.assessments == nil {
		return "", fmt.Errorf("%w: no assessment service configured", errConfigGap)
	}
	if cfg.DefaultAssessmentID == "" {
		return "", fmt.Errorf("%w: no default assessment configured", errConfigGap)
	}

	owner, err := d.resolveAssignee(ctx, rec.TenantID)
	if err != nil {
		return "", err
	}

	return d.assessments.AssignAssessment(ctx, AssessmentRequest{
		AssessmentID: cfg.DefaultAssessmentID,
		VendorID:     vend.ID,
		OwnerID:      owner.ID,
		DueDate:      d.now().Add(assessmentDue),
	})
}

func (d *Dispatcher) startWorkflow(ctx context.Context, cfg *monitoring.Config, vend vendor.Vendor) (string, error) {
	if d.workflows == nil {
		return "", fmt.Errorf("%w: no workflow service configured", errConfigGap)
	}
	if cfg.DefaultWorkflowID == "" {
		return "", fmt.Errorf("%w: no default workflow configured", errConfigGap)
	}
	return d.workflows.StartWorkflow(ctx, cfg.DefaultWorkflowID, vend.ID)
}

// resolveAssignee prefers a security reviewer and falls back to a tenant
// admin. Neither existing is a configuration gap, not an error.
func (d *Dispatcher) resolveAssignee(ctx context.Context, tenantID string) (Member, error) {
	if d.people == nil {
		return Member{}, fmt.Errorf("%w: no member directory configured", errConfigGap)
	}
	for _, role := range []string{RoleSecurityReviewer, RoleAdmin} {
		members, err := d.people.FindByRole(ctx, tenantID, role)
		if err != nil {
			return Member{}, fmt.Errorf("find %s: %w", role, err)
		}
		if len(members) > 0 {
			return members[0], nil
		}
	}
	return Member{}, fmt.Errorf("%w: no security reviewer or admin in tenant", errConfigGap)
}

// defaultRecipients is the fallback alert audience: all tenant admins and
// business reviewers with an email address.
func (d *Dispatcher) defaultRecipients(ctx context.Context, tenantID string) ([]string, error) {
	// No directory means no fallback audience; channels that carry their own
	// destination (webhooks, in-app) still deliver.
	if d.people == nil {
		return nil, nil
	}
	var recipients []string
	for _, role := range []string{RoleAdmin, RoleBusinessReviewer} {
		members, err := d.people.FindByRole(ctx, tenantID, role)
		if err != nil {
			return nil, fmt.Errorf("find %s: %w", role, err)
		}
		for _, m := range members {
			if m.Email != "" {
				recipients = append(recipients, m.Email)
			}
		}
	}
	return recipients, nil
}

func taskPriority(sev incident.Severity) string {
	switch sev {
	case incident.SeverityCritical:
		return PriorityUrgent
	case incident.SeverityHigh:
		return PriorityHigh
	default:
		return PriorityMedium
	}
}
