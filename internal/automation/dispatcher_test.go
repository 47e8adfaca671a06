package automation

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/linnemanlabs/vendorwatch/internal/incident"
	"github.com/linnemanlabs/vendorwatch/internal/monitoring"
	"github.com/linnemanlabs/vendorwatch/internal/notify"
	"github.com/linnemanlabs/vendorwatch/internal/store/memstore"
	"github.com/linnemanlabs/vendorwatch/internal/tracking"
	"github.com/linnemanlabs/vendorwatch/internal/vendor"
)

type fakeTasks struct {
	calls int
	err   error
}

func (f *fakeTasks) CreateTask(_ context.Context, req TaskRequest) (string, error) {
	f.calls++
	if f.err != nil {
		return "", f.err
	}
	return "TASK-1", nil
}

type fakeAssessments struct {
	calls int
}

func (f *fakeAssessments) AssignAssessment(_ context.Context, req AssessmentRequest) (string, error) {
	f.calls++
	return "ASSIGN-1", nil
}

type fakeWorkflows struct {
	calls int
}

func (f *fakeWorkflows) StartWorkflow(_ context.Context, workflowID, vendorID string) (string, error) {
	f.calls++
	return "WF-1", nil
}

type fakePeople struct {
	byRole map[string][]Member
}

func (f *fakePeople) FindByRole(_ context.Context, tenantID, role string) ([]Member, error) {
	return f.byRole[role], nil
}

type fakeChannel struct {
	name string
	sent []*notify.Alert
	err  error
}

func (f *fakeChannel) Name() string { return f.name }

func (f *fakeChannel) Send(_ context.Context, a *notify.Alert) error {
	if f.err != nil {
		return f.err
	}
	f.sent = append(f.sent, a)
	return nil
}

func seedRecord(t *testing.T, s *memstore.Store) *tracking.Record {
	t.Helper()
	rec := &tracking.Record{
		ID:         "tr1",
		TenantID:   "t1",
		VendorID:   "v1",
		IncidentID: "i1",
		Confidence: 0.95,
		Method:     "exact_name",
		Status:     tracking.StatusActive,
		RiskStatus: tracking.RiskPending,
	}
	if err := s.Trackings().Create(context.Background(), rec); err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	return rec
}

func testIncident() *incident.Incident {
	return &incident.Incident{
		ID:         "i1",
		TenantID:   "t1",
		ExternalID: "CVE-2026-0001",
		Title:      "Remote code execution",
		Severity:   incident.SeverityCritical,
	}
}

func fullConfig() *monitoring.Config {
	cfg := monitoring.Defaults("t1")
	cfg.AutoTriggerAssessments = true
	cfg.AutoStartWorkflows = true
	cfg.DefaultAssessmentID = "assess-1"
	cfg.DefaultWorkflowID = "wf-1"
	return cfg
}

func reviewers() *fakePeople {
	return &fakePeople{byRole: map[string][]Member{
		RoleSecurityReviewer: {{ID: "u1", Email: "sec@t1.example"}},
		RoleAdmin:            {{ID: "u2", Email: "admin@t1.example"}},
	}}
}

func TestDispatchAllActions(t *testing.T) {
	t.Parallel()
	s := memstore.New()
	rec := seedRecord(t, s)

	tasks := &fakeTasks{}
	assessments := &fakeAssessments{}
	workflows := &fakeWorkflows{}
	ch := &fakeChannel{name: "in_app"}
	reg := notify.NewRegistry()
	reg.Register(ch)

	d := NewDispatcher(s.Trackings(), tasks, assessments, workflows, reviewers(), reg, nil, nil, time.Second)

	cfg := fullConfig()
	cfg.AlertChannels = []string{"in_app"}
	out := d.Dispatch(context.Background(), rec, cfg, testIncident(), vendor.Vendor{ID: "v1", Name: "Initech"})

	if len(out.Succeeded) != 4 || len(out.Skipped) != 0 || len(out.Failed) != 0 {
		t.Fatalf("Dispatch() = %+v, want all four actions succeeded", out)
	}
	if tasks.calls != 1 || assessments.calls != 1 || workflows.calls != 1 || len(ch.sent) != 1 {
		t.Errorf("side effect calls = %d/%d/%d/%d, want 1 each", tasks.calls, assessments.calls, workflows.calls, len(ch.sent))
	}

	got, _, err := s.Trackings().Get(context.Background(), rec.ID)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if got.Automation.TaskID != "TASK-1" || got.Automation.AssessmentID != "ASSIGN-1" || got.Automation.WorkflowID != "WF-1" {
		t.Errorf("Automation = %+v, want side-effect ids recorded", got.Automation)
	}
	if got.Automation.AlertID == "" {
		t.Error("AlertID empty, want generated alert id")
	}
}

func TestDispatchIdempotent(t *testing.T) {
	t.Parallel()
	s := memstore.New()
	rec := seedRecord(t, s)

	tasks := &fakeTasks{}
	d := NewDispatcher(s.Trackings(), tasks, nil, nil, reviewers(), nil, nil, nil, time.Second)

	cfg := monitoring.Defaults("t1")
	cfg.AutoSendAlerts = false

	out := d.Dispatch(context.Background(), rec, cfg, testIncident(), vendor.Vendor{ID: "v1", Name: "Initech"})
	if len(out.Succeeded) != 1 {
		t.Fatalf("first Dispatch() = %+v, want task succeeded", out)
	}

	// second run sees the flag set and does nothing
	fresh, _, err := s.Trackings().Get(context.Background(), rec.ID)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	out = d.Dispatch(context.Background(), fresh, cfg, testIncident(), vendor.Vendor{ID: "v1", Name: "Initech"})
	if len(out.Succeeded) != 0 || len(out.Failed) != 0 {
		t.Errorf("second Dispatch() = %+v, want nothing re-fired", out)
	}
	if tasks.calls != 1 {
		t.Errorf("CreateTask calls = %d, want 1", tasks.calls)
	}
}

func TestDispatchReleasesClaimOnFailure(t *testing.T) {
	t.Parallel()
	s := memstore.New()
	rec := seedRecord(t, s)

	tasks := &fakeTasks{err: errors.New("task api down")}
	d := NewDispatcher(s.Trackings(), tasks, nil, nil, reviewers(), nil, nil, nil, time.Second)

	cfg := monitoring.Defaults("t1")
	cfg.AutoSendAlerts = false

	out := d.Dispatch(context.Background(), rec, cfg, testIncident(), vendor.Vendor{ID: "v1", Name: "Initech"})
	if len(out.Failed) != 1 || out.Failed[0] != tracking.ActionTask {
		t.Fatalf("Dispatch() = %+v, want task failed", out)
	}

	got, _, err := s.Trackings().Get(context.Background(), rec.ID)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if got.Automation.TaskCreated {
		t.Error("TaskCreated = true after failure, want claim released for retry")
	}

	// retry succeeds once the api recovers
	tasks.err = nil
	out = d.Dispatch(context.Background(), got, cfg, testIncident(), vendor.Vendor{ID: "v1", Name: "Initech"})
	if len(out.Succeeded) != 1 {
		t.Errorf("retry Dispatch() = %+v, want task succeeded", out)
	}
}

func TestDispatchConfigGapSkips(t *testing.T) {
	t.Parallel()
	s := memstore.New()
	rec := seedRecord(t, s)

	// no task service, no people directory configured
	d := NewDispatcher(s.Trackings(), nil, nil, nil, nil, nil, nil, nil, time.Second)

	cfg := monitoring.Defaults("t1")
	cfg.AutoSendAlerts = false

	out := d.Dispatch(context.Background(), rec, cfg, testIncident(), vendor.Vendor{ID: "v1", Name: "Initech"})
	if len(out.Skipped) != 1 || out.Skipped[0] != tracking.ActionTask {
		t.Fatalf("Dispatch() = %+v, want task skipped as config gap", out)
	}
	if len(out.Failed) != 0 {
		t.Errorf("Failed = %v, want config gap not counted as failure", out.Failed)
	}

	got, _, err := s.Trackings().Get(context.Background(), rec.ID)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if got.Automation.TaskCreated {
		t.Error("TaskCreated = true, want claim released so the action fires once configured")
	}
}

func TestDispatchDisabledActionsIgnored(t *testing.T) {
	t.Parallel()
	s := memstore.New()
	rec := seedRecord(t, s)

	tasks := &fakeTasks{}
	workflows := &fakeWorkflows{}
	d := NewDispatcher(s.Trackings(), tasks, nil, workflows, reviewers(), nil, nil, nil, time.Second)

	cfg := monitoring.Defaults("t1")
	cfg.AutoCreateTasks = false
	cfg.AutoSendAlerts = false
	cfg.AutoStartWorkflows = false

	out := d.Dispatch(context.Background(), rec, cfg, testIncident(), vendor.Vendor{ID: "v1", Name: "Initech"})
	if len(out.Succeeded)+len(out.Skipped)+len(out.Failed) != 0 {
		t.Errorf("Dispatch() = %+v, want disabled actions untouched", out)
	}
	if tasks.calls != 0 || workflows.calls != 0 {
		t.Errorf("calls = %d/%d, want none", tasks.calls, workflows.calls)
	}
}

func TestSendAlertOneChannelSuccessSuffices(t *testing.T) {
	t.Parallel()
	s := memstore.New()
	rec := seedRecord(t, s)

	broken := &fakeChannel{name: "slack", err: errors.New("webhook 500")}
	working := &fakeChannel{name: "in_app"}
	reg := notify.NewRegistry()
	reg.Register(broken)
	reg.Register(working)

	d := NewDispatcher(s.Trackings(), nil, nil, nil, nil, reg, nil, nil, time.Second)

	cfg := monitoring.Defaults("t1")
	cfg.AutoCreateTasks = false
	cfg.AlertChannels = []string{"slack", "in_app"}
	cfg.AlertRecipients = []string{"sec@t1.example"}

	out := d.Dispatch(context.Background(), rec, cfg, testIncident(), vendor.Vendor{ID: "v1", Name: "Initech"})
	if len(out.Succeeded) != 1 || out.Succeeded[0] != tracking.ActionAlert {
		t.Fatalf("Dispatch() = %+v, want alert succeeded via surviving channel", out)
	}
	if len(working.sent) != 1 {
		t.Fatalf("in_app sent = %d alerts, want 1", len(working.sent))
	}
	a := working.sent[0]
	if a.VendorName != "Initech" || a.TrackingID != rec.ID {
		t.Errorf("alert = %+v, want vendor and tracking fields set", a)
	}
	if len(a.Recipients) != 1 || a.Recipients[0] != "sec@t1.example" {
		t.Errorf("Recipients = %v, want configured recipients", a.Recipients)
	}
}

func TestSendAlertAllChannelsFail(t *testing.T) {
	t.Parallel()
	s := memstore.New()
	rec := seedRecord(t, s)

	broken := &fakeChannel{name: "slack", err: errors.New("webhook 500")}
	reg := notify.NewRegistry()
	reg.Register(broken)

	d := NewDispatcher(s.Trackings(), nil, nil, nil, nil, reg, nil, nil, time.Second)

	cfg := monitoring.Defaults("t1")
	cfg.AutoCreateTasks = false
	cfg.AlertChannels = []string{"slack"}
	cfg.AlertRecipients = []string{"sec@t1.example"}

	out := d.Dispatch(context.Background(), rec, cfg, testIncident(), vendor.Vendor{ID: "v1", Name: "Initech"})
	if len(out.Failed) != 1 || out.Failed[0] != tracking.ActionAlert {
		t.Fatalf("Dispatch() = %+v, want alert failed", out)
	}

	got, _, err := s.Trackings().Get(context.Background(), rec.ID)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if got.Automation.AlertSent {
		t.Error("AlertSent = true after total delivery failure, want claim released")
	}
}

func TestTaskPriorityFromSeverity(t *testing.T) {
	t.Parallel()
	tests := []struct {
		sev  incident.Severity
		want string
	}{
		{incident.SeverityCritical, PriorityUrgent},
		{incident.SeverityHigh, PriorityHigh},
		{incident.SeverityMedium, PriorityMedium},
		{incident.SeverityLow, PriorityMedium},
	}
	for _, tt := range tests {
		if got := taskPriority(tt.sev); got != tt.want {
			t.Errorf("taskPriority(%s) = %q, want %q", tt.sev, got, tt.want)
		}
	}
}

func TestResolveAssigneePrefersSecurityReviewer(t *testing.T) {
	t.Parallel()
	s := memstore.New()
	rec := seedRecord(t, s)

	tasks := &fakeTasks{}
	people := &fakePeople{byRole: map[string][]Member{
		RoleAdmin: {{ID: "admin-1", Email: "admin@t1.example"}},
	}}
	d := NewDispatcher(s.Trackings(), tasks, nil, nil, people, nil, nil, nil, time.Second)

	cfg := monitoring.Defaults("t1")
	cfg.AutoSendAlerts = false

	out := d.Dispatch(context.Background(), rec, cfg, testIncident(), vendor.Vendor{ID: "v1", Name: "Initech"})
	if len(out.Succeeded) != 1 {
		t.Fatalf("Dispatch() = %+v, want task created via admin fallback", out)
	}

	// an empty directory is a gap, not a failure
	s2 := memstore.New()
	rec2 := seedRecord(t, s2)
	d2 := NewDispatcher(s2.Trackings(), &fakeTasks{}, nil, nil, &fakePeople{byRole: map[string][]Member{}}, nil, nil, nil, time.Second)
	out = d2.Dispatch(context.Background(), rec2, cfg, testIncident(), vendor.Vendor{ID: "v1", Name: "Initech"})
	if len(out.Skipped) != 1 {
		t.Errorf("Dispatch() with empty directory = %+v, want skipped", out)
	}
}
