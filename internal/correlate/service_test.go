package correlate

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/linnemanlabs/vendorwatch/internal/automation"
	"github.com/linnemanlabs/vendorwatch/internal/incident"
	"github.com/linnemanlabs/vendorwatch/internal/monitoring"
	"github.com/linnemanlabs/vendorwatch/internal/notify"
	"github.com/linnemanlabs/vendorwatch/internal/store/memstore"
	"github.com/linnemanlabs/vendorwatch/internal/tracking"
	"github.com/linnemanlabs/vendorwatch/internal/vendor"
)

// recordingChannel captures alerts so scans can be asserted end to end.
type recordingChannel struct {
	sent []*notify.Alert
}

func (c *recordingChannel) Name() string { return "in_app" }

func (c *recordingChannel) Send(_ context.Context, a *notify.Alert) error {
	c.sent = append(c.sent, a)
	return nil
}

func newTestService(s *memstore.Store, d *automation.Dispatcher) *Service {
	return NewService(s.Incidents(), s.Trackings(), s, s, NewCorrelator(nil, 2), d, nil, nil)
}

func TestUpsertIncidentValidation(t *testing.T) {
	t.Parallel()
	svc := newTestService(memstore.New(), nil)
	ctx := context.Background()

	_, _, err := svc.UpsertIncident(ctx, &incident.Incident{ExternalID: "EXT-1", Title: "x"})
	if !errors.Is(err, ErrValidation) {
		t.Errorf("UpsertIncident(no tenant) error = %v, want ErrValidation", err)
	}

	_, _, err = svc.UpsertIncident(ctx, &incident.Incident{TenantID: "t1", ExternalID: "EXT-1"})
	if !errors.Is(err, ErrValidation) {
		t.Errorf("UpsertIncident(no title) error = %v, want ErrValidation", err)
	}
}

func TestUpsertIncidentAppliesDefaults(t *testing.T) {
	t.Parallel()
	svc := newTestService(memstore.New(), nil)

	got, created, err := svc.UpsertIncident(context.Background(), &incident.Incident{
		TenantID:   "t1",
		ExternalID: "EXT-1",
		Title:      "suspicious advisory",
	})
	if err != nil {
		t.Fatalf("UpsertIncident() error = %v", err)
	}
	if !created {
		t.Error("created = false, want true")
	}
	if got.Severity != incident.SeverityMedium {
		t.Errorf("Severity = %q, want medium default", got.Severity)
	}
	if got.Kind != incident.KindVulnerability {
		t.Errorf("Kind = %q, want vulnerability default", got.Kind)
	}
	if got.Status != incident.StatusOpen {
		t.Errorf("Status = %q, want open default", got.Status)
	}
}

func TestReviewIncidentTransitions(t *testing.T) {
	t.Parallel()
	s := memstore.New()
	svc := newTestService(s, nil)
	ctx := context.Background()

	inc, _, err := svc.UpsertIncident(ctx, &incident.Incident{TenantID: "t1", ExternalID: "EXT-1", Title: "x"})
	if err != nil {
		t.Fatalf("UpsertIncident() error = %v", err)
	}

	got, err := svc.ReviewIncident(ctx, inc.ID, incident.StatusConfirmed)
	if err != nil {
		t.Fatalf("ReviewIncident(confirm) error = %v", err)
	}
	if got.Status != incident.StatusConfirmed {
		t.Errorf("Status = %q, want confirmed", got.Status)
	}

	if _, err := svc.ReviewIncident(ctx, inc.ID, incident.StatusOpen); !errors.Is(err, tracking.ErrInvalidTransition) {
		t.Errorf("ReviewIncident(confirmed -> open) error = %v, want ErrInvalidTransition", err)
	}

	if _, err := svc.ReviewIncident(ctx, "missing", incident.StatusConfirmed); !errors.Is(err, incident.ErrNotFound) {
		t.Errorf("ReviewIncident(missing) error = %v, want ErrNotFound", err)
	}
}

func TestScanAndCorrelateCreatesTrackings(t *testing.T) {
	t.Parallel()
	s := memstore.New()
	ch := &recordingChannel{}
	reg := notify.NewRegistry()
	reg.Register(ch)
	d := automation.NewDispatcher(s.Trackings(), nil, nil, nil, nil, reg, nil, nil, time.Second)
	svc := newTestService(s, d)
	ctx := context.Background()

	s.SetVendors("t1", []vendor.Vendor{
		{ID: "v1", TenantID: "t1", Name: "Initech"},
		{ID: "v2", TenantID: "t1", Name: "Umbrella Holdings"},
	})

	cfg := monitoring.Defaults("t1")
	cfg.AutoCreateTasks = false
	cfg.AlertChannels = []string{"in_app"}
	cfg.AlertRecipients = []string{"sec@t1.example"}
	s.PutConfig(cfg)

	inc, _, err := svc.UpsertIncident(ctx, &incident.Incident{
		TenantID:        "t1",
		ExternalID:      "CVE-2026-0001",
		Title:           "Critical vulnerability in Initech products",
		Severity:        incident.SeverityCritical,
		AffectedVendors: []string{"Initech"},
		PublishedAt:     time.Now().Add(-24 * time.Hour),
	})
	if err != nil {
		t.Fatalf("UpsertIncident() error = %v", err)
	}

	summary, err := svc.ScanAndCorrelate(ctx, "t1", 30)
	if err != nil {
		t.Fatalf("ScanAndCorrelate() error = %v", err)
	}
	if summary.IncidentsFound != 1 || summary.RecordsCreated != 1 {
		t.Fatalf("summary = %+v, want one incident, one record", summary)
	}
	if summary.Dispatched != 1 || summary.ActionsSucceeded != 1 {
		t.Errorf("summary = %+v, want one record dispatched with the alert fired", summary)
	}
	if len(ch.sent) != 1 {
		t.Fatalf("alerts sent = %d, want 1", len(ch.sent))
	}

	rec, ok, err := s.Trackings().GetByKey(ctx, "t1", "v1", inc.ID)
	if err != nil || !ok {
		t.Fatalf("GetByKey() = %v, %v, %v", rec, ok, err)
	}
	if rec.Method != "exact_name" || rec.Confidence != 1.0 {
		t.Errorf("record = method %q confidence %v, want exact_name 1.0", rec.Method, rec.Confidence)
	}
	if rec.Status != tracking.StatusActive || rec.RiskStatus != tracking.RiskPending {
		t.Errorf("record lifecycle = %s/%s, want active/pending", rec.Status, rec.RiskStatus)
	}
}

func TestScanAndCorrelateIdempotent(t *testing.T) {
	t.Parallel()
	s := memstore.New()
	svc := newTestService(s, nil)
	ctx := context.Background()

	s.SetVendors("t1", []vendor.Vendor{{ID: "v1", TenantID: "t1", Name: "Initech"}})
	if _, _, err := svc.UpsertIncident(ctx, &incident.Incident{
		TenantID:        "t1",
		ExternalID:      "CVE-2026-0001",
		Title:           "Initech advisory",
		AffectedVendors: []string{"Initech"},
		PublishedAt:     time.Now(),
	}); err != nil {
		t.Fatalf("UpsertIncident() error = %v", err)
	}

	first, err := svc.ScanAndCorrelate(ctx, "t1", 0)
	if err != nil {
		t.Fatalf("first ScanAndCorrelate() error = %v", err)
	}
	if first.RecordsCreated != 1 {
		t.Fatalf("first scan RecordsCreated = %d, want 1", first.RecordsCreated)
	}

	second, err := svc.ScanAndCorrelate(ctx, "t1", 0)
	if err != nil {
		t.Fatalf("second ScanAndCorrelate() error = %v", err)
	}
	if second.RecordsCreated != 0 {
		t.Errorf("second scan RecordsCreated = %d, want 0 (already correlated)", second.RecordsCreated)
	}
	if second.VendorsMatched != 1 {
		t.Errorf("second scan VendorsMatched = %d, want the match still counted", second.VendorsMatched)
	}
}

func TestScanSkipsIrrelevantIncidents(t *testing.T) {
	t.Parallel()
	s := memstore.New()
	svc := newTestService(s, nil)
	ctx := context.Background()

	s.SetVendors("t1", []vendor.Vendor{{ID: "v1", TenantID: "t1", Name: "Initech"}})

	cfg := monitoring.Defaults("t1")
	cfg.MinSeverity = incident.SeverityHigh
	s.PutConfig(cfg)

	if _, _, err := svc.UpsertIncident(ctx, &incident.Incident{
		TenantID:        "t1",
		ExternalID:      "CVE-2026-0002",
		Title:           "Low severity Initech issue",
		Severity:        incident.SeverityLow,
		AffectedVendors: []string{"Initech"},
		PublishedAt:     time.Now(),
	}); err != nil {
		t.Fatalf("UpsertIncident() error = %v", err)
	}

	summary, err := svc.ScanAndCorrelate(ctx, "t1", 0)
	if err != nil {
		t.Fatalf("ScanAndCorrelate() error = %v", err)
	}
	if summary.IncidentsSkipped != 1 || summary.RecordsCreated != 0 {
		t.Errorf("summary = %+v, want incident skipped below severity floor", summary)
	}
}

func TestScanDisabledTenant(t *testing.T) {
	t.Parallel()
	s := memstore.New()
	svc := newTestService(s, nil)
	ctx := context.Background()

	cfg := monitoring.Defaults("t1")
	cfg.Enabled = false
	s.PutConfig(cfg)

	if _, _, err := svc.UpsertIncident(ctx, &incident.Incident{
		TenantID: "t1", ExternalID: "EXT-1", Title: "x", PublishedAt: time.Now(),
	}); err != nil {
		t.Fatalf("UpsertIncident() error = %v", err)
	}

	summary, err := svc.ScanAndCorrelate(ctx, "t1", 0)
	if err != nil {
		t.Fatalf("ScanAndCorrelate() error = %v", err)
	}
	if summary.IncidentsFound != 0 {
		t.Errorf("summary = %+v, want nothing scanned for disabled tenant", summary)
	}
}

func TestScanHonorsMinConfidence(t *testing.T) {
	t.Parallel()
	s := memstore.New()
	svc := newTestService(s, nil)
	ctx := context.Background()

	s.SetVendors("t1", []vendor.Vendor{{ID: "v1", TenantID: "t1", Name: "Initech"}})

	cfg := monitoring.Defaults("t1")
	cfg.MinConfidence = 0.99
	s.PutConfig(cfg)

	// fuzzy-only match scores below the raised floor
	if _, _, err := svc.UpsertIncident(ctx, &incident.Incident{
		TenantID:        "t1",
		ExternalID:      "CVE-2026-0003",
		Title:           "Advisory",
		AffectedVendors: []string{"Inittech"},
		PublishedAt:     time.Now(),
	}); err != nil {
		t.Fatalf("UpsertIncident() error = %v", err)
	}

	summary, err := svc.ScanAndCorrelate(ctx, "t1", 0)
	if err != nil {
		t.Fatalf("ScanAndCorrelate() error = %v", err)
	}
	if summary.VendorsMatched != 0 || summary.RecordsCreated != 0 {
		t.Errorf("summary = %+v, want no match above confidence 0.99", summary)
	}
}

func TestScanBackfillsPendingAutomation(t *testing.T) {
	t.Parallel()
	s := memstore.New()
	ch := &recordingChannel{}
	reg := notify.NewRegistry()
	reg.Register(ch)
	d := automation.NewDispatcher(s.Trackings(), nil, nil, nil, nil, reg, nil, nil, time.Second)
	svc := newTestService(s, d)
	ctx := context.Background()

	s.SetVendors("t1", []vendor.Vendor{{ID: "v1", TenantID: "t1", Name: "Initech"}})

	cfg := monitoring.Defaults("t1")
	cfg.AutoCreateTasks = false
	cfg.AlertChannels = []string{"in_app"}
	cfg.AlertRecipients = []string{"sec@t1.example"}
	s.PutConfig(cfg)

	inc, _, err := svc.UpsertIncident(ctx, &incident.Incident{
		TenantID: "t1", ExternalID: "EXT-1", Title: "old breach", PublishedAt: time.Now().AddDate(0, 0, -200),
	})
	if err != nil {
		t.Fatalf("UpsertIncident() error = %v", err)
	}

	// record created by an earlier scan, alert never sent
	if err := s.Trackings().Create(ctx, &tracking.Record{
		ID: "tr-old", TenantID: "t1", VendorID: "v1", IncidentID: inc.ID,
		Status: tracking.StatusActive, RiskStatus: tracking.RiskPending,
	}); err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	summary, err := svc.ScanAndCorrelate(ctx, "t1", 30)
	if err != nil {
		t.Fatalf("ScanAndCorrelate() error = %v", err)
	}
	if summary.IncidentsFound != 0 {
		t.Fatalf("IncidentsFound = %d, want 0 (incident outside window)", summary.IncidentsFound)
	}
	if summary.Dispatched != 1 || summary.ActionsSucceeded != 1 {
		t.Errorf("summary = %+v, want pending record backfilled", summary)
	}
	if len(ch.sent) != 1 {
		t.Errorf("alerts sent = %d, want 1", len(ch.sent))
	}
}

func TestQualifyAndResolve(t *testing.T) {
	t.Parallel()
	s := memstore.New()
	svc := newTestService(s, nil)
	ctx := context.Background()

	if err := s.Trackings().Create(ctx, &tracking.Record{
		ID: "tr1", TenantID: "t1", VendorID: "v1", IncidentID: "i1",
		Status: tracking.StatusActive, RiskStatus: tracking.RiskPending,
	}); err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	rec, err := svc.QualifyRisk(ctx, "tr1", tracking.RiskAssessment{Summary: "contained"}, "medium")
	if err != nil {
		t.Fatalf("QualifyRisk() error = %v", err)
	}
	if rec.RiskStatus != tracking.RiskQualified || rec.RiskLevel != "medium" {
		t.Errorf("record = %s/%s, want qualified/medium", rec.RiskStatus, rec.RiskLevel)
	}

	rec, err = svc.ResolveTracking(ctx, "tr1", "remediated", "patched upstream")
	if err != nil {
		t.Fatalf("ResolveTracking() error = %v", err)
	}
	if rec.Status != tracking.StatusResolved {
		t.Errorf("Status = %q, want resolved", rec.Status)
	}

	if _, err := svc.ResolveTracking(ctx, "tr1", "remediated", ""); !errors.Is(err, tracking.ErrInvalidTransition) {
		t.Errorf("resolve twice error = %v, want ErrInvalidTransition", err)
	}
	if _, err := svc.QualifyRisk(ctx, "missing", tracking.RiskAssessment{}, "low"); !errors.Is(err, tracking.ErrNotFound) {
		t.Errorf("QualifyRisk(missing) error = %v, want ErrNotFound", err)
	}
	if _, err := svc.ResolveTracking(ctx, "missing", "remediated", ""); !errors.Is(err, tracking.ErrNotFound) {
		t.Errorf("ResolveTracking(missing) error = %v, want ErrNotFound", err)
	}
}
