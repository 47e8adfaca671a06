package correlate

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/linnemanlabs/go-core/log"
	"github.com/oklog/ulid/v2"

	"github.com/linnemanlabs/vendorwatch/internal/automation"
	"github.com/linnemanlabs/vendorwatch/internal/incident"
	"github.com/linnemanlabs/vendorwatch/internal/monitoring"
	"github.com/linnemanlabs/vendorwatch/internal/tracking"
	"github.com/linnemanlabs/vendorwatch/internal/vendor"
)

// ErrValidation marks caller errors (missing or malformed input) so the API
// layer can map them to 4xx responses.
var ErrValidation = errors.New("validation")

// defaultDaysBack bounds a scan when the caller passes no window.
const defaultDaysBack = 30

// defaultDispatchWorkers bounds concurrent automation dispatch. Dispatch is
// I/O-bound, so this pool is separate from the CPU-bound matching pool: a
// slow alert channel cannot stall matching or task creation for other
// records.
const defaultDispatchWorkers = 4

// ScanSummary is what a batch scan reports, even when individual items
// failed.
type ScanSummary struct {
	TenantID         string `json:"tenant_id"`
	IncidentsFound   int    `json:"incidents_found"`
	IncidentsSkipped int    `json:"incidents_skipped"`
	VendorsMatched   int    `json:"vendors_matched"`
	RecordsCreated   int    `json:"records_created"`
	Dispatched       int    `json:"dispatched"`
	ActionsSucceeded int    `json:"actions_succeeded"`
	ActionsSkipped   int    `json:"actions_skipped"`
	ActionsFailed    int    `json:"actions_failed"`
}

// Service is the engine's business boundary.
type Service struct {
	incidents  incident.Store
	trackings  tracking.Store
	vendors    vendor.Directory
	configs    monitoring.Store
	correlator *Correlator
	dispatcher *automation.Dispatcher
	metrics    *Metrics
	logger     log.Logger

	dispatchWorkers int
	now             func() time.Time
}

// NewService wires the correlation service. metrics may be nil.
func NewService(
	incidents incident.Store,
	trackings tracking.Store,
	vendors vendor.Directory,
	configs monitoring.Store,
	correlator *Correlator,
	dispatcher *automation.Dispatcher,
	metrics *Metrics,
	logger log.Logger,
) *Service {
	if logger == nil {
		logger = log.Nop()
	}
	return &Service{
		incidents:       incidents,
		trackings:       trackings,
		vendors:         vendors,
		configs:         configs,
		correlator:      correlator,
		dispatcher:      dispatcher,
		metrics:         metrics,
		logger:          logger,
		dispatchWorkers: defaultDispatchWorkers,
		now:             time.Now,
	}
}

// UpsertIncident ingests one normalized incident from the feed scanner,
// keyed on (tenant, external id): re-ingesting updates mutable fields
// instead of duplicating.
func (s *Service) UpsertIncident(ctx context.Context, inc *incident.Incident) (*incident.Incident, bool, error) {
	if inc.TenantID == "" || inc.ExternalID == "" {
		return nil, false, fmt.Errorf("%w: tenant id and external id are required", ErrValidation)
	}
	if inc.Title == "" {
		return nil, false, fmt.Errorf("%w: title is required", ErrValidation)
	}
	if inc.Severity.Rank() == 0 {
		inc.Severity = incident.SeverityMedium
	}
	if inc.Kind == "" {
		inc.Kind = incident.KindVulnerability
	}
	if inc.Status == "" {
		inc.Status = incident.StatusOpen
	}

	stored, created, err := s.incidents.Upsert(ctx, inc)
	if err != nil {
		return nil, false, fmt.Errorf("upsert incident: %w", err)
	}
	if s.metrics != nil {
		outcome := "updated"
		if created {
			outcome = "created"
		}
		s.metrics.IncidentsIngested.WithLabelValues(outcome).Inc()
	}
	return stored, created, nil
}

// ReviewIncident applies a human review action to an incident's lifecycle.
func (s *Service) ReviewIncident(ctx context.Context, id string, status incident.Status) (*incident.Incident, error) {
	inc, ok, err := s.incidents.Get(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get incident: %w", err)
	}
	if !ok {
		return nil, incident.ErrNotFound
	}
	if !inc.Status.CanTransition(status) {
		return nil, fmt.Errorf("%w: incident %s cannot go %s -> %s", tracking.ErrInvalidTransition, id, inc.Status, status)
	}
	if err := s.incidents.SetStatus(ctx, id, status); err != nil {
		return nil, fmt.Errorf("set incident status: %w", err)
	}
	inc.Status = status
	return inc, nil
}

// ScanAndCorrelate is the batch entry point: correlate a tenant's recent
// incidents against its vendor roster, persist new tracking records, and
// dispatch automation for every record with pending actions (including
// backfill of records created before an automation was enabled).
//
// Individual incident or record failures are logged and skipped; the scan
// always returns a summary.
func (s *Service) ScanAndCorrelate(ctx context.Context, tenantID string, daysBack int) (ScanSummary, error) {
	summary := ScanSummary{TenantID: tenantID}
	start := s.now()
	L := s.logger.With("tenant", tenantID)

	cfg, err := s.configs.GetConfig(ctx, tenantID)
	if err != nil {
		s.observeScan("error", start)
		return summary, fmt.Errorf("load monitoring config: %w", err)
	}
	if !cfg.Enabled {
		L.Info(ctx, "monitoring disabled, skipping scan")
		s.observeScan("disabled", start)
		return summary, nil
	}

	if daysBack <= 0 {
		daysBack = defaultDaysBack
	}
	since := s.now().AddDate(0, 0, -daysBack)

	incidents, err := s.incidents.ListSince(ctx, tenantID, since)
	if err != nil {
		s.observeScan("error", start)
		return summary, fmt.Errorf("list incidents: %w", err)
	}
	summary.IncidentsFound = len(incidents)

	roster, err := s.vendors.ListVendors(ctx, tenantID)
	if err != nil {
		s.observeScan("error", start)
		return summary, fmt.Errorf("list vendors: %w", err)
	}
	vendorsByID := make(map[string]vendor.Vendor, len(roster))
	for _, v := range roster {
		vendorsByID[v.ID] = v
	}

	// ingestion loop is sequential: per-incident error isolation with
	// simple logging; the per-vendor fan-out happens inside Correlate
	for _, inc := range incidents {
		if !cfg.Relevant(inc) {
			summary.IncidentsSkipped++
			continue
		}

		candidates := s.correlator.Correlate(ctx, inc, roster, cfg.MinConfidence)
		summary.VendorsMatched += len(candidates)

		for _, cand := range candidates {
			created, err := s.createTracking(ctx, tenantID, inc, cand)
			if err != nil {
				L.Error(ctx, err, "tracking create failed",
					"incident", inc.ID,
					"vendor", cand.Vendor.ID,
				)
				continue
			}
			if created {
				summary.RecordsCreated++
				if s.metrics != nil {
					s.metrics.MatchesTotal.WithLabelValues(cand.Result.Method).Inc()
					s.metrics.MatchConfidence.Observe(cand.Result.Confidence)
				}
			}
		}
	}

	// dispatch covers both this scan's records and older ones whose
	// automation is still pending
	if s.dispatcher != nil {
		pending, err := s.trackings.ListPendingAutomation(ctx, tenantID)
		if err != nil {
			L.Error(ctx, err, "list pending automation failed")
		} else {
			s.dispatchAll(ctx, cfg, vendorsByID, pending, &summary)
		}
	}

	s.observeScan("ok", start)
	L.Info(ctx, "scan complete",
		"incidents_found", summary.IncidentsFound,
		"incidents_skipped", summary.IncidentsSkipped,
		"vendors_matched", summary.VendorsMatched,
		"records_created", summary.RecordsCreated,
		"dispatched", summary.Dispatched,
		"actions_succeeded", summary.ActionsSucceeded,
		"actions_skipped", summary.ActionsSkipped,
		"actions_failed", summary.ActionsFailed,
	)
	return summary, nil
}

// createTracking persists one qualifying match, deduplicated on
// (tenant, vendor, incident). Returns false when the pair was already
// correlated.
func (s *Service) createTracking(ctx context.Context, tenantID string, inc *incident.Incident, cand Candidate) (bool, error) {
	if _, exists, err := s.trackings.GetByKey(ctx, tenantID, cand.Vendor.ID, inc.ID); err != nil {
		return false, fmt.Errorf("tracking lookup: %w", err)
	} else if exists {
		return false, nil
	}

	now := s.now()
	rec := &tracking.Record{
		ID:         ulid.Make().String(),
		TenantID:   tenantID,
		VendorID:   cand.Vendor.ID,
		IncidentID: inc.ID,
		Confidence: cand.Result.Confidence,
		Method:     cand.Result.Method,
		Detail:     cand.Result.Detail,
		Status:     tracking.StatusActive,
		RiskStatus: tracking.RiskPending,
		CreatedAt:  now,
	}

	if err := s.trackings.Create(ctx, rec); err != nil {
		// a concurrent scan won the insert; that is "already correlated",
		// not an error
		if errors.Is(err, tracking.ErrAlreadyCorrelated) {
			return false, nil
		}
		return false, fmt.Errorf("tracking create: %w", err)
	}
	return true, nil
}

// dispatchAll fans automation out over a bounded pool.
func (s *Service) dispatchAll(ctx context.Context, cfg *monitoring.Config, vendorsByID map[string]vendor.Vendor, records []*tracking.Record, summary *ScanSummary) {
	n := s.dispatchWorkers
	if n > len(records) {
		n = len(records)
	}
	if n == 0 {
		return
	}

	var mu sync.Mutex
	jobs := make(chan *tracking.Record)
	var wg sync.WaitGroup
	wg.Add(n)
	for w := 0; w < n; w++ {
		go func() {
			defer wg.Done()
			for rec := range jobs {
				out, ok := s.dispatchOne(ctx, cfg, vendorsByID, rec)
				if !ok {
					continue
				}
				mu.Lock()
				summary.Dispatched++
				summary.ActionsSucceeded += len(out.Succeeded)
				summary.ActionsSkipped += len(out.Skipped)
				summary.ActionsFailed += len(out.Failed)
				mu.Unlock()
			}
		}()
	}

	for _, rec := range records {
		jobs <- rec
	}
	close(jobs)
	wg.Wait()
}

func (s *Service) dispatchOne(ctx context.Context, cfg *monitoring.Config, vendorsByID map[string]vendor.Vendor, rec *tracking.Record) (automation.Outcome, bool) {
	vend, ok := vendorsByID[rec.VendorID]
	if !ok {
		// vendor left the roster since correlation; nothing to act on
		s.logger.Warn(ctx, "tracking record references unknown vendor", "tracking_id", rec.ID, "vendor", rec.VendorID)
		return automation.Outcome{}, false
	}

	inc, found, err := s.incidents.Get(ctx, rec.IncidentID)
	if err != nil || !found {
		s.logger.Error(ctx, err, "incident lookup for dispatch failed", "tracking_id", rec.ID, "incident", rec.IncidentID)
		return automation.Outcome{}, false
	}

	return s.dispatcher.Dispatch(ctx, rec, cfg, inc, vend), true
}

// QualifyRisk applies a human risk assessment to a tracking record.
func (s *Service) QualifyRisk(ctx context.Context, trackingID string, assessment tracking.RiskAssessment, riskLevel string) (*tracking.Record, error) {
	rec, ok, err := s.trackings.Get(ctx, trackingID)
	if err != nil {
		return nil, fmt.Errorf("get tracking: %w", err)
	}
	if !ok {
		return nil, tracking.ErrNotFound
	}

	if err := rec.Qualify(assessment, riskLevel, s.now()); err != nil {
		return nil, err
	}
	if err := s.trackings.Update(ctx, rec); err != nil {
		return nil, fmt.Errorf("update tracking: %w", err)
	}
	return rec, nil
}

// ResolveTracking applies a human resolution action to a tracking record.
func (s *Service) ResolveTracking(ctx context.Context, trackingID, resolutionType, notes string) (*tracking.Record, error) {
	rec, ok, err := s.trackings.Get(ctx, trackingID)
	if err != nil {
		return nil, fmt.Errorf("get tracking: %w", err)
	}
	if !ok {
		return nil, tracking.ErrNotFound
	}

	if err := rec.Resolve(resolutionType, notes, s.now()); err != nil {
		return nil, err
	}
	if err := s.trackings.Update(ctx, rec); err != nil {
		return nil, fmt.Errorf("update tracking: %w", err)
	}
	return rec, nil
}

// GetTracking retrieves one tracking record.
func (s *Service) GetTracking(ctx context.Context, id string) (*tracking.Record, bool, error) {
	return s.trackings.Get(ctx, id)
}

// GetTrackingsForVendor lists a vendor's tracking records.
func (s *Service) GetTrackingsForVendor(ctx context.Context, vendorID string, f tracking.Filters) ([]*tracking.Record, error) {
	return s.trackings.ListForVendor(ctx, vendorID, f)
}

// GetTrackingsForIncident lists an incident's tracking records.
func (s *Service) GetTrackingsForIncident(ctx context.Context, incidentID string) ([]*tracking.Record, error) {
	return s.trackings.ListForIncident(ctx, incidentID)
}

func (s *Service) observeScan(outcome string, start time.Time) {
	if s.metrics == nil {
		return
	}
	s.metrics.ScansTotal.WithLabelValues(outcome).Inc()
	s.metrics.ScanDuration.Observe(s.now().Sub(start).Seconds())
}
