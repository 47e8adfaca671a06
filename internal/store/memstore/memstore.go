// Package memstore provides in-memory implementations of the engine's
// persistence interfaces. Suitable for dev/testing.
package memstore

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/linnemanlabs/vendorwatch/internal/incident"
	"github.com/linnemanlabs/vendorwatch/internal/monitoring"
	"github.com/linnemanlabs/vendorwatch/internal/notify"
	"github.com/linnemanlabs/vendorwatch/internal/tracking"
	"github.com/linnemanlabs/vendorwatch/internal/vendor"
)

// Store holds all engine state in memory behind one mutex. Incidents() and
// Trackings() expose the typed store views; the Store itself implements
// vendor.Directory, monitoring.Store, and the in-app notification sink.
type Store struct {
	mu sync.RWMutex

	incidents   map[string]*incident.Incident // incident ID -> incident
	externalIDs map[extKey]string             // (tenant, external id) -> incident ID

	trackings map[string]*tracking.Record // tracking ID -> record
	byTriple  map[tripleKey]string        // (tenant, vendor, incident) -> tracking ID

	vendors map[string][]vendor.Vendor // tenant -> roster

	configs map[string]*monitoring.Config // tenant -> config

	notifications []*notify.Alert

	defaults func(tenantID string) (*monitoring.Config, error)
	now      func() time.Time
}

type extKey struct{ tenant, external string }

type tripleKey struct{ tenant, vendor, incident string }

// New initializes an empty in-memory store.
func New() *Store {
	return &Store{
		incidents:   make(map[string]*incident.Incident),
		externalIDs: make(map[extKey]string),
		trackings:   make(map[string]*tracking.Record),
		byTriple:    make(map[tripleKey]string),
		vendors:     make(map[string][]vendor.Vendor),
		configs:     make(map[string]*monitoring.Config),
		now:         time.Now,
	}
}

// Incidents returns the incident.Store view.
func (s *Store) Incidents() incident.Store { return incidentStore{s} }

// Trackings returns the tracking.Store view.
func (s *Store) Trackings() tracking.Store { return trackingStore{s} }

// incidentStore implements incident.Store over the shared state.
type incidentStore struct{ s *Store }

func (v incidentStore) Upsert(_ context.Context, inc *incident.Incident) (*incident.Incident, bool, error) {
	s := v.s
	s.mu.Lock()
	defer s.mu.Unlock()

	key := extKey{inc.TenantID, inc.ExternalID}
	if id, ok := s.externalIDs[key]; ok {
		existing := s.incidents[id]
		updated := *inc
		// immutable identity and lifecycle fields survive re-ingestion
		updated.ID = existing.ID
		updated.Status = existing.Status
		updated.CreatedAt = existing.CreatedAt
		updated.UpdatedAt = s.now()
		s.incidents[id] = &updated
		cp := updated
		return &cp, false, nil
	}

	stored := *inc
	stored.ID = ulid.Make().String()
	stored.CreatedAt = s.now()
	s.incidents[stored.ID] = &stored
	s.externalIDs[key] = stored.ID
	cp := stored
	return &cp, true, nil
}

func (v incidentStore) Get(_ context.Context, id string) (*incident.Incident, bool, error) {
	s := v.s
	s.mu.RLock()
	defer s.mu.RUnlock()
	inc, ok := s.incidents[id]
	if !ok {
		return nil, false, nil
	}
	cp := *inc
	return &cp, true, nil
}

func (v incidentStore) GetByExternalID(_ context.Context, tenantID, externalID string) (*incident.Incident, bool, error) {
	s := v.s
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.externalIDs[extKey{tenantID, externalID}]
	if !ok {
		return nil, false, nil
	}
	cp := *s.incidents[id]
	return &cp, true, nil
}

func (v incidentStore) ListSince(_ context.Context, tenantID string, since time.Time) ([]*incident.Incident, error) {
	s := v.s
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*incident.Incident
	for _, inc := range s.incidents {
		if inc.TenantID != tenantID {
			continue
		}
		at := inc.PublishedAt
		if at.IsZero() {
			at = inc.CreatedAt
		}
		if at.Before(since) {
			continue
		}
		cp := *inc
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (v incidentStore) SetStatus(_ context.Context, id string, status incident.Status) error {
	s := v.s
	s.mu.Lock()
	defer s.mu.Unlock()
	inc, ok := s.incidents[id]
	if !ok {
		return incident.ErrNotFound
	}
	inc.Status = status
	inc.UpdatedAt = s.now()
	return nil
}

// trackingStore implements tracking.Store over the shared state.
type trackingStore struct{ s *Store }

func (v trackingStore) Get(_ context.Context, id string) (*tracking.Record, bool, error) {
	s := v.s
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.trackings[id]
	if !ok {
		return nil, false, nil
	}
	cp := *r
	return &cp, true, nil
}

func (v trackingStore) GetByKey(_ context.Context, tenantID, vendorID, incidentID string) (*tracking.Record, bool, error) {
	s := v.s
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.byTriple[tripleKey{tenantID, vendorID, incidentID}]
	if !ok {
		return nil, false, nil
	}
	cp := *s.trackings[id]
	return &cp, true, nil
}

func (v trackingStore) Create(_ context.Context, r *tracking.Record) error {
	s := v.s
	s.mu.Lock()
	defer s.mu.Unlock()

	key := tripleKey{r.TenantID, r.VendorID, r.IncidentID}
	if _, exists := s.byTriple[key]; exists {
		return tracking.ErrAlreadyCorrelated
	}

	cp := *r
	s.trackings[r.ID] = &cp
	s.byTriple[key] = r.ID
	return nil
}

// Update persists lifecycle fields. Automation flags are owned by the claim
// methods and survive unchanged.
func (v trackingStore) Update(_ context.Context, r *tracking.Record) error {
	s := v.s
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, ok := s.trackings[r.ID]
	if !ok {
		return tracking.ErrNotFound
	}

	cp := *r
	cp.Automation = existing.Automation
	cp.UpdatedAt = s.now()
	s.trackings[r.ID] = &cp
	return nil
}

func (v trackingStore) ListForVendor(_ context.Context, vendorID string, f tracking.Filters) ([]*tracking.Record, error) {
	s := v.s
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*tracking.Record
	for _, r := range s.trackings {
		if r.VendorID != vendorID || !f.Matches(r) {
			continue
		}
		cp := *r
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (v trackingStore) ListForIncident(_ context.Context, incidentID string) ([]*tracking.Record, error) {
	s := v.s
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*tracking.Record
	for _, r := range s.trackings {
		if r.IncidentID != incidentID {
			continue
		}
		cp := *r
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (v trackingStore) ListPendingAutomation(_ context.Context, tenantID string) ([]*tracking.Record, error) {
	s := v.s
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*tracking.Record
	for _, r := range s.trackings {
		if r.TenantID != tenantID || r.Status != tracking.StatusActive || !r.Automation.Pending() {
			continue
		}
		cp := *r
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// ClaimAutomation flips the action flag false -> true under the lock.
func (v trackingStore) ClaimAutomation(_ context.Context, id string, action tracking.Action) (bool, error) {
	s := v.s
	s.mu.Lock()
	defer s.mu.Unlock()

	r, ok := s.trackings[id]
	if !ok {
		return false, tracking.ErrNotFound
	}
	if r.Automation.Completed(action) {
		return false, nil
	}
	r.Automation.SetCompleted(action, "")
	r.UpdatedAt = s.now()
	return true, nil
}

func (v trackingStore) CompleteAutomation(_ context.Context, id string, action tracking.Action, sideEffectID string) error {
	s := v.s
	s.mu.Lock()
	defer s.mu.Unlock()

	r, ok := s.trackings[id]
	if !ok {
		return tracking.ErrNotFound
	}
	r.Automation.SetCompleted(action, sideEffectID)
	r.UpdatedAt = s.now()
	return nil
}

func (v trackingStore) ReleaseAutomation(_ context.Context, id string, action tracking.Action) error {
	s := v.s
	s.mu.Lock()
	defer s.mu.Unlock()

	r, ok := s.trackings[id]
	if !ok {
		return tracking.ErrNotFound
	}
	switch action {
	case tracking.ActionTask:
		r.Automation.TaskCreated, r.Automation.TaskID = false, ""
	case tracking.ActionAlert:
		r.Automation.AlertSent, r.Automation.AlertID = false, ""
	case tracking.ActionAssessment:
		r.Automation.AssessmentTriggered, r.Automation.AssessmentID = false, ""
	case tracking.ActionWorkflow:
		r.Automation.WorkflowTriggered, r.Automation.WorkflowID = false, ""
	}
	r.UpdatedAt = s.now()
	return nil
}

// ListVendors implements vendor.Directory.
func (s *Store) ListVendors(_ context.Context, tenantID string) ([]vendor.Vendor, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	roster := s.vendors[tenantID]
	out := make([]vendor.Vendor, len(roster))
	copy(out, roster)
	return out, nil
}

// SetVendors replaces a tenant's roster (dev/test seeding).
func (s *Store) SetVendors(tenantID string, roster []vendor.Vendor) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := make([]vendor.Vendor, len(roster))
	copy(cp, roster)
	s.vendors[tenantID] = cp
}

// GetConfig implements monitoring.Store. Tenants without a stored config get
// defaults.
func (s *Store) GetConfig(_ context.Context, tenantID string) (*monitoring.Config, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if cfg, ok := s.configs[tenantID]; ok {
		cp := *cfg
		return &cp, nil
	}
	if s.defaults != nil {
		return s.defaults(tenantID)
	}
	return monitoring.Defaults(tenantID), nil
}

// UseDefaults overrides the fallback for tenants without a stored config,
// typically loaded from the tenant defaults file.
func (s *Store) UseDefaults(fn func(tenantID string) (*monitoring.Config, error)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.defaults = fn
}

// PutConfig stores a tenant's monitoring configuration.
func (s *Store) PutConfig(cfg *monitoring.Config) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *cfg
	s.configs[cfg.TenantID] = &cp
}

// ListTenants implements monitoring.Store: every tenant with a config,
// roster, or incident.
func (s *Store) ListTenants(_ context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	seen := make(map[string]bool)
	for t := range s.configs {
		seen[t] = true
	}
	for t := range s.vendors {
		seen[t] = true
	}
	for _, inc := range s.incidents {
		seen[inc.TenantID] = true
	}

	out := make([]string, 0, len(seen))
	for t := range seen {
		out = append(out, t)
	}
	sort.Strings(out)
	return out, nil
}

// SaveNotification implements the in-app notification sink.
func (s *Store) SaveNotification(_ context.Context, a *notify.Alert) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *a
	s.notifications = append(s.notifications, &cp)
	return nil
}

// Notifications returns stored in-app notifications (test helper).
func (s *Store) Notifications() []*notify.Alert {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*notify.Alert, len(s.notifications))
	copy(out, s.notifications)
	return out
}
