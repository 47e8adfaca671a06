package tracking

import "context"

// Filters narrows tracking record listings. Zero values match everything.
type Filters struct {
	Status     Status
	RiskStatus RiskStatus
}

// Matches reports whether a record passes the filters.
func (f Filters) Matches(r *Record) bool {
	if f.Status != "" && r.Status != f.Status {
		return false
	}
	if f.RiskStatus != "" && r.RiskStatus != f.RiskStatus {
		return false
	}
	return true
}

// Store is the persistence interface for tracking records.
//
// ClaimAutomation is the concurrency primitive behind automation
// idempotency: it atomically flips one action flag from false to true and
// reports whether this caller won the claim. A dispatcher that claims an
// action and then fails its side effect must release the claim so a later
// run can retry exactly that action.
type Store interface {
	Get(ctx context.Context, id string) (*Record, bool, error)
	GetByKey(ctx context.Context, tenantID, vendorID, incidentID string) (*Record, bool, error)

	// Create persists a new record. Returns ErrAlreadyCorrelated when the
	// (tenant, vendor, incident) triple already exists.
	Create(ctx context.Context, r *Record) error

	// Update persists lifecycle fields (status, risk, resolution). Automation
	// flags are owned by the claim methods below.
	Update(ctx context.Context, r *Record) error

	ListForVendor(ctx context.Context, vendorID string, f Filters) ([]*Record, error)
	ListForIncident(ctx context.Context, incidentID string) ([]*Record, error)

	// ListPendingAutomation returns a tenant's active records with at least
	// one automation flag still false, for backfill dispatch.
	ListPendingAutomation(ctx context.Context, tenantID string) ([]*Record, error)

	// ClaimAutomation conditionally sets the action's flag; true means this
	// caller claimed it.
	ClaimAutomation(ctx context.Context, id string, action Action) (bool, error)

	// CompleteAutomation records the side-effect entity id for a claimed
	// action.
	CompleteAutomation(ctx context.Context, id string, action Action, sideEffectID string) error

	// ReleaseAutomation clears a claimed flag after a failed side effect.
	ReleaseAutomation(ctx context.Context, id string, action Action) error
}
