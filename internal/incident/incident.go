// Package incident defines the normalized external security event model and
// its per-tenant store contract.
package incident

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned by lookups for unknown incident IDs.
var ErrNotFound = errors.New("incident not found")

// Kind classifies the type of external event.
type Kind string

const (
	KindVulnerability Kind = "vulnerability"
	KindBreach        Kind = "breach"
	KindAlert         Kind = "alert"
)

// Severity is the qualitative severity of an incident.
type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

// Rank returns an ordinal for severity comparisons. Unknown severities rank
// below low so threshold filters fail closed.
func (s Severity) Rank() int {
	switch s {
	case SeverityLow:
		return 1
	case SeverityMedium:
		return 2
	case SeverityHigh:
		return 3
	case SeverityCritical:
		return 4
	default:
		return 0
	}
}

// AtLeast reports whether s meets or exceeds the given minimum severity.
func (s Severity) AtLeast(min Severity) bool {
	return s.Rank() >= min.Rank()
}

// Status tracks where an incident is in its review lifecycle.
type Status string

const (
	// StatusOpen means ingested, awaiting review.
	StatusOpen Status = "open"

	// StatusConfirmed means a reviewer validated the incident as real.
	StatusConfirmed Status = "confirmed"

	// StatusResolved means the incident has been dealt with.
	StatusResolved Status = "resolved"

	// StatusFalsePositive means the incident was reviewed and dismissed.
	StatusFalsePositive Status = "false_positive"

	// StatusMitigated means compensating controls are in place.
	StatusMitigated Status = "mitigated"
)

// CanTransition reports whether a review action may move an incident from s
// to the target status. Incidents are never deleted, only transitioned, and
// dismissed incidents stay dismissed.
func (s Status) CanTransition(to Status) bool {
	switch s {
	case StatusOpen:
		return to == StatusConfirmed || to == StatusResolved || to == StatusFalsePositive || to == StatusMitigated
	case StatusConfirmed:
		return to == StatusResolved || to == StatusMitigated || to == StatusFalsePositive
	case StatusMitigated:
		return to == StatusResolved
	default:
		return false
	}
}

// ProductDetail is a structured affected-product entry carried by some feeds.
type ProductDetail struct {
	Vendor  string `json:"vendor,omitempty"`
	Product string `json:"product,omitempty"`
	Version string `json:"version,omitempty"`
}

// Incident is one externally observed security event, normalized per tenant.
// (TenantID, ExternalID) is unique: re-ingesting the same external record
// updates the existing row.
type Incident struct {
	ID               string          `json:"id"`
	TenantID         string          `json:"tenant_id"`
	ExternalID       string          `json:"external_id"`
	Kind             Kind            `json:"kind"`
	Title            string          `json:"title"`
	Description      string          `json:"description,omitempty"`
	Severity         Severity        `json:"severity"`
	Score            float64         `json:"score,omitempty"`
	AffectedProducts []string        `json:"affected_products,omitempty"`
	AffectedVendors  []string        `json:"affected_vendors,omitempty"`
	ProductDetails   []ProductDetail `json:"product_details,omitempty"`
	SourceURL        string          `json:"source_url,omitempty"`
	PublishedAt      time.Time       `json:"published_at,omitempty"`
	Status           Status          `json:"status"`
	CreatedAt        time.Time       `json:"created_at"`
	UpdatedAt        time.Time       `json:"updated_at,omitempty"`
}

// Store is the persistence interface for incidents.
type Store interface {
	// Upsert creates the incident or, when (tenant, external id) already
	// exists, updates its mutable fields. The returned bool is true when a
	// new row was created.
	Upsert(ctx context.Context, inc *Incident) (*Incident, bool, error)

	Get(ctx context.Context, id string) (*Incident, bool, error)
	GetByExternalID(ctx context.Context, tenantID, externalID string) (*Incident, bool, error)

	// ListSince returns a tenant's incidents published at or after the cutoff.
	ListSince(ctx context.Context, tenantID string, since time.Time) ([]*Incident, error)

	SetStatus(ctx context.Context, id string, status Status) error
}
