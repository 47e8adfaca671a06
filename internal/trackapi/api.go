// Package trackapi exposes the correlation engine over HTTP: incident
// ingestion and review, tenant scans, and tracking record lifecycle.
package trackapi

import (
	"context"
	"encoding/json"
	"net/http"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/go-chi/chi/v5"
	"github.com/linnemanlabs/go-core/log"
	"github.com/linnemanlabs/go-core/xerrors"

	"github.com/linnemanlabs/vendorwatch/internal/correlate"
	"github.com/linnemanlabs/vendorwatch/internal/incident"
	"github.com/linnemanlabs/vendorwatch/internal/tracking"
)

// Service defines the business operations trackapi needs.
type Service interface {
	UpsertIncident(ctx context.Context, inc *incident.Incident) (*incident.Incident, bool, error)
	ReviewIncident(ctx context.Context, id string, status incident.Status) (*incident.Incident, error)
	ScanAndCorrelate(ctx context.Context, tenantID string, daysBack int) (correlate.ScanSummary, error)
	GetTracking(ctx context.Context, id string) (*tracking.Record, bool, error)
	GetTrackingsForVendor(ctx context.Context, vendorID string, f tracking.Filters) ([]*tracking.Record, error)
	GetTrackingsForIncident(ctx context.Context, incidentID string) ([]*tracking.Record, error)
	QualifyRisk(ctx context.Context, trackingID string, assessment tracking.RiskAssessment, riskLevel string) (*tracking.Record, error)
	ResolveTracking(ctx context.Context, trackingID, resolutionType, notes string) (*tracking.Record, error)
}

// API holds dependencies for HTTP handlers.
type API struct {
	logger log.Logger
	svc    Service
}

// New creates a new API handler.
func New(logger log.Logger, svc Service) *API {
	if logger == nil {
		logger = log.Nop()
	}
	if svc == nil {
		panic(xerrors.New("correlation service is required"))
	}
	return &API{
		logger: logger,
		svc:    svc,
	}
}

// RegisterRoutes attaches API endpoints to the router.
func (a *API) RegisterRoutes(r chi.Router) {
	r.Route("/api/v1", func(r chi.Router) {
		r.Post("/incidents", a.handleIngestIncident)
		r.Post("/incidents/{id}/review", a.handleReviewIncident)
		r.Get("/incidents/{id}/tracking", a.handleIncidentTracking)

		r.Post("/scan/{tenant}", a.handleScan)

		r.Get("/tracking/{id}", a.handleGetTracking)
		r.Post("/tracking/{id}/qualify", a.handleQualify)
		r.Post("/tracking/{id}/resolve", a.handleResolve)

		r.Get("/vendors/{id}/tracking", a.handleVendorTracking)
	})
}

func (a *API) handleGetTracking(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	span := trace.SpanFromContext(r.Context())
	span.SetAttributes(attribute.String("vendorwatch.tracking.id", id))

	rec, ok, err := a.svc.GetTracking(r.Context(), id)
	if err != nil {
		a.logger.Error(r.Context(), err, "failed to get tracking record", "id", id)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	if !ok {
		writeError(w, http.StatusNotFound, "not found")
		return
	}

	span.SetAttributes(attribute.String("vendorwatch.tracking.status", string(rec.Status)))
	writeJSON(w, http.StatusOK, rec)
}

func (a *API) handleVendorTracking(w http.ResponseWriter, r *http.Request) {
	vendorID := chi.URLParam(r, "id")

	span := trace.SpanFromContext(r.Context())
	span.SetAttributes(attribute.String("vendorwatch.vendor.id", vendorID))

	f := tracking.Filters{
		Status:     tracking.Status(r.URL.Query().Get("status")),
		RiskStatus: tracking.RiskStatus(r.URL.Query().Get("risk_status")),
	}

	recs, err := a.svc.GetTrackingsForVendor(r.Context(), vendorID, f)
	if err != nil {
		a.logger.Error(r.Context(), err, "failed to list vendor tracking", "vendor_id", vendorID)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"tracking": emptyIfNil(recs)})
}

func (a *API) handleIncidentTracking(w http.ResponseWriter, r *http.Request) {
	incidentID := chi.URLParam(r, "id")

	span := trace.SpanFromContext(r.Context())
	span.SetAttributes(attribute.String("vendorwatch.incident.id", incidentID))

	recs, err := a.svc.GetTrackingsForIncident(r.Context(), incidentID)
	if err != nil {
		a.logger.Error(r.Context(), err, "failed to list incident tracking", "incident_id", incidentID)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"tracking": emptyIfNil(recs)})
}

func emptyIfNil(recs []*tracking.Record) []*tracking.Record {
	if recs == nil {
		return []*tracking.Record{}
	}
	return recs
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": msg})
}
