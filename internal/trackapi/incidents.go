package trackapi

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/go-chi/chi/v5"

	"github.com/linnemanlabs/vendorwatch/internal/incident"
)

func (a *API) handleIngestIncident(w http.ResponseWriter, r *http.Request) {
	var inc incident.Incident
	if err := json.NewDecoder(r.Body).Decode(&inc); err != nil {
		writeError(w, http.StatusBadRequest, "invalid payload")
		return
	}

	stored, created, err := a.svc.UpsertIncident(r.Context(), &inc)
	if err != nil {
		if isValidation(err) {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		a.logger.Error(r.Context(), err, "failed to ingest incident",
			"tenant_id", inc.TenantID, "external_id", inc.ExternalID)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	span := trace.SpanFromContext(r.Context())
	span.SetAttributes(
		attribute.String("vendorwatch.incident.id", stored.ID),
		attribute.Bool("vendorwatch.incident.created", created),
	)

	status := http.StatusOK
	if created {
		status = http.StatusCreated
	}
	writeJSON(w, status, stored)
}

func (a *API) handleReviewIncident(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	var req struct {
		Status string `json:"status"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Status == "" {
		writeError(w, http.StatusBadRequest, "invalid payload")
		return
	}

	inc, err := a.svc.ReviewIncident(r.Context(), id, incident.Status(req.Status))
	if err != nil {
		switch {
		case errors.Is(err, incident.ErrNotFound):
			writeError(w, http.StatusNotFound, "not found")
		case isValidation(err):
			writeError(w, http.StatusConflict, err.Error())
		default:
			a.logger.Error(r.Context(), err, "failed to review incident", "id", id)
			writeError(w, http.StatusInternalServerError, "internal error")
		}
		return
	}

	writeJSON(w, http.StatusOK, inc)
}

func (a *API) handleScan(w http.ResponseWriter, r *http.Request) {
	tenantID := chi.URLParam(r, "tenant")

	span := trace.SpanFromContext(r.Context())
	span.SetAttributes(attribute.String("vendorwatch.tenant.id", tenantID))

	daysBack := 0
	if raw := r.URL.Query().Get("days_back"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			writeError(w, http.StatusBadRequest, "days_back must be a non-negative integer")
			return
		}
		daysBack = n
	}

	summary, err := a.svc.ScanAndCorrelate(r.Context(), tenantID, daysBack)
	if err != nil {
		a.logger.Error(r.Context(), err, "scan failed", "tenant_id", tenantID)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	span.SetAttributes(
		attribute.Int("vendorwatch.scan.incidents", summary.IncidentsFound),
		attribute.Int("vendorwatch.scan.created", summary.RecordsCreated),
	)
	writeJSON(w, http.StatusOK, summary)
}
