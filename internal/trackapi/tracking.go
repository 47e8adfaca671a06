package trackapi

import (
	"encoding/json"
	"errors"
	"net/http"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/go-chi/chi/v5"

	"github.com/linnemanlabs/vendorwatch/internal/correlate"
	"github.com/linnemanlabs/vendorwatch/internal/tracking"
)

func (a *API) handleQualify(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	var req struct {
		RiskLevel  string                  `json:"risk_level"`
		Assessment tracking.RiskAssessment `json:"assessment"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid payload")
		return
	}

	rec, err := a.svc.QualifyRisk(r.Context(), id, req.Assessment, req.RiskLevel)
	if err != nil {
		a.writeTrackingError(w, r, err, "qualify", id)
		return
	}

	span := trace.SpanFromContext(r.Context())
	span.SetAttributes(
		attribute.String("vendorwatch.tracking.id", id),
		attribute.String("vendorwatch.tracking.risk_level", rec.RiskLevel),
	)
	writeJSON(w, http.StatusOK, rec)
}

func (a *API) handleResolve(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	var req struct {
		Type  string `json:"type"`
		Notes string `json:"notes"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid payload")
		return
	}

	rec, err := a.svc.ResolveTracking(r.Context(), id, req.Type, req.Notes)
	if err != nil {
		a.writeTrackingError(w, r, err, "resolve", id)
		return
	}

	span := trace.SpanFromContext(r.Context())
	span.SetAttributes(
		attribute.String("vendorwatch.tracking.id", id),
		attribute.String("vendorwatch.tracking.status", string(rec.Status)),
	)
	writeJSON(w, http.StatusOK, rec)
}

func (a *API) writeTrackingError(w http.ResponseWriter, r *http.Request, err error, op, id string) {
	switch {
	case errors.Is(err, tracking.ErrNotFound):
		writeError(w, http.StatusNotFound, "not found")
	case errors.Is(err, tracking.ErrInvalidTransition):
		writeError(w, http.StatusConflict, err.Error())
	default:
		a.logger.Error(r.Context(), err, "tracking operation failed", "op", op, "id", id)
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}

// isValidation reports whether an error should surface as a client error.
func isValidation(err error) bool {
	return errors.Is(err, correlate.ErrValidation) || errors.Is(err, tracking.ErrInvalidTransition)
}
