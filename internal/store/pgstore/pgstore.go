// Package pgstore provides the PostgreSQL implementation of the engine's
// persistence interfaces: incident.Store, tracking.Store, vendor.Directory,
// monitoring.Store, and the in-app notification sink.
package pgstore

import (
	"context"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/linnemanlabs/vendorwatch/internal/incident"
	"github.com/linnemanlabs/vendorwatch/internal/monitoring"
	"github.com/linnemanlabs/vendorwatch/internal/notify"
	"github.com/linnemanlabs/vendorwatch/internal/tracking"
	"github.com/linnemanlabs/vendorwatch/internal/vendor"
)

var tracer = otel.Tracer("github.com/linnemanlabs/vendorwatch/internal/store/pgstore")

//go:embed schema.sql
var schema string

const pgUniqueViolation = "23505"

// Store persists engine state in PostgreSQL. The pool is owned by the
// caller; Store only borrows it.
type Store struct {
	pool *pgxpool.Pool

	defaults func(tenantID string) (*monitoring.Config, error)
}

// New applies the schema and returns a ready Store.
func New(ctx context.Context, pool *pgxpool.Pool) (*Store, error) {
	if _, err := pool.Exec(ctx, schema); err != nil {
		return nil, fmt.Errorf("apply schema: %w", err)
	}
	return &Store{pool: pool}, nil
}

// Incidents returns the incident.Store view.
func (s *Store) Incidents() incident.Store { return incidentStore{s} }

// Trackings returns the tracking.Store view.
func (s *Store) Trackings() tracking.Store { return trackingStore{s} }

// UseDefaults overrides the fallback for tenants without a stored config,
// typically loaded from the tenant defaults file.
func (s *Store) UseDefaults(fn func(tenantID string) (*monitoring.Config, error)) {
	s.defaults = fn
}

func startSpan(ctx context.Context, name, op string) (context.Context, trace.Span) {
	return tracer.Start(ctx, name, trace.WithAttributes(
		attribute.String("db.system", "postgresql"),
		attribute.String("db.operation.name", op),
	))
}

func spanErr(span trace.Span, err error) error {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	return err
}

// ---- incidents ----

type incidentStore struct{ s *Store }

const incidentColumns = `id, tenant_id, external_id, kind, title, description, severity, score,
	affected_products, affected_vendors, product_details, source_url, published_at, status,
	created_at, updated_at`

// Upsert inserts the incident or, when (tenant, external id) already exists,
// updates its mutable fields. Status and created_at survive updates so a
// re-ingested feed entry cannot reopen a reviewed incident.
func (st incidentStore) Upsert(ctx context.Context, inc *incident.Incident) (*incident.Incident, bool, error) {
	ctx, span := startSpan(ctx, "pgstore.UpsertIncident", "UPSERT")
	defer span.End()

	products, err := json.Marshal(orEmpty(inc.AffectedProducts))
	if err != nil {
		return nil, false, spanErr(span, fmt.Errorf("marshal affected_products: %w", err))
	}
	vendors, err := json.Marshal(orEmpty(inc.AffectedVendors))
	if err != nil {
		return nil, false, spanErr(span, fmt.Errorf("marshal affected_vendors: %w", err))
	}
	details, err := json.Marshal(inc.ProductDetails)
	if err != nil {
		return nil, false, spanErr(span, fmt.Errorf("marshal product_details: %w", err))
	}

	var publishedAt *time.Time
	if !inc.PublishedAt.IsZero() {
		publishedAt = &inc.PublishedAt
	}

	query := `INSERT INTO incidents (
		id, tenant_id, external_id, kind, title, description, severity, score,
		affected_products, affected_vendors, product_details, source_url, published_at, status
	) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14)
	ON CONFLICT (tenant_id, external_id) DO UPDATE SET
		kind              = EXCLUDED.kind,
		title             = EXCLUDED.title,
		description       = EXCLUDED.description,
		severity          = EXCLUDED.severity,
		score             = EXCLUDED.score,
		affected_products = EXCLUDED.affected_products,
		affected_vendors  = EXCLUDED.affected_vendors,
		product_details   = EXCLUDED.product_details,
		source_url        = EXCLUDED.source_url,
		published_at      = EXCLUDED.published_at,
		updated_at        = now()
	RETURNING ` + incidentColumns + `, (xmax = 0) AS inserted`

	row := st.s.pool.QueryRow(ctx, query,
		inc.ID, inc.TenantID, inc.ExternalID, string(inc.Kind), inc.Title, inc.Description,
		string(inc.Severity), inc.Score, products, vendors, details, inc.SourceURL,
		publishedAt, string(inc.Status),
	)

	stored, inserted, err := scanIncident(row, true)
	if err != nil {
		return nil, false, spanErr(span, err)
	}
	return stored, inserted, nil
}

func (st incidentStore) Get(ctx context.Context, id string) (*incident.Incident, bool, error) {
	ctx, span := startSpan(ctx, "pgstore.GetIncident", "SELECT")
	defer span.End()

	query := `SELECT ` + incidentColumns + ` FROM incidents WHERE id = $1`
	inc, _, err := scanIncident(st.s.pool.QueryRow(ctx, query, id), false)
	if err != nil {
		return nil, false, spanErr(span, err)
	}
	if inc == nil {
		return nil, false, nil
	}
	return inc, true, nil
}

func (st incidentStore) GetByExternalID(ctx context.Context, tenantID, externalID string) (*incident.Incident, bool, error) {
	ctx, span := startSpan(ctx, "pgstore.GetIncidentByExternalID", "SELECT")
	defer span.End()

	query := `SELECT ` + incidentColumns + ` FROM incidents WHERE tenant_id = $1 AND external_id = $2`
	inc, _, err := scanIncident(st.s.pool.QueryRow(ctx, query, tenantID, externalID), false)
	if err != nil {
		return nil, false, spanErr(span, err)
	}
	if inc == nil {
		return nil, false, nil
	}
	return inc, true, nil
}

// ListSince returns a tenant's incidents published at or after the cutoff.
// Incidents without a published timestamp fall back to created_at.
func (st incidentStore) ListSince(ctx context.Context, tenantID string, since time.Time) ([]*incident.Incident, error) {
	ctx, span := startSpan(ctx, "pgstore.ListIncidentsSince", "SELECT")
	defer span.End()

	query := `SELECT ` + incidentColumns + ` FROM incidents
		WHERE tenant_id = $1 AND COALESCE(published_at, created_at) >= $2
		ORDER BY COALESCE(published_at, created_at)`

	rows, err := st.s.pool.Query(ctx, query, tenantID, since)
	if err != nil {
		return nil, spanErr(span, fmt.Errorf("query incidents: %w", err))
	}
	defer rows.Close()

	var out []*incident.Incident
	for rows.Next() {
		inc, _, err := scanIncident(rows, false)
		if err != nil {
			return nil, spanErr(span, err)
		}
		out = append(out, inc)
	}
	if err := rows.Err(); err != nil {
		return nil, spanErr(span, fmt.Errorf("iterate incidents: %w", err))
	}
	return out, nil
}

func (st incidentStore) SetStatus(ctx context.Context, id string, status incident.Status) error {
	ctx, span := startSpan(ctx, "pgstore.SetIncidentStatus", "UPDATE")
	defer span.End()

	tag, err := st.s.pool.Exec(ctx,
		`UPDATE incidents SET status = $2, updated_at = now() WHERE id = $1`,
		id, string(status),
	)
	if err != nil {
		return spanErr(span, fmt.Errorf("update incident status: %w", err))
	}
	if tag.RowsAffected() == 0 {
		return incident.ErrNotFound
	}
	return nil
}

// scanIncident scans a single incident row. Returns (nil, false, nil) when no
// row is found. withInserted expects the trailing (xmax = 0) column from an
// upsert RETURNING clause.
func scanIncident(row pgx.Row, withInserted bool) (*incident.Incident, bool, error) {
	var (
		inc          incident.Incident
		kind         string
		severity     string
		status       string
		productsJSON []byte
		vendorsJSON  []byte
		detailsJSON  []byte
		publishedAt  *time.Time
		updatedAt    *time.Time
		inserted     bool
	)

	dest := []any{
		&inc.ID, &inc.TenantID, &inc.ExternalID, &kind, &inc.Title, &inc.Description,
		&severity, &inc.Score, &productsJSON, &vendorsJSON, &detailsJSON, &inc.SourceURL,
		&publishedAt, &status, &inc.CreatedAt, &updatedAt,
	}
	if withInserted {
		dest = append(dest, &inserted)
	}

	if err := row.Scan(dest...); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("scan incident: %w", err)
	}

	inc.Kind = incident.Kind(kind)
	inc.Severity = incident.Severity(severity)
	inc.Status = incident.Status(status)
	if publishedAt != nil {
		inc.PublishedAt = *publishedAt
	}
	if updatedAt != nil {
		inc.UpdatedAt = *updatedAt
	}

	if err := json.Unmarshal(productsJSON, &inc.AffectedProducts); err != nil {
		return nil, false, fmt.Errorf("unmarshal affected_products: %w", err)
	}
	if err := json.Unmarshal(vendorsJSON, &inc.AffectedVendors); err != nil {
		return nil, false, fmt.Errorf("unmarshal affected_vendors: %w", err)
	}
	if err := json.Unmarshal(detailsJSON, &inc.ProductDetails); err != nil {
		return nil, false, fmt.Errorf("unmarshal product_details: %w", err)
	}

	return &inc, inserted, nil
}

// ---- tracking records ----

type trackingStore struct{ s *Store }

const trackingColumns = `id, tenant_id, vendor_id, incident_id, confidence, method, detail,
	status, risk_status, risk_level, risk_assessment, resolution_type, resolution_notes, resolved_at,
	task_created, task_id, alert_sent, alert_id, assessment_triggered, assessment_id,
	workflow_triggered, workflow_id, created_at, updated_at`

func (st trackingStore) Get(ctx context.Context, id string) (*tracking.Record, bool, error) {
	ctx, span := startSpan(ctx, "pgstore.GetTracking", "SELECT")
	defer span.End()

	query := `SELECT ` + trackingColumns + ` FROM tracking_records WHERE id = $1`
	r, err := scanTracking(st.s.pool.QueryRow(ctx, query, id))
	if err != nil {
		return nil, false, spanErr(span, err)
	}
	if r == nil {
		return nil, false, nil
	}
	return r, true, nil
}

func (st trackingStore) GetByKey(ctx context.Context, tenantID, vendorID, incidentID string) (*tracking.Record, bool, error) {
	ctx, span := startSpan(ctx, "pgstore.GetTrackingByKey", "SELECT")
	defer span.End()

	query := `SELECT ` + trackingColumns + ` FROM tracking_records
		WHERE tenant_id = $1 AND vendor_id = $2 AND incident_id = $3`
	r, err := scanTracking(st.s.pool.QueryRow(ctx, query, tenantID, vendorID, incidentID))
	if err != nil {
		return nil, false, spanErr(span, err)
	}
	if r == nil {
		return nil, false, nil
	}
	return r, true, nil
}

// Create inserts a new tracking record. A duplicate (tenant, vendor,
// incident) triple surfaces as tracking.ErrAlreadyCorrelated.
func (st trackingStore) Create(ctx context.Context, r *tracking.Record) error {
	ctx, span := startSpan(ctx, "pgstore.CreateTracking", "INSERT")
	defer span.End()

	detail, err := json.Marshal(r.Detail)
	if err != nil {
		return spanErr(span, fmt.Errorf("marshal detail: %w", err))
	}

	query := `INSERT INTO tracking_records (
		id, tenant_id, vendor_id, incident_id, confidence, method, detail,
		status, risk_status, created_at
	) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)`

	_, err = st.s.pool.Exec(ctx, query,
		r.ID, r.TenantID, r.VendorID, r.IncidentID, r.Confidence, r.Method, detail,
		string(r.Status), string(r.RiskStatus), r.CreatedAt,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation {
			return tracking.ErrAlreadyCorrelated
		}
		return spanErr(span, fmt.Errorf("insert tracking: %w", err))
	}
	return nil
}

// Update persists lifecycle fields. Automation flags are owned by the claim
// methods and are deliberately absent from the SET list.
func (st trackingStore) Update(ctx context.Context, r *tracking.Record) error {
	ctx, span := startSpan(ctx, "pgstore.UpdateTracking", "UPDATE")
	defer span.End()

	var riskJSON []byte
	if r.Risk != nil {
		b, err := json.Marshal(r.Risk)
		if err != nil {
			return spanErr(span, fmt.Errorf("marshal risk assessment: %w", err))
		}
		riskJSON = b
	}

	var resType, resNotes *string
	var resolvedAt *time.Time
	if r.Resolution != nil {
		resType = &r.Resolution.Type
		resNotes = &r.Resolution.Notes
		resolvedAt = &r.Resolution.ResolvedAt
	}

	var riskLevel *string
	if r.RiskLevel != "" {
		riskLevel = &r.RiskLevel
	}

	query := `UPDATE tracking_records SET
		status = $2, risk_status = $3, risk_level = $4, risk_assessment = $5,
		resolution_type = $6, resolution_notes = $7, resolved_at = $8, updated_at = now()
	WHERE id = $1`

	tag, err := st.s.pool.Exec(ctx, query,
		r.ID, string(r.Status), string(r.RiskStatus), riskLevel, riskJSON,
		resType, resNotes, resolvedAt,
	)
	if err != nil {
		return spanErr(span, fmt.Errorf("update tracking: %w", err))
	}
	if tag.RowsAffected() == 0 {
		return tracking.ErrNotFound
	}
	return nil
}

func (st trackingStore) ListForVendor(ctx context.Context, vendorID string, f tracking.Filters) ([]*tracking.Record, error) {
	ctx, span := startSpan(ctx, "pgstore.ListTrackingForVendor", "SELECT")
	defer span.End()

	query := `SELECT ` + trackingColumns + ` FROM tracking_records WHERE vendor_id = $1`
	args := []any{vendorID}
	if f.Status != "" {
		args = append(args, string(f.Status))
		query += fmt.Sprintf(" AND status = $%d", len(args))
	}
	if f.RiskStatus != "" {
		args = append(args, string(f.RiskStatus))
		query += fmt.Sprintf(" AND risk_status = $%d", len(args))
	}
	query += " ORDER BY created_at"

	out, err := st.queryTrackings(ctx, query, args...)
	if err != nil {
		return nil, spanErr(span, err)
	}
	return out, nil
}

func (st trackingStore) ListForIncident(ctx context.Context, incidentID string) ([]*tracking.Record, error) {
	ctx, span := startSpan(ctx, "pgstore.ListTrackingForIncident", "SELECT")
	defer span.End()

	query := `SELECT ` + trackingColumns + ` FROM tracking_records WHERE incident_id = $1 ORDER BY created_at`
	out, err := st.queryTrackings(ctx, query, incidentID)
	if err != nil {
		return nil, spanErr(span, err)
	}
	return out, nil
}

func (st trackingStore) ListPendingAutomation(ctx context.Context, tenantID string) ([]*tracking.Record, error) {
	ctx, span := startSpan(ctx, "pgstore.ListPendingAutomation", "SELECT")
	defer span.End()

	query := `SELECT ` + trackingColumns + ` FROM tracking_records
		WHERE tenant_id = $1 AND status = 'active'
		  AND NOT (task_created AND alert_sent AND assessment_triggered AND workflow_triggered)
		ORDER BY created_at`
	out, err := st.queryTrackings(ctx, query, tenantID)
	if err != nil {
		return nil, spanErr(span, err)
	}
	return out, nil
}

// ClaimAutomation flips one action flag false -> true in a single conditional
// UPDATE. Zero rows affected means the flag was already set (or the record is
// gone) and the caller lost the claim.
func (st trackingStore) ClaimAutomation(ctx context.Context, id string, action tracking.Action) (bool, error) {
	ctx, span := startSpan(ctx, "pgstore.ClaimAutomation", "UPDATE")
	defer span.End()

	flag, _, err := automationColumns(action)
	if err != nil {
		return false, spanErr(span, err)
	}

	query := fmt.Sprintf(
		`UPDATE tracking_records SET %s = TRUE, updated_at = now() WHERE id = $1 AND %s = FALSE`,
		flag, flag,
	)
	tag, err := st.s.pool.Exec(ctx, query, id)
	if err != nil {
		return false, spanErr(span, fmt.Errorf("claim %s: %w", action, err))
	}
	return tag.RowsAffected() == 1, nil
}

func (st trackingStore) CompleteAutomation(ctx context.Context, id string, action tracking.Action, sideEffectID string) error {
	ctx, span := startSpan(ctx, "pgstore.CompleteAutomation", "UPDATE")
	defer span.End()

	flag, idCol, err := automationColumns(action)
	if err != nil {
		return spanErr(span, err)
	}

	query := fmt.Sprintf(
		`UPDATE tracking_records SET %s = $2, updated_at = now() WHERE id = $1 AND %s = TRUE`,
		idCol, flag,
	)
	tag, err := st.s.pool.Exec(ctx, query, id, sideEffectID)
	if err != nil {
		return spanErr(span, fmt.Errorf("complete %s: %w", action, err))
	}
	if tag.RowsAffected() == 0 {
		return tracking.ErrNotFound
	}
	return nil
}

func (st trackingStore) ReleaseAutomation(ctx context.Context, id string, action tracking.Action) error {
	ctx, span := startSpan(ctx, "pgstore.ReleaseAutomation", "UPDATE")
	defer span.End()

	flag, idCol, err := automationColumns(action)
	if err != nil {
		return spanErr(span, err)
	}

	query := fmt.Sprintf(
		`UPDATE tracking_records SET %s = FALSE, %s = '', updated_at = now() WHERE id = $1`,
		flag, idCol,
	)
	if _, err := st.s.pool.Exec(ctx, query, id); err != nil {
		return spanErr(span, fmt.Errorf("release %s: %w", action, err))
	}
	return nil
}

func (st trackingStore) queryTrackings(ctx context.Context, query string, args ...any) ([]*tracking.Record, error) {
	rows, err := st.s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query trackings: %w", err)
	}
	defer rows.Close()

	var out []*tracking.Record
	for rows.Next() {
		r, err := scanTracking(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate trackings: %w", err)
	}
	return out, nil
}

func automationColumns(action tracking.Action) (flag, idCol string, err error) {
	switch action {
	case tracking.ActionTask:
		return "task_created", "task_id", nil
	case tracking.ActionAlert:
		return "alert_sent", "alert_id", nil
	case tracking.ActionAssessment:
		return "assessment_triggered", "assessment_id", nil
	case tracking.ActionWorkflow:
		return "workflow_triggered", "workflow_id", nil
	default:
		return "", "", fmt.Errorf("unknown automation action %q", action)
	}
}

// scanTracking scans a single tracking row. Returns (nil, nil) when no row is
// found.
func scanTracking(row pgx.Row) (*tracking.Record, error) {
	var (
		r          tracking.Record
		status     string
		riskStatus string
		riskLevel  *string
		detailJSON []byte
		riskJSON   []byte
		resType    *string
		resNotes   *string
		resolvedAt *time.Time
		updatedAt  *time.Time
	)

	err := row.Scan(
		&r.ID, &r.TenantID, &r.VendorID, &r.IncidentID, &r.Confidence, &r.Method, &detailJSON,
		&status, &riskStatus, &riskLevel, &riskJSON, &resType, &resNotes, &resolvedAt,
		&r.Automation.TaskCreated, &r.Automation.TaskID,
		&r.Automation.AlertSent, &r.Automation.AlertID,
		&r.Automation.AssessmentTriggered, &r.Automation.AssessmentID,
		&r.Automation.WorkflowTriggered, &r.Automation.WorkflowID,
		&r.CreatedAt, &updatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("scan tracking: %w", err)
	}

	r.Status = tracking.Status(status)
	r.RiskStatus = tracking.RiskStatus(riskStatus)
	if riskLevel != nil {
		r.RiskLevel = *riskLevel
	}
	if updatedAt != nil {
		r.UpdatedAt = *updatedAt
	}

	if err := json.Unmarshal(detailJSON, &r.Detail); err != nil {
		return nil, fmt.Errorf("unmarshal detail: %w", err)
	}
	if len(riskJSON) > 0 {
		r.Risk = &tracking.RiskAssessment{}
		if err := json.Unmarshal(riskJSON, r.Risk); err != nil {
			return nil, fmt.Errorf("unmarshal risk assessment: %w", err)
		}
	}
	if resType != nil {
		r.Resolution = &tracking.Resolution{Type: *resType}
		if resNotes != nil {
			r.Resolution.Notes = *resNotes
		}
		if resolvedAt != nil {
			r.Resolution.ResolvedAt = *resolvedAt
		}
	}

	return &r, nil
}

// ---- vendors ----

// ListVendors implements vendor.Directory.
func (s *Store) ListVendors(ctx context.Context, tenantID string) ([]vendor.Vendor, error) {
	ctx, span := startSpan(ctx, "pgstore.ListVendors", "SELECT")
	defer span.End()

	rows, err := s.pool.Query(ctx,
		`SELECT id, tenant_id, name, website, description FROM vendors WHERE tenant_id = $1 ORDER BY name`,
		tenantID,
	)
	if err != nil {
		return nil, spanErr(span, fmt.Errorf("query vendors: %w", err))
	}
	defer rows.Close()

	var out []vendor.Vendor
	for rows.Next() {
		var v vendor.Vendor
		if err := rows.Scan(&v.ID, &v.TenantID, &v.Name, &v.Website, &v.Description); err != nil {
			return nil, spanErr(span, fmt.Errorf("scan vendor: %w", err))
		}
		out = append(out, v)
	}
	if err := rows.Err(); err != nil {
		return nil, spanErr(span, fmt.Errorf("iterate vendors: %w", err))
	}
	return out, nil
}

// PutVendor inserts or updates a roster entry.
func (s *Store) PutVendor(ctx context.Context, v vendor.Vendor) error {
	ctx, span := startSpan(ctx, "pgstore.PutVendor", "UPSERT")
	defer span.End()

	_, err := s.pool.Exec(ctx,
		`INSERT INTO vendors (id, tenant_id, name, website, description)
		 VALUES ($1,$2,$3,$4,$5)
		 ON CONFLICT (id) DO UPDATE SET
			tenant_id = EXCLUDED.tenant_id,
			name = EXCLUDED.name,
			website = EXCLUDED.website,
			description = EXCLUDED.description`,
		v.ID, v.TenantID, v.Name, v.Website, v.Description,
	)
	if err != nil {
		return spanErr(span, fmt.Errorf("upsert vendor: %w", err))
	}
	return nil
}

// ---- monitoring configs ----

// GetConfig implements monitoring.Store. Tenants without a stored row get
// defaults.
func (s *Store) GetConfig(ctx context.Context, tenantID string) (*monitoring.Config, error) {
	ctx, span := startSpan(ctx, "pgstore.GetConfig", "SELECT")
	defer span.End()

	var (
		cfg            monitoring.Config
		intervalSec    int
		minSeverity    string
		channelsJSON   []byte
		recipientsJSON []byte
	)
	err := s.pool.QueryRow(ctx,
		`SELECT tenant_id, enabled, breach_monitoring_enabled, scan_interval_seconds,
			min_severity, min_score, min_confidence,
			auto_create_tasks, auto_send_alerts, auto_trigger_assessments, auto_start_workflows,
			default_assessment_id, default_workflow_id, alert_channels, alert_recipients
		 FROM monitoring_configs WHERE tenant_id = $1`,
		tenantID,
	).Scan(
		&cfg.TenantID, &cfg.Enabled, &cfg.BreachMonitoringEnabled, &intervalSec,
		&minSeverity, &cfg.MinScore, &cfg.MinConfidence,
		&cfg.AutoCreateTasks, &cfg.AutoSendAlerts, &cfg.AutoTriggerAssessments, &cfg.AutoStartWorkflows,
		&cfg.DefaultAssessmentID, &cfg.DefaultWorkflowID, &channelsJSON, &recipientsJSON,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			if s.defaults != nil {
				return s.defaults(tenantID)
			}
			return monitoring.Defaults(tenantID), nil
		}
		return nil, spanErr(span, fmt.Errorf("query config: %w", err))
	}

	cfg.ScanInterval = time.Duration(intervalSec) * time.Second
	cfg.MinSeverity = incident.Severity(minSeverity)
	if err := json.Unmarshal(channelsJSON, &cfg.AlertChannels); err != nil {
		return nil, spanErr(span, fmt.Errorf("unmarshal alert_channels: %w", err))
	}
	if err := json.Unmarshal(recipientsJSON, &cfg.AlertRecipients); err != nil {
		return nil, spanErr(span, fmt.Errorf("unmarshal alert_recipients: %w", err))
	}
	return &cfg, nil
}

// PutConfig stores a tenant's monitoring configuration.
func (s *Store) PutConfig(ctx context.Context, cfg *monitoring.Config) error {
	ctx, span := startSpan(ctx, "pgstore.PutConfig", "UPSERT")
	defer span.End()

	channels, err := json.Marshal(orEmpty(cfg.AlertChannels))
	if err != nil {
		return spanErr(span, fmt.Errorf("marshal alert_channels: %w", err))
	}
	recipients, err := json.Marshal(orEmpty(cfg.AlertRecipients))
	if err != nil {
		return spanErr(span, fmt.Errorf("marshal alert_recipients: %w", err))
	}

	_, err = s.pool.Exec(ctx,
		`INSERT INTO monitoring_configs (
			tenant_id, enabled, breach_monitoring_enabled, scan_interval_seconds,
			min_severity, min_score, min_confidence,
			auto_create_tasks, auto_send_alerts, auto_trigger_assessments, auto_start_workflows,
			default_assessment_id, default_workflow_id, alert_channels, alert_recipients
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15)
		ON CONFLICT (tenant_id) DO UPDATE SET
			enabled = EXCLUDED.enabled,
			breach_monitoring_enabled = EXCLUDED.breach_monitoring_enabled,
			scan_interval_seconds = EXCLUDED.scan_interval_seconds,
			min_severity = EXCLUDED.min_severity,
			min_score = EXCLUDED.min_score,
			min_confidence = EXCLUDED.min_confidence,
			auto_create_tasks = EXCLUDED.auto_create_tasks,
			auto_send_alerts = EXCLUDED.auto_send_alerts,
			auto_trigger_assessments = EXCLUDED.auto_trigger_assessments,
			auto_start_workflows = EXCLUDED.auto_start_workflows,
			default_assessment_id = EXCLUDED.default_assessment_id,
			default_workflow_id = EXCLUDED.default_workflow_id,
			alert_channels = EXCLUDED.alert_channels,
			alert_recipients = EXCLUDED.alert_recipients`,
		cfg.TenantID, cfg.Enabled, cfg.BreachMonitoringEnabled, int(cfg.ScanInterval.Seconds()),
		string(cfg.MinSeverity), cfg.MinScore, cfg.MinConfidence,
		cfg.AutoCreateTasks, cfg.AutoSendAlerts, cfg.AutoTriggerAssessments, cfg.AutoStartWorkflows,
		cfg.DefaultAssessmentID, cfg.DefaultWorkflowID, channels, recipients,
	)
	if err != nil {
		return spanErr(span, fmt.Errorf("upsert config: %w", err))
	}
	return nil
}

// ListTenants implements monitoring.Store: every tenant with a config,
// roster, or incident.
func (s *Store) ListTenants(ctx context.Context) ([]string, error) {
	ctx, span := startSpan(ctx, "pgstore.ListTenants", "SELECT")
	defer span.End()

	rows, err := s.pool.Query(ctx,
		`SELECT tenant_id FROM monitoring_configs
		 UNION SELECT tenant_id FROM vendors
		 UNION SELECT tenant_id FROM incidents
		 ORDER BY tenant_id`,
	)
	if err != nil {
		return nil, spanErr(span, fmt.Errorf("query tenants: %w", err))
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var t string
		if err := rows.Scan(&t); err != nil {
			return nil, spanErr(span, fmt.Errorf("scan tenant: %w", err))
		}
		out = append(out, t)
	}
	if err := rows.Err(); err != nil {
		return nil, spanErr(span, fmt.Errorf("iterate tenants: %w", err))
	}
	return out, nil
}

// ---- notifications ----

// SaveNotification implements the in-app notification sink.
func (s *Store) SaveNotification(ctx context.Context, a *notify.Alert) error {
	ctx, span := startSpan(ctx, "pgstore.SaveNotification", "INSERT")
	defer span.End()

	recipients, err := json.Marshal(orEmpty(a.Recipients))
	if err != nil {
		return spanErr(span, fmt.Errorf("marshal recipients: %w", err))
	}

	_, err = s.pool.Exec(ctx,
		`INSERT INTO notifications (id, tenant_id, tracking_id, vendor_name, severity, subject, body, recipients, created_at)
		 VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)`,
		a.ID, a.TenantID, a.TrackingID, a.VendorName, a.Severity, a.Subject, a.Body, recipients, a.CreatedAt,
	)
	if err != nil {
		return spanErr(span, fmt.Errorf("insert notification: %w", err))
	}
	return nil
}

// orEmpty keeps JSONB columns as [] instead of null for nil slices.
func orEmpty(in []string) []string {
	if in == nil {
		return []string{}
	}
	return in
}
