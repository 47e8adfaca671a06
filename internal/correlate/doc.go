// Package correlate is the business boundary of the correlation engine. It
// defines the Correlator (per-incident vendor matching with a bounded worker
// pool), the Service (scan orchestration, tracking lifecycle operations,
// automation dispatch), and the Scheduler (per-tenant scan cadence).
package correlate
