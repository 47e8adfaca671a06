package correlate

import (
	"context"
	"fmt"
	"runtime"
	"sync"

	"github.com/linnemanlabs/go-core/log"

	"github.com/linnemanlabs/vendorwatch/internal/incident"
	"github.com/linnemanlabs/vendorwatch/internal/match"
	"github.com/linnemanlabs/vendorwatch/internal/vendor"
)

// Candidate is one qualifying vendor match for an incident.
type Candidate struct {
	Vendor vendor.Vendor
	Result match.Result
}

// Correlator runs the match strategy set against a tenant's roster for one
// incident. Matching is CPU-bound string work with no I/O, so vendors are
// fanned out across a bounded worker pool.
type Correlator struct {
	logger  log.Logger
	workers int
}

// NewCorrelator creates a correlator. workers <= 0 selects CPU-count*4.
func NewCorrelator(logger log.Logger, workers int) *Correlator {
	if logger == nil {
		logger = log.Nop()
	}
	if workers <= 0 {
		workers = runtime.NumCPU() * 4
	}
	return &Correlator{logger: logger, workers: workers}
}

// Correlate evaluates every vendor against the incident and returns those
// whose winning confidence clears minConfidence. A failure evaluating one
// vendor is logged and does not abort the rest.
func (c *Correlator) Correlate(ctx context.Context, inc *incident.Incident, vendors []vendor.Vendor, minConfidence float64) []Candidate {
	if len(vendors) == 0 {
		return nil
	}

	eval := match.NewEvaluation(inc)

	// one slot per vendor keeps results in roster order without locking
	results := make([]*Candidate, len(vendors))

	n := c.workers
	if n > len(vendors) {
		n = len(vendors)
	}

	jobs := make(chan int)
	var wg sync.WaitGroup
	wg.Add(n)
	for w := 0; w < n; w++ {
		go func() {
			defer wg.Done()
			for i := range jobs {
				c.evalVendor(ctx, eval, inc, vendors[i], minConfidence, &results[i])
			}
		}()
	}

feed:
	for i := range vendors {
		select {
		case jobs <- i:
		case <-ctx.Done():
			break feed
		}
	}
	close(jobs)
	wg.Wait()

	var out []Candidate
	for _, r := range results {
		if r != nil {
			out = append(out, *r)
		}
	}
	return out
}

// evalVendor scores a single vendor, isolating panics from malformed
// incident payloads so one bad vendor evaluation cannot take down the batch.
func (c *Correlator) evalVendor(ctx context.Context, eval *match.Evaluation, inc *incident.Incident, v vendor.Vendor, minConfidence float64, slot **Candidate) {
	defer func() {
		if rec := recover(); rec != nil {
			c.logger.Error(ctx, fmt.Errorf("panic: %v", rec), "vendor match evaluation failed",
				"incident", inc.ID,
				"vendor", v.ID,
			)
		}
	}()

	result, ok := eval.Match(v)
	if !ok || result.Confidence < minConfidence {
		return
	}
	*slot = &Candidate{Vendor: v, Result: result}
}
