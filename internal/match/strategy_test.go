package match

import (
	"math"
	"testing"

	"github.com/linnemanlabs/vendorwatch/internal/incident"
	"github.com/linnemanlabs/vendorwatch/internal/vendor"
)

func approx(a, b float64) bool { return math.Abs(a-b) < 1e-9 }

func TestMatch_ExactName(t *testing.T) {
	t.Parallel()

	e := NewEvaluation(&incident.Incident{AffectedVendors: []string{"Acme  Corp"}})
	r, ok := e.Match(vendor.Vendor{Name: "acme corp"})
	if !ok {
		t.Fatal("expected a match")
	}
	if r.Method != MethodExactName {
		t.Errorf("Method = %q, want %q", r.Method, MethodExactName)
	}
	if r.Confidence != 1.0 {
		t.Errorf("Confidence = %v, want 1.0", r.Confidence)
	}
	if r.Detail.Candidate != "acme corp" {
		t.Errorf("Candidate = %q, want %q", r.Detail.Candidate, "acme corp")
	}
}

func TestMatch_ExactNameFromProductDetail(t *testing.T) {
	t.Parallel()

	// Product-detail vendor names join the candidate union, so an exact hit
	// there is an exact_name match, not a product_detail one.
	e := NewEvaluation(&incident.Incident{
		ProductDetails: []incident.ProductDetail{{Vendor: "Initech", Product: "Gateway"}},
	})
	r, ok := e.Match(vendor.Vendor{Name: "Initech"})
	if !ok {
		t.Fatal("expected a match")
	}
	if r.Method != MethodExactName || r.Confidence != 1.0 {
		t.Errorf("got (%q, %v), want (exact_name, 1.0)", r.Method, r.Confidence)
	}
}

func TestMatch_PartialNameStrong(t *testing.T) {
	t.Parallel()

	e := NewEvaluation(&incident.Incident{AffectedVendors: []string{"Telenium Online Web"}})
	r, ok := e.Match(vendor.Vendor{Name: "Telenium Online"})
	if !ok {
		t.Fatal("expected a match")
	}
	if r.Method != MethodPartialName {
		t.Errorf("Method = %q, want %q", r.Method, MethodPartialName)
	}
	if r.Confidence != 0.95 {
		t.Errorf("Confidence = %v, want 0.95", r.Confidence)
	}
	if !approx(r.Detail.Ratio, 15.0/19.0) {
		t.Errorf("Ratio = %v, want %v", r.Detail.Ratio, 15.0/19.0)
	}
}

func TestMatch_PartialNameWeak(t *testing.T) {
	t.Parallel()

	// 17/27 length ratio lands in the weak band.
	e := NewEvaluation(&incident.Incident{AffectedVendors: []string{"Globex Industrial Group Ltd"}})
	r, ok := e.Match(vendor.Vendor{Name: "Globex Industrial"})
	if !ok {
		t.Fatal("expected a match")
	}
	if r.Method != MethodPartialName {
		t.Errorf("Method = %q, want %q", r.Method, MethodPartialName)
	}
	if r.Confidence != 0.85 {
		t.Errorf("Confidence = %v, want 0.85", r.Confidence)
	}
}

func TestMatch_WordOverlapWhenVendorNameExtends(t *testing.T) {
	t.Parallel()

	// The roster name carries an extra word, so containment does not apply;
	// the shared word set does.
	e := NewEvaluation(&incident.Incident{AffectedVendors: []string{"Telenium Online"}})
	r, ok := e.Match(vendor.Vendor{Name: "Telenium Online Web"})
	if !ok {
		t.Fatal("expected a match")
	}
	if r.Method != MethodWordBased {
		t.Errorf("Method = %q, want %q", r.Method, MethodWordBased)
	}
	if r.Confidence != 0.90 {
		t.Errorf("Confidence = %v, want 0.90", r.Confidence)
	}
}

func TestMatch_WordOverlapRequiresSubset(t *testing.T) {
	t.Parallel()

	// High-ish overlap but neither word set contains the other.
	e := NewEvaluation(&incident.Incident{AffectedVendors: []string{"Acme Security Group"}})
	r, ok := e.Match(vendor.Vendor{Name: "Acme Security Labs"})
	if ok && r.Method == MethodWordBased {
		t.Errorf("word overlap fired without subset containment: %+v", r)
	}
}

func TestMatch_DomainFromSourceURL(t *testing.T) {
	t.Parallel()

	e := NewEvaluation(&incident.Incident{
		SourceURL: "http://initech.com/advisories/2026-014",
	})
	r, ok := e.Match(vendor.Vendor{Name: "Initech Systems", Website: "https://www.initech.com"})
	if !ok {
		t.Fatal("expected a match")
	}
	if r.Method != MethodDomain {
		t.Errorf("Method = %q, want %q", r.Method, MethodDomain)
	}
	if r.Confidence != 0.90 {
		t.Errorf("Confidence = %v, want 0.90", r.Confidence)
	}
	if r.Detail.Domain != "initech.com" {
		t.Errorf("Domain = %q, want initech.com", r.Detail.Domain)
	}
}

func TestMatch_DomainBaseInCandidate(t *testing.T) {
	t.Parallel()

	e := NewEvaluation(&incident.Incident{AffectedVendors: []string{"WayneSoft Security"}})
	r, ok := e.Match(vendor.Vendor{Name: "Wayne Ent", Website: "https://waynesoft.io"})
	if !ok {
		t.Fatal("expected a match")
	}
	if r.Method != MethodDomain {
		t.Errorf("Method = %q, want %q", r.Method, MethodDomain)
	}
	if r.Confidence != 0.85 {
		t.Errorf("Confidence = %v, want 0.85", r.Confidence)
	}
}

func TestMatch_ProductDetailFuzzy(t *testing.T) {
	t.Parallel()

	e := NewEvaluation(&incident.Incident{
		ProductDetails: []incident.ProductDetail{{Vendor: "Inittech", Product: "Gateway", Version: "2.1"}},
	})
	r, ok := e.Match(vendor.Vendor{Name: "Initech"})
	if !ok {
		t.Fatal("expected a match")
	}
	if r.Method != MethodProductDetail {
		t.Errorf("Method = %q, want %q", r.Method, MethodProductDetail)
	}
	ratio := Ratio("inittech", "initech")
	if !approx(r.Confidence, ratio*0.85) {
		t.Errorf("Confidence = %v, want %v", r.Confidence, ratio*0.85)
	}
	if r.Detail.Product != "Gateway" {
		t.Errorf("Product = %q, want Gateway", r.Detail.Product)
	}
}

func TestMatch_DescriptionMention(t *testing.T) {
	t.Parallel()

	e := NewEvaluation(&incident.Incident{
		Description: "A remote code execution flaw was found in the CloudNine platform used for file transfer.",
	})
	r, ok := e.Match(vendor.Vendor{Name: "CloudNine"})
	if !ok {
		t.Fatal("expected a match")
	}
	if r.Method != MethodDescription {
		t.Errorf("Method = %q, want %q", r.Method, MethodDescription)
	}
	if r.Confidence != 0.75 {
		t.Errorf("Confidence = %v, want 0.75", r.Confidence)
	}
	if r.Detail.Keyword != "platform" {
		t.Errorf("Keyword = %q, want platform", r.Detail.Keyword)
	}
}

func TestMatch_DescriptionMentionCompactVariant(t *testing.T) {
	t.Parallel()

	// "Cloud Nine" appears as "cloudnine" in the text.
	e := NewEvaluation(&incident.Incident{
		Description: "the cloudnine software suite is affected by CVE-2026-1111",
	})
	r, ok := e.Match(vendor.Vendor{Name: "Cloud Nine"})
	if !ok {
		t.Fatal("expected a match")
	}
	if r.Method != MethodDescription {
		t.Errorf("Method = %q, want %q", r.Method, MethodDescription)
	}
}

func TestMatch_DescriptionMentionNeedsKeyword(t *testing.T) {
	t.Parallel()

	e := NewEvaluation(&incident.Incident{
		Description: "CloudNine was listed among several affected parties.",
	})
	if r, ok := e.Match(vendor.Vendor{Name: "CloudNine"}); ok {
		t.Errorf("unexpected match without contextual keyword: %+v", r)
	}
}

func TestMatch_DescriptionMentionLaterOccurrence(t *testing.T) {
	t.Parallel()

	// First mention far from any keyword, second one contextualized.
	desc := "cloudnine. " +
		"Unrelated filler text padding this sentence well past the window boundary for sure. " +
		"The cloudnine platform is affected."
	e := NewEvaluation(&incident.Incident{Description: desc})
	r, ok := e.Match(vendor.Vendor{Name: "CloudNine"})
	if !ok {
		t.Fatal("expected a match on the contextualized mention")
	}
	if r.Method != MethodDescription {
		t.Errorf("Method = %q, want %q", r.Method, MethodDescription)
	}
}

func TestMatch_DescriptionSkipsShortNames(t *testing.T) {
	t.Parallel()

	e := NewEvaluation(&incident.Incident{
		Description: "the ab vendor platform is affected",
	})
	if r, ok := e.Match(vendor.Vendor{Name: "AB"}); ok {
		t.Errorf("unexpected match for a two-character name: %+v", r)
	}
}

func TestMatch_FuzzyName(t *testing.T) {
	t.Parallel()

	e := NewEvaluation(&incident.Incident{AffectedVendors: []string{"Acme Corp"}})
	r, ok := e.Match(vendor.Vendor{Name: "Akme Corp"})
	if !ok {
		t.Fatal("expected a match")
	}
	if r.Method != MethodFuzzyName {
		t.Errorf("Method = %q, want %q", r.Method, MethodFuzzyName)
	}
	ratio := Ratio("acme corp", "akme corp")
	if !approx(r.Confidence, ratio*0.8) {
		t.Errorf("Confidence = %v, want %v", r.Confidence, ratio*0.8)
	}
}

func TestMatch_NoMatch(t *testing.T) {
	t.Parallel()

	e := NewEvaluation(&incident.Incident{AffectedVendors: []string{"Globex"}})
	if r, ok := e.Match(vendor.Vendor{Name: "Acme Corp"}); ok {
		t.Errorf("unexpected match: %+v", r)
	}
}

func TestMatch_EmptyVendorName(t *testing.T) {
	t.Parallel()

	e := NewEvaluation(&incident.Incident{AffectedVendors: []string{"Acme"}})
	if _, ok := e.Match(vendor.Vendor{Name: "   "}); ok {
		t.Error("unexpected match for blank vendor name")
	}
}

func TestMatch_ExactBeatsDescription(t *testing.T) {
	t.Parallel()

	e := NewEvaluation(&incident.Incident{
		AffectedVendors: []string{"Acme Corp"},
		Description:     "the acme corp platform is affected",
	})
	r, ok := e.Match(vendor.Vendor{Name: "Acme Corp"})
	if !ok {
		t.Fatal("expected a match")
	}
	if r.Method != MethodExactName {
		t.Errorf("Method = %q, want %q", r.Method, MethodExactName)
	}
}

func TestNewEvaluation_DedupesCandidates(t *testing.T) {
	t.Parallel()

	e := NewEvaluation(&incident.Incident{
		AffectedVendors: []string{" ACME  Corp ", "acme corp"},
		ProductDetails:  []incident.ProductDetail{{Vendor: "Acme Corp"}},
	})
	if len(e.candidates) != 1 {
		t.Errorf("candidates = %v, want one deduped entry", e.candidates)
	}
}
