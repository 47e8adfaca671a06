// Package match scores how likely a vendor is the subject of an incident.
// It runs a fixed-priority set of heuristics, most specific first; the first
// strategy clearing its own floor wins, so a weak fuzzy hit can never mask a
// strong exact hit.
package match

import (
	"strings"

	"github.com/linnemanlabs/vendorwatch/internal/incident"
	"github.com/linnemanlabs/vendorwatch/internal/vendor"
)

// Method tags identify which strategy produced a match.
const (
	MethodExactName     = "exact_name"
	MethodPartialName   = "partial_name"
	MethodWordBased     = "word_based"
	MethodDomain        = "domain_match"
	MethodProductDetail = "product_detail"
	MethodDescription   = "description_mention"
	MethodFuzzyName     = "fuzzy_name"
)

// Hand-tuned floors and weights. Kept as package constants so a calibration
// pass against labeled data only touches this file.
const (
	// fuzzyFloor is the minimum raw similarity for a fuzzy-only match.
	fuzzyFloor = 0.5

	// fuzzyPenalty discounts fuzzy-only confidence relative to raw similarity.
	fuzzyPenalty = 0.8

	// partialStrongRatio and partialWeakRatio are length-ratio cutoffs for
	// substring containment.
	partialStrongRatio = 0.7
	partialWeakRatio   = 0.5

	// wordOverlapFloor is the minimum Jaccard ratio for word-set overlap.
	wordOverlapFloor = 0.6

	// productDetailFuzzyFloor is the minimum similarity against an explicit
	// product-detail vendor field.
	productDetailFuzzyFloor = 0.7

	descriptionConfidence = 0.75
)

// contextKeywords must appear near a name mention in free text for the
// description strategy to fire.
var contextKeywords = []string{
	"vendor", "company", "software", "product", "application", "system", "platform",
}

const descriptionWindow = 50

// minMentionLen guards the description strategy against firing on very short
// vendor names that collide with ordinary words.
const minMentionLen = 3

// Detail explains a match. Fields are per-method; unused ones are omitted.
type Detail struct {
	// Candidate is the incident-side identifier string that matched.
	Candidate string `json:"candidate,omitempty"`

	// Ratio is the similarity or length ratio behind a non-exact match.
	Ratio float64 `json:"ratio,omitempty"`

	// Domain is the matched website domain for domain matches.
	Domain string `json:"domain,omitempty"`

	// Keyword is the contextual keyword found near a description mention.
	Keyword string `json:"keyword,omitempty"`

	// Product is the product name from a matched product-detail entry.
	Product string `json:"product,omitempty"`
}

// Result is a successful match: how confident, by which method, and why.
type Result struct {
	Confidence float64 `json:"confidence"`
	Method     string  `json:"method"`
	Detail     Detail  `json:"detail"`
}

// Evaluation holds the incident-side identifiers precomputed once per
// incident, so matching many vendors against it stays cheap.
type Evaluation struct {
	candidates   []string // normalized affected-vendor strings plus product-detail vendor names
	details      []incident.ProductDetail
	description  string // lowercased free text
	sourceDomain string
}

// NewEvaluation prepares an incident for matching. It unions the
// affected-vendor strings with vendor names embedded in structured
// product-detail entries; the raw description is kept for the mention
// strategy.
func NewEvaluation(inc *incident.Incident) *Evaluation {
	e := &Evaluation{
		details:      inc.ProductDetails,
		description:  strings.ToLower(inc.Description),
		sourceDomain: domainOf(inc.SourceURL),
	}

	seen := make(map[string]bool)
	add := func(raw string) {
		n := normalizeName(raw)
		if n == "" || seen[n] {
			return
		}
		seen[n] = true
		e.candidates = append(e.candidates, n)
	}
	for _, av := range inc.AffectedVendors {
		add(av)
	}
	for _, pd := range inc.ProductDetails {
		add(pd.Vendor)
	}
	return e
}

// strategies in fixed priority order. Each returns ok only when it clears
// its own floor.
var strategies = []func(*Evaluation, string, vendor.Vendor) (Result, bool){
	matchExactName,
	matchPartialName,
	matchWordOverlap,
	matchDomain,
	matchProductDetail,
	matchDescription,
	matchFuzzyName,
}

// Match runs the strategy set against one vendor. The first strategy to
// produce a qualifying confidence short-circuits the rest.
func (e *Evaluation) Match(v vendor.Vendor) (Result, bool) {
	name := normalizeName(v.Name)
	if name == "" {
		return Result{}, false
	}

	for _, s := range strategies {
		if r, ok := s(e, name, v); ok {
			return r, true
		}
	}
	return Result{}, false
}

func matchExactName(e *Evaluation, name string, _ vendor.Vendor) (Result, bool) {
	for _, c := range e.candidates {
		if c == name {
			return Result{
				Confidence: 1.0,
				Method:     MethodExactName,
				Detail:     Detail{Candidate: c},
			}, true
		}
	}
	return Result{}, false
}

// matchPartialName fires when an affected-vendor string carries the full
// vendor name inside it ("Acme Corp" listed as "Acme Corp Holdings Inc").
// The opposite direction, a vendor name that extends the affected string, is
// left to the word-overlap strategy so that extra words on the roster side
// lower confidence instead of raising it.
func matchPartialName(e *Evaluation, name string, _ vendor.Vendor) (Result, bool) {
	var best Result
	for _, c := range e.candidates {
		if c == name || !strings.Contains(c, name) {
			continue
		}

		shorter, longer := len(c), len(name)
		if shorter > longer {
			shorter, longer = longer, shorter
		}
		ratio := float64(shorter) / float64(longer)

		var conf float64
		switch {
		case ratio >= partialStrongRatio:
			conf = 0.95
		case ratio >= partialWeakRatio:
			conf = 0.85
		default:
			continue
		}
		if conf > best.Confidence {
			best = Result{
				Confidence: conf,
				Method:     MethodPartialName,
				Detail:     Detail{Candidate: c, Ratio: ratio},
			}
		}
	}
	return best, best.Confidence > 0
}

func matchWordOverlap(e *Evaluation, name string, _ vendor.Vendor) (Result, bool) {
	vw := wordSet(name)
	if len(vw) == 0 {
		return Result{}, false
	}

	for _, c := range e.candidates {
		cw := wordSet(c)
		if len(cw) == 0 {
			continue
		}

		inter := 0
		for w := range vw {
			if cw[w] {
				inter++
			}
		}
		union := len(vw) + len(cw) - inter
		jaccard := float64(inter) / float64(union)

		if jaccard >= wordOverlapFloor && (isSubset(vw, cw) || isSubset(cw, vw)) {
			return Result{
				Confidence: 0.90,
				Method:     MethodWordBased,
				Detail:     Detail{Candidate: c, Ratio: jaccard},
			}, true
		}
	}
	return Result{}, false
}

func matchDomain(e *Evaluation, _ string, v vendor.Vendor) (Result, bool) {
	vd := domainOf(v.Website)
	if vd == "" {
		return Result{}, false
	}

	if e.sourceDomain != "" && vd == e.sourceDomain {
		return Result{
			Confidence: 0.90,
			Method:     MethodDomain,
			Detail:     Detail{Domain: vd},
		}, true
	}

	base := domainBase(vd)
	if len(base) < minMentionLen {
		return Result{}, false
	}
	for _, c := range e.candidates {
		if strings.Contains(strings.ReplaceAll(c, " ", ""), base) {
			return Result{
				Confidence: 0.85,
				Method:     MethodDomain,
				Detail:     Detail{Domain: vd, Candidate: c},
			}, true
		}
	}
	return Result{}, false
}

func matchProductDetail(e *Evaluation, name string, _ vendor.Vendor) (Result, bool) {
	var best Result
	for _, pd := range e.details {
		pn := normalizeName(pd.Vendor)
		if pn == "" {
			continue
		}

		if pn == name {
			return Result{
				Confidence: 0.95,
				Method:     MethodProductDetail,
				Detail:     Detail{Candidate: pn, Product: pd.Product},
			}, true
		}

		ratio := Ratio(pn, name)
		if ratio < productDetailFuzzyFloor {
			continue
		}
		if conf := ratio * 0.85; conf > best.Confidence {
			best = Result{
				Confidence: conf,
				Method:     MethodProductDetail,
				Detail:     Detail{Candidate: pn, Product: pd.Product, Ratio: ratio},
			}
		}
	}
	return best, best.Confidence > 0
}

func matchDescription(e *Evaluation, name string, v vendor.Vendor) (Result, bool) {
	if e.description == "" {
		return Result{}, false
	}

	for _, variant := range nameVariants(v.Name) {
		if len(variant) < minMentionLen {
			continue
		}

		// check every occurrence; an early mention without context must not
		// hide a later contextualized one
		for from := 0; ; {
			idx := strings.Index(e.description[from:], variant)
			if idx < 0 {
				break
			}
			idx += from

			lo := max(0, idx-descriptionWindow)
			hi := min(len(e.description), idx+len(variant)+descriptionWindow)
			window := e.description[lo:hi]

			for _, kw := range contextKeywords {
				if strings.Contains(window, kw) {
					return Result{
						Confidence: descriptionConfidence,
						Method:     MethodDescription,
						Detail:     Detail{Candidate: variant, Keyword: kw},
					}, true
				}
			}
			from = idx + len(variant)
		}
	}
	return Result{}, false
}

func matchFuzzyName(e *Evaluation, name string, _ vendor.Vendor) (Result, bool) {
	var bestRatio float64
	var bestCandidate string
	for _, c := range e.candidates {
		if r := Ratio(c, name); r > bestRatio {
			bestRatio, bestCandidate = r, c
		}
	}
	if bestRatio < fuzzyFloor {
		return Result{}, false
	}
	return Result{
		Confidence: bestRatio * fuzzyPenalty,
		Method:     MethodFuzzyName,
		Detail:     Detail{Candidate: bestCandidate, Ratio: bestRatio},
	}, true
}
