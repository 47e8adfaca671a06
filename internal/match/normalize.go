package match

import (
	"net/url"
	"strings"
)

// normalizeName lowercases and collapses runs of whitespace to single spaces.
func normalizeName(s string) string {
	return strings.Join(strings.Fields(strings.ToLower(s)), " ")
}

// nameVariants returns the normalized name plus compact forms with the
// separators feeds commonly drop (spaces, hyphens, underscores). Used when
// hunting for a vendor mention inside free text.
func nameVariants(name string) []string {
	n := normalizeName(name)
	if n == "" {
		return nil
	}

	seen := map[string]bool{n: true}
	variants := []string{n}
	for _, compact := range []string{
		strings.ReplaceAll(n, " ", ""),
		strings.ReplaceAll(n, "-", ""),
		strings.ReplaceAll(n, "_", ""),
		strings.ReplaceAll(strings.ReplaceAll(n, "-", " "), "_", " "),
	} {
		if compact != "" && !seen[compact] {
			seen[compact] = true
			variants = append(variants, compact)
		}
	}
	return variants
}

// wordSet splits a normalized name into its unique words.
func wordSet(s string) map[string]bool {
	set := make(map[string]bool)
	for _, w := range strings.Fields(normalizeName(s)) {
		set[w] = true
	}
	return set
}

// isSubset reports whether every key of a is present in b.
func isSubset(a, b map[string]bool) bool {
	if len(a) > len(b) {
		return false
	}
	for w := range a {
		if !b[w] {
			return false
		}
	}
	return true
}

// domainOf extracts the lowercased host from a URL or bare domain, with any
// leading "www." stripped. Returns "" when nothing host-like is present.
func domainOf(raw string) string {
	raw = strings.TrimSpace(strings.ToLower(raw))
	if raw == "" {
		return ""
	}

	if !strings.Contains(raw, "://") {
		raw = "https://" + raw
	}
	u, err := url.Parse(raw)
	if err != nil || u.Hostname() == "" {
		return ""
	}
	return strings.TrimPrefix(u.Hostname(), "www.")
}

// domainBase returns the registrable label of a domain: "acme" for
// "acme.example.co". Used for substring checks against affected-vendor
// strings, where the TLD is noise.
func domainBase(domain string) string {
	parts := strings.Split(domain, ".")
	if len(parts) == 0 {
		return ""
	}
	return parts[0]
}
