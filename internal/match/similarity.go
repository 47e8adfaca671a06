package match

// Ratio computes a normalized similarity between two strings as
// 2*LCS(a,b) / (len(a)+len(b)), in [0, 1]. Inputs are compared as given;
// callers normalize case first. The measure is deterministic and byte-based,
// so no locale-sensitive casing can change a score between runs.
func Ratio(a, b string) float64 {
	if a == b {
		if a == "" {
			return 0
		}
		return 1
	}
	if a == "" || b == "" {
		return 0
	}

	lcs := longestCommonSubsequence(a, b)
	return 2 * float64(lcs) / float64(len(a)+len(b))
}

// longestCommonSubsequence returns the LCS length using the classic DP with
// two rolling rows. Inputs here are short vendor names, so quadratic time is
// fine.
func longestCommonSubsequence(a, b string) int {
	if len(b) > len(a) {
		a, b = b, a
	}

	prev := make([]int, len(b)+1)
	curr := make([]int, len(b)+1)

	for i := 1; i <= len(a); i++ {
		for j := 1; j <= len(b); j++ {
			if a[i-1] == b[j-1] {
				curr[j] = prev[j-1] + 1
			} else if prev[j] >= curr[j-1] {
				curr[j] = prev[j]
			} else {
				curr[j] = curr[j-1]
			}
		}
		prev, curr = curr, prev
	}
	return prev[len(b)]
}
