// Package similarity scores how close two text spans are, for finding deduplication.
package similarity

// DuplicateThreshold is the similarity above which two spans are the same finding.
const DuplicateThreshold = 0.8

// Similarity returns (maxLen - editDistance) / maxLen over runes, 1.0 for two empty strings.
func Similarity(a, b string) float64 {
	ra, rb := []rune(a), []rune(b)
	longest := max(len(ra), len(rb))
	if longest == 0 {
		return 1.0
	}
	return float64(longest-levenshtein(ra, rb)) / float64(longest)
}

// Levenshtein is the classic edit distance with unit insert, delete and substitute costs.
func Levenshtein(a, b string) int {
	return levenshtein([]rune(a), []rune(b))
}

func levenshtein(a, b []rune) int {
	n, m := len(a), len(b)
	table := make([][]int, n+1)
	for i := range table {
		table[i] = make([]int, m+1)
		table[i][0] = i
	}
	for j := 0; j <= m; j++ {
		table[0][j] = j
	}

	for i := 1; i <= n; i++ {
		for j := 1; j <= m; j++ {
			cost := 1
			if a[i-1] == b[j-1] {
				cost = 0
			}
			table[i][j] = min(
				table[i-1][j]+1,
				table[i][j-1]+1,
				table[i-1][j-1]+cost,
			)
		}
	}
	return table[n][m]
}

// IsDuplicate reports whether candidate is more than DuplicateThreshold similar to any known text.
func IsDuplicate(candidate string, known []string) bool {
	for _, text := range known {
		if Similarity(candidate, text) > DuplicateThreshold {
			return true
		}
	}
	return false
}
