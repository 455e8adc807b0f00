package diagnostics

import "sort"

// Distance returns the Damerau-Levenshtein distance between a and b, in the
// restricted form where a transposition counts as a single edit.
func Distance(a, b string) int {
	s1, s2 := []rune(a), []rune(b)
	if len(s1) == 0 {
		return len(s2)
	}
	if len(s2) == 0 {
		return len(s1)
	}

	matrix := make([][]int, len(s1)+1)
	for i := range matrix {
		matrix[i] = make([]int, len(s2)+1)
		matrix[i][0] = i
	}
	for j := 0; j <= len(s2); j++ {
		matrix[0][j] = j
	}

	for i := 1; i <= len(s1); i++ {
		for j := 1; j <= len(s2); j++ {
			cost := 1
			if s1[i-1] == s2[j-1] {
				cost = 0
			}
			d := min(
				matrix[i-1][j]+1,      // deletion
				matrix[i][j-1]+1,      // insertion
				matrix[i-1][j-1]+cost, // substitution
			)
			if i > 1 && j > 1 && s1[i-1] == s2[j-2] && s1[i-2] == s2[j-1] {
				d = min(d, matrix[i-2][j-2]+1) // transposition
			}
			matrix[i][j] = d
		}
	}
	return matrix[len(s1)][len(s2)]
}

// WithinOne reports whether a and b are exactly one edit apart.
func WithinOne(a, b string) bool {
	la, lb := len([]rune(a)), len([]rune(b))
	if la-lb > 1 || lb-la > 1 {
		return false
	}
	return Distance(a, b) == 1
}

// Similar returns the candidates exactly one edit away from name, sorted and
// without duplicates.
func Similar(name string, candidates []string) []string {
	seen := make(map[string]bool)
	var result []string
	for _, c := range candidates {
		if seen[c] || !WithinOne(name, c) {
			continue
		}
		seen[c] = true
		result = append(result, c)
	}
	sort.Strings(result)
	return result
}
