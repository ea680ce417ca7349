package calltranslate

import "sort"

// closeMatches returns up to n candidates whose similarity ratio to target
// is >= cutoff, ranked by descending similarity, mirroring Python's
// difflib.get_close_matches(target, candidates, n=n, cutoff=cutoff). No
// example repo in the pack ships a fuzzy-match library (DESIGN.md has the
// stdlib-justification entry), so similarity is computed as a
// Levenshtein-distance-derived ratio: 1 - distance/max(len(a), len(b)).
func closeMatches(target string, candidates []string, n int, cutoff float64) []string {
	type scored struct {
		value string
		ratio float64
	}

	var matches []scored
	for _, c := range candidates {
		r := similarityRatio(target, c)
		if r >= cutoff {
			matches = append(matches, scored{value: c, ratio: r})
		}
	}

	sort.SliceStable(matches, func(i, j int) bool {
		return matches[i].ratio > matches[j].ratio
	})

	if len(matches) > n {
		matches = matches[:n]
	}
	out := make([]string, len(matches))
	for i, m := range matches {
		out[i] = m.value
	}
	return out
}

// similarityRatio returns 1 - levenshtein(a,b)/max(len(a),len(b)), in
// [0,1]; two empty strings are maximally similar.
func similarityRatio(a, b string) float64 {
	if a == "" && b == "" {
		return 1
	}
	maxLen := len([]rune(a))
	if bl := len([]rune(b)); bl > maxLen {
		maxLen = bl
	}
	if maxLen == 0 {
		return 1
	}
	dist := levenshtein(a, b)
	return 1 - float64(dist)/float64(maxLen)
}

// levenshtein computes the classic edit distance between two strings using
// a two-row dynamic-programming table.
func levenshtein(a, b string) int {
	ar := []rune(a)
	br := []rune(b)

	prev := make([]int, len(br)+1)
	curr := make([]int, len(br)+1)
	for j := range prev {
		prev[j] = j
	}

	for i := 1; i <= len(ar); i++ {
		curr[0] = i
		for j := 1; j <= len(br); j++ {
			cost := 1
			if ar[i-1] == br[j-1] {
				cost = 0
			}
			deletion := prev[j] + 1
			insertion := curr[j-1] + 1
			substitution := prev[j-1] + cost
			curr[j] = min3(deletion, insertion, substitution)
		}
		prev, curr = curr, prev
	}
	return prev[len(br)]
}

func min3(a, b, c int) int {
	m := a
	if b < m {
		m = b
	}
	if c < m {
		m = c
	}
	return m
}
