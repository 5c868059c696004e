// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package commands

import "strings"

// maxSuggestDistance is the largest edit distance still offered as a
// suggestion.
const maxSuggestDistance = 2

// Suggest returns the registered name or alias closest to name, or "" when
// nothing is within two edits. Ties go to the earlier entry of Names.
func (r *Registry) Suggest(name string) string {
	name = strings.ToLower(strings.TrimPrefix(name, "/"))
	if name == "" {
		return ""
	}

	best := ""
	bestDistance := maxSuggestDistance + 1
	for _, candidate := range r.Names() {
		d := levenshteinDistance(name, strings.TrimPrefix(candidate, "/"))
		if d == 0 {
			return ""
		}
		if d < bestDistance {
			best, bestDistance = candidate, d
		}
	}
	return best
}

// levenshteinDistance calculates the edit distance between two strings in
// runes: the minimum number of insertions, deletions or substitutions.
func levenshteinDistance(a, b string) int {
	s1, s2 := []rune(a), []rune(b)
	if len(s1) == 0 {
		return len(s2)
	}
	if len(s2) == 0 {
		return len(s1)
	}

	// Two rows instead of the full matrix.
	prev := make([]int, len(s2)+1)
	curr := make([]int, len(s2)+1)
	for j := range prev {
		prev[j] = j
	}

	for i := 1; i <= len(s1); i++ {
		curr[0] = i
		for j := 1; j <= len(s2); j++ {
			cost := 1
			if s1[i-1] == s2[j-1] {
				cost = 0
			}
			curr[j] = min(prev[j]+1, curr[j-1]+1, prev[j-1]+cost)
		}
		prev, curr = curr, prev
	}
	return prev[len(s2)]
}
