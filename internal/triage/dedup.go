package triage

import (
	"sort"
	"strings"
	"unicode"
)

// duplicateThreshold is the similarity ratio above which two questions are
// treated as asking the same thing.
const duplicateThreshold = 0.6

// normalizeQuestion lowercases, strips punctuation and sorts the words, so
// that rephrasings with the same vocabulary compare as near-identical.
func normalizeQuestion(s string) string {
	var b strings.Builder
	for _, r := range s {
		switch {
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			b.WriteRune(unicode.ToLower(r))
		case unicode.IsSpace(r):
			b.WriteRune(' ')
		}
	}
	words := strings.Fields(b.String())
	sort.Strings(words)
	return strings.Join(words, " ")
}

// IsDuplicate reports whether two questions are semantically equivalent
// rephrasings of each other.
func IsDuplicate(a, b string) bool {
	return similarityRatio(normalizeQuestion(a), normalizeQuestion(b)) > duplicateThreshold
}

// PruneDuplicates filters candidate questions, dropping trivially short ones,
// ones duplicating a forbidden entry (already-asked questions and prior agent
// replies) and ones duplicating an earlier accepted candidate. Order is
// preserved.
func PruneDuplicates(candidates, forbidden []string) []string {
	var kept []string
	for _, cand := range candidates {
		if len(cand) < 5 {
			continue
		}
		dup := false
		for _, f := range forbidden {
			if IsDuplicate(cand, f) {
				dup = true
				break
			}
		}
		if !dup {
			for _, k := range kept {
				if IsDuplicate(cand, k) {
					dup = true
					break
				}
			}
		}
		if !dup {
			kept = append(kept, cand)
		}
	}
	return kept
}

// similarityRatio is 2*M/(len(a)+len(b)) where M is the total size of
// recursively matched blocks, the Ratcliff/Obershelp measure.
func similarityRatio(a, b string) float64 {
	ra, rb := []rune(a), []rune(b)
	total := len(ra) + len(rb)
	if total == 0 {
		return 1
	}
	return 2 * float64(matchedRunes(ra, rb)) / float64(total)
}

func matchedRunes(a, b []rune) int {
	ai, bi, size := longestMatch(a, b)
	if size == 0 {
		return 0
	}
	return size +
		matchedRunes(a[:ai], b[:bi]) +
		matchedRunes(a[ai+size:], b[bi+size:])
}

// longestMatch finds the longest common contiguous block of a and b.
func longestMatch(a, b []rune) (besti, bestj, bestsize int) {
	j2len := make(map[int]int)
	for i := range a {
		next := make(map[int]int)
		for j := range b {
			if a[i] != b[j] {
				continue
			}
			k := j2len[j-1] + 1
			next[j] = k
			if k > bestsize {
				besti, bestj, bestsize = i-k+1, j-k+1, k
			}
		}
		j2len = next
	}
	return besti, bestj, bestsize
}
