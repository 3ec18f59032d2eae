// Package textutil provides text similarity and price parsing helpers shared
// by the extractors and the change detector.
package textutil

import "strings"

// Similarity computes the Ratcliff/Obershelp ratio between two strings,
// matching Python difflib.SequenceMatcher.ratio() semantics: twice the
// number of matching characters divided by the total length. Inputs are
// compared case-insensitively with collapsed whitespace.
func Similarity(a, b string) float64 {
	a = normalize(a)
	b = normalize(b)
	if a == b {
		return 1.0
	}
	if len(a) == 0 || len(b) == 0 {
		return 0.0
	}
	matches := matchingBlocks([]rune(a), []rune(b))
	return 2.0 * float64(matches) / float64(len([]rune(a))+len([]rune(b)))
}

func normalize(s string) string {
	return strings.Join(strings.Fields(strings.ToLower(s)), " ")
}

// matchingBlocks returns the total number of matching characters found by
// recursively locating the longest common substring, as SequenceMatcher does.
func matchingBlocks(a, b []rune) int {
	type span struct{ alo, ahi, blo, bhi int }
	total := 0
	stack := []span{{0, len(a), 0, len(b)}}
	for len(stack) > 0 {
		s := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		ai, bi, size := longestMatch(a, b, s.alo, s.ahi, s.blo, s.bhi)
		if size == 0 {
			continue
		}
		total += size
		stack = append(stack,
			span{s.alo, ai, s.blo, bi},
			span{ai + size, s.ahi, bi + size, s.bhi},
		)
	}
	return total
}

func longestMatch(a, b []rune, alo, ahi, blo, bhi int) (besti, bestj, bestsize int) {
	besti, bestj = alo, blo
	// j2len[j] = length of longest match ending at a[i-1], b[j-1]
	j2len := make(map[int]int)
	for i := alo; i < ahi; i++ {
		newj2len := make(map[int]int)
		for j := blo; j < bhi; j++ {
			if a[i] == b[j] {
				k := j2len[j-1] + 1
				newj2len[j] = k
				if k > bestsize {
					besti, bestj, bestsize = i-k+1, j-k+1, k
				}
			}
		}
		j2len = newj2len
	}
	return besti, bestj, bestsize
}
