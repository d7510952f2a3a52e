package query

// similarity is the Ratcliff/Obershelp ratio 2*M/T, where M counts the
// characters in recursively found longest common blocks and T is the total
// length of both strings.
func similarity(a, b string) float64 {
	ra, rb := []rune(a), []rune(b)
	total := len(ra) + len(rb)
	if total == 0 {
		return 1
	}
	return 2 * float64(matchingRunes(ra, rb)) / float64(total)
}

func matchingRunes(a, b []rune) int {
	i, j, k := longestBlock(a, b)
	if k == 0 {
		return 0
	}
	return k + matchingRunes(a[:i], b[:j]) + matchingRunes(a[i+k:], b[j+k:])
}

// longestBlock returns the earliest longest common substring of a and b as
// start offsets plus length.
func longestBlock(a, b []rune) (int, int, int) {
	var bi, bj, best int
	prev := make([]int, len(b)+1)
	cur := make([]int, len(b)+1)
	for i := 1; i <= len(a); i++ {
		for j := 1; j <= len(b); j++ {
			if a[i-1] != b[j-1] {
				cur[j] = 0
				continue
			}
			cur[j] = prev[j-1] + 1
			if cur[j] > best {
				best = cur[j]
				bi, bj = i-best, j-best
			}
		}
		prev, cur = cur, prev
	}
	return bi, bj, best
}
