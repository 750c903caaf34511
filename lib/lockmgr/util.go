package lockmgr

import "sort"

// sortedUnique returns the keys sorted lexicographically without duplicates.
// The input slice is not modified.
func sortedUnique(keys []string) []string {
	out := make([]string, len(keys))
	copy(out, keys)
	sort.Strings(out)

	n := 0
	for i, k := range out {
		if i == 0 || k != out[n-1] {
			out[n] = k
			n++
		}
	}
	return out[:n]
}
