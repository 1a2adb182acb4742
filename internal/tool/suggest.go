package tool

import "strings"

// suggestLocked finds the closest known name to an unknown one.
// Prefix and substring matches win over edit distance; distance is
// capped at 2 so wildly different names produce no hint.
// Caller must hold at least the read lock.
func (r *Registry) suggestLocked(name string) string {
	lower := strings.ToLower(name)

	candidates := make([]string, 0, len(r.tools)+len(r.aliases))
	for n := range r.tools {
		candidates = append(candidates, n)
	}
	for a := range r.aliases {
		candidates = append(candidates, a)
	}

	best := ""
	bestDist := 3
	for _, c := range candidates {
		cl := strings.ToLower(c)
		if strings.HasPrefix(cl, lower) || strings.HasPrefix(lower, cl) {
			return c
		}
		if strings.Contains(cl, lower) || strings.Contains(lower, cl) {
			return c
		}
		if d := editDistance(lower, cl); d < bestDist {
			bestDist = d
			best = c
		}
	}
	return best
}

func editDistance(a, b string) int {
	if len(a) == 0 {
		return len(b)
	}
	if len(b) == 0 {
		return len(a)
	}
	prev := make([]int, len(b)+1)
	curr := make([]int, len(b)+1)
	for j := range prev {
		prev[j] = j
	}
	for i := 1; i <= len(a); i++ {
		curr[0] = i
		for j := 1; j <= len(b); j++ {
			cost := 1
			if a[i-1] == b[j-1] {
				cost = 0
			}
			curr[j] = min(prev[j]+1, curr[j-1]+1, prev[j-1]+cost)
		}
		prev, curr = curr, prev
	}
	return prev[len(b)]
}
