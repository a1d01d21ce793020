// Package pathsearch finds node-disjoint paths between two node sets.
package pathsearch

// Disjoint runs one breadth-first search from every source at once and
// returns paths that end in a sink and share no node with each other.
//
// The search is greedy: each sink is claimed by the first path that
// reaches it, and a node claimed by a returned path is never reused. The
// result is therefore a first-found layout, not a maximum set of disjoint
// paths; two sources that can only reach distinct sinks through a shared
// node yield a single path. Sinks are not expanded, so a returned path
// contains exactly one sink, its last node. Runs in O(V+E).
func Disjoint[N comparable](sources, sinks []N, next func(N) []N) [][]N {
	isSink := make(map[N]bool, len(sinks))
	for _, s := range sinks {
		isSink[s] = true
	}

	prev := make(map[N]link[N], len(sources))
	queue := make([]N, 0, len(sources))
	for _, s := range sources {
		if _, seen := prev[s]; seen {
			continue
		}
		prev[s] = link[N]{root: true}
		queue = append(queue, s)
	}

	used := make(map[N]bool)
	var paths [][]N

	for len(queue) > 0 {
		n := queue[0]
		queue = queue[1:]

		if isSink[n] {
			if path, ok := reconstruct(n, prev, used); ok {
				paths = append(paths, path)
			}
			continue
		}

		for _, succ := range next(n) {
			if _, seen := prev[succ]; seen {
				continue
			}
			prev[succ] = link[N]{prev: n}
			queue = append(queue, succ)
		}
	}
	return paths
}

// link records how BFS reached a node. root marks a source.
type link[N comparable] struct {
	prev N
	root bool
}

// reconstruct walks prev back from sink. The walk stops at the first node
// already claimed by an earlier path, which disqualifies the whole path;
// every node walked is claimed either way.
func reconstruct[N comparable](sink N, prev map[N]link[N], used map[N]bool) ([]N, bool) {
	var rev []N
	for n := sink; ; n = prev[n].prev {
		if used[n] {
			return nil, false
		}
		used[n] = true
		rev = append(rev, n)
		if prev[n].root {
			break
		}
	}

	path := make([]N, len(rev))
	for i, n := range rev {
		path[len(rev)-1-i] = n
	}
	return path, true
}
