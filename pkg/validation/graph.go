package validation

// HasCycle detects any cycle in a directed graph using DFS with coloring.
// nodes fixes the visiting order; adj maps a vertex to its successors.
func HasCycle[K comparable](nodes []K, adj map[K][]K) bool {
	const (
		white = 0 // unvisited
		gray  = 1 // visiting
		black = 2 // visited
	)
	color := make(map[K]int, len(nodes))
	var dfs func(K) bool
	dfs = func(u K) bool {
		color[u] = gray
		for _, v := range adj[u] {
			if color[v] == gray {
				return true // back-edge
			}
			if color[v] == white {
				if dfs(v) {
					return true
				}
			}
		}
		color[u] = black
		return false
	}
	for _, id := range nodes {
		if color[id] == white {
			if dfs(id) {
				return true
			}
		}
	}
	return false
}
