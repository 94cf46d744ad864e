package onnx

// Node returns the node with the given name.
func (g *GraphProto) Node(name string) (*NodeProto, bool) {
	for i := range g.Nodes {
		if g.Nodes[i].Name == name {
			return &g.Nodes[i], true
		}
	}
	return nil, false
}

// Between returns, in execution order, the nodes lying on a path from any of
// the start nodes to any of the end nodes. An empty start set means the graph
// inputs, an empty end set means the graph outputs. Unknown names select nothing.
func (g *GraphProto) Between(start, end []string) []NodeProto {
	sorted := topologicalSort(g.Nodes)

	producer := make(map[string]int, len(sorted))
	for i := range sorted {
		for _, out := range sorted[i].Outputs {
			producer[out] = i
		}
	}

	forward := make([]bool, len(sorted))
	startSet := toSet(start)
	for i := range sorted {
		if len(start) == 0 || startSet[sorted[i].Name] {
			forward[i] = true
			continue
		}
		for _, in := range sorted[i].Inputs {
			if p, ok := producer[in]; ok && forward[p] {
				forward[i] = true
				break
			}
		}
	}

	backward := make([]bool, len(sorted))
	endSet := toSet(end)
	for i := len(sorted) - 1; i >= 0; i-- {
		if len(end) == 0 || endSet[sorted[i].Name] {
			backward[i] = true
		}
		if !backward[i] {
			continue
		}
		for _, in := range sorted[i].Inputs {
			if p, ok := producer[in]; ok {
				backward[p] = true
			}
		}
	}

	result := make([]NodeProto, 0, len(sorted))
	for i := range sorted {
		if forward[i] && backward[i] {
			result = append(result, sorted[i])
		}
	}
	return result
}

func toSet(names []string) map[string]bool {
	set := make(map[string]bool, len(names))
	for _, n := range names {
		set[n] = true
	}
	return set
}

// topologicalSort sorts nodes in execution order.
// Ensures dependencies are executed before dependents.
func topologicalSort(nodes []NodeProto) []NodeProto {
	// Build output-to-node map
	outputToNode := make(map[string]int)
	for i := range nodes {
		for _, output := range nodes[i].Outputs {
			outputToNode[output] = i
		}
	}

	// Track visited and result
	visited := make([]bool, len(nodes))
	result := make([]NodeProto, 0, len(nodes))

	var visit func(i int)
	visit = func(i int) {
		if visited[i] {
			return
		}
		visited[i] = true

		// Visit dependencies first
		for _, input := range nodes[i].Inputs {
			if depIdx, ok := outputToNode[input]; ok {
				visit(depIdx)
			}
		}

		result = append(result, nodes[i])
	}

	for i := range nodes {
		visit(i)
	}

	return result
}
