package sequencer

import (
	"fmt"

	"github.com/ashokba6266/s3-vpc-endpoint/internal/state"
)

// order validates the dependency graph and returns steps in creation order.
//
// A dependency role is satisfied either by a step in this run that produces
// it or by a record already in the store (from an earlier stage). Validation
// happens before any provider call: a missing role or a cycle fails the whole
// run up front.
func order(steps []Step, st *state.Store) ([]Step, error) {
	producer := make(map[string]int) // role -> step index
	for i, s := range steps {
		for _, role := range s.Produces() {
			if prev, dup := producer[role]; dup {
				return nil, fmt.Errorf("role %q produced by both %s and %s",
					role, steps[prev].Name(), s.Name())
			}
			producer[role] = i
		}
	}

	// Edges between steps in this run. Roles satisfied by the store need no
	// edge; unknown roles are a hard error.
	edges := make([][]int, len(steps))
	for i, s := range steps {
		seen := make(map[int]bool)
		for _, role := range s.DependsOn() {
			if j, ok := producer[role]; ok {
				if j != i && !seen[j] {
					edges[i] = append(edges[i], j)
					seen[j] = true
				}
				continue
			}
			if st.Has(role) {
				continue
			}
			return nil, &state.MissingDependencyError{Role: role}
		}
	}

	inDegree := make([]int, len(steps))
	dependents := make([][]int, len(steps))
	for i, deps := range edges {
		inDegree[i] = len(deps)
		for _, j := range deps {
			dependents[j] = append(dependents[j], i)
		}
	}

	// Kahn's algorithm. Ready steps are taken in declaration order so the
	// result is reproducible across runs.
	var sorted []Step
	done := make([]bool, len(steps))
	for len(sorted) < len(steps) {
		picked := -1
		for i := range steps {
			if !done[i] && inDegree[i] == 0 {
				picked = i
				break
			}
		}
		if picked < 0 {
			var cycle []string
			for i, s := range steps {
				if !done[i] {
					cycle = append(cycle, s.Name())
				}
			}
			return nil, &CycleError{Steps: cycle}
		}
		done[picked] = true
		sorted = append(sorted, steps[picked])
		for _, dep := range dependents[picked] {
			inDegree[dep]--
		}
	}

	return sorted, nil
}

// reverse returns steps in reverse order (destruction order).
func reverse(steps []Step) []Step {
	out := make([]Step, len(steps))
	for i, s := range steps {
		out[len(steps)-1-i] = s
	}
	return out
}
