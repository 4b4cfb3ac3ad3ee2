package runtime

import (
	"fmt"

	"golang.org/x/sync/errgroup"
)

// ranks groups an execution order into levels. A node's rank is one more than
// the highest rank among its dependencies, so nodes of one rank never depend
// on each other.
func (s *Scheduler) ranks(order []string) [][]string {
	rank := make(map[string]int, len(order))
	var levels [][]string
	for _, key := range order {
		r := 0
		for _, dep := range s.graph.DependenciesOf(key) {
			if dr, ok := rank[dep]; ok && dr+1 > r {
				r = dr + 1
			}
		}
		rank[key] = r
		for len(levels) <= r {
			levels = append(levels, nil)
		}
		levels[r] = append(levels[r], key)
	}
	return levels
}

// evaluateRanks runs each rank with up to s.workers goroutines. The graph is
// only read while a rank is in flight; dirty flags are cleared once it joins.
func (s *Scheduler) evaluateRanks(r *run, order []string) error {
	for _, level := range s.ranks(order) {
		if err := r.ec.Context().Err(); err != nil {
			return fmt.Errorf("evaluation cancelled before %q: %w", level[0], err)
		}

		dirty := make(map[string]bool, len(level))
		for _, key := range level {
			dirty[key] = s.graph.IsDirty(key)
		}

		g, gctx := errgroup.WithContext(r.ec.Context())
		g.SetLimit(s.workers)
		for _, key := range level {
			g.Go(func() error {
				if gctx.Err() != nil {
					return nil
				}
				reused, err := s.step(r, key, dirty[key])
				if err != nil {
					return err
				}
				r.completed(key, reused)
				return nil
			})
		}
		if err := g.Wait(); err != nil {
			return err
		}

		for _, key := range level {
			s.graph.ClearDirty(key)
		}
	}
	return nil
}
