package optim

import (
	"context"
	"fmt"
	"math"
)

// Objective scores one parameter assignment; lower is better.
type Objective func(ctx context.Context, params map[string]float64) (float64, error)

type GridSearch struct {
	paramNames []string
	ranges     [][]float64
}

func NewGridSearch(params []string, ranges [][]float64) *GridSearch {
	return &GridSearch{paramNames: params, ranges: ranges}
}

// Linspace returns n evenly spaced values over [lo, hi].
func Linspace(lo, hi float64, n int) []float64 {
	if n <= 1 {
		return []float64{lo}
	}
	out := make([]float64, n)
	for i := range out {
		out[i] = lo + float64(i)*(hi-lo)/float64(n-1)
	}
	return out
}

// Search evaluates every grid point in lexical order and returns the first
// point with the lowest score. Failed evaluations are skipped; if every one
// fails the last error is returned.
func (g *GridSearch) Search(ctx context.Context, obj Objective) (map[string]float64, float64, error) {
	if len(g.paramNames) != len(g.ranges) {
		return nil, 0, fmt.Errorf("grid search: %d names for %d ranges", len(g.paramNames), len(g.ranges))
	}
	s := &search{obj: obj, best: math.Inf(1)}
	g.searchRecursive(ctx, 0, make(map[string]float64), s)
	if err := ctx.Err(); err != nil {
		return s.bestParams, s.best, err
	}
	if s.bestParams == nil {
		if s.lastErr == nil {
			s.lastErr = fmt.Errorf("grid search: empty grid")
		}
		return nil, s.best, s.lastErr
	}
	return s.bestParams, s.best, nil
}

type search struct {
	obj        Objective
	best       float64
	bestParams map[string]float64
	lastErr    error
	evals      int
}

func (g *GridSearch) searchRecursive(ctx context.Context, depth int, current map[string]float64, s *search) {
	if ctx.Err() != nil {
		return
	}
	if depth == len(g.paramNames) {
		s.evals++
		val, err := s.obj(ctx, current)
		if err != nil {
			s.lastErr = err
			return
		}
		if val < s.best {
			s.best = val
			s.bestParams = make(map[string]float64, len(current))
			for k, v := range current {
				s.bestParams[k] = v
			}
		}
		return
	}

	paramName := g.paramNames[depth]
	for _, val := range g.ranges[depth] {
		newParams := make(map[string]float64, len(current)+1)
		for k, v := range current {
			newParams[k] = v
		}
		newParams[paramName] = val

		g.searchRecursive(ctx, depth+1, newParams, s)
	}
}
