package optim

import (
	"context"
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLinspace(t *testing.T) {
	assert.Equal(t, []float64{0, 0.5, 1}, Linspace(0, 1, 3))
	assert.Equal(t, []float64{2}, Linspace(2, 5, 1))
}

func TestGridSearchFindsMinimum(t *testing.T) {
	gs := NewGridSearch([]string{"x", "y"}, [][]float64{Linspace(-1, 1, 5), Linspace(0, 2, 5)})
	calls := 0
	best, val, err := gs.Search(context.Background(), func(_ context.Context, p map[string]float64) (float64, error) {
		calls++
		return (p["x"]-0.5)*(p["x"]-0.5) + (p["y"]-1.5)*(p["y"]-1.5), nil
	})
	require.NoError(t, err)
	assert.Equal(t, 25, calls)
	assert.Equal(t, 0.5, best["x"])
	assert.Equal(t, 1.5, best["y"])
	assert.Equal(t, 0.0, val)
}

func TestGridSearchSkipsFailures(t *testing.T) {
	gs := NewGridSearch([]string{"x"}, [][]float64{{1, 2, 3}})
	best, val, err := gs.Search(context.Background(), func(_ context.Context, p map[string]float64) (float64, error) {
		if p["x"] == 1 {
			return 0, errors.New("unstable")
		}
		return p["x"], nil
	})
	require.NoError(t, err)
	assert.Equal(t, 2.0, best["x"])
	assert.Equal(t, 2.0, val)

	_, _, err = gs.Search(context.Background(), func(context.Context, map[string]float64) (float64, error) {
		return 0, errors.New("always")
	})
	assert.Error(t, err)
}

func TestGridSearchCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	gs := NewGridSearch([]string{"x"}, [][]float64{{1, 2}})
	_, _, err := gs.Search(ctx, func(context.Context, map[string]float64) (float64, error) { return 0, nil })
	assert.ErrorIs(t, err, context.Canceled)
}

func TestEvaluateDefaultGains(t *testing.T) {
	sc := DefaultPLLScenario()
	r, err := sc.Evaluate(0.5, 0.1)
	require.NoError(t, err)
	assert.Less(t, r.FinalError, 0.1)
	assert.Less(t, r.SettleTime, sc.Duration)
	assert.InDelta(t, r.FinalError+sc.SettleScale*r.SettleTime, r.Value, 1e-12)

	_, err = sc.Evaluate(3, 0.1)
	assert.Error(t, err)
}

func TestTunePLL(t *testing.T) {
	res, err := TunePLL(context.Background(), DefaultPLLScenario(), 5, nil)
	require.NoError(t, err)

	assert.GreaterOrEqual(t, res.Kp, 0.0)
	assert.LessOrEqual(t, res.Kp, 2.0)
	assert.GreaterOrEqual(t, res.Ki, 0.0)
	assert.LessOrEqual(t, res.Ki, 1.0)
	assert.LessOrEqual(t, res.Score.Value, res.Grid.Value)
	assert.Greater(t, res.Evals, 25)
	assert.False(t, math.IsInf(res.Score.Value, 0))
}
