package optim

import (
	"context"
	"math"

	"go.uber.org/zap"
	"gonum.org/v1/gonum/optimize"

	"github.com/san-kum/choreo/internal/dynamo"
	"github.com/san-kum/choreo/internal/pll"
)

// PLLScenario is a master/slave beat used to score synchronizer gains.
type PLLScenario struct {
	MasterHz    float64
	SlaveHz     float64
	Dt          float64
	Duration    float64
	SettleBand  float64
	SettleScale float64
}

// DefaultPLLScenario is the 2.0 Hz master, 2.3 Hz slave convergence case.
func DefaultPLLScenario() PLLScenario {
	return PLLScenario{
		MasterHz:    2.0,
		SlaveHz:     2.3,
		Dt:          0.002,
		Duration:    1.5,
		SettleBand:  0.1,
		SettleScale: 0.1,
	}
}

type PLLScore struct {
	FinalError float64
	SettleTime float64
	Value      float64
}

// Evaluate runs the scenario with the given gains. Settle time is the start
// of the final stretch in which |error| stays inside SettleBand; a run that
// never settles scores the full duration.
func (sc PLLScenario) Evaluate(kp, ki float64) (PLLScore, error) {
	cfg := pll.DefaultConfig()
	cfg.Kp, cfg.Ki, cfg.Frequency = kp, ki, sc.SlaveHz
	s, err := pll.New(cfg)
	if err != nil {
		return PLLScore{}, err
	}

	n := int(math.Round(sc.Duration / sc.Dt))
	settle := sc.Duration
	inside := false
	for i := 0; i < n; i++ {
		t := float64(i) * sc.Dt
		master := dynamo.WrapPhase(dynamo.TwoPi * sc.MasterHz * t)
		s.ComputeAdjustment(master, s.Phase(), sc.Dt)
		if math.Abs(s.LastError()) < sc.SettleBand {
			if !inside {
				settle, inside = t, true
			}
		} else {
			settle, inside = sc.Duration, false
		}
	}
	final := dynamo.WrapPhase(dynamo.TwoPi * sc.MasterHz * float64(n) * sc.Dt)
	e := math.Abs(dynamo.WrapError(final - s.Phase()))
	return PLLScore{
		FinalError: e,
		SettleTime: settle,
		Value:      e + sc.SettleScale*settle,
	}, nil
}

type TuneResult struct {
	Kp, Ki   float64
	Score    PLLScore
	Grid     PLLScore
	GridKp   float64
	GridKi   float64
	Evals    int
	Improved bool
}

// TunePLL grid-searches (Kp, Ki) over their allowed ranges and refines the
// best point with Nelder-Mead, keeping gains inside [0,2]x[0,1].
func TunePLL(ctx context.Context, sc PLLScenario, gridSize int, logger *zap.Logger) (*TuneResult, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if gridSize < 2 {
		gridSize = 2
	}

	evals := 0
	score := func(kp, ki float64) float64 {
		evals++
		r, err := sc.Evaluate(dynamo.Clamp(kp, 0, 2), dynamo.Clamp(ki, 0, 1))
		if err != nil {
			return math.Inf(1)
		}
		return r.Value
	}

	gs := NewGridSearch([]string{"Kp", "Ki"}, [][]float64{Linspace(0, 2, gridSize), Linspace(0, 1, gridSize)})
	best, _, err := gs.Search(ctx, func(_ context.Context, p map[string]float64) (float64, error) {
		return score(p["Kp"], p["Ki"]), nil
	})
	if err != nil {
		return nil, err
	}
	gridScore, _ := sc.Evaluate(best["Kp"], best["Ki"])
	out := &TuneResult{
		Kp: best["Kp"], Ki: best["Ki"], Score: gridScore,
		Grid: gridScore, GridKp: best["Kp"], GridKi: best["Ki"],
	}
	logger.Info("grid search done",
		zap.Float64("kp", out.Kp), zap.Float64("ki", out.Ki), zap.Float64("score", gridScore.Value))

	problem := optimize.Problem{
		Func: func(x []float64) float64 { return score(x[0], x[1]) },
	}
	settings := &optimize.Settings{FuncEvaluations: 150}
	res, err := optimize.Minimize(problem, []float64{out.Kp, out.Ki}, settings, &optimize.NelderMead{})
	if err != nil {
		logger.Debug("refinement stopped", zap.Error(err))
	}
	if res != nil && len(res.X) == 2 {
		kp, ki := dynamo.Clamp(res.X[0], 0, 2), dynamo.Clamp(res.X[1], 0, 1)
		if refined, err := sc.Evaluate(kp, ki); err == nil && refined.Value < out.Score.Value {
			out.Kp, out.Ki, out.Score, out.Improved = kp, ki, refined, true
		}
	}
	out.Evals = evals
	return out, ctx.Err()
}
