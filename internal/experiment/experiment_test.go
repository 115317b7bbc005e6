package experiment

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/san-kum/choreo/internal/config"
	"github.com/san-kum/choreo/internal/orchestrator"
	"github.com/san-kum/choreo/internal/trajectory"
)

func shortConfig() *config.Config {
	cfg := config.DefaultConfig()
	cfg.Sim.Duration = 0.2
	return cfg
}

func TestExperimentRun(t *testing.T) {
	exp, err := New(shortConfig(), nil)
	require.NoError(t, err)

	res, err := exp.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 100, res.Ticks)
	assert.Empty(t, res.StageErrors)
	assert.Equal(t, 0, res.Final.StageErrors)
	assert.Len(t, exp.Physics().Bodies(), 3)

	_, ok := exp.Orchestrator().Plan()
	assert.True(t, ok, "navigating agent should have a plan")
}

func TestExperimentCancelled(t *testing.T) {
	exp, err := New(shortConfig(), nil)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	res, err := exp.Run(ctx)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 0, res.Ticks)
}

func TestExperimentFaultHook(t *testing.T) {
	injected := errors.New("injected")
	exp, err := New(shortConfig(), nil, func(o *orchestrator.Options) {
		o.Fault = func(stage orchestrator.Stage, id string) error {
			if stage == orchestrator.StageExpression && id == "left_hand" {
				return injected
			}
			return nil
		}
	})
	require.NoError(t, err)

	res, err := exp.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 100, res.Final.StageErrors)
	require.NotEmpty(t, res.StageErrors)
	assert.ErrorIs(t, res.StageErrors[0], injected)
}

func TestRegistry(t *testing.T) {
	r := NewRegistry()
	assert.Equal(t, []string{"gait", "grasp", "sweep"}, r.ListSources())

	seq, err := r.Trajectory(config.AgentConfig{ID: "q", Dim: 4, Trajectory: "gait", Frequency: 2}, 1, 100, 1)
	require.NoError(t, err)
	assert.Len(t, seq, 101)
	assert.Equal(t, 4, seq.Dim())

	_, err = r.Trajectory(config.AgentConfig{ID: "q", Dim: 4, Trajectory: "moonwalk"}, 1, 100, 1)
	assert.Error(t, err)

	_, err = r.GetIntegrator("leapfrog")
	assert.Error(t, err)
}

func TestRegistryCSV(t *testing.T) {
	path := filepath.Join(t.TempDir(), "wave.csv")
	src, err := trajectory.Synthetic(trajectory.KindSweep, 3, 0.5, 50, 1, 7)
	require.NoError(t, err)
	require.NoError(t, trajectory.SaveCSV(path, src))

	seq, err := NewRegistry().Trajectory(config.AgentConfig{ID: "h", Dim: 3, Trajectory: path}, 1, 100, 1)
	require.NoError(t, err)
	require.Len(t, seq, len(src))
	assert.InDelta(t, src[10].Targets[2], seq[10].Targets[2], 1e-6)
}

func TestStartPositionInsideWorkspace(t *testing.T) {
	cfg := config.DefaultConfig()
	p := StartPosition(cfg)
	assert.InDelta(t, -0.8, p.X, 1e-12)
	assert.InDelta(t, -0.8, p.Y, 1e-12)
	assert.InDelta(t, 0.1, p.Z, 1e-12)
}
