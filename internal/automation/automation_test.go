package automation

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/san-kum/choreo/internal/config"
	"github.com/san-kum/choreo/internal/orchestrator"
)

const drill = `
name: fault-drill
preset: smooth
duration: 0.2
seed: 4
events:
  - at: 0.18
    param: gain
    value: 5
  - at: 0.05
    param: rubato
    value: 0.1
  - at: 0.1
    stage: sync
    agent: right_hand
    enable: false
  - at: 0.12
    replan: true
    goal: [0.5, 0.5, 0.1]
  - at: 0.15
    reset: left_hand
faults:
  - stage: filter
    agent: left_hand
    from: 0.1
    to: 0.15
`

func TestParseScenario(t *testing.T) {
	sc, err := ParseScenario([]byte(drill))
	require.NoError(t, err)
	assert.Equal(t, "fault-drill", sc.Name)
	require.Len(t, sc.Events, 5)
	assert.Equal(t, 0.05, sc.Events[0].At, "events are sorted by time")
	assert.Equal(t, "rubato", sc.Events[0].Param)
	assert.Equal(t, "sync", sc.Events[1].Stage)
	require.NotNil(t, sc.Events[1].Enable)
	assert.False(t, *sc.Events[1].Enable)
	assert.True(t, sc.Events[2].Replan)
	require.NotNil(t, sc.Events[2].Goal)
	assert.Equal(t, [3]float64{0.5, 0.5, 0.1}, *sc.Events[2].Goal)
	assert.Equal(t, "left_hand", sc.Events[3].Reset)
	assert.Equal(t, 0.18, sc.Events[4].At)
	assert.Equal(t, "gain", sc.Events[4].Param)

	cfg, err := sc.BaseConfig()
	require.NoError(t, err)
	assert.Equal(t, 0.2, cfg.Sim.Duration)
	assert.Equal(t, int64(4), cfg.Sim.Seed)
	assert.Equal(t, config.Presets["smooth"], cfg.Params)
}

func TestParseScenarioRejectsUnknownStage(t *testing.T) {
	_, err := ParseScenario([]byte("faults:\n  - stage: teleport\n"))
	assert.Error(t, err)
	_, err = ParseScenario([]byte("events:\n  - at: 1\n    stage: teleport\n"))
	assert.Error(t, err)
}

func TestLoadScenario(t *testing.T) {
	path := filepath.Join(t.TempDir(), "drill.yaml")
	require.NoError(t, os.WriteFile(path, []byte(drill), 0644))
	sc, err := LoadScenario(path)
	require.NoError(t, err)
	assert.Len(t, sc.Faults, 1)

	_, err = LoadScenario(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestRunScenario(t *testing.T) {
	sc, err := ParseScenario([]byte(drill))
	require.NoError(t, err)

	core, logs := observer.New(zapcore.WarnLevel)
	res, err := RunScenario(context.Background(), sc, zap.New(core))
	require.NoError(t, err)

	assert.Equal(t, 100, res.Result.Ticks)
	assert.Equal(t, 4, res.Applied)
	require.Len(t, res.EventErrors, 1, "gain=5 is out of range")
	assert.Equal(t, 1, logs.FilterMessage("scenario event failed").Len())

	faults := res.Result.Final.StageErrors
	assert.GreaterOrEqual(t, faults, 24)
	assert.LessOrEqual(t, faults, 26)
	for _, se := range res.Result.StageErrors {
		assert.Equal(t, string(orchestrator.StageFilter), se.Stage)
		assert.Equal(t, "left_hand", se.Agent)
	}
}

func TestRunScenarioUnknownPreset(t *testing.T) {
	_, err := RunScenario(context.Background(), &Scenario{Preset: "nope"}, nil)
	assert.Error(t, err)
}

func TestRunSweep(t *testing.T) {
	res, err := RunSweep(context.Background(), &ParameterSweep{
		Param:    "window",
		Min:      5,
		Max:      25,
		NumSteps: 3,
		Duration: 0.1,
	}, nil)
	require.NoError(t, err)
	require.Len(t, res, 3)
	for i, want := range []float64{5, 15, 25} {
		assert.Equal(t, want, res[i].ParamValue)
		assert.Equal(t, 0, res[i].Errors)
		assert.Equal(t, 49, res[i].Final.Tick)
	}
}

func TestRunSweepOutOfRange(t *testing.T) {
	_, err := RunSweep(context.Background(), &ParameterSweep{
		Param: "window", Min: 1, Max: 40, NumSteps: 2, Duration: 0.05,
	}, nil)
	assert.Error(t, err)
}

func TestRunEnsemble(t *testing.T) {
	stats, err := RunEnsemble(context.Background(), &EnsembleConfig{
		NumRuns:   3,
		SeedStart: 10,
		Duration:  0.1,
	}, nil)
	require.NoError(t, err)
	assert.Equal(t, 3, stats.Runs)
	assert.Len(t, stats.Finals, 3)
	assert.Equal(t, 0, stats.TotalErrors)
	assert.GreaterOrEqual(t, stats.StdControlErr, 0.0)
	assert.GreaterOrEqual(t, stats.MeanEfficiency, 0.0)
	assert.LessOrEqual(t, stats.MeanEfficiency, 1.0)
}
