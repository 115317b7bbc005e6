package config

import (
	"errors"
	"path/filepath"
	"testing"

	"github.com/san-kum/choreo/internal/dynamo"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.Sim.TickRate != 500 {
		t.Errorf("expected tick rate 500, got %f", cfg.Sim.TickRate)
	}
	if cfg.Dt() != 0.002 {
		t.Errorf("expected dt 0.002, got %f", cfg.Dt())
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("default config should validate: %v", err)
	}
}

func TestDefaultParams(t *testing.T) {
	p := DefaultParams()
	tests := []struct {
		name string
		want float64
	}{
		{"window", 15},
		{"gain", 0.9},
		{"sigma", 0.005},
		{"Kp", 0.5},
		{"Ki", 0.1},
		{"rubato", 0.06},
		{"velscale", 1.0},
		{"coupling", 0.7},
		{"adapt", 0.05},
		{"horizon", 0.5},
		{"pathRes", 0.05},
		{"eWeight", 0.3},
	}
	for _, tt := range tests {
		got, err := p.Get(tt.name)
		if err != nil {
			t.Fatalf("Get(%s): %v", tt.name, err)
		}
		if got != tt.want {
			t.Errorf("%s = %v, want %v", tt.name, got, tt.want)
		}
	}
}

func TestParamsSet(t *testing.T) {
	tests := []struct {
		name    string
		param   string
		value   float64
		wantErr bool
	}{
		{"in range", "gain", 0.5, false},
		{"lower bound", "window", 5, false},
		{"upper bound", "window", 32, false},
		{"below range", "window", 4, true},
		{"above range", "sigma", 0.06, true},
		{"nan", "Kp", nanValue(), true},
		{"unknown", "bogus", 1, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := DefaultParams()
			err := p.Set(tt.param, tt.value)
			if (err != nil) != tt.wantErr {
				t.Fatalf("Set(%s, %v) error = %v, wantErr %v", tt.param, tt.value, err, tt.wantErr)
			}
			if err != nil && !errors.Is(err, dynamo.ErrConfiguration) {
				t.Errorf("expected ErrConfiguration, got %v", err)
			}
		})
	}
}

func TestParamsSetRejectedKeepsValue(t *testing.T) {
	p := DefaultParams()
	if err := p.Set("gain", 2.0); err == nil {
		t.Fatal("expected error")
	}
	if p.Gain != 0.9 {
		t.Errorf("rejected Set modified gain: %v", p.Gain)
	}

	var cerr *dynamo.ConfigurationError
	err := p.Set("gain", -1)
	if !errors.As(err, &cerr) {
		t.Fatalf("expected *ConfigurationError, got %T", err)
	}
	if cerr.Param != "gain" {
		t.Errorf("expected param gain, got %s", cerr.Param)
	}
}

func TestParamsSetRoundsIntegers(t *testing.T) {
	p := DefaultParams()
	if err := p.Set("window", 7.6); err != nil {
		t.Fatal(err)
	}
	if p.Window != 8 {
		t.Errorf("expected window rounded to 8, got %v", p.Window)
	}
}

func TestGetPreset(t *testing.T) {
	cfg := GetPreset("smooth")
	if cfg == nil {
		t.Fatal("expected preset, got nil")
	}
	if cfg.Params.Window != 24 {
		t.Errorf("expected window 24, got %f", cfg.Params.Window)
	}
	for _, name := range ListPresets() {
		p := Presets[name]
		if err := p.Validate(); err != nil {
			t.Errorf("preset %s invalid: %v", name, err)
		}
	}
}

func TestGetPreset_NotFound(t *testing.T) {
	if cfg := GetPreset("nonexistent"); cfg != nil {
		t.Error("expected nil for nonexistent preset")
	}
}

func TestSaveLoadRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "choreo.yaml")
	cfg := DefaultConfig()
	cfg.Params.Gain = 0.42
	cfg.Agents = cfg.Agents[:1]

	if err := Save(path, cfg); err != nil {
		t.Fatalf("save failed: %v", err)
	}
	loaded, err := Load(path)
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if loaded.Params.Gain != 0.42 {
		t.Errorf("expected gain 0.42, got %f", loaded.Params.Gain)
	}
	if len(loaded.Agents) != 1 {
		t.Errorf("expected 1 agent, got %d", len(loaded.Agents))
	}
}

func TestValidateRejectsBadAgents(t *testing.T) {
	tests := []struct {
		name  string
		agent AgentConfig
	}{
		{"empty id", AgentConfig{Kind: KindHand, Dim: 5}},
		{"bad kind", AgentConfig{ID: "x", Kind: "tentacle", Dim: 5}},
		{"zero dim", AgentConfig{ID: "x", Kind: KindHand}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			cfg.Agents = []AgentConfig{tt.agent}
			if err := cfg.Validate(); err == nil {
				t.Error("expected validation error")
			}
		})
	}
}

func nanValue() float64 {
	zero := 0.0
	return zero / zero
}
