package config

import "sort"

// Presets are named parameter sets applied on top of DefaultConfig.
var Presets = map[string]Params{
	"smooth": {
		Window: 24, Gain: 0.95, Sigma: 0, Kp: 0.3, Ki: 0.05,
		Rubato: 0.03, VelScale: 0.9, Coupling: 0.8, Adapt: 0.02,
		Horizon: 0.8, PathRes: 0.05, EWeight: 0.5,
	},
	"responsive": {
		Window: 6, Gain: 0.5, Sigma: 0.002, Kp: 1.2, Ki: 0.3,
		Rubato: 0.02, VelScale: 1.1, Coupling: 0.6, Adapt: 0.08,
		Horizon: 0.2, PathRes: 0.05, EWeight: 0.2,
	},
	"expressive": {
		Window: 15, Gain: 0.85, Sigma: 0.01, Kp: 0.5, Ki: 0.1,
		Rubato: 0.12, VelScale: 1.3, Coupling: 0.7, Adapt: 0.05,
		Horizon: 0.5, PathRes: 0.05, EWeight: 0.3,
	},
	"fine": {
		Window: 15, Gain: 0.9, Sigma: 0.005, Kp: 0.5, Ki: 0.1,
		Rubato: 0.06, VelScale: 1.0, Coupling: 0.7, Adapt: 0.05,
		Horizon: 0.5, PathRes: 0.02, EWeight: 0.3,
	},
}

// GetPreset returns DefaultConfig with the named parameter set, or nil.
func GetPreset(name string) *Config {
	p, ok := Presets[name]
	if !ok {
		return nil
	}
	cfg := DefaultConfig()
	cfg.Params = p
	return cfg
}

func ListPresets() []string {
	names := make([]string, 0, len(Presets))
	for name := range Presets {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
