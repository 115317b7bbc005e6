package config

import (
	"fmt"
	"math"
	"sort"

	"github.com/san-kum/choreo/internal/dynamo"
)

// ParamSpec describes one named runtime parameter.
type ParamSpec struct {
	Name    string
	Min     float64
	Max     float64
	Default float64
	Integer bool
	Help    string
}

// ParamSpecs is the runtime parameter surface. Order is display order.
var ParamSpecs = []ParamSpec{
	{Name: "window", Min: 5, Max: 32, Default: 15, Integer: true, Help: "filter history window"},
	{Name: "gain", Min: 0.1, Max: 0.99, Default: 0.9, Help: "filter blend gain"},
	{Name: "sigma", Min: 0, Max: 0.05, Default: 0.005, Help: "filter noise scale"},
	{Name: "Kp", Min: 0, Max: 2, Default: 0.5, Help: "PLL proportional gain"},
	{Name: "Ki", Min: 0, Max: 1, Default: 0.1, Help: "PLL integral gain"},
	{Name: "rubato", Min: 0, Max: 0.15, Default: 0.06, Help: "expressive timing range"},
	{Name: "velscale", Min: 0.5, Max: 1.5, Default: 1.0, Help: "expressive velocity factor"},
	{Name: "coupling", Min: 0, Max: 1, Default: 0.7, Help: "initial coordinator coupling"},
	{Name: "adapt", Min: 0, Max: 0.2, Default: 0.05, Help: "coupling learning rate"},
	{Name: "horizon", Min: 0.1, Max: 2, Default: 0.5, Help: "coordinator prediction horizon (s)"},
	{Name: "pathRes", Min: 0.01, Max: 0.1, Default: 0.05, Help: "potential field resolution (m)"},
	{Name: "eWeight", Min: 0, Max: 1, Default: 0.3, Help: "path energy weight"},
}

// Params holds the current value of every runtime parameter.
type Params struct {
	Window   float64 `yaml:"window"`
	Gain     float64 `yaml:"gain"`
	Sigma    float64 `yaml:"sigma"`
	Kp       float64 `yaml:"kp"`
	Ki       float64 `yaml:"ki"`
	Rubato   float64 `yaml:"rubato"`
	VelScale float64 `yaml:"velscale"`
	Coupling float64 `yaml:"coupling"`
	Adapt    float64 `yaml:"adapt"`
	Horizon  float64 `yaml:"horizon"`
	PathRes  float64 `yaml:"path_res"`
	EWeight  float64 `yaml:"e_weight"`
}

func DefaultParams() Params {
	var p Params
	for _, s := range ParamSpecs {
		*p.field(s.Name) = s.Default
	}
	return p
}

func (p *Params) field(name string) *float64 {
	switch name {
	case "window":
		return &p.Window
	case "gain":
		return &p.Gain
	case "sigma":
		return &p.Sigma
	case "Kp", "kp":
		return &p.Kp
	case "Ki", "ki":
		return &p.Ki
	case "rubato":
		return &p.Rubato
	case "velscale":
		return &p.VelScale
	case "coupling":
		return &p.Coupling
	case "adapt":
		return &p.Adapt
	case "horizon":
		return &p.Horizon
	case "pathRes", "path_res":
		return &p.PathRes
	case "eWeight", "e_weight":
		return &p.EWeight
	}
	return nil
}

// Spec returns the ParamSpec registered under name.
func Spec(name string) (ParamSpec, bool) {
	for _, s := range ParamSpecs {
		if s.Name == name {
			return s, true
		}
	}
	// accept the lower-case yaml spellings too
	switch name {
	case "kp":
		return Spec("Kp")
	case "ki":
		return Spec("Ki")
	case "path_res":
		return Spec("pathRes")
	case "e_weight":
		return Spec("eWeight")
	}
	return ParamSpec{}, false
}

func (p *Params) Get(name string) (float64, error) {
	f := p.field(name)
	if f == nil {
		return 0, fmt.Errorf("%w: %s", dynamo.ErrUnknownParam, name)
	}
	return *f, nil
}

// Set range-checks value and stores it. Out-of-range values are rejected
// with a *dynamo.ConfigurationError and leave the current value untouched.
func (p *Params) Set(name string, value float64) error {
	spec, ok := Spec(name)
	if !ok {
		return fmt.Errorf("%w: %s", dynamo.ErrUnknownParam, name)
	}
	if err := spec.Check(value); err != nil {
		return err
	}
	if spec.Integer {
		value = math.Round(value)
	}
	*p.field(name) = value
	return nil
}

func (s ParamSpec) Check(value float64) error {
	if !dynamo.Finite(value) || value < s.Min || value > s.Max {
		return dynamo.RangeError(s.Name, value, s.Min, s.Max)
	}
	return nil
}

// Validate checks every parameter against its range.
func (p *Params) Validate() error {
	for _, s := range ParamSpecs {
		if err := s.Check(*p.field(s.Name)); err != nil {
			return err
		}
	}
	return nil
}

// Names returns the parameter names in display order.
func Names() []string {
	names := make([]string, len(ParamSpecs))
	for i, s := range ParamSpecs {
		names[i] = s.Name
	}
	return names
}

// Map flattens the parameters for display.
func (p *Params) Map() map[string]float64 {
	m := make(map[string]float64, len(ParamSpecs))
	for _, s := range ParamSpecs {
		m[s.Name] = *p.field(s.Name)
	}
	return m
}

// SortedKeys returns the keys of m in lexical order.
func SortedKeys(m map[string]float64) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
