package experiment

import (
	"fmt"
	"sort"
	"strings"

	"github.com/san-kum/choreo/internal/config"
	"github.com/san-kum/choreo/internal/integrators"
	"github.com/san-kum/choreo/internal/trajectory"
)

// Source produces a trajectory for one agent.
type Source func(ac config.AgentConfig, duration, rate float64, seed int64) (trajectory.Sequence, error)

// Registry resolves trajectory sources and integrators by name.
type Registry struct {
	sources map[string]Source
}

func NewRegistry() *Registry {
	r := &Registry{sources: make(map[string]Source)}
	for _, kind := range []string{trajectory.KindGait, trajectory.KindGrasp, trajectory.KindSweep} {
		kind := kind
		r.sources[kind] = func(ac config.AgentConfig, duration, rate float64, seed int64) (trajectory.Sequence, error) {
			freq := ac.Frequency
			if freq == 0 {
				freq = config.DefaultBeatFrequency
			}
			return trajectory.Synthetic(kind, ac.Dim, duration, rate, freq, seed)
		}
	}
	return r
}

// Register adds or replaces a named source.
func (r *Registry) Register(name string, src Source) {
	r.sources[name] = src
}

// Trajectory resolves ac.Trajectory: a registered source name, otherwise a
// CSV file path.
func (r *Registry) Trajectory(ac config.AgentConfig, duration, rate float64, seed int64) (trajectory.Sequence, error) {
	if src, ok := r.sources[ac.Trajectory]; ok {
		return src(ac, duration, rate, seed)
	}
	if strings.HasSuffix(strings.ToLower(ac.Trajectory), ".csv") {
		return trajectory.LoadCSV(ac.Trajectory)
	}
	return nil, fmt.Errorf("unknown trajectory %q for agent %s", ac.Trajectory, ac.ID)
}

func (r *Registry) GetIntegrator(name string) (integrators.Integrator, error) {
	return integrators.New(name)
}

func (r *Registry) ListSources() []string {
	names := make([]string, 0, len(r.sources))
	for name := range r.sources {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
