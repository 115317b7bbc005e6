package orchestrator

import (
	"fmt"

	"github.com/san-kum/choreo/internal/config"
	"github.com/san-kum/choreo/internal/dynamo"
)

// DefaultOptions derives options from the default configuration.
func DefaultOptions() Options {
	return OptionsFromConfig(config.DefaultConfig())
}

// GetParams returns the current runtime parameter values.
func (o *Orchestrator) GetParams() map[string]float64 {
	return o.opts.Params.Map()
}

// SetParam range-checks value and forwards it to every component that owns
// the parameter. Expressive changes re-enhance all sequences; a new path
// resolution reallocates the field and queues a replan.
func (o *Orchestrator) SetParam(name string, value float64) error {
	next := o.opts.Params
	if err := next.Set(name, value); err != nil {
		return err
	}
	spec, _ := config.Spec(name)
	value, _ = next.Get(spec.Name)

	var err error
	switch spec.Name {
	case "window", "gain", "sigma":
		for _, a := range o.agents {
			if err = a.filter.SetParam(spec.Name, value); err != nil {
				break
			}
		}
	case "Kp", "Ki":
		for _, a := range o.agents {
			if err = a.sync.SetParam(spec.Name, value); err != nil {
				break
			}
		}
	case "rubato", "velscale":
		if err = o.engine.SetParam(spec.Name, value); err == nil {
			o.reenhance()
		}
	case "coupling", "adapt", "horizon":
		err = o.coordinator.SetParam(spec.Name, value)
	case "pathRes", "eWeight":
		if err = o.planner.SetParam(spec.Name, value); err == nil && spec.Name == "pathRes" && o.planner.Initialized() {
			if err = o.planner.InitializeField(o.opts.Bounds); err == nil {
				o.trigger.Reset()
			}
		}
	default:
		err = fmt.Errorf("%w: %s", dynamo.ErrUnknownParam, name)
	}
	if err != nil {
		return err
	}
	o.opts.Params = next
	return nil
}

func (o *Orchestrator) reenhance() {
	for i, a := range o.agents {
		a.enhanced = o.engine.Enhance(a.raw, o.opts.Seed+int64(i))
	}
}
