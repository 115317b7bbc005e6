package planner

// Trigger rate-limits replanning to at most once per Interval seconds of
// simulation time.
type Trigger struct {
	Interval float64

	last  float64
	fired bool
}

func NewTrigger(interval float64) *Trigger {
	return &Trigger{Interval: interval}
}

// Due reports whether a replan may run at now and, if so, records it.
func (t *Trigger) Due(now float64) bool {
	if t.fired && now-t.last < t.Interval {
		return false
	}
	t.fired = true
	t.last = now
	return true
}

// Reset makes the next Due call fire regardless of elapsed time.
func (t *Trigger) Reset() { t.fired = false }

func (t *Trigger) Last() (float64, bool) { return t.last, t.fired }
