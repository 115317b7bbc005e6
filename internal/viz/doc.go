// Package viz renders a running experiment in the terminal.
//
// [Monitor] is a Bubble Tea model that steps the control loop a few periods
// per frame and shows telemetry graphs, per-agent playback rates and the
// runtime parameters. [PlanView] draws the planner workspace from above on
// a braille [Canvas].
//
// # Key Bindings
//
//	Space      - Pause/Resume
//	Up/Down    - Select parameter
//	Left/Right - Adjust parameter by 5% of its range
//	1-5        - Toggle filter, coordination, sync, expression, planning
//	P          - Request a replan to the configured goal
//	T          - Cycle color themes
//	Q          - Quit
package viz
