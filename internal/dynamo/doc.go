// Package dynamo provides the core primitives shared by the control pipeline.
//
// The package defines the vector and phase types every stage works with:
//
//   - [Vector]: a joint-level command or target vector
//   - [WrapPhase], [WrapError]: phase normalization helpers
//   - [Configurable]: live parameter surface implemented by tunable stages
//   - [Metric]: rolling telemetry accumulator
//
// It also owns the error taxonomy used across the repository:
// [ErrConfiguration], [ErrNumericDegeneracy], [ErrUnreachableGoal] and
// [ErrDimensionMismatch].
//
// # Thread Safety
//
// Nothing in the pipeline is safe for concurrent use. Each stage instance is
// owned by exactly one agent and is driven from a single host loop.
package dynamo
