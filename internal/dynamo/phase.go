package dynamo

import "math"

const TwoPi = 2 * math.Pi

// WrapPhase maps x into [0, 2π).
func WrapPhase(x float64) float64 {
	if !Finite(x) {
		return 0
	}
	x = math.Mod(x, TwoPi)
	if x < 0 {
		x += TwoPi
	}
	// math.Mod can return values a hair below 0 that round up to 2π after the add.
	if x >= TwoPi {
		x = 0
	}
	return x
}

// WrapError maps a phase difference into [-π, π].
func WrapError(x float64) float64 {
	if !Finite(x) {
		return 0
	}
	x = math.Mod(x+math.Pi, TwoPi)
	if x < 0 {
		x += TwoPi
	}
	return x - math.Pi
}

// CircularMean returns the mean direction of a set of phases in [0, 2π).
// An empty or perfectly balanced set yields 0.
func CircularMean(phases []float64) float64 {
	var s, c float64
	for _, p := range phases {
		s += math.Sin(p)
		c += math.Cos(p)
	}
	if s == 0 && c == 0 {
		return 0
	}
	return WrapPhase(math.Atan2(s, c))
}
