package integrators

import (
	"testing"

	"github.com/san-kum/choreo/internal/dynamo"
)

func benchmarkTracking(b *testing.B, integ Integrator, dim int) {
	sys := tracking{tau: 0.05}
	x := make(dynamo.Vector, dim)
	u := make(dynamo.Vector, dim)
	for i := range u {
		u[i] = float64(i) * 0.1
	}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		x = integ.Step(sys, x, u, 0, 0.002)
	}
}

func BenchmarkEuler(b *testing.B)    { benchmarkTracking(b, NewEuler(), 14) }
func BenchmarkRK4(b *testing.B)      { benchmarkTracking(b, NewRK4(), 14) }
func BenchmarkRK4_Wide(b *testing.B) { benchmarkTracking(b, NewRK4(), 64) }
