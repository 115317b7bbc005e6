// Package analysis estimates rhythm from recorded or generated trajectories.
//
//   - [PowerSpectrum]: one-sided magnitude spectrum of a real signal
//   - [DominantFrequency]: strongest periodic component of a sequence, in Hz
//
// Agents loaded from CSV without a declared frequency use the dominant
// frequency as their synchronizer's natural frequency:
//
//	f, err := analysis.DominantFrequency(seq)
package analysis
