package audio

import "math"

// Output level bounds, as linear gain.
const (
	VolumeStep = 0.2
	MinVolume  = 0.1
	MaxVolume  = 1.0
)

// Mixer controls the assistant's own output level.
type Mixer interface {
	SetMuted(muted bool)
	// AdjustVolume moves the level by delta within [MinVolume, MaxVolume]
	// and returns the new level.
	AdjustVolume(delta float64) float64
}

// StepVolume applies delta to level and clamps the result.
func StepVolume(level, delta float64) float64 {
	return math.Max(MinVolume, math.Min(MaxVolume, level+delta))
}

// exponent converts a linear level to the base-2 exponent beep's volume
// effect expects.
func exponent(level float64) float64 {
	return math.Log2(level)
}
