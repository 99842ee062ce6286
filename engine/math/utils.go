package math

import "golang.org/x/exp/constraints"

// Clamp returns the value `f` clamped to the range [low, high].
// It works for any numeric type (integers and floats).
func Clamp[T constraints.Ordered](f, low, high T) T {
	if f < low {
		return low
	}
	if f > high {
		return high
	}
	return f
}

// AlignUp rounds v up to the next multiple of alignment. An alignment of 0 or 1 returns v.
func AlignUp[T constraints.Unsigned](v, alignment T) T {
	if alignment <= 1 {
		return v
	}
	if r := v % alignment; r != 0 {
		return v + alignment - r
	}
	return v
}
