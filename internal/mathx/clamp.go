package mathx

import "golang.org/x/exp/constraints"

// Clamp limits v to [lo, hi]. If lo > hi, the bounds are swapped.
func Clamp[T constraints.Ordered](v, lo, hi T) T {
	if hi < lo {
		lo, hi = hi, lo
	}
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// Abs for signed integers.
func Abs[T constraints.Signed](x T) T {
	if x < 0 {
		return -x
	}
	return x
}

// Scale maps a percentage in [-100, 100] onto [0, full] by magnitude.
func Scale[T constraints.Integer](percent int, full T) T {
	p := Abs(Clamp(percent, -100, 100))
	return T(int64(full) * int64(p) / 100)
}
