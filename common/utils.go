package common

import "cmp"

// Coalesce picks the first of values that is not the zero value of T. Options use it to
// fall back to a default when a field was left unset.
func Coalesce[T comparable](values ...T) T {
	var zero T
	for _, v := range values {
		if v != zero {
			return v
		}
	}
	return zero
}

// Clamp limits v to [lo, hi]. lo must not exceed hi.
func Clamp[T cmp.Ordered](v, lo, hi T) T {
	return max(lo, min(v, hi))
}

// DivCeil returns the number of groups of size d needed to cover n items.
func DivCeil(n, d uint32) uint32 {
	if d == 0 {
		return 0
	}
	return (n + d - 1) / d
}
