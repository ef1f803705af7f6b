package math

import "golang.org/x/exp/constraints"

// AlignDown rounds v down to a multiple of the power-of-two alignment.
func AlignDown[T constraints.Unsigned](v, alignment T) T {
	return v &^ (alignment - 1)
}

// AlignUp rounds v up to a multiple of the power-of-two alignment.
func AlignUp[T constraints.Unsigned](v, alignment T) T {
	return (v + alignment - 1) &^ (alignment - 1)
}
