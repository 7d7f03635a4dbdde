package squad

import "golang.org/x/exp/constraints"

// Sum returns a+b, for use as the op argument to Reduce, ReduceTransform, or
// the package-level TransformReduce/TransformReduceFirst.
func Sum[T constraints.Ordered | constraints.Complex](a, b T) T {
	return a + b
}

// Max returns the larger of a and b.
func Max[T constraints.Ordered](a, b T) T {
	if a > b {
		return a
	}
	return b
}

// Min returns the smaller of a and b.
func Min[T constraints.Ordered](a, b T) T {
	if a < b {
		return a
	}
	return b
}

// LogicalAnd returns a && b, matching the boolean reduction used by
// task-completion style collectives.
func LogicalAnd(a, b bool) bool {
	return a && b
}

// LogicalOr returns a || b.
func LogicalOr(a, b bool) bool {
	return a || b
}
