package core

import (
	"math"
	"runtime"
)

// WorkerCount is clamp(round(cpu*multiplier), min, max). It is a static knob:
// call sites pick their own bounds to keep load on the target site modest.
func WorkerCount(cpu int, multiplier float64, min, max int) int {
	n := int(math.Round(float64(cpu) * multiplier))
	return clamp(n, min, max)
}

func OptimalWorkers(multiplier float64, min, max int) int {
	return WorkerCount(runtime.NumCPU(), multiplier, min, max)
}

// BatchSize is clamp(total/workers, min, max).
func BatchSize(total, workers, min, max int) int {
	if workers <= 0 {
		workers = 1
	}
	return clamp(total/workers, min, max)
}

// SplitBatches cuts ids into contiguous slices of at most size elements.
func SplitBatches[T any](ids []T, size int) [][]T {
	if size <= 0 {
		size = 1
	}
	batches := make([][]T, 0, (len(ids)+size-1)/size)
	for start := 0; start < len(ids); start += size {
		end := start + size
		if end > len(ids) {
			end = len(ids)
		}
		batches = append(batches, ids[start:end])
	}
	return batches
}

func clamp(n, lo, hi int) int {
	if hi < lo {
		hi = lo
	}
	if n < lo {
		return lo
	}
	if n > hi {
		return hi
	}
	return n
}
