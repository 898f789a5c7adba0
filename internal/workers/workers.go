// Package workers computes goroutine pool sizes for CPU/IO-bound tasks,
// respecting container CPU limits via GOMAXPROCS — the same computation the
// teacher app used to size its thumbnail-generation pool.
package workers

import (
	"os"
	"runtime"
	"strconv"

	"findit/internal/mediatypes"
)

// Count returns the worker count for a multiplier (1.0 CPU-bound, 2.0
// IO-bound, 1.5 mixed), capped at limit (0 = no cap). Overridable via
// FINDIT_WORKERS for operators pinning concurrency in constrained environments.
func Count(multiplier float64, limit int) int {
	if override := os.Getenv("FINDIT_WORKERS"); override != "" {
		if n, err := strconv.Atoi(override); err == nil && n > 0 {
			if limit > 0 && n > limit {
				return limit
			}
			return n
		}
	}

	available := runtime.GOMAXPROCS(0)
	n := int(float64(available) * multiplier)
	if n < 1 {
		n = 1
	}
	if limit > 0 && n > limit {
		n = limit
	}
	return n
}

// ForPerformanceMode implements the Scheduler's §4.7 concurrency table:
// full_speed = logical CPUs, balanced = max(2, CPUs/2), background = 1.
func ForPerformanceMode(mode mediatypes.PerformanceMode) int {
	cpus := runtime.GOMAXPROCS(0)
	switch mode {
	case mediatypes.PerformanceFullSpeed:
		return Count(1.0, 0)
	case mediatypes.PerformanceBackground:
		return 1
	case mediatypes.PerformanceBalanced:
		fallthrough
	default:
		n := cpus / 2
		if n < 2 {
			n = 2
		}
		return n
	}
}
