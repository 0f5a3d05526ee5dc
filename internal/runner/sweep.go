package runner

import "fmt"

// SweepVolumes expands a half-open range into volumes: start, start+step, ...
// up to but excluding stop.
func SweepVolumes(start, stop, step int) ([]int, error) {
	if start < 0 {
		return nil, &ConfigurationError{Field: "sweep start", Reason: fmt.Sprintf("must be >= 0, got %d", start)}
	}
	if step <= 0 {
		return nil, &ConfigurationError{Field: "sweep step", Reason: fmt.Sprintf("must be > 0, got %d", step)}
	}
	if stop <= start {
		return nil, &ConfigurationError{Field: "sweep stop", Reason: fmt.Sprintf("must be > start (%d), got %d", start, stop)}
	}
	volumes := make([]int, 0, (stop-start+step-1)/step)
	for v := start; v < stop; v += step {
		volumes = append(volumes, v)
	}
	return volumes, nil
}
