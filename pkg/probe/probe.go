// Package probe runs startup health checks. Critical failures abort
// startup; non-critical ones are logged and tolerated.
package probe

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"
)

// CheckFunc is a function that performs a health check.
// It returns nil if the check passes, or an error if it fails.
type CheckFunc func(ctx context.Context) error

// Probe represents a single startup check.
type Probe struct {
	Name     string
	Check    CheckFunc
	Critical bool // If true, a failure here should prevent application startup.
}

// Result holds the outcome of a single probe.
type Result struct {
	Probe    Probe
	Error    error
	Duration time.Duration
}

// Run executes a list of probes and returns their results.
// Each check gets its own deadline so a hung dependency cannot stall startup.
func Run(ctx context.Context, probes []Probe) []Result {
	results := make([]Result, len(probes))

	for i, p := range probes {
		start := time.Now()

		checkCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		err := p.Check(checkCtx)
		cancel()

		results[i] = Result{
			Probe:    p,
			Error:    err,
			Duration: time.Since(start),
		}
	}

	return results
}

// AnalyzeResults logs each outcome and returns a combined error if any
// critical probe failed.
func AnalyzeResults(results []Result) error {
	var criticalErrors []error

	slog.Info("Startup Checks Summary")

	for _, r := range results {
		status := "PASS"
		if r.Error != nil {
			status = "FAIL"
		}

		msg := fmt.Sprintf("[%s] %-20s (%v)", status, r.Probe.Name, r.Duration.Round(time.Millisecond))

		if r.Error != nil {
			slog.Error(msg, "error", r.Error)
			if r.Probe.Critical {
				criticalErrors = append(criticalErrors, fmt.Errorf("%s: %w", r.Probe.Name, r.Error))
			}
		} else {
			slog.Info(msg)
		}
	}

	if len(criticalErrors) > 0 {
		return errors.Join(criticalErrors...)
	}

	return nil
}

// Pinger is anything with a connectivity check, e.g. the scene store.
type Pinger interface {
	Ping(ctx context.Context) error
}

// SceneStore builds the critical probe verifying the scene database is
// reachable and migrated.
func SceneStore(st Pinger) Probe {
	return Probe{
		Name:     "scene store",
		Critical: true,
		Check: func(ctx context.Context) error {
			return st.Ping(ctx)
		},
	}
}

// ProviderPool builds the critical probe verifying at least one image
// provider survived configuration.
func ProviderPool(usable func() int) Probe {
	return Probe{
		Name:     "provider pool",
		Critical: true,
		Check: func(_ context.Context) error {
			if n := usable(); n == 0 {
				return errors.New("no usable image provider")
			}
			return nil
		},
	}
}
