// Package health defines the HealthContextProvider boundary and the
// ContextAssembler that fans out to every metric source concurrently,
// merging whatever arrives in time into one HealthContextSnapshot. A source
// failing or timing out leaves its field absent; assembly itself never fails.
package health

import (
	"context"
	"errors"

	"github.com/peakform/coachcore/core"
)

// Sentinel errors a provider can return. The assembler treats all of them
// (and any other error) the same way: record the miss, keep going.
var (
	// ErrUnavailable means the source has no data for the request.
	ErrUnavailable = errors.New("health: metric unavailable")
	// ErrPermissionDenied means the user has not granted access to the metric.
	ErrPermissionDenied = errors.New("health: permission denied")
	// ErrTimeout means the source did not answer within its budget.
	ErrTimeout = errors.New("health: fetch timeout")
)

// Provider supplies point-in-time metric values. Implementations live
// outside the core (device bridges, weather clients); per-call timeouts are
// enforced by the caller, not the implementation.
type Provider interface {
	Fetch(ctx context.Context, userID string, metric core.Metric) (core.MetricValue, error)
}

// ProviderFunc adapts a plain function to the Provider interface.
type ProviderFunc func(ctx context.Context, userID string, metric core.Metric) (core.MetricValue, error)

// Fetch implements Provider.
func (f ProviderFunc) Fetch(ctx context.Context, userID string, metric core.Metric) (core.MetricValue, error) {
	return f(ctx, userID, metric)
}
