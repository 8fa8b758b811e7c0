package reconcile

import (
	"net/netip"

	"github.com/evanofslack/ddns-sync/internal/provider"
)

// Results describes one sync cycle.
type Results struct {
	Public   netip.Addr // invalid when the lookup failed
	Local    netip.Addr
	Skipped  bool // local address unavailable, nothing was pushed
	Updated  []provider.Record
	Failures []OperationResult
}

type OperationResult struct {
	Record provider.Record
	Error  string
}

// Status summarizes the cycle for metrics.
func (r Results) Status() string {
	switch {
	case r.Skipped:
		return "skipped"
	case len(r.Failures) > 0:
		return "partial"
	default:
		return "success"
	}
}
