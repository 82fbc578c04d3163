// Package metrics is the narrow interface the proxy reports through.
// Backends live in subpackages.
package metrics

// Labels are low-cardinality dimensions attached to a sample.
type Labels map[string]string

// Backend receives counters and histogram samples. Implementations must be
// safe for concurrent use and must never block the request path.
type Backend interface {
	IncCounter(name string, delta float64, labels Labels)
	ObserveHistogram(name string, value float64, labels Labels)
}

// Metric names emitted by the proxy.
const (
	// RequestsTotal labels: provider, status.
	RequestsTotal = "embedproxy_requests_total"
	// UpstreamDuration labels: provider, mode, status.
	UpstreamDuration = "embedproxy_upstream_duration_seconds"
	// UpstreamBytes labels: provider.
	UpstreamBytes = "embedproxy_upstream_bytes"
	// SanitizeRemovedTotal labels: branch, kind.
	SanitizeRemovedTotal = "embedproxy_sanitize_removed_total"
	// RejectedTotal labels: reason.
	RejectedTotal = "embedproxy_rejected_total"
)

// Nop discards everything.
type Nop struct{}

func (Nop) IncCounter(string, float64, Labels)       {}
func (Nop) ObserveHistogram(string, float64, Labels) {}

var _ Backend = Nop{}
