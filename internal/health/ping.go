package health

import "context"

// HealthPinger is implemented by the service's backing dependencies (match
// store, search index, embedding provider) to expose a liveness check.
// HealthPing must return nil when the dependency can serve requests.
type HealthPinger interface {
	HealthPing(ctx context.Context) error
}
