package features

import "time"

// Feature describes a gate-able capability identified by a dotted key,
// e.g. "metrics.mrr.view" or "admin.users.edit". Features are seeded at
// bootstrap and treated as immutable afterwards.
type Feature struct {
	Key         string
	Name        string
	Category    string
	Description string
	CreatedAt   time.Time
}
