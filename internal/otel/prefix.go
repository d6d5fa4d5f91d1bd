package otel

// Metric prefixes for each component
// Each component should define its own metric names and use these prefixes
const (
	PrefixCoordinator = "coordinator"
	PrefixSession     = "session"
	PrefixStore       = "room_store"
	PrefixMedia       = "media"
	PrefixAPI         = "visit_api"
	PrefixAgent       = "agent"
)
