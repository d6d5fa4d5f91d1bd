package transport

import (
	"go.opentelemetry.io/otel/metric"

	intotel "github.com/imtaco/liveroom/internal/otel"
)

var (
	actionRequests metric.Int64Counter
	actionErrors   metric.Int64Counter
	throttled      metric.Int64Counter
	authFailures   metric.Int64Counter
	viewStreams    metric.Int64UpDownCounter
	viewsPushed    metric.Int64Counter
)

func init() {
	f := intotel.NewFactory("liveroom.transport", intotel.PrefixAPI)

	f.Int64Counter(&actionRequests, "actions.requests",
		metric.WithDescription("Action requests received"))

	f.Int64Counter(&actionErrors, "actions.errors",
		metric.WithDescription("Action requests answered with an error"))

	f.Int64Counter(&throttled, "actions.throttled",
		metric.WithDescription("Action requests rejected by the rate limiter"))

	f.Int64Counter(&authFailures, "auth.failures",
		metric.WithDescription("Requests rejected for a missing or invalid bearer token"))

	f.Int64UpDownCounter(&viewStreams, "view_streams.active",
		metric.WithDescription("Open view model websocket streams"))

	f.Int64Counter(&viewsPushed, "view_streams.pushed",
		metric.WithDescription("View models written to websocket streams"))
}
