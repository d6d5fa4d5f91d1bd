package media

import (
	"go.opentelemetry.io/otel/metric"

	intotel "github.com/imtaco/liveroom/internal/otel"
)

var (
	joinsSucceeded     metric.Int64Counter
	joinsFailed        metric.Int64Counter
	tracksAcquired     metric.Int64Counter
	tracksReleased     metric.Int64Counter
	identityCollisions metric.Int64Counter
	eventsReceived     metric.Int64Counter
	disconnects        metric.Int64Counter
)

func init() {
	f := intotel.NewFactory("liveroom.media", intotel.PrefixMedia)

	f.Int64Counter(&joinsSucceeded, "joins.succeeded",
		metric.WithDescription("Transport sessions joined"))

	f.Int64Counter(&joinsFailed, "joins.failed",
		metric.WithDescription("Transport joins that failed"))

	f.Int64Counter(&tracksAcquired, "tracks.acquired",
		metric.WithDescription("Local capture tracks opened"))

	f.Int64Counter(&tracksReleased, "tracks.released",
		metric.WithDescription("Local capture tracks released"))

	f.Int64Counter(&identityCollisions, "identity.collisions",
		metric.WithDescription("Participants mapping to an already owned transport id"))

	f.Int64Counter(&eventsReceived, "events.received",
		metric.WithDescription("Janus events processed"))

	f.Int64Counter(&disconnects, "disconnects",
		metric.WithDescription("Transport sessions lost without a leave"))
}
