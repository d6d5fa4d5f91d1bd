package session

import (
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	intotel "github.com/imtaco/liveroom/internal/otel"
)

var tracer trace.Tracer = otel.Tracer("liveroom.session")

var (
	tracksAcquired   metric.Int64Counter
	tracksReleased   metric.Int64Counter
	tracksLive       metric.Int64UpDownCounter
	joins            metric.Int64Counter
	joinFailures     metric.Int64Counter
	joinDuration     metric.Float64Histogram
	publishes        metric.Int64Counter
	unpublishes      metric.Int64Counter
	zombiesPrevented metric.Int64Counter
	teardowns        metric.Int64Counter
)

func init() {
	f := intotel.NewFactory("liveroom.session", intotel.PrefixSession)

	f.Int64Counter(&tracksAcquired, "tracks.acquired",
		metric.WithDescription("Local track handles acquired"))

	f.Int64Counter(&tracksReleased, "tracks.released",
		metric.WithDescription("Local track handles released"))

	f.Int64UpDownCounter(&tracksLive, "tracks.live",
		metric.WithDescription("Local track handles currently held"))

	f.Int64Counter(&joins, "joins",
		metric.WithDescription("Transport joins"))

	f.Int64Counter(&joinFailures, "join.failures",
		metric.WithDescription("Transport joins failed after retries"))

	f.Float64Histogram(&joinDuration, "join.duration",
		metric.WithDescription("Time to join the transport, retries included"),
		metric.WithUnit("s"))

	f.Int64Counter(&publishes, "publishes",
		metric.WithDescription("Track publish calls"))

	f.Int64Counter(&unpublishes, "unpublishes",
		metric.WithDescription("Track unpublish calls"))

	f.Int64Counter(&zombiesPrevented, "zombies.prevented",
		metric.WithDescription("Transport results discarded because teardown had begun"))

	f.Int64Counter(&teardowns, "teardowns",
		metric.WithDescription("Visits torn down"))
}
