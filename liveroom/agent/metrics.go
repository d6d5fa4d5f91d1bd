package agent

import (
	"go.opentelemetry.io/otel/metric"

	intotel "github.com/imtaco/liveroom/internal/otel"
)

var (
	visitsStarted metric.Int64Counter
	visitsFailed  metric.Int64Counter
)

func init() {
	f := intotel.NewFactory("liveroom.agent", intotel.PrefixAgent)

	f.Int64Counter(&visitsStarted, "visits.started",
		metric.WithDescription("Room visits started"))

	f.Int64Counter(&visitsFailed, "visits.failed",
		metric.WithDescription("Room visits that failed to start"))
}
