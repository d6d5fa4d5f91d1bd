package store

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/imtaco/liveroom/internal/errors"
	intotel "github.com/imtaco/liveroom/internal/otel"
	"github.com/imtaco/liveroom/liveroom"
)

var (
	mutationsCommitted metric.Int64Counter
	mutationsRejected  metric.Int64Counter
	mutationsFailed    metric.Int64Counter
	casConflicts       metric.Int64Counter
	changesDelivered   metric.Int64Counter
	watchRestarts      metric.Int64Counter
)

func init() {
	f := intotel.NewFactory("liveroom.store", intotel.PrefixStore)

	f.Int64Counter(&mutationsCommitted, "mutations.committed",
		metric.WithDescription("Room mutations applied or found already applied"))

	f.Int64Counter(&mutationsRejected, "mutations.rejected",
		metric.WithDescription("Room mutations rejected by role or membership rules"))

	f.Int64Counter(&mutationsFailed, "mutations.failed",
		metric.WithDescription("Room mutations failed on backend I/O"))

	f.Int64Counter(&casConflicts, "cas.conflicts",
		metric.WithDescription("Optimistic write conflicts retried"))

	f.Int64Counter(&changesDelivered, "changes.delivered",
		metric.WithDescription("Room snapshots delivered to subscribers"))

	f.Int64Counter(&watchRestarts, "watch.restarts",
		metric.WithDescription("Change feed reconnects"))
}

func recordMutation(op string, err error) {
	attrs := metric.WithAttributes(attribute.String("op", op))
	switch {
	case err == nil:
		mutationsCommitted.Add(context.Background(), 1, attrs)
	case errors.Is(err, liveroom.ErrStoreUnavailable):
		mutationsFailed.Add(context.Background(), 1, attrs)
	default:
		mutationsRejected.Add(context.Background(), 1, attrs)
	}
}
