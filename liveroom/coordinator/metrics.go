package coordinator

import (
	"go.opentelemetry.io/otel/metric"

	intotel "github.com/imtaco/liveroom/internal/otel"
)

var (
	// Event processing
	eventsQueued    metric.Int64Counter
	eventsProcessed metric.Int64Counter
	eventsDropped   metric.Int64Counter
	queueDepth      metric.Int64UpDownCounter
	staleSnapshots  metric.Int64Counter

	// Reconciliation
	reconciliations metric.Int64Counter
	sideEffects     metric.Int64Counter
	reconnects      metric.Int64Counter

	// Actions
	actionsIssued   metric.Int64Counter
	actionsRejected metric.Int64Counter

	teardowns metric.Int64Counter
)

func init() {
	f := intotel.NewFactory("liveroom.coordinator", intotel.PrefixCoordinator)

	f.Int64Counter(&eventsQueued, "events.queued",
		metric.WithDescription("Events queued for the reconciliation loop"))

	f.Int64Counter(&eventsProcessed, "events.processed",
		metric.WithDescription("Events applied by the reconciliation loop"))

	f.Int64Counter(&eventsDropped, "events.dropped",
		metric.WithDescription("Volume reports dropped because the queue was full"))

	f.Int64UpDownCounter(&queueDepth, "events.queue_depth",
		metric.WithDescription("Current depth of the event queue"))

	f.Int64Counter(&staleSnapshots, "snapshots.stale",
		metric.WithDescription("Room snapshots ignored because a newer one was merged"))

	f.Int64Counter(&reconciliations, "reconciliations",
		metric.WithDescription("Desired state derivations"))

	f.Int64Counter(&sideEffects, "side_effects",
		metric.WithDescription("Publish state changes issued to the session"))

	f.Int64Counter(&reconnects, "reconnects",
		metric.WithDescription("Transport reconnects started"))

	f.Int64Counter(&actionsIssued, "actions.issued",
		metric.WithDescription("User actions sent to the room store"))

	f.Int64Counter(&actionsRejected, "actions.rejected",
		metric.WithDescription("User actions rejected before reaching the store"))

	f.Int64Counter(&teardowns, "teardowns",
		metric.WithDescription("Visits torn down"))
}
