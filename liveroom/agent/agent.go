package agent

import (
	"context"
	stdsync "sync"
	"sync/atomic"

	"github.com/imtaco/liveroom/internal/errors"
	"github.com/imtaco/liveroom/internal/log"
	"github.com/imtaco/liveroom/internal/retry"
	"github.com/imtaco/liveroom/liveroom"
	"github.com/imtaco/liveroom/liveroom/coordinator"
	"github.com/imtaco/liveroom/liveroom/session"
)

// Agent owns the single room visit of this process. Entering a room while
// another visit is live leaves the old one first, so a participant never
// runs two sessions at once.
type Agent struct {
	store     liveroom.RoomDocumentStore
	transport liveroom.MediaTransport
	retry     retry.Retry
	cfg       *coordinator.Config
	logger    *log.Logger

	// mu serializes Enter and Leave
	mu      stdsync.Mutex
	current atomic.Pointer[coordinator.Coordinator]
	// retiring is the last visit left; guarded by mu
	retiring *coordinator.Coordinator
}

func New(
	store liveroom.RoomDocumentStore,
	transport liveroom.MediaTransport,
	r retry.Retry,
	cfg *coordinator.Config,
	logger *log.Logger,
) *Agent {
	if logger == nil {
		panic("logger is required")
	}
	if cfg == nil {
		cfg = &coordinator.Config{}
	}
	return &Agent{
		store:     store,
		transport: transport,
		retry:     r,
		cfg:       cfg,
		logger:    logger,
	}
}

// Enter leaves the current visit, waits for its teardown and starts a new
// one. A failed start leaves the agent without a visit.
func (a *Agent) Enter(ctx context.Context, v session.Visit) (*coordinator.Coordinator, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if err := a.leaveLocked(ctx); err != nil {
		a.logger.Warn("Previous visit left with error", log.Error(err))
	}
	if err := a.awaitRetired(); err != nil {
		visitsFailed.Add(ctx, 1)
		return nil, err
	}

	visitLogger := a.logger.With(log.RoomID(v.RoomID), log.ParticipantID(v.ParticipantID))
	mgr, err := session.New(a.store, a.transport, v, a.retry, visitLogger.Module("Session"))
	if err != nil {
		return nil, err
	}
	coord := coordinator.New(v.RoomID, v.ParticipantID, a.store, mgr, a.retry, a.cfg, visitLogger.Module("Coordinator"))
	if err := coord.Start(ctx); err != nil {
		visitsFailed.Add(ctx, 1)
		visitLogger.Warn("Visit failed to start", log.Error(err))
		return nil, err
	}

	a.current.Store(coord)
	visitsStarted.Add(ctx, 1)
	visitLogger.Info("Visit started", log.VisitID(mgr.VisitID()))
	return coord, nil
}

// Current returns the live visit, or nil. A visit that ended on its own
// (room ended, removed) stays current until replaced so its final view
// remains readable.
func (a *Agent) Current() *coordinator.Coordinator {
	return a.current.Load()
}

// Leave ends the current visit. Leaving without a visit is an error.
func (a *Agent) Leave(ctx context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.current.Load() == nil {
		return errors.New(liveroom.ErrClosed, "no visit")
	}
	return a.leaveLocked(ctx)
}

func (a *Agent) leaveLocked(ctx context.Context) error {
	coord := a.current.Swap(nil)
	if coord == nil {
		return nil
	}
	a.retiring = coord
	err := coord.Leave(ctx)
	a.logger.Info("Visit left",
		log.RoomID(coord.RoomID()),
		log.ParticipantID(coord.ParticipantID()),
		log.Error(err))
	return err
}

// awaitRetired holds the next visit back until the last one has released
// its media, even when the Leave that ended it gave up early.
func (a *Agent) awaitRetired() error {
	prev := a.retiring
	if prev == nil {
		return nil
	}
	if !prev.AwaitTeardown() {
		a.logger.Error("Previous visit still tearing down",
			log.RoomID(prev.RoomID()),
			log.ParticipantID(prev.ParticipantID()))
		return errors.Newf(liveroom.ErrClosed, "previous visit to room %s is still tearing down", prev.RoomID())
	}
	a.retiring = nil
	return nil
}

// Close leaves the current visit, if any. Used at shutdown.
func (a *Agent) Close(ctx context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.leaveLocked(ctx)
}
