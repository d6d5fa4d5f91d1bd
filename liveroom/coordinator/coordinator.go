package coordinator

import (
	"context"
	stdsync "sync"
	"sync/atomic"
	"time"

	"github.com/imtaco/liveroom/internal/errors"
	"github.com/imtaco/liveroom/internal/log"
	"github.com/imtaco/liveroom/internal/retry"
	"github.com/imtaco/liveroom/internal/sync"
	"github.com/imtaco/liveroom/liveroom"
)

const (
	noticeLeft           = "you left the room"
	noticeEnded          = "the room has ended"
	noticeRemoved        = "you were removed from the room"
	noticeSuperseded     = "you joined this room from another session"
	noticeRoomGone       = "the room no longer exists"
	noticePermission     = "microphone or camera access was denied"
	noticeConnectFailed  = "could not connect to the room"
	noticeConnectionLost = "connection to the room was lost"
	noticeMediaFailed    = "could not update your microphone or camera"
)

// Session is the local media side of one visit.
type Session interface {
	VisitID() string
	HasKind(kind liveroom.TrackKind) bool
	Admit(ctx context.Context) (*liveroom.ParticipantRecord, error)
	Connect(ctx context.Context, listener liveroom.TransportListener) error
	Reconnect(ctx context.Context) error
	// RequestPublishing, FlipMute and FlipCamera record desired state without
	// blocking. Apply converges the transport to it.
	RequestPublishing(want bool)
	FlipMute() bool
	FlipCamera() (bool, error)
	Apply(ctx context.Context) error
	State() liveroom.LocalMediaView
	Close(ctx context.Context, removeMembership bool) error
}

type event struct {
	kind  string
	apply func()
}

// Coordinator reconciles one visit. Room snapshots, transport events, user
// actions and task completions are all queued and applied by a single loop;
// fields marked loop-owned are only touched from that loop.
type Coordinator struct {
	roomID  string
	selfID  string
	store   liveroom.RoomDocumentStore
	session Session
	retry   retry.Retry
	cfg     Config
	logger  *log.Logger

	ctx      context.Context
	cancel   context.CancelFunc
	events   chan event
	stopping chan struct{}
	done     chan struct{}
	started  atomic.Bool

	// loop-owned
	room             *liveroom.Room
	remotes          map[string]*remoteState
	levels           []liveroom.VolumeLevel
	applied          desired
	reconciled       bool
	connected        bool
	applying         bool
	applyPending     bool
	// mediaStale is set when an Apply failed; the next reconcile reissues it.
	mediaStale       bool
	reconnecting     bool
	reconnectWaiters []chan error
	closed           bool
	notice           string
	unsub            liveroom.Unsubscribe

	mu       stdsync.Mutex
	cause    error
	finalErr error
	closeErr error
	view     *liveroom.ViewModel

	watchers    *sync.Map[int64, chan *liveroom.ViewModel]
	nextWatcher atomic.Int64
}

func New(
	roomID string,
	selfID string,
	store liveroom.RoomDocumentStore,
	session Session,
	r retry.Retry,
	cfg *Config,
	logger *log.Logger,
) *Coordinator {
	if logger == nil {
		panic("logger is required")
	}
	conf := cfg.withDefaults()
	ctx, cancel := context.WithCancel(context.Background())
	return &Coordinator{
		roomID:   roomID,
		selfID:   selfID,
		store:    store,
		session:  session,
		retry:    r,
		cfg:      conf,
		logger:   logger,
		ctx:      ctx,
		cancel:   cancel,
		events:   make(chan event, conf.QueueSize),
		stopping: make(chan struct{}),
		done:     make(chan struct{}),
		remotes:  make(map[string]*remoteState),
		watchers: sync.NewMap[int64, chan *liveroom.ViewModel](),
	}
}

// Start admits the participant, subscribes to the room and joins the
// transport. On error the visit is already torn down.
func (c *Coordinator) Start(ctx context.Context) error {
	if !c.started.CompareAndSwap(false, true) {
		return errors.New(liveroom.ErrClosed, "visit already started")
	}
	c.logger.Info("Starting",
		log.RoomID(c.roomID),
		log.ParticipantID(c.selfID),
		log.VisitID(c.session.VisitID()))

	rec, err := c.session.Admit(ctx)
	if err != nil {
		c.abort(err, c.session.Close(ctx, false))
		return err
	}
	c.session.RequestPublishing(rec.Role.CanPublish())

	unsub, err := c.store.Subscribe(c.ctx, c.roomID, c.onRoom)
	if err != nil {
		c.abort(err, c.session.Close(ctx, rec.Role != liveroom.RoleHost))
		return err
	}
	c.unsub = unsub
	go c.loop()

	if err := c.session.Connect(ctx, &transportEvents{c: c}); err != nil {
		c.logger.Error("Fail to connect transport", log.Error(err))
		notice := noticeConnectFailed
		if errors.Is(err, liveroom.ErrPermissionDenied) {
			notice = noticePermission
		}
		c.enqueue(event{kind: "connectFailed", apply: func() { c.teardown(err, notice) }})
		<-c.done
		return err
	}
	c.enqueue(event{kind: "connected", apply: func() {
		c.connected = true
		c.reconcile()
	}})
	return nil
}

// abort ends a visit whose loop never started.
func (c *Coordinator) abort(cause, closeErr error) {
	c.mu.Lock()
	c.cause = cause
	c.finalErr = errors.Wrap(liveroom.ErrClosed, cause, "visit aborted")
	c.closeErr = closeErr
	c.mu.Unlock()
	close(c.stopping)
	c.cancel()
	close(c.done)
}

func (c *Coordinator) loop() {
	defer func() {
		close(c.done)
		c.closeWatchers()
	}()
	for {
		select {
		case <-c.ctx.Done():
			return
		case ev := <-c.events:
			queueDepth.Add(c.ctx, -1)
			ev.apply()
			eventsProcessed.Add(c.ctx, 1)
		}
	}
}

// enqueue never blocks once teardown has begun.
func (c *Coordinator) enqueue(ev event) bool {
	select {
	case <-c.stopping:
		return false
	default:
	}
	select {
	case c.events <- ev:
		eventsQueued.Add(c.ctx, 1)
		queueDepth.Add(c.ctx, 1)
		return true
	case <-c.stopping:
		return false
	}
}

// tryEnqueue drops ev when the queue is full.
func (c *Coordinator) tryEnqueue(ev event) bool {
	select {
	case <-c.stopping:
		return false
	case c.events <- ev:
		eventsQueued.Add(c.ctx, 1)
		queueDepth.Add(c.ctx, 1)
		return true
	default:
		eventsDropped.Add(c.ctx, 1)
		return false
	}
}

func (c *Coordinator) onRoom(room *liveroom.Room) {
	c.enqueue(event{kind: "snapshot", apply: func() { c.mergeRoom(room) }})
}

func (c *Coordinator) mergeRoom(room *liveroom.Room) {
	if c.closed {
		return
	}
	if room != nil && c.room != nil && room.Version <= c.room.Version {
		staleSnapshots.Add(c.ctx, 1)
		c.logger.Debug("stale snapshot dropped",
			log.Int64("version", room.Version),
			log.Int64("merged", c.room.Version))
		return
	}
	c.room = room
	c.reconcile()
}

// reconcile derives the desired state from the merged snapshots and issues
// only the side effects needed to converge to it.
func (c *Coordinator) reconcile() {
	if c.closed {
		return
	}
	reconciliations.Add(c.ctx, 1)

	room := c.room
	if room == nil {
		c.teardown(errors.Newf(liveroom.ErrStaleRoom, "room %s no longer exists", c.roomID), noticeRoomGone)
		return
	}
	if room.IsEnded() {
		c.teardown(errors.Newf(liveroom.ErrStaleRoom, "room %s has ended", c.roomID), noticeEnded)
		return
	}
	rec, ok := room.Participant(c.selfID)
	if !ok {
		c.teardown(errors.Newf(liveroom.ErrStaleRoom, "removed from room %s", c.roomID), noticeRemoved)
		return
	}
	if rec.VisitID != "" && rec.VisitID != c.session.VisitID() {
		c.teardown(errors.Newf(liveroom.ErrStaleRoom, "visit superseded by %s", rec.VisitID), noticeSuperseded)
		return
	}

	want := desired{
		role:          rec.Role,
		shouldPublish: rec.Role.CanPublish(),
		activeSpeaker: activeSpeaker(c.levels, c.cfg.SpeakerFloor, room),
	}
	if c.reconciled && want.role != c.applied.role {
		c.logger.Info("Role changed",
			log.String("from", string(c.applied.role)),
			log.String("to", string(want.role)))
	}
	if !c.reconciled || c.mediaStale || want.shouldPublish != c.applied.shouldPublish {
		c.mediaStale = false
		sideEffects.Add(c.ctx, 1)
		c.session.RequestPublishing(want.shouldPublish)
		c.requestApply()
	}
	c.applied = want
	c.reconciled = true
	c.publishView()
}

// requestApply keeps at most one Apply in flight; a request made meanwhile
// runs once the current one completes.
func (c *Coordinator) requestApply() {
	if c.applying {
		c.applyPending = true
		return
	}
	c.applying = true
	go func() {
		err := c.session.Apply(c.ctx)
		c.enqueue(event{kind: "applied", apply: func() { c.onApplied(err) }})
	}()
}

func (c *Coordinator) onApplied(err error) {
	c.applying = false
	if c.closed {
		return
	}
	if err != nil {
		switch {
		case errors.Is(err, liveroom.ErrPermissionDenied):
			c.teardown(err, noticePermission)
			return
		case errors.Is(err, liveroom.ErrClosed):
			return
		default:
			c.logger.Warn("Fail to apply media state", log.Error(err))
			c.notice = noticeMediaFailed
			c.mediaStale = true
		}
	}
	if c.applyPending {
		c.applyPending = false
		c.requestApply()
	}
	c.publishView()
}

func (c *Coordinator) startReconnect(reply chan error) {
	if reply != nil {
		c.reconnectWaiters = append(c.reconnectWaiters, reply)
	}
	if c.reconnecting {
		return
	}
	c.reconnecting = true
	c.connected = false
	c.remotes = make(map[string]*remoteState)
	c.levels = nil
	reconnects.Add(c.ctx, 1)
	c.publishView()

	go func() {
		err := c.session.Reconnect(c.ctx)
		c.enqueue(event{kind: "reconnected", apply: func() { c.onReconnected(err) }})
	}()
}

func (c *Coordinator) onReconnected(err error) {
	c.reconnecting = false
	for _, w := range c.reconnectWaiters {
		w <- err
	}
	c.reconnectWaiters = nil
	if c.closed {
		return
	}
	if err != nil {
		if errors.Is(err, liveroom.ErrClosed) {
			return
		}
		notice := noticeConnectionLost
		if errors.Is(err, liveroom.ErrPermissionDenied) {
			notice = noticePermission
		}
		c.teardown(err, notice)
		return
	}
	c.connected = true
	c.reconcile()
}

// ownsMembership reports whether teardown should remove this visit's record.
func (c *Coordinator) ownsMembership() bool {
	rec, ok := c.room.Participant(c.selfID)
	if !ok || c.room.IsEnded() || rec.Role == liveroom.RoleHost {
		return false
	}
	return rec.VisitID == "" || rec.VisitID == c.session.VisitID()
}

// teardown stops accepting events, unsubscribes from the room and closes the
// session in the background. The loop exits once the session is closed.
func (c *Coordinator) teardown(cause error, notice string) {
	if c.closed {
		return
	}
	c.closed = true
	remove := c.ownsMembership()
	close(c.stopping)
	teardowns.Add(c.ctx, 1)

	if c.unsub != nil {
		c.unsub()
	}

	final := errors.New(liveroom.ErrClosed, "visit closed")
	if c.room.IsEnded() {
		final = errors.Newf(liveroom.ErrRoomEnded, "room %s has ended", c.roomID)
	}
	c.mu.Lock()
	c.cause = cause
	c.finalErr = final
	c.mu.Unlock()

	if cause != nil {
		c.logger.Warn("Tearing down visit", log.Error(cause), log.Bool("removeMembership", remove))
	} else {
		c.logger.Info("Leaving visit", log.Bool("removeMembership", remove))
	}
	c.notice = notice
	c.publishView()

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), c.cfg.TeardownTimeout)
		defer cancel()
		err := c.session.Close(ctx, remove)
		c.mu.Lock()
		c.closeErr = err
		c.mu.Unlock()
		c.cancel()
	}()
}

func (c *Coordinator) publishView() {
	vm := buildView(c.roomID, c.selfID, c.room, c.remotes, c.applied,
		c.session.State(), c.session.HasKind(liveroom.TrackKindVideo), c.connected)
	vm.Closed = c.closed
	vm.Notice = c.notice

	c.mu.Lock()
	c.view = vm
	c.mu.Unlock()

	c.watchers.Range(func(_ int64, ch chan *liveroom.ViewModel) bool {
		select {
		case <-ch:
		default:
		}
		select {
		case ch <- vm:
		default:
		}
		return true
	})
}

func (c *Coordinator) closeWatchers() {
	for _, ch := range c.watchers.Drain() {
		close(ch)
	}
}

// View returns the latest view model, or nil before the first snapshot.
// The result must not be modified.
func (c *Coordinator) View() *liveroom.ViewModel {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.view
}

// Watch streams view models, keeping only the latest unread one. The channel
// is closed when the visit ends.
func (c *Coordinator) Watch() (<-chan *liveroom.ViewModel, func()) {
	ch := make(chan *liveroom.ViewModel, 1)
	if vm := c.View(); vm != nil {
		ch <- vm
	}
	id := c.nextWatcher.Add(1)
	c.watchers.Store(id, ch)

	select {
	case <-c.done:
		if ch, ok := c.watchers.LoadAndDelete(id); ok {
			close(ch)
		}
	default:
	}
	return ch, func() { c.watchers.LoadAndDelete(id) }
}

// Done is closed once the visit is fully torn down.
func (c *Coordinator) Done() <-chan struct{} {
	return c.done
}

// AwaitTeardown waits for Done for at most the teardown timeout, whatever
// the caller's context. It reports whether teardown finished.
func (c *Coordinator) AwaitTeardown() bool {
	t := time.NewTimer(c.cfg.TeardownTimeout)
	defer t.Stop()
	select {
	case <-c.done:
		return true
	case <-t.C:
		return false
	}
}

// Err reports why the visit ended; nil for a voluntary leave or while live.
func (c *Coordinator) Err() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.cause
}

func (c *Coordinator) RoomID() string {
	return c.roomID
}

func (c *Coordinator) ParticipantID() string {
	return c.selfID
}

func (c *Coordinator) finalError() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.finalErr != nil {
		return c.finalErr
	}
	return errors.New(liveroom.ErrClosed, "visit closed")
}
