package session

import (
	"context"
	"strings"
	stdsync "sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"

	"github.com/imtaco/liveroom/internal/errors"
	"github.com/imtaco/liveroom/internal/log"
	intotel "github.com/imtaco/liveroom/internal/otel"
	"github.com/imtaco/liveroom/internal/retry"
	"github.com/imtaco/liveroom/internal/sync"
	"github.com/imtaco/liveroom/internal/workflow"
	"github.com/imtaco/liveroom/liveroom"
)

// Visit identifies one participant's stay in one room.
type Visit struct {
	RoomID        string
	ParticipantID string
	DisplayRef    string
	Credential    string
	Kinds         []liveroom.TrackKind
}

func (v *Visit) validate() error {
	if v.RoomID == "" || v.ParticipantID == "" {
		return errors.New(liveroom.ErrConfiguration, "room id and participant id are required")
	}
	if strings.TrimSpace(v.Credential) == "" {
		return errors.New(liveroom.ErrConfiguration, "transport credential is missing")
	}
	kinds, err := normalizeKinds(v.Kinds)
	if err != nil {
		return err
	}
	v.Kinds = kinds
	return nil
}

// normalizeKinds puts audio first and drops duplicates.
func normalizeKinds(in []liveroom.TrackKind) ([]liveroom.TrackKind, error) {
	kinds := []liveroom.TrackKind{liveroom.TrackKindAudio}
	for _, k := range in {
		switch k {
		case liveroom.TrackKindAudio:
		case liveroom.TrackKindVideo:
			if len(kinds) == 1 {
				kinds = append(kinds, liveroom.TrackKindVideo)
			}
		default:
			return nil, errors.Newf(liveroom.ErrConfiguration, "unknown media kind %q", k)
		}
	}
	return kinds, nil
}

func (v *Visit) has(kind liveroom.TrackKind) bool {
	for _, k := range v.Kinds {
		if k == kind {
			return true
		}
	}
	return false
}

// NewRetry builds the bounded retry policy for store and transport calls.
func NewRetry(cfg *Config, logger *log.Logger) retry.Retry {
	return retry.New(logger, cfg.RetryInitial, cfg.RetryMax, cfg.RetryMaxElapsed,
		retry.WithMaxRetries(cfg.RetryAttempts),
		retry.WithRetryIf(liveroom.IsRetryable))
}

// Manager owns the transport session and local track handles of one visit.
// Every handle it acquires is released exactly once, at the latest by Close.
//
// Desired flags (publishing, muted, camera off) are recorded as soon as they
// are requested and applied under opMu from their latest values, so a change
// made while a join is in flight takes effect once the join resolves.
type Manager struct {
	store     liveroom.RoomDocumentStore
	transport liveroom.MediaTransport
	retry     retry.Retry
	visit     Visit
	visitID   string
	logger    *log.Logger

	// ctx is cancelled when Close begins; every transport call derives from it.
	ctx    context.Context
	cancel context.CancelFunc

	// opMu serializes side effects. mu guards the fields below and is never
	// held across a store or transport call.
	opMu stdsync.Mutex
	mu   stdsync.Mutex

	session      liveroom.TransportSession
	listener     liveroom.TransportListener
	wantPublish  bool
	isMuted      bool
	cameraOff    bool
	published    map[liveroom.TrackKind]bool
	appliedMuted *bool
	closing      bool

	acquired *sync.Map[liveroom.TrackKind, liveroom.TrackHandle]
}

func New(
	store liveroom.RoomDocumentStore,
	transport liveroom.MediaTransport,
	visit Visit,
	r retry.Retry,
	logger *log.Logger,
) (*Manager, error) {
	if logger == nil {
		panic("logger is required")
	}
	if err := visit.validate(); err != nil {
		return nil, err
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Manager{
		store:     store,
		transport: transport,
		retry:     r,
		visit:     visit,
		visitID:   uuid.NewString(),
		logger:    logger,
		ctx:       ctx,
		cancel:    cancel,
		published: make(map[liveroom.TrackKind]bool),
		acquired:  sync.NewMap[liveroom.TrackKind, liveroom.TrackHandle](),
	}, nil
}

func (m *Manager) VisitID() string {
	return m.visitID
}

func (m *Manager) Visit() Visit {
	return m.visit
}

func (m *Manager) HasKind(kind liveroom.TrackKind) bool {
	return m.visit.has(kind)
}

// Admit adds the participant to the room as Listener, or stamps this visit on
// an existing membership.
func (m *Manager) Admit(ctx context.Context) (*liveroom.ParticipantRecord, error) {
	if err := m.checkOpen(); err != nil {
		return nil, err
	}
	var rec *liveroom.ParticipantRecord
	err := m.retry.Do(ctx, func() error {
		var err error
		rec, err = m.store.AddParticipant(ctx, m.visit.RoomID, &liveroom.ParticipantRecord{
			ID:         m.visit.ParticipantID,
			DisplayRef: m.visit.DisplayRef,
			VisitID:    m.visitID,
		})
		return err
	})
	if err != nil {
		return nil, err
	}
	m.logger.Info("Admitted to room",
		log.RoomID(m.visit.RoomID),
		log.ParticipantID(rec.ID),
		log.String("role", string(rec.Role)),
		log.VisitID(m.visitID))
	return rec, nil
}

// Connect joins the transport. Transport events go to listener for the
// lifetime of the visit, including after a Reconnect.
func (m *Manager) Connect(ctx context.Context, listener liveroom.TransportListener) error {
	m.opMu.Lock()
	defer m.opMu.Unlock()

	if err := m.checkOpen(); err != nil {
		return err
	}
	m.mu.Lock()
	m.listener = listener
	m.mu.Unlock()
	return m.joinLocked(ctx)
}

// Reconnect leaves the current transport session, joins a new one and
// republishes according to the latest desired flags.
func (m *Manager) Reconnect(ctx context.Context) error {
	m.opMu.Lock()
	defer m.opMu.Unlock()

	if err := m.checkOpen(); err != nil {
		return err
	}
	m.mu.Lock()
	old := m.session
	m.session = nil
	m.published = make(map[liveroom.TrackKind]bool)
	m.appliedMuted = nil
	m.mu.Unlock()

	if old != nil {
		if err := old.Leave(ctx); err != nil {
			m.logger.Warn("Leaving stale transport session failed", log.Error(err))
		}
	}
	m.logger.Info("Reconnecting transport", log.RoomID(m.visit.RoomID))
	return m.joinLocked(ctx)
}

func (m *Manager) joinLocked(ctx context.Context) (err error) {
	ctx, done := m.opCtx(ctx)
	defer done()
	ctx, span := intotel.StartSpan(ctx, tracer, "session.join", m.spanAttrs()...)
	defer func() { intotel.EndSpan(span, err) }()

	m.mu.Lock()
	req := liveroom.JoinRequest{
		Credential: m.visit.Credential,
		RoomID:     m.visit.RoomID,
		Identity:   m.visit.ParticipantID,
		Listener:   m.listener,
	}
	m.mu.Unlock()

	var sess liveroom.TransportSession
	start := time.Now()
	err = m.retry.Do(ctx, func() error {
		s, err := m.transport.Join(ctx, req)
		if err != nil {
			return err
		}
		sess = s
		return nil
	})
	if err != nil {
		joinFailures.Add(ctx, 1)
		if m.isClosing() {
			return errors.Wrap(liveroom.ErrClosed, err, "join interrupted by teardown")
		}
		return err
	}
	joins.Add(ctx, 1)
	joinDuration.Record(ctx, time.Since(start).Seconds())

	m.mu.Lock()
	if m.closing {
		m.mu.Unlock()
		zombiesPrevented.Add(context.Background(), 1)
		if err := sess.Leave(context.WithoutCancel(ctx)); err != nil {
			m.logger.Warn("Leaving session joined during teardown failed", log.Error(err))
		}
		return errors.New(liveroom.ErrClosed, "visit closed while joining")
	}
	m.session = sess
	m.mu.Unlock()

	return m.applyLocked(ctx)
}

// RequestPublishing records whether the participant's role grants publish
// rights. Apply converges the transport to it.
func (m *Manager) RequestPublishing(want bool) {
	m.mu.Lock()
	m.wantPublish = want
	m.mu.Unlock()
}

// SetPublishing records want and applies it.
func (m *Manager) SetPublishing(ctx context.Context, want bool) error {
	m.RequestPublishing(want)
	return m.apply(ctx)
}

func (m *Manager) SetMuted(ctx context.Context, muted bool) error {
	m.mu.Lock()
	m.isMuted = muted
	m.mu.Unlock()
	return m.apply(ctx)
}

// FlipMute flips the desired muted flag without applying it.
func (m *Manager) FlipMute() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.isMuted = !m.isMuted
	return m.isMuted
}

// ToggleMute flips the muted flag, applies it and returns its new value.
func (m *Manager) ToggleMute(ctx context.Context) (bool, error) {
	muted := m.FlipMute()
	return muted, m.apply(ctx)
}

func (m *Manager) SetCameraOff(ctx context.Context, off bool) error {
	if !m.visit.has(liveroom.TrackKindVideo) {
		return errors.New(liveroom.ErrUnsupportedKind, "visit has no camera")
	}
	m.mu.Lock()
	m.cameraOff = off
	m.mu.Unlock()
	return m.apply(ctx)
}

// FlipCamera flips the desired camera-off flag without applying it.
func (m *Manager) FlipCamera() (bool, error) {
	if !m.visit.has(liveroom.TrackKindVideo) {
		return false, errors.New(liveroom.ErrUnsupportedKind, "visit has no camera")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cameraOff = !m.cameraOff
	return m.cameraOff, nil
}

// ToggleCamera flips the camera-off flag, applies it and returns its new value.
func (m *Manager) ToggleCamera(ctx context.Context) (bool, error) {
	off, err := m.FlipCamera()
	if err != nil {
		return false, err
	}
	return off, m.apply(ctx)
}

// Apply converges the transport to the latest desired flags.
func (m *Manager) Apply(ctx context.Context) error {
	return m.apply(ctx)
}

func (m *Manager) apply(ctx context.Context) error {
	m.opMu.Lock()
	defer m.opMu.Unlock()

	if err := m.checkOpen(); err != nil {
		return err
	}
	ctx, done := m.opCtx(ctx)
	defer done()
	return m.applyLocked(ctx)
}

// applyLocked converges the transport to the latest desired flags. It is a
// no-op while no session is connected.
func (m *Manager) applyLocked(ctx context.Context) error {
	m.mu.Lock()
	sess, want, muted, cameraOff := m.session, m.wantPublish, m.isMuted, m.cameraOff
	m.mu.Unlock()

	if sess == nil {
		return nil
	}
	if !want {
		var first error
		for _, kind := range m.visit.Kinds {
			if err := m.drop(ctx, sess, kind); err != nil && first == nil {
				first = err
			}
		}
		return first
	}

	audio, err := m.acquire(ctx, sess, liveroom.TrackKindAudio)
	if err != nil {
		return err
	}
	if err := m.publish(ctx, sess, audio); err != nil {
		return err
	}
	if err := m.applyMuted(ctx, sess, audio, muted); err != nil {
		return err
	}

	if !m.visit.has(liveroom.TrackKindVideo) {
		return nil
	}
	if cameraOff {
		return m.drop(ctx, sess, liveroom.TrackKindVideo)
	}
	video, err := m.acquire(ctx, sess, liveroom.TrackKindVideo)
	if err != nil {
		return err
	}
	return m.publish(ctx, sess, video)
}

// acquire returns the held handle of kind, creating it when none is held.
func (m *Manager) acquire(ctx context.Context, sess liveroom.TransportSession, kind liveroom.TrackKind) (liveroom.TrackHandle, error) {
	if h, ok := m.acquired.Load(kind); ok {
		return h, nil
	}
	if err := m.guard(); err != nil {
		return nil, err
	}

	var tracks []liveroom.TrackHandle
	err := m.retry.Do(ctx, func() error {
		var err error
		tracks, err = sess.CreateLocalTracks(ctx, kind)
		return err
	})
	if err != nil {
		return nil, err
	}
	if len(tracks) != 1 {
		for _, t := range tracks {
			_ = t.Close()
		}
		return nil, errors.Newf(liveroom.ErrTransport, "expected one %s track, got %d", kind, len(tracks))
	}

	h := tracks[0]
	m.acquired.Store(kind, h)
	tracksAcquired.Add(ctx, 1)
	tracksLive.Add(ctx, 1)
	m.logger.Debug("track acquired", log.String("kind", string(kind)), log.String("trackId", h.ID()))
	return h, nil
}

// release closes the held handle of kind, once.
func (m *Manager) release(kind liveroom.TrackKind) error {
	h, ok := m.acquired.LoadAndDelete(kind)
	if !ok {
		return nil
	}
	tracksReleased.Add(context.Background(), 1)
	tracksLive.Add(context.Background(), -1)
	m.logger.Debug("track released", log.String("kind", string(kind)), log.String("trackId", h.ID()))
	return h.Close()
}

func (m *Manager) publish(ctx context.Context, sess liveroom.TransportSession, h liveroom.TrackHandle) error {
	if m.isPublished(h.Kind()) {
		return nil
	}
	if err := m.guard(); err != nil {
		return err
	}
	if err := m.retry.Do(ctx, func() error { return sess.Publish(ctx, h) }); err != nil {
		return err
	}
	m.mu.Lock()
	m.published[h.Kind()] = true
	m.mu.Unlock()
	publishes.Add(ctx, 1)
	return nil
}

func (m *Manager) applyMuted(ctx context.Context, sess liveroom.TransportSession, audio liveroom.TrackHandle, muted bool) error {
	m.mu.Lock()
	applied := m.appliedMuted
	m.mu.Unlock()
	if applied != nil && *applied == muted {
		return nil
	}
	if err := m.guard(); err != nil {
		return err
	}
	if err := m.retry.Do(ctx, func() error { return sess.SetMuted(ctx, audio, muted) }); err != nil {
		return err
	}
	m.mu.Lock()
	m.appliedMuted = &muted
	m.mu.Unlock()
	return nil
}

// drop unpublishes and releases the handle of kind. The handle is released
// even when unpublishing fails.
func (m *Manager) drop(ctx context.Context, sess liveroom.TransportSession, kind liveroom.TrackKind) error {
	h, ok := m.acquired.Load(kind)
	if !ok {
		return nil
	}
	var unpubErr error
	if m.isPublished(kind) {
		unpubErr = m.retry.Do(ctx, func() error { return sess.Unpublish(ctx, h) })
		m.mu.Lock()
		delete(m.published, kind)
		if kind == liveroom.TrackKindAudio {
			m.appliedMuted = nil
		}
		m.mu.Unlock()
		unpublishes.Add(ctx, 1)
	}
	if err := m.release(kind); err != nil && unpubErr == nil {
		return err
	}
	return unpubErr
}

// Close tears the visit down: unpublish and release every held handle, leave
// the transport, then remove the membership when asked to. Each step is
// attempted even if an earlier one failed; the first error is returned.
// Calling Close again is a no-op.
func (m *Manager) Close(ctx context.Context, removeMembership bool) error {
	m.mu.Lock()
	if m.closing {
		m.mu.Unlock()
		return nil
	}
	m.closing = true
	m.mu.Unlock()
	m.cancel()

	m.opMu.Lock()
	defer m.opMu.Unlock()
	teardowns.Add(ctx, 1)
	ctx, span := intotel.StartSpan(ctx, tracer, "session.close", m.spanAttrs()...)

	var first error
	keep := func(step string, err error) {
		if err == nil {
			return
		}
		m.logger.Warn("Teardown step failed", log.String("step", step), log.Error(err))
		if first == nil {
			first = err
		}
	}

	m.mu.Lock()
	sess := m.session
	m.session = nil
	published := m.published
	m.published = make(map[liveroom.TrackKind]bool)
	m.mu.Unlock()

	if sess != nil {
		var tracks []liveroom.TrackHandle
		for kind := range published {
			if h, ok := m.acquired.Load(kind); ok {
				tracks = append(tracks, h)
			}
		}
		if len(tracks) > 0 {
			keep("unpublish", sess.Unpublish(ctx, tracks...))
		}
	}
	for _, kind := range m.visit.Kinds {
		keep("release", m.release(kind))
	}
	if sess != nil {
		keep("leave", sess.Leave(ctx))
	}
	if removeMembership {
		keep("removeParticipant", m.retry.Do(ctx, func() error {
			return m.store.RemoveParticipant(ctx, m.visit.RoomID, m.visit.ParticipantID, m.visit.ParticipantID)
		}))
	}

	m.logger.Info("Visit closed",
		log.RoomID(m.visit.RoomID),
		log.VisitID(m.visitID),
		log.Bool("membershipRemoved", removeMembership))
	intotel.EndSpan(span, first)
	return first
}

func (m *Manager) spanAttrs() []attribute.KeyValue {
	return intotel.VisitAttrs(m.visit.RoomID, m.visit.ParticipantID, m.visitID)
}

// State reports the applied local media state.
func (m *Manager) State() liveroom.LocalMediaView {
	m.mu.Lock()
	defer m.mu.Unlock()
	return liveroom.LocalMediaView{
		IsMuted:      m.isMuted,
		IsCameraOff:  m.cameraOff,
		IsPublishing: len(m.published) > 0,
	}
}

// LocalMedia returns the held handles and desired flags.
func (m *Manager) LocalMedia() liveroom.LocalMediaState {
	m.mu.Lock()
	st := liveroom.LocalMediaState{IsMuted: m.isMuted, IsCameraOff: m.cameraOff}
	m.mu.Unlock()
	st.AudioTrack, _ = m.acquired.Load(liveroom.TrackKindAudio)
	st.VideoTrack, _ = m.acquired.Load(liveroom.TrackKindVideo)
	return st
}

func (m *Manager) IsPublishing() bool {
	return m.State().IsPublishing
}

func (m *Manager) isPublished(kind liveroom.TrackKind) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.published[kind]
}

func (m *Manager) isClosing() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closing
}

func (m *Manager) checkOpen() error {
	if m.isClosing() {
		return errors.New(liveroom.ErrClosed, "visit closed")
	}
	return nil
}

// guard is checked before every side effect so nothing new is applied once
// teardown has begun.
func (m *Manager) guard() error {
	if m.isClosing() {
		zombiesPrevented.Add(context.Background(), 1)
		return errors.New(liveroom.ErrClosed, "visit closing")
	}
	return nil
}

// opCtx derives a context that is also cancelled when Close begins.
func (m *Manager) opCtx(ctx context.Context) (context.Context, context.CancelFunc) {
	return workflow.WithEitherDone(ctx, m.ctx)
}
