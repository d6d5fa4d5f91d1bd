package media

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/jonboulle/clockwork"
	"github.com/pion/webrtc/v4"
	"golang.org/x/sync/singleflight"

	"github.com/imtaco/liveroom/internal/errors"
	"github.com/imtaco/liveroom/internal/janus"
	"github.com/imtaco/liveroom/internal/log"
	"github.com/imtaco/liveroom/liveroom"
)

// AudioBridge plugin error codes.
const (
	abErrNoSuchRoom   = 485
	abErrUnauthorized = 489
	abErrIDExists     = 490
)

// JanusTransport joins rooms hosted by the Janus AudioBridge plugin. A
// session is one plugin handle plus one peer connection carrying a single
// audio sender; the bridge mixes audio server side and has no video.
type JanusTransport struct {
	api      janus.API
	devices  Devices
	identity *IdentityRegistry
	cfg      *Config
	clock    clockwork.Clock
	sfRoom   singleflight.Group
	logger   *log.Logger
}

func NewJanusTransport(
	api janus.API,
	devices Devices,
	identity *IdentityRegistry,
	cfg *Config,
	clock clockwork.Clock,
	logger *log.Logger,
) *JanusTransport {
	if logger == nil {
		panic("logger is required")
	}
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &JanusTransport{
		api:      api,
		devices:  devices,
		identity: identity,
		cfg:      cfg,
		clock:    clock,
		logger:   logger,
	}
}

func (t *JanusTransport) Join(ctx context.Context, req liveroom.JoinRequest) (liveroom.TransportSession, error) {
	s, err := t.join(ctx, req)
	if err != nil {
		joinsFailed.Add(ctx, 1)
		t.logger.Warn("Transport join failed",
			log.RoomID(req.RoomID),
			log.String("identity", req.Identity),
			log.Error(err))
		return nil, err
	}
	joinsSucceeded.Add(ctx, 1)
	t.logger.Info("Transport joined",
		log.RoomID(req.RoomID),
		log.String("identity", req.Identity),
		log.Any("transportId", s.numericID))
	return s, nil
}

func (t *JanusTransport) join(ctx context.Context, req liveroom.JoinRequest) (*janusSession, error) {
	if err := checkCredential(req); err != nil {
		return nil, err
	}
	if req.Listener == nil {
		return nil, errors.New(liveroom.ErrConfiguration, "transport listener is required")
	}
	numericID, err := t.identity.Bind(req.RoomID, req.Identity)
	if err != nil {
		return nil, err
	}

	pc, err := webrtc.NewPeerConnection(t.cfg.rtcConfiguration())
	if err != nil {
		return nil, errors.Wrap(liveroom.ErrTransport, err, "create peer connection")
	}
	transceiver, err := pc.AddTransceiverFromKind(webrtc.RTPCodecTypeAudio, webrtc.RTPTransceiverInit{
		Direction: webrtc.RTPTransceiverDirectionSendrecv,
	})
	if err != nil {
		_ = pc.Close()
		return nil, errors.Wrap(liveroom.ErrTransport, err, "add audio transceiver")
	}
	offer, err := t.offer(ctx, pc)
	if err != nil {
		_ = pc.Close()
		return nil, err
	}

	anchor, err := t.api.Attach(ctx, req.Identity)
	if err != nil {
		_ = pc.Close()
		return nil, errors.Wrap(liveroom.ErrTransport, err, "create janus handle")
	}

	logger := t.logger.Module("Session")
	pollCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	s := &janusSession{
		transport: t,
		roomID:    req.RoomID,
		identity:  req.Identity,
		numericID: numericID,
		anchor:    anchor,
		pc:        pc,
		sender:    transceiver.Sender(),
		listener:  req.Listener,
		events:    newEventTranslator(req.RoomID, numericID, req.Identity, t.identity, req.Listener, logger),
		logger:    logger,
		muted:     make(map[string]bool),
		joined:    make(chan error, 1),
		cancel:    cancel,
		done:      make(chan struct{}),
	}
	pc.OnConnectionStateChange(s.onConnectionState)
	go s.poll(pollCtx)

	err = anchor.Join(ctx, janus.JoinRequest{
		Room:    RoomNumber(req.RoomID),
		ID:      numericID,
		Display: req.Identity,
		Muted:   true,
		Pin:     t.cfg.RoomPin,
		Token:   req.Credential,
	}, &janus.JSEP{Type: webrtc.SDPTypeOffer.String(), SDP: offer.SDP})
	if err != nil {
		_ = s.teardown(context.WithoutCancel(ctx))
		return nil, errors.Wrap(liveroom.ErrTransport, err, "janus join")
	}

	select {
	case err := <-s.joined:
		if err != nil {
			_ = s.teardown(context.WithoutCancel(ctx))
			return nil, err
		}
	case <-ctx.Done():
		_ = s.teardown(context.WithoutCancel(ctx))
		return nil, errors.Wrap(liveroom.ErrTransport, ctx.Err(), "waiting for janus join")
	}

	anchor.StartKeepalive()
	return s, nil
}

// offer creates a complete (non-trickle) offer.
func (t *JanusTransport) offer(ctx context.Context, pc *webrtc.PeerConnection) (*webrtc.SessionDescription, error) {
	offer, err := pc.CreateOffer(nil)
	if err != nil {
		return nil, errors.Wrap(liveroom.ErrTransport, err, "create offer")
	}
	gatherComplete := webrtc.GatheringCompletePromise(pc)
	if err := pc.SetLocalDescription(offer); err != nil {
		return nil, errors.Wrap(liveroom.ErrTransport, err, "set local description")
	}
	select {
	case <-gatherComplete:
	case <-ctx.Done():
		return nil, errors.Wrap(liveroom.ErrTransport, ctx.Err(), "ice gathering")
	}
	return pc.LocalDescription(), nil
}

// EnsureRoom creates the AudioBridge room backing roomID unless it exists.
// Concurrent calls for the same room share one round trip.
func (t *JanusTransport) EnsureRoom(ctx context.Context, roomID, topic string) error {
	_, err, _ := t.sfRoom.Do(roomID, func() (any, error) {
		return nil, t.ensureRoom(ctx, roomID, topic)
	})
	return err
}

func (t *JanusTransport) ensureRoom(ctx context.Context, roomID, topic string) error {
	admin, err := t.api.Admin(ctx, t.cfg.AdminSecret)
	if err != nil {
		return errors.Wrap(liveroom.ErrTransport, err, "create janus admin handle")
	}
	defer func() {
		if err := admin.Destroy(context.WithoutCancel(ctx)); err != nil {
			t.logger.Debug("janus admin destroy", log.Error(err))
		}
	}()

	number := RoomNumber(roomID)
	exists, err := admin.RoomExists(ctx, number)
	if err != nil {
		return errors.Wrapf(liveroom.ErrTransport, err, "check janus room for %s", roomID)
	}
	if exists {
		return nil
	}

	err = admin.CreateRoom(ctx, janus.CreateRoomRequest{
		Room:         number,
		Description:  topic,
		SamplingRate: t.cfg.SamplingRate,
		AudioLevel:   true,
		Pin:          t.cfg.RoomPin,
	})
	if errors.Is(err, janus.ErrAlreadyExisted) {
		return nil
	}
	if err != nil {
		return errors.Wrapf(liveroom.ErrTransport, err, "create janus room for %s", roomID)
	}
	t.logger.Info("Janus room created", log.RoomID(roomID), log.Any("janusRoom", number))
	return nil
}

type janusSession struct {
	transport *JanusTransport
	roomID    string
	identity  string
	numericID uint64
	anchor    janus.Anchor
	pc        *webrtc.PeerConnection
	sender    *webrtc.RTPSender
	listener  liveroom.TransportListener
	events    *eventTranslator
	logger    *log.Logger

	// opMu serializes operations that talk to Janus.
	opMu sync.Mutex

	mu        sync.Mutex
	published *LocalTrack
	muted     map[string]bool
	left      bool

	joined   chan error
	joinOnce sync.Once
	joinDone atomic.Bool
	lostOnce sync.Once
	cancel   context.CancelFunc
	done     chan struct{}
}

func (s *janusSession) CreateLocalTracks(ctx context.Context, kinds ...liveroom.TrackKind) ([]liveroom.TrackHandle, error) {
	if err := s.checkOpen(); err != nil {
		return nil, err
	}
	for _, k := range kinds {
		if k != liveroom.TrackKindAudio {
			return nil, errors.Newf(liveroom.ErrUnsupportedKind, "audio bridge cannot carry %s", k)
		}
	}
	return openTracks(ctx, s.transport.devices, s.identity, kinds)
}

func (s *janusSession) Publish(ctx context.Context, tracks ...liveroom.TrackHandle) error {
	s.opMu.Lock()
	defer s.opMu.Unlock()

	if err := s.checkOpen(); err != nil {
		return err
	}
	for _, tr := range tracks {
		lt, err := s.own(tr)
		if err != nil {
			return err
		}
		s.mu.Lock()
		current, muted := s.published, s.muted[lt.ID()]
		s.mu.Unlock()
		if current == lt {
			continue
		}

		if err := s.sender.ReplaceTrack(lt.rtc); err != nil {
			return errors.Wrap(liveroom.ErrTransport, err, "attach track")
		}
		s.mu.Lock()
		s.published = lt
		s.mu.Unlock()
		if err := s.configure(ctx, muted); err != nil {
			return err
		}
	}
	return nil
}

func (s *janusSession) Unpublish(ctx context.Context, tracks ...liveroom.TrackHandle) error {
	s.opMu.Lock()
	defer s.opMu.Unlock()

	if err := s.checkOpen(); err != nil {
		return err
	}
	for _, tr := range tracks {
		lt, ok := tr.(*LocalTrack)
		s.mu.Lock()
		current := s.published
		s.mu.Unlock()
		if !ok || current != lt {
			continue
		}

		if err := s.sender.ReplaceTrack(nil); err != nil {
			return errors.Wrap(liveroom.ErrTransport, err, "detach track")
		}
		s.mu.Lock()
		s.published = nil
		s.mu.Unlock()
		if err := s.configure(ctx, true); err != nil {
			return err
		}
	}
	return nil
}

func (s *janusSession) SetMuted(ctx context.Context, track liveroom.TrackHandle, muted bool) error {
	s.opMu.Lock()
	defer s.opMu.Unlock()

	if err := s.checkOpen(); err != nil {
		return err
	}
	lt, err := s.own(track)
	if err != nil {
		return err
	}
	s.mu.Lock()
	s.muted[lt.ID()] = muted
	published := s.published == lt
	s.mu.Unlock()

	if !published {
		return nil
	}
	return s.configure(ctx, muted)
}

// Leave exits the room and closes the peer connection. Tracks stay open;
// they belong to the caller.
func (s *janusSession) Leave(ctx context.Context) error {
	s.opMu.Lock()
	defer s.opMu.Unlock()

	s.mu.Lock()
	if s.left {
		s.mu.Unlock()
		return nil
	}
	s.mu.Unlock()
	return s.teardown(ctx)
}

func (s *janusSession) teardown(ctx context.Context) error {
	s.mu.Lock()
	s.left = true
	s.published = nil
	s.mu.Unlock()
	s.cancel()

	var first error
	keep := func(err error) {
		if err != nil && first == nil {
			first = err
		}
	}
	if s.joinDone.Load() {
		err := s.anchor.Leave(ctx)
		keep(err)
	}
	keep(s.anchor.Destroy(ctx))
	keep(s.pc.Close())

	select {
	case <-s.done:
	case <-ctx.Done():
	}
	if first != nil {
		return errors.Wrap(liveroom.ErrTransport, first, "leave janus room")
	}
	return nil
}

func (s *janusSession) configure(ctx context.Context, muted bool) error {
	if err := s.anchor.Configure(ctx, janus.ConfigureRequest{Muted: &muted}); err != nil {
		return errors.Wrap(liveroom.ErrTransport, err, "configure janus participant")
	}
	return nil
}

func (s *janusSession) checkOpen() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.left {
		return errors.New(liveroom.ErrClosed, "transport session left")
	}
	return nil
}

func (s *janusSession) own(track liveroom.TrackHandle) (*LocalTrack, error) {
	lt, ok := track.(*LocalTrack)
	if !ok || lt.Kind() != liveroom.TrackKindAudio {
		return nil, errors.New(liveroom.ErrUnsupportedKind, "track was not created by this transport")
	}
	if lt.Released() {
		return nil, errors.Newf(liveroom.ErrAlreadyReleased, "track %s released", lt.ID())
	}
	return lt, nil
}

func (s *janusSession) poll(ctx context.Context) {
	defer close(s.done)

	cfg := s.transport.cfg
	maxFailures := max(cfg.PollFailures, 1)
	failures := 0
	for {
		resps, err := s.anchor.Events(ctx, cfg.MaxEvents)
		if ctx.Err() != nil {
			return
		}
		if err != nil {
			failures++
			if failures >= maxFailures {
				s.lost(errors.Wrap(liveroom.ErrTransport, err, "janus event poll"))
				return
			}
			s.logger.Warn("Janus event poll failed", log.Int("failures", failures), log.Error(err))
			select {
			case <-ctx.Done():
				return
			case <-s.transport.clock.After(cfg.PollBackoff):
			}
			continue
		}
		failures = 0
		for _, resp := range resps {
			s.dispatch(resp)
		}
	}
}

func (s *janusSession) dispatch(resp *janus.Response) {
	eventsReceived.Add(context.Background(), 1)

	switch resp.Janus {
	case "event":
		var ev janus.AudioBridgeEvent
		if err := resp.DecodePluginData(&ev); err != nil {
			s.logger.Warn("Undecodable janus event", log.Error(err))
			return
		}
		if ev.ErrorCode != 0 {
			err := pluginError(&ev)
			if !s.joinDone.Load() {
				s.finishJoin(err)
				return
			}
			s.logger.Warn("AudioBridge request failed", log.Error(err))
			return
		}
		if ev.AudioBridge == "joined" && ev.ID == s.numericID {
			if err := s.acceptAnswer(resp); err != nil {
				s.finishJoin(err)
				return
			}
			// participants already present are reported before Join returns
			s.events.handle(&ev)
			s.finishJoin(nil)
			return
		}
		s.events.handle(&ev)
	case "hangup", "detached":
		s.lost(errors.Newf(liveroom.ErrTransport, "janus %s: %s", resp.Janus, resp.Reason))
	default:
		s.logger.Debug("janus event", log.String("type", resp.Janus))
	}
}

func (s *janusSession) acceptAnswer(resp *janus.Response) error {
	jsep, err := resp.DecodeJSEP()
	if err != nil {
		return errors.Wrap(liveroom.ErrTransport, err, "join answer")
	}
	if jsep == nil {
		return errors.New(liveroom.ErrTransport, "join answered without sdp")
	}
	err = s.pc.SetRemoteDescription(webrtc.SessionDescription{
		Type: webrtc.SDPTypeAnswer,
		SDP:  jsep.SDP,
	})
	if err != nil {
		return errors.Wrap(liveroom.ErrTransport, err, "set remote description")
	}
	return nil
}

func (s *janusSession) finishJoin(err error) {
	s.joinOnce.Do(func() {
		s.joinDone.Store(true)
		s.joined <- err
	})
}

func (s *janusSession) onConnectionState(state webrtc.PeerConnectionState) {
	s.logger.Debug("peer connection state", log.String("state", state.String()))
	if state == webrtc.PeerConnectionStateFailed {
		s.lost(errors.Newf(liveroom.ErrTransport, "peer connection %s", state))
	}
}

// lost reports an unexpected end of the session once.
func (s *janusSession) lost(err error) {
	if !s.joinDone.Load() {
		s.finishJoin(err)
		return
	}
	s.mu.Lock()
	left := s.left
	s.mu.Unlock()
	if left {
		return
	}
	s.lostOnce.Do(func() {
		disconnects.Add(context.Background(), 1)
		s.logger.Warn("Transport session lost", log.RoomID(s.roomID), log.Error(err))
		s.listener.OnDisconnected(err)
	})
}

func pluginError(ev *janus.AudioBridgeEvent) error {
	switch ev.ErrorCode {
	case abErrUnauthorized:
		return errors.Newf(liveroom.ErrConfiguration, "janus rejected credential: %s", ev.Error)
	case abErrIDExists:
		return errors.Newf(liveroom.ErrIdentityCollision, "janus: %s", ev.Error)
	case abErrNoSuchRoom:
		return errors.Newf(liveroom.ErrTransport, "janus room missing: %s", ev.Error)
	}
	return errors.Newf(liveroom.ErrTransport, "janus error %d: %s", ev.ErrorCode, ev.Error)
}
