package fakes

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/imtaco/liveroom/internal/errors"
	"github.com/imtaco/liveroom/liveroom"
)

// Transport is an in-memory liveroom.MediaTransport. It records every call
// and counts acquired and released tracks so tests can check for leaks.
type Transport struct {
	mu        sync.Mutex
	joinErrs  []error
	pubErrs   []error
	joinGate  chan struct{}
	leaveGate chan struct{}
	denied    map[liveroom.TrackKind]bool
	sessions  []*Session
	calls     []string
	trackSeq  int
	provision map[string]string

	acquired atomic.Int64
	released atomic.Int64
	// doubleReleases counts Close calls on already released tracks.
	doubleReleases atomic.Int64
	// zombies counts publishes attempted after Leave.
	zombies atomic.Int64
}

func NewTransport() *Transport {
	return &Transport{
		denied:    make(map[liveroom.TrackKind]bool),
		provision: make(map[string]string),
	}
}

// FailJoins makes the next len(errs) joins fail in order.
func (t *Transport) FailJoins(errs ...error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.joinErrs = append(t.joinErrs, errs...)
}

// FailPublishes makes the next len(errs) publish calls fail in order.
func (t *Transport) FailPublishes(errs ...error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.pubErrs = append(t.pubErrs, errs...)
}

// PendingPublishFailures reports how many queued publish failures remain.
func (t *Transport) PendingPublishFailures() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.pubErrs)
}

func (t *Transport) nextPublishErr() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if len(t.pubErrs) == 0 {
		return nil
	}
	err := t.pubErrs[0]
	t.pubErrs = t.pubErrs[1:]
	return err
}

// BlockJoins holds every Join until the returned func is called.
func (t *Transport) BlockJoins() (release func()) {
	gate := make(chan struct{})
	t.mu.Lock()
	t.joinGate = gate
	t.mu.Unlock()
	var once sync.Once
	return func() {
		once.Do(func() {
			t.mu.Lock()
			if t.joinGate == gate {
				t.joinGate = nil
			}
			t.mu.Unlock()
			close(gate)
		})
	}
}

// BlockLeaves holds every Leave until the returned func is called or the
// caller's context ends.
func (t *Transport) BlockLeaves() (release func()) {
	gate := make(chan struct{})
	t.mu.Lock()
	t.leaveGate = gate
	t.mu.Unlock()
	var once sync.Once
	return func() {
		once.Do(func() {
			t.mu.Lock()
			if t.leaveGate == gate {
				t.leaveGate = nil
			}
			t.mu.Unlock()
			close(gate)
		})
	}
}

// Deny makes track creation of kind fail with ErrPermissionDenied.
func (t *Transport) Deny(kind liveroom.TrackKind) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.denied[kind] = true
}

func (t *Transport) Allow(kind liveroom.TrackKind) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.denied, kind)
}

func (t *Transport) record(call string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.calls = append(t.calls, call)
}

// Calls returns the recorded operations, e.g. "join alice", "publish alice audio".
func (t *Transport) Calls() []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]string(nil), t.calls...)
}

func (t *Transport) Sessions() []*Session {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]*Session(nil), t.sessions...)
}

// Session returns the latest session joined as identity.
func (t *Transport) Session(identity string) *Session {
	t.mu.Lock()
	defer t.mu.Unlock()
	for i := len(t.sessions) - 1; i >= 0; i-- {
		if t.sessions[i].req.Identity == identity {
			return t.sessions[i]
		}
	}
	return nil
}

// LiveTracks is the number of tracks acquired and not yet released.
func (t *Transport) LiveTracks() int64 {
	return t.acquired.Load() - t.released.Load()
}

func (t *Transport) Acquired() int64       { return t.acquired.Load() }
func (t *Transport) DoubleReleases() int64 { return t.doubleReleases.Load() }
func (t *Transport) Zombies() int64        { return t.zombies.Load() }

func (t *Transport) EnsureRoom(ctx context.Context, roomID, topic string) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.provision[roomID] = topic
	t.calls = append(t.calls, "ensureRoom "+roomID)
	return nil
}

func (t *Transport) Provisioned(roomID string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	_, ok := t.provision[roomID]
	return ok
}

func (t *Transport) Join(ctx context.Context, req liveroom.JoinRequest) (liveroom.TransportSession, error) {
	if req.Credential == "" {
		return nil, errors.New(liveroom.ErrConfiguration, "transport credential is missing")
	}
	t.record("join " + req.Identity)

	t.mu.Lock()
	gate := t.joinGate
	t.mu.Unlock()
	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return nil, errors.Wrap(liveroom.ErrTransport, ctx.Err(), "join")
		}
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	if len(t.joinErrs) > 0 {
		err := t.joinErrs[0]
		t.joinErrs = t.joinErrs[1:]
		if err != nil {
			return nil, err
		}
	}
	s := &Session{
		t:         t,
		req:       req,
		published: make(map[liveroom.TrackKind]*Track),
		muted:     make(map[string]bool),
	}
	t.sessions = append(t.sessions, s)
	return s, nil
}

// Session is one joined visit.
type Session struct {
	t   *Transport
	req liveroom.JoinRequest

	mu        sync.Mutex
	left      bool
	published map[liveroom.TrackKind]*Track
	muted     map[string]bool
	publishes int
}

func (s *Session) Listener() liveroom.TransportListener {
	return s.req.Listener
}

func (s *Session) Identity() string {
	return s.req.Identity
}

func (s *Session) Left() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.left
}

// Published reports whether a track of kind is currently published.
func (s *Session) Published(kind liveroom.TrackKind) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.published[kind]
	return ok
}

// Muted reports the transport-side muted state of the published track of kind.
func (s *Session) Muted(kind liveroom.TrackKind) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	tr, ok := s.published[kind]
	if !ok {
		return false
	}
	return s.muted[tr.id]
}

// Publishes counts successful publish calls.
func (s *Session) Publishes() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.publishes
}

func (s *Session) Leave(ctx context.Context) error {
	s.t.mu.Lock()
	gate := s.t.leaveGate
	s.t.mu.Unlock()
	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return errors.Wrap(liveroom.ErrTransport, ctx.Err(), "leave")
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.left {
		return nil
	}
	s.left = true
	s.published = make(map[liveroom.TrackKind]*Track)
	s.t.record("leave " + s.req.Identity)
	return nil
}

func (s *Session) CreateLocalTracks(ctx context.Context, kinds ...liveroom.TrackKind) ([]liveroom.TrackHandle, error) {
	s.t.mu.Lock()
	for _, k := range kinds {
		if s.t.denied[k] {
			s.t.mu.Unlock()
			return nil, errors.Newf(liveroom.ErrPermissionDenied, "%s capture not permitted", k)
		}
	}
	tracks := make([]liveroom.TrackHandle, 0, len(kinds))
	for _, k := range kinds {
		s.t.trackSeq++
		tracks = append(tracks, &Track{t: s.t, id: fmt.Sprintf("%s-%d", k, s.t.trackSeq), kind: k})
	}
	s.t.mu.Unlock()

	s.t.acquired.Add(int64(len(tracks)))
	s.t.record(fmt.Sprintf("createTracks %s %v", s.req.Identity, kinds))
	return tracks, nil
}

func (s *Session) Publish(ctx context.Context, tracks ...liveroom.TrackHandle) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.left {
		s.t.zombies.Add(1)
		return errors.New(liveroom.ErrClosed, "transport session left")
	}
	if err := s.t.nextPublishErr(); err != nil {
		s.t.record("publishFailed " + s.req.Identity)
		return err
	}
	for _, h := range tracks {
		tr, ok := h.(*Track)
		if !ok {
			return errors.New(liveroom.ErrUnsupportedKind, "foreign track")
		}
		if tr.released.Load() {
			return errors.Newf(liveroom.ErrAlreadyReleased, "track %s released", tr.id)
		}
		s.published[tr.kind] = tr
		s.t.record(fmt.Sprintf("publish %s %s", s.req.Identity, tr.kind))
	}
	s.publishes++
	return nil
}

func (s *Session) Unpublish(ctx context.Context, tracks ...liveroom.TrackHandle) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.left {
		return errors.New(liveroom.ErrClosed, "transport session left")
	}
	for _, h := range tracks {
		tr, ok := h.(*Track)
		if !ok {
			continue
		}
		if cur, ok := s.published[tr.kind]; ok && cur == tr {
			delete(s.published, tr.kind)
			s.t.record(fmt.Sprintf("unpublish %s %s", s.req.Identity, tr.kind))
		}
	}
	return nil
}

func (s *Session) SetMuted(ctx context.Context, track liveroom.TrackHandle, muted bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.left {
		return errors.New(liveroom.ErrClosed, "transport session left")
	}
	tr, ok := track.(*Track)
	if !ok {
		return errors.New(liveroom.ErrUnsupportedKind, "foreign track")
	}
	s.muted[tr.id] = muted
	s.t.record(fmt.Sprintf("setMuted %s %s %v", s.req.Identity, tr.kind, muted))
	return nil
}

// Track is a fake capture handle.
type Track struct {
	t        *Transport
	id       string
	kind     liveroom.TrackKind
	released atomic.Bool
}

func (tr *Track) ID() string               { return tr.id }
func (tr *Track) Kind() liveroom.TrackKind { return tr.kind }
func (tr *Track) Released() bool           { return tr.released.Load() }

func (tr *Track) Close() error {
	if !tr.released.CompareAndSwap(false, true) {
		tr.t.doubleReleases.Add(1)
		return errors.Newf(liveroom.ErrAlreadyReleased, "track %s already released", tr.id)
	}
	tr.t.released.Add(1)
	tr.t.record("release " + tr.id)
	return nil
}
