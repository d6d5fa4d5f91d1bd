package coordinator

import (
	"context"
	"math/rand"
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/suite"

	"github.com/imtaco/liveroom/internal/errors"
	"github.com/imtaco/liveroom/internal/log"
	"github.com/imtaco/liveroom/internal/retry"
	"github.com/imtaco/liveroom/liveroom"
	"github.com/imtaco/liveroom/liveroom/media/fakes"
	"github.com/imtaco/liveroom/liveroom/session"
	"github.com/imtaco/liveroom/liveroom/store"
)

const (
	waitFor = 2 * time.Second
	tick    = 2 * time.Millisecond
)

type client struct {
	coord *Coordinator
	mgr   *session.Manager
}

type CoordinatorTestSuite struct {
	suite.Suite
	ctx       context.Context
	store     *store.Memory
	transport *fakes.Transport
	retry     retry.Retry
	clients   []*client
}

func TestCoordinatorSuite(t *testing.T) {
	suite.Run(t, new(CoordinatorTestSuite))
}

func (s *CoordinatorTestSuite) SetupTest() {
	s.ctx = context.Background()
	s.store = store.NewMemory(clockwork.NewRealClock(), log.NewNop())
	s.transport = fakes.NewTransport()
	s.retry = session.NewRetry(&session.Config{
		RetryAttempts:   1,
		RetryInitial:    time.Millisecond,
		RetryMax:        2 * time.Millisecond,
		RetryMaxElapsed: 100 * time.Millisecond,
	}, log.NewNop())
	s.clients = nil

	_, err := s.store.CreateRoom(s.ctx, "r1", "topic", &liveroom.ParticipantRecord{ID: "host"})
	s.Require().NoError(err)
}

func (s *CoordinatorTestSuite) TearDownTest() {
	for _, c := range s.clients {
		ctx, cancel := context.WithTimeout(s.ctx, waitFor)
		_ = c.coord.Leave(ctx)
		cancel()
	}
	s.Zero(s.transport.LiveTracks(), "track handles leaked")
	s.Zero(s.transport.DoubleReleases())
}

func (s *CoordinatorTestSuite) newClient(id string, kinds ...liveroom.TrackKind) *client {
	mgr, err := session.New(s.store, s.transport, session.Visit{
		RoomID:        "r1",
		ParticipantID: id,
		Credential:    "token-" + id,
		Kinds:         kinds,
	}, s.retry, log.NewNop())
	s.Require().NoError(err)
	c := &client{
		coord: New("r1", id, s.store, mgr, s.retry, &Config{SpeakerFloor: 0.1}, log.NewNop()),
		mgr:   mgr,
	}
	s.clients = append(s.clients, c)
	return c
}

func (s *CoordinatorTestSuite) join(id string, kinds ...liveroom.TrackKind) *client {
	c := s.newClient(id, kinds...)
	s.Require().NoError(c.coord.Start(s.ctx))
	s.waitView(c, func(vm *liveroom.ViewModel) bool { return vm.MyRole != "" })
	return c
}

func (s *CoordinatorTestSuite) waitView(c *client, cond func(vm *liveroom.ViewModel) bool) {
	s.Eventually(func() bool {
		vm := c.coord.View()
		return vm != nil && cond(vm)
	}, waitFor, tick)
}

func (s *CoordinatorTestSuite) waitDone(c *client) {
	select {
	case <-c.coord.Done():
	case <-time.After(waitFor):
		s.FailNow("visit not torn down")
	}
}

// drain waits until the loop has applied everything queued before it.
func (s *CoordinatorTestSuite) drain(c *client) {
	done := make(chan struct{})
	s.Require().True(c.coord.enqueue(event{kind: "drain", apply: func() { close(done) }}))
	select {
	case <-done:
	case <-time.After(waitFor):
		s.FailNow("loop stalled")
	}
}

func (s *CoordinatorTestSuite) joins(id string) int {
	n := 0
	for _, c := range s.transport.Calls() {
		if c == "join "+id {
			n++
		}
	}
	return n
}

func (s *CoordinatorTestSuite) room() *liveroom.Room {
	room, err := s.store.Get(s.ctx, "r1")
	s.Require().NoError(err)
	return room
}

func (s *CoordinatorTestSuite) promote(host, c *client) {
	s.Require().NoError(c.coord.RaiseHand(s.ctx))
	s.waitView(host, func(vm *liveroom.ViewModel) bool {
		return len(vm.RaisedHands) == 1 && vm.RaisedHands[0] == c.coord.ParticipantID()
	})
	s.Require().NoError(host.coord.InviteToSpeak(s.ctx, c.coord.ParticipantID()))
	s.Eventually(c.mgr.IsPublishing, waitFor, tick)
}

func (s *CoordinatorTestSuite) TestHostPublishesListenerDoesNot() {
	host := s.join("host")
	alice := s.join("alice")

	s.Eventually(host.mgr.IsPublishing, waitFor, tick)
	s.waitView(alice, func(vm *liveroom.ViewModel) bool { return vm.MyRole == liveroom.RoleListener })
	s.False(alice.mgr.IsPublishing())
	s.False(s.transport.Session("alice").Published(liveroom.TrackKindAudio))
	s.EqualValues(1, s.transport.LiveTracks())
}

func (s *CoordinatorTestSuite) TestRaiseHandThenInvite() {
	host := s.join("host")
	alice := s.join("alice")

	s.Require().NoError(alice.coord.RaiseHand(s.ctx))
	s.waitView(alice, func(vm *liveroom.ViewModel) bool {
		return len(vm.RaisedHands) == 1 && vm.MyRole == liveroom.RoleListener
	})
	s.True(s.room().HasRaisedHand("alice"))

	s.waitView(host, func(vm *liveroom.ViewModel) bool { return len(vm.RaisedHands) == 1 })
	s.Require().NoError(host.coord.InviteToSpeak(s.ctx, "alice"))

	s.waitView(alice, func(vm *liveroom.ViewModel) bool {
		return vm.MyRole == liveroom.RoleSpeaker && len(vm.RaisedHands) == 0 && vm.Local.IsPublishing
	})
	s.True(s.transport.Session("alice").Published(liveroom.TrackKindAudio))

	room := s.room()
	r, _ := room.RoleOf("alice")
	s.Equal(liveroom.RoleSpeaker, r)
	s.False(room.HasRaisedHand("alice"))
}

func (s *CoordinatorTestSuite) TestDemoteUnpublishesAndReleases() {
	host := s.join("host")
	alice := s.join("alice")
	s.promote(host, alice)

	s.Require().NoError(host.coord.Demote(s.ctx, "alice"))
	s.waitView(alice, func(vm *liveroom.ViewModel) bool {
		return vm.MyRole == liveroom.RoleListener && !vm.Local.IsPublishing
	})
	s.False(s.transport.Session("alice").Published(liveroom.TrackKindAudio))
	s.Eventually(func() bool { return s.transport.LiveTracks() == 1 }, waitFor, tick)
}

func (s *CoordinatorTestSuite) TestNonHostActionsRejected() {
	s.join("host")
	alice := s.join("alice")
	bob := s.join("bob")
	s.Require().NoError(bob.coord.RaiseHand(s.ctx))
	s.waitView(alice, func(vm *liveroom.ViewModel) bool { return len(vm.RaisedHands) == 1 })

	before := s.room()

	s.Run("invite", func() {
		err := alice.coord.InviteToSpeak(s.ctx, "bob")
		s.True(errors.Is(err, liveroom.ErrAuthorization), "%v", err)
	})
	s.Run("demote host", func() {
		err := alice.coord.Demote(s.ctx, "host")
		s.True(errors.Is(err, liveroom.ErrAuthorization), "%v", err)
	})
	s.Run("end room", func() {
		err := alice.coord.EndRoom(s.ctx)
		s.True(errors.Is(err, liveroom.ErrAuthorization), "%v", err)
	})
	s.Run("remove other", func() {
		err := alice.coord.Remove(s.ctx, "bob")
		s.True(errors.Is(err, liveroom.ErrAuthorization), "%v", err)
	})
	s.Run("lower other hand", func() {
		err := alice.coord.LowerHand(s.ctx, "bob")
		s.True(errors.Is(err, liveroom.ErrAuthorization), "%v", err)
	})
	s.Run("store rejects as well", func() {
		err := s.store.SetRole(s.ctx, "r1", "alice", "bob", liveroom.RoleSpeaker)
		s.True(errors.Is(err, liveroom.ErrAuthorization), "%v", err)
	})

	s.Equal(before.Version, s.room().Version)
}

func (s *CoordinatorTestSuite) TestOnlyListenersRaiseHands() {
	host := s.join("host")
	err := host.coord.RaiseHand(s.ctx)
	s.True(errors.Is(err, liveroom.ErrInvalidTransition), "%v", err)
	s.Empty(s.room().RaisedHands)
}

func (s *CoordinatorTestSuite) TestInviteRequiresRaisedHand() {
	host := s.join("host")
	s.join("alice")
	s.waitView(host, func(vm *liveroom.ViewModel) bool { return len(vm.Participants) == 2 })

	err := host.coord.InviteToSpeak(s.ctx, "alice")
	s.True(errors.Is(err, liveroom.ErrInvalidTransition), "%v", err)
}

func (s *CoordinatorTestSuite) TestLowerHand() {
	host := s.join("host")
	alice := s.join("alice")
	bob := s.join("bob")

	s.Require().NoError(alice.coord.RaiseHand(s.ctx))
	s.Require().NoError(alice.coord.LowerHand(s.ctx, ""))
	s.False(s.room().HasRaisedHand("alice"))

	s.Require().NoError(bob.coord.RaiseHand(s.ctx))
	s.waitView(host, func(vm *liveroom.ViewModel) bool { return len(vm.RaisedHands) == 1 })
	s.Require().NoError(host.coord.LowerHand(s.ctx, "bob"))
	s.waitView(bob, func(vm *liveroom.ViewModel) bool { return len(vm.RaisedHands) == 0 })
}

func (s *CoordinatorTestSuite) TestSameSnapshotTwiceHasNoSideEffects() {
	host := s.join("host")
	alice := s.join("alice")
	s.promote(host, alice)
	s.drain(alice)

	sess := s.transport.Session("alice")
	publishes := sess.Publishes()
	calls := len(s.transport.Calls())

	room := s.room()
	alice.coord.onRoom(room.Clone())
	again := room.Clone()
	again.Version++
	alice.coord.onRoom(again)
	s.drain(alice)

	s.Never(func() bool {
		return sess.Publishes() != publishes || len(s.transport.Calls()) != calls
	}, 50*time.Millisecond, tick)
}

func (s *CoordinatorTestSuite) TestStaleSnapshotIgnored() {
	host := s.join("host")
	alice := s.join("alice")
	older := s.room()
	s.promote(host, alice)
	s.drain(alice)

	// a delayed copy from before the promotion
	alice.coord.onRoom(older)
	s.drain(alice)

	s.Never(func() bool { return !alice.mgr.IsPublishing() }, 50*time.Millisecond, tick)
	s.Equal(liveroom.RoleSpeaker, alice.coord.View().MyRole)
}

// Snapshots delivered in any order converge on the newest one.
func (s *CoordinatorTestSuite) TestSnapshotOrderDoesNotMatter() {
	s.join("host")
	roles := []liveroom.Role{
		liveroom.RoleSpeaker, liveroom.RoleListener, liveroom.RoleSpeaker,
		liveroom.RoleListener, liveroom.RoleSpeaker,
	}

	for seed := int64(1); seed <= 5; seed++ {
		alice := s.join("alice")
		base := s.room()

		snaps := make([]*liveroom.Room, len(roles))
		for i, r := range roles {
			snap := base.Clone()
			snap.Participants["alice"].Role = r
			snap.Version = base.Version + int64(i+1)
			snaps[i] = snap
		}
		want := roles[len(roles)-1].CanPublish()

		rng := rand.New(rand.NewSource(seed))
		rng.Shuffle(len(snaps), func(i, j int) { snaps[i], snaps[j] = snaps[j], snaps[i] })
		for _, snap := range snaps {
			alice.coord.onRoom(snap)
		}
		s.drain(alice)

		s.Eventually(func() bool { return alice.mgr.IsPublishing() == want }, waitFor, tick, "seed %d", seed)
		s.Require().NoError(alice.coord.Leave(s.ctx))
	}
}

func (s *CoordinatorTestSuite) TestLeaveReleasesEverything() {
	host := s.join("host", liveroom.TrackKindAudio, liveroom.TrackKindVideo)
	alice := s.join("alice")
	s.promote(host, alice)
	s.Eventually(func() bool { return s.transport.LiveTracks() == 3 }, waitFor, tick)

	s.Require().NoError(alice.coord.Leave(s.ctx))
	s.Require().NoError(host.coord.Leave(s.ctx))

	s.Zero(s.transport.LiveTracks())
	s.Zero(s.transport.DoubleReleases())
	s.True(s.transport.Session("alice").Left())
	s.True(s.transport.Session("host").Left())
	s.Nil(alice.coord.Err())

	room := s.room()
	_, ok := room.Participant("alice")
	s.False(ok, "listener membership removed")
	_, ok = room.Participant("host")
	s.True(ok, "host membership kept")

	s.Require().NoError(alice.coord.Leave(s.ctx))
	err := alice.coord.RaiseHand(s.ctx)
	s.True(errors.Is(err, liveroom.ErrClosed), "%v", err)
}

func (s *CoordinatorTestSuite) TestCameraToggledDuringReconnect() {
	host := s.join("host", liveroom.TrackKindAudio, liveroom.TrackKindVideo)
	s.Eventually(func() bool {
		sess := s.transport.Session("host")
		return sess.Published(liveroom.TrackKindAudio) && sess.Published(liveroom.TrackKindVideo)
	}, waitFor, tick)
	first := s.transport.Session("host")

	release := s.transport.BlockJoins()
	defer release()
	first.Listener().OnDisconnected(errors.New(liveroom.ErrTransport, "ice failed"))
	s.Eventually(func() bool { return s.joins("host") == 2 }, waitFor, tick)

	var wg sync.WaitGroup
	var off bool
	var toggleErr error
	wg.Add(1)
	go func() {
		defer wg.Done()
		off, toggleErr = host.coord.ToggleCamera(s.ctx)
	}()
	s.waitView(host, func(vm *liveroom.ViewModel) bool { return vm.Local.IsCameraOff })

	release()
	wg.Wait()
	s.Require().NoError(toggleErr)
	s.True(off)

	second := s.transport.Session("host")
	s.NotSame(first, second)
	s.Eventually(func() bool {
		return second.Published(liveroom.TrackKindAudio) && !second.Published(liveroom.TrackKindVideo)
	}, waitFor, tick)
	s.EqualValues(1, s.transport.LiveTracks())
	s.waitView(host, func(vm *liveroom.ViewModel) bool { return vm.Local.IsCameraOff && vm.Local.IsPublishing })
}

func (s *CoordinatorTestSuite) TestToggleMute() {
	host := s.join("host")
	s.Eventually(host.mgr.IsPublishing, waitFor, tick)

	muted, err := host.coord.ToggleMute(s.ctx)
	s.Require().NoError(err)
	s.True(muted)
	s.True(s.transport.Session("host").Muted(liveroom.TrackKindAudio))

	muted, err = host.coord.ToggleMute(s.ctx)
	s.Require().NoError(err)
	s.False(muted)
	s.False(s.transport.Session("host").Muted(liveroom.TrackKindAudio))
}

func (s *CoordinatorTestSuite) TestToggleCameraWithoutCamera() {
	host := s.join("host")
	_, err := host.coord.ToggleCamera(s.ctx)
	s.True(errors.Is(err, liveroom.ErrUnsupportedKind), "%v", err)
}

func (s *CoordinatorTestSuite) TestEndRoomTearsDownEveryClient() {
	host := s.join("host")
	alice := s.join("alice")
	bob := s.join("bob")
	s.promote(host, bob)

	s.Require().NoError(host.coord.EndRoom(s.ctx))
	// queued behind the Ended snapshot
	err := alice.coord.RaiseHand(s.ctx)
	s.True(errors.Is(err, liveroom.ErrRoomEnded), "%v", err)

	for _, c := range []*client{host, alice, bob} {
		s.waitDone(c)
		s.True(errors.Is(c.coord.Err(), liveroom.ErrStaleRoom), "%v", c.coord.Err())
		s.True(c.coord.View().Closed)
		s.Equal(noticeEnded, c.coord.View().Notice)
	}
	s.Zero(s.transport.LiveTracks())

	room := s.room()
	s.True(room.IsEnded())
	s.Empty(room.RaisedHands)
	s.Len(room.Participants, 1)
}

func (s *CoordinatorTestSuite) TestRemovedByHost() {
	host := s.join("host")
	alice := s.join("alice")
	s.waitView(host, func(vm *liveroom.ViewModel) bool { return len(vm.Participants) == 2 })

	s.Require().NoError(host.coord.Remove(s.ctx, "alice"))
	s.waitDone(alice)
	s.True(errors.Is(alice.coord.Err(), liveroom.ErrStaleRoom))
	s.Equal(noticeRemoved, alice.coord.View().Notice)
	s.True(s.transport.Session("alice").Left())

	s.waitView(host, func(vm *liveroom.ViewModel) bool { return len(vm.Participants) == 1 })
}

func (s *CoordinatorTestSuite) TestSecondVisitSupersedesFirst() {
	s.join("host")
	first := s.join("alice")
	firstSession := s.transport.Session("alice")
	second := s.join("alice")

	s.waitDone(first)
	s.True(errors.Is(first.coord.Err(), liveroom.ErrStaleRoom))
	s.Equal(noticeSuperseded, first.coord.View().Notice)
	s.True(firstSession.Left())

	rec, ok := s.room().Participant("alice")
	s.Require().True(ok, "membership belongs to the new visit")
	s.Equal(second.mgr.VisitID(), rec.VisitID)
	s.False(s.transport.Session("alice").Left())
}

func (s *CoordinatorTestSuite) TestConfigurationErrorAbortsEntry() {
	s.transport.FailJoins(errors.New(liveroom.ErrConfiguration, "credential rejected"))
	alice := s.newClient("alice")

	err := alice.coord.Start(s.ctx)
	s.True(errors.Is(err, liveroom.ErrConfiguration), "%v", err)
	s.Equal(1, s.joins("alice"))
	s.waitDone(alice)

	_, ok := s.room().Participant("alice")
	s.False(ok)
}

func (s *CoordinatorTestSuite) TestMissingRoomAbortsEntry() {
	mgr, err := session.New(s.store, s.transport, session.Visit{
		RoomID: "nope", ParticipantID: "alice", Credential: "token",
	}, s.retry, log.NewNop())
	s.Require().NoError(err)
	c := New("nope", "alice", s.store, mgr, s.retry, &Config{}, log.NewNop())

	err = c.Start(s.ctx)
	s.True(errors.Is(err, liveroom.ErrRoomNotFound), "%v", err)
	<-c.Done()
	s.Zero(s.joins("alice"))
}

func (s *CoordinatorTestSuite) TestPermissionDeniedOnEntry() {
	s.transport.Deny(liveroom.TrackKindAudio)
	host := s.newClient("host")

	err := host.coord.Start(s.ctx)
	s.True(errors.Is(err, liveroom.ErrPermissionDenied), "%v", err)
	s.waitDone(host)
	s.Equal(noticePermission, host.coord.View().Notice)
}

func (s *CoordinatorTestSuite) TestPermissionDeniedOnPromotion() {
	host := s.join("host")
	s.Eventually(host.mgr.IsPublishing, waitFor, tick)
	s.transport.Deny(liveroom.TrackKindAudio)

	alice := s.join("alice")
	s.Require().NoError(alice.coord.RaiseHand(s.ctx))
	s.waitView(host, func(vm *liveroom.ViewModel) bool { return len(vm.RaisedHands) == 1 })
	s.Require().NoError(host.coord.InviteToSpeak(s.ctx, "alice"))

	s.waitDone(alice)
	s.True(errors.Is(alice.coord.Err(), liveroom.ErrPermissionDenied), "%v", alice.coord.Err())
	_, ok := s.room().Participant("alice")
	s.False(ok)
	s.EqualValues(1, s.transport.LiveTracks())
}

func (s *CoordinatorTestSuite) TestFailedPublishReissuedOnNextSnapshot() {
	host := s.join("host")
	s.Eventually(host.mgr.IsPublishing, waitFor, tick)
	alice := s.join("alice")

	// one retry means two attempts, both fail
	transient := errors.New(liveroom.ErrTransport, "publish timed out")
	s.transport.FailPublishes(transient, transient)

	s.Require().NoError(alice.coord.RaiseHand(s.ctx))
	s.waitView(host, func(vm *liveroom.ViewModel) bool { return len(vm.RaisedHands) == 1 })
	s.Require().NoError(host.coord.InviteToSpeak(s.ctx, "alice"))

	s.waitView(alice, func(vm *liveroom.ViewModel) bool {
		return vm.MyRole == liveroom.RoleSpeaker && vm.Notice == noticeMediaFailed
	})
	s.Zero(s.transport.PendingPublishFailures())
	s.False(alice.mgr.IsPublishing())

	// any later snapshot makes alice converge again
	s.join("bob")
	s.Eventually(alice.mgr.IsPublishing, waitFor, tick)
	s.True(s.transport.Session("alice").Published(liveroom.TrackKindAudio))
}

func (s *CoordinatorTestSuite) TestActiveSpeaker() {
	s.join("host")
	alice := s.join("alice")
	listener := s.transport.Session("alice").Listener()

	listener.OnVolumeLevels([]liveroom.VolumeLevel{
		{ParticipantID: "alice", Level: 0.05},
		{ParticipantID: "host", Level: 0.6},
		{ParticipantID: "ghost", Level: 0.9},
	})
	s.waitView(alice, func(vm *liveroom.ViewModel) bool { return vm.ActiveSpeakerID == "host" })

	listener.OnVolumeLevels([]liveroom.VolumeLevel{{ParticipantID: "host", Level: 0.02}})
	s.waitView(alice, func(vm *liveroom.ViewModel) bool { return vm.ActiveSpeakerID == "" })
}

func (s *CoordinatorTestSuite) TestDisconnectClearsTransportSnapshot() {
	s.join("host")
	alice := s.join("alice")
	listener := s.transport.Session("alice").Listener()

	host := liveroom.RemoteUser{ParticipantID: "host", TransportID: 1}
	listener.OnRemoteJoined(host)
	listener.OnTrackPublished(host, liveroom.TrackKindAudio)
	hostView := func(vm *liveroom.ViewModel) liveroom.RemoteParticipantView {
		for _, p := range vm.Participants {
			if p.ID == "host" {
				return p
			}
		}
		return liveroom.RemoteParticipantView{}
	}
	s.waitView(alice, func(vm *liveroom.ViewModel) bool {
		h := hostView(vm)
		return h.Connected && h.HasAudio
	})

	release := s.transport.BlockJoins()
	listener.OnDisconnected(errors.New(liveroom.ErrTransport, "hangup"))
	s.waitView(alice, func(vm *liveroom.ViewModel) bool {
		return !hostView(vm).Connected && !hostView(vm).HasAudio
	})
	release()

	s.Eventually(func() bool { return s.joins("alice") == 2 }, waitFor, tick)
	s.waitView(alice, func(vm *liveroom.ViewModel) bool {
		for _, p := range vm.Participants {
			if p.ID == "alice" {
				return p.Connected
			}
		}
		return false
	})
}

func (s *CoordinatorTestSuite) TestExplicitReconnect() {
	host := s.join("host")
	s.Eventually(host.mgr.IsPublishing, waitFor, tick)

	s.Require().NoError(host.coord.Reconnect(s.ctx))
	s.Equal(2, s.joins("host"))
	s.True(s.transport.Sessions()[0].Left())
	s.True(s.transport.Session("host").Published(liveroom.TrackKindAudio))
	s.EqualValues(1, s.transport.LiveTracks())
}

func (s *CoordinatorTestSuite) TestWatchStreamsUntilDone() {
	host := s.join("host")
	alice := s.join("alice")
	s.waitView(host, func(vm *liveroom.ViewModel) bool { return len(vm.Participants) == 2 })
	ch, stop := alice.coord.Watch()
	defer stop()

	s.Require().NoError(alice.coord.RaiseHand(s.ctx))
	s.Require().NoError(host.coord.Remove(s.ctx, "alice"))

	var last *liveroom.ViewModel
	for vm := range ch {
		last = vm
	}
	s.Require().NotNil(last)
	s.True(last.Closed)
}
