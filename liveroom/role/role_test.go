package role

import (
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"github.com/imtaco/liveroom/internal/errors"
	"github.com/imtaco/liveroom/liveroom"
)

type RoleMachineTestSuite struct {
	suite.Suite
	room *liveroom.Room
}

func TestRoleMachineSuite(t *testing.T) {
	suite.Run(t, new(RoleMachineTestSuite))
}

func (s *RoleMachineTestSuite) SetupTest() {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	s.room = &liveroom.Room{
		ID:     "room1",
		HostID: "host",
		Status: liveroom.RoomStatusLive,
		Participants: map[string]*liveroom.ParticipantRecord{
			"host":    {ID: "host", Role: liveroom.RoleHost, JoinedAt: now},
			"speaker": {ID: "speaker", Role: liveroom.RoleSpeaker, JoinedAt: now},
			"alice":   {ID: "alice", Role: liveroom.RoleListener, JoinedAt: now},
			"bob":     {ID: "bob", Role: liveroom.RoleListener, JoinedAt: now},
		},
		RaisedHands: map[string]struct{}{"bob": {}},
	}
}

func (s *RoleMachineTestSuite) TestNext() {
	listener := State{Role: liveroom.RoleListener}
	raised := State{Role: liveroom.RoleListener, HandRaised: true}
	speaker := State{Role: liveroom.RoleSpeaker}
	host := State{Role: liveroom.RoleHost}

	tests := []struct {
		name          string
		current       State
		ev            Event
		actorIsHost   bool
		actorIsTarget bool
		want          State
		changed       bool
		wantErr       error
	}{
		{"listener raises hand", listener, EventRaiseHand, false, true, raised, true, nil},
		{"raise hand twice is a no-op", raised, EventRaiseHand, false, true, raised, false, nil},
		{"raise hand for someone else", listener, EventRaiseHand, false, false, listener, false, liveroom.ErrAuthorization},
		{"speaker cannot raise hand", speaker, EventRaiseHand, false, true, speaker, false, liveroom.ErrInvalidTransition},
		{"host invites raised hand", raised, EventInvite, true, false, speaker, true, nil},
		{"non-host invites", raised, EventInvite, false, false, raised, false, liveroom.ErrAuthorization},
		{"invite without raised hand", listener, EventInvite, true, false, listener, false, liveroom.ErrInvalidTransition},
		{"invite speaker again", speaker, EventInvite, true, false, speaker, false, nil},
		{"host demotes speaker", speaker, EventDemote, true, false, listener, true, nil},
		{"non-host demotes", speaker, EventDemote, false, false, speaker, false, liveroom.ErrAuthorization},
		{"demote host", host, EventDemote, true, true, host, false, liveroom.ErrAuthorization},
		{"invite host", host, EventInvite, true, true, host, false, liveroom.ErrInvalidTransition},
		{"owner lowers hand", raised, EventLowerHand, false, true, listener, true, nil},
		{"host dismisses hand", raised, EventLowerHand, true, false, listener, true, nil},
		{"other lowers hand", raised, EventLowerHand, false, false, raised, false, liveroom.ErrAuthorization},
		{"self removal", speaker, EventRemove, false, true, speaker, true, nil},
		{"host removes listener", listener, EventRemove, true, false, listener, true, nil},
		{"listener removes other", listener, EventRemove, false, false, listener, false, liveroom.ErrAuthorization},
		{"host cannot leave membership", host, EventRemove, true, true, host, false, liveroom.ErrInvalidTransition},
		{"non-host ends room", speaker, EventEndRoom, false, true, speaker, false, liveroom.ErrAuthorization},
	}

	for _, tt := range tests {
		s.Run(tt.name, func() {
			out, err := Next(tt.current, tt.ev, tt.actorIsHost, tt.actorIsTarget)
			if tt.wantErr != nil {
				s.Require().Error(err)
				s.True(errors.Is(err, tt.wantErr), "got %v", err)
				s.Equal(tt.current, out.State)
				s.False(out.Changed)
				return
			}
			s.Require().NoError(err)
			s.Equal(tt.want, out.State)
			s.Equal(tt.changed, out.Changed)
		})
	}
}

func (s *RoleMachineTestSuite) TestHostEndsRoom() {
	out, err := Next(State{Role: liveroom.RoleHost}, EventEndRoom, true, true)
	s.Require().NoError(err)
	s.True(out.EndsRoom)
}

func (s *RoleMachineTestSuite) TestEventForRole() {
	ev, err := EventForRole(liveroom.RoleSpeaker)
	s.Require().NoError(err)
	s.Equal(EventInvite, ev)

	ev, err = EventForRole(liveroom.RoleListener)
	s.Require().NoError(err)
	s.Equal(EventDemote, ev)

	_, err = EventForRole(liveroom.RoleHost)
	s.True(errors.Is(err, liveroom.ErrInvalidTransition))
}

func (s *RoleMachineTestSuite) TestApplyInviteClearsRaisedHandAtomically() {
	out, err := Apply(s.room, "host", "bob", EventInvite)
	s.Require().NoError(err)
	s.True(out.Changed)

	s.Equal(liveroom.RoleSpeaker, s.room.Participants["bob"].Role)
	s.False(s.room.HasRaisedHand("bob"))
	s.assertRaisedHandsAreListeners()
}

func (s *RoleMachineTestSuite) TestApplyUnauthorizedLeavesRoomUnchanged() {
	before := s.room.Clone()

	_, err := Apply(s.room, "alice", "bob", EventInvite)
	s.True(errors.Is(err, liveroom.ErrAuthorization))
	_, err = Apply(s.room, "speaker", "", EventEndRoom)
	s.True(errors.Is(err, liveroom.ErrAuthorization))
	_, err = Apply(s.room, "alice", "host", EventDemote)
	s.True(errors.Is(err, liveroom.ErrAuthorization))

	s.Equal(before, s.room)
}

func (s *RoleMachineTestSuite) TestApplyRaiseAndDemote() {
	_, err := Apply(s.room, "alice", "alice", EventRaiseHand)
	s.Require().NoError(err)
	s.Equal([]string{"alice", "bob"}, s.room.RaisedHandIDs())

	_, err = Apply(s.room, "host", "alice", EventInvite)
	s.Require().NoError(err)
	_, err = Apply(s.room, "host", "alice", EventDemote)
	s.Require().NoError(err)

	s.Equal(liveroom.RoleListener, s.room.Participants["alice"].Role)
	s.False(s.room.HasRaisedHand("alice"))
	s.assertRaisedHandsAreListeners()
}

func (s *RoleMachineTestSuite) TestApplyEndRoom() {
	_, err := Apply(s.room, "host", "", EventEndRoom)
	s.Require().NoError(err)

	s.True(s.room.IsEnded())
	s.Empty(s.room.RaisedHands)
	s.Len(s.room.Participants, 1)
	s.Contains(s.room.Participants, "host")

	s.Run("no mutation after end", func() {
		_, err := Apply(s.room, "host", "host", EventRaiseHand)
		s.True(errors.Is(err, liveroom.ErrRoomEnded))
		_, err = Apply(s.room, "host", "", EventEndRoom)
		s.True(errors.Is(err, liveroom.ErrRoomEnded))
	})
}

func (s *RoleMachineTestSuite) TestCheckErrors() {
	_, err := Check(nil, "host", "alice", EventInvite)
	s.True(errors.Is(err, liveroom.ErrRoomNotFound))

	_, err = Check(s.room, "host", "ghost", EventInvite)
	s.True(errors.Is(err, liveroom.ErrNotMember))
}

func (s *RoleMachineTestSuite) assertRaisedHandsAreListeners() {
	for id := range s.room.RaisedHands {
		role, ok := s.room.RoleOf(id)
		s.True(ok, "raised hand %s is not a participant", id)
		s.Equal(liveroom.RoleListener, role, "raised hand %s is not a listener", id)
	}
}
