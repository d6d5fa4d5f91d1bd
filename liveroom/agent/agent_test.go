package agent

import (
	"context"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/suite"

	"github.com/imtaco/liveroom/internal/errors"
	"github.com/imtaco/liveroom/internal/log"
	"github.com/imtaco/liveroom/liveroom"
	"github.com/imtaco/liveroom/liveroom/coordinator"
	"github.com/imtaco/liveroom/liveroom/media/fakes"
	"github.com/imtaco/liveroom/liveroom/session"
	"github.com/imtaco/liveroom/liveroom/store"
)

type AgentTestSuite struct {
	suite.Suite
	ctx       context.Context
	store     *store.Memory
	transport *fakes.Transport
	agent     *Agent
}

func TestAgentSuite(t *testing.T) {
	suite.Run(t, new(AgentTestSuite))
}

func (s *AgentTestSuite) SetupTest() {
	s.ctx = context.Background()
	s.store = store.NewMemory(clockwork.NewRealClock(), log.NewNop())
	s.transport = fakes.NewTransport()
	r := session.NewRetry(&session.Config{
		RetryAttempts:   1,
		RetryInitial:    time.Millisecond,
		RetryMax:        2 * time.Millisecond,
		RetryMaxElapsed: 100 * time.Millisecond,
	}, log.NewNop())
	s.agent = New(s.store, s.transport, r, &coordinator.Config{}, log.NewNop())

	for _, id := range []string{"r1", "r2"} {
		_, err := s.store.CreateRoom(s.ctx, id, "topic", &liveroom.ParticipantRecord{ID: "host-" + id})
		s.Require().NoError(err)
	}
}

func (s *AgentTestSuite) TearDownTest() {
	s.NoError(s.agent.Close(s.ctx))
	s.Zero(s.transport.LiveTracks())
	s.Zero(s.transport.DoubleReleases())
}

func (s *AgentTestSuite) visit(roomID, id string) session.Visit {
	return session.Visit{RoomID: roomID, ParticipantID: id, Credential: "token-" + id}
}

func (s *AgentTestSuite) TestEnterAndLeave() {
	s.Nil(s.agent.Current())

	coord, err := s.agent.Enter(s.ctx, s.visit("r1", "alice"))
	s.Require().NoError(err)
	s.Same(coord, s.agent.Current())

	room, _ := s.store.Get(s.ctx, "r1")
	_, ok := room.Participant("alice")
	s.True(ok)

	s.Require().NoError(s.agent.Leave(s.ctx))
	s.Nil(s.agent.Current())
	<-coord.Done()

	room, _ = s.store.Get(s.ctx, "r1")
	_, ok = room.Participant("alice")
	s.False(ok, "listener membership is removed on leave")
}

func (s *AgentTestSuite) TestLeaveWithoutVisit() {
	err := s.agent.Leave(s.ctx)
	s.True(errors.Is(err, liveroom.ErrClosed))
}

func (s *AgentTestSuite) TestSwitchingRoomsEndsPreviousVisit() {
	first, err := s.agent.Enter(s.ctx, s.visit("r1", "host-r1"))
	s.Require().NoError(err)

	second, err := s.agent.Enter(s.ctx, s.visit("r2", "host-r1"))
	s.Require().NoError(err)
	s.Same(second, s.agent.Current())

	select {
	case <-first.Done():
	default:
		s.Fail("previous visit must be torn down before the next starts")
	}
	sessions := s.transport.Sessions()
	s.Require().Len(sessions, 2)
	s.True(sessions[0].Left())
	s.False(sessions[1].Left())

	room, _ := s.store.Get(s.ctx, "r1")
	_, ok := room.Participant("host-r1")
	s.True(ok, "host keeps membership")
}

func (s *AgentTestSuite) TestEnterWaitsForAbandonedTeardown() {
	first, err := s.agent.Enter(s.ctx, s.visit("r1", "host-r1"))
	s.Require().NoError(err)
	s.Eventually(func() bool { return s.transport.LiveTracks() == 1 }, time.Second, time.Millisecond)

	release := s.transport.BlockLeaves()
	defer release()

	gone, cancel := context.WithCancel(s.ctx)
	cancel()
	s.True(errors.Is(s.agent.Leave(gone), context.Canceled))

	entered := make(chan error, 1)
	go func() {
		_, err := s.agent.Enter(s.ctx, s.visit("r2", "host-r2"))
		entered <- err
	}()

	s.Never(func() bool { return len(s.transport.Sessions()) > 1 }, 50*time.Millisecond, time.Millisecond,
		"next visit must not join while the previous one is still leaving")
	release()

	select {
	case err := <-entered:
		s.Require().NoError(err)
	case <-time.After(time.Second):
		s.Fail("enter did not resume after teardown")
	}
	<-first.Done()

	leftAt, joinedAt := -1, -1
	for i, c := range s.transport.Calls() {
		switch c {
		case "leave host-r1":
			leftAt = i
		case "join host-r2":
			joinedAt = i
		}
	}
	s.Require().NotEqual(-1, leftAt)
	s.Less(leftAt, joinedAt)
}

func (s *AgentTestSuite) TestFailedEnterLeavesNoVisit() {
	_, err := s.agent.Enter(s.ctx, s.visit("r1", "alice"))
	s.Require().NoError(err)

	_, err = s.agent.Enter(s.ctx, s.visit("missing", "alice"))
	s.True(errors.Is(err, liveroom.ErrRoomNotFound), "got %v", err)
	s.Nil(s.agent.Current())
}

func (s *AgentTestSuite) TestInvalidVisitRejected() {
	_, err := s.agent.Enter(s.ctx, session.Visit{RoomID: "r1", ParticipantID: "alice"})
	s.True(errors.Is(err, liveroom.ErrConfiguration))
	s.Nil(s.agent.Current())
}
