package session

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"github.com/imtaco/liveroom/internal/errors"
	"github.com/imtaco/liveroom/internal/log"
	"github.com/imtaco/liveroom/liveroom"
	"github.com/imtaco/liveroom/liveroom/media/fakes"
	"github.com/imtaco/liveroom/liveroom/mocks"
)

func testRetry() *Config {
	return &Config{
		RetryAttempts:   2,
		RetryInitial:    time.Millisecond,
		RetryMax:        2 * time.Millisecond,
		RetryMaxElapsed: time.Second,
	}
}

func TestAdmitRetriesUnavailableStore(t *testing.T) {
	ctrl := gomock.NewController(t)
	store := mocks.NewMockRoomDocumentStore(ctrl)
	transport := mocks.NewMockMediaTransport(ctrl)

	m, err := New(store, transport, Visit{RoomID: "r1", ParticipantID: "alice", Credential: "t"},
		NewRetry(testRetry(), log.NewNop()), log.NewNop())
	require.NoError(t, err)

	gomock.InOrder(
		store.EXPECT().AddParticipant(gomock.Any(), "r1", gomock.Any()).
			Return(nil, errors.New(liveroom.ErrStoreUnavailable, "connection reset")),
		store.EXPECT().AddParticipant(gomock.Any(), "r1", gomock.Any()).
			DoAndReturn(func(_ context.Context, _ string, p *liveroom.ParticipantRecord) (*liveroom.ParticipantRecord, error) {
				assert.Equal(t, m.VisitID(), p.VisitID)
				return &liveroom.ParticipantRecord{ID: p.ID, Role: liveroom.RoleListener, VisitID: p.VisitID}, nil
			}),
	)

	rec, err := m.Admit(context.Background())
	require.NoError(t, err)
	assert.Equal(t, liveroom.RoleListener, rec.Role)
}

func TestAdmitDoesNotRetryEndedRoom(t *testing.T) {
	ctrl := gomock.NewController(t)
	store := mocks.NewMockRoomDocumentStore(ctrl)

	m, err := New(store, mocks.NewMockMediaTransport(ctrl), Visit{RoomID: "r1", ParticipantID: "alice", Credential: "t"},
		NewRetry(testRetry(), log.NewNop()), log.NewNop())
	require.NoError(t, err)

	store.EXPECT().AddParticipant(gomock.Any(), "r1", gomock.Any()).
		Return(nil, errors.New(liveroom.ErrRoomEnded, "room r1 has ended")).
		Times(1)

	_, err = m.Admit(context.Background())
	assert.True(t, errors.Is(err, liveroom.ErrRoomEnded))
}

func TestUnexpectedTrackCountIsReleased(t *testing.T) {
	ctrl := gomock.NewController(t)
	store := mocks.NewMockRoomDocumentStore(ctrl)
	transport := mocks.NewMockMediaTransport(ctrl)
	sess := mocks.NewMockTransportSession(ctrl)

	// tracks from the fake transport count their own releases
	backing := fakes.NewTransport()
	extra, err := backing.Join(context.Background(), liveroom.JoinRequest{Credential: "t", Identity: "x"})
	require.NoError(t, err)
	tracks, err := extra.CreateLocalTracks(context.Background(), liveroom.TrackKindAudio, liveroom.TrackKindAudio)
	require.NoError(t, err)

	m, err := New(store, transport, Visit{RoomID: "r1", ParticipantID: "alice", Credential: "t"},
		NewRetry(testRetry(), log.NewNop()), log.NewNop())
	require.NoError(t, err)

	transport.EXPECT().Join(gomock.Any(), gomock.Any()).Return(sess, nil)
	sess.EXPECT().CreateLocalTracks(gomock.Any(), liveroom.TrackKindAudio).Return(tracks, nil)
	sess.EXPECT().Leave(gomock.Any()).Return(nil)

	m.RequestPublishing(true)
	err = m.Connect(context.Background(), nil)
	assert.True(t, errors.Is(err, liveroom.ErrTransport), "%v", err)
	assert.Zero(t, backing.LiveTracks())

	require.NoError(t, m.Close(context.Background(), false))
}
