package store

import (
	"context"
	stdsync "sync"
	"sync/atomic"

	"github.com/jonboulle/clockwork"

	"github.com/imtaco/liveroom/internal/log"
	"github.com/imtaco/liveroom/internal/sync"
	"github.com/imtaco/liveroom/liveroom"
	"github.com/imtaco/liveroom/liveroom/role"
)

// Memory is an in-process Store. Snapshots are delivered to subscribers in
// commit order.
type Memory struct {
	rooms    *sync.Map[string, *liveroom.Room]
	subs     *sync.Map[int64, *memorySub]
	nextSub  atomic.Int64
	notifyMu stdsync.Mutex
	clock    clockwork.Clock
	logger   *log.Logger
}

type memorySub struct {
	roomID   string
	onChange func(*liveroom.Room)
}

func NewMemory(clock clockwork.Clock, logger *log.Logger) *Memory {
	if logger == nil {
		panic("logger is required")
	}
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Memory{
		rooms:  sync.NewMap[string, *liveroom.Room](),
		subs:   sync.NewMap[int64, *memorySub](),
		clock:  clock,
		logger: logger,
	}
}

func (m *Memory) Get(_ context.Context, roomID string) (*liveroom.Room, error) {
	room, ok := m.rooms.Load(roomID)
	if !ok {
		return nil, nil
	}
	return room.Clone(), nil
}

func (m *Memory) Subscribe(ctx context.Context, roomID string, onChange func(*liveroom.Room)) (liveroom.Unsubscribe, error) {
	m.notifyMu.Lock()
	id := m.nextSub.Add(1)
	m.subs.Store(id, &memorySub{roomID: roomID, onChange: onChange})
	room, _ := m.rooms.Load(roomID)
	onChange(room.Clone())
	m.notifyMu.Unlock()

	var once stdsync.Once
	unsub := func() {
		once.Do(func() { m.subs.Delete(id) })
	}
	context.AfterFunc(ctx, unsub)
	return unsub, nil
}

func (m *Memory) CreateRoom(_ context.Context, roomID, topic string, host *liveroom.ParticipantRecord) (*liveroom.Room, error) {
	return m.mutate(roomID, "createRoom", createRoom(roomID, topic, host, m.clock.Now()))
}

func (m *Memory) AddParticipant(_ context.Context, roomID string, p *liveroom.ParticipantRecord) (*liveroom.ParticipantRecord, error) {
	rec := &liveroom.ParticipantRecord{}
	if _, err := m.mutate(roomID, "addParticipant", addParticipant(p, m.clock.Now(), rec)); err != nil {
		return nil, err
	}
	return rec, nil
}

func (m *Memory) RemoveParticipant(_ context.Context, roomID, actorID, participantID string) error {
	_, err := m.mutate(roomID, "removeParticipant", transition(actorID, participantID, role.EventRemove))
	return err
}

func (m *Memory) SetRole(_ context.Context, roomID, actorID, participantID string, r liveroom.Role) error {
	_, err := m.mutate(roomID, "setRole", setRole(actorID, participantID, r))
	return err
}

func (m *Memory) AddRaisedHand(_ context.Context, roomID, participantID string) error {
	_, err := m.mutate(roomID, "addRaisedHand", transition(participantID, participantID, role.EventRaiseHand))
	return err
}

func (m *Memory) ClearRaisedHand(_ context.Context, roomID, actorID, participantID string) error {
	_, err := m.mutate(roomID, "clearRaisedHand", transition(actorID, participantID, role.EventLowerHand))
	return err
}

func (m *Memory) EndRoom(_ context.Context, roomID, actorID string) error {
	_, err := m.mutate(roomID, "endRoom", transition(actorID, "", role.EventEndRoom))
	return err
}

func (m *Memory) mutate(roomID, op string, fn mutation) (*liveroom.Room, error) {
	m.notifyMu.Lock()
	defer m.notifyMu.Unlock()

	var (
		snapshot *liveroom.Room
		changed  bool
		err      error
	)
	m.rooms.WithLock(func(view sync.View[string, *liveroom.Room]) {
		current, _ := view.Get(roomID)
		var next *liveroom.Room
		next, changed, err = fn(current.Clone())
		if err != nil {
			return
		}
		if changed {
			next.Version = nextVersion(current)
			view.Set(roomID, next)
		}
		snapshot = next.Clone()
	})
	recordMutation(op, err)
	if err != nil {
		m.logger.Debug("mutation rejected", log.RoomID(roomID), log.String("op", op), log.Error(err))
		return nil, err
	}
	if changed {
		m.notify(roomID, snapshot)
	}
	return snapshot, nil
}

func (m *Memory) notify(roomID string, room *liveroom.Room) {
	targets := m.subs.Collect(func(_ int64, sub *memorySub) bool {
		return sub.roomID == roomID
	})
	for _, sub := range targets {
		sub.onChange(room.Clone())
	}
	changesDelivered.Add(context.Background(), int64(len(targets)))
}

func nextVersion(current *liveroom.Room) int64 {
	if current == nil {
		return 1
	}
	return current.Version + 1
}
