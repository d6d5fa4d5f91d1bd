package store

import (
	"context"
	"encoding/json"
	stdsync "sync"
	"time"

	"github.com/jonboulle/clockwork"
	clientv3 "go.etcd.io/etcd/client/v3"

	"github.com/imtaco/liveroom/internal/errors"
	"github.com/imtaco/liveroom/internal/etcd"
	"github.com/imtaco/liveroom/internal/log"
	"github.com/imtaco/liveroom/liveroom"
	"github.com/imtaco/liveroom/liveroom/role"
)

const (
	etcdKeyDoc          = "doc"
	defaultWatchBackoff = time.Second
)

// Etcd stores each room under {prefix}{roomID}/doc. The key's ModRevision is
// the room version and guards every write.
type Etcd struct {
	client       etcd.Client
	prefix       string
	casAttempts  int
	watchBackoff time.Duration
	clock        clockwork.Clock
	logger       *log.Logger
}

func NewEtcd(client etcd.Client, prefix string, casAttempts int, clock clockwork.Clock, logger *log.Logger) *Etcd {
	if logger == nil {
		panic("logger is required")
	}
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	if casAttempts <= 0 {
		casAttempts = defaultCASAttempts
	}
	return &Etcd{
		client:       client,
		prefix:       prefix,
		casAttempts:  casAttempts,
		watchBackoff: defaultWatchBackoff,
		clock:        clock,
		logger:       logger,
	}
}

func (e *Etcd) roomKey(roomID string) string {
	return e.prefix + roomID + "/" + etcdKeyDoc
}

// read returns the room (nil if absent), its ModRevision and the store revision.
func (e *Etcd) read(ctx context.Context, roomID string) (*liveroom.Room, int64, int64, error) {
	resp, err := e.client.Get(ctx, e.roomKey(roomID))
	if err != nil {
		return nil, 0, 0, errors.Wrapf(liveroom.ErrStoreUnavailable, err, "get room %s", roomID)
	}
	var rev int64
	if resp.Header != nil {
		rev = resp.Header.Revision
	}
	if len(resp.Kvs) == 0 {
		return nil, 0, rev, nil
	}
	kv := resp.Kvs[0]
	room, err := decodeRoom(kv.Value)
	if err != nil {
		return nil, 0, rev, err
	}
	room.Version = kv.ModRevision
	return room, kv.ModRevision, rev, nil
}

func (e *Etcd) Get(ctx context.Context, roomID string) (*liveroom.Room, error) {
	room, _, _, err := e.read(ctx, roomID)
	return room, err
}

// Subscribe delivers the current document, then watches from the next
// revision. A broken watch is re-established from a fresh read.
func (e *Etcd) Subscribe(ctx context.Context, roomID string, onChange func(*liveroom.Room)) (liveroom.Unsubscribe, error) {
	room, _, rev, err := e.read(ctx, roomID)
	if err != nil {
		return nil, err
	}
	onChange(room)

	subCtx, cancel := context.WithCancel(ctx)
	go e.watchLoop(subCtx, roomID, rev, onChange)

	var once stdsync.Once
	return func() { once.Do(cancel) }, nil
}

func (e *Etcd) watchLoop(ctx context.Context, roomID string, rev int64, onChange func(*liveroom.Room)) {
	key := e.roomKey(roomID)
	for {
		rev = e.watch(ctx, key, rev, onChange)
		if ctx.Err() != nil {
			return
		}
		watchRestarts.Add(ctx, 1)

		select {
		case <-ctx.Done():
			return
		case <-e.clock.After(e.watchBackoff):
		}

		room, _, headRev, err := e.read(ctx, roomID)
		if err != nil {
			e.logger.Warn("Fail to re-read room after watch failure",
				log.RoomID(roomID),
				log.Error(err))
			continue
		}
		onChange(room)
		rev = headRev
	}
}

// watch consumes one watch stream and returns the last revision seen.
func (e *Etcd) watch(ctx context.Context, key string, rev int64, onChange func(*liveroom.Room)) int64 {
	wch := e.client.Watch(ctx, key, clientv3.WithRev(rev+1))
	for wresp := range wch {
		if err := wresp.Err(); err != nil {
			e.logger.Warn("Room watch failed", log.String("key", key), log.Error(err))
			return rev
		}
		for _, ev := range wresp.Events {
			if ctx.Err() != nil {
				return rev
			}
			rev = ev.Kv.ModRevision
			switch ev.Type {
			case clientv3.EventTypeDelete:
				onChange(nil)
			case clientv3.EventTypePut:
				room, err := decodeRoom(ev.Kv.Value)
				if err != nil {
					e.logger.Warn("Dropping undecodable room change", log.String("key", key), log.Error(err))
					continue
				}
				room.Version = ev.Kv.ModRevision
				onChange(room)
			}
			changesDelivered.Add(ctx, 1)
		}
	}
	return rev
}

func (e *Etcd) CreateRoom(ctx context.Context, roomID, topic string, host *liveroom.ParticipantRecord) (*liveroom.Room, error) {
	return e.mutate(ctx, roomID, "createRoom", createRoom(roomID, topic, host, e.clock.Now()))
}

func (e *Etcd) AddParticipant(ctx context.Context, roomID string, p *liveroom.ParticipantRecord) (*liveroom.ParticipantRecord, error) {
	rec := &liveroom.ParticipantRecord{}
	if _, err := e.mutate(ctx, roomID, "addParticipant", addParticipant(p, e.clock.Now(), rec)); err != nil {
		return nil, err
	}
	return rec, nil
}

func (e *Etcd) RemoveParticipant(ctx context.Context, roomID, actorID, participantID string) error {
	_, err := e.mutate(ctx, roomID, "removeParticipant", transition(actorID, participantID, role.EventRemove))
	return err
}

func (e *Etcd) SetRole(ctx context.Context, roomID, actorID, participantID string, ro liveroom.Role) error {
	_, err := e.mutate(ctx, roomID, "setRole", setRole(actorID, participantID, ro))
	return err
}

func (e *Etcd) AddRaisedHand(ctx context.Context, roomID, participantID string) error {
	_, err := e.mutate(ctx, roomID, "addRaisedHand", transition(participantID, participantID, role.EventRaiseHand))
	return err
}

func (e *Etcd) ClearRaisedHand(ctx context.Context, roomID, actorID, participantID string) error {
	_, err := e.mutate(ctx, roomID, "clearRaisedHand", transition(actorID, participantID, role.EventLowerHand))
	return err
}

func (e *Etcd) EndRoom(ctx context.Context, roomID, actorID string) error {
	_, err := e.mutate(ctx, roomID, "endRoom", transition(actorID, "", role.EventEndRoom))
	return err
}

func (e *Etcd) mutate(ctx context.Context, roomID, op string, fn mutation) (*liveroom.Room, error) {
	key := e.roomKey(roomID)

	for attempt := 1; attempt <= e.casAttempts; attempt++ {
		current, modRev, _, err := e.read(ctx, roomID)
		if err != nil {
			recordMutation(op, err)
			return nil, err
		}

		next, changed, err := fn(current)
		if err != nil {
			recordMutation(op, err)
			return nil, err
		}
		if !changed {
			recordMutation(op, nil)
			return next, nil
		}

		payload, err := json.Marshal(next)
		if err != nil {
			return nil, errors.Wrap(liveroom.ErrStoreUnavailable, err, "encode room")
		}

		cmp := clientv3.Compare(clientv3.ModRevision(key), "=", modRev)
		if current == nil {
			cmp = clientv3.Compare(clientv3.CreateRevision(key), "=", 0)
		}
		resp, err := e.client.Txn(ctx).
			If(cmp).
			Then(clientv3.OpPut(key, string(payload))).
			Commit()
		if err != nil {
			err = errors.Wrapf(liveroom.ErrStoreUnavailable, err, "%s room %s", op, roomID)
			recordMutation(op, err)
			return nil, err
		}
		if !resp.Succeeded {
			casConflicts.Add(ctx, 1)
			e.logger.Debug("room write conflict, retrying",
				log.RoomID(roomID),
				log.String("op", op),
				log.Int("attempt", attempt))
			continue
		}

		if resp.Header != nil {
			next.Version = resp.Header.Revision
		}
		recordMutation(op, nil)
		return next, nil
	}

	err := errors.Newf(liveroom.ErrStoreUnavailable, "%s room %s: too many write conflicts", op, roomID)
	recordMutation(op, err)
	return nil, err
}
