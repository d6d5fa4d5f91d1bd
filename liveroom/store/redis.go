package store

import (
	"context"
	"encoding/json"
	"fmt"
	stdsync "sync"

	"github.com/jonboulle/clockwork"
	"github.com/redis/go-redis/v9"

	"github.com/imtaco/liveroom/internal/errors"
	"github.com/imtaco/liveroom/internal/log"
	"github.com/imtaco/liveroom/liveroom"
	"github.com/imtaco/liveroom/liveroom/role"
)

// Redis keeps each room as one JSON document. Writes are optimistic
// (WATCH/MULTI) and every commit publishes the new document on a per-room
// channel, which is the change feed for Subscribe.
type Redis struct {
	client      *redis.Client
	prefix      string
	casAttempts int
	clock       clockwork.Clock
	logger      *log.Logger
}

func NewRedis(client *redis.Client, prefix string, casAttempts int, clock clockwork.Clock, logger *log.Logger) *Redis {
	if logger == nil {
		panic("logger is required")
	}
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	if casAttempts <= 0 {
		casAttempts = defaultCASAttempts
	}
	return &Redis{
		client:      client,
		prefix:      prefix,
		casAttempts: casAttempts,
		clock:       clock,
		logger:      logger,
	}
}

func (r *Redis) roomKey(roomID string) string {
	return fmt.Sprintf("%s:room:%s", r.prefix, roomID)
}

func (r *Redis) changesChannel(roomID string) string {
	return fmt.Sprintf("%s:room:%s:changes", r.prefix, roomID)
}

func (r *Redis) Get(ctx context.Context, roomID string) (*liveroom.Room, error) {
	data, err := r.client.Get(ctx, r.roomKey(roomID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrapf(liveroom.ErrStoreUnavailable, err, "get room %s", roomID)
	}
	return decodeRoom(data)
}

// Subscribe listens on the change channel before reading the current
// document so no commit can fall between the read and the feed.
func (r *Redis) Subscribe(ctx context.Context, roomID string, onChange func(*liveroom.Room)) (liveroom.Unsubscribe, error) {
	subCtx, cancel := context.WithCancel(ctx)
	pubsub := r.client.Subscribe(subCtx, r.changesChannel(roomID))
	if _, err := pubsub.Receive(subCtx); err != nil {
		cancel()
		_ = pubsub.Close()
		return nil, errors.Wrapf(liveroom.ErrStoreUnavailable, err, "subscribe room %s", roomID)
	}

	room, err := r.Get(subCtx, roomID)
	if err != nil {
		cancel()
		_ = pubsub.Close()
		return nil, err
	}
	onChange(room)

	go func() {
		ch := pubsub.Channel()
		for {
			select {
			case <-subCtx.Done():
				return
			case msg, ok := <-ch:
				if !ok || subCtx.Err() != nil {
					return
				}
				room, err := decodeRoom([]byte(msg.Payload))
				if err != nil {
					r.logger.Warn("Dropping undecodable room change",
						log.RoomID(roomID),
						log.Error(err))
					continue
				}
				onChange(room)
				changesDelivered.Add(context.Background(), 1)
			}
		}
	}()

	var once stdsync.Once
	return func() {
		once.Do(func() {
			cancel()
			if err := pubsub.Close(); err != nil {
				r.logger.Debug("pubsub close", log.Error(err))
			}
		})
	}, nil
}

func (r *Redis) CreateRoom(ctx context.Context, roomID, topic string, host *liveroom.ParticipantRecord) (*liveroom.Room, error) {
	return r.mutate(ctx, roomID, "createRoom", createRoom(roomID, topic, host, r.clock.Now()))
}

func (r *Redis) AddParticipant(ctx context.Context, roomID string, p *liveroom.ParticipantRecord) (*liveroom.ParticipantRecord, error) {
	rec := &liveroom.ParticipantRecord{}
	if _, err := r.mutate(ctx, roomID, "addParticipant", addParticipant(p, r.clock.Now(), rec)); err != nil {
		return nil, err
	}
	return rec, nil
}

func (r *Redis) RemoveParticipant(ctx context.Context, roomID, actorID, participantID string) error {
	_, err := r.mutate(ctx, roomID, "removeParticipant", transition(actorID, participantID, role.EventRemove))
	return err
}

func (r *Redis) SetRole(ctx context.Context, roomID, actorID, participantID string, ro liveroom.Role) error {
	_, err := r.mutate(ctx, roomID, "setRole", setRole(actorID, participantID, ro))
	return err
}

func (r *Redis) AddRaisedHand(ctx context.Context, roomID, participantID string) error {
	_, err := r.mutate(ctx, roomID, "addRaisedHand", transition(participantID, participantID, role.EventRaiseHand))
	return err
}

func (r *Redis) ClearRaisedHand(ctx context.Context, roomID, actorID, participantID string) error {
	_, err := r.mutate(ctx, roomID, "clearRaisedHand", transition(actorID, participantID, role.EventLowerHand))
	return err
}

func (r *Redis) EndRoom(ctx context.Context, roomID, actorID string) error {
	_, err := r.mutate(ctx, roomID, "endRoom", transition(actorID, "", role.EventEndRoom))
	return err
}

func (r *Redis) mutate(ctx context.Context, roomID, op string, fn mutation) (*liveroom.Room, error) {
	key := r.roomKey(roomID)

	for attempt := 1; attempt <= r.casAttempts; attempt++ {
		var result *liveroom.Room

		err := r.client.Watch(ctx, func(tx *redis.Tx) error {
			var current *liveroom.Room
			data, err := tx.Get(ctx, key).Bytes()
			switch {
			case errors.Is(err, redis.Nil):
			case err != nil:
				return err
			default:
				if current, err = decodeRoom(data); err != nil {
					return err
				}
			}

			next, changed, err := fn(current)
			if err != nil {
				return rejected{err: err}
			}
			if !changed {
				result = next
				return nil
			}

			next.Version = nextVersion(current)
			payload, err := json.Marshal(next)
			if err != nil {
				return err
			}
			_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
				pipe.Set(ctx, key, payload, 0)
				pipe.Publish(ctx, r.changesChannel(roomID), payload)
				return nil
			})
			if err != nil {
				return err
			}
			result = next
			return nil
		}, key)

		if errors.Is(err, redis.TxFailedErr) {
			casConflicts.Add(ctx, 1)
			r.logger.Debug("room write conflict, retrying",
				log.RoomID(roomID),
				log.String("op", op),
				log.Int("attempt", attempt))
			continue
		}
		if rej, ok := unwrapRejected(err); ok {
			recordMutation(op, rej)
			return nil, rej
		}
		if err != nil {
			err = errors.Wrapf(liveroom.ErrStoreUnavailable, err, "%s room %s", op, roomID)
			recordMutation(op, err)
			return nil, err
		}
		recordMutation(op, nil)
		return result, nil
	}

	err := errors.Newf(liveroom.ErrStoreUnavailable, "%s room %s: too many write conflicts", op, roomID)
	recordMutation(op, err)
	return nil, err
}
