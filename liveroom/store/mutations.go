package store

import (
	"context"
	"encoding/json"
	"time"

	"github.com/imtaco/liveroom/internal/errors"
	"github.com/imtaco/liveroom/liveroom"
	"github.com/imtaco/liveroom/liveroom/role"
)

// Store is a RoomDocumentStore that can also bootstrap a room record.
type Store interface {
	liveroom.RoomDocumentStore
	CreateRoom(ctx context.Context, roomID, topic string, host *liveroom.ParticipantRecord) (*liveroom.Room, error)
}

// mutation returns the next version of room and whether anything changed.
// room is nil when the record does not exist.
type mutation func(room *liveroom.Room) (next *liveroom.Room, changed bool, err error)

func createRoom(roomID, topic string, host *liveroom.ParticipantRecord, now time.Time) mutation {
	return func(room *liveroom.Room) (*liveroom.Room, bool, error) {
		if room != nil {
			if room.IsEnded() {
				return nil, false, errors.Newf(liveroom.ErrRoomEnded, "room %s has ended", roomID)
			}
			if room.HostID != host.ID {
				return nil, false, errors.Newf(liveroom.ErrInvalidTransition, "room %s already hosted by %s", roomID, room.HostID)
			}
			return room, false, nil
		}
		r := &liveroom.Room{
			ID:     roomID,
			HostID: host.ID,
			Topic:  topic,
			Status: liveroom.RoomStatusLive,
			Participants: map[string]*liveroom.ParticipantRecord{
				host.ID: {
					ID:         host.ID,
					DisplayRef: host.DisplayRef,
					Role:       liveroom.RoleHost,
					VisitID:    host.VisitID,
					JoinedAt:   now,
				},
			},
			RaisedHands: map[string]struct{}{},
			CreatedAt:   now,
		}
		return r, true, nil
	}
}

func addParticipant(p *liveroom.ParticipantRecord, now time.Time, out *liveroom.ParticipantRecord) mutation {
	return func(room *liveroom.Room) (*liveroom.Room, bool, error) {
		if room == nil {
			return nil, false, errors.New(liveroom.ErrRoomNotFound, "room not found")
		}
		if room.IsEnded() {
			return nil, false, errors.Newf(liveroom.ErrRoomEnded, "room %s has ended", room.ID)
		}
		if room.Participants == nil {
			room.Participants = make(map[string]*liveroom.ParticipantRecord)
		}

		if existing, ok := room.Participants[p.ID]; ok {
			changed := existing.VisitID != p.VisitID ||
				(p.DisplayRef != "" && existing.DisplayRef != p.DisplayRef)
			existing.VisitID = p.VisitID
			if p.DisplayRef != "" {
				existing.DisplayRef = p.DisplayRef
			}
			*out = *existing
			return room, changed, nil
		}

		rec := &liveroom.ParticipantRecord{
			ID:         p.ID,
			DisplayRef: p.DisplayRef,
			Role:       liveroom.RoleListener,
			VisitID:    p.VisitID,
			JoinedAt:   now,
		}
		if p.ID == room.HostID {
			rec.Role = liveroom.RoleHost
		}
		room.Participants[p.ID] = rec
		*out = *rec
		return room, true, nil
	}
}

func transition(actorID, targetID string, ev role.Event) mutation {
	return func(room *liveroom.Room) (*liveroom.Room, bool, error) {
		out, err := role.Apply(room, actorID, targetID, ev)
		if err != nil {
			return nil, false, err
		}
		return room, out.Changed, nil
	}
}

func setRole(actorID, targetID string, r liveroom.Role) mutation {
	return func(room *liveroom.Room) (*liveroom.Room, bool, error) {
		ev, err := role.EventForRole(r)
		if err != nil {
			return nil, false, err
		}
		return transition(actorID, targetID, ev)(room)
	}
}

func decodeRoom(data []byte) (*liveroom.Room, error) {
	room := &liveroom.Room{}
	if err := json.Unmarshal(data, room); err != nil {
		return nil, errors.Wrap(liveroom.ErrStoreUnavailable, err, "decode room")
	}
	if room.Participants == nil {
		room.Participants = make(map[string]*liveroom.ParticipantRecord)
	}
	if room.RaisedHands == nil {
		room.RaisedHands = make(map[string]struct{})
	}
	return room, nil
}

// rejected marks an error returned by a mutation so backends can tell it
// apart from I/O failures.
type rejected struct {
	err error
}

func (r rejected) Error() string { return r.err.Error() }
func (r rejected) Unwrap() error { return r.err }

func unwrapRejected(err error) (error, bool) {
	if rej, ok := errors.As[rejected](err); ok {
		return rej.err, true
	}
	return nil, false
}
