// Package role holds the participant role state machine. Everything here is
// pure: the same inputs always produce the same outcome and nothing is
// mutated except the Room passed to Apply.
package role

import (
	"github.com/imtaco/liveroom/internal/errors"
	"github.com/imtaco/liveroom/liveroom"
)

type Event string

const (
	EventRaiseHand Event = "raiseHand"
	EventLowerHand Event = "lowerHand"
	EventInvite    Event = "invite"
	EventDemote    Event = "demote"
	EventRemove    Event = "remove"
	EventEndRoom   Event = "endRoom"
)

// State is a participant's role plus the raised-hand sub-state of Listener.
type State struct {
	Role       liveroom.Role
	HandRaised bool
}

type Outcome struct {
	State    State
	Changed  bool
	Removed  bool
	EndsRoom bool
}

// Next computes the transition for one participant. actorIsTarget is true
// when the actor issues the event for itself.
func Next(current State, ev Event, actorIsHost, actorIsTarget bool) (Outcome, error) {
	unchanged := Outcome{State: current}

	switch ev {
	case EventEndRoom:
		if !actorIsHost {
			return unchanged, errors.New(liveroom.ErrAuthorization, "only the host can end the room")
		}
		return Outcome{State: current, Changed: true, EndsRoom: true}, nil

	case EventInvite:
		if !actorIsHost {
			return unchanged, errors.New(liveroom.ErrAuthorization, "only the host can invite to speak")
		}
		switch current.Role {
		case liveroom.RoleHost:
			return unchanged, errors.New(liveroom.ErrInvalidTransition, "host role is immutable")
		case liveroom.RoleSpeaker:
			return unchanged, nil
		}
		if !current.HandRaised {
			return unchanged, errors.New(liveroom.ErrInvalidTransition, "participant has not raised a hand")
		}
		return Outcome{State: State{Role: liveroom.RoleSpeaker}, Changed: true}, nil

	case EventDemote:
		if !actorIsHost {
			return unchanged, errors.New(liveroom.ErrAuthorization, "only the host can demote")
		}
		switch current.Role {
		case liveroom.RoleHost:
			return unchanged, errors.New(liveroom.ErrAuthorization, "the host cannot be demoted")
		case liveroom.RoleListener:
			return unchanged, nil
		}
		return Outcome{State: State{Role: liveroom.RoleListener}, Changed: true}, nil

	case EventRaiseHand:
		if !actorIsTarget {
			return unchanged, errors.New(liveroom.ErrAuthorization, "a hand can only be raised by its owner")
		}
		if current.Role != liveroom.RoleListener {
			return unchanged, errors.Newf(liveroom.ErrInvalidTransition, "%s cannot raise a hand", current.Role)
		}
		if current.HandRaised {
			return unchanged, nil
		}
		return Outcome{State: State{Role: liveroom.RoleListener, HandRaised: true}, Changed: true}, nil

	case EventLowerHand:
		if !actorIsTarget && !actorIsHost {
			return unchanged, errors.New(liveroom.ErrAuthorization, "only the owner or the host can lower a hand")
		}
		if !current.HandRaised {
			return unchanged, nil
		}
		return Outcome{State: State{Role: current.Role}, Changed: true}, nil

	case EventRemove:
		if !actorIsTarget && !actorIsHost {
			return unchanged, errors.New(liveroom.ErrAuthorization, "only the host can remove other participants")
		}
		if current.Role == liveroom.RoleHost {
			return unchanged, errors.New(liveroom.ErrInvalidTransition, "host membership is immutable")
		}
		return Outcome{State: current, Changed: true, Removed: true}, nil
	}

	return unchanged, errors.Newf(liveroom.ErrInvalidTransition, "unknown event %q", ev)
}

// EventForRole maps a requested role assignment onto the transition that produces it.
func EventForRole(r liveroom.Role) (Event, error) {
	switch r {
	case liveroom.RoleSpeaker:
		return EventInvite, nil
	case liveroom.RoleListener:
		return EventDemote, nil
	}
	return "", errors.Newf(liveroom.ErrInvalidTransition, "role %q cannot be assigned", r)
}

// Check resolves actor and target against the room snapshot and validates ev
// without changing the room.
func Check(room *liveroom.Room, actorID, targetID string, ev Event) (Outcome, error) {
	if room == nil {
		return Outcome{}, errors.New(liveroom.ErrRoomNotFound, "room not found")
	}
	if room.IsEnded() {
		return Outcome{}, errors.Newf(liveroom.ErrRoomEnded, "room %s has ended", room.ID)
	}
	actorIsHost := actorID != "" && actorID == room.HostID

	if ev == EventEndRoom {
		return Next(State{}, ev, actorIsHost, false)
	}

	target, ok := room.Participant(targetID)
	if !ok {
		return Outcome{}, errors.Newf(liveroom.ErrNotMember, "participant %s is not in room %s", targetID, room.ID)
	}
	current := State{Role: target.Role, HandRaised: room.HasRaisedHand(targetID)}
	return Next(current, ev, actorIsHost, actorID == targetID)
}

// Apply validates ev and writes its outcome into room.
func Apply(room *liveroom.Room, actorID, targetID string, ev Event) (Outcome, error) {
	out, err := Check(room, actorID, targetID, ev)
	if err != nil || !out.Changed {
		return out, err
	}

	if room.RaisedHands == nil {
		room.RaisedHands = make(map[string]struct{})
	}

	switch {
	case out.EndsRoom:
		room.Status = liveroom.RoomStatusEnded
		room.RaisedHands = make(map[string]struct{})
		for id := range room.Participants {
			if id != room.HostID {
				delete(room.Participants, id)
			}
		}
	case out.Removed:
		delete(room.Participants, targetID)
		delete(room.RaisedHands, targetID)
	default:
		room.Participants[targetID].Role = out.State.Role
		if out.State.HandRaised {
			room.RaisedHands[targetID] = struct{}{}
		} else {
			delete(room.RaisedHands, targetID)
		}
	}
	return out, nil
}
