package coordinator

import (
	"sort"

	"github.com/imtaco/liveroom/liveroom"
)

// desired is derived from the merged snapshots alone, never from the event
// that triggered the derivation.
type desired struct {
	role          liveroom.Role
	shouldPublish bool
	activeSpeaker string
}

// remoteState is what the transport reported about one participant.
type remoteState struct {
	hasAudio bool
	hasVideo bool
}

// activeSpeaker picks the loudest member at or above floor. Ties go to the
// smaller participant id. Non-members are ignored.
func activeSpeaker(levels []liveroom.VolumeLevel, floor float64, room *liveroom.Room) string {
	best := ""
	bestLevel := 0.0
	for _, l := range levels {
		if l.Level < floor {
			continue
		}
		if _, ok := room.Participant(l.ParticipantID); !ok {
			continue
		}
		if best == "" || l.Level > bestLevel || (l.Level == bestLevel && l.ParticipantID < best) {
			best = l.ParticipantID
			bestLevel = l.Level
		}
	}
	return best
}

func roleRank(r liveroom.Role) int {
	switch r {
	case liveroom.RoleHost:
		return 0
	case liveroom.RoleSpeaker:
		return 1
	}
	return 2
}

// buildView merges the room record, the transport snapshot and the local
// media state. Participants are ordered host, speakers, listeners, then by
// join time.
func buildView(
	roomID string,
	selfID string,
	room *liveroom.Room,
	remotes map[string]*remoteState,
	want desired,
	local liveroom.LocalMediaView,
	video bool,
	connected bool,
) *liveroom.ViewModel {
	vm := &liveroom.ViewModel{
		RoomID:          roomID,
		MyRole:          want.role,
		ActiveSpeakerID: want.activeSpeaker,
		Local:           local,
		RaisedHands:     []string{},
		Participants:    []liveroom.RemoteParticipantView{},
	}
	if room == nil {
		return vm
	}
	vm.Topic = room.Topic
	vm.RoomStatus = room.Status
	vm.RaisedHands = room.RaisedHandIDs()

	for id, p := range room.Participants {
		pv := liveroom.RemoteParticipantView{
			ParticipantRecord: *p,
			ActiveSpeaker:     id == want.activeSpeaker,
			HandRaised:        room.HasRaisedHand(id),
		}
		if id == selfID {
			pv.Connected = connected
			pv.HasAudio = local.IsPublishing
			pv.HasVideo = video && local.IsPublishing && !local.IsCameraOff
		} else if rs, ok := remotes[id]; ok {
			pv.Connected = true
			pv.HasAudio = rs.hasAudio
			pv.HasVideo = rs.hasVideo
		}
		vm.Participants = append(vm.Participants, pv)
	}
	sort.Slice(vm.Participants, func(i, j int) bool {
		a, b := vm.Participants[i], vm.Participants[j]
		if ra, rb := roleRank(a.Role), roleRank(b.Role); ra != rb {
			return ra < rb
		}
		if !a.JoinedAt.Equal(b.JoinedAt) {
			return a.JoinedAt.Before(b.JoinedAt)
		}
		return a.ID < b.ID
	})
	return vm
}
