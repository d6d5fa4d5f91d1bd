package media

import (
	"sort"

	"github.com/imtaco/liveroom/internal/janus"
	"github.com/imtaco/liveroom/internal/log"
	"github.com/imtaco/liveroom/liveroom"
)

// AudioBridge reports voice activity as talking/stopped-talking rather than
// levels, so a talker is reported at full level.
const talkingLevel = 1.0

type remote struct {
	user       liveroom.RemoteUser
	publishing bool
}

// eventTranslator turns AudioBridge events into listener callbacks. It is
// only used from the session's poll goroutine.
type eventTranslator struct {
	roomID   string
	self     uint64
	selfID   string
	identity *IdentityRegistry
	listener liveroom.TransportListener
	logger   *log.Logger

	remotes map[uint64]*remote
	talking map[uint64]string
}

func newEventTranslator(
	roomID string,
	self uint64,
	selfID string,
	identity *IdentityRegistry,
	listener liveroom.TransportListener,
	logger *log.Logger,
) *eventTranslator {
	return &eventTranslator{
		roomID:   roomID,
		self:     self,
		selfID:   selfID,
		identity: identity,
		listener: listener,
		logger:   logger,
		remotes:  make(map[uint64]*remote),
		talking:  make(map[uint64]string),
	}
}

func (t *eventTranslator) handle(ev *janus.AudioBridgeEvent) {
	switch ev.AudioBridge {
	case "joined", "event", "participants":
		for _, p := range ev.Participants {
			t.upsert(p)
		}
		if ev.Leaving != 0 {
			t.leave(ev.Leaving)
		}
		if ev.Kicked != 0 {
			t.leave(ev.Kicked)
		}
	case "talking":
		t.talk(ev.ID, true)
	case "stopped-talking":
		t.talk(ev.ID, false)
	}
}

func (t *eventTranslator) upsert(p janus.AudioBridgeParticipant) {
	if p.ID == t.self {
		return
	}
	r, ok := t.remotes[p.ID]
	if !ok {
		if p.Display == "" {
			t.logger.Warn("Remote participant without display, ignored", log.Any("transportId", p.ID))
			return
		}
		if err := t.identity.Observe(t.roomID, p.Display, p.ID); err != nil {
			t.logger.Warn("Remote participant ignored", log.ParticipantID(p.Display), log.Error(err))
			return
		}
		r = &remote{user: liveroom.RemoteUser{ParticipantID: p.Display, TransportID: p.ID}}
		t.remotes[p.ID] = r
		t.listener.OnRemoteJoined(r.user)
	}

	if publishing := p.Setup && !p.Muted; publishing != r.publishing {
		r.publishing = publishing
		if publishing {
			t.listener.OnTrackPublished(r.user, liveroom.TrackKindAudio)
		} else {
			t.listener.OnTrackUnpublished(r.user, liveroom.TrackKindAudio)
		}
	}
	if p.Talking != nil {
		t.talk(p.ID, *p.Talking)
	}
}

func (t *eventTranslator) leave(id uint64) {
	r, ok := t.remotes[id]
	if !ok {
		return
	}
	if r.publishing {
		t.listener.OnTrackUnpublished(r.user, liveroom.TrackKindAudio)
	}
	t.talk(id, false)
	delete(t.remotes, id)
	t.listener.OnRemoteLeft(r.user)
}

func (t *eventTranslator) talk(id uint64, on bool) {
	pid := t.selfID
	if id != t.self {
		r, ok := t.remotes[id]
		if !ok {
			return
		}
		pid = r.user.ParticipantID
	}

	_, was := t.talking[id]
	if was == on {
		return
	}
	if on {
		t.talking[id] = pid
	} else {
		delete(t.talking, id)
	}

	levels := make([]liveroom.VolumeLevel, 0, len(t.talking)+1)
	for _, p := range t.talking {
		levels = append(levels, liveroom.VolumeLevel{ParticipantID: p, Level: talkingLevel})
	}
	if !on {
		levels = append(levels, liveroom.VolumeLevel{ParticipantID: pid})
	}
	sort.Slice(levels, func(i, j int) bool {
		return levels[i].ParticipantID < levels[j].ParticipantID
	})
	t.listener.OnVolumeLevels(levels)
}
