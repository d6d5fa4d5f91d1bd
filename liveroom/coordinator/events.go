package coordinator

import (
	"github.com/imtaco/liveroom/internal/log"
	"github.com/imtaco/liveroom/liveroom"
)

// transportEvents turns transport callbacks into queued events.
type transportEvents struct {
	c *Coordinator
}

func (t *transportEvents) remote(user liveroom.RemoteUser, kind string, fn func(rs *remoteState)) {
	if user.ParticipantID == "" || user.ParticipantID == t.c.selfID {
		return
	}
	c := t.c
	c.enqueue(event{kind: kind, apply: func() {
		if c.closed {
			return
		}
		rs, ok := c.remotes[user.ParticipantID]
		if !ok {
			rs = &remoteState{}
			c.remotes[user.ParticipantID] = rs
		}
		fn(rs)
		c.reconcile()
	}})
}

func (t *transportEvents) OnRemoteJoined(user liveroom.RemoteUser) {
	t.remote(user, "remoteJoined", func(*remoteState) {})
}

func (t *transportEvents) OnRemoteLeft(user liveroom.RemoteUser) {
	if user.ParticipantID == "" {
		return
	}
	c := t.c
	c.enqueue(event{kind: "remoteLeft", apply: func() {
		if c.closed {
			return
		}
		delete(c.remotes, user.ParticipantID)
		c.reconcile()
	}})
}

func (t *transportEvents) OnTrackPublished(user liveroom.RemoteUser, kind liveroom.TrackKind) {
	t.remote(user, "trackPublished", func(rs *remoteState) { rs.set(kind, true) })
}

func (t *transportEvents) OnTrackUnpublished(user liveroom.RemoteUser, kind liveroom.TrackKind) {
	t.remote(user, "trackUnpublished", func(rs *remoteState) { rs.set(kind, false) })
}

// OnVolumeLevels replaces the previous report. Reports are dropped while the
// queue is full; the next one supersedes them anyway.
func (t *transportEvents) OnVolumeLevels(levels []liveroom.VolumeLevel) {
	c := t.c
	report := append([]liveroom.VolumeLevel(nil), levels...)
	c.tryEnqueue(event{kind: "volume", apply: func() {
		if c.closed {
			return
		}
		c.levels = report
		c.reconcile()
	}})
}

func (t *transportEvents) OnDisconnected(err error) {
	c := t.c
	c.enqueue(event{kind: "disconnected", apply: func() {
		if c.closed {
			return
		}
		c.logger.Warn("Transport disconnected, reconnecting", log.Error(err))
		c.startReconnect(nil)
	}})
}

func (rs *remoteState) set(kind liveroom.TrackKind, on bool) {
	switch kind {
	case liveroom.TrackKindAudio:
		rs.hasAudio = on
	case liveroom.TrackKindVideo:
		rs.hasVideo = on
	}
}
