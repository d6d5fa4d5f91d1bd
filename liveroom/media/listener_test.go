package media

import (
	"fmt"
	"sync"

	"github.com/imtaco/liveroom/liveroom"
)

type recordingListener struct {
	mu           sync.Mutex
	events       []string
	levels       [][]liveroom.VolumeLevel
	disconnected []error
}

func (l *recordingListener) add(format string, args ...any) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.events = append(l.events, fmt.Sprintf(format, args...))
}

func (l *recordingListener) OnRemoteJoined(u liveroom.RemoteUser) {
	l.add("joined %s", u.ParticipantID)
}

func (l *recordingListener) OnRemoteLeft(u liveroom.RemoteUser) {
	l.add("left %s", u.ParticipantID)
}

func (l *recordingListener) OnTrackPublished(u liveroom.RemoteUser, kind liveroom.TrackKind) {
	l.add("published %s %s", u.ParticipantID, kind)
}

func (l *recordingListener) OnTrackUnpublished(u liveroom.RemoteUser, kind liveroom.TrackKind) {
	l.add("unpublished %s %s", u.ParticipantID, kind)
}

func (l *recordingListener) OnVolumeLevels(levels []liveroom.VolumeLevel) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.levels = append(l.levels, levels)
}

func (l *recordingListener) OnDisconnected(err error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.disconnected = append(l.disconnected, err)
}

func (l *recordingListener) Events() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]string(nil), l.events...)
}

func (l *recordingListener) Levels() [][]liveroom.VolumeLevel {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([][]liveroom.VolumeLevel(nil), l.levels...)
}

func (l *recordingListener) Disconnects() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.disconnected)
}
