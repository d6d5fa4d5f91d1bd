package media

import (
	"context"
	"sync/atomic"

	"github.com/google/uuid"
	"github.com/pion/webrtc/v4"
	pionmedia "github.com/pion/webrtc/v4/pkg/media"

	"github.com/imtaco/liveroom/internal/errors"
	"github.com/imtaco/liveroom/liveroom"
)

// LocalTrack is a captured track backed by a pion sample track.
type LocalTrack struct {
	kind     liveroom.TrackKind
	rtc      *webrtc.TrackLocalStaticSample
	device   Device
	released atomic.Bool
}

func codecFor(kind liveroom.TrackKind) (webrtc.RTPCodecCapability, error) {
	switch kind {
	case liveroom.TrackKindAudio:
		return webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeOpus, ClockRate: 48000, Channels: 2}, nil
	case liveroom.TrackKindVideo:
		return webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeVP8, ClockRate: 90000}, nil
	}
	return webrtc.RTPCodecCapability{}, errors.Newf(liveroom.ErrUnsupportedKind, "track kind %q", kind)
}

func newLocalTrack(kind liveroom.TrackKind, streamID string, device Device) (*LocalTrack, error) {
	codec, err := codecFor(kind)
	if err != nil {
		return nil, err
	}
	rtc, err := webrtc.NewTrackLocalStaticSample(codec, string(kind)+"-"+uuid.NewString(), streamID)
	if err != nil {
		return nil, errors.Wrap(liveroom.ErrTransport, err, "create local track")
	}
	return &LocalTrack{kind: kind, rtc: rtc, device: device}, nil
}

// openTracks opens one device and track per kind. On failure every track
// opened so far is closed again.
func openTracks(ctx context.Context, devices Devices, streamID string, kinds []liveroom.TrackKind) ([]liveroom.TrackHandle, error) {
	tracks := make([]liveroom.TrackHandle, 0, len(kinds))
	fail := func(err error) ([]liveroom.TrackHandle, error) {
		for _, t := range tracks {
			_ = t.Close()
		}
		return nil, err
	}
	for _, kind := range kinds {
		if _, err := codecFor(kind); err != nil {
			return fail(err)
		}
		device, err := devices.Open(ctx, kind)
		if err != nil {
			return fail(err)
		}
		track, err := newLocalTrack(kind, streamID, device)
		if err != nil {
			_ = device.Close()
			return fail(err)
		}
		tracksAcquired.Add(ctx, 1)
		tracks = append(tracks, track)
	}
	return tracks, nil
}

func (t *LocalTrack) ID() string {
	return t.rtc.ID()
}

func (t *LocalTrack) Kind() liveroom.TrackKind {
	return t.kind
}

// WriteSample feeds one encoded frame into the track.
func (t *LocalTrack) WriteSample(s pionmedia.Sample) error {
	if t.released.Load() {
		return errors.New(liveroom.ErrAlreadyReleased, "track released")
	}
	return t.rtc.WriteSample(s)
}

func (t *LocalTrack) Released() bool {
	return t.released.Load()
}

func (t *LocalTrack) Close() error {
	if !t.released.CompareAndSwap(false, true) {
		return errors.Newf(liveroom.ErrAlreadyReleased, "track %s already released", t.ID())
	}
	tracksReleased.Add(context.Background(), 1)
	return t.device.Close()
}
