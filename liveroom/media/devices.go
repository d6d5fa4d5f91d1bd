package media

import (
	"context"
	"sync/atomic"

	"github.com/imtaco/liveroom/internal/errors"
	"github.com/imtaco/liveroom/liveroom"
)

// Device is an open grant on a capture source.
type Device interface {
	Close() error
}

// Devices opens capture sources. A refused grant is ErrPermissionDenied.
type Devices interface {
	Open(ctx context.Context, kind liveroom.TrackKind) (Device, error)
}

// GrantedDevices opens every kind except the denied ones. Samples are fed
// through the track by the caller; the device only tracks the grant.
type GrantedDevices struct {
	denied map[liveroom.TrackKind]bool
	open   atomic.Int64
}

func NewGrantedDevices(denied ...liveroom.TrackKind) *GrantedDevices {
	d := &GrantedDevices{denied: make(map[liveroom.TrackKind]bool)}
	for _, k := range denied {
		d.denied[k] = true
	}
	return d
}

func (d *GrantedDevices) Open(ctx context.Context, kind liveroom.TrackKind) (Device, error) {
	if err := ctx.Err(); err != nil {
		return nil, errors.Wrap(liveroom.ErrTransport, err, "open device")
	}
	if d.denied[kind] {
		return nil, errors.Newf(liveroom.ErrPermissionDenied, "%s capture not permitted", kind)
	}
	d.open.Add(1)
	return &grant{owner: d}, nil
}

// OpenCount reports the number of grants not yet closed.
func (d *GrantedDevices) OpenCount() int64 {
	return d.open.Load()
}

type grant struct {
	owner  *GrantedDevices
	closed atomic.Bool
}

func (g *grant) Close() error {
	if !g.closed.CompareAndSwap(false, true) {
		return errors.New(liveroom.ErrAlreadyReleased, "device already closed")
	}
	g.owner.open.Add(-1)
	return nil
}
