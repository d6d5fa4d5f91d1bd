package coordinator

import (
	"context"

	"github.com/imtaco/liveroom/internal/errors"
	"github.com/imtaco/liveroom/internal/log"
	"github.com/imtaco/liveroom/liveroom"
	"github.com/imtaco/liveroom/liveroom/role"
)

type storeOp func(ctx context.Context) error

// RaiseHand asks the host for speaking rights.
func (c *Coordinator) RaiseHand(ctx context.Context) error {
	return c.do(ctx, "raiseHand", c.selfID, role.EventRaiseHand, func(ctx context.Context) error {
		return c.store.AddRaisedHand(ctx, c.roomID, c.selfID)
	})
}

// LowerHand withdraws a raised hand. An empty participantID means self; the
// host may lower anyone's hand.
func (c *Coordinator) LowerHand(ctx context.Context, participantID string) error {
	if participantID == "" {
		participantID = c.selfID
	}
	return c.do(ctx, "lowerHand", participantID, role.EventLowerHand, func(ctx context.Context) error {
		return c.store.ClearRaisedHand(ctx, c.roomID, c.selfID, participantID)
	})
}

func (c *Coordinator) InviteToSpeak(ctx context.Context, participantID string) error {
	return c.do(ctx, "inviteToSpeak", participantID, role.EventInvite, func(ctx context.Context) error {
		return c.store.SetRole(ctx, c.roomID, c.selfID, participantID, liveroom.RoleSpeaker)
	})
}

func (c *Coordinator) Demote(ctx context.Context, participantID string) error {
	return c.do(ctx, "demote", participantID, role.EventDemote, func(ctx context.Context) error {
		return c.store.SetRole(ctx, c.roomID, c.selfID, participantID, liveroom.RoleListener)
	})
}

// Remove takes another participant out of the room. Host only.
func (c *Coordinator) Remove(ctx context.Context, participantID string) error {
	if participantID == c.selfID {
		return errors.New(liveroom.ErrInvalidTransition, "use leave to remove yourself")
	}
	return c.do(ctx, "remove", participantID, role.EventRemove, func(ctx context.Context) error {
		return c.store.RemoveParticipant(ctx, c.roomID, c.selfID, participantID)
	})
}

func (c *Coordinator) EndRoom(ctx context.Context) error {
	return c.do(ctx, "endRoom", "", role.EventEndRoom, func(ctx context.Context) error {
		return c.store.EndRoom(ctx, c.roomID, c.selfID)
	})
}

// do checks ev against the merged snapshot inside the loop, so it is ordered
// with every other event, then runs op against the store in the background.
// A check that would not change anything skips the store.
func (c *Coordinator) do(ctx context.Context, name, targetID string, ev role.Event, op storeOp) error {
	if !c.started.Load() {
		return errors.New(liveroom.ErrClosed, "visit not started")
	}
	reply := make(chan error, 1)
	issued := make(chan struct{})
	queued := c.enqueue(event{kind: name, apply: func() {
		if c.closed {
			reply <- c.finalError()
			return
		}
		out, err := role.Check(c.room, c.selfID, targetID, ev)
		if err != nil {
			actionsRejected.Add(c.ctx, 1)
			c.logger.Debug("action rejected", log.String("action", name), log.Error(err))
			reply <- err
			return
		}
		if !out.Changed {
			reply <- nil
			return
		}
		actionsIssued.Add(c.ctx, 1)
		close(issued)
		go func() {
			reply <- c.retry.Do(ctx, func() error { return op(ctx) })
		}()
	}})
	if !queued {
		return c.finalError()
	}
	return c.await(ctx, reply, issued)
}

// await waits for reply. Once the visit is done a reply is only still
// expected if the work was issued before teardown.
func (c *Coordinator) await(ctx context.Context, reply <-chan error, issued <-chan struct{}) error {
	select {
	case err := <-reply:
		return err
	case <-ctx.Done():
		return ctx.Err()
	case <-c.done:
	}
	select {
	case err := <-reply:
		return err
	case <-issued:
	default:
		return c.finalError()
	}
	select {
	case err := <-reply:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// ToggleMute flips the muted flag and returns its new value once applied.
func (c *Coordinator) ToggleMute(ctx context.Context) (bool, error) {
	return c.toggle(ctx, "toggleMute", false, func() (bool, error) {
		return c.session.FlipMute(), nil
	})
}

// ToggleCamera flips the camera-off flag and returns its new value once
// applied. A denied camera is switched back off.
func (c *Coordinator) ToggleCamera(ctx context.Context) (bool, error) {
	return c.toggle(ctx, "toggleCamera", true, c.session.FlipCamera)
}

// toggle records the flag inside the loop, so toggles keep call order, and
// applies it in the background.
func (c *Coordinator) toggle(ctx context.Context, name string, revertOnDenied bool, flip func() (bool, error)) (bool, error) {
	if !c.started.Load() {
		return false, errors.New(liveroom.ErrClosed, "visit not started")
	}
	// on is written by the loop before reply or issued fire.
	var on bool
	reply := make(chan error, 1)
	issued := make(chan struct{})
	queued := c.enqueue(event{kind: name, apply: func() {
		if c.closed {
			reply <- c.finalError()
			return
		}
		v, err := flip()
		if err != nil {
			reply <- err
			return
		}
		on = v
		c.publishView()
		close(issued)
		go func() {
			err := c.session.Apply(c.ctx)
			c.enqueue(event{kind: name + ".applied", apply: func() {
				if c.closed {
					return
				}
				if revertOnDenied && errors.Is(err, liveroom.ErrPermissionDenied) {
					c.logger.Warn("Capture denied, reverting", log.String("action", name), log.Error(err))
					_, _ = flip()
				}
				c.publishView()
			}})
			reply <- err
		}()
	}})
	if !queued {
		return false, c.finalError()
	}
	if err := c.await(ctx, reply, issued); err != nil {
		return false, err
	}
	return on, nil
}

// Reconnect leaves and rejoins the transport, republishing with the latest
// flags.
func (c *Coordinator) Reconnect(ctx context.Context) error {
	if !c.started.Load() {
		return errors.New(liveroom.ErrClosed, "visit not started")
	}
	reply := make(chan error, 1)
	queued := c.enqueue(event{kind: "reconnect", apply: func() {
		if c.closed {
			reply <- c.finalError()
			return
		}
		c.startReconnect(reply)
	}})
	if !queued {
		return c.finalError()
	}
	return c.await(ctx, reply, nil)
}

// Leave tears the visit down and waits for it. A non-host's membership is
// removed; the host keeps theirs.
func (c *Coordinator) Leave(ctx context.Context) error {
	if !c.started.Load() {
		return c.session.Close(ctx, false)
	}
	c.enqueue(event{kind: "leave", apply: func() { c.teardown(nil, noticeLeft) }})
	select {
	case <-c.done:
		c.mu.Lock()
		defer c.mu.Unlock()
		return c.closeErr
	case <-ctx.Done():
		return ctx.Err()
	}
}
