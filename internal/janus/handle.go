package janus

import (
	"context"
	"strconv"
	"sync"
	"time"

	"github.com/imtaco/liveroom/internal/errors"
	"github.com/imtaco/liveroom/internal/log"
)

type handle struct {
	client    *client
	display   string
	sessionID int64
	handleID  int64

	keepaliveMu     sync.Mutex
	keepaliveCancel context.CancelFunc
}

func (h *handle) SessionID() int64 {
	return h.sessionID
}

func (h *handle) send(ctx context.Context, janus string, body any) (*Response, error) {
	payload := map[string]any{
		"janus":      janus,
		"session_id": h.sessionID,
		"handle_id":  h.handleID,
	}
	if body != nil {
		payload["body"] = body
	}
	return h.client.post(ctx, sessionPath(h.sessionID), payload)
}

// message sends a plugin request and fails on an AudioBridge error reply.
func (h *handle) message(ctx context.Context, body any, jsep *JSEP) (*Response, error) {
	payload := map[string]any{
		"janus":      "message",
		"session_id": h.sessionID,
		"handle_id":  h.handleID,
		"body":       body,
	}
	if jsep != nil {
		payload["jsep"] = jsep
	}
	resp, err := h.client.post(ctx, sessionPath(h.sessionID), payload)
	if err != nil {
		return nil, err
	}
	if code, reason, ok := resp.pluginError(); ok {
		return resp, errors.Newf(ErrRejected, "audiobridge error %d: %s", code, reason)
	}
	return resp, nil
}

func (h *handle) Events(ctx context.Context, maxEvents int) ([]*Response, error) {
	if maxEvents <= 0 {
		maxEvents = 3
	}
	var out []*Response
	resp, err := h.client.poll.R().
		SetContext(ctx).
		SetResult(&out).
		SetQueryParam("maxev", strconv.Itoa(maxEvents)).
		Get(h.client.baseURL + sessionPath(h.sessionID))
	if err != nil {
		return nil, errors.Wrap(ErrFailedRequest, err, "poll")
	}
	if resp.IsError() {
		return nil, errors.Newf(ErrFailedRequest, "janus poll http status %d", resp.StatusCode())
	}
	return out, nil
}

func (h *handle) StartKeepalive() {
	h.keepaliveMu.Lock()
	defer h.keepaliveMu.Unlock()
	if h.keepaliveCancel != nil {
		return
	}
	ctx, cancel := context.WithCancel(context.Background())
	h.keepaliveCancel = cancel
	go h.runKeepalive(ctx)
}

func (h *handle) stopKeepalive() {
	h.keepaliveMu.Lock()
	defer h.keepaliveMu.Unlock()
	if h.keepaliveCancel != nil {
		h.keepaliveCancel()
		h.keepaliveCancel = nil
	}
}

func (h *handle) runKeepalive(ctx context.Context) {
	ticker := time.NewTicker(h.client.keepalive)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			if _, err := h.send(ctx, "keepalive", nil); err != nil {
				h.client.logger.Warn("janus keepalive failed",
					log.String("display", h.display),
					log.Int64("session", h.sessionID),
					log.Error(err))
			}
		case <-ctx.Done():
			return
		}
	}
}

// Destroy stops the keepalive and ends the Janus session.
func (h *handle) Destroy(ctx context.Context) error {
	h.stopKeepalive()
	_, err := h.send(ctx, "destroy", nil)
	return err
}

type anchor struct {
	*handle
}

func (a *anchor) Join(ctx context.Context, req JoinRequest, jsep *JSEP) error {
	req.Request = "join"
	_, err := a.message(ctx, req, jsep)
	return err
}

func (a *anchor) Configure(ctx context.Context, req ConfigureRequest) error {
	req.Request = "configure"
	_, err := a.message(ctx, req, nil)
	return err
}

func (a *anchor) Leave(ctx context.Context) error {
	_, err := a.message(ctx, roomRequest{Request: "leave"}, nil)
	return err
}

type admin struct {
	*handle
	adminKey string
}

func (a *admin) RoomExists(ctx context.Context, room uint64) (bool, error) {
	resp, err := a.message(ctx, roomRequest{Request: "exists", Room: room, AdminKey: a.adminKey}, nil)
	if err != nil {
		return false, err
	}
	var payload struct {
		Exists bool `json:"exists"`
	}
	if err := resp.DecodePluginData(&payload); err != nil {
		return false, err
	}
	return payload.Exists, nil
}

// CreateRoom fills in the request name, the admin key and a 16kHz default
// sampling rate.
func (a *admin) CreateRoom(ctx context.Context, req CreateRoomRequest) error {
	req.Request = "create"
	req.AdminKey = a.adminKey
	if req.SamplingRate == 0 {
		req.SamplingRate = 16000
	}
	resp, err := a.message(ctx, req, nil)
	if err != nil {
		if code, _, ok := resp.pluginError(); ok && code == codeRoomExists {
			return errors.Newf(ErrAlreadyExisted, "janus room %d already exists", req.Room)
		}
		return err
	}
	return nil
}
