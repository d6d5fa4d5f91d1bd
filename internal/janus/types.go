package janus

import (
	"context"
	"encoding/json"

	"github.com/imtaco/liveroom/internal/errors"
)

const (
	ErrFailedRequest   errors.Code = "janus request failed"
	ErrInvalidResponse errors.Code = "invalid janus response"
	ErrRejected        errors.Code = "janus rejected request"
	ErrAlreadyExisted  errors.Code = "janus room already exists"
)

// codeRoomExists is the AudioBridge error for creating a taken room.
const codeRoomExists = 486

// API opens handles on the AudioBridge plugin, each on its own Janus session.
type API interface {
	Attach(ctx context.Context, display string) (Anchor, error)
	Admin(ctx context.Context, adminKey string) (Admin, error)
}

// Handle is one session plus one plugin handle.
type Handle interface {
	SessionID() int64
	// Events long-polls the session for up to maxEvents asynchronous events.
	Events(ctx context.Context, maxEvents int) ([]*Response, error)
	// StartKeepalive pings the session until Destroy.
	StartKeepalive()
	Destroy(ctx context.Context) error
}

// Anchor is one participant's AudioBridge handle.
type Anchor interface {
	Handle
	// Join is acked; the outcome arrives as a "joined" event.
	Join(ctx context.Context, req JoinRequest, jsep *JSEP) error
	Configure(ctx context.Context, req ConfigureRequest) error
	Leave(ctx context.Context) error
}

// Admin manages AudioBridge rooms.
type Admin interface {
	Handle
	RoomExists(ctx context.Context, room uint64) (bool, error)
	// CreateRoom returns ErrAlreadyExisted when the room is taken.
	CreateRoom(ctx context.Context, req CreateRoomRequest) error
}

// Response is the subset of a Janus reply or event this client reads.
type Response struct {
	Janus      string           `json:"janus"`
	SessionID  int64            `json:"session_id,omitempty"`
	Sender     int64            `json:"sender,omitempty"`
	Reason     string           `json:"reason,omitempty"`
	Data       *Data            `json:"data,omitempty"`
	Plugindata *PluginData      `json:"plugindata,omitempty"`
	JSEP       *json.RawMessage `json:"jsep,omitempty"`
}

type Data struct {
	ID int64 `json:"id"`
}

type PluginData struct {
	Plugin string          `json:"plugin,omitempty"`
	Data   json.RawMessage `json:"data"`
}

// DecodePluginData unmarshals the plugin payload into v.
func (r *Response) DecodePluginData(v any) error {
	if r == nil || r.Plugindata == nil || len(r.Plugindata.Data) == 0 {
		return errors.New(ErrInvalidResponse, "plugin data unavailable")
	}
	if err := json.Unmarshal(r.Plugindata.Data, v); err != nil {
		return errors.Wrap(ErrInvalidResponse, err, "decode plugin data")
	}
	return nil
}

// DecodeJSEP returns the attached session description, or nil when absent.
func (r *Response) DecodeJSEP() (*JSEP, error) {
	if r == nil || r.JSEP == nil {
		return nil, nil
	}
	var jsep JSEP
	if err := json.Unmarshal(*r.JSEP, &jsep); err != nil {
		return nil, errors.Wrap(ErrInvalidResponse, err, "decode jsep")
	}
	return &jsep, nil
}

// pluginError reports the AudioBridge error_code carried by a reply.
func (r *Response) pluginError() (int, string, bool) {
	var payload struct {
		ErrorCode int    `json:"error_code"`
		Error     string `json:"error"`
	}
	if r.DecodePluginData(&payload) != nil || payload.ErrorCode == 0 {
		return 0, "", false
	}
	return payload.ErrorCode, payload.Error, true
}

type JSEP struct {
	Type string `json:"type"`
	SDP  string `json:"sdp"`
}

// JoinRequest adds a participant to a room. A zero ID lets Janus pick one.
type JoinRequest struct {
	Request string `json:"request"`
	Room    uint64 `json:"room"`
	ID      uint64 `json:"id,omitempty"`
	Display string `json:"display"`
	Muted   bool   `json:"muted"`
	Pin     string `json:"pin,omitempty"`
	Token   string `json:"token,omitempty"`
}

type ConfigureRequest struct {
	Request string `json:"request"`
	Muted   *bool  `json:"muted,omitempty"`
	Display string `json:"display,omitempty"`
}

type CreateRoomRequest struct {
	Request      string `json:"request"`
	Room         uint64 `json:"room"`
	Description  string `json:"description,omitempty"`
	SamplingRate int    `json:"sampling_rate,omitempty"`
	AudioLevel   bool   `json:"audiolevel_event,omitempty"`
	Pin          string `json:"pin,omitempty"`
	AdminKey     string `json:"admin_key,omitempty"`
}

type roomRequest struct {
	Request  string `json:"request"`
	Room     uint64 `json:"room,omitempty"`
	AdminKey string `json:"admin_key,omitempty"`
}

// AudioBridgeEvent is the plugin payload of asynchronous AudioBridge events:
// joined, event (participant updates, leaving), talking and stopped-talking.
type AudioBridgeEvent struct {
	AudioBridge  string                   `json:"audiobridge"`
	Room         uint64                   `json:"room,omitempty"`
	ID           uint64                   `json:"id,omitempty"`
	Participants []AudioBridgeParticipant `json:"participants,omitempty"`
	Leaving      uint64                   `json:"leaving,omitempty"`
	Kicked       uint64                   `json:"kicked,omitempty"`
	ErrorCode    int                      `json:"error_code,omitempty"`
	Error        string                   `json:"error,omitempty"`
}

type AudioBridgeParticipant struct {
	ID      uint64 `json:"id"`
	Display string `json:"display,omitempty"`
	Setup   bool   `json:"setup"`
	Muted   bool   `json:"muted"`
	Talking *bool  `json:"talking,omitempty"`
}
