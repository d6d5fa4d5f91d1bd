package liveroom

import (
	"context"
	"sort"
	"time"
)

//go:generate mockgen -destination=mocks/mock_liveroom.go -package=mocks . RoomDocumentStore,MediaTransport,TransportSession

type Role string

const (
	RoleHost     Role = "host"
	RoleSpeaker  Role = "speaker"
	RoleListener Role = "listener"
)

// CanPublish reports whether a participant with this role may have published tracks.
func (r Role) CanPublish() bool {
	return r == RoleHost || r == RoleSpeaker
}

func (r Role) Valid() bool {
	switch r {
	case RoleHost, RoleSpeaker, RoleListener:
		return true
	}
	return false
}

type RoomStatus string

const (
	RoomStatusLive  RoomStatus = "live"
	RoomStatusEnded RoomStatus = "ended"
)

type TrackKind string

const (
	TrackKindAudio TrackKind = "audio"
	TrackKindVideo TrackKind = "video"
)

// ParticipantRecord is one member entry of a Room.
type ParticipantRecord struct {
	ID         string    `json:"id"`
	DisplayRef string    `json:"displayRef"`
	Role       Role      `json:"role"`
	VisitID    string    `json:"visitId,omitempty"`
	JoinedAt   time.Time `json:"joinedAt"`
}

// Room is the replicated room record. Version is assigned by the store and
// grows with every committed mutation.
type Room struct {
	ID           string                        `json:"id"`
	HostID       string                        `json:"hostId"`
	Topic        string                        `json:"topic"`
	Status       RoomStatus                    `json:"status"`
	Participants map[string]*ParticipantRecord `json:"participants"`
	RaisedHands  map[string]struct{}           `json:"raisedHands"`
	CreatedAt    time.Time                     `json:"createdAt"`
	Version      int64                         `json:"version"`
}

func (r *Room) IsEnded() bool {
	return r != nil && r.Status == RoomStatusEnded
}

func (r *Room) Participant(id string) (*ParticipantRecord, bool) {
	if r == nil || r.Participants == nil {
		return nil, false
	}
	p, ok := r.Participants[id]
	return p, ok
}

func (r *Room) RoleOf(id string) (Role, bool) {
	p, ok := r.Participant(id)
	if !ok {
		return "", false
	}
	return p.Role, true
}

func (r *Room) HasRaisedHand(id string) bool {
	if r == nil || r.RaisedHands == nil {
		return false
	}
	_, ok := r.RaisedHands[id]
	return ok
}

// RaisedHandIDs returns the raised hands in a stable order.
func (r *Room) RaisedHandIDs() []string {
	if r == nil {
		return nil
	}
	ids := make([]string, 0, len(r.RaisedHands))
	for id := range r.RaisedHands {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Clone returns a deep copy so snapshots handed to subscribers are never shared.
func (r *Room) Clone() *Room {
	if r == nil {
		return nil
	}
	c := *r
	c.Participants = make(map[string]*ParticipantRecord, len(r.Participants))
	for id, p := range r.Participants {
		cp := *p
		c.Participants[id] = &cp
	}
	c.RaisedHands = make(map[string]struct{}, len(r.RaisedHands))
	for id := range r.RaisedHands {
		c.RaisedHands[id] = struct{}{}
	}
	return &c
}

// Unsubscribe stops a subscription. Calling it more than once is a no-op.
type Unsubscribe func()

// RoomDocumentStore is the replicated room record store. Implementations
// are the final authority for role and membership rules and reject
// unauthorized or post-Ended mutations.
type RoomDocumentStore interface {
	// Get returns nil without error when the room does not exist.
	Get(ctx context.Context, roomID string) (*Room, error)
	// Subscribe delivers the current snapshot first and every change after it.
	// A nil room means the record was deleted.
	Subscribe(ctx context.Context, roomID string, onChange func(*Room)) (Unsubscribe, error)
	// AddParticipant adds p as Listener, or reuses the existing membership
	// (keeping its role) and stamps the new visit id.
	AddParticipant(ctx context.Context, roomID string, p *ParticipantRecord) (*ParticipantRecord, error)
	RemoveParticipant(ctx context.Context, roomID, actorID, participantID string) error
	SetRole(ctx context.Context, roomID, actorID, participantID string, role Role) error
	AddRaisedHand(ctx context.Context, roomID, participantID string) error
	ClearRaisedHand(ctx context.Context, roomID, actorID, participantID string) error
	EndRoom(ctx context.Context, roomID, actorID string) error
}

// TrackHandle is an exclusively owned local capture handle.
// Close releases the underlying device; a second Close returns ErrAlreadyReleased.
type TrackHandle interface {
	ID() string
	Kind() TrackKind
	Close() error
}

// RemoteUser is a participant as reported by the media transport.
type RemoteUser struct {
	ParticipantID string
	TransportID   uint64
}

type VolumeLevel struct {
	ParticipantID string
	Level         float64
}

// TransportListener receives transport events. Implementations must not block.
type TransportListener interface {
	OnRemoteJoined(user RemoteUser)
	OnRemoteLeft(user RemoteUser)
	OnTrackPublished(user RemoteUser, kind TrackKind)
	OnTrackUnpublished(user RemoteUser, kind TrackKind)
	OnVolumeLevels(levels []VolumeLevel)
	OnDisconnected(err error)
}

type JoinRequest struct {
	Credential string
	RoomID     string
	Identity   string
	Listener   TransportListener
}

type MediaTransport interface {
	// Join fails with ErrConfiguration before any network attempt when the
	// credential is missing or malformed.
	Join(ctx context.Context, req JoinRequest) (TransportSession, error)
}

// RoomProvisioner prepares the media side of a room before its host joins.
// EnsureRoom is idempotent.
type RoomProvisioner interface {
	EnsureRoom(ctx context.Context, roomID, topic string) error
}

type TransportSession interface {
	Leave(ctx context.Context) error
	CreateLocalTracks(ctx context.Context, kinds ...TrackKind) ([]TrackHandle, error)
	Publish(ctx context.Context, tracks ...TrackHandle) error
	Unpublish(ctx context.Context, tracks ...TrackHandle) error
	SetMuted(ctx context.Context, track TrackHandle, muted bool) error
}

// LocalMediaState is owned by a single session manager.
type LocalMediaState struct {
	AudioTrack  TrackHandle
	VideoTrack  TrackHandle
	IsMuted     bool
	IsCameraOff bool
}

type RemoteParticipantView struct {
	ParticipantRecord
	HasAudio      bool `json:"hasAudio"`
	HasVideo      bool `json:"hasVideo"`
	ActiveSpeaker bool `json:"activeSpeaker"`
	HandRaised    bool `json:"handRaised"`
	Connected     bool `json:"connected"`
}

type LocalMediaView struct {
	IsMuted      bool `json:"isMuted"`
	IsCameraOff  bool `json:"isCameraOff"`
	IsPublishing bool `json:"isPublishing"`
}

// ViewModel is the read-only merged state handed to the UI.
type ViewModel struct {
	RoomID          string                  `json:"roomId"`
	Topic           string                  `json:"topic"`
	Participants    []RemoteParticipantView `json:"participants"`
	MyRole          Role                    `json:"myRole"`
	RaisedHands     []string                `json:"raisedHands"`
	ActiveSpeakerID string                  `json:"activeSpeakerId"`
	RoomStatus      RoomStatus              `json:"roomStatus"`
	Local           LocalMediaView          `json:"local"`
	Closed          bool                    `json:"closed"`
	Notice          string                  `json:"notice,omitempty"`
}
