package media

import (
	"context"
	"hash/fnv"
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/imtaco/liveroom/internal/errors"
	"github.com/imtaco/liveroom/liveroom"
)

// Numeric ids stay below 2^53 so they survive a round trip through JSON
// numbers in browsers.
const numericMask = 1<<53 - 1

// NumericID derives the transport's numeric identity from a textual id.
// It is never zero.
func NumericID(s string) uint64 {
	h := fnv.New64a()
	_, _ = h.Write([]byte(s))
	n := h.Sum64() & numericMask
	if n == 0 {
		n = 1
	}
	return n
}

// RoomNumber is the AudioBridge room a textual room id is hosted in.
func RoomNumber(roomID string) uint64 {
	return NumericID("room/" + roomID)
}

// IdentityRegistry records which participant owns each numeric id within a
// room. Two participants hashing to the same number are reported as
// ErrIdentityCollision and the first owner keeps the number.
type IdentityRegistry struct {
	mu    sync.Mutex
	rooms *lru.Cache[string, map[uint64]string]
}

func NewIdentityRegistry(maxRooms int) (*IdentityRegistry, error) {
	if maxRooms <= 0 {
		maxRooms = defaultIdentityRooms
	}
	rooms, err := lru.New[string, map[uint64]string](maxRooms)
	if err != nil {
		return nil, errors.Wrap(liveroom.ErrConfiguration, err, "identity registry")
	}
	return &IdentityRegistry{rooms: rooms}, nil
}

// Bind claims the numeric id of a local participant.
func (r *IdentityRegistry) Bind(roomID, participantID string) (uint64, error) {
	n := NumericID(participantID)
	if err := r.claim(roomID, participantID, n); err != nil {
		return 0, err
	}
	return n, nil
}

// Observe records a numeric id announced by the server for a remote participant.
func (r *IdentityRegistry) Observe(roomID, participantID string, n uint64) error {
	return r.claim(roomID, participantID, n)
}

// Lookup returns the participant owning n in roomID.
func (r *IdentityRegistry) Lookup(roomID string, n uint64) (string, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	owners, ok := r.rooms.Get(roomID)
	if !ok {
		return "", false
	}
	id, ok := owners[n]
	return id, ok
}

func (r *IdentityRegistry) claim(roomID, participantID string, n uint64) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	owners, ok := r.rooms.Get(roomID)
	if !ok {
		owners = make(map[uint64]string)
		r.rooms.Add(roomID, owners)
	}
	if owner, ok := owners[n]; ok && owner != participantID {
		identityCollisions.Add(context.Background(), 1)
		return errors.Newf(liveroom.ErrIdentityCollision,
			"participants %q and %q share transport id %d in room %s", owner, participantID, n, roomID)
	}
	owners[n] = participantID
	return nil
}
