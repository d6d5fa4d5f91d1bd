package jwt

import (
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/imtaco/liveroom/internal/errors"
)

const (
	ErrInvalidRequest errors.Code = "invalid request"
	ErrInvalidToken   errors.Code = "invalid token"
	ErrNoToken        errors.Code = "no token"
)

// Auth signs and verifies tokens that scope a client to one participant in
// one room.
type Auth interface {
	Sign(participantID, roomID string, opts ...SignOption) (string, error)
	Verify(tokenString string) (*Payload, error)
}

type Payload struct {
	ParticipantID string `json:"participantId"`
	RoomID        string `json:"roomId"`
	jwt.RegisteredClaims
}

type SignOption func(*Payload)

// ExpiresIn sets the token expiry relative to now.
func ExpiresIn(d time.Duration) SignOption {
	return func(p *Payload) {
		now := time.Now()
		p.IssuedAt = jwt.NewNumericDate(now)
		p.ExpiresAt = jwt.NewNumericDate(now.Add(d))
	}
}

func (p *Payload) complete() bool {
	return p.ParticipantID != "" && p.RoomID != ""
}
