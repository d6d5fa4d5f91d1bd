package jwt

import (
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/imtaco/liveroom/internal/errors"
)

// NewAuth creates an HS256 authenticator.
func NewAuth(secret string) Auth {
	return NewAuthWithAlgorithm(secret, jwt.SigningMethodHS256)
}

// NewAuthWithAlgorithm creates an authenticator that signs with method and
// accepts nothing else. HS256, HS384 and HS512 are supported.
func NewAuthWithAlgorithm(secret string, method jwt.SigningMethod) Auth {
	return &hmacAuth{
		secret: []byte(secret),
		method: method,
		parser: jwt.NewParser(jwt.WithValidMethods([]string{method.Alg()})),
	}
}

type hmacAuth struct {
	secret []byte
	method jwt.SigningMethod
	parser *jwt.Parser
}

func (a *hmacAuth) Sign(participantID, roomID string, opts ...SignOption) (string, error) {
	claims := &Payload{
		ParticipantID: participantID,
		RoomID:        roomID,
	}
	if !claims.complete() {
		return "", errors.New(ErrInvalidRequest, "participantID and roomID are required")
	}
	for _, opt := range opts {
		opt(claims)
	}
	return jwt.NewWithClaims(a.method, claims).SignedString(a.secret)
}

func (a *hmacAuth) Verify(tokenString string) (*Payload, error) {
	if tokenString == "" {
		return nil, ErrNoToken
	}

	claims := &Payload{}
	_, err := a.parser.ParseWithClaims(tokenString, claims, func(*jwt.Token) (any, error) {
		return a.secret, nil
	})
	if err != nil {
		return nil, errors.Wrap(ErrInvalidToken, err, "verify token")
	}
	if !claims.complete() {
		return nil, errors.New(ErrInvalidToken, "missing required fields in token")
	}
	return claims, nil
}

// Inspect decodes a token without checking its signature. Holders of a token
// issued elsewhere use it to reject malformed or expired credentials before
// handing them to the party that verifies them.
func Inspect(tokenString string) (*Payload, error) {
	if tokenString == "" {
		return nil, ErrNoToken
	}

	claims := &Payload{}
	if _, _, err := jwt.NewParser().ParseUnverified(tokenString, claims); err != nil {
		return nil, errors.Wrap(ErrInvalidToken, err, "malformed token")
	}
	if !claims.complete() {
		return nil, errors.New(ErrInvalidToken, "missing required fields in token")
	}
	if claims.ExpiresAt != nil && claims.ExpiresAt.Before(time.Now()) {
		return nil, errors.New(ErrInvalidToken, "token expired")
	}
	return claims, nil
}
