package liveroom

import "github.com/imtaco/liveroom/internal/errors"

const (
	ErrConfiguration     errors.Code = "configuration error"
	ErrPermissionDenied  errors.Code = "permission denied"
	ErrAuthorization     errors.Code = "authorization error"
	ErrStoreUnavailable  errors.Code = "store unavailable"
	ErrTransport         errors.Code = "transport error"
	ErrStaleRoom         errors.Code = "stale room"
	ErrRoomNotFound      errors.Code = "room not found"
	ErrRoomEnded         errors.Code = "room ended"
	ErrNotMember         errors.Code = "not a member"
	ErrInvalidTransition errors.Code = "invalid transition"
	ErrAlreadyReleased   errors.Code = "already released"
	ErrUnsupportedKind   errors.Code = "unsupported track kind"
	ErrIdentityCollision errors.Code = "identity collision"
	ErrClosed            errors.Code = "closed"
)

// IsRetryable reports whether err is a transient I/O failure.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrStoreUnavailable) || errors.Is(err, ErrTransport)
}
