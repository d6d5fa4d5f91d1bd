package log

import (
	"go.uber.org/zap"
)

// Field is an alias for zap.Field to avoid importing zap in other packages.
type Field = zap.Field

func Bool(key string, val bool) Field {
	return zap.Bool(key, val)
}

func Int(key string, val int) Field {
	return zap.Int(key, val)
}

func Int64(key string, val int64) Field {
	return zap.Int64(key, val)
}

func String(key string, val string) Field {
	return zap.String(key, val)
}

func Error(err error) Field {
	return zap.Error(err)
}

func Any(key string, val any) Field {
	return zap.Any(key, val)
}

// RoomID, ParticipantID and VisitID keep the keys identical across modules
// so a visit can be followed through the logs.
func RoomID(id string) Field {
	return zap.String("roomId", id)
}

func ParticipantID(id string) Field {
	return zap.String("participantId", id)
}

func VisitID(id string) Field {
	return zap.String("visitId", id)
}
