package media

import (
	"strings"

	"github.com/imtaco/liveroom/internal/errors"
	"github.com/imtaco/liveroom/internal/jwt"
	"github.com/imtaco/liveroom/liveroom"
)

// checkCredential rejects a join request locally. Signature verification is
// left to the media server.
func checkCredential(req liveroom.JoinRequest) error {
	if strings.TrimSpace(req.Credential) == "" {
		return errors.New(liveroom.ErrConfiguration, "transport credential is missing")
	}
	if req.RoomID == "" || req.Identity == "" {
		return errors.New(liveroom.ErrConfiguration, "room id and identity are required")
	}
	payload, err := jwt.Inspect(req.Credential)
	if err != nil {
		return errors.Wrap(liveroom.ErrConfiguration, err, "transport credential")
	}
	if payload.RoomID != req.RoomID || payload.ParticipantID != req.Identity {
		return errors.Newf(liveroom.ErrConfiguration,
			"credential issued for %s in room %s", payload.ParticipantID, payload.RoomID)
	}
	return nil
}
