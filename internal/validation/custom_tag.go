package validation

import (
	"regexp"

	"github.com/go-playground/validator/v10"
)

var (
	roomIDRegex        = regexp.MustCompile(`^[A-Za-z0-9_-]{1,64}$`)
	participantIDRegex = regexp.MustCompile(`^[A-Za-z0-9_.:@-]{1,64}$`)
)

func init() {
	MustUseJSONNamesGin()
	MustRegisterGin("roomid", ValidateRoomID)
	MustRegisterGin("participantid", ValidateParticipantID)
	MustRegisterGinAlias("trackkind", "oneof=audio video")
}

// ValidateRoomID accepts 1-64 letters, digits, hyphens and underscores.
func ValidateRoomID(fl validator.FieldLevel) bool {
	return roomIDRegex.MatchString(fl.Field().String())
}

// ValidateParticipantID also accepts dots, colons and @ so account-style ids pass.
func ValidateParticipantID(fl validator.FieldLevel) bool {
	return participantIDRegex.MatchString(fl.Field().String())
}
