package transport

// EnterVisitBody starts (or switches to) a room visit.
type EnterVisitBody struct {
	RoomID        string `json:"roomId" binding:"required,roomid"`
	ParticipantID string `json:"participantId" binding:"required,participantid"`
	DisplayRef    string `json:"displayRef,omitempty" binding:"omitempty,max=128"`
	// Credential is the media transport token, passed through untouched
	Credential string   `json:"credential" binding:"required"`
	Kinds      []string `json:"kinds,omitempty" binding:"omitempty,max=2,unique,dive,trackkind"`
}

// ParticipantURI addresses another participant of the current visit.
type ParticipantURI struct {
	ParticipantID string `uri:"participantId" binding:"required,participantid"`
}
