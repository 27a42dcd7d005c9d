package constant

// Shared slog attribute keys.
const (
	Error         = "error"
	RoomID        = "room_id"
	ParticipantID = "participant_id"
	User          = "user"
)
