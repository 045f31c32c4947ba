package constant

// Shared slog attribute keys.
const (
	Error     = "error"
	RoomID    = "room_id"
	SessionID = "session_id"
	Identity  = "identity"
	UserName  = "user_name"
	State     = "state"
)
