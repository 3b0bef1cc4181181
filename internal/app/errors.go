package app

import "errors"

// Sentinel errors carry the user-facing message; the HTTP layer maps
// them to statuses.
var (
	ErrCredentialsRequired = errors.New("Username and password required")
	ErrUsernameTaken       = errors.New("Username already exists")

	// ErrInvalidCredentials covers both unknown username and password
	// mismatch so responses do not enable account enumeration.
	ErrInvalidCredentials = errors.New("Invalid username or password")
	ErrUnauthenticated    = errors.New("Login required")

	ErrRoomNameRequired = errors.New("Room name required")
	ErrInvalidRoomType  = errors.New("Room type must be public or private")
	ErrRoomNameTaken    = errors.New("Room already exists")
	ErrRoomNotFound     = errors.New("Room not found")
	ErrAlreadyMember    = errors.New("Already member of this room")
	ErrNotRoomMember    = errors.New("Not member of this room")

	ErrEmptyMessage = errors.New("Message content or image required")

	ErrUsernameRequired = errors.New("Username required")
	ErrUserNotFound     = errors.New("User not found")
	ErrSelfContact      = errors.New("Cannot add yourself")
	ErrAlreadyContact   = errors.New("Already in contacts")
)
