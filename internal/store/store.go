package store

import (
	"errors"

	"roomchat/pkg/domain"
)

// ErrConflict is returned when a write violates a uniqueness invariant
// (username, room name, membership pair, contact pair). The store relies
// on its native constraint enforcement rather than application locking,
// so concurrent duplicate writes still surface as this error.
var ErrConflict = errors.New("store: conflict")

// Store defines persistence operations for users, rooms, memberships,
// contacts, and messages.
type Store interface {
	// users
	CreateUser(domain.User) error
	GetUserByUsername(username string) (domain.User, bool, error)
	GetUserByID(id string) (domain.User, bool, error)

	// rooms
	CreateRoom(domain.Room) error
	GetRoom(id string) (domain.Room, bool, error)
	GetRoomByName(name string) (domain.Room, bool, error)
	ListPublicRooms() ([]domain.Room, error)
	ListRoomsByMember(userID string) ([]domain.Room, error)

	// membership, modelled as an explicit join entity
	AddRoomMember(domain.RoomMember) error
	IsRoomMember(roomID, userID string) (bool, error)
	CountRoomMembers(roomID string) (int, error)

	// contacts
	CreateContact(domain.Contact) error
	HasContact(userID, contactUserID string) (bool, error)
	ListContactsByOwner(userID string) ([]domain.Contact, error)

	// messages
	CreateMessage(domain.Message) error
	ListRoomMessages(roomID string) ([]domain.Message, error)
}

// SessionStore persists opaque session tokens.
type SessionStore interface {
	NewSession(userID string) (string, error)
	GetUserIDByToken(token string) (string, bool, error)
	DeleteSession(token string) error
}
