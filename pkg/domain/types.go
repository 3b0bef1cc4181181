package domain

import "time"

type RoomType string

const (
	RoomPublic  RoomType = "public"
	RoomPrivate RoomType = "private"
)

type User struct {
	ID           string    `json:"id"`
	Username     string    `json:"username"`
	PasswordHash string    `json:"-"`
	CreatedAt    time.Time `json:"createdAt"`
}

type Room struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Type      RoomType  `json:"type"`
	CreatorID string    `json:"creatorId"`
	CreatedAt time.Time `json:"createdAt"`
}

// RoomMember is the explicit join entity between users and rooms.
type RoomMember struct {
	RoomID   string    `json:"roomId"`
	UserID   string    `json:"userId"`
	JoinedAt time.Time `json:"joinedAt"`
}

// Contact is a directed relation from an owner to another user, bound to
// the private room the pair chats in.
type Contact struct {
	ID            string    `json:"id"`
	UserID        string    `json:"userId"`
	ContactUserID string    `json:"contactUserId"`
	RoomID        string    `json:"roomId"`
	AddedAt       time.Time `json:"addedAt"`
}

// Message is immutable once created. Content may be empty only when an
// image is attached. Username carries the author's name for wire views.
type Message struct {
	ID        string    `json:"id"`
	RoomID    string    `json:"roomId"`
	UserID    string    `json:"userId"`
	Username  string    `json:"username"`
	Content   string    `json:"content"`
	ImageURL  string    `json:"imageUrl,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
}
