package store

import "time"

// GORM models used for persistence. Uniqueness invariants live here as
// database constraints; violations are translated to ErrConflict.

type UserModel struct {
	ID           string    `gorm:"primaryKey"`
	Username     string    `gorm:"uniqueIndex;not null"`
	PasswordHash string    `gorm:"not null"`
	CreatedAt    time.Time `gorm:"not null"`
}

func (UserModel) TableName() string { return "users" }

type RoomModel struct {
	ID        string    `gorm:"primaryKey"`
	Name      string    `gorm:"uniqueIndex;not null"`
	Type      string    `gorm:"not null;index"`
	CreatorID string    // empty for the system-created default room
	CreatedAt time.Time `gorm:"not null"`
}

func (RoomModel) TableName() string { return "rooms" }

type RoomMemberModel struct {
	RoomID   string    `gorm:"primaryKey"`
	UserID   string    `gorm:"primaryKey"`
	JoinedAt time.Time `gorm:"not null"`
}

func (RoomMemberModel) TableName() string { return "room_members" }

type ContactModel struct {
	ID            string    `gorm:"primaryKey"`
	UserID        string    `gorm:"not null;uniqueIndex:idx_contact_pair"`
	ContactUserID string    `gorm:"not null;uniqueIndex:idx_contact_pair"`
	RoomID        string    `gorm:"not null"`
	AddedAt       time.Time `gorm:"not null"`
}

func (ContactModel) TableName() string { return "contacts" }

type MessageModel struct {
	ID        string `gorm:"primaryKey"`
	RoomID    string `gorm:"not null;index"`
	UserID    string `gorm:"not null"`
	Content   string
	ImageURL  string
	CreatedAt time.Time `gorm:"not null;index"`
}

func (MessageModel) TableName() string { return "messages" }
