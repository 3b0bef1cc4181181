package store

import (
	"errors"
	"fmt"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"roomchat/pkg/domain"
)

// GormStore implements Store using GORM + Postgres.
type GormStore struct {
	db *gorm.DB
}

// NewGormStore opens the DB and runs auto-migrations. TranslateError is
// enabled so unique-constraint violations come back as
// gorm.ErrDuplicatedKey and can be mapped to ErrConflict.
func NewGormStore(dsn string) (*GormStore, error) {
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{TranslateError: true})
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	if err := db.AutoMigrate(&UserModel{}, &RoomModel{}, &RoomMemberModel{}, &ContactModel{}, &MessageModel{}); err != nil {
		return nil, fmt.Errorf("auto migrate: %w", err)
	}
	return &GormStore{db: db}, nil
}

func translateErr(err error) error {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return ErrConflict
	}
	return err
}

// CreateUser inserts a user. Returns ErrConflict when the username exists.
func (s *GormStore) CreateUser(u domain.User) error {
	model := userToModel(u)
	return translateErr(s.db.Create(&model).Error)
}

// GetUserByUsername looks up a user by exact username.
func (s *GormStore) GetUserByUsername(username string) (domain.User, bool, error) {
	var model UserModel
	if err := s.db.Where("username = ?", username).First(&model).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return domain.User{}, false, nil
		}
		return domain.User{}, false, err
	}
	return userFromModel(model), true, nil
}

// GetUserByID returns a user by ID.
func (s *GormStore) GetUserByID(id string) (domain.User, bool, error) {
	var model UserModel
	if err := s.db.First(&model, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return domain.User{}, false, nil
		}
		return domain.User{}, false, err
	}
	return userFromModel(model), true, nil
}

// CreateRoom inserts a room. Returns ErrConflict when the name is taken.
func (s *GormStore) CreateRoom(r domain.Room) error {
	model := roomToModel(r)
	return translateErr(s.db.Create(&model).Error)
}

// GetRoom retrieves a room by ID.
func (s *GormStore) GetRoom(id string) (domain.Room, bool, error) {
	var model RoomModel
	if err := s.db.First(&model, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return domain.Room{}, false, nil
		}
		return domain.Room{}, false, err
	}
	return roomFromModel(model), true, nil
}

// GetRoomByName retrieves a room by its globally unique name.
func (s *GormStore) GetRoomByName(name string) (domain.Room, bool, error) {
	var model RoomModel
	if err := s.db.Where("name = ?", name).First(&model).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return domain.Room{}, false, nil
		}
		return domain.Room{}, false, err
	}
	return roomFromModel(model), true, nil
}

// ListPublicRooms returns all public rooms ordered by creation time.
func (s *GormStore) ListPublicRooms() ([]domain.Room, error) {
	var models []RoomModel
	if err := s.db.Where("type = ?", string(domain.RoomPublic)).Order("created_at ASC").Find(&models).Error; err != nil {
		return nil, err
	}
	return roomsFromModels(models), nil
}

// ListRoomsByMember returns rooms the user belongs to, in join order.
func (s *GormStore) ListRoomsByMember(userID string) ([]domain.Room, error) {
	var models []RoomModel
	err := s.db.Model(&RoomModel{}).
		Joins("JOIN room_members ON room_members.room_id = rooms.id").
		Where("room_members.user_id = ?", userID).
		Order("room_members.joined_at ASC").
		Find(&models).Error
	if err != nil {
		return nil, err
	}
	return roomsFromModels(models), nil
}

// AddRoomMember inserts a membership row. Returns ErrConflict when the
// user is already a member.
func (s *GormStore) AddRoomMember(m domain.RoomMember) error {
	model := RoomMemberModel{RoomID: m.RoomID, UserID: m.UserID, JoinedAt: m.JoinedAt}
	return translateErr(s.db.Create(&model).Error)
}

// IsRoomMember reports whether the user belongs to the room.
func (s *GormStore) IsRoomMember(roomID, userID string) (bool, error) {
	var count int64
	err := s.db.Model(&RoomMemberModel{}).
		Where("room_id = ? AND user_id = ?", roomID, userID).
		Count(&count).Error
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

// CountRoomMembers returns the room's member count.
func (s *GormStore) CountRoomMembers(roomID string) (int, error) {
	var count int64
	if err := s.db.Model(&RoomMemberModel{}).Where("room_id = ?", roomID).Count(&count).Error; err != nil {
		return 0, err
	}
	return int(count), nil
}

// CreateContact inserts a contact row. Returns ErrConflict when the
// (owner, target) pair already exists.
func (s *GormStore) CreateContact(c domain.Contact) error {
	model := ContactModel{
		ID:            c.ID,
		UserID:        c.UserID,
		ContactUserID: c.ContactUserID,
		RoomID:        c.RoomID,
		AddedAt:       c.AddedAt,
	}
	return translateErr(s.db.Create(&model).Error)
}

// HasContact reports whether owner already has target in contacts.
func (s *GormStore) HasContact(userID, contactUserID string) (bool, error) {
	var count int64
	err := s.db.Model(&ContactModel{}).
		Where("user_id = ? AND contact_user_id = ?", userID, contactUserID).
		Count(&count).Error
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

// ListContactsByOwner returns the owner's contacts in added order.
func (s *GormStore) ListContactsByOwner(userID string) ([]domain.Contact, error) {
	var models []ContactModel
	if err := s.db.Where("user_id = ?", userID).Order("added_at ASC").Find(&models).Error; err != nil {
		return nil, err
	}
	res := make([]domain.Contact, 0, len(models))
	for _, m := range models {
		res = append(res, domain.Contact{
			ID:            m.ID,
			UserID:        m.UserID,
			ContactUserID: m.ContactUserID,
			RoomID:        m.RoomID,
			AddedAt:       m.AddedAt,
		})
	}
	return res, nil
}

// CreateMessage appends a message to a room.
func (s *GormStore) CreateMessage(msg domain.Message) error {
	model := MessageModel{
		ID:        msg.ID,
		RoomID:    msg.RoomID,
		UserID:    msg.UserID,
		Content:   msg.Content,
		ImageURL:  msg.ImageURL,
		CreatedAt: msg.CreatedAt,
	}
	return translateErr(s.db.Create(&model).Error)
}

type messageRow struct {
	ID        string
	RoomID    string
	UserID    string
	Username  string
	Content   string
	ImageURL  string
	CreatedAt time.Time
}

// ListRoomMessages returns the room's messages with author usernames,
// ordered by creation time ascending.
func (s *GormStore) ListRoomMessages(roomID string) ([]domain.Message, error) {
	var rows []messageRow
	err := s.db.Table("messages").
		Select("messages.id, messages.room_id, messages.user_id, users.username, messages.content, messages.image_url, messages.created_at").
		Joins("JOIN users ON users.id = messages.user_id").
		Where("messages.room_id = ?", roomID).
		Order("messages.created_at ASC, messages.id ASC").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	res := make([]domain.Message, 0, len(rows))
	for _, r := range rows {
		res = append(res, domain.Message{
			ID:        r.ID,
			RoomID:    r.RoomID,
			UserID:    r.UserID,
			Username:  r.Username,
			Content:   r.Content,
			ImageURL:  r.ImageURL,
			CreatedAt: r.CreatedAt,
		})
	}
	return res, nil
}

func userToModel(u domain.User) UserModel {
	return UserModel{
		ID:           u.ID,
		Username:     u.Username,
		PasswordHash: u.PasswordHash,
		CreatedAt:    u.CreatedAt,
	}
}

func userFromModel(m UserModel) domain.User {
	return domain.User{
		ID:           m.ID,
		Username:     m.Username,
		PasswordHash: m.PasswordHash,
		CreatedAt:    m.CreatedAt,
	}
}

func roomToModel(r domain.Room) RoomModel {
	return RoomModel{
		ID:        r.ID,
		Name:      r.Name,
		Type:      string(r.Type),
		CreatorID: r.CreatorID,
		CreatedAt: r.CreatedAt,
	}
}

func roomFromModel(m RoomModel) domain.Room {
	return domain.Room{
		ID:        m.ID,
		Name:      m.Name,
		Type:      domain.RoomType(m.Type),
		CreatorID: m.CreatorID,
		CreatedAt: m.CreatedAt,
	}
}

func roomsFromModels(models []RoomModel) []domain.Room {
	res := make([]domain.Room, 0, len(models))
	for _, m := range models {
		res = append(res, roomFromModel(m))
	}
	return res
}
