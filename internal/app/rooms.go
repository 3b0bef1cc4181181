package app

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"roomchat/internal/store"
	"roomchat/internal/util"
	"roomchat/pkg/domain"
)

// RoomView is a room with its member count, the shape the API exposes.
type RoomView struct {
	domain.Room
	MemberCount int
}

// ImageUpload carries a raw uploaded attachment into PostMessage.
type ImageUpload struct {
	Filename string
	Data     []byte
}

// ListMyRooms returns rooms the user is a member of, in join order.
func (a *App) ListMyRooms(user domain.User) ([]RoomView, error) {
	rooms, err := a.store.ListRoomsByMember(user.ID)
	if err != nil {
		return nil, fmt.Errorf("list rooms: %w", err)
	}
	return a.roomViews(rooms)
}

// ListPublicRooms returns all public rooms.
func (a *App) ListPublicRooms() ([]RoomView, error) {
	rooms, err := a.store.ListPublicRooms()
	if err != nil {
		return nil, fmt.Errorf("list public rooms: %w", err)
	}
	return a.roomViews(rooms)
}

// CreateRoom creates a room and adds the creator as its first member.
// An absent type defaults to private.
func (a *App) CreateRoom(user domain.User, name, roomType string) (RoomView, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return RoomView{}, ErrRoomNameRequired
	}
	typ, err := parseRoomType(roomType)
	if err != nil {
		return RoomView{}, err
	}
	_, exists, err := a.store.GetRoomByName(name)
	if err != nil {
		return RoomView{}, fmt.Errorf("check room name: %w", err)
	}
	if exists {
		return RoomView{}, ErrRoomNameTaken
	}
	room := domain.Room{
		ID:        util.NewID(),
		Name:      name,
		Type:      typ,
		CreatorID: user.ID,
		CreatedAt: time.Now().UTC(),
	}
	if err := a.store.CreateRoom(room); err != nil {
		if errors.Is(err, store.ErrConflict) {
			return RoomView{}, ErrRoomNameTaken
		}
		return RoomView{}, fmt.Errorf("save room: %w", err)
	}
	if err := a.addMember(room.ID, user.ID); err != nil {
		return RoomView{}, err
	}
	return RoomView{Room: room, MemberCount: 1}, nil
}

// JoinRoom adds the user to an existing room.
func (a *App) JoinRoom(user domain.User, roomID string) error {
	_, ok, err := a.store.GetRoom(roomID)
	if err != nil {
		return fmt.Errorf("fetch room: %w", err)
	}
	if !ok {
		return ErrRoomNotFound
	}
	err = a.store.AddRoomMember(domain.RoomMember{
		RoomID:   roomID,
		UserID:   user.ID,
		JoinedAt: time.Now().UTC(),
	})
	if errors.Is(err, store.ErrConflict) {
		return ErrAlreadyMember
	}
	if err != nil {
		return fmt.Errorf("add member: %w", err)
	}
	return nil
}

// ListMessages returns a room's messages in creation-time order. Only
// members may read a room.
func (a *App) ListMessages(user domain.User, roomID string) ([]domain.Message, error) {
	if err := a.requireMembership(user, roomID); err != nil {
		return nil, err
	}
	messages, err := a.store.ListRoomMessages(roomID)
	if err != nil {
		return nil, fmt.Errorf("list messages: %w", err)
	}
	return messages, nil
}

// PostMessage appends a message to a room, persisting an attached image
// through the media handler first. Content may be empty only when an
// image is present.
func (a *App) PostMessage(ctx context.Context, user domain.User, roomID, content string, image *ImageUpload) (domain.Message, error) {
	if err := a.requireMembership(user, roomID); err != nil {
		return domain.Message{}, err
	}
	content = strings.TrimSpace(content)
	if content == "" && image == nil {
		return domain.Message{}, ErrEmptyMessage
	}
	var imageURL string
	if image != nil {
		url, err := a.media.Store(ctx, image.Filename, image.Data)
		if err != nil {
			return domain.Message{}, err
		}
		imageURL = url
	}
	msg := domain.Message{
		ID:        util.NewID(),
		RoomID:    roomID,
		UserID:    user.ID,
		Username:  user.Username,
		Content:   content,
		ImageURL:  imageURL,
		CreatedAt: time.Now().UTC(),
	}
	if err := a.store.CreateMessage(msg); err != nil {
		return domain.Message{}, fmt.Errorf("save message: %w", err)
	}
	return msg, nil
}

func (a *App) requireMembership(user domain.User, roomID string) error {
	_, ok, err := a.store.GetRoom(roomID)
	if err != nil {
		return fmt.Errorf("fetch room: %w", err)
	}
	if !ok {
		return ErrRoomNotFound
	}
	member, err := a.store.IsRoomMember(roomID, user.ID)
	if err != nil {
		return fmt.Errorf("check membership: %w", err)
	}
	if !member {
		return ErrNotRoomMember
	}
	return nil
}

// addMember inserts a membership row, treating an existing row as success.
func (a *App) addMember(roomID, userID string) error {
	err := a.store.AddRoomMember(domain.RoomMember{
		RoomID:   roomID,
		UserID:   userID,
		JoinedAt: time.Now().UTC(),
	})
	if err != nil && !errors.Is(err, store.ErrConflict) {
		return fmt.Errorf("add member: %w", err)
	}
	return nil
}

func (a *App) roomViews(rooms []domain.Room) ([]RoomView, error) {
	views := make([]RoomView, 0, len(rooms))
	for _, room := range rooms {
		count, err := a.store.CountRoomMembers(room.ID)
		if err != nil {
			return nil, fmt.Errorf("count members: %w", err)
		}
		views = append(views, RoomView{Room: room, MemberCount: count})
	}
	return views, nil
}

func parseRoomType(raw string) (domain.RoomType, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "":
		return domain.RoomPrivate, nil
	case string(domain.RoomPublic):
		return domain.RoomPublic, nil
	case string(domain.RoomPrivate):
		return domain.RoomPrivate, nil
	default:
		return "", ErrInvalidRoomType
	}
}
