package app

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"roomchat/internal/store"
	"roomchat/internal/util"
	"roomchat/pkg/domain"
)

// ContactView is a contact row with the target's username resolved.
type ContactView struct {
	domain.Contact
	Username string
}

// ListContacts returns the user's contacts in added order.
func (a *App) ListContacts(user domain.User) ([]ContactView, error) {
	contacts, err := a.store.ListContactsByOwner(user.ID)
	if err != nil {
		return nil, fmt.Errorf("list contacts: %w", err)
	}
	views := make([]ContactView, 0, len(contacts))
	for _, c := range contacts {
		target, ok, err := a.store.GetUserByID(c.ContactUserID)
		if err != nil {
			return nil, fmt.Errorf("fetch contact user: %w", err)
		}
		view := ContactView{Contact: c}
		if ok {
			view.Username = target.Username
		}
		views = append(views, view)
	}
	return views, nil
}

// SearchUser looks up a user by exact username. The caller cannot search
// for themselves.
func (a *App) SearchUser(user domain.User, username string) (domain.User, error) {
	username = strings.TrimSpace(username)
	if username == "" {
		return domain.User{}, ErrUsernameRequired
	}
	target, ok, err := a.store.GetUserByUsername(username)
	if err != nil {
		return domain.User{}, fmt.Errorf("fetch user: %w", err)
	}
	if !ok {
		return domain.User{}, ErrUserNotFound
	}
	if target.ID == user.ID {
		return domain.User{}, ErrSelfContact
	}
	return target, nil
}

// AddContact records the target in the user's contact list and binds the
// pair to their shared private room, creating it on first contact from
// either direction.
func (a *App) AddContact(user domain.User, targetUsername string) (ContactView, error) {
	target, err := a.SearchUser(user, targetUsername)
	if err != nil {
		return ContactView{}, err
	}
	exists, err := a.store.HasContact(user.ID, target.ID)
	if err != nil {
		return ContactView{}, fmt.Errorf("check contact: %w", err)
	}
	if exists {
		return ContactView{}, ErrAlreadyContact
	}

	room, err := a.ensurePairRoom(user, target)
	if err != nil {
		return ContactView{}, err
	}

	contact := domain.Contact{
		ID:            util.NewID(),
		UserID:        user.ID,
		ContactUserID: target.ID,
		RoomID:        room.ID,
		AddedAt:       time.Now().UTC(),
	}
	if err := a.store.CreateContact(contact); err != nil {
		if errors.Is(err, store.ErrConflict) {
			return ContactView{}, ErrAlreadyContact
		}
		return ContactView{}, fmt.Errorf("save contact: %w", err)
	}
	return ContactView{Contact: contact, Username: target.Username}, nil
}

// ensurePairRoom finds or creates the private room shared by the two
// users and makes sure both are members.
func (a *App) ensurePairRoom(user, target domain.User) (domain.Room, error) {
	name := pairRoomName(user.Username, target.Username)
	room, ok, err := a.store.GetRoomByName(name)
	if err != nil {
		return domain.Room{}, fmt.Errorf("lookup pair room: %w", err)
	}
	if !ok {
		room = domain.Room{
			ID:        util.NewID(),
			Name:      name,
			Type:      domain.RoomPrivate,
			CreatorID: user.ID,
			CreatedAt: time.Now().UTC(),
		}
		if err := a.store.CreateRoom(room); err != nil {
			if !errors.Is(err, store.ErrConflict) {
				return domain.Room{}, fmt.Errorf("create pair room: %w", err)
			}
			// The other side created it concurrently; reuse theirs.
			room, ok, err = a.store.GetRoomByName(name)
			if err != nil || !ok {
				return domain.Room{}, fmt.Errorf("refetch pair room: %w", err)
			}
		}
	}
	if err := a.addMember(room.ID, user.ID); err != nil {
		return domain.Room{}, err
	}
	if err := a.addMember(room.ID, target.ID); err != nil {
		return domain.Room{}, err
	}
	return room, nil
}

// pairRoomName derives a canonical private room name for two usernames.
// Sorting makes the name independent of who adds whom, so A->B and B->A
// always land in the same room.
func pairRoomName(a, b string) string {
	if b < a {
		a, b = b, a
	}
	return a + "-" + b
}
