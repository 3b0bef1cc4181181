package store

import (
	"sort"
	"sync"

	"roomchat/pkg/domain"
)

// MemoryStore keeps all state in-process. It mirrors the GormStore's
// conflict semantics so tests exercise the same error paths.
type MemoryStore struct {
	mu        sync.RWMutex
	users     map[string]domain.User // key: user ID
	usernames map[string]string      // username -> user ID
	rooms     map[string]domain.Room // key: room ID
	roomNames map[string]string      // name -> room ID
	members   map[string][]domain.RoomMember // key: room ID, join order
	contacts  map[string][]domain.Contact    // key: owner user ID, added order
	messages  map[string][]domain.Message    // key: room ID, insertion order
}

// NewMemoryStore initializes an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		users:     make(map[string]domain.User),
		usernames: make(map[string]string),
		rooms:     make(map[string]domain.Room),
		roomNames: make(map[string]string),
		members:   make(map[string][]domain.RoomMember),
		contacts:  make(map[string][]domain.Contact),
		messages:  make(map[string][]domain.Message),
	}
}

func (m *MemoryStore) CreateUser(u domain.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.usernames[u.Username]; exists {
		return ErrConflict
	}
	m.users[u.ID] = u
	m.usernames[u.Username] = u.ID
	return nil
}

func (m *MemoryStore) GetUserByUsername(username string) (domain.User, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if id, ok := m.usernames[username]; ok {
		u, exists := m.users[id]
		return u, exists, nil
	}
	return domain.User{}, false, nil
}

func (m *MemoryStore) GetUserByID(id string) (domain.User, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	u, ok := m.users[id]
	return u, ok, nil
}

func (m *MemoryStore) CreateRoom(r domain.Room) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.roomNames[r.Name]; exists {
		return ErrConflict
	}
	m.rooms[r.ID] = r
	m.roomNames[r.Name] = r.ID
	return nil
}

func (m *MemoryStore) GetRoom(id string) (domain.Room, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	r, ok := m.rooms[id]
	return r, ok, nil
}

func (m *MemoryStore) GetRoomByName(name string) (domain.Room, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if id, ok := m.roomNames[name]; ok {
		r, exists := m.rooms[id]
		return r, exists, nil
	}
	return domain.Room{}, false, nil
}

func (m *MemoryStore) ListPublicRooms() ([]domain.Room, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	res := make([]domain.Room, 0)
	for _, r := range m.rooms {
		if r.Type == domain.RoomPublic {
			res = append(res, r)
		}
	}
	sort.Slice(res, func(i, j int) bool { return res[i].CreatedAt.Before(res[j].CreatedAt) })
	return res, nil
}

func (m *MemoryStore) ListRoomsByMember(userID string) ([]domain.Room, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	type joined struct {
		room   domain.Room
		member domain.RoomMember
	}
	var rows []joined
	for roomID, members := range m.members {
		for _, member := range members {
			if member.UserID != userID {
				continue
			}
			if r, ok := m.rooms[roomID]; ok {
				rows = append(rows, joined{room: r, member: member})
			}
		}
	}
	sort.SliceStable(rows, func(i, j int) bool {
		return rows[i].member.JoinedAt.Before(rows[j].member.JoinedAt)
	})
	res := make([]domain.Room, 0, len(rows))
	for _, row := range rows {
		res = append(res, row.room)
	}
	return res, nil
}

func (m *MemoryStore) AddRoomMember(member domain.RoomMember) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, existing := range m.members[member.RoomID] {
		if existing.UserID == member.UserID {
			return ErrConflict
		}
	}
	m.members[member.RoomID] = append(m.members[member.RoomID], member)
	return nil
}

func (m *MemoryStore) IsRoomMember(roomID, userID string) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, member := range m.members[roomID] {
		if member.UserID == userID {
			return true, nil
		}
	}
	return false, nil
}

func (m *MemoryStore) CountRoomMembers(roomID string) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.members[roomID]), nil
}

func (m *MemoryStore) CreateContact(c domain.Contact) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, existing := range m.contacts[c.UserID] {
		if existing.ContactUserID == c.ContactUserID {
			return ErrConflict
		}
	}
	m.contacts[c.UserID] = append(m.contacts[c.UserID], c)
	return nil
}

func (m *MemoryStore) HasContact(userID, contactUserID string) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, c := range m.contacts[userID] {
		if c.ContactUserID == contactUserID {
			return true, nil
		}
	}
	return false, nil
}

func (m *MemoryStore) ListContactsByOwner(userID string) ([]domain.Contact, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	res := make([]domain.Contact, len(m.contacts[userID]))
	copy(res, m.contacts[userID])
	return res, nil
}

func (m *MemoryStore) CreateMessage(msg domain.Message) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.messages[msg.RoomID] = append(m.messages[msg.RoomID], msg)
	return nil
}

func (m *MemoryStore) ListRoomMessages(roomID string) ([]domain.Message, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	res := make([]domain.Message, len(m.messages[roomID]))
	copy(res, m.messages[roomID])
	sort.SliceStable(res, func(i, j int) bool { return res[i].CreatedAt.Before(res[j].CreatedAt) })
	for i := range res {
		if u, ok := m.users[res[i].UserID]; ok {
			res[i].Username = u.Username
		}
	}
	return res, nil
}
