package server

import (
	"time"

	"roomchat/internal/app"
	"roomchat/pkg/domain"
)

// Wire DTOs. Timestamps are formatted as "YYYY-MM-DD HH:MM:SS" in UTC.

const timeFormat = "2006-01-02 15:04:05"

func formatTime(t time.Time) string {
	return t.UTC().Format(timeFormat)
}

type roomJSON struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Type        string `json:"type"`
	MemberCount int    `json:"member_count"`
	CreatedAt   string `json:"created_at"`
}

func roomToJSON(r app.RoomView) roomJSON {
	return roomJSON{
		ID:          r.ID,
		Name:        r.Name,
		Type:        string(r.Type),
		MemberCount: r.MemberCount,
		CreatedAt:   formatTime(r.CreatedAt),
	}
}

func roomsJSON(rooms []app.RoomView) []roomJSON {
	res := make([]roomJSON, 0, len(rooms))
	for _, r := range rooms {
		res = append(res, roomToJSON(r))
	}
	return res
}

type messageJSON struct {
	ID        string `json:"id"`
	Content   string `json:"content"`
	ImageURL  string `json:"image_url"`
	Username  string `json:"username"`
	UserID    string `json:"user_id"`
	CreatedAt string `json:"created_at"`
}

func messageToJSON(m domain.Message) messageJSON {
	return messageJSON{
		ID:        m.ID,
		Content:   m.Content,
		ImageURL:  m.ImageURL,
		Username:  m.Username,
		UserID:    m.UserID,
		CreatedAt: formatTime(m.CreatedAt),
	}
}

func messagesJSON(messages []domain.Message) []messageJSON {
	res := make([]messageJSON, 0, len(messages))
	for _, m := range messages {
		res = append(res, messageToJSON(m))
	}
	return res
}

type contactJSON struct {
	ID       string `json:"id"`
	Username string `json:"username"`
	UserID   string `json:"user_id"`
	RoomID   string `json:"room_id"`
	AddedAt  string `json:"added_at"`
}

func contactsJSON(contacts []app.ContactView) []contactJSON {
	res := make([]contactJSON, 0, len(contacts))
	for _, c := range contacts {
		res = append(res, contactJSON{
			ID:       c.ID,
			Username: c.Username,
			UserID:   c.ContactUserID,
			RoomID:   c.RoomID,
			AddedAt:  formatTime(c.AddedAt),
		})
	}
	return res
}
