package server

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/cookiejar"
	"net/http/httptest"
	"regexp"
	"strings"
	"sync"
	"testing"

	"roomchat/internal/app"
	"roomchat/internal/store"
)

type nullBlobs struct {
	mu   sync.Mutex
	keys []string
}

func (n *nullBlobs) Put(_ context.Context, key string, r io.Reader, _ int64, _ string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.keys = append(n.keys, key)
	_, err := io.Copy(io.Discard, r)
	return err
}

func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()
	appCore, err := app.New(app.Config{
		Store:    store.NewMemoryStore(),
		Sessions: store.NewMemorySessionStore(),
		Blobs:    &nullBlobs{},
	})
	if err != nil {
		t.Fatalf("new app: %v", err)
	}
	srv, err := New(Config{App: appCore})
	if err != nil {
		t.Fatalf("new server: %v", err)
	}
	ts := httptest.NewServer(srv.Router())
	t.Cleanup(ts.Close)
	return ts
}

// newClient returns a cookie-jar client so the session cookie round-trips.
func newClient(t *testing.T) *http.Client {
	t.Helper()
	jar, err := cookiejar.New(nil)
	if err != nil {
		t.Fatalf("cookie jar: %v", err)
	}
	return &http.Client{Jar: jar}
}

func postJSON(t *testing.T, client *http.Client, url string, body any) *http.Response {
	t.Helper()
	payload, err := json.Marshal(body)
	if err != nil {
		t.Fatalf("marshal body: %v", err)
	}
	resp, err := client.Post(url, "application/json", bytes.NewReader(payload))
	if err != nil {
		t.Fatalf("POST %s: %v", url, err)
	}
	return resp
}

func decodeBody(t *testing.T, resp *http.Response, out any) {
	t.Helper()
	defer resp.Body.Close()
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		t.Fatalf("decode response: %v", err)
	}
}

func register(t *testing.T, client *http.Client, baseURL, username string) {
	t.Helper()
	resp := postJSON(t, client, baseURL+"/api/register", map[string]string{
		"username": username,
		"password": "secret123",
	})
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("register %s: status %d", username, resp.StatusCode)
	}
}

func TestRegisterWhoamiAndDuplicate(t *testing.T) {
	ts := newTestServer(t)
	client := newClient(t)

	register(t, client, ts.URL, "alice")

	resp, err := client.Get(ts.URL + "/api/user")
	if err != nil {
		t.Fatalf("whoami: %v", err)
	}
	var who struct {
		UserID   string `json:"user_id"`
		Username string `json:"username"`
	}
	decodeBody(t, resp, &who)
	if who.Username != "alice" || who.UserID == "" {
		t.Fatalf("unexpected whoami: %+v", who)
	}

	// Duplicate registration conflicts.
	resp = postJSON(t, newClient(t), ts.URL+"/api/register", map[string]string{
		"username": "alice",
		"password": "other",
	})
	resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("duplicate register expected 400, got %d", resp.StatusCode)
	}
}

func TestWhoamiWithoutSession(t *testing.T) {
	ts := newTestServer(t)

	resp, err := http.Get(ts.URL + "/api/user")
	if err != nil {
		t.Fatalf("whoami: %v", err)
	}
	var body struct {
		Error string `json:"error"`
	}
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", resp.StatusCode)
	}
	decodeBody(t, resp, &body)
	if body.Error != "Not logged in" {
		t.Fatalf("unexpected error body: %+v", body)
	}
}

func TestLoginLogoutFlow(t *testing.T) {
	ts := newTestServer(t)
	client := newClient(t)
	register(t, client, ts.URL, "alice")

	resp := postJSON(t, client, ts.URL+"/api/logout", map[string]string{})
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("logout: status %d", resp.StatusCode)
	}
	resp, err := client.Get(ts.URL + "/api/user")
	if err != nil {
		t.Fatalf("whoami after logout: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401 after logout, got %d", resp.StatusCode)
	}

	resp = postJSON(t, client, ts.URL+"/api/login", map[string]string{
		"username": "alice",
		"password": "wrong",
	})
	resp.Body.Close()
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("bad login expected 401, got %d", resp.StatusCode)
	}

	resp = postJSON(t, client, ts.URL+"/api/login", map[string]string{
		"username": "alice",
		"password": "secret123",
	})
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("login: status %d", resp.StatusCode)
	}
}

func TestRoomsRequireSession(t *testing.T) {
	ts := newTestServer(t)
	for _, path := range []string{"/api/rooms", "/api/rooms/public", "/api/contacts"} {
		resp, err := http.Get(ts.URL + path)
		if err != nil {
			t.Fatalf("GET %s: %v", path, err)
		}
		resp.Body.Close()
		if resp.StatusCode != http.StatusUnauthorized {
			t.Fatalf("GET %s expected 401, got %d", path, resp.StatusCode)
		}
	}
}

type roomResponse struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Type        string `json:"type"`
	MemberCount int    `json:"member_count"`
	CreatedAt   string `json:"created_at"`
}

func TestRoomLifecycle(t *testing.T) {
	ts := newTestServer(t)
	client := newClient(t)
	register(t, client, ts.URL, "alice")

	// The bootstrapped public room is listed.
	resp, err := client.Get(ts.URL + "/api/rooms/public")
	if err != nil {
		t.Fatalf("public rooms: %v", err)
	}
	var public []roomResponse
	decodeBody(t, resp, &public)
	if len(public) != 1 || public[0].Name != app.DefaultPublicRoomName {
		t.Fatalf("unexpected public rooms: %+v", public)
	}
	timestampRe := regexp.MustCompile(`^\d{4}-\d{2}-\d{2} \d{2}:\d{2}:\d{2}$`)
	if !timestampRe.MatchString(public[0].CreatedAt) {
		t.Fatalf("created_at format: %q", public[0].CreatedAt)
	}

	// Create a room; the creator is its first member.
	resp = postJSON(t, client, ts.URL+"/api/rooms", map[string]string{
		"name": "Team", "type": "public",
	})
	var created struct {
		Success bool         `json:"success"`
		Room    roomResponse `json:"room"`
	}
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("create room: status %d", resp.StatusCode)
	}
	decodeBody(t, resp, &created)
	if !created.Success || created.Room.MemberCount != 1 {
		t.Fatalf("unexpected create response: %+v", created)
	}

	// Duplicate name and empty name are validation failures.
	for _, body := range []map[string]string{
		{"name": "Team", "type": "public"},
		{"name": "   "},
	} {
		resp = postJSON(t, client, ts.URL+"/api/rooms", body)
		resp.Body.Close()
		if resp.StatusCode != http.StatusBadRequest {
			t.Fatalf("create room %v expected 400, got %d", body, resp.StatusCode)
		}
	}

	// Another user joins; joining twice conflicts, unknown room is 404.
	bob := newClient(t)
	register(t, bob, ts.URL, "bob")
	resp, err = bob.Post(ts.URL+"/api/rooms/"+created.Room.ID+"/join", "application/json", nil)
	if err != nil {
		t.Fatalf("join: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("join: status %d", resp.StatusCode)
	}
	resp, err = bob.Post(ts.URL+"/api/rooms/"+created.Room.ID+"/join", "application/json", nil)
	if err != nil {
		t.Fatalf("second join: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("second join expected 400, got %d", resp.StatusCode)
	}
	resp, err = bob.Post(ts.URL+"/api/rooms/missing/join", "application/json", nil)
	if err != nil {
		t.Fatalf("join missing: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("join missing expected 404, got %d", resp.StatusCode)
	}

	// Both sides see the room with two members.
	resp, err = bob.Get(ts.URL + "/api/rooms")
	if err != nil {
		t.Fatalf("my rooms: %v", err)
	}
	var mine []roomResponse
	decodeBody(t, resp, &mine)
	if len(mine) != 1 || mine[0].MemberCount != 2 {
		t.Fatalf("unexpected my rooms: %+v", mine)
	}
}

type messageResponse struct {
	ID        string `json:"id"`
	Content   string `json:"content"`
	ImageURL  string `json:"image_url"`
	Username  string `json:"username"`
	UserID    string `json:"user_id"`
	CreatedAt string `json:"created_at"`
}

func postMultipartMessage(t *testing.T, client *http.Client, url, content, imageName string, imageData []byte) *http.Response {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	if err := mw.WriteField("content", content); err != nil {
		t.Fatalf("write content field: %v", err)
	}
	if imageName != "" {
		part, err := mw.CreateFormFile("image", imageName)
		if err != nil {
			t.Fatalf("create image part: %v", err)
		}
		if _, err := part.Write(imageData); err != nil {
			t.Fatalf("write image part: %v", err)
		}
	}
	if err := mw.Close(); err != nil {
		t.Fatalf("close multipart writer: %v", err)
	}
	resp, err := client.Post(url, mw.FormDataContentType(), &buf)
	if err != nil {
		t.Fatalf("POST %s: %v", url, err)
	}
	return resp
}

func createRoom(t *testing.T, client *http.Client, baseURL, name string) string {
	t.Helper()
	resp := postJSON(t, client, baseURL+"/api/rooms", map[string]string{
		"name": name, "type": "private",
	})
	var created struct {
		Room roomResponse `json:"room"`
	}
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("create room %s: status %d", name, resp.StatusCode)
	}
	decodeBody(t, resp, &created)
	return created.Room.ID
}

func TestMessageLifecycle(t *testing.T) {
	ts := newTestServer(t)
	alice := newClient(t)
	register(t, alice, ts.URL, "alice")
	roomID := createRoom(t, alice, ts.URL, "Team")
	messagesURL := ts.URL + "/api/rooms/" + roomID + "/messages"

	// Empty post is rejected.
	resp := postMultipartMessage(t, alice, messagesURL, "   ", "", nil)
	resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("empty message expected 400, got %d", resp.StatusCode)
	}

	// Text message.
	resp = postMultipartMessage(t, alice, messagesURL, "hello", "", nil)
	var posted struct {
		Success bool            `json:"success"`
		Message messageResponse `json:"message"`
	}
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("post message: status %d", resp.StatusCode)
	}
	decodeBody(t, resp, &posted)
	if posted.Message.Content != "hello" || posted.Message.Username != "alice" {
		t.Fatalf("unexpected message: %+v", posted.Message)
	}

	// Image-only message.
	resp = postMultipartMessage(t, alice, messagesURL, "", "pic.png", []byte("png-bytes"))
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("post image message: status %d", resp.StatusCode)
	}
	decodeBody(t, resp, &posted)
	if posted.Message.Content != "" || !strings.HasPrefix(posted.Message.ImageURL, "/static/uploads/") {
		t.Fatalf("unexpected image message: %+v", posted.Message)
	}

	// Unsupported attachment type.
	resp = postMultipartMessage(t, alice, messagesURL, "", "x.exe", []byte("mz"))
	resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("exe upload expected 400, got %d", resp.StatusCode)
	}

	// Listing returns both messages in order.
	resp2, err := alice.Get(messagesURL)
	if err != nil {
		t.Fatalf("list messages: %v", err)
	}
	var messages []messageResponse
	decodeBody(t, resp2, &messages)
	if len(messages) != 2 {
		t.Fatalf("expected 2 messages, got %d", len(messages))
	}
	if messages[0].Content != "hello" || messages[1].ImageURL == "" {
		t.Fatalf("unexpected order: %+v", messages)
	}

	// Non-members are forbidden, unknown rooms are 404.
	mallory := newClient(t)
	register(t, mallory, ts.URL, "mallory")
	resp3, err := mallory.Get(messagesURL)
	if err != nil {
		t.Fatalf("forbidden list: %v", err)
	}
	resp3.Body.Close()
	if resp3.StatusCode != http.StatusForbidden {
		t.Fatalf("non-member list expected 403, got %d", resp3.StatusCode)
	}
	resp = postMultipartMessage(t, mallory, messagesURL, "hi", "", nil)
	resp.Body.Close()
	if resp.StatusCode != http.StatusForbidden {
		t.Fatalf("non-member post expected 403, got %d", resp.StatusCode)
	}
	resp4, err := mallory.Get(ts.URL + "/api/rooms/missing/messages")
	if err != nil {
		t.Fatalf("missing room list: %v", err)
	}
	resp4.Body.Close()
	if resp4.StatusCode != http.StatusNotFound {
		t.Fatalf("missing room expected 404, got %d", resp4.StatusCode)
	}
}

func TestContactFlow(t *testing.T) {
	ts := newTestServer(t)
	alice := newClient(t)
	register(t, alice, ts.URL, "alice")
	bob := newClient(t)
	register(t, bob, ts.URL, "bob")

	// Search validation.
	for path, want := range map[string]int{
		"/api/contacts/search?username=":      http.StatusBadRequest,
		"/api/contacts/search?username=ghost": http.StatusNotFound,
		"/api/contacts/search?username=alice": http.StatusBadRequest,
		"/api/contacts/search?username=bob":   http.StatusOK,
	} {
		resp, err := alice.Get(ts.URL + path)
		if err != nil {
			t.Fatalf("GET %s: %v", path, err)
		}
		resp.Body.Close()
		if resp.StatusCode != want {
			t.Fatalf("GET %s expected %d, got %d", path, want, resp.StatusCode)
		}
	}

	resp := postJSON(t, alice, ts.URL+"/api/contacts", map[string]string{"username": "bob"})
	var added struct {
		Success bool   `json:"success"`
		Message string `json:"message"`
		Contact struct {
			ID       string `json:"id"`
			Username string `json:"username"`
			UserID   string `json:"user_id"`
			RoomID   string `json:"room_id"`
		} `json:"contact"`
	}
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("add contact: status %d", resp.StatusCode)
	}
	decodeBody(t, resp, &added)
	if !added.Success || added.Message != "Added bob to contacts" {
		t.Fatalf("unexpected add response: %+v", added)
	}
	if added.Contact.Username != "bob" || added.Contact.RoomID == "" {
		t.Fatalf("unexpected contact: %+v", added.Contact)
	}

	// The pair room is immediately usable by both sides.
	pairMessages := ts.URL + "/api/rooms/" + added.Contact.RoomID + "/messages"
	for name, client := range map[string]*http.Client{"alice": alice, "bob": bob} {
		resp := postMultipartMessage(t, client, pairMessages, fmt.Sprintf("hi from %s", name), "", nil)
		resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			t.Fatalf("%s post to pair room: status %d", name, resp.StatusCode)
		}
	}

	// Duplicate add conflicts; both directions share the room.
	resp = postJSON(t, alice, ts.URL+"/api/contacts", map[string]string{"username": "bob"})
	resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("duplicate contact expected 400, got %d", resp.StatusCode)
	}
	resp = postJSON(t, bob, ts.URL+"/api/contacts", map[string]string{"username": "alice"})
	var reverse struct {
		Contact struct {
			RoomID string `json:"room_id"`
		} `json:"contact"`
	}
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("reverse contact: status %d", resp.StatusCode)
	}
	decodeBody(t, resp, &reverse)
	if reverse.Contact.RoomID != added.Contact.RoomID {
		t.Fatalf("reverse direction should reuse the pair room: %q vs %q", reverse.Contact.RoomID, added.Contact.RoomID)
	}

	// Contact listing.
	resp5, err := alice.Get(ts.URL + "/api/contacts")
	if err != nil {
		t.Fatalf("list contacts: %v", err)
	}
	var contacts []struct {
		Username string `json:"username"`
		RoomID   string `json:"room_id"`
	}
	decodeBody(t, resp5, &contacts)
	if len(contacts) != 1 || contacts[0].Username != "bob" {
		t.Fatalf("unexpected contacts: %+v", contacts)
	}
}
