package app

import (
	"context"
	"errors"
	"strings"
	"testing"

	"roomchat/internal/media"
	"roomchat/pkg/domain"
)

func TestCreateRoom(t *testing.T) {
	a, _ := newTestApp(t)
	alice, _ := mustRegister(t, a, "alice")

	room, err := a.CreateRoom(alice, "Team", "public")
	if err != nil {
		t.Fatalf("create room: %v", err)
	}
	if room.Type != domain.RoomPublic || room.Name != "Team" {
		t.Fatalf("unexpected room: %+v", room)
	}
	if room.MemberCount != 1 {
		t.Fatalf("creator should be the first member, count=%d", room.MemberCount)
	}

	if _, err := a.CreateRoom(alice, "Team", "public"); !errors.Is(err, ErrRoomNameTaken) {
		t.Fatalf("duplicate name: got %v", err)
	}
	if _, err := a.CreateRoom(alice, "   ", "public"); !errors.Is(err, ErrRoomNameRequired) {
		t.Fatalf("blank name: got %v", err)
	}
	if _, err := a.CreateRoom(alice, "Other", "secret"); !errors.Is(err, ErrInvalidRoomType) {
		t.Fatalf("bad type: got %v", err)
	}
}

func TestCreateRoomDefaultsToPrivate(t *testing.T) {
	a, _ := newTestApp(t)
	alice, _ := mustRegister(t, a, "alice")

	room, err := a.CreateRoom(alice, "Quiet Corner", "")
	if err != nil {
		t.Fatalf("create room: %v", err)
	}
	if room.Type != domain.RoomPrivate {
		t.Fatalf("expected private default, got %s", room.Type)
	}
}

func TestJoinRoom(t *testing.T) {
	a, _ := newTestApp(t)
	alice, _ := mustRegister(t, a, "alice")
	bob, _ := mustRegister(t, a, "bob")
	room, err := a.CreateRoom(alice, "Team", "public")
	if err != nil {
		t.Fatalf("create room: %v", err)
	}

	if err := a.JoinRoom(bob, room.ID); err != nil {
		t.Fatalf("join: %v", err)
	}
	if err := a.JoinRoom(bob, room.ID); !errors.Is(err, ErrAlreadyMember) {
		t.Fatalf("second join: got %v", err)
	}
	if err := a.JoinRoom(bob, "missing-room"); !errors.Is(err, ErrRoomNotFound) {
		t.Fatalf("unknown room: got %v", err)
	}

	rooms, err := a.ListMyRooms(bob)
	if err != nil {
		t.Fatalf("list my rooms: %v", err)
	}
	if len(rooms) != 1 || rooms[0].ID != room.ID {
		t.Fatalf("unexpected room list: %+v", rooms)
	}
	if rooms[0].MemberCount != 2 {
		t.Fatalf("expected 2 members, got %d", rooms[0].MemberCount)
	}
}

func TestListPublicRoomsIncludesDefault(t *testing.T) {
	a, _ := newTestApp(t)
	alice, _ := mustRegister(t, a, "alice")
	if _, err := a.CreateRoom(alice, "Hidden", "private"); err != nil {
		t.Fatalf("create private room: %v", err)
	}

	rooms, err := a.ListPublicRooms()
	if err != nil {
		t.Fatalf("list public rooms: %v", err)
	}
	if len(rooms) != 1 || rooms[0].Name != DefaultPublicRoomName {
		t.Fatalf("unexpected public rooms: %+v", rooms)
	}
}

func TestMessagesRequireMembership(t *testing.T) {
	a, _ := newTestApp(t)
	alice, _ := mustRegister(t, a, "alice")
	mallory, _ := mustRegister(t, a, "mallory")
	room, err := a.CreateRoom(alice, "Team", "private")
	if err != nil {
		t.Fatalf("create room: %v", err)
	}

	if _, err := a.ListMessages(mallory, room.ID); !errors.Is(err, ErrNotRoomMember) {
		t.Fatalf("list as non-member: got %v", err)
	}
	if _, err := a.PostMessage(context.Background(), mallory, room.ID, "hi", nil); !errors.Is(err, ErrNotRoomMember) {
		t.Fatalf("post as non-member: got %v", err)
	}
	if _, err := a.ListMessages(alice, "missing-room"); !errors.Is(err, ErrRoomNotFound) {
		t.Fatalf("list unknown room: got %v", err)
	}
}

func TestPostMessage(t *testing.T) {
	a, _ := newTestApp(t)
	alice, _ := mustRegister(t, a, "alice")
	room, err := a.CreateRoom(alice, "Team", "private")
	if err != nil {
		t.Fatalf("create room: %v", err)
	}
	ctx := context.Background()

	if _, err := a.PostMessage(ctx, alice, room.ID, "   ", nil); !errors.Is(err, ErrEmptyMessage) {
		t.Fatalf("empty message: got %v", err)
	}

	msg, err := a.PostMessage(ctx, alice, room.ID, "  hello  ", nil)
	if err != nil {
		t.Fatalf("post: %v", err)
	}
	if msg.Content != "hello" {
		t.Fatalf("content not trimmed: %q", msg.Content)
	}
	if msg.Username != "alice" {
		t.Fatalf("author username missing: %+v", msg)
	}

	messages, err := a.ListMessages(alice, room.ID)
	if err != nil {
		t.Fatalf("list messages: %v", err)
	}
	if len(messages) != 1 || messages[0].ID != msg.ID {
		t.Fatalf("unexpected messages: %+v", messages)
	}
}

func TestPostMessageWithImageOnly(t *testing.T) {
	a, _ := newTestApp(t)
	alice, _ := mustRegister(t, a, "alice")
	room, err := a.CreateRoom(alice, "Team", "private")
	if err != nil {
		t.Fatalf("create room: %v", err)
	}

	image := &ImageUpload{Filename: "pic.png", Data: []byte("png-bytes")}
	msg, err := a.PostMessage(context.Background(), alice, room.ID, "", image)
	if err != nil {
		t.Fatalf("post image message: %v", err)
	}
	if msg.Content != "" {
		t.Fatalf("image-only message should have empty content, got %q", msg.Content)
	}
	if !strings.HasPrefix(msg.ImageURL, media.URLPrefix) {
		t.Fatalf("image URL prefix: %q", msg.ImageURL)
	}
	if !strings.HasSuffix(msg.ImageURL, "_pic.png") {
		t.Fatalf("image URL should keep the original filename: %q", msg.ImageURL)
	}
}

func TestPostMessageRejectsBadImages(t *testing.T) {
	a, _ := newTestApp(t)
	alice, _ := mustRegister(t, a, "alice")
	room, err := a.CreateRoom(alice, "Team", "private")
	if err != nil {
		t.Fatalf("create room: %v", err)
	}
	ctx := context.Background()

	exe := &ImageUpload{Filename: "x.exe", Data: []byte("mz")}
	if _, err := a.PostMessage(ctx, alice, room.ID, "", exe); !errors.Is(err, media.ErrUnsupportedType) {
		t.Fatalf("exe upload: got %v", err)
	}

	big := &ImageUpload{Filename: "x.png", Data: make([]byte, 15<<20)}
	if _, err := a.PostMessage(ctx, alice, room.ID, "", big); !errors.Is(err, media.ErrTooLarge) {
		t.Fatalf("oversized upload: got %v", err)
	}
}

func TestImageUploadsNeverCollide(t *testing.T) {
	a, _ := newTestApp(t)
	alice, _ := mustRegister(t, a, "alice")
	room, err := a.CreateRoom(alice, "Team", "private")
	if err != nil {
		t.Fatalf("create room: %v", err)
	}
	ctx := context.Background()

	image := &ImageUpload{Filename: "x.png", Data: []byte("same bytes")}
	first, err := a.PostMessage(ctx, alice, room.ID, "", image)
	if err != nil {
		t.Fatalf("first upload: %v", err)
	}
	second, err := a.PostMessage(ctx, alice, room.ID, "", image)
	if err != nil {
		t.Fatalf("second upload: %v", err)
	}
	if first.ImageURL == second.ImageURL {
		t.Fatalf("two uploads of the same file must get distinct references: %q", first.ImageURL)
	}
}
