package server

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"roomchat/internal/app"
	"roomchat/internal/media"
	"roomchat/internal/util"
	"roomchat/pkg/domain"
)

const defaultSessionCookie = "session_token"

// multipartMemoryLimit is the in-memory parse budget for uploads; larger
// parts spill to temp files.
const multipartMemoryLimit = 32 << 20

// Config wires required dependencies for the HTTP server.
type Config struct {
	App               *app.App
	SessionCookieName string
	SessionTTL        time.Duration
	CookieSecure      bool
	MaxUploadBytes    int64
	TrustedProxyCIDRs []string
}

// Server exposes the HTTP endpoints for the chat backend.
type Server struct {
	app            *app.App
	mux            *http.ServeMux
	cookieName     string
	cookieSecure   bool
	sessionTTL     time.Duration
	maxUploadBytes int64
	trustedProxies *util.TrustedProxies
}

// New constructs the server with routes configured.
func New(cfg Config) (*Server, error) {
	cookieName := strings.TrimSpace(cfg.SessionCookieName)
	if cookieName == "" {
		cookieName = defaultSessionCookie
	}
	sessionTTL := cfg.SessionTTL
	if sessionTTL == 0 {
		sessionTTL = 24 * time.Hour
	}
	maxUpload := cfg.MaxUploadBytes
	if maxUpload <= 0 {
		maxUpload = media.DefaultMaxBytes
	}
	trusted, err := util.NewTrustedProxies(cfg.TrustedProxyCIDRs)
	if err != nil {
		return nil, err
	}
	s := &Server{
		app:            cfg.App,
		mux:            http.NewServeMux(),
		cookieName:     cookieName,
		cookieSecure:   cfg.CookieSecure,
		sessionTTL:     sessionTTL,
		maxUploadBytes: maxUpload,
		trustedProxies: trusted,
	}
	s.routes()
	return s, nil
}

// Router returns the configured handler wrapped in the ambient middleware.
func (s *Server) Router() http.Handler {
	var h http.Handler = s.mux
	h = util.WithRequestLog("roomchat", h)
	h = util.WithRequestID(h)
	h = util.WithCORS(h)
	h = util.WithSecurityHeaders(h)
	return h
}

func (s *Server) routes() {
	s.mux.HandleFunc("/healthz", s.handleHealth)

	// auth
	s.mux.HandleFunc("/api/register", s.handleRegister)
	s.mux.HandleFunc("/api/login", s.handleLogin)
	s.mux.HandleFunc("/api/logout", s.handleLogout)
	s.mux.HandleFunc("/api/user", s.handleWhoami)

	// rooms (auth required)
	s.mux.Handle("/api/rooms", s.authenticated(s.handleRooms))
	s.mux.Handle("/api/rooms/", s.authenticated(s.handleRoomByID))

	// contacts (auth required)
	s.mux.Handle("/api/contacts", s.authenticated(s.handleContacts))
	s.mux.Handle("/api/contacts/search", s.authenticated(s.handleContactSearch))
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// session plumbing

type authHandler func(http.ResponseWriter, *http.Request, domain.User)

func (s *Server) authenticated(next authHandler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user, ok := s.authorize(r)
		if !ok {
			s.audit(r, "session.authorize", "fail")
			writeError(w, http.StatusUnauthorized, app.ErrUnauthenticated.Error())
			return
		}
		next(w, r, user)
	})
}

func (s *Server) authorize(r *http.Request) (domain.User, bool) {
	user, err := s.app.CurrentUser(s.sessionToken(r))
	if err != nil {
		return domain.User{}, false
	}
	return user, true
}

func (s *Server) sessionToken(r *http.Request) string {
	cookie, err := r.Cookie(s.cookieName)
	if err != nil {
		return ""
	}
	return cookie.Value
}

func (s *Server) setSessionCookie(w http.ResponseWriter, token string) {
	http.SetCookie(w, &http.Cookie{
		Name:     s.cookieName,
		Value:    token,
		Path:     "/",
		MaxAge:   int(s.sessionTTL.Seconds()),
		HttpOnly: true,
		Secure:   s.cookieSecure,
		SameSite: http.SameSiteLaxMode,
	})
}

func (s *Server) clearSessionCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     s.cookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   s.cookieSecure,
		SameSite: http.SameSiteLaxMode,
	})
}

// auth handlers

type credentialsRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w)
		return
	}
	var req credentialsRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, 1<<20)).Decode(&req); err != nil {
		s.audit(r, "user.register", "fail", "reason", "invalid_json")
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	user, token, err := s.app.Register(req.Username, req.Password)
	if err != nil {
		s.audit(r, "user.register", "fail", "reason", err.Error())
		writeAppError(w, err)
		return
	}
	s.audit(r, "user.register", "success", "user_id", user.ID)
	s.setSessionCookie(w, token)
	writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"message": "User registered successfully",
	})
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w)
		return
	}
	var req credentialsRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, 1<<20)).Decode(&req); err != nil {
		s.audit(r, "user.login", "fail", "reason", "invalid_json")
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	user, token, err := s.app.Login(req.Username, req.Password)
	if err != nil {
		s.audit(r, "user.login", "fail", "reason", err.Error())
		writeAppError(w, err)
		return
	}
	s.audit(r, "user.login", "success", "user_id", user.ID)
	s.setSessionCookie(w, token)
	writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"message": "Logged in successfully",
	})
}

func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w)
		return
	}
	if err := s.app.Logout(s.sessionToken(r)); err != nil {
		s.audit(r, "user.logout", "fail", "reason", err.Error())
		writeAppError(w, err)
		return
	}
	s.audit(r, "user.logout", "success")
	s.clearSessionCookie(w)
	writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"message": "Logged out successfully",
	})
}

func (s *Server) handleWhoami(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w)
		return
	}
	user, err := s.app.CurrentUser(s.sessionToken(r))
	if err != nil {
		writeError(w, http.StatusUnauthorized, "Not logged in")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"user_id":  user.ID,
		"username": user.Username,
	})
}

// room handlers

type createRoomRequest struct {
	Name string `json:"name"`
	Type string `json:"type"`
}

func (s *Server) handleRooms(w http.ResponseWriter, r *http.Request, user domain.User) {
	switch r.Method {
	case http.MethodGet:
		rooms, err := s.app.ListMyRooms(user)
		if err != nil {
			writeAppError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, roomsJSON(rooms))
	case http.MethodPost:
		var req createRoomRequest
		if err := json.NewDecoder(io.LimitReader(r.Body, 1<<20)).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid JSON body")
			return
		}
		room, err := s.app.CreateRoom(user, req.Name, req.Type)
		if err != nil {
			writeAppError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"success": true,
			"room":    roomToJSON(room),
		})
	default:
		methodNotAllowed(w)
	}
}

// handleRoomByID dispatches /api/rooms/public, /api/rooms/{id}/join, and
// /api/rooms/{id}/messages.
func (s *Server) handleRoomByID(w http.ResponseWriter, r *http.Request, user domain.User) {
	path := strings.TrimPrefix(r.URL.Path, "/api/rooms/")
	if path == "public" {
		s.handlePublicRooms(w, r)
		return
	}
	parts := strings.SplitN(path, "/", 2)
	if len(parts) != 2 || parts[0] == "" {
		http.NotFound(w, r)
		return
	}
	roomID := parts[0]
	switch parts[1] {
	case "join":
		s.handleJoinRoom(w, r, user, roomID)
	case "messages":
		s.handleRoomMessages(w, r, user, roomID)
	default:
		http.NotFound(w, r)
	}
}

func (s *Server) handlePublicRooms(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w)
		return
	}
	rooms, err := s.app.ListPublicRooms()
	if err != nil {
		writeAppError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, roomsJSON(rooms))
}

func (s *Server) handleJoinRoom(w http.ResponseWriter, r *http.Request, user domain.User, roomID string) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w)
		return
	}
	if err := s.app.JoinRoom(user, roomID); err != nil {
		writeAppError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"message": "Joined room successfully",
	})
}

func (s *Server) handleRoomMessages(w http.ResponseWriter, r *http.Request, user domain.User, roomID string) {
	switch r.Method {
	case http.MethodGet:
		messages, err := s.app.ListMessages(user, roomID)
		if err != nil {
			writeAppError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, messagesJSON(messages))
	case http.MethodPost:
		s.handlePostMessage(w, r, user, roomID)
	default:
		methodNotAllowed(w)
	}
}

// handlePostMessage accepts a multipart form with a content field and an
// optional image part.
func (s *Server) handlePostMessage(w http.ResponseWriter, r *http.Request, user domain.User, roomID string) {
	// Allow slack above the image cap so an oversized upload reaches the
	// media handler and gets the proper validation error.
	r.Body = http.MaxBytesReader(w, r.Body, s.maxUploadBytes+(1<<20))
	if err := r.ParseMultipartForm(multipartMemoryLimit); err != nil {
		writeError(w, http.StatusBadRequest, "invalid form data")
		return
	}
	content := r.FormValue("content")

	var image *app.ImageUpload
	file, header, err := r.FormFile("image")
	if err == nil {
		defer file.Close()
		data, readErr := io.ReadAll(file)
		if readErr != nil {
			writeError(w, http.StatusBadRequest, "could not read image")
			return
		}
		image = &app.ImageUpload{Filename: header.Filename, Data: data}
	} else if !errors.Is(err, http.ErrMissingFile) {
		writeError(w, http.StatusBadRequest, "invalid image part")
		return
	}

	msg, err := s.app.PostMessage(r.Context(), user, roomID, content, image)
	if err != nil {
		writeAppError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"message": messageToJSON(msg),
	})
}

// contact handlers

type addContactRequest struct {
	Username string `json:"username"`
}

func (s *Server) handleContacts(w http.ResponseWriter, r *http.Request, user domain.User) {
	switch r.Method {
	case http.MethodGet:
		contacts, err := s.app.ListContacts(user)
		if err != nil {
			writeAppError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, contactsJSON(contacts))
	case http.MethodPost:
		var req addContactRequest
		if err := json.NewDecoder(io.LimitReader(r.Body, 1<<20)).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid JSON body")
			return
		}
		contact, err := s.app.AddContact(user, strings.TrimSpace(req.Username))
		if err != nil {
			writeAppError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"success": true,
			"message": "Added " + contact.Username + " to contacts",
			"contact": map[string]any{
				"id":       contact.ID,
				"username": contact.Username,
				"user_id":  contact.ContactUserID,
				"room_id":  contact.RoomID,
			},
		})
	default:
		methodNotAllowed(w)
	}
}

func (s *Server) handleContactSearch(w http.ResponseWriter, r *http.Request, user domain.User) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w)
		return
	}
	target, err := s.app.SearchUser(user, r.URL.Query().Get("username"))
	if err != nil {
		writeAppError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"id":         target.ID,
		"username":   target.Username,
		"created_at": formatTime(target.CreatedAt),
	})
}

// helpers

func methodNotAllowed(w http.ResponseWriter) {
	writeError(w, http.StatusMethodNotAllowed, "method not allowed")
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// writeAppError maps application sentinel errors onto HTTP statuses.
// Unknown errors surface as a generic failure.
func writeAppError(w http.ResponseWriter, err error) {
	status := statusForError(err)
	if status == http.StatusInternalServerError {
		slog.Error("request failed", "err", err)
		writeError(w, status, "Internal server error")
		return
	}
	writeError(w, status, err.Error())
}

func statusForError(err error) int {
	switch {
	case errors.Is(err, app.ErrUnauthenticated),
		errors.Is(err, app.ErrInvalidCredentials):
		return http.StatusUnauthorized
	case errors.Is(err, app.ErrNotRoomMember):
		return http.StatusForbidden
	case errors.Is(err, app.ErrRoomNotFound),
		errors.Is(err, app.ErrUserNotFound):
		return http.StatusNotFound
	case errors.Is(err, app.ErrCredentialsRequired),
		errors.Is(err, app.ErrUsernameTaken),
		errors.Is(err, app.ErrRoomNameRequired),
		errors.Is(err, app.ErrInvalidRoomType),
		errors.Is(err, app.ErrRoomNameTaken),
		errors.Is(err, app.ErrAlreadyMember),
		errors.Is(err, app.ErrEmptyMessage),
		errors.Is(err, app.ErrUsernameRequired),
		errors.Is(err, app.ErrSelfContact),
		errors.Is(err, app.ErrAlreadyContact),
		errors.Is(err, media.ErrUnsupportedType),
		errors.Is(err, media.ErrTooLarge):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) audit(r *http.Request, event, outcome string, attrs ...any) {
	logAttrs := []any{
		"event", event,
		"outcome", outcome,
		"path", r.URL.Path,
		"method", r.Method,
		"ip", util.ClientIP(r, s.trustedProxies),
		"request_id", util.RequestIDFromRequest(r),
	}
	logAttrs = append(logAttrs, attrs...)
	if outcome == "success" {
		slog.Info("security_event", logAttrs...)
		return
	}
	slog.Warn("security_event", logAttrs...)
}
