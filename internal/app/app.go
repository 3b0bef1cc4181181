package app

import (
	"errors"
	"fmt"
	"time"

	"roomchat/internal/media"
	"roomchat/internal/store"
	"roomchat/internal/util"
	"roomchat/pkg/auth"
	"roomchat/pkg/domain"
)

// DefaultPublicRoomName is the room every deployment starts with.
const DefaultPublicRoomName = "Public Room"

// Config holds runtime configuration for the core application.
type Config struct {
	DatabaseURL       string
	RedisAddr         string
	RedisPassword     string
	SessionTTL        time.Duration
	UploadDir         string
	MaxUploadBytes    int64
	AllowedExtensions []string
	PublicRoomName    string

	// Minio settings, used when MediaBackend is "minio".
	MediaBackend   string
	MinioEndpoint  string
	MinioAccessKey string
	MinioSecretKey string
	MinioBucket    string
	MinioUseSSL    bool

	// Injection points for tests.
	Store    store.Store
	Sessions store.SessionStore
	Blobs    media.BlobStore
}

// App is the core application service wiring together storage, sessions,
// and domain logic.
type App struct {
	store    store.Store
	sessions store.SessionStore
	media    *media.Handler
}

// New constructs the application and runs the idempotent default-room
// bootstrap. Bootstrap failures fail startup: it is a migration step, not
// a best-effort per-request hook.
func New(cfg Config) (*App, error) {
	if cfg.SessionTTL == 0 {
		cfg.SessionTTL = 24 * time.Hour
	}
	if cfg.PublicRoomName == "" {
		cfg.PublicRoomName = DefaultPublicRoomName
	}

	dataStore := cfg.Store
	if dataStore == nil {
		if cfg.DatabaseURL == "" {
			return nil, fmt.Errorf("database URL required")
		}
		var err error
		dataStore, err = store.NewGormStore(cfg.DatabaseURL)
		if err != nil {
			return nil, fmt.Errorf("init postgres store: %w", err)
		}
	}

	sessionStore := cfg.Sessions
	if sessionStore == nil {
		if cfg.RedisAddr == "" {
			return nil, fmt.Errorf("session store required (redisAddr)")
		}
		sessionStore = store.NewRedisSessionStore(cfg.RedisAddr, cfg.RedisPassword, cfg.SessionTTL)
	}

	blobs := cfg.Blobs
	if blobs == nil {
		var err error
		switch cfg.MediaBackend {
		case "minio":
			blobs, err = media.NewMinioStore(cfg.MinioEndpoint, cfg.MinioAccessKey, cfg.MinioSecretKey, cfg.MinioBucket, cfg.MinioUseSSL)
		default:
			dir := cfg.UploadDir
			if dir == "" {
				dir = "static/uploads"
			}
			blobs, err = media.NewDiskStore(dir)
		}
		if err != nil {
			return nil, fmt.Errorf("init media store: %w", err)
		}
	}

	a := &App{
		store:    dataStore,
		sessions: sessionStore,
		media:    media.NewHandler(blobs, cfg.MaxUploadBytes, cfg.AllowedExtensions),
	}
	if err := a.ensureDefaultRoom(cfg.PublicRoomName); err != nil {
		return nil, fmt.Errorf("bootstrap default room: %w", err)
	}
	return a, nil
}

// ensureDefaultRoom creates the default public room once. The creator is
// the reserved system identity (empty creator ID), so no registered user
// needs to exist.
func (a *App) ensureDefaultRoom(name string) error {
	_, ok, err := a.store.GetRoomByName(name)
	if err != nil {
		return fmt.Errorf("lookup room: %w", err)
	}
	if ok {
		return nil
	}
	room := domain.Room{
		ID:        util.NewID(),
		Name:      name,
		Type:      domain.RoomPublic,
		CreatorID: "",
		CreatedAt: time.Now().UTC(),
	}
	if err := a.store.CreateRoom(room); err != nil {
		// A concurrent boot already created it.
		if errors.Is(err, store.ErrConflict) {
			return nil
		}
		return fmt.Errorf("create room: %w", err)
	}
	return nil
}

// Register creates a user and establishes a session.
func (a *App) Register(username, password string) (domain.User, string, error) {
	if username == "" || password == "" {
		return domain.User{}, "", ErrCredentialsRequired
	}
	_, exists, err := a.store.GetUserByUsername(username)
	if err != nil {
		return domain.User{}, "", fmt.Errorf("check username: %w", err)
	}
	if exists {
		return domain.User{}, "", ErrUsernameTaken
	}
	passwordHash, err := auth.HashPassword(password)
	if err != nil {
		return domain.User{}, "", fmt.Errorf("hash password: %w", err)
	}
	user := domain.User{
		ID:           util.NewID(),
		Username:     username,
		PasswordHash: passwordHash,
		CreatedAt:    time.Now().UTC(),
	}
	if err := a.store.CreateUser(user); err != nil {
		// Unique constraint backstop for concurrent registrations.
		if errors.Is(err, store.ErrConflict) {
			return domain.User{}, "", ErrUsernameTaken
		}
		return domain.User{}, "", fmt.Errorf("save user: %w", err)
	}
	token, err := a.sessions.NewSession(user.ID)
	if err != nil {
		return domain.User{}, "", fmt.Errorf("issue session: %w", err)
	}
	return user, token, nil
}

// Login validates credentials and issues a session token.
func (a *App) Login(username, password string) (domain.User, string, error) {
	user, ok, err := a.store.GetUserByUsername(username)
	if err != nil {
		return domain.User{}, "", fmt.Errorf("fetch user: %w", err)
	}
	if !ok || !auth.CheckPassword(password, user.PasswordHash) {
		return domain.User{}, "", ErrInvalidCredentials
	}
	token, err := a.sessions.NewSession(user.ID)
	if err != nil {
		return domain.User{}, "", fmt.Errorf("issue session: %w", err)
	}
	return user, token, nil
}

// Logout invalidates the session. Idempotent.
func (a *App) Logout(token string) error {
	if token == "" {
		return nil
	}
	if err := a.sessions.DeleteSession(token); err != nil {
		return fmt.Errorf("delete session: %w", err)
	}
	return nil
}

// CurrentUser resolves a session token to its user.
func (a *App) CurrentUser(token string) (domain.User, error) {
	if token == "" {
		return domain.User{}, ErrUnauthenticated
	}
	userID, ok, err := a.sessions.GetUserIDByToken(token)
	if err != nil {
		return domain.User{}, fmt.Errorf("resolve session: %w", err)
	}
	if !ok {
		return domain.User{}, ErrUnauthenticated
	}
	user, ok, err := a.store.GetUserByID(userID)
	if err != nil {
		return domain.User{}, fmt.Errorf("fetch user: %w", err)
	}
	if !ok {
		return domain.User{}, ErrUnauthenticated
	}
	return user, nil
}
