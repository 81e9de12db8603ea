package auth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"lingo/internal/fileutil"
	"lingo/internal/logging"
	"lingo/internal/watcher"
)

// ErrNotSignedIn is returned when an operation needs a user and there is none.
var ErrNotSignedIn = errors.New("not signed in: run `lingo login`")

// User is the signed-in account.
type User struct {
	ID       string    `json:"id"`
	Username string    `json:"username"`
	Email    string    `json:"email,omitempty"`
	Token    string    `json:"token,omitempty"`
	SignedIn time.Time `json:"signed_in_at,omitempty"`
}

// Authenticator verifies credentials against the backend.
type Authenticator interface {
	Login(ctx context.Context, username, password string) (User, error)
}

// Session is the sign-in state shared by the CLI and the chat screen. It is
// backed by a file so other lingo processes see logins and logouts.
type Session struct {
	path string

	mu       sync.RWMutex
	user     *User
	onChange func(User, bool)
	watcher  *watcher.Watcher
}

// NewSession creates a signed-out session persisted at path.
func NewSession(path string) *Session {
	return &Session{path: path}
}

// Restore loads the persisted user, if any. A missing file leaves the session
// signed out.
func (s *Session) Restore() error {
	user, err := s.read()
	if err != nil {
		return err
	}

	s.mu.Lock()
	s.user = user
	s.mu.Unlock()
	return nil
}

func (s *Session) read() (*User, error) {
	data, err := os.ReadFile(s.path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read session: %w", err)
	}

	var u User
	if err := json.Unmarshal(data, &u); err != nil {
		return nil, fmt.Errorf("parse session %s: %w", s.path, err)
	}
	if u.ID == "" {
		return nil, nil
	}
	return &u, nil
}

// Login authenticates and persists the user.
func (s *Session) Login(ctx context.Context, a Authenticator, username, password string) (User, error) {
	username = strings.TrimSpace(username)
	if username == "" || password == "" {
		return User{}, errors.New("username and password are required")
	}

	u, err := a.Login(ctx, username, password)
	if err != nil {
		return User{}, fmt.Errorf("login: %w", err)
	}
	if u.Username == "" {
		u.Username = username
	}
	u.SignedIn = time.Now().UTC()

	data, err := json.MarshalIndent(u, "", "  ")
	if err != nil {
		return User{}, err
	}
	if err := fileutil.AtomicWrite(s.path, data, 0600); err != nil {
		return User{}, fmt.Errorf("save session: %w", err)
	}

	s.mu.Lock()
	s.user = &u
	s.mu.Unlock()

	logging.Info("signed in", "user_id", u.ID, "username", u.Username)
	return u, nil
}

// Logout removes the persisted session.
func (s *Session) Logout() error {
	if err := fileutil.RemoveIfExists(s.path); err != nil {
		return fmt.Errorf("remove session: %w", err)
	}
	s.Clear()
	return nil
}

// Clear forgets the user in memory only.
func (s *Session) Clear() {
	s.mu.Lock()
	s.user = nil
	s.mu.Unlock()
}

// User returns the signed-in user.
func (s *Session) User() (User, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.user == nil {
		return User{}, false
	}
	return *s.user, true
}

// UserID returns the signed-in user's id or ErrNotSignedIn.
func (s *Session) UserID() (string, error) {
	u, ok := s.User()
	if !ok {
		return "", ErrNotSignedIn
	}
	return u.ID, nil
}

// Token returns the signed-in user's access token, or "".
func (s *Session) Token() string {
	u, _ := s.User()
	return u.Token
}

// Watch reloads the session whenever the file changes on disk and reports
// the new state to onChange. A later call replaces the earlier watch.
func (s *Session) Watch(onChange func(User, bool)) error {
	w, err := watcher.NewWatcher(watcher.DefaultConfig(), s.path)
	if err != nil {
		return fmt.Errorf("watch session: %w", err)
	}
	w.SetOnFileChange(func(path string, op watcher.Operation) {
		s.reload(op)
	})

	s.mu.Lock()
	prev := s.watcher
	s.onChange = onChange
	s.watcher = w
	s.mu.Unlock()

	if prev != nil {
		if err := prev.Stop(); err != nil {
			logging.Debug("previous session watch did not stop cleanly", "error", err)
		}
	}
	return w.Start()
}

// Watching reports whether the session file is being watched.
func (s *Session) Watching() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.watcher != nil && s.watcher.IsRunning()
}

func (s *Session) reload(op watcher.Operation) {
	user, err := s.read()
	if err != nil {
		logging.Warn("session file unreadable", "op", op.String(), "error", err)
		return
	}

	s.mu.Lock()
	s.user = user
	handler := s.onChange
	s.mu.Unlock()

	if handler != nil {
		if user == nil {
			handler(User{}, false)
		} else {
			handler(*user, true)
		}
	}
}

// Close stops watching the session file.
func (s *Session) Close() error {
	s.mu.Lock()
	w := s.watcher
	s.watcher = nil
	s.mu.Unlock()

	if w == nil {
		return nil
	}
	return w.Stop()
}
