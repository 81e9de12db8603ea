// Package local is the self-contained backend: conversations live in a
// SQLite file and persona replies come from a language model.
package local

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
	_ "modernc.org/sqlite"

	"lingo/internal/chat"
	"lingo/internal/logging"
	"lingo/internal/lookup"
)

// ErrUserExists is returned by CreateUser for a taken username.
var ErrUserExists = errors.New("username already taken")

// Store persists conversations, personas, users and word cards.
type Store struct {
	db     *sql.DB
	dbPath string
	now    func() time.Time
}

type seedPersona struct {
	name, description, avatar string
	tags                      []string
}

var defaultPersonas = []seedPersona{
	{"Polyglot Translator", "fluent in many languages and precise in every translation",
		"https://images.unsplash.com/photo-1543465077-5338d8232588?w=400", []string{"translation", "learning"}},
	{"Code Master", "an expert who untangles programming problems and reviews code",
		"https://images.unsplash.com/photo-1515879218367-8466d910aaa4?w=400", []string{"programming", "tech"}},
	{"Max", "a warm-hearted study buddy with a good sense of humor",
		"https://randomuser.me/api/portraits/men/1.jpg", []string{"default", "AI", "humor"}},
	{"Lily", "a gentle storyteller who loves a good tale",
		"https://randomuser.me/api/portraits/women/2.jpg", []string{"default", "stories", "gentle"}},
}

// Default account created with a fresh database.
const (
	DefaultUsername = "admin"
	DefaultPassword = "admin"
)

// OpenStore opens or creates the database at path and seeds default data.
func OpenStore(path string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return nil, fmt.Errorf("failed to create directory: %w", err)
	}

	dsn := path + "?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	s := &Store{db: db, dbPath: path, now: time.Now}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate: %w", err)
	}
	if err := s.seed(context.Background()); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to seed: %w", err)
	}
	return s, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// Path returns the database file path.
func (s *Store) Path() string {
	return s.dbPath
}

func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS users (
		id TEXT PRIMARY KEY,
		username TEXT NOT NULL UNIQUE,
		email TEXT NOT NULL DEFAULT '',
		password_hash TEXT NOT NULL,
		created_at INTEGER NOT NULL
	);

	CREATE TABLE IF NOT EXISTS characters (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		description TEXT NOT NULL,
		avatar_url TEXT NOT NULL DEFAULT '',
		is_default INTEGER NOT NULL DEFAULT 0,
		tags TEXT NOT NULL DEFAULT '[]',
		created_at INTEGER NOT NULL
	);

	CREATE TABLE IF NOT EXISTS conversations (
		id TEXT PRIMARY KEY,
		title TEXT NOT NULL,
		topic TEXT NOT NULL DEFAULT '',
		summary TEXT NOT NULL DEFAULT '',
		background_url TEXT NOT NULL DEFAULT '',
		user_id TEXT NOT NULL,
		character_id TEXT NOT NULL REFERENCES characters(id),
		updated_at INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_conversations_user ON conversations(user_id);

	CREATE TABLE IF NOT EXISTS messages (
		seq INTEGER PRIMARY KEY AUTOINCREMENT,
		id TEXT NOT NULL UNIQUE,
		conversation_id TEXT NOT NULL REFERENCES conversations(id) ON DELETE CASCADE,
		content TEXT NOT NULL,
		is_user INTEGER NOT NULL,
		created_at INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_messages_conversation ON messages(conversation_id, seq);

	CREATE TABLE IF NOT EXISTS wordcards (
		id TEXT PRIMARY KEY,
		user_id TEXT NOT NULL,
		word TEXT NOT NULL,
		pronunciation TEXT NOT NULL DEFAULT '',
		pos TEXT NOT NULL DEFAULT '',
		context TEXT NOT NULL DEFAULT '',
		created_at INTEGER NOT NULL,
		UNIQUE(user_id, word)
	);
	`
	_, err := s.db.Exec(schema)
	return err
}

func (s *Store) seed(ctx context.Context) error {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM characters WHERE is_default = 1`).Scan(&n); err != nil {
		return err
	}
	if n == 0 {
		for _, p := range defaultPersonas {
			if _, err := s.CreatePersona(ctx, chat.Persona{
				Name:        p.name,
				Description: p.description,
				AvatarURL:   p.avatar,
				IsDefault:   true,
				Tags:        p.tags,
			}); err != nil {
				return err
			}
		}
		logging.Info("seeded default personas", "count", len(defaultPersonas))
	}

	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM users`).Scan(&n); err != nil {
		return err
	}
	if n == 0 {
		if _, err := s.CreateUser(ctx, DefaultUsername, "admin@example.com", DefaultPassword); err != nil {
			return err
		}
	}
	return nil
}

func (s *Store) stamp() int64 {
	return s.now().UTC().UnixNano()
}

func fromStamp(n int64) time.Time {
	return time.Unix(0, n).UTC()
}

// CreatePersona stores a character and returns it with its new id.
func (s *Store) CreatePersona(ctx context.Context, p chat.Persona) (chat.Persona, error) {
	if strings.TrimSpace(p.Name) == "" {
		return chat.Persona{}, errors.New("persona name is required")
	}
	p.ID = uuid.NewString()
	tags, err := json.Marshal(nonNil(p.Tags))
	if err != nil {
		return chat.Persona{}, err
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO characters (id, name, description, avatar_url, is_default, tags, created_at) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		p.ID, p.Name, p.Description, p.AvatarURL, p.IsDefault, string(tags), s.stamp())
	if err != nil {
		return chat.Persona{}, fmt.Errorf("insert persona: %w", err)
	}
	return p, nil
}

// GetPersona returns chat.ErrNotFound for an unknown id.
func (s *Store) GetPersona(ctx context.Context, id string) (*chat.Persona, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, name, description, avatar_url, is_default, tags FROM characters WHERE id = ?`, id)
	p, err := scanPersona(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("persona %q: %w", id, chat.ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return &p, nil
}

// ListPersonas returns the default personas in creation order.
func (s *Store) ListPersonas(ctx context.Context) ([]chat.Persona, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, name, description, avatar_url, is_default, tags FROM characters WHERE is_default = 1 ORDER BY created_at, rowid`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []chat.Persona
	for rows.Next() {
		p, err := scanPersona(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanPersona(r scanner) (chat.Persona, error) {
	var (
		p    chat.Persona
		tags string
	)
	if err := r.Scan(&p.ID, &p.Name, &p.Description, &p.AvatarURL, &p.IsDefault, &tags); err != nil {
		return chat.Persona{}, err
	}
	if err := json.Unmarshal([]byte(tags), &p.Tags); err != nil {
		logging.Warn("persona tags unreadable", "persona_id", p.ID, "error", err)
	}
	if len(p.Tags) == 0 {
		p.Tags = nil
	}
	return p, nil
}

// CreateConversation stores a new conversation for an existing persona.
func (s *Store) CreateConversation(ctx context.Context, req chat.NewConversation) (*chat.Conversation, error) {
	persona, err := s.GetPersona(ctx, req.PersonaID)
	if err != nil {
		return nil, err
	}
	conv := &chat.Conversation{
		ID:        uuid.NewString(),
		PersonaID: persona.ID,
		UserID:    req.UserID,
		Title:     defaultTitle(persona.Name),
		Topic:     strings.TrimSpace(req.Topic),
		UpdatedAt: fromStamp(s.stamp()),
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO conversations (id, title, topic, user_id, character_id, updated_at) VALUES (?, ?, ?, ?, ?, ?)`,
		conv.ID, conv.Title, conv.Topic, conv.UserID, conv.PersonaID, conv.UpdatedAt.UnixNano())
	if err != nil {
		return nil, fmt.Errorf("insert conversation: %w", err)
	}
	return conv, nil
}

func defaultTitle(personaName string) string {
	return "Chat with " + personaName
}

// GetConversation returns chat.ErrNotFound for an unknown id.
func (s *Store) GetConversation(ctx context.Context, id string) (*chat.Conversation, error) {
	var (
		c       chat.Conversation
		updated int64
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT id, title, topic, summary, background_url, user_id, character_id, updated_at FROM conversations WHERE id = ?`, id).
		Scan(&c.ID, &c.Title, &c.Topic, &c.Summary, &c.BackgroundURL, &c.UserID, &c.PersonaID, &updated)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("conversation %q: %w", id, chat.ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	c.UpdatedAt = fromStamp(updated)
	return &c, nil
}

// RenameConversation sets the title.
func (s *Store) RenameConversation(ctx context.Context, id, title string) error {
	_, err := s.db.ExecContext(ctx, `UPDATE conversations SET title = ? WHERE id = ?`, title, id)
	return err
}

// AppendMessage stores a message and bumps the conversation's updated_at.
func (s *Store) AppendMessage(ctx context.Context, conversationID, content string, isUser bool) (chat.Message, error) {
	msg := chat.Message{
		ID:             uuid.NewString(),
		ConversationID: conversationID,
		Content:        content,
		IsUser:         isUser,
		Timestamp:      fromStamp(s.stamp()),
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return chat.Message{}, err
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, `UPDATE conversations SET updated_at = ? WHERE id = ?`, msg.Timestamp.UnixNano(), conversationID)
	if err != nil {
		return chat.Message{}, err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return chat.Message{}, fmt.Errorf("conversation %q: %w", conversationID, chat.ErrNotFound)
	}
	_, err = tx.ExecContext(ctx,
		`INSERT INTO messages (id, conversation_id, content, is_user, created_at) VALUES (?, ?, ?, ?, ?)`,
		msg.ID, conversationID, content, isUser, msg.Timestamp.UnixNano())
	if err != nil {
		return chat.Message{}, fmt.Errorf("insert message: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return chat.Message{}, err
	}
	return msg, nil
}

// ListMessages returns the history in insertion order.
func (s *Store) ListMessages(ctx context.Context, conversationID string) ([]chat.Message, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, content, is_user, created_at FROM messages WHERE conversation_id = ? ORDER BY seq`, conversationID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []chat.Message
	for rows.Next() {
		var (
			m       chat.Message
			created int64
		)
		if err := rows.Scan(&m.ID, &m.Content, &m.IsUser, &created); err != nil {
			return nil, err
		}
		m.ConversationID = conversationID
		m.Timestamp = fromStamp(created)
		out = append(out, m)
	}
	return out, rows.Err()
}

// CreateUser registers an account with a bcrypt password hash.
func (s *Store) CreateUser(ctx context.Context, username, email, password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("hash password: %w", err)
	}
	id := uuid.NewString()
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO users (id, username, email, password_hash, created_at) VALUES (?, ?, ?, ?, ?)`,
		id, username, email, string(hash), s.stamp())
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE") {
			return "", ErrUserExists
		}
		return "", fmt.Errorf("insert user: %w", err)
	}
	return id, nil
}

type userRecord struct {
	id, username, email, hash string
}

func (s *Store) findUser(ctx context.Context, username string) (*userRecord, error) {
	var u userRecord
	err := s.db.QueryRowContext(ctx,
		`SELECT id, username, email, password_hash FROM users WHERE username = ?`, username).
		Scan(&u.id, &u.username, &u.email, &u.hash)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &u, nil
}

// IsFavorite reports whether word is in the user's word cards.
func (s *Store) IsFavorite(ctx context.Context, userID, word string) (bool, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM wordcards WHERE user_id = ? AND word = ?`, userID, word).Scan(&n)
	return n > 0, err
}

// AddFavorite saves a word card. Saving a word twice keeps the first card.
func (s *Store) AddFavorite(ctx context.Context, userID string, fav lookup.Favorite) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO wordcards (id, user_id, word, pronunciation, pos, context, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?) ON CONFLICT(user_id, word) DO NOTHING`,
		uuid.NewString(), userID, fav.Word, fav.Pronunciation, fav.PartOfSpeech, fav.Context, s.stamp())
	if err != nil {
		return fmt.Errorf("insert word card: %w", err)
	}
	return nil
}

// RemoveFavorite deletes a word card. Removing a missing word is not an error.
func (s *Store) RemoveFavorite(ctx context.Context, userID, word string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM wordcards WHERE user_id = ? AND word = ?`, userID, word)
	return err
}

// ListFavorites returns the user's word cards, newest first.
func (s *Store) ListFavorites(ctx context.Context, userID string) ([]lookup.Favorite, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT word, pronunciation, pos, context, created_at FROM wordcards WHERE user_id = ? ORDER BY created_at DESC, rowid DESC`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []lookup.Favorite
	for rows.Next() {
		var (
			f       lookup.Favorite
			created int64
		)
		if err := rows.Scan(&f.Word, &f.Pronunciation, &f.PartOfSpeech, &f.Context, &created); err != nil {
			return nil, err
		}
		f.CreatedAt = fromStamp(created)
		out = append(out, f)
	}
	return out, rows.Err()
}

func nonNil(tags []string) []string {
	if tags == nil {
		return []string{}
	}
	return tags
}
