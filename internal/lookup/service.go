package lookup

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

// ErrWordNotFound is returned by dictionaries that have no entry for a word.
var ErrWordNotFound = errors.New("no definition found")

// Definition is what the popover shows for a word.
type Definition struct {
	Word          string
	Pronunciation string
	PartOfSpeech  string
	Gloss         string
	Example       string
}

// Favorite is a saved word.
type Favorite struct {
	Word          string    `json:"word"`
	Pronunciation string    `json:"pronunciation,omitempty"`
	PartOfSpeech  string    `json:"pos,omitempty"`
	Context       string    `json:"context,omitempty"`
	CreatedAt     time.Time `json:"created_at,omitempty"`
}

// Dictionary resolves word definitions.
type Dictionary interface {
	Lookup(ctx context.Context, word string) (Definition, error)
}

// Favorites persists a user's word list.
type Favorites interface {
	IsFavorite(ctx context.Context, userID, word string) (bool, error)
	AddFavorite(ctx context.Context, userID string, fav Favorite) error
	RemoveFavorite(ctx context.Context, userID, word string) error
	ListFavorites(ctx context.Context, userID string) ([]Favorite, error)
}

// Identity yields the signed-in user.
type Identity interface {
	UserID() (string, error)
}

// Service combines a dictionary and favorites store on behalf of the signed-in user.
type Service struct {
	dict     Dictionary
	favs     Favorites
	identity Identity
}

func NewService(dict Dictionary, favs Favorites, identity Identity) *Service {
	return &Service{dict: dict, favs: favs, identity: identity}
}

// Define looks up word in the dictionary.
func (s *Service) Define(ctx context.Context, word string) (Definition, error) {
	def, err := s.dict.Lookup(ctx, strings.ToLower(word))
	if err != nil {
		return Definition{}, err
	}
	if def.Word == "" {
		def.Word = word
	}
	return def, nil
}

// IsFavorite reports whether word is on the user's list. Without a signed-in
// user nothing is a favorite.
func (s *Service) IsFavorite(ctx context.Context, word string) (bool, error) {
	userID, err := s.identity.UserID()
	if err != nil {
		return false, nil
	}
	return s.favs.IsFavorite(ctx, userID, strings.ToLower(word))
}

// SetFavorite adds or removes word. def may be nil when the lookup has not
// resolved yet.
func (s *Service) SetFavorite(ctx context.Context, word string, def *Definition, favorite bool) error {
	userID, err := s.identity.UserID()
	if err != nil {
		return err
	}
	word = strings.ToLower(word)
	if !favorite {
		if err := s.favs.RemoveFavorite(ctx, userID, word); err != nil {
			return fmt.Errorf("remove favorite %q: %w", word, err)
		}
		return nil
	}

	fav := Favorite{Word: word}
	if def != nil {
		fav.Pronunciation = def.Pronunciation
		fav.PartOfSpeech = def.PartOfSpeech
		fav.Context = def.Gloss
	}
	if err := s.favs.AddFavorite(ctx, userID, fav); err != nil {
		return fmt.Errorf("add favorite %q: %w", word, err)
	}
	return nil
}

// ListFavorites returns the signed-in user's words.
func (s *Service) ListFavorites(ctx context.Context) ([]Favorite, error) {
	userID, err := s.identity.UserID()
	if err != nil {
		return nil, err
	}
	return s.favs.ListFavorites(ctx, userID)
}
