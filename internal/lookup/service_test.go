package lookup

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var errNotSignedIn = errors.New("not signed in")

type staticIdentity string

func (id staticIdentity) UserID() (string, error) {
	if id == "" {
		return "", errNotSignedIn
	}
	return string(id), nil
}

type stubDictionary struct{ words map[string]Definition }

func (d stubDictionary) Lookup(ctx context.Context, word string) (Definition, error) {
	def, ok := d.words[word]
	if !ok {
		return Definition{}, ErrWordNotFound
	}
	return def, nil
}

type memFavorites struct {
	byUser map[string]map[string]Favorite
}

func newMemFavorites() *memFavorites {
	return &memFavorites{byUser: map[string]map[string]Favorite{}}
}

func (m *memFavorites) IsFavorite(ctx context.Context, userID, word string) (bool, error) {
	_, ok := m.byUser[userID][word]
	return ok, nil
}

func (m *memFavorites) AddFavorite(ctx context.Context, userID string, fav Favorite) error {
	if m.byUser[userID] == nil {
		m.byUser[userID] = map[string]Favorite{}
	}
	m.byUser[userID][fav.Word] = fav
	return nil
}

func (m *memFavorites) RemoveFavorite(ctx context.Context, userID, word string) error {
	delete(m.byUser[userID], word)
	return nil
}

func (m *memFavorites) ListFavorites(ctx context.Context, userID string) ([]Favorite, error) {
	var out []Favorite
	for _, f := range m.byUser[userID] {
		out = append(out, f)
	}
	return out, nil
}

func TestService_DefineLowercases(t *testing.T) {
	dict := stubDictionary{words: map[string]Definition{
		"hello": {Word: "hello", Gloss: "a greeting"},
	}}
	svc := NewService(dict, newMemFavorites(), staticIdentity("u1"))

	def, err := svc.Define(context.Background(), "Hello")
	require.NoError(t, err)
	assert.Equal(t, "a greeting", def.Gloss)

	_, err = svc.Define(context.Background(), "qwxz")
	assert.ErrorIs(t, err, ErrWordNotFound)
}

func TestService_SetFavoriteCopiesDefinition(t *testing.T) {
	favs := newMemFavorites()
	svc := NewService(stubDictionary{}, favs, staticIdentity("u1"))
	ctx := context.Background()

	def := &Definition{Word: "serendipity", Pronunciation: "/ˌsɛɹ.ənˈdɪp.ɪ.ti/", PartOfSpeech: "noun", Gloss: "happy accident"}
	require.NoError(t, svc.SetFavorite(ctx, "Serendipity", def, true))

	got := favs.byUser["u1"]["serendipity"]
	assert.Equal(t, Favorite{Word: "serendipity", Pronunciation: def.Pronunciation, PartOfSpeech: "noun", Context: "happy accident"}, got)

	fav, err := svc.IsFavorite(ctx, "SERENDIPITY")
	require.NoError(t, err)
	assert.True(t, fav)

	list, err := svc.ListFavorites(ctx)
	require.NoError(t, err)
	assert.Len(t, list, 1)

	require.NoError(t, svc.SetFavorite(ctx, "serendipity", nil, false))
	fav, _ = svc.IsFavorite(ctx, "serendipity")
	assert.False(t, fav)
}

func TestService_SignedOut(t *testing.T) {
	svc := NewService(stubDictionary{}, newMemFavorites(), staticIdentity(""))
	ctx := context.Background()

	fav, err := svc.IsFavorite(ctx, "hello")
	assert.NoError(t, err)
	assert.False(t, fav)

	assert.ErrorIs(t, svc.SetFavorite(ctx, "hello", nil, true), errNotSignedIn)

	_, err = svc.ListFavorites(ctx)
	assert.ErrorIs(t, err, errNotSignedIn)
}
