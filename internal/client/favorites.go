package client

import (
	"context"
	"errors"
	"net/http"
	"net/url"

	"lingo/internal/lookup"
)

// IsFavorite reports whether word is on the user's list.
func (c *Client) IsFavorite(ctx context.Context, userID, word string) (bool, error) {
	var fav bool
	err := c.do(ctx, request{
		method: http.MethodGet,
		path:   "/api/favorites/check",
		query:  url.Values{"word": {word}, "user_id": {userID}},
	}, &fav)
	return fav, err
}

// AddFavorite saves a word. Adding a word that is already saved succeeds.
func (c *Client) AddFavorite(ctx context.Context, userID string, fav lookup.Favorite) error {
	err := c.do(ctx, request{
		method: http.MethodPost,
		path:   "/api/favorites/add",
		query:  url.Values{"user_id": {userID}},
		body: wordcardCreate{
			Word:          fav.Word,
			Pronunciation: fav.Pronunciation,
			POS:           fav.PartOfSpeech,
			Context:       fav.Context,
		},
	}, nil)
	if hasStatus(err, http.StatusBadRequest) {
		return nil
	}
	return err
}

// RemoveFavorite deletes a word. Removing a word that is not saved succeeds.
func (c *Client) RemoveFavorite(ctx context.Context, userID, word string) error {
	err := c.do(ctx, request{
		method: http.MethodPost,
		path:   "/api/favorites/remove",
		query:  url.Values{"word": {word}, "user_id": {userID}},
	}, nil)
	if hasStatus(err, http.StatusNotFound) {
		return nil
	}
	return err
}

// ListFavorites returns every saved word of the user.
func (c *Client) ListFavorites(ctx context.Context, userID string) ([]lookup.Favorite, error) {
	var ws []wordcardWire
	err := c.do(ctx, request{
		method: http.MethodGet,
		path:   "/api/favorites/list",
		query:  url.Values{"user_id": {userID}},
	}, &ws)
	if err != nil {
		return nil, err
	}
	out := make([]lookup.Favorite, 0, len(ws))
	for _, w := range ws {
		out = append(out, w.toFavorite())
	}
	return out, nil
}

func hasStatus(err error, status int) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.StatusCode == status
}
