package client

import (
	"context"
	"errors"
	"net/http"
	"net/url"

	"lingo/internal/auth"
)

// ErrBadCredentials is returned by Login when the backend rejects the user.
var ErrBadCredentials = errors.New("invalid username or password")

// Login exchanges credentials for the backend user record.
func (c *Client) Login(ctx context.Context, username, password string) (auth.User, error) {
	var resp struct {
		AccessToken string `json:"access_token"`
		TokenType   string `json:"token_type"`
		User        struct {
			ID       string `json:"id"`
			Username string `json:"username"`
			Email    string `json:"email"`
		} `json:"user"`
	}
	err := c.do(ctx, request{
		method: http.MethodPost,
		path:   "/api/auth/login",
		form:   url.Values{"username": {username}, "password": {password}},
	}, &resp)
	if hasStatus(err, http.StatusUnauthorized) {
		return auth.User{}, ErrBadCredentials
	}
	if err != nil {
		return auth.User{}, err
	}
	if resp.User.ID == "" {
		return auth.User{}, errors.New("login response carried no user")
	}
	return auth.User{
		ID:       resp.User.ID,
		Username: resp.User.Username,
		Email:    resp.User.Email,
		Token:    resp.AccessToken,
	}, nil
}
