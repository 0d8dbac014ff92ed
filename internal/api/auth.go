package api

import (
	"context"
	"net/http"

	"github.com/Joseda-hg/lazytodo/internal/model"
)

type SignupRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	Name     string `json:"name"`
}

type SigninRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type AuthResponse struct {
	Token string     `json:"token"`
	User  model.User `json:"user"`
}

func (c *Client) Signup(ctx context.Context, req SignupRequest) (AuthResponse, error) {
	var resp AuthResponse
	if err := c.do(ctx, http.MethodPost, "/auth/signup", nil, req, &resp); err != nil {
		return AuthResponse{}, err
	}
	return resp, nil
}

func (c *Client) Signin(ctx context.Context, req SigninRequest) (AuthResponse, error) {
	var resp AuthResponse
	if err := c.do(ctx, http.MethodPost, "/auth/signin", nil, req, &resp); err != nil {
		return AuthResponse{}, err
	}
	return resp, nil
}

// Me returns the signed-in user. Concurrent callers holding the same token
// share one request.
func (c *Client) Me(ctx context.Context) (model.User, error) {
	key := "me"
	if c.tokens != nil {
		if token, ok := c.tokens.Token(ctx); ok {
			key += ":" + token
		}
	}

	value, err, _ := c.group.Do(key, func() (any, error) {
		var user model.User
		if err := c.do(ctx, http.MethodGet, "/auth/me", nil, nil, &user); err != nil {
			return nil, err
		}
		return user, nil
	})
	if err != nil {
		return model.User{}, err
	}
	return value.(model.User), nil
}
