package supabase

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
)

// Session is an authenticated user session issued by the auth service.
type Session struct {
	AccessToken  string `json:"access_token"`
	TokenType    string `json:"token_type"`
	ExpiresIn    int    `json:"expires_in"`
	RefreshToken string `json:"refresh_token"`
	User         *User  `json:"user"`
}

// User is the auth-service view of an account, distinct from the profiles row.
type User struct {
	ID           string         `json:"id"`
	Email        string         `json:"email"`
	Phone        string         `json:"phone"`
	Role         string         `json:"role"`
	CreatedAt    string         `json:"created_at"`
	AppMetadata  map[string]any `json:"app_metadata"`
	UserMetadata map[string]any `json:"user_metadata"`
}

// SignInWithPassword exchanges email/password credentials for a session.
func (c *Client) SignInWithPassword(ctx context.Context, email, password string) (*Session, error) {
	return c.tokenRequest(ctx, "password", map[string]string{
		"email":    email,
		"password": password,
	})
}

// RefreshSession exchanges a refresh token for a fresh session.
func (c *Client) RefreshSession(ctx context.Context, refreshToken string) (*Session, error) {
	return c.tokenRequest(ctx, "refresh_token", map[string]string{
		"refresh_token": refreshToken,
	})
}

// GetUser returns the account behind an access token.
func (c *Client) GetUser(ctx context.Context, accessToken string) (*User, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/auth/v1/user", nil)
	if err != nil {
		return nil, err
	}

	var user User
	if err := c.WithToken(accessToken).do(req, &user); err != nil {
		return nil, err
	}
	return &user, nil
}

// SignOut revokes the session behind an access token.
func (c *Client) SignOut(ctx context.Context, accessToken string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/auth/v1/logout", nil)
	if err != nil {
		return err
	}
	return c.WithToken(accessToken).do(req, nil)
}

func (c *Client) tokenRequest(ctx context.Context, grantType string, payload map[string]string) (*Session, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.baseURL+"/auth/v1/token?grant_type="+grantType, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	var session Session
	if err := c.do(req, &session); err != nil {
		return nil, err
	}
	return &session, nil
}
