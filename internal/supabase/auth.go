package supabase

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/benvon/onetask/internal/models"
	"github.com/google/uuid"
)

type credentials struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type gotrueUser struct {
	ID    uuid.UUID `json:"id"`
	Email string    `json:"email"`
}

type tokenResponse struct {
	AccessToken  string     `json:"access_token"`
	TokenType    string     `json:"token_type"`
	ExpiresIn    int64      `json:"expires_in"`
	ExpiresAt    int64      `json:"expires_at"`
	RefreshToken string     `json:"refresh_token"`
	User         gotrueUser `json:"user"`

	// Sign-up without a session returns the bare user.
	ID    uuid.UUID `json:"id"`
	Email string    `json:"email"`
}

func (t *tokenResponse) session(now time.Time) *models.Session {
	if t.AccessToken == "" {
		return nil
	}
	expires := time.Time{}
	switch {
	case t.ExpiresAt > 0:
		expires = time.Unix(t.ExpiresAt, 0).UTC()
	case t.ExpiresIn > 0:
		expires = now.Add(time.Duration(t.ExpiresIn) * time.Second).UTC()
	}
	tokenType := t.TokenType
	if tokenType == "" {
		tokenType = "bearer"
	}
	return &models.Session{
		AccessToken:  t.AccessToken,
		RefreshToken: t.RefreshToken,
		TokenType:    tokenType,
		ExpiresAt:    expires,
		User:         models.User{ID: t.User.ID, Email: t.User.Email},
	}
}

// SignUp creates an account. When the project requires email confirmation
// no session is issued and the returned session is nil.
func (c *Client) SignUp(ctx context.Context, email, password string) (*models.Session, error) {
	var resp tokenResponse
	err := c.do(ctx, request{
		method: http.MethodPost,
		path:   authPath + "/signup",
		body:   credentials{Email: email, Password: password},
	}, &resp)
	if err != nil {
		return nil, fmt.Errorf("sign up failed: %w", err)
	}
	return resp.session(time.Now()), nil
}

// SignIn exchanges an email and password for a session.
func (c *Client) SignIn(ctx context.Context, email, password string) (*models.Session, error) {
	return c.token(ctx, "password", credentials{Email: email, Password: password})
}

// Refresh exchanges a refresh token for a new session.
func (c *Client) Refresh(ctx context.Context, refreshToken string) (*models.Session, error) {
	return c.token(ctx, "refresh_token", map[string]string{"refresh_token": refreshToken})
}

func (c *Client) token(ctx context.Context, grant string, body any) (*models.Session, error) {
	var resp tokenResponse
	err := c.do(ctx, request{
		method: http.MethodPost,
		path:   authPath + "/token",
		query:  url.Values{"grant_type": {grant}},
		body:   body,
	}, &resp)
	if err != nil {
		return nil, fmt.Errorf("token request failed: %w", err)
	}
	s := resp.session(time.Now())
	if s == nil {
		return nil, fmt.Errorf("token request failed: no session returned")
	}
	return s, nil
}

// SignOut revokes the session behind accessToken.
func (c *Client) SignOut(ctx context.Context, accessToken string) error {
	err := c.do(ctx, request{
		method: http.MethodPost,
		path:   authPath + "/logout",
		bearer: accessToken,
	}, nil)
	if err != nil {
		return fmt.Errorf("sign out failed: %w", err)
	}
	return nil
}

// HealthCheck reports whether the project's auth service answers.
func (c *Client) HealthCheck(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	return c.do(ctx, request{method: http.MethodGet, path: authPath + "/health"}, nil)
}
