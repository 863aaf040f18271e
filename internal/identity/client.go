// Package identity talks to the auth service on behalf of storefront
// clients.
package identity

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"Storefront/internal/session"
)

var (
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrRateLimited        = errors.New("too many sign-in attempts")
	ErrConflict           = errors.New("account conflict")
	ErrUnavailable        = errors.New("identity provider unavailable")
)

const maxAuthBody = 1 << 20

// Client implements session.Provider and session.RoleLookup over the auth
// service's HTTP API.
type Client struct {
	BaseURL string
	Client  *http.Client
}

func NewClient(baseURL string, timeout time.Duration) *Client {
	return &Client{
		BaseURL: strings.TrimRight(baseURL, "/"),
		Client:  &http.Client{Timeout: timeout},
	}
}

type tokenResp struct {
	AccessToken string `json:"access_token"`
	User        struct {
		ID    string `json:"id"`
		Email string `json:"email"`
	} `json:"user"`
}

func (t tokenResp) identity() session.Identity {
	return session.Identity{UID: t.User.ID, Email: t.User.Email, Token: t.AccessToken}
}

func (c *Client) SignInWithPassword(ctx context.Context, email, password string) (session.Identity, error) {
	var out tokenResp
	body := map[string]string{"email": email, "password": password}
	if err := c.do(ctx, http.MethodPost, "/auth/login", "", body, &out); err != nil {
		return session.Identity{}, err
	}
	return out.identity(), nil
}

func (c *Client) SignInFederated(ctx context.Context, credential string) (session.Identity, error) {
	var out tokenResp
	if err := c.do(ctx, http.MethodPost, "/auth/federated", "", map[string]string{"id_token": credential}, &out); err != nil {
		return session.Identity{}, err
	}
	return out.identity(), nil
}

func (c *Client) Verify(ctx context.Context, token string) (session.Identity, error) {
	var out struct {
		ID    string `json:"id"`
		Email string `json:"email"`
	}
	err := c.do(ctx, http.MethodGet, "/auth/whoami", token, nil, &out)
	if errors.Is(err, ErrInvalidCredentials) {
		return session.Identity{}, session.ErrUnauthenticated
	}
	if err != nil {
		return session.Identity{}, err
	}
	return session.Identity{UID: out.ID, Email: out.Email, Token: token}, nil
}

// SignOut revokes the identity's token. A token the service already
// rejects counts as signed out.
func (c *Client) SignOut(ctx context.Context, id session.Identity) error {
	if id.Token == "" {
		return nil
	}
	err := c.do(ctx, http.MethodPost, "/auth/logout", id.Token, nil, nil)
	if errors.Is(err, ErrInvalidCredentials) {
		return nil
	}
	return err
}

func (c *Client) IsElevated(ctx context.Context, id session.Identity) (bool, error) {
	var out struct {
		IsAdmin bool `json:"isAdmin"`
	}
	if err := c.do(ctx, http.MethodGet, "/admins/"+url.PathEscape(id.UID), id.Token, nil, &out); err != nil {
		return false, err
	}
	return out.IsAdmin, nil
}

func (c *Client) Ping(ctx context.Context) error {
	return c.do(ctx, http.MethodGet, "/readyz", "", nil, nil)
}

func (c *Client) do(ctx context.Context, method, path, token string, body, out any) error {
	var rd io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return err
		}
		rd = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.BaseURL+path, rd)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.Client.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxAuthBody))
		return statusError(resp.StatusCode)
	}

	if out == nil {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxAuthBody))
		return nil
	}
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxAuthBody)).Decode(out); err != nil {
		return fmt.Errorf("%w: decode: %v", ErrUnavailable, err)
	}
	return nil
}

func statusError(code int) error {
	switch code {
	case http.StatusUnauthorized:
		return ErrInvalidCredentials
	case http.StatusTooManyRequests:
		return ErrRateLimited
	case http.StatusConflict:
		return ErrConflict
	default:
		return fmt.Errorf("%w: status=%d", ErrUnavailable, code)
	}
}
