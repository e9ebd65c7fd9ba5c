package auth

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// ErrRejected marks a credential or token the auth provider refused, as
// opposed to a transport failure reaching it.
var ErrRejected = errors.New("auth rejected")

// Verifier turns a bearer token into a trusted identity.
type Verifier interface {
	VerifyAccessToken(ctx context.Context, accessToken string) (User, error)
}

type User struct {
	ID    string `json:"id"`
	Email string `json:"email"`
}

type Session struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	ExpiresIn    int    `json:"expires_in"`
	TokenType    string `json:"token_type"`
	User         User   `json:"user"`
}

// SupabaseClient proxies email/password auth to a Supabase project (GoTrue)
// and verifies access tokens against it.
type SupabaseClient struct {
	baseURL    string
	anonKey    string
	httpClient *http.Client
}

func NewSupabaseClient(baseURL, anonKey string) *SupabaseClient {
	return &SupabaseClient{
		baseURL:    strings.TrimRight(baseURL, "/"),
		anonKey:    anonKey,
		httpClient: &http.Client{Timeout: 20 * time.Second},
	}
}

// SignUp registers an account. With email confirmation enabled the returned
// session carries no access token.
func (c *SupabaseClient) SignUp(ctx context.Context, email, password, username string) (Session, error) {
	payload := map[string]any{"email": email, "password": password}
	if username != "" {
		payload["data"] = map[string]string{"username": username}
	}
	var out Session
	if err := c.send(ctx, http.MethodPost, "/auth/v1/signup", "", payload, &out); err != nil {
		return Session{}, err
	}
	return out, nil
}

func (c *SupabaseClient) Login(ctx context.Context, email, password string) (Session, error) {
	return c.grant(ctx, "password", map[string]any{"email": email, "password": password})
}

// Refresh trades a refresh token for a new session.
func (c *SupabaseClient) Refresh(ctx context.Context, refreshToken string) (Session, error) {
	if strings.TrimSpace(refreshToken) == "" {
		return Session{}, fmt.Errorf("%w: refresh token is required", ErrRejected)
	}
	return c.grant(ctx, "refresh_token", map[string]any{"refresh_token": refreshToken})
}

func (c *SupabaseClient) VerifyAccessToken(ctx context.Context, accessToken string) (User, error) {
	var user User
	if err := c.send(ctx, http.MethodGet, "/auth/v1/user", accessToken, nil, &user); err != nil {
		return User{}, fmt.Errorf("verify token: %w", err)
	}
	if user.ID == "" {
		return User{}, fmt.Errorf("verify token: %w: empty user id", ErrRejected)
	}
	return user, nil
}

func (c *SupabaseClient) grant(ctx context.Context, grantType string, payload map[string]any) (Session, error) {
	var out Session
	if err := c.send(ctx, http.MethodPost, "/auth/v1/token?grant_type="+grantType, "", payload, &out); err != nil {
		return Session{}, err
	}
	if out.AccessToken == "" {
		return Session{}, fmt.Errorf("%w: %s grant returned no access token", ErrRejected, grantType)
	}
	return out, nil
}

func (c *SupabaseClient) send(ctx context.Context, method, path, bearer string, in, out any) error {
	var body io.Reader
	if in != nil {
		raw, err := json.Marshal(in)
		if err != nil {
			return err
		}
		body = bytes.NewReader(raw)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return err
	}
	req.Header.Set("apikey", c.anonKey)
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("supabase request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		msg := providerMessage(raw)
		if resp.StatusCode >= 400 && resp.StatusCode < 500 {
			return fmt.Errorf("%w: %s", ErrRejected, msg)
		}
		return fmt.Errorf("supabase status %d: %s", resp.StatusCode, msg)
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

// providerMessage picks the human readable field out of a GoTrue error body.
func providerMessage(raw []byte) string {
	var body struct {
		Msg              string `json:"msg"`
		Message          string `json:"message"`
		ErrorDescription string `json:"error_description"`
		Error            string `json:"error"`
	}
	if err := json.Unmarshal(raw, &body); err == nil {
		for _, s := range []string{body.ErrorDescription, body.Msg, body.Message, body.Error} {
			if s != "" {
				return s
			}
		}
	}
	return strings.TrimSpace(string(raw))
}
