package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"spaceexplorers/internal/auth"
	"spaceexplorers/internal/game"
)

// APIError is a non-2xx response from the server. Anything else returned by
// the client is a transport failure.
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("api status %d: %s", e.Status, e.Message)
}

func IsAPIError(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr)
}

type Client struct {
	BaseURL string
	HTTP    *http.Client
}

func NewClient(baseURL string) *Client {
	return &Client{
		BaseURL: strings.TrimRight(baseURL, "/"),
		HTTP: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

func (c *Client) Signup(ctx context.Context, email, password, username string) (auth.Session, error) {
	var out auth.Session
	err := c.jsonRequest(ctx, http.MethodPost, "/v1/auth/signup", "", map[string]any{
		"email":    email,
		"password": password,
		"username": username,
	}, &out, "")
	return out, err
}

func (c *Client) Login(ctx context.Context, email, password string) (auth.Session, error) {
	var out auth.Session
	err := c.jsonRequest(ctx, http.MethodPost, "/v1/auth/login", "", map[string]any{
		"email":    email,
		"password": password,
	}, &out, "")
	return out, err
}

// Refresh exchanges a refresh token for a new session.
func (c *Client) Refresh(ctx context.Context, refreshToken string) (auth.Session, error) {
	var out auth.Session
	err := c.jsonRequest(ctx, http.MethodPost, "/v1/auth/refresh", "", map[string]any{
		"refresh_token": refreshToken,
	}, &out, "")
	return out, err
}

func (c *Client) Me(ctx context.Context, accessToken string) (game.User, error) {
	var out game.User
	err := c.jsonRequest(ctx, http.MethodGet, "/v1/me", accessToken, nil, &out, "")
	return out, err
}

// Profile fetches another pilot's public profile; an empty id means the caller.
func (c *Client) Profile(ctx context.Context, accessToken, userID string) (game.User, error) {
	var out game.User
	err := c.jsonRequest(ctx, http.MethodGet, "/v1/users/"+url.PathEscape(userOrMe(userID)), accessToken, nil, &out, "")
	return out, err
}

func (c *Client) UpdateUsername(ctx context.Context, accessToken, username string) (game.User, error) {
	var out game.User
	err := c.jsonRequest(ctx, http.MethodPut, "/v1/me", accessToken, map[string]any{
		"username": username,
	}, &out, "")
	return out, err
}

func (c *Client) Journey(ctx context.Context, accessToken, userID string) (game.Journey, error) {
	var out game.Journey
	err := c.jsonRequest(ctx, http.MethodGet, "/v1/space/journey/"+url.PathEscape(userOrMe(userID)), accessToken, nil, &out, "")
	return out, err
}

func (c *Client) Discover(ctx context.Context, accessToken string, planetID int64) (game.DiscoveryResult, error) {
	var out game.DiscoveryResult
	err := c.jsonRequest(ctx, http.MethodPost, "/v1/space/discover", accessToken, map[string]any{
		"planet_id": planetID,
	}, &out, "")
	return out, err
}

func (c *Client) Shop(ctx context.Context, accessToken, category string) ([]game.ShopItem, error) {
	path := "/v1/space/shop"
	if category = strings.TrimSpace(category); category != "" {
		path += "?category=" + url.QueryEscape(category)
	}
	var out struct {
		Upgrades []game.ShopItem `json:"upgrades"`
	}
	err := c.jsonRequest(ctx, http.MethodGet, path, accessToken, nil, &out, "")
	return out.Upgrades, err
}

func (c *Client) Purchase(ctx context.Context, accessToken string, upgradeID int64) (game.PurchaseResult, error) {
	var out game.PurchaseResult
	err := c.jsonRequest(ctx, http.MethodPost, "/v1/space/shop/purchase", accessToken, map[string]any{
		"upgrade_id": upgradeID,
	}, &out, "")
	return out, err
}

func (c *Client) Spacecraft(ctx context.Context, accessToken, userID string) (game.Spacecraft, error) {
	var out game.Spacecraft
	err := c.jsonRequest(ctx, http.MethodGet, "/v1/space/spacecraft/"+url.PathEscape(userOrMe(userID)), accessToken, nil, &out, "")
	return out, err
}

func (c *Client) Toggle(ctx context.Context, accessToken string, upgradeID int64, equipped bool) error {
	return c.jsonRequest(ctx, http.MethodPut, "/v1/space/spacecraft/toggle", accessToken, map[string]any{
		"upgrade_id":  upgradeID,
		"is_equipped": equipped,
	}, nil, "")
}

func (c *Client) Achievements(ctx context.Context, accessToken, userID string) (game.AchievementBoard, error) {
	var out game.AchievementBoard
	err := c.jsonRequest(ctx, http.MethodGet, "/v1/space/achievements/"+url.PathEscape(userOrMe(userID)), accessToken, nil, &out, "")
	return out, err
}

func (c *Client) Challenges(ctx context.Context, accessToken string) ([]game.ChallengeView, error) {
	var out struct {
		Challenges []game.ChallengeView `json:"challenges"`
	}
	err := c.jsonRequest(ctx, http.MethodGet, "/v1/challenges", accessToken, nil, &out, "")
	return out.Challenges, err
}

func (c *Client) CreateChallenge(ctx context.Context, accessToken, description string, points int64) (game.Challenge, error) {
	var out game.Challenge
	err := c.jsonRequest(ctx, http.MethodPost, "/v1/challenges", accessToken, map[string]any{
		"description": description,
		"points":      points,
	}, &out, "")
	return out, err
}

func (c *Client) UpdateChallenge(ctx context.Context, accessToken string, challengeID int64, description string, points int64) (game.Challenge, error) {
	var out game.Challenge
	err := c.jsonRequest(ctx, http.MethodPut, fmt.Sprintf("/v1/challenges/%d", challengeID), accessToken, map[string]any{
		"description": description,
		"points":      points,
	}, &out, "")
	return out, err
}

func (c *Client) DeleteChallenge(ctx context.Context, accessToken string, challengeID int64) error {
	return c.jsonRequest(ctx, http.MethodDelete, fmt.Sprintf("/v1/challenges/%d", challengeID), accessToken, nil, nil, "")
}

// CompletionPath is the endpoint CompleteChallenge posts to. The offline
// queue records it so sync can replay the same request.
func CompletionPath(challengeID int64) string {
	return fmt.Sprintf("/v1/challenges/%d/completions", challengeID)
}

func (c *Client) CompleteChallenge(ctx context.Context, accessToken string, challengeID int64, details, idem string) (game.CompletionResult, error) {
	var out game.CompletionResult
	err := c.jsonRequest(ctx, http.MethodPost, CompletionPath(challengeID), accessToken, map[string]any{
		"details": details,
	}, &out, idem)
	return out, err
}

func (c *Client) Completions(ctx context.Context, accessToken string, challengeID int64, mine bool) ([]game.Completion, error) {
	path := CompletionPath(challengeID)
	if mine {
		path = fmt.Sprintf("/v1/challenges/%d/my-completions", challengeID)
	}
	var out struct {
		Completions []game.Completion `json:"completions"`
	}
	err := c.jsonRequest(ctx, http.MethodGet, path, accessToken, nil, &out, "")
	return out.Completions, err
}

func (c *Client) Leaderboard(ctx context.Context, accessToken string, limit int) ([]game.LeaderboardRow, error) {
	path := "/v1/leaderboard"
	if limit > 0 {
		path += "?limit=" + strconv.Itoa(limit)
	}
	var out struct {
		Rows []game.LeaderboardRow `json:"rows"`
	}
	err := c.jsonRequest(ctx, http.MethodGet, path, accessToken, nil, &out, "")
	return out.Rows, err
}

func (c *Client) Do(ctx context.Context, method, path, accessToken string, body map[string]any, idem string) (map[string]any, error) {
	var out map[string]any
	err := c.jsonRequest(ctx, method, path, accessToken, body, &out, idem)
	return out, err
}

func (c *Client) jsonRequest(ctx context.Context, method, path, accessToken string, in any, out any, idem string) error {
	var body io.Reader
	if in != nil {
		raw, err := json.Marshal(in)
		if err != nil {
			return err
		}
		body = bytes.NewReader(raw)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.BaseURL+path, body)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if accessToken != "" {
		req.Header.Set("Authorization", "Bearer "+accessToken)
	}
	if idem != "" {
		req.Header.Set("Idempotency-Key", idem)
	}
	resp, err := c.HTTP.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return &APIError{Status: resp.StatusCode, Message: errorMessage(raw)}
	}
	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

func errorMessage(raw []byte) string {
	var body struct {
		Error string `json:"error"`
	}
	if err := json.Unmarshal(raw, &body); err == nil && body.Error != "" {
		return body.Error
	}
	return strings.TrimSpace(string(raw))
}

func userOrMe(userID string) string {
	if userID = strings.TrimSpace(userID); userID != "" {
		return userID
	}
	return "me"
}
