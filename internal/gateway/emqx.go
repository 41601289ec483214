// Package gateway implements the deterministic mapping from a radio node id
// and an owner id to broker credentials and per-gateway ACL rules, on top
// of a small HTTP client for the EMQX admin API.
package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// authenticationID is the EMQX built-in-database authentication source this
// bridge provisions gateway users against.
const authenticationID = "password_based:built_in_database"

// EMQXClient is the HTTP client for the EMQX admin API: basic
// auth over a configurable base URL, JSON bodies, 204 permitted on mutating
// calls.
type EMQXClient struct {
	client  http.Client
	baseURL string
	prefix  string
	apiKey  string
	secret  string
}

// NewEMQXClient builds a client against baseURL (e.g. "https://emqx.example.org:18083").
func NewEMQXClient(baseURL, apiKey, secret string) *EMQXClient {
	return &EMQXClient{
		client:  http.Client{Timeout: 10 * time.Second},
		baseURL: baseURL,
		prefix:  "/api/v5",
		apiKey:  apiKey,
		secret:  secret,
	}
}

// APIError carries the HTTP status code of a non-2xx EMQX admin API
// response so callers (notably CreateGateway) can branch on "already
// exists" without string-matching the body.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("gateway: emqx admin api returned %d: %s", e.StatusCode, e.Body)
}

func (c *EMQXClient) request(ctx context.Context, method, endpoint string, body any) ([]byte, error) {
	var reader io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("gateway: encode request body: %w", err)
		}
		reader = bytes.NewReader(b)
	}

	u, err := url.JoinPath(c.baseURL, c.prefix, endpoint)
	if err != nil {
		return nil, fmt.Errorf("gateway: build request url: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, method, u, reader)
	if err != nil {
		return nil, fmt.Errorf("gateway: build request: %w", err)
	}
	req.SetBasicAuth(c.apiKey, c.secret)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("gateway: emqx admin api request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("gateway: read emqx admin api response: %w", err)
	}

	if resp.StatusCode >= 300 {
		return nil, &APIError{StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(respBody))}
	}
	return respBody, nil
}

// emqxUser is one entry of the "list users" response.
type emqxUser struct {
	UserID string `json:"user_id"`
}

type listUsersResponse struct {
	Data []emqxUser `json:"data"`
}

func (c *EMQXClient) listUsers(ctx context.Context) ([]emqxUser, error) {
	raw, err := c.request(ctx, http.MethodGet, fmt.Sprintf("/authentication/%s/users", authenticationID), nil)
	if err != nil {
		return nil, err
	}
	var out listUsersResponse
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("gateway: decode list users response: %w", err)
	}
	return out.Data, nil
}

func (c *EMQXClient) createUser(ctx context.Context, userID, password string) error {
	body := map[string]any{"user_id": userID, "password": password, "is_superuser": false}
	_, err := c.request(ctx, http.MethodPost, fmt.Sprintf("/authentication/%s/users", authenticationID), body)
	return err
}

func (c *EMQXClient) deleteUser(ctx context.Context, userID string) error {
	_, err := c.request(ctx, http.MethodDelete, fmt.Sprintf("/authentication/%s/users/%s", authenticationID, userID), nil)
	return err
}

func (c *EMQXClient) updateUserPassword(ctx context.Context, userID, password string) error {
	_, err := c.request(ctx, http.MethodPut, fmt.Sprintf("/authentication/%s/users/%s", authenticationID, userID),
		map[string]any{"password": password})
	return err
}

// ACLRule mirrors the broker's per-user authorization rule shape:
// action/topic/permission plus an optional qos filter and an implicit priority taken from list position.
type ACLRule struct {
	Action     string `json:"action"`
	Topic      string `json:"topic"`
	Permission string `json:"permission"`
	QoS        []int  `json:"qos,omitempty"`
}

func (c *EMQXClient) putUserRules(ctx context.Context, userID string, rules []ACLRule) error {
	// The rules-for-user endpoint takes an object keyed on "rules" and
	// "username", not a bare rule array.
	body := map[string]any{"username": userID, "rules": rules}
	_, err := c.request(ctx, http.MethodPut,
		fmt.Sprintf("/authorization/sources/built_in_database/rules/users/%s", userID), body)
	return err
}

func (c *EMQXClient) deleteUserRules(ctx context.Context, userID string) error {
	_, err := c.request(ctx, http.MethodDelete,
		fmt.Sprintf("/authorization/sources/built_in_database/rules/users/%s", userID), nil)
	return err
}
