// Copyright (c) 2026 Marketschool. All rights reserved.
// Author: tai.buivan.jp@gmail.com

/*
Package authclient is the client side of the Marketschool session flow.

[Client] speaks to the /api/auth endpoints over HTTP and keeps the session
cookie in a jar. [Store] caches the resulting auth status for a UI process
and notifies subscribers when it changes.
*/
package authclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"strings"
	"time"
)

const defaultTimeout = 10 * time.Second

// ErrUnauthenticated is returned when the server reports no live session.
var ErrUnauthenticated = errors.New("authclient: unauthenticated")

// APIError is a non-2xx response from the server.
type APIError struct {
	Status  int
	Code    string
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("authclient: %d %s: %s", e.Status, e.Code, e.Message)
}

// Rejected reports whether the server refused the request on its merits
// (4xx), as opposed to failing.
func (e *APIError) Rejected() bool {
	return e.Status >= 400 && e.Status < 500
}

// Client calls the auth endpoints. The session cookie lives in the HTTP
// client's cookie jar.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// NewClient creates a [Client] for the API at baseURL. A nil httpClient gets
// a fresh cookie jar and a default timeout.
func NewClient(baseURL string, httpClient *http.Client) (*Client, error) {
	if httpClient == nil {
		jar, err := cookiejar.New(nil)
		if err != nil {
			return nil, fmt.Errorf("authclient: failed to create cookie jar: %w", err)
		}
		httpClient = &http.Client{Jar: jar, Timeout: defaultTimeout}
	}
	if httpClient.Jar == nil {
		return nil, errors.New("authclient: http client needs a cookie jar")
	}

	return &Client{baseURL: strings.TrimRight(baseURL, "/"), httpClient: httpClient}, nil
}

type identityResponse struct {
	UserID string `json:"userId"`
}

// Login starts a session for userID. Additional fields are stored in the
// session payload.
func (client *Client) Login(ctx context.Context, userID string, additional map[string]any) (string, error) {
	body := make(map[string]any, len(additional)+1)
	for key, value := range additional {
		body[key] = value
	}
	body["user_id"] = userID

	var identity identityResponse
	if err := client.do(ctx, http.MethodPost, "/api/auth/login", body, &identity); err != nil {
		return "", err
	}
	return identity.UserID, nil
}

// Logout ends the session. It succeeds without a session too.
func (client *Client) Logout(ctx context.Context) error {
	return client.do(ctx, http.MethodPost, "/api/auth/logout", nil, nil)
}

// Verify returns the user bound to the session, or [ErrUnauthenticated].
func (client *Client) Verify(ctx context.Context) (string, error) {
	var identity identityResponse
	if err := client.do(ctx, http.MethodGet, "/api/auth/verify", nil, &identity); err != nil {
		return "", unauthenticated(err)
	}
	return identity.UserID, nil
}

// Refresh slides the session expiry, or returns [ErrUnauthenticated].
func (client *Client) Refresh(ctx context.Context) error {
	return unauthenticated(client.do(ctx, http.MethodPost, "/api/auth/refresh", nil, nil))
}

func unauthenticated(err error) error {
	var apiError *APIError
	if errors.As(err, &apiError) && apiError.Status == http.StatusUnauthorized {
		return fmt.Errorf("%w: %s", ErrUnauthenticated, apiError.Code)
	}
	return err
}

// do sends one JSON request and decodes the data envelope into target.
func (client *Client) do(ctx context.Context, method, path string, payload any, target any) error {
	var body io.Reader = http.NoBody
	if payload != nil {
		encoded, err := json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("authclient: failed to encode request: %w", err)
		}
		body = bytes.NewReader(encoded)
	}

	request, err := http.NewRequestWithContext(ctx, method, client.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("authclient: failed to build request: %w", err)
	}
	request.Header.Set("Accept", "application/json")
	if payload != nil {
		request.Header.Set("Content-Type", "application/json")
	}

	response, err := client.httpClient.Do(request)
	if err != nil {
		return fmt.Errorf("authclient: %s %s failed: %w", method, path, err)
	}
	defer response.Body.Close()

	if response.StatusCode >= 300 {
		var envelope struct {
			Error string `json:"error"`
			Code  string `json:"code"`
		}
		_ = json.NewDecoder(response.Body).Decode(&envelope)
		return &APIError{Status: response.StatusCode, Code: envelope.Code, Message: envelope.Error}
	}

	if target == nil {
		return nil
	}

	envelope := struct {
		Data any `json:"data"`
	}{Data: target}
	if err := json.NewDecoder(response.Body).Decode(&envelope); err != nil {
		return fmt.Errorf("authclient: failed to decode %s response: %w", path, err)
	}
	return nil
}
