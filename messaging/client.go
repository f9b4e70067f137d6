// Copyright 2026 The Prologin Authors
// SPDX-License-Identifier: Apache-2.0

package messaging

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"github.com/prologin/prololo/lib/httpx"
	"github.com/prologin/prololo/lib/ref"
)

// ClientConfig holds configuration for creating a Client.
type ClientConfig struct {
	// HomeserverURL is the base URL of the Matrix homeserver
	// (e.g., "https://matrix.prologin.org").
	HomeserverURL string
	// HTTPClient is used for all requests. If nil,
	// http.DefaultClient is used.
	HTTPClient *http.Client
	// Logger is used for structured logging. If nil, slog.Default()
	// is used.
	Logger *slog.Logger
}

// Client is an unauthenticated Matrix client. It holds the homeserver
// URL and HTTP transport, shared by Sessions.
type Client struct {
	baseURL    string
	httpClient *http.Client
	logger     *slog.Logger
}

// NewClient creates a new unauthenticated Matrix client.
func NewClient(config ClientConfig) (*Client, error) {
	if config.HomeserverURL == "" {
		return nil, fmt.Errorf("messaging: HomeserverURL is required")
	}

	// Validate URL structure up front. Request URLs are built by
	// direct concatenation on the trimmed string form, which avoids
	// url.URL re-encoding surprises with already-escaped path
	// segments.
	parsed, err := url.Parse(config.HomeserverURL)
	if err != nil || parsed.Scheme == "" || parsed.Host == "" {
		return nil, fmt.Errorf("messaging: invalid HomeserverURL %q", config.HomeserverURL)
	}

	httpClient := config.HTTPClient
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Client{
		baseURL:    strings.TrimRight(config.HomeserverURL, "/"),
		httpClient: httpClient,
		logger:     logger,
	}, nil
}

// Login authenticates with the user's localpart and password
// (m.login.password) and returns an authenticated Session.
func (c *Client) Login(ctx context.Context, userID ref.UserID, password string) (*Session, error) {
	if userID.IsZero() {
		return nil, fmt.Errorf("messaging: user ID is required for login")
	}
	if password == "" {
		return nil, fmt.Errorf("messaging: password is required for login")
	}

	request := loginRequest{
		Type:                     "m.login.password",
		User:                     userID.Localpart(),
		Password:                 password,
		InitialDeviceDisplayName: "prololo",
	}
	var response AuthResponse
	if err := c.doRequest(ctx, http.MethodPost, "/_matrix/client/v3/login", "", request, &response); err != nil {
		return nil, fmt.Errorf("messaging: login failed: %w", err)
	}

	c.logger.Info("logged in to matrix",
		"user_id", response.UserID,
		"device_id", response.DeviceID,
	)

	return &Session{
		client:      c,
		accessToken: response.AccessToken,
		userID:      response.UserID,
		deviceID:    response.DeviceID,
	}, nil
}

// SessionFromToken creates a Session from an existing access token.
// The token is not validated here — call Session.WhoAmI to check it.
func (c *Client) SessionFromToken(userID ref.UserID, accessToken string) (*Session, error) {
	if userID.IsZero() {
		return nil, fmt.Errorf("messaging: user ID is required")
	}
	if accessToken == "" {
		return nil, fmt.Errorf("messaging: access token is required")
	}
	return &Session{
		client:      c,
		accessToken: accessToken,
		userID:      userID,
	}, nil
}

// doRequest performs an HTTP request to the homeserver. On 2xx, the
// body is decoded into responseBody (which may be nil to discard it).
// On 4xx/5xx, returns a *MatrixError. accessToken may be empty for
// unauthenticated endpoints.
func (c *Client) doRequest(ctx context.Context, method, path, accessToken string, requestBody, responseBody any) error {
	var bodyReader io.Reader
	if requestBody != nil {
		encoded, err := json.Marshal(requestBody)
		if err != nil {
			return fmt.Errorf("messaging: failed to encode request body: %w", err)
		}
		bodyReader = bytes.NewReader(encoded)
	}

	request, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, bodyReader)
	if err != nil {
		return fmt.Errorf("messaging: failed to create request: %w", err)
	}
	if requestBody != nil {
		request.Header.Set("Content-Type", "application/json")
	}
	if accessToken != "" {
		request.Header.Set("Authorization", "Bearer "+accessToken)
	}

	response, err := c.httpClient.Do(request)
	if err != nil {
		return fmt.Errorf("messaging: request to %s %s failed: %w", method, path, err)
	}
	defer response.Body.Close()

	if response.StatusCode >= 200 && response.StatusCode < 300 {
		if responseBody == nil {
			return nil
		}
		if err := httpx.DecodeResponse(response.Body, responseBody); err != nil {
			return fmt.Errorf("messaging: failed to parse %s %s response: %w", method, path, err)
		}
		return nil
	}

	errorBody, err := httpx.ReadResponse(response.Body)
	if err != nil {
		return fmt.Errorf("messaging: failed to read error response body: %w", err)
	}

	// All Matrix error responses share one JSON shape.
	var matrixErr MatrixError
	if jsonErr := json.Unmarshal(errorBody, &matrixErr); jsonErr != nil {
		// Non-JSON error from a non-compliant server or intermediate
		// proxy. Fail loud with the raw body.
		return fmt.Errorf("messaging: unexpected %d response from %s %s: %s",
			response.StatusCode, method, path, string(errorBody))
	}
	matrixErr.StatusCode = response.StatusCode
	return &matrixErr
}
