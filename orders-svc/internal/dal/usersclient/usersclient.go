// Package usersclient asks the users service whether a user exists.
package usersclient

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
)

// Client is the synchronous existence check against the users service.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// NewClient creates a client for the users service at baseURL.
// A nil transport uses http.DefaultTransport.
func NewClient(baseURL string, transport http.RoundTripper) *Client {
	if transport == nil {
		transport = http.DefaultTransport
	}

	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Transport: transport},
	}
}

// ErrUnexpectedBody is returned when a 2xx response does not describe the requested user.
var ErrUnexpectedBody = errors.New("users service returned an unexpected body")

// userBody is the part of the users service payload the check relies on.
type userBody struct {
	ID string `json:"id"`
}

// Exists reports whether the users service knows id. A 404 is an authoritative
// false; any other non-2xx status and every transport failure is returned as an error.
// A 2xx only counts when its body is the user with that id, so fixed routes such as
// /health never confirm a user. The deadline is taken from ctx.
func (c *Client) Exists(ctx context.Context, id string) (bool, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/"+url.PathEscape(id), nil)
	if err != nil {
		return false, fmt.Errorf("failed to build users request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return false, fmt.Errorf("users service request failed: %w", err)
	}
	defer func() {
		_, _ = io.Copy(io.Discard, resp.Body)
		_ = resp.Body.Close()
	}()

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		var body userBody
		if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
			return false, fmt.Errorf("%w: %w", ErrUnexpectedBody, err)
		}
		if body.ID != id {
			return false, fmt.Errorf("%w: got id %q for %q", ErrUnexpectedBody, body.ID, id)
		}

		return true, nil
	case resp.StatusCode == http.StatusNotFound:
		return false, nil
	default:
		return false, fmt.Errorf("users service responded %d", resp.StatusCode)
	}
}
