// Package identity calls the central authorization service that decides
// which lecturers may manage which classes. The engine falls back to its
// built-in ownership rule when no service is configured.
package identity

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"rollcall/internal/attendance"
)

// Client calls the identity microservice.
type Client struct {
	BaseURL string
	HTTP    *http.Client
	Skip    bool
}

// New creates a client. With skip set, every check passes locally, which
// is the dev-mode default.
func New(baseURL string, skip bool) *Client {
	return &Client{
		BaseURL: baseURL,
		Skip:    skip,
		HTTP: &http.Client{
			Timeout: 5 * time.Second,
		},
	}
}

// CanManage asks whether a caller may manage a class's sessions. A denial
// comes back as attendance.ErrNotAllowed; transport and service failures
// come back as plain errors so the engine can report them as transient.
func (c *Client) CanManage(ctx context.Context, callerID, classID string) error {
	if c.Skip {
		return nil
	}
	body, _ := json.Marshal(map[string]string{
		"user_id":  callerID,
		"class_id": classID,
		"action":   "manage_sessions",
	})
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL+"/authorize", bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.HTTP.Do(req)
	if err != nil {
		return fmt.Errorf("identity service request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusForbidden {
		return attendance.ErrNotAllowed
	}
	if resp.StatusCode >= 300 {
		bodyBytes, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("identity service error %s: %s", resp.Status, string(bodyBytes))
	}

	var out struct {
		Allowed bool `json:"allowed"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	if !out.Allowed {
		return attendance.ErrNotAllowed
	}
	return nil
}

// Health checks if the identity service is available.
func (c *Client) Health(ctx context.Context) error {
	if c.Skip {
		return nil
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.BaseURL+"/health", nil)
	if err != nil {
		return err
	}
	resp, err := c.HTTP.Do(req)
	if err != nil {
		return fmt.Errorf("identity service unavailable: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return fmt.Errorf("identity service unhealthy: %s", resp.Status)
	}
	return nil
}
