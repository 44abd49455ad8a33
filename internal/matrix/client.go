// Package matrix implements the subset of the Matrix Client-Server API
// the bot needs: long-poll sync, sending room messages, joining rooms,
// password login, media upload and fetching room power levels. Payload
// decoding for sync and power levels lives in internal/events; this
// package only moves bytes.
package matrix

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/striezel/botvinnik-sub001/internal/events"
	"github.com/striezel/botvinnik-sub001/pkg/ratelimit"
)

const (
	defaultTimeout = 15 * time.Second

	// syncSlack is added on top of the server-side long-poll timeout so
	// the local HTTP deadline fires only when the server is truly stuck.
	syncSlack = 10 * time.Second
)

// Client talks to one homeserver with one bot identity.
type Client struct {
	baseURL     string
	accessToken string
	userID      string
	httpClient  *http.Client
	syncClient  *http.Client
	limiter     *ratelimit.Limiter
}

// NewClient creates a client for the given homeserver and access token.
// The timeout bounds ordinary requests; sync requests get their own
// deadline derived from the long-poll timeout per call.
func NewClient(baseURL, accessToken, userID string, timeout time.Duration) *Client {
	if timeout == 0 {
		timeout = defaultTimeout
	}
	return &Client{
		baseURL:     cleanBaseURL(baseURL),
		accessToken: accessToken,
		userID:      userID,
		httpClient:  &http.Client{Timeout: timeout},
		syncClient:  &http.Client{},
		limiter:     limiterFor(baseURL),
	}
}

// UserID returns the Matrix user id of the bot.
func (c *Client) UserID() string {
	return c.userID
}

// SetRateLimit adjusts the outbound send pacing for this homeserver.
func (c *Client) SetRateLimit(rate float64, burst int) {
	c.limiter.SetRate(rate)
	c.limiter.SetBurst(burst)
}

// LoginWithPassword logs in with m.login.password and returns the access
// token and the canonical user id.
func LoginWithPassword(baseURL, userID, password string, timeout time.Duration) (string, string, error) {
	if timeout == 0 {
		timeout = defaultTimeout
	}

	payload := map[string]interface{}{
		"type": "m.login.password",
		"identifier": map[string]interface{}{
			"type": "m.id.user",
			"user": localpart(userID),
		},
		"password": password,
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return "", "", fmt.Errorf("failed to marshal login payload: %w", err)
	}

	client := &http.Client{Timeout: timeout}
	endpoint := cleanBaseURL(baseURL) + "/_matrix/client/v3/login"

	var lastErr error
	for attempt := 0; attempt <= defaultRateLimitRetries; attempt++ {
		req, err := http.NewRequest(http.MethodPost, endpoint, bytes.NewReader(body))
		if err != nil {
			return "", "", fmt.Errorf("failed to create login request: %w", err)
		}
		req.Header.Set("Content-Type", "application/json")

		resp, err := client.Do(req)
		if err != nil {
			lastErr = fmt.Errorf("login request failed: %w", err)
			time.Sleep(time.Duration(1<<attempt) * time.Second)
			continue
		}

		respBody, _ := io.ReadAll(resp.Body)
		resp.Body.Close()

		if resp.StatusCode >= 200 && resp.StatusCode < 300 {
			var result struct {
				AccessToken string `json:"access_token"`
				UserID      string `json:"user_id"`
			}
			if err := json.Unmarshal(respBody, &result); err != nil {
				return "", "", fmt.Errorf("failed to parse login response: %w", err)
			}
			if result.AccessToken == "" {
				return "", "", fmt.Errorf("login response missing access_token")
			}
			return result.AccessToken, result.UserID, nil
		}

		lastErr = fmt.Errorf("login failed: %w", serverError(resp.StatusCode, respBody))
		if wait := retryAfterFromError(lastErr); wait > 0 {
			sleepWithLog("login", wait)
			continue
		}
		break
	}

	return "", "", lastErr
}

// Sync performs one long-poll sync request and returns the raw response
// body. Decoding is the caller's concern so that a parse failure cannot
// be confused with a transport failure.
func (c *Client) Sync(since string, timeout time.Duration, filter string) ([]byte, error) {
	params := url.Values{}
	if since != "" {
		params.Set("since", since)
	}
	if timeout > 0 {
		params.Set("timeout", fmt.Sprintf("%d", timeout.Milliseconds()))
	}
	if filter != "" {
		params.Set("filter", filter)
	}
	params.Set("set_presence", "offline")

	endpoint := c.baseURL + "/_matrix/client/v3/sync?" + params.Encode()
	req, err := http.NewRequest(http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create sync request: %w", err)
	}
	c.addAuth(req)

	client := c.syncClient
	if timeout > 0 {
		client = &http.Client{Timeout: timeout + syncSlack}
	}

	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("sync request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read sync response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("sync failed: %w", serverError(resp.StatusCode, body))
	}

	return body, nil
}

// SendMessage sends a text message to the given room. Messages with a
// formatted body are sent as org.matrix.custom.html. Empty messages are
// dropped silently.
func (c *Client) SendMessage(roomID string, msg Message) error {
	if roomID == "" {
		return fmt.Errorf("room ID is required")
	}
	if msg.IsEmpty() {
		return nil
	}

	payload := map[string]interface{}{
		"msgtype": "m.text",
		"body":    msg.Body,
	}
	if msg.FormattedBody != "" {
		payload["format"] = "org.matrix.custom.html"
		payload["formatted_body"] = msg.FormattedBody
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal message payload: %w", err)
	}

	waitForLimiter(c.limiter)

	var lastErr error
	for attempt := 0; attempt <= defaultRateLimitRetries; attempt++ {
		endpoint := fmt.Sprintf("%s/_matrix/client/v3/rooms/%s/send/m.room.message/%s",
			c.baseURL, url.PathEscape(roomID), url.PathEscape(newTxnID()))

		req, err := http.NewRequest(http.MethodPut, endpoint, bytes.NewReader(data))
		if err != nil {
			return fmt.Errorf("failed to create send request: %w", err)
		}
		c.addAuth(req)
		req.Header.Set("Content-Type", "application/json")

		resp, err := c.httpClient.Do(req)
		if err != nil {
			return fmt.Errorf("send request failed: %w", err)
		}
		body, _ := io.ReadAll(resp.Body)
		resp.Body.Close()

		if resp.StatusCode >= 200 && resp.StatusCode < 300 {
			return nil
		}

		lastErr = fmt.Errorf("send failed: %w", serverError(resp.StatusCode, body))
		wait := retryAfterFromError(lastErr)
		if wait == 0 {
			return lastErr
		}
		c.limiter.Pause(wait)
		sleepWithLog("send", wait)
	}

	return lastErr
}

// JoinRoom joins a room by id or alias and returns the resolved room id.
func (c *Client) JoinRoom(room string) (string, error) {
	if room == "" {
		return "", fmt.Errorf("room is required")
	}

	endpoint := fmt.Sprintf("%s/_matrix/client/v3/join/%s", c.baseURL, url.PathEscape(room))
	if domain := extractRoomDomain(room); domain != "" {
		query := url.Values{}
		query.Add("server_name", domain)
		endpoint = endpoint + "?" + query.Encode()
	}

	req, err := http.NewRequest(http.MethodPost, endpoint, nil)
	if err != nil {
		return "", fmt.Errorf("failed to create join request: %w", err)
	}
	c.addAuth(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("join request failed: %w", err)
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(resp.Body)
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", fmt.Errorf("join failed: %w", serverError(resp.StatusCode, body))
	}

	var result struct {
		RoomID string `json:"room_id"`
	}
	if err := json.Unmarshal(body, &result); err != nil {
		return "", fmt.Errorf("failed to parse join response: %w", err)
	}
	if result.RoomID == "" {
		return "", fmt.Errorf("join response missing room_id")
	}

	return result.RoomID, nil
}

// UploadMedia uploads raw bytes to the media repository and returns the
// mxc:// content URI. Callers decide what to do on failure; the usual
// recovery is to keep referencing the original external URL.
func (c *Client) UploadMedia(data []byte, contentType, filename string) (string, error) {
	if len(data) == 0 {
		return "", fmt.Errorf("no data to upload")
	}
	if contentType == "" {
		contentType = "application/octet-stream"
	}

	endpoint := c.baseURL + "/_matrix/media/v3/upload"
	if filename != "" {
		endpoint += "?" + url.Values{"filename": {filename}}.Encode()
	}

	req, err := http.NewRequest(http.MethodPost, endpoint, bytes.NewReader(data))
	if err != nil {
		return "", fmt.Errorf("failed to create upload request: %w", err)
	}
	c.addAuth(req)
	req.Header.Set("Content-Type", contentType)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("upload request failed: %w", err)
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(resp.Body)
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", fmt.Errorf("upload failed: %w", serverError(resp.StatusCode, body))
	}

	var result struct {
		ContentURI string `json:"content_uri"`
	}
	if err := json.Unmarshal(body, &result); err != nil {
		return "", fmt.Errorf("failed to parse upload response: %w", err)
	}
	if result.ContentURI == "" {
		return "", fmt.Errorf("upload response missing content_uri")
	}

	return result.ContentURI, nil
}

// RoomPowerLevels fetches the current m.room.power_levels state of a
// room. The snapshot may be stale the moment it is returned; callers
// cache it on their own schedule.
func (c *Client) RoomPowerLevels(roomID string) (events.PowerLevels, error) {
	if roomID == "" {
		return events.PowerLevels{}, fmt.Errorf("room ID is required")
	}

	endpoint := fmt.Sprintf("%s/_matrix/client/v3/rooms/%s/state/m.room.power_levels",
		c.baseURL, url.PathEscape(roomID))

	req, err := http.NewRequest(http.MethodGet, endpoint, nil)
	if err != nil {
		return events.PowerLevels{}, fmt.Errorf("failed to create state request: %w", err)
	}
	c.addAuth(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return events.PowerLevels{}, fmt.Errorf("state request failed: %w", err)
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(resp.Body)
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return events.PowerLevels{}, fmt.Errorf("power levels fetch failed: %w", serverError(resp.StatusCode, body))
	}

	return events.ParsePowerLevels(body)
}

func (c *Client) addAuth(req *http.Request) {
	if c.accessToken != "" {
		req.Header.Set("Authorization", "Bearer "+c.accessToken)
	}
}

func cleanBaseURL(raw string) string {
	trimmed := strings.TrimRight(strings.TrimSpace(raw), "/")
	if idx := strings.Index(trimmed, "/_matrix"); idx != -1 {
		return trimmed[:idx]
	}
	return trimmed
}

func localpart(userID string) string {
	if strings.HasPrefix(userID, "@") {
		userID = strings.TrimPrefix(userID, "@")
		if idx := strings.Index(userID, ":"); idx != -1 {
			return userID[:idx]
		}
	}
	return userID
}

func extractRoomDomain(room string) string {
	if idx := strings.Index(room, ":"); idx != -1 && idx+1 < len(room) {
		return room[idx+1:]
	}
	return ""
}

func newTxnID() string {
	return "bot-" + uuid.NewString()
}
