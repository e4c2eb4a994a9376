package chatsync

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
)

type HTTPError struct {
	StatusCode int
	Code       string
	Message    string
}

func (e *HTTPError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("http %d %s: %s", e.StatusCode, e.Code, e.Message)
	}
	return fmt.Sprintf("http %d: %s", e.StatusCode, e.Message)
}

// Remote is the REST surface the engine consumes: snapshot reads used
// for catch-up on (re)connect plus the few actions the stores cannot
// resolve locally.
type Remote interface {
	FetchUnreadMessageCount(ctx context.Context) (int, error)
	FetchUnreadNotificationCount(ctx context.Context) (int, error)
	ListNotifications(ctx context.Context, cursor string, limit int) (NotificationFeed, error)
	MarkNotificationRead(ctx context.Context, notificationID string) error
	MarkAllNotificationsRead(ctx context.Context) error
	GetOrCreateConversation(ctx context.Context, participantID string) (Conversation, error)
	ListMessagesBefore(ctx context.Context, conversationID, beforeMessageID string, limit int) (MessageFeed, error)
}

type HTTPClient struct {
	baseURL    string
	token      string
	httpClient *http.Client
	maxRetries int
	baseDelay  time.Duration
	maxDelay   time.Duration
}

func NewHTTPClient(baseURL, token string, httpClient *http.Client) *HTTPClient {
	baseURL = strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if baseURL == "" {
		baseURL = "http://127.0.0.1:8080"
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 15 * time.Second}
	}
	return &HTTPClient{
		baseURL:    baseURL,
		token:      strings.TrimSpace(token),
		httpClient: httpClient,
		maxRetries: 3,
		baseDelay:  100 * time.Millisecond,
		maxDelay:   2 * time.Second,
	}
}

func (c *HTTPClient) FetchUnreadMessageCount(ctx context.Context) (int, error) {
	var out UnreadCountResponse
	err := c.doJSON(ctx, http.MethodGet, "/v1/messages/unread-count", nil, &out)
	return out.Count, err
}

func (c *HTTPClient) FetchUnreadNotificationCount(ctx context.Context) (int, error) {
	var out UnreadCountResponse
	err := c.doJSON(ctx, http.MethodGet, "/v1/notifications/unread-count", nil, &out)
	return out.Count, err
}

func (c *HTTPClient) ListNotifications(ctx context.Context, cursor string, limit int) (NotificationFeed, error) {
	q := url.Values{}
	if strings.TrimSpace(cursor) != "" {
		q.Set("cursor", strings.TrimSpace(cursor))
	}
	if limit > 0 {
		q.Set("limit", strconv.Itoa(limit))
	}
	path := "/v1/notifications"
	if encoded := q.Encode(); encoded != "" {
		path += "?" + encoded
	}
	var out NotificationFeed
	err := c.doJSON(ctx, http.MethodGet, path, nil, &out)
	return out, err
}

func (c *HTTPClient) MarkNotificationRead(ctx context.Context, notificationID string) error {
	if strings.TrimSpace(notificationID) == "" {
		return fmt.Errorf("notification id is required")
	}
	path := fmt.Sprintf("/v1/notifications/%s/read", url.PathEscape(notificationID))
	return c.doJSON(ctx, http.MethodPost, path, nil, nil)
}

func (c *HTTPClient) MarkAllNotificationsRead(ctx context.Context) error {
	return c.doJSON(ctx, http.MethodPost, "/v1/notifications/read-all", nil, nil)
}

func (c *HTTPClient) GetOrCreateConversation(ctx context.Context, participantID string) (Conversation, error) {
	if strings.TrimSpace(participantID) == "" {
		return Conversation{}, fmt.Errorf("participant id is required")
	}
	body := map[string]any{"participantId": participantID}
	var out Conversation
	err := c.doJSON(ctx, http.MethodPost, "/v1/conversations", body, &out)
	return out, err
}

func (c *HTTPClient) ListMessagesBefore(ctx context.Context, conversationID, beforeMessageID string, limit int) (MessageFeed, error) {
	if strings.TrimSpace(conversationID) == "" {
		return MessageFeed{}, fmt.Errorf("conversation id is required")
	}
	q := url.Values{}
	if strings.TrimSpace(beforeMessageID) != "" {
		q.Set("before", strings.TrimSpace(beforeMessageID))
	}
	if limit > 0 {
		q.Set("limit", strconv.Itoa(limit))
	}
	path := fmt.Sprintf("/v1/conversations/%s/messages", url.PathEscape(conversationID))
	if encoded := q.Encode(); encoded != "" {
		path += "?" + encoded
	}
	var out MessageFeed
	err := c.doJSON(ctx, http.MethodGet, path, nil, &out)
	return out, err
}

func (c *HTTPClient) doJSON(ctx context.Context, method, requestPath string, body, out any) error {
	var bodyBytes []byte
	if body != nil {
		var err error
		bodyBytes, err = json.Marshal(body)
		if err != nil {
			return err
		}
	}
	for attempt := 0; ; attempt++ {
		var bodyReader io.Reader
		if bodyBytes != nil {
			bodyReader = bytes.NewReader(bodyBytes)
		}
		req, err := http.NewRequestWithContext(ctx, method, c.baseURL+requestPath, bodyReader)
		if err != nil {
			return err
		}
		req.Header.Set("Authorization", "Bearer "+c.token)
		req.Header.Set("X-Correlation-Id", uuid.NewString())
		if body != nil {
			req.Header.Set("Content-Type", "application/json")
		}

		resp, err := c.httpClient.Do(req)
		if err != nil {
			if attempt < c.maxRetries {
				if waitErr := waitWithContext(ctx, c.retryDelay(attempt+1, "")); waitErr != nil {
					return waitErr
				}
				continue
			}
			return err
		}
		payloadBytes, readErr := io.ReadAll(resp.Body)
		_ = resp.Body.Close()
		if readErr != nil {
			return readErr
		}

		if resp.StatusCode >= 200 && resp.StatusCode <= 299 {
			if out == nil || len(payloadBytes) == 0 {
				return nil
			}
			return json.Unmarshal(payloadBytes, out)
		}

		if (resp.StatusCode == http.StatusTooManyRequests || (resp.StatusCode >= 500 && resp.StatusCode <= 599)) && attempt < c.maxRetries {
			if waitErr := waitWithContext(ctx, c.retryDelay(attempt+1, resp.Header.Get("Retry-After"))); waitErr != nil {
				return waitErr
			}
			continue
		}

		var errPayload struct {
			Code    string `json:"code"`
			Message string `json:"message"`
		}
		_ = json.Unmarshal(payloadBytes, &errPayload)
		return &HTTPError{
			StatusCode: resp.StatusCode,
			Code:       errPayload.Code,
			Message:    errPayload.Message,
		}
	}
}

func (c *HTTPClient) retryDelay(attempt int, retryAfterHeader string) time.Duration {
	maxDelay := c.maxDelay
	if maxDelay <= 0 {
		maxDelay = 2 * time.Second
	}
	if retryAfter := parseRetryAfter(retryAfterHeader); retryAfter > 0 {
		if retryAfter > maxDelay {
			return maxDelay
		}
		return retryAfter
	}
	delay := c.baseDelay
	if delay <= 0 {
		delay = 100 * time.Millisecond
	}
	for i := 1; i < attempt; i++ {
		delay *= 2
		if delay >= maxDelay {
			return maxDelay
		}
	}
	if delay > maxDelay {
		return maxDelay
	}
	return delay
}

func parseRetryAfter(header string) time.Duration {
	header = strings.TrimSpace(header)
	if header == "" {
		return 0
	}
	if seconds, err := strconv.Atoi(header); err == nil && seconds >= 0 {
		return time.Duration(seconds) * time.Second
	}
	if ts, err := time.Parse(time.RFC1123, header); err == nil {
		delta := time.Until(ts)
		if delta > 0 {
			return delta
		}
	}
	return 0
}

func waitWithContext(ctx context.Context, delay time.Duration) error {
	if delay <= 0 {
		return nil
	}
	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
