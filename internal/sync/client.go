package sync

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
)

// Push wire types, matching the remote contract.

// PushEvent is one outbound event within a push request
type PushEvent struct {
	ClientEventID uuid.UUID       `json:"client_event_id"`
	Type          string          `json:"type"`
	Payload       json.RawMessage `json:"payload"`
	OccurredAt    *time.Time      `json:"occurred_at,omitempty"`
}

// PushRequest is the body of POST /sync/events
type PushRequest struct {
	DeviceID uuid.UUID   `json:"device_id"`
	Events   []PushEvent `json:"events"`
}

// Per-event verdict statuses returned by the remote system
const (
	VerdictAccepted  = "ACCEPTED"
	VerdictRejected  = "REJECTED"
	VerdictDuplicate = "DUPLICATE"
)

// PushResult is the remote system's verdict on a single event
type PushResult struct {
	ClientEventID uuid.UUID       `json:"client_event_id"`
	Status        string          `json:"status"`
	ErrorCode     string          `json:"error_code,omitempty"`
	ErrorMessage  string          `json:"error_message,omitempty"`
	Response      json.RawMessage `json:"response,omitempty"`
}

// PushResponse is the body returned by POST /sync/events
type PushResponse struct {
	DeviceID uuid.UUID    `json:"device_id"`
	Results  []PushResult `json:"results"`
}

// RemoteEvent is one inbound event on the remote stream
type RemoteEvent struct {
	ID            string          `json:"id"`
	AggregateType string          `json:"aggregate_type"`
	AggregateID   string          `json:"aggregate_id"`
	EventType     string          `json:"event_type"`
	Payload       json.RawMessage `json:"payload"`
	CreatedAt     time.Time       `json:"created_at"`
}

// PullResponse is the body returned by GET /sync/events
type PullResponse struct {
	Events     []RemoteEvent `json:"events"`
	NextCursor *string       `json:"next_cursor"`
}

// StatusError reports a response received with a non-success status. Its
// absence on a failed call means the failure was at the transport level.
type StatusError struct {
	StatusCode int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("remote returned status %d", e.StatusCode)
}

// TokenSource supplies the bearer credential attached to every request.
// The token lifecycle itself is owned by the authentication layer.
type TokenSource interface {
	Token(ctx context.Context) (string, error)
}

// StaticToken is a TokenSource for a fixed credential
type StaticToken string

// Token returns the fixed credential
func (t StaticToken) Token(ctx context.Context) (string, error) {
	return string(t), nil
}

// Client speaks the push/pull contract with the remote system of record
type Client struct {
	baseURL    string
	httpClient *http.Client
	tokens     TokenSource
}

// NewClient creates a new sync client
func NewClient(baseURL string, timeout time.Duration, tokens TokenSource) *Client {
	return &Client{
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: timeout},
		tokens:     tokens,
	}
}

// PushEvents delivers a batch of outbound events and returns the per-event
// verdicts
func (c *Client) PushEvents(ctx context.Context, request PushRequest) (*PushResponse, error) {
	body, err := json.Marshal(request)
	if err != nil {
		return nil, errors.Wrap(err, "failed to marshal push request")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/sync/events", bytes.NewReader(body))
	if err != nil {
		return nil, errors.Wrap(err, "failed to build push request")
	}
	req.Header.Set("Content-Type", "application/json")
	if err := c.authorize(ctx, req); err != nil {
		return nil, err
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, errors.Wrap(err, "push request failed")
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &StatusError{StatusCode: resp.StatusCode}
	}

	var response PushResponse
	if err := json.NewDecoder(resp.Body).Decode(&response); err != nil {
		return nil, errors.Wrap(err, "failed to decode push response")
	}

	return &response, nil
}

// PullEvents fetches one page of the inbound event stream starting at the
// given cursor. An empty cursor starts from the beginning of the stream.
func (c *Client) PullEvents(ctx context.Context, cursor string, limit int) (*PullResponse, error) {
	query := url.Values{}
	if cursor != "" {
		query.Set("cursor", cursor)
	}
	query.Set("limit", strconv.Itoa(limit))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/sync/events?"+query.Encode(), nil)
	if err != nil {
		return nil, errors.Wrap(err, "failed to build pull request")
	}
	if err := c.authorize(ctx, req); err != nil {
		return nil, err
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, errors.Wrap(err, "pull request failed")
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &StatusError{StatusCode: resp.StatusCode}
	}

	var response PullResponse
	if err := json.NewDecoder(resp.Body).Decode(&response); err != nil {
		return nil, errors.Wrap(err, "failed to decode pull response")
	}

	return &response, nil
}

func (c *Client) authorize(ctx context.Context, req *http.Request) error {
	if c.tokens == nil {
		return nil
	}
	token, err := c.tokens.Token(ctx)
	if err != nil {
		return errors.Wrap(err, "failed to obtain auth token")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	return nil
}
