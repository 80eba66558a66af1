// Package kioskclient is the HTTP client kiosks use to issue tickets and wait
// for the QR asset to be generated.
package kioskclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// DefaultSchedule is the wait between asset polls. Its length bounds the
// number of attempts.
var DefaultSchedule = []time.Duration{
	250 * time.Millisecond,
	500 * time.Millisecond,
	1 * time.Second,
	1 * time.Second,
	2 * time.Second,
	2 * time.Second,
	3 * time.Second,
}

// ErrAssetTimeout is returned when the asset is still pending after the last
// scheduled poll.
var ErrAssetTimeout = errors.New("kioskclient: asset not ready")

// APIError is a non-2xx response from the registration API.
type APIError struct {
	Status  int
	Message string
	Kind    string
	Fields  map[string][]string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("registration api: %d %s", e.Status, e.Message)
}

// Client talks to one registration API base URL.
type Client struct {
	baseURL  string
	http     *http.Client
	schedule []time.Duration
}

// Option customises a Client.
type Option func(*Client)

func WithHTTPClient(c *http.Client) Option {
	return func(cl *Client) { cl.http = c }
}

// WithSchedule replaces DefaultSchedule.
func WithSchedule(s []time.Duration) Option {
	return func(cl *Client) { cl.schedule = s }
}

func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL:  strings.TrimRight(baseURL, "/"),
		http:     &http.Client{Timeout: 10 * time.Second},
		schedule: DefaultSchedule,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Registrant is the intake payload.
type Registrant struct {
	FirstName        string            `json:"first_name"`
	LastName         string            `json:"last_name"`
	Email            string            `json:"email,omitempty"`
	Phone            string            `json:"phone,omitempty"`
	Address          string            `json:"address,omitempty"`
	CompanyName      string            `json:"company_name,omitempty"`
	Demographics     map[string]string `json:"demographics,omitempty"`
	RegistrationType string            `json:"registration_type"`
	PaymentStatus    string            `json:"payment_status,omitempty"`
}

// Ticket is the part of the issuance response a kiosk needs.
type Ticket struct {
	TicketNumber string
	AssetReady   bool
	AssetURL     string
	// Replayed is true when the idempotency key matched an earlier request.
	Replayed bool
}

// Register issues a ticket. idempotencyKey may be empty; kiosks should send
// one per form submission so a retried request returns the same ticket.
func (c *Client) Register(ctx context.Context, r Registrant, idempotencyKey string) (*Ticket, error) {
	body, err := json.Marshal(r)
	if err != nil {
		return nil, fmt.Errorf("encode registrant: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/registrations", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	if idempotencyKey != "" {
		req.Header.Set("Idempotency-Key", idempotencyKey)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("register: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusCreated && resp.StatusCode != http.StatusOK {
		return nil, decodeError(resp)
	}

	var out struct {
		Registration struct {
			TicketNumber string `json:"ticket_number"`
		} `json:"registration"`
		AssetReady bool   `json:"asset_ready"`
		AssetURL   string `json:"asset_url"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("decode registration: %w", err)
	}
	return &Ticket{
		TicketNumber: out.Registration.TicketNumber,
		AssetReady:   out.AssetReady,
		AssetURL:     out.AssetURL,
		Replayed:     resp.StatusCode == http.StatusOK,
	}, nil
}

// WaitForAsset fetches the QR image of ticketNumber, polling while the server
// answers 404. Any other non-200 status stops the wait.
func (c *Client) WaitForAsset(ctx context.Context, ticketNumber string) ([]byte, error) {
	target := c.baseURL + "/v1/assets/" + url.PathEscape(ticketNumber) + ".png"

	for attempt := 0; ; attempt++ {
		png, pending, err := c.fetchAsset(ctx, target)
		if err != nil || !pending {
			return png, err
		}
		if attempt >= len(c.schedule) {
			return nil, fmt.Errorf("%w after %d attempts", ErrAssetTimeout, attempt+1)
		}

		timer := time.NewTimer(c.schedule[attempt])
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, ctx.Err()
		case <-timer.C:
		}
	}
}

func (c *Client) fetchAsset(ctx context.Context, target string) (png []byte, pending bool, err error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, false, err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, false, fmt.Errorf("fetch asset: %w", err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
		png, err = io.ReadAll(resp.Body)
		if err != nil {
			return nil, false, fmt.Errorf("read asset: %w", err)
		}
		return png, false, nil
	case http.StatusNotFound:
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil, true, nil
	default:
		return nil, false, decodeError(resp)
	}
}

func decodeError(resp *http.Response) error {
	apiErr := &APIError{Status: resp.StatusCode, Message: http.StatusText(resp.StatusCode)}
	var body struct {
		Error  string              `json:"error"`
		Kind   string              `json:"kind"`
		Fields map[string][]string `json:"fields"`
	}
	if err := json.NewDecoder(io.LimitReader(resp.Body, 64<<10)).Decode(&body); err == nil && body.Error != "" {
		apiErr.Message = body.Error
		apiErr.Kind = body.Kind
		apiErr.Fields = body.Fields
	}
	return apiErr
}
