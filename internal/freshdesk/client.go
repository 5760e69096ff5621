package freshdesk

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
	"time"

	"go.uber.org/zap"

	"github.com/spec-kit/ticket-sync/internal/config"
	"github.com/spec-kit/ticket-sync/internal/domain"
)

// StatusOpen is the external status code for open tickets.
const StatusOpen = 2

// ErrNotConfigured is returned when no API base URL is available.
var ErrNotConfigured = errors.New("freshdesk: domain or base url not configured")

// Ticket is the subset of an external ticket the sync needs.
type Ticket struct {
	ID              int64     `json:"id"`
	Subject         string    `json:"subject"`
	DescriptionText *string   `json:"description_text"`
	Description     *string   `json:"description"`
	Status          int       `json:"status"`
	UpdatedAt       time.Time `json:"updated_at"`
}

// ExternalID renders the numeric id as the local external id.
func (t Ticket) ExternalID() string {
	return strconv.FormatInt(t.ID, 10)
}

// IsOpen reports whether the ticket is eligible for the pipeline.
func (t Ticket) IsOpen() bool {
	return t.Status == StatusOpen
}

// DescriptionBody prefers the plain text description over the HTML one.
func (t Ticket) DescriptionBody() string {
	if t.DescriptionText != nil {
		return *t.DescriptionText
	}
	if t.Description != nil {
		return *t.Description
	}
	return ""
}

type conversation struct {
	ID        int64   `json:"id"`
	BodyText  *string `json:"body_text"`
	Private   bool    `json:"private"`
	Incoming  bool    `json:"incoming"`
	UserID    *int64  `json:"user_id"`
	CreatedAt string  `json:"created_at"`
}

// APIError describes a non-2xx response.
type APIError struct {
	Method     string
	Path       string
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("freshdesk: %s %s returned %d: %s", e.Method, e.Path, e.StatusCode, e.Body)
}

// IsNotFound reports whether err is a 404 from the API.
func IsNotFound(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusNotFound
}

// Client talks to the Freshdesk v2 REST API.
type Client struct {
	baseURL string
	apiKey  string
	perPage int
	http    *http.Client
	logger  *zap.Logger
}

// NewClient builds a client from configuration.
func NewClient(cfg config.FreshdeskConfig, logger *zap.Logger) *Client {
	return &Client{
		baseURL: cfg.APIBaseURL(),
		apiKey:  cfg.APIKey,
		perPage: cfg.PerPage,
		http:    &http.Client{Timeout: cfg.Timeout()},
		logger:  logger,
	}
}

// FetchUpdatedSince lists tickets newest first. A nil since requests a full listing.
// Only the first page is read.
func (c *Client) FetchUpdatedSince(ctx context.Context, since *time.Time) ([]Ticket, error) {
	query := url.Values{}
	query.Set("order_by", "updated_at")
	query.Set("order_type", "desc")
	query.Set("per_page", strconv.Itoa(c.perPage))
	query.Set("include", "description")
	if since != nil {
		query.Set("updated_since", since.UTC().Format(time.RFC3339))
	}

	var tickets []Ticket
	if err := c.do(ctx, http.MethodGet, "/tickets", query, nil, &tickets); err != nil {
		return nil, err
	}
	return tickets, nil
}

// FetchConversationThread returns the ticket's conversation turns in API order.
// A missing ticket yields an empty thread.
func (c *Client) FetchConversationThread(ctx context.Context, externalID string) ([]domain.Conversation, error) {
	var raw []conversation
	err := c.do(ctx, http.MethodGet, "/tickets/"+url.PathEscape(externalID)+"/conversations", nil, nil, &raw)
	if IsNotFound(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	turns := make([]domain.Conversation, 0, len(raw))
	for _, conv := range raw {
		turn := domain.Conversation{
			ID:        conv.ID,
			IsPrivate: conv.Private,
			Incoming:  conv.Incoming,
			UserID:    conv.UserID,
			CreatedAt: conv.CreatedAt,
		}
		if conv.BodyText != nil {
			turn.BodyText = *conv.BodyText
		}
		turns = append(turns, turn)
	}
	return turns, nil
}

// PushReply posts text as a public reply on the ticket.
func (c *Client) PushReply(ctx context.Context, externalID, text string) error {
	body := map[string]string{"body": text}
	return c.do(ctx, http.MethodPost, "/tickets/"+url.PathEscape(externalID)+"/reply", nil, body, nil)
}

func (c *Client) do(ctx context.Context, method, path string, query url.Values, in, out any) error {
	if c.baseURL == "" {
		return ErrNotConfigured
	}

	target := c.baseURL + path
	if len(query) > 0 {
		target += "?" + query.Encode()
	}

	var reader io.Reader
	if in != nil {
		payload, err := json.Marshal(in)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, target, reader)
	if err != nil {
		return err
	}
	req.SetBasicAuth(c.apiKey, "X")
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("freshdesk: %s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	c.logger.Debug("freshdesk call",
		zap.String("method", method),
		zap.String("path", path),
		zap.Int("status", resp.StatusCode),
		zap.Duration("duration", time.Since(start)),
	)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return &APIError{Method: method, Path: path, StatusCode: resp.StatusCode, Body: string(snippet)}
	}

	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("freshdesk: decode %s: %w", path, err)
	}
	return nil
}
