package provider

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"tg_ingest/internal/model"
)

// HTTPClient is the interface for performing HTTP requests.
type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

const (
	maxResponseBytes = 5 * 1024 * 1024
	defaultWait      = 30 * time.Second
)

// Gateway is an HTTP client for the provider's history gateway, the
// service that proxies source listings and paginated message history.
type Gateway struct {
	client  HTTPClient
	baseURL string
}

// NewGateway creates a Gateway for the given base URL.
func NewGateway(client HTTPClient, baseURL string) *Gateway {
	return &Gateway{
		client:  client,
		baseURL: strings.TrimRight(baseURL, "/"),
	}
}

type sourceDTO struct {
	ID   string `json:"id"`
	Type string `json:"type"`
	Name string `json:"name"`
}

type messageDTO struct {
	ID     int64  `json:"id"`
	Text   string `json:"text"`
	Sender string `json:"sender"`
	Date   string `json:"date"`
}

// ListSources returns all sources the gateway account can read.
func (g *Gateway) ListSources(ctx context.Context) ([]SourceInfo, error) {
	body, err := g.get(ctx, g.baseURL+"/sources")
	if err != nil {
		return nil, err
	}

	var dtos []sourceDTO
	if err := json.Unmarshal(body, &dtos); err != nil {
		return nil, fmt.Errorf("parse sources: %w", err)
	}

	sources := make([]SourceInfo, 0, len(dtos))
	for _, d := range dtos {
		sources = append(sources, SourceInfo{
			ID:   d.ID,
			Type: model.SourceType(d.Type),
			Name: d.Name,
		})
	}
	return sources, nil
}

// FetchMessages returns up to limit messages from sourceID older than
// beforeID, newest first.
func (g *Gateway) FetchMessages(ctx context.Context, sourceID string, limit int, beforeID int64) ([]RawMessage, error) {
	u := fmt.Sprintf("%s/sources/%s/messages?limit=%d", g.baseURL, url.PathEscape(sourceID), limit)
	if beforeID > 0 {
		u += fmt.Sprintf("&before_id=%d", beforeID)
	}

	body, err := g.get(ctx, u)
	if err != nil {
		return nil, err
	}

	var dtos []messageDTO
	if err := json.Unmarshal(body, &dtos); err != nil {
		return nil, fmt.Errorf("parse messages: %w", err)
	}

	msgs := make([]RawMessage, 0, len(dtos))
	for _, d := range dtos {
		sentAt, err := time.Parse(time.RFC3339, d.Date)
		if err != nil {
			return nil, fmt.Errorf("parse message %d date: %w", d.ID, err)
		}
		msgs = append(msgs, RawMessage{
			ID:     d.ID,
			Text:   d.Text,
			Sender: d.Sender,
			SentAt: sentAt.UTC(),
		})
	}
	return msgs, nil
}

func (g *Gateway) get(ctx context.Context, u string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := g.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("http get: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if err := statusError(resp); err != nil {
		return nil, err
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}
	return body, nil
}

// statusError maps a non-200 response to the provider error taxonomy.
func statusError(resp *http.Response) error {
	switch {
	case resp.StatusCode == http.StatusOK:
		return nil
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return &FatalError{Status: resp.StatusCode}
	case resp.StatusCode == http.StatusTooManyRequests:
		return &RateLimitedError{Wait: retryAfter(resp)}
	case resp.StatusCode == 420:
		return &SlowModeError{Wait: retryAfter(resp)}
	default:
		return &TransientError{Status: resp.StatusCode}
	}
}

func retryAfter(resp *http.Response) time.Duration {
	v := resp.Header.Get("Retry-After")
	if v == "" {
		return defaultWait
	}
	secs, err := strconv.Atoi(v)
	if err != nil || secs < 0 {
		return defaultWait
	}
	return time.Duration(secs) * time.Second
}
