// Package strapi is a small client for the headless content backend that holds
// the catalog, customers, orders and favorites. Every payload travels inside a
// "data" envelope; list responses also carry pagination metadata.
package strapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"ourofino-storefront/internal/domain"
)

// Entity is one record: numeric id plus collection specific attributes.
type Entity struct {
	ID         int             `json:"id"`
	Attributes json.RawMessage `json:"attributes"`
}

// Decode unmarshals the attributes into v.
func (e Entity) Decode(v any) error {
	if len(e.Attributes) == 0 {
		return nil
	}
	return json.Unmarshal(e.Attributes, v)
}

type Pagination struct {
	Page      int `json:"page"`
	PageSize  int `json:"pageSize"`
	PageCount int `json:"pageCount"`
	Total     int `json:"total"`
}

type ListResponse struct {
	Data []Entity `json:"data"`
	Meta struct {
		Pagination Pagination `json:"pagination"`
	} `json:"meta"`
}

// Relation is a populated to-one relation.
type Relation struct {
	Data *Entity `json:"data"`
}

// RelationList is a populated to-many relation.
type RelationList struct {
	Data []Entity `json:"data"`
}

// Media is a populated upload field; only the URL is used.
type Media struct {
	Data []struct {
		ID         int `json:"id"`
		Attributes struct {
			URL string `json:"url"`
		} `json:"attributes"`
	} `json:"data"`
}

// URLs returns the media URLs in order.
func (m Media) URLs() []string {
	out := make([]string, 0, len(m.Data))
	for _, d := range m.Data {
		if d.Attributes.URL != "" {
			out = append(out, d.Attributes.URL)
		}
	}
	return out
}

// Connect builds a relation payload attaching ids.
func Connect(ids ...int) map[string]any {
	return map[string]any{"connect": ids}
}

// APIError is a non-2xx response.
type APIError struct {
	Status int
	Body   string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("strapi: status %d: %s", e.Status, e.Body)
}

type Client struct {
	baseURL string
	token   string
	http    *http.Client
	logger  *zap.Logger
}

func New(baseURL, token string, httpClient *http.Client, logger *zap.Logger) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 15 * time.Second}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
		http:    httpClient,
		logger:  logger,
	}
}

func (c *Client) List(ctx context.Context, collection string, q *Query) (*ListResponse, error) {
	var out ListResponse
	if err := c.do(ctx, http.MethodGet, c.path(collection, 0, q), nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Get fetches one record. A 404 maps to domain.ErrNotFound.
func (c *Client) Get(ctx context.Context, collection string, id int, q *Query) (*Entity, error) {
	var out struct {
		Data *Entity `json:"data"`
	}
	if err := c.do(ctx, http.MethodGet, c.path(collection, id, q), nil, &out); err != nil {
		return nil, err
	}
	if out.Data == nil {
		return nil, domain.ErrNotFound
	}
	return out.Data, nil
}

func (c *Client) Create(ctx context.Context, collection string, data any) (*Entity, error) {
	return c.write(ctx, http.MethodPost, c.path(collection, 0, nil), data)
}

func (c *Client) Update(ctx context.Context, collection string, id int, data any) (*Entity, error) {
	return c.write(ctx, http.MethodPut, c.path(collection, id, nil), data)
}

func (c *Client) Delete(ctx context.Context, collection string, id int) error {
	return c.do(ctx, http.MethodDelete, c.path(collection, id, nil), nil, nil)
}

func (c *Client) write(ctx context.Context, method, path string, data any) (*Entity, error) {
	var out struct {
		Data *Entity `json:"data"`
	}
	if err := c.do(ctx, method, path, map[string]any{"data": data}, &out); err != nil {
		return nil, err
	}
	if out.Data == nil {
		return nil, fmt.Errorf("strapi: empty response for %s %s", method, path)
	}
	return out.Data, nil
}

func (c *Client) path(collection string, id int, q *Query) string {
	p := "/api/" + strings.Trim(collection, "/")
	if id > 0 {
		p += "/" + strconv.Itoa(id)
	}
	if q != nil {
		if enc := q.Encode(); enc != "" {
			p += "?" + enc
		}
	}
	return p
}

func (c *Client) do(ctx context.Context, method, path string, body any, out any) error {
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(raw)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return err
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("strapi %s %s: %w", method, path, err)
	}
	defer resp.Body.Close()
	c.logger.Debug("strapi request",
		zap.String("method", method),
		zap.String("path", path),
		zap.Int("status", resp.StatusCode),
		zap.Duration("latency", time.Since(start)),
	)

	if resp.StatusCode == http.StatusNotFound {
		return domain.ErrNotFound
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		c.logger.Warn("strapi error response", zap.String("path", path), zap.Int("status", resp.StatusCode), zap.ByteString("body", raw))
		return &APIError{Status: resp.StatusCode, Body: string(raw)}
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode strapi response: %w", err)
	}
	return nil
}
