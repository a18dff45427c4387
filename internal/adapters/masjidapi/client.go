package masjidapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"path"
	"strconv"
	"strings"
	"time"

	"masjid-feed/internal/domain"
	"masjid-feed/internal/infra/metrics"
)

const component = "masjid_api"

// Client — REST клиент платформы: bulk fetch ленты, действия модерации и справочники.
type Client struct {
	baseURL    *url.URL
	httpClient *http.Client
	token      string
}

type Option func(*Client)

func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) {
		if client != nil {
			c.httpClient = client
		}
	}
}

func WithTimeout(timeout time.Duration) Option {
	return func(c *Client) {
		if timeout <= 0 {
			return
		}
		if c.httpClient == nil {
			c.httpClient = &http.Client{}
		}
		c.httpClient.Timeout = timeout
	}
}

// WithToken задаёт bearer токен сессии.
func WithToken(token string) Option {
	return func(c *Client) {
		c.token = strings.TrimSpace(token)
	}
}

type apiError struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

func New(baseURL string, opts ...Option) (*Client, error) {
	if baseURL == "" {
		return nil, fmt.Errorf("baseURL is required")
	}
	parsed, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("parse base url: %w", err)
	}
	if parsed.Scheme == "" {
		parsed.Scheme = "http"
	}
	client := &Client{
		baseURL:    parsed,
		httpClient: &http.Client{Timeout: 10 * time.Second},
	}
	for _, opt := range opts {
		opt(client)
	}
	return client, nil
}

// FetchFeed загружает ленту контекста. Ответ — массив или конверт {data: [...]}.
func (c *Client) FetchFeed(ctx context.Context, feedContext string) ([]map[string]any, error) {
	endpoint := "/api/announcements?context=" + url.QueryEscape(feedContext)
	var raw json.RawMessage
	if err := c.call(ctx, "fetch_feed", http.MethodGet, endpoint, nil, "", &raw); err != nil {
		return nil, err
	}
	var records []map[string]any
	if err := decodeList(raw, &records); err != nil {
		return nil, err
	}
	return records, nil
}

func (c *Client) Like(ctx context.Context, itemID int64, idempotencyKey string) error {
	endpoint := fmt.Sprintf("/api/announcements/%d/like", itemID)
	return c.call(ctx, "like", http.MethodPost, endpoint, nil, idempotencyKey, nil)
}

func (c *Client) Comment(ctx context.Context, itemID int64, text, idempotencyKey string) error {
	endpoint := fmt.Sprintf("/api/announcements/%d/comments", itemID)
	payload := map[string]any{"content": text}
	return c.call(ctx, "comment", http.MethodPost, endpoint, payload, idempotencyKey, nil)
}

func (c *Client) UpdateStatus(ctx context.Context, itemID int64, status string) error {
	endpoint := fmt.Sprintf("/api/announcements/%d/status", itemID)
	payload := map[string]any{"status": status}
	return c.call(ctx, "update_status", http.MethodPut, endpoint, payload, "", nil)
}

func (c *Client) Delete(ctx context.Context, itemID int64) error {
	endpoint := fmt.Sprintf("/api/announcements/%d", itemID)
	return c.call(ctx, "delete", http.MethodDelete, endpoint, nil, "", nil)
}

// Create создаёт запись и возвращает её в «сыром» виде (как приходит с сервера).
func (c *Client) Create(ctx context.Context, item domain.NewItem, idempotencyKey string) (map[string]any, error) {
	var raw json.RawMessage
	if err := c.call(ctx, "create", http.MethodPost, "/api/announcements", item, idempotencyKey, &raw); err != nil {
		return nil, err
	}
	record, err := decodeRecord(raw)
	if err != nil {
		return nil, err
	}
	return record, nil
}

type speakerDTO struct {
	ID   looseString `json:"id"`
	Name string      `json:"name"`
}

type kitabDTO struct {
	ID              looseString `json:"id"`
	Title           string      `json:"title"`
	Name            string      `json:"name"`
	BidangIlmu      string      `json:"bidang_ilmu"`
	BidangIlmuCamel string      `json:"bidangIlmu"`
}

type masjidDTO struct {
	ID       looseString `json:"id"`
	Name     string      `json:"name"`
	Image    string      `json:"image"`
	ImageURL string      `json:"image_url"`
}

func (c *Client) ListSpeakers(ctx context.Context) ([]domain.Speaker, error) {
	var dtos []speakerDTO
	if err := c.list(ctx, "list_speakers", "/api/speakers", &dtos); err != nil {
		return nil, err
	}
	out := make([]domain.Speaker, 0, len(dtos))
	for _, d := range dtos {
		out = append(out, domain.Speaker{ID: string(d.ID), Name: d.Name})
	}
	return out, nil
}

func (c *Client) ListKitabs(ctx context.Context) ([]domain.Kitab, error) {
	var dtos []kitabDTO
	if err := c.list(ctx, "list_kitabs", "/api/kitabs", &dtos); err != nil {
		return nil, err
	}
	out := make([]domain.Kitab, 0, len(dtos))
	for _, d := range dtos {
		out = append(out, domain.Kitab{
			ID:         string(d.ID),
			Title:      firstNonEmpty(d.Title, d.Name),
			BidangIlmu: firstNonEmpty(d.BidangIlmu, d.BidangIlmuCamel),
		})
	}
	return out, nil
}

func (c *Client) ListMasjids(ctx context.Context) ([]domain.Masjid, error) {
	var dtos []masjidDTO
	if err := c.list(ctx, "list_masjids", "/api/masjids", &dtos); err != nil {
		return nil, err
	}
	out := make([]domain.Masjid, 0, len(dtos))
	for _, d := range dtos {
		out = append(out, domain.Masjid{ID: string(d.ID), Name: d.Name, Image: firstNonEmpty(d.Image, d.ImageURL)})
	}
	return out, nil
}

func (c *Client) list(ctx context.Context, operation, endpoint string, out any) error {
	var raw json.RawMessage
	if err := c.call(ctx, operation, http.MethodGet, endpoint, nil, "", &raw); err != nil {
		return err
	}
	return decodeList(raw, out)
}

func (c *Client) call(ctx context.Context, operation, method, endpoint string, body any, idempotencyKey string, out any) (err error) {
	start := time.Now()
	defer func() {
		metrics.ObserveNetworkRequest(component, operation, c.baseURL.Host, start, err)
	}()
	req, err := c.newRequest(ctx, method, endpoint, body)
	if err != nil {
		return err
	}
	if idempotencyKey != "" {
		req.Header.Set("Idempotency-Key", idempotencyKey)
	}
	return c.do(req, out)
}

func (c *Client) newRequest(ctx context.Context, method, endpoint string, body any) (*http.Request, error) {
	resolved := *c.baseURL
	rawPath, rawQuery, _ := strings.Cut(endpoint, "?")
	basePath := strings.TrimSuffix(c.baseURL.Path, "/")
	resolved.Path = path.Clean(basePath + rawPath)
	resolved.RawQuery = rawQuery
	var buf io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("marshal request: %w", err)
		}
		buf = bytes.NewReader(raw)
	}
	req, err := http.NewRequestWithContext(ctx, method, resolved.String(), buf)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	return req, nil
}

func (c *Client) do(req *http.Request, out any) error {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: masjid api request failed: %v", domain.ErrNetwork, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		var apiErr apiError
		data, readErr := io.ReadAll(resp.Body)
		if readErr == nil && len(data) > 0 {
			_ = json.Unmarshal(data, &apiErr)
		}
		if apiErr.Error == "" {
			apiErr.Error = firstNonEmpty(apiErr.Message, strings.TrimSpace(string(data)))
		}
		return mapAPIError(resp.StatusCode, apiErr)
	}

	if out == nil {
		io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		if errors.Is(err, io.EOF) {
			return nil
		}
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

// mapAPIError переводит HTTP статус в таксономию ошибок домена.
func mapAPIError(status int, err apiError) error {
	var kind error
	switch {
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		kind = domain.ErrUnauthorized
	case status == http.StatusNotFound || status == http.StatusGone:
		kind = domain.ErrNotFound
	case status == http.StatusBadRequest || status == http.StatusConflict || status == http.StatusUnprocessableEntity:
		kind = domain.ErrValidation
	case status == http.StatusRequestTimeout || status == http.StatusTooManyRequests:
		kind = domain.ErrNetwork
	case status >= 500:
		kind = domain.ErrServer
	default:
		return fmt.Errorf("masjid api error: status=%d message=%s", status, err.Error)
	}
	if err.Error == "" {
		return fmt.Errorf("%w: status=%d", kind, status)
	}
	return fmt.Errorf("%w: status=%d message=%s", kind, status, err.Error)
}

func decodeList(raw json.RawMessage, out any) error {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return nil
	}
	if trimmed[0] == '{' {
		var envelope struct {
			Data json.RawMessage `json:"data"`
		}
		if err := json.Unmarshal(trimmed, &envelope); err != nil {
			return fmt.Errorf("decode envelope: %w", err)
		}
		trimmed = bytes.TrimSpace(envelope.Data)
		if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
			return nil
		}
	}
	if err := unmarshalNumbers(trimmed, out); err != nil {
		return fmt.Errorf("decode list: %w", err)
	}
	return nil
}

// unmarshalNumbers оставляет числа json.Number, как и разбор real-time сообщений:
// большие id не теряют точность на float64.
func unmarshalNumbers(data []byte, out any) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	return dec.Decode(out)
}

func decodeRecord(raw json.RawMessage) (map[string]any, error) {
	var record map[string]any
	if len(bytes.TrimSpace(raw)) == 0 {
		return nil, nil
	}
	if err := unmarshalNumbers(raw, &record); err != nil {
		return nil, fmt.Errorf("decode record: %w", err)
	}
	if data, ok := record["data"].(map[string]any); ok {
		return data, nil
	}
	return record, nil
}

// looseString принимает id и строкой, и числом.
type looseString string

func (s *looseString) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*s = ""
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var v string
		if err := json.Unmarshal(data, &v); err != nil {
			return err
		}
		*s = looseString(strings.TrimSpace(v))
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return err
	}
	if i, err := n.Int64(); err == nil {
		*s = looseString(strconv.FormatInt(i, 10))
		return nil
	}
	*s = looseString(n.String())
	return nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}
	return ""
}

var _ domain.FeedAPI = (*Client)(nil)
var _ domain.ReferenceAPI = (*Client)(nil)
