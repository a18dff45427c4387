package wsclient

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/coder/websocket"
	"github.com/rs/zerolog"

	"masjid-feed/internal/domain"
	"masjid-feed/internal/infra/metrics"
)

// ErrAlreadyUsed возвращается при повторном Run: переподключение требует новой подписки.
var ErrAlreadyUsed = errors.New("wsclient: subscription already used")

const contextPlaceholder = "{context}"

// Client — одна подписка на real-time канал (масджид, пользователь или marketplace).
// Автоматического переподключения нет.
type Client struct {
	endpoint   string
	token      string
	header     http.Header
	httpClient *http.Client
	readLimit  int64
	onStatus   func(domain.ConnStatus)
	log        zerolog.Logger

	status atomic.Int32
	seq    atomic.Uint64
	used   atomic.Bool

	mu   sync.Mutex
	last *domain.Frame
}

// Option настраивает клиента.
type Option func(*Client)

// WithHeader добавляет заголовки рукопожатия (например, Authorization).
func WithHeader(header http.Header) Option {
	return func(c *Client) {
		c.header = header.Clone()
	}
}

// WithHTTPClient задаёт HTTP клиента для рукопожатия.
func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) {
		if client != nil {
			c.httpClient = client
		}
	}
}

// WithReadLimit ограничивает размер одного сообщения.
func WithReadLimit(n int64) Option {
	return func(c *Client) {
		c.readLimit = n
	}
}

// WithOnStatus регистрирует наблюдателя за сменой состояния.
func WithOnStatus(fn func(domain.ConnStatus)) Option {
	return func(c *Client) {
		c.onStatus = fn
	}
}

// New создаёт клиента для endpoint и токена контекста подписки.
func New(endpoint, token string, logger zerolog.Logger, opts ...Option) *Client {
	c := &Client{
		endpoint:  strings.TrimSpace(endpoint),
		token:     strings.TrimSpace(token),
		readLimit: 1 << 20,
		log:       logger.With().Str("component", "wsclient").Str("context", token).Logger(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// URL возвращает адрес подписки: токен подставляется вместо {context} или добавляется к пути.
func (c *Client) URL() (string, error) {
	if strings.Contains(c.endpoint, contextPlaceholder) {
		return strings.ReplaceAll(c.endpoint, contextPlaceholder, url.PathEscape(c.token)), nil
	}
	u, err := url.Parse(c.endpoint)
	if err != nil {
		return "", fmt.Errorf("parse endpoint: %w", err)
	}
	if u.Scheme == "" || u.Host == "" {
		return "", fmt.Errorf("parse endpoint: %q is not absolute", c.endpoint)
	}
	return u.JoinPath(c.token).String(), nil
}

// Status возвращает текущее состояние подписки.
func (c *Client) Status() domain.ConnStatus {
	return domain.ConnStatus(c.status.Load())
}

// LastFrame возвращает последнее полученное сообщение.
func (c *Client) LastFrame() (domain.Frame, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.last == nil {
		return domain.Frame{}, false
	}
	return *c.last, true
}

// Run открывает соединение и читает сообщения до отмены ctx или закрытия сокета.
// Сокет освобождается на любом пути выхода. Пустой токен — подписка без соединения.
func (c *Client) Run(ctx context.Context, handle domain.FrameHandler) error {
	if c.token == "" {
		c.log.Debug().Msg("wsclient: пустой контекст подписки, соединение не открываем")
		return nil
	}
	if !c.used.CompareAndSwap(false, true) {
		return ErrAlreadyUsed
	}
	target, err := c.URL()
	if err != nil {
		c.setStatus(domain.StatusClosed)
		return err
	}

	c.setStatus(domain.StatusConnecting)
	start := time.Now()
	conn, _, err := websocket.Dial(ctx, target, &websocket.DialOptions{
		HTTPClient: c.httpClient,
		HTTPHeader: c.header,
	})
	metrics.ObserveNetworkRequest("websocket", "dial", c.token, start, err)
	if err != nil {
		c.setStatus(domain.StatusClosed)
		if ctx.Err() != nil {
			return nil
		}
		return fmt.Errorf("%w: dial %s: %v", domain.ErrNetwork, c.token, err)
	}
	defer conn.CloseNow()
	defer c.setStatus(domain.StatusClosed)
	if c.readLimit > 0 {
		conn.SetReadLimit(c.readLimit)
	}
	c.setStatus(domain.StatusOpen)
	c.log.Info().Msg("wsclient: подписка открыта")

	// Отмена ctx завершает подписку рукопожатием закрытия, а не обрывом сокета.
	readCtx, cancelRead := context.WithCancel(context.Background())
	defer cancelRead()
	closed := make(chan struct{})
	stopClose := context.AfterFunc(ctx, func() {
		defer close(closed)
		if err := conn.Close(websocket.StatusNormalClosure, ""); err != nil {
			c.log.Debug().Err(err).Msg("wsclient: закрытие без подтверждения сервера")
		}
		cancelRead()
	})
	defer func() {
		if !stopClose() {
			<-closed
		}
	}()

	for {
		typ, data, err := conn.Read(readCtx)
		if err != nil {
			if ctx.Err() != nil {
				c.log.Info().Msg("wsclient: подписка закрыта по отмене")
				return nil
			}
			switch websocket.CloseStatus(err) {
			case websocket.StatusNormalClosure, websocket.StatusGoingAway:
				c.log.Info().Msg("wsclient: сервер закрыл соединение")
				return nil
			}
			return fmt.Errorf("%w: read %s: %v", domain.ErrNetwork, c.token, err)
		}
		if typ != websocket.MessageText {
			metrics.IncFramesDropped(c.token, "transport")
			c.log.Warn().Msg("wsclient: бинарное сообщение пропущено")
			continue
		}
		frame, err := domain.DecodeFrame(data)
		if err != nil {
			metrics.IncFramesDropped(c.token, "transport")
			c.log.Warn().Err(err).Msg("wsclient: некорректное сообщение пропущено")
			continue
		}
		frame.Source = "ws"
		frame.Seq = c.seq.Add(1)
		frame.ReceivedAt = time.Now().UTC()

		c.mu.Lock()
		c.last = &frame
		c.mu.Unlock()

		if handle != nil && ctx.Err() == nil {
			handle(frame)
		}
	}
}

func (c *Client) setStatus(status domain.ConnStatus) {
	if domain.ConnStatus(c.status.Swap(int32(status))) == status {
		return
	}
	metrics.SetTransportStatus(c.token, int32(status))
	if c.onStatus != nil {
		c.onStatus(status)
	}
}
