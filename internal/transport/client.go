// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package transport talks HTTP to the chat server.
//
// One streaming POST carries each user turn and yields raw byte chunks.
// Attachment uploads, chat listings and transcripts use ordinary requests.
// Every request is rate limited and tagged with an X-Request-ID.
package transport

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/jeranaias/calliope-tui/internal/protocol"
)

// =============================================================================
// CONSTANTS
// =============================================================================

const (
	// DefaultBaseURL is the chat server used when none is configured.
	DefaultBaseURL = "http://localhost:5000"

	// Default endpoint paths.
	DefaultChatPath   = "/api/chat"
	DefaultUploadPath = "/api/upload"
	DefaultChatsPath  = "/api/chats"

	// DefaultMemoriesPath is the saved-memory endpoint.
	DefaultMemoriesPath = "/api/memories"

	// DefaultTimeout bounds non-streaming requests.
	DefaultTimeout = 60 * time.Second

	// DefaultMaxRetries is the attempt count for idempotent GETs.
	DefaultMaxRetries = 3

	// retryBaseDelay is the base delay for exponential backoff.
	retryBaseDelay = 500 * time.Millisecond

	// retryMaxDelay caps a single backoff delay.
	retryMaxDelay = 10 * time.Second

	// MaxResponseSize limits non-streaming response bodies.
	MaxResponseSize = 10 * 1024 * 1024

	// MaxUploadSize limits attachment files.
	MaxUploadSize = 16 * 1024 * 1024

	// errorSnippetSize is how much of an error body is kept for messages.
	errorSnippetSize = 512

	// limiterBurst lets a send and its uploads through without waiting.
	limiterBurst = 4

	userAgent = "calliope/0.3.0"
)

var (
	// ErrCancelled is returned when the caller cancelled the request. It is
	// not a TransportError.
	ErrCancelled = errors.New("transport: request cancelled")

	// ErrNoBody is the cause when a streaming response has no body.
	ErrNoBody = errors.New("response has no body")

	// ErrFileTooLarge is the cause when an attachment exceeds MaxUploadSize.
	ErrFileTooLarge = errors.New("file too large")
)

var (
	// PERFORMANCE: Connection pooling reduces TCP handshake overhead.
	sharedTransport = &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   10 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		MaxIdleConns:        100,
		MaxIdleConnsPerHost: 10,
		IdleConnTimeout:     90 * time.Second,
		TLSHandshakeTimeout: 10 * time.Second,
		TLSClientConfig: &tls.Config{
			MinVersion: tls.VersionTLS12,
		},
	}

	sharedHTTPClient = &http.Client{
		Transport: sharedTransport,
		Timeout:   DefaultTimeout,
	}

	// sharedStreamingClient has no timeout; the request context controls it.
	sharedStreamingClient = &http.Client{
		Transport: sharedTransport,
	}
)

// =============================================================================
// CLIENT
// =============================================================================

// Client is a chat server client. Configure it with the With* methods
// before first use; it is safe for concurrent use afterwards.
type Client struct {
	baseURL    string
	chatPath   string
	uploadPath string
	chatsPath  string

	memoriesPath string

	version       protocol.Version
	sessionCookie string
	apiToken      string

	httpClient      *http.Client
	streamingClient *http.Client
	limiter         *rate.Limiter

	maxRetries int
	retryBase  time.Duration

	logger *zap.Logger
}

// NewClient creates a client for the server at baseURL.
func NewClient(baseURL string) *Client {
	if strings.TrimSpace(baseURL) == "" {
		baseURL = DefaultBaseURL
	}
	return &Client{
		baseURL:         strings.TrimSuffix(strings.TrimSpace(baseURL), "/"),
		chatPath:        DefaultChatPath,
		uploadPath:      DefaultUploadPath,
		chatsPath:       DefaultChatsPath,
		memoriesPath:    DefaultMemoriesPath,
		version:         protocol.VersionAuto,
		httpClient:      sharedHTTPClient,
		streamingClient: sharedStreamingClient,
		limiter:         rate.NewLimiter(rate.Inf, limiterBurst),
		maxRetries:      DefaultMaxRetries,
		retryBase:       retryBaseDelay,
		logger:          zap.NewNop(),
	}
}

// WithPaths overrides the endpoint paths. Empty values keep the default.
func (c *Client) WithPaths(chat, upload, chats string) *Client {
	if chat != "" {
		c.chatPath = chat
	}
	if upload != "" {
		c.uploadPath = upload
	}
	if chats != "" {
		c.chatsPath = strings.TrimSuffix(chats, "/")
	}
	return c
}

// WithMemoriesPath overrides the saved-memory endpoint.
func (c *Client) WithMemoriesPath(path string) *Client {
	if path != "" {
		c.memoriesPath = strings.TrimSuffix(path, "/")
	}
	return c
}

// WithVersion sets the request body variant.
func (c *Client) WithVersion(v protocol.Version) *Client {
	c.version = v
	return c
}

// WithSessionCookie sends a "session" cookie on every request.
func (c *Client) WithSessionCookie(value string) *Client {
	c.sessionCookie = strings.TrimSpace(value)
	return c
}

// WithAPIToken sends a bearer token on every request.
func (c *Client) WithAPIToken(token string) *Client {
	c.apiToken = strings.TrimSpace(token)
	return c
}

// WithRateLimit limits outbound requests per second. Zero or negative
// disables limiting.
func (c *Client) WithRateLimit(perSecond float64) *Client {
	if perSecond <= 0 {
		c.limiter = rate.NewLimiter(rate.Inf, limiterBurst)
	} else {
		c.limiter = rate.NewLimiter(rate.Limit(perSecond), limiterBurst)
	}
	return c
}

// WithTimeout sets the timeout of non-streaming requests.
func (c *Client) WithTimeout(timeout time.Duration) *Client {
	if timeout > 0 {
		c.httpClient = &http.Client{Transport: sharedTransport, Timeout: timeout}
	}
	return c
}

// WithRetry sets the attempt count and base backoff for GETs.
func (c *Client) WithRetry(maxRetries int, base time.Duration) *Client {
	if maxRetries > 0 {
		c.maxRetries = maxRetries
	}
	if base > 0 {
		c.retryBase = base
	}
	return c
}

// WithLogger sets the logger.
func (c *Client) WithLogger(l *zap.Logger) *Client {
	if l != nil {
		c.logger = l.Named("transport")
	}
	return c
}

// BaseURL returns the server base URL.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// Version returns the configured protocol version.
func (c *Client) Version() protocol.Version {
	return c.version
}

// =============================================================================
// REQUEST HELPERS
// =============================================================================

func (c *Client) endpoint(path string) string {
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	return c.baseURL + path
}

// newRequest builds a request with the shared headers and returns its id.
func (c *Client) newRequest(ctx context.Context, method, target string, body io.Reader) (*http.Request, string, error) {
	req, err := http.NewRequestWithContext(ctx, method, target, body)
	if err != nil {
		return nil, "", fmt.Errorf("failed to create request: %w", err)
	}

	id := uuid.NewString()
	req.Header.Set("X-Request-ID", id)
	req.Header.Set("User-Agent", userAgent)
	if c.sessionCookie != "" {
		req.AddCookie(&http.Cookie{Name: "session", Value: c.sessionCookie})
	}
	if c.apiToken != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiToken)
	}
	return req, id, nil
}

// wait blocks on the rate limiter.
func (c *Client) wait(ctx context.Context, op string) error {
	if err := c.limiter.Wait(ctx); err != nil {
		if ctx.Err() != nil {
			return c.classify(ctx, op, ctx.Err())
		}
		// Wait fails early when the deadline cannot be met.
		return &protocol.TransportError{Op: op, Cause: err}
	}
	return nil
}

// classify maps a request error to ErrCancelled or a TransportError.
func (c *Client) classify(ctx context.Context, op string, err error) error {
	if errors.Is(ctx.Err(), context.Canceled) || errors.Is(err, context.Canceled) {
		return ErrCancelled
	}
	return &protocol.TransportError{Op: op, Cause: err}
}

// statusError reads a short snippet of an error body and closes it.
func statusError(op string, resp *http.Response) error {
	defer resp.Body.Close()
	snippet, _ := io.ReadAll(io.LimitReader(resp.Body, errorSnippetSize))
	msg := strings.TrimSpace(string(snippet))
	if msg == "" {
		msg = http.StatusText(resp.StatusCode)
	}
	return &protocol.TransportError{Op: op, StatusCode: resp.StatusCode, Cause: errors.New(msg)}
}

// readResponse reads the body with a size limit.
//
// SECURITY: Response size limit prevents memory exhaustion.
func readResponse(resp *http.Response) ([]byte, error) {
	body, err := io.ReadAll(io.LimitReader(resp.Body, MaxResponseSize+1))
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}
	if len(body) > MaxResponseSize {
		return nil, fmt.Errorf("response exceeded maximum size of %d bytes", MaxResponseSize)
	}
	return body, nil
}

// calculateBackoff returns the delay before retry number attempt (1-based).
func (c *Client) calculateBackoff(attempt int) time.Duration {
	delay := c.retryBase * time.Duration(1<<uint(attempt-1))
	if delay > retryMaxDelay {
		delay = retryMaxDelay
	}
	return delay
}

// isRetryable reports whether a GET failure is transient.
func isRetryable(err error) bool {
	if errors.Is(err, ErrCancelled) {
		return false
	}
	var terr *protocol.TransportError
	if errors.As(err, &terr) {
		return terr.StatusCode == 0 || terr.StatusCode >= 500
	}
	return false
}

// getJSON performs an idempotent GET with retries and decodes the reply.
func (c *Client) getJSON(ctx context.Context, op, path string, out any) error {
	var lastErr error

	for attempt := 0; attempt < c.maxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return c.classify(ctx, op, ctx.Err())
			case <-time.After(c.calculateBackoff(attempt)):
			}
		}

		err := c.getOnce(ctx, op, path, out)
		if err == nil {
			return nil
		}
		if !isRetryable(err) {
			return err
		}
		lastErr = err
		c.logger.Debug("retrying request",
			zap.String("op", op),
			zap.Int("attempt", attempt+1),
			zap.Error(err))
	}

	c.logger.Warn("request failed after retries", zap.String("op", op), zap.Error(lastErr))
	return lastErr
}

func (c *Client) getOnce(ctx context.Context, op, path string, out any) error {
	if err := c.wait(ctx, op); err != nil {
		return err
	}

	req, id, err := c.newRequest(ctx, http.MethodGet, c.endpoint(path), nil)
	if err != nil {
		return &protocol.TransportError{Op: op, Cause: err}
	}
	req.Header.Set("Accept", "application/json")

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return c.classify(ctx, op, err)
	}
	c.logger.Debug("response",
		zap.String("op", op),
		zap.String("request_id", id),
		zap.Int("status", resp.StatusCode),
		zap.Duration("elapsed", time.Since(start)))

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return statusError(op, resp)
	}
	defer resp.Body.Close()

	body, err := readResponse(resp)
	if err != nil {
		return c.classify(ctx, op, err)
	}
	if err := json.Unmarshal(body, out); err != nil {
		return &protocol.TransportError{Op: op, StatusCode: resp.StatusCode, Cause: fmt.Errorf("failed to parse response: %w", err)}
	}
	return nil
}

// =============================================================================
// HISTORY ENDPOINTS
// =============================================================================

type chatsResponse struct {
	Chats []protocol.ChatSummary `json:"chats"`
}

type messagesResponse struct {
	Messages []protocol.HistoryMessage `json:"messages"`
}

// ListChats fetches the user's chat summaries.
func (c *Client) ListChats(ctx context.Context) ([]protocol.ChatSummary, error) {
	var resp chatsResponse
	if err := c.getJSON(ctx, "list", c.chatsPath, &resp); err != nil {
		return nil, err
	}
	return resp.Chats, nil
}

// ChatMessages fetches the stored transcript of one chat.
func (c *Client) ChatMessages(ctx context.Context, id protocol.ChatID) ([]protocol.HistoryMessage, error) {
	if id.IsZero() {
		return nil, &protocol.TransportError{Op: "messages", Cause: errors.New("empty chat id")}
	}
	path := c.chatsPath + "/" + url.PathEscape(id.String()) + "/messages"

	var resp messagesResponse
	if err := c.getJSON(ctx, "messages", path, &resp); err != nil {
		return nil, err
	}
	return resp.Messages, nil
}

// =============================================================================
// STREAMING CHAT
// =============================================================================

// OpenStream issues the chat request for one turn and returns its chunk
// stream. It is never retried.
func (c *Client) OpenStream(ctx context.Context, turn protocol.OutgoingTurn) (*Stream, error) {
	const op = "open"

	if err := c.wait(ctx, op); err != nil {
		return nil, err
	}

	payload, err := json.Marshal(protocol.NewRequestBody(turn, c.version))
	if err != nil {
		return nil, &protocol.TransportError{Op: op, Cause: fmt.Errorf("failed to marshal request: %w", err)}
	}

	req, id, err := c.newRequest(ctx, http.MethodPost, c.endpoint(c.chatPath), bytes.NewReader(payload))
	if err != nil {
		return nil, &protocol.TransportError{Op: op, Cause: err}
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "text/event-stream")
	req.Header.Set("Cache-Control", "no-cache")

	c.logger.Debug("opening stream",
		zap.String("request_id", id),
		zap.String("chat_id", turn.ChatID.String()),
		zap.Bool("research", turn.ResearchMode),
		zap.Int("attachments", len(turn.Attachments)))

	resp, err := c.streamingClient.Do(req)
	if err != nil {
		err = c.classify(ctx, op, err)
		if !errors.Is(err, ErrCancelled) {
			c.logger.Warn("stream request failed", zap.String("request_id", id), zap.Error(err))
		}
		return nil, err
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		err := statusError(op, resp)
		c.logger.Warn("stream rejected", zap.String("request_id", id), zap.Error(err))
		return nil, err
	}
	if resp.Body == nil || resp.Body == http.NoBody {
		if resp.Body != nil {
			resp.Body.Close()
		}
		return nil, &protocol.TransportError{Op: op, StatusCode: resp.StatusCode, Cause: ErrNoBody}
	}

	return newStream(ctx, resp.Body, id, c.logger), nil
}
