package ollama

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"ollama-gateway/internal/config"
	"ollama-gateway/internal/models"
	"ollama-gateway/internal/provider"
	"ollama-gateway/internal/version"
)

const (
	contentTypeJSON   = "application/json"
	contentTypeNDJSON = "application/x-ndjson"
	maxErrorBodyBytes = 64 * 1024
	maxRecordBytes    = 1 << 20
)

// Client speaks the Ollama native chat protocol.
type Client struct {
	chatURL string
	tagsURL string
	headers map[string]string
	timeout time.Duration
	client  *http.Client
}

var _ provider.Client = (*Client)(nil)

// New creates a client for the configured upstream.
func New(cfg config.UpstreamConfig, client *http.Client) (*Client, error) {
	if client == nil {
		return nil, errors.New("http client must not be nil")
	}

	chatURL := strings.TrimRight(strings.TrimSpace(cfg.URL), "/")
	if chatURL == "" {
		return nil, errors.New("upstream url must not be empty")
	}

	return &Client{
		chatURL: chatURL,
		tagsURL: TagsURL(chatURL),
		headers: cfg.Headers,
		timeout: cfg.Timeout,
		client:  client,
	}, nil
}

// TagsURL derives the model listing endpoint from the chat endpoint by
// replacing everything after the last "/api/" segment.
func TagsURL(chatURL string) string {
	base := chatURL
	if idx := strings.LastIndex(chatURL, "/api/"); idx >= 0 {
		base = chatURL[:idx]
	}
	return base + "/api/tags"
}

func (c *Client) Name() string {
	return "ollama"
}

// Generate performs one full-buffer chat call and returns the assistant text.
func (c *Client) Generate(ctx context.Context, model string, messages []models.Message, temperature float64) (string, error) {
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	httpReq, err := c.newRequest(ctx, http.MethodPost, c.chatURL, buildChatPayload(model, messages, temperature, false))
	if err != nil {
		return "", err
	}

	httpResp, err := c.client.Do(httpReq)
	if err != nil {
		return "", transportError("chat", err)
	}
	defer httpResp.Body.Close()

	if httpResp.StatusCode < 200 || httpResp.StatusCode > 299 {
		return "", parseAPIError(httpResp)
	}

	var reply chatRecord
	if err := decodeJSON(httpResp.Body, &reply); err != nil {
		return "", err
	}
	if reply.Error != "" {
		return "", fmt.Errorf("%w: %s", provider.ErrUpstreamStatus, reply.Error)
	}
	if reply.Message == nil || reply.Message.Content == nil {
		return "", fmt.Errorf("%w: reply has no message.content", provider.ErrMalformedReply)
	}
	return *reply.Message.Content, nil
}

// Stream opens an incremental chat call. The status of the upstream reply is
// checked before returning; fragments are then produced by a goroutine that
// owns the response body until the stream ends or ctx is cancelled.
func (c *Client) Stream(ctx context.Context, model string, messages []models.Message, temperature float64) (<-chan models.Chunk, error) {
	httpReq, err := c.newRequest(ctx, http.MethodPost, c.chatURL, buildChatPayload(model, messages, temperature, true))
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Accept", contentTypeNDJSON)

	httpResp, err := c.client.Do(httpReq)
	if err != nil {
		return nil, transportError("stream", err)
	}

	if httpResp.StatusCode < 200 || httpResp.StatusCode > 299 {
		defer httpResp.Body.Close()
		return nil, parseAPIError(httpResp)
	}

	slog.Debug("ollama stream opened", "model", model, "message_count", len(messages))

	ch := make(chan models.Chunk)
	go pump(ctx, httpResp.Body, ch)
	return ch, nil
}

func pump(ctx context.Context, body io.ReadCloser, ch chan<- models.Chunk) {
	defer close(ch)
	defer body.Close()

	send := func(chunk models.Chunk) bool {
		select {
		case ch <- chunk:
			return true
		case <-ctx.Done():
			return false
		}
	}

	scanner := bufio.NewScanner(body)
	scanner.Buffer(make([]byte, 0, 64*1024), maxRecordBytes)

	for scanner.Scan() {
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue
		}

		var record chatRecord
		if err := json.Unmarshal(line, &record); err != nil {
			send(models.Chunk{Err: fmt.Errorf("%w: decode stream record: %v", provider.ErrMalformedReply, err)})
			return
		}
		if record.Error != "" {
			send(models.Chunk{Err: fmt.Errorf("%w: %s", provider.ErrUpstreamStatus, record.Error)})
			return
		}
		if record.Done {
			slog.Debug("ollama stream finished", "done_reason", record.DoneReason)
			return
		}
		if record.Message == nil || record.Message.Content == nil {
			send(models.Chunk{Err: fmt.Errorf("%w: stream record has no message.content", provider.ErrMalformedReply)})
			return
		}
		if !send(models.Chunk{Content: *record.Message.Content}) {
			slog.Debug("ollama stream abandoned by consumer")
			return
		}
	}

	if ctx.Err() != nil {
		return
	}
	if err := scanner.Err(); err != nil {
		if errors.Is(err, bufio.ErrTooLong) {
			send(models.Chunk{Err: fmt.Errorf("%w: stream record exceeds %d bytes", provider.ErrMalformedReply, maxRecordBytes)})
			return
		}
		slog.Warn("ollama stream interrupted", "err", err)
		send(models.Chunk{Err: transportError("stream read", err)})
		return
	}
	send(models.Chunk{Err: fmt.Errorf("%w: stream ended without done marker", provider.ErrMalformedReply)})
}

// ListModels returns the models installed on the inference server.
func (c *Client) ListModels(ctx context.Context) ([]models.ModelDescriptor, error) {
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	httpReq, err := c.newRequest(ctx, http.MethodGet, c.tagsURL, nil)
	if err != nil {
		return nil, err
	}

	httpResp, err := c.client.Do(httpReq)
	if err != nil {
		return nil, transportError("tags", err)
	}
	defer httpResp.Body.Close()

	if httpResp.StatusCode < 200 || httpResp.StatusCode > 299 {
		return nil, parseAPIError(httpResp)
	}

	var reply tagsResponse
	if err := decodeJSON(httpResp.Body, &reply); err != nil {
		return nil, err
	}

	out := make([]models.ModelDescriptor, 0, len(reply.Models))
	for i, entry := range reply.Models {
		if entry.Name == "" {
			return nil, fmt.Errorf("%w: models[%d] has no name", provider.ErrMalformedReply, i)
		}
		out = append(out, models.ModelDescriptor{ID: entry.Name, Size: entry.Size})
	}
	return out, nil
}

func (c *Client) newRequest(ctx context.Context, method, url string, payload any) (*http.Request, error) {
	var body io.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("marshal payload: %w", err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, body)
	if err != nil {
		return nil, fmt.Errorf("construct request: %w", err)
	}

	if payload != nil {
		req.Header.Set("Content-Type", contentTypeJSON)
	}
	req.Header.Set("Accept", contentTypeJSON)
	req.Header.Set("User-Agent", version.UserAgent())

	for k, v := range c.headers {
		req.Header.Set(k, v)
	}

	return req, nil
}

type chatPayload struct {
	Model    string        `json:"model"`
	Messages []chatMessage `json:"messages"`
	Options  chatOptions   `json:"options"`
	Stream   bool          `json:"stream"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatOptions struct {
	Temperature float64 `json:"temperature"`
}

func buildChatPayload(model string, messages []models.Message, temperature float64, stream bool) chatPayload {
	out := make([]chatMessage, 0, len(messages))
	for _, msg := range messages {
		out = append(out, chatMessage{
			Role:    string(msg.Role),
			Content: msg.Content,
		})
	}
	return chatPayload{
		Model:    model,
		Messages: out,
		Options:  chatOptions{Temperature: temperature},
		Stream:   stream,
	}
}

// chatRecord is both the buffered reply and a single NDJSON stream record.
type chatRecord struct {
	Model   string `json:"model"`
	Message *struct {
		Role    string  `json:"role"`
		Content *string `json:"content"`
	} `json:"message"`
	Done       bool   `json:"done"`
	DoneReason string `json:"done_reason"`
	Error      string `json:"error"`
}

type tagsResponse struct {
	Models []struct {
		Name string `json:"name"`
		Size *int64 `json:"size"`
	} `json:"models"`
}

func transportError(op string, err error) error {
	if errors.Is(err, context.Canceled) {
		return fmt.Errorf("ollama %s request: %w", op, err)
	}
	slog.Error("ollama request failed", "op", op, "err", err)
	return fmt.Errorf("ollama %s request: %w: %w", op, provider.ErrUpstreamUnavailable, err)
}

func parseAPIError(resp *http.Response) error {
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxErrorBodyBytes))
	if err != nil {
		return &provider.StatusError{StatusCode: resp.StatusCode, Message: fmt.Sprintf("failed to read body: %v", err)}
	}

	var apiErr struct {
		Error string `json:"error"`
	}
	message := strings.TrimSpace(string(body))
	if err := json.Unmarshal(body, &apiErr); err == nil && apiErr.Error != "" {
		message = apiErr.Error
	}

	slog.Error("ollama API error", "status", resp.StatusCode, "message", message)
	return &provider.StatusError{StatusCode: resp.StatusCode, Message: message}
}

func decodeJSON(reader io.Reader, target any) error {
	decoder := json.NewDecoder(reader)
	if err := decoder.Decode(target); err != nil {
		return fmt.Errorf("%w: decode response: %v", provider.ErrMalformedReply, err)
	}
	return nil
}
