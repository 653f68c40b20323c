package translator

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"ollama-gateway/internal/models"
)

const (
	DefaultTemperature = 0.7
	minTemperature     = 0.0
	maxTemperature     = 1.0
)

// ErrValidation marks a request that is well-formed JSON but violates the
// request schema.
var ErrValidation = errors.New("invalid request")

var (
	errMissingMessages = fmt.Errorf("%w: messages is required", ErrValidation)
	errEmptyMessages   = fmt.Errorf("%w: at least one message is required", ErrValidation)
	errNoUserMessage   = fmt.Errorf("%w: at least one message must have role %q", ErrValidation, models.RoleUser)
	errMissingInput    = fmt.Errorf("%w: input is required", ErrValidation)
	errInvalidContent  = fmt.Errorf("%w: invalid message content", ErrValidation)
)

// ChatCompletionRequest models the POST /v1/chat/completions payload.
type ChatCompletionRequest struct {
	Model       string
	Messages    []ChatMessage
	N           int
	Temperature float64
	Stream      bool
}

// UnmarshalJSON applies defaults and enforces the request schema.
func (r *ChatCompletionRequest) UnmarshalJSON(data []byte) error {
	type alias struct {
		Model       string        `json:"model"`
		Messages    []ChatMessage `json:"messages"`
		N           *int          `json:"n"`
		Temperature *float64      `json:"temperature"`
		Stream      bool          `json:"stream"`
	}

	var raw alias
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("decode chat request: %w", err)
	}

	if raw.Messages == nil {
		return errMissingMessages
	}

	r.Model = strings.TrimSpace(raw.Model)
	r.Messages = raw.Messages
	r.N = 1
	if raw.N != nil {
		r.N = *raw.N
	}
	r.Temperature = DefaultTemperature
	if raw.Temperature != nil {
		r.Temperature = *raw.Temperature
	}
	r.Stream = raw.Stream

	return r.validate()
}

func (r *ChatCompletionRequest) validate() error {
	if len(r.Messages) == 0 {
		return errEmptyMessages
	}
	hasUser := false
	for _, msg := range r.Messages {
		if msg.Role == models.RoleUser {
			hasUser = true
			break
		}
	}
	if !hasUser {
		return errNoUserMessage
	}
	if r.N < 1 {
		return fmt.Errorf("%w: n must be at least 1, got %d", ErrValidation, r.N)
	}
	return validateTemperature(r.Temperature)
}

// ToCompletionRequest normalizes the chat request into the canonical form.
func (r ChatCompletionRequest) ToCompletionRequest() models.CompletionRequest {
	return models.CompletionRequest{
		Model:       r.Model,
		Messages:    FromHistory(r.Messages),
		Temperature: r.Temperature,
		N:           r.N,
	}
}

// ChatMessage captures a single message within the chat request.
type ChatMessage struct {
	Role    models.Role
	Content string
	Name    string
}

// UnmarshalJSON supports string and array-of-text content formats.
func (m *ChatMessage) UnmarshalJSON(data []byte) error {
	type alias struct {
		Role    string          `json:"role"`
		Content json.RawMessage `json:"content"`
		Name    string          `json:"name"`
	}

	var raw alias
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("decode message: %w", err)
	}

	role, err := models.ParseRole(strings.TrimSpace(raw.Role))
	if err != nil {
		return fmt.Errorf("%w: %v", ErrValidation, err)
	}

	content, err := extractMessageContent(raw.Content)
	if err != nil {
		return err
	}

	m.Role = role
	m.Content = content
	m.Name = strings.TrimSpace(raw.Name)
	return nil
}

func extractMessageContent(raw json.RawMessage) (string, error) {
	if len(raw) == 0 || bytes.Equal(bytes.TrimSpace(raw), []byte("null")) {
		return "", fmt.Errorf("%w: missing content", errInvalidContent)
	}

	var text string
	if err := json.Unmarshal(raw, &text); err == nil {
		return text, nil
	}

	var segments []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	}
	if err := json.Unmarshal(raw, &segments); err == nil {
		var builder strings.Builder
		for _, segment := range segments {
			if segment.Type != "text" {
				return "", fmt.Errorf("%w: segment type %q not supported", errInvalidContent, segment.Type)
			}
			builder.WriteString(segment.Text)
		}
		return builder.String(), nil
	}

	return "", fmt.Errorf("%w: unsupported content structure", errInvalidContent)
}

// ResponseRequest models the POST /v1/responses payload.
type ResponseRequest struct {
	Model        string
	Instructions string
	Input        string
	Temperature  float64
	Stream       bool
}

// UnmarshalJSON applies defaults and enforces the request schema.
func (r *ResponseRequest) UnmarshalJSON(data []byte) error {
	type alias struct {
		Model        string   `json:"model"`
		Instructions *string  `json:"instructions"`
		Input        *string  `json:"input"`
		Temperature  *float64 `json:"temperature"`
		Stream       bool     `json:"stream"`
	}

	var raw alias
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("decode responses request: %w", err)
	}

	if raw.Input == nil {
		return errMissingInput
	}

	r.Model = strings.TrimSpace(raw.Model)
	r.Input = *raw.Input
	r.Instructions = ""
	if raw.Instructions != nil {
		r.Instructions = *raw.Instructions
	}
	r.Temperature = DefaultTemperature
	if raw.Temperature != nil {
		r.Temperature = *raw.Temperature
	}
	r.Stream = raw.Stream

	return validateTemperature(r.Temperature)
}

// ToCompletionRequest normalizes the single-shot request into the canonical form.
func (r ResponseRequest) ToCompletionRequest() models.CompletionRequest {
	return models.CompletionRequest{
		Model:       r.Model,
		Messages:    FromInstruction(r.Instructions, r.Input),
		Temperature: r.Temperature,
		N:           1,
	}
}

func validateTemperature(t float64) error {
	if t < minTemperature || t > maxTemperature {
		return fmt.Errorf("%w: temperature must be between %.1f and %.1f, got %g", ErrValidation, minTemperature, maxTemperature, t)
	}
	return nil
}

// OutputMessage is an assistant message in a response payload.
type OutputMessage struct {
	Role    models.Role `json:"role"`
	Content string      `json:"content"`
}

// ChatCompletionResponse models the OpenAI-compatible chat response.
type ChatCompletionResponse struct {
	ID      string       `json:"id"`
	Object  string       `json:"object"`
	Created int64        `json:"created"`
	Model   string       `json:"model"`
	Choices []ChatChoice `json:"choices"`
}

// ChatChoice represents a single choice in the response payload.
type ChatChoice struct {
	Index        int           `json:"index"`
	Message      OutputMessage `json:"message"`
	FinishReason string        `json:"finish_reason"`
}

// FromResults builds the chat response; choice i is results[i].
func FromResults(modelID string, createdUnix int64, results []models.CompletionResult) ChatCompletionResponse {
	choices := make([]ChatChoice, 0, len(results))
	for i, res := range results {
		choices = append(choices, ChatChoice{
			Index: i,
			Message: OutputMessage{
				Role:    models.RoleAssistant,
				Content: res.Content,
			},
			FinishReason: "stop",
		})
	}

	return ChatCompletionResponse{
		ID:      "chatcmpl-" + uuid.NewString(),
		Object:  "chat.completion",
		Created: createdUnix,
		Model:   modelID,
		Choices: choices,
	}
}

// ResponseResponse models the POST /v1/responses reply.
type ResponseResponse struct {
	ID      string        `json:"id"`
	Object  string        `json:"object"`
	Created int64         `json:"created"`
	Model   string        `json:"model"`
	Output  OutputMessage `json:"output"`
}

// FromResult builds the single-shot response.
func FromResult(createdUnix int64, result models.CompletionResult) ResponseResponse {
	return ResponseResponse{
		ID:      "resp-" + uuid.NewString(),
		Object:  "response",
		Created: createdUnix,
		Model:   result.Model,
		Output: OutputMessage{
			Role:    models.RoleAssistant,
			Content: result.Content,
		},
	}
}

// ModelsResponse models the GET /v1/models reply.
type ModelsResponse struct {
	Models []ModelEntry `json:"models"`
}

// ModelEntry is one listed model. Size is null when upstream did not report it.
type ModelEntry struct {
	ID   string `json:"id"`
	Size *int64 `json:"size"`
}

// FromDescriptors builds the model listing.
func FromDescriptors(descriptors []models.ModelDescriptor) ModelsResponse {
	entries := make([]ModelEntry, 0, len(descriptors))
	for _, d := range descriptors {
		entries = append(entries, ModelEntry{ID: d.ID, Size: d.Size})
	}
	return ModelsResponse{Models: entries}
}
