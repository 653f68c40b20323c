package translator

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ollama-gateway/internal/models"
)

func TestChatCompletionRequestDefaults(t *testing.T) {
	var req ChatCompletionRequest
	err := json.Unmarshal([]byte(`{"messages":[{"role":"user","content":"Hello"}]}`), &req)
	require.NoError(t, err)

	assert.Equal(t, "", req.Model)
	assert.Equal(t, 1, req.N)
	assert.Equal(t, DefaultTemperature, req.Temperature)
	assert.False(t, req.Stream)

	creq := req.ToCompletionRequest()
	assert.Equal(t, []models.Message{{Role: models.RoleUser, Content: "Hello"}}, creq.Messages)
	assert.Equal(t, 1, creq.N)
}

func TestChatCompletionRequestExplicitFields(t *testing.T) {
	var req ChatCompletionRequest
	err := json.Unmarshal([]byte(`{
		"model": " tinyllama ",
		"messages": [
			{"role":"system","content":"You are helpful."},
			{"role":"user","content":[{"type":"text","text":"Hi "},{"type":"text","text":"there"}]}
		],
		"n": 3,
		"temperature": 0.1,
		"stream": true
	}`), &req)
	require.NoError(t, err)

	assert.Equal(t, "tinyllama", req.Model)
	assert.Equal(t, 3, req.N)
	assert.Equal(t, 0.1, req.Temperature)
	assert.True(t, req.Stream)
	require.Len(t, req.Messages, 2)
	assert.Equal(t, "Hi there", req.Messages[1].Content)
}

func TestChatCompletionRequestValidation(t *testing.T) {
	cases := []struct {
		name    string
		body    string
		wantErr string
	}{
		{name: "missing messages", body: `{}`, wantErr: "messages is required"},
		{name: "null messages", body: `{"messages":null}`, wantErr: "messages is required"},
		{name: "empty messages", body: `{"messages":[]}`, wantErr: "at least one message"},
		{name: "unknown role", body: `{"messages":[{"role":"tool","content":"x"}]}`, wantErr: "unsupported role"},
		{name: "missing content", body: `{"messages":[{"role":"user"}]}`, wantErr: "missing content"},
		{name: "image segment", body: `{"messages":[{"role":"user","content":[{"type":"image_url"}]}]}`, wantErr: "not supported"},
		{name: "no user message", body: `{"messages":[{"role":"system","content":"x"}]}`, wantErr: "role \"user\""},
		{name: "zero n", body: `{"messages":[{"role":"user","content":"x"}],"n":0}`, wantErr: "n must be at least 1"},
		{name: "temperature too high", body: `{"messages":[{"role":"user","content":"x"}],"temperature":1.5}`, wantErr: "temperature"},
		{name: "negative temperature", body: `{"messages":[{"role":"user","content":"x"}],"temperature":-0.1}`, wantErr: "temperature"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			var req ChatCompletionRequest
			err := json.Unmarshal([]byte(tc.body), &req)
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrValidation)
			assert.Contains(t, err.Error(), tc.wantErr)
		})
	}
}

func TestChatMessageAllowsEmptyContent(t *testing.T) {
	var msg ChatMessage
	require.NoError(t, json.Unmarshal([]byte(`{"role":"assistant","content":""}`), &msg))
	assert.Equal(t, models.RoleAssistant, msg.Role)
	assert.Equal(t, "", msg.Content)
}

func TestResponseRequest(t *testing.T) {
	t.Run("defaults", func(t *testing.T) {
		var req ResponseRequest
		require.NoError(t, json.Unmarshal([]byte(`{"input":"Hello"}`), &req))
		assert.Equal(t, DefaultTemperature, req.Temperature)

		creq := req.ToCompletionRequest()
		assert.Equal(t, []models.Message{{Role: models.RoleUser, Content: "Hello"}}, creq.Messages)
		assert.Equal(t, 1, creq.N)
		assert.Equal(t, "", creq.Model)
	})

	t.Run("instructions", func(t *testing.T) {
		var req ResponseRequest
		require.NoError(t, json.Unmarshal([]byte(`{"model":"tinyllama","instructions":"Be terse","input":"Hi","temperature":0.2}`), &req))

		creq := req.ToCompletionRequest()
		assert.Equal(t, "tinyllama", creq.Model)
		assert.Equal(t, 0.2, creq.Temperature)
		assert.Equal(t, []models.Message{
			{Role: models.RoleSystem, Content: "Be terse"},
			{Role: models.RoleUser, Content: "Hi"},
		}, creq.Messages)
	})

	t.Run("null instructions", func(t *testing.T) {
		var req ResponseRequest
		require.NoError(t, json.Unmarshal([]byte(`{"instructions":null,"input":"Hi"}`), &req))
		assert.Len(t, req.ToCompletionRequest().Messages, 1)
	})

	t.Run("empty input", func(t *testing.T) {
		for _, body := range []string{`{"input":""}`, `{"input":"   "}`} {
			var req ResponseRequest
			require.NoError(t, json.Unmarshal([]byte(body), &req), body)
			assert.Equal(t, []models.Message{{Role: models.RoleUser, Content: req.Input}}, req.ToCompletionRequest().Messages)
		}
	})

	for _, body := range []string{`{}`, `{"input":null}`} {
		t.Run("rejects "+body, func(t *testing.T) {
			var req ResponseRequest
			err := json.Unmarshal([]byte(body), &req)
			assert.ErrorIs(t, err, ErrValidation)
		})
	}
}

func TestFromResults(t *testing.T) {
	results := []models.CompletionResult{
		{Model: "llama3.2:3b", Content: "one"},
		{Model: "llama3.2:3b", Content: "two"},
	}

	resp := FromResults("llama3.2:3b", 1700000000, results)

	assert.True(t, strings.HasPrefix(resp.ID, "chatcmpl-"))
	assert.Equal(t, "chat.completion", resp.Object)
	assert.Equal(t, int64(1700000000), resp.Created)
	assert.Equal(t, "llama3.2:3b", resp.Model)
	require.Len(t, resp.Choices, 2)
	for i, choice := range resp.Choices {
		assert.Equal(t, i, choice.Index)
		assert.Equal(t, models.RoleAssistant, choice.Message.Role)
		assert.Equal(t, results[i].Content, choice.Message.Content)
		assert.Equal(t, "stop", choice.FinishReason)
	}
}

func TestFromDescriptorsKeepsNullSize(t *testing.T) {
	size := int64(2019393189)
	resp := FromDescriptors([]models.ModelDescriptor{
		{ID: "llama3.2:3b", Size: &size},
		{ID: "mystery"},
	})

	data, err := json.Marshal(resp)
	require.NoError(t, err)
	assert.JSONEq(t, `{"models":[{"id":"llama3.2:3b","size":2019393189},{"id":"mystery","size":null}]}`, string(data))
}
