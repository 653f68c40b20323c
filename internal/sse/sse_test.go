package sse

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ollama-gateway/internal/models"
)

type recorder struct {
	bytes.Buffer
	flushes int
}

func (r *recorder) Flush() {
	r.flushes++
}

func feed(chunks ...models.Chunk) <-chan models.Chunk {
	ch := make(chan models.Chunk, len(chunks))
	for _, c := range chunks {
		ch <- c
	}
	close(ch)
	return ch
}

func TestEncode(t *testing.T) {
	assert.Equal(t, "data: {\"content\":\"Hi\"}\n\n", string(Encode("Hi")))
	assert.Equal(t, "data: {\"content\":\"\"}\n\n", string(Encode("")))
	assert.Equal(t, "data: {\"content\":\"a<b>\\n\\\"c\\\"\"}\n\n", string(Encode("a<b>\n\"c\"")))
	assert.Equal(t, "data: [DONE]\n\n", string(Done()))
}

func TestRelay(t *testing.T) {
	w := &recorder{}
	err := Relay(context.Background(), w, feed(
		models.Chunk{Content: "Hi"},
		models.Chunk{Content: " there"},
	), nil)
	require.NoError(t, err)

	assert.Equal(t, "data: {\"content\":\"Hi\"}\n\ndata: {\"content\":\" there\"}\n\ndata: [DONE]\n\n", w.String())
	assert.Equal(t, 3, w.flushes)
}

func TestRelayEmptyStream(t *testing.T) {
	w := &recorder{}
	require.NoError(t, Relay(context.Background(), w, feed(), nil))
	assert.Equal(t, "data: [DONE]\n\n", w.String())
}

func TestRelayErrorRecordOmitsDone(t *testing.T) {
	boom := errors.New("upstream went away")
	w := &recorder{}

	err := Relay(context.Background(), w, feed(
		models.Chunk{Content: "partial"},
		models.Chunk{Err: boom},
	), func(error) string { return "upstream_unavailable" })
	assert.ErrorIs(t, err, boom)

	out := w.String()
	assert.True(t, strings.HasPrefix(out, "data: {\"content\":\"partial\"}\n\n"))
	assert.Contains(t, out, `data: {"error":{"message":"upstream went away","type":"upstream_unavailable"}}`)
	assert.NotContains(t, out, "[DONE]")
}

func TestRelayStopsWhenContextCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	w := &recorder{}
	err := Relay(ctx, w, make(chan models.Chunk), nil)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, w.String())
}

func TestRelayPreservesFragmentsProperty(t *testing.T) {
	properties := gopter.NewProperties(nil)

	properties.Property("decoded records equal the fragments followed by [DONE]", prop.ForAll(
		func(fragments []string) bool {
			chunks := make([]models.Chunk, 0, len(fragments))
			for _, f := range fragments {
				chunks = append(chunks, models.Chunk{Content: f})
			}

			w := &recorder{}
			if err := Relay(context.Background(), w, feed(chunks...), nil); err != nil {
				return false
			}

			records := strings.Split(strings.TrimSuffix(w.String(), "\n\n"), "\n\n")
			if len(records) != len(fragments)+1 || records[len(records)-1] != "data: [DONE]" {
				return false
			}
			for i, rec := range records[:len(fragments)] {
				var payload fragmentPayload
				if err := json.Unmarshal([]byte(strings.TrimPrefix(rec, "data: ")), &payload); err != nil {
					return false
				}
				if payload.Content != fragments[i] {
					return false
				}
			}
			return true
		},
		gen.SliceOf(gen.AnyString()),
	))

	properties.TestingRun(t)
}
