// Package sse frames streamed fragments as Server-Sent Events.
//
// Each fragment becomes one record:
//
//	data: {"content":"..."}
//
// and a completed stream ends with a single "data: [DONE]" record. A stream
// that fails after it started ends with an error record instead, and no
// [DONE] is written.
package sse

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"

	"ollama-gateway/internal/models"
)

var doneRecord = []byte("data: [DONE]\n\n")

// Writer is the transport a relay writes to.
type Writer interface {
	io.Writer
	Flush()
}

type fragmentPayload struct {
	Content string `json:"content"`
}

type errorPayload struct {
	Error struct {
		Message string `json:"message"`
		Type    string `json:"type"`
	} `json:"error"`
}

// Encode frames one fragment. Content is relayed verbatim.
func Encode(fragment string) []byte {
	return record(fragmentPayload{Content: fragment})
}

// Done returns the terminal sentinel record.
func Done() []byte {
	return bytes.Clone(doneRecord)
}

// EncodeError frames a mid-stream failure.
func EncodeError(message, errType string) []byte {
	var payload errorPayload
	payload.Error.Message = message
	payload.Error.Type = errType
	return record(payload)
}

func record(payload any) []byte {
	var buf bytes.Buffer
	buf.WriteString("data: ")
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	// Only fixed struct types with string fields are encoded here.
	_ = enc.Encode(payload)
	buf.Truncate(buf.Len() - 1) // Encode appends '\n'
	buf.WriteString("\n\n")
	return buf.Bytes()
}

// ErrorClassifier maps a stream failure to the error type reported to clients.
type ErrorClassifier func(error) string

// Relay drains chunks into w, flushing after every record. It returns nil
// after writing [DONE], the chunk error after writing an error record, or
// ctx.Err() when the consumer went away; in the last case chunks is left
// undrained and its producer is expected to stop on the same context.
func Relay(ctx context.Context, w Writer, chunks <-chan models.Chunk, classify ErrorClassifier) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case chunk, ok := <-chunks:
			if !ok {
				if err := write(w, doneRecord); err != nil {
					return err
				}
				return nil
			}

			if chunk.Err != nil {
				errType := "upstream_error"
				if classify != nil {
					errType = classify(chunk.Err)
				}
				if err := write(w, EncodeError(chunk.Err.Error(), errType)); err != nil {
					return err
				}
				return chunk.Err
			}

			if err := write(w, Encode(chunk.Content)); err != nil {
				return err
			}
		}
	}
}

func write(w Writer, rec []byte) error {
	if _, err := w.Write(rec); err != nil {
		return fmt.Errorf("write SSE record: %w", err)
	}
	w.Flush()
	return nil
}
