package models

import "fmt"

// Role identifies the author of a message.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// ParseRole validates a role string received from a client.
func ParseRole(s string) (Role, error) {
	switch r := Role(s); r {
	case RoleSystem, RoleUser, RoleAssistant:
		return r, nil
	default:
		return "", fmt.Errorf("unsupported role %q", s)
	}
}

// Message represents a single conversational message in the canonical schema.
type Message struct {
	Role    Role
	Content string
}

// CompletionRequest is the canonical representation of a generation request.
// An empty Model means the caller did not choose one.
type CompletionRequest struct {
	Model       string
	Messages    []Message
	Temperature float64
	N           int
}

// CompletionResult is one generated choice.
type CompletionResult struct {
	Model   string
	Content string
}

// Chunk carries one streamed fragment, or the error that ended the stream.
type Chunk struct {
	Content string
	Err     error
}

// ModelDescriptor describes a model available on the inference server.
type ModelDescriptor struct {
	ID   string
	Size *int64
}

// CloneMessages returns a copy that callers may hand to concurrent workers.
func CloneMessages(msgs []Message) []Message {
	if msgs == nil {
		return nil
	}
	out := make([]Message, len(msgs))
	copy(out, msgs)
	return out
}
