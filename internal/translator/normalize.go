package translator

import "ollama-gateway/internal/models"

// FromHistory projects a chat history onto the canonical message sequence,
// keeping order and dropping transport-only fields.
func FromHistory(history []ChatMessage) []models.Message {
	out := make([]models.Message, 0, len(history))
	for _, m := range history {
		out = append(out, models.Message{Role: m.Role, Content: m.Content})
	}
	return out
}

// FromInstruction builds the canonical sequence for a single-shot request.
func FromInstruction(instructions, input string) []models.Message {
	out := make([]models.Message, 0, 2)
	if instructions != "" {
		out = append(out, models.Message{Role: models.RoleSystem, Content: instructions})
	}
	return append(out, models.Message{Role: models.RoleUser, Content: input})
}
