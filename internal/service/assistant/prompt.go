package assistant

import (
	_ "embed"
	"strings"

	"hijrachat/internal/models"
)

const (
	// HistoryLimit is the number of most recent messages included in a prompt.
	HistoryLimit = 25
	// FallbackReply replaces a model answer that carried no text.
	FallbackReply = "⚠️ حدث خطأ أثناء الاتصال بـ Gemini."
)

//go:embed persona.txt
var personaText string

// Persona returns the fixed assistant instructions placed at the top of every prompt.
func Persona() string {
	return strings.TrimSpace(personaText)
}

// BuildPrompt renders the persona, the transcript of previous messages and the new user message.
func BuildPrompt(history []models.ChatMessage, message string) string {
	lines := make([]string, 0, len(history))
	for _, m := range history {
		lines = append(lines, string(m.Role)+": "+m.Message)
	}

	var b strings.Builder
	b.WriteString("\n")
	b.WriteString(Persona())
	b.WriteString("\n\nالرسائل السابقة:\n")
	b.WriteString(strings.Join(lines, "\n"))
	b.WriteString("\n\nرسالة المستخدم:\n")
	b.WriteString(message)
	b.WriteString("\n")
	return b.String()
}
