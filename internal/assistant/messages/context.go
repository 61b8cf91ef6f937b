package messages

import (
	"strings"

	"github.com/cloudwego/eino/schema"
)

// BuildClassifierContext renders the recent conversation plus the current
// utterance into the tagged plain-text block the classifier prompt expects.
// Only user and assistant turns matter for classification.
func BuildClassifierContext(history []*schema.Message, query string, maxTurns int) string {
	recent := trimTail(history, maxTurns)

	var b strings.Builder
	b.WriteString("<conversation_context>\n")
	for _, msg := range recent {
		if msg == nil || msg.Content == "" {
			continue
		}
		switch msg.Role {
		case schema.User:
			b.WriteString("UserMessage(" + msg.Content + ")\n")
		case schema.Assistant:
			b.WriteString("AssistantMessage(" + msg.Content + ")\n")
		}
	}
	b.WriteString("</conversation_context>\n")
	b.WriteString("<current_message_to_analyze>\n")
	b.WriteString("UserMessage(" + query + ")\n")
	b.WriteString("</current_message_to_analyze>")
	return b.String()
}

func trimTail(msgs []*schema.Message, maxTurns int) []*schema.Message {
	if maxTurns <= 0 || len(msgs) <= maxTurns {
		return msgs
	}
	return msgs[len(msgs)-maxTurns:]
}
