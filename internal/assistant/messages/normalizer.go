// Package messages normalizes caller-supplied conversation history. History
// arrives in more than one shape (a structured "parts" form, or a legacy flat
// content form whose content may itself be an array of fragments); everything
// here is tolerant by construction and never returns an error; absence of
// text is a valid, representable result.
package messages

import (
	"encoding/json"
	"strings"

	"github.com/cloudwego/eino/schema"
)

// Part is one fragment of a structured message.
type Part struct {
	Type  string `json:"type"`
	Value string `json:"value"`
}

// IncomingMessage is one caller-supplied conversation message. Exactly one of
// Parts or Content is expected; Content stays raw so both the flat string form
// and the fragment-array form decode.
type IncomingMessage struct {
	Role    string          `json:"role"`
	Parts   []Part          `json:"parts,omitempty"`
	Content json.RawMessage `json:"content,omitempty"`
}

// legacyFragment covers fragment objects from the flat-content form, which
// name their payload either "text" or "value".
type legacyFragment struct {
	Type  string `json:"type"`
	Text  string `json:"text"`
	Value string `json:"value"`
}

// Text concatenates the message's textual fragments in order with a single
// space separator. Non-textual fragments are skipped; an unrecognizable
// content shape yields "".
func (m IncomingMessage) Text() string {
	var frags []string

	for _, p := range m.Parts {
		if p.Type != "" && p.Type != "text" {
			continue
		}
		if v := strings.TrimSpace(p.Value); v != "" {
			frags = append(frags, v)
		}
	}
	if len(frags) > 0 {
		return strings.Join(frags, " ")
	}

	if len(m.Content) == 0 {
		return ""
	}

	var flat string
	if err := json.Unmarshal(m.Content, &flat); err == nil {
		return strings.TrimSpace(flat)
	}

	var raw []json.RawMessage
	if err := json.Unmarshal(m.Content, &raw); err != nil {
		return ""
	}
	for _, item := range raw {
		var s string
		if err := json.Unmarshal(item, &s); err == nil {
			if s = strings.TrimSpace(s); s != "" {
				frags = append(frags, s)
			}
			continue
		}
		var f legacyFragment
		if err := json.Unmarshal(item, &f); err != nil {
			continue
		}
		if f.Type != "" && f.Type != "text" {
			continue
		}
		v := f.Text
		if v == "" {
			v = f.Value
		}
		if v = strings.TrimSpace(v); v != "" {
			frags = append(frags, v)
		}
	}
	return strings.Join(frags, " ")
}

// ExtractLastUserText returns the text of the most recent user message, or ""
// when no user message exists or the most recent one has no textual fragment.
// Earlier user messages are never consulted; a text-free latest message means
// the caller sent nothing usable this turn.
func ExtractLastUserText(history []IncomingMessage) string {
	for i := len(history) - 1; i >= 0; i-- {
		if strings.EqualFold(history[i].Role, string(schema.User)) {
			return history[i].Text()
		}
	}
	return ""
}

// SplitLastUserTurn separates the current query from the preceding history:
// the most recent user message becomes the query, everything before it becomes
// prompt history. Returns an empty query when there is no user message or the
// most recent one carries no text.
func SplitLastUserTurn(history []IncomingMessage) ([]*schema.Message, string) {
	for i := len(history) - 1; i >= 0; i-- {
		if !strings.EqualFold(history[i].Role, string(schema.User)) {
			continue
		}
		text := history[i].Text()
		if text == "" {
			return nil, ""
		}
		return ToSchemaMessages(history[:i]), text
	}
	return nil, ""
}

// ToSchemaMessages converts caller history into prompt messages. Messages with
// unknown roles or no text are dropped rather than rejected.
func ToSchemaMessages(history []IncomingMessage) []*schema.Message {
	out := make([]*schema.Message, 0, len(history))
	for _, m := range history {
		text := m.Text()
		if text == "" {
			continue
		}
		switch schema.RoleType(strings.ToLower(m.Role)) {
		case schema.User:
			out = append(out, schema.UserMessage(text))
		case schema.Assistant:
			out = append(out, schema.AssistantMessage(text, nil))
		case schema.System:
			out = append(out, schema.SystemMessage(text))
		case schema.Tool:
			out = append(out, &schema.Message{Role: schema.Tool, Content: text})
		}
	}
	return out
}
