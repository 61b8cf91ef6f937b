// Package prompts renders the system prompts for both model passes from
// embedded templates. Rendering goes through the Eino prompt component so
// prompt callbacks fire for observability.
package prompts

import (
	"context"
	_ "embed"
	"fmt"
	"strings"
	"time"

	"github.com/cloudwego/eino/components/prompt"
	"github.com/cloudwego/eino/schema"

	"github.com/finsight-core/server/internal/assistant/model"
)

//go:embed template/classifier_prompt.txt
var classifierSystemPrompt string

const dateLayout = "2006-01-02"

// RenderClassifierSystem renders the classification system prompt. Known
// tokens are replaced with strings.Replacer so the JSON examples in the
// template survive untouched.
func RenderClassifierSystem(ctx context.Context, now time.Time) (string, error) {
	content := strings.NewReplacer(
		"{current_date}", now.Format(dateLayout),
		"{default_intent}", string(model.IntentOther),
	).Replace(classifierSystemPrompt)

	tpl := prompt.FromMessages(
		schema.FString,
		schema.MessagesPlaceholder("system_messages", false),
	)
	msgs, err := tpl.Format(ctx, map[string]any{
		"system_messages": []*schema.Message{schema.SystemMessage(content)},
	})
	if err != nil {
		return "", fmt.Errorf("classifier prompt callbacks: %w", err)
	}
	if len(msgs) == 0 || msgs[0] == nil {
		return "", fmt.Errorf("classifier prompt callbacks: empty result")
	}
	return msgs[0].Content, nil
}
