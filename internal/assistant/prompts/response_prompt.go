package prompts

import (
	"context"
	_ "embed"
	"fmt"
	"time"

	"github.com/cloudwego/eino/components/prompt"
	"github.com/cloudwego/eino/schema"

	"github.com/finsight-core/server/internal/assistant/capability"
	"github.com/finsight-core/server/internal/assistant/model"
	"github.com/finsight-core/server/internal/assistant/tools"
)

//go:embed template/response_prompt.txt
var responseSystemPrompt string

// RenderResponseSystem renders the response system prompt. contextText is the
// capability executor's output for this turn; the sentinel for non-financial
// turns omits the context section entirely.
func RenderResponseSystem(ctx context.Context, config model.ResponsePromptConfig, contextText string, now time.Time) (string, error) {
	if contextText == capability.NoFinancialData {
		contextText = ""
	}

	tpl := prompt.FromMessages(
		schema.GoTemplate,
		schema.SystemMessage(responseSystemPrompt),
	)
	vars := map[string]any{
		"AssistantName":    config.AssistantName,
		"Currency":         config.Currency,
		"CurrentDate":      now.Format(dateLayout),
		"BalanceTool":      tools.ToolGetBalance,
		"TransactionsTool": tools.ToolSearchTransactions,
		"Context":          contextText,
	}
	msgs, err := tpl.Format(ctx, vars)
	if err != nil {
		return "", fmt.Errorf("response prompt render: %w", err)
	}
	if len(msgs) == 0 || msgs[0] == nil {
		return "", fmt.Errorf("response prompt render: empty result")
	}
	return msgs[0].Content, nil
}
