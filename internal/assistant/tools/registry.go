// Package tools declares the model-facing tools for the response graph. Both
// tools delegate to the capability executor, so model-driven lookups and the
// classification pre-pass resolve against the same data and cache.
package tools

import (
	"context"
	"fmt"

	"github.com/cloudwego/eino/components/tool"
	"github.com/cloudwego/eino/schema"

	"github.com/finsight-core/server/internal/assistant/capability"
)

// Tool names as declared to the response model.
const (
	ToolGetBalance         = "get_balance"
	ToolSearchTransactions = "search_transactions"
)

// GetQueryTools returns the financial query tools bound to exec.
func GetQueryTools(exec *capability.Executor) []tool.BaseTool {
	return []tool.BaseTool{
		createGetBalanceTool(exec),
		createSearchTransactionsTool(exec),
	}
}

// GetToolInfos extracts the ToolInfo declarations for model binding.
func GetToolInfos(ctx context.Context, ts []tool.BaseTool) ([]*schema.ToolInfo, error) {
	infos := make([]*schema.ToolInfo, 0, len(ts))
	for _, t := range ts {
		info, err := t.Info(ctx)
		if err != nil {
			return nil, fmt.Errorf("tool info: %w", err)
		}
		infos = append(infos, info)
	}
	return infos, nil
}
