package tools

import (
	"context"
	"fmt"

	"github.com/cloudwego/eino/components/tool"
	"github.com/cloudwego/eino/components/tool/utils"
	"github.com/cloudwego/eino/schema"

	"github.com/finsight-core/server/internal/assistant/capability"
	"github.com/finsight-core/server/internal/metrics"
)

type GetBalanceInput struct {
	// The model sometimes fabricates arguments for no-arg tools; accept and
	// ignore them rather than failing the call.
	Reason string `json:"reason,omitempty"`
}

type GetBalanceOutput struct {
	TotalBalance      string `json:"total_balance"`
	MonthIncome       string `json:"month_income"`
	MonthExpenses     string `json:"month_expenses"`
	MonthTransactions int    `json:"month_transactions"`
}

func createGetBalanceTool(exec *capability.Executor) tool.BaseTool {
	return utils.NewTool(
		&schema.ToolInfo{
			Name: ToolGetBalance,
			Desc: "Get the user's current financial snapshot: total balance plus this month's income, expenses, and transaction count. Use this tool whenever the user asks how much money they have or how their month is going. Takes no arguments.",
			ParamsOneOf: schema.NewParamsOneOfByParams(map[string]*schema.ParameterInfo{
				"reason": {
					Type: "string",
					Desc: "Optional note on why the balance is needed. Ignored.",
				},
			}),
		},
		func(ctx context.Context, in *GetBalanceInput) (*GetBalanceOutput, error) {
			metrics.ToolInvocations.WithLabelValues(ToolGetBalance).Inc()

			identity, ok := capability.IdentityFromContext(ctx)
			if !ok {
				return nil, fmt.Errorf("no identity in context")
			}

			snap, err := exec.Balance(ctx, identity)
			if err != nil {
				return nil, err
			}

			return &GetBalanceOutput{
				TotalBalance:      snap.TotalBalance.StringFixed(2),
				MonthIncome:       snap.MonthIncome.StringFixed(2),
				MonthExpenses:     snap.MonthExpenses.StringFixed(2),
				MonthTransactions: snap.MonthTransactions,
			}, nil
		},
	)
}
