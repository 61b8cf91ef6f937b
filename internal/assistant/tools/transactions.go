package tools

import (
	"context"
	"fmt"
	"time"

	"github.com/cloudwego/eino/components/tool"
	"github.com/cloudwego/eino/components/tool/utils"
	"github.com/cloudwego/eino/schema"

	"github.com/finsight-core/server/internal/assistant/capability"
	"github.com/finsight-core/server/internal/assistant/model"
	"github.com/finsight-core/server/internal/metrics"
)

const dateLayout = "2006-01-02"

type SearchTransactionsInput struct {
	Category  string `json:"category,omitempty"`
	StartDate string `json:"start_date,omitempty"`
	EndDate   string `json:"end_date,omitempty"`
}

type SearchTransactionsOutput struct {
	Total        int               `json:"total"`
	Showing      int               `json:"showing"`
	Transactions []TransactionView `json:"transactions"`
}

type TransactionView struct {
	Date        string `json:"date"`
	Description string `json:"description"`
	Category    string `json:"category,omitempty"`
	Amount      string `json:"amount"`
	Kind        string `json:"kind"`
}

func createSearchTransactionsTool(exec *capability.Executor) tool.BaseTool {
	return utils.NewTool(
		&schema.ToolInfo{
			Name: ToolSearchTransactions,
			Desc: "Search the user's transactions, optionally filtered by category keyword and an inclusive date range. Returns a bounded preview plus the true total count. Use this tool whenever the user asks about specific expenses, income, merchants, or a period of time.",
			ParamsOneOf: schema.NewParamsOneOfByParams(map[string]*schema.ParameterInfo{
				"category": {
					Type: "string",
					Desc: "Optional category or merchant keyword, e.g. supermercado, transporte, restaurante. Matched loosely against descriptions and category names.",
				},
				"start_date": {
					Type: "string",
					Desc: "Optional inclusive start date in YYYY-MM-DD format.",
				},
				"end_date": {
					Type: "string",
					Desc: "Optional inclusive end date in YYYY-MM-DD format.",
				},
			}),
		},
		func(ctx context.Context, in *SearchTransactionsInput) (*SearchTransactionsOutput, error) {
			metrics.ToolInvocations.WithLabelValues(ToolSearchTransactions).Inc()

			identity, ok := capability.IdentityFromContext(ctx)
			if !ok {
				return nil, fmt.Errorf("no identity in context")
			}

			params := model.Parameters{Category: in.Category}
			params.StartDate = parseToolDate(in.StartDate)
			params.EndDate = parseToolDate(in.EndDate)

			res, err := exec.SearchTransactions(ctx, identity, params)
			if err != nil {
				return nil, err
			}

			out := &SearchTransactionsOutput{Total: res.Total, Showing: res.Showing}
			for _, tx := range res.Transactions {
				out.Transactions = append(out.Transactions, TransactionView{
					Date:        tx.Date.Format(dateLayout),
					Description: tx.Description,
					Category:    tx.Category,
					Amount:      tx.Amount.StringFixed(2),
					Kind:        tx.Kind,
				})
			}
			return out, nil
		},
	)
}

// parseToolDate drops anything the model produced that is not a valid date.
func parseToolDate(v string) *time.Time {
	if v == "" {
		return nil
	}
	t, err := time.Parse(dateLayout, v)
	if err != nil {
		return nil
	}
	return &t
}
