package nodes

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/cloudwego/eino/compose"
	"github.com/cloudwego/eino/schema"

	"github.com/finsight-core/server/internal/assistant/capability"
	"github.com/finsight-core/server/internal/assistant/messages"
	"github.com/finsight-core/server/internal/assistant/model"
	"github.com/finsight-core/server/internal/assistant/parsers"
	"github.com/finsight-core/server/internal/assistant/prompts"
	logx "github.com/finsight-core/server/pkg/logger"
)

// Node names used when wiring the graph.
const (
	NodeClassifierInput    = "ClassifierInput"
	NodeClassifierModel    = "ClassifierModel"
	NodeIntentionParser    = "IntentionParser"
	NodeCapabilityExecutor = "CapabilityExecutor"
	NodeResponseAssembler  = "ResponseAssembler"
	NodeResponseModel      = "ResponseChatModel"
	NodeToolExecutor       = "ToolExecutor"
)

// NewClassifierInputPreHandler seeds per-turn state from the graph input.
func NewClassifierInputPreHandler() func(context.Context, model.TurnInput, *model.PipelineState) (model.TurnInput, error) {
	return func(ctx context.Context, in model.TurnInput, s *model.PipelineState) (model.TurnInput, error) {
		s.Identity = in.Identity
		s.Query = in.Query
		s.TurnHistory = in.History
		// Reset tool call counter and limit flag for each new turn
		s.ToolCallCount = 0
		s.ToolCallLimitReached = false
		s.ToolCallIDSeq = 0
		s.TotalCostUSD = 0
		return in, nil
	}
}

// NewClassifierInputNode builds the two classifier messages: the rendered
// system prompt and the conversation context block ending in the current query.
func NewClassifierInputNode(pipelineCfg *model.PipelineConfig) *compose.Lambda {
	return compose.InvokableLambda(func(ctx context.Context, input model.TurnInput) ([]*schema.Message, error) {
		systemPrompt, err := prompts.RenderClassifierSystem(ctx, time.Now())
		if err != nil {
			return nil, fmt.Errorf("render classifier system prompt: %w", err)
		}

		conversationCtx := messages.BuildClassifierContext(input.History, input.Query, pipelineCfg.HistoryMaxTurns)

		return []*schema.Message{
			schema.SystemMessage(systemPrompt),
			schema.UserMessage(conversationCtx),
		}, nil
	})
}

// NewClassifierModelPostHandler computes and logs usage cost for the classifier model.
func NewClassifierModelPostHandler(modelName string) func(context.Context, *schema.Message, *model.PipelineState) (*schema.Message, error) {
	return func(ctx context.Context, out *schema.Message, state *model.PipelineState) (*schema.Message, error) {
		recordUsageCost(out, state, NodeClassifierModel, modelName)
		return out, nil
	}
}

// NewIntentionParserNode parses the classifier output into an intention.
// Parsing trouble is absorbed here: an unusable classification degrades the
// turn to the fallback intent rather than failing it.
func NewIntentionParserNode() *compose.Lambda {
	return compose.InvokableLambda(func(ctx context.Context, resp *schema.Message) (model.Intention, error) {
		intn, err := parsers.ParseIntention(resp.Content)
		if err != nil {
			logx.Warn().Err(err).Msg("Classification unusable, falling back to OTHER")
		}
		return intn, nil
	})
}

// NewIntentionParserPostHandler saves the intention to state.
func NewIntentionParserPostHandler() func(context.Context, model.Intention, *model.PipelineState) (model.Intention, error) {
	return func(ctx context.Context, out model.Intention, state *model.PipelineState) (model.Intention, error) {
		state.Intention = &out
		logx.Debug().
			Str("identity", state.Identity).
			Str("intent", string(out.Intent)).
			Msg("Query classified")
		return out, nil
	}
}

// NewCapabilityExecutorNode resolves the intention into context text for the
// response prompt. The executor never returns an error; data-layer trouble
// arrives as an apologetic context string.
func NewCapabilityExecutorNode(exec *capability.Executor) *compose.Lambda {
	return compose.InvokableLambda(func(ctx context.Context, intn model.Intention) (string, error) {
		identity, ok := capability.IdentityFromContext(ctx)
		if !ok {
			err := compose.ProcessState(ctx, func(_ context.Context, state *model.PipelineState) error {
				identity = state.Identity
				return nil
			})
			if err != nil {
				return "", fmt.Errorf("failed to access state: %w", err)
			}
		}
		if identity == "" {
			return "", fmt.Errorf("no identity for capability execution")
		}
		return exec.Execute(ctx, intn, identity), nil
	})
}

// NewCapabilityExecutorPostHandler saves the context text to state.
func NewCapabilityExecutorPostHandler() func(context.Context, string, *model.PipelineState) (string, error) {
	return func(ctx context.Context, out string, state *model.PipelineState) (string, error) {
		state.ContextText = out
		return out, nil
	}
}

// NewResponseAssemblerNode builds the response model context: rendered system
// prompt, the caller's history, then the current query.
func NewResponseAssemblerNode(responsePromptConfig *model.ResponsePromptConfig) *compose.Lambda {
	return compose.InvokableLambda(func(ctx context.Context, contextText string) ([]*schema.Message, error) {
		var query string
		var history []*schema.Message
		err := compose.ProcessState(ctx, func(_ context.Context, state *model.PipelineState) error {
			query = state.Query
			history = state.TurnHistory
			return nil
		})
		if err != nil {
			return nil, fmt.Errorf("failed to access state: %w", err)
		}

		respSysPrompt, err := prompts.RenderResponseSystem(ctx, *responsePromptConfig, contextText, time.Now())
		if err != nil {
			return nil, fmt.Errorf("generate response prompt: %w", err)
		}

		msgs := make([]*schema.Message, 0, len(history)+2)
		msgs = append(msgs, schema.SystemMessage(respSysPrompt))
		msgs = append(msgs, history...)
		msgs = append(msgs, schema.UserMessage(query))
		return msgs, nil
	})
}

// NewResponseModelPreHandler accumulates the model-loop transcript and injects
// the wrap-up notice once the tool budget is spent.
func NewResponseModelPreHandler(maxToolCalls int) func(context.Context, []*schema.Message, *model.PipelineState) ([]*schema.Message, error) {
	return func(ctx context.Context, in []*schema.Message, state *model.PipelineState) ([]*schema.Message, error) {
		// Gemini may reject tool results without a tool_call_id; backfill from
		// the most recent assistant tool call.
		if len(in) > 0 {
			last := in[len(in)-1]
			if last != nil && last.Role == schema.Tool && strings.TrimSpace(last.ToolCallID) == "" {
				for i := len(state.History) - 1; i >= 0; i-- {
					msg := state.History[i]
					if msg == nil || msg.Role != schema.Assistant || len(msg.ToolCalls) == 0 {
						continue
					}
					if id := msg.ToolCalls[0].ID; strings.TrimSpace(id) != "" {
						last.ToolCallID = id
					}
					break
				}
			}
		}

		state.History = append(state.History, in...)

		if checkAndMarkToolLimit(state, maxToolCalls) {
			maxToolCalls = normalizeMaxToolCalls(maxToolCalls)
			wrapUp := &schema.Message{
				Role: schema.System,
				Content: fmt.Sprintf(
					"SYSTEM NOTICE: You have reached the maximum tool call limit (%d). "+
						"Please synthesize a helpful response using the information you've already gathered. "+
						"Acknowledge any limitations in your response if you couldn't complete all necessary tool calls.",
					maxToolCalls,
				),
			}
			state.History = append(state.History, wrapUp)
		}

		return state.History, nil
	}
}

// NewResponseModelPostHandler records usage cost, repairs missing tool call
// IDs, and appends the model output to the transcript.
func NewResponseModelPostHandler(modelName string) func(context.Context, *schema.Message, *model.PipelineState) (*schema.Message, error) {
	return func(ctx context.Context, out *schema.Message, state *model.PipelineState) (*schema.Message, error) {
		recordUsageCost(out, state, NodeResponseModel, modelName)

		// Some providers omit tool_call IDs; synthesize stable ones.
		if out != nil && len(out.ToolCalls) > 0 {
			for i := range out.ToolCalls {
				if strings.TrimSpace(out.ToolCalls[i].ID) == "" {
					state.ToolCallIDSeq++
					out.ToolCalls[i].ID = fmt.Sprintf("call_%d", state.ToolCallIDSeq)
				}
			}
		}

		state.History = append(state.History, out)

		if len(out.ToolCalls) > 0 {
			logx.Debug().Int("tool_count", len(out.ToolCalls)).Msg("Calling tools")
		} else {
			logx.Debug().Msg("AI response ready")
		}
		return out, nil
	}
}

// NewToolExecutorCondition routes to the tool executor when the model asked
// for tools and the budget is not exhausted.
func NewToolExecutorCondition() func(context.Context, *schema.Message) (string, error) {
	return func(ctx context.Context, input *schema.Message) (string, error) {
		var limitReached bool
		compose.ProcessState(ctx, func(_ context.Context, state *model.PipelineState) error {
			limitReached = state.ToolCallLimitReached
			return nil
		})

		if limitReached {
			logx.Debug().Msg("Tool limit reached previously, routing to end")
			return compose.END, nil
		}

		if len(input.ToolCalls) > 0 {
			logx.Debug().Int("tool_count", len(input.ToolCalls)).Msg("Routing to ToolExecutor")
			return NodeToolExecutor, nil
		}

		return compose.END, nil
	}
}

// NewToolExecutorPreHandler counts tool rounds against the budget.
func NewToolExecutorPreHandler(maxToolCalls int) func(context.Context, *schema.Message, *model.PipelineState) (*schema.Message, error) {
	return func(ctx context.Context, in *schema.Message, state *model.PipelineState) (*schema.Message, error) {
		exceeded := incrementToolCallAndCheck(state, maxToolCalls)

		logx.Debug().
			Int("tool_call_count", state.ToolCallCount).
			Str("identity", state.Identity).
			Msg("Tool execution attempt")

		if exceeded {
			logx.Warn().
				Int("tool_call_count", state.ToolCallCount).
				Int("max_tool_calls", normalizeMaxToolCalls(maxToolCalls)).
				Str("identity", state.Identity).
				Msg("Tool call limit exceeded, flagging and continuing")
		}
		return in, nil
	}
}

// recordUsageCost annotates out.Extra with token usage cost and accumulates
// the turn total in state.
func recordUsageCost(out *schema.Message, state *model.PipelineState, node, modelName string) {
	if out == nil || out.ResponseMeta == nil || out.ResponseMeta.Usage == nil {
		return
	}

	pricing := model.ResolvePricing(modelName)
	inC, outC, totalC := model.ComputeCost(out.ResponseMeta.Usage, pricing)
	if out.Extra == nil {
		out.Extra = map[string]any{}
	}
	out.Extra["usage_cost"] = map[string]any{
		"currency":          "USD",
		"model":             modelName,
		"prompt_tokens":     out.ResponseMeta.Usage.PromptTokens,
		"completion_tokens": out.ResponseMeta.Usage.CompletionTokens,
		"total_tokens":      out.ResponseMeta.Usage.TotalTokens,
		"input_cost":        inC,
		"output_cost":       outC,
		"total_cost":        totalC,
	}

	state.TotalCostUSD += totalC
	out.Extra["usage_cost_total_usd"] = state.TotalCostUSD

	logx.Debug().
		Str("identity", state.Identity).
		Str("node", node).
		Str("model", modelName).
		Int("prompt_tokens", out.ResponseMeta.Usage.PromptTokens).
		Int("completion_tokens", out.ResponseMeta.Usage.CompletionTokens).
		Int("total_tokens", out.ResponseMeta.Usage.TotalTokens).
		Float64("total_cost_usd", totalC).
		Msg("LLM usage")
}
