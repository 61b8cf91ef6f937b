package model

import (
	"github.com/cloudwego/eino/schema"
)

// PipelineState stores per-turn state for the Eino graph.
// Concurrency model:
//   - Registered as graph local state via compose.WithGenLocalState.
//   - All reads/writes happen only inside Eino state handlers
//     (WithStatePreHandler, WithStatePostHandler, compose.ProcessState),
//     which Eino serializes, so no mutex is required.
//   - Do not access PipelineState outside handlers.
type PipelineState struct {
	Identity             string
	Query                string
	TurnHistory          []*schema.Message // caller-supplied history, read-only after intake
	History              []*schema.Message // model-loop transcript, grows only inside state handlers
	Intention            *Intention        // set by the parser post-handler
	ContextText          string            // set by the executor post-handler
	ToolCallCount        int
	ToolCallLimitReached bool
	ToolCallIDSeq        int // synthesizes tool_call_id when the provider omits it

	// Accumulated total LLM cost (USD) across model invocations for this turn.
	TotalCostUSD float64
}

// TurnInput is the graph input for one conversational turn. The conversation
// history is owned by the caller and supplied per request; the pipeline only
// reads it.
type TurnInput struct {
	Identity string            `json:"identity"`
	Query    string            `json:"query"`
	History  []*schema.Message `json:"history"`
}
