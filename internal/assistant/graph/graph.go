// Package graph composes the two-pass response pipeline as an Eino graph:
// classifier model, intention parser, capability executor, response assembler,
// response model, and the tool loop.
package graph

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/cloudwego/eino/compose"
	"github.com/cloudwego/eino/schema"

	"github.com/finsight-core/server/internal/assistant/capability"
	"github.com/finsight-core/server/internal/assistant/graph/nodes"
	"github.com/finsight-core/server/internal/assistant/graph/observers"
	"github.com/finsight-core/server/internal/assistant/model"
	"github.com/finsight-core/server/internal/assistant/tools"
	errx "github.com/finsight-core/server/internal/core/error"
	"github.com/finsight-core/server/internal/metrics"
	logx "github.com/finsight-core/server/pkg/logger"
)

// Runner executes the compiled graph for one conversational turn. Invoke
// returns the complete answer; Stream returns it incrementally.
type Runner interface {
	Invoke(ctx context.Context, in model.TurnInput) (string, error)
	Stream(ctx context.Context, in model.TurnInput) (*schema.StreamReader[*schema.Message], error)
}

// Config holds everything needed to compose the full response graph end-to-end.
// This is a convenience layer over GraphConfig that also constructs ChatModels.
type Config struct {
	APIKey          string
	BaseURL         string
	ClassifierModel model.ClassifierModelConfig
	ResponseModel   model.ResponseModelConfig
	ResponsePrompt  model.ResponsePromptConfig
	Pipeline        model.PipelineConfig
	Executor        *capability.Executor
}

// GraphConfig holds all configuration needed to build the graph
type GraphConfig struct {
	ChatModels           *nodes.ChatModels
	Executor             *capability.Executor
	PipelineConfig       *model.PipelineConfig
	ResponsePromptConfig *model.ResponsePromptConfig
	ToolMaxCalls         int
}

// GraphBuilder handles the construction of the response pipeline graph
type GraphBuilder struct {
	config *GraphConfig
	graph  *compose.Graph[model.TurnInput, *schema.Message]
}

type graphRunner struct {
	runnable compose.Runnable[model.TurnInput, *schema.Message]
}

func validateInput(in model.TurnInput) error {
	if strings.TrimSpace(in.Identity) == "" {
		return errx.Unauthenticated(errors.New("empty identity"))
	}
	if strings.TrimSpace(in.Query) == "" {
		return errx.MalformedInput(errors.New("empty query"), "message has no usable text")
	}
	return nil
}

func (r *graphRunner) Invoke(ctx context.Context, in model.TurnInput) (string, error) {
	if err := validateInput(in); err != nil {
		return "", err
	}

	metrics.TurnsStarted.Inc()
	start := time.Now()
	defer func() { metrics.TurnDuration.Observe(time.Since(start).Seconds()) }()

	ctx = capability.ContextWithIdentity(ctx, in.Identity)
	out, err := r.runnable.Invoke(ctx, in, compose.WithCallbacks(observers.NewAllCallbacks()))
	if err != nil {
		return "", errx.Upstream(err)
	}
	if out == nil {
		return "", nil
	}
	if len(out.Extra) > 0 {
		if b, err := json.Marshal(out.Extra); err == nil {
			logx.Debug().RawJSON("extra", b).Msg("Turn metadata")
		}
	}
	return out.Content, nil
}

func (r *graphRunner) Stream(ctx context.Context, in model.TurnInput) (*schema.StreamReader[*schema.Message], error) {
	if err := validateInput(in); err != nil {
		return nil, err
	}

	metrics.TurnsStarted.Inc()
	start := time.Now()

	ctx = capability.ContextWithIdentity(ctx, in.Identity)
	sr, err := r.runnable.Stream(ctx, in, compose.WithCallbacks(observers.NewAllCallbacks()))
	if err != nil {
		metrics.TurnDuration.Observe(time.Since(start).Seconds())
		return nil, errx.Upstream(err)
	}
	return sr, nil
}

// BuildResponseGraph composes ChatModels, builds the graph, and returns a Runner.
func BuildResponseGraph(ctx context.Context, cfg Config) (Runner, error) {
	if cfg.Executor == nil {
		return nil, fmt.Errorf("capability executor is nil")
	}

	cms, err := nodes.NewChatModels(ctx, nodes.ChatModelConfig{
		APIKey:           cfg.APIKey,
		BaseURL:          cfg.BaseURL,
		ClassifierConfig: &cfg.ClassifierModel,
		RespConfig:       &cfg.ResponseModel,
	})
	if err != nil {
		return nil, err
	}

	runnable, err := BuildGraph(ctx, &GraphConfig{
		ChatModels:           cms,
		Executor:             cfg.Executor,
		PipelineConfig:       &cfg.Pipeline,
		ResponsePromptConfig: &cfg.ResponsePrompt,
		ToolMaxCalls:         cfg.Pipeline.Tools.MaxCalls,
	})
	if err != nil {
		return nil, err
	}

	logx.Debug().Msg("Response graph built successfully")
	return &graphRunner{runnable: runnable}, nil
}

// BuildGraph constructs and returns the compiled pipeline graph
func BuildGraph(ctx context.Context, config *GraphConfig) (compose.Runnable[model.TurnInput, *schema.Message], error) {
	if config == nil {
		return nil, fmt.Errorf("graph config is nil")
	}
	if config.ChatModels == nil || config.ChatModels.Classifier == nil || config.ChatModels.Response == nil {
		return nil, fmt.Errorf("chat models are not properly initialized")
	}
	if config.Executor == nil {
		return nil, fmt.Errorf("capability executor is nil")
	}
	if config.PipelineConfig == nil || config.ResponsePromptConfig == nil {
		return nil, fmt.Errorf("model prompt/config is nil")
	}

	builder := &GraphBuilder{
		config: config,
		graph: compose.NewGraph[model.TurnInput, *schema.Message](
			compose.WithGenLocalState(func(ctx context.Context) *model.PipelineState {
				return &model.PipelineState{}
			}),
		),
	}

	if err := builder.setupTools(ctx); err != nil {
		return nil, err
	}

	builder.addNodes()
	builder.addEdges()

	if err := builder.addBranches(); err != nil {
		return nil, err
	}

	return builder.compile(ctx)
}

// setupTools configures the query tools and binds them to the response model
func (b *GraphBuilder) setupTools(ctx context.Context) error {
	queryTools := tools.GetQueryTools(b.config.Executor)
	toolInfos, err := tools.GetToolInfos(ctx, queryTools)
	if err != nil {
		logx.Error().Err(err).Msg("Failed to get tool infos")
		return fmt.Errorf("failed to get tool infos: %w", err)
	}

	if err := b.config.ChatModels.BindToolsToResponseModel(ctx, toolInfos); err != nil {
		logx.Error().Err(err).Msg("Failed to bind tools to response model")
		return fmt.Errorf("failed to bind tools to response model: %w", err)
	}

	toolsNode, err := compose.NewToolNode(ctx, &compose.ToolsNodeConfig{
		Tools:               queryTools,
		ExecuteSequentially: true,
		UnknownToolsHandler: func(ctx context.Context, name, input string) (string, error) {
			// Hallucinated or malformed tool calls get a structured notice the
			// model can recover from instead of a hard failure.
			logx.Warn().
				Str("tool_name", name).
				Str("arguments", input).
				Msg("Unknown or invalid tool call; returning fallback result")
			return fmt.Sprintf("{\"error\":\"unknown_tool\",\"name\":%q,\"note\":\"ignored\"}", name), nil
		},
		ToolArgumentsHandler: func(ctx context.Context, name, arguments string) (string, error) {
			// Best-effort sanitize; never fail hard here
			var m map[string]any
			if err := json.Unmarshal([]byte(arguments), &m); err != nil {
				return arguments, nil
			}

			if name == tools.ToolSearchTransactions {
				for _, field := range []string{"category", "start_date", "end_date"} {
					v, ok := m[field]
					if !ok {
						continue
					}
					switch vv := v.(type) {
					case string:
						m[field] = strings.TrimSpace(vv)
					default:
						delete(m, field)
					}
				}
			}

			b, err := json.Marshal(m)
			if err != nil {
				return arguments, nil
			}
			return string(b), nil
		},
	})
	if err != nil {
		logx.Error().Err(err).Msg("Failed to create tools node")
		return fmt.Errorf("failed to create tools node: %w", err)
	}

	b.graph.AddToolsNode(nodes.NodeToolExecutor, toolsNode,
		compose.WithStatePreHandler(nodes.NewToolExecutorPreHandler(b.config.ToolMaxCalls)),
	)

	return nil
}

// addNodes adds all processing nodes to the graph
func (b *GraphBuilder) addNodes() {
	b.graph.AddLambdaNode(nodes.NodeClassifierInput,
		nodes.NewClassifierInputNode(b.config.PipelineConfig),
		compose.WithStatePreHandler(nodes.NewClassifierInputPreHandler()),
	)

	b.graph.AddChatModelNode(nodes.NodeClassifierModel,
		b.config.ChatModels.Classifier,
		compose.WithStatePostHandler(nodes.NewClassifierModelPostHandler(b.config.ChatModels.ClassifierModelName)),
	)

	b.graph.AddLambdaNode(nodes.NodeIntentionParser,
		nodes.NewIntentionParserNode(),
		compose.WithStatePostHandler(nodes.NewIntentionParserPostHandler()),
	)

	b.graph.AddLambdaNode(nodes.NodeCapabilityExecutor,
		nodes.NewCapabilityExecutorNode(b.config.Executor),
		compose.WithStatePostHandler(nodes.NewCapabilityExecutorPostHandler()),
	)

	b.graph.AddLambdaNode(nodes.NodeResponseAssembler,
		nodes.NewResponseAssemblerNode(b.config.ResponsePromptConfig),
	)

	b.graph.AddChatModelNode(nodes.NodeResponseModel,
		b.config.ChatModels.Response,
		compose.WithStatePreHandler(nodes.NewResponseModelPreHandler(b.config.ToolMaxCalls)),
		compose.WithStatePostHandler(nodes.NewResponseModelPostHandler(b.config.ChatModels.ResponseModelName)),
	)
}

// addEdges creates the main flow connections between nodes
func (b *GraphBuilder) addEdges() {
	edges := [][2]string{
		{compose.START, nodes.NodeClassifierInput},
		{nodes.NodeClassifierInput, nodes.NodeClassifierModel},
		{nodes.NodeClassifierModel, nodes.NodeIntentionParser},
		{nodes.NodeIntentionParser, nodes.NodeCapabilityExecutor},
		{nodes.NodeCapabilityExecutor, nodes.NodeResponseAssembler},
		{nodes.NodeResponseAssembler, nodes.NodeResponseModel},
		{nodes.NodeToolExecutor, nodes.NodeResponseModel},
	}

	for _, edge := range edges {
		b.graph.AddEdge(edge[0], edge[1])
	}
}

// addBranches creates conditional routing branches
func (b *GraphBuilder) addBranches() error {
	decisionBranch := compose.NewGraphBranch(
		nodes.NewToolExecutorCondition(),
		map[string]bool{
			nodes.NodeToolExecutor: true,
			compose.END:            true,
		},
	)
	if err := b.graph.AddBranch(nodes.NodeResponseModel, decisionBranch); err != nil {
		logx.Error().Err(err).Msg("Error adding decision branch")
		return fmt.Errorf("error adding decision branch: %w", err)
	}

	return nil
}

// compile finalizes and compiles the graph
func (b *GraphBuilder) compile(ctx context.Context) (compose.Runnable[model.TurnInput, *schema.Message], error) {
	// Limit total run steps to avoid infinite loops in branching or tool retries
	maxSteps := 10 + b.config.ToolMaxCalls*2
	if maxSteps < 20 {
		maxSteps = 20
	}

	runnable, err := b.graph.Compile(ctx, compose.WithMaxRunSteps(maxSteps))
	if err != nil {
		logx.Error().Err(err).Msg("Error compiling graph")
		return nil, fmt.Errorf("error compiling graph: %w", err)
	}

	logx.Debug().Msg("Graph compiled successfully")
	return runnable, nil
}

// NewRunner wraps an already compiled runnable. Used by tests that build the
// graph with fake chat models.
func NewRunner(runnable compose.Runnable[model.TurnInput, *schema.Message]) Runner {
	return &graphRunner{runnable: runnable}
}
