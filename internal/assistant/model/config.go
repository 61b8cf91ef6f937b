package model

// ================ Config ================

type PipelineConfig struct {
	HistoryMaxTurns int `envconfig:"PIPELINE_HISTORY_MAX_TURNS" default:"5"`
	Tools           struct {
		MaxCalls int `envconfig:"PIPELINE_TOOL_MAX_CALLS" default:"5"`
	}
}

type ClassifierModelConfig struct {
	Model       string  `envconfig:"CLASSIFIER_MODEL" default:"gemini-2.5-flash-lite"`
	MaxTokens   int     `envconfig:"CLASSIFIER_MAX_TOKENS" default:"512"`
	Temperature float32 `envconfig:"CLASSIFIER_TEMPERATURE" default:"0.1"`
}

type ResponseModelConfig struct {
	Model       string  `envconfig:"RESPONSE_MODEL" default:"gemini-2.5-flash"`
	MaxTokens   int     `envconfig:"RESPONSE_MAX_TOKENS" default:"2000"`
	Temperature float32 `envconfig:"RESPONSE_TEMPERATURE" default:"0.4"`
}

type ResponsePromptConfig struct {
	AssistantName string `envconfig:"PROMPT_ASSISTANT_NAME" default:"Finsight"`
	Currency      string `envconfig:"PROMPT_CURRENCY" default:"EUR"`
}
