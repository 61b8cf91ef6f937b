package parsers

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/finsight-core/server/internal/assistant/model"
)

func TestParseIntentionClassifierFixtures(t *testing.T) {
	// Classifier outputs for the canonical utterances the prompt policy names.
	tests := []struct {
		name      string
		utterance string
		output    string
		intent    model.Intent
		category  string
		start     string
		end       string
	}{
		{
			name:      "greeting",
			utterance: "Hola!",
			output:    `{"intent": "GREETING", "parameters": {"category": null, "startDate": null, "endDate": null}}`,
			intent:    model.IntentGreeting,
		},
		{
			name:      "vague wellbeing maps to balance",
			utterance: "¿Cómo voy este mes?",
			output:    `{"intent": "BALANCE", "parameters": {"category": null, "startDate": null, "endDate": null}}`,
			intent:    model.IntentBalance,
		},
		{
			name:      "category and month extraction",
			utterance: "gastos en supermercado en enero",
			output:    `{"intent": "TRANSACTIONS", "parameters": {"category": "supermercado", "startDate": "2025-01-01", "endDate": "2025-01-31"}}`,
			intent:    model.IntentTransactions,
			category:  "supermercado",
			start:     "2025-01-01",
			end:       "2025-01-31",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			intn, err := ParseIntention(tt.output)
			require.NoError(t, err)
			assert.Equal(t, tt.intent, intn.Intent)
			assert.Equal(t, tt.category, intn.Parameters.Category)
			assertDate(t, tt.start, intn.Parameters.StartDate)
			assertDate(t, tt.end, intn.Parameters.EndDate)
		})
	}
}

func assertDate(t *testing.T, want string, got *time.Time) {
	t.Helper()
	if want == "" {
		assert.Nil(t, got)
		return
	}
	require.NotNil(t, got)
	assert.Equal(t, want, got.Format("2006-01-02"))
}

func TestParseIntentionFencedOutput(t *testing.T) {
	intn, err := ParseIntention("```json\n{\"intent\": \"HELP\", \"parameters\": {}}\n```")
	require.NoError(t, err)
	assert.Equal(t, model.IntentHelp, intn.Intent)
}

func TestParseIntentionSurroundingProse(t *testing.T) {
	intn, err := ParseIntention(`Sure! Here is the classification: {"intent": "BALANCE", "parameters": {"category": null}} Hope that helps.`)
	require.NoError(t, err)
	assert.Equal(t, model.IntentBalance, intn.Intent)
}

func TestParseIntentionFailuresYieldFallback(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{"empty", ""},
		{"plain prose", "I could not classify that."},
		{"broken json", `{"intent": "BALANCE", "parameters": `},
		{"intent outside closed set", `{"intent": "TRANSFER_MONEY", "parameters": {}}`},
		{"oversized garbage", strings.Repeat("x", 32*1024)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			intn, err := ParseIntention(tt.content)
			assert.Error(t, err)
			assert.Equal(t, model.FallbackIntention(), intn, "failed parses must yield the documented OTHER fallback")
		})
	}
}

func TestParseIntentionDropsInvalidParameters(t *testing.T) {
	intn, err := ParseIntention(`{"intent": "TRANSACTIONS", "parameters": {"category": "  ", "startDate": "January", "endDate": "2025-01-31"}}`)
	require.NoError(t, err)
	assert.Equal(t, model.IntentTransactions, intn.Intent)
	assert.Empty(t, intn.Parameters.Category)
	assert.Nil(t, intn.Parameters.StartDate)
	assertDate(t, "2025-01-31", intn.Parameters.EndDate)
}

func TestParseIntentionDropsInvertedRange(t *testing.T) {
	intn, err := ParseIntention(`{"intent": "TRANSACTIONS", "parameters": {"startDate": "2025-02-01", "endDate": "2025-01-01"}}`)
	require.NoError(t, err)
	assert.Nil(t, intn.Parameters.StartDate)
	assert.Nil(t, intn.Parameters.EndDate)
}
