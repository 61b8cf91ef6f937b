package model

import (
	"strings"
	"time"
)

// Intent is the classified goal of one conversational turn. The set is closed:
// the classifier is schema-constrained to exactly these values.
type Intent string

const (
	IntentBalance      Intent = "BALANCE"
	IntentTransactions Intent = "TRANSACTIONS"
	IntentGreeting     Intent = "GREETING"
	IntentHelp         Intent = "HELP"
	IntentOther        Intent = "OTHER"
)

// ParseIntent normalizes a raw classifier value into the closed intent set.
func ParseIntent(v string) (Intent, bool) {
	switch Intent(strings.ToUpper(strings.TrimSpace(v))) {
	case IntentBalance:
		return IntentBalance, true
	case IntentTransactions:
		return IntentTransactions, true
	case IntentGreeting:
		return IntentGreeting, true
	case IntentHelp:
		return IntentHelp, true
	case IntentOther:
		return IntentOther, true
	}
	return IntentOther, false
}

// Parameters carries the filters extracted from the utterance. Absent values
// are explicit nils, never "missing", so the struct is losslessly
// representable.
type Parameters struct {
	Category  string     `json:"category"`
	StartDate *time.Time `json:"start_date"`
	EndDate   *time.Time `json:"end_date"`
}

// Intention is the classified user goal plus extracted parameters for one
// turn. Produced once per turn, immutable, never persisted.
type Intention struct {
	Intent     Intent     `json:"intent"`
	Parameters Parameters `json:"parameters"`
}

// FallbackIntention is the defined default substituted when classification
// fails or returns an unparseable result: the turn continues as OTHER with no
// parameters instead of crashing.
func FallbackIntention() Intention {
	return Intention{Intent: IntentOther}
}

// NeedsFinancialData reports whether the intent requires store access.
func (i Intention) NeedsFinancialData() bool {
	return i.Intent == IntentBalance || i.Intent == IntentTransactions
}
