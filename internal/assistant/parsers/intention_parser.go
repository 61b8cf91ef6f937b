package parsers

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/finsight-core/server/internal/assistant/model"
	logx "github.com/finsight-core/server/pkg/logger"
)

// basic safety limits to avoid pathological inputs
const (
	maxContentLen = 16 * 1024 // 16KB
	maxFieldLen   = 256
	dateLayout    = "2006-01-02"
)

// intentionWire mirrors the JSON object the classifier is instructed to emit.
// Parameters are pointers so "null" and "missing" both decode to nil.
type intentionWire struct {
	Intent     string `json:"intent"`
	Parameters struct {
		Category  *string `json:"category"`
		StartDate *string `json:"startDate"`
		EndDate   *string `json:"endDate"`
	} `json:"parameters"`
}

// ParseIntention extracts the classification result from raw model output.
// The classifier is schema-constrained, but model output is still treated as
// hostile: fenced blocks, surrounding prose, oversized content and malformed
// fields are all handled. A non-nil error means the turn has no usable
// classification and the caller should substitute the fallback intention.
func ParseIntention(content string) (intn model.Intention, err error) {
	// panic safety
	defer func() {
		if r := recover(); r != nil {
			logx.Error().Str("component", "intention_parser").Msgf("panic recovered: %v", r)
			intn = model.FallbackIntention()
			err = fmt.Errorf("intention parser panic")
		}
	}()

	if len(content) > maxContentLen {
		logx.Warn().
			Str("component", "intention_parser").
			Int("max_len", maxContentLen).
			Int("orig_len", len(content)).
			Msg("content truncated due to size limit")
		content = content[:maxContentLen]
	}
	if !utf8.ValidString(content) {
		return model.FallbackIntention(), fmt.Errorf("classifier output is not valid utf8")
	}

	raw, ok := extractJSONObject(content)
	if !ok {
		return model.FallbackIntention(), fmt.Errorf("no JSON object in classifier output")
	}

	var wire intentionWire
	if jsonErr := json.Unmarshal([]byte(raw), &wire); jsonErr != nil {
		return model.FallbackIntention(), fmt.Errorf("decode classifier output: %w", jsonErr)
	}

	intent, known := model.ParseIntent(wire.Intent)
	if !known {
		return model.FallbackIntention(), fmt.Errorf("intent %q outside the closed set", wire.Intent)
	}

	intn = model.Intention{Intent: intent}
	// Invalid parameters degrade to absent rather than failing the turn; the
	// intent alone is still actionable.
	if wire.Parameters.Category != nil {
		if c := strings.TrimSpace(*wire.Parameters.Category); c != "" && len(c) <= maxFieldLen {
			intn.Parameters.Category = c
		}
	}
	intn.Parameters.StartDate = parseDate(wire.Parameters.StartDate, "startDate")
	intn.Parameters.EndDate = parseDate(wire.Parameters.EndDate, "endDate")

	if intn.Parameters.StartDate != nil && intn.Parameters.EndDate != nil &&
		intn.Parameters.EndDate.Before(*intn.Parameters.StartDate) {
		logx.Warn().Str("component", "intention_parser").Msg("endDate before startDate, dropping range")
		intn.Parameters.StartDate = nil
		intn.Parameters.EndDate = nil
	}

	return intn, nil
}

func parseDate(v *string, name string) *time.Time {
	if v == nil {
		return nil
	}
	s := strings.TrimSpace(*v)
	if s == "" {
		return nil
	}
	t, err := time.Parse(dateLayout, s)
	if err != nil {
		logx.Warn().Str("component", "intention_parser").Str("field", name).Str("value", s).Msg("unparseable date dropped")
		return nil
	}
	return &t
}

// extractJSONObject returns the first balanced top-level JSON object in s,
// tolerating markdown fences and surrounding prose.
func extractJSONObject(s string) (string, bool) {
	s = strings.TrimSpace(s)
	if fenced := strings.TrimPrefix(s, "```json"); fenced != s {
		s = strings.TrimSuffix(strings.TrimSpace(fenced), "```")
	} else if fenced := strings.TrimPrefix(s, "```"); fenced != s {
		s = strings.TrimSuffix(strings.TrimSpace(fenced), "```")
	}

	start := strings.IndexByte(s, '{')
	if start < 0 {
		return "", false
	}

	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(s); i++ {
		c := s[i]
		switch {
		case escaped:
			escaped = false
		case inString && c == '\\':
			escaped = true
		case c == '"':
			inString = !inString
		case inString:
		case c == '{':
			depth++
		case c == '}':
			depth--
			if depth == 0 {
				return s[start : i+1], true
			}
		}
	}
	return "", false
}
