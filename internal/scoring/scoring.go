// Package scoring produces candidate verdicts by combining the compiled
// instruction block with per-request material and sending it to the model.
package scoring

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/talentops/cdd-analyzer/internal/refcache"
)

// ErrNotReady is returned while the reference cache has not compiled a
// prompt yet. Scoring against empty rubric or taxonomy text is refused.
var ErrNotReady = errors.New("reference cache is not ready yet")

// noPapersNote is what the instruction block expects when no paper links
// were supplied.
const noPapersNote = "no reference papers provided"

type generator interface {
	GenerateContent(ctx context.Context, instruction, message string) (string, error)
}

// PromptSource supplies the latest compiled instruction block.
type PromptSource interface {
	Current() (*refcache.CompiledPrompt, bool)
}

// Verdict is the structured outcome of a single-candidate analysis, in the
// shape the scoring bot is instructed to emit.
type Verdict struct {
	Score            float64 `json:"cdd_score"`
	JobMatch1        string  `json:"job_match_1"`
	JobMatch1Contact string  `json:"job_match_1_contact"`
	Reason1          string  `json:"reason_1"`
	JobMatch2        string  `json:"job_match_2"`
	JobMatch2Contact string  `json:"job_match_2_contact"`
	Reason2          string  `json:"reason_2"`
}

func coerceFloat(v any) float64 {
	switch val := v.(type) {
	case float64:
		return val
	case int:
		return float64(val)
	case json.Number:
		f, err := val.Float64()
		if err != nil {
			return math.NaN()
		}
		return f
	case string:
		trimmed := strings.TrimSpace(val)
		if trimmed == "" {
			return math.NaN()
		}
		f, err := strconv.ParseFloat(trimmed, 64)
		if err != nil {
			return math.NaN()
		}
		return f
	default:
		return math.NaN()
	}
}

func coerceString(v any) string {
	switch val := v.(type) {
	case string:
		return strings.TrimSpace(val)
	case nil:
		return ""
	case fmt.Stringer:
		return strings.TrimSpace(val.String())
	default:
		bytes, err := json.Marshal(v)
		if err != nil {
			return fmt.Sprintf("%v", v)
		}
		return string(bytes)
	}
}
