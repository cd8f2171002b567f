package scoring

import (
	"context"
	"errors"
	"math"
	"strings"
	"unicode/utf8"

	"go.uber.org/zap"

	"github.com/talentops/cdd-analyzer/internal/llm"
	"github.com/talentops/cdd-analyzer/internal/logger"
)

const defaultMaxLogLength = 200

const materialTemplate = `Analysis material:
- resume: {{RESUME}}
- paper links: {{PAPER_URLS}}
Respond strictly with the JSON described in the system instruction.`

// Analyzer runs the single-candidate path: one resume (plus optional paper
// links) in, one Verdict out.
type Analyzer struct {
	generator generator
	prompts   PromptSource
	logger    *zap.Logger
	maxLogLen int
}

func NewAnalyzer(generator generator, prompts PromptSource, maxLogLength int, logger *zap.Logger) *Analyzer {
	if maxLogLength <= 0 {
		maxLogLength = defaultMaxLogLength
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Analyzer{
		generator: generator,
		prompts:   prompts,
		logger:    logger,
		maxLogLen: maxLogLength,
	}
}

// Analyze scores one candidate. It returns ErrNotReady while the reference
// cache has no compiled prompt, llm.ErrUnavailable/llm.ErrEmptyResponse for
// provider failures and a llm.MalformedOutputError when the reply could not
// be parsed.
func (a *Analyzer) Analyze(ctx context.Context, resume string, paperURLs []string) (*Verdict, error) {
	if strings.TrimSpace(resume) == "" {
		return nil, errors.New("resume content is required")
	}

	prompt, ok := a.prompts.Current()
	if !ok {
		return nil, ErrNotReady
	}

	message := buildMaterial(resume, paperURLs)

	a.logger.Debug("model request",
		zap.Int("message_length", utf8.RuneCountInString(message)),
		zap.String("message_preview", logger.TruncateForLog(message, a.maxLogLen)),
	)

	raw, err := a.generator.GenerateContent(ctx, prompt.Instruction, message)
	if err != nil {
		return nil, err
	}

	a.logger.Debug("model response",
		zap.Int("response_length", utf8.RuneCountInString(raw)),
		zap.String("response_preview", logger.TruncateForLog(raw, a.maxLogLen)),
	)

	return parseVerdict(raw)
}

func buildMaterial(resume string, paperURLs []string) string {
	urls := make([]string, 0, len(paperURLs))
	for _, url := range paperURLs {
		if trimmed := strings.TrimSpace(url); trimmed != "" {
			urls = append(urls, trimmed)
		}
	}

	urlsDesc := noPapersNote
	if len(urls) > 0 {
		urlsDesc = strings.Join(urls, ", ")
	}

	message := strings.ReplaceAll(materialTemplate, "{{RESUME}}", resume)
	return strings.ReplaceAll(message, "{{PAPER_URLS}}", urlsDesc)
}

func parseVerdict(raw string) (*Verdict, error) {
	var data map[string]any
	if err := llm.Decode(raw, &data); err != nil {
		return nil, err
	}

	score := coerceFloat(data["cdd_score"])
	if math.IsNaN(score) {
		score = 0
	}

	return &Verdict{
		Score:            score,
		JobMatch1:        coerceString(data["job_match_1"]),
		JobMatch1Contact: coerceString(data["job_match_1_contact"]),
		Reason1:          coerceString(data["reason_1"]),
		JobMatch2:        coerceString(data["job_match_2"]),
		JobMatch2Contact: coerceString(data["job_match_2_contact"]),
		Reason2:          coerceString(data["reason_2"]),
	}, nil
}
