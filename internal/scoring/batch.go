package scoring

import (
	"context"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/mitchellh/mapstructure"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/talentops/cdd-analyzer/internal/llm"
)

// PlaceholderSummary marks a row whose item failed and needs a human to look
// at it.
const PlaceholderSummary = "needs manual review"

const defaultWorkers = 20

const batchMaterialTemplate = `Analysis material:
- paper link: {{LINK}}
Respond strictly with the JSON described in the system instruction.`

// Item is one batch input: a dense, unique index and the paper link to score.
type Item struct {
	Index int
	Link  string
}

// Result is one scored row. Score is nil on failure, with Summary carrying
// the placeholder note instead of an assessment.
type Result struct {
	Index            int      `json:"-"`
	Link             string   `json:"link"`
	Score            *float64 `json:"score"`
	Summary          string   `json:"summary"`
	TagPrimary       string   `json:"tag_primary"`
	ContactPrimary   string   `json:"contact_tag_primary"`
	TagSecondary     string   `json:"tag_secondary"`
	ContactSecondary string   `json:"contact_tag_secondary"`
}

// BatchScorer fans a batch of items out to a fixed pool of workers. Every
// input index comes back with exactly one result; item failures downgrade to
// a placeholder row and never abort siblings.
type BatchScorer struct {
	generator generator
	prompts   PromptSource
	workers   int
	logger    *zap.Logger
}

func NewBatchScorer(generator generator, prompts PromptSource, workers int, logger *zap.Logger) *BatchScorer {
	if workers <= 0 {
		workers = defaultWorkers
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &BatchScorer{
		generator: generator,
		prompts:   prompts,
		workers:   workers,
		logger:    logger,
	}
}

// Run scores all items and blocks until the queue is drained and every
// worker has exited, so callers never observe a partially filled result map.
// There is no batch-wide deadline; only per-call provider timeouts bound an
// individual item.
func (b *BatchScorer) Run(ctx context.Context, items []Item) map[int]Result {
	results := make(map[int]Result, len(items))
	if len(items) == 0 {
		return results
	}

	log := b.logger.With(
		zap.String("batch_id", uuid.NewString()),
		zap.Int("items", len(items)),
	)

	prompt, ok := b.prompts.Current()
	if !ok {
		log.Warn("reference cache not ready, downgrading the whole batch")
		for _, item := range items {
			results[item.Index] = placeholderResult(item)
		}
		return results
	}

	queue := make(chan Item, len(items))
	for _, item := range items {
		queue <- item
	}
	close(queue)

	var mu sync.Mutex
	group := new(errgroup.Group)

	workers := min(b.workers, len(items))
	log.Info("starting batch scoring", zap.Int("workers", workers))

	for i := 0; i < workers; i++ {
		group.Go(func() error {
			for item := range queue {
				result := b.scoreOne(ctx, log, prompt.Instruction, item)

				mu.Lock()
				results[item.Index] = result
				mu.Unlock()
			}
			return nil
		})
	}

	// Workers never return errors; Wait is purely the join barrier.
	_ = group.Wait()

	log.Info("batch scoring finished", zap.Int("results", len(results)))

	return results
}

// scoreOne converts every failure into a placeholder row so a single bad
// item cannot take the batch down.
func (b *BatchScorer) scoreOne(ctx context.Context, log *zap.Logger, instruction string, item Item) Result {
	message := strings.ReplaceAll(batchMaterialTemplate, "{{LINK}}", item.Link)

	raw, err := b.generator.GenerateContent(ctx, instruction, message)
	if err != nil {
		log.Warn("batch item failed", zap.Int("index", item.Index), zap.Error(err))
		return placeholderResult(item)
	}

	var data map[string]any
	if err := llm.Decode(raw, &data); err != nil {
		log.Warn("batch item output unusable", zap.Int("index", item.Index), zap.Error(err))
		return placeholderResult(item)
	}

	result := Result{Index: item.Index}
	if err := decodeResult(data, &result); err != nil {
		log.Warn("batch item fields unusable", zap.Int("index", item.Index), zap.Error(err))
		return placeholderResult(item)
	}
	result.Link = item.Link

	return result
}

// decodeResult maps the model's reply fields onto a Result, tolerating a
// numeric score arriving as a string.
func decodeResult(data map[string]any, result *Result) error {
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		TagName:          "json",
		WeaklyTypedInput: true,
		Result:           result,
	})
	if err != nil {
		return err
	}

	return decoder.Decode(data)
}

func placeholderResult(item Item) Result {
	return Result{
		Index:   item.Index,
		Link:    item.Link,
		Summary: PlaceholderSummary,
	}
}
