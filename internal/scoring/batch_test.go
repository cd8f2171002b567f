package scoring

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"

	"go.uber.org/zap"

	"github.com/talentops/cdd-analyzer/internal/llm"
)

// linkGenerator answers per link, failing the configured ones.
type linkGenerator struct {
	mu       sync.Mutex
	failing  map[string]error
	inFlight int
	peak     int
}

func (g *linkGenerator) GenerateContent(_ context.Context, _, message string) (string, error) {
	g.mu.Lock()
	g.inFlight++
	if g.inFlight > g.peak {
		g.peak = g.inFlight
	}
	g.mu.Unlock()

	defer func() {
		g.mu.Lock()
		g.inFlight--
		g.mu.Unlock()
	}()

	for link, err := range g.failing {
		if strings.Contains(message, link) {
			return "", err
		}
	}

	return fmt.Sprintf(`{"score": 7.5, "summary": "solid work", "tag_primary": "Infra", "contact_tag_primary": "Alice", "tag_secondary": "", "contact_tag_secondary": ""}`), nil
}

func makeItems(n int) []Item {
	items := make([]Item, n)
	for i := range items {
		items[i] = Item{Index: i, Link: fmt.Sprintf("https://arxiv.org/abs/%d", i)}
	}
	return items
}

func TestBatchEveryIndexGetsExactlyOneResult(t *testing.T) {
	t.Parallel()

	gen := &linkGenerator{failing: map[string]error{
		"https://arxiv.org/abs/1": llm.ErrUnavailable,
		"https://arxiv.org/abs/3": llm.ErrEmptyResponse,
	}}

	scorer := NewBatchScorer(gen, readyPrompts(), 2, zap.NewNop())
	results := scorer.Run(context.Background(), makeItems(5))

	if len(results) != 5 {
		t.Fatalf("expected 5 results, got %d", len(results))
	}

	for i := 0; i < 5; i++ {
		result, ok := results[i]
		if !ok {
			t.Fatalf("missing result for index %d", i)
		}
		if result.Link != fmt.Sprintf("https://arxiv.org/abs/%d", i) {
			t.Fatalf("result %d carries wrong link: %q", i, result.Link)
		}

		switch i {
		case 1, 3:
			if result.Summary != PlaceholderSummary {
				t.Fatalf("index %d: expected placeholder summary, got %q", i, result.Summary)
			}
			if result.Score != nil {
				t.Fatalf("index %d: expected empty score", i)
			}
			if result.TagPrimary != "" {
				t.Fatalf("index %d: expected empty tags", i)
			}
		default:
			if result.Score == nil || *result.Score != 7.5 {
				t.Fatalf("index %d: expected real score, got %+v", i, result.Score)
			}
			if result.Summary != "solid work" {
				t.Fatalf("index %d: unexpected summary %q", i, result.Summary)
			}
		}
	}
}

func TestBatchMalformedOutputDowngradesToPlaceholder(t *testing.T) {
	t.Parallel()

	gen := &stubGenerator{response: "I cannot answer in JSON, sorry."}
	scorer := NewBatchScorer(gen, readyPrompts(), 1, zap.NewNop())

	results := scorer.Run(context.Background(), makeItems(3))

	if len(results) != 3 {
		t.Fatalf("expected 3 results, got %d", len(results))
	}
	for i, result := range results {
		if result.Summary != PlaceholderSummary {
			t.Fatalf("index %d: expected placeholder, got %q", i, result.Summary)
		}
	}
}

func TestBatchNotReadyDowngradesWholeBatch(t *testing.T) {
	t.Parallel()

	gen := &linkGenerator{}
	scorer := NewBatchScorer(gen, stubPrompts{}, 4, zap.NewNop())

	results := scorer.Run(context.Background(), makeItems(4))

	if len(results) != 4 {
		t.Fatalf("expected 4 results, got %d", len(results))
	}
	for i, result := range results {
		if result.Summary != PlaceholderSummary || result.Score != nil {
			t.Fatalf("index %d: expected placeholder row, got %+v", i, result)
		}
	}
}

func TestBatchRespectsWorkerBound(t *testing.T) {
	t.Parallel()

	gen := &linkGenerator{}
	scorer := NewBatchScorer(gen, readyPrompts(), 3, zap.NewNop())

	results := scorer.Run(context.Background(), makeItems(30))

	if len(results) != 30 {
		t.Fatalf("expected 30 results, got %d", len(results))
	}
	if gen.peak > 3 {
		t.Fatalf("worker pool exceeded its bound: peak %d", gen.peak)
	}
}

func TestDecodeResultToleratesStringScore(t *testing.T) {
	t.Parallel()

	var result Result
	data := map[string]any{"score": "6.8", "summary": "ok", "tag_primary": "Infra"}

	if err := decodeResult(data, &result); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if result.Score == nil || *result.Score != 6.8 {
		t.Fatalf("expected score 6.8, got %+v", result.Score)
	}
	if result.TagPrimary != "Infra" {
		t.Fatalf("unexpected tag: %q", result.TagPrimary)
	}
}

func TestBatchEmptyInput(t *testing.T) {
	t.Parallel()

	scorer := NewBatchScorer(&linkGenerator{}, readyPrompts(), 2, zap.NewNop())

	results := scorer.Run(context.Background(), nil)
	if len(results) != 0 {
		t.Fatalf("expected empty result map, got %d entries", len(results))
	}
}
