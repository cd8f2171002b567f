package refcache

import (
	"strings"
	"sync"

	_ "embed"

	"go.uber.org/zap"
)

//go:embed prompt.md
var instructionTemplate string

var placeholders = map[DocName]string{
	DocRubric:      "{{RUBRIC}}",
	DocPaperPolicy: "{{PAPER_POLICY}}",
	DocTagCatalog:  "{{TAG_CATALOG}}",
}

// CompiledPrompt is the reusable instruction block built from the three
// reference documents. It is immutable once built; SourceHashes records the
// exact document versions it was compiled from.
type CompiledPrompt struct {
	Instruction  string
	SourceHashes map[DocName]string
}

// Compiler derives the instruction block from the store's latest snapshot,
// recompiling only when at least one source hash changed.
type Compiler struct {
	store  *Store
	logger *zap.Logger

	mu      sync.Mutex
	current *CompiledPrompt
}

func NewCompiler(store *Store, logger *zap.Logger) *Compiler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Compiler{store: store, logger: logger}
}

// RebuildIfStale returns the cached prompt when the recorded source hashes
// still match the store. Otherwise it recompiles, unless any document is
// still empty: a prompt must never mix populated and missing sources, so the
// rebuild is deferred and the previous prompt stays in place. The second
// return value reports whether a rebuild happened.
func (c *Compiler) RebuildIfStale() (*CompiledPrompt, bool) {
	// Store state is read before taking the compiler lock so the two locks
	// are never held at the same time.
	contents, hashes := c.store.State()

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.current != nil && hashesEqual(c.current.SourceHashes, hashes) {
		return c.current, false
	}

	for _, name := range DocNames {
		if strings.TrimSpace(contents[name]) == "" {
			c.logger.Warn("deferring prompt rebuild",
				zap.String("document", string(name)),
				zap.String("reason", "document not yet populated"),
			)
			return c.current, false
		}
	}

	instruction := instructionTemplate
	for name, placeholder := range placeholders {
		instruction = strings.ReplaceAll(instruction, placeholder, contents[name])
	}

	c.current = &CompiledPrompt{Instruction: instruction, SourceHashes: hashes}
	c.logger.Info("instruction block recompiled", zap.Int("length", len(instruction)))

	return c.current, true
}

// Current returns the latest compiled prompt and whether one exists yet.
func (c *Compiler) Current() (*CompiledPrompt, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.current, c.current != nil
}

func hashesEqual(a, b map[DocName]string) bool {
	if len(a) != len(b) {
		return false
	}
	for name, hash := range a {
		if b[name] != hash {
			return false
		}
	}
	return true
}
