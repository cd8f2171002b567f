package refcache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/sethvargo/go-retry"
	"go.uber.org/zap"
)

const docFetchAttempts = 3

// Document is one reference document with the hash of its current content.
// Content and hash are always replaced together.
type Document struct {
	Name          DocName
	Content       string
	Hash          string
	LastFetchedAt time.Time
}

// Store holds the three reference documents and refreshes each one on
// demand, detecting real changes via a content hash so that no-op refreshes
// leave the state untouched.
type Store struct {
	fetcher   Fetcher
	tokens    *TokenKeeper
	docTokens map[DocName]string
	logger    *zap.Logger

	mu   sync.Mutex
	docs map[DocName]Document
}

// NewStore wires the store to its fetcher and credential slot. docTokens maps
// each document name to its store-specific identifier.
func NewStore(fetcher Fetcher, tokens *TokenKeeper, docTokens map[DocName]string, logger *zap.Logger) *Store {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Store{
		fetcher:   fetcher,
		tokens:    tokens,
		docTokens: docTokens,
		logger:    logger,
		docs:      make(map[DocName]Document, len(DocNames)),
	}
}

func contentHash(content string) string {
	sum := sha256.Sum256([]byte(content))
	return hex.EncodeToString(sum[:])
}

// Refresh fetches the named document and replaces content and hash together
// when the content actually changed. Without a published credential the
// refresh is a logged no-op. On fetch failure the previous content is
// retained (stale-but-available).
func (s *Store) Refresh(ctx context.Context, name DocName) (bool, error) {
	docToken, ok := s.docTokens[name]
	if !ok {
		return false, fmt.Errorf("unknown document: %s", name)
	}

	cred, ok := s.tokens.Credential()
	if !ok {
		s.logger.Warn("skipping document refresh",
			zap.String("document", string(name)),
			zap.String("reason", "no credential published yet"),
		)
		return false, nil
	}

	backoff := retry.WithMaxRetries(docFetchAttempts-1, retry.NewExponential(500*time.Millisecond))

	var content string
	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		body, err := s.fetcher.DocContent(ctx, docToken, cred.Value)
		if err != nil {
			return retry.RetryableError(err)
		}
		content = body
		return nil
	})
	if err != nil {
		return false, fmt.Errorf("fetching document %s: %w", name, err)
	}

	if strings.TrimSpace(content) == "" {
		return false, errors.New("document store returned empty content")
	}

	hash := contentHash(content)

	s.mu.Lock()
	defer s.mu.Unlock()

	if current, ok := s.docs[name]; ok && current.Hash == hash {
		return false, nil
	}

	s.docs[name] = Document{
		Name:          name,
		Content:       content,
		Hash:          hash,
		LastFetchedAt: time.Now(),
	}

	return true, nil
}

// Snapshot returns a read-only copy of the current document contents. Safe
// for concurrent callers; never blocks beyond the copy itself.
func (s *Store) Snapshot() map[DocName]string {
	contents, _ := s.State()
	return contents
}

// State returns copies of contents and hashes taken inside one critical
// section, so a caller never observes a hash paired with another version's
// content.
func (s *Store) State() (map[DocName]string, map[DocName]string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	contents := make(map[DocName]string, len(s.docs))
	hashes := make(map[DocName]string, len(s.docs))
	for name, doc := range s.docs {
		contents[name] = doc.Content
		hashes[name] = doc.Hash
	}
	return contents, hashes
}

// Ready reports whether all reference documents have been populated.
func (s *Store) Ready() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, name := range DocNames {
		if doc, ok := s.docs[name]; !ok || strings.TrimSpace(doc.Content) == "" {
			return false
		}
	}
	return true
}
