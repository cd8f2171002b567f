package refcache

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/talentops/cdd-analyzer/internal/utils"
)

// Options controls the scheduler's timers. Zero values fall back to the
// defaults below.
type Options struct {
	TokenInterval    time.Duration
	DocumentInterval time.Duration
	PromptInterval   time.Duration
	WarmupTimeout    time.Duration
	WarmupPoll       time.Duration
	Stagger          time.Duration
}

const (
	defaultTokenInterval    = 2 * time.Hour
	defaultDocumentInterval = time.Hour
	defaultPromptInterval   = time.Minute
	defaultWarmupTimeout    = 12 * time.Second
	defaultWarmupPoll       = 250 * time.Millisecond
	defaultStagger          = 2 * time.Second
)

func (o Options) withDefaults() Options {
	if o.TokenInterval <= 0 {
		o.TokenInterval = defaultTokenInterval
	}
	if o.DocumentInterval <= 0 {
		o.DocumentInterval = defaultDocumentInterval
	}
	if o.PromptInterval <= 0 {
		o.PromptInterval = defaultPromptInterval
	}
	if o.WarmupTimeout <= 0 {
		o.WarmupTimeout = defaultWarmupTimeout
	}
	if o.WarmupPoll <= 0 {
		o.WarmupPoll = defaultWarmupPoll
	}
	if o.Stagger <= 0 {
		o.Stagger = defaultStagger
	}
	return o
}

// Scheduler owns the periodic refresh jobs in dependency order: credential,
// then documents, then the prompt staleness check. Start blocks through a
// bounded warm-up phase so callers do not score against an empty cache.
type Scheduler struct {
	tokens   *TokenKeeper
	store    *Store
	compiler *Compiler
	logger   *zap.Logger
	opts     Options

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func NewScheduler(tokens *TokenKeeper, store *Store, compiler *Compiler, logger *zap.Logger, opts Options) *Scheduler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Scheduler{
		tokens:   tokens,
		store:    store,
		compiler: compiler,
		logger:   logger,
		opts:     opts.withDefaults(),
	}
}

// Start schedules all refresh jobs and blocks until the cache is warm or the
// warm-up timeout expires. A timed-out warm-up degrades to starting anyway:
// the periodic jobs will heal the cache, and scoring is refused until the
// first prompt compiles.
func (s *Scheduler) Start(ctx context.Context) {
	runCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel

	if err := s.tokens.Refresh(runCtx); err != nil {
		s.logger.Warn("initial credential refresh failed", zap.Error(err))
	}

	s.spawn(func() {
		s.every(runCtx, s.opts.TokenInterval, func(ctx context.Context) {
			if err := s.tokens.Refresh(ctx); err != nil {
				s.logger.Warn("credential refresh failed", zap.Error(err))
			}
		})
	})

	// Document refreshers start staggered so each first run finds a
	// credential already published.
	for i, name := range DocNames {
		name := name
		delay := s.opts.Stagger * time.Duration(i+1)
		s.spawn(func() {
			if err := utils.WaitFor(runCtx, delay); err != nil {
				return
			}
			s.refreshDocument(runCtx, name)
			s.every(runCtx, s.opts.DocumentInterval, func(ctx context.Context) {
				s.refreshDocument(ctx, name)
			})
		})
	}

	s.spawn(func() {
		s.every(runCtx, s.opts.PromptInterval, func(context.Context) {
			s.compiler.RebuildIfStale()
		})
	})

	s.warmUp(runCtx)
}

// Stop cancels all periodic jobs and waits for them to exit.
func (s *Scheduler) Stop() {
	if s.cancel != nil {
		s.cancel()
	}
	s.wg.Wait()
}

func (s *Scheduler) warmUp(ctx context.Context) {
	deadline := time.Now().Add(s.opts.WarmupTimeout)

	for {
		if s.store.Ready() {
			if _, rebuilt := s.compiler.RebuildIfStale(); rebuilt {
				s.logger.Info("warm-up complete", zap.String("state", "steady"))
			}
			return
		}

		if ctx.Err() != nil || time.Now().After(deadline) {
			s.logger.Warn("warm-up did not finish in time, starting degraded",
				zap.Duration("timeout", s.opts.WarmupTimeout),
				zap.String("hint", "scoring is refused until all reference documents arrive"),
			)
			return
		}

		if err := utils.WaitFor(ctx, s.opts.WarmupPoll); err != nil {
			return
		}
	}
}

func (s *Scheduler) refreshDocument(ctx context.Context, name DocName) {
	updated, err := s.store.Refresh(ctx, name)
	if err != nil {
		s.logger.Warn("document refresh failed",
			zap.String("document", string(name)),
			zap.Error(err),
		)
		return
	}

	if updated {
		s.logger.Info("document updated", zap.String("document", string(name)))
		return
	}

	s.logger.Debug("document unchanged", zap.String("document", string(name)))
}

func (s *Scheduler) every(ctx context.Context, interval time.Duration, job func(context.Context)) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			job(ctx)
		}
	}
}

func (s *Scheduler) spawn(fn func()) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		fn()
	}()
}
