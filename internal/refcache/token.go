package refcache

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/sethvargo/go-retry"
	"go.uber.org/zap"
)

const tokenFetchAttempts = 3

// Credential is the short-lived access token used to read reference
// documents. Expiry is advisory: the scheduled refresh keeps it fresh and a
// stale credential simply fails the next document fetch.
type Credential struct {
	Value    string
	IssuedAt time.Time
	TTL      time.Duration
}

// TokenKeeper owns the single shared credential slot. A failed refresh keeps
// the previous credential in place.
type TokenKeeper struct {
	fetcher Fetcher
	logger  *zap.Logger

	mu   sync.RWMutex
	cred Credential
}

func NewTokenKeeper(fetcher Fetcher, logger *zap.Logger) *TokenKeeper {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &TokenKeeper{fetcher: fetcher, logger: logger}
}

// Refresh obtains a new credential and publishes it. On failure the previous
// credential (if any) stays published and the error is returned for logging.
func (k *TokenKeeper) Refresh(ctx context.Context) error {
	backoff := retry.WithMaxRetries(tokenFetchAttempts-1, retry.NewExponential(500*time.Millisecond))

	var value string
	var ttl time.Duration
	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		token, err := k.fetcher.AppAccessToken(ctx)
		if err != nil {
			return retry.RetryableError(err)
		}
		value = token.Value
		ttl = time.Duration(token.ExpireSeconds) * time.Second
		return nil
	})
	if err != nil {
		return fmt.Errorf("refreshing app access token: %w", err)
	}

	k.mu.Lock()
	k.cred = Credential{Value: value, IssuedAt: time.Now(), TTL: ttl}
	k.mu.Unlock()

	k.logger.Info("app access token refreshed", zap.Duration("ttl", ttl))
	return nil
}

// Credential returns the current credential and whether one has been
// published yet.
func (k *TokenKeeper) Credential() (Credential, bool) {
	k.mu.RLock()
	defer k.mu.RUnlock()
	return k.cred, k.cred.Value != ""
}
