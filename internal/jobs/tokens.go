package jobs

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// TokenPurgeTask is the name of the refresh token cleanup task.
const TokenPurgeTask = "token_purge"

// TokenPurger is implemented by repository.TokenRepo.
type TokenPurger interface {
	PurgeExpired(ctx context.Context, cutoff time.Time) (int64, error)
}

// PurgeTokens deletes refresh tokens that expired or were revoked more than
// retention ago.
func PurgeTokens(tokens TokenPurger, retention time.Duration, log *zap.Logger) func(ctx context.Context) error {
	return func(ctx context.Context) error {
		cutoff := time.Now().UTC().Add(-retention)
		n, err := tokens.PurgeExpired(ctx, cutoff)
		if err != nil {
			return err
		}
		log.Info("purged refresh tokens", zap.Int64("deleted", n), zap.Time("cutoff", cutoff))
		return nil
	}
}
