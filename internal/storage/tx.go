package storage

import (
	"context"
	"errors"
	"time"

	"github.com/sethvargo/go-retry"

	"github.com/execguard/syncd/internal/domain"
)

// RunInTx executes fn inside a transaction and commits it. When the store
// reports contention (domain.ErrTxConflict) the whole computation is retried
// against fresh state, so fn must re-read everything it depends on. Any other
// error aborts with a rollback and no partial effects.
func RunInTx(ctx context.Context, s Storage, fn func(tx Transaction) error) error {
	backoff := retry.WithMaxRetries(4, retry.NewExponential(10*time.Millisecond))
	return retry.Do(ctx, backoff, func(ctx context.Context) error {
		err := runOnce(ctx, s, fn)
		if errors.Is(err, domain.ErrTxConflict) {
			return retry.RetryableError(err)
		}
		return err
	})
}

func runOnce(ctx context.Context, s Storage, fn func(tx Transaction) error) error {
	tx, err := s.BeginTx(ctx)
	if err != nil {
		return err
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	return tx.Commit()
}
