package gateway

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/mschirtzinger/zonesync/internal/cloudsync/record"
	"github.com/mschirtzinger/zonesync/internal/logging"
)

// Client is the record gateway consumed by the sync engine. It wraps a Backend
// with the engine's call policy: empty requests never reach the backend, per-id
// fetch failures are dropped, and Retry-classified failures are resubmitted.
type Client struct {
	backend Backend
	logger  *zerolog.Logger
}

// NewClient creates a Client over backend.
//
// If logger is nil, a default logger writing to stderr is used.
func NewClient(backend Backend, logger *zerolog.Logger) *Client {
	return &Client{
		backend: backend,
		logger:  logging.OrDefault(logger, "gateway"),
	}
}

// FetchRecords returns the records that resolve among ids. Ids that fail
// individually are left out of the result.
func (c *Client) FetchRecords(ctx context.Context, ids []record.ID, scope record.Scope) ([]*record.Record, error) {
	if len(ids) == 0 {
		return nil, nil
	}

	return Retry(ctx, c.logger, "fetch records", func(ctx context.Context) ([]*record.Record, error) {
		results, err := c.backend.FetchRecords(ctx, ids, scope)
		if err != nil {
			return nil, err
		}

		records := make([]*record.Record, 0, len(results))
		for _, res := range results {
			if res.Err != nil || res.Record == nil {
				c.logger.Debug().Str("record", res.ID.String()).AnErr("reason", res.Err).Msg("Dropping unresolved record")
				continue
			}
			records = append(records, res.Record)
		}
		return records, nil
	})
}

// UpdateRecords saves records with overwrite-all-fields semantics.
func (c *Client) UpdateRecords(ctx context.Context, records []*record.Record, scope record.Scope) error {
	if len(records) == 0 {
		return nil
	}

	_, err := Retry(ctx, c.logger, "update records", func(ctx context.Context) (struct{}, error) {
		return struct{}{}, c.backend.ModifyRecords(ctx, records, scope)
	})
	return err
}

// AcceptShare accepts a share invitation. It is not retried.
func (c *Client) AcceptShare(ctx context.Context, metadata record.ShareMetadata) (*record.Share, error) {
	share, err := c.backend.AcceptShare(ctx, metadata)
	if err != nil {
		return nil, err
	}
	if share == nil {
		return nil, fmt.Errorf("failed to accept share: %w", ErrNotFound)
	}
	return share, nil
}

// Retry runs op until it succeeds or fails with a non-Retry classification.
// Each Retry failure schedules a resubmission after the backoff it carries;
// there is no attempt cap. Cancelling ctx ends the wait with ctx.Err().
func Retry[T any](ctx context.Context, logger *zerolog.Logger, name string, op func(context.Context) (T, error)) (T, error) {
	for attempt := 1; ; attempt++ {
		result, err := op(ctx)
		if err == nil {
			return result, nil
		}

		class, backoff := Classify(err)
		if class != ClassRetry {
			return result, err
		}

		logger.Warn().Str("op", name).Int("attempt", attempt).Dur("backoff", backoff).Err(err).Msg("Retrying after backoff")
		if err := wait(ctx, backoff); err != nil {
			var zero T
			return zero, err
		}
	}
}

// wait blocks for d or until ctx is done.
func wait(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
