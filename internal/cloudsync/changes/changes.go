// Package changes consumes the backend's incremental change feeds.
//
// Both feeds are paged. Continuation tokens are read from the TokenStore before
// each page and written back as soon as a page reports one, so progress is
// kept even when that page or a later one fails. A zone that asks to be
// retried sends the whole zone page back through the retry loop.
package changes

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/mschirtzinger/zonesync/internal/cloudsync/gateway"
	"github.com/mschirtzinger/zonesync/internal/cloudsync/record"
	"github.com/mschirtzinger/zonesync/internal/logging"
)

// Fetcher pulls changed zones and records from a backend.
type Fetcher struct {
	backend gateway.Backend
	tokens  gateway.TokenStore
	logger  *zerolog.Logger
}

// NewFetcher creates a change fetcher.
//
// If logger is nil, a default logger writing to stderr is used.
func NewFetcher(backend gateway.Backend, tokens gateway.TokenStore, logger *zerolog.Logger) *Fetcher {
	return &Fetcher{
		backend: backend,
		tokens:  tokens,
		logger:  logging.OrDefault(logger, "changes"),
	}
}

// DatabaseChanges returns every zone with changes in scope since the stored
// database token, following pages until the backend has no more.
func (f *Fetcher) DatabaseChanges(ctx context.Context, scope record.Scope) ([]record.ZoneID, error) {
	var zones []record.ZoneID

	for {
		var token record.Token
		page, fetchErr := gateway.Retry(ctx, f.logger, "fetch database changes", func(ctx context.Context) (gateway.DatabaseChanges, error) {
			var err error
			token, err = f.tokens.DatabaseToken(ctx, scope)
			if err != nil {
				return gateway.DatabaseChanges{}, fmt.Errorf("failed to read database token: %w", err)
			}
			return f.backend.FetchDatabaseChanges(ctx, scope, token)
		})

		if page.Token != nil {
			if err := f.tokens.SetDatabaseToken(ctx, scope, page.Token); err != nil {
				return nil, errors.Join(fetchErr, fmt.Errorf("failed to store database token: %w", err))
			}
			token = page.Token
		}

		if fetchErr != nil {
			class, _ := gateway.Classify(fetchErr)
			switch class {
			case gateway.ClassTokenReset:
				f.logger.Info().Stringer("scope", scope).Msg("Database token expired, restarting feed")
				zones = append(zones, page.ZoneIDs...)
				if err := f.tokens.SetDatabaseToken(ctx, scope, nil); err != nil {
					return nil, fmt.Errorf("failed to clear database token: %w", err)
				}
				continue

			default:
				if token != nil {
					if err := f.tokens.SetDatabaseToken(ctx, scope, nil); err != nil {
						return nil, errors.Join(fetchErr, fmt.Errorf("failed to reset database token: %w", err))
					}
				}
				return nil, fmt.Errorf("failed to fetch database changes: %w", fetchErr)
			}
		}

		zones = append(zones, page.ZoneIDs...)

		if !page.MoreComing {
			f.logger.Debug().Stringer("scope", scope).Int("zones", len(zones)).Msg("Fetched database changes")
			return zones, nil
		}
	}
}

// ZoneChanges returns the records changed in the given zones since each
// zone's stored token. While any zone reports more coming, another round is
// fetched for all zones.
func (f *Fetcher) ZoneChanges(ctx context.Context, zoneIDs []record.ZoneID, scope record.Scope) ([]*record.Record, error) {
	if len(zoneIDs) == 0 {
		return nil, nil
	}

	var records []*record.Record
	for round := 1; ; round++ {
		page, fetchErr := gateway.Retry(ctx, f.logger, "fetch zone changes", func(ctx context.Context) (gateway.ZoneChanges, error) {
			configs := make([]gateway.ZoneConfig, 0, len(zoneIDs))
			for _, zone := range zoneIDs {
				token, err := f.tokens.ZoneToken(ctx, zone, scope)
				if err != nil {
					return gateway.ZoneChanges{}, fmt.Errorf("failed to read token for zone %s: %w", zone, err)
				}
				configs = append(configs, gateway.ZoneConfig{Zone: zone, PreviousToken: token})
			}
			page, err := f.backend.FetchZoneChanges(ctx, scope, configs)
			if err != nil {
				return page, err
			}
			return page, zoneRetry(page.Results)
		})

		moreComing := false
		if fetchErr != nil {
			class, _ := gateway.Classify(fetchErr)
			switch class {
			case gateway.ClassTokenReset:
				moreComing = true
			default:
				return nil, fmt.Errorf("failed to fetch zone changes: %w", fetchErr)
			}
		}

		more, err := f.applyZoneResults(ctx, scope, page.Results)
		if err != nil {
			return nil, err
		}
		records = append(records, page.Records...)

		if !more && !moreComing {
			f.logger.Debug().
				Stringer("scope", scope).
				Int("zones", len(zoneIDs)).
				Int("rounds", round).
				Int("records", len(records)).
				Msg("Fetched zone changes")
			return records, nil
		}
	}
}

// zoneRetry returns the first per-zone Retry failure, if any. Retry resubmits
// the whole page for it, so no token or record from the page is kept.
func zoneRetry(results map[record.ZoneID]gateway.ZoneResult) error {
	for zone, res := range results {
		if gateway.IsRetryable(res.Err) {
			return fmt.Errorf("zone %s: %w", zone, res.Err)
		}
	}
	return nil
}

// applyZoneResults persists per-zone tokens and reports whether any zone has
// more changes pending.
func (f *Fetcher) applyZoneResults(ctx context.Context, scope record.Scope, results map[record.ZoneID]gateway.ZoneResult) (bool, error) {
	more := false
	for zone, res := range results {
		if res.Token != nil {
			if err := f.tokens.SetZoneToken(ctx, zone, scope, res.Token); err != nil {
				return false, fmt.Errorf("failed to store token for zone %s: %w", zone, err)
			}
		}

		if res.Err != nil {
			if gateway.IsTokenReset(res.Err) {
				f.logger.Info().Stringer("zone", zone).Msg("Zone token expired, clearing")
				if err := f.tokens.SetZoneToken(ctx, zone, scope, nil); err != nil {
					return false, fmt.Errorf("failed to clear token for zone %s: %w", zone, err)
				}
				continue
			}
			f.logger.Warn().Stringer("zone", zone).Err(res.Err).Msg("Zone fetch failed")
			continue
		}

		if res.MoreComing {
			more = true
		}
	}
	return more, nil
}
