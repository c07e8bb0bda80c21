// Package gateway defines the contracts between the sync engine and the
// record backend: the single-shot Backend primitives, the TokenStore that
// persists continuation tokens, and the retrying Client the engine consumes.
package gateway

import (
	"context"

	"github.com/mschirtzinger/zonesync/internal/cloudsync/record"
)

// RecordResult is the outcome of fetching a single record id.
// Err is set when that id could not be resolved.
type RecordResult struct {
	ID     record.ID
	Record *record.Record
	Err    error
}

// DatabaseChanges is one page of a database-level change feed.
//
// Token is the resumption point reached by this page. A backend may return a
// non-nil Token together with an error when it made partial progress.
type DatabaseChanges struct {
	ZoneIDs    []record.ZoneID
	Token      record.Token
	MoreComing bool
}

// ZoneConfig seeds a zone-level fetch with the zone's previous token.
type ZoneConfig struct {
	Zone          record.ZoneID
	PreviousToken record.Token
}

// ZoneResult is the per-zone outcome of a zone change page.
type ZoneResult struct {
	Token      record.Token
	MoreComing bool
	Err        error
}

// ZoneChanges is one page of changes across several zones.
type ZoneChanges struct {
	Records []*record.Record
	Results map[record.ZoneID]ZoneResult
}

// Backend executes single-shot operations against a record store.
//
// Implementations do not retry; classification and resubmission happen in
// Client and in the change fetcher.
type Backend interface {
	// FetchRecords resolves the given ids. Ids that fail individually are
	// reported in their RecordResult; only an overall failure returns error.
	FetchRecords(ctx context.Context, ids []record.ID, scope record.Scope) ([]RecordResult, error)

	// ModifyRecords saves records, overwriting every field.
	ModifyRecords(ctx context.Context, records []*record.Record, scope record.Scope) error

	// FetchDatabaseChanges returns one page of zones changed since the token.
	FetchDatabaseChanges(ctx context.Context, scope record.Scope, since record.Token) (DatabaseChanges, error)

	// FetchZoneChanges returns one page of changed records for each zone.
	FetchZoneChanges(ctx context.Context, scope record.Scope, configs []ZoneConfig) (ZoneChanges, error)

	// AcceptShare accepts a share invitation.
	AcceptShare(ctx context.Context, metadata record.ShareMetadata) (*record.Share, error)
}

// TokenStore persists continuation tokens per database and per zone.
// Implementations must be safe for concurrent use.
type TokenStore interface {
	DatabaseToken(ctx context.Context, scope record.Scope) (record.Token, error)
	SetDatabaseToken(ctx context.Context, scope record.Scope, token record.Token) error
	ZoneToken(ctx context.Context, zone record.ZoneID, scope record.Scope) (record.Token, error)
	SetZoneToken(ctx context.Context, zone record.ZoneID, scope record.Scope, token record.Token) error
}
