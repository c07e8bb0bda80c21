// Package gatewaytest provides a scriptable in-memory gateway.Backend for tests.
//
// Every call is recorded in order. Each operation can be scripted with a hook
// receiving the 1-based invocation number of that operation; unscripted
// FetchRecords and ModifyRecords fall back to an in-memory record map.
package gatewaytest

import (
	"context"
	"errors"
	"sync"

	"github.com/mschirtzinger/zonesync/internal/cloudsync/gateway"
	"github.com/mschirtzinger/zonesync/internal/cloudsync/record"
)

// Operation names used in Call.Op.
const (
	OpFetchRecords         = "fetchRecords"
	OpModifyRecords        = "modifyRecords"
	OpFetchDatabaseChanges = "fetchDatabaseChanges"
	OpFetchZoneChanges     = "fetchZoneChanges"
	OpAcceptShare          = "acceptShare"
)

// ErrUnscripted is returned by operations that have no hook and no fallback.
var ErrUnscripted = errors.New("gatewaytest: operation not scripted")

// Call records a single backend invocation.
type Call struct {
	Op       string
	Scope    record.Scope
	IDs      []record.ID
	Records  []*record.Record
	Since    record.Token
	Configs  []gateway.ZoneConfig
	Metadata record.ShareMetadata
}

// Backend is a fake gateway.Backend.
type Backend struct {
	OnFetchRecords         func(n int, ids []record.ID, scope record.Scope) ([]gateway.RecordResult, error)
	OnModifyRecords        func(n int, records []*record.Record, scope record.Scope) error
	OnFetchDatabaseChanges func(n int, scope record.Scope, since record.Token) (gateway.DatabaseChanges, error)
	OnFetchZoneChanges     func(n int, scope record.Scope, configs []gateway.ZoneConfig) (gateway.ZoneChanges, error)
	OnAcceptShare          func(n int, metadata record.ShareMetadata) (*record.Share, error)

	mu     sync.Mutex
	calls  []Call
	counts map[string]int
	stored map[record.Scope]map[record.ID]*record.Record
}

// New creates an empty fake backend.
func New() *Backend {
	return &Backend{
		counts: make(map[string]int),
		stored: make(map[record.Scope]map[record.ID]*record.Record),
	}
}

// Put stores records for the unscripted FetchRecords fallback.
func (b *Backend) Put(scope record.Scope, records ...*record.Record) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.putLocked(scope, records)
}

func (b *Backend) putLocked(scope record.Scope, records []*record.Record) {
	if b.stored[scope] == nil {
		b.stored[scope] = make(map[record.ID]*record.Record)
	}
	for _, rec := range records {
		b.stored[scope][rec.ID] = rec.Clone()
	}
}

// Stored returns a copy of the stored record with the given id.
func (b *Backend) Stored(scope record.Scope, id record.ID) (*record.Record, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	rec, ok := b.stored[scope][id]
	if !ok {
		return nil, false
	}
	return rec.Clone(), true
}

// Calls returns all recorded calls in invocation order.
func (b *Backend) Calls() []Call {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]Call(nil), b.calls...)
}

// CallsOf returns the recorded calls of one operation.
func (b *Backend) CallsOf(op string) []Call {
	var out []Call
	for _, c := range b.Calls() {
		if c.Op == op {
			out = append(out, c)
		}
	}
	return out
}

// Ops returns the operation names in invocation order.
func (b *Backend) Ops() []string {
	calls := b.Calls()
	ops := make([]string, 0, len(calls))
	for _, c := range calls {
		ops = append(ops, c.Op)
	}
	return ops
}

func (b *Backend) record(c Call) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.calls = append(b.calls, c)
	b.counts[c.Op]++
	return b.counts[c.Op]
}

func (b *Backend) FetchRecords(ctx context.Context, ids []record.ID, scope record.Scope) ([]gateway.RecordResult, error) {
	n := b.record(Call{Op: OpFetchRecords, Scope: scope, IDs: append([]record.ID(nil), ids...)})
	if b.OnFetchRecords != nil {
		return b.OnFetchRecords(n, ids, scope)
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	results := make([]gateway.RecordResult, 0, len(ids))
	for _, id := range ids {
		rec, ok := b.stored[scope][id]
		if !ok {
			results = append(results, gateway.RecordResult{ID: id, Err: gateway.ErrNotFound})
			continue
		}
		results = append(results, gateway.RecordResult{ID: id, Record: rec.Clone()})
	}
	return results, nil
}

func (b *Backend) ModifyRecords(ctx context.Context, records []*record.Record, scope record.Scope) error {
	snapshot := make([]*record.Record, 0, len(records))
	for _, rec := range records {
		snapshot = append(snapshot, rec.Clone())
	}
	n := b.record(Call{Op: OpModifyRecords, Scope: scope, Records: snapshot})
	if b.OnModifyRecords != nil {
		if err := b.OnModifyRecords(n, snapshot, scope); err != nil {
			return err
		}
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	b.putLocked(scope, snapshot)
	return nil
}

func (b *Backend) FetchDatabaseChanges(ctx context.Context, scope record.Scope, since record.Token) (gateway.DatabaseChanges, error) {
	n := b.record(Call{Op: OpFetchDatabaseChanges, Scope: scope, Since: since})
	if b.OnFetchDatabaseChanges == nil {
		return gateway.DatabaseChanges{}, ErrUnscripted
	}
	return b.OnFetchDatabaseChanges(n, scope, since)
}

func (b *Backend) FetchZoneChanges(ctx context.Context, scope record.Scope, configs []gateway.ZoneConfig) (gateway.ZoneChanges, error) {
	n := b.record(Call{Op: OpFetchZoneChanges, Scope: scope, Configs: append([]gateway.ZoneConfig(nil), configs...)})
	if b.OnFetchZoneChanges == nil {
		return gateway.ZoneChanges{}, ErrUnscripted
	}
	return b.OnFetchZoneChanges(n, scope, configs)
}

func (b *Backend) AcceptShare(ctx context.Context, metadata record.ShareMetadata) (*record.Share, error) {
	n := b.record(Call{Op: OpAcceptShare, Metadata: metadata})
	if b.OnAcceptShare == nil {
		return nil, ErrUnscripted
	}
	return b.OnAcceptShare(n, metadata)
}

// Found wraps records as successful fetch results.
func Found(records ...*record.Record) []gateway.RecordResult {
	results := make([]gateway.RecordResult, 0, len(records))
	for _, rec := range records {
		results = append(results, gateway.RecordResult{ID: rec.ID, Record: rec})
	}
	return results
}
