package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"

	"github.com/mschirtzinger/zonesync/internal/cloudsync/gateway"
	"github.com/mschirtzinger/zonesync/internal/cloudsync/record"
)

var _ gateway.Backend = (*DB)(nil)

const recordColumns = `owner, zone, name, type, fields, parent_name, parent_action, share_name, version`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRecord(row rowScanner) (*record.Record, int64, error) {
	var (
		owner, zone, name, typ, fields string
		parentName, shareName          sql.NullString
		parentAction                   int
		version                        int64
	)
	if err := row.Scan(&owner, &zone, &name, &typ, &fields, &parentName, &parentAction, &shareName, &version); err != nil {
		return nil, 0, err
	}

	decoded, err := decodeFields(fields)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to decode fields of %s: %w", name, err)
	}

	zoneID := record.ZoneID{Name: zone, Owner: owner}
	rec := &record.Record{
		ID:     record.ID{Name: name, Zone: zoneID},
		Type:   typ,
		Fields: decoded,
	}
	if parentName.Valid {
		rec.Parent = &record.Reference{
			ID:     record.ID{Name: parentName.String, Zone: zoneID},
			Action: record.Action(parentAction),
		}
	}
	if shareName.Valid {
		rec.Share = &record.Reference{ID: record.ID{Name: shareName.String, Zone: zoneID}}
	}
	return rec, version, nil
}

// FetchRecords returns one result per id. Missing ids carry gateway.ErrNotFound.
func (db *DB) FetchRecords(ctx context.Context, ids []record.ID, scope record.Scope) ([]gateway.RecordResult, error) {
	query := `SELECT ` + recordColumns + ` FROM records
	WHERE scope = ? AND owner = ? AND zone = ? AND name = ?`

	results := make([]gateway.RecordResult, 0, len(ids))
	for _, id := range ids {
		row := db.conn.QueryRowContext(ctx, query, scope.String(), id.Zone.Owner, id.Zone.Name, id.Name)
		rec, _, err := scanRecord(row)
		switch {
		case errors.Is(err, sql.ErrNoRows):
			results = append(results, gateway.RecordResult{ID: id, Err: gateway.ErrNotFound})
		case err != nil:
			return nil, fmt.Errorf("failed to fetch record %s: %w", id, err)
		default:
			results = append(results, gateway.RecordResult{ID: id, Record: rec})
		}
	}
	return results, nil
}

// ModifyRecords upserts records in one transaction, overwriting every field.
// Each record is stamped with a new version.
func (db *DB) ModifyRecords(ctx context.Context, records []*record.Record, scope record.Scope) error {
	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if err := upsertRecords(ctx, tx, records, scope); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

func upsertRecords(ctx context.Context, tx *sql.Tx, records []*record.Record, scope record.Scope) error {
	query := `
	INSERT INTO records (
		scope, owner, zone, name, type, fields,
		parent_name, parent_action, share_name, version, updated_at
	) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT(scope, owner, zone, name) DO UPDATE SET
		type = excluded.type,
		fields = excluded.fields,
		parent_name = excluded.parent_name,
		parent_action = excluded.parent_action,
		share_name = excluded.share_name,
		version = excluded.version,
		updated_at = excluded.updated_at
	`

	for _, rec := range records {
		if err := ensureZone(ctx, tx, rec.ID.Zone, scope); err != nil {
			return err
		}

		fields, err := encodeFields(rec)
		if err != nil {
			return fmt.Errorf("failed to encode record %s: %w", rec.ID, err)
		}

		version, err := nextVersion(ctx, tx)
		if err != nil {
			return err
		}

		var parentName, shareName sql.NullString
		parentAction := record.ActionNone
		if rec.Parent != nil {
			parentName = sql.NullString{String: rec.Parent.ID.Name, Valid: true}
			parentAction = rec.Parent.Action
		}
		if rec.Share != nil {
			shareName = sql.NullString{String: rec.Share.ID.Name, Valid: true}
		}

		_, err = tx.ExecContext(ctx, query,
			scope.String(),
			rec.ID.Zone.Owner,
			rec.ID.Zone.Name,
			rec.ID.Name,
			rec.Type,
			fields,
			parentName,
			int(parentAction),
			shareName,
			version,
			now(),
		)
		if err != nil {
			return fmt.Errorf("failed to upsert record %s: %w", rec.ID, err)
		}
	}
	return nil
}

func ensureZone(ctx context.Context, tx *sql.Tx, zone record.ZoneID, scope record.Scope) error {
	_, err := tx.ExecContext(ctx,
		`INSERT OR IGNORE INTO zones (scope, owner, name, created_at) VALUES (?, ?, ?, ?)`,
		scope.String(), zone.Owner, zone.Name, now(),
	)
	if err != nil {
		return fmt.Errorf("failed to create zone %s: %w", zone, err)
	}
	return nil
}

func nextVersion(ctx context.Context, tx *sql.Tx) (int64, error) {
	if _, err := tx.ExecContext(ctx, `UPDATE sequence SET version = version + 1 WHERE id = 1`); err != nil {
		return 0, fmt.Errorf("failed to bump version: %w", err)
	}
	return currentVersion(ctx, tx)
}

// parseToken validates a continuation token against the current version.
// A nil token means version 0.
func parseToken(token record.Token, current int64) (int64, error) {
	if token == nil {
		return 0, nil
	}
	v, err := strconv.ParseInt(string(token), 10, 64)
	if err != nil || v < 0 || v > current {
		return 0, fmt.Errorf("token %q: %w", token, gateway.ErrTokenReset)
	}
	return v, nil
}

func formatToken(v int64) record.Token {
	return record.Token(strconv.FormatInt(v, 10))
}

// FetchDatabaseChanges returns the zones of scope whose latest write is newer
// than since, oldest first, one page at a time.
func (db *DB) FetchDatabaseChanges(ctx context.Context, scope record.Scope, since record.Token) (gateway.DatabaseChanges, error) {
	current, err := currentVersion(ctx, db.conn)
	if err != nil {
		return gateway.DatabaseChanges{}, err
	}
	after, err := parseToken(since, current)
	if err != nil {
		return gateway.DatabaseChanges{}, err
	}

	query := `
	SELECT owner, zone, MAX(version) AS latest
	FROM records
	WHERE scope = ?
	GROUP BY owner, zone
	HAVING latest > ?
	ORDER BY latest
	LIMIT ?
	`
	rows, err := db.conn.QueryContext(ctx, query, scope.String(), after, db.pageSize+1)
	if err != nil {
		return gateway.DatabaseChanges{}, fmt.Errorf("failed to query changed zones: %w", err)
	}
	defer rows.Close()

	var changes gateway.DatabaseChanges
	last := current
	for rows.Next() {
		var owner, zone string
		var latest int64
		if err := rows.Scan(&owner, &zone, &latest); err != nil {
			return gateway.DatabaseChanges{}, fmt.Errorf("failed to scan zone: %w", err)
		}
		if len(changes.ZoneIDs) == db.pageSize {
			changes.MoreComing = true
			break
		}
		changes.ZoneIDs = append(changes.ZoneIDs, record.ZoneID{Name: zone, Owner: owner})
		last = latest
	}
	if err := rows.Err(); err != nil {
		return gateway.DatabaseChanges{}, fmt.Errorf("failed to iterate zones: %w", err)
	}

	changes.Token = formatToken(last)
	return changes, nil
}

// FetchZoneChanges returns, for every configured zone, the records written
// after the zone's previous token, one page per zone. An invalid token fails
// only its own zone.
func (db *DB) FetchZoneChanges(ctx context.Context, scope record.Scope, configs []gateway.ZoneConfig) (gateway.ZoneChanges, error) {
	current, err := currentVersion(ctx, db.conn)
	if err != nil {
		return gateway.ZoneChanges{}, err
	}

	changes := gateway.ZoneChanges{Results: make(map[record.ZoneID]gateway.ZoneResult, len(configs))}
	for _, cfg := range configs {
		after, err := parseToken(cfg.PreviousToken, current)
		if err != nil {
			changes.Results[cfg.Zone] = gateway.ZoneResult{Err: err}
			continue
		}

		records, result, err := db.zonePage(ctx, scope, cfg.Zone, after, current)
		if err != nil {
			return gateway.ZoneChanges{}, err
		}
		changes.Records = append(changes.Records, records...)
		changes.Results[cfg.Zone] = result
	}
	return changes, nil
}

func (db *DB) zonePage(ctx context.Context, scope record.Scope, zone record.ZoneID, after, current int64) ([]*record.Record, gateway.ZoneResult, error) {
	query := `SELECT ` + recordColumns + ` FROM records
	WHERE scope = ? AND owner = ? AND zone = ? AND version > ?
	ORDER BY version
	LIMIT ?`

	rows, err := db.conn.QueryContext(ctx, query, scope.String(), zone.Owner, zone.Name, after, db.pageSize+1)
	if err != nil {
		return nil, gateway.ZoneResult{}, fmt.Errorf("failed to query zone %s: %w", zone, err)
	}
	defer rows.Close()

	var records []*record.Record
	result := gateway.ZoneResult{}
	last := current
	for rows.Next() {
		rec, version, err := scanRecord(rows)
		if err != nil {
			return nil, gateway.ZoneResult{}, fmt.Errorf("failed to scan record in zone %s: %w", zone, err)
		}
		if len(records) == db.pageSize {
			result.MoreComing = true
			break
		}
		records = append(records, rec)
		last = version
	}
	if err := rows.Err(); err != nil {
		return nil, gateway.ZoneResult{}, fmt.Errorf("failed to iterate zone %s: %w", zone, err)
	}

	result.Token = formatToken(last)
	return records, result, nil
}

// AcceptShare makes the subtree rooted at the share's root record available
// in the shared scope. The subtree is read from the local scope by following
// parent links and copied together with the share record.
func (db *DB) AcceptShare(ctx context.Context, metadata record.ShareMetadata) (*record.Share, error) {
	if metadata.RootRecordID == nil {
		return nil, gateway.ErrNoRootRecord
	}
	root := *metadata.RootRecordID

	query := `
	WITH RECURSIVE subtree(name) AS (
		SELECT name FROM records
		WHERE scope = ? AND owner = ? AND zone = ? AND name = ?

		UNION

		SELECT r.name FROM records r
		JOIN subtree s ON r.parent_name = s.name
		WHERE r.scope = ? AND r.owner = ? AND r.zone = ?
	)
	SELECT ` + recordColumns + ` FROM records
	WHERE scope = ? AND owner = ? AND zone = ?
	  AND (name IN (SELECT name FROM subtree)
	       OR name = (SELECT share_name FROM records WHERE scope = ? AND owner = ? AND zone = ? AND name = ?))
	`

	local := record.ScopeLocal.String()
	owner, zone := root.Zone.Owner, root.Zone.Name
	rows, err := db.conn.QueryContext(ctx, query,
		local, owner, zone, root.Name,
		local, owner, zone,
		local, owner, zone,
		local, owner, zone, root.Name,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query shared subtree: %w", err)
	}

	var records []*record.Record
	var share *record.Share
	var rootFound bool
	for rows.Next() {
		rec, _, err := scanRecord(rows)
		if err != nil {
			rows.Close()
			return nil, fmt.Errorf("failed to scan shared record: %w", err)
		}
		if s, ok := record.AsShare(rec); ok {
			share = s
		}
		if rec.ID.Name == root.Name {
			rootFound = true
		}
		records = append(records, rec)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate shared subtree: %w", err)
	}

	if !rootFound {
		return nil, fmt.Errorf("share root %s: %w", root, gateway.ErrNotFound)
	}
	if share == nil {
		return nil, fmt.Errorf("record %s is not shared: %w", root, gateway.ErrNotFound)
	}

	if err := db.ModifyRecords(ctx, records, record.ScopeShared); err != nil {
		return nil, err
	}

	db.logger.Info().
		Str("root", root.String()).
		Str("owner", metadata.OwnerName).
		Int("records", len(records)).
		Msg("Accepted share")
	return share, nil
}
