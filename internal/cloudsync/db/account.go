package db

import (
	"context"
	"fmt"

	"github.com/mschirtzinger/zonesync/internal/cloudsync/record"
	"github.com/mschirtzinger/zonesync/internal/cloudsync/share"
)

var _ share.Account = (*DB)(nil)

// AccountStatus always reports an available account; the embedded store has
// no account system.
func (db *DB) AccountStatus(context.Context) (share.AccountStatus, error) {
	return share.AccountAvailable, nil
}

// PermissionStatus always reports the permission as granted.
func (db *DB) PermissionStatus(context.Context) (share.PermissionStatus, error) {
	return share.PermissionGranted, nil
}

// RequestPermission grants the permission immediately.
func (db *DB) RequestPermission(context.Context) (share.PermissionStatus, error) {
	return share.PermissionGranted, nil
}

// SaveZone creates zone in the local scope if it does not exist.
func (db *DB) SaveZone(ctx context.Context, zone record.ZoneID) error {
	_, err := db.conn.ExecContext(ctx,
		`INSERT OR IGNORE INTO zones (scope, owner, name, created_at) VALUES (?, ?, ?, ?)`,
		record.ScopeLocal.String(), zone.Owner, zone.Name, now(),
	)
	if err != nil {
		return fmt.Errorf("failed to save zone %s: %w", zone, err)
	}
	return nil
}
