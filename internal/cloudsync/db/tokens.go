package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/mschirtzinger/zonesync/internal/cloudsync/gateway"
	"github.com/mschirtzinger/zonesync/internal/cloudsync/record"
)

var _ gateway.TokenStore = (*DB)(nil)

// DatabaseToken returns the stored database token of scope, or nil.
func (db *DB) DatabaseToken(ctx context.Context, scope record.Scope) (record.Token, error) {
	return db.token(ctx, scope, "", "")
}

// SetDatabaseToken stores the database token of scope. A nil token deletes it.
func (db *DB) SetDatabaseToken(ctx context.Context, scope record.Scope, token record.Token) error {
	return db.setToken(ctx, scope, "", "", token)
}

// ZoneToken returns the stored token of zone in scope, or nil.
func (db *DB) ZoneToken(ctx context.Context, zone record.ZoneID, scope record.Scope) (record.Token, error) {
	return db.token(ctx, scope, zone.Owner, zone.Name)
}

// SetZoneToken stores the token of zone in scope. A nil token deletes it.
func (db *DB) SetZoneToken(ctx context.Context, zone record.ZoneID, scope record.Scope, token record.Token) error {
	return db.setToken(ctx, scope, zone.Owner, zone.Name, token)
}

func (db *DB) token(ctx context.Context, scope record.Scope, owner, zone string) (record.Token, error) {
	var token []byte
	err := db.conn.QueryRowContext(ctx,
		`SELECT token FROM tokens WHERE scope = ? AND owner = ? AND zone = ?`,
		scope.String(), owner, zone,
	).Scan(&token)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read token: %w", err)
	}
	return record.Token(token), nil
}

func (db *DB) setToken(ctx context.Context, scope record.Scope, owner, zone string, token record.Token) error {
	if token == nil {
		_, err := db.conn.ExecContext(ctx,
			`DELETE FROM tokens WHERE scope = ? AND owner = ? AND zone = ?`,
			scope.String(), owner, zone,
		)
		if err != nil {
			return fmt.Errorf("failed to clear token: %w", err)
		}
		return nil
	}

	query := `
	INSERT INTO tokens (scope, owner, zone, token, updated_at)
	VALUES (?, ?, ?, ?, ?)
	ON CONFLICT(scope, owner, zone) DO UPDATE SET
		token = excluded.token,
		updated_at = excluded.updated_at
	`
	if _, err := db.conn.ExecContext(ctx, query, scope.String(), owner, zone, []byte(token), now()); err != nil {
		return fmt.Errorf("failed to store token: %w", err)
	}
	return nil
}
