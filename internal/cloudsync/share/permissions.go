package share

import (
	"context"
	"errors"
	"fmt"

	"github.com/mschirtzinger/zonesync/internal/cloudsync/item"
	"github.com/mschirtzinger/zonesync/internal/cloudsync/record"
)

// AccountStatus is the state of the user's backend account.
type AccountStatus int

const (
	AccountCouldNotDetermine AccountStatus = iota
	AccountAvailable
	AccountRestricted
	AccountNoAccount
	AccountTemporarilyUnavailable
)

// PermissionStatus is the state of the user's sharing permission.
type PermissionStatus int

const (
	PermissionInitialState PermissionStatus = iota
	PermissionCouldNotComplete
	PermissionDenied
	PermissionGranted
)

// Errors returned by SetupUserPermissions.
var (
	ErrAccountUndetermined    = errors.New("account status could not be determined")
	ErrAccountRestricted      = errors.New("account is restricted")
	ErrNoAccount              = errors.New("account does not exist")
	ErrTemporarilyUnavailable = errors.New("account is temporarily unavailable")
	ErrPermissionIncomplete   = errors.New("permission request could not complete")
	ErrPermissionDenied       = errors.New("permission denied")
	ErrUnknownStatus          = errors.New("unknown status")
)

// Account exposes the account and permission state of the current user.
type Account interface {
	AccountStatus(ctx context.Context) (AccountStatus, error)
	PermissionStatus(ctx context.Context) (PermissionStatus, error)
	RequestPermission(ctx context.Context) (PermissionStatus, error)
	SaveZone(ctx context.Context, zone record.ZoneID) error
}

// SetupUserPermissions checks that the account is usable, requests the
// sharing permission if it was never asked for, and creates the zone items of
// kind live in.
func SetupUserPermissions(ctx context.Context, account Account, kind *item.Kind) error {
	status, err := account.AccountStatus(ctx)
	if err != nil {
		return fmt.Errorf("failed to get account status: %w", err)
	}

	switch status {
	case AccountAvailable:
	case AccountCouldNotDetermine:
		return ErrAccountUndetermined
	case AccountRestricted:
		return ErrAccountRestricted
	case AccountNoAccount:
		return ErrNoAccount
	case AccountTemporarilyUnavailable:
		return ErrTemporarilyUnavailable
	default:
		return fmt.Errorf("%w: account status %d", ErrUnknownStatus, status)
	}

	permission, err := account.PermissionStatus(ctx)
	if err != nil {
		return fmt.Errorf("failed to get permission status: %w", err)
	}
	if permission == PermissionInitialState {
		if permission, err = account.RequestPermission(ctx); err != nil {
			return fmt.Errorf("failed to request permission: %w", err)
		}
	}

	switch permission {
	case PermissionGranted:
		zone := record.NewZoneID("", kind.ZoneName)
		if err := account.SaveZone(ctx, zone); err != nil {
			return fmt.Errorf("failed to save zone %s: %w", zone, err)
		}
		return nil
	case PermissionInitialState, PermissionCouldNotComplete:
		return ErrPermissionIncomplete
	case PermissionDenied:
		return ErrPermissionDenied
	default:
		return fmt.Errorf("%w: permission status %d", ErrUnknownStatus, permission)
	}
}
