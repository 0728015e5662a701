// Package tokens declares the token ledger: the durable record of every
// issued jti, its owner, expiry and whether it is still active.
package tokens

import (
	"context"
	"time"

	"github.com/LouAnabel/someContacts/internal/server/models"
)

// Repository is the ledger contract. Implementations are bound to a
// dbx.DBTX, so the same code runs on a pool or inside a transaction.
type Repository interface {
	// InsertPair stores both records or neither.
	InsertPair(ctx context.Context, access, refresh models.TokenRecord) error

	// Find returns the record for jti or common.ErrorNotFound.
	Find(ctx context.Context, jti string) (*models.TokenRecord, error)

	// FindForUpdate is Find with a row lock held until the surrounding
	// transaction ends. Only meaningful inside a transaction.
	FindForUpdate(ctx context.Context, jti string) (*models.TokenRecord, error)

	// Revoke deactivates jti and reports whether this call made the
	// active-to-inactive transition. Unknown or already revoked jtis
	// return false without error.
	Revoke(ctx context.Context, jti string, at time.Time) (bool, error)

	// RevokeAllActiveForOwner deactivates every active record of owner and
	// returns how many changed.
	RevokeAllActiveForOwner(ctx context.Context, ownerID string, at time.Time) (int64, error)

	// ListActiveForOwner returns the owner's active records that expire
	// after now, newest first.
	ListActiveForOwner(ctx context.Context, ownerID string, now time.Time) ([]models.TokenRecord, error)

	// Delete removes the record for jti. Deleting a missing jti is not an error.
	Delete(ctx context.Context, jti string) error

	// PurgeExpired deletes every record with expires_at <= now and returns
	// the number removed.
	PurgeExpired(ctx context.Context, now time.Time) (int64, error)
}
