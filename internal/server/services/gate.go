package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/LouAnabel/someContacts/internal/common"
	"github.com/LouAnabel/someContacts/internal/dbx"
	"github.com/LouAnabel/someContacts/internal/logging"
	"github.com/LouAnabel/someContacts/internal/server/metrics"
	"github.com/LouAnabel/someContacts/internal/server/repositories/repomanager"
	"github.com/patrickmn/go-cache"
)

// Gate decides whether a jti may still be used. It fails closed: a missing
// row, an expired row, an inactive row, an owner mismatch and any ledger
// error all block.
//
// Revocation is permanent, so blocked jtis are remembered in memory and
// answered without a ledger round trip. Allow decisions are never cached.
// The cache is local to the process; a cacheTTL of zero disables it.
type Gate struct {
	db          dbx.DBTX
	repomanager repomanager.RepositoryManager
	revoked     *cache.Cache
	cacheTTL    time.Duration
	timeout     time.Duration
	now         func() time.Time
	logger      logging.Logger
	metrics     *metrics.Metrics
}

// NewGate builds a gate reading the ledger through db. timeout bounds each
// ledger lookup; cacheTTL caps how long a revoked jti stays in memory.
func NewGate(db dbx.DBTX, m repomanager.RepositoryManager, timeout, cacheTTL time.Duration, logger logging.Logger, mtr *metrics.Metrics) *Gate {
	return &Gate{
		db:          db,
		repomanager: m,
		revoked:     cache.New(cacheTTL, time.Minute),
		cacheTTL:    cacheTTL,
		timeout:     timeout,
		now:         time.Now,
		logger:      logger.With("module", "gate"),
		metrics:     mtr,
	}
}

// Check returns nil when jti is active, unexpired and owned by ownerID.
// Otherwise it returns common.ErrTokenRevoked, common.ErrTokenUnknown,
// common.ErrTokenExpired, common.ErrInvalidToken or an error wrapping
// common.ErrLedgerUnavailable.
func (g *Gate) Check(ctx context.Context, jti, ownerID string) error {
	if _, ok := g.revoked.Get(jti); ok {
		g.metrics.GateDecision(metrics.ResultRevoked)
		return common.ErrTokenRevoked
	}

	if g.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, g.timeout)
		defer cancel()
	}

	ledger := g.repomanager.Tokens(g.db)

	rec, err := ledger.Find(ctx, jti)
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			g.metrics.GateDecision(metrics.ResultRevoked)
			return common.ErrTokenUnknown
		}
		g.logger.Error(ctx, "ledger lookup failed", "jti", jti, "err", err)
		g.metrics.GateDecision(metrics.ResultError)
		return fmt.Errorf("%w: %w", common.ErrLedgerUnavailable, err)
	}

	now := g.now()

	if rec.OwnerID != ownerID {
		g.logger.Warn(ctx, "jti presented by a different subject", "jti", jti, "user_id", ownerID)
		g.metrics.GateDecision(metrics.ResultInvalid)
		return common.ErrInvalidToken
	}

	if rec.Expired(now) {
		if err := ledger.Delete(ctx, jti); err != nil {
			g.logger.Warn(ctx, "failed to delete expired token", "jti", jti, "err", err)
		}
		g.metrics.GateDecision(metrics.ResultExpired)
		return common.ErrTokenExpired
	}

	if !rec.IsActive {
		g.MarkRevoked(jti, rec.ExpiresAt)
		g.metrics.GateDecision(metrics.ResultRevoked)
		return common.ErrTokenRevoked
	}

	g.metrics.GateDecision(metrics.ResultOK)
	return nil
}

// IsBlocked is Check reduced to a boolean; any error blocks.
func (g *Gate) IsBlocked(ctx context.Context, jti, ownerID string) bool {
	return g.Check(ctx, jti, ownerID) != nil
}

// MarkRevoked remembers jti as revoked until the earlier of expiresAt and
// the configured cache TTL. Past expiry the codec rejects the token anyway.
// A non-positive cache TTL disables the cache.
func (g *Gate) MarkRevoked(jti string, expiresAt time.Time) {
	if g.cacheTTL <= 0 {
		return
	}
	ttl := expiresAt.Sub(g.now())
	if ttl <= 0 {
		return
	}
	if ttl > g.cacheTTL {
		ttl = g.cacheTTL
	}
	g.revoked.Set(jti, struct{}{}, ttl)
}
