package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/LouAnabel/someContacts/internal/common"
	"github.com/LouAnabel/someContacts/internal/dbx"
	"github.com/LouAnabel/someContacts/internal/logging"
	"github.com/LouAnabel/someContacts/internal/server/auth"
	"github.com/LouAnabel/someContacts/internal/server/config"
	"github.com/LouAnabel/someContacts/internal/server/metrics"
	"github.com/LouAnabel/someContacts/internal/server/models"
	"github.com/LouAnabel/someContacts/internal/server/repositories/repomanager"
)

// TokenCodec mints and verifies signed tokens.
type TokenCodec interface {
	Issue(subject string, typ models.TokenType, ttl time.Duration) (auth.IssuedToken, error)
	Decode(token string) (*auth.Claims, error)
}

// CredentialVerifier checks an email and password pair.
type CredentialVerifier interface {
	Authenticate(ctx context.Context, email, password string) (*models.User, error)
}

// TokenPair bundles a short-lived access token and a longer-lived refresh
// token issued together.
type TokenPair struct {
	AccessToken      string
	RefreshToken     string
	AccessExpiresAt  time.Time
	RefreshExpiresAt time.Time
}

// Principal is the authenticated caller of a protected request.
type Principal struct {
	UserID    string
	JTI       string
	ExpiresAt time.Time
}

// SessionService runs the token lifecycle: login, refresh with strict
// rotation, logout of a single token, logout of every token of a user,
// authorization of access tokens and purging of expired ledger rows.
type SessionService struct {
	db                           *sql.DB
	repomanager                  repomanager.RepositoryManager
	codec                        TokenCodec
	credentials                  CredentialVerifier
	gate                         *Gate
	accessTokenValidityDuration  time.Duration
	refreshTokenValidityDuration time.Duration
	ledgerTimeout                time.Duration
	now                          func() time.Time
	logger                       logging.Logger
	metrics                      *metrics.Metrics
}

// NewSessionService wires the session lifecycle over the given pool.
func NewSessionService(
	db *sql.DB,
	m repomanager.RepositoryManager,
	codec TokenCodec,
	credentials CredentialVerifier,
	gate *Gate,
	cfg *config.Config,
	logger logging.Logger,
	mtr *metrics.Metrics,
) *SessionService {
	return &SessionService{
		db:                           db,
		repomanager:                  m,
		codec:                        codec,
		credentials:                  credentials,
		gate:                         gate,
		accessTokenValidityDuration:  cfg.AccessTokenValidityDuration,
		refreshTokenValidityDuration: cfg.RefreshTokenValidityDuration,
		ledgerTimeout:                cfg.LedgerTimeout,
		now:                          time.Now,
		logger:                       logger.With("module", "sessions"),
		metrics:                      mtr,
	}
}

// Login verifies the credentials and issues a new session pair.
func (s *SessionService) Login(ctx context.Context, email, password string) (*models.User, *TokenPair, error) {
	user, err := s.credentials.Authenticate(ctx, email, password)
	if err != nil {
		if errors.Is(err, common.ErrInvalidCredentials) {
			s.metrics.Login(metrics.ResultDenied)
		} else {
			s.metrics.Login(metrics.ResultError)
		}
		return nil, nil, err
	}

	pair, err := s.Issue(ctx, user.ID)
	if err != nil {
		s.metrics.Login(metrics.ResultError)
		return nil, nil, err
	}

	s.metrics.Login(metrics.ResultOK)
	s.logger.Info(ctx, "user logged in", "user_id", user.ID)
	return user, pair, nil
}

// Issue mints an access and a refresh token for userID and records both in
// the ledger in one statement. Nothing is returned unless both are stored.
func (s *SessionService) Issue(ctx context.Context, userID string) (*TokenPair, error) {
	access, err := s.codec.Issue(userID, models.TokenTypeAccess, s.accessTokenValidityDuration)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", common.ErrorInternal, err)
	}
	refresh, err := s.codec.Issue(userID, models.TokenTypeRefresh, s.refreshTokenValidityDuration)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", common.ErrorInternal, err)
	}

	lctx, cancel := s.ledgerContext(ctx)
	defer cancel()

	if err := s.repomanager.Tokens(s.db).InsertPair(lctx, access.Record(), refresh.Record()); err != nil {
		s.logger.Error(ctx, "failed to record token pair", "user_id", userID, "err", err)
		return nil, fmt.Errorf("%w: %w", common.ErrLedgerUnavailable, err)
	}

	s.logger.Debug(ctx, "token pair issued", "user_id", userID, "access_jti", access.JTI, "refresh_jti", refresh.JTI)

	return &TokenPair{
		AccessToken:      access.Token,
		RefreshToken:     refresh.Token,
		AccessExpiresAt:  access.ExpiresAt,
		RefreshExpiresAt: refresh.ExpiresAt,
	}, nil
}

// Refresh exchanges a refresh token for a new pair. The presented token's
// row is locked, checked, and every active token of its owner is revoked in
// one transaction; concurrent refreshes with the same token therefore see
// it revoked and fail. The new pair is inserted afterwards: if that insert
// fails the user holds no valid refresh token and must log in again.
func (s *SessionService) Refresh(ctx context.Context, refreshToken string) (*TokenPair, error) {
	claims, err := s.codec.Decode(refreshToken)
	if err != nil {
		s.metrics.Refresh(resultFor(err))
		return nil, err
	}
	if claims.Type != models.TokenTypeRefresh {
		s.metrics.Refresh(metrics.ResultInvalid)
		return nil, common.ErrWrongTokenType
	}

	now := s.now()
	var revoked int64

	txCtx, cancel := s.ledgerContext(ctx)
	err = dbx.WithTx(txCtx, s.db, dbx.ReadCommitted, func(ctx context.Context, tx dbx.DBTX) error {
		ledger := s.repomanager.Tokens(tx)

		rec, err := ledger.FindForUpdate(ctx, claims.ID)
		if err != nil {
			if errors.Is(err, common.ErrorNotFound) {
				return common.ErrTokenUnknown
			}
			return fmt.Errorf("%w: %w", common.ErrLedgerUnavailable, err)
		}

		switch {
		case rec.OwnerID != claims.Subject || rec.Type != models.TokenTypeRefresh:
			return common.ErrInvalidToken
		case !rec.IsActive:
			return common.ErrTokenRevoked
		case rec.Expired(now):
			return common.ErrTokenExpired
		}

		n, err := ledger.RevokeAllActiveForOwner(ctx, rec.OwnerID, now)
		if err != nil {
			return fmt.Errorf("%w: %w", common.ErrLedgerUnavailable, err)
		}
		revoked = n
		return nil
	})
	cancel()
	if err != nil {
		if errors.Is(err, common.ErrTokenRevoked) {
			s.logger.Warn(ctx, "revoked refresh token presented", "user_id", claims.Subject, "jti", claims.ID)
		}
		s.metrics.Refresh(resultFor(err))
		return nil, wrapLedgerErr(err)
	}
	s.metrics.Revoked("rotation", revoked)

	pair, err := s.Issue(ctx, claims.Subject)
	if err != nil {
		s.logger.Error(ctx, "previous session revoked but new pair not stored", "user_id", claims.Subject)
		s.metrics.Refresh(metrics.ResultError)
		return nil, err
	}

	s.metrics.Refresh(metrics.ResultOK)
	s.logger.Info(ctx, "session rotated", "user_id", claims.Subject, "count", revoked)
	return pair, nil
}

// Logout revokes exactly the access token of the current request and
// reports whether it was active. Other tokens of the user stay valid.
func (s *SessionService) Logout(ctx context.Context, p Principal) (bool, error) {
	lctx, cancel := s.ledgerContext(ctx)
	defer cancel()

	changed, err := s.repomanager.Tokens(s.db).Revoke(lctx, p.JTI, s.now())
	if err != nil {
		s.logger.Error(ctx, "logout failed", "user_id", p.UserID, "jti", p.JTI, "err", err)
		return false, fmt.Errorf("%w: %w", common.ErrLedgerUnavailable, err)
	}

	s.gate.MarkRevoked(p.JTI, p.ExpiresAt)
	if changed {
		s.metrics.Revoked("logout", 1)
	}
	s.logger.Info(ctx, "user logged out", "user_id", p.UserID, "jti", p.JTI, "revoked", changed)
	return changed, nil
}

// LogoutAll revokes every active token of userID and returns how many were
// revoked.
func (s *SessionService) LogoutAll(ctx context.Context, userID string) (int64, error) {
	lctx, cancel := s.ledgerContext(ctx)
	defer cancel()

	n, err := s.repomanager.Tokens(s.db).RevokeAllActiveForOwner(lctx, userID, s.now())
	if err != nil {
		s.logger.Error(ctx, "logout-all failed", "user_id", userID, "err", err)
		return 0, fmt.Errorf("%w: %w", common.ErrLedgerUnavailable, err)
	}

	s.metrics.Revoked("logout_all", n)
	s.logger.Info(ctx, "all sessions revoked", "user_id", userID, "count", n)
	return n, nil
}

// Authorize verifies an access token and consults the gate. On success the
// caller's Principal is returned; otherwise the error names the denial.
func (s *SessionService) Authorize(ctx context.Context, accessToken string) (*Principal, error) {
	claims, err := s.codec.Decode(accessToken)
	if err != nil {
		return nil, err
	}
	if claims.Type != models.TokenTypeAccess {
		return nil, common.ErrWrongTokenType
	}

	if err := s.gate.Check(ctx, claims.ID, claims.Subject); err != nil {
		return nil, err
	}

	p := &Principal{UserID: claims.Subject, JTI: claims.ID}
	if claims.ExpiresAt != nil {
		p.ExpiresAt = claims.ExpiresAt.Time
	}
	return p, nil
}

// ListSessions returns the user's active, unexpired ledger rows.
func (s *SessionService) ListSessions(ctx context.Context, userID string) ([]models.TokenRecord, error) {
	lctx, cancel := s.ledgerContext(ctx)
	defer cancel()

	records, err := s.repomanager.Tokens(s.db).ListActiveForOwner(lctx, userID, s.now())
	if err != nil {
		return nil, fmt.Errorf("%w: %w", common.ErrLedgerUnavailable, err)
	}
	return records, nil
}

// PurgeExpired deletes every ledger row whose expiry has passed.
func (s *SessionService) PurgeExpired(ctx context.Context) (int64, error) {
	n, err := s.repomanager.Tokens(s.db).PurgeExpired(ctx, s.now())
	if err != nil {
		return 0, fmt.Errorf("%w: %w", common.ErrLedgerUnavailable, err)
	}
	s.metrics.Purged(n)
	return n, nil
}

// ledgerContext bounds one ledger call (or the refresh transaction) on the
// request path. Purges are bounded by the sweeper instead.
func (s *SessionService) ledgerContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.ledgerTimeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, s.ledgerTimeout)
}

// wrapLedgerErr marks transaction begin/commit failures as ledger errors;
// decision errors pass through untouched.
func wrapLedgerErr(err error) error {
	switch {
	case errors.Is(err, common.ErrPersistence),
		errors.Is(err, common.ErrInvalidToken),
		errors.Is(err, common.ErrTokenRevoked),
		errors.Is(err, common.ErrTokenExpired):
		return err
	default:
		return fmt.Errorf("%w: %w", common.ErrLedgerUnavailable, err)
	}
}

func resultFor(err error) string {
	switch {
	case errors.Is(err, common.ErrTokenExpired):
		return metrics.ResultExpired
	case errors.Is(err, common.ErrTokenRevoked):
		return metrics.ResultRevoked
	case errors.Is(err, common.ErrInvalidToken):
		return metrics.ResultInvalid
	default:
		return metrics.ResultError
	}
}
