package services

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/LouAnabel/someContacts/internal/common"
	"github.com/LouAnabel/someContacts/internal/logging"
	"github.com/LouAnabel/someContacts/internal/server/auth"
	"github.com/LouAnabel/someContacts/internal/server/config"
	"github.com/LouAnabel/someContacts/internal/server/metrics"
	"github.com/LouAnabel/someContacts/internal/server/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type sessionFixture struct {
	svc   *SessionService
	users *UserService
	rm    *fakeRepoMgr
	codec *auth.Codec
	mock  sqlmock.Sqlmock
	user  *models.User
}

const testPassword = "pw-123456"

func newSessionFixture(t *testing.T) *sessionFixture {
	t.Helper()

	db, mock := newSQLMockDB(t)
	rm := newFakeRepoMgr()
	cfg := &config.Config{
		AccessTokenValidityDuration:  15 * time.Minute,
		RefreshTokenValidityDuration: 24 * time.Hour,
	}
	codec := auth.NewCodec([]byte("test-secret"))
	users := NewUserService(db, rm, logging.Nop{})
	gate := NewGate(db, rm, time.Second, time.Minute, logging.Nop{}, nil)
	svc := NewSessionService(db, rm, codec, users, gate, cfg, logging.Nop{}, metrics.New())

	u, err := users.Register(context.Background(), RegisterInput{Email: "a@b.c", Password: testPassword})
	require.NoError(t, err)

	t.Cleanup(func() {
		if err := mock.ExpectationsWereMet(); err != nil {
			t.Errorf("unmet sqlmock expectations: %v", err)
		}
	})

	return &sessionFixture{svc: svc, users: users, rm: rm, codec: codec, mock: mock, user: u}
}

func (f *sessionFixture) login(t *testing.T) *TokenPair {
	t.Helper()
	_, pair, err := f.svc.Login(context.Background(), "a@b.c", testPassword)
	require.NoError(t, err)
	return pair
}

func (f *sessionFixture) jti(t *testing.T, token string) string {
	t.Helper()
	c, err := f.codec.Decode(token)
	require.NoError(t, err)
	return c.ID
}

func TestSession_Login_RecordsPair(t *testing.T) {
	f := newSessionFixture(t)

	user, pair, err := f.svc.Login(context.Background(), "A@B.C", testPassword)
	require.NoError(t, err)
	assert.Equal(t, f.user.ID, user.ID)
	assert.NotEqual(t, pair.AccessToken, pair.RefreshToken)
	assert.True(t, pair.RefreshExpiresAt.After(pair.AccessExpiresAt))

	access, ok := f.rm.t.get(f.jti(t, pair.AccessToken))
	require.True(t, ok)
	assert.Equal(t, models.TokenTypeAccess, access.Type)
	assert.Equal(t, f.user.ID, access.OwnerID)
	assert.True(t, access.IsActive)

	refresh, ok := f.rm.t.get(f.jti(t, pair.RefreshToken))
	require.True(t, ok)
	assert.Equal(t, models.TokenTypeRefresh, refresh.Type)
	assert.True(t, refresh.IsActive)
}

func TestSession_Login_InvalidCredentials(t *testing.T) {
	f := newSessionFixture(t)

	_, _, err := f.svc.Login(context.Background(), "a@b.c", "wrong")
	assert.ErrorIs(t, err, common.ErrInvalidCredentials)

	_, _, err = f.svc.Login(context.Background(), "ghost@b.c", testPassword)
	assert.ErrorIs(t, err, common.ErrInvalidCredentials)

	assert.Empty(t, f.rm.t.rows)
}

func TestSession_Login_LedgerFailureReturnsNoTokens(t *testing.T) {
	f := newSessionFixture(t)
	f.rm.t.insertErr = errors.New("disk full")

	user, pair, err := f.svc.Login(context.Background(), "a@b.c", testPassword)
	assert.ErrorIs(t, err, common.ErrLedgerUnavailable)
	assert.Nil(t, user)
	assert.Nil(t, pair)
}

func TestSession_Authorize(t *testing.T) {
	f := newSessionFixture(t)
	pair := f.login(t)
	ctx := context.Background()

	p, err := f.svc.Authorize(ctx, pair.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, f.user.ID, p.UserID)
	assert.Equal(t, f.jti(t, pair.AccessToken), p.JTI)
	assert.WithinDuration(t, pair.AccessExpiresAt, p.ExpiresAt, time.Second)

	_, err = f.svc.Authorize(ctx, pair.RefreshToken)
	assert.ErrorIs(t, err, common.ErrWrongTokenType)

	_, err = f.svc.Authorize(ctx, "not-a-token")
	assert.ErrorIs(t, err, common.ErrMalformedToken)

	other := auth.NewCodec([]byte("other-secret"))
	forged, err := other.Issue(f.user.ID, models.TokenTypeAccess, time.Hour)
	require.NoError(t, err)
	_, err = f.svc.Authorize(ctx, forged.Token)
	assert.ErrorIs(t, err, common.ErrInvalidSignature)

	// Correctly signed but never recorded.
	unrecorded, err := f.codec.Issue(f.user.ID, models.TokenTypeAccess, time.Hour)
	require.NoError(t, err)
	_, err = f.svc.Authorize(ctx, unrecorded.Token)
	assert.ErrorIs(t, err, common.ErrTokenRevoked)
}

func TestSession_Authorize_LedgerDownDenies(t *testing.T) {
	f := newSessionFixture(t)
	pair := f.login(t)
	f.rm.t.findErr = errors.New("timeout")

	_, err := f.svc.Authorize(context.Background(), pair.AccessToken)
	assert.ErrorIs(t, err, common.ErrLedgerUnavailable)
}

func TestSession_Refresh_RotatesEverything(t *testing.T) {
	f := newSessionFixture(t)
	ctx := context.Background()
	first := f.login(t)
	second := f.login(t)

	f.mock.ExpectBegin()
	f.mock.ExpectCommit()

	next, err := f.svc.Refresh(ctx, first.RefreshToken)
	require.NoError(t, err)
	assert.NotEqual(t, first.AccessToken, next.AccessToken)
	assert.NotEqual(t, first.RefreshToken, next.RefreshToken)

	for _, tok := range []string{first.AccessToken, first.RefreshToken, second.AccessToken, second.RefreshToken} {
		rec, ok := f.rm.t.get(f.jti(t, tok))
		require.True(t, ok)
		assert.False(t, rec.IsActive, "jti %s should be revoked", rec.JTI)
		assert.NotNil(t, rec.RevokedAt)
	}

	_, err = f.svc.Authorize(ctx, first.AccessToken)
	assert.ErrorIs(t, err, common.ErrTokenRevoked)

	p, err := f.svc.Authorize(ctx, next.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, f.user.ID, p.UserID)

	sessions, err := f.svc.ListSessions(ctx, f.user.ID)
	require.NoError(t, err)
	assert.Len(t, sessions, 2)
}

func TestSession_Refresh_ReuseIsDenied(t *testing.T) {
	f := newSessionFixture(t)
	pair := f.login(t)

	f.mock.ExpectBegin()
	f.mock.ExpectCommit()
	next, err := f.svc.Refresh(context.Background(), pair.RefreshToken)
	require.NoError(t, err)

	f.mock.ExpectBegin()
	f.mock.ExpectRollback()
	_, err = f.svc.Refresh(context.Background(), pair.RefreshToken)
	assert.ErrorIs(t, err, common.ErrTokenRevoked)

	// The replay does not touch the pair issued by the first refresh.
	rec, ok := f.rm.t.get(f.jti(t, next.RefreshToken))
	require.True(t, ok)
	assert.True(t, rec.IsActive)
}

func TestSession_Refresh_ConcurrentRotatesOnce(t *testing.T) {
	const workers = 8

	f := newSessionFixture(t)
	pair := f.login(t)

	f.mock.MatchExpectationsInOrder(false)
	for i := 0; i < workers; i++ {
		f.mock.ExpectBegin()
	}
	f.mock.ExpectCommit()
	for i := 0; i < workers-1; i++ {
		f.mock.ExpectRollback()
	}

	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		ok   int
		errs []error
	)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.svc.Refresh(context.Background(), pair.RefreshToken)
			mu.Lock()
			defer mu.Unlock()
			if err == nil {
				ok++
				return
			}
			errs = append(errs, err)
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, ok)
	require.Len(t, errs, workers-1)
	for _, err := range errs {
		assert.ErrorIs(t, err, common.ErrTokenRevoked)
	}

	sessions, err := f.svc.ListSessions(context.Background(), f.user.ID)
	require.NoError(t, err)
	assert.Len(t, sessions, 2, "only the winner's pair is active")
}

func TestSession_Refresh_LedgerTimeout(t *testing.T) {
	f := newSessionFixture(t)
	pair := f.login(t)
	jti := f.jti(t, pair.RefreshToken)
	f.svc.ledgerTimeout = 20 * time.Millisecond

	// Another transaction holds the row lock for the whole test.
	holdCtx, release := context.WithCancel(context.Background())
	defer release()
	_, err := f.rm.t.FindForUpdate(holdCtx, jti)
	require.NoError(t, err)

	f.mock.ExpectBegin()
	_, err = f.svc.Refresh(context.Background(), pair.RefreshToken)
	assert.ErrorIs(t, err, common.ErrLedgerUnavailable)

	rec, _ := f.rm.t.get(jti)
	assert.True(t, rec.IsActive)
}

func TestSession_Refresh_Denials(t *testing.T) {
	ctx := context.Background()

	t.Run("access token", func(t *testing.T) {
		f := newSessionFixture(t)
		pair := f.login(t)
		_, err := f.svc.Refresh(ctx, pair.AccessToken)
		assert.ErrorIs(t, err, common.ErrWrongTokenType)
	})

	t.Run("malformed", func(t *testing.T) {
		f := newSessionFixture(t)
		_, err := f.svc.Refresh(ctx, "x.y.z")
		assert.ErrorIs(t, err, common.ErrInvalidToken)
	})

	t.Run("expired signature", func(t *testing.T) {
		f := newSessionFixture(t)
		tok, err := f.codec.Issue(f.user.ID, models.TokenTypeRefresh, -time.Minute)
		require.NoError(t, err)
		_, err = f.svc.Refresh(ctx, tok.Token)
		assert.ErrorIs(t, err, common.ErrTokenExpired)
	})

	t.Run("unknown jti", func(t *testing.T) {
		f := newSessionFixture(t)
		tok, err := f.codec.Issue(f.user.ID, models.TokenTypeRefresh, time.Hour)
		require.NoError(t, err)

		f.mock.ExpectBegin()
		f.mock.ExpectRollback()
		_, err = f.svc.Refresh(ctx, tok.Token)
		assert.ErrorIs(t, err, common.ErrTokenUnknown)
	})

	t.Run("owner mismatch", func(t *testing.T) {
		f := newSessionFixture(t)
		tok, err := f.codec.Issue(f.user.ID, models.TokenTypeRefresh, time.Hour)
		require.NoError(t, err)
		rec := tok.Record()
		rec.OwnerID = "someone-else"
		f.rm.t.put(rec)

		f.mock.ExpectBegin()
		f.mock.ExpectRollback()
		_, err = f.svc.Refresh(ctx, tok.Token)
		assert.ErrorIs(t, err, common.ErrInvalidToken)
	})

	t.Run("ledger row expired", func(t *testing.T) {
		f := newSessionFixture(t)
		tok, err := f.codec.Issue(f.user.ID, models.TokenTypeRefresh, time.Hour)
		require.NoError(t, err)
		rec := tok.Record()
		rec.ExpiresAt = time.Now().Add(-time.Second)
		f.rm.t.put(rec)

		f.mock.ExpectBegin()
		f.mock.ExpectRollback()
		_, err = f.svc.Refresh(ctx, tok.Token)
		assert.ErrorIs(t, err, common.ErrTokenExpired)
	})

	t.Run("ledger lookup fails", func(t *testing.T) {
		f := newSessionFixture(t)
		pair := f.login(t)
		f.rm.t.findErr = errors.New("broken pipe")

		f.mock.ExpectBegin()
		f.mock.ExpectRollback()
		_, err := f.svc.Refresh(ctx, pair.RefreshToken)
		assert.ErrorIs(t, err, common.ErrLedgerUnavailable)
	})

	t.Run("begin fails", func(t *testing.T) {
		f := newSessionFixture(t)
		pair := f.login(t)

		f.mock.ExpectBegin().WillReturnError(errors.New("too many connections"))
		_, err := f.svc.Refresh(ctx, pair.RefreshToken)
		assert.ErrorIs(t, err, common.ErrLedgerUnavailable)

		rec, ok := f.rm.t.get(f.jti(t, pair.RefreshToken))
		require.True(t, ok)
		assert.True(t, rec.IsActive)
	})

	t.Run("commit fails", func(t *testing.T) {
		f := newSessionFixture(t)
		pair := f.login(t)

		f.mock.ExpectBegin()
		f.mock.ExpectCommit().WillReturnError(errors.New("serialization failure"))
		_, err := f.svc.Refresh(ctx, pair.RefreshToken)
		assert.ErrorIs(t, err, common.ErrLedgerUnavailable)
	})
}

func TestSession_Refresh_InsertFailureFailsClosed(t *testing.T) {
	f := newSessionFixture(t)
	pair := f.login(t)
	f.rm.t.insertErr = errors.New("disk full")

	f.mock.ExpectBegin()
	f.mock.ExpectCommit()
	next, err := f.svc.Refresh(context.Background(), pair.RefreshToken)
	assert.ErrorIs(t, err, common.ErrLedgerUnavailable)
	assert.Nil(t, next)

	rec, ok := f.rm.t.get(f.jti(t, pair.RefreshToken))
	require.True(t, ok)
	assert.False(t, rec.IsActive)

	sessions, err := f.svc.ListSessions(context.Background(), f.user.ID)
	require.NoError(t, err)
	assert.Empty(t, sessions)
}

func TestSession_Logout_RevokesOnlyPresentedToken(t *testing.T) {
	f := newSessionFixture(t)
	ctx := context.Background()
	pair := f.login(t)
	other := f.login(t)

	p, err := f.svc.Authorize(ctx, pair.AccessToken)
	require.NoError(t, err)

	revoked, err := f.svc.Logout(ctx, *p)
	require.NoError(t, err)
	assert.True(t, revoked)

	_, err = f.svc.Authorize(ctx, pair.AccessToken)
	assert.ErrorIs(t, err, common.ErrTokenRevoked)

	rec, _ := f.rm.t.get(f.jti(t, pair.RefreshToken))
	assert.True(t, rec.IsActive, "refresh token of the same pair stays active")

	_, err = f.svc.Authorize(ctx, other.AccessToken)
	assert.NoError(t, err)

	again, err := f.svc.Logout(ctx, *p)
	require.NoError(t, err)
	assert.False(t, again)
}

func TestSession_Logout_ThenRefreshSiblingSucceeds(t *testing.T) {
	f := newSessionFixture(t)
	ctx := context.Background()
	pair := f.login(t)

	p, err := f.svc.Authorize(ctx, pair.AccessToken)
	require.NoError(t, err)
	_, err = f.svc.Logout(ctx, *p)
	require.NoError(t, err)

	f.mock.ExpectBegin()
	f.mock.ExpectCommit()
	next, err := f.svc.Refresh(ctx, pair.RefreshToken)
	require.NoError(t, err)

	_, err = f.svc.Authorize(ctx, next.AccessToken)
	assert.NoError(t, err)
}

func TestSession_Logout_LedgerError(t *testing.T) {
	f := newSessionFixture(t)
	f.rm.t.revokeErr = errors.New("down")

	_, err := f.svc.Logout(context.Background(), Principal{UserID: f.user.ID, JTI: "j"})
	assert.ErrorIs(t, err, common.ErrLedgerUnavailable)
}

func TestSession_LogoutAll(t *testing.T) {
	f := newSessionFixture(t)
	ctx := context.Background()
	a := f.login(t)
	b := f.login(t)

	n, err := f.svc.LogoutAll(ctx, f.user.ID)
	require.NoError(t, err)
	assert.EqualValues(t, 4, n)

	for _, tok := range []string{a.AccessToken, b.AccessToken} {
		_, err := f.svc.Authorize(ctx, tok)
		assert.ErrorIs(t, err, common.ErrTokenRevoked)
	}

	n, err = f.svc.LogoutAll(ctx, f.user.ID)
	require.NoError(t, err)
	assert.Zero(t, n)

	f.rm.t.revokeAllErr = errors.New("down")
	_, err = f.svc.LogoutAll(ctx, f.user.ID)
	assert.ErrorIs(t, err, common.ErrLedgerUnavailable)
}

func TestSession_RefreshThenLogoutAll(t *testing.T) {
	f := newSessionFixture(t)
	ctx := context.Background()
	first := f.login(t)

	f.mock.ExpectBegin()
	f.mock.ExpectCommit()
	second, err := f.svc.Refresh(ctx, first.RefreshToken)
	require.NoError(t, err)

	_, err = f.svc.Authorize(ctx, second.AccessToken)
	require.NoError(t, err)

	n, err := f.svc.LogoutAll(ctx, f.user.ID)
	require.NoError(t, err)
	assert.EqualValues(t, 2, n, "the first pair was already revoked by rotation")

	_, err = f.svc.Authorize(ctx, second.AccessToken)
	assert.ErrorIs(t, err, common.ErrTokenRevoked)

	f.mock.ExpectBegin()
	f.mock.ExpectRollback()
	_, err = f.svc.Refresh(ctx, second.RefreshToken)
	assert.ErrorIs(t, err, common.ErrTokenRevoked)
}

func TestSession_LedgerTimeout(t *testing.T) {
	f := newSessionFixture(t)
	ctx := context.Background()
	pair := f.login(t)
	p, err := f.svc.Authorize(ctx, pair.AccessToken)
	require.NoError(t, err)

	f.svc.ledgerTimeout = 20 * time.Millisecond
	f.rm.t.mu.Lock()
	f.rm.t.stall = true
	f.rm.t.mu.Unlock()

	_, err = f.svc.Logout(ctx, *p)
	assert.ErrorIs(t, err, common.ErrLedgerUnavailable)
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	_, err = f.svc.LogoutAll(ctx, f.user.ID)
	assert.ErrorIs(t, err, common.ErrLedgerUnavailable)

	_, err = f.svc.Issue(ctx, f.user.ID)
	assert.ErrorIs(t, err, common.ErrLedgerUnavailable)

	rec, _ := f.rm.t.get(p.JTI)
	assert.True(t, rec.IsActive)
}

func TestSession_PurgeExpired(t *testing.T) {
	f := newSessionFixture(t)
	f.login(t)

	now := time.Now()
	f.rm.t.put(models.TokenRecord{JTI: "old", Type: models.TokenTypeAccess, OwnerID: f.user.ID, ExpiresAt: now.Add(-time.Hour)})
	f.rm.t.put(models.TokenRecord{JTI: "old-active", Type: models.TokenTypeRefresh, OwnerID: f.user.ID, ExpiresAt: now.Add(-time.Minute), IsActive: true})

	n, err := f.svc.PurgeExpired(context.Background())
	require.NoError(t, err)
	assert.EqualValues(t, 2, n)
	assert.Len(t, f.rm.t.rows, 2)

	f.rm.t.purgeErr = errors.New("down")
	_, err = f.svc.PurgeExpired(context.Background())
	assert.ErrorIs(t, err, common.ErrLedgerUnavailable)
}

func TestSession_ListSessions_Error(t *testing.T) {
	f := newSessionFixture(t)
	f.rm.t.listErr = errors.New("down")

	_, err := f.svc.ListSessions(context.Background(), f.user.ID)
	assert.ErrorIs(t, err, common.ErrLedgerUnavailable)
}
