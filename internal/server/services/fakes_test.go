package services

import (
	"context"
	"database/sql"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/LouAnabel/someContacts/internal/common"
	"github.com/LouAnabel/someContacts/internal/dbx"
	"github.com/LouAnabel/someContacts/internal/server/models"
	"github.com/LouAnabel/someContacts/internal/server/repositories/tokens"
	"github.com/LouAnabel/someContacts/internal/server/repositories/users"
)

// --- users ---

type fakeUsersRepo struct {
	mu     sync.Mutex
	byID   map[string]*models.User
	nextID int

	createErr error
	getErr    error
}

func newFakeUsersRepo() *fakeUsersRepo {
	return &fakeUsersRepo{byID: map[string]*models.User{}}
}

func (f *fakeUsersRepo) Create(_ context.Context, u *models.User) (*models.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.createErr != nil {
		return nil, f.createErr
	}
	for _, existing := range f.byID {
		if existing.Email == u.Email {
			return nil, common.ErrorAlreadyExists
		}
	}
	f.nextID++
	cp := *u
	cp.ID = "user-" + strconv.Itoa(f.nextID)
	cp.CreatedAt = time.Now()
	f.byID[cp.ID] = &cp
	out := cp
	return &out, nil
}

func (f *fakeUsersRepo) GetUserByEmail(_ context.Context, email string) (*models.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.getErr != nil {
		return nil, f.getErr
	}
	for _, u := range f.byID {
		if u.Email == email {
			out := *u
			return &out, nil
		}
	}
	return nil, common.ErrorNotFound
}

func (f *fakeUsersRepo) GetUserByID(_ context.Context, id string) (*models.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.getErr != nil {
		return nil, f.getErr
	}
	u, ok := f.byID[id]
	if !ok {
		return nil, common.ErrorNotFound
	}
	out := *u
	return &out, nil
}

// --- ledger ---

type fakeLedger struct {
	mu   sync.Mutex
	rows map[string]*models.TokenRecord

	insertErr    error
	findErr      error
	revokeErr    error
	revokeAllErr error
	listErr      error
	deleteErr    error
	purgeErr     error

	// stall makes revokes and inserts block until their context ends.
	stall bool

	locks   map[string]chan struct{}
	deleted []string
}

func newFakeLedger() *fakeLedger {
	return &fakeLedger{rows: map[string]*models.TokenRecord{}, locks: map[string]chan struct{}{}}
}

func (f *fakeLedger) wait(ctx context.Context) error {
	f.mu.Lock()
	stall := f.stall
	f.mu.Unlock()
	if !stall {
		return nil
	}
	<-ctx.Done()
	return ctx.Err()
}

func (f *fakeLedger) rowLock(jti string) chan struct{} {
	f.mu.Lock()
	defer f.mu.Unlock()
	l, ok := f.locks[jti]
	if !ok {
		l = make(chan struct{}, 1)
		f.locks[jti] = l
	}
	return l
}

func (f *fakeLedger) put(rec models.TokenRecord) {
	f.mu.Lock()
	defer f.mu.Unlock()
	cp := rec
	f.rows[rec.JTI] = &cp
}

func (f *fakeLedger) get(jti string) (models.TokenRecord, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	r, ok := f.rows[jti]
	if !ok {
		return models.TokenRecord{}, false
	}
	return *r, true
}

func (f *fakeLedger) InsertPair(ctx context.Context, access, refresh models.TokenRecord) error {
	if err := f.wait(ctx); err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.insertErr != nil {
		return f.insertErr
	}
	if _, ok := f.rows[access.JTI]; ok {
		return common.ErrorAlreadyExists
	}
	if _, ok := f.rows[refresh.JTI]; ok {
		return common.ErrorAlreadyExists
	}
	now := time.Now()
	access.CreatedAt, refresh.CreatedAt = now, now
	f.rows[access.JTI] = &access
	f.rows[refresh.JTI] = &refresh
	return nil
}

func (f *fakeLedger) Find(_ context.Context, jti string) (*models.TokenRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.findErr != nil {
		return nil, f.findErr
	}
	r, ok := f.rows[jti]
	if !ok {
		return nil, common.ErrorNotFound
	}
	out := *r
	return &out, nil
}

// FindForUpdate takes a row lock on jti that is held until ctx ends, the
// way SELECT ... FOR UPDATE holds it until the transaction finishes.
func (f *fakeLedger) FindForUpdate(ctx context.Context, jti string) (*models.TokenRecord, error) {
	l := f.rowLock(jti)
	select {
	case l <- struct{}{}:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	go func() {
		<-ctx.Done()
		<-l
	}()
	return f.Find(ctx, jti)
}

func (f *fakeLedger) Revoke(ctx context.Context, jti string, at time.Time) (bool, error) {
	if err := f.wait(ctx); err != nil {
		return false, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.revokeErr != nil {
		return false, f.revokeErr
	}
	r, ok := f.rows[jti]
	if !ok || !r.IsActive {
		return false, nil
	}
	r.IsActive = false
	r.RevokedAt = &at
	return true, nil
}

func (f *fakeLedger) RevokeAllActiveForOwner(ctx context.Context, ownerID string, at time.Time) (int64, error) {
	if err := f.wait(ctx); err != nil {
		return 0, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.revokeAllErr != nil {
		return 0, f.revokeAllErr
	}
	var n int64
	for _, r := range f.rows {
		if r.OwnerID == ownerID && r.IsActive {
			r.IsActive = false
			r.RevokedAt = &at
			n++
		}
	}
	return n, nil
}

func (f *fakeLedger) ListActiveForOwner(_ context.Context, ownerID string, now time.Time) ([]models.TokenRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.listErr != nil {
		return nil, f.listErr
	}
	var out []models.TokenRecord
	for _, r := range f.rows {
		if r.OwnerID == ownerID && r.IsActive && !r.Expired(now) {
			out = append(out, *r)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].JTI < out[j].JTI })
	return out, nil
}

func (f *fakeLedger) Delete(_ context.Context, jti string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.deleteErr != nil {
		return f.deleteErr
	}
	delete(f.rows, jti)
	f.deleted = append(f.deleted, jti)
	return nil
}

func (f *fakeLedger) PurgeExpired(_ context.Context, now time.Time) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.purgeErr != nil {
		return 0, f.purgeErr
	}
	var n int64
	for jti, r := range f.rows {
		if r.Expired(now) {
			delete(f.rows, jti)
			n++
		}
	}
	return n, nil
}

// --- repository manager ---

type fakeRepoMgr struct {
	u *fakeUsersRepo
	t *fakeLedger
}

func newFakeRepoMgr() *fakeRepoMgr {
	return &fakeRepoMgr{u: newFakeUsersRepo(), t: newFakeLedger()}
}

func (m *fakeRepoMgr) RunMigrations(context.Context, *sql.DB) error { return nil }
func (m *fakeRepoMgr) Users(dbx.DBTX) users.Repository              { return m.u }
func (m *fakeRepoMgr) Tokens(dbx.DBTX) tokens.Repository            { return m.t }
