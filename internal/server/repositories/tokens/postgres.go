package tokens

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/LouAnabel/someContacts/internal/common"
	"github.com/LouAnabel/someContacts/internal/dbx"
	"github.com/LouAnabel/someContacts/internal/server/models"
)

const selectColumns = `jti, token_type, owner_id, expires_at, is_active, created_at, revoked_at`

// PostgresRepository implements Repository over dbx.DBTX (satisfied by
// *sql.DB or *sql.Tx).
type PostgresRepository struct {
	db dbx.DBTX
}

// NewPostgresRepository constructs a repository bound to the given DBTX.
func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// InsertPair writes both records with a single multi-row INSERT, which
// PostgreSQL applies atomically even outside an explicit transaction.
func (r *PostgresRepository) InsertPair(ctx context.Context, access, refresh models.TokenRecord) error {
	query := `
		INSERT INTO tokens (jti, token_type, owner_id, expires_at, is_active)
		VALUES ($1, $2, $3, $4, TRUE), ($5, $6, $7, $8, TRUE)
	`
	_, err := r.db.ExecContext(ctx, query,
		access.JTI, string(access.Type), access.OwnerID, access.ExpiresAt,
		refresh.JTI, string(refresh.Type), refresh.OwnerID, refresh.ExpiresAt,
	)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

func (r *PostgresRepository) Find(ctx context.Context, jti string) (*models.TokenRecord, error) {
	query := `
		SELECT ` + selectColumns + `
		FROM tokens
		WHERE jti = $1
	`
	return r.scanOne(r.db.QueryRowContext(ctx, query, jti))
}

func (r *PostgresRepository) FindForUpdate(ctx context.Context, jti string) (*models.TokenRecord, error) {
	query := `
		SELECT ` + selectColumns + `
		FROM tokens
		WHERE jti = $1
		FOR UPDATE
	`
	return r.scanOne(r.db.QueryRowContext(ctx, query, jti))
}

func (r *PostgresRepository) Revoke(ctx context.Context, jti string, at time.Time) (bool, error) {
	query := `
		UPDATE tokens
		SET is_active = FALSE, revoked_at = $2
		WHERE jti = $1 AND is_active
	`
	res, err := r.db.ExecContext(ctx, query, jti, at)
	if err != nil {
		return false, fmt.Errorf("db error: %w", err)
	}
	n, err := dbx.RowsAffected(res)
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func (r *PostgresRepository) RevokeAllActiveForOwner(ctx context.Context, ownerID string, at time.Time) (int64, error) {
	query := `
		UPDATE tokens
		SET is_active = FALSE, revoked_at = $2
		WHERE owner_id = $1 AND is_active
	`
	res, err := r.db.ExecContext(ctx, query, ownerID, at)
	if err != nil {
		return 0, fmt.Errorf("db error: %w", err)
	}
	return dbx.RowsAffected(res)
}

func (r *PostgresRepository) ListActiveForOwner(ctx context.Context, ownerID string, now time.Time) ([]models.TokenRecord, error) {
	query := `
		SELECT ` + selectColumns + `
		FROM tokens
		WHERE owner_id = $1 AND is_active AND expires_at > $2
		ORDER BY created_at DESC, jti
	`
	rows, err := r.db.QueryContext(ctx, query, ownerID, now)
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	defer rows.Close()

	result := make([]models.TokenRecord, 0)
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("db error: %w", err)
		}
		result = append(result, *rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	return result, nil
}

func (r *PostgresRepository) Delete(ctx context.Context, jti string) error {
	query := `
		DELETE FROM tokens
		WHERE jti = $1
	`
	if _, err := r.db.ExecContext(ctx, query, jti); err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

func (r *PostgresRepository) PurgeExpired(ctx context.Context, now time.Time) (int64, error) {
	query := `
		DELETE FROM tokens
		WHERE expires_at <= $1
	`
	res, err := r.db.ExecContext(ctx, query, now)
	if err != nil {
		return 0, fmt.Errorf("db error: %w", err)
	}
	return dbx.RowsAffected(res)
}

func (r *PostgresRepository) scanOne(row *sql.Row) (*models.TokenRecord, error) {
	rec, err := scanRecord(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrorNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}
	return rec, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRecord(s scanner) (*models.TokenRecord, error) {
	var (
		rec       models.TokenRecord
		tokenType string
		revokedAt sql.NullTime
	)
	if err := s.Scan(&rec.JTI, &tokenType, &rec.OwnerID, &rec.ExpiresAt, &rec.IsActive, &rec.CreatedAt, &revokedAt); err != nil {
		return nil, err
	}
	rec.Type = models.TokenType(tokenType)
	if revokedAt.Valid {
		t := revokedAt.Time
		rec.RevokedAt = &t
	}
	return &rec, nil
}
