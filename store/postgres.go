package store

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/MrEthical07/goSession/internal/dbx"
	"github.com/google/uuid"
)

const tokenColumns = `id, user_id, token_hash, expires_at, is_revoked, created_at, last_used_at`

// Postgres stores refresh tokens in the refresh_tokens table. Open the
// *sql.DB with the "pgx" driver and call Migrate before first use.
type Postgres struct {
	db  *sql.DB
	now func() time.Time
}

// NewPostgres returns a Store over db.
func NewPostgres(db *sql.DB) *Postgres {
	return &Postgres{db: db, now: time.Now}
}

func (p *Postgres) Create(ctx context.Context, userID, rawToken string, expiresAt time.Time) (*RefreshToken, error) {
	rec, err := insertToken(ctx, p.db, userID, HashToken(rawToken), expiresAt, p.now())
	if err != nil {
		return nil, unavailable(err)
	}
	return rec, nil
}

func (p *Postgres) FindActive(ctx context.Context, rawToken string) (*RefreshToken, error) {
	query := `SELECT ` + tokenColumns + `
		FROM refresh_tokens
		WHERE token_hash = $1 AND is_revoked = FALSE AND expires_at > $2`

	rec, err := scanToken(p.db.QueryRowContext(ctx, query, HashToken(rawToken), p.now()))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotActive
	}
	if err != nil {
		return nil, unavailable(err)
	}
	return rec, nil
}

func (p *Postgres) Find(ctx context.Context, rawToken string) (*RefreshToken, error) {
	query := `SELECT ` + tokenColumns + `
		FROM refresh_tokens
		WHERE token_hash = $1`

	rec, err := scanToken(p.db.QueryRowContext(ctx, query, HashToken(rawToken)))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, unavailable(err)
	}
	return rec, nil
}

func (p *Postgres) Rotate(ctx context.Context, oldRaw, newRaw string, expiresAt time.Time) (*RefreshToken, error) {
	consume := `
		UPDATE refresh_tokens
		SET is_revoked = TRUE, last_used_at = $2
		WHERE token_hash = $1 AND is_revoked = FALSE AND expires_at > $2
		RETURNING user_id`

	now := p.now()
	var rec *RefreshToken
	err := dbx.WithTx(ctx, p.db, func(tx *sql.Tx) error {
		var userID string
		if err := tx.QueryRowContext(ctx, consume, HashToken(oldRaw), now).Scan(&userID); err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return ErrNotActive
			}
			return err
		}
		var err error
		rec, err = insertToken(ctx, tx, userID, HashToken(newRaw), expiresAt, now)
		return err
	})
	if errors.Is(err, ErrNotActive) {
		return nil, ErrNotActive
	}
	if err != nil {
		return nil, unavailable(err)
	}
	return rec, nil
}

func (p *Postgres) Revoke(ctx context.Context, rawToken string) error {
	query := `UPDATE refresh_tokens SET is_revoked = TRUE WHERE token_hash = $1 AND is_revoked = FALSE`
	if _, err := p.db.ExecContext(ctx, query, HashToken(rawToken)); err != nil {
		return unavailable(err)
	}
	return nil
}

func (p *Postgres) RevokeAll(ctx context.Context, userID string) (int, error) {
	query := `
		UPDATE refresh_tokens
		SET is_revoked = TRUE
		WHERE user_id = $1 AND is_revoked = FALSE AND expires_at > $2`
	return p.execCount(ctx, query, userID, p.now())
}

func (p *Postgres) CountActive(ctx context.Context, userID string) (int, error) {
	query := `
		SELECT COUNT(*)
		FROM refresh_tokens
		WHERE user_id = $1 AND is_revoked = FALSE AND expires_at > $2`

	var n int
	if err := p.db.QueryRowContext(ctx, query, userID, p.now()).Scan(&n); err != nil {
		return 0, unavailable(err)
	}
	return n, nil
}

func (p *Postgres) CleanupExpired(ctx context.Context) (int, error) {
	query := `DELETE FROM refresh_tokens WHERE is_revoked = TRUE OR expires_at <= $1`
	return p.execCount(ctx, query, p.now())
}

func (p *Postgres) execCount(ctx context.Context, query string, args ...any) (int, error) {
	res, err := p.db.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, unavailable(err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, unavailable(err)
	}
	return int(n), nil
}

func insertToken(ctx context.Context, db dbx.Querier, userID, hash string, expiresAt, now time.Time) (*RefreshToken, error) {
	query := `
		INSERT INTO refresh_tokens (id, user_id, token_hash, expires_at, created_at)
		VALUES ($1, $2, $3, $4, $5)`

	rec := &RefreshToken{
		ID:        uuid.NewString(),
		UserID:    userID,
		TokenHash: hash,
		ExpiresAt: expiresAt,
		CreatedAt: now,
	}
	if _, err := db.ExecContext(ctx, query, rec.ID, rec.UserID, rec.TokenHash, rec.ExpiresAt, rec.CreatedAt); err != nil {
		return nil, err
	}
	return rec, nil
}

func scanToken(row *sql.Row) (*RefreshToken, error) {
	var (
		rec      RefreshToken
		lastUsed sql.NullTime
	)
	if err := row.Scan(&rec.ID, &rec.UserID, &rec.TokenHash, &rec.ExpiresAt, &rec.IsRevoked, &rec.CreatedAt, &lastUsed); err != nil {
		return nil, err
	}
	if lastUsed.Valid {
		t := lastUsed.Time
		rec.LastUsedAt = &t
	}
	return &rec, nil
}
