// Package users is the Postgres user directory behind the sessiond binary:
// principal lookup for rotation, password sign-in and registration, and SSO
// identity linking.
package users

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/pressly/goose/v3"

	goSession "github.com/MrEthical07/goSession"
	"github.com/MrEthical07/goSession/internal/dbx"
	"github.com/MrEthical07/goSession/sso"
)

var (
	ErrEmailTaken     = fmt.Errorf("%w: email already registered", goSession.ErrAccountExists)
	ErrBadCredentials = goSession.ErrBadCredentials
	ErrNotFound       = errors.New("user not found")
	// ErrUnverifiedEmail rejects an SSO sign-in that would bind a new
	// provider subject to an email the provider has not verified.
	ErrUnverifiedEmail = fmt.Errorf("%w: sso email not verified", goSession.ErrBadCredentials)
)

//go:embed migrations/*.sql
var migrations embed.FS

// Migrate applies the users schema. Run it after store.Migrate; both share
// goose's version table.
func Migrate(ctx context.Context, db *sql.DB) error {
	goose.SetBaseFS(migrations)
	if err := goose.SetDialect("pgx"); err != nil {
		return fmt.Errorf("goose dialect: %w", err)
	}
	if err := goose.UpContext(ctx, db, "migrations", goose.WithAllowMissing()); err != nil {
		return fmt.Errorf("apply user migrations: %w", err)
	}
	return nil
}

// Directory implements goSession.UserProvider and goSession.LastSeenRecorder.
type Directory struct {
	db     *sql.DB
	hasher *Hasher
	now    func() time.Time
	// dummy keeps sign-in timing flat for unknown emails.
	dummy string
}

func New(db *sql.DB, hasher *Hasher) (*Directory, error) {
	dummy, err := hasher.Hash("not-a-real-password")
	if err != nil {
		return nil, err
	}
	return &Directory{db: db, hasher: hasher, now: time.Now, dummy: dummy}, nil
}

func (d *Directory) GetUserByID(ctx context.Context, userID string) (goSession.Principal, error) {
	if _, err := uuid.Parse(userID); err != nil {
		return goSession.Principal{}, goSession.ErrPrincipalNotFound
	}
	p, err := scanPrincipal(d.db.QueryRowContext(ctx,
		`SELECT id, email, name FROM users WHERE id = $1`, userID))
	if errors.Is(err, sql.ErrNoRows) {
		return goSession.Principal{}, goSession.ErrPrincipalNotFound
	}
	return p, err
}

func (d *Directory) TouchLastSeen(ctx context.Context, userID string) error {
	_, err := d.db.ExecContext(ctx, `UPDATE users SET last_seen_at = $2 WHERE id = $1`, userID, d.now())
	return err
}

// Register creates a password user.
func (d *Directory) Register(ctx context.Context, email, name, password string) (goSession.Principal, error) {
	hash, err := d.hasher.Hash(password)
	if err != nil {
		return goSession.Principal{}, err
	}

	p := goSession.Principal{ID: uuid.NewString(), Email: normalizeEmail(email), Name: strings.TrimSpace(name)}
	res, err := d.db.ExecContext(ctx,
		`INSERT INTO users (id, email, name, password_hash, created_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (email) DO NOTHING`,
		p.ID, p.Email, p.Name, hash, d.now())
	if err != nil {
		return goSession.Principal{}, err
	}
	if n, err := res.RowsAffected(); err != nil {
		return goSession.Principal{}, err
	} else if n == 0 {
		return goSession.Principal{}, ErrEmailTaken
	}
	return p, nil
}

// Authenticate checks an email and password. Unknown emails, SSO-only
// accounts and wrong passwords all return ErrBadCredentials.
func (d *Directory) Authenticate(ctx context.Context, email, password string) (goSession.Principal, error) {
	var (
		p    goSession.Principal
		hash sql.NullString
	)
	err := d.db.QueryRowContext(ctx,
		`SELECT id, email, name, password_hash FROM users WHERE email = $1`,
		normalizeEmail(email)).Scan(&p.ID, &p.Email, &p.Name, &hash)
	if errors.Is(err, sql.ErrNoRows) || (err == nil && !hash.Valid) {
		_, _, _ = d.hasher.Verify(password, d.dummy)
		return goSession.Principal{}, ErrBadCredentials
	}
	if err != nil {
		return goSession.Principal{}, err
	}

	ok, upgrade, err := d.hasher.Verify(password, hash.String)
	if err != nil {
		return goSession.Principal{}, err
	}
	if !ok {
		return goSession.Principal{}, ErrBadCredentials
	}

	if upgrade {
		// A failed rehash leaves the old hash valid; sign-in still succeeds.
		if next, err := d.hasher.Hash(password); err == nil {
			_, _ = d.db.ExecContext(ctx, `UPDATE users SET password_hash = $2 WHERE id = $1`, p.ID, next)
		}
	}
	return p, nil
}

// FindByEmail looks up a user for password reset.
func (d *Directory) FindByEmail(ctx context.Context, email string) (goSession.Principal, error) {
	p, err := scanPrincipal(d.db.QueryRowContext(ctx,
		`SELECT id, email, name FROM users WHERE email = $1`, normalizeEmail(email)))
	if errors.Is(err, sql.ErrNoRows) {
		return goSession.Principal{}, ErrNotFound
	}
	return p, err
}

// LinkIdentity resolves an SSO identity to a user. A known provider subject
// always wins. Otherwise the identity needs a verified email, which then
// links to the user holding that email or creates one.
func (d *Directory) LinkIdentity(ctx context.Context, provider string, id sso.Identity) (goSession.Principal, error) {
	var out goSession.Principal
	err := dbx.WithTx(ctx, d.db, func(tx *sql.Tx) error {
		p, err := scanPrincipal(tx.QueryRowContext(ctx,
			`SELECT u.id, u.email, u.name
			FROM user_identities i JOIN users u ON u.id = i.user_id
			WHERE i.provider = $1 AND i.subject = $2`, provider, id.ID))
		if err == nil {
			out = p
			return nil
		}
		if !errors.Is(err, sql.ErrNoRows) {
			return err
		}

		email, err := linkableEmail(id)
		if err != nil {
			return err
		}
		p, err = scanPrincipal(tx.QueryRowContext(ctx,
			`SELECT id, email, name FROM users WHERE email = $1`, email))
		switch {
		case errors.Is(err, sql.ErrNoRows):
			p = goSession.Principal{ID: uuid.NewString(), Email: email, Name: id.Name}
			if _, err := tx.ExecContext(ctx,
				`INSERT INTO users (id, email, name, created_at) VALUES ($1, $2, $3, $4)`,
				p.ID, p.Email, p.Name, d.now()); err != nil {
				return err
			}
		case err != nil:
			return err
		}

		if _, err := tx.ExecContext(ctx,
			`INSERT INTO user_identities (provider, subject, user_id, created_at) VALUES ($1, $2, $3, $4)`,
			provider, id.ID, p.ID, d.now()); err != nil {
			return err
		}
		out = p
		return nil
	})
	if err != nil {
		return goSession.Principal{}, fmt.Errorf("link %s identity: %w", provider, err)
	}
	return out, nil
}

// linkableEmail returns the normalized email an unlinked identity may be
// bound by.
func linkableEmail(id sso.Identity) (string, error) {
	email := normalizeEmail(id.Email)
	if email == "" {
		return "", fmt.Errorf("%w: %w", goSession.ErrBadCredentials, sso.ErrIncompleteIdentity)
	}
	if !id.EmailVerified {
		return "", ErrUnverifiedEmail
	}
	return email, nil
}

func scanPrincipal(row *sql.Row) (goSession.Principal, error) {
	var p goSession.Principal
	if err := row.Scan(&p.ID, &p.Email, &p.Name); err != nil {
		return goSession.Principal{}, err
	}
	return p, nil
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
