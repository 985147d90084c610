package users

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"

	goSession "github.com/MrEthical07/goSession"
	"github.com/MrEthical07/goSession/sso"
)

const userID = "6f1c2a70-1d2b-4a8e-9d7c-6b3e2f1a0c55"

func newDirectoryWithMock(t *testing.T) (*Directory, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	if err != nil {
		t.Fatalf("sqlmock.New error: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	d, err := New(db, newTestHasher(t))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	now := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	d.now = func() time.Time { return now }
	return d, mock
}

func expectMet(t *testing.T, mock sqlmock.Sqlmock) {
	t.Helper()
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestGetUserByID(t *testing.T) {
	d, mock := newDirectoryWithMock(t)
	mock.ExpectQuery(`SELECT id, email, name FROM users WHERE id = \$1`).
		WithArgs(userID).
		WillReturnRows(sqlmock.NewRows([]string{"id", "email", "name"}).AddRow(userID, "ada@example.com", "Ada"))

	p, err := d.GetUserByID(context.Background(), userID)
	if err != nil {
		t.Fatalf("GetUserByID: %v", err)
	}
	if p.Email != "ada@example.com" || p.Name != "Ada" {
		t.Fatalf("unexpected principal %+v", p)
	}
	expectMet(t, mock)
}

func TestGetUserByIDMissingIsPrincipalNotFound(t *testing.T) {
	d, mock := newDirectoryWithMock(t)
	mock.ExpectQuery(`SELECT id, email, name FROM users`).WillReturnError(sql.ErrNoRows)

	if _, err := d.GetUserByID(context.Background(), userID); !errors.Is(err, goSession.ErrPrincipalNotFound) {
		t.Fatalf("expected ErrPrincipalNotFound, got %v", err)
	}
	if _, err := d.GetUserByID(context.Background(), "not-a-uuid"); !errors.Is(err, goSession.ErrPrincipalNotFound) {
		t.Fatalf("expected ErrPrincipalNotFound for malformed id, got %v", err)
	}
	expectMet(t, mock)
}

func TestGetUserByIDDatabaseErrorIsNotNotFound(t *testing.T) {
	d, mock := newDirectoryWithMock(t)
	mock.ExpectQuery(`SELECT id, email, name FROM users`).WillReturnError(errors.New("conn reset"))

	_, err := d.GetUserByID(context.Background(), userID)
	if err == nil || errors.Is(err, goSession.ErrPrincipalNotFound) {
		t.Fatalf("expected a transient error, got %v", err)
	}
}

func TestTouchLastSeen(t *testing.T) {
	d, mock := newDirectoryWithMock(t)
	mock.ExpectExec(`UPDATE users SET last_seen_at = \$2 WHERE id = \$1`).
		WithArgs(userID, d.now()).
		WillReturnResult(sqlmock.NewResult(0, 1))

	if err := d.TouchLastSeen(context.Background(), userID); err != nil {
		t.Fatalf("TouchLastSeen: %v", err)
	}
	expectMet(t, mock)
}

func TestRegisterNormalizesAndDetectsDuplicates(t *testing.T) {
	d, mock := newDirectoryWithMock(t)
	mock.ExpectExec(`INSERT INTO users`).
		WithArgs(sqlmock.AnyArg(), "ada@example.com", "Ada", sqlmock.AnyArg(), d.now()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`INSERT INTO users`).
		WillReturnResult(sqlmock.NewResult(0, 0))

	p, err := d.Register(context.Background(), "  Ada@Example.com ", " Ada ", "correct horse battery")
	if err != nil {
		t.Fatalf("Register: %v", err)
	}
	if p.ID == "" || p.Email != "ada@example.com" {
		t.Fatalf("unexpected principal %+v", p)
	}
	if _, err := d.Register(context.Background(), "ada@example.com", "Ada", "correct horse battery"); !errors.Is(err, ErrEmailTaken) {
		t.Fatalf("expected ErrEmailTaken, got %v", err)
	}
	expectMet(t, mock)
}

func TestAuthenticate(t *testing.T) {
	d, mock := newDirectoryWithMock(t)
	hash, err := d.hasher.Hash("correct horse battery")
	if err != nil {
		t.Fatalf("Hash: %v", err)
	}
	cols := []string{"id", "email", "name", "password_hash"}

	mock.ExpectQuery(`SELECT id, email, name, password_hash FROM users WHERE email = \$1`).
		WithArgs("ada@example.com").
		WillReturnRows(sqlmock.NewRows(cols).AddRow(userID, "ada@example.com", "Ada", hash))
	mock.ExpectQuery(`SELECT id, email, name, password_hash FROM users`).
		WillReturnRows(sqlmock.NewRows(cols).AddRow(userID, "ada@example.com", "Ada", hash))
	mock.ExpectQuery(`SELECT id, email, name, password_hash FROM users`).
		WillReturnError(sql.ErrNoRows)
	mock.ExpectQuery(`SELECT id, email, name, password_hash FROM users`).
		WillReturnRows(sqlmock.NewRows(cols).AddRow(userID, "sso@example.com", "Sso", nil))

	ctx := context.Background()
	if p, err := d.Authenticate(ctx, "Ada@example.com", "correct horse battery"); err != nil || p.ID != userID {
		t.Fatalf("Authenticate = %+v, %v", p, err)
	}
	if _, err := d.Authenticate(ctx, "ada@example.com", "wrong horse battery"); !errors.Is(err, ErrBadCredentials) {
		t.Fatalf("wrong password: expected ErrBadCredentials, got %v", err)
	}
	if _, err := d.Authenticate(ctx, "nobody@example.com", "correct horse battery"); !errors.Is(err, ErrBadCredentials) {
		t.Fatalf("unknown email: expected ErrBadCredentials, got %v", err)
	}
	if _, err := d.Authenticate(ctx, "sso@example.com", "correct horse battery"); !errors.Is(err, ErrBadCredentials) {
		t.Fatalf("sso-only account: expected ErrBadCredentials, got %v", err)
	}
	expectMet(t, mock)
}

func TestLinkIdentityExisting(t *testing.T) {
	d, mock := newDirectoryWithMock(t)
	mock.ExpectBegin()
	mock.ExpectQuery(`FROM user_identities i JOIN users u`).
		WithArgs("github", "42").
		WillReturnRows(sqlmock.NewRows([]string{"id", "email", "name"}).AddRow(userID, "ada@example.com", "Ada"))
	mock.ExpectCommit()

	p, err := d.LinkIdentity(context.Background(), "github", sso.Identity{ID: "42", Email: "ada@example.com"})
	if err != nil || p.ID != userID {
		t.Fatalf("LinkIdentity = %+v, %v", p, err)
	}
	expectMet(t, mock)
}

func TestLinkIdentityCreatesUser(t *testing.T) {
	d, mock := newDirectoryWithMock(t)
	mock.ExpectBegin()
	mock.ExpectQuery(`FROM user_identities i JOIN users u`).WillReturnError(sql.ErrNoRows)
	mock.ExpectQuery(`SELECT id, email, name FROM users WHERE email = \$1`).
		WithArgs("new@example.com").
		WillReturnError(sql.ErrNoRows)
	mock.ExpectExec(`INSERT INTO users \(id, email, name, created_at\)`).
		WithArgs(sqlmock.AnyArg(), "new@example.com", "New", d.now()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`INSERT INTO user_identities`).
		WithArgs("github", "7", sqlmock.AnyArg(), d.now()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	p, err := d.LinkIdentity(context.Background(), "github", sso.Identity{ID: "7", Email: "New@example.com", Name: "New", EmailVerified: true})
	if err != nil {
		t.Fatalf("LinkIdentity: %v", err)
	}
	if p.ID == "" || p.Email != "new@example.com" {
		t.Fatalf("unexpected principal %+v", p)
	}
	expectMet(t, mock)
}

func TestLinkIdentityRollsBackOnFailure(t *testing.T) {
	d, mock := newDirectoryWithMock(t)
	mock.ExpectBegin()
	mock.ExpectQuery(`FROM user_identities i JOIN users u`).WillReturnError(sql.ErrNoRows)
	mock.ExpectQuery(`SELECT id, email, name FROM users WHERE email`).
		WillReturnRows(sqlmock.NewRows([]string{"id", "email", "name"}).AddRow(userID, "ada@example.com", "Ada"))
	mock.ExpectExec(`INSERT INTO user_identities`).WillReturnError(errors.New("db down"))
	mock.ExpectRollback()

	if _, err := d.LinkIdentity(context.Background(), "github", sso.Identity{ID: "9", Email: "ada@example.com", EmailVerified: true}); err == nil {
		t.Fatal("expected link failure")
	}
	expectMet(t, mock)
}

func TestLinkIdentityRejectsUnlinkableEmail(t *testing.T) {
	cases := []struct {
		name string
		id   sso.Identity
		want error
	}{
		{name: "empty email", id: sso.Identity{ID: "5", Email: " ", EmailVerified: true}, want: sso.ErrIncompleteIdentity},
		{name: "unverified email", id: sso.Identity{ID: "5", Email: "ada@example.com"}, want: ErrUnverifiedEmail},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			d, mock := newDirectoryWithMock(t)
			mock.ExpectBegin()
			mock.ExpectQuery(`FROM user_identities i JOIN users u`).
				WithArgs("github", "5").
				WillReturnError(sql.ErrNoRows)
			// No email lookup or insert may follow.
			mock.ExpectRollback()

			_, err := d.LinkIdentity(context.Background(), "github", tc.id)
			if !errors.Is(err, tc.want) {
				t.Fatalf("expected %v, got %v", tc.want, err)
			}
			if !errors.Is(err, goSession.ErrBadCredentials) {
				t.Fatalf("expected a credential error, got %v", err)
			}
			expectMet(t, mock)
		})
	}
}

func TestLinkIdentityKnownSubjectSkipsEmailCheck(t *testing.T) {
	d, mock := newDirectoryWithMock(t)
	mock.ExpectBegin()
	mock.ExpectQuery(`FROM user_identities i JOIN users u`).
		WithArgs("github", "42").
		WillReturnRows(sqlmock.NewRows([]string{"id", "email", "name"}).AddRow(userID, "ada@example.com", "Ada"))
	mock.ExpectCommit()

	p, err := d.LinkIdentity(context.Background(), "github", sso.Identity{ID: "42", Email: "ada@example.com"})
	if err != nil || p.ID != userID {
		t.Fatalf("LinkIdentity = %+v, %v", p, err)
	}
	expectMet(t, mock)
}
