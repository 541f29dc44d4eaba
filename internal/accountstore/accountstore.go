// Package accountstore persists accounts in sqlite. It is the final
// authority on email and display-name uniqueness via unique indexes;
// constraint violations are mapped to the model's conflict errors.
package accountstore

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"path"
	"strings"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/sqlite3"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/jmoiron/sqlx"
	"github.com/mattn/go-sqlite3"

	"uk.co.calderbeck.roster/internal/boot"
	"uk.co.calderbeck.roster/internal/model"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

const databaseName = "roster.db"

type accountstore struct {
	db *sqlx.DB
}

func New(config *boot.Config) (*accountstore, error) {
	dbName := path.Join(config.DataDirectory(), databaseName)

	if err := migrateUp(dbName); err != nil {
		return nil, fmt.Errorf("migrating database: %w", err)
	}

	db, err := sqlx.Connect("sqlite3", "file:"+dbName)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	return &accountstore{db}, nil
}

func migrateUp(dbName string) error {
	source, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("creating migration source: %w", err)
	}

	m, err := migrate.NewWithSourceInstance("iofs", source, "sqlite3://"+dbName)
	if err != nil {
		return fmt.Errorf("creating migrator: %w", err)
	}
	defer m.Close()

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("applying migrations: %w", err)
	}
	return nil
}

func (d *accountstore) Close() error {
	return d.db.Close()
}

func (d *accountstore) Create(ctx context.Context, account *model.Account) error {
	res, err := d.db.NamedExecContext(ctx, `insert into account
		(ID, PublicID, CreatedAt, UpdatedAt, DisplayName, PendingEmail, ConfirmedEmail,
		EmailConfirmationToken, EmailConfirmationRequestedAt, EmailConfirmationCompletedAt,
		SecurityOperationPerformedAt, PasswordHash, PhoneNumber)
		values(:ID, :PublicID, :CreatedAt, :UpdatedAt, :DisplayName, :PendingEmail, :ConfirmedEmail,
		:EmailConfirmationToken, :EmailConfirmationRequestedAt, :EmailConfirmationCompletedAt,
		:SecurityOperationPerformedAt, :PasswordHash, :PhoneNumber)`, account)

	if err != nil {
		return fmt.Errorf("inserting account: %w", translateConstraint(err))
	}
	if rows, err := res.RowsAffected(); rows != 1 {
		return fmt.Errorf("expected 1 row to be affected, got %d", rows)
	} else if err != nil {
		return fmt.Errorf("getting rows affected: %w", err)
	}

	return nil
}

func (d *accountstore) Update(ctx context.Context, account *model.Account) error {
	res, err := d.db.NamedExecContext(ctx, `update account set
		UpdatedAt = :UpdatedAt,
		DisplayName = :DisplayName,
		PendingEmail = :PendingEmail,
		ConfirmedEmail = :ConfirmedEmail,
		EmailConfirmationToken = :EmailConfirmationToken,
		EmailConfirmationRequestedAt = :EmailConfirmationRequestedAt,
		EmailConfirmationCompletedAt = :EmailConfirmationCompletedAt,
		SecurityOperationPerformedAt = :SecurityOperationPerformedAt,
		PasswordHash = :PasswordHash,
		PhoneNumber = :PhoneNumber
		where ID = :ID`, account)

	if err != nil {
		return fmt.Errorf("updating account: %w", translateConstraint(err))
	}
	if rows, err := res.RowsAffected(); rows != 1 {
		return model.ErrorAccountNotFound
	} else if err != nil {
		return fmt.Errorf("getting rows affected: %w", err)
	}

	return nil
}

func (d *accountstore) FindByPublicID(ctx context.Context, publicID string) (*model.Account, error) {
	return d.findOne(ctx, `select * from account where PublicID = ?`, publicID)
}

// FindByEmail matches against both the pending and the confirmed address, so
// a half-registered account still blocks re-use of its email.
func (d *accountstore) FindByEmail(ctx context.Context, email string) (*model.Account, error) {
	return d.findOne(ctx, `select * from account where PendingEmail = ? or ConfirmedEmail = ?`, email, email)
}

func (d *accountstore) FindByDisplayName(ctx context.Context, displayName string) (*model.Account, error) {
	return d.findOne(ctx, `select * from account where DisplayName = ?`, displayName)
}

func (d *accountstore) FindByConfirmationToken(ctx context.Context, token string) (*model.Account, error) {
	return d.findOne(ctx, `select * from account where EmailConfirmationToken = ?`, token)
}

func (d *accountstore) findOne(ctx context.Context, query string, args ...interface{}) (*model.Account, error) {
	account := &model.Account{}
	err := d.db.GetContext(ctx, account, query, args...)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, model.ErrorAccountNotFound
		}
		return nil, fmt.Errorf("fetching account: %w", err)
	}
	return account, nil
}

func translateConstraint(err error) error {
	var sqliteErr sqlite3.Error
	if !errors.As(err, &sqliteErr) || sqliteErr.ExtendedCode != sqlite3.ErrConstraintUnique {
		return err
	}
	if strings.Contains(sqliteErr.Error(), "DisplayName") {
		return model.ErrorDisplayNameAlreadyTaken
	}
	return model.ErrorEmailAlreadyRegistered
}
