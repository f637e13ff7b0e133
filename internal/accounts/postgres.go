package accounts

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

const uniqueViolation = "23505"

type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// PostgresRepository stores accounts in the accounts table.
type PostgresRepository struct {
	db querier
}

func NewPostgresRepository(pool *pgxpool.Pool) *PostgresRepository {
	if pool == nil {
		panic("accounts: pgx pool required")
	}
	return &PostgresRepository{db: pool}
}

func newPostgresRepositoryWithQuerier(q querier) *PostgresRepository {
	return &PostgresRepository{db: q}
}

func (r *PostgresRepository) Create(ctx context.Context, acct *Account) error {
	profile, err := json.Marshal(acct.Profile)
	if err != nil {
		return fmt.Errorf("accounts: marshal profile: %w", err)
	}
	query := `
		INSERT INTO accounts (id, portal, email, password_hash, first_name, last_name, phone, profile, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`
	_, err = r.db.Exec(ctx, query,
		acct.ID, acct.Portal, NormalizeEmail(acct.Email), acct.PasswordHash,
		acct.FirstName, acct.LastName, acct.Phone, profile, acct.CreatedAt,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return ErrEmailTaken
		}
		return fmt.Errorf("accounts: insert account: %w", err)
	}
	return nil
}

const selectAccount = `
	SELECT id, portal, email, password_hash, first_name, last_name, phone, profile, created_at
	FROM accounts
`

func (r *PostgresRepository) GetByEmail(ctx context.Context, portal, email string) (*Account, error) {
	row := r.db.QueryRow(ctx, selectAccount+`WHERE portal = $1 AND email = $2`, portal, NormalizeEmail(email))
	return scanAccount(row)
}

func (r *PostgresRepository) GetByID(ctx context.Context, id string) (*Account, error) {
	row := r.db.QueryRow(ctx, selectAccount+`WHERE id = $1`, id)
	return scanAccount(row)
}

func scanAccount(row pgx.Row) (*Account, error) {
	var acct Account
	var profile []byte
	err := row.Scan(&acct.ID, &acct.Portal, &acct.Email, &acct.PasswordHash,
		&acct.FirstName, &acct.LastName, &acct.Phone, &profile, &acct.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("accounts: scan account: %w", err)
	}
	if len(profile) > 0 {
		if err := json.Unmarshal(profile, &acct.Profile); err != nil {
			return nil, fmt.Errorf("accounts: decode profile: %w", err)
		}
	}
	return &acct, nil
}
