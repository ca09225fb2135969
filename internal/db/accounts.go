package db

import (
	"context"
	"fmt"

	"github.com/inodev-web/alouaoui-school-sub001/internal/model"
)

const accountColumns = `id, uuid, role, email, password_hash, first_name, last_name, qr_token, created_at, updated_at`

func scanAccount(row interface{ Scan(...any) error }) (model.Account, error) {
	var account model.Account
	err := row.Scan(
		&account.ID,
		&account.UUID,
		&account.Role,
		&account.Email,
		&account.PasswordHash,
		&account.FirstName,
		&account.LastName,
		&account.QRToken,
		&account.CreatedAt,
		&account.UpdatedAt,
	)
	return account, notFound(err)
}

func (s *Store) GetAccountByEmail(ctx context.Context, email string) (model.Account, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT `+accountColumns+`
		FROM accounts
		WHERE email = $1
	`, email)
	return scanAccount(row)
}

func (s *Store) GetAccountByID(ctx context.Context, id int64) (model.Account, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT `+accountColumns+`
		FROM accounts
		WHERE id = $1
	`, id)
	return scanAccount(row)
}

func (s *Store) GetAccountByUUID(ctx context.Context, id string) (model.Account, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT `+accountColumns+`
		FROM accounts
		WHERE uuid = $1
	`, id)
	return scanAccount(row)
}

func (s *Store) GetAccountByQRToken(ctx context.Context, token string) (model.Account, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT `+accountColumns+`
		FROM accounts
		WHERE qr_token = $1
	`, token)
	return scanAccount(row)
}

// ResolveAccount is the single lookup behind AccountRef; exactly one of the
// ref fields must be set.
func (s *Store) ResolveAccount(ctx context.Context, ref model.AccountRef) (model.Account, error) {
	if err := ref.Validate(); err != nil {
		return model.Account{}, err
	}
	switch {
	case ref.ID != nil:
		return s.GetAccountByID(ctx, *ref.ID)
	case ref.UUID != nil:
		return s.GetAccountByUUID(ctx, ref.UUID.String())
	default:
		return s.GetAccountByQRToken(ctx, *ref.QRToken)
	}
}

func (s *Store) CreateAccount(ctx context.Context, account model.Account) (int64, error) {
	var id int64
	err := s.pool.QueryRow(ctx, `
		INSERT INTO accounts (uuid, role, email, password_hash, first_name, last_name, qr_token)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id
	`, account.UUID, account.Role, account.Email, account.PasswordHash,
		account.FirstName, account.LastName, account.QRToken).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("create account: %w", err)
	}
	return id, nil
}
