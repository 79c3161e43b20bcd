// Package repository persists linked Facebook accounts.
package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"photobridge_backend/platform/apperr"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

const (
	opUpsert              = "accounts.repository.upsert"
	opGetByUserID         = "accounts.repository.get_by_user_id"
	opListByGraphUserID   = "accounts.repository.list_by_graph_user_id"
	opDelete              = "accounts.repository.delete"
	opDeleteByGraphUserID = "accounts.repository.delete_by_graph_user_id"

	errAccountNotFound = "no facebook account linked"
)

// LinkedAccount is one user's connection to a Facebook profile. The
// access token is stored encrypted; decryption happens in the service.
type LinkedAccount struct {
	ID             uuid.UUID
	UserID         uuid.UUID
	GraphUserID    string
	DisplayName    string
	PictureURL     *string
	EncryptedToken string
	GrantedRead    bool
	GrantedWrite   bool
	LinkedAt       time.Time
	UpdatedAt      time.Time
}

// UpsertParams creates or replaces a user's linked account.
type UpsertParams struct {
	UserID         uuid.UUID
	GraphUserID    string
	DisplayName    string
	PictureURL     *string
	EncryptedToken string
	GrantedRead    bool
	GrantedWrite   bool
}

type Repository struct {
	pool *pgxpool.Pool
}

func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

const accountColumns = `id, user_id, graph_user_id, display_name, picture_url, encrypted_token, granted_read, granted_write, linked_at, updated_at`

// Upsert inserts the linked account, replacing any previous link the
// user had. Each user has at most one linked account.
func (r *Repository) Upsert(ctx context.Context, p UpsertParams) (LinkedAccount, error) {
	if p.UserID == uuid.Nil {
		return LinkedAccount{}, apperr.Validation("userId is required").WithOp(opUpsert)
	}
	if p.GraphUserID == "" || p.EncryptedToken == "" {
		return LinkedAccount{}, apperr.Validation("graph user id and token are required").WithOp(opUpsert)
	}

	var account LinkedAccount
	err := r.pool.QueryRow(ctx, `
		INSERT INTO linked_accounts
		(user_id, graph_user_id, display_name, picture_url, encrypted_token, granted_read, granted_write)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (user_id) DO UPDATE SET
			graph_user_id = EXCLUDED.graph_user_id,
			display_name = EXCLUDED.display_name,
			picture_url = EXCLUDED.picture_url,
			encrypted_token = EXCLUDED.encrypted_token,
			granted_read = EXCLUDED.granted_read,
			granted_write = EXCLUDED.granted_write,
			updated_at = now()
		RETURNING `+accountColumns+`
	`, p.UserID, p.GraphUserID, p.DisplayName, p.PictureURL, p.EncryptedToken, p.GrantedRead, p.GrantedWrite).Scan(
		&account.ID, &account.UserID, &account.GraphUserID, &account.DisplayName, &account.PictureURL,
		&account.EncryptedToken, &account.GrantedRead, &account.GrantedWrite, &account.LinkedAt, &account.UpdatedAt,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23503" {
			return LinkedAccount{}, apperr.Validation("invalid userId").WithOp(opUpsert)
		}
		return LinkedAccount{}, apperr.Internal(fmt.Sprintf("upsert linked account failed: %v", err)).WithOp(opUpsert)
	}

	return account, nil
}

// GetByUserID returns the user's linked account.
func (r *Repository) GetByUserID(ctx context.Context, userID uuid.UUID) (LinkedAccount, error) {
	if userID == uuid.Nil {
		return LinkedAccount{}, apperr.Validation("userId is required").WithOp(opGetByUserID)
	}

	var account LinkedAccount
	err := r.pool.QueryRow(ctx, `
		SELECT `+accountColumns+`
		FROM linked_accounts
		WHERE user_id = $1
	`, userID).Scan(
		&account.ID, &account.UserID, &account.GraphUserID, &account.DisplayName, &account.PictureURL,
		&account.EncryptedToken, &account.GrantedRead, &account.GrantedWrite, &account.LinkedAt, &account.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return LinkedAccount{}, apperr.NotFound(errAccountNotFound).WithOp(opGetByUserID)
		}
		return LinkedAccount{}, apperr.Internal(fmt.Sprintf("get linked account failed: %v", err)).WithOp(opGetByUserID)
	}

	return account, nil
}

// ListByGraphUserID returns every link to the given Facebook profile.
// Used by the deauthorization callback, which identifies users by the
// Graph-side ID only.
func (r *Repository) ListByGraphUserID(ctx context.Context, graphUserID string) ([]LinkedAccount, error) {
	if graphUserID == "" {
		return nil, apperr.Validation("graph user id is required").WithOp(opListByGraphUserID)
	}

	rows, err := r.pool.Query(ctx, `
		SELECT `+accountColumns+`
		FROM linked_accounts
		WHERE graph_user_id = $1
	`, graphUserID)
	if err != nil {
		return nil, apperr.Internal(fmt.Sprintf("list linked accounts failed: %v", err)).WithOp(opListByGraphUserID)
	}
	defer rows.Close()

	accounts := make([]LinkedAccount, 0, 1)
	for rows.Next() {
		var account LinkedAccount
		if scanErr := rows.Scan(
			&account.ID, &account.UserID, &account.GraphUserID, &account.DisplayName, &account.PictureURL,
			&account.EncryptedToken, &account.GrantedRead, &account.GrantedWrite, &account.LinkedAt, &account.UpdatedAt,
		); scanErr != nil {
			return nil, apperr.Internal(fmt.Sprintf("scan linked account failed: %v", scanErr)).WithOp(opListByGraphUserID)
		}
		accounts = append(accounts, account)
	}
	if rowsErr := rows.Err(); rowsErr != nil {
		return nil, apperr.Internal(fmt.Sprintf("iterate linked accounts failed: %v", rowsErr)).WithOp(opListByGraphUserID)
	}

	return accounts, nil
}

// Delete removes the user's linked account.
func (r *Repository) Delete(ctx context.Context, userID uuid.UUID) error {
	if userID == uuid.Nil {
		return apperr.Validation("userId is required").WithOp(opDelete)
	}

	tag, err := r.pool.Exec(ctx, `DELETE FROM linked_accounts WHERE user_id = $1`, userID)
	if err != nil {
		return apperr.Internal(fmt.Sprintf("delete linked account failed: %v", err)).WithOp(opDelete)
	}
	if tag.RowsAffected() == 0 {
		return apperr.NotFound(errAccountNotFound).WithOp(opDelete)
	}

	return nil
}

// DeleteByGraphUserID removes every link to the given Facebook profile
// and returns how many were removed.
func (r *Repository) DeleteByGraphUserID(ctx context.Context, graphUserID string) (int64, error) {
	if graphUserID == "" {
		return 0, apperr.Validation("graph user id is required").WithOp(opDeleteByGraphUserID)
	}

	tag, err := r.pool.Exec(ctx, `DELETE FROM linked_accounts WHERE graph_user_id = $1`, graphUserID)
	if err != nil {
		return 0, apperr.Internal(fmt.Sprintf("delete linked accounts failed: %v", err)).WithOp(opDeleteByGraphUserID)
	}

	return tag.RowsAffected(), nil
}
