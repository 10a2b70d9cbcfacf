/**
 * @description
 * This file provides the PostgreSQL implementation of the `Repository`
 * interface. It contains the SQL for account and transaction persistence,
 * including the idempotent transaction upsert keyed on the provider's
 * external id and the set-to-value account updates that keep concurrent
 * webhook deliveries race-safe.
 *
 * @dependencies
 * - context, fmt, strings, time: Standard Go libraries.
 * - github.com/jackc/pgx/v5: The PostgreSQL driver for database operations.
 * - internal/domain: Contains the domain models used for data transfer.
 */

package store

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/trackit-official/sync-service/internal/domain"
)

// uniqueViolation is the PostgreSQL error code raised when an insert loses a
// unique-constraint race.
const uniqueViolation = "23505"

// PostgresRepository is a concrete implementation of the Repository interface for PostgreSQL.
type PostgresRepository struct {
	db *pgxpool.Pool
}

// NewPostgresRepository creates a new instance of PostgresRepository.
func NewPostgresRepository(db *pgxpool.Pool) *PostgresRepository {
	return &PostgresRepository{db: db}
}

const accountColumns = `id, user_id, external_id, account_name, account_number, bank_name,
	currency, balance, status, data_status, reauth_token, is_active, last_synced, created_at, updated_at`

func scanAccount(row pgx.Row) (*domain.Account, error) {
	var a domain.Account
	err := row.Scan(
		&a.ID, &a.UserID, &a.ExternalID, &a.AccountName, &a.AccountNumber, &a.BankName,
		&a.Currency, &a.Balance, &a.Status, &a.DataStatus, &a.ReauthToken, &a.IsActive,
		&a.LastSynced, &a.CreatedAt, &a.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrAccountNotFound
		}
		return nil, err
	}
	return &a, nil
}

// FindAccountByID retrieves an account by id, scoped to its owning user.
func (r *PostgresRepository) FindAccountByID(ctx context.Context, accountID, userID uuid.UUID) (*domain.Account, error) {
	query := fmt.Sprintf(`SELECT %s FROM bank_accounts WHERE id = $1 AND user_id = $2`, accountColumns)
	return scanAccount(r.db.QueryRow(ctx, query, accountID, userID))
}

// FindAccountByUserAndExternalID retrieves the non-unlinked account a user has
// for a given provider account id.
func (r *PostgresRepository) FindAccountByUserAndExternalID(ctx context.Context, userID uuid.UUID, externalID string) (*domain.Account, error) {
	query := fmt.Sprintf(`SELECT %s FROM bank_accounts WHERE user_id = $1 AND external_id = $2`, accountColumns)
	return scanAccount(r.db.QueryRow(ctx, query, userID, externalID))
}

// FindAccountByExternalID resolves the live account for a provider account id.
func (r *PostgresRepository) FindAccountByExternalID(ctx context.Context, externalID string) (*domain.Account, error) {
	query := fmt.Sprintf(`SELECT %s FROM bank_accounts WHERE external_id = $1 AND status <> 'UNLINKED'`, accountColumns)
	return scanAccount(r.db.QueryRow(ctx, query, externalID))
}

// CreateAccount inserts a new linked account row.
func (r *PostgresRepository) CreateAccount(ctx context.Context, account *domain.Account) error {
	query := `
		INSERT INTO bank_accounts (
			id, user_id, external_id, account_name, account_number, bank_name,
			currency, balance, status, data_status, reauth_token, is_active, last_synced
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
	`
	_, err := r.db.Exec(ctx, query,
		account.ID, account.UserID, account.ExternalID, account.AccountName,
		account.AccountNumber, account.BankName, account.Currency, account.Balance,
		account.Status, account.DataStatus, account.ReauthToken, account.IsActive,
		account.LastSynced,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return fmt.Errorf("%w: %s", ErrDuplicateAccount, pgErr.ConstraintName)
		}
		return err
	}
	return nil
}

// ListAccountsByUserID returns the user's active accounts ordered by bank name.
func (r *PostgresRepository) ListAccountsByUserID(ctx context.Context, userID uuid.UUID) ([]domain.Account, error) {
	query := fmt.Sprintf(`SELECT %s FROM bank_accounts WHERE user_id = $1 AND is_active = TRUE ORDER BY bank_name ASC`, accountColumns)
	rows, err := r.db.Query(ctx, query, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var accounts []domain.Account
	for rows.Next() {
		a, err := scanAccount(rows)
		if err != nil {
			return nil, err
		}
		accounts = append(accounts, *a)
	}
	return accounts, rows.Err()
}

// accountUpdateClauses turns params into SET clauses. Every mutation of an
// account's sync fields funnels through here so the set-to-value rule holds.
func accountUpdateClauses(params AccountUpdateParams, args []interface{}) ([]string, []interface{}) {
	var set []string
	add := func(column string, value interface{}) {
		args = append(args, value)
		set = append(set, fmt.Sprintf("%s = $%d", column, len(args)))
	}

	if params.Balance != nil {
		add("balance", *params.Balance)
	}
	if params.Status != nil {
		add("status", *params.Status)
	}
	if params.DataStatus != nil {
		add("data_status", *params.DataStatus)
	}
	if params.ClearReauthToken {
		set = append(set, "reauth_token = NULL")
	} else if params.ReauthToken != nil {
		add("reauth_token", *params.ReauthToken)
	}
	if params.LastSynced != nil {
		add("last_synced", *params.LastSynced)
	}
	set = append(set, "updated_at = NOW()")
	return set, args
}

// UpdateAccountByID applies params to a single account row.
func (r *PostgresRepository) UpdateAccountByID(ctx context.Context, accountID uuid.UUID, params AccountUpdateParams) error {
	args := []interface{}{accountID}
	set, args := accountUpdateClauses(params, args)
	query := fmt.Sprintf(`UPDATE bank_accounts SET %s WHERE id = $1`, strings.Join(set, ", "))
	tag, err := r.db.Exec(ctx, query, args...)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrAccountNotFound
	}
	return nil
}

// ApplyAccountEventByExternalID applies params to the live account carrying
// the external id. Unlinked rows are excluded at the SQL level so a stale or
// replayed event can never resurrect a retired account.
func (r *PostgresRepository) ApplyAccountEventByExternalID(ctx context.Context, externalID string, params AccountUpdateParams) (bool, error) {
	args := []interface{}{externalID}
	set, args := accountUpdateClauses(params, args)
	query := fmt.Sprintf(
		`UPDATE bank_accounts SET %s WHERE external_id = $1 AND status <> 'UNLINKED'`,
		strings.Join(set, ", "),
	)
	tag, err := r.db.Exec(ctx, query, args...)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

// MarkAccountUnlinkedByExternalID retires the linked account. The external id
// is cleared so the (user_id, external_id) uniqueness slot frees up for a
// future re-link, and tokens are dropped.
func (r *PostgresRepository) MarkAccountUnlinkedByExternalID(ctx context.Context, externalID string, now time.Time) (bool, error) {
	query := `
		UPDATE bank_accounts
		SET status = 'UNLINKED', external_id = NULL, reauth_token = NULL,
			data_status = 'UNLINKED', is_active = FALSE, last_synced = $2, updated_at = NOW()
		WHERE external_id = $1 AND status <> 'UNLINKED'
	`
	tag, err := r.db.Exec(ctx, query, externalID, now)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

// MarkAccountUnlinkedByID retires an account by its internal id.
func (r *PostgresRepository) MarkAccountUnlinkedByID(ctx context.Context, accountID uuid.UUID, now time.Time) error {
	query := `
		UPDATE bank_accounts
		SET status = 'UNLINKED', external_id = NULL, reauth_token = NULL,
			data_status = 'UNLINKED', is_active = FALSE, last_synced = $2, updated_at = NOW()
		WHERE id = $1
	`
	tag, err := r.db.Exec(ctx, query, accountID, now)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrAccountNotFound
	}
	return nil
}

// TouchAccountLastSynced stamps the account after a reconciled batch.
func (r *PostgresRepository) TouchAccountLastSynced(ctx context.Context, accountID uuid.UUID, now time.Time) error {
	_, err := r.db.Exec(ctx,
		`UPDATE bank_accounts SET last_synced = $2, updated_at = NOW() WHERE id = $1`,
		accountID, now,
	)
	return err
}

// UpsertTransaction inserts or corrects one imported transaction. The unique
// constraint on external_id makes creation exactly-once under concurrent
// deliveries; mutable fields are last-writer-wins. xmax = 0 distinguishes a
// fresh insert from a conflict update.
func (r *PostgresRepository) UpsertTransaction(ctx context.Context, tx *domain.Transaction) (bool, error) {
	query := `
		INSERT INTO transactions (
			id, user_id, account_id, external_id, amount, type, narration,
			category, balance_after, currency, occurred_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		ON CONFLICT (external_id) DO UPDATE SET
			amount = EXCLUDED.amount,
			type = EXCLUDED.type,
			narration = EXCLUDED.narration,
			category = EXCLUDED.category,
			balance_after = EXCLUDED.balance_after,
			currency = EXCLUDED.currency,
			occurred_at = EXCLUDED.occurred_at,
			updated_at = NOW()
		RETURNING (xmax = 0)
	`
	var created bool
	err := r.db.QueryRow(ctx, query,
		tx.ID, tx.UserID, tx.AccountID, tx.ExternalID, tx.Amount, tx.Type,
		tx.Narration, tx.Category, tx.BalanceAfter, tx.Currency, tx.OccurredAt,
	).Scan(&created)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			// Two writers raced the same external id between conflict check
			// and insert; the row exists, so this delivery created nothing.
			return false, nil
		}
		return false, err
	}
	return created, nil
}

// transactionFilterClauses builds the WHERE clauses shared by the listing,
// count and summary queries.
func transactionFilterClauses(filter domain.TransactionFilter) ([]string, []interface{}) {
	where := []string{"user_id = $1", "occurred_at >= $2", "occurred_at <= $3"}
	args := []interface{}{filter.UserID, filter.StartDate, filter.EndDate}

	add := func(clause string, value interface{}) {
		args = append(args, value)
		where = append(where, fmt.Sprintf(clause, len(args)))
	}
	if filter.AccountID != nil {
		add("account_id = $%d", *filter.AccountID)
	}
	if filter.Category != nil {
		add("category = $%d", *filter.Category)
	}
	if filter.Type != nil {
		add("type = $%d", *filter.Type)
	}
	return where, args
}

// ListTransactions returns one page of the user's transactions, newest first.
func (r *PostgresRepository) ListTransactions(ctx context.Context, filter domain.TransactionFilter) ([]domain.Transaction, error) {
	where, args := transactionFilterClauses(filter)
	args = append(args, filter.Limit, filter.Offset())
	query := fmt.Sprintf(`
		SELECT id, user_id, account_id, external_id, amount, type, narration,
			category, balance_after, currency, occurred_at, created_at, updated_at
		FROM transactions
		WHERE %s
		ORDER BY occurred_at DESC
		LIMIT $%d OFFSET $%d
	`, strings.Join(where, " AND "), len(args)-1, len(args))

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var txs []domain.Transaction
	for rows.Next() {
		var t domain.Transaction
		if err := rows.Scan(
			&t.ID, &t.UserID, &t.AccountID, &t.ExternalID, &t.Amount, &t.Type,
			&t.Narration, &t.Category, &t.BalanceAfter, &t.Currency, &t.OccurredAt,
			&t.CreatedAt, &t.UpdatedAt,
		); err != nil {
			return nil, err
		}
		txs = append(txs, t)
	}
	return txs, rows.Err()
}

// CountTransactions counts the rows matching the filter for pagination.
func (r *PostgresRepository) CountTransactions(ctx context.Context, filter domain.TransactionFilter) (int64, error) {
	where, args := transactionFilterClauses(filter)
	query := fmt.Sprintf(`SELECT COUNT(*) FROM transactions WHERE %s`, strings.Join(where, " AND "))
	var total int64
	if err := r.db.QueryRow(ctx, query, args...).Scan(&total); err != nil {
		return 0, err
	}
	return total, nil
}

// SummarizeTransactions aggregates income, expenses and the top expense
// categories for the filtered period.
func (r *PostgresRepository) SummarizeTransactions(ctx context.Context, filter domain.TransactionFilter) (*domain.TransactionSummary, error) {
	where, args := transactionFilterClauses(filter)
	whereSQL := strings.Join(where, " AND ")

	summary := &domain.TransactionSummary{}
	totalsQuery := fmt.Sprintf(`
		SELECT
			COALESCE(SUM(amount) FILTER (WHERE type = 'INCOME'), 0),
			COALESCE(SUM(amount) FILTER (WHERE type = 'EXPENSE'), 0)
		FROM transactions WHERE %s
	`, whereSQL)
	if err := r.db.QueryRow(ctx, totalsQuery, args...).Scan(&summary.TotalIncome, &summary.TotalExpenses); err != nil {
		return nil, err
	}
	summary.NetFlow = summary.TotalIncome - summary.TotalExpenses

	categoriesQuery := fmt.Sprintf(`
		SELECT category, SUM(amount) AS total
		FROM transactions
		WHERE %s AND type = 'EXPENSE' AND category IS NOT NULL
		GROUP BY category
		ORDER BY total DESC
		LIMIT 5
	`, whereSQL)
	rows, err := r.db.Query(ctx, categoriesQuery, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var ct domain.CategoryTotal
		if err := rows.Scan(&ct.Category, &ct.Amount); err != nil {
			return nil, err
		}
		summary.TopCategories = append(summary.TopCategories, ct)
	}
	return summary, rows.Err()
}
