package sqlxrepos

import (
	"context"

	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"

	"github.com/trezcool/escola/core/account"
)

const accountColumns = `id, name, email, password_hash, role, is_active, student_id, telegram_chat_id,
	created_at, updated_at, last_login`

type accountRepository struct {
	db *sqlx.DB
}

func NewAccountRepository(db *sqlx.DB) account.Repository {
	return &accountRepository{db: db}
}

func (repo *accountRepository) CreateAccount(ctx context.Context, acc account.Account) (account.Account, error) {
	q := `INSERT INTO account (name, email, password_hash, role, is_active, student_id, telegram_chat_id,
		created_at, updated_at, last_login)
	VALUES (:name, :email, :password_hash, :role, :is_active, :student_id, :telegram_chat_id,
		:created_at, :updated_at, :last_login)
	RETURNING id`
	rows, err := repo.db.NamedQueryContext(ctx, q, acc)
	if err != nil {
		if isUniqueViolation(err) {
			return account.Account{}, account.ErrEmailExists
		}
		return account.Account{}, errors.Wrap(err, "inserting account")
	}
	defer func() { _ = rows.Close() }()
	if rows.Next() {
		if err = rows.Scan(&acc.ID); err != nil {
			return account.Account{}, errors.Wrap(err, "scanning account id")
		}
	}
	return acc, rows.Err()
}

func (repo *accountRepository) UpdateAccount(ctx context.Context, acc account.Account) (account.Account, error) {
	q := `UPDATE account SET name = :name, email = :email, password_hash = :password_hash, role = :role,
		is_active = :is_active, student_id = :student_id, telegram_chat_id = :telegram_chat_id,
		updated_at = :updated_at, last_login = :last_login
	WHERE id = :id`
	res, err := repo.db.NamedExecContext(ctx, q, acc)
	if err != nil {
		if isUniqueViolation(err) {
			return account.Account{}, account.ErrEmailExists
		}
		return account.Account{}, errors.Wrap(err, "updating account")
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return account.Account{}, account.ErrNotFound
	}
	return acc, nil
}

func (repo *accountRepository) get(ctx context.Context, where string, arg interface{}) (account.Account, error) {
	var acc account.Account
	if err := repo.db.GetContext(ctx, &acc, "SELECT "+accountColumns+" FROM account WHERE "+where, arg); err != nil {
		if isNoRows(err) {
			return account.Account{}, account.ErrNotFound
		}
		return account.Account{}, errors.Wrap(err, "selecting account")
	}
	return acc, nil
}

func (repo *accountRepository) GetAccountByID(ctx context.Context, id int64) (account.Account, error) {
	return repo.get(ctx, "id = $1", id)
}

func (repo *accountRepository) GetAccountByEmail(ctx context.Context, email string) (account.Account, error) {
	return repo.get(ctx, "email = $1", email)
}

func (repo *accountRepository) EmailExists(ctx context.Context, email string, excludeID int64) (bool, error) {
	var found bool
	q := `SELECT EXISTS (SELECT 1 FROM account WHERE lower(email) = lower($1) AND id <> $2)`
	if err := repo.db.GetContext(ctx, &found, q, email, excludeID); err != nil {
		return false, errors.Wrap(err, "checking email")
	}
	return found, nil
}

func (repo *accountRepository) QueryAccounts(ctx context.Context, filter account.QueryFilter) ([]account.Account, error) {
	q := "SELECT " + accountColumns + " FROM account WHERE TRUE"
	var args []interface{}
	if filter.Search != "" {
		args = append(args, contains(filter.Search))
		q += " AND (name ILIKE $1 OR email ILIKE $1)"
	}
	if filter.Role != "" {
		args = append(args, filter.Role)
		q += " AND role = $" + itoa(len(args))
	}
	q += " ORDER BY lower(name), id"

	accs := make([]account.Account, 0)
	if err := repo.db.SelectContext(ctx, &accs, q, args...); err != nil {
		return nil, errors.Wrap(err, "selecting accounts")
	}
	return accs, nil
}

func (repo *accountRepository) QueryAccountsByStudent(ctx context.Context, studentID int64) ([]account.Account, error) {
	accs := make([]account.Account, 0)
	q := "SELECT " + accountColumns + " FROM account WHERE student_id = $1 ORDER BY lower(name), id"
	if err := repo.db.SelectContext(ctx, &accs, q, studentID); err != nil {
		return nil, errors.Wrap(err, "selecting accounts")
	}
	return accs, nil
}

func (repo *accountRepository) CountAccounts(ctx context.Context) (int, error) {
	var n int
	if err := repo.db.GetContext(ctx, &n, "SELECT count(*) FROM account"); err != nil {
		return 0, errors.Wrap(err, "counting accounts")
	}
	return n, nil
}

// DeleteAccount relies on ON DELETE CASCADE for grants and sessions.
func (repo *accountRepository) DeleteAccount(ctx context.Context, id int64) error {
	if _, err := repo.db.ExecContext(ctx, "DELETE FROM account WHERE id = $1", id); err != nil {
		return errors.Wrap(err, "deleting account")
	}
	return nil
}
