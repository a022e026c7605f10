package sqlxrepos

import (
	"context"
	"database/sql"

	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"

	"github.com/trezcool/escola/core/access"
)

type accessRepository struct {
	db *sqlx.DB
}

func NewAccessRepository(db *sqlx.DB) access.Repository {
	return &accessRepository{db: db}
}

func (repo *accessRepository) SeedPermissions(ctx context.Context, perms []access.Permission) error {
	q := `INSERT INTO permission (code, name) VALUES ($1, $2)
	ON CONFLICT (code) DO UPDATE SET name = EXCLUDED.name`
	for _, p := range perms {
		if _, err := repo.db.ExecContext(ctx, q, p.Code, p.Name); err != nil {
			return errors.Wrapf(err, "seeding permission %s", p.Code)
		}
	}
	return nil
}

func (repo *accessRepository) QueryPermissions(ctx context.Context) ([]access.Permission, error) {
	perms := make([]access.Permission, 0)
	if err := repo.db.SelectContext(ctx, &perms, "SELECT id, code, name FROM permission ORDER BY id"); err != nil {
		return nil, errors.Wrap(err, "selecting permissions")
	}
	return perms, nil
}

func (repo *accessRepository) HasGrant(ctx context.Context, accountID int64, code access.Code) (bool, error) {
	var found bool
	q := `SELECT EXISTS (
		SELECT 1 FROM account_grant g JOIN permission p ON p.id = g.permission_id
		WHERE g.account_id = $1 AND p.code = $2
	)`
	if err := repo.db.GetContext(ctx, &found, q, accountID, code); err != nil {
		return false, errors.Wrap(err, "checking grant")
	}
	return found, nil
}

func (repo *accessRepository) QueryGrantCodes(ctx context.Context, accountID int64) ([]access.Code, error) {
	codes := make([]access.Code, 0)
	q := `SELECT p.code FROM account_grant g JOIN permission p ON p.id = g.permission_id
	WHERE g.account_id = $1 ORDER BY p.code`
	if err := repo.db.SelectContext(ctx, &codes, q, accountID); err != nil {
		return nil, errors.Wrap(err, "selecting grants")
	}
	return codes, nil
}

func (repo *accessRepository) QueryAllGrants(ctx context.Context) (map[int64][]access.Code, error) {
	var rows []struct {
		AccountID int64       `db:"account_id"`
		Code      access.Code `db:"code"`
	}
	q := `SELECT g.account_id, p.code FROM account_grant g JOIN permission p ON p.id = g.permission_id
	ORDER BY g.account_id, p.code`
	if err := repo.db.SelectContext(ctx, &rows, q); err != nil {
		return nil, errors.Wrap(err, "selecting grants")
	}
	all := make(map[int64][]access.Code)
	for _, r := range rows {
		all[r.AccountID] = append(all[r.AccountID], r.Code)
	}
	return all, nil
}

// ReplaceGrants applies the whole diff in one transaction.
func (repo *accessRepository) ReplaceGrants(ctx context.Context, accountID int64, add, remove []access.Code) (err error) {
	tx, err := repo.db.BeginTxx(ctx, nil)
	if err != nil {
		return errors.Wrap(err, "beginning transaction")
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	if len(remove) > 0 {
		q, args, err := sqlx.In(`DELETE FROM account_grant WHERE account_id = ?
		AND permission_id IN (SELECT id FROM permission WHERE code IN (?))`, accountID, remove)
		if err != nil {
			return errors.Wrap(err, "building revoke query")
		}
		if _, err = tx.ExecContext(ctx, tx.Rebind(q), args...); err != nil {
			return errors.Wrap(err, "revoking grants")
		}
	}

	for _, code := range add {
		var res sql.Result
		res, err = tx.ExecContext(ctx, `INSERT INTO account_grant (account_id, permission_id)
		SELECT $1, id FROM permission WHERE code = $2
		ON CONFLICT DO NOTHING`, accountID, code)
		if err != nil {
			if pgCode(err) == foreignKeyViolation {
				err = errors.Wrap(err, "account does not exist")
			}
			return errors.Wrapf(err, "granting %s", code)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			var known bool
			if err = tx.GetContext(ctx, &known, "SELECT EXISTS (SELECT 1 FROM permission WHERE code = $1)", code); err != nil {
				return errors.Wrap(err, "checking permission")
			}
			if !known {
				err = errors.Wrapf(access.ErrUnknownCode, "granting %s", code)
				return err
			}
		}
	}

	if err = tx.Commit(); err != nil {
		return errors.Wrap(err, "committing grants")
	}
	return nil
}
