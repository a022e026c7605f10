package sqlxrepos

import (
	"context"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"

	"github.com/trezcool/escola/core/presence"
)

type sessionRepository struct {
	db *sqlx.DB
}

func NewSessionRepository(db *sqlx.DB) presence.Repository {
	return &sessionRepository{db: db}
}

func (repo *sessionRepository) CreateSession(ctx context.Context, s presence.Session) (presence.Session, error) {
	q := `INSERT INTO presence_session (account_id, token, created_at, last_seen, is_active)
	VALUES ($1, $2, $3, $4, $5) RETURNING id`
	err := repo.db.GetContext(ctx, &s.ID, q, s.AccountID, s.Token, s.CreatedAt, s.LastSeen, s.IsActive)
	if err != nil {
		if isUniqueViolation(err) {
			return presence.Session{}, presence.ErrTokenExists
		}
		return presence.Session{}, errors.Wrap(err, "inserting session")
	}
	return s, nil
}

func (repo *sessionRepository) GetSessionByToken(ctx context.Context, token string) (presence.Session, error) {
	var s presence.Session
	q := `SELECT id, account_id, token, created_at, last_seen, is_active FROM presence_session WHERE token = $1`
	if err := repo.db.GetContext(ctx, &s, q, token); err != nil {
		if isNoRows(err) {
			return presence.Session{}, presence.ErrNotFound
		}
		return presence.Session{}, errors.Wrap(err, "selecting session")
	}
	return s, nil
}

func (repo *sessionRepository) TouchSession(ctx context.Context, token string, at time.Time) error {
	res, err := repo.db.ExecContext(ctx,
		"UPDATE presence_session SET last_seen = $2 WHERE token = $1 AND is_active", token, at)
	if err != nil {
		return errors.Wrap(err, "touching session")
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return presence.ErrNotFound
	}
	return nil
}

func (repo *sessionRepository) DeactivateSession(ctx context.Context, token string, accountID int64) error {
	res, err := repo.db.ExecContext(ctx,
		"UPDATE presence_session SET is_active = FALSE WHERE token = $1 AND account_id = $2", token, accountID)
	if err != nil {
		return errors.Wrap(err, "deactivating session")
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return presence.ErrNotFound
	}
	return nil
}

func (repo *sessionRepository) DeactivateAccountSessions(ctx context.Context, accountID int64) error {
	_, err := repo.db.ExecContext(ctx,
		"UPDATE presence_session SET is_active = FALSE WHERE account_id = $1 AND is_active", accountID)
	return errors.Wrap(err, "deactivating account sessions")
}

func (repo *sessionRepository) PruneSessions(ctx context.Context, accountID int64, before time.Time) error {
	_, err := repo.db.ExecContext(ctx,
		"DELETE FROM presence_session WHERE account_id = $1 AND NOT is_active AND last_seen < $2", accountID, before)
	return errors.Wrap(err, "pruning sessions")
}

func (repo *sessionRepository) SummarizeSessions(ctx context.Context, accountIDs ...int64) ([]presence.Summary, error) {
	summaries := make([]presence.Summary, 0)
	if len(accountIDs) == 0 {
		return summaries, nil
	}
	q, args, err := sqlx.In(`SELECT account_id, max(last_seen) AS last_seen,
		max(last_seen) FILTER (WHERE is_active) AS last_active
	FROM presence_session WHERE account_id IN (?) GROUP BY account_id`, accountIDs)
	if err != nil {
		return nil, errors.Wrap(err, "building sessions query")
	}
	if err = repo.db.SelectContext(ctx, &summaries, repo.db.Rebind(q), args...); err != nil {
		return nil, errors.Wrap(err, "summarizing sessions")
	}
	return summaries, nil
}
