// Package presence tracks when accounts were last seen, for online/offline display.
// Online status is derived on read; nothing expires sessions in the background.
package presence

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"
)

var (
	// errors
	ErrNotFound    = errors.New("session not found")
	ErrTokenExists = errors.New("session token already exists")
	// ErrUntracked is returned when refreshing a missing or inactive session.
	ErrUntracked = errors.New("untracked session")

	nowFunc = time.Now // mockable
)

const maxTokenAttempts = 5

type Session struct {
	ID        int64     `db:"id"`
	AccountID int64     `db:"account_id"`
	Token     string    `db:"token"`
	CreatedAt time.Time `db:"created_at"`
	LastSeen  time.Time `db:"last_seen"`
	IsActive  bool      `db:"is_active"`
}

// IsOnline is true for an active session seen no longer than `window` before `now`.
func (s Session) IsOnline(now time.Time, window time.Duration) bool {
	return s.IsActive && now.Sub(s.LastSeen) <= window
}

// Status summarises the sessions of one account.
type Status struct {
	Online   bool
	LastSeen time.Time
}

// Summary aggregates the sessions of one account.
type Summary struct {
	AccountID int64     `db:"account_id"`
	LastSeen  time.Time `db:"last_seen"`
	// LastActive is the most recent last_seen among its active sessions.
	LastActive null.Time `db:"last_active"`
}

type Repository interface {
	// CreateSession fails with ErrTokenExists when the token is taken.
	CreateSession(ctx context.Context, s Session) (Session, error)
	GetSessionByToken(ctx context.Context, token string) (Session, error)
	// TouchSession refreshes last_seen of the active session `token`, failing with ErrNotFound otherwise.
	TouchSession(ctx context.Context, token string, at time.Time) error
	DeactivateSession(ctx context.Context, token string, accountID int64) error
	DeactivateAccountSessions(ctx context.Context, accountID int64) error
	// PruneSessions deletes the inactive sessions of the account last seen before `before`.
	PruneSessions(ctx context.Context, accountID int64, before time.Time) error
	// SummarizeSessions returns one Summary per listed account that has sessions.
	SummarizeSessions(ctx context.Context, accountIDs ...int64) ([]Summary, error)
}

type Tracker struct {
	repo   Repository
	window time.Duration
}

func NewTracker(repo Repository, window time.Duration) *Tracker {
	return &Tracker{repo: repo, window: window}
}

// Start records a new active session for the account and returns it.
func (t *Tracker) Start(ctx context.Context, accountID int64) (Session, error) {
	now := nowFunc().UTC()
	base := uuid.NewString()
	token := base
	for attempt := 1; attempt <= maxTokenAttempts; attempt++ {
		s, err := t.repo.CreateSession(ctx, Session{
			AccountID: accountID,
			Token:     token,
			CreatedAt: now,
			LastSeen:  now,
			IsActive:  true,
		})
		if err == nil {
			if err = t.repo.PruneSessions(ctx, accountID, now.Add(-t.window)); err != nil {
				return Session{}, errors.Wrap(err, "pruning sessions")
			}
			return s, nil
		}
		if errors.Cause(err) != ErrTokenExists {
			return Session{}, errors.Wrap(err, "creating session")
		}
		token = base + "-" + uuid.NewString()[:8]
	}
	return Session{}, ErrTokenExists
}

// Touch refreshes the last-seen time of the session `token`.
func (t *Tracker) Touch(ctx context.Context, token string) error {
	if token == "" {
		return ErrUntracked
	}
	if err := t.repo.TouchSession(ctx, token, nowFunc().UTC()); err != nil {
		if errors.Cause(err) == ErrNotFound {
			return ErrUntracked
		}
		return errors.Wrap(err, "touching session")
	}
	return nil
}

// End marks the session inactive; a missing session is not an error.
func (t *Tracker) End(ctx context.Context, token string, accountID int64) error {
	if err := t.repo.DeactivateSession(ctx, token, accountID); err != nil && errors.Cause(err) != ErrNotFound {
		return errors.Wrap(err, "deactivating session")
	}
	return nil
}

// EndAll marks every session of the account inactive.
func (t *Tracker) EndAll(ctx context.Context, accountID int64) error {
	if err := t.repo.DeactivateAccountSessions(ctx, accountID); err != nil {
		return errors.Wrap(err, "deactivating sessions")
	}
	return nil
}

// Statuses returns the presence of each given account: online when any of its sessions is.
func (t *Tracker) Statuses(ctx context.Context, accountIDs ...int64) (map[int64]Status, error) {
	summaries, err := t.repo.SummarizeSessions(ctx, accountIDs...)
	if err != nil {
		return nil, errors.Wrap(err, "summarizing sessions")
	}
	now := nowFunc().UTC()
	statuses := make(map[int64]Status, len(summaries))
	for _, sum := range summaries {
		st := Status{LastSeen: sum.LastSeen}
		if sum.LastActive.Valid {
			st.Online = Session{IsActive: true, LastSeen: sum.LastActive.Time}.IsOnline(now, t.window)
		}
		statuses[sum.AccountID] = st
	}
	return statuses, nil
}
