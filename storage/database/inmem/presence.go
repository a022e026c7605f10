package inmemdb

import (
	"context"
	"time"

	"github.com/volatiletech/null/v8"

	"github.com/trezcool/escola/core/presence"
)

type sessionRepository struct {
	db *DB
}

func NewSessionRepository(db *DB) presence.Repository {
	return &sessionRepository{db: db}
}

func (repo *sessionRepository) CreateSession(_ context.Context, s presence.Session) (presence.Session, error) {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	if _, ok := repo.db.sessions[s.Token]; ok {
		return presence.Session{}, presence.ErrTokenExists
	}
	if _, ok := repo.db.accounts[s.AccountID]; !ok {
		return presence.Session{}, errMissingRow("account")
	}
	s.ID = repo.db.nextPK()
	repo.db.sessions[s.Token] = &s
	return s, nil
}

func (repo *sessionRepository) GetSessionByToken(_ context.Context, token string) (presence.Session, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	if s, ok := repo.db.sessions[token]; ok {
		return *s, nil
	}
	return presence.Session{}, presence.ErrNotFound
}

func (repo *sessionRepository) TouchSession(_ context.Context, token string, at time.Time) error {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	s, ok := repo.db.sessions[token]
	if !ok || !s.IsActive {
		return presence.ErrNotFound
	}
	s.LastSeen = at
	return nil
}

func (repo *sessionRepository) DeactivateSession(_ context.Context, token string, accountID int64) error {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	s, ok := repo.db.sessions[token]
	if !ok || s.AccountID != accountID {
		return presence.ErrNotFound
	}
	s.IsActive = false
	return nil
}

func (repo *sessionRepository) DeactivateAccountSessions(_ context.Context, accountID int64) error {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	for _, s := range repo.db.sessions {
		if s.AccountID == accountID {
			s.IsActive = false
		}
	}
	return nil
}

func (repo *sessionRepository) PruneSessions(_ context.Context, accountID int64, before time.Time) error {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	for token, s := range repo.db.sessions {
		if s.AccountID == accountID && !s.IsActive && s.LastSeen.Before(before) {
			delete(repo.db.sessions, token)
		}
	}
	return nil
}

func (repo *sessionRepository) SummarizeSessions(_ context.Context, accountIDs ...int64) ([]presence.Summary, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	wanted := make(map[int64]bool, len(accountIDs))
	for _, id := range accountIDs {
		wanted[id] = true
	}
	byAccount := make(map[int64]*presence.Summary)
	for _, s := range repo.db.sessions {
		if !wanted[s.AccountID] {
			continue
		}
		sum, ok := byAccount[s.AccountID]
		if !ok {
			sum = &presence.Summary{AccountID: s.AccountID}
			byAccount[s.AccountID] = sum
		}
		if s.LastSeen.After(sum.LastSeen) {
			sum.LastSeen = s.LastSeen
		}
		if s.IsActive && (!sum.LastActive.Valid || s.LastSeen.After(sum.LastActive.Time)) {
			sum.LastActive = null.TimeFrom(s.LastSeen)
		}
	}
	summaries := make([]presence.Summary, 0, len(byAccount))
	for _, sum := range byAccount {
		summaries = append(summaries, *sum)
	}
	return summaries, nil
}
