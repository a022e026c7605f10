package inmemdb

import (
	"context"
	"sort"
	"strings"

	"github.com/trezcool/escola/core"
	"github.com/trezcool/escola/core/account"
)

type accountRepository struct {
	db *DB
}

func NewAccountRepository(db *DB) account.Repository {
	return &accountRepository{db: db}
}

func (repo *accountRepository) query() []account.Account {
	accs := make([]account.Account, 0, len(repo.db.accounts))
	for _, a := range repo.db.accounts {
		accs = append(accs, *a)
	}
	sort.Slice(accs, func(i, j int) bool {
		ni, nj := strings.ToLower(accs[i].Name), strings.ToLower(accs[j].Name)
		if ni == nj {
			return accs[i].ID < accs[j].ID
		}
		return ni < nj
	})
	return accs
}

func (repo *accountRepository) CreateAccount(_ context.Context, acc account.Account) (account.Account, error) {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	for _, a := range repo.db.accounts {
		if a.Email == acc.Email {
			return account.Account{}, account.ErrEmailExists
		}
	}
	acc.ID = repo.db.nextPK()
	repo.db.accounts[acc.ID] = &acc
	return acc, nil
}

func (repo *accountRepository) UpdateAccount(_ context.Context, acc account.Account) (account.Account, error) {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	if _, ok := repo.db.accounts[acc.ID]; !ok {
		return account.Account{}, account.ErrNotFound
	}
	for _, a := range repo.db.accounts {
		if a.Email == acc.Email && a.ID != acc.ID {
			return account.Account{}, account.ErrEmailExists
		}
	}
	repo.db.accounts[acc.ID] = &acc
	return acc, nil
}

func (repo *accountRepository) GetAccountByID(_ context.Context, id int64) (account.Account, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	if acc, ok := repo.db.accounts[id]; ok {
		return *acc, nil
	}
	return account.Account{}, account.ErrNotFound
}

func (repo *accountRepository) GetAccountByEmail(_ context.Context, email string) (account.Account, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	for _, acc := range repo.db.accounts {
		if acc.Email == email {
			return *acc, nil
		}
	}
	return account.Account{}, account.ErrNotFound
}

func (repo *accountRepository) EmailExists(_ context.Context, email string, excludeID int64) (bool, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	for _, acc := range repo.db.accounts {
		if strings.EqualFold(acc.Email, email) && acc.ID != excludeID {
			return true, nil
		}
	}
	return false, nil
}

func (repo *accountRepository) QueryAccounts(_ context.Context, filter account.QueryFilter) ([]account.Account, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	accs := make([]account.Account, 0)
	for _, acc := range repo.query() {
		if filter.Search != "" && !(core.ContainsFold(acc.Name, filter.Search) || core.ContainsFold(acc.Email, filter.Search)) {
			continue
		}
		if filter.Role != "" && string(acc.Role) != filter.Role {
			continue
		}
		accs = append(accs, acc)
	}
	return accs, nil
}

func (repo *accountRepository) QueryAccountsByStudent(_ context.Context, studentID int64) ([]account.Account, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	accs := make([]account.Account, 0)
	for _, acc := range repo.query() {
		if acc.StudentID.Valid && acc.StudentID.Int64 == studentID {
			accs = append(accs, acc)
		}
	}
	return accs, nil
}

func (repo *accountRepository) CountAccounts(_ context.Context) (int, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()
	return len(repo.db.accounts), nil
}

// DeleteAccount cascades to the account's grants and sessions.
func (repo *accountRepository) DeleteAccount(_ context.Context, id int64) error {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	delete(repo.db.accounts, id)
	for key := range repo.db.grants {
		if key.accountID == id {
			delete(repo.db.grants, key)
		}
	}
	for token, s := range repo.db.sessions {
		if s.AccountID == id {
			delete(repo.db.sessions, token)
		}
	}
	return nil
}
