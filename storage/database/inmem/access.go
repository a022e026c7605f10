package inmemdb

import (
	"context"
	"sort"

	"github.com/trezcool/escola/core/access"
)

type accessRepository struct {
	db *DB
}

func NewAccessRepository(db *DB) access.Repository {
	return &accessRepository{db: db}
}

func (repo *accessRepository) SeedPermissions(_ context.Context, perms []access.Permission) error {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	for _, p := range perms {
		if existing, ok := repo.db.permissions[p.Code]; ok {
			existing.Name = p.Name
			continue
		}
		p := p
		p.ID = repo.db.nextPK()
		repo.db.permissions[p.Code] = &p
	}
	return nil
}

func (repo *accessRepository) QueryPermissions(_ context.Context) ([]access.Permission, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	perms := make([]access.Permission, 0, len(repo.db.permissions))
	for _, p := range repo.db.permissions {
		perms = append(perms, *p)
	}
	sort.Slice(perms, func(i, j int) bool { return perms[i].ID < perms[j].ID })
	return perms, nil
}

func (repo *accessRepository) HasGrant(_ context.Context, accountID int64, code access.Code) (bool, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	_, ok := repo.db.grants[grantKey{accountID: accountID, code: code}]
	return ok, nil
}

func (repo *accessRepository) QueryGrantCodes(_ context.Context, accountID int64) ([]access.Code, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	codes := make([]access.Code, 0)
	for key := range repo.db.grants {
		if key.accountID == accountID {
			codes = append(codes, key.code)
		}
	}
	sort.Slice(codes, func(i, j int) bool { return codes[i] < codes[j] })
	return codes, nil
}

func (repo *accessRepository) QueryAllGrants(_ context.Context) (map[int64][]access.Code, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	all := make(map[int64][]access.Code)
	for key := range repo.db.grants {
		all[key.accountID] = append(all[key.accountID], key.code)
	}
	for id := range all {
		codes := all[id]
		sort.Slice(codes, func(i, j int) bool { return codes[i] < codes[j] })
	}
	return all, nil
}

// ReplaceGrants only grants codes of seeded permissions to existing accounts, like the foreign keys would.
func (repo *accessRepository) ReplaceGrants(_ context.Context, accountID int64, add, remove []access.Code) error {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	if _, ok := repo.db.accounts[accountID]; !ok {
		return errMissingRow("account")
	}
	for _, code := range add {
		if _, ok := repo.db.permissions[code]; !ok {
			return errMissingRow("permission " + string(code))
		}
	}
	for _, code := range remove {
		delete(repo.db.grants, grantKey{accountID: accountID, code: code})
	}
	for _, code := range add {
		repo.db.grants[grantKey{accountID: accountID, code: code}] = struct{}{}
	}
	return nil
}
