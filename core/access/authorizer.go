package access

import (
	"context"
	"sort"

	"github.com/pkg/errors"

	"github.com/trezcool/escola/core"
	"github.com/trezcool/escola/core/account"
)

var (
	// errors
	ErrDirectorHasAll = errors.New("directors hold every permission; their grants cannot be edited")
	ErrUnknownCode    = errors.New("unknown permission code")
)

type Repository interface {
	// SeedPermissions inserts the missing permissions and renames the existing ones.
	SeedPermissions(ctx context.Context, perms []Permission) error
	QueryPermissions(ctx context.Context) ([]Permission, error)
	HasGrant(ctx context.Context, accountID int64, code Code) (bool, error)
	QueryGrantCodes(ctx context.Context, accountID int64) ([]Code, error)
	// QueryAllGrants returns the granted codes keyed by account ID.
	QueryAllGrants(ctx context.Context) (map[int64][]Code, error)
	// ReplaceGrants applies both changes in a single transaction.
	ReplaceGrants(ctx context.Context, accountID int64, add, remove []Code) error
}

// Authorizer answers "may this account do that?".
type Authorizer struct {
	repo Repository
}

func NewAuthorizer(repo Repository) *Authorizer {
	return &Authorizer{repo: repo}
}

// HasPermission is false for missing or inactive accounts, true for Directors,
// and otherwise true iff the account holds a Grant for `code`.
func (az *Authorizer) HasPermission(ctx context.Context, acc *account.Account, code Code) (bool, error) {
	if acc == nil || !acc.IsActive {
		return false, nil
	}
	if acc.IsDirector() {
		return true, nil
	}
	ok, err := az.repo.HasGrant(ctx, acc.ID, code)
	if err != nil {
		return false, errors.Wrap(err, "looking up grant")
	}
	return ok, nil
}

// Can checks `action` for `acc`, adding the action's role gate to HasPermission.
func (az *Authorizer) Can(ctx context.Context, acc *account.Account, action Action) (bool, error) {
	if acc == nil || !acc.IsActive {
		return false, nil
	}
	if acc.IsDirector() {
		return true, nil
	}
	if action.DirectorOnly() || !action.allowsRole(acc.Role) {
		return false, nil
	}
	return az.HasPermission(ctx, acc, action.Code)
}

// Service manages the permission catalog and the per-account Grants.
type Service struct {
	repo Repository
}

func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

func (svc *Service) SeedCatalog(ctx context.Context) error {
	return svc.repo.SeedPermissions(ctx, Catalog)
}

func (svc *Service) Permissions(ctx context.Context) ([]Permission, error) {
	return svc.repo.QueryPermissions(ctx)
}

func (svc *Service) Grants(ctx context.Context, accountID int64) ([]Code, error) {
	return svc.repo.QueryGrantCodes(ctx, accountID)
}

func (svc *Service) AllGrants(ctx context.Context) (map[int64][]Code, error) {
	return svc.repo.QueryAllGrants(ctx)
}

// ReplaceGrants makes `codes` the complete grant set of `acc`:
// grants missing from `codes` are removed and new ones added. Reapplying the same set is a no-op.
func (svc *Service) ReplaceGrants(ctx context.Context, acc account.Account, codes []Code) error {
	if acc.IsDirector() {
		return ErrDirectorHasAll
	}

	wanted := make(map[Code]bool, len(codes))
	for _, c := range codes {
		if !c.Known() {
			return core.NewValidationError(ErrUnknownCode, core.FieldError{Field: "codes", Error: ErrUnknownCode.Error() + ": " + string(c)})
		}
		wanted[c] = true
	}

	current, err := svc.repo.QueryGrantCodes(ctx, acc.ID)
	if err != nil {
		return errors.Wrap(err, "querying current grants")
	}
	held := make(map[Code]bool, len(current))
	var remove []Code
	for _, c := range current {
		held[c] = true
		if !wanted[c] {
			remove = append(remove, c)
		}
	}
	var add []Code
	for c := range wanted {
		if !held[c] {
			add = append(add, c)
		}
	}
	if len(add) == 0 && len(remove) == 0 {
		return nil
	}
	sort.Slice(add, func(i, j int) bool { return add[i] < add[j] })

	if err = svc.repo.ReplaceGrants(ctx, acc.ID, add, remove); err != nil {
		return errors.Wrap(err, "replacing grants")
	}
	return nil
}

// ApplyDefaults grants the role defaults to a freshly created account.
func (svc *Service) ApplyDefaults(ctx context.Context, acc account.Account) error {
	codes, ok := DefaultGrants[acc.Role]
	if !ok {
		return nil
	}
	return svc.repo.ReplaceGrants(ctx, acc.ID, codes, nil)
}
