package school

import (
	"context"
	"time"

	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	"github.com/pkg/errors"

	"github.com/trezcool/escola/core"
)

var (
	// errors
	ErrNotFound   = errors.New("school not found")
	ErrNameExists = errors.New("a school with this name already exists")
)

type School struct {
	ID        int64     `db:"id"`
	Name      string    `db:"name"`
	CreatedAt time.Time `db:"created_at"` // UTC
}

// SchoolData is the form used to create or edit a School.
type SchoolData struct {
	Name string `form:"name" validate:"required,max=150"`
}

type (
	Repository interface {
		CreateSchool(ctx context.Context, s School) (School, error)
		UpdateSchool(ctx context.Context, s School) (School, error)
		GetSchoolByID(ctx context.Context, id int64) (School, error)
		// SchoolNameExists compares names case-insensitively.
		SchoolNameExists(ctx context.Context, name string, excludeID int64) (bool, error)
		// QuerySchools orders by name; search is a case-insensitive substring match.
		QuerySchools(ctx context.Context, search string) ([]School, error)
		DeleteSchool(ctx context.Context, id int64) error
	}

	Service struct {
		repo       Repository
		validate   *validator.Validate
		translator ut.Translator
	}
)

func NewService(repo Repository, validate *validator.Validate, translator ut.Translator) *Service {
	return &Service{repo: repo, validate: validate, translator: translator}
}

func (svc *Service) clean(ctx context.Context, data *SchoolData, excludeID int64) error {
	data.Name = core.CleanString(data.Name)
	if err := core.ValidateStruct(svc.validate, svc.translator, data); err != nil {
		return err
	}
	exists, err := svc.repo.SchoolNameExists(ctx, data.Name, excludeID)
	if err != nil {
		return errors.Wrap(err, "checking school name")
	}
	if exists {
		return core.NewValidationError(ErrNameExists, core.FieldError{Field: "name", Error: ErrNameExists.Error()})
	}
	return nil
}

func (svc *Service) Create(ctx context.Context, data SchoolData) (School, error) {
	if err := svc.clean(ctx, &data, 0); err != nil {
		return School{}, err
	}
	return svc.repo.CreateSchool(ctx, School{Name: data.Name, CreatedAt: time.Now().UTC()})
}

func (svc *Service) Update(ctx context.Context, id int64, data SchoolData) (School, error) {
	s, err := svc.repo.GetSchoolByID(ctx, id)
	if err != nil {
		return School{}, err
	}
	if err = svc.clean(ctx, &data, id); err != nil {
		return School{}, err
	}
	s.Name = data.Name
	return svc.repo.UpdateSchool(ctx, s)
}

func (svc *Service) GetByID(ctx context.Context, id int64) (School, error) {
	return svc.repo.GetSchoolByID(ctx, id)
}

func (svc *Service) Query(ctx context.Context, search string) ([]School, error) {
	return svc.repo.QuerySchools(ctx, core.CleanString(search))
}

// Delete removes the School; Students referencing it become unassigned.
func (svc *Service) Delete(ctx context.Context, id int64) error {
	if _, err := svc.repo.GetSchoolByID(ctx, id); err != nil {
		return err
	}
	return svc.repo.DeleteSchool(ctx, id)
}
