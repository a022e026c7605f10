package grade

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
	ErrNotFound   = errors.New("grade not found")
	ErrNameExists = errors.New("a grade (series) with this name already exists")
)

type Grade struct {
	ID        int64     `db:"id"`
	Name      string    `db:"name"`
	CreatedAt time.Time `db:"created_at"` // UTC
}

// GradeData is the form used to create or edit a Grade.
type GradeData struct {
	Name string `form:"name" validate:"required,max=150"`
}

type (
	Repository interface {
		CreateGrade(ctx context.Context, g Grade) (Grade, error)
		UpdateGrade(ctx context.Context, g Grade) (Grade, error)
		GetGradeByID(ctx context.Context, id int64) (Grade, error)
		// GradeNameExists compares names case-insensitively.
		GradeNameExists(ctx context.Context, name string, excludeID int64) (bool, error)
		// QueryGrades orders by name; search is a case-insensitive substring match.
		QueryGrades(ctx context.Context, search string) ([]Grade, error)
		DeleteGrade(ctx context.Context, id int64) error
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

func (svc *Service) clean(ctx context.Context, data *GradeData, excludeID int64) error {
	data.Name = core.CleanString(data.Name)
	if err := core.ValidateStruct(svc.validate, svc.translator, data); err != nil {
		return err
	}
	exists, err := svc.repo.GradeNameExists(ctx, data.Name, excludeID)
	if err != nil {
		return errors.Wrap(err, "checking grade name")
	}
	if exists {
		return core.NewValidationError(ErrNameExists, core.FieldError{Field: "name", Error: ErrNameExists.Error()})
	}
	return nil
}

func (svc *Service) Create(ctx context.Context, data GradeData) (Grade, error) {
	if err := svc.clean(ctx, &data, 0); err != nil {
		return Grade{}, err
	}
	return svc.repo.CreateGrade(ctx, Grade{Name: data.Name, CreatedAt: time.Now().UTC()})
}

func (svc *Service) Update(ctx context.Context, id int64, data GradeData) (Grade, error) {
	g, err := svc.repo.GetGradeByID(ctx, id)
	if err != nil {
		return Grade{}, err
	}
	if err = svc.clean(ctx, &data, id); err != nil {
		return Grade{}, err
	}
	g.Name = data.Name
	return svc.repo.UpdateGrade(ctx, g)
}

func (svc *Service) GetByID(ctx context.Context, id int64) (Grade, error) {
	return svc.repo.GetGradeByID(ctx, id)
}

func (svc *Service) Query(ctx context.Context, search string) ([]Grade, error) {
	return svc.repo.QueryGrades(ctx, core.CleanString(search))
}

// Delete removes the Grade; Students in it become unassigned.
func (svc *Service) Delete(ctx context.Context, id int64) error {
	if _, err := svc.repo.GetGradeByID(ctx, id); err != nil {
		return err
	}
	return svc.repo.DeleteGrade(ctx, id)
}
