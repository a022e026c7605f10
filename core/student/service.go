package student

import (
	"context"
	"time"

	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	"github.com/pkg/errors"

	"github.com/trezcool/escola/core"
	"github.com/trezcool/escola/core/access"
	"github.com/trezcool/escola/core/grade"
	"github.com/trezcool/escola/core/school"
	"github.com/trezcool/escola/core/timeslot"
)

var (
	// errors
	ErrNotFound        = errors.New("student not found")
	ErrFeeTierNotFound = errors.New("fee tier not found")
)

const SearchLimit = 20

type (
	Repository interface {
		CreateStudent(ctx context.Context, s Student) (Student, error)
		UpdateStudent(ctx context.Context, s Student) (Student, error)
		GetStudentByID(ctx context.Context, id int64) (Student, error)
		StudentExists(ctx context.Context, id int64) (bool, error)
		// QueryStudents orders by name; QueryFilter.Search is a case-insensitive substring match on the name.
		QueryStudents(ctx context.Context, filter QueryFilter) ([]Student, error)
		// DeleteStudent also removes the Student's Activities and unlinks its accounts.
		DeleteStudent(ctx context.Context, id int64) error
		QueryFeeTiers(ctx context.Context) ([]FeeTier, error)
		GetFeeTierByID(ctx context.Context, id int64) (FeeTier, error)
	}

	Service struct {
		repo       Repository
		schools    school.Repository
		grades     grade.Repository
		slots      timeslot.Repository
		validate   *validator.Validate
		translator ut.Translator
	}
)

func NewService(
	repo Repository,
	schools school.Repository,
	grades grade.Repository,
	slots timeslot.Repository,
	validate *validator.Validate,
	translator ut.Translator,
) *Service {
	return &Service{
		repo:       repo,
		schools:    schools,
		grades:     grades,
		slots:      slots,
		validate:   validate,
		translator: translator,
	}
}

// checkReferences makes sure every referenced row exists.
func (svc *Service) checkReferences(ctx context.Context, data StudentData) error {
	var flds []core.FieldError
	check := func(id int64, field string, get func() error, notFound error) error {
		if id <= 0 {
			return nil
		}
		if err := get(); err != nil {
			if errors.Cause(err) != notFound {
				return errors.Wrap(err, "looking up "+field)
			}
			flds = append(flds, core.FieldError{Field: field, Error: notFound.Error()})
		}
		return nil
	}

	if err := check(data.SchoolID, "school_id", func() error {
		_, err := svc.schools.GetSchoolByID(ctx, data.SchoolID)
		return err
	}, school.ErrNotFound); err != nil {
		return err
	}
	if err := check(data.GradeID, "grade_id", func() error {
		_, err := svc.grades.GetGradeByID(ctx, data.GradeID)
		return err
	}, grade.ErrNotFound); err != nil {
		return err
	}
	if err := check(data.TimeSlotID, "timeslot_id", func() error {
		_, err := svc.slots.GetTimeSlotByID(ctx, data.TimeSlotID)
		return err
	}, timeslot.ErrNotFound); err != nil {
		return err
	}
	if err := check(data.FeeTierID, "fee_tier_id", func() error {
		_, err := svc.repo.GetFeeTierByID(ctx, data.FeeTierID)
		return err
	}, ErrFeeTierNotFound); err != nil {
		return err
	}

	if len(flds) > 0 {
		return core.NewValidationError(nil, flds...)
	}
	return nil
}

func (svc *Service) clean(ctx context.Context, data *StudentData) error {
	data.Clean()
	if err := core.ValidateStruct(svc.validate, svc.translator, data); err != nil {
		return err
	}
	return svc.checkReferences(ctx, *data)
}

// Check validates `data` without saving anything.
func (svc *Service) Check(ctx context.Context, data StudentData) error {
	return svc.clean(ctx, &data)
}

func (svc *Service) Create(ctx context.Context, data StudentData) (Student, error) {
	if err := svc.clean(ctx, &data); err != nil {
		return Student{}, err
	}
	now := time.Now().UTC()
	s := Student{CreatedAt: now, UpdatedAt: now}
	data.apply(&s)
	return svc.repo.CreateStudent(ctx, s)
}

func (svc *Service) Update(ctx context.Context, id int64, data StudentData) (Student, error) {
	s, err := svc.repo.GetStudentByID(ctx, id)
	if err != nil {
		return Student{}, err
	}
	if err = svc.clean(ctx, &data); err != nil {
		return Student{}, err
	}
	data.apply(&s)
	s.UpdatedAt = time.Now().UTC()
	return svc.repo.UpdateStudent(ctx, s)
}

// Delete removes the Student and returns it, so callers can clean up its photo.
func (svc *Service) Delete(ctx context.Context, id int64) (Student, error) {
	s, err := svc.repo.GetStudentByID(ctx, id)
	if err != nil {
		return Student{}, err
	}
	return s, svc.repo.DeleteStudent(ctx, id)
}

func (svc *Service) GetByID(ctx context.Context, id int64) (Student, error) {
	return svc.repo.GetStudentByID(ctx, id)
}

func (svc *Service) StudentExists(ctx context.Context, id int64) (bool, error) {
	return svc.repo.StudentExists(ctx, id)
}

// Visible lists the Students within `scope`. An unlinked scope yields an empty list.
func (svc *Service) Visible(ctx context.Context, scope access.Scope, filter QueryFilter) ([]Student, error) {
	if scope.Unlinked() {
		return []Student{}, nil
	}
	filter.Search = core.CleanString(filter.Search)
	if !scope.All {
		filter.OnlyID = scope.StudentID
	}
	students, err := svc.repo.QueryStudents(ctx, filter)
	if err != nil {
		return nil, err
	}
	if students == nil {
		students = []Student{}
	}
	return students, nil
}

// GetVisible returns the Student `id` if `scope` allows it, ErrNotFound otherwise.
func (svc *Service) GetVisible(ctx context.Context, scope access.Scope, id int64) (Student, error) {
	if !scope.Allows(id) {
		return Student{}, ErrNotFound
	}
	return svc.repo.GetStudentByID(ctx, id)
}

// Search returns at most SearchLimit visible Students whose name matches `q`.
func (svc *Service) Search(ctx context.Context, scope access.Scope, q string) ([]Student, error) {
	return svc.Visible(ctx, scope, QueryFilter{Search: q, Limit: SearchLimit})
}

func (svc *Service) FeeTiers(ctx context.Context) ([]FeeTier, error) {
	return svc.repo.QueryFeeTiers(ctx)
}
