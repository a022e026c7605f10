package activity

import (
	"context"
	"time"

	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	"github.com/pkg/errors"

	"github.com/trezcool/escola/core"
	"github.com/trezcool/escola/core/access"
	"github.com/trezcool/escola/core/student"
)

var (
	// errors
	ErrNotFound = errors.New("activity not found")
)

// Activity is a dated lesson log entry for one Student.
type Activity struct {
	ID          int64     `db:"id"`
	StudentID   int64     `db:"student_id"`
	Date        time.Time `db:"date"`
	Teacher     string    `db:"teacher"`
	Content     string    `db:"content"`
	Notes       string    `db:"notes"`
	CreatedAt   time.Time `db:"created_at"` // UTC
	UpdatedAt   time.Time `db:"updated_at"` // UTC
	StudentName string    `db:"student_name"`
}

// ActivityData is the form used to record or edit an Activity.
type ActivityData struct {
	StudentID int64  `form:"student_id" validate:"required,gt=0"`
	Date      string `form:"date" validate:"required,isodate"`
	Teacher   string `form:"teacher" validate:"required,max=150"`
	Content   string `form:"content" validate:"required"`
	Notes     string `form:"notes"`
}

func (d *ActivityData) Clean() {
	d.Date = core.CleanString(d.Date)
	d.Teacher = core.CleanString(d.Teacher)
	d.Content = core.CleanString(d.Content)
	d.Notes = core.CleanString(d.Notes)
}

func DataFrom(act Activity) ActivityData {
	return ActivityData{
		StudentID: act.StudentID,
		Date:      act.Date.Format(core.DateLayout),
		Teacher:   act.Teacher,
		Content:   act.Content,
		Notes:     act.Notes,
	}
}

type QueryFilter struct {
	// Search matches the student name, case-insensitively.
	Search string `query:"q"`
	// OnlyStudentID restricts the result to one Student's Activities when set.
	OnlyStudentID int64 `query:"-"`
}

type (
	Repository interface {
		CreateActivity(ctx context.Context, act Activity) (Activity, error)
		UpdateActivity(ctx context.Context, act Activity) (Activity, error)
		GetActivityByID(ctx context.Context, id int64) (Activity, error)
		// QueryActivities orders by date then ID, most recent first.
		QueryActivities(ctx context.Context, filter QueryFilter) ([]Activity, error)
		DeleteActivity(ctx context.Context, id int64) error
	}

	// Notifier tells the people following a Student about a newly recorded Activity.
	Notifier interface {
		ActivityRecorded(ctx context.Context, act Activity)
	}

	Service struct {
		repo       Repository
		students   student.Repository
		notifier   Notifier
		validate   *validator.Validate
		translator ut.Translator
		async      bool
	}
)

func NewService(
	repo Repository,
	students student.Repository,
	notifier Notifier,
	validate *validator.Validate,
	translator ut.Translator,
) *Service {
	return &Service{
		repo:       repo,
		students:   students,
		notifier:   notifier,
		validate:   validate,
		translator: translator,
		async:      true,
	}
}

// NewServiceSync is like NewService but notifies synchronously (tests).
func NewServiceSync(
	repo Repository,
	students student.Repository,
	notifier Notifier,
	validate *validator.Validate,
	translator ut.Translator,
) *Service {
	svc := NewService(repo, students, notifier, validate, translator)
	svc.async = false
	return svc
}

func (svc *Service) clean(ctx context.Context, scope access.Scope, data *ActivityData) (student.Student, error) {
	data.Clean()
	if err := core.ValidateStruct(svc.validate, svc.translator, data); err != nil {
		return student.Student{}, err
	}
	stdnt, err := svc.students.GetStudentByID(ctx, data.StudentID)
	if err == nil && !scope.Allows(stdnt.ID) {
		err = student.ErrNotFound
	}
	if err != nil {
		if errors.Cause(err) == student.ErrNotFound {
			return student.Student{}, core.NewValidationError(err, core.FieldError{Field: "student_id", Error: err.Error()})
		}
		return student.Student{}, errors.Wrap(err, "looking up student")
	}
	return stdnt, nil
}

// Create records the Activity then notifies, best-effort, the accounts following the Student.
func (svc *Service) Create(ctx context.Context, scope access.Scope, data ActivityData) (Activity, error) {
	stdnt, err := svc.clean(ctx, scope, &data)
	if err != nil {
		return Activity{}, err
	}
	date, _ := time.Parse(core.DateLayout, data.Date)
	now := time.Now().UTC()
	act, err := svc.repo.CreateActivity(ctx, Activity{
		StudentID: data.StudentID,
		Date:      date,
		Teacher:   data.Teacher,
		Content:   data.Content,
		Notes:     data.Notes,
		CreatedAt: now,
		UpdatedAt: now,
	})
	if err != nil {
		return Activity{}, err
	}
	act.StudentName = stdnt.Name

	if svc.notifier != nil {
		if svc.async {
			go svc.notifier.ActivityRecorded(context.Background(), act)
		} else {
			svc.notifier.ActivityRecorded(ctx, act)
		}
	}
	return act, nil
}

func (svc *Service) Update(ctx context.Context, scope access.Scope, id int64, data ActivityData) (Activity, error) {
	act, err := svc.GetVisible(ctx, scope, id)
	if err != nil {
		return Activity{}, err
	}
	stdnt, err := svc.clean(ctx, scope, &data)
	if err != nil {
		return Activity{}, err
	}
	act.StudentID = data.StudentID
	act.Date, _ = time.Parse(core.DateLayout, data.Date)
	act.Teacher = data.Teacher
	act.Content = data.Content
	act.Notes = data.Notes
	act.UpdatedAt = time.Now().UTC()
	act, err = svc.repo.UpdateActivity(ctx, act)
	if err != nil {
		return Activity{}, err
	}
	act.StudentName = stdnt.Name
	return act, nil
}

func (svc *Service) Delete(ctx context.Context, id int64) error {
	if _, err := svc.repo.GetActivityByID(ctx, id); err != nil {
		return err
	}
	return svc.repo.DeleteActivity(ctx, id)
}

// GetVisible returns the Activity `id` if its Student is within `scope`, ErrNotFound otherwise.
func (svc *Service) GetVisible(ctx context.Context, scope access.Scope, id int64) (Activity, error) {
	act, err := svc.repo.GetActivityByID(ctx, id)
	if err != nil {
		return Activity{}, err
	}
	if !scope.Allows(act.StudentID) {
		return Activity{}, ErrNotFound
	}
	return act, nil
}

// Visible lists the Activities within `scope`. An unlinked scope yields an empty list.
func (svc *Service) Visible(ctx context.Context, scope access.Scope, filter QueryFilter) ([]Activity, error) {
	if scope.Unlinked() {
		return []Activity{}, nil
	}
	filter.Search = core.CleanString(filter.Search)
	if !scope.All {
		filter.OnlyStudentID = scope.StudentID
	}
	acts, err := svc.repo.QueryActivities(ctx, filter)
	if err != nil {
		return nil, err
	}
	if acts == nil {
		acts = []Activity{}
	}
	return acts, nil
}
