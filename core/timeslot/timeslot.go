package timeslot

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
	ErrNotFound     = errors.New("time slot not found")
	ErrExists       = errors.New("a time slot with these start and end times already exists")
	ErrInvalidRange = errors.New("end time must be after start time")
)

// TimeSlot is a class schedule; times are "HH:MM".
type TimeSlot struct {
	ID        int64     `db:"id"`
	Start     string    `db:"start_time"`
	End       string    `db:"end_time"`
	CreatedAt time.Time `db:"created_at"` // UTC
}

func (ts TimeSlot) Label() string { return ts.Start + " - " + ts.End }

// TimeSlotData is the form used to create or edit a TimeSlot.
type TimeSlotData struct {
	Start string `form:"start" validate:"required,hhmm"`
	End   string `form:"end" validate:"required,hhmm"`
}

// Validate checks the format of both times and that End is strictly after Start.
func (d *TimeSlotData) Validate(validate *validator.Validate, translator ut.Translator) error {
	d.Start = normalize(core.CleanString(d.Start))
	d.End = normalize(core.CleanString(d.End))
	if err := core.ValidateStruct(validate, translator, d); err != nil {
		return err
	}
	start, _ := time.Parse(core.TimeOfDayLayout, d.Start)
	end, _ := time.Parse(core.TimeOfDayLayout, d.End)
	if !end.After(start) {
		return core.NewValidationError(ErrInvalidRange, core.FieldError{Field: "end", Error: ErrInvalidRange.Error()})
	}
	return nil
}

// normalize turns "9:05" or "09:05:00" into "09:05"; other values are left for validation to reject.
func normalize(s string) string {
	for _, layout := range []string{core.TimeOfDayLayout, "15:04:05"} {
		if t, err := time.Parse(layout, s); err == nil {
			return t.Format(core.TimeOfDayLayout)
		}
	}
	return s
}

type (
	Repository interface {
		CreateTimeSlot(ctx context.Context, ts TimeSlot) (TimeSlot, error)
		UpdateTimeSlot(ctx context.Context, ts TimeSlot) (TimeSlot, error)
		GetTimeSlotByID(ctx context.Context, id int64) (TimeSlot, error)
		TimeSlotExists(ctx context.Context, start, end string, excludeID int64) (bool, error)
		// QueryTimeSlots orders by start time, then end time.
		QueryTimeSlots(ctx context.Context) ([]TimeSlot, error)
		DeleteTimeSlot(ctx context.Context, id int64) error
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

func (svc *Service) clean(ctx context.Context, data *TimeSlotData, excludeID int64) error {
	if err := data.Validate(svc.validate, svc.translator); err != nil {
		return err
	}
	exists, err := svc.repo.TimeSlotExists(ctx, data.Start, data.End, excludeID)
	if err != nil {
		return errors.Wrap(err, "checking time slot uniqueness")
	}
	if exists {
		return core.NewValidationError(ErrExists, core.FieldError{Field: "start", Error: ErrExists.Error()})
	}
	return nil
}

func (svc *Service) Create(ctx context.Context, data TimeSlotData) (TimeSlot, error) {
	if err := svc.clean(ctx, &data, 0); err != nil {
		return TimeSlot{}, err
	}
	return svc.repo.CreateTimeSlot(ctx, TimeSlot{Start: data.Start, End: data.End, CreatedAt: time.Now().UTC()})
}

func (svc *Service) Update(ctx context.Context, id int64, data TimeSlotData) (TimeSlot, error) {
	ts, err := svc.repo.GetTimeSlotByID(ctx, id)
	if err != nil {
		return TimeSlot{}, err
	}
	if err = svc.clean(ctx, &data, id); err != nil {
		return TimeSlot{}, err
	}
	ts.Start, ts.End = data.Start, data.End
	return svc.repo.UpdateTimeSlot(ctx, ts)
}

func (svc *Service) GetByID(ctx context.Context, id int64) (TimeSlot, error) {
	return svc.repo.GetTimeSlotByID(ctx, id)
}

func (svc *Service) Query(ctx context.Context) ([]TimeSlot, error) {
	return svc.repo.QueryTimeSlots(ctx)
}

func (svc *Service) Delete(ctx context.Context, id int64) error {
	if _, err := svc.repo.GetTimeSlotByID(ctx, id); err != nil {
		return err
	}
	return svc.repo.DeleteTimeSlot(ctx, id)
}
