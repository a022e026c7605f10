package sqlxrepos

import (
	"context"

	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"

	"github.com/trezcool/escola/core/timeslot"
)

const timeSlotColumns = `id, to_char(start_time, 'HH24:MI') AS start_time, to_char(end_time, 'HH24:MI') AS end_time, created_at`

type timeSlotRepository struct {
	db *sqlx.DB
}

func NewTimeSlotRepository(db *sqlx.DB) timeslot.Repository {
	return &timeSlotRepository{db: db}
}

func (repo *timeSlotRepository) mapErr(err error, msg string) error {
	if pgCode(err) == checkViolation {
		return timeslot.ErrInvalidRange
	}
	return mapErr(err, timeslot.ErrNotFound, timeslot.ErrExists, msg)
}

func (repo *timeSlotRepository) CreateTimeSlot(ctx context.Context, ts timeslot.TimeSlot) (timeslot.TimeSlot, error) {
	var created timeslot.TimeSlot
	q := `INSERT INTO timeslot (start_time, end_time, created_at) VALUES ($1::time, $2::time, $3)
	RETURNING ` + timeSlotColumns
	if err := repo.db.GetContext(ctx, &created, q, ts.Start, ts.End, ts.CreatedAt); err != nil {
		return timeslot.TimeSlot{}, repo.mapErr(err, "inserting time slot")
	}
	return created, nil
}

func (repo *timeSlotRepository) UpdateTimeSlot(ctx context.Context, ts timeslot.TimeSlot) (timeslot.TimeSlot, error) {
	var updated timeslot.TimeSlot
	q := `UPDATE timeslot SET start_time = $2::time, end_time = $3::time WHERE id = $1
	RETURNING ` + timeSlotColumns
	if err := repo.db.GetContext(ctx, &updated, q, ts.ID, ts.Start, ts.End); err != nil {
		return timeslot.TimeSlot{}, repo.mapErr(err, "updating time slot")
	}
	return updated, nil
}

func (repo *timeSlotRepository) GetTimeSlotByID(ctx context.Context, id int64) (timeslot.TimeSlot, error) {
	var ts timeslot.TimeSlot
	if err := repo.db.GetContext(ctx, &ts, "SELECT "+timeSlotColumns+" FROM timeslot WHERE id = $1", id); err != nil {
		return timeslot.TimeSlot{}, repo.mapErr(err, "selecting time slot")
	}
	return ts, nil
}

func (repo *timeSlotRepository) TimeSlotExists(ctx context.Context, start, end string, excludeID int64) (bool, error) {
	var found bool
	q := `SELECT EXISTS (SELECT 1 FROM timeslot WHERE start_time = $1::time AND end_time = $2::time AND id <> $3)`
	if err := repo.db.GetContext(ctx, &found, q, start, end, excludeID); err != nil {
		return false, errors.Wrap(err, "checking time slot")
	}
	return found, nil
}

func (repo *timeSlotRepository) QueryTimeSlots(ctx context.Context) ([]timeslot.TimeSlot, error) {
	slots := make([]timeslot.TimeSlot, 0)
	q := "SELECT " + timeSlotColumns + " FROM timeslot ORDER BY timeslot.start_time, timeslot.end_time"
	if err := repo.db.SelectContext(ctx, &slots, q); err != nil {
		return nil, errors.Wrap(err, "selecting time slots")
	}
	return slots, nil
}

func (repo *timeSlotRepository) DeleteTimeSlot(ctx context.Context, id int64) error {
	if _, err := repo.db.ExecContext(ctx, "DELETE FROM timeslot WHERE id = $1", id); err != nil {
		return errors.Wrap(err, "deleting time slot")
	}
	return nil
}
