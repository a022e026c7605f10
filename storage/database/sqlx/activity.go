package sqlxrepos

import (
	"context"

	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"

	"github.com/trezcool/escola/core/activity"
)

const activitySelect = `SELECT a.*, s.name AS student_name FROM activity a JOIN student s ON s.id = a.student_id`

type activityRepository struct {
	db *sqlx.DB
}

func NewActivityRepository(db *sqlx.DB) activity.Repository {
	return &activityRepository{db: db}
}

func (repo *activityRepository) CreateActivity(ctx context.Context, act activity.Activity) (activity.Activity, error) {
	q := `INSERT INTO activity (student_id, date, teacher, content, notes, created_at, updated_at)
	VALUES ($1, $2, $3, $4, $5, $6, $7) RETURNING id`
	err := repo.db.GetContext(ctx, &act.ID, q,
		act.StudentID, act.Date, act.Teacher, act.Content, act.Notes, act.CreatedAt, act.UpdatedAt)
	if err != nil {
		return activity.Activity{}, errors.Wrap(err, "inserting activity")
	}
	return repo.GetActivityByID(ctx, act.ID)
}

func (repo *activityRepository) UpdateActivity(ctx context.Context, act activity.Activity) (activity.Activity, error) {
	q := `UPDATE activity SET student_id = $2, date = $3, teacher = $4, content = $5, notes = $6, updated_at = $7
	WHERE id = $1`
	res, err := repo.db.ExecContext(ctx, q,
		act.ID, act.StudentID, act.Date, act.Teacher, act.Content, act.Notes, act.UpdatedAt)
	if err != nil {
		return activity.Activity{}, errors.Wrap(err, "updating activity")
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return activity.Activity{}, activity.ErrNotFound
	}
	return repo.GetActivityByID(ctx, act.ID)
}

func (repo *activityRepository) GetActivityByID(ctx context.Context, id int64) (activity.Activity, error) {
	var act activity.Activity
	if err := repo.db.GetContext(ctx, &act, activitySelect+" WHERE a.id = $1", id); err != nil {
		if isNoRows(err) {
			return activity.Activity{}, activity.ErrNotFound
		}
		return activity.Activity{}, errors.Wrap(err, "selecting activity")
	}
	return act, nil
}

func (repo *activityRepository) QueryActivities(ctx context.Context, filter activity.QueryFilter) ([]activity.Activity, error) {
	q := activitySelect + " WHERE TRUE"
	var args []interface{}
	if filter.OnlyStudentID != 0 {
		args = append(args, filter.OnlyStudentID)
		q += " AND a.student_id = $" + itoa(len(args))
	}
	if filter.Search != "" {
		args = append(args, contains(filter.Search))
		q += " AND s.name ILIKE $" + itoa(len(args))
	}
	q += " ORDER BY a.date DESC, a.id DESC"

	acts := make([]activity.Activity, 0)
	if err := repo.db.SelectContext(ctx, &acts, q, args...); err != nil {
		return nil, errors.Wrap(err, "selecting activities")
	}
	return acts, nil
}

func (repo *activityRepository) DeleteActivity(ctx context.Context, id int64) error {
	if _, err := repo.db.ExecContext(ctx, "DELETE FROM activity WHERE id = $1", id); err != nil {
		return errors.Wrap(err, "deleting activity")
	}
	return nil
}
