package sqlxrepos

import (
	"context"

	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"

	"github.com/trezcool/escola/core/student"
)

const studentSelect = `SELECT s.*,
	sc.name AS school_name,
	g.name AS grade_name,
	to_char(ts.start_time, 'HH24:MI') || ' - ' || to_char(ts.end_time, 'HH24:MI') AS timeslot_label,
	ft.label AS fee_tier_label
FROM student s
LEFT JOIN school sc ON sc.id = s.school_id
LEFT JOIN grade g ON g.id = s.grade_id
LEFT JOIN timeslot ts ON ts.id = s.timeslot_id
LEFT JOIN fee_tier ft ON ft.id = s.fee_tier_id`

const studentValues = `name = :name, school_id = :school_id, grade_id = :grade_id, timeslot_id = :timeslot_id,
	fee_tier_id = :fee_tier_id, photo_name = :photo_name, birth_date = :birth_date, sex = :sex,
	birthplace = :birthplace, nationality = :nationality, father_name = :father_name, mother_name = :mother_name,
	address = :address, address_number = :address_number, district = :district, mobile = :mobile,
	landline = :landline, mother_phone = :mother_phone, learning_difficulty = :learning_difficulty,
	learning_difficulty_note = :learning_difficulty_note, controlled_medication = :controlled_medication,
	medication_note = :medication_note, classes_start = :classes_start, notes = :notes, updated_at = :updated_at`

type studentRepository struct {
	db *sqlx.DB
}

func NewStudentRepository(db *sqlx.DB) student.Repository {
	return &studentRepository{db: db}
}

func (repo *studentRepository) CreateStudent(ctx context.Context, s student.Student) (student.Student, error) {
	q := `INSERT INTO student (name, school_id, grade_id, timeslot_id, fee_tier_id, photo_name, birth_date, sex,
		birthplace, nationality, father_name, mother_name, address, address_number, district, mobile, landline,
		mother_phone, learning_difficulty, learning_difficulty_note, controlled_medication, medication_note,
		classes_start, notes, created_at, updated_at)
	VALUES (:name, :school_id, :grade_id, :timeslot_id, :fee_tier_id, :photo_name, :birth_date, :sex,
		:birthplace, :nationality, :father_name, :mother_name, :address, :address_number, :district, :mobile, :landline,
		:mother_phone, :learning_difficulty, :learning_difficulty_note, :controlled_medication, :medication_note,
		:classes_start, :notes, :created_at, :updated_at)
	RETURNING id`
	q, args, err := sqlx.Named(q, s)
	if err != nil {
		return student.Student{}, errors.Wrap(err, "binding student")
	}
	var id int64
	if err = repo.db.GetContext(ctx, &id, repo.db.Rebind(q), args...); err != nil {
		return student.Student{}, errors.Wrap(err, "inserting student")
	}
	return repo.GetStudentByID(ctx, id)
}

func (repo *studentRepository) UpdateStudent(ctx context.Context, s student.Student) (student.Student, error) {
	res, err := repo.db.NamedExecContext(ctx, "UPDATE student SET "+studentValues+" WHERE id = :id", s)
	if err != nil {
		return student.Student{}, errors.Wrap(err, "updating student")
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return student.Student{}, student.ErrNotFound
	}
	return repo.GetStudentByID(ctx, s.ID)
}

func (repo *studentRepository) GetStudentByID(ctx context.Context, id int64) (student.Student, error) {
	var s student.Student
	if err := repo.db.GetContext(ctx, &s, studentSelect+" WHERE s.id = $1", id); err != nil {
		if isNoRows(err) {
			return student.Student{}, student.ErrNotFound
		}
		return student.Student{}, errors.Wrap(err, "selecting student")
	}
	return s, nil
}

func (repo *studentRepository) StudentExists(ctx context.Context, id int64) (bool, error) {
	var found bool
	if err := repo.db.GetContext(ctx, &found, "SELECT EXISTS (SELECT 1 FROM student WHERE id = $1)", id); err != nil {
		return false, errors.Wrap(err, "checking student")
	}
	return found, nil
}

func (repo *studentRepository) QueryStudents(ctx context.Context, filter student.QueryFilter) ([]student.Student, error) {
	q := studentSelect + " WHERE TRUE"
	var args []interface{}
	if filter.OnlyID != 0 {
		args = append(args, filter.OnlyID)
		q += " AND s.id = $" + itoa(len(args))
	}
	if filter.Search != "" {
		args = append(args, contains(filter.Search))
		q += " AND s.name ILIKE $" + itoa(len(args))
	}
	q += " ORDER BY lower(s.name), s.id"
	if filter.Limit > 0 {
		args = append(args, filter.Limit)
		q += " LIMIT $" + itoa(len(args))
	}

	students := make([]student.Student, 0)
	if err := repo.db.SelectContext(ctx, &students, q, args...); err != nil {
		return nil, errors.Wrap(err, "selecting students")
	}
	return students, nil
}

// DeleteStudent relies on the foreign keys to drop activities and unlink accounts.
func (repo *studentRepository) DeleteStudent(ctx context.Context, id int64) error {
	if _, err := repo.db.ExecContext(ctx, "DELETE FROM student WHERE id = $1", id); err != nil {
		return errors.Wrap(err, "deleting student")
	}
	return nil
}

func (repo *studentRepository) QueryFeeTiers(ctx context.Context) ([]student.FeeTier, error) {
	tiers := make([]student.FeeTier, 0)
	q := "SELECT id, code, label, monthly_cents FROM fee_tier ORDER BY monthly_cents"
	if err := repo.db.SelectContext(ctx, &tiers, q); err != nil {
		return nil, errors.Wrap(err, "selecting fee tiers")
	}
	return tiers, nil
}

func (repo *studentRepository) GetFeeTierByID(ctx context.Context, id int64) (student.FeeTier, error) {
	var ft student.FeeTier
	q := "SELECT id, code, label, monthly_cents FROM fee_tier WHERE id = $1"
	if err := repo.db.GetContext(ctx, &ft, q, id); err != nil {
		if isNoRows(err) {
			return student.FeeTier{}, student.ErrFeeTierNotFound
		}
		return student.FeeTier{}, errors.Wrap(err, "selecting fee tier")
	}
	return ft, nil
}
