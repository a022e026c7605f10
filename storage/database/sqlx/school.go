package sqlxrepos

import (
	"context"

	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"

	"github.com/trezcool/escola/core/grade"
	"github.com/trezcool/escola/core/school"
)

// namedTable holds the queries shared by the school and grade tables.
type namedTable struct {
	db    *sqlx.DB
	table string
}

func (t namedTable) create(ctx context.Context, dest interface{}, name string, createdAt interface{}) error {
	q := "INSERT INTO " + t.table + " (name, created_at) VALUES ($1, $2) RETURNING id, name, created_at"
	return t.db.GetContext(ctx, dest, q, name, createdAt)
}

func (t namedTable) update(ctx context.Context, dest interface{}, id int64, name string) error {
	q := "UPDATE " + t.table + " SET name = $2 WHERE id = $1 RETURNING id, name, created_at"
	return t.db.GetContext(ctx, dest, q, id, name)
}

func (t namedTable) get(ctx context.Context, dest interface{}, id int64) error {
	return t.db.GetContext(ctx, dest, "SELECT id, name, created_at FROM "+t.table+" WHERE id = $1", id)
}

func (t namedTable) nameExists(ctx context.Context, name string, excludeID int64) (bool, error) {
	var found bool
	q := "SELECT EXISTS (SELECT 1 FROM " + t.table + " WHERE lower(name) = lower($1) AND id <> $2)"
	if err := t.db.GetContext(ctx, &found, q, name, excludeID); err != nil {
		return false, errors.Wrapf(err, "checking %s name", t.table)
	}
	return found, nil
}

func (t namedTable) query(ctx context.Context, dest interface{}, search string) error {
	q := "SELECT id, name, created_at FROM " + t.table
	var args []interface{}
	if search != "" {
		q += " WHERE name ILIKE $1"
		args = append(args, contains(search))
	}
	q += " ORDER BY lower(name), id"
	return t.db.SelectContext(ctx, dest, q, args...)
}

// delete relies on ON DELETE SET NULL to unassign students.
func (t namedTable) delete(ctx context.Context, id int64) error {
	_, err := t.db.ExecContext(ctx, "DELETE FROM "+t.table+" WHERE id = $1", id)
	return err
}

// mapErr translates driver errors into the domain's, wrapping the others with `msg`.
func mapErr(err error, notFound, exists error, msg string) error {
	switch {
	case err == nil:
		return nil
	case isNoRows(err):
		return notFound
	case isUniqueViolation(err):
		return exists
	}
	return errors.Wrap(err, msg)
}

type schoolRepository struct {
	t namedTable
}

func NewSchoolRepository(db *sqlx.DB) school.Repository {
	return &schoolRepository{t: namedTable{db: db, table: "school"}}
}

func (repo *schoolRepository) CreateSchool(ctx context.Context, s school.School) (school.School, error) {
	var created school.School
	if err := repo.t.create(ctx, &created, s.Name, s.CreatedAt); err != nil {
		return school.School{}, mapErr(err, school.ErrNotFound, school.ErrNameExists, "inserting school")
	}
	return created, nil
}

func (repo *schoolRepository) UpdateSchool(ctx context.Context, s school.School) (school.School, error) {
	var updated school.School
	if err := repo.t.update(ctx, &updated, s.ID, s.Name); err != nil {
		return school.School{}, mapErr(err, school.ErrNotFound, school.ErrNameExists, "updating school")
	}
	return updated, nil
}

func (repo *schoolRepository) GetSchoolByID(ctx context.Context, id int64) (school.School, error) {
	var s school.School
	if err := repo.t.get(ctx, &s, id); err != nil {
		return school.School{}, mapErr(err, school.ErrNotFound, school.ErrNameExists, "selecting school")
	}
	return s, nil
}

func (repo *schoolRepository) SchoolNameExists(ctx context.Context, name string, excludeID int64) (bool, error) {
	return repo.t.nameExists(ctx, name, excludeID)
}

func (repo *schoolRepository) QuerySchools(ctx context.Context, search string) ([]school.School, error) {
	schools := make([]school.School, 0)
	if err := repo.t.query(ctx, &schools, search); err != nil {
		return nil, errors.Wrap(err, "selecting schools")
	}
	return schools, nil
}

func (repo *schoolRepository) DeleteSchool(ctx context.Context, id int64) error {
	return errors.Wrap(repo.t.delete(ctx, id), "deleting school")
}

type gradeRepository struct {
	t namedTable
}

func NewGradeRepository(db *sqlx.DB) grade.Repository {
	return &gradeRepository{t: namedTable{db: db, table: "grade"}}
}

func (repo *gradeRepository) CreateGrade(ctx context.Context, g grade.Grade) (grade.Grade, error) {
	var created grade.Grade
	if err := repo.t.create(ctx, &created, g.Name, g.CreatedAt); err != nil {
		return grade.Grade{}, mapErr(err, grade.ErrNotFound, grade.ErrNameExists, "inserting grade")
	}
	return created, nil
}

func (repo *gradeRepository) UpdateGrade(ctx context.Context, g grade.Grade) (grade.Grade, error) {
	var updated grade.Grade
	if err := repo.t.update(ctx, &updated, g.ID, g.Name); err != nil {
		return grade.Grade{}, mapErr(err, grade.ErrNotFound, grade.ErrNameExists, "updating grade")
	}
	return updated, nil
}

func (repo *gradeRepository) GetGradeByID(ctx context.Context, id int64) (grade.Grade, error) {
	var g grade.Grade
	if err := repo.t.get(ctx, &g, id); err != nil {
		return grade.Grade{}, mapErr(err, grade.ErrNotFound, grade.ErrNameExists, "selecting grade")
	}
	return g, nil
}

func (repo *gradeRepository) GradeNameExists(ctx context.Context, name string, excludeID int64) (bool, error) {
	return repo.t.nameExists(ctx, name, excludeID)
}

func (repo *gradeRepository) QueryGrades(ctx context.Context, search string) ([]grade.Grade, error) {
	grades := make([]grade.Grade, 0)
	if err := repo.t.query(ctx, &grades, search); err != nil {
		return nil, errors.Wrap(err, "selecting grades")
	}
	return grades, nil
}

func (repo *gradeRepository) DeleteGrade(ctx context.Context, id int64) error {
	return errors.Wrap(repo.t.delete(ctx, id), "deleting grade")
}
