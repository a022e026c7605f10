package inmemdb

import (
	"context"
	"sort"
	"strings"

	"github.com/trezcool/escola/core"
	"github.com/trezcool/escola/core/grade"
	"github.com/trezcool/escola/core/school"
)

func byName(a, b string, idA, idB int64) bool {
	la, lb := strings.ToLower(a), strings.ToLower(b)
	if la == lb {
		return idA < idB
	}
	return la < lb
}

type schoolRepository struct {
	db *DB
}

func NewSchoolRepository(db *DB) school.Repository {
	return &schoolRepository{db: db}
}

func (repo *schoolRepository) CreateSchool(_ context.Context, s school.School) (school.School, error) {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	s.ID = repo.db.nextPK()
	repo.db.schools[s.ID] = &s
	return s, nil
}

func (repo *schoolRepository) UpdateSchool(_ context.Context, s school.School) (school.School, error) {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	if _, ok := repo.db.schools[s.ID]; !ok {
		return school.School{}, school.ErrNotFound
	}
	repo.db.schools[s.ID] = &s
	return s, nil
}

func (repo *schoolRepository) GetSchoolByID(_ context.Context, id int64) (school.School, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	if s, ok := repo.db.schools[id]; ok {
		return *s, nil
	}
	return school.School{}, school.ErrNotFound
}

func (repo *schoolRepository) SchoolNameExists(_ context.Context, name string, excludeID int64) (bool, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	for _, s := range repo.db.schools {
		if strings.EqualFold(s.Name, name) && s.ID != excludeID {
			return true, nil
		}
	}
	return false, nil
}

func (repo *schoolRepository) QuerySchools(_ context.Context, search string) ([]school.School, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	schools := make([]school.School, 0, len(repo.db.schools))
	for _, s := range repo.db.schools {
		if search == "" || core.ContainsFold(s.Name, search) {
			schools = append(schools, *s)
		}
	}
	sort.Slice(schools, func(i, j int) bool { return byName(schools[i].Name, schools[j].Name, schools[i].ID, schools[j].ID) })
	return schools, nil
}

// DeleteSchool unassigns the students of the school.
func (repo *schoolRepository) DeleteSchool(_ context.Context, id int64) error {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	delete(repo.db.schools, id)
	for _, s := range repo.db.students {
		if s.SchoolID.Valid && s.SchoolID.Int64 == id {
			s.SchoolID.Valid, s.SchoolID.Int64 = false, 0
		}
	}
	return nil
}

type gradeRepository struct {
	db *DB
}

func NewGradeRepository(db *DB) grade.Repository {
	return &gradeRepository{db: db}
}

func (repo *gradeRepository) CreateGrade(_ context.Context, g grade.Grade) (grade.Grade, error) {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	g.ID = repo.db.nextPK()
	repo.db.grades[g.ID] = &g
	return g, nil
}

func (repo *gradeRepository) UpdateGrade(_ context.Context, g grade.Grade) (grade.Grade, error) {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	if _, ok := repo.db.grades[g.ID]; !ok {
		return grade.Grade{}, grade.ErrNotFound
	}
	repo.db.grades[g.ID] = &g
	return g, nil
}

func (repo *gradeRepository) GetGradeByID(_ context.Context, id int64) (grade.Grade, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	if g, ok := repo.db.grades[id]; ok {
		return *g, nil
	}
	return grade.Grade{}, grade.ErrNotFound
}

func (repo *gradeRepository) GradeNameExists(_ context.Context, name string, excludeID int64) (bool, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	for _, g := range repo.db.grades {
		if strings.EqualFold(g.Name, name) && g.ID != excludeID {
			return true, nil
		}
	}
	return false, nil
}

func (repo *gradeRepository) QueryGrades(_ context.Context, search string) ([]grade.Grade, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	grades := make([]grade.Grade, 0, len(repo.db.grades))
	for _, g := range repo.db.grades {
		if search == "" || core.ContainsFold(g.Name, search) {
			grades = append(grades, *g)
		}
	}
	sort.Slice(grades, func(i, j int) bool { return byName(grades[i].Name, grades[j].Name, grades[i].ID, grades[j].ID) })
	return grades, nil
}

// DeleteGrade unassigns the students of the grade.
func (repo *gradeRepository) DeleteGrade(_ context.Context, id int64) error {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	delete(repo.db.grades, id)
	for _, s := range repo.db.students {
		if s.GradeID.Valid && s.GradeID.Int64 == id {
			s.GradeID.Valid, s.GradeID.Int64 = false, 0
		}
	}
	return nil
}
