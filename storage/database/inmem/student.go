package inmemdb

import (
	"context"
	"sort"

	"github.com/volatiletech/null/v8"

	"github.com/trezcool/escola/core"
	"github.com/trezcool/escola/core/student"
)

type studentRepository struct {
	db *DB
}

func NewStudentRepository(db *DB) student.Repository {
	return &studentRepository{db: db}
}

// join fills the read-only columns; must be called with the lock held.
func (repo *studentRepository) join(s student.Student) student.Student {
	s.SchoolName, s.GradeName, s.TimeSlotLabel, s.FeeTierLabel = null.String{}, null.String{}, null.String{}, null.String{}
	if s.SchoolID.Valid {
		if sch, ok := repo.db.schools[s.SchoolID.Int64]; ok {
			s.SchoolName = null.StringFrom(sch.Name)
		}
	}
	if s.GradeID.Valid {
		if g, ok := repo.db.grades[s.GradeID.Int64]; ok {
			s.GradeName = null.StringFrom(g.Name)
		}
	}
	if s.TimeSlotID.Valid {
		if ts, ok := repo.db.timeSlots[s.TimeSlotID.Int64]; ok {
			s.TimeSlotLabel = null.StringFrom(ts.Label())
		}
	}
	if s.FeeTierID.Valid {
		if ft, ok := repo.db.feeTiers[s.FeeTierID.Int64]; ok {
			s.FeeTierLabel = null.StringFrom(ft.Label)
		}
	}
	return s
}

func (repo *studentRepository) CreateStudent(_ context.Context, s student.Student) (student.Student, error) {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	s.ID = repo.db.nextPK()
	repo.db.students[s.ID] = &s
	return repo.join(s), nil
}

func (repo *studentRepository) UpdateStudent(_ context.Context, s student.Student) (student.Student, error) {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	if _, ok := repo.db.students[s.ID]; !ok {
		return student.Student{}, student.ErrNotFound
	}
	repo.db.students[s.ID] = &s
	return repo.join(s), nil
}

func (repo *studentRepository) GetStudentByID(_ context.Context, id int64) (student.Student, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	if s, ok := repo.db.students[id]; ok {
		return repo.join(*s), nil
	}
	return student.Student{}, student.ErrNotFound
}

func (repo *studentRepository) StudentExists(_ context.Context, id int64) (bool, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	_, ok := repo.db.students[id]
	return ok, nil
}

func (repo *studentRepository) QueryStudents(_ context.Context, filter student.QueryFilter) ([]student.Student, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	students := make([]student.Student, 0)
	for _, s := range repo.db.students {
		if filter.OnlyID != 0 && s.ID != filter.OnlyID {
			continue
		}
		if filter.Search != "" && !core.ContainsFold(s.Name, filter.Search) {
			continue
		}
		students = append(students, repo.join(*s))
	}
	sort.Slice(students, func(i, j int) bool {
		return byName(students[i].Name, students[j].Name, students[i].ID, students[j].ID)
	})
	if filter.Limit > 0 && len(students) > filter.Limit {
		students = students[:filter.Limit]
	}
	return students, nil
}

// DeleteStudent removes the student's activities and unlinks its accounts.
func (repo *studentRepository) DeleteStudent(_ context.Context, id int64) error {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	delete(repo.db.students, id)
	for actID, act := range repo.db.activities {
		if act.StudentID == id {
			delete(repo.db.activities, actID)
		}
	}
	for _, acc := range repo.db.accounts {
		if acc.StudentID.Valid && acc.StudentID.Int64 == id {
			acc.StudentID = null.Int64{}
		}
	}
	return nil
}

func (repo *studentRepository) QueryFeeTiers(_ context.Context) ([]student.FeeTier, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	tiers := make([]student.FeeTier, 0, len(repo.db.feeTiers))
	for _, ft := range repo.db.feeTiers {
		tiers = append(tiers, *ft)
	}
	sort.Slice(tiers, func(i, j int) bool { return tiers[i].MonthlyCents < tiers[j].MonthlyCents })
	return tiers, nil
}

func (repo *studentRepository) GetFeeTierByID(_ context.Context, id int64) (student.FeeTier, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	if ft, ok := repo.db.feeTiers[id]; ok {
		return *ft, nil
	}
	return student.FeeTier{}, student.ErrFeeTierNotFound
}
