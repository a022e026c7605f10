package inmemdb

import (
	"context"
	"sort"

	"github.com/trezcool/escola/core"
	"github.com/trezcool/escola/core/activity"
)

type activityRepository struct {
	db *DB
}

func NewActivityRepository(db *DB) activity.Repository {
	return &activityRepository{db: db}
}

// join must be called with the lock held.
func (repo *activityRepository) join(act activity.Activity) activity.Activity {
	act.StudentName = ""
	if s, ok := repo.db.students[act.StudentID]; ok {
		act.StudentName = s.Name
	}
	return act
}

func (repo *activityRepository) CreateActivity(_ context.Context, act activity.Activity) (activity.Activity, error) {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	if _, ok := repo.db.students[act.StudentID]; !ok {
		return activity.Activity{}, errMissingRow("student")
	}
	act.ID = repo.db.nextPK()
	repo.db.activities[act.ID] = &act
	return repo.join(act), nil
}

func (repo *activityRepository) UpdateActivity(_ context.Context, act activity.Activity) (activity.Activity, error) {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	if _, ok := repo.db.activities[act.ID]; !ok {
		return activity.Activity{}, activity.ErrNotFound
	}
	if _, ok := repo.db.students[act.StudentID]; !ok {
		return activity.Activity{}, errMissingRow("student")
	}
	repo.db.activities[act.ID] = &act
	return repo.join(act), nil
}

func (repo *activityRepository) GetActivityByID(_ context.Context, id int64) (activity.Activity, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	if act, ok := repo.db.activities[id]; ok {
		return repo.join(*act), nil
	}
	return activity.Activity{}, activity.ErrNotFound
}

func (repo *activityRepository) QueryActivities(_ context.Context, filter activity.QueryFilter) ([]activity.Activity, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	acts := make([]activity.Activity, 0)
	for _, act := range repo.db.activities {
		if filter.OnlyStudentID != 0 && act.StudentID != filter.OnlyStudentID {
			continue
		}
		joined := repo.join(*act)
		if filter.Search != "" && !core.ContainsFold(joined.StudentName, filter.Search) {
			continue
		}
		acts = append(acts, joined)
	}
	sort.Slice(acts, func(i, j int) bool {
		if acts[i].Date.Equal(acts[j].Date) {
			return acts[i].ID > acts[j].ID
		}
		return acts[i].Date.After(acts[j].Date)
	})
	return acts, nil
}

func (repo *activityRepository) DeleteActivity(_ context.Context, id int64) error {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	delete(repo.db.activities, id)
	return nil
}
