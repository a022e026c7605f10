package inmemdb

import (
	"context"
	"sort"

	"github.com/trezcool/escola/core/timeslot"
)

type timeSlotRepository struct {
	db *DB
}

func NewTimeSlotRepository(db *DB) timeslot.Repository {
	return &timeSlotRepository{db: db}
}

func (repo *timeSlotRepository) CreateTimeSlot(_ context.Context, ts timeslot.TimeSlot) (timeslot.TimeSlot, error) {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	ts.ID = repo.db.nextPK()
	repo.db.timeSlots[ts.ID] = &ts
	return ts, nil
}

func (repo *timeSlotRepository) UpdateTimeSlot(_ context.Context, ts timeslot.TimeSlot) (timeslot.TimeSlot, error) {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	if _, ok := repo.db.timeSlots[ts.ID]; !ok {
		return timeslot.TimeSlot{}, timeslot.ErrNotFound
	}
	repo.db.timeSlots[ts.ID] = &ts
	return ts, nil
}

func (repo *timeSlotRepository) GetTimeSlotByID(_ context.Context, id int64) (timeslot.TimeSlot, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	if ts, ok := repo.db.timeSlots[id]; ok {
		return *ts, nil
	}
	return timeslot.TimeSlot{}, timeslot.ErrNotFound
}

func (repo *timeSlotRepository) TimeSlotExists(_ context.Context, start, end string, excludeID int64) (bool, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	for _, ts := range repo.db.timeSlots {
		if ts.Start == start && ts.End == end && ts.ID != excludeID {
			return true, nil
		}
	}
	return false, nil
}

func (repo *timeSlotRepository) QueryTimeSlots(_ context.Context) ([]timeslot.TimeSlot, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	slots := make([]timeslot.TimeSlot, 0, len(repo.db.timeSlots))
	for _, ts := range repo.db.timeSlots {
		slots = append(slots, *ts)
	}
	sort.Slice(slots, func(i, j int) bool {
		if slots[i].Start == slots[j].Start {
			return slots[i].End < slots[j].End
		}
		return slots[i].Start < slots[j].Start
	})
	return slots, nil
}

// DeleteTimeSlot unassigns the students of the time slot.
func (repo *timeSlotRepository) DeleteTimeSlot(_ context.Context, id int64) error {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	delete(repo.db.timeSlots, id)
	for _, s := range repo.db.students {
		if s.TimeSlotID.Valid && s.TimeSlotID.Int64 == id {
			s.TimeSlotID.Valid, s.TimeSlotID.Int64 = false, 0
		}
	}
	return nil
}
