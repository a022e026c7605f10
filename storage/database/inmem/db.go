// Package inmemdb keeps every table in memory. It backs the tests and the demo mode
// and reproduces the referential actions of the SQL schema.
package inmemdb

import (
	"sync"

	"github.com/trezcool/escola/core/access"
	"github.com/trezcool/escola/core/account"
	"github.com/trezcool/escola/core/activity"
	"github.com/trezcool/escola/core/grade"
	"github.com/trezcool/escola/core/presence"
	"github.com/trezcool/escola/core/school"
	"github.com/trezcool/escola/core/student"
	"github.com/trezcool/escola/core/timeslot"
)

type grantKey struct {
	accountID int64
	code      access.Code
}

type DB struct {
	mutex sync.RWMutex
	pk    int64

	accounts    map[int64]*account.Account
	permissions map[access.Code]*access.Permission
	grants      map[grantKey]struct{}
	sessions    map[string]*presence.Session
	schools     map[int64]*school.School
	grades      map[int64]*grade.Grade
	timeSlots   map[int64]*timeslot.TimeSlot
	students    map[int64]*student.Student
	feeTiers    map[int64]*student.FeeTier
	activities  map[int64]*activity.Activity
}

func NewDB() *DB {
	db := &DB{}
	db.Reset()
	return db
}

// Reset drops every row, then seeds the fee tiers like the SQL migrations do.
func (db *DB) Reset() {
	db.mutex.Lock()
	defer db.mutex.Unlock()

	db.pk = 0
	db.accounts = make(map[int64]*account.Account)
	db.permissions = make(map[access.Code]*access.Permission)
	db.grants = make(map[grantKey]struct{})
	db.sessions = make(map[string]*presence.Session)
	db.schools = make(map[int64]*school.School)
	db.grades = make(map[int64]*grade.Grade)
	db.timeSlots = make(map[int64]*timeslot.TimeSlot)
	db.students = make(map[int64]*student.Student)
	db.feeTiers = make(map[int64]*student.FeeTier)
	db.activities = make(map[int64]*activity.Activity)

	for _, ft := range []student.FeeTier{
		{Code: "170", Label: "Tier 170", MonthlyCents: 17000},
		{Code: "180", Label: "Tier 180", MonthlyCents: 18000},
		{Code: "190", Label: "Tier 190", MonthlyCents: 19000},
	} {
		ft := ft
		ft.ID = db.nextPK()
		db.feeTiers[ft.ID] = &ft
	}
}

// nextPK must be called with the write lock held.
func (db *DB) nextPK() int64 {
	db.pk++
	return db.pk
}
