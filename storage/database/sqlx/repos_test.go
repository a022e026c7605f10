//go:build integration

package sqlxrepos_test

import (
	"context"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/volatiletech/null/v8"

	"github.com/trezcool/escola/core/access"
	"github.com/trezcool/escola/core/account"
	"github.com/trezcool/escola/core/activity"
	"github.com/trezcool/escola/core/grade"
	"github.com/trezcool/escola/core/presence"
	"github.com/trezcool/escola/core/school"
	"github.com/trezcool/escola/core/student"
	"github.com/trezcool/escola/core/timeslot"
	"github.com/trezcool/escola/storage/database"
	"github.com/trezcool/escola/storage/database/sqlx"
	"github.com/trezcool/escola/tests"
	"github.com/trezcool/escola/tests/testdb"
)

var h *testdb.Handle

func TestMain(m *testing.M) {
	var err error
	if h, err = testdb.Start(context.Background(), "postgres"); err != nil {
		fmt.Printf("testdb.Start(): %v", err)
		os.Exit(1)
	}
	code := m.Run()
	h.Close()
	os.Exit(code)
}

type repos struct {
	accounts   account.Repository
	access     access.Repository
	sessions   presence.Repository
	schools    school.Repository
	grades     grade.Repository
	slots      timeslot.Repository
	students   student.Repository
	activities activity.Repository
}

func setup(t *testing.T) repos {
	h.Truncate(t)
	r := repos{
		accounts:   sqlxrepos.NewAccountRepository(h.DB),
		access:     sqlxrepos.NewAccessRepository(h.DB),
		sessions:   sqlxrepos.NewSessionRepository(h.DB),
		schools:    sqlxrepos.NewSchoolRepository(h.DB),
		grades:     sqlxrepos.NewGradeRepository(h.DB),
		slots:      sqlxrepos.NewTimeSlotRepository(h.DB),
		students:   sqlxrepos.NewStudentRepository(h.DB),
		activities: sqlxrepos.NewActivityRepository(h.DB),
	}
	require.NoError(t, r.access.SeedPermissions(context.Background(), access.Catalog))
	return r
}

func TestAccountRepository(t *testing.T) {
	ctx := context.Background()
	r := setup(t)
	tom := testutil.CreateAccount(t, r.accounts, "Tom Teacher", "tom@escola.test", account.RoleTeacher, true)

	_, err := r.accounts.CreateAccount(ctx, account.Account{Name: "Tom", Email: "TOM@escola.test", Role: account.RoleTeacher, PasswordHash: []byte("x")})
	assert.Equal(t, account.ErrEmailExists, err, "emails are unique whatever the case")

	exists, err := r.accounts.EmailExists(ctx, "Tom@Escola.Test", 0)
	require.NoError(t, err)
	assert.True(t, exists)
	exists, err = r.accounts.EmailExists(ctx, "tom@escola.test", tom.ID)
	require.NoError(t, err)
	assert.False(t, exists)

	tom.LastLogin = null.TimeFrom(time.Now().UTC().Truncate(time.Microsecond))
	_, err = r.accounts.UpdateAccount(ctx, tom)
	require.NoError(t, err)
	got, err := r.accounts.GetAccountByEmail(ctx, "tom@escola.test")
	require.NoError(t, err)
	assert.True(t, tom.LastLogin.Time.Equal(got.LastLogin.Time))
	assert.NoError(t, got.CheckPassword(testutil.DefaultPassword))

	_, err = r.accounts.GetAccountByID(ctx, 424242)
	assert.Equal(t, account.ErrNotFound, err)
	_, err = r.accounts.UpdateAccount(ctx, account.Account{ID: 424242, Email: "x@y.z", Role: account.RoleTeacher})
	assert.Equal(t, account.ErrNotFound, err)

	testutil.CreateAccount(t, r.accounts, "Ana Director", "ana@escola.test", account.RoleDirector, true)
	accs, err := r.accounts.QueryAccounts(ctx, account.QueryFilter{Search: "ESCOLA"})
	require.NoError(t, err)
	require.Len(t, accs, 2)
	assert.Equal(t, "Ana Director", accs[0].Name)
	accs, err = r.accounts.QueryAccounts(ctx, account.QueryFilter{Role: "teacher"})
	require.NoError(t, err)
	require.Len(t, accs, 1)

	n, err := r.accounts.CountAccounts(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}

func TestAccessRepository(t *testing.T) {
	ctx := context.Background()
	r := setup(t)
	tom := testutil.CreateAccount(t, r.accounts, "Tom Teacher", "tom@escola.test", account.RoleTeacher, true)

	perms, err := r.access.QueryPermissions(ctx)
	require.NoError(t, err)
	assert.Len(t, perms, len(access.Catalog))
	require.NoError(t, r.access.SeedPermissions(ctx, access.Catalog), "seeding twice is fine")

	require.NoError(t, r.access.ReplaceGrants(ctx, tom.ID, []access.Code{access.SchoolCreate, access.GradeCreate}, nil))
	require.NoError(t, r.access.ReplaceGrants(ctx, tom.ID, []access.Code{access.StudentCreate}, []access.Code{access.GradeCreate}))
	codes, err := r.access.QueryGrantCodes(ctx, tom.ID)
	require.NoError(t, err)
	assert.Equal(t, []access.Code{access.SchoolCreate, access.StudentCreate}, codes)

	ok, err := r.access.HasGrant(ctx, tom.ID, access.StudentCreate)
	require.NoError(t, err)
	assert.True(t, ok)

	err = r.access.ReplaceGrants(ctx, tom.ID, []access.Code{access.GradeCreate, "BOGUS"}, []access.Code{access.SchoolCreate})
	assert.Equal(t, access.ErrUnknownCode, errors.Cause(err))
	codes, err = r.access.QueryGrantCodes(ctx, tom.ID)
	require.NoError(t, err)
	assert.Equal(t, []access.Code{access.SchoolCreate, access.StudentCreate}, codes, "a failed replace changes nothing")

	all, err := r.access.QueryAllGrants(ctx)
	require.NoError(t, err)
	assert.Equal(t, map[int64][]access.Code{tom.ID: {access.SchoolCreate, access.StudentCreate}}, all)
}

func TestSessionRepository(t *testing.T) {
	ctx := context.Background()
	r := setup(t)
	tom := testutil.CreateAccount(t, r.accounts, "Tom Teacher", "tom@escola.test", account.RoleTeacher, true)

	now := time.Now().UTC().Truncate(time.Second)
	s, err := r.sessions.CreateSession(ctx, presence.Session{AccountID: tom.ID, Token: "tok", CreatedAt: now, LastSeen: now, IsActive: true})
	require.NoError(t, err)
	assert.NotZero(t, s.ID)
	_, err = r.sessions.CreateSession(ctx, presence.Session{AccountID: tom.ID, Token: "tok", CreatedAt: now, LastSeen: now, IsActive: true})
	assert.Equal(t, presence.ErrTokenExists, err)

	later := now.Add(5 * time.Minute)
	require.NoError(t, r.sessions.TouchSession(ctx, "tok", later))
	got, err := r.sessions.GetSessionByToken(ctx, "tok")
	require.NoError(t, err)
	assert.True(t, later.Equal(got.LastSeen))

	require.NoError(t, r.sessions.DeactivateSession(ctx, "tok", tom.ID))
	assert.Equal(t, presence.ErrNotFound, errors.Cause(r.sessions.TouchSession(ctx, "tok", later)))

	_, err = r.sessions.CreateSession(ctx, presence.Session{AccountID: tom.ID, Token: "tok2", CreatedAt: now, LastSeen: now, IsActive: true})
	require.NoError(t, err)
	sums, err := r.sessions.SummarizeSessions(ctx, tom.ID, tom.ID+1000)
	require.NoError(t, err)
	require.Len(t, sums, 1)
	assert.True(t, later.Equal(sums[0].LastSeen))
	require.True(t, sums[0].LastActive.Valid)
	assert.True(t, now.Equal(sums[0].LastActive.Time))

	require.NoError(t, r.sessions.DeactivateAccountSessions(ctx, tom.ID))
	sums, err = r.sessions.SummarizeSessions(ctx, tom.ID)
	require.NoError(t, err)
	require.Len(t, sums, 1)
	assert.False(t, sums[0].LastActive.Valid)

	require.NoError(t, r.sessions.PruneSessions(ctx, tom.ID, now.Add(time.Minute)))
	_, err = r.sessions.GetSessionByToken(ctx, "tok2")
	assert.Equal(t, presence.ErrNotFound, err)
	_, err = r.sessions.GetSessionByToken(ctx, "tok")
	assert.NoError(t, err, "last seen after the cutoff")
}

func TestReferenceRepositories(t *testing.T) {
	ctx := context.Background()
	r := setup(t)
	now := time.Now().UTC()

	testutil.CreateSchool(t, r.schools, "Central")
	_, err := r.schools.CreateSchool(ctx, school.School{Name: "CENTRAL", CreatedAt: now})
	assert.Equal(t, school.ErrNameExists, err)
	exists, err := r.schools.SchoolNameExists(ctx, "central", 0)
	require.NoError(t, err)
	assert.True(t, exists)

	_, err = r.grades.CreateGrade(ctx, grade.Grade{Name: "5th", CreatedAt: now})
	require.NoError(t, err)
	_, err = r.grades.CreateGrade(ctx, grade.Grade{Name: "5TH", CreatedAt: now})
	assert.Equal(t, grade.ErrNameExists, err)

	slot, err := r.slots.CreateTimeSlot(ctx, timeslot.TimeSlot{Start: "08:00", End: "09:30", CreatedAt: now})
	require.NoError(t, err)
	assert.Equal(t, "08:00", slot.Start)
	assert.Equal(t, "09:30", slot.End)
	_, err = r.slots.CreateTimeSlot(ctx, timeslot.TimeSlot{Start: "10:00", End: "09:00", CreatedAt: now})
	assert.Equal(t, timeslot.ErrInvalidRange, err, "the database refuses inverted ranges too")
	_, err = r.slots.CreateTimeSlot(ctx, timeslot.TimeSlot{Start: "08:00", End: "09:30", CreatedAt: now})
	assert.Equal(t, timeslot.ErrExists, err)
	_, err = r.slots.GetTimeSlotByID(ctx, 424242)
	assert.Equal(t, timeslot.ErrNotFound, err)
}

func TestCascades(t *testing.T) {
	ctx := context.Background()
	r := setup(t)
	now := time.Now().UTC()

	sch := testutil.CreateSchool(t, r.schools, "Central")
	grd, err := r.grades.CreateGrade(ctx, grade.Grade{Name: "5th", CreatedAt: now})
	require.NoError(t, err)
	slot, err := r.slots.CreateTimeSlot(ctx, timeslot.TimeSlot{Start: "08:00", End: "09:00", CreatedAt: now})
	require.NoError(t, err)
	tiers, err := r.students.QueryFeeTiers(ctx)
	require.NoError(t, err)
	require.Len(t, tiers, 3)

	ana := testutil.CreateStudent(t, r.students, "Ana Alves", sch.ID)
	ana.GradeID = null.Int64From(grd.ID)
	ana.TimeSlotID = null.Int64From(slot.ID)
	ana.FeeTierID = null.Int64From(tiers[0].ID)
	ana, err = r.students.UpdateStudent(ctx, ana)
	require.NoError(t, err)
	assert.Equal(t, "Central", ana.SchoolName.String)
	assert.Equal(t, "5th", ana.GradeName.String)
	assert.Equal(t, "08:00 - 09:00", ana.TimeSlotLabel.String)
	assert.Equal(t, tiers[0].Label, ana.FeeTierLabel.String)

	tom := testutil.CreateAccount(t, r.accounts, "Tom Teacher", "tom@escola.test", account.RoleTeacher, true)
	lia := testutil.CreateAccount(t, r.accounts, "Lia Linked", "lia@escola.test", account.RoleGuardian, true, ana.ID)
	testutil.Grant(t, r.access, tom.ID, access.SchoolCreate)
	_, err = r.sessions.CreateSession(ctx, presence.Session{AccountID: tom.ID, Token: "tok", CreatedAt: now, LastSeen: now, IsActive: true})
	require.NoError(t, err)
	act, err := r.activities.CreateActivity(ctx, activity.Activity{
		StudentID: ana.ID, Date: now, Teacher: "Tom", Content: "Fractions", CreatedAt: now, UpdatedAt: now,
	})
	require.NoError(t, err)
	assert.Equal(t, "Ana Alves", act.StudentName)

	acts, err := r.activities.QueryActivities(ctx, activity.QueryFilter{Search: "alves"})
	require.NoError(t, err)
	assert.Len(t, acts, 1)

	t.Run("account", func(t *testing.T) {
		require.NoError(t, r.accounts.DeleteAccount(ctx, tom.ID))
		all, err := r.access.QueryAllGrants(ctx)
		require.NoError(t, err)
		assert.Empty(t, all)
		_, err = r.sessions.GetSessionByToken(ctx, "tok")
		assert.Equal(t, presence.ErrNotFound, err)
	})

	t.Run("references", func(t *testing.T) {
		require.NoError(t, r.schools.DeleteSchool(ctx, sch.ID))
		require.NoError(t, r.grades.DeleteGrade(ctx, grd.ID))
		require.NoError(t, r.slots.DeleteTimeSlot(ctx, slot.ID))
		got, err := r.students.GetStudentByID(ctx, ana.ID)
		require.NoError(t, err)
		assert.False(t, got.SchoolID.Valid)
		assert.False(t, got.GradeID.Valid)
		assert.False(t, got.TimeSlotID.Valid)
		assert.True(t, got.FeeTierID.Valid)
	})

	t.Run("student", func(t *testing.T) {
		require.NoError(t, r.students.DeleteStudent(ctx, ana.ID))
		_, err := r.activities.GetActivityByID(ctx, act.ID)
		assert.Equal(t, activity.ErrNotFound, err)
		acc, err := r.accounts.GetAccountByID(ctx, lia.ID)
		require.NoError(t, err)
		assert.False(t, acc.StudentID.Valid)
	})
}

// TestPgxDriver checks the error mapping when the pgx driver is used.
func TestPgxDriver(t *testing.T) {
	ctx := context.Background()
	setup(t)

	db, err := database.OpenDSN("pgx", h.DSN)
	require.NoError(t, err)
	defer func() { _ = db.Close() }()

	accounts := sqlxrepos.NewAccountRepository(db)
	testutil.CreateAccount(t, accounts, "Tom Teacher", "tom@escola.test", account.RoleTeacher, true)
	_, err = accounts.CreateAccount(ctx, account.Account{Name: "Tom", Email: "tom@ESCOLA.test", Role: account.RoleTeacher, PasswordHash: []byte("x")})
	assert.Equal(t, account.ErrEmailExists, err)

	_, err = sqlxrepos.NewTimeSlotRepository(db).CreateTimeSlot(ctx, timeslot.TimeSlot{Start: "10:00", End: "09:00", CreatedAt: time.Now()})
	assert.Equal(t, timeslot.ErrInvalidRange, err)
}
