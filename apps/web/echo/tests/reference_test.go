package tests

import (
	"context"
	"net/http"
	"net/url"
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/volatiletech/null/v8"

	"github.com/trezcool/escola/core/access"
	"github.com/trezcool/escola/core/account"
	"github.com/trezcool/escola/core/student"
	"github.com/trezcool/escola/tests"
)

const forbidden = "permission for this task."

func Test_web_schools(t *testing.T) {
	resetDB(t)

	dir := testutil.CreateAccount(t, accRepo, "Dina Director", "dina@escola.test", account.RoleDirector, true)
	granted := testutil.CreateAccount(t, accRepo, "Gus Granted", "gus@escola.test", account.RoleTeacher, true)
	plain := testutil.CreateAccount(t, accRepo, "Pia Plain", "pia@escola.test", account.RoleTeacher, true)
	testutil.Grant(t, accessRepo, granted.ID, access.SchoolCreate)

	dirC, grantedC, plainC := login(t, dir.Email), login(t, granted.Email), login(t, plain.Email)
	name := func(n string) url.Values { return url.Values{"name": {n}} }

	tests := []httpTest{
		{name: "Empty list", client: plainC, path: "/schools", wantBody: []string{"No Schools found."}, notBody: []string{"New school"}},
		{
			name: "Create without grant", client: plainC, method: http.MethodPost, path: "/schools/new", form: name("Alpha"),
			wantCode: http.StatusSeeOther, wantLocation: "/", wantFlash: forbidden,
		},
		{
			name: "Create with grant", client: grantedC, method: http.MethodPost, path: "/schools/new", form: name("  Alpha  "),
			wantCode: http.StatusSeeOther, wantLocation: "/schools", wantFlash: "School Alpha created.",
		},
		{
			name: "Name taken, any case", client: dirC, method: http.MethodPost, path: "/schools/new", form: name("ALPHA"),
			wantCode: http.StatusBadRequest, wantBody: []string{"a school with this name already exists"},
		},
		{
			name: "Name required", client: dirC, method: http.MethodPost, path: "/schools/new", form: name("   "),
			wantCode: http.StatusBadRequest, wantBody: []string{`class="error"`},
		},
		{
			name: "Director bypasses grants", client: dirC, method: http.MethodPost, path: "/schools/new", form: name("Beta"),
			wantCode: http.StatusSeeOther, wantFlash: "School Beta created.",
		},
		{name: "Search", client: plainC, path: "/schools?q=bet", wantBody: []string{"Beta"}, notBody: []string{"Alpha"}},
		{name: "Create link shown with grant", client: grantedC, path: "/schools", wantBody: []string{"New school"}},
		{
			name: "Edit without grant", client: grantedC, path: "/schools/1/edit",
			wantCode: http.StatusSeeOther, wantFlash: forbidden,
		},
	}
	runHTTPTests(t, tests)

	schools, err := schoolRepo.QuerySchools(context.Background(), "")
	require.NoError(t, err)
	require.Len(t, schools, 2)
	alpha, beta := schools[0], schools[1]
	alphaPath := "/schools/" + strconv.FormatInt(alpha.ID, 10)

	t.Run("Rename keeps its own name free", func(t *testing.T) {
		rec := dirC.post(alphaPath+"/edit", name("alpha"))
		assert.Equal(t, http.StatusSeeOther, rec.Code)
		rec = dirC.post(alphaPath+"/edit", name("beta"))
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("Unknown school", func(t *testing.T) {
		rec := dirC.get("/schools/999999/edit")
		assert.Equal(t, http.StatusSeeOther, rec.Code)
		assert.Contains(t, dirC.follow(rec).Body.String(), "School not found.")
	})

	t.Run("Deleting a school unlinks its students", func(t *testing.T) {
		st := testutil.CreateStudent(t, studentRepo, "Sam Student", beta.ID)
		rec := dirC.post("/schools/"+strconv.FormatInt(beta.ID, 10)+"/delete", nil)
		require.Equal(t, http.StatusSeeOther, rec.Code)

		got, err := studentRepo.GetStudentByID(context.Background(), st.ID)
		require.NoError(t, err)
		assert.False(t, got.SchoolID.Valid)
	})
}

func Test_web_grades(t *testing.T) {
	resetDB(t)

	dir := testutil.CreateAccount(t, accRepo, "Dina Director", "dina@escola.test", account.RoleDirector, true)
	dirC := login(t, dir.Email)

	tests := []httpTest{
		{
			name: "Create", client: dirC, method: http.MethodPost, path: "/grades/new", form: url.Values{"name": {"1st year"}},
			wantCode: http.StatusSeeOther, wantLocation: "/grades", wantFlash: "Grade 1st year created.",
		},
		{
			name: "Name taken", client: dirC, method: http.MethodPost, path: "/grades/new", form: url.Values{"name": {"1ST YEAR"}},
			wantCode: http.StatusBadRequest, wantBody: []string{"a grade (series) with this name already exists"},
		},
		{name: "List", client: dirC, path: "/grades", wantBody: []string{"1st year", "New grade", "Delete"}},
	}
	runHTTPTests(t, tests)
}

func Test_web_timeslots(t *testing.T) {
	resetDB(t)

	dir := testutil.CreateAccount(t, accRepo, "Dina Director", "dina@escola.test", account.RoleDirector, true)
	dirC := login(t, dir.Email)
	slot := func(start, end string) url.Values { return url.Values{"start": {start}, "end": {end}} }

	tests := []httpTest{
		{
			name: "End before start", client: dirC, method: http.MethodPost, path: "/timeslots/new", form: slot("10:00", "09:00"),
			wantCode: http.StatusBadRequest, wantBody: []string{"end time must be after start time"},
		},
		{
			name: "End equals start", client: dirC, method: http.MethodPost, path: "/timeslots/new", form: slot("10:00", "10:00"),
			wantCode: http.StatusBadRequest, wantBody: []string{"end time must be after start time"},
		},
		{
			name: "Bad format", client: dirC, method: http.MethodPost, path: "/timeslots/new", form: slot("25:00", "26:00"),
			wantCode: http.StatusBadRequest, wantBody: []string{"HH:MM"},
		},
		{
			name: "Created", client: dirC, method: http.MethodPost, path: "/timeslots/new", form: slot("8:00", "11:30"),
			wantCode: http.StatusSeeOther, wantLocation: "/timeslots", wantFlash: "Time slot 08:00 - 11:30 created.",
		},
		{
			name: "Duplicate", client: dirC, method: http.MethodPost, path: "/timeslots/new", form: slot("08:00", "11:30"),
			wantCode: http.StatusBadRequest, wantBody: []string{"a time slot with these start and end times already exists"},
		},
		{name: "List", client: dirC, path: "/timeslots", wantBody: []string{"08:00", "11:30"}},
	}
	runHTTPTests(t, tests)

	t.Run("Students keep existing when their slot goes", func(t *testing.T) {
		slots, err := slotRepo.QueryTimeSlots(context.Background())
		require.NoError(t, err)
		require.Len(t, slots, 1)
		st, err := studentRepo.CreateStudent(context.Background(), student.Student{Name: "Sam", TimeSlotID: null.Int64From(slots[0].ID)})
		require.NoError(t, err)

		rec := dirC.post("/timeslots/"+strconv.FormatInt(slots[0].ID, 10)+"/delete", nil)
		require.Equal(t, http.StatusSeeOther, rec.Code)

		got, err := studentRepo.GetStudentByID(context.Background(), st.ID)
		require.NoError(t, err)
		assert.False(t, got.TimeSlotID.Valid)
	})
}
