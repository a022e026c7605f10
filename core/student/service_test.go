package student_test

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/escola/core"
	"github.com/trezcool/escola/core/access"
	"github.com/trezcool/escola/core/school"
	"github.com/trezcool/escola/core/student"
	"github.com/trezcool/escola/storage/database/inmem"
	"github.com/trezcool/escola/tests"
)

type fixture struct {
	svc     *student.Service
	repo    student.Repository
	schools school.Repository
}

func setup() fixture {
	db := inmemdb.NewDB()
	validate, translator := core.NewValidator()
	f := fixture{
		repo:    inmemdb.NewStudentRepository(db),
		schools: inmemdb.NewSchoolRepository(db),
	}
	f.svc = student.NewService(
		f.repo,
		f.schools,
		inmemdb.NewGradeRepository(db),
		inmemdb.NewTimeSlotRepository(db),
		validate,
		translator,
	)
	return f
}

func TestService_Visible(t *testing.T) {
	ctx := context.Background()
	f := setup()
	ana := testutil.CreateStudent(t, f.repo, "Ana Alves")
	bruno := testutil.CreateStudent(t, f.repo, "Bruno Braga")
	testutil.CreateStudent(t, f.repo, "Carla Costa")

	tests := []struct {
		name   string
		scope  access.Scope
		filter student.QueryFilter
		want   []string
	}{
		{name: "everyone", scope: access.Scope{All: true}, want: []string{"Ana Alves", "Bruno Braga", "Carla Costa"}},
		{name: "search", scope: access.Scope{All: true}, filter: student.QueryFilter{Search: " bRa "}, want: []string{"Bruno Braga"}},
		{name: "linked", scope: access.Scope{StudentID: ana.ID}, want: []string{"Ana Alves"}},
		{name: "linked, search elsewhere", scope: access.Scope{StudentID: ana.ID}, filter: student.QueryFilter{Search: "Bruno"}, want: []string{}},
		{name: "linked, filter cannot widen", scope: access.Scope{StudentID: ana.ID}, filter: student.QueryFilter{OnlyID: bruno.ID}, want: []string{"Ana Alves"}},
		{name: "unlinked", scope: access.Scope{}, want: []string{}},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			got, err := f.svc.Visible(ctx, tt.scope, tt.filter)
			require.NoError(t, err)
			names := make([]string, 0, len(got))
			for _, s := range got {
				names = append(names, s.Name)
			}
			assert.Equal(t, tt.want, names)
		})
	}

	t.Run("GetVisible", func(t *testing.T) {
		_, err := f.svc.GetVisible(ctx, access.Scope{StudentID: ana.ID}, bruno.ID)
		assert.Equal(t, student.ErrNotFound, err)
		_, err = f.svc.GetVisible(ctx, access.Scope{}, ana.ID)
		assert.Equal(t, student.ErrNotFound, err)
		got, err := f.svc.GetVisible(ctx, access.Scope{All: true}, bruno.ID)
		require.NoError(t, err)
		assert.Equal(t, "Bruno Braga", got.Name)
	})

	t.Run("Search is capped", func(t *testing.T) {
		for i := 0; i < student.SearchLimit+5; i++ {
			testutil.CreateStudent(t, f.repo, fmt.Sprintf("Zeca %02d", i))
		}
		got, err := f.svc.Search(ctx, access.Scope{All: true}, "zeca")
		require.NoError(t, err)
		assert.Len(t, got, student.SearchLimit)
	})
}

func TestService_CreateUpdate(t *testing.T) {
	ctx := context.Background()
	f := setup()
	sch := testutil.CreateSchool(t, f.schools, "Central")
	tiers, err := f.svc.FeeTiers(ctx)
	require.NoError(t, err)
	require.Len(t, tiers, 3)
	assert.Equal(t, "Tier 170", tiers[0].Label, "cheapest first")

	tests := []struct {
		name       string
		data       student.StudentData
		wantFields []string
	}{
		{name: "name required", data: student.StudentData{Name: "  "}, wantFields: []string{"name"}},
		{name: "bad dates", data: student.StudentData{Name: "Ana", BirthDate: "09/03/2015", ClassesStart: "soon"}, wantFields: []string{"birth_date", "classes_start"}},
		{name: "bad sex", data: student.StudentData{Name: "Ana", Sex: "X"}, wantFields: []string{"sex"}},
		{
			name:       "missing references",
			data:       student.StudentData{Name: "Ana", SchoolID: 999, GradeID: 998, TimeSlotID: 997, FeeTierID: 996},
			wantFields: []string{"school_id", "grade_id", "timeslot_id", "fee_tier_id"},
		},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.svc.Create(ctx, tt.data)
			require.Error(t, err)
			verr, ok := err.(*core.ValidationError)
			require.True(t, ok, err)
			for _, fld := range tt.wantFields {
				assert.Contains(t, verr.FieldMap(), fld)
			}
		})
	}

	st, err := f.svc.Create(ctx, student.StudentData{
		Name:                   " Clara Costa ",
		SchoolID:               sch.ID,
		FeeTierID:              tiers[1].ID,
		BirthDate:              "2015-03-09",
		LearningDifficultyNote: "dropped, the flag is off",
		ControlledMedication:   true,
		MedicationNote:         "ritalin",
		PhotoName:              "clara.jpg",
	})
	require.NoError(t, err)
	assert.Equal(t, "Clara Costa", st.Name)
	assert.Equal(t, "Central", st.SchoolName.String)
	assert.Equal(t, "Tier 180", st.FeeTierLabel.String)
	assert.Empty(t, st.LearningDifficultyNote)
	assert.Equal(t, "ritalin", st.MedicationNote)
	assert.Equal(t, 9, st.Age(time.Date(2025, 3, 8, 0, 0, 0, 0, time.UTC)))
	assert.Equal(t, 10, st.Age(time.Date(2025, 3, 9, 0, 0, 0, 0, time.UTC)))

	data := student.DataFrom(st)
	data.SchoolID = 0
	upd, err := f.svc.Update(ctx, st.ID, data)
	require.NoError(t, err)
	assert.False(t, upd.SchoolID.Valid)
	assert.Equal(t, "clara.jpg", upd.PhotoName.String, "photo kept")
	assert.Equal(t, "2015-03-09", student.DataFrom(upd).BirthDate)

	_, err = f.svc.Update(ctx, 424242, data)
	assert.Equal(t, student.ErrNotFound, err)

	deleted, err := f.svc.Delete(ctx, st.ID)
	require.NoError(t, err)
	assert.Equal(t, "clara.jpg", deleted.PhotoName.String)
	exists, err := f.svc.StudentExists(ctx, st.ID)
	require.NoError(t, err)
	assert.False(t, exists)
}
