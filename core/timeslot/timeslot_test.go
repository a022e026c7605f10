package timeslot_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/escola/core"
	"github.com/trezcool/escola/core/timeslot"
	"github.com/trezcool/escola/storage/database/inmem"
)

func newService() *timeslot.Service {
	validate, translator := core.NewValidator()
	return timeslot.NewService(inmemdb.NewTimeSlotRepository(inmemdb.NewDB()), validate, translator)
}

func TestTimeSlotData_Validate(t *testing.T) {
	validate, translator := core.NewValidator()

	tests := []struct {
		name      string
		start     string
		end       string
		wantErr   bool
		wantField string
		wantStart string
	}{
		{name: "valid", start: "08:00", end: "11:30", wantStart: "08:00"},
		{name: "one minute long", start: "08:00", end: "08:01", wantStart: "08:00"},
		{name: "short hour normalized", start: "8:05", end: "9:00", wantStart: "08:05"},
		{name: "seconds dropped", start: "08:05:00", end: "09:00:00", wantStart: "08:05"},
		{name: "end equals start", start: "10:00", end: "10:00", wantErr: true, wantField: "end"},
		{name: "end before start", start: "10:00", end: "09:59", wantErr: true, wantField: "end"},
		{name: "past midnight", start: "23:00", end: "00:30", wantErr: true, wantField: "end"},
		{name: "bad start", start: "25:00", end: "26:00", wantErr: true, wantField: "start"},
		{name: "missing end", start: "10:00", end: " ", wantErr: true, wantField: "end"},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			d := timeslot.TimeSlotData{Start: tt.start, End: tt.end}
			err := d.Validate(validate, translator)
			if !tt.wantErr {
				require.NoError(t, err)
				assert.Equal(t, tt.wantStart, d.Start)
				return
			}
			require.Error(t, err)
			verr, ok := err.(*core.ValidationError)
			require.True(t, ok)
			assert.Contains(t, verr.FieldMap(), tt.wantField)
		})
	}
}

func TestService(t *testing.T) {
	ctx := context.Background()
	svc := newService()

	first, err := svc.Create(ctx, timeslot.TimeSlotData{Start: "13:00", End: "17:00"})
	require.NoError(t, err)
	assert.Equal(t, "13:00 - 17:00", first.Label())

	_, err = svc.Create(ctx, timeslot.TimeSlotData{Start: "8:00", End: "11:30"})
	require.NoError(t, err)

	_, err = svc.Create(ctx, timeslot.TimeSlotData{Start: "13:00", End: "17:00:00"})
	require.Error(t, err)
	assert.Equal(t, timeslot.ErrExists, err.(*core.ValidationError).Err)

	slots, err := svc.Query(ctx)
	require.NoError(t, err)
	require.Len(t, slots, 2)
	assert.Equal(t, "08:00", slots[0].Start, "ordered by start time")

	// an update may keep its own times
	_, err = svc.Update(ctx, first.ID, timeslot.TimeSlotData{Start: "13:00", End: "17:00"})
	require.NoError(t, err)
	_, err = svc.Update(ctx, first.ID, timeslot.TimeSlotData{Start: "08:00", End: "11:30"})
	assert.Error(t, err)
	_, err = svc.Update(ctx, first.ID, timeslot.TimeSlotData{Start: "17:00", End: "13:00"})
	assert.Equal(t, timeslot.ErrInvalidRange, err.(*core.ValidationError).Err)

	require.NoError(t, svc.Delete(ctx, first.ID))
	assert.Equal(t, timeslot.ErrNotFound, svc.Delete(ctx, first.ID))
}
