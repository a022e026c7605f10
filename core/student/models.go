package student

import (
	"time"

	"github.com/volatiletech/null/v8"

	"github.com/trezcool/escola/core"
)

type Student struct {
	ID         int64       `db:"id"`
	Name       string      `db:"name"`
	SchoolID   null.Int64  `db:"school_id"`
	GradeID    null.Int64  `db:"grade_id"`
	TimeSlotID null.Int64  `db:"timeslot_id"`
	FeeTierID  null.Int64  `db:"fee_tier_id"`
	PhotoName  null.String `db:"photo_name"`
	Profile
	CreatedAt time.Time `db:"created_at"` // UTC
	UpdatedAt time.Time `db:"updated_at"` // UTC

	// read-only, joined from the referenced rows
	SchoolName    null.String `db:"school_name"`
	GradeName     null.String `db:"grade_name"`
	TimeSlotLabel null.String `db:"timeslot_label"`
	FeeTierLabel  null.String `db:"fee_tier_label"`
}

// Profile holds the optional demographic and enrollment details of a Student.
type Profile struct {
	BirthDate              null.Time `db:"birth_date"`
	Sex                    string    `db:"sex"` // F | M | ""
	Birthplace             string    `db:"birthplace"`
	Nationality            string    `db:"nationality"`
	FatherName             string    `db:"father_name"`
	MotherName             string    `db:"mother_name"`
	Address                string    `db:"address"`
	AddressNumber          string    `db:"address_number"`
	District               string    `db:"district"`
	Mobile                 string    `db:"mobile"`
	Landline               string    `db:"landline"`
	MotherPhone            string    `db:"mother_phone"`
	LearningDifficulty     bool      `db:"learning_difficulty"`
	LearningDifficultyNote string    `db:"learning_difficulty_note"`
	ControlledMedication   bool      `db:"controlled_medication"`
	MedicationNote         string    `db:"medication_note"`
	ClassesStart           null.Time `db:"classes_start"`
	Notes                  string    `db:"notes"`
}

// Age in full years at `now`; -1 when the birth date is unknown.
func (s Student) Age(now time.Time) int {
	if !s.BirthDate.Valid {
		return -1
	}
	bd := s.BirthDate.Time
	age := now.Year() - bd.Year()
	if now.Month() < bd.Month() || (now.Month() == bd.Month() && now.Day() < bd.Day()) {
		age--
	}
	return age
}

// FeeTier is a monthly-fee tier a Student may be enrolled in.
type FeeTier struct {
	ID           int64  `db:"id"`
	Code         string `db:"code"`
	Label        string `db:"label"`
	MonthlyCents int64  `db:"monthly_cents"`
}

// StudentData is the form used to create or edit a Student.
type StudentData struct {
	Name                   string `form:"name" validate:"required,max=150"`
	SchoolID               int64  `form:"school_id" validate:"gte=0"`
	GradeID                int64  `form:"grade_id" validate:"gte=0"`
	TimeSlotID             int64  `form:"timeslot_id" validate:"gte=0"`
	FeeTierID              int64  `form:"fee_tier_id" validate:"gte=0"`
	BirthDate              string `form:"birth_date" validate:"omitempty,isodate"`
	Sex                    string `form:"sex" validate:"omitempty,oneof=F M"`
	Birthplace             string `form:"birthplace" validate:"max=100"`
	Nationality            string `form:"nationality" validate:"max=100"`
	FatherName             string `form:"father_name" validate:"max=150"`
	MotherName             string `form:"mother_name" validate:"max=150"`
	Address                string `form:"address" validate:"max=200"`
	AddressNumber          string `form:"address_number" validate:"max=20"`
	District               string `form:"district" validate:"max=100"`
	Mobile                 string `form:"mobile" validate:"max=30"`
	Landline               string `form:"landline" validate:"max=30"`
	MotherPhone            string `form:"mother_phone" validate:"max=30"`
	LearningDifficulty     bool   `form:"learning_difficulty"`
	LearningDifficultyNote string `form:"learning_difficulty_note"`
	ControlledMedication   bool   `form:"controlled_medication"`
	MedicationNote         string `form:"medication_note"`
	ClassesStart           string `form:"classes_start" validate:"omitempty,isodate"`
	Notes                  string `form:"notes"`

	// PhotoName is set by the caller once an uploaded photo is stored.
	PhotoName string `form:"-"`
}

func (d *StudentData) Clean() {
	d.Name = core.CleanString(d.Name)
	d.BirthDate = core.CleanString(d.BirthDate)
	d.Sex = core.CleanString(d.Sex)
	d.Birthplace = core.CleanString(d.Birthplace)
	d.Nationality = core.CleanString(d.Nationality)
	d.FatherName = core.CleanString(d.FatherName)
	d.MotherName = core.CleanString(d.MotherName)
	d.Address = core.CleanString(d.Address)
	d.AddressNumber = core.CleanString(d.AddressNumber)
	d.District = core.CleanString(d.District)
	d.Mobile = core.CleanString(d.Mobile)
	d.Landline = core.CleanString(d.Landline)
	d.MotherPhone = core.CleanString(d.MotherPhone)
	d.LearningDifficultyNote = core.CleanString(d.LearningDifficultyNote)
	d.MedicationNote = core.CleanString(d.MedicationNote)
	d.ClassesStart = core.CleanString(d.ClassesStart)
	d.Notes = core.CleanString(d.Notes)
	if !d.LearningDifficulty {
		d.LearningDifficultyNote = ""
	}
	if !d.ControlledMedication {
		d.MedicationNote = ""
	}
}

// apply copies the (validated) form onto `s`, keeping the current photo when no new one was stored.
func (d StudentData) apply(s *Student) {
	s.Name = d.Name
	s.SchoolID = nullID(d.SchoolID)
	s.GradeID = nullID(d.GradeID)
	s.TimeSlotID = nullID(d.TimeSlotID)
	s.FeeTierID = nullID(d.FeeTierID)
	if d.PhotoName != "" {
		s.PhotoName = null.StringFrom(d.PhotoName)
	}
	s.Profile = Profile{
		BirthDate:              nullDate(d.BirthDate),
		Sex:                    d.Sex,
		Birthplace:             d.Birthplace,
		Nationality:            d.Nationality,
		FatherName:             d.FatherName,
		MotherName:             d.MotherName,
		Address:                d.Address,
		AddressNumber:          d.AddressNumber,
		District:               d.District,
		Mobile:                 d.Mobile,
		Landline:               d.Landline,
		MotherPhone:            d.MotherPhone,
		LearningDifficulty:     d.LearningDifficulty,
		LearningDifficultyNote: d.LearningDifficultyNote,
		ControlledMedication:   d.ControlledMedication,
		MedicationNote:         d.MedicationNote,
		ClassesStart:           nullDate(d.ClassesStart),
		Notes:                  d.Notes,
	}
}

// DataFrom fills a form with the current values of `s`, for editing.
func DataFrom(s Student) StudentData {
	return StudentData{
		Name:                   s.Name,
		SchoolID:               s.SchoolID.Int64,
		GradeID:                s.GradeID.Int64,
		TimeSlotID:             s.TimeSlotID.Int64,
		FeeTierID:              s.FeeTierID.Int64,
		BirthDate:              formatDate(s.BirthDate),
		Sex:                    s.Sex,
		Birthplace:             s.Birthplace,
		Nationality:            s.Nationality,
		FatherName:             s.FatherName,
		MotherName:             s.MotherName,
		Address:                s.Address,
		AddressNumber:          s.AddressNumber,
		District:               s.District,
		Mobile:                 s.Mobile,
		Landline:               s.Landline,
		MotherPhone:            s.MotherPhone,
		LearningDifficulty:     s.LearningDifficulty,
		LearningDifficultyNote: s.LearningDifficultyNote,
		ControlledMedication:   s.ControlledMedication,
		MedicationNote:         s.MedicationNote,
		ClassesStart:           formatDate(s.ClassesStart),
		Notes:                  s.Notes,
	}
}

type QueryFilter struct {
	Search string `query:"q"`
	// OnlyID restricts the result to one Student when set.
	OnlyID int64 `query:"-"`
	Limit  int   `query:"-"`
}

func nullID(id int64) null.Int64 {
	return null.NewInt64(id, id > 0)
}

func nullDate(s string) null.Time {
	t, err := time.Parse(core.DateLayout, s)
	if err != nil {
		return null.Time{}
	}
	return null.TimeFrom(t)
}

func formatDate(t null.Time) string {
	if !t.Valid {
		return ""
	}
	return t.Time.Format(core.DateLayout)
}
