// Package export renders lists as spreadsheets.
package export

import (
	"io"
	"strconv"
	"time"

	"github.com/pkg/errors"
	"github.com/xuri/excelize/v2"

	"github.com/trezcool/escola/core"
	"github.com/trezcool/escola/core/student"
)

const sheet = "Students"

var studentHeader = []interface{}{
	"ID", "Name", "School", "Grade", "Time slot", "Fee tier", "Birth date", "Age",
	"Sex", "Father", "Mother", "Mobile", "Landline", "District", "Classes start",
}

// Students writes the given students as an xlsx workbook to `w`.
func Students(w io.Writer, students []student.Student, now time.Time) error {
	f := excelize.NewFile()
	defer func() { _ = f.Close() }()

	if err := f.SetSheetName("Sheet1", sheet); err != nil {
		return errors.Wrap(err, "naming sheet")
	}
	if err := f.SetSheetRow(sheet, "A1", &studentHeader); err != nil {
		return errors.Wrap(err, "writing header")
	}
	bold, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return errors.Wrap(err, "creating header style")
	}
	lastCol, _ := excelize.ColumnNumberToName(len(studentHeader))
	if err = f.SetCellStyle(sheet, "A1", lastCol+"1", bold); err != nil {
		return errors.Wrap(err, "styling header")
	}

	for i, s := range students {
		age := ""
		if a := s.Age(now); a >= 0 {
			age = strconv.Itoa(a)
		}
		row := []interface{}{
			s.ID, s.Name, s.SchoolName.String, s.GradeName.String, s.TimeSlotLabel.String,
			s.FeeTierLabel.String, date(s.BirthDate.Valid, s.BirthDate.Time), age,
			s.Sex, s.FatherName, s.MotherName, s.Mobile, s.Landline, s.District,
			date(s.ClassesStart.Valid, s.ClassesStart.Time),
		}
		cell, _ := excelize.CoordinatesToCellName(1, i+2)
		if err = f.SetSheetRow(sheet, cell, &row); err != nil {
			return errors.Wrapf(err, "writing row %d", i+2)
		}
	}

	lastCell, _ := excelize.CoordinatesToCellName(len(studentHeader), len(students)+1)
	if err = f.AutoFilter(sheet, "A1:"+lastCell, nil); err != nil {
		return errors.Wrap(err, "adding filter")
	}
	if err = f.SetColWidth(sheet, "B", "B", 30); err != nil {
		return errors.Wrap(err, "sizing columns")
	}
	_, err = f.WriteTo(w)
	return errors.Wrap(err, "writing workbook")
}

func date(valid bool, t time.Time) string {
	if !valid {
		return ""
	}
	return t.Format(core.DateLayout)
}
