package echoweb

import (
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/escola/core"
	"github.com/trezcool/escola/core/access"
	"github.com/trezcool/escola/core/grade"
	"github.com/trezcool/escola/core/school"
	"github.com/trezcool/escola/core/timeslot"
)

var errBadID = echo.NewHTTPError(http.StatusNotFound, "not found")

func paramID(ctx echo.Context) (int64, error) {
	id, err := strconv.ParseInt(ctx.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		return 0, errBadID
	}
	return id, nil
}

// conflictAsValidation turns a unique constraint hit that slipped past the pre-insert lookup
// into the same field error the lookup would have produced.
func conflictAsValidation(err error, field string, conflicts ...error) error {
	cause := errors.Cause(err)
	for _, c := range conflicts {
		if cause == c {
			return core.NewValidationError(c, core.FieldError{Field: field, Error: c.Error()})
		}
	}
	return err
}

// namedRef describes a School or Grade list for the shared templates.
type namedRef struct {
	Kind   string // singular, lower case
	Plural string
	Path   string
	Items  interface{}
}

// =========================================================================
// Schools

func (s *server) registerSchoolRoutes(g *echo.Group) {
	g.GET("/schools", s.listSchools)
	g.GET("/schools/new", s.newSchool, s.requireAction(access.CreateSchool))
	g.POST("/schools/new", s.createSchool, s.requireAction(access.CreateSchool))
	g.GET("/schools/:id/edit", s.editSchool, s.requireAction(access.EditSchool))
	g.POST("/schools/:id/edit", s.updateSchool, s.requireAction(access.EditSchool))
	g.POST("/schools/:id/delete", s.deleteSchool, s.requireAction(access.DeleteSchool))
}

func (s *server) schoolPage(ctx echo.Context, title string) Page {
	p := s.newPage(ctx, title)
	p.Can = s.can(ctx, access.CreateSchool, access.EditSchool, access.DeleteSchool)
	return p
}

func (s *server) listSchools(ctx echo.Context) error {
	q := ctx.QueryParam("q")
	schools, err := s.SchoolSvc.Query(ctx.Request().Context(), q)
	if err != nil {
		return errors.Wrap(err, "querying schools")
	}
	p := s.schoolPage(ctx, "Schools")
	p.Query = q
	p.Data = namedRef{Kind: "school", Plural: "Schools", Path: "/schools", Items: schools}
	return s.renderOK(ctx, "named_list", p)
}

func (s *server) schoolForm(ctx echo.Context, title string, form school.SchoolData, action string) Page {
	p := s.schoolPage(ctx, title)
	p.Form = form
	p.Data = echo.Map{"Action": action, "Back": "/schools"}
	return p
}

func (s *server) newSchool(ctx echo.Context) error {
	return s.renderOK(ctx, "named_form", s.schoolForm(ctx, "New school", school.SchoolData{}, "/schools/new"))
}

func (s *server) createSchool(ctx echo.Context) error {
	var form school.SchoolData
	if err := ctx.Bind(&form); err != nil {
		return errors.Wrap(err, "binding to SchoolData")
	}
	created, err := s.SchoolSvc.Create(ctx.Request().Context(), form)
	if err = conflictAsValidation(err, "name", school.ErrNameExists); err != nil {
		if core.IsValidationError(err) {
			return s.renderInvalid(ctx, "named_form", s.schoolForm(ctx, "New school", form, "/schools/new"), err)
		}
		return errors.Wrap(err, "creating school")
	}
	return s.redirectWithFlash(ctx, "/schools", levelSuccess, "School "+created.Name+" created.")
}

func (s *server) editSchool(ctx echo.Context) error {
	id, err := paramID(ctx)
	if err != nil {
		return err
	}
	sch, err := s.SchoolSvc.GetByID(ctx.Request().Context(), id)
	if err != nil {
		return err
	}
	form := school.SchoolData{Name: sch.Name}
	return s.renderOK(ctx, "named_form", s.schoolForm(ctx, "Edit school", form, "/schools/"+ctx.Param("id")+"/edit"))
}

func (s *server) updateSchool(ctx echo.Context) error {
	id, err := paramID(ctx)
	if err != nil {
		return err
	}
	var form school.SchoolData
	if err = ctx.Bind(&form); err != nil {
		return errors.Wrap(err, "binding to SchoolData")
	}
	updated, err := s.SchoolSvc.Update(ctx.Request().Context(), id, form)
	if err = conflictAsValidation(err, "name", school.ErrNameExists); err != nil {
		if core.IsValidationError(err) {
			p := s.schoolForm(ctx, "Edit school", form, "/schools/"+ctx.Param("id")+"/edit")
			return s.renderInvalid(ctx, "named_form", p, err)
		}
		return err
	}
	return s.redirectWithFlash(ctx, "/schools", levelSuccess, "School "+updated.Name+" updated.")
}

func (s *server) deleteSchool(ctx echo.Context) error {
	id, err := paramID(ctx)
	if err != nil {
		return err
	}
	if err = s.SchoolSvc.Delete(ctx.Request().Context(), id); err != nil {
		return err
	}
	return s.redirectWithFlash(ctx, "/schools", levelSuccess, "School deleted.")
}

// =========================================================================
// Grades

func (s *server) registerGradeRoutes(g *echo.Group) {
	g.GET("/grades", s.listGrades)
	g.GET("/grades/new", s.newGrade, s.requireAction(access.CreateGrade))
	g.POST("/grades/new", s.createGrade, s.requireAction(access.CreateGrade))
	g.GET("/grades/:id/edit", s.editGrade, s.requireAction(access.EditGrade))
	g.POST("/grades/:id/edit", s.updateGrade, s.requireAction(access.EditGrade))
	g.POST("/grades/:id/delete", s.deleteGrade, s.requireAction(access.DeleteGrade))
}

func (s *server) gradePage(ctx echo.Context, title string) Page {
	p := s.newPage(ctx, title)
	p.Can = s.can(ctx, access.CreateGrade, access.EditGrade, access.DeleteGrade)
	return p
}

func (s *server) listGrades(ctx echo.Context) error {
	q := ctx.QueryParam("q")
	grades, err := s.GradeSvc.Query(ctx.Request().Context(), q)
	if err != nil {
		return errors.Wrap(err, "querying grades")
	}
	p := s.gradePage(ctx, "Grades")
	p.Query = q
	p.Data = namedRef{Kind: "grade", Plural: "Grades", Path: "/grades", Items: grades}
	return s.renderOK(ctx, "named_list", p)
}

func (s *server) gradeForm(ctx echo.Context, title string, form grade.GradeData, action string) Page {
	p := s.gradePage(ctx, title)
	p.Form = form
	p.Data = echo.Map{"Action": action, "Back": "/grades"}
	return p
}

func (s *server) newGrade(ctx echo.Context) error {
	return s.renderOK(ctx, "named_form", s.gradeForm(ctx, "New grade", grade.GradeData{}, "/grades/new"))
}

func (s *server) createGrade(ctx echo.Context) error {
	var form grade.GradeData
	if err := ctx.Bind(&form); err != nil {
		return errors.Wrap(err, "binding to GradeData")
	}
	created, err := s.GradeSvc.Create(ctx.Request().Context(), form)
	if err = conflictAsValidation(err, "name", grade.ErrNameExists); err != nil {
		if core.IsValidationError(err) {
			return s.renderInvalid(ctx, "named_form", s.gradeForm(ctx, "New grade", form, "/grades/new"), err)
		}
		return errors.Wrap(err, "creating grade")
	}
	return s.redirectWithFlash(ctx, "/grades", levelSuccess, "Grade "+created.Name+" created.")
}

func (s *server) editGrade(ctx echo.Context) error {
	id, err := paramID(ctx)
	if err != nil {
		return err
	}
	g, err := s.GradeSvc.GetByID(ctx.Request().Context(), id)
	if err != nil {
		return err
	}
	form := grade.GradeData{Name: g.Name}
	return s.renderOK(ctx, "named_form", s.gradeForm(ctx, "Edit grade", form, "/grades/"+ctx.Param("id")+"/edit"))
}

func (s *server) updateGrade(ctx echo.Context) error {
	id, err := paramID(ctx)
	if err != nil {
		return err
	}
	var form grade.GradeData
	if err = ctx.Bind(&form); err != nil {
		return errors.Wrap(err, "binding to GradeData")
	}
	updated, err := s.GradeSvc.Update(ctx.Request().Context(), id, form)
	if err = conflictAsValidation(err, "name", grade.ErrNameExists); err != nil {
		if core.IsValidationError(err) {
			p := s.gradeForm(ctx, "Edit grade", form, "/grades/"+ctx.Param("id")+"/edit")
			return s.renderInvalid(ctx, "named_form", p, err)
		}
		return err
	}
	return s.redirectWithFlash(ctx, "/grades", levelSuccess, "Grade "+updated.Name+" updated.")
}

func (s *server) deleteGrade(ctx echo.Context) error {
	id, err := paramID(ctx)
	if err != nil {
		return err
	}
	if err = s.GradeSvc.Delete(ctx.Request().Context(), id); err != nil {
		return err
	}
	return s.redirectWithFlash(ctx, "/grades", levelSuccess, "Grade deleted.")
}

// =========================================================================
// Time slots

func (s *server) registerTimeSlotRoutes(g *echo.Group) {
	g.GET("/timeslots", s.listTimeSlots)
	g.GET("/timeslots/new", s.newTimeSlot, s.requireAction(access.CreateTimeSlot))
	g.POST("/timeslots/new", s.createTimeSlot, s.requireAction(access.CreateTimeSlot))
	g.GET("/timeslots/:id/edit", s.editTimeSlot, s.requireAction(access.EditTimeSlot))
	g.POST("/timeslots/:id/edit", s.updateTimeSlot, s.requireAction(access.EditTimeSlot))
	g.POST("/timeslots/:id/delete", s.deleteTimeSlot, s.requireAction(access.DeleteTimeSlot))
}

func (s *server) timeSlotPage(ctx echo.Context, title string) Page {
	p := s.newPage(ctx, title)
	p.Can = s.can(ctx, access.CreateTimeSlot, access.EditTimeSlot, access.DeleteTimeSlot)
	return p
}

func (s *server) listTimeSlots(ctx echo.Context) error {
	slots, err := s.TimeSlotSvc.Query(ctx.Request().Context())
	if err != nil {
		return errors.Wrap(err, "querying time slots")
	}
	p := s.timeSlotPage(ctx, "Time slots")
	p.Data = slots
	return s.renderOK(ctx, "timeslots", p)
}

func (s *server) timeSlotForm(ctx echo.Context, title string, form timeslot.TimeSlotData, action string) Page {
	p := s.timeSlotPage(ctx, title)
	p.Form = form
	p.Data = echo.Map{"Action": action}
	return p
}

func (s *server) newTimeSlot(ctx echo.Context) error {
	return s.renderOK(ctx, "timeslot_form", s.timeSlotForm(ctx, "New time slot", timeslot.TimeSlotData{}, "/timeslots/new"))
}

func (s *server) createTimeSlot(ctx echo.Context) error {
	var form timeslot.TimeSlotData
	if err := ctx.Bind(&form); err != nil {
		return errors.Wrap(err, "binding to TimeSlotData")
	}
	created, err := s.TimeSlotSvc.Create(ctx.Request().Context(), form)
	if err = conflictAsValidation(err, "end", timeslot.ErrExists, timeslot.ErrInvalidRange); err != nil {
		if core.IsValidationError(err) {
			return s.renderInvalid(ctx, "timeslot_form", s.timeSlotForm(ctx, "New time slot", form, "/timeslots/new"), err)
		}
		return errors.Wrap(err, "creating time slot")
	}
	return s.redirectWithFlash(ctx, "/timeslots", levelSuccess, "Time slot "+created.Label()+" created.")
}

func (s *server) editTimeSlot(ctx echo.Context) error {
	id, err := paramID(ctx)
	if err != nil {
		return err
	}
	ts, err := s.TimeSlotSvc.GetByID(ctx.Request().Context(), id)
	if err != nil {
		return err
	}
	form := timeslot.TimeSlotData{Start: ts.Start, End: ts.End}
	p := s.timeSlotForm(ctx, "Edit time slot", form, "/timeslots/"+ctx.Param("id")+"/edit")
	return s.renderOK(ctx, "timeslot_form", p)
}

func (s *server) updateTimeSlot(ctx echo.Context) error {
	id, err := paramID(ctx)
	if err != nil {
		return err
	}
	var form timeslot.TimeSlotData
	if err = ctx.Bind(&form); err != nil {
		return errors.Wrap(err, "binding to TimeSlotData")
	}
	updated, err := s.TimeSlotSvc.Update(ctx.Request().Context(), id, form)
	if err = conflictAsValidation(err, "end", timeslot.ErrExists, timeslot.ErrInvalidRange); err != nil {
		if core.IsValidationError(err) {
			p := s.timeSlotForm(ctx, "Edit time slot", form, "/timeslots/"+ctx.Param("id")+"/edit")
			return s.renderInvalid(ctx, "timeslot_form", p, err)
		}
		return err
	}
	return s.redirectWithFlash(ctx, "/timeslots", levelSuccess, "Time slot "+updated.Label()+" updated.")
}

func (s *server) deleteTimeSlot(ctx echo.Context) error {
	id, err := paramID(ctx)
	if err != nil {
		return err
	}
	if err = s.TimeSlotSvc.Delete(ctx.Request().Context(), id); err != nil {
		return err
	}
	return s.redirectWithFlash(ctx, "/timeslots", levelSuccess, "Time slot deleted.")
}
