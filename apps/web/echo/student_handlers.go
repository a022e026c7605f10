package echoweb

import (
	"bytes"
	"net/http"
	"net/mail"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/escola/core"
	"github.com/trezcool/escola/core/access"
	"github.com/trezcool/escola/core/activity"
	"github.com/trezcool/escola/core/grade"
	"github.com/trezcool/escola/core/school"
	"github.com/trezcool/escola/core/student"
	"github.com/trezcool/escola/core/timeslot"
	"github.com/trezcool/escola/services/export"
)

const (
	unlinkedWarning = "Your account is not linked to any student yet. Please contact the school."
	xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
)

type studentChoices struct {
	Schools   []school.School
	Grades    []grade.Grade
	TimeSlots []timeslot.TimeSlot
	FeeTiers  []student.FeeTier
}

type studentSearchResult struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

func (s *server) registerStudentRoutes(g *echo.Group) {
	g.GET("/students", s.listStudents)
	g.GET("/students/search", s.searchStudents)
	g.GET("/students/export", s.exportStudents)
	g.POST("/students/export/email", s.emailExport)
	g.GET("/students/new", s.newStudent, s.requireAction(access.CreateStudent))
	g.POST("/students/new", s.createStudent, s.requireAction(access.CreateStudent))
	g.GET("/students/:id", s.showStudent)
	g.GET("/students/:id/edit", s.editStudent, s.requireAction(access.EditStudent))
	g.POST("/students/:id/edit", s.updateStudent, s.requireAction(access.EditStudent))
	g.POST("/students/:id/delete", s.deleteStudent, s.requireAction(access.DeleteStudent))
}

func (s *server) studentPage(ctx echo.Context, title string) Page {
	p := s.newPage(ctx, title)
	p.Can = s.can(ctx, access.CreateStudent, access.EditStudent, access.DeleteStudent, access.CreateActivity)
	return p
}

func (s *server) listStudents(ctx echo.Context) error {
	var filter student.QueryFilter
	if err := ctx.Bind(&filter); err != nil {
		return errors.Wrap(err, "binding to QueryFilter")
	}
	scope := scopeOf(ctx)
	students, err := s.StudentSvc.Visible(ctx.Request().Context(), scope, filter)
	if err != nil {
		return errors.Wrap(err, "querying students")
	}

	p := s.studentPage(ctx, "Students")
	p.Query = filter.Search
	if scope.Unlinked() {
		p.Flashes = append(p.Flashes, Flash{Level: levelWarning, Message: unlinkedWarning})
	}
	p.Data = students
	return s.renderOK(ctx, "students", p)
}

// searchStudents feeds the student picker of the activity form.
func (s *server) searchStudents(ctx echo.Context) error {
	students, err := s.StudentSvc.Search(ctx.Request().Context(), scopeOf(ctx), ctx.QueryParam("q"))
	if err != nil {
		return errors.Wrap(err, "searching students")
	}
	results := make([]studentSearchResult, 0, len(students))
	for _, st := range students {
		results = append(results, studentSearchResult{ID: st.ID, Name: st.Name})
	}
	return ctx.JSON(http.StatusOK, results)
}

// buildExport renders the students visible to the caller as an xlsx workbook.
func (s *server) buildExport(ctx echo.Context) (*bytes.Buffer, string, error) {
	students, err := s.StudentSvc.Visible(ctx.Request().Context(), scopeOf(ctx), student.QueryFilter{})
	if err != nil {
		return nil, "", errors.Wrap(err, "querying students")
	}
	now := time.Now().UTC()
	var buf bytes.Buffer
	if err = export.Students(&buf, students, now); err != nil {
		return nil, "", errors.Wrap(err, "exporting students")
	}
	return &buf, "students-" + now.Format("20060102") + ".xlsx", nil
}

func (s *server) exportStudents(ctx echo.Context) error {
	buf, filename, err := s.buildExport(ctx)
	if err != nil {
		return err
	}
	ctx.Response().Header().Set(echo.HeaderContentDisposition, `attachment; filename="`+filename+`"`)
	return ctx.Blob(http.StatusOK, xlsxContentType, buf.Bytes())
}

// emailExport sends the workbook to the caller's own address.
func (s *server) emailExport(ctx echo.Context) error {
	acc, _ := getContextAccount(ctx)
	buf, filename, err := s.buildExport(ctx)
	if err != nil {
		return err
	}
	msg := &core.EmailMessage{
		To:      []mail.Address{{Name: acc.Name, Address: acc.Email}},
		Subject: "Student list",
		BodyStr: "The student list you asked for is attached.",
	}
	if err = msg.Attach(buf, filename, xlsxContentType); err != nil {
		return errors.Wrap(err, "attaching export")
	}
	if err = s.MailSvc.Send(ctx.Request().Context(), msg); err != nil {
		s.Logger.Error("emailing student export", err, acc.Person())
		return s.redirectWithFlash(ctx, "/students", levelDanger, "The student list could not be emailed. Please try again later.")
	}
	return s.redirectWithFlash(ctx, "/students", levelSuccess, "The student list was emailed to "+acc.Email+".")
}

func (s *server) loadStudentChoices(ctx echo.Context) (studentChoices, error) {
	var (
		choices studentChoices
		err     error
		c       = ctx.Request().Context()
	)
	if choices.Schools, err = s.SchoolSvc.Query(c, ""); err != nil {
		return choices, errors.Wrap(err, "querying schools")
	}
	if choices.Grades, err = s.GradeSvc.Query(c, ""); err != nil {
		return choices, errors.Wrap(err, "querying grades")
	}
	if choices.TimeSlots, err = s.TimeSlotSvc.Query(c); err != nil {
		return choices, errors.Wrap(err, "querying time slots")
	}
	if choices.FeeTiers, err = s.StudentSvc.FeeTiers(c); err != nil {
		return choices, errors.Wrap(err, "querying fee tiers")
	}
	return choices, nil
}

func (s *server) studentForm(ctx echo.Context, title string, form student.StudentData, action string) (Page, error) {
	choices, err := s.loadStudentChoices(ctx)
	if err != nil {
		return Page{}, err
	}
	p := s.studentPage(ctx, title)
	p.Form = form
	p.Data = echo.Map{"Action": action, "Choices": choices}
	return p, nil
}

// storePhoto saves the uploaded photo, if any. A failed upload never blocks saving the Student.
func (s *server) storePhoto(ctx echo.Context, form *student.StudentData) {
	fh, err := ctx.FormFile("photo")
	if err != nil {
		return // no photo
	}
	name, err := s.Photos.Save(fh, form.Name)
	if err != nil {
		s.Logger.Warn("saving student photo", err)
		s.addFlash(ctx, levelWarning, "The photo could not be saved: "+err.Error()+".")
		return
	}
	form.PhotoName = name
}

func (s *server) dropPhoto(name string) {
	if name == "" {
		return
	}
	if err := s.Photos.Delete(name); err != nil {
		s.Logger.Warn("deleting student photo", err)
	}
}

func (s *server) newStudent(ctx echo.Context) error {
	p, err := s.studentForm(ctx, "New student", student.StudentData{}, "/students/new")
	if err != nil {
		return err
	}
	return s.renderOK(ctx, "student_form", p)
}

func (s *server) createStudent(ctx echo.Context) error {
	var form student.StudentData
	if err := ctx.Bind(&form); err != nil {
		return errors.Wrap(err, "binding to StudentData")
	}
	form.PhotoName = ""

	// validate first so an invalid form does not leave a stray photo behind
	if err := s.StudentSvc.Check(ctx.Request().Context(), form); err != nil {
		return s.invalidStudent(ctx, "New student", form, "/students/new", err)
	}
	s.storePhoto(ctx, &form)

	created, err := s.StudentSvc.Create(ctx.Request().Context(), form)
	if err != nil {
		s.dropPhoto(form.PhotoName)
		return s.invalidStudent(ctx, "New student", form, "/students/new", err)
	}
	return s.redirectWithFlash(ctx, "/students/"+strconv.FormatInt(created.ID, 10), levelSuccess,
		"Student "+created.Name+" created.")
}

func (s *server) invalidStudent(ctx echo.Context, title string, form student.StudentData, action string, err error) error {
	if !core.IsValidationError(err) {
		return err
	}
	p, perr := s.studentForm(ctx, title, form, action)
	if perr != nil {
		return perr
	}
	return s.renderInvalid(ctx, "student_form", p, err)
}

func (s *server) showStudent(ctx echo.Context) error {
	id, err := paramID(ctx)
	if err != nil {
		return err
	}
	scope := scopeOf(ctx)
	st, err := s.StudentSvc.GetVisible(ctx.Request().Context(), scope, id)
	if err != nil {
		return err
	}
	acts, err := s.ActivitySvc.Visible(ctx.Request().Context(), scope, activity.QueryFilter{OnlyStudentID: id})
	if err != nil {
		return errors.Wrap(err, "querying activities")
	}

	p := s.studentPage(ctx, st.Name)
	p.Data = echo.Map{"Student": st, "Age": st.Age(time.Now()), "Activities": acts}
	return s.renderOK(ctx, "student_show", p)
}

func (s *server) editStudent(ctx echo.Context) error {
	id, err := paramID(ctx)
	if err != nil {
		return err
	}
	st, err := s.StudentSvc.GetByID(ctx.Request().Context(), id)
	if err != nil {
		return err
	}
	p, err := s.studentForm(ctx, "Edit "+st.Name, student.DataFrom(st), "/students/"+ctx.Param("id")+"/edit")
	if err != nil {
		return err
	}
	return s.renderOK(ctx, "student_form", p)
}

func (s *server) updateStudent(ctx echo.Context) error {
	id, err := paramID(ctx)
	if err != nil {
		return err
	}
	current, err := s.StudentSvc.GetByID(ctx.Request().Context(), id)
	if err != nil {
		return err
	}
	var form student.StudentData
	if err = ctx.Bind(&form); err != nil {
		return errors.Wrap(err, "binding to StudentData")
	}
	form.PhotoName = ""

	action := "/students/" + ctx.Param("id") + "/edit"
	if err = s.StudentSvc.Check(ctx.Request().Context(), form); err != nil {
		return s.invalidStudent(ctx, "Edit "+current.Name, form, action, err)
	}
	s.storePhoto(ctx, &form)

	updated, err := s.StudentSvc.Update(ctx.Request().Context(), id, form)
	if err != nil {
		s.dropPhoto(form.PhotoName)
		return s.invalidStudent(ctx, "Edit "+current.Name, form, action, err)
	}
	if form.PhotoName != "" && current.PhotoName.Valid {
		s.dropPhoto(current.PhotoName.String)
	}
	return s.redirectWithFlash(ctx, "/students/"+ctx.Param("id"), levelSuccess, "Student "+updated.Name+" updated.")
}

func (s *server) deleteStudent(ctx echo.Context) error {
	id, err := paramID(ctx)
	if err != nil {
		return err
	}
	deleted, err := s.StudentSvc.Delete(ctx.Request().Context(), id)
	if err != nil {
		return err
	}
	if deleted.PhotoName.Valid {
		s.dropPhoto(deleted.PhotoName.String)
	}
	return s.redirectWithFlash(ctx, "/students", levelSuccess, "Student "+deleted.Name+" deleted.")
}

func (s *server) servePhoto(ctx echo.Context) error {
	fp, err := s.Photos.Path(ctx.Param("name"))
	if err != nil {
		return echo.NewHTTPError(http.StatusNotFound, "photo not found")
	}
	return ctx.File(fp)
}
