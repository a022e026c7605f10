package echoweb

import (
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/escola/core"
	"github.com/trezcool/escola/core/access"
	"github.com/trezcool/escola/core/activity"
	"github.com/trezcool/escola/core/student"
)

func (s *server) registerActivityRoutes(g *echo.Group) {
	g.GET("/activities", s.listActivities)
	g.GET("/activities/new", s.newActivity, s.requireAction(access.CreateActivity))
	g.POST("/activities/new", s.createActivity, s.requireAction(access.CreateActivity))
	g.GET("/activities/:id", s.showActivity)
	g.GET("/activities/:id/edit", s.editActivity, s.requireAction(access.EditActivity))
	g.POST("/activities/:id/edit", s.updateActivity, s.requireAction(access.EditActivity))
	g.POST("/activities/:id/delete", s.deleteActivity, s.requireAction(access.DeleteActivity))
}

func (s *server) activityPage(ctx echo.Context, title string) Page {
	p := s.newPage(ctx, title)
	p.Can = s.can(ctx, access.CreateActivity, access.EditActivity, access.DeleteActivity)
	return p
}

func (s *server) listActivities(ctx echo.Context) error {
	var filter activity.QueryFilter
	if err := ctx.Bind(&filter); err != nil {
		return errors.Wrap(err, "binding to QueryFilter")
	}
	scope := scopeOf(ctx)
	acts, err := s.ActivitySvc.Visible(ctx.Request().Context(), scope, filter)
	if err != nil {
		return errors.Wrap(err, "querying activities")
	}

	p := s.activityPage(ctx, "Activities")
	p.Query = filter.Search
	if scope.Unlinked() {
		p.Flashes = append(p.Flashes, Flash{Level: levelWarning, Message: unlinkedWarning})
	}
	p.Data = acts
	return s.renderOK(ctx, "activities", p)
}

func (s *server) activityForm(ctx echo.Context, title string, form activity.ActivityData, action string) (Page, error) {
	students, err := s.StudentSvc.Visible(ctx.Request().Context(), scopeOf(ctx), student.QueryFilter{})
	if err != nil {
		return Page{}, errors.Wrap(err, "querying students")
	}
	p := s.activityPage(ctx, title)
	p.Form = form
	p.Data = echo.Map{"Action": action, "Students": students}
	return p, nil
}

func (s *server) invalidActivity(ctx echo.Context, title string, form activity.ActivityData, action string, err error) error {
	if !core.IsValidationError(err) {
		return err
	}
	p, perr := s.activityForm(ctx, title, form, action)
	if perr != nil {
		return perr
	}
	return s.renderInvalid(ctx, "activity_form", p, err)
}

func (s *server) newActivity(ctx echo.Context) error {
	acc, _ := getContextAccount(ctx)
	form := activity.ActivityData{
		Date:    time.Now().Format(core.DateLayout),
		Teacher: acc.Name,
	}
	if id, err := strconv.ParseInt(ctx.QueryParam("student_id"), 10, 64); err == nil {
		form.StudentID = id
	}
	p, err := s.activityForm(ctx, "Record activity", form, "/activities/new")
	if err != nil {
		return err
	}
	return s.renderOK(ctx, "activity_form", p)
}

func (s *server) createActivity(ctx echo.Context) error {
	var form activity.ActivityData
	if err := ctx.Bind(&form); err != nil {
		return errors.Wrap(err, "binding to ActivityData")
	}
	act, err := s.ActivitySvc.Create(ctx.Request().Context(), scopeOf(ctx), form)
	if err != nil {
		return s.invalidActivity(ctx, "Record activity", form, "/activities/new", err)
	}
	return s.redirectWithFlash(ctx, "/activities", levelSuccess,
		"Activity recorded for "+act.StudentName+" on "+act.Date.Format(core.DateLayout)+".")
}

func (s *server) showActivity(ctx echo.Context) error {
	id, err := paramID(ctx)
	if err != nil {
		return err
	}
	act, err := s.ActivitySvc.GetVisible(ctx.Request().Context(), scopeOf(ctx), id)
	if err != nil {
		return err
	}
	p := s.activityPage(ctx, "Activity of "+act.StudentName)
	p.Data = act
	return s.renderOK(ctx, "activity_show", p)
}

func (s *server) editActivity(ctx echo.Context) error {
	id, err := paramID(ctx)
	if err != nil {
		return err
	}
	act, err := s.ActivitySvc.GetVisible(ctx.Request().Context(), scopeOf(ctx), id)
	if err != nil {
		return err
	}
	p, err := s.activityForm(ctx, "Edit activity", activity.DataFrom(act), "/activities/"+ctx.Param("id")+"/edit")
	if err != nil {
		return err
	}
	return s.renderOK(ctx, "activity_form", p)
}

func (s *server) updateActivity(ctx echo.Context) error {
	id, err := paramID(ctx)
	if err != nil {
		return err
	}
	var form activity.ActivityData
	if err = ctx.Bind(&form); err != nil {
		return errors.Wrap(err, "binding to ActivityData")
	}
	if _, err = s.ActivitySvc.Update(ctx.Request().Context(), scopeOf(ctx), id, form); err != nil {
		return s.invalidActivity(ctx, "Edit activity", form, "/activities/"+ctx.Param("id")+"/edit", err)
	}
	return s.redirectWithFlash(ctx, "/activities/"+ctx.Param("id"), levelSuccess, "Activity updated.")
}

func (s *server) deleteActivity(ctx echo.Context) error {
	id, err := paramID(ctx)
	if err != nil {
		return err
	}
	if err = s.ActivitySvc.Delete(ctx.Request().Context(), id); err != nil {
		return err
	}
	return s.redirectWithFlash(ctx, "/activities", levelSuccess, "Activity deleted.")
}
