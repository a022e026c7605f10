package echoweb

import (
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/escola/core/access"
	"github.com/trezcool/escola/core/activity"
)

const recentActivities = 10

func (s *server) home(ctx echo.Context) error {
	scope := scopeOf(ctx)
	acts, err := s.ActivitySvc.Visible(ctx.Request().Context(), scope, activity.QueryFilter{})
	if err != nil {
		return errors.Wrap(err, "querying activities")
	}
	if len(acts) > recentActivities {
		acts = acts[:recentActivities]
	}

	p := s.newPage(ctx, "Home")
	p.Can = s.can(ctx, access.CreateStudent, access.CreateActivity, access.ManageAccounts)
	if scope.Unlinked() {
		p.Flashes = append(p.Flashes, Flash{Level: levelWarning, Message: unlinkedWarning})
	}
	p.Data = echo.Map{"Activities": acts, "StudentID": scope.StudentID}
	return s.renderOK(ctx, "home", p)
}
