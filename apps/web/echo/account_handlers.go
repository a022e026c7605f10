package echoweb

import (
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/escola/core"
	"github.com/trezcool/escola/core/access"
	"github.com/trezcool/escola/core/account"
	"github.com/trezcool/escola/core/presence"
	"github.com/trezcool/escola/core/student"
)

var errOwnRole = errors.New("you cannot change your own role")

type accountRow struct {
	account.Account
	Status presence.Status
	Grants []access.Code
}

type grantsForm struct {
	Codes []string `form:"codes"`
}

func (s *server) registerAccountRoutes(g *echo.Group) {
	accounts := g.Group("/accounts", s.requireAction(access.ManageAccounts))
	accounts.GET("", s.listAccounts)
	accounts.GET("/new", s.newAccount)
	accounts.POST("/new", s.createAccount)
	accounts.GET("/:id/edit", s.editAccount)
	accounts.POST("/:id/edit", s.updateAccount)
	accounts.POST("/:id/toggle-active", s.toggleAccount)
	accounts.POST("/:id/delete", s.deleteAccount)
	accounts.GET("/:id/permissions", s.accountPermissions)
	accounts.POST("/:id/permissions", s.replaceAccountPermissions)
}

func (s *server) listAccounts(ctx echo.Context) error {
	var filter account.QueryFilter
	if err := ctx.Bind(&filter); err != nil {
		return errors.Wrap(err, "binding to QueryFilter")
	}
	c := ctx.Request().Context()
	accs, err := s.AccountSvc.Query(c, filter)
	if err != nil {
		return errors.Wrap(err, "querying accounts")
	}

	ids := make([]int64, 0, len(accs))
	for _, a := range accs {
		ids = append(ids, a.ID)
	}
	statuses, err := s.Tracker.Statuses(c, ids...)
	if err != nil {
		return errors.Wrap(err, "querying presence")
	}
	grants, err := s.AccessSvc.AllGrants(c)
	if err != nil {
		return errors.Wrap(err, "querying grants")
	}

	rows := make([]accountRow, 0, len(accs))
	for _, a := range accs {
		rows = append(rows, accountRow{Account: a, Status: statuses[a.ID], Grants: grants[a.ID]})
	}
	perms, err := s.AccessSvc.Permissions(c)
	if err != nil {
		return errors.Wrap(err, "querying permissions")
	}

	p := s.newPage(ctx, "Accounts")
	p.Query = filter.Search
	p.Data = echo.Map{"Rows": rows, "Permissions": perms, "Roles": account.Roles, "Role": filter.Role}
	return s.renderOK(ctx, "accounts", p)
}

func (s *server) accountForm(ctx echo.Context, title string, form interface{}, action string, isNew bool) (Page, error) {
	students, err := s.StudentSvc.Visible(ctx.Request().Context(), access.Scope{All: true}, student.QueryFilter{})
	if err != nil {
		return Page{}, errors.Wrap(err, "querying students")
	}
	p := s.newPage(ctx, title)
	p.Form = form
	p.Data = echo.Map{"Action": action, "New": isNew, "Roles": account.Roles, "Students": students}
	return p, nil
}

func (s *server) invalidAccount(ctx echo.Context, title string, form interface{}, action string, isNew bool, err error) error {
	if !core.IsValidationError(err) {
		return err
	}
	p, perr := s.accountForm(ctx, title, form, action, isNew)
	if perr != nil {
		return perr
	}
	return s.renderInvalid(ctx, "account_form", p, err)
}

func (s *server) newAccount(ctx echo.Context) error {
	p, err := s.accountForm(ctx, "New account", account.NewAccount{Role: string(account.RoleTeacher)}, "/accounts/new", true)
	if err != nil {
		return err
	}
	return s.renderOK(ctx, "account_form", p)
}

func (s *server) createAccount(ctx echo.Context) error {
	var form account.NewAccount
	if err := ctx.Bind(&form); err != nil {
		return errors.Wrap(err, "binding to NewAccount")
	}
	acc, err := s.AccountSvc.Create(ctx.Request().Context(), form)
	if err = conflictAsValidation(err, "email", account.ErrEmailExists); err != nil {
		form.Password, form.PasswordConfirm = "", ""
		return s.invalidAccount(ctx, "New account", form, "/accounts/new", true, err)
	}
	if err = s.AccessSvc.ApplyDefaults(ctx.Request().Context(), acc); err != nil {
		return errors.Wrap(err, "granting default permissions")
	}
	return s.redirectWithFlash(ctx, "/accounts", levelSuccess, "Account "+acc.Email+" created.")
}

func (s *server) editAccount(ctx echo.Context) error {
	id, err := paramID(ctx)
	if err != nil {
		return err
	}
	acc, err := s.AccountSvc.GetByID(ctx.Request().Context(), id)
	if err != nil {
		return err
	}
	form := account.UpdateAccount{
		Name:           acc.Name,
		Email:          acc.Email,
		Role:           string(acc.Role),
		StudentID:      acc.StudentID.Int64,
		TelegramChatID: acc.TelegramChatID.Int64,
	}
	p, err := s.accountForm(ctx, "Edit "+acc.Name, form, "/accounts/"+ctx.Param("id")+"/edit", false)
	if err != nil {
		return err
	}
	return s.renderOK(ctx, "account_form", p)
}

func (s *server) updateAccount(ctx echo.Context) error {
	id, err := paramID(ctx)
	if err != nil {
		return err
	}
	var form account.UpdateAccount
	if err = ctx.Bind(&form); err != nil {
		return errors.Wrap(err, "binding to UpdateAccount")
	}
	action := "/accounts/" + ctx.Param("id") + "/edit"

	if actor, _ := getContextAccount(ctx); actor.ID == id && account.Role(core.CleanString(form.Role, true)) != actor.Role {
		form.Password, form.PasswordConfirm = "", ""
		verr := core.NewValidationError(errOwnRole, core.FieldError{Field: "role", Error: errOwnRole.Error()})
		return s.invalidAccount(ctx, "Edit account", form, action, false, verr)
	}

	acc, err := s.AccountSvc.Update(ctx.Request().Context(), id, form)
	if err = conflictAsValidation(err, "email", account.ErrEmailExists); err != nil {
		form.Password, form.PasswordConfirm = "", ""
		return s.invalidAccount(ctx, "Edit account", form, action, false, err)
	}
	return s.redirectWithFlash(ctx, "/accounts", levelSuccess, "Account "+acc.Email+" updated.")
}

func (s *server) toggleAccount(ctx echo.Context) error {
	id, err := paramID(ctx)
	if err != nil {
		return err
	}
	actor, _ := getContextAccount(ctx)
	acc, err := s.AccountSvc.ToggleActive(ctx.Request().Context(), actor, id)
	if err != nil {
		if errors.Cause(err) == account.ErrSelfModification {
			return s.redirectWithFlash(ctx, "/accounts", levelDanger, capitalize(err.Error())+".")
		}
		return err
	}
	msg := "Account " + acc.Email + " activated."
	if !acc.IsActive {
		if err = s.Tracker.EndAll(ctx.Request().Context(), acc.ID); err != nil {
			return err
		}
		msg = "Account " + acc.Email + " deactivated."
	}
	return s.redirectWithFlash(ctx, "/accounts", levelSuccess, msg)
}

func (s *server) deleteAccount(ctx echo.Context) error {
	id, err := paramID(ctx)
	if err != nil {
		return err
	}
	actor, _ := getContextAccount(ctx)
	if err = s.AccountSvc.Delete(ctx.Request().Context(), actor, id); err != nil {
		if errors.Cause(err) == account.ErrSelfModification {
			return s.redirectWithFlash(ctx, "/accounts", levelDanger, capitalize(err.Error())+".")
		}
		return err
	}
	return s.redirectWithFlash(ctx, "/accounts", levelSuccess, "Account deleted.")
}

func (s *server) permissionsPage(ctx echo.Context, acc account.Account, held []access.Code) (Page, error) {
	perms, err := s.AccessSvc.Permissions(ctx.Request().Context())
	if err != nil {
		return Page{}, errors.Wrap(err, "querying permissions")
	}
	p := s.newPage(ctx, "Permissions of "+acc.Name)
	p.Data = echo.Map{"Account": acc, "Permissions": perms, "Held": held}
	return p, nil
}

func (s *server) accountPermissions(ctx echo.Context) error {
	id, err := paramID(ctx)
	if err != nil {
		return err
	}
	acc, err := s.AccountSvc.GetByID(ctx.Request().Context(), id)
	if err != nil {
		return err
	}
	if acc.IsDirector() {
		return s.redirectWithFlash(ctx, "/accounts", levelInfo, capitalize(access.ErrDirectorHasAll.Error())+".")
	}
	held, err := s.AccessSvc.Grants(ctx.Request().Context(), id)
	if err != nil {
		return errors.Wrap(err, "querying grants")
	}
	p, err := s.permissionsPage(ctx, acc, held)
	if err != nil {
		return err
	}
	return s.renderOK(ctx, "account_permissions", p)
}

func (s *server) replaceAccountPermissions(ctx echo.Context) error {
	id, err := paramID(ctx)
	if err != nil {
		return err
	}
	acc, err := s.AccountSvc.GetByID(ctx.Request().Context(), id)
	if err != nil {
		return err
	}
	var form grantsForm
	if err = ctx.Bind(&form); err != nil {
		return errors.Wrap(err, "binding to grantsForm")
	}
	codes := make([]access.Code, 0, len(form.Codes))
	for _, c := range form.Codes {
		codes = append(codes, access.Code(c))
	}

	err = s.AccessSvc.ReplaceGrants(ctx.Request().Context(), acc, codes)
	switch {
	case err == nil:
	case errors.Cause(err) == access.ErrDirectorHasAll:
		return s.redirectWithFlash(ctx, "/accounts", levelInfo, capitalize(err.Error())+".")
	case core.IsValidationError(err):
		p, perr := s.permissionsPage(ctx, acc, codes)
		if perr != nil {
			return perr
		}
		return s.renderInvalid(ctx, "account_permissions", p, err)
	default:
		return err
	}
	return s.redirectWithFlash(ctx, "/accounts", levelSuccess, "Permissions of "+acc.Name+" updated.")
}
