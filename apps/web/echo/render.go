package echoweb

import (
	"embed"
	"fmt"
	"html/template"
	"io"
	"io/fs"
	"net/http"
	"path"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/trezcool/escola/core"
	"github.com/trezcool/escola/core/access"
	"github.com/trezcool/escola/core/account"
)

const (
	csrfField      = "csrf_token"
	csrfContextKey = "csrf"
)

//go:embed all:templates
var templatesFS embed.FS

var funcs = template.FuncMap{
	"date": func(t time.Time) string {
		if t.IsZero() {
			return ""
		}
		return t.Format(core.DateLayout)
	},
	"nulldate": func(t null.Time) string {
		if !t.Valid {
			return ""
		}
		return t.Time.Format(core.DateLayout)
	},
	"datetime": func(t time.Time) string {
		if t.IsZero() {
			return "never"
		}
		return t.Format("2006-01-02 15:04")
	},
	"role":  func(r account.Role) string { return r.DisplayName() },
	"cents": formatCents,
	"eq64":  func(a, b int64) bool { return a == b },
	"hascode": func(codes []access.Code, c access.Code) bool {
		for _, code := range codes {
			if code == c {
				return true
			}
		}
		return false
	},
}

// renderer renders a page template wrapped in the _base layout.
type renderer struct {
	pages map[string]*template.Template
}

func newRenderer() *renderer {
	r := &renderer{pages: make(map[string]*template.Template)}
	names, err := fs.Glob(templatesFS, "templates/*.gohtml")
	if err != nil {
		panic(err)
	}
	for _, fp := range names {
		name := strings.TrimSuffix(path.Base(fp), ".gohtml")
		if strings.HasPrefix(name, "_") {
			continue
		}
		r.pages[name] = template.Must(
			template.New(name).Funcs(funcs).ParseFS(templatesFS, "templates/_base.gohtml", fp),
		)
	}
	return r
}

func (r *renderer) Render(w io.Writer, name string, data interface{}, _ echo.Context) error {
	tmpl, ok := r.pages[name]
	if !ok {
		return errors.Errorf("template %q not found", name)
	}
	return tmpl.ExecuteTemplate(w, "base", data)
}

// Page is what every template receives.
type Page struct {
	Title   string
	Account *account.Account
	Flashes []Flash
	CSRF    string
	Can     map[string]bool
	Query   string

	Data   interface{}
	Form   interface{}
	Errors map[string]string
}

func (p Page) CSRFField() template.HTML {
	if p.CSRF == "" {
		return ""
	}
	return template.HTML(`<input type="hidden" name="` + csrfField + `" value="` +
		template.HTMLEscapeString(p.CSRF) + `">`)
}

func (s *server) newPage(ctx echo.Context, title string) Page {
	p := Page{Title: title, Errors: map[string]string{}}
	if acc, ok := getContextAccount(ctx); ok {
		p.Account = &acc
	}
	if token, ok := ctx.Get(csrfContextKey).(string); ok {
		p.CSRF = token
	}
	return p
}

func (s *server) render(ctx echo.Context, code int, name string, p Page) error {
	p.Flashes = append(p.Flashes, s.popFlashes(ctx)...)
	return ctx.Render(code, name, p)
}

func (s *server) renderOK(ctx echo.Context, name string, p Page) error {
	return s.render(ctx, http.StatusOK, name, p)
}

// renderInvalid re-renders a form with its field errors.
func (s *server) renderInvalid(ctx echo.Context, name string, p Page, err error) error {
	var vErr *core.ValidationError
	if errors.As(err, &vErr) {
		p.Errors = vErr.FieldMap()
		if len(p.Errors) == 0 {
			p.Flashes = append(p.Flashes, Flash{Level: levelDanger, Message: vErr.Error()})
		}
	}
	return s.render(ctx, http.StatusBadRequest, name, p)
}

func formatCents(c int64) string {
	return fmt.Sprintf("%d.%02d", c/100, c%100)
}
