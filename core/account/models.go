package account

import (
	"strconv"
	"time"

	"github.com/volatiletech/null/v8"
	"golang.org/x/crypto/bcrypt"

	"github.com/trezcool/escola/core"
)

type Role string

// Roles
const (
	RoleDirector Role = "director"
	RoleTeacher  Role = "teacher"
	RoleGuardian Role = "guardian"
	RoleStudent  Role = "student"
)

var Roles = []RoleInfo{
	{Name: "Director", Value: RoleDirector},
	{Name: "Teacher", Value: RoleTeacher},
	{Name: "Guardian", Value: RoleGuardian},
	{Name: "Student", Value: RoleStudent},
}

type RoleInfo struct {
	Name  string
	Value Role
}

func (r Role) Valid() bool {
	switch r {
	case RoleDirector, RoleTeacher, RoleGuardian, RoleStudent:
		return true
	}
	return false
}

func (r Role) DisplayName() string {
	for _, info := range Roles {
		if info.Value == r {
			return info.Name
		}
	}
	return string(r)
}

// RequiresStudent reports whether accounts of this role must be linked to a Student.
func (r Role) RequiresStudent() bool {
	return r == RoleGuardian || r == RoleStudent
}

type Account struct {
	ID             int64      `db:"id"`
	Name           string     `db:"name"`
	Email          string     `db:"email"`
	PasswordHash   []byte     `db:"password_hash"`
	Role           Role       `db:"role"`
	IsActive       bool       `db:"is_active"`
	StudentID      null.Int64 `db:"student_id"`
	TelegramChatID null.Int64 `db:"telegram_chat_id"`
	CreatedAt      time.Time  `db:"created_at"` // UTC
	UpdatedAt      time.Time  `db:"updated_at"` // UTC
	LastLogin      null.Time  `db:"last_login"` // UTC
}

func (a *Account) SetPassword(pwd string) error {
	hash, err := bcrypt.GenerateFromPassword([]byte(pwd), bcrypt.DefaultCost)
	if err != nil {
		return err
	}
	a.PasswordHash = hash
	return nil
}

func (a *Account) CheckPassword(pwd string) error {
	return bcrypt.CompareHashAndPassword(a.PasswordHash, []byte(pwd))
}

func (a Account) IsDirector() bool { return a.Role == RoleDirector }

func (a Account) Person() core.Person {
	return core.Person{ID: strconv.FormatInt(a.ID, 10), Email: a.Email}
}

// NewAccount contains information needed to create a new Account.
type NewAccount struct {
	Name            string `form:"name" validate:"required,max=150"`
	Email           string `form:"email" validate:"required,email,max=254"`
	Password        string `form:"password" validate:"required"`
	PasswordConfirm string `form:"password_confirm" validate:"required,eqfield=Password"`
	Role            string `form:"role" validate:"required,accountrole"`
	StudentID       int64  `form:"student_id" validate:"gte=0"`
	TelegramChatID  int64  `form:"telegram_chat_id"`
}

func (na *NewAccount) Clean() {
	na.Name = core.CleanString(na.Name)
	na.Email = core.CleanString(na.Email, true /* lower */)
	na.Role = core.CleanString(na.Role, true /* lower */)
	if !Role(na.Role).RequiresStudent() {
		na.StudentID = 0
	}
}

// UpdateAccount defines what information may be provided to modify an existing Account.
// An empty Password keeps the current one.
type UpdateAccount struct {
	Name            string `form:"name" validate:"required,max=150"`
	Email           string `form:"email" validate:"required,email,max=254"`
	Password        string `form:"password"`
	PasswordConfirm string `form:"password_confirm" validate:"required_with=Password,eqfield=Password"`
	Role            string `form:"role" validate:"required,accountrole"`
	StudentID       int64  `form:"student_id" validate:"gte=0"`
	TelegramChatID  int64  `form:"telegram_chat_id"`
}

func (ua *UpdateAccount) Clean() {
	ua.Name = core.CleanString(ua.Name)
	ua.Email = core.CleanString(ua.Email, true /* lower */)
	ua.Role = core.CleanString(ua.Role, true /* lower */)
	if !Role(ua.Role).RequiresStudent() {
		ua.StudentID = 0
	}
}

type ResetPassword struct {
	UID             string `form:"uid" validate:"required"`
	Token           string `form:"token" validate:"required"`
	Password        string `form:"password" validate:"required"`
	PasswordConfirm string `form:"password_confirm" validate:"required,eqfield=Password"`
}

type QueryFilter struct {
	Search string `query:"q"`
	Role   string `query:"role"`
}

func (qf *QueryFilter) Clean() {
	qf.Search = core.CleanString(qf.Search)
	qf.Role = core.CleanString(qf.Role, true /* lower */)
}

func nullID(id int64) null.Int64 {
	return null.NewInt64(id, id > 0)
}
