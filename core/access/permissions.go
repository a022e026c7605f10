package access

import "github.com/trezcool/escola/core/account"

type Code string

// Permission codes
const (
	StudentCreate  Code = "STUDENT_CREATE"
	StudentEdit    Code = "STUDENT_EDIT"
	StudentDelete  Code = "STUDENT_DELETE"
	SchoolCreate   Code = "SCHOOL_CREATE"
	SchoolEdit     Code = "SCHOOL_EDIT"
	SchoolDelete   Code = "SCHOOL_DELETE"
	GradeCreate    Code = "GRADE_CREATE"
	GradeEdit      Code = "GRADE_EDIT"
	GradeDelete    Code = "GRADE_DELETE"
	TimeSlotCreate Code = "TIMESLOT_CREATE"
	TimeSlotEdit   Code = "TIMESLOT_EDIT"
	TimeSlotDelete Code = "TIMESLOT_DELETE"
	ActivityCreate Code = "ACTIVITY_CREATE"
)

type Permission struct {
	ID   int64  `db:"id"`
	Code Code   `db:"code"`
	Name string `db:"name"`
}

// Catalog is the fixed list of grantable permissions, seeded at startup.
var Catalog = []Permission{
	{Code: StudentCreate, Name: "Create students"},
	{Code: StudentEdit, Name: "Edit students"},
	{Code: StudentDelete, Name: "Delete students"},
	{Code: SchoolCreate, Name: "Create schools"},
	{Code: SchoolEdit, Name: "Edit schools"},
	{Code: SchoolDelete, Name: "Delete schools"},
	{Code: GradeCreate, Name: "Create grades"},
	{Code: GradeEdit, Name: "Edit grades"},
	{Code: GradeDelete, Name: "Delete grades"},
	{Code: TimeSlotCreate, Name: "Create time slots"},
	{Code: TimeSlotEdit, Name: "Edit time slots"},
	{Code: TimeSlotDelete, Name: "Delete time slots"},
	{Code: ActivityCreate, Name: "Record activities"},
}

func (c Code) Known() bool {
	for _, p := range Catalog {
		if p.Code == c {
			return true
		}
	}
	return false
}

// DefaultGrants are given to new accounts of a role.
var DefaultGrants = map[account.Role][]Code{
	account.RoleTeacher: {ActivityCreate},
}

// Action is something an account may be allowed to do.
// A zero Code means only Directors may perform it.
type Action struct {
	Name  string
	Code  Code
	Roles []account.Role // when set, only these roles may hold the grant
}

func (a Action) DirectorOnly() bool { return a.Code == "" }

func (a Action) allowsRole(role account.Role) bool {
	if len(a.Roles) == 0 {
		return true
	}
	for _, r := range a.Roles {
		if r == role {
			return true
		}
	}
	return false
}

// Actions
var (
	CreateStudent  = Action{Name: "create student", Code: StudentCreate}
	EditStudent    = Action{Name: "edit student", Code: StudentEdit}
	DeleteStudent  = Action{Name: "delete student", Code: StudentDelete}
	CreateSchool   = Action{Name: "create school", Code: SchoolCreate}
	EditSchool     = Action{Name: "edit school", Code: SchoolEdit}
	DeleteSchool   = Action{Name: "delete school", Code: SchoolDelete}
	CreateGrade    = Action{Name: "create grade", Code: GradeCreate}
	EditGrade      = Action{Name: "edit grade", Code: GradeEdit}
	DeleteGrade    = Action{Name: "delete grade", Code: GradeDelete}
	CreateTimeSlot = Action{Name: "create time slot", Code: TimeSlotCreate}
	EditTimeSlot   = Action{Name: "edit time slot", Code: TimeSlotEdit}
	DeleteTimeSlot = Action{Name: "delete time slot", Code: TimeSlotDelete}
	CreateActivity = Action{Name: "record activity", Code: ActivityCreate, Roles: []account.Role{account.RoleTeacher}}
	EditActivity   = Action{Name: "edit activity"}
	DeleteActivity = Action{Name: "delete activity"}
	ManageAccounts = Action{Name: "manage accounts"}
)
