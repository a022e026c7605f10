package access

import "github.com/trezcool/escola/core/account"

// Scope restricts which Students (and their Activities) an account may see.
type Scope struct {
	All       bool
	StudentID int64
}

// ScopeFor gives Directors and Teachers every Student,
// and Guardians and Students only their linked one (nothing when unlinked).
func ScopeFor(acc account.Account) Scope {
	switch acc.Role {
	case account.RoleDirector, account.RoleTeacher:
		return Scope{All: true}
	}
	if acc.StudentID.Valid {
		return Scope{StudentID: acc.StudentID.Int64}
	}
	return Scope{}
}

// Unlinked reports a restricted scope without any Student to show.
func (s Scope) Unlinked() bool { return !s.All && s.StudentID == 0 }

func (s Scope) Allows(studentID int64) bool {
	return s.All || (s.StudentID != 0 && s.StudentID == studentID)
}
