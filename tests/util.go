// Package testutil holds fixtures shared by the test suites.
package testutil

import (
	"context"
	"testing"
	"time"

	"github.com/volatiletech/null/v8"

	"github.com/trezcool/escola/core/access"
	"github.com/trezcool/escola/core/account"
	"github.com/trezcool/escola/core/school"
	"github.com/trezcool/escola/core/student"
)

// DefaultPassword satisfies the password policy for every fixture account.
const DefaultPassword = "Kiwi-2024-Basket"

func CreateAccount(
	t *testing.T,
	repo account.Repository,
	name, email string,
	role account.Role,
	isActive bool,
	studentID ...int64,
) account.Account {
	t.Helper()
	now := time.Now().UTC()
	acc := account.Account{
		Name:      name,
		Email:     email,
		Role:      role,
		IsActive:  isActive,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if len(studentID) > 0 && studentID[0] > 0 {
		acc.StudentID = null.Int64From(studentID[0])
	}
	if err := acc.SetPassword(DefaultPassword); err != nil {
		t.Fatalf("CreateAccount(): %v", err)
	}
	acc, err := repo.CreateAccount(context.Background(), acc)
	if err != nil {
		t.Fatalf("CreateAccount(): %v", err)
	}
	return acc
}

func CreateStudent(t *testing.T, repo student.Repository, name string, schoolID ...int64) student.Student {
	t.Helper()
	now := time.Now().UTC()
	s := student.Student{Name: name, CreatedAt: now, UpdatedAt: now}
	if len(schoolID) > 0 && schoolID[0] > 0 {
		s.SchoolID = null.Int64From(schoolID[0])
	}
	s, err := repo.CreateStudent(context.Background(), s)
	if err != nil {
		t.Fatalf("CreateStudent(): %v", err)
	}
	return s
}

func CreateSchool(t *testing.T, repo school.Repository, name string) school.School {
	t.Helper()
	s, err := repo.CreateSchool(context.Background(), school.School{Name: name, CreatedAt: time.Now().UTC()})
	if err != nil {
		t.Fatalf("CreateSchool(): %v", err)
	}
	return s
}

func Grant(t *testing.T, repo access.Repository, accountID int64, codes ...access.Code) {
	t.Helper()
	if err := repo.ReplaceGrants(context.Background(), accountID, codes, nil); err != nil {
		t.Fatalf("Grant(): %v", err)
	}
}
