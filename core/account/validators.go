package account

import (
	"fmt"
	"unicode"

	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"

	"github.com/trezcool/escola/core"
)

var (
	accountRoleTag  = "accountrole"
	accountRoleText = "invalid role"

	eqFieldTag  = "eqfield"
	eqFieldText = "the two password fields didn't match"

	studentRequiredTag  = "studentrequired"
	studentRequiredText = "guardian and student accounts must be linked to a student"

	// password policy
	pwdMinLen     = 8
	pwdMinLenTag  = "pwdminlen"
	pwdMinLenText = fmt.Sprintf("password must contain at least %d characters", pwdMinLen)

	pwdDigitTag  = "pwddigit"
	pwdDigitText = "password must contain at least 1 digit"
)

// InitValidators registers the account validators & their translations.
func InitValidators(validate *validator.Validate, translator ut.Translator) {
	_ = validate.RegisterValidation(accountRoleTag, accountRoleValidation)
	core.RegisterCustomTranslation(validate, translator, accountRoleTag, accountRoleText)
	core.RegisterCustomTranslation(validate, translator, eqFieldTag, eqFieldText, true)

	validate.RegisterStructValidation(accountStructValidation, NewAccount{}, UpdateAccount{}, ResetPassword{})
	core.RegisterCustomTranslation(validate, translator, studentRequiredTag, studentRequiredText)
	core.RegisterCustomTranslation(validate, translator, pwdMinLenTag, pwdMinLenText)
	core.RegisterCustomTranslation(validate, translator, pwdDigitTag, pwdDigitText)
}

// Custom Validators

func accountRoleValidation(fl validator.FieldLevel) bool {
	return Role(fl.Field().String()).Valid()
}

// accountStructValidation does struct level validation on NewAccount, UpdateAccount and ResetPassword.
func accountStructValidation(sl validator.StructLevel) {
	switch acc := sl.Current().Interface().(type) {
	case NewAccount:
		validateStudentLink(acc.Role, acc.StudentID, sl)
		validatePassword(acc.Password, sl)
	case UpdateAccount:
		validateStudentLink(acc.Role, acc.StudentID, sl)
		if acc.Password != "" {
			validatePassword(acc.Password, sl)
		}
	case ResetPassword:
		validatePassword(acc.Password, sl)
	}
}

func validateStudentLink(role string, studentID int64, sl validator.StructLevel) {
	if Role(role).RequiresStudent() && studentID <= 0 {
		sl.ReportError(studentID, "student_id", "StudentID", studentRequiredTag, "")
	}
}

// validatePassword applies the password policy to provided password:
// - minLen: 8
// - at least 1 digit
func validatePassword(pwd string, sl validator.StructLevel) {
	if tag := CheckPassword(pwd); tag != "" {
		sl.ReportError(pwd, "password", "Password", tag, "")
	}
}

// CheckPassword returns the tag of the first policy rule `pwd` breaks, or an empty string.
func CheckPassword(pwd string) string {
	if len([]rune(pwd)) < pwdMinLen {
		return pwdMinLenTag
	}
	for _, char := range pwd {
		if unicode.IsDigit(char) {
			return ""
		}
	}
	return pwdDigitTag
}

// PolicyText describes the password policy rule `tag` as returned by CheckPassword.
func PolicyText(tag string) string {
	switch tag {
	case pwdMinLenTag:
		return pwdMinLenText
	case pwdDigitTag:
		return pwdDigitText
	}
	return "invalid password"
}
