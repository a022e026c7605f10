package account

import (
	"context"
	"fmt"
	"net/mail"
	"net/url"
	"time"

	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	"github.com/kat-co/vala"
	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/trezcool/escola/core"
)

var (
	// errors
	ErrNotFound           = errors.New("account not found")
	ErrEmailExists        = errors.New("an account with this email already exists")
	ErrInvalidCredentials = errors.New("invalid credentials or inactive account")
	ErrStudentNotFound    = errors.New("linked student does not exist")
	ErrSelfModification   = errors.New("you cannot delete or deactivate your own account")
	ErrDeliveryFailed     = errors.New("password reset email could not be delivered")
)

const passwordResetPath = "/password-reset/confirm"

type (
	Repository interface {
		CreateAccount(ctx context.Context, acc Account) (Account, error)
		UpdateAccount(ctx context.Context, acc Account) (Account, error)
		GetAccountByID(ctx context.Context, id int64) (Account, error)
		GetAccountByEmail(ctx context.Context, email string) (Account, error)
		EmailExists(ctx context.Context, email string, excludeID int64) (bool, error)
		// QueryAccounts orders by name; QueryFilter.Search is a case-insensitive match on name or email.
		QueryAccounts(ctx context.Context, filter QueryFilter) ([]Account, error)
		QueryAccountsByStudent(ctx context.Context, studentID int64) ([]Account, error)
		CountAccounts(ctx context.Context) (int, error)
		DeleteAccount(ctx context.Context, id int64) error
	}

	// StudentFinder checks Student links without depending on the student package.
	StudentFinder interface {
		StudentExists(ctx context.Context, id int64) (bool, error)
	}

	Service struct {
		repo       Repository
		students   StudentFinder
		mailSvc    core.EmailService
		conf       *core.Config
		validate   *validator.Validate
		translator ut.Translator
		tokens     tokenGenerator
	}
)

func NewService(
	repo Repository,
	students StudentFinder,
	mailSvc core.EmailService,
	conf *core.Config,
	validate *validator.Validate,
	translator ut.Translator,
) *Service {
	vala.BeginValidation().Validate(
		vala.IsNotNil(repo, "repo"),
		vala.IsNotNil(students, "students"),
		vala.IsNotNil(mailSvc, "mailSvc"),
		vala.IsNotNil(conf, "conf"),
		vala.IsNotNil(validate, "validate"),
	).CheckAndPanic()

	return &Service{
		repo:       repo,
		students:   students,
		mailSvc:    mailSvc,
		conf:       conf,
		validate:   validate,
		translator: translator,
		tokens:     tokenGenerator{secret: []byte(conf.SecretKey), timeout: conf.PasswordResetTimeoutDelta},
	}
}

func (svc *Service) checkUniqueness(ctx context.Context, email string, excludeID int64) error {
	exists, err := svc.repo.EmailExists(ctx, email, excludeID)
	if err != nil {
		return errors.Wrap(err, "checking email uniqueness")
	}
	if exists {
		return core.NewValidationError(ErrEmailExists, core.FieldError{Field: "email", Error: ErrEmailExists.Error()})
	}
	return nil
}

func (svc *Service) checkStudentLink(ctx context.Context, studentID int64) error {
	if studentID <= 0 {
		return nil
	}
	exists, err := svc.students.StudentExists(ctx, studentID)
	if err != nil {
		return errors.Wrap(err, "checking student link")
	}
	if !exists {
		return core.NewValidationError(ErrStudentNotFound, core.FieldError{Field: "student_id", Error: ErrStudentNotFound.Error()})
	}
	return nil
}

func (svc *Service) Create(ctx context.Context, na NewAccount) (Account, error) {
	na.Clean()
	if err := core.ValidateStruct(svc.validate, svc.translator, na); err != nil {
		return Account{}, err
	}
	if err := svc.checkUniqueness(ctx, na.Email, 0); err != nil {
		return Account{}, err
	}
	if err := svc.checkStudentLink(ctx, na.StudentID); err != nil {
		return Account{}, err
	}

	now := time.Now().UTC()
	acc := Account{
		Name:           na.Name,
		Email:          na.Email,
		Role:           Role(na.Role),
		IsActive:       true,
		StudentID:      nullID(na.StudentID),
		TelegramChatID: null.NewInt64(na.TelegramChatID, na.TelegramChatID != 0),
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if err := acc.SetPassword(na.Password); err != nil {
		return Account{}, errors.Wrap(err, "hashing password")
	}
	return svc.repo.CreateAccount(ctx, acc)
}

func (svc *Service) Update(ctx context.Context, id int64, ua UpdateAccount) (Account, error) {
	acc, err := svc.repo.GetAccountByID(ctx, id)
	if err != nil {
		return Account{}, err
	}

	ua.Clean()
	if err = core.ValidateStruct(svc.validate, svc.translator, ua); err != nil {
		return Account{}, err
	}
	if err = svc.checkUniqueness(ctx, ua.Email, id); err != nil {
		return Account{}, err
	}
	if err = svc.checkStudentLink(ctx, ua.StudentID); err != nil {
		return Account{}, err
	}

	acc.Name = ua.Name
	acc.Email = ua.Email
	acc.Role = Role(ua.Role)
	acc.StudentID = nullID(ua.StudentID)
	acc.TelegramChatID = null.NewInt64(ua.TelegramChatID, ua.TelegramChatID != 0)
	acc.UpdatedAt = time.Now().UTC()
	if ua.Password != "" {
		if err = acc.SetPassword(ua.Password); err != nil {
			return Account{}, errors.Wrap(err, "hashing password")
		}
	}
	return svc.repo.UpdateAccount(ctx, acc)
}

// ToggleActive flips the active flag of the Account `id`; the actor cannot deactivate themselves.
func (svc *Service) ToggleActive(ctx context.Context, actor Account, id int64) (Account, error) {
	if actor.ID == id {
		return Account{}, ErrSelfModification
	}
	acc, err := svc.repo.GetAccountByID(ctx, id)
	if err != nil {
		return Account{}, err
	}
	acc.IsActive = !acc.IsActive
	acc.UpdatedAt = time.Now().UTC()
	return svc.repo.UpdateAccount(ctx, acc)
}

// Delete removes the Account `id`; its Grants and Sessions go with it.
func (svc *Service) Delete(ctx context.Context, actor Account, id int64) error {
	if actor.ID == id {
		return ErrSelfModification
	}
	if _, err := svc.repo.GetAccountByID(ctx, id); err != nil {
		return err
	}
	return svc.repo.DeleteAccount(ctx, id)
}

func (svc *Service) GetByID(ctx context.Context, id int64) (Account, error) {
	return svc.repo.GetAccountByID(ctx, id)
}

func (svc *Service) GetByEmail(ctx context.Context, email string) (Account, error) {
	return svc.repo.GetAccountByEmail(ctx, core.CleanString(email, true /* lower */))
}

func (svc *Service) Query(ctx context.Context, filter QueryFilter) ([]Account, error) {
	filter.Clean()
	return svc.repo.QueryAccounts(ctx, filter)
}

// LinkedToStudent returns the active accounts scoped to the Student `studentID`.
func (svc *Service) LinkedToStudent(ctx context.Context, studentID int64) ([]Account, error) {
	accs, err := svc.repo.QueryAccountsByStudent(ctx, studentID)
	if err != nil {
		return nil, err
	}
	active := accs[:0]
	for _, acc := range accs {
		if acc.IsActive {
			active = append(active, acc)
		}
	}
	return active, nil
}

// Authenticate returns the active Account matching the credentials.
// Unknown email, wrong password and inactive account all yield ErrInvalidCredentials.
func (svc *Service) Authenticate(ctx context.Context, email, pwd string) (Account, error) {
	acc, err := svc.GetByEmail(ctx, email)
	if err != nil {
		if errors.Cause(err) == ErrNotFound {
			return Account{}, ErrInvalidCredentials
		}
		return Account{}, errors.Wrap(err, "finding account by email")
	}
	if err = acc.CheckPassword(pwd); err != nil || !acc.IsActive {
		return Account{}, ErrInvalidCredentials
	}

	acc.LastLogin = null.TimeFrom(time.Now().UTC())
	acc, err = svc.repo.UpdateAccount(ctx, acc)
	if err != nil {
		return Account{}, errors.Wrap(err, "setting last login")
	}
	return acc, nil
}

// RequestPasswordReset emails a reset link to the active Account owning `email`.
// The link is returned even when delivery fails (ErrDeliveryFailed) so callers may fall back to showing it.
func (svc *Service) RequestPasswordReset(ctx context.Context, email string) (string, error) {
	acc, err := svc.GetByEmail(ctx, email)
	if err != nil {
		return "", err
	}
	if !acc.IsActive {
		return "", ErrNotFound
	}

	link := svc.passwordResetLink(acc)
	msg := &core.EmailMessage{
		To:           []mail.Address{{Name: acc.Name, Address: acc.Email}},
		Subject:      "Password Reset",
		TemplateName: "password_reset",
		BaseURL:      svc.conf.BaseURL,
		TemplateData: map[string]string{"Name": acc.Name, "Link": link},
	}
	if err = svc.mailSvc.Send(ctx, msg); err != nil {
		return link, errors.Wrap(ErrDeliveryFailed, err.Error())
	}
	return link, nil
}

func (svc *Service) passwordResetLink(acc Account) string {
	q := make(url.Values)
	q.Set("uid", EncodeUID(acc))
	q.Set("token", svc.tokens.makeToken(acc))
	return fmt.Sprintf("%s%s?%s", svc.conf.BaseURL, passwordResetPath, q.Encode())
}

func (svc *Service) ResetPassword(ctx context.Context, rp ResetPassword) error {
	if err := core.ValidateStruct(svc.validate, svc.translator, rp); err != nil {
		return err
	}

	invalidLink := core.NewValidationError(errors.New("the password reset link is invalid or has expired"))
	id, err := decodeUID(rp.UID)
	if err != nil {
		return invalidLink
	}
	acc, err := svc.repo.GetAccountByID(ctx, id)
	if err != nil {
		if errors.Cause(err) == ErrNotFound {
			return invalidLink
		}
		return err
	}
	if err = svc.tokens.verifyToken(acc, rp.Token); err != nil || !acc.IsActive {
		return invalidLink
	}

	if err = acc.SetPassword(rp.Password); err != nil {
		return errors.Wrap(err, "hashing password")
	}
	acc.UpdatedAt = time.Now().UTC()
	_, err = svc.repo.UpdateAccount(ctx, acc)
	return err
}

// EnsureDirector creates the bootstrap Director account when no account exists yet.
func (svc *Service) EnsureDirector(ctx context.Context, email, pwd string) (bool, error) {
	count, err := svc.repo.CountAccounts(ctx)
	if err != nil {
		return false, errors.Wrap(err, "counting accounts")
	}
	if count > 0 {
		return false, nil
	}

	now := time.Now().UTC()
	acc := Account{
		Name:      "Director",
		Email:     core.CleanString(email, true /* lower */),
		Role:      RoleDirector,
		IsActive:  true,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err = acc.SetPassword(pwd); err != nil {
		return false, errors.Wrap(err, "hashing password")
	}
	if _, err = svc.repo.CreateAccount(ctx, acc); err != nil {
		return false, errors.Wrap(err, "creating director")
	}
	return true, nil
}

// SetPassword replaces the password of the Account owning `email`, applying the password policy.
func (svc *Service) SetPassword(ctx context.Context, email, pwd string) (Account, error) {
	acc, err := svc.GetByEmail(ctx, email)
	if err != nil {
		return Account{}, err
	}
	if tag := CheckPassword(pwd); tag != "" {
		text := PolicyText(tag)
		return Account{}, core.NewValidationError(errors.New(text), core.FieldError{Field: "password", Error: text})
	}
	if err = acc.SetPassword(pwd); err != nil {
		return Account{}, errors.Wrap(err, "hashing password")
	}
	acc.UpdatedAt = time.Now().UTC()
	return svc.repo.UpdateAccount(ctx, acc)
}
