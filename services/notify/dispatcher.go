// Package notify tells guardians and students about newly recorded activities.
package notify

import (
	"context"
	"fmt"
	"net/mail"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/trezcool/escola/core"
	"github.com/trezcool/escola/core/account"
	"github.com/trezcool/escola/core/activity"
	"github.com/trezcool/escola/services/metrics"
)

type (
	// AccountLister is satisfied by *account.Service.
	AccountLister interface {
		LinkedToStudent(ctx context.Context, studentID int64) ([]account.Account, error)
	}

	// TelegramSender is satisfied by *tgbotapi.BotAPI.
	TelegramSender interface {
		Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
	}

	Dispatcher struct {
		accounts AccountLister
		mailSvc  core.EmailService
		bot      TelegramSender // nil disables telegram
		baseURL  string
		logger   core.Logger
	}
)

var _ activity.Notifier = (*Dispatcher)(nil)

func NewDispatcher(accounts AccountLister, mailSvc core.EmailService, bot TelegramSender, conf *core.Config, logger core.Logger) *Dispatcher {
	return &Dispatcher{
		accounts: accounts,
		mailSvc:  mailSvc,
		bot:      bot,
		baseURL:  conf.BaseURL,
		logger:   logger,
	}
}

// NewTelegramBot connects to the bot API; an empty token disables telegram.
func NewTelegramBot(token string) (TelegramSender, error) {
	if token == "" {
		return nil, nil
	}
	bot, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, err
	}
	return bot, nil
}

// ActivityRecorded notifies every active account linked to the activity's student.
// Failures are logged and never returned.
func (d *Dispatcher) ActivityRecorded(ctx context.Context, act activity.Activity) {
	accs, err := d.accounts.LinkedToStudent(ctx, act.StudentID)
	if err != nil {
		d.logger.Error("listing accounts to notify", err, map[string]interface{}{"activity_id": act.ID})
		return
	}
	for _, acc := range accs {
		d.email(ctx, acc, act)
		d.telegram(acc, act)
	}
}

func templateData(acc account.Account, act activity.Activity) map[string]string {
	return map[string]string{
		"Name":    acc.Name,
		"Student": act.StudentName,
		"Date":    act.Date.Format(core.DateLayout),
		"Teacher": act.Teacher,
		"Content": act.Content,
		"Notes":   act.Notes,
	}
}

func (d *Dispatcher) email(ctx context.Context, acc account.Account, act activity.Activity) {
	msg := &core.EmailMessage{
		To:           []mail.Address{{Name: acc.Name, Address: acc.Email}},
		Subject:      "New activity for " + act.StudentName,
		TemplateName: "activity_recorded",
		TemplateData: templateData(acc, act),
		BaseURL:      d.baseURL,
	}
	err := d.mailSvc.Send(ctx, msg)
	metrics.ObserveNotification("email", err == nil)
	if err != nil {
		d.logger.Warn("emailing activity", err, acc.Person())
	}
}

func (d *Dispatcher) telegram(acc account.Account, act activity.Activity) {
	if d.bot == nil || !acc.TelegramChatID.Valid {
		return
	}
	_, err := d.bot.Send(tgbotapi.NewMessage(acc.TelegramChatID.Int64, telegramText(act)))
	metrics.ObserveNotification("telegram", err == nil)
	if err != nil {
		d.logger.Warn("sending activity to telegram", err, acc.Person())
	}
}

func telegramText(act activity.Activity) string {
	var b strings.Builder
	_, _ = fmt.Fprintf(&b, "New activity for %s (%s)\n", act.StudentName, act.Date.Format(core.DateLayout))
	_, _ = fmt.Fprintf(&b, "Teacher: %s\n\n%s", act.Teacher, act.Content)
	if act.Notes != "" {
		_, _ = fmt.Fprintf(&b, "\n\nNotes: %s", act.Notes)
	}
	return b.String()
}
