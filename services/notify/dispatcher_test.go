package notify

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"testing"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/volatiletech/null/v8"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/trezcool/escola/assets"
	"github.com/trezcool/escola/core"
	"github.com/trezcool/escola/core/account"
	"github.com/trezcool/escola/core/activity"
	"github.com/trezcool/escola/services/email"
	"github.com/trezcool/escola/services/logger"
	"github.com/trezcool/escola/services/metrics"
)

func TestMain(m *testing.M) {
	if err := core.ParseEmailTemplates(assets.FS, assets.EmailTemplatesDir, true /* strict */); err != nil {
		fmt.Printf("core.ParseEmailTemplates(): %v", err)
		os.Exit(1)
	}
	os.Exit(m.Run())
}

type accountsMock struct {
	accs []account.Account
	err  error
}

func (m accountsMock) LinkedToStudent(_ context.Context, _ int64) ([]account.Account, error) {
	return m.accs, m.err
}

type botMock struct {
	mu   sync.Mutex
	sent []tgbotapi.MessageConfig
	fail error
}

func (b *botMock) Send(c tgbotapi.Chattable) (tgbotapi.Message, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.fail != nil {
		return tgbotapi.Message{}, b.fail
	}
	b.sent = append(b.sent, c.(tgbotapi.MessageConfig))
	return tgbotapi.Message{}, nil
}

type fixture struct {
	dispatcher *Dispatcher
	mailSvc    *emailsvc.ConsoleServiceMock
	bot        *botMock
	logs       *observer.ObservedLogs
}

func setup(accounts AccountLister) fixture {
	conf := core.NewTestConfig()
	obsCore, logs := observer.New(zapcore.DebugLevel)
	mailSvc := emailsvc.NewConsoleServiceMock(conf)
	bot := new(botMock)
	return fixture{
		dispatcher: NewDispatcher(accounts, mailSvc, bot, conf, logsvc.NewZapLogger(zap.New(obsCore))),
		mailSvc:    mailSvc,
		bot:        bot,
		logs:       logs,
	}
}

var act = activity.Activity{
	ID:          9,
	StudentID:   3,
	StudentName: "Ana Alves",
	Date:        time.Date(2024, 5, 10, 0, 0, 0, 0, time.UTC),
	Teacher:     "Tom Teacher",
	Content:     "Fractions",
	Notes:       "bring a ruler",
}

var (
	lia = account.Account{ID: 1, Name: "Lia Linked", Email: "lia@escola.test", TelegramChatID: null.Int64From(4242)}
	ana = account.Account{ID: 2, Name: "Ana Alves", Email: "ana@escola.test"}
)

func TestDispatcher_ActivityRecorded(t *testing.T) {
	f := setup(accountsMock{accs: []account.Account{lia, ana}})
	f.dispatcher.ActivityRecorded(context.Background(), act)

	sent := f.mailSvc.Sent()
	require.Len(t, sent, 2)
	assert.Equal(t, lia.Email, sent[0].To[0].Address)
	assert.Equal(t, ana.Email, sent[1].To[0].Address)
	assert.Equal(t, "New activity for Ana Alves", sent[0].Subject)
	assert.Contains(t, sent[0].TextContent, "Hello Lia Linked")
	assert.Contains(t, sent[0].TextContent, "Ana Alves on 2024-05-10 by Tom Teacher")
	assert.Contains(t, sent[0].TextContent, "Notes: bring a ruler")

	require.Len(t, f.bot.sent, 1, "only accounts with a chat id get telegram messages")
	assert.Equal(t, int64(4242), f.bot.sent[0].ChatID)
	assert.Equal(t, "New activity for Ana Alves (2024-05-10)\nTeacher: Tom Teacher\n\nFractions\n\nNotes: bring a ruler", f.bot.sent[0].Text)
	assert.Zero(t, f.logs.Len())
}

func TestDispatcher_failuresAreLogged(t *testing.T) {
	t.Run("listing accounts", func(t *testing.T) {
		f := setup(accountsMock{err: errors.New("db down")})
		f.dispatcher.ActivityRecorded(context.Background(), act)

		assert.Empty(t, f.mailSvc.Sent())
		assert.Empty(t, f.bot.sent)
		entries := f.logs.FilterMessage("listing accounts to notify").All()
		require.Len(t, entries, 1)
		assert.Equal(t, zapcore.ErrorLevel, entries[0].Level)
		assert.Equal(t, int64(9), entries[0].ContextMap()["activity_id"])
	})

	t.Run("delivery", func(t *testing.T) {
		emailErrors := testutil.ToFloat64(metrics.Notifications.WithLabelValues("email", "error"))
		tgErrors := testutil.ToFloat64(metrics.Notifications.WithLabelValues("telegram", "error"))

		f := setup(accountsMock{accs: []account.Account{lia, ana}})
		f.mailSvc.FailWith(errors.New("smtp down"))
		f.bot.fail = errors.New("telegram down")
		f.dispatcher.ActivityRecorded(context.Background(), act)

		assert.Equal(t, 2, f.logs.FilterMessage("emailing activity").Len(), "one failure does not stop the others")
		warns := f.logs.FilterMessage("sending activity to telegram").All()
		require.Len(t, warns, 1)
		assert.Equal(t, zapcore.WarnLevel, warns[0].Level)
		assert.Equal(t, "lia@escola.test", warns[0].ContextMap()["account_email"])

		assert.Equal(t, emailErrors+2, testutil.ToFloat64(metrics.Notifications.WithLabelValues("email", "error")))
		assert.Equal(t, tgErrors+1, testutil.ToFloat64(metrics.Notifications.WithLabelValues("telegram", "error")))
	})
}

func TestTelegramText_withoutNotes(t *testing.T) {
	a := act
	a.Notes = ""
	assert.NotContains(t, telegramText(a), "Notes")
}

func TestNewTelegramBot_disabled(t *testing.T) {
	bot, err := NewTelegramBot("")
	assert.NoError(t, err)
	assert.Nil(t, bot)
}
