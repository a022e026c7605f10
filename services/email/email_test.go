package emailsvc

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"net/mail"
	"os"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/escola/assets"
	"github.com/trezcool/escola/core"
	"github.com/trezcool/escola/services/logger"
)

func TestMain(m *testing.M) {
	if err := core.ParseEmailTemplates(assets.FS, assets.EmailTemplatesDir, true /* strict */); err != nil {
		fmt.Printf("core.ParseEmailTemplates(): %v", err)
		os.Exit(1)
	}
	os.Exit(m.Run())
}

func resetMessage() *core.EmailMessage {
	return &core.EmailMessage{
		To:           []mail.Address{{Name: "Tom Teacher", Address: "tom@escola.test"}},
		Cc:           []mail.Address{{Address: "dina@escola.test"}},
		Subject:      "Password Reset",
		TemplateName: "password_reset",
		BaseURL:      "http://localhost:8000",
		TemplateData: map[string]string{"Name": "Tom Teacher", "Link": "http://localhost:8000/password-reset/confirm?uid=MQ&token=x"},
	}
}

func TestConsoleService_Send(t *testing.T) {
	var out bytes.Buffer
	svc := NewConsoleService(core.NewTestConfig(), &out, logsvc.NewNopLogger())

	require.NoError(t, svc.Send(context.Background(), resetMessage()))
	got := out.String()
	assert.Contains(t, got, `From: "Escola" <noreply@test.test>`)
	assert.Contains(t, got, "Subject: [Escola] Password Reset\r\n")
	assert.Contains(t, got, `To: "Tom Teacher" <tom@escola.test>`)
	assert.Contains(t, got, "CC: <dina@escola.test>")
	assert.Contains(t, got, "Content-Type: multipart/alternative")
	assert.Contains(t, got, "Hello Tom Teacher,")
	assert.Contains(t, got, "Content-Type: text/html; charset=utf-8")

	t.Run("attachments switch to multipart/mixed", func(t *testing.T) {
		out.Reset()
		msg := &core.EmailMessage{
			To:      []mail.Address{{Address: "tom@escola.test"}},
			Subject: "Export",
			BodyStr: "see attached",
			Attachments: []core.Attachment{{
				Content:     bytes.NewBufferString(base64.StdEncoding.EncodeToString([]byte("a,b"))),
				ContentType: "text/csv",
				Filename:    "students.csv",
			}},
		}
		require.NoError(t, svc.Send(context.Background(), msg))
		assert.Contains(t, out.String(), "Content-Type: multipart/mixed")
		assert.Contains(t, out.String(), "attachment; filename=students.csv")
	})

	t.Run("nothing to send", func(t *testing.T) {
		out.Reset()
		require.NoError(t, svc.Send(context.Background(), &core.EmailMessage{Subject: "nobody", BodyStr: "x"}))
		assert.Empty(t, out.String())
	})
}

func TestSendgridService_Send(t *testing.T) {
	var (
		gotPath, gotAuth string
		gotBody          map[string]interface{}
		status           = http.StatusAccepted
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath, gotAuth = r.URL.Path, r.Header.Get("Authorization")
		body, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(body, &gotBody)
		w.WriteHeader(status)
	}))
	defer srv.Close()

	defer func(h string) { host = h }(host)
	host = srv.URL

	conf := core.NewTestConfig()
	conf.SendgridAPIKey = "sg-key"
	svc := NewSendgridService(conf, logsvc.NewNopLogger())

	require.NoError(t, svc.Send(context.Background(), resetMessage()))
	assert.Equal(t, endpoint, gotPath)
	assert.Equal(t, "Bearer sg-key", gotAuth)

	raw, _ := json.Marshal(gotBody)
	assert.Contains(t, string(raw), `"subject":"[Escola] Password Reset"`)
	assert.Contains(t, string(raw), "tom@escola.test")
	assert.Contains(t, string(raw), "text/plain")

	status = http.StatusUnauthorized
	err := svc.Send(context.Background(), resetMessage())
	require.Error(t, err)
	assert.True(t, strings.Contains(err.Error(), "status: 401"), err.Error())

	gotPath = ""
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err = svc.Send(ctx, resetMessage())
	require.Error(t, err)
	assert.True(t, errors.Is(err, context.Canceled))
	assert.Empty(t, gotPath, "nothing is posted once the request is cancelled")
}

func TestConsoleServiceMock(t *testing.T) {
	svc := NewConsoleServiceMock(core.NewTestConfig())
	require.NoError(t, svc.Send(context.Background(), resetMessage()))
	require.NoError(t, svc.Send(context.Background(), resetMessage()))
	assert.Len(t, svc.Sent(), 2)

	svc.FailWith(assert.AnError)
	assert.Equal(t, assert.AnError, svc.Send(context.Background(), resetMessage()))
	assert.Len(t, svc.Sent(), 2)

	svc.Reset()
	assert.Empty(t, svc.Sent())
	assert.NoError(t, svc.Send(context.Background(), resetMessage()))
}
