package delivery

import (
	"context"
	"encoding/base64"
	"errors"
	"net/smtp"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/wolfitem/ai-briefing/internal/domain/model"
)

type capturedMail struct {
	addr string
	auth smtp.Auth
	from string
	to   []string
	msg  string
}

func capture(out *capturedMail, err error) sendMailFunc {
	return func(addr string, a smtp.Auth, from string, to []string, msg []byte) error {
		*out = capturedMail{addr: addr, auth: a, from: from, to: to, msg: string(msg)}
		return err
	}
}

var smtpConfig = model.EmailConfig{
	SMTPHost: "smtp.example.com",
	Username: "user",
	Password: "pass",
	From:     "briefing@example.com",
	To:       []string{"me@example.com", "you@example.com"},
}

func TestEmailSender(t *testing.T) {
	sender, err := NewEmailSender(smtpConfig)
	require.NoError(t, err)
	var got capturedMail
	sender.sendMail = capture(&got, nil)

	err = sender.Deliver(context.Background(), model.Document{Title: "每日简报", Body: "# 标题\n正文"})
	require.NoError(t, err)

	require.Equal(t, "smtp.example.com:587", got.addr)
	require.NotNil(t, got.auth)
	require.Equal(t, smtpConfig.To, got.to)
	require.Contains(t, got.msg, "To: me@example.com, you@example.com\r\n")
	require.Contains(t, got.msg, "Subject: =?utf-8?q?")
	require.Contains(t, got.msg, "Content-Type: text/plain; charset=utf-8")
	require.Contains(t, got.msg, base64.StdEncoding.EncodeToString([]byte("# 标题\n正文")))
}

func TestEmailSenderErrors(t *testing.T) {
	_, err := NewEmailSender(model.EmailConfig{From: "a@b"})
	require.Error(t, err)
	_, err = NewEmailSender(model.EmailConfig{SMTPHost: "h", From: "a@b"})
	require.Error(t, err)

	sender, err := NewEmailSender(smtpConfig)
	require.NoError(t, err)
	var got capturedMail
	sender.sendMail = capture(&got, errors.New("535 auth failed"))
	require.ErrorContains(t, sender.Deliver(context.Background(), model.Document{}), "535")
}

func TestEmailSenderRespectsContext(t *testing.T) {
	sender, err := NewEmailSender(smtpConfig)
	require.NoError(t, err)
	sender.sendMail = func(string, smtp.Auth, string, []string, []byte) error {
		time.Sleep(time.Second)
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	start := time.Now()
	err = sender.Deliver(ctx, model.Document{})
	require.ErrorIs(t, err, context.DeadlineExceeded)
	require.Less(t, time.Since(start), 500*time.Millisecond)
}

func TestKindleSender(t *testing.T) {
	cfg := smtpConfig
	cfg.SMTPPort = 465
	cfg.Username = ""
	sender, err := NewKindleSender(cfg, model.KindleConfig{Address: "reader@kindle.com"})
	require.NoError(t, err)
	var got capturedMail
	sender.sendMail = capture(&got, nil)

	body := strings.Repeat("内容", 100)
	require.NoError(t, sender.Deliver(context.Background(), model.Document{Title: "T", Body: body, FileName: "briefing-2024-05-01.md"}))

	require.Equal(t, "smtp.example.com:465", got.addr)
	require.Nil(t, got.auth)
	require.Equal(t, []string{"reader@kindle.com"}, got.to)
	require.Contains(t, got.msg, "multipart/mixed")
	require.Contains(t, got.msg, `filename="briefing-2024-05-01.txt"`)

	_, err = NewKindleSender(cfg, model.KindleConfig{Address: "not-an-address"})
	require.Error(t, err)
}

func TestFileSink(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "out")
	sink := NewFileSink(dir)

	doc := model.Document{Body: "hello", FileName: "../escape.md"}
	require.NoError(t, sink.Deliver(context.Background(), doc))

	data, err := os.ReadFile(filepath.Join(dir, "escape.md"))
	require.NoError(t, err)
	require.Equal(t, "hello", string(data))

	doc = model.Document{Body: "second", GeneratedAt: time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)}
	require.NoError(t, sink.Deliver(context.Background(), doc))
	_, err = os.Stat(filepath.Join(dir, "briefing-2024-05-01.md"))
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	require.Error(t, sink.Deliver(ctx, doc))
}
