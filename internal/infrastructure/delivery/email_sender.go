package delivery

import (
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"mime"
	"net"
	"net/smtp"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/wolfitem/ai-briefing/internal/domain/model"
	"github.com/wolfitem/ai-briefing/internal/infrastructure/logger"
)

// sendMailFunc 与smtp.SendMail签名一致，测试时替换
type sendMailFunc func(addr string, a smtp.Auth, from string, to []string, msg []byte) error

var smtpSendMail sendMailFunc = smtp.SendMail

// EmailSender 通过SMTP发送纯文本邮件
type EmailSender struct {
	cfg      model.EmailConfig
	sendMail sendMailFunc
}

// NewEmailSender 创建邮件发送器
func NewEmailSender(cfg model.EmailConfig) (*EmailSender, error) {
	if err := validateSMTP(cfg); err != nil {
		return nil, err
	}
	if len(cfg.To) == 0 {
		return nil, errors.New("邮件收件人为空")
	}
	return &EmailSender{cfg: cfg, sendMail: smtpSendMail}, nil
}

// Deliver 把文档正文作为邮件正文发送
func (s *EmailSender) Deliver(ctx context.Context, doc model.Document) error {
	msg := buildMessage(s.cfg.From, s.cfg.To, doc.Title, doc.Body, nil)
	return send(ctx, s.cfg, s.sendMail, s.cfg.To, msg)
}

func validateSMTP(cfg model.EmailConfig) error {
	if cfg.SMTPHost == "" {
		return errors.New("SMTP服务器未配置")
	}
	if cfg.From == "" {
		return errors.New("发件人未配置")
	}
	return nil
}

// send 在goroutine中发送，ctx结束时立即返回
func send(ctx context.Context, cfg model.EmailConfig, sendMail sendMailFunc, to []string, msg []byte) error {
	port := cfg.SMTPPort
	if port == 0 {
		port = 587
	}
	addr := net.JoinHostPort(cfg.SMTPHost, strconv.Itoa(port))

	var auth smtp.Auth
	if cfg.Username != "" {
		auth = smtp.PlainAuth("", cfg.Username, cfg.Password, cfg.SMTPHost)
	}

	done := make(chan error, 1)
	go func() {
		done <- sendMail(addr, auth, cfg.From, to, msg)
	}()

	select {
	case err := <-done:
		if err != nil {
			return fmt.Errorf("发送邮件失败: %w", err)
		}
		logger.Debug("邮件发送成功", "addr", addr, "recipients", len(to), "size", len(msg))
		return nil
	case <-ctx.Done():
		return fmt.Errorf("发送邮件超时: %w", ctx.Err())
	}
}

// attachment 邮件附件
type attachment struct {
	name    string
	content []byte
}

// buildMessage 生成MIME邮件，有附件时使用multipart/mixed
func buildMessage(from string, to []string, subject, body string, att *attachment) []byte {
	var b bytes.Buffer
	fmt.Fprintf(&b, "From: %s\r\n", from)
	fmt.Fprintf(&b, "To: %s\r\n", strings.Join(to, ", "))
	fmt.Fprintf(&b, "Subject: %s\r\n", mime.QEncoding.Encode("utf-8", subject))
	fmt.Fprintf(&b, "Date: %s\r\n", time.Now().Format(time.RFC1123Z))
	fmt.Fprintf(&b, "Message-ID: <%s@ai-briefing>\r\n", uuid.NewString())
	b.WriteString("MIME-Version: 1.0\r\n")

	if att == nil {
		b.WriteString("Content-Type: text/plain; charset=utf-8\r\n")
		b.WriteString("Content-Transfer-Encoding: base64\r\n\r\n")
		writeBase64(&b, []byte(body))
		return b.Bytes()
	}

	boundary := "briefing-" + strings.ReplaceAll(uuid.NewString(), "-", "")
	fmt.Fprintf(&b, "Content-Type: multipart/mixed; boundary=%q\r\n\r\n", boundary)

	fmt.Fprintf(&b, "--%s\r\n", boundary)
	b.WriteString("Content-Type: text/plain; charset=utf-8\r\n")
	b.WriteString("Content-Transfer-Encoding: base64\r\n\r\n")
	writeBase64(&b, []byte(body))

	fmt.Fprintf(&b, "--%s\r\n", boundary)
	fmt.Fprintf(&b, "Content-Type: text/plain; charset=utf-8; name=%q\r\n", att.name)
	fmt.Fprintf(&b, "Content-Disposition: attachment; filename=%q\r\n", att.name)
	b.WriteString("Content-Transfer-Encoding: base64\r\n\r\n")
	writeBase64(&b, att.content)

	fmt.Fprintf(&b, "--%s--\r\n", boundary)
	return b.Bytes()
}

// writeBase64 按每行76个字符写入base64
func writeBase64(b *bytes.Buffer, data []byte) {
	encoded := base64.StdEncoding.EncodeToString(data)
	for len(encoded) > 76 {
		b.WriteString(encoded[:76])
		b.WriteString("\r\n")
		encoded = encoded[76:]
	}
	b.WriteString(encoded)
	b.WriteString("\r\n")
}
