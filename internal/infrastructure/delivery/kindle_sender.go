package delivery

import (
	"context"
	"errors"
	"strings"

	"github.com/wolfitem/ai-briefing/internal/domain/model"
)

// KindleSender 把文档作为附件发送到Kindle邮箱，复用邮件的SMTP设置
type KindleSender struct {
	cfg      model.EmailConfig
	address  string
	sendMail sendMailFunc
}

// NewKindleSender 创建Kindle推送发送器
func NewKindleSender(email model.EmailConfig, kindle model.KindleConfig) (*KindleSender, error) {
	if err := validateSMTP(email); err != nil {
		return nil, err
	}
	if !strings.Contains(kindle.Address, "@") {
		return nil, errors.New("Kindle邮箱地址无效")
	}
	return &KindleSender{cfg: email, address: kindle.Address, sendMail: smtpSendMail}, nil
}

// Deliver 附件使用.txt扩展名，Kindle可以直接转换
func (s *KindleSender) Deliver(ctx context.Context, doc model.Document) error {
	name := doc.FileName
	if name == "" {
		name = "briefing.md"
	}
	name = strings.TrimSuffix(name, ".md") + ".txt"

	to := []string{s.address}
	msg := buildMessage(s.cfg.From, to, doc.Title, doc.Title, &attachment{name: name, content: []byte(doc.Body)})
	return send(ctx, s.cfg, s.sendMail, to, msg)
}
