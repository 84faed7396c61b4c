package notify

import (
	"bytes"
	"context"
	"fmt"
	"net"
	"net/smtp"
	"strconv"
	"time"

	"github.com/dmitrijs2005/gophauth/internal/common"
)

// SMTPConfig describes the outgoing mail relay.
type SMTPConfig struct {
	Host         string
	Port         int
	Username     string
	Password     string
	From         string
	ResetURLBase string
}

// sendMail is a seam for tests.
var sendMail = smtp.SendMail

type SMTPSender struct {
	cfg SMTPConfig
}

func NewSMTPSender(cfg SMTPConfig) *SMTPSender {
	return &SMTPSender{cfg: cfg}
}

func (s *SMTPSender) SendResetLink(ctx context.Context, email, token string) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%w: %w", common.ErrDeliveryFailed, err)
	}

	addr := net.JoinHostPort(s.cfg.Host, strconv.Itoa(s.cfg.Port))

	var auth smtp.Auth
	if s.cfg.Username != "" {
		auth = smtp.PlainAuth("", s.cfg.Username, s.cfg.Password, s.cfg.Host)
	}

	msg := s.buildMessage(email, ResetLink(s.cfg.ResetURLBase, token))

	if err := sendMail(addr, auth, s.cfg.From, []string{email}, msg); err != nil {
		return fmt.Errorf("%w: %w", common.ErrDeliveryFailed, err)
	}
	return nil
}

func (s *SMTPSender) buildMessage(to, link string) []byte {
	var b bytes.Buffer
	fmt.Fprintf(&b, "From: %s\r\n", s.cfg.From)
	fmt.Fprintf(&b, "To: %s\r\n", to)
	b.WriteString("Subject: Password reset\r\n")
	fmt.Fprintf(&b, "Date: %s\r\n", time.Now().UTC().Format(time.RFC1123Z))
	b.WriteString("MIME-Version: 1.0\r\n")
	b.WriteString("Content-Type: text/plain; charset=UTF-8\r\n")
	b.WriteString("\r\n")
	b.WriteString("A password reset was requested for your account.\r\n\r\n")
	fmt.Fprintf(&b, "Open the link below to choose a new password:\r\n%s\r\n\r\n", link)
	b.WriteString("If you did not request this, ignore this message.\r\n")
	return b.Bytes()
}
