package identity

import (
	"context"
	"fmt"
	"net/smtp"
	"strconv"
	"strings"

	"github.com/webaffe/webaffe/backend/console/pkg/logger"
)

// Mailer delivers passwordless sign-in links.
type Mailer interface {
	SendSignInLink(ctx context.Context, to, link string) error
}

type SMTPMailer struct {
	Host     string
	Port     int
	User     string
	Password string
	From     string

	send func(addr string, a smtp.Auth, from string, to []string, msg []byte) error
}

func NewSMTPMailer(host string, port int, user, password, from string) *SMTPMailer {
	return &SMTPMailer{Host: host, Port: port, User: user, Password: password, From: from, send: smtp.SendMail}
}

func (m *SMTPMailer) SendSignInLink(ctx context.Context, to, link string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	var auth smtp.Auth
	if m.User != "" {
		auth = smtp.PlainAuth("", m.User, m.Password, m.Host)
	}
	var b strings.Builder
	fmt.Fprintf(&b, "From: %s\r\n", m.From)
	fmt.Fprintf(&b, "To: %s\r\n", to)
	b.WriteString("Subject: Sign in to WebAffe\r\n")
	b.WriteString("MIME-Version: 1.0\r\nContent-Type: text/plain; charset=utf-8\r\n\r\n")
	fmt.Fprintf(&b, "Use this link to sign in:\r\n\r\n%s\r\n\r\nIf you did not request it, ignore this email.\r\n", link)
	addr := m.Host + ":" + strconv.Itoa(m.Port)
	return m.send(addr, auth, m.From, []string{to}, []byte(b.String()))
}

// LogMailer writes links to the log. Used when SMTP is not configured.
type LogMailer struct{}

func (LogMailer) SendSignInLink(ctx context.Context, to, link string) error {
	logger.Infof("sign-in link for %s: %s", to, link)
	return nil
}
