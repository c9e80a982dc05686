// Package mail renders and delivers transactional email. Delivery is
// fire-and-forget: a failed send after a committed state change is
// logged and swallowed, never propagated.
package mail

import (
	"fmt"
	"log"
	"net/smtp"
)

// Kind selects an email template.
type Kind string

const (
	KindVerification     Kind = "verification"
	KindPasswordReset    Kind = "password_reset"
	KindTaskAssignment   Kind = "task_assignment"
	KindTaskStatusUpdate Kind = "task_status_update"
	KindWelcome          Kind = "welcome"
)

// Mailer delivers a rendered message.
type Mailer interface {
	Send(to, subject, htmlBody string) error
}

// Service binds a Mailer to the template set.
type Service struct {
	Mailer      Mailer
	FrontendURL string
	Logger      *log.Logger
}

func (s Service) logger() *log.Logger {
	if s.Logger != nil {
		return s.Logger
	}
	return log.Default()
}

// Send renders the template for kind and delivers it. Errors are logged,
// never returned: notification failure must not abort the operation that
// triggered it.
func (s Service) Send(kind Kind, to string, vars Vars) {
	if s.Mailer == nil {
		return
	}
	subject, body, err := render(kind, s.FrontendURL, vars)
	if err != nil {
		s.logger().Printf("mail: render %s for %s failed: %v", kind, to, err)
		return
	}
	if err := s.Mailer.Send(to, subject, body); err != nil {
		s.logger().Printf("mail: send %s to %s failed: %v", kind, to, err)
	}
}

// SMTPSender delivers HTML mail over plain-auth SMTP.
type SMTPSender struct {
	Host     string
	Port     int
	User     string
	Password string
	FromName string
	From     string
}

func (s SMTPSender) Send(to, subject, htmlBody string) error {
	if s.Host == "" || s.Port == 0 || s.From == "" {
		return fmt.Errorf("missing SMTP configuration")
	}
	msg := []byte(fmt.Sprintf(
		"From: %s <%s>\r\n"+
			"To: %s\r\n"+
			"Subject: %s\r\n"+
			"MIME-Version: 1.0\r\n"+
			"Content-Type: text/html; charset=\"utf-8\"\r\n"+
			"\r\n%s\r\n",
		s.FromName, s.From, to, subject, htmlBody,
	))
	addr := fmt.Sprintf("%s:%d", s.Host, s.Port)
	var auth smtp.Auth
	if s.User != "" {
		auth = smtp.PlainAuth("", s.User, s.Password, s.Host)
	}
	return smtp.SendMail(addr, auth, s.From, []string{to}, msg)
}
