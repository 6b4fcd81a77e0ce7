package mailer

import (
	"context"
	"fmt"
	"net/smtp"
	"strings"

	"github.com/haontuhcmut/lab-services/internal/obs"
)

// SMTPSender delivers messages through a plain-auth SMTP relay.
type SMTPSender struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
	FromName string
}

var _ Sender = (*SMTPSender)(nil)

func (s *SMTPSender) Send(ctx context.Context, msg Message) error {
	if len(msg.To) == 0 {
		return fmt.Errorf("mailer: message has no recipients")
	}
	from := s.From
	if s.FromName != "" {
		from = fmt.Sprintf("%s <%s>", s.FromName, s.From)
	}
	var b strings.Builder
	fmt.Fprintf(&b, "From: %s\r\n", from)
	fmt.Fprintf(&b, "To: %s\r\n", strings.Join(msg.To, ", "))
	fmt.Fprintf(&b, "Subject: %s\r\n", msg.Subject)
	b.WriteString("MIME-Version: 1.0\r\nContent-Type: text/html; charset=UTF-8\r\n\r\n")
	b.WriteString(msg.HTML)

	addr := fmt.Sprintf("%s:%d", s.Host, s.Port)
	auth := smtp.PlainAuth("", s.Username, s.Password, s.Host)
	return smtp.SendMail(addr, auth, s.From, msg.To, []byte(b.String()))
}

// LogSender logs messages instead of delivering them. Used when SMTP is not
// configured and by tests.
type LogSender struct{}

var _ Sender = (*LogSender)(nil)

func (LogSender) Send(ctx context.Context, msg Message) error {
	obs.LogRequest(map[string]any{
		"level":   "info",
		"msg":     "mail (log only)",
		"subject": msg.Subject,
		"to":      msg.To,
	})
	return nil
}

// InProcess is a Queue that delivers synchronously in a goroutine, for runs
// without the Redis broker.
type InProcess struct {
	Sender Sender
}

var _ Queue = (*InProcess)(nil)

func (q *InProcess) Enqueue(ctx context.Context, msg Message) error {
	go func() {
		if err := q.Sender.Send(context.Background(), msg); err != nil {
			obs.LogRequest(map[string]any{"level": "error", "msg": "mail delivery failed", "error": err.Error()})
		}
	}()
	return nil
}
