package mailer

import (
	"context"
	"fmt"
	"strings"

	"github.com/rs/zerolog/log"
	"gopkg.in/gomail.v2"

	"github.com/ppwm/matcher-server-go/internal/config"
	"github.com/ppwm/matcher-server-go/internal/model"
)

// Dialer is the part of *gomail.Dialer the sender needs.
type Dialer interface {
	DialAndSend(m ...*gomail.Message) error
}

// SMTPSender delivers pair notifications through an SMTP relay.
type SMTPSender struct {
	dialer  Dialer
	from    string
	subject string
}

func NewSMTPSender(cfg config.MailConfig) *SMTPSender {
	return NewSMTPSenderWithDialer(gomail.NewDialer(cfg.Host, cfg.Port, cfg.Username, cfg.Password), cfg)
}

func NewSMTPSenderWithDialer(dialer Dialer, cfg config.MailConfig) *SMTPSender {
	return &SMTPSender{
		dialer:  dialer,
		from:    cfg.From,
		subject: cfg.Subject,
	}
}

// Send mails both members of the pair. The SMTP exchange is not cancellable;
// Send returns early when ctx ends and the exchange finishes in the background.
func (s *SMTPSender) Send(ctx context.Context, n model.PairNotification) error {
	if len(n.Recipients) == 0 {
		return fmt.Errorf("notification %s has no recipients", n.ID)
	}

	m := s.message(n)

	done := make(chan error, 1)
	go func() {
		done <- s.dialer.DialAndSend(m)
	}()

	select {
	case err := <-done:
		if err != nil {
			return fmt.Errorf("failed to send pair email: %w", err)
		}
		log.Debug().
			Str("notificationId", n.ID).
			Strs("recipients", n.Recipients).
			Msg("pair email sent")
		return nil
	case <-ctx.Done():
		return fmt.Errorf("failed to send pair email: %w", ctx.Err())
	}
}

func (s *SMTPSender) message(n model.PairNotification) *gomail.Message {
	m := gomail.NewMessage()
	m.SetHeader("From", s.from)
	m.SetHeader("To", n.Recipients...)
	m.SetHeader("Subject", s.subject)
	m.SetBody("text/plain", body(n))
	return m
}

func body(n model.PairNotification) string {
	var b strings.Builder
	b.WriteString("Hello!\n\n")
	fmt.Fprintf(&b, "Your pairing code %s now has two people on it:\n\n", n.CodeValue)
	for i, name := range n.Names {
		email := ""
		if i < len(n.Recipients) {
			email = n.Recipients[i]
		}
		fmt.Fprintf(&b, "  - %s <%s>\n", name, email)
	}
	b.WriteString("\nReply to all to say hello and set up your first session.\n")
	return b.String()
}
