package target

import (
	"bytes"
	"context"
	"fmt"
	"net"
	"net/smtp"
	"strings"

	"github.com/yuin/goldmark"

	"github.com/beyondessential/alertd/internal/alertdef"
)

// SMTPConfig carries the credentials and relay address used to deliver
// alert emails. No third-party SMTP or transactional-email client library
// appears anywhere in the retrieved example pack, so delivery here uses
// net/smtp directly — see DESIGN.md for the full justification.
type SMTPConfig struct {
	Addr     string // host:port
	From     string
	Username string
	Password string
}

// EmailSender renders the alert body as markdown-to-HTML and delivers it
// over SMTP, or just logs it when DryRun is set.
type EmailSender struct {
	Config SMTPConfig
	DryRun bool
}

// Send delivers subject/body to target.Email.Recipients. body is treated as
// markdown and converted to HTML before sending.
func (s *EmailSender) Send(ctx context.Context, target alertdef.ExternalTarget, subject, body string) error {
	if target.Email == nil || len(target.Email.Recipients) == 0 {
		return fmt.Errorf("email target %s has no recipients", target.ID)
	}

	var html bytes.Buffer
	if err := goldmark.Convert([]byte(body), &html); err != nil {
		return fmt.Errorf("rendering email body as markdown: %w", err)
	}

	if s.DryRun {
		fmt.Printf("-------------------------------\nTarget: %s\nSubject: %s\nBody:\n%s\n", target.ID, subject, html.String())
		return nil
	}

	msg := buildMIMEMessage(s.Config.From, target.Email.Recipients, subject, html.String())

	var auth smtp.Auth
	if s.Config.Username != "" {
		host, _, err := net.SplitHostPort(s.Config.Addr)
		if err != nil {
			host = s.Config.Addr
		}
		auth = smtp.PlainAuth("", s.Config.Username, s.Config.Password, host)
	}

	if err := smtp.SendMail(s.Config.Addr, auth, s.Config.From, target.Email.Recipients, msg); err != nil {
		return fmt.Errorf("sending email via %s: %w", s.Config.Addr, err)
	}
	return nil
}

func buildMIMEMessage(from string, to []string, subject, htmlBody string) []byte {
	var buf bytes.Buffer
	fmt.Fprintf(&buf, "From: %s\r\n", from)
	fmt.Fprintf(&buf, "To: %s\r\n", joinAddresses(to))
	fmt.Fprintf(&buf, "Subject: %s\r\n", subject)
	buf.WriteString("MIME-Version: 1.0\r\n")
	buf.WriteString("Content-Type: text/html; charset=\"UTF-8\"\r\n\r\n")
	buf.WriteString(htmlBody)
	return buf.Bytes()
}

func joinAddresses(addrs []string) string {
	return strings.Join(addrs, ", ")
}
