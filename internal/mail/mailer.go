package mail

import (
	"fmt"

	"gopkg.in/gomail.v2"
)

// Sender delivers notification emails. The worker depends on this
// interface so tests can capture outgoing mail.
type Sender interface {
	SendInviteEmail(to, inviterName, joinURL string) error
	SendMonthClosedEmail(to string, year, month int, summary string) error
}

// Mailer sends emails over SMTP.
type Mailer struct {
	dialer *gomail.Dialer
	from   string
}

func NewMailer(host string, port int, username, password, from string) *Mailer {
	return &Mailer{
		dialer: gomail.NewDialer(host, port, username, password),
		from:   from,
	}
}

func (m *Mailer) SendInviteEmail(to, inviterName, joinURL string) error {
	subject := fmt.Sprintf("%s invited you to share expenses", inviterName)
	body := fmt.Sprintf(`<html><body>
<p>Hi,</p>
<p><strong>%s</strong> invited you to track shared expenses together.</p>
<p><a href="%s">Accept the invitation</a></p>
<p>If you were not expecting this, you can ignore this email.</p>
</body></html>`, inviterName, joinURL)

	return m.send(to, subject, body)
}

func (m *Mailer) SendMonthClosedEmail(to string, year, month int, summary string) error {
	subject := fmt.Sprintf("Your %04d-%02d balance is settled", year, month)
	body := fmt.Sprintf(`<html><body>
<p>Hi,</p>
<p>The month %04d-%02d has been closed.</p>
<p>%s</p>
</body></html>`, year, month, summary)

	return m.send(to, subject, body)
}

func (m *Mailer) send(to, subject, body string) error {
	msg := gomail.NewMessage()
	msg.SetHeader("From", m.from)
	msg.SetHeader("To", to)
	msg.SetHeader("Subject", subject)
	msg.SetBody("text/html", body)

	if err := m.dialer.DialAndSend(msg); err != nil {
		return fmt.Errorf("send email to %s: %w", to, err)
	}
	return nil
}
