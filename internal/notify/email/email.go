// Package email delivers tracking alerts over SMTP.
package email

import (
	"context"
	"fmt"
	"net"
	"net/smtp"
	"strings"
	"time"

	"github.com/linnemanlabs/vendorwatch/internal/notify"
)

const dialTimeout = 10 * time.Second

// Channel sends alerts as plain-text mail.
type Channel struct {
	addr string // host:port of the SMTP relay
	from string

	// send is swappable for tests.
	send func(ctx context.Context, addr, from string, to []string, msg []byte) error
}

// New creates an email channel. If addr is empty, Send is a no-op.
func New(addr, from string) *Channel {
	return &Channel{addr: addr, from: from, send: sendSMTP}
}

// Name implements notify.Channel.
func (c *Channel) Name() string { return "email" }

// Send mails the alert to its recipients.
func (c *Channel) Send(ctx context.Context, a *notify.Alert) error {
	if c.addr == "" {
		return nil
	}
	if len(a.Recipients) == 0 {
		return fmt.Errorf("email: no recipients")
	}

	msg := buildMessage(c.from, a)
	if err := c.send(ctx, c.addr, c.from, a.Recipients, msg); err != nil {
		return fmt.Errorf("email: %w", err)
	}
	return nil
}

func buildMessage(from string, a *notify.Alert) []byte {
	var b strings.Builder
	fmt.Fprintf(&b, "From: %s\r\n", from)
	fmt.Fprintf(&b, "To: %s\r\n", strings.Join(a.Recipients, ", "))
	fmt.Fprintf(&b, "Subject: %s\r\n", a.Subject)
	b.WriteString("MIME-Version: 1.0\r\nContent-Type: text/plain; charset=utf-8\r\n\r\n")
	b.WriteString(a.Body)
	fmt.Fprintf(&b, "\r\n\r\n-- \nvendorwatch tracking %s\r\n", a.TrackingID)
	return []byte(b.String())
}

// sendSMTP dials with a timeout bounded by ctx and submits the message. The
// smtp package has no context support, so the deadline is applied to the
// connection.
func sendSMTP(ctx context.Context, addr, from string, to []string, msg []byte) error {
	d := net.Dialer{Timeout: dialTimeout}
	conn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return fmt.Errorf("dial: %w", err)
	}
	if deadline, ok := ctx.Deadline(); ok {
		_ = conn.SetDeadline(deadline)
	}

	host, _, _ := net.SplitHostPort(addr)
	client, err := smtp.NewClient(conn, host)
	if err != nil {
		_ = conn.Close()
		return fmt.Errorf("smtp client: %w", err)
	}
	defer func() { _ = client.Close() }()

	if err := client.Mail(from); err != nil {
		return fmt.Errorf("mail from: %w", err)
	}
	for _, rcpt := range to {
		if err := client.Rcpt(rcpt); err != nil {
			return fmt.Errorf("rcpt %s: %w", rcpt, err)
		}
	}
	w, err := client.Data()
	if err != nil {
		return fmt.Errorf("data: %w", err)
	}
	if _, err := w.Write(msg); err != nil {
		return fmt.Errorf("write body: %w", err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("close body: %w", err)
	}
	return client.Quit()
}
