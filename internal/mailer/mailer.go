package mailer

import (
	"bytes"
	"context"
	"crypto/tls"
	"fmt"
	"log/slog"
	"mime"
	"net"
	"strings"
	"time"

	"github.com/emersion/go-sasl"
	"github.com/emersion/go-smtp"
	"github.com/google/uuid"

	"github.com/outflowhq/outflow/internal/config"
)

// Message is a single outbound email
type Message struct {
	To      string
	ToName  string
	Subject string
	HTML    string
}

// Transport delivers messages. The context bounds the whole attempt,
// including dialing.
type Transport interface {
	Send(ctx context.Context, msg *Message) error
}

// DeliveryError wraps a transport failure. Temporary failures (connection
// refused, timeouts, 4xx responses) are worth retrying on a later run;
// permanent ones are not.
type DeliveryError struct {
	Temporary bool
	Message   string
}

func (e *DeliveryError) Error() string {
	return e.Message
}

// SMTPTransport submits mail through an upstream SMTP server, optionally
// DKIM-signing each message first.
type SMTPTransport struct {
	cfg    config.SMTPConfig
	signer *Signer
	logger *slog.Logger
}

func NewSMTPTransport(cfg config.SMTPConfig, signer *Signer, logger *slog.Logger) *SMTPTransport {
	return &SMTPTransport{
		cfg:    cfg,
		signer: signer,
		logger: logger.With("component", "mailer"),
	}
}

// Send delivers one message
func (t *SMTPTransport) Send(ctx context.Context, msg *Message) error {
	data := t.buildMessage(msg)

	if t.signer != nil {
		signed, err := t.signer.Sign(data)
		if err != nil {
			return fmt.Errorf("failed to sign message: %w", err)
		}
		data = signed
	}

	addr := net.JoinHostPort(t.cfg.Host, fmt.Sprintf("%d", t.cfg.Port))

	dialer := &net.Dialer{Timeout: t.cfg.Timeout}
	conn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return &DeliveryError{Temporary: true, Message: fmt.Sprintf("failed to connect to %s: %v", addr, err)}
	}

	if deadline, ok := ctx.Deadline(); ok {
		conn.SetDeadline(deadline)
	}

	if t.cfg.SSL {
		conn = tls.Client(conn, &tls.Config{ServerName: t.cfg.Host})
	}

	c := smtp.NewClient(conn)
	defer c.Close()

	if err := c.Hello("localhost"); err != nil {
		return &DeliveryError{Temporary: true, Message: fmt.Sprintf("EHLO failed: %v", err)}
	}

	if !t.cfg.SSL {
		if ok, _ := c.Extension("STARTTLS"); ok {
			if err := c.StartTLS(&tls.Config{ServerName: t.cfg.Host}); err != nil {
				return &DeliveryError{Temporary: true, Message: fmt.Sprintf("STARTTLS failed: %v", err)}
			}
		}
	}

	if t.cfg.Username != "" {
		auth := sasl.NewPlainClient("", t.cfg.Username, t.cfg.Password)
		if err := c.Auth(auth); err != nil {
			return &DeliveryError{Temporary: false, Message: fmt.Sprintf("authentication failed: %v", err)}
		}
	}

	err = c.SendMail(t.cfg.FromEmail, []string{msg.To}, bytes.NewReader(data))
	if err != nil {
		return classifySMTPError(err)
	}

	t.logger.Debug("message submitted", "to", msg.To)
	return nil
}

func classifySMTPError(err error) error {
	if smtpErr, ok := err.(*smtp.SMTPError); ok {
		return &DeliveryError{
			Temporary: smtpErr.Code >= 400 && smtpErr.Code < 500,
			Message:   fmt.Sprintf("server rejected message: %v", smtpErr),
		}
	}
	return &DeliveryError{Temporary: true, Message: err.Error()}
}

// buildMessage assembles the RFC 5322 message bytes
func (t *SMTPTransport) buildMessage(msg *Message) []byte {
	var b strings.Builder

	from := t.cfg.FromEmail
	if t.cfg.FromName != "" {
		from = fmt.Sprintf("%s <%s>", mime.QEncoding.Encode("utf-8", t.cfg.FromName), t.cfg.FromEmail)
	}

	to := msg.To
	if name := strings.TrimSpace(msg.ToName); name != "" {
		to = fmt.Sprintf("%s <%s>", mime.QEncoding.Encode("utf-8", name), msg.To)
	}

	domain := t.cfg.Host
	if i := strings.Index(t.cfg.FromEmail, "@"); i >= 0 {
		domain = t.cfg.FromEmail[i+1:]
	}

	b.WriteString("From: " + from + "\r\n")
	b.WriteString("To: " + to + "\r\n")
	b.WriteString("Subject: " + mime.QEncoding.Encode("utf-8", msg.Subject) + "\r\n")
	b.WriteString("Date: " + time.Now().Format(time.RFC1123Z) + "\r\n")
	b.WriteString("Message-ID: <" + uuid.New().String() + "@" + domain + ">\r\n")
	b.WriteString("MIME-Version: 1.0\r\n")
	b.WriteString("Content-Type: text/html; charset=UTF-8\r\n")
	b.WriteString("\r\n")
	b.WriteString(msg.HTML)
	b.WriteString("\r\n")

	return []byte(b.String())
}
