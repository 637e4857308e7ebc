package mailer

import (
	"log/slog"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/outflowhq/outflow/internal/config"
)

func newTestTransport() *SMTPTransport {
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
	return NewSMTPTransport(config.SMTPConfig{
		Host:      "smtp.example.com",
		Port:      587,
		FromEmail: "outreach@example.com",
		FromName:  "Outreach Team",
		Timeout:   5 * time.Second,
	}, nil, logger)
}

func TestBuildMessageHeaders(t *testing.T) {
	tr := newTestTransport()

	data := tr.buildMessage(&Message{
		To:      "ada@example.org",
		ToName:  "Ada Lovelace",
		Subject: "Hello",
		HTML:    "<p>Hi</p>",
	})
	msg := string(data)

	headers, body, ok := strings.Cut(msg, "\r\n\r\n")
	if !ok {
		t.Fatal("message has no header/body separator")
	}

	for _, want := range []string{
		"From: ",
		"To: ",
		"Subject: Hello",
		"Date: ",
		"Message-ID: <",
		"@example.com>",
		"MIME-Version: 1.0",
		"Content-Type: text/html; charset=UTF-8",
	} {
		if !strings.Contains(headers, want) {
			t.Errorf("expected header fragment %q in:\n%s", want, headers)
		}
	}

	if !strings.Contains(headers, "ada@example.org") {
		t.Errorf("recipient address missing from headers:\n%s", headers)
	}
	if !strings.Contains(body, "<p>Hi</p>") {
		t.Errorf("body lost: %q", body)
	}

	// Header lines must be CRLF separated.
	for _, line := range strings.Split(headers, "\r\n") {
		if strings.ContainsRune(line, '\n') {
			t.Errorf("bare newline in header line %q", line)
		}
	}
}

func TestBuildMessageEncodesSubject(t *testing.T) {
	tr := newTestTransport()

	data := tr.buildMessage(&Message{
		To:      "x@example.org",
		Subject: "Grüße aus Köln",
		HTML:    "hi",
	})

	if !strings.Contains(string(data), "=?utf-8?q?") {
		t.Errorf("expected q-encoded subject, got:\n%s", data)
	}
}

func TestDeliveryErrorMessage(t *testing.T) {
	err := &DeliveryError{Temporary: true, Message: "connection refused"}

	if err.Error() != "connection refused" {
		t.Errorf("unexpected error string %q", err.Error())
	}
}
