package report

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/wneessen/go-mail"
)

// Notification is the outcome of one report run as told to a human.
type Notification struct {
	Published      bool
	SpreadsheetURL string
	BackupPath     string
	PeriodStart    string
	PeriodEnd      string
}

type Mailer interface {
	Send(ctx context.Context, n Notification) error
}

type MailerConfig struct {
	Server   string
	Port     int
	Username string
	Password string
	From     string
	To       string
	Timeout  time.Duration
}

// SMTPMailer sends notifications over implicit TLS with PLAIN auth.
type SMTPMailer struct {
	cfg MailerConfig
}

func NewSMTPMailer(cfg MailerConfig) *SMTPMailer {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.Username == "" {
		cfg.Username = cfg.From
	}
	return &SMTPMailer{cfg: cfg}
}

func (m *SMTPMailer) Send(ctx context.Context, n Notification) error {
	msg, err := BuildMessage(m.cfg.From, m.cfg.To, n)
	if err != nil {
		return err
	}

	client, err := mail.NewClient(m.cfg.Server,
		mail.WithPort(m.cfg.Port),
		mail.WithSSL(),
		mail.WithSMTPAuth(mail.SMTPAuthPlain),
		mail.WithUsername(m.cfg.Username),
		mail.WithPassword(m.cfg.Password),
		mail.WithTimeout(m.cfg.Timeout),
	)
	if err != nil {
		return fmt.Errorf("failed to create mail client: %w", err)
	}

	if err := client.DialAndSendWithContext(ctx, msg); err != nil {
		return fmt.Errorf("failed to send report email to %s: %w", m.cfg.To, err)
	}
	return nil
}

const (
	subjectPublished = "Attempts report: published to Google Sheets"
	subjectFailed    = "Attempts report: Google Sheets upload failed"
)

// BuildMessage composes the notification email. A backup file that exists
// is attached.
func BuildMessage(from, to string, n Notification) (*mail.Msg, error) {
	msg := mail.NewMsg()
	if err := msg.From(from); err != nil {
		return nil, fmt.Errorf("invalid sender address: %w", err)
	}
	if err := msg.To(to); err != nil {
		return nil, fmt.Errorf("invalid recipient address: %w", err)
	}

	var body strings.Builder
	body.WriteString("Hello!\n\n")
	if n.Published && n.SpreadsheetURL != "" {
		msg.Subject(subjectPublished)
		fmt.Fprintf(&body, "The attempts aggregation finished successfully.\n")
		fmt.Fprintf(&body, "Data for %s to %s is published to Google Sheets.\n\n", n.PeriodStart, n.PeriodEnd)
		fmt.Fprintf(&body, "Spreadsheet: %s\n", n.SpreadsheetURL)
	} else {
		msg.Subject(subjectFailed)
		fmt.Fprintf(&body, "The attempts aggregation finished, but the Google Sheets upload failed.\n")
		if n.BackupPath != "" {
			fmt.Fprintf(&body, "The metrics were saved locally: %s\n\n", n.BackupPath)
		} else {
			fmt.Fprintf(&body, "The local backup could not be written either.\n\n")
		}
		fmt.Fprintf(&body, "Please check the connection and repeat the upload.\n")
	}
	body.WriteString("\nAnalytics pipeline\n")
	msg.SetBodyString(mail.TypeTextPlain, body.String())

	if !n.Published && n.BackupPath != "" && fileExists(n.BackupPath) {
		msg.AttachFile(n.BackupPath,
			mail.WithFileName(filepath.Base(n.BackupPath)),
			mail.WithFileContentType(mail.ContentType("text/csv")),
		)
	}
	return msg, nil
}
