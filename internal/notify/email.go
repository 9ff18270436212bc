// Package notify sends operator e-mails.
package notify

import (
	"context"
	"fmt"
	"mime"
	"net/smtp"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/auswanderer-plattform/backend/internal/config"
	"github.com/auswanderer-plattform/backend/internal/logging"
)

// Message is a plain-text e-mail
type Message struct {
	To      string
	Subject string
	Body    string
}

type sendFunc func(addr string, a smtp.Auth, from string, to []string, msg []byte) error

// Mailer sends e-mails through an SMTP relay
type Mailer struct {
	cfg    config.EmailConfig
	send   sendFunc
	logger zerolog.Logger
}

// NewMailer creates a mailer for the configured relay
func NewMailer(cfg config.EmailConfig) *Mailer {
	return &Mailer{
		cfg:    cfg,
		send:   smtp.SendMail,
		logger: logging.NewLogger("notify"),
	}
}

// Send delivers msg. smtp.SendMail upgrades to STARTTLS when the server offers it.
func (m *Mailer) Send(ctx context.Context, msg Message) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	var auth smtp.Auth
	if m.cfg.SMTPUser != "" {
		auth = smtp.PlainAuth("", m.cfg.SMTPUser, m.cfg.SMTPPassword, m.cfg.SMTPHost)
	}

	addr := fmt.Sprintf("%s:%d", m.cfg.SMTPHost, m.cfg.SMTPPort)
	if err := m.send(addr, auth, m.cfg.FromEmail, []string{msg.To}, m.render(msg)); err != nil {
		return fmt.Errorf("failed to send email: %w", err)
	}
	return nil
}

func (m *Mailer) render(msg Message) []byte {
	var b strings.Builder
	fmt.Fprintf(&b, "From: %s <%s>\r\n", m.cfg.FromName, m.cfg.FromEmail)
	fmt.Fprintf(&b, "To: %s\r\n", msg.To)
	fmt.Fprintf(&b, "Subject: %s\r\n", mime.QEncoding.Encode("UTF-8", msg.Subject))
	fmt.Fprintf(&b, "Date: %s\r\n", time.Now().UTC().Format(time.RFC1123Z))
	b.WriteString("MIME-Version: 1.0\r\n")
	b.WriteString("Content-Type: text/plain; charset=\"UTF-8\"\r\n")
	b.WriteString("Content-Transfer-Encoding: 8bit\r\n\r\n")
	b.WriteString(strings.ReplaceAll(msg.Body, "\n", "\r\n"))
	return []byte(b.String())
}

// NotifyCatalogUpdates mails the admin that a scheduled check found updates.
// Without ADMIN_EMAIL this is a no-op.
func (m *Mailer) NotifyCatalogUpdates(ctx context.Context, checkID uuid.UUID, updatesFound int) error {
	if m.cfg.AdminEmail == "" || updatesFound <= 0 {
		return nil
	}

	err := m.Send(ctx, CatalogUpdateMessage(m.cfg.AdminEmail, m.cfg.AppURL, updatesFound))
	if err != nil {
		return err
	}

	m.logger.Info().
		Str("check_id", checkID.String()).
		Int("updates_found", updatesFound).
		Msg("Admin notified about catalog updates")
	return nil
}

// CatalogUpdateMessage builds the admin notice for n pending model updates
func CatalogUpdateMessage(to, appURL string, n int) Message {
	plural := ""
	if n > 1 {
		plural = "s"
	}
	link := strings.TrimRight(appURL, "/") + "/admin/ai-settings"

	body := fmt.Sprintf(`Hallo,

Der wöchentliche AI-Modell-Check hat %d Update%s gefunden.

Bitte prüfe die vorgeschlagenen Änderungen im Admin-Dashboard:
%s

---
Automatische Benachrichtigung von der Auswanderer-Plattform`, n, plural, link)

	return Message{
		To:      to,
		Subject: fmt.Sprintf("%d AI-Modell-Update%s gefunden", n, plural),
		Body:    body,
	}
}
