package email

import (
	"crypto/tls"
	"fmt"
	"log"
	"net/smtp"
	"strings"
)

// Config holds SMTP configuration
type Config struct {
	Host     string
	Port     string
	Username string
	Password string
	From     string
	FromName string
}

// Service sends transactional email over SMTP
type Service struct {
	config Config
}

// NewService creates a new email service
func NewService(config Config) *Service {
	if config.FromName == "" {
		config.FromName = "Stock Alerts"
	}
	return &Service{config: config}
}

// Configured reports whether the service has the settings needed to send
func (s *Service) Configured() bool {
	return s.config.Host != "" && s.config.Port != "" && s.config.From != ""
}

// AlertDigestItem is one triggered alert line in a digest email
type AlertDigestItem struct {
	Symbol  string
	Title   string
	Message string
}

// DigestSubject builds the digest subject line, naming up to three symbols
func DigestSubject(items []AlertDigestItem) string {
	seen := make(map[string]bool, len(items))
	var symbols []string
	for _, item := range items {
		if seen[item.Symbol] {
			continue
		}
		seen[item.Symbol] = true
		symbols = append(symbols, item.Symbol)
	}

	shown := symbols
	if len(shown) > 3 {
		shown = shown[:3]
	}
	subject := "Stock Alert: " + strings.Join(shown, ", ")
	if extra := len(symbols) - len(shown); extra > 0 {
		subject += fmt.Sprintf(" and %d more", extra)
	}
	return subject
}

// SendAlertDigest sends one email covering all of a user's triggered alerts
func (s *Service) SendAlertDigest(to string, items []AlertDigestItem) error {
	if len(items) == 0 {
		return nil
	}
	if !s.Configured() {
		return fmt.Errorf("SMTP not configured")
	}

	var rows strings.Builder
	for _, item := range items {
		rows.WriteString(fmt.Sprintf(
			`<div class="alert"><strong>%s</strong><p>%s</p></div>`,
			item.Title, item.Message,
		))
	}

	body := fmt.Sprintf(`
<!DOCTYPE html>
<html>
<head>
    <style>
        body { font-family: Arial, sans-serif; line-height: 1.6; color: #333; }
        .container { max-width: 600px; margin: 0 auto; padding: 20px; }
        .header { background-color: #1D4ED8; color: white; padding: 20px; text-align: center; border-radius: 5px 5px 0 0; }
        .content { background-color: #f9fafb; padding: 30px; border-radius: 0 0 5px 5px; }
        .alert { background-color: white; border-left: 4px solid #1D4ED8; padding: 12px 16px; margin: 12px 0; border-radius: 3px; }
        .footer { text-align: center; margin-top: 20px; font-size: 12px; color: #666; }
    </style>
</head>
<body>
    <div class="container">
        <div class="header">
            <h1>Your Stock Alerts</h1>
        </div>
        <div class="content">
            <p>The following alerts triggered:</p>
            %s
        </div>
        <div class="footer">
            <p>You are receiving this because email notifications are enabled for your account.</p>
        </div>
    </div>
</body>
</html>
`, rows.String())

	return s.SendEmail(to, DigestSubject(items), body)
}

// SendEmail sends an HTML email
func (s *Service) SendEmail(to, subject, body string) error {
	from := s.config.From
	if s.config.FromName != "" {
		from = fmt.Sprintf("%s <%s>", s.config.FromName, s.config.From)
	}

	message := []byte(
		"From: " + from + "\r\n" +
			"To: " + to + "\r\n" +
			"Subject: " + subject + "\r\n" +
			"MIME-Version: 1.0\r\n" +
			"Content-Type: text/html; charset=UTF-8\r\n" +
			"\r\n" +
			body + "\r\n",
	)

	var auth smtp.Auth
	if s.config.Username != "" {
		auth = smtp.PlainAuth("", s.config.Username, s.config.Password, s.config.Host)
	}

	addr := s.config.Host + ":" + s.config.Port

	var err error
	// Port 465 is implicit TLS; 587 and 25 go through SendMail (STARTTLS or plain)
	if s.config.Port == "465" {
		err = s.sendEmailTLS(addr, auth, s.config.From, []string{to}, message)
	} else {
		err = smtp.SendMail(addr, auth, s.config.From, []string{to}, message)
	}

	if err != nil {
		log.Printf("[EMAIL] Failed to send to %s: %v", to, err)
		return fmt.Errorf("SMTP error: %w", err)
	}

	log.Printf("[EMAIL] Sent %q to %s", subject, to)
	return nil
}

// sendEmailTLS sends email over an implicit TLS connection
func (s *Service) sendEmailTLS(addr string, auth smtp.Auth, from string, to []string, msg []byte) error {
	host := strings.Split(addr, ":")[0]
	tlsConfig := &tls.Config{ServerName: host}

	conn, err := tls.Dial("tcp", addr, tlsConfig)
	if err != nil {
		return fmt.Errorf("failed to connect to SMTP server: %w", err)
	}
	defer conn.Close()

	client, err := smtp.NewClient(conn, host)
	if err != nil {
		return fmt.Errorf("failed to create SMTP client: %w", err)
	}
	defer client.Close()

	if auth != nil {
		if err = client.Auth(auth); err != nil {
			return fmt.Errorf("SMTP authentication failed: %w", err)
		}
	}

	if err = client.Mail(from); err != nil {
		return fmt.Errorf("failed to set sender: %w", err)
	}
	for _, recipient := range to {
		if err = client.Rcpt(recipient); err != nil {
			return fmt.Errorf("failed to add recipient: %w", err)
		}
	}

	w, err := client.Data()
	if err != nil {
		return fmt.Errorf("failed to get data writer: %w", err)
	}
	if _, err = w.Write(msg); err != nil {
		return fmt.Errorf("failed to write message: %w", err)
	}
	if err = w.Close(); err != nil {
		return fmt.Errorf("failed to close data writer: %w", err)
	}

	return client.Quit()
}
