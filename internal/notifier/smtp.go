package notifier

import (
	"bytes"
	"crypto/tls"
	"fmt"
	"text/template"

	"authd/internal/models"

	"github.com/wneessen/go-mail"
	"go.uber.org/zap"
)

// Security notification templates. Kept as plain text; rendering rich HTML is
// the surrounding application's concern.
var mailTemplates = map[string]string{
	"mfa_enrolled": "Two-factor authentication was enabled on your account.\n\n" +
		"If this was not you, review your account immediately: {{.WebURL}}\n",
	"mfa_removed": "Two-factor authentication was removed from your account.\n\n" +
		"If this was not you, review your account immediately: {{.WebURL}}\n",
	"password_changed": "Your account password was changed on {{.Date}}.\n\n" +
		"All of your sessions were signed out. If this was not you, reset your " +
		"password immediately: {{.WebURL}}\n",
}

type SMTPNotifier struct {
	config models.SMTPNotifierConfiguration
}

func NewSMTPNotifier(config models.SMTPNotifierConfiguration) *SMTPNotifier {
	return &SMTPNotifier{config: config}
}

func (s *SMTPNotifier) NotifyFromTemplate(
	to string,
	subject string,
	templateName string,
	data any,
) error {
	raw, ok := mailTemplates[templateName]
	if !ok {
		return fmt.Errorf("unknown mail template %q", templateName)
	}

	tmpl, err := template.New(templateName).Parse(raw)
	if err != nil {
		return fmt.Errorf("failed to parse mail template: %w", err)
	}

	var body bytes.Buffer
	if err = tmpl.Execute(&body, data); err != nil {
		return fmt.Errorf("failed to render mail template: %w", err)
	}

	msg := mail.NewMsg()
	if err = msg.From(s.config.From); err != nil {
		return fmt.Errorf("invalid from address: %w", err)
	}
	if err = msg.To(to); err != nil {
		return fmt.Errorf("invalid to address: %w", err)
	}
	msg.Subject(subject)
	msg.SetBodyString(mail.TypeTextPlain, body.String())

	options := []mail.Option{
		mail.WithPort(s.config.Port),
		mail.WithSMTPAuth(mail.SMTPAuthPlain),
		mail.WithUsername(s.config.Username),
		mail.WithPassword(s.config.Password),
	}
	if !s.config.EnableTLS {
		options = append(options, mail.WithTLSPolicy(mail.NoTLS))
	}
	if s.config.SkipVerifyTLS {
		options = append(options, mail.WithTLSConfig(&tls.Config{InsecureSkipVerify: true})) // #nosec G402
	}

	client, err := mail.NewClient(s.config.Host, options...)
	if err != nil {
		return fmt.Errorf("failed to create mail client: %w", err)
	}

	if err = client.DialAndSend(msg); err != nil {
		return fmt.Errorf("failed to send mail: %w", err)
	}

	zap.L().Info("Notification sent",
		zap.String("to", to),
		zap.String("subject", subject),
		zap.String("template", templateName),
	)
	return nil
}
