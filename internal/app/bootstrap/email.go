package bootstrap

import (
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sesv2"

	appconfig "github.com/wolfman30/lab-scheduling-assistant/internal/config"
	"github.com/wolfman30/lab-scheduling-assistant/internal/notify"
	"github.com/wolfman30/lab-scheduling-assistant/pkg/logging"
)

// BuildEmailSender prefers SendGrid, then SES, then a sender that only logs. The
// returned name is the selected provider.
func BuildEmailSender(cfg *appconfig.Config, awsCfg *aws.Config, logger *logging.Logger) (notify.EmailSender, string) {
	if logger == nil {
		logger = logging.Default()
	}
	if cfg == nil {
		return notify.NewLogSender(logger), "log"
	}

	if strings.TrimSpace(cfg.SendGridAPIKey) != "" && strings.TrimSpace(cfg.SendGridFromEmail) != "" {
		if sender := notify.NewSendGridSender(notify.SendGridConfig{
			APIKey:    cfg.SendGridAPIKey,
			FromEmail: cfg.SendGridFromEmail,
			FromName:  cfg.SendGridFromName,
		}, logger); sender != nil {
			return sender, "sendgrid"
		}
	}

	if awsCfg != nil && strings.TrimSpace(cfg.SESFromEmail) != "" {
		if sender := notify.NewSESSender(sesv2.NewFromConfig(*awsCfg), notify.SESConfig{
			FromEmail: cfg.SESFromEmail,
			FromName:  cfg.SESFromName,
		}, logger); sender != nil {
			return sender, "ses"
		}
	}

	logger.Warn("no email provider configured; confirmations will only be logged")
	return notify.NewLogSender(logger), "log"
}
