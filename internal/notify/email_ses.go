package notify

import (
	"context"
	"fmt"
	"net/mail"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sesv2"
	"github.com/aws/aws-sdk-go-v2/service/sesv2/types"
	"github.com/wolfman30/lab-scheduling-assistant/pkg/logging"
)

// SESAPI is the subset of the SES v2 client used here.
type SESAPI interface {
	SendEmail(ctx context.Context, params *sesv2.SendEmailInput, optFns ...func(*sesv2.Options)) (*sesv2.SendEmailOutput, error)
}

// SESConfig selects the verified From identity.
type SESConfig struct {
	FromEmail string
	FromName  string
}

// SESSender delivers through Amazon SES v2.
type SESSender struct {
	client SESAPI
	from   string
	logger *logging.Logger
}

// NewSESSender returns nil without a client or a From address.
func NewSESSender(client SESAPI, cfg SESConfig, logger *logging.Logger) *SESSender {
	if client == nil || cfg.FromEmail == "" {
		return nil
	}
	if logger == nil {
		logger = logging.Default()
	}
	if cfg.FromName == "" {
		cfg.FromName = defaultFromName
	}
	from := (&mail.Address{Name: cfg.FromName, Address: cfg.FromEmail}).String()
	return &SESSender{client: client, from: from, logger: logger}
}

// sesInput maps an Email onto a simple SES message. The category becomes
// a message tag so bounces can be traced back to confirmations.
func (s *SESSender) sesInput(msg Email) *sesv2.SendEmailInput {
	to := (&mail.Address{Name: msg.ToName, Address: msg.To}).String()
	body := &types.Body{Text: utf8Content(msg.Text)}
	if msg.HTML != "" {
		body.Html = utf8Content(msg.HTML)
	}
	in := &sesv2.SendEmailInput{
		FromEmailAddress: aws.String(s.from),
		Destination:      &types.Destination{ToAddresses: []string{to}},
		Content: &types.EmailContent{
			Simple: &types.Message{Subject: utf8Content(msg.Subject), Body: body},
		},
	}
	if msg.Category != "" {
		in.EmailTags = []types.MessageTag{{Name: aws.String("category"), Value: aws.String(msg.Category)}}
	}
	return in
}

func (s *SESSender) Send(ctx context.Context, msg Email) error {
	if s == nil || s.client == nil {
		return fmt.Errorf("notify: ses client not configured")
	}
	out, err := s.client.SendEmail(ctx, s.sesInput(msg))
	if err != nil {
		return fmt.Errorf("notify: ses send: %w", err)
	}
	s.logger.Info("confirmation delivered",
		"provider", "ses",
		"to", logging.MaskEmail(msg.To),
		"category", msg.Category,
		"message_id", aws.ToString(out.MessageId),
	)
	return nil
}

func utf8Content(data string) *types.Content {
	return &types.Content{Data: aws.String(data), Charset: aws.String("UTF-8")}
}

var _ EmailSender = (*SESSender)(nil)
