package service

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/sesv2"
	"github.com/aws/aws-sdk-go-v2/service/sesv2/types"

	"famfinance/internal/log"
)

// Message is one outbound email
type Message struct {
	To      string
	Subject string
	HTML    string
	Text    string
}

// Mailer delivers a single email
type Mailer interface {
	Send(ctx context.Context, msg Message) error
}

type sesAPI interface {
	SendEmail(ctx context.Context, params *sesv2.SendEmailInput, optFns ...func(*sesv2.Options)) (*sesv2.SendEmailOutput, error)
}

// SESMailer sends email through Amazon SES. Without a sender address it is disabled
// and every send is logged and dropped.
type SESMailer struct {
	client    sesAPI
	fromEmail string
	fromName  string
	enabled   bool
	debug     bool
	logger    *log.Logger
}

// NewSESMailer creates a mailer for the given region and sender
func NewSESMailer(ctx context.Context, region, fromEmail, fromName string, debug bool, logger *log.Logger) (*SESMailer, error) {
	logger = logger.WithComponent(log.ComponentEmail)

	if fromEmail == "" {
		logger.Info("email delivery disabled: SES_FROM_EMAIL not configured")
		return &SESMailer{enabled: false, debug: debug, logger: logger}, nil
	}

	cfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	logger.Info("email delivery enabled", "from", fromEmail, "region", region)
	return &SESMailer{
		client:    sesv2.NewFromConfig(cfg),
		fromEmail: fromEmail,
		fromName:  fromName,
		enabled:   true,
		debug:     debug,
		logger:    logger,
	}, nil
}

// IsEnabled returns whether emails are actually delivered
func (m *SESMailer) IsEnabled() bool {
	return m.enabled
}

// Send delivers msg through SES
func (m *SESMailer) Send(ctx context.Context, msg Message) error {
	if !m.enabled {
		m.logger.InfoContext(ctx, "skipping email send (delivery disabled)",
			log.FieldEmail, msg.To,
			"subject", msg.Subject)
		return nil
	}

	from := m.fromEmail
	if m.fromName != "" {
		from = fmt.Sprintf("%s <%s>", m.fromName, m.fromEmail)
	}

	body := &types.Body{
		Html: &types.Content{Data: aws.String(msg.HTML), Charset: aws.String("UTF-8")},
	}
	if msg.Text != "" {
		body.Text = &types.Content{Data: aws.String(msg.Text), Charset: aws.String("UTF-8")}
	}

	input := &sesv2.SendEmailInput{
		FromEmailAddress: aws.String(from),
		Destination: &types.Destination{
			ToAddresses: []string{msg.To},
		},
		Content: &types.EmailContent{
			Simple: &types.Message{
				Subject: &types.Content{Data: aws.String(msg.Subject), Charset: aws.String("UTF-8")},
				Body:    body,
			},
		},
	}

	result, err := m.client.SendEmail(ctx, input)
	if err != nil {
		return fmt.Errorf("%w: failed to send email to %s: %w", ErrUpstream, msg.To, err)
	}

	if m.debug && result.MessageId != nil {
		m.logger.DebugContext(ctx, "SES accepted email", "message_id", *result.MessageId)
	}
	m.logger.InfoContext(ctx, "email sent", log.FieldEmail, msg.To, "subject", msg.Subject)
	return nil
}
