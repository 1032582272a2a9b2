package services

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/ses"
	"github.com/aws/aws-sdk-go-v2/service/ses/types"
)

// SecurityNotifier tells an account owner about credential changes. Failures
// never change the outcome of the operation that triggered them.
type SecurityNotifier interface {
	NotifyPasswordChanged(ctx context.Context, email string) error
	NotifyTwoFactorChanged(ctx context.Context, email string, enabled bool) error
}

// NopNotifier discards notifications.
type NopNotifier struct{}

func (NopNotifier) NotifyPasswordChanged(context.Context, string) error        { return nil }
func (NopNotifier) NotifyTwoFactorChanged(context.Context, string, bool) error { return nil }

// SESSender is the subset of the SES client used for notifications.
type SESSender interface {
	SendEmail(ctx context.Context, params *ses.SendEmailInput, optFns ...func(*ses.Options)) (*ses.SendEmailOutput, error)
}

// SESNotifier sends security notifications through AWS SES.
type SESNotifier struct {
	client      SESSender
	fromAddress string
	logger      *slog.Logger
	now         func() time.Time
}

// NewSESNotifier loads the default AWS credential chain for region.
func NewSESNotifier(ctx context.Context, region, fromAddress string, logger *slog.Logger) (*SESNotifier, error) {
	cfg, err := config.LoadDefaultConfig(ctx, config.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}
	return NewSESNotifierWithClient(ses.NewFromConfig(cfg), fromAddress, logger), nil
}

func NewSESNotifierWithClient(client SESSender, fromAddress string, logger *slog.Logger) *SESNotifier {
	return &SESNotifier{client: client, fromAddress: fromAddress, logger: logger, now: time.Now}
}

func (n *SESNotifier) NotifyPasswordChanged(ctx context.Context, email string) error {
	body := fmt.Sprintf(`Your admin panel password was changed at %s.

If you did not make this change, contact the site owner immediately.
`, n.now().UTC().Format(time.RFC1123))
	return n.send(ctx, email, "Your password was changed", body)
}

func (n *SESNotifier) NotifyTwoFactorChanged(ctx context.Context, email string, enabled bool) error {
	state := "disabled"
	if enabled {
		state = "enabled"
	}
	body := fmt.Sprintf(`Two-factor authentication was %s on your admin panel account at %s.

If you did not make this change, contact the site owner immediately.
`, state, n.now().UTC().Format(time.RFC1123))
	return n.send(ctx, email, "Two-factor authentication "+state, body)
}

func (n *SESNotifier) send(ctx context.Context, to, subject, text string) error {
	input := &ses.SendEmailInput{
		Source: aws.String(n.fromAddress),
		Destination: &types.Destination{
			ToAddresses: []string{to},
		},
		Message: &types.Message{
			Subject: &types.Content{Data: aws.String(subject), Charset: aws.String("UTF-8")},
			Body: &types.Body{
				Text: &types.Content{Data: aws.String(text), Charset: aws.String("UTF-8")},
			},
		},
	}

	result, err := n.client.SendEmail(ctx, input)
	if err != nil {
		return fmt.Errorf("failed to send email: %w", err)
	}

	n.logger.Info("security notification sent", slog.String("message_id", aws.ToString(result.MessageId)))
	return nil
}
