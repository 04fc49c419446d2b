package mailer

import (
	"context"
	"fmt"
	"sort"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/sesv2"
	"github.com/aws/aws-sdk-go-v2/service/sesv2/types"
	"go.uber.org/zap"

	"github.com/unclebandit/leadhunter-backend/internal/logger"
)

// SESAPI is the subset of *sesv2.Client used here.
type SESAPI interface {
	SendEmail(ctx context.Context, params *sesv2.SendEmailInput, optFns ...func(*sesv2.Options)) (*sesv2.SendEmailOutput, error)
}

// SESSender sends email via AWS SES v2.
type SESSender struct {
	client    SESAPI
	configSet string
	log       *zap.Logger
}

func NewSESSender(client SESAPI, configSet string, log *zap.Logger) *SESSender {
	return &SESSender{client: client, configSet: configSet, log: log}
}

// NewSESClient builds an SES client from static credentials, or from the
// default AWS credential chain when they are empty.
func NewSESClient(ctx context.Context, accessKey, secretKey, region string) (*sesv2.Client, error) {
	if region == "" {
		region = "us-east-1"
	}
	opts := []func(*awsconfig.LoadOptions) error{awsconfig.WithRegion(region)}
	if accessKey != "" && secretKey != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(accessKey, secretKey, "")))
	}
	cfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize AWS config: %w", err)
	}
	return sesv2.NewFromConfig(cfg), nil
}

func (s *SESSender) Send(ctx context.Context, msg Message) (string, error) {
	input := &sesv2.SendEmailInput{
		FromEmailAddress: aws.String(fmt.Sprintf("%s <%s>", msg.FromName, msg.FromEmail)),
		Destination:      &types.Destination{ToAddresses: []string{msg.To}},
		Content: &types.EmailContent{
			Simple: &types.Message{
				Subject: &types.Content{Data: aws.String(msg.Subject), Charset: aws.String("UTF-8")},
				Body: &types.Body{
					Html: &types.Content{Data: aws.String(msg.HTML), Charset: aws.String("UTF-8")},
				},
			},
		},
	}
	if msg.Text != "" {
		input.Content.Simple.Body.Text = &types.Content{Data: aws.String(msg.Text), Charset: aws.String("UTF-8")}
	}
	if s.configSet != "" {
		input.ConfigurationSetName = aws.String(s.configSet)
	}

	names := make([]string, 0, len(msg.Tags))
	for k := range msg.Tags {
		names = append(names, k)
	}
	sort.Strings(names)
	for _, k := range names {
		input.EmailTags = append(input.EmailTags, types.MessageTag{Name: aws.String(k), Value: aws.String(msg.Tags[k])})
	}

	out, err := s.client.SendEmail(ctx, input)
	if err != nil {
		s.log.Warn("SES send failed", logger.Recipient(msg.To), zap.Error(err))
		return "", fmt.Errorf("%w: %v", ErrRejected, err)
	}
	messageID := aws.ToString(out.MessageId)
	s.log.Info("SES sent", logger.Recipient(msg.To), zap.String("message_id", messageID))
	return messageID, nil
}

var _ Sender = (*SESSender)(nil)
