package otp

import (
	"context"
	"fmt"
	"strings"

	awsclient "loan-funnel-workers/internal/common/aws"
	"loan-funnel-workers/internal/common/logger"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sns"
	snstypes "github.com/aws/aws-sdk-go-v2/service/sns/types"
)

// Sender delivers a code to a destination, usually a mobile number.
type Sender interface {
	Send(ctx context.Context, destination, code, purpose string) error
}

// SNSSender sends transactional SMS through Amazon SNS.
type SNSSender struct {
	client   awsclient.SNSService
	senderID string
}

func NewSNSSender(client awsclient.SNSService, senderID string) *SNSSender {
	return &SNSSender{client: client, senderID: senderID}
}

func (s *SNSSender) Send(ctx context.Context, destination, code, purpose string) error {
	attrs := map[string]snstypes.MessageAttributeValue{
		"AWS.SNS.SMS.SMSType": {DataType: aws.String("String"), StringValue: aws.String("Transactional")},
	}
	if s.senderID != "" {
		attrs["AWS.SNS.SMS.SenderID"] = snstypes.MessageAttributeValue{DataType: aws.String("String"), StringValue: aws.String(s.senderID)}
	}

	_, err := s.client.Publish(ctx, &sns.PublishInput{
		PhoneNumber:       aws.String(E164(destination)),
		Message:           aws.String(fmt.Sprintf("%s is your verification code. Do not share it with anyone.", code)),
		MessageAttributes: attrs,
	})
	if err != nil {
		return fmt.Errorf("%w: sns publish for %s: %v", ErrDeliveryFailed, purpose, err)
	}
	return nil
}

// E164 prefixes a ten-digit Indian mobile with +91.
func E164(mobile string) string {
	if strings.HasPrefix(mobile, "+") {
		return mobile
	}
	return "+91" + mobile
}

// LogSender only logs the delivery. The code itself is masked by the logger.
type LogSender struct {
	logger logger.Logger
}

func NewLogSender(log logger.Logger) *LogSender {
	return &LogSender{logger: log}
}

func (s *LogSender) Send(_ context.Context, destination, code, purpose string) error {
	s.logger.Info("otp issued", map[string]interface{}{
		"mobile":  destination,
		"code":    code,
		"purpose": purpose,
	})
	return nil
}
