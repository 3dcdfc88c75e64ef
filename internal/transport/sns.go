package transport

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sns"
	snstypes "github.com/aws/aws-sdk-go-v2/service/sns/types"
)

// SNSAPI はSNSTexterが使うSNSクライアントのメソッド。
type SNSAPI interface {
	Publish(ctx context.Context, params *sns.PublishInput, optFns ...func(*sns.Options)) (*sns.PublishOutput, error)
}

// SNSTexter はAmazon SNSでSMSを送信する。
type SNSTexter struct {
	api      SNSAPI
	senderID string
}

// NewSNSTexter はSNSTexterを生成する。
func NewSNSTexter(api SNSAPI, senderID string) *SNSTexter {
	return &SNSTexter{api: api, senderID: senderID}
}

// SendSMS はE.164形式の番号にトランザクションSMSを送信する。
func (t *SNSTexter) SendSMS(ctx context.Context, phone, body string) error {
	attrs := map[string]snstypes.MessageAttributeValue{
		"AWS.SNS.SMS.SMSType": {
			DataType:    aws.String("String"),
			StringValue: aws.String("Transactional"),
		},
	}
	if t.senderID != "" {
		attrs["AWS.SNS.SMS.SenderID"] = snstypes.MessageAttributeValue{
			DataType:    aws.String("String"),
			StringValue: aws.String(t.senderID),
		}
	}

	_, err := t.api.Publish(ctx, &sns.PublishInput{
		PhoneNumber:       aws.String(phone),
		Message:           aws.String(body),
		MessageAttributes: attrs,
	})
	if err != nil {
		return fmt.Errorf("sns publish: %w", err)
	}
	return nil
}

var _ SMSSender = (*SNSTexter)(nil)
