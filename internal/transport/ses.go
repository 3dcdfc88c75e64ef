package transport

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ses"
	"github.com/aws/aws-sdk-go-v2/service/ses/types"
)

// SESAPI はSESMailerが使うSESクライアントのメソッド。
type SESAPI interface {
	SendEmail(ctx context.Context, params *ses.SendEmailInput, optFns ...func(*ses.Options)) (*ses.SendEmailOutput, error)
}

// SESMailer はAmazon SESでメールを送信する。
type SESMailer struct {
	api  SESAPI
	from string
}

// NewSESMailer はSESMailerを生成する。
func NewSESMailer(api SESAPI, from string) *SESMailer {
	return &SESMailer{api: api, from: from}
}

// SendEmail はプレーンテキストのメールを1通送信する。
func (m *SESMailer) SendEmail(ctx context.Context, to, subject, body string) error {
	_, err := m.api.SendEmail(ctx, &ses.SendEmailInput{
		Destination: &types.Destination{
			ToAddresses: []string{to},
		},
		Message: &types.Message{
			Subject: &types.Content{Data: aws.String(subject), Charset: aws.String("UTF-8")},
			Body: &types.Body{
				Text: &types.Content{Data: aws.String(body), Charset: aws.String("UTF-8")},
			},
		},
		Source: aws.String(m.from),
	})
	if err != nil {
		return fmt.Errorf("ses send email: %w", err)
	}
	return nil
}

var _ EmailSender = (*SESMailer)(nil)
