// Package transport はメール・SMSの送信手段を提供する。
// 送信の成否のみを返し、再送は行わない。
package transport

import (
	"context"
	"fmt"
	"log/slog"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/ses"
	"github.com/aws/aws-sdk-go-v2/service/sns"
)

// EmailSender はメール送信のインターフェース。
type EmailSender interface {
	SendEmail(ctx context.Context, to, subject, body string) error
}

// SMSSender はSMS送信のインターフェース。
type SMSSender interface {
	SendSMS(ctx context.Context, phone, body string) error
}

// 送信モード
const (
	ModeLog = "log"
	ModeAWS = "aws"
)

// Config は送信手段の設定。
type Config struct {
	Mode        string // ModeLog または ModeAWS
	AWSRegion   string
	SenderEmail string // SESの送信元アドレス
	SMSSenderID string // SNSの送信者ID（空の場合は付与しない）
}

// Senders はメールとSMSの送信手段の組。
type Senders struct {
	Email EmailSender
	SMS   SMSSender
}

// New は設定に応じた送信手段を生成する。
// ModeAWSの場合はSDKの既定の認証情報チェーンを使ってSES/SNSクライアントを作る。
func New(ctx context.Context, cfg Config, logger *slog.Logger) (*Senders, error) {
	switch cfg.Mode {
	case "", ModeLog:
		lt := NewLogTransport(logger)
		return &Senders{Email: lt, SMS: lt}, nil
	case ModeAWS:
		awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.AWSRegion))
		if err != nil {
			return nil, fmt.Errorf("failed to load AWS config: %w", err)
		}
		return &Senders{
			Email: NewSESMailer(ses.NewFromConfig(awsCfg), cfg.SenderEmail),
			SMS:   NewSNSTexter(sns.NewFromConfig(awsCfg), cfg.SMSSenderID),
		}, nil
	default:
		return nil, fmt.Errorf("unknown notify transport: %q", cfg.Mode)
	}
}
