package transport

import (
	"context"
	"log/slog"
)

// LogTransport は送信内容をログに出力するだけの送信手段。開発環境で使う。
type LogTransport struct {
	logger *slog.Logger
}

// NewLogTransport はLogTransportを生成する。loggerがnilの場合はslog.Default()を使う。
func NewLogTransport(logger *slog.Logger) *LogTransport {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogTransport{logger: logger}
}

func (t *LogTransport) SendEmail(ctx context.Context, to, subject, body string) error {
	t.logger.InfoContext(ctx, "メールを送信しました（ログ出力のみ）",
		slog.String("to", to),
		slog.String("subject", subject),
		slog.Int("body_length", len(body)),
	)
	return nil
}

func (t *LogTransport) SendSMS(ctx context.Context, phone, body string) error {
	t.logger.InfoContext(ctx, "SMSを送信しました（ログ出力のみ）",
		slog.String("phone", phone),
		slog.String("body", body),
	)
	return nil
}

var (
	_ EmailSender = (*LogTransport)(nil)
	_ SMSSender   = (*LogTransport)(nil)
)
