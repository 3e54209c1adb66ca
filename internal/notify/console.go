package notify

import (
	"context"
	"log/slog"

	"github.com/hitoshi/otpgate/internal/model"
)

// ConsoleSender はOTPコードをログに出力するSender実装。
// SMTPが未設定の環境と、配送経路を持たない電話番号識別子に使用する。
// 配送が失敗することはない。
type ConsoleSender struct {
	logger *slog.Logger
}

// NewConsoleSender はConsoleSenderを生成する。
// loggerがnilの場合はslog.Defaultを使用する。
func NewConsoleSender(logger *slog.Logger) *ConsoleSender {
	if logger == nil {
		logger = slog.Default()
	}
	return &ConsoleSender{logger: logger}
}

// SendCode はOTPコードをログに出力する。
func (s *ConsoleSender) SendCode(ctx context.Context, identifier model.Identifier, name, code string) error {
	s.logger.InfoContext(ctx, "otp code issued (console delivery)",
		slog.String("identifier", identifier.Value),
		slog.String("kind", string(identifier.Kind)),
		slog.String("code", code),
	)
	return nil
}

// compile-time interface check
var _ Sender = (*ConsoleSender)(nil)
