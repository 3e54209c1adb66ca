package notify

import (
	"context"
	"crypto/tls"
	"fmt"
	"net"
	"net/smtp"
	"time"

	"github.com/hitoshi/otpgate/internal/model"
)

// SMTPConfig はSMTP送信の設定。
type SMTPConfig struct {
	Host     string // 例: smtp.gmail.com
	Port     string // 例: 587
	Username string
	Password string
	FromName string // 差出人表示名
	Timeout  time.Duration
	CodeTTL  time.Duration // 本文に記載するコードの有効期間
}

// SMTPSender はSTARTTLS経由でOTPメールを送信するSender実装。
// メール識別子のみ対応。電話番号識別子はフォールバック側で扱う。
type SMTPSender struct {
	config SMTPConfig
}

// NewSMTPSender はSMTPSenderを生成する。
func NewSMTPSender(config SMTPConfig) *SMTPSender {
	if config.Timeout <= 0 {
		config.Timeout = 10 * time.Second
	}
	if config.CodeTTL <= 0 {
		config.CodeTTL = 5 * time.Minute
	}
	return &SMTPSender{config: config}
}

// SendCode はOTPコードをメールで送信する。
func (s *SMTPSender) SendCode(ctx context.Context, identifier model.Identifier, name, code string) error {
	if identifier.Kind != model.IdentifierEmail {
		return fmt.Errorf("smtp sender supports email identifiers only, got %s", identifier.Kind)
	}

	addr := net.JoinHostPort(s.config.Host, s.config.Port)

	dialer := &net.Dialer{Timeout: s.config.Timeout}
	conn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to connect to smtp server: %w", err)
	}

	// 以降のI/Oにもタイムアウトを効かせる
	deadline := time.Now().Add(s.config.Timeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	if err := conn.SetDeadline(deadline); err != nil {
		conn.Close()
		return fmt.Errorf("failed to set smtp deadline: %w", err)
	}

	client, err := smtp.NewClient(conn, s.config.Host)
	if err != nil {
		conn.Close()
		return fmt.Errorf("failed to create smtp client: %w", err)
	}
	defer client.Close()

	if ok, _ := client.Extension("STARTTLS"); ok {
		if err := client.StartTLS(&tls.Config{ServerName: s.config.Host}); err != nil {
			return fmt.Errorf("failed to start tls: %w", err)
		}
	}

	if s.config.Username != "" {
		auth := smtp.PlainAuth("", s.config.Username, s.config.Password, s.config.Host)
		if err := client.Auth(auth); err != nil {
			return fmt.Errorf("smtp authentication failed: %w", err)
		}
	}

	if err := client.Mail(s.config.Username); err != nil {
		return fmt.Errorf("failed to set smtp sender: %w", err)
	}
	if err := client.Rcpt(identifier.Value); err != nil {
		return fmt.Errorf("failed to set smtp recipient: %w", err)
	}

	w, err := client.Data()
	if err != nil {
		return fmt.Errorf("failed to open smtp data: %w", err)
	}
	if _, err := w.Write(buildOTPMessage(s.config, identifier.Value, name, code)); err != nil {
		w.Close()
		return fmt.Errorf("failed to write smtp message: %w", err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("failed to finalize smtp message: %w", err)
	}

	return client.Quit()
}

// buildOTPMessage はOTPメール本文を組み立てる。
// 有効期間の文言は設定されたCodeTTLから導出する。
func buildOTPMessage(config SMTPConfig, to, name, code string) []byte {
	greeting := "Hello"
	if name != "" {
		greeting = "Hello " + name
	}

	msg := fmt.Sprintf(
		"From: %s <%s>\r\n"+
			"To: %s\r\n"+
			"Subject: Your verification code\r\n"+
			"MIME-Version: 1.0\r\n"+
			"Content-Type: text/plain; charset=utf-8\r\n"+
			"\r\n"+
			"%s,\r\n"+
			"\r\n"+
			"Your verification code is: %s\r\n"+
			"\r\n"+
			"This code expires in %s. If you did not request it, you can ignore this message.\r\n",
		config.FromName, config.Username, to, greeting, code, expiryText(config.CodeTTL),
	)
	return []byte(msg)
}

// expiryText はTTLを人間向けの文言に整形する。分未満の端数は切り上げる。
func expiryText(ttl time.Duration) string {
	if ttl < time.Minute {
		seconds := int(ttl.Seconds())
		if seconds == 1 {
			return "1 second"
		}
		return fmt.Sprintf("%d seconds", seconds)
	}
	minutes := int((ttl + time.Minute - 1) / time.Minute)
	if minutes == 1 {
		return "1 minute"
	}
	return fmt.Sprintf("%d minutes", minutes)
}

// compile-time interface check
var _ Sender = (*SMTPSender)(nil)
