// Package identifier はメールアドレス・電話番号識別子の正規化と検証を提供する。
// すべてのストア参照は正規化後の値で行う。
package identifier

import (
	"fmt"
	"strings"

	"github.com/hitoshi/otpgate/internal/model"
)

// NormalizeEmail はメールアドレスを正規化する。
// 前後の空白を除去し、小文字に揃える。形式が不正な場合はエラーを返す。
func NormalizeEmail(raw string) (string, error) {
	email := strings.ToLower(strings.TrimSpace(raw))
	if email == "" {
		return "", fmt.Errorf("email is empty")
	}

	at := strings.Index(email, "@")
	if at <= 0 || at != strings.LastIndex(email, "@") {
		return "", fmt.Errorf("invalid email format: %q", raw)
	}

	local, domain := email[:at], email[at+1:]
	if local == "" || domain == "" {
		return "", fmt.Errorf("invalid email format: %q", raw)
	}
	if !strings.Contains(domain, ".") || strings.HasPrefix(domain, ".") || strings.HasSuffix(domain, ".") {
		return "", fmt.Errorf("invalid email domain: %q", raw)
	}
	if strings.ContainsAny(email, " \t") {
		return "", fmt.Errorf("invalid email format: %q", raw)
	}

	return email, nil
}

// NormalizePhone は電話番号をE.164風の表記に正規化する。
// 空白・ハイフン・括弧・ドットを除去し、国際プレフィックス"00"は"+"に置き換える。
// 正規化後に数字7〜15桁（先頭の"+"は任意）でなければエラーを返す。
func NormalizePhone(raw string) (string, error) {
	var b strings.Builder
	for _, r := range strings.TrimSpace(raw) {
		switch r {
		case ' ', '-', '(', ')', '.':
			// 区切り文字は読み飛ばす
		default:
			b.WriteRune(r)
		}
	}
	phone := b.String()
	if phone == "" {
		return "", fmt.Errorf("phone is empty")
	}

	if strings.HasPrefix(phone, "00") {
		phone = "+" + phone[2:]
	}

	digits := phone
	if strings.HasPrefix(digits, "+") {
		digits = digits[1:]
	}
	if len(digits) < 7 || len(digits) > 15 {
		return "", fmt.Errorf("invalid phone length: %q", raw)
	}
	for _, r := range digits {
		if r < '0' || r > '9' {
			return "", fmt.Errorf("invalid phone character in %q", raw)
		}
	}

	return phone, nil
}

// Resolve はリクエストのemail/phoneフィールドから主識別子を決定する。
// 両方が指定された場合はメールを優先する。どちらも空の場合はエラーを返す。
func Resolve(email, phone string) (model.Identifier, error) {
	if strings.TrimSpace(email) != "" {
		normalized, err := NormalizeEmail(email)
		if err != nil {
			return model.Identifier{}, err
		}
		return model.Identifier{Kind: model.IdentifierEmail, Value: normalized}, nil
	}

	if strings.TrimSpace(phone) != "" {
		normalized, err := NormalizePhone(phone)
		if err != nil {
			return model.Identifier{}, err
		}
		return model.Identifier{Kind: model.IdentifierPhone, Value: normalized}, nil
	}

	return model.Identifier{}, fmt.Errorf("email or phone is required")
}
