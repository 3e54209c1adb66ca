package auth

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"math/big"
)

// generateOTPCode は6桁の数字OTPコードを暗号論的乱数から生成する。
// 範囲は100000〜999999で、先頭が0になることはない。
func generateOTPCode() (string, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(900000))
	if err != nil {
		return "", fmt.Errorf("failed to generate otp code: %w", err)
	}
	return fmt.Sprintf("%d", n.Int64()+100000), nil
}

// generateSessionToken は暗号論的に安全な不透明セッショントークンを生成する。
// 256bitの乱数を16進エンコードする。
func generateSessionToken() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}

// validOTPShape はコードがちょうど6桁の数字かどうかを返す。
// 形式不正はストアに触れる前に弾く。
func validOTPShape(code string) bool {
	if len(code) != 6 {
		return false
	}
	for _, r := range code {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
