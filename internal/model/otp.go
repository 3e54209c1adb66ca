package model

import "time"

// ChallengePurpose はOTPチャレンジの用途を表す。
type ChallengePurpose string

const (
	// PurposeRegister は新規登録の本人確認を示す。
	PurposeRegister ChallengePurpose = "register"
	// PurposeLogin はログインの本人確認を示す。
	PurposeLogin ChallengePurpose = "login"
)

// PendingRegistration はOTP検証完了までステージングされる登録情報。
// UserRecordは検証成功時に初めて作成される。
type PendingRegistration struct {
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	Email     string `json:"email,omitempty"`
	Phone     string `json:"phone,omitempty"`
}

// OtpChallenge は1つの識別子・用途ペアに対する未解決のOTPチャレンジを表す。
// (identifier, purpose) ごとに有効なチャレンジは常に1件のみ。
// 新規発行は既存のチャレンジを無条件に上書きする。
type OtpChallenge struct {
	Identifier string           `json:"identifier"`
	Purpose    ChallengePurpose `json:"purpose"`
	Code       string           `json:"code"` // 6桁数字
	IssuedAt   time.Time        `json:"issued_at"`
	ExpiresAt  time.Time        `json:"expires_at"`
	Attempts   int              `json:"attempts"`

	// Pending は登録用チャレンジにステージングされた登録情報。ログイン用ではnil。
	Pending *PendingRegistration `json:"pending,omitempty"`
	// UserID はログイン用チャレンジにステージングされたユーザーID。登録用では空。
	UserID string `json:"user_id,omitempty"`
}

// Expired はチャレンジがnow時点で期限切れかどうかを返す。
// 期限判定は常にサーバー側の時刻で行い、クライアントの残り時間表示は信用しない。
func (c *OtpChallenge) Expired(now time.Time) bool {
	return now.After(c.ExpiresAt)
}
