package model

import "time"

// Session はユーザーのログインセッションを表す。
// Tokenは暗号論的乱数由来の不透明トークン（128bit以上）。
// 1トークンは1ユーザーに対応するが、1ユーザーが複数セッションを持つことは許容する。
type Session struct {
	Token     string
	UserID    string
	IssuedAt  time.Time
	ExpiresAt time.Time
}

// Valid はセッションがnow時点で有効かどうかを返す。
func (s *Session) Valid(now time.Time) bool {
	return s.ExpiresAt.After(now)
}
