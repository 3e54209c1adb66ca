// Package model はドメインモデルを定義する。
package model

import "time"

// IdentifierKind は識別子の種別（メールアドレスまたは電話番号）を表す。
type IdentifierKind string

const (
	// IdentifierEmail はメールアドレス識別子を示す。
	IdentifierEmail IdentifierKind = "email"
	// IdentifierPhone は電話番号識別子を示す。
	IdentifierPhone IdentifierKind = "phone"
)

// Identifier は正規化済みのユーザー識別子を表す。
// Valueは正規化後の値（メールは小文字化、電話番号はE.164風に正規化）を保持する。
type Identifier struct {
	Kind  IdentifierKind
	Value string
}

// IsZero は識別子が未設定かどうかを返す。
func (i Identifier) IsZero() bool {
	return i.Value == ""
}

// User はサービス利用ユーザーを表す。
// EmailとPhoneは少なくとも一方が設定される。
type User struct {
	ID        string
	FirstName string
	LastName  string
	Email     string // 未設定の場合は空文字
	Phone     string // 未設定の場合は空文字
	CreatedAt time.Time
	UpdatedAt time.Time
}

// FullName は表示用のフルネームを返す。
func (u *User) FullName() string {
	if u.FirstName == "" {
		return u.LastName
	}
	if u.LastName == "" {
		return u.FirstName
	}
	return u.FirstName + " " + u.LastName
}
