// Package repository はデータ永続化のインターフェースを定義する。
package repository

import (
	"context"
	"errors"
	"time"

	"github.com/hitoshi/otpgate/internal/model"
)

// チャレンジ消費時の失敗理由。
// オーケストレーターはこれらをすべて同一の検証失敗としてユーザーに返す。
var (
	// ErrChallengeNotFound はチャレンジが存在しない、または期限切れであることを示す。
	ErrChallengeNotFound = errors.New("challenge not found or expired")
	// ErrChallengeCodeMismatch はコード不一致を示す。チャレンジ自体は有効なまま残る。
	ErrChallengeCodeMismatch = errors.New("challenge code mismatch")
	// ErrChallengeTooManyAttempts は試行回数の上限超過を示す。チャレンジは破棄される。
	ErrChallengeTooManyAttempts = errors.New("challenge attempts exceeded")
)

// UserRepository はユーザーデータの永続化インターフェース。
type UserRepository interface {
	// Create はユーザーを作成する。
	Create(ctx context.Context, user *model.User) error

	// FindByID は指定IDのユーザーを取得する。見つからない場合はnilを返す。
	FindByID(ctx context.Context, id string) (*model.User, error)

	// FindByEmail は正規化済みメールアドレスでユーザーを検索する。見つからない場合はnilを返す。
	FindByEmail(ctx context.Context, email string) (*model.User, error)

	// FindByPhone は正規化済み電話番号でユーザーを検索する。見つからない場合はnilを返す。
	FindByPhone(ctx context.Context, phone string) (*model.User, error)
}

// SessionRepository はセッションデータの永続化インターフェース。
type SessionRepository interface {
	// Create はセッションを作成する。
	Create(ctx context.Context, session *model.Session) error

	// FindByToken は指定トークンのセッションを取得する。
	// 存在しない場合および期限切れの場合はnilを返す。
	FindByToken(ctx context.Context, token string) (*model.Session, error)

	// Renew はセッションの有効期限をexpiresAtまで延長する（スライディング更新）。
	Renew(ctx context.Context, token string, expiresAt time.Time) error

	// DeleteByToken は指定トークンのセッションを削除する。
	// トークンが存在しなくてもエラーにはしない。
	DeleteByToken(ctx context.Context, token string) error

	// DeleteExpired は期限切れセッションを一括削除し、削除件数を返す。
	DeleteExpired(ctx context.Context) (int64, error)
}

// ChallengeRepository はOTPチャレンジ台帳の永続化インターフェース。
// (identifier, purpose) ごとに有効なチャレンジは常に最大1件。
type ChallengeRepository interface {
	// Issue はチャレンジを発行する。
	// 同一キーの既存チャレンジは無条件に上書きされ、古いコードは無効になる。
	Issue(ctx context.Context, challenge *model.OtpChallenge) error

	// Consume はコードを検証し、成功時にチャレンジを不可逆に消費して返す。
	// 検証と消費は単一のアトミックなステップとして行われ、
	// 同一チャレンジの並行検証が二重に成功することはない。
	// 失敗時はErrChallengeNotFound、ErrChallengeCodeMismatch、
	// ErrChallengeTooManyAttemptsのいずれかを返す。
	Consume(ctx context.Context, purpose model.ChallengePurpose, identifier, code string) (*model.OtpChallenge, error)

	// Delete は指定キーのチャレンジを削除する。存在しなくてもエラーにはしない。
	Delete(ctx context.Context, purpose model.ChallengePurpose, identifier string) error
}
