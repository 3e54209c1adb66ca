// Package model はドメインモデルを定義する。
package model

import "fmt"

// APIError は統一エラーフォーマットを表す。
// UIに表示する原因カテゴリと対処方法を含む。
type APIError struct {
	Code     string // エラーコード
	Message  string // エラーメッセージ
	Category string // カテゴリ: auth, validation, delivery, system
	Action   string // ユーザー向け対処方法
}

// Error はerrorインターフェースを実装する。
func (e *APIError) Error() string {
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// 定義済みエラーコード
const (
	ErrCodeValidation           = "VALIDATION_ERROR"
	ErrCodeUnknownIdentifier    = "UNKNOWN_IDENTIFIER"
	ErrCodeAlreadyRegistered    = "ALREADY_REGISTERED"
	ErrCodeInvalidOrExpiredCode = "INVALID_OR_EXPIRED_CODE"
	ErrCodeDeliveryFailure      = "DELIVERY_FAILURE"
	ErrCodeUnauthenticated      = "UNAUTHENTICATED"
)

// NewValidationError は必須フィールド不足などの入力エラーを生成する。
// ストアへのアクセス前に検出される。
func NewValidationError(message string) *APIError {
	return &APIError{
		Code:     ErrCodeValidation,
		Message:  message,
		Category: "validation",
		Action:   "Check the input fields and try again.",
	}
}

// NewUnknownIdentifierError は未登録の識別子でのログインエラーを生成する。
// ログインは暗黙に登録を行わない。
func NewUnknownIdentifierError(kind IdentifierKind) *APIError {
	noun := "email"
	if kind == IdentifierPhone {
		noun = "phone number"
	}
	return &APIError{
		Code:     ErrCodeUnknownIdentifier,
		Message:  fmt.Sprintf("User not found. Please register first with this %s.", noun),
		Category: "auth",
		Action:   "Register an account before logging in.",
	}
}

// NewAlreadyRegisteredError は登録済み識別子での再登録エラーを生成する。
func NewAlreadyRegisteredError(kind IdentifierKind) *APIError {
	noun := "email"
	if kind == IdentifierPhone {
		noun = "phone number"
	}
	return &APIError{
		Code:     ErrCodeAlreadyRegistered,
		Message:  fmt.Sprintf("This %s is already registered. Please login instead.", noun),
		Category: "validation",
		Action:   "Use the login form for an existing account.",
	}
}

// NewInvalidOrExpiredCodeError はOTP検証失敗エラーを生成する。
// コード不一致・期限切れ・消費済みのいずれであるかは区別せず返す
// （どの検証が失敗したかを漏らすオラクルを作らないため）。
func NewInvalidOrExpiredCodeError() *APIError {
	return &APIError{
		Code:     ErrCodeInvalidOrExpiredCode,
		Message:  "Invalid verification code. Please check and try again.",
		Category: "auth",
		Action:   "Request a new code if the current one has expired.",
	}
}

// NewDeliveryFailureError はOTPコードの配送失敗エラーを生成する。
// 配送失敗は「コードが届いたはず」と誤認させないよう他のエラーと区別して返す。
func NewDeliveryFailureError() *APIError {
	return &APIError{
		Code:     ErrCodeDeliveryFailure,
		Message:  "Failed to send the verification code. Please try again.",
		Category: "delivery",
		Action:   "Retry the request to have a new code sent.",
	}
}

// NewUnauthenticatedError はセッション不在・無効・期限切れエラーを生成する。
func NewUnauthenticatedError() *APIError {
	return &APIError{
		Code:     ErrCodeUnauthenticated,
		Message:  "Authentication required.",
		Category: "auth",
		Action:   "Log in to continue.",
	}
}
