// Package notify はOTPコードの帯域外配送（メール等）を提供する。
// コアプロトコルからは配送の成否のみが見え、配送手段の詳細は隠蔽される。
package notify

import (
	"context"

	"github.com/hitoshi/otpgate/internal/model"
)

// Sender はOTPコード配送のインターフェース。
// 配送失敗はエラーとして返し、呼び出し側が配送失敗を
// 「コードが届いたはず」と区別できるようにする。
type Sender interface {
	// SendCode は識別子宛にOTPコードを配送する。
	// nameは宛名表示用（空でもよい）。
	SendCode(ctx context.Context, identifier model.Identifier, name, code string) error
}
