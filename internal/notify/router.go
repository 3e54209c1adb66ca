package notify

import (
	"context"

	"github.com/hitoshi/otpgate/internal/model"
)

// KindRouter は識別子の種別ごとに配送先Senderを振り分ける。
// メールはSMTP、電話番号はコンソールといった構成に使用する。
type KindRouter struct {
	email Sender
	phone Sender
}

// NewKindRouter はKindRouterを生成する。
func NewKindRouter(email, phone Sender) *KindRouter {
	return &KindRouter{email: email, phone: phone}
}

// SendCode は識別子の種別に応じたSenderへ委譲する。
func (r *KindRouter) SendCode(ctx context.Context, identifier model.Identifier, name, code string) error {
	if identifier.Kind == model.IdentifierPhone {
		return r.phone.SendCode(ctx, identifier, name, code)
	}
	return r.email.SendCode(ctx, identifier, name, code)
}

// compile-time interface check
var _ Sender = (*KindRouter)(nil)
