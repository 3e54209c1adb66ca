package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/hitoshi/otpgate/internal/auth"
	"github.com/hitoshi/otpgate/internal/model"
)

const sessionCookieName = "session_token"

// AuthServiceInterface は認証ハンドラーが必要とするサービスインターフェース。
type AuthServiceInterface interface {
	Register(ctx context.Context, req auth.RegisterRequest) (model.Identifier, error)
	Login(ctx context.Context, req auth.LoginRequest, sessionToken string) (*auth.LoginResult, error)
	VerifyRegister(ctx context.Context, identifier, code string) (*auth.VerifyResult, error)
	VerifyLogin(ctx context.Context, identifier, code string) (*auth.VerifyResult, error)
	CurrentUser(ctx context.Context, token string) (*model.User, *model.Session, error)
	Logout(ctx context.Context, token string)
}

// AuthHandlerConfig は認証ハンドラーの設定。
type AuthHandlerConfig struct {
	CookieDomain string
	CookieSecure bool
	SessionTTL   time.Duration // セッションCookieの有効期間
}

// AuthHandler はOTP認証関連のHTTPハンドラー。
type AuthHandler struct {
	service AuthServiceInterface
	config  AuthHandlerConfig
}

// NewAuthHandler はAuthHandlerを生成する。
func NewAuthHandler(service AuthServiceInterface, config AuthHandlerConfig) *AuthHandler {
	return &AuthHandler{
		service: service,
		config:  config,
	}
}

// registerRequest は登録リクエストのボディ。
type registerRequest struct {
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	Email     string `json:"email,omitempty"`
	Phone     string `json:"phone,omitempty"`
}

// loginRequest はログインリクエストのボディ。
type loginRequest struct {
	Email string `json:"email,omitempty"`
	Phone string `json:"phone,omitempty"`
}

// verifyRequest はOTP検証リクエストのボディ。
type verifyRequest struct {
	Identifier string `json:"identifier"`
	OTP        string `json:"otp"`
}

// Register は登録フローを開始し、OTP送信先の識別子を返す。
// POST /register
func (h *AuthHandler) Register(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request data")
		return
	}

	ident, err := h.service.Register(r.Context(), auth.RegisterRequest{
		FirstName: req.FirstName,
		LastName:  req.LastName,
		Email:     req.Email,
		Phone:     req.Phone,
	})
	if err != nil {
		handleServiceError(w, err)
		return
	}

	writeSuccess(w, "Verification code sent", map[string]any{
		"identifier": ident.Value,
	})
}

// Login はログインフローを開始する。
// 有効なセッションCookieが本人のものであれば直接ログインになり、
// そうでなければOTP検証が必要になる。
// POST /login
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request data")
		return
	}

	result, err := h.service.Login(r.Context(), auth.LoginRequest{
		Email: req.Email,
		Phone: req.Phone,
	}, h.sessionTokenFromCookie(r))
	if err != nil {
		handleServiceError(w, err)
		return
	}

	if result.DirectLogin {
		// スライディング更新後の有効期限でCookieを張り直す
		h.setSessionCookie(w, result.Session.Token)
		writeSuccess(w, "", map[string]any{
			"direct_login": true,
			"user":         toUserResponse(result.User),
		})
		return
	}

	writeSuccess(w, "Verification code sent", map[string]any{
		"identifier":            result.Identifier.Value,
		"requires_verification": true,
	})
}

// VerifyRegister は登録用OTPを検証し、成功時にセッションCookieを設定する。
// POST /verify-otp
func (h *AuthHandler) VerifyRegister(w http.ResponseWriter, r *http.Request) {
	h.verify(w, r, "Registration successful", h.service.VerifyRegister)
}

// VerifyLogin はログイン用OTPを検証し、成功時にセッションCookieを設定する。
// POST /verify-login-otp
func (h *AuthHandler) VerifyLogin(w http.ResponseWriter, r *http.Request) {
	h.verify(w, r, "Login successful", h.service.VerifyLogin)
}

// verify は両検証エンドポイントの共通処理。
func (h *AuthHandler) verify(
	w http.ResponseWriter,
	r *http.Request,
	message string,
	verifyFn func(ctx context.Context, identifier, code string) (*auth.VerifyResult, error),
) {
	var req verifyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request data")
		return
	}

	result, err := verifyFn(r.Context(), req.Identifier, req.OTP)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	h.setSessionCookie(w, result.Session.Token)
	writeSuccess(w, message, map[string]any{
		"user": toUserResponse(result.User),
	})
}

// CheckAuth は現在のセッション状態を返す。
// 未認証でも200を返し、authenticatedフィールドで状態を伝える。
// GET /check-auth
func (h *AuthHandler) CheckAuth(w http.ResponseWriter, r *http.Request) {
	token := h.sessionTokenFromCookie(r)

	user, session, err := h.service.CurrentUser(r.Context(), token)
	if err != nil {
		var apiErr *model.APIError
		if errors.As(err, &apiErr) && apiErr.Code == model.ErrCodeUnauthenticated {
			w.Header().Set("Content-Type", "application/json")
			json.NewEncoder(w).Encode(map[string]any{
				"success":       true,
				"authenticated": false,
			})
			return
		}
		handleServiceError(w, err)
		return
	}

	// スライディング更新後の有効期限でCookieを張り直す
	h.setSessionCookie(w, session.Token)

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{
		"success":       true,
		"authenticated": true,
		"user":          toUserResponse(user),
	})
}

// Logout はセッションを破棄してCookieをクリアする。
// トークンが無効・不在でも常に成功を返す。
// POST /logout
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	h.service.Logout(r.Context(), h.sessionTokenFromCookie(r))
	h.clearSessionCookie(w)
	writeSuccess(w, "Logout successful", nil)
}

// sessionTokenFromCookie はリクエストCookieからセッショントークンを取り出す。
// Cookieが無い場合は空文字を返す。
func (h *AuthHandler) sessionTokenFromCookie(r *http.Request) string {
	cookie, err := r.Cookie(sessionCookieName)
	if err != nil {
		return ""
	}
	return cookie.Value
}

// setSessionCookie はセッションCookieを設定する。
// HttpOnlyかつSameSite=Laxで、スクリプトからは読めない。
func (h *AuthHandler) setSessionCookie(w http.ResponseWriter, token string) {
	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookieName,
		Value:    token,
		Path:     "/",
		Domain:   h.config.CookieDomain,
		MaxAge:   int(h.config.SessionTTL.Seconds()),
		HttpOnly: true,
		Secure:   h.config.CookieSecure,
		SameSite: http.SameSiteLaxMode,
	})
}

// clearSessionCookie はセッションCookieを削除する。
func (h *AuthHandler) clearSessionCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookieName,
		Value:    "",
		Path:     "/",
		Domain:   h.config.CookieDomain,
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   h.config.CookieSecure,
		SameSite: http.SameSiteLaxMode,
	})
}
