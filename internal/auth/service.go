// Package auth はOTPによる本人確認とセッション管理のプロトコルエンジンを提供する。
// 3つのストア（ユーザー・セッション・OTP台帳）への書き込みはすべて本パッケージを経由する。
package auth

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/hitoshi/otpgate/internal/identifier"
	"github.com/hitoshi/otpgate/internal/metrics"
	"github.com/hitoshi/otpgate/internal/model"
	"github.com/hitoshi/otpgate/internal/notify"
	"github.com/hitoshi/otpgate/internal/repository"
)

// ServiceConfig は認証サービスの設定。
type ServiceConfig struct {
	SessionTTL time.Duration // セッション有効期間（スライディング更新）
	OTPTTL     time.Duration // OTPチャレンジ有効期間
}

// Service は認証プロトコルのオーケストレーター。
// 登録・ログインのOTPゲート判定、チャレンジの発行と消費、
// セッションの発行・検証・破棄を担う。
type Service struct {
	userRepo      repository.UserRepository
	sessionRepo   repository.SessionRepository
	challengeRepo repository.ChallengeRepository
	sender        notify.Sender
	metrics       metrics.MetricsCollector
	config        ServiceConfig
	locks         *keyedLock
}

// NewService はServiceを生成する。collectorはnilでもよい。
func NewService(
	userRepo repository.UserRepository,
	sessionRepo repository.SessionRepository,
	challengeRepo repository.ChallengeRepository,
	sender notify.Sender,
	collector metrics.MetricsCollector,
	config ServiceConfig,
) *Service {
	if config.SessionTTL <= 0 {
		config.SessionTTL = 48 * time.Hour
	}
	if config.OTPTTL <= 0 {
		config.OTPTTL = 5 * time.Minute
	}
	return &Service{
		userRepo:      userRepo,
		sessionRepo:   sessionRepo,
		challengeRepo: challengeRepo,
		sender:        sender,
		metrics:       collector,
		config:        config,
		locks:         newKeyedLock(),
	}
}

// RegisterRequest は登録リクエスト。
type RegisterRequest struct {
	FirstName string
	LastName  string
	Email     string
	Phone     string
}

// LoginRequest はログインリクエスト。
// 両方指定された場合はメールを主識別子とする。
type LoginRequest struct {
	Email string
	Phone string
}

// LoginResult はログイン判定の結果。
// DirectLoginがtrueの場合、OTPを介さず既存セッションでログインが成立している。
// falseの場合はIdentifier宛にOTPが配送済みで、検証が必要。
type LoginResult struct {
	DirectLogin bool
	User        *model.User
	Session     *model.Session
	Identifier  model.Identifier
}

// VerifyResult はOTP検証成功の結果。
type VerifyResult struct {
	User    *model.User
	Session *model.Session
}

// Register は登録フローを開始する。
// 氏名と識別子を検証し、登録用OTPチャレンジを発行して配送する。
// UserRecordはこの時点では作成されず、検証成功まで氏名・識別子は
// チャレンジにステージングされる。戻り値はOTP送信先の正規化済み識別子。
func (s *Service) Register(ctx context.Context, req RegisterRequest) (model.Identifier, error) {
	firstName := strings.TrimSpace(req.FirstName)
	lastName := strings.TrimSpace(req.LastName)
	if firstName == "" || lastName == "" {
		return model.Identifier{}, model.NewValidationError("First name and last name are required")
	}

	primary, err := identifier.Resolve(req.Email, req.Phone)
	if err != nil {
		return model.Identifier{}, model.NewValidationError("Email or phone number is required")
	}

	pending := &model.PendingRegistration{
		FirstName: firstName,
		LastName:  lastName,
	}
	if strings.TrimSpace(req.Email) != "" {
		email, err := identifier.NormalizeEmail(req.Email)
		if err != nil {
			return model.Identifier{}, model.NewValidationError("Invalid email address")
		}
		pending.Email = email
	}
	if strings.TrimSpace(req.Phone) != "" {
		phone, err := identifier.NormalizePhone(req.Phone)
		if err != nil {
			return model.Identifier{}, model.NewValidationError("Invalid phone number")
		}
		pending.Phone = phone
	}

	// 登録済み識別子の再登録は拒否する（ログインを案内する）
	if err := s.rejectRegistered(ctx, pending.Email, pending.Phone); err != nil {
		return model.Identifier{}, err
	}

	key := challengeKey(model.PurposeRegister, primary.Value)
	s.locks.lock(key)
	defer s.locks.unlock(key)

	challenge, err := s.issueChallenge(ctx, model.PurposeRegister, primary, func(c *model.OtpChallenge) {
		c.Pending = pending
	})
	if err != nil {
		return model.Identifier{}, err
	}

	if err := s.deliver(ctx, primary, firstName+" "+lastName, challenge.Code); err != nil {
		return model.Identifier{}, err
	}

	slog.Info("registration challenge issued",
		slog.String("identifier", primary.Value),
		slog.String("kind", string(primary.Kind)),
	)

	return primary, nil
}

// Login はログインフローを開始する。
// 1. 提示されたセッションが有効で、かつ識別子が指すユーザー本人のものであれば、
//    OTPを介さず直接ログインとして成立させ、セッションをスライディング更新する。
// 2. そうでなく識別子が既存ユーザーに解決できれば、ログイン用OTPチャレンジを発行する。
//    有効なチャレンジが残っていても新規発行が上書きし、古いコードは無効になる（再送も同じ経路）。
// 3. 未登録の識別子はエラーになる。ログインは暗黙に登録を行わない。
func (s *Service) Login(ctx context.Context, req LoginRequest, sessionToken string) (*LoginResult, error) {
	primary, err := identifier.Resolve(req.Email, req.Phone)
	if err != nil {
		return nil, model.NewValidationError("Email or phone number is required")
	}

	user, err := s.findByIdentifier(ctx, primary)
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, model.NewUnknownIdentifierError(primary.Kind)
	}

	// 直接ログイン: セッションが有効かつこのユーザー本人のもの。
	// 他人のセッションが乗っているブラウザからは通常のOTP経路に落とす。
	if sessionToken != "" {
		session, err := s.sessionRepo.FindByToken(ctx, sessionToken)
		if err != nil {
			return nil, fmt.Errorf("failed to find session: %w", err)
		}
		if session != nil && session.UserID == user.ID {
			session, err = s.renewSession(ctx, session)
			if err != nil {
				return nil, err
			}
			if s.metrics != nil {
				s.metrics.RecordDirectLogin()
			}
			slog.Info("direct login",
				slog.String("user_id", user.ID),
			)
			return &LoginResult{
				DirectLogin: true,
				User:        user,
				Session:     session,
				Identifier:  primary,
			}, nil
		}
	}

	key := challengeKey(model.PurposeLogin, primary.Value)
	s.locks.lock(key)
	defer s.locks.unlock(key)

	challenge, err := s.issueChallenge(ctx, model.PurposeLogin, primary, func(c *model.OtpChallenge) {
		c.UserID = user.ID
	})
	if err != nil {
		return nil, err
	}

	if err := s.deliver(ctx, primary, user.FullName(), challenge.Code); err != nil {
		return nil, err
	}

	slog.Info("login challenge issued",
		slog.String("user_id", user.ID),
		slog.String("kind", string(primary.Kind)),
	)

	return &LoginResult{
		DirectLogin: false,
		Identifier:  primary,
	}, nil
}

// VerifyRegister は登録用OTPを検証し、成功時にUserRecordを作成してセッションを発行する。
// チャレンジの消費は不可逆で、同じコードでの再検証は必ず失敗する。
func (s *Service) VerifyRegister(ctx context.Context, rawIdentifier, code string) (*VerifyResult, error) {
	challenge, err := s.consume(ctx, model.PurposeRegister, rawIdentifier, code)
	if err != nil {
		return nil, err
	}

	pending := challenge.Pending
	if pending == nil {
		// ステージングデータのないチャレンジは成立させない
		if s.metrics != nil {
			s.metrics.RecordVerifyFailure(string(model.PurposeRegister))
		}
		return nil, model.NewInvalidOrExpiredCodeError()
	}

	// 検証待ちの間に同じ識別子で登録が完了していないか最終確認する
	if err := s.rejectRegistered(ctx, pending.Email, pending.Phone); err != nil {
		return nil, err
	}

	now := time.Now()
	user := &model.User{
		ID:        uuid.New().String(),
		FirstName: pending.FirstName,
		LastName:  pending.LastName,
		Email:     pending.Email,
		Phone:     pending.Phone,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.userRepo.Create(ctx, user); err != nil {
		return nil, fmt.Errorf("failed to create user: %w", err)
	}

	session, err := s.createSession(ctx, user.ID)
	if err != nil {
		return nil, err
	}

	if s.metrics != nil {
		s.metrics.RecordVerifySuccess(string(model.PurposeRegister))
	}
	slog.Info("user registered",
		slog.String("user_id", user.ID),
	)

	return &VerifyResult{User: user, Session: session}, nil
}

// VerifyLogin はログイン用OTPを検証し、成功時にセッションを発行する。
func (s *Service) VerifyLogin(ctx context.Context, rawIdentifier, code string) (*VerifyResult, error) {
	challenge, err := s.consume(ctx, model.PurposeLogin, rawIdentifier, code)
	if err != nil {
		return nil, err
	}

	if challenge.UserID == "" {
		if s.metrics != nil {
			s.metrics.RecordVerifyFailure(string(model.PurposeLogin))
		}
		return nil, model.NewInvalidOrExpiredCodeError()
	}

	user, err := s.userRepo.FindByID(ctx, challenge.UserID)
	if err != nil {
		return nil, fmt.Errorf("failed to find user: %w", err)
	}
	if user == nil {
		// チャレンジ発行後にユーザーが消えた場合。詳細は明かさない。
		if s.metrics != nil {
			s.metrics.RecordVerifyFailure(string(model.PurposeLogin))
		}
		return nil, model.NewInvalidOrExpiredCodeError()
	}

	session, err := s.createSession(ctx, user.ID)
	if err != nil {
		return nil, err
	}

	if s.metrics != nil {
		s.metrics.RecordVerifySuccess(string(model.PurposeLogin))
	}
	slog.Info("user logged in",
		slog.String("user_id", user.ID),
	)

	return &VerifyResult{User: user, Session: session}, nil
}

// CurrentUser はセッショントークンから現在のユーザーを返す。
// セッションは参照のたびにスライディング更新される。
// トークン不在・無効・期限切れはすべて認証エラーになる。
func (s *Service) CurrentUser(ctx context.Context, token string) (*model.User, *model.Session, error) {
	if token == "" {
		return nil, nil, model.NewUnauthenticatedError()
	}

	session, err := s.sessionRepo.FindByToken(ctx, token)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to find session: %w", err)
	}
	if session == nil {
		return nil, nil, model.NewUnauthenticatedError()
	}

	session, err = s.renewSession(ctx, session)
	if err != nil {
		return nil, nil, err
	}

	user, err := s.userRepo.FindByID(ctx, session.UserID)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to find user: %w", err)
	}
	if user == nil {
		return nil, nil, model.NewUnauthenticatedError()
	}

	return user, session, nil
}

// Logout はセッションを破棄する。
// トークンが不在・無効でも常に成功として扱う。
func (s *Service) Logout(ctx context.Context, token string) {
	if token == "" {
		return
	}

	if err := s.sessionRepo.DeleteByToken(ctx, token); err != nil {
		// ログアウトは失敗させない。削除漏れは期限切れ掃除に任せる。
		slog.Error("failed to delete session on logout",
			slog.String("error", err.Error()),
		)
		return
	}

	slog.Info("user logged out")
}

// --- 内部処理 ---

// challengeKey はロック用のチャレンジキーを組み立てる。
func challengeKey(purpose model.ChallengePurpose, identifierValue string) string {
	return string(purpose) + ":" + identifierValue
}

// issueChallenge はOTPチャレンジを生成して台帳に書き込む。
// 既存の有効チャレンジは上書きされる。
func (s *Service) issueChallenge(
	ctx context.Context,
	purpose model.ChallengePurpose,
	primary model.Identifier,
	stage func(*model.OtpChallenge),
) (*model.OtpChallenge, error) {
	code, err := generateOTPCode()
	if err != nil {
		return nil, err
	}

	now := time.Now()
	challenge := &model.OtpChallenge{
		Identifier: primary.Value,
		Purpose:    purpose,
		Code:       code,
		IssuedAt:   now,
		ExpiresAt:  now.Add(s.config.OTPTTL),
	}
	stage(challenge)

	if err := s.challengeRepo.Issue(ctx, challenge); err != nil {
		return nil, fmt.Errorf("failed to issue challenge: %w", err)
	}

	if s.metrics != nil {
		s.metrics.RecordOTPIssued(string(purpose))
	}

	return challenge, nil
}

// deliver はOTPコードを配送する。
// 失敗は配送エラーとして区別して返し、「コードが届いたはず」と誤認させない。
// チャレンジは残るが、再試行すれば新しいコードで上書きされる。
func (s *Service) deliver(ctx context.Context, primary model.Identifier, name, code string) error {
	if err := s.sender.SendCode(ctx, primary, name, code); err != nil {
		if s.metrics != nil {
			s.metrics.RecordDeliveryFailure()
		}
		slog.Error("failed to deliver otp code",
			slog.String("identifier", primary.Value),
			slog.String("error", err.Error()),
		)
		return model.NewDeliveryFailureError()
	}
	return nil
}

// consume はOTP検証の共通経路。
// 入力検証ののち、台帳上でアトミックにcheck-and-consumeを行う。
// 不一致・期限切れ・消費済みは区別せず同一のエラーで返す。
func (s *Service) consume(ctx context.Context, purpose model.ChallengePurpose, rawIdentifier, code string) (*model.OtpChallenge, error) {
	start := time.Now()

	rawIdentifier = strings.TrimSpace(rawIdentifier)
	code = strings.TrimSpace(code)
	if rawIdentifier == "" || code == "" {
		return nil, model.NewValidationError("Identifier and OTP code are required")
	}

	normalized, err := s.normalizeEcho(rawIdentifier)
	if err != nil || !validOTPShape(code) {
		// 形式不正はストアに触れずに失敗させる
		if s.metrics != nil {
			s.metrics.RecordVerifyFailure(string(purpose))
		}
		return nil, model.NewInvalidOrExpiredCodeError()
	}

	key := challengeKey(purpose, normalized)
	s.locks.lock(key)
	defer s.locks.unlock(key)

	challenge, err := s.challengeRepo.Consume(ctx, purpose, normalized, code)
	if s.metrics != nil {
		s.metrics.RecordVerifyLatency(time.Since(start))
	}
	if err != nil {
		switch err {
		case repository.ErrChallengeNotFound,
			repository.ErrChallengeCodeMismatch,
			repository.ErrChallengeTooManyAttempts:
			if s.metrics != nil {
				s.metrics.RecordVerifyFailure(string(purpose))
			}
			return nil, model.NewInvalidOrExpiredCodeError()
		}
		return nil, fmt.Errorf("failed to consume challenge: %w", err)
	}

	return challenge, nil
}

// normalizeEcho はクライアントがエコーバックした識別子を正規化する。
// "@"を含む場合はメール、それ以外は電話番号として扱う。
func (s *Service) normalizeEcho(raw string) (string, error) {
	if strings.Contains(raw, "@") {
		return identifier.NormalizeEmail(raw)
	}
	return identifier.NormalizePhone(raw)
}

// findByIdentifier は識別子の種別に応じてユーザーを検索する。
func (s *Service) findByIdentifier(ctx context.Context, primary model.Identifier) (*model.User, error) {
	var (
		user *model.User
		err  error
	)
	if primary.Kind == model.IdentifierPhone {
		user, err = s.userRepo.FindByPhone(ctx, primary.Value)
	} else {
		user, err = s.userRepo.FindByEmail(ctx, primary.Value)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find user: %w", err)
	}
	return user, nil
}

// rejectRegistered は識別子のいずれかが登録済みの場合にエラーを返す。
func (s *Service) rejectRegistered(ctx context.Context, email, phone string) error {
	if email != "" {
		existing, err := s.userRepo.FindByEmail(ctx, email)
		if err != nil {
			return fmt.Errorf("failed to find user: %w", err)
		}
		if existing != nil {
			return model.NewAlreadyRegisteredError(model.IdentifierEmail)
		}
	}
	if phone != "" {
		existing, err := s.userRepo.FindByPhone(ctx, phone)
		if err != nil {
			return fmt.Errorf("failed to find user: %w", err)
		}
		if existing != nil {
			return model.NewAlreadyRegisteredError(model.IdentifierPhone)
		}
	}
	return nil
}

// createSession はセッションを作成し永続化する。
func (s *Service) createSession(ctx context.Context, userID string) (*model.Session, error) {
	token, err := generateSessionToken()
	if err != nil {
		return nil, fmt.Errorf("failed to generate session token: %w", err)
	}

	now := time.Now()
	session := &model.Session{
		Token:     token,
		UserID:    userID,
		IssuedAt:  now,
		ExpiresAt: now.Add(s.config.SessionTTL),
	}

	if err := s.sessionRepo.Create(ctx, session); err != nil {
		return nil, fmt.Errorf("failed to save session: %w", err)
	}

	if s.metrics != nil {
		s.metrics.RecordSessionIssued()
	}

	return session, nil
}

// renewSession はセッションの有効期限を現在時刻基準で延長する（スライディング更新）。
func (s *Service) renewSession(ctx context.Context, session *model.Session) (*model.Session, error) {
	expiresAt := time.Now().Add(s.config.SessionTTL)
	if err := s.sessionRepo.Renew(ctx, session.Token, expiresAt); err != nil {
		return nil, fmt.Errorf("failed to renew session: %w", err)
	}

	renewed := *session
	renewed.ExpiresAt = expiresAt
	return &renewed, nil
}
