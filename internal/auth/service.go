package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/haontuhcmut/lab-services/internal/blocklist"
	"github.com/haontuhcmut/lab-services/internal/mailer"
	"github.com/haontuhcmut/lab-services/internal/obs"
	"github.com/haontuhcmut/lab-services/internal/store"
)

const (
	defaultAccessTTL    = 15 * time.Minute
	defaultRefreshTTL   = 2 * 24 * time.Hour
	defaultActionMaxAge = time.Hour
)

// GateKind selects the token class a gate accepts. One authentication
// function parameterized by kind replaces per-class guard subclasses.
type GateKind int

const (
	GateAccess GateKind = iota
	GateRefresh
)

// Service orchestrates token issuance, authentication, revocation and the
// email action flows. It holds no mutable state of its own; everything
// cross-request lives in the user store and the blocklist.
type Service struct {
	users   store.UserStore
	revoked blocklist.Store
	codec   *Codec
	action  *ActionCodec
	mail    mailer.Queue
	domain  string

	accessTTL    time.Duration
	refreshTTL   time.Duration
	actionMaxAge time.Duration
	now          func() time.Time
}

// ServiceOption configures Service behavior.
type ServiceOption func(*Service)

// WithAccessTTL configures the login access-token lifetime.
func WithAccessTTL(ttl time.Duration) ServiceOption {
	return func(s *Service) {
		if ttl > 0 {
			s.accessTTL = ttl
		}
	}
}

// WithRefreshTTL configures the refresh-token lifetime.
func WithRefreshTTL(ttl time.Duration) ServiceOption {
	return func(s *Service) {
		if ttl > 0 {
			s.refreshTTL = ttl
		}
	}
}

// WithActionMaxAge configures how long email action links stay valid.
func WithActionMaxAge(maxAge time.Duration) ServiceOption {
	return func(s *Service) {
		if maxAge > 0 {
			s.actionMaxAge = maxAge
		}
	}
}

// WithMailer routes account emails through the given queue.
func WithMailer(q mailer.Queue) ServiceOption {
	return func(s *Service) {
		if q != nil {
			s.mail = q
		}
	}
}

// WithClock overrides the time source (useful for tests).
func WithClock(fn func() time.Time) ServiceOption {
	return func(s *Service) {
		if fn != nil {
			s.now = fn
		}
	}
}

// NewService wires the auth core. domain is the public hostname used when
// building email action links.
func NewService(users store.UserStore, revoked blocklist.Store, codec *Codec, action *ActionCodec, domain string, opts ...ServiceOption) *Service {
	svc := &Service{
		users:        users,
		revoked:      revoked,
		codec:        codec,
		action:       action,
		mail:         &mailer.InProcess{Sender: mailer.LogSender{}},
		domain:       domain,
		accessTTL:    defaultAccessTTL,
		refreshTTL:   defaultRefreshTTL,
		actionMaxAge: defaultActionMaxAge,
		now:          time.Now,
	}
	for _, opt := range opts {
		opt(svc)
	}
	return svc
}

// Authenticate runs the token gate state machine: decode, revocation check,
// token-class check, and (for access tokens) the expiry check. It is
// read-only; the decoded claims become the request principal on success.
func (s *Service) Authenticate(ctx context.Context, token string, kind GateKind) (*Claims, error) {
	claims, err := s.codec.Decode(token)
	if err != nil {
		return nil, ErrInvalidToken
	}
	revoked, err := s.revoked.IsRevoked(ctx, claims.ID)
	if err != nil {
		return nil, fmt.Errorf("blocklist lookup: %w", err)
	}
	if revoked {
		return nil, ErrInvalidToken
	}
	switch kind {
	case GateAccess:
		if claims.Refresh {
			return nil, ErrAccessTokenRequired
		}
		if claims.Expired(s.now()) {
			return nil, ErrInvalidToken
		}
	case GateRefresh:
		if !claims.Refresh {
			return nil, ErrRefreshTokenRequired
		}
		// Expiry of refresh tokens is re-checked by the refresh flow.
	default:
		return nil, ErrInvalidToken
	}
	return claims, nil
}

// Authorize resolves the claims to a stored principal and applies the role
// gate: unverified accounts fail first, regardless of role.
func (s *Service) Authorize(ctx context.Context, claims *Claims, allowedRoles ...string) (*store.User, error) {
	user, err := s.CurrentUser(ctx, claims)
	if err != nil {
		return nil, err
	}
	if !user.Verified {
		return nil, ErrAccountNotVerified
	}
	for _, role := range allowedRoles {
		if user.Role == role {
			return user, nil
		}
	}
	return nil, ErrInsufficientPermissions
}

// CurrentUser looks the principal up by the email carried in the claims.
func (s *Service) CurrentUser(ctx context.Context, claims *Claims) (*store.User, error) {
	user, err := s.users.FindByEmail(ctx, claims.User.Email)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, err
	}
	return user, nil
}

// TokenPair is the login result handed back to clients.
type TokenPair struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
}

// Login authenticates credentials and issues an access/refresh token pair.
// Unknown email and wrong password return the identical error so responses
// cannot be used to enumerate accounts.
func (s *Service) Login(ctx context.Context, email, password string) (TokenPair, *store.User, error) {
	email = strings.TrimSpace(strings.ToLower(email))
	user, err := s.users.FindByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return TokenPair{}, nil, ErrInvalidCredentials
		}
		return TokenPair{}, nil, err
	}
	if !VerifyPassword(password, user.PasswordHash) {
		return TokenPair{}, nil, ErrInvalidCredentials
	}

	access, err := s.codec.Issue(UserClaims{
		Email:  user.Email,
		UserID: user.ID,
		Role:   user.Role,
	}, s.accessTTL, false)
	if err != nil {
		return TokenPair{}, nil, err
	}
	// The refresh token carries no role: authorization always consults the
	// store, never a token role.
	refresh, err := s.codec.Issue(UserClaims{
		Email:  user.Email,
		UserID: user.ID,
	}, s.refreshTTL, true)
	if err != nil {
		return TokenPair{}, nil, err
	}
	obs.TokenIssued("access")
	obs.TokenIssued("refresh")
	return TokenPair{AccessToken: access, RefreshToken: refresh}, user, nil
}

// Refresh issues a new access token from validated refresh-token claims. The
// expiry is re-checked here explicitly; the user claims are carried over
// verbatim.
func (s *Service) Refresh(ctx context.Context, claims *Claims) (string, error) {
	if claims.Expired(s.now()) {
		return "", ErrInvalidToken
	}
	access, err := s.codec.Issue(claims.User, DefaultTTL, false)
	if err != nil {
		return "", err
	}
	obs.TokenIssued("access")
	return access, nil
}

// Logout revokes the token's jti for its remaining natural lifetime.
// Revoking an already revoked jti succeeds.
func (s *Service) Logout(ctx context.Context, claims *Claims) error {
	return s.revoked.Revoke(ctx, claims.ID, claims.RemainingTTL(s.now()))
}

// RegisterInput is the signup form.
type RegisterInput struct {
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	Username  string `json:"username"`
	Email     string `json:"email"`
	Password  string `json:"password"`
}

// Register creates an unverified user account and emails the verification
// link. Email and username uniqueness are reported distinctly.
func (s *Service) Register(ctx context.Context, in RegisterInput) (*store.User, error) {
	email := strings.TrimSpace(strings.ToLower(in.Email))
	if _, err := s.users.FindByEmail(ctx, email); err == nil {
		return nil, ErrEmailTaken
	} else if !errors.Is(err, store.ErrNotFound) {
		return nil, err
	}
	if _, err := s.users.FindByUsername(ctx, in.Username); err == nil {
		return nil, ErrUsernameTaken
	} else if !errors.Is(err, store.ErrNotFound) {
		return nil, err
	}

	hash, err := HashPassword(in.Password)
	if err != nil {
		return nil, err
	}
	user := &store.User{
		Username:     in.Username,
		Email:        email,
		FirstName:    in.FirstName,
		LastName:     in.LastName,
		Role:         store.RoleUser,
		PasswordHash: hash,
	}
	if err := s.users.Create(ctx, user); err != nil {
		return nil, err
	}

	if err := s.sendActionMail(ctx, email, "Verify your email",
		"auth/verify", "Verify your Email", "verify your email"); err != nil {
		obs.LogRequest(map[string]any{"level": "error", "msg": "verification mail enqueue failed", "error": err.Error()})
	}
	return user, nil
}

// VerifyAccount consumes a verification link token and marks the account
// verified. Replay within the max-age window re-verifies and succeeds.
func (s *Service) VerifyAccount(ctx context.Context, token string) (*store.User, error) {
	email, err := s.decodeActionEmail(token)
	if err != nil {
		return nil, err
	}
	user, err := s.users.FindByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, err
	}
	if err := s.users.SetVerified(ctx, user.ID, true); err != nil {
		return nil, err
	}
	user.Verified = true
	return user, nil
}

// RequestPasswordReset emails a reset link. It succeeds whether or not the
// address belongs to an account.
func (s *Service) RequestPasswordReset(ctx context.Context, email string) error {
	email = strings.TrimSpace(strings.ToLower(email))
	return s.sendActionMail(ctx, email, "Reset your password",
		"auth/password-reset-confirm", "Reset your password", "reset your password")
}

// ResetPassword consumes a reset link token and replaces the password hash.
func (s *Service) ResetPassword(ctx context.Context, token, newPassword, confirmPassword string) error {
	if newPassword != confirmPassword {
		return ErrPasswordMismatch
	}
	email, err := s.decodeActionEmail(token)
	if err != nil {
		return err
	}
	user, err := s.users.FindByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return ErrUserNotFound
		}
		return err
	}
	hash, err := HashPassword(newPassword)
	if err != nil {
		return err
	}
	return s.users.UpdatePassword(ctx, user.ID, hash)
}

// BootstrapAdmin seeds a verified admin account at startup when none exists
// for the configured email. It is a no-op when the account or username is
// already taken.
func (s *Service) BootstrapAdmin(ctx context.Context, in RegisterInput) error {
	if in.Email == "" || in.Password == "" {
		return nil
	}
	email := strings.TrimSpace(strings.ToLower(in.Email))
	if _, err := s.users.FindByEmail(ctx, email); err == nil {
		return nil
	} else if !errors.Is(err, store.ErrNotFound) {
		return err
	}
	if _, err := s.users.FindByUsername(ctx, in.Username); err == nil {
		return nil
	} else if !errors.Is(err, store.ErrNotFound) {
		return err
	}
	hash, err := HashPassword(in.Password)
	if err != nil {
		return err
	}
	return s.users.Create(ctx, &store.User{
		Username:     in.Username,
		Email:        email,
		FirstName:    in.FirstName,
		LastName:     in.LastName,
		Role:         store.RoleAdmin,
		Verified:     true,
		PasswordHash: hash,
	})
}

func (s *Service) decodeActionEmail(token string) (string, error) {
	payload, err := s.action.Decode(token, s.actionMaxAge)
	if err != nil {
		return "", err
	}
	email := payload["email"]
	if email == "" {
		return "", ErrActionTokenInvalid
	}
	return email, nil
}

func (s *Service) sendActionMail(ctx context.Context, email, subject, linkPath, heading, action string) error {
	token, err := s.action.Issue(map[string]string{"email": email})
	if err != nil {
		return err
	}
	link := fmt.Sprintf("http://%s/api/v1/%s/%s", s.domain, linkPath, token)
	html := fmt.Sprintf(`<h1>%s</h1>
<p>Please click this <a href="%s">link</a> to %s.</p>`, heading, link, action)
	return s.mail.Enqueue(ctx, mailer.Message{
		To:      []string{email},
		Subject: subject,
		HTML:    html,
	})
}
