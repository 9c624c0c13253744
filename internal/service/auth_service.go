package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"famfinance/internal/database"
	"famfinance/internal/log"
	"famfinance/internal/models"
	"famfinance/internal/repository"
	"famfinance/internal/security"
	"famfinance/internal/validation"
)

const (
	passwordResetTTL        = time.Hour
	passwordResetTokenBytes = 32
)

// Session is a freshly issued sign-in
type Session struct {
	Token  string
	Claims *security.Claims
	User   *models.User
}

// AuthService handles registration, sign-in and password recovery
type AuthService struct {
	db       *database.DB
	users    *repository.UserRepository
	tokens   *security.TokenIssuer
	mailer   Mailer
	queue    Enqueuer
	composer *EmailComposer
	logger   *log.Logger
	now      func() time.Time
}

// NewAuthService creates a new auth service
func NewAuthService(db *database.DB, users *repository.UserRepository, tokens *security.TokenIssuer,
	mailer Mailer, queue Enqueuer, composer *EmailComposer, logger *log.Logger) *AuthService {
	return &AuthService{
		db:       db,
		users:    users,
		tokens:   tokens,
		mailer:   mailer,
		queue:    queue,
		composer: composer,
		logger:   logger.WithComponent(log.ComponentAuth),
		now:      time.Now,
	}
}

// Register creates a password account. The welcome email is best effort.
func (s *AuthService) Register(ctx context.Context, email, password, name string) (*models.User, error) {
	email = validation.NormalizeEmail(email)
	name = strings.TrimSpace(name)
	if err := validation.First(
		validation.ValidateEmail(email),
		validation.ValidatePassword(password),
		validation.ValidateName(name),
	); err != nil {
		return nil, invalid(err)
	}

	existing, err := s.users.GetUserByEmail(ctx, email)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return nil, ErrEmailTaken
	}

	hash, err := security.HashPassword(password)
	if err != nil {
		return nil, err
	}

	user, err := s.users.CreateUser(ctx, email, hash, name, s.now())
	if err != nil {
		if s.db.IsUniqueViolation(err) {
			return nil, ErrEmailTaken
		}
		return nil, err
	}

	s.logger.InfoContext(ctx, "user registered", log.FieldUserID, user.ID)
	s.sendWelcome(ctx, user)
	return user, nil
}

func (s *AuthService) sendWelcome(ctx context.Context, user *models.User) {
	msg, err := s.composer.Welcome(user)
	if err == nil {
		err = s.mailer.Send(ctx, msg)
	}
	if err != nil {
		s.logger.WarnContext(ctx, "failed to send welcome email", log.FieldUserID, user.ID, log.FieldError, err)
	}
}

// Login checks a password and issues a session token
func (s *AuthService) Login(ctx context.Context, email, password string) (*Session, error) {
	user, err := s.users.GetUserByEmail(ctx, validation.NormalizeEmail(email))
	if err != nil {
		return nil, err
	}
	if user == nil || !security.CheckPassword(user.PasswordHash, password) {
		return nil, ErrInvalidCredentials
	}
	return s.issue(user)
}

// OAuthLogin signs in with an external identity. A known identity signs in directly,
// an existing account with the same email gets the identity linked, otherwise a new
// account is created.
func (s *AuthService) OAuthLogin(ctx context.Context, provider, subject, email, name string) (*Session, error) {
	if provider == "" || subject == "" {
		return nil, ErrInvalidCredentials
	}
	email = validation.NormalizeEmail(email)
	if err := validation.ValidateEmail(email); err != nil {
		return nil, invalid(err)
	}

	user, err := s.users.GetUserByOAuth(ctx, provider, subject)
	if err != nil {
		return nil, err
	}
	if user != nil {
		return s.issue(user)
	}

	now := s.now()
	user, err = s.users.GetUserByEmail(ctx, email)
	if err != nil {
		return nil, err
	}
	if user != nil {
		if err := s.users.LinkOAuthProvider(ctx, user.ID, provider, subject, now); err != nil {
			return nil, err
		}
		user.OAuthProvider = provider
		user.OAuthSubject = subject
		s.logger.InfoContext(ctx, "linked oauth identity", log.FieldUserID, user.ID, "provider", provider)
		return s.issue(user)
	}

	name = strings.TrimSpace(name)
	if name == "" {
		name = strings.SplitN(email, "@", 2)[0]
	}
	user, err = s.users.CreateOAuthUser(ctx, email, name, provider, subject, now)
	if err != nil {
		if s.db.IsUniqueViolation(err) {
			return nil, ErrEmailTaken
		}
		return nil, err
	}

	s.logger.InfoContext(ctx, "user registered", log.FieldUserID, user.ID, "provider", provider)
	s.sendWelcome(ctx, user)
	return s.issue(user)
}

func (s *AuthService) issue(user *models.User) (*Session, error) {
	token, claims, err := s.tokens.Issue(user.ID, user.Email)
	if err != nil {
		return nil, err
	}
	return &Session{Token: token, Claims: claims, User: user}, nil
}

// Authenticate verifies a session token and returns its identity
func (s *AuthService) Authenticate(token string) (Identity, *security.Claims, error) {
	claims, err := s.tokens.Parse(token)
	if err != nil {
		return Identity{}, nil, fmt.Errorf("%w: %w", ErrUnauthenticated, err)
	}
	userID, err := claims.UserID()
	if err != nil {
		return Identity{}, nil, fmt.Errorf("%w: %w", ErrUnauthenticated, err)
	}
	return Identity{UserID: userID, Email: claims.Email}, claims, nil
}

// GetUser returns a user by id
func (s *AuthService) GetUser(ctx context.Context, id int64) (*models.User, error) {
	user, err := s.users.GetUserByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, notFound("user")
	}
	return user, nil
}

// RequestPasswordReset queues a reset link for the account with this email. It never
// reports whether such an account exists.
func (s *AuthService) RequestPasswordReset(ctx context.Context, email string) {
	email = validation.NormalizeEmail(email)
	user, err := s.users.GetUserByEmail(ctx, email)
	if err != nil {
		s.logger.ErrorContext(ctx, "failed to look up user for password reset", log.FieldError, err)
		return
	}
	if user == nil {
		s.logger.DebugContext(ctx, "password reset requested for unknown email")
		return
	}

	token, err := security.GenerateSecureToken(passwordResetTokenBytes)
	if err != nil {
		s.logger.ErrorContext(ctx, "failed to generate reset token", log.FieldError, err)
		return
	}
	now := s.now()
	if err := s.users.CreatePasswordResetToken(ctx, token, user.ID, now.Add(passwordResetTTL), now); err != nil {
		s.logger.ErrorContext(ctx, "failed to store reset token", log.FieldUserID, user.ID, log.FieldError, err)
		return
	}

	msg, err := s.composer.PasswordReset(user, token, passwordResetTTL)
	if err == nil {
		_, err = s.queue.Enqueue(ctx, msg)
	}
	if err != nil {
		s.logger.ErrorContext(ctx, "failed to queue reset email", log.FieldUserID, user.ID, log.FieldError, err)
		return
	}
	s.logger.InfoContext(ctx, "password reset requested", log.FieldUserID, user.ID)
}

// ResetPassword redeems a reset token. The password update and token redemption
// commit together.
func (s *AuthService) ResetPassword(ctx context.Context, token, newPassword string) error {
	if err := validation.ValidatePassword(newPassword); err != nil {
		return invalid(err)
	}

	now := s.now()
	rt, err := s.users.GetPasswordResetToken(ctx, token)
	if err != nil {
		return err
	}
	if rt == nil || !rt.IsValid(now) {
		return ErrInvalidResetToken
	}

	hash, err := security.HashPassword(newPassword)
	if err != nil {
		return err
	}

	err = s.db.WithTx(ctx, func(tx *database.Tx) error {
		users := s.users.WithTx(tx)
		used, err := users.MarkPasswordResetTokenUsed(ctx, token)
		if err != nil {
			return err
		}
		if !used {
			return ErrInvalidResetToken
		}
		return users.UpdatePassword(ctx, rt.UserID, hash, now)
	})
	if err != nil {
		return err
	}

	s.logger.InfoContext(ctx, "password reset", log.FieldUserID, rt.UserID)
	return nil
}

// CleanupExpiredTokens deletes used and expired reset tokens
func (s *AuthService) CleanupExpiredTokens(ctx context.Context) (int64, error) {
	return s.users.DeleteExpiredPasswordResetTokens(ctx, s.now())
}
