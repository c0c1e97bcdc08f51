package service

import (
	"context"

	"github.com/go-playground/validator/v10"
	"golang.org/x/crypto/bcrypt"

	"github.com/worksafe-io/be-permits/internal/auth"
	"github.com/worksafe-io/be-permits/internal/errors"
	"github.com/worksafe-io/be-permits/internal/logger"
	"github.com/worksafe-io/be-permits/internal/repository"
)

// UserStore is the persistence collaborator for users.
type UserStore interface {
	Create(ctx context.Context, user *repository.User) error
	GetByID(ctx context.Context, id string) (*repository.User, error)
	GetByEmail(ctx context.Context, email string) (*repository.User, error)
	AdminExists(ctx context.Context) (bool, error)
	ListIDsByLevel(ctx context.Context, level int) ([]string, error)
}

// AuthService handles registration, login and identity verification.
type AuthService struct {
	users    UserStore
	tokens   *auth.TokenManager
	validate *validator.Validate
	log      *logger.Logger
}

// NewAuthService creates a new auth service.
func NewAuthService(users UserStore, tokens *auth.TokenManager, log *logger.Logger) *AuthService {
	return &AuthService{
		users:    users,
		tokens:   tokens,
		validate: validator.New(),
		log:      log,
	}
}

// SignupRequest registers a new user. Role defaults to CLIENT and
// level to 4 when omitted.
type SignupRequest struct {
	Name     string `json:"name" validate:"required,min=3"`
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required,min=6"`
	Role     string `json:"role" validate:"omitempty,oneof=ADMIN CLIENT"`
	Level    int    `json:"level" validate:"omitempty,min=1,max=4"`
}

// LoginRequest authenticates an existing user.
type LoginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

// Signup registers a user and issues an identity token. At most one
// ADMIN may exist process-wide.
func (s *AuthService) Signup(ctx context.Context, req *SignupRequest) (*repository.User, string, error) {
	if err := s.validate.Struct(req); err != nil {
		return nil, "", invalidInputFrom(err)
	}

	role := req.Role
	if role == "" {
		role = auth.RoleClient
	}
	level := req.Level
	if level == 0 {
		level = originLevel
	}

	if role == auth.RoleAdmin {
		exists, err := s.users.AdminExists(ctx)
		if err != nil {
			return nil, "", err
		}
		if exists {
			return nil, "", errors.New(errors.ErrCodeConflict,
				"an admin is already registered, you cannot register another admin")
		}
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, "", errors.Wrap(err, errors.ErrCodeInternal, "failed to hash password")
	}

	user := &repository.User{
		Name:         req.Name,
		Email:        req.Email,
		PasswordHash: string(hash),
		Role:         role,
		Level:        level,
	}
	if err := s.users.Create(ctx, user); err != nil {
		return nil, "", err
	}

	token, err := s.tokens.CreateToken(identityOf(user))
	if err != nil {
		return nil, "", errors.Wrap(err, errors.ErrCodeInternal, "failed to issue token")
	}

	s.log.Info().
		Str("user_id", user.ID).
		Str("role", user.Role).
		Int("level", user.Level).
		Msg("User registered")

	return user, token, nil
}

// Login verifies credentials and issues an identity token.
func (s *AuthService) Login(ctx context.Context, req *LoginRequest) (*repository.User, string, error) {
	if err := s.validate.Struct(req); err != nil {
		return nil, "", invalidInputFrom(err)
	}

	user, err := s.users.GetByEmail(ctx, req.Email)
	if err != nil {
		if errors.CodeOf(err) == errors.ErrCodeNotFound {
			return nil, "", errors.New(errors.ErrCodeUnauthorized, "user not registered")
		}
		return nil, "", err
	}

	if bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(req.Password)) != nil {
		return nil, "", errors.Forbidden("incorrect password")
	}

	token, err := s.tokens.CreateToken(identityOf(user))
	if err != nil {
		return nil, "", errors.Wrap(err, errors.ErrCodeInternal, "failed to issue token")
	}

	s.log.Info().Str("user_id", user.ID).Msg("User logged in")
	return user, token, nil
}

// Verify resolves the acting user behind a verified identity, failing
// when the account no longer exists.
func (s *AuthService) Verify(ctx context.Context, actor auth.Identity) (*repository.User, error) {
	return s.users.GetByID(ctx, actor.UserID)
}

func identityOf(user *repository.User) auth.Identity {
	return auth.Identity{
		UserID: user.ID,
		Email:  user.Email,
		Role:   user.Role,
		Level:  user.Level,
	}
}
