package service

import (
	"context"
	"errors"
	"strings"

	"golang.org/x/crypto/bcrypt"

	"github.com/Paolafigueroah/system-eco-plataform-sub001/internal/audit"
	"github.com/Paolafigueroah/system-eco-plataform-sub001/internal/domain"
	"github.com/Paolafigueroah/system-eco-plataform-sub001/internal/repository"
	"github.com/Paolafigueroah/system-eco-plataform-sub001/pkg/jwt"
	"github.com/Paolafigueroah/system-eco-plataform-sub001/pkg/log"
)

// authServiceImpl implements AuthService with bcrypt hashes and locally
// signed tokens.
type authServiceImpl struct {
	repo   repository.UserRepository
	tokens *jwt.Manager
	cost   int
}

// NewAuthService creates a new auth service.
func NewAuthService(repo repository.UserRepository, tokens *jwt.Manager, bcryptCost int) AuthService {
	if bcryptCost < bcrypt.MinCost || bcryptCost > bcrypt.MaxCost {
		bcryptCost = bcrypt.DefaultCost
	}
	return &authServiceImpl{repo: repo, tokens: tokens, cost: bcryptCost}
}

// Register creates a user and signs them in.
func (s *authServiceImpl) Register(ctx context.Context, req *domain.RegisterRequest) (*domain.AuthResponse, error) {
	l := log.Ctx(ctx)

	hashedPassword, err := bcrypt.GenerateFromPassword([]byte(req.Password), s.cost)
	if err != nil {
		l.Error().Err(err).Msg("failed to hash password")
		return nil, err
	}

	user := &domain.User{
		Email:        strings.ToLower(strings.TrimSpace(req.Email)),
		Username:     strings.TrimSpace(req.Username),
		DisplayName:  strings.TrimSpace(req.DisplayName),
		PasswordHash: string(hashedPassword),
		Roles:        []string{"user"},
	}
	if user.DisplayName == "" {
		user.DisplayName = user.Username
	}

	if err := s.repo.CreateUser(ctx, user); err != nil {
		if !errors.Is(err, domain.ErrEmailExists) && !errors.Is(err, domain.ErrUsernameExists) {
			l.Error().Err(err).Msg("failed to create user")
		}
		return nil, err
	}

	audit.Log(ctx, audit.ActionRegister, user.ID, "user registered")

	return s.issue(ctx, user)
}

// Authenticate exchanges credentials for {userId, token}.
func (s *authServiceImpl) Authenticate(ctx context.Context, req *domain.LoginRequest) (*domain.AuthResponse, error) {
	l := log.Ctx(ctx)

	user, err := s.repo.GetUserByEmail(ctx, req.Email)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			audit.LogWithDetail(ctx, audit.ActionLoginFailed, "", req.Email, "login failed: user not found")
			return nil, domain.ErrInvalidCredentials
		}
		l.Error().Err(err).Msg("failed to get user by email")
		return nil, err
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(req.Password)); err != nil {
		audit.LogWithDetail(ctx, audit.ActionLoginFailed, user.ID, req.Email, "login failed: wrong password")
		return nil, domain.ErrInvalidCredentials
	}

	audit.Log(ctx, audit.ActionLogin, user.ID, "user logged in")

	return s.issue(ctx, user)
}

// ValidateToken validates an access or refresh token.
func (s *authServiceImpl) ValidateToken(token string) (*jwt.Claims, error) {
	return s.tokens.ValidateToken(token)
}

// GetUser returns the public view of userID.
func (s *authServiceImpl) GetUser(ctx context.Context, userID string) (*domain.UserSummary, error) {
	user, err := s.repo.GetUserByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	summary := user.Summary()
	return &summary, nil
}

func (s *authServiceImpl) issue(ctx context.Context, user *domain.User) (*domain.AuthResponse, error) {
	pair, err := s.tokens.GenerateTokenPair(user.ID, user.Email, user.Username, user.Roles)
	if err != nil {
		l := log.Ctx(ctx)
		l.Error().Err(err).Str(log.FieldUserID, user.ID).Msg("failed to generate tokens")
		return nil, err
	}

	return &domain.AuthResponse{
		UserID:       user.ID,
		User:         user.Summary(),
		AccessToken:  pair.AccessToken,
		RefreshToken: pair.RefreshToken,
		ExpiresAt:    pair.AccessExpiresAt,
	}, nil
}
