package service

import (
	"context"
	"errors"

	"golang.org/x/crypto/bcrypt"

	"github.com/ymliu/convo/internal/audit"
	"github.com/ymliu/convo/internal/domain"
	"github.com/ymliu/convo/internal/repository"
	"github.com/ymliu/convo/internal/token"
	"github.com/ymliu/convo/pkg/log"
)

var ErrInvalidCredentials = errors.New("invalid credentials")

type userServiceImpl struct {
	repo   repository.UserRepository
	tokens *token.Manager
}

// NewUserService creates a new user service.
func NewUserService(repo repository.UserRepository, tokens *token.Manager) UserService {
	return &userServiceImpl{repo: repo, tokens: tokens}
}

// Signup registers a new user.
func (s *userServiceImpl) Signup(ctx context.Context, req *domain.SignupRequest) (*domain.UserResponse, error) {
	l := log.Ctx(ctx)

	hashed, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		l.Error().Err(err).Msg("failed to hash password")
		return nil, err
	}

	user := &domain.User{
		Username:     req.Username,
		PasswordHash: string(hashed),
		Role:         req.Role,
	}
	if err := s.repo.Create(ctx, user); err != nil {
		if !errors.Is(err, repository.ErrUsernameExists) {
			l.Error().Err(err).Msg("failed to create user")
		}
		return nil, err
	}

	audit.Log(ctx, audit.ActionSignup, user.ID, "user signed up")

	resp := user.ToResponse()
	return &resp, nil
}

// Login verifies credentials and issues an access token.
func (s *userServiceImpl) Login(ctx context.Context, req *domain.LoginRequest) (*domain.TokenResponse, error) {
	l := log.Ctx(ctx)

	user, err := s.repo.GetByUsername(ctx, req.Username)
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			audit.LogWithDetail(ctx, audit.ActionLoginFailed, 0, req.Username, "login failed: user not found")
			return nil, ErrInvalidCredentials
		}
		l.Error().Err(err).Msg("failed to get user by username")
		return nil, err
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(req.Password)); err != nil {
		audit.LogWithDetail(ctx, audit.ActionLoginFailed, user.ID, req.Username, "login failed: wrong password")
		return nil, ErrInvalidCredentials
	}

	accessToken, err := s.tokens.Generate(user.Username, user.Role)
	if err != nil {
		l.Error().Err(err).Uint(log.FieldUserID, user.ID).Msg("failed to sign token")
		return nil, err
	}

	audit.Log(ctx, audit.ActionLogin, user.ID, "user logged in")

	return &domain.TokenResponse{
		AccessToken: accessToken,
		TokenType:   "bearer",
	}, nil
}
