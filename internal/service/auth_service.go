package service

import (
	"context"
	"errors"
	"strings"

	"storefront/config"
	"storefront/internal/auth"
	"storefront/internal/domain"
	"storefront/internal/models"
	"storefront/internal/repository"

	"golang.org/x/crypto/bcrypt"
)

var (
	ErrEmailExists    = errors.New("email already registered")
	ErrUsernameExists = errors.New("username already taken")
	ErrInvalidCreds   = errors.New("invalid email or password")
	ErrWeakPassword   = errors.New("password must be at least 8 characters")
)

type Tokens struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
}

type AuthService struct {
	cfg   *config.JWTConfig
	store *repository.Store
}

func NewAuthService(cfg *config.JWTConfig, store *repository.Store) *AuthService {
	return &AuthService{cfg: cfg, store: store}
}

func (s *AuthService) Register(ctx context.Context, email, username, password string) (*models.User, *Tokens, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	username = strings.TrimSpace(username)
	if len(password) < 8 {
		return nil, nil, ErrWeakPassword
	}
	users := s.store.WithContext(ctx).Users
	if _, err := users.GetByEmail(email); err == nil {
		return nil, nil, ErrEmailExists
	} else if !errors.Is(err, repository.ErrUserNotFound) {
		return nil, nil, err
	}
	taken, err := users.ExistsByUsername(username)
	if err != nil {
		return nil, nil, err
	}
	if taken {
		return nil, nil, ErrUsernameExists
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, nil, err
	}
	u := &models.User{
		Email:        email,
		Username:     username,
		PasswordHash: string(hash),
		Role:         domain.RoleUser,
	}
	if err := users.Create(u); err != nil {
		return nil, nil, err
	}
	t, err := s.issue(u)
	if err != nil {
		return u, nil, err
	}
	return u, t, nil
}

func (s *AuthService) Login(ctx context.Context, email, password string) (*models.User, *Tokens, error) {
	u, err := s.store.WithContext(ctx).Users.GetByEmail(strings.ToLower(strings.TrimSpace(email)))
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			return nil, nil, ErrInvalidCreds
		}
		return nil, nil, err
	}
	if u.PasswordHash == "" {
		return nil, nil, ErrInvalidCreds
	}
	if err := bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(password)); err != nil {
		return nil, nil, ErrInvalidCreds
	}
	t, err := s.issue(u)
	if err != nil {
		return nil, nil, err
	}
	return u, t, nil
}

func (s *AuthService) Refresh(ctx context.Context, refreshToken string) (*Tokens, error) {
	userID, err := auth.ParseRefreshToken(s.cfg, refreshToken)
	if err != nil {
		return nil, err
	}
	u, err := s.store.WithContext(ctx).Users.GetByID(userID)
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			return nil, auth.ErrInvalidToken
		}
		return nil, err
	}
	return s.issue(u)
}

func (s *AuthService) issue(u *models.User) (*Tokens, error) {
	access, err := auth.GenerateAccessToken(s.cfg, u.ID, u.Email, u.Role)
	if err != nil {
		return nil, err
	}
	refresh, err := auth.GenerateRefreshToken(s.cfg, u.ID)
	if err != nil {
		return nil, err
	}
	return &Tokens{AccessToken: access, RefreshToken: refresh}, nil
}
