// Package authpw provides login/password authentication.
package authpw

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"golang.org/x/crypto/bcrypt"

	"taskhub/api/internal/rbac"
	"taskhub/api/internal/store"
)

// Service provides login/password authentication
type Service struct {
	store UserStore
}

// UserStore defines the storage interface for auth
type UserStore interface {
	GetUserByLogin(ctx context.Context, login string) (store.User, error)
	GetUserByID(ctx context.Context, id int64) (store.User, error)
	LoginTaken(ctx context.Context, login string, excludeID int64) (bool, error)
	CreateUser(ctx context.Context, user store.User) (int64, error)
	GetRoleByName(ctx context.Context, name string) (store.Role, error)
	UpdateUserPassword(ctx context.Context, userID int64, passwordHash string) error
	CreatePasswordReset(ctx context.Context, userID int64, token string, expiresAt time.Time) error
	GetPasswordReset(ctx context.Context, token string) (int64, error)
	MarkPasswordResetUsed(ctx context.Context, token string) error
}

// NewService creates a new auth service
func NewService(store UserStore) *Service {
	return &Service{store: store}
}

// RegisterRequest contains registration parameters
type RegisterRequest struct {
	Login    string
	Email    string
	Password string
}

// Register creates a new account. Self-registered users always get the
// regular role; only an admin can promote them afterwards.
func (s *Service) Register(ctx context.Context, req RegisterRequest) (store.User, error) {
	if req.Login == "" || req.Email == "" || req.Password == "" {
		return store.User{}, errors.New("login, email, and password are required")
	}
	if len(req.Password) < 8 {
		return store.User{}, errors.New("password must be at least 8 characters")
	}

	taken, err := s.store.LoginTaken(ctx, req.Login, 0)
	if err != nil {
		return store.User{}, fmt.Errorf("check login: %w", err)
	}
	if taken {
		return store.User{}, errors.New("login already registered")
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		return store.User{}, fmt.Errorf("hash password: %w", err)
	}

	role, err := s.store.GetRoleByName(ctx, string(rbac.RoleUser))
	if err != nil {
		return store.User{}, fmt.Errorf("lookup default role: %w", err)
	}

	user := store.User{
		Login:        req.Login,
		Email:        req.Email,
		PasswordHash: string(hash),
		RoleID:       role.ID,
		RoleName:     role.Name,
	}

	id, err := s.store.CreateUser(ctx, user)
	if err != nil {
		return store.User{}, fmt.Errorf("create user: %w", err)
	}
	user.ID = id

	return user, nil
}

// SignIn authenticates a user by login and password
func (s *Service) SignIn(ctx context.Context, login, password string) (store.User, error) {
	if login == "" || password == "" {
		return store.User{}, errors.New("login and password are required")
	}

	user, err := s.store.GetUserByLogin(ctx, login)
	if err != nil {
		return store.User{}, errors.New("invalid login or password")
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return store.User{}, errors.New("invalid login or password")
	}

	return user, nil
}

// HashPassword hashes a plaintext password for storage.
func HashPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("hash password: %w", err)
	}
	return string(hash), nil
}

// RequestPasswordReset creates a password reset token. An unknown login
// returns an empty token and no error so the endpoint never leaks which
// accounts exist.
func (s *Service) RequestPasswordReset(ctx context.Context, login string) (string, store.User, error) {
	user, err := s.store.GetUserByLogin(ctx, login)
	if err != nil {
		return "", store.User{}, nil
	}

	token, err := generateToken()
	if err != nil {
		return "", store.User{}, err
	}

	expiresAt := time.Now().Add(1 * time.Hour)
	if err := s.store.CreatePasswordReset(ctx, user.ID, token, expiresAt); err != nil {
		return "", store.User{}, err
	}

	return token, user, nil
}

// ResetPasswordRequest contains password reset parameters
type ResetPasswordRequest struct {
	Token       string
	NewPassword string
}

// ResetPassword resets a user's password using a reset token
func (s *Service) ResetPassword(ctx context.Context, req ResetPasswordRequest) error {
	if req.Token == "" || req.NewPassword == "" {
		return errors.New("token and new password are required")
	}
	if len(req.NewPassword) < 8 {
		return errors.New("password must be at least 8 characters")
	}

	userID, err := s.store.GetPasswordReset(ctx, req.Token)
	if err != nil {
		return errors.New("invalid or expired reset token")
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.NewPassword), bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}

	if err := s.store.UpdateUserPassword(ctx, userID, string(hash)); err != nil {
		return fmt.Errorf("update password: %w", err)
	}

	// Best effort; the password is already reset.
	_ = s.store.MarkPasswordResetUsed(ctx, req.Token)

	return nil
}

// generateToken creates a secure random token
func generateToken() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}
