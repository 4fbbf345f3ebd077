package authpw

import (
	"context"
	"errors"
	"testing"
	"time"

	"taskhub/api/internal/store"
)

// mockUserStore is a mock implementation of UserStore for testing
type mockUserStore struct {
	users      map[int64]store.User
	loginIndex map[string]int64
	nextID     int64
	resets     map[string]struct {
		userID    int64
		expiresAt time.Time
		used      bool
	}
}

func newMockUserStore() *mockUserStore {
	return &mockUserStore{
		users:      make(map[int64]store.User),
		loginIndex: make(map[string]int64),
		nextID:     1,
		resets: make(map[string]struct {
			userID    int64
			expiresAt time.Time
			used      bool
		}),
	}
}

func (m *mockUserStore) GetUserByLogin(ctx context.Context, login string) (store.User, error) {
	if userID, ok := m.loginIndex[login]; ok {
		return m.users[userID], nil
	}
	return store.User{}, errors.New("user not found")
}

func (m *mockUserStore) GetUserByID(ctx context.Context, id int64) (store.User, error) {
	if user, ok := m.users[id]; ok {
		return user, nil
	}
	return store.User{}, errors.New("user not found")
}

func (m *mockUserStore) LoginTaken(ctx context.Context, login string, excludeID int64) (bool, error) {
	id, ok := m.loginIndex[login]
	return ok && id != excludeID, nil
}

func (m *mockUserStore) CreateUser(ctx context.Context, user store.User) (int64, error) {
	user.ID = m.nextID
	m.nextID++
	m.users[user.ID] = user
	m.loginIndex[user.Login] = user.ID
	return user.ID, nil
}

func (m *mockUserStore) GetRoleByName(ctx context.Context, name string) (store.Role, error) {
	switch name {
	case "ROLE_ADMIN":
		return store.Role{ID: 1, Name: name}, nil
	case "ROLE_USER":
		return store.Role{ID: 2, Name: name}, nil
	}
	return store.Role{}, errors.New("role not found")
}

func (m *mockUserStore) UpdateUserPassword(ctx context.Context, userID int64, passwordHash string) error {
	if user, ok := m.users[userID]; ok {
		user.PasswordHash = passwordHash
		m.users[userID] = user
		return nil
	}
	return errors.New("user not found")
}

func (m *mockUserStore) CreatePasswordReset(ctx context.Context, userID int64, token string, expiresAt time.Time) error {
	m.resets[token] = struct {
		userID    int64
		expiresAt time.Time
		used      bool
	}{userID: userID, expiresAt: expiresAt, used: false}
	return nil
}

func (m *mockUserStore) GetPasswordReset(ctx context.Context, token string) (int64, error) {
	if reset, ok := m.resets[token]; ok && !reset.used && time.Now().Before(reset.expiresAt) {
		return reset.userID, nil
	}
	return 0, errors.New("invalid or expired token")
}

func (m *mockUserStore) MarkPasswordResetUsed(ctx context.Context, token string) error {
	if reset, ok := m.resets[token]; ok {
		reset.used = true
		m.resets[token] = reset
	}
	return nil
}

func TestRegister(t *testing.T) {
	ctx := context.Background()
	mockStore := newMockUserStore()
	svc := NewService(mockStore)

	t.Run("successful registration", func(t *testing.T) {
		user, err := svc.Register(ctx, RegisterRequest{
			Login:    "maria",
			Email:    "maria@example.com",
			Password: "password123",
		})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		if user.ID == 0 {
			t.Error("expected ID to be set")
		}
		if user.RoleName != "ROLE_USER" {
			t.Errorf("self-registered user should get ROLE_USER, got %s", user.RoleName)
		}
		if user.PasswordHash == "password123" {
			t.Error("password must not be stored in plaintext")
		}
	})

	t.Run("duplicate login", func(t *testing.T) {
		_, err := svc.Register(ctx, RegisterRequest{
			Login:    "maria",
			Email:    "other@example.com",
			Password: "password123",
		})
		if err == nil {
			t.Error("expected error for duplicate login")
		}
	})

	t.Run("short password", func(t *testing.T) {
		_, err := svc.Register(ctx, RegisterRequest{
			Login:    "piotr",
			Email:    "piotr@example.com",
			Password: "short",
		})
		if err == nil {
			t.Error("expected error for short password")
		}
	})

	t.Run("missing fields", func(t *testing.T) {
		_, err := svc.Register(ctx, RegisterRequest{})
		if err == nil {
			t.Error("expected error for missing fields")
		}
	})
}

func TestSignIn(t *testing.T) {
	ctx := context.Background()
	mockStore := newMockUserStore()
	svc := NewService(mockStore)

	_, err := svc.Register(ctx, RegisterRequest{
		Login:    "maria",
		Email:    "maria@example.com",
		Password: "password123",
	})
	if err != nil {
		t.Fatalf("register: %v", err)
	}

	t.Run("successful sign in", func(t *testing.T) {
		user, err := svc.SignIn(ctx, "maria", "password123")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if user.Login != "maria" {
			t.Errorf("expected login maria, got %s", user.Login)
		}
	})

	t.Run("wrong password", func(t *testing.T) {
		if _, err := svc.SignIn(ctx, "maria", "wrongpassword"); err == nil {
			t.Error("expected error for wrong password")
		}
	})

	t.Run("non-existent user", func(t *testing.T) {
		if _, err := svc.SignIn(ctx, "nobody", "password123"); err == nil {
			t.Error("expected error for non-existent user")
		}
	})

	t.Run("empty credentials", func(t *testing.T) {
		if _, err := svc.SignIn(ctx, "", ""); err == nil {
			t.Error("expected error for empty credentials")
		}
	})
}

func TestPasswordReset(t *testing.T) {
	ctx := context.Background()
	mockStore := newMockUserStore()
	svc := NewService(mockStore)

	if _, err := svc.Register(ctx, RegisterRequest{
		Login:    "maria",
		Email:    "maria@example.com",
		Password: "password123",
	}); err != nil {
		t.Fatalf("register: %v", err)
	}

	t.Run("request reset for existing user", func(t *testing.T) {
		token, user, err := svc.RequestPasswordReset(ctx, "maria")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if token == "" {
			t.Error("expected token to be generated")
		}
		if user.Login != "maria" {
			t.Errorf("expected user maria, got %s", user.Login)
		}
	})

	t.Run("request reset for non-existent user - no error", func(t *testing.T) {
		token, _, err := svc.RequestPasswordReset(ctx, "nobody")
		if err != nil {
			t.Errorf("expected no error for non-existent user, got: %v", err)
		}
		if token != "" {
			t.Error("expected no token for non-existent user")
		}
	})

	t.Run("reset password with valid token", func(t *testing.T) {
		token, _, _ := svc.RequestPasswordReset(ctx, "maria")

		err := svc.ResetPassword(ctx, ResetPasswordRequest{
			Token:       token,
			NewPassword: "newpassword123",
		})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		if _, err := svc.SignIn(ctx, "maria", "password123"); err == nil {
			t.Error("expected old password to not work")
		}

		if _, err := svc.SignIn(ctx, "maria", "newpassword123"); err != nil {
			t.Errorf("expected new password to work: %v", err)
		}
	})

	t.Run("reset with invalid token", func(t *testing.T) {
		err := svc.ResetPassword(ctx, ResetPasswordRequest{
			Token:       "invalid-token",
			NewPassword: "newpassword123",
		})
		if err == nil {
			t.Error("expected error for invalid token")
		}
	})

	t.Run("reset token is single use", func(t *testing.T) {
		token, _, _ := svc.RequestPasswordReset(ctx, "maria")

		if err := svc.ResetPassword(ctx, ResetPasswordRequest{
			Token:       token,
			NewPassword: "anotherpassword1",
		}); err != nil {
			t.Fatalf("first reset failed: %v", err)
		}

		if err := svc.ResetPassword(ctx, ResetPasswordRequest{
			Token:       token,
			NewPassword: "yetanotherpass1",
		}); err == nil {
			t.Error("expected error reusing a spent token")
		}
	})

	t.Run("reset with short password", func(t *testing.T) {
		err := svc.ResetPassword(ctx, ResetPasswordRequest{
			Token:       "some-token",
			NewPassword: "short",
		})
		if err == nil {
			t.Error("expected error for short password")
		}
	})
}
