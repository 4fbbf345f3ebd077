package app

import (
	"context"
	"strings"

	"taskhub/api/internal/authpw"
	"taskhub/api/internal/rbac"
	"taskhub/api/internal/store"
)

// User administration is admin-only throughout. Regular users manage their
// own account through the profile operations below.

func (s *Service) ListUsers(ctx context.Context, session Session, page int) (map[string]any, error) {
	if !session.isAdmin() {
		return nil, ErrDenied
	}
	users, info, err := s.store.ListUsersPaginated(ctx, page)
	if err != nil {
		return nil, err
	}
	items := make([]map[string]any, 0, len(users))
	for _, u := range users {
		items = append(items, userPayload(u))
	}
	return map[string]any{"items": items, "page": pagePayload(info)}, nil
}

// ListAssignableUsers returns every account, for membership and assignee
// pickers. Members-only data, so any authenticated user may call it.
func (s *Service) ListAssignableUsers(ctx context.Context) ([]map[string]any, error) {
	users, err := s.store.ListAllUsers(ctx)
	if err != nil {
		return nil, err
	}
	items := make([]map[string]any, 0, len(users))
	for _, u := range users {
		items = append(items, map[string]any{"id": u.ID, "login": u.Login})
	}
	return items, nil
}

func (s *Service) GetUser(ctx context.Context, session Session, userID int64) (map[string]any, error) {
	if !session.isAdmin() {
		return nil, ErrDenied
	}
	user, err := s.store.GetUserByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	return userPayload(user), nil
}

func (s *Service) validateUserInput(ctx context.Context, input UserInput, excludeID int64, requirePassword bool) (map[string]string, error) {
	details := map[string]string{}
	if strings.TrimSpace(input.Login) == "" {
		details["login"] = "login is required"
	}
	if strings.TrimSpace(input.Email) == "" {
		details["email"] = "email is required"
	}
	if requirePassword && len(input.Password) < 8 {
		details["password"] = "password must be at least 8 characters"
	}
	if input.Password != "" && len(input.Password) < 8 {
		details["password"] = "password must be at least 8 characters"
	}
	if input.Login != "" {
		taken, err := s.store.LoginTaken(ctx, input.Login, excludeID)
		if err != nil {
			return nil, err
		}
		if taken {
			details["login"] = "login already registered"
		}
	}
	return details, nil
}

func (s *Service) CreateUser(ctx context.Context, session Session, input UserInput) (map[string]any, error) {
	if !session.isAdmin() {
		return nil, ErrDenied
	}
	details, err := s.validateUserInput(ctx, input, 0, true)
	if err != nil {
		return nil, err
	}
	if len(details) > 0 {
		return nil, validationError(details)
	}

	role, err := s.store.GetRoleByName(ctx, string(rbac.Normalize(input.Role)))
	if err != nil {
		return nil, err
	}
	hash, err := authpw.HashPassword(input.Password)
	if err != nil {
		return nil, err
	}

	user := store.User{
		Login:        strings.TrimSpace(input.Login),
		Email:        strings.TrimSpace(input.Email),
		PasswordHash: hash,
		RoleID:       role.ID,
		RoleName:     role.Name,
	}
	id, err := s.store.CreateUser(ctx, user)
	if err != nil {
		return nil, err
	}
	user.ID = id

	s.pushFlash(ctx, session.UserID, "User created.")
	return userPayload(user), nil
}

func (s *Service) UpdateUser(ctx context.Context, session Session, userID int64, input UserInput) (map[string]any, error) {
	if !session.isAdmin() {
		return nil, ErrDenied
	}
	existing, err := s.store.GetUserByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	details, err := s.validateUserInput(ctx, input, userID, false)
	if err != nil {
		return nil, err
	}
	if len(details) > 0 {
		return nil, validationError(details)
	}

	role, err := s.store.GetRoleByName(ctx, string(rbac.Normalize(input.Role)))
	if err != nil {
		return nil, err
	}

	existing.Login = strings.TrimSpace(input.Login)
	existing.Email = strings.TrimSpace(input.Email)
	existing.RoleID = role.ID
	existing.RoleName = role.Name
	if err := s.store.UpdateUser(ctx, existing); err != nil {
		return nil, err
	}
	if input.Password != "" {
		hash, err := authpw.HashPassword(input.Password)
		if err != nil {
			return nil, err
		}
		if err := s.store.UpdateUserPassword(ctx, userID, hash); err != nil {
			return nil, err
		}
	}

	s.pushFlash(ctx, session.UserID, "User updated.")
	return userPayload(existing), nil
}

// DeleteUser removes an account and everything it owns. Admins cannot
// delete themselves; the instance must keep at least the caller alive.
func (s *Service) DeleteUser(ctx context.Context, session Session, userID int64) error {
	if !session.isAdmin() {
		return ErrDenied
	}
	if userID == session.UserID {
		return validationError(map[string]string{"id": "you cannot delete your own account"})
	}
	if _, err := s.store.GetUserByID(ctx, userID); err != nil {
		return err
	}
	if err := s.store.DeleteUser(ctx, userID); err != nil {
		return err
	}

	s.pushFlash(ctx, session.UserID, "User deleted.")
	return nil
}

func (s *Service) ListRoles(ctx context.Context, session Session) ([]map[string]any, error) {
	if !session.isAdmin() {
		return nil, ErrDenied
	}
	roles, err := s.store.ListRoles(ctx)
	if err != nil {
		return nil, err
	}
	items := make([]map[string]any, 0, len(roles))
	for _, r := range roles {
		items = append(items, map[string]any{"id": r.ID, "name": r.Name})
	}
	return items, nil
}

// Profile

type ProfileInput struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (s *Service) GetProfile(ctx context.Context, session Session) (map[string]any, error) {
	user, err := s.store.GetUserByID(ctx, session.UserID)
	if err != nil {
		return nil, err
	}
	return userPayload(user), nil
}

// UpdateProfile lets a user change their own email and password. Login and
// role stay fixed; only an admin can change those.
func (s *Service) UpdateProfile(ctx context.Context, session Session, input ProfileInput) (map[string]any, error) {
	user, err := s.store.GetUserByID(ctx, session.UserID)
	if err != nil {
		return nil, err
	}

	details := map[string]string{}
	if strings.TrimSpace(input.Email) == "" {
		details["email"] = "email is required"
	}
	if input.Password != "" && len(input.Password) < 8 {
		details["password"] = "password must be at least 8 characters"
	}
	if len(details) > 0 {
		return nil, validationError(details)
	}

	user.Email = strings.TrimSpace(input.Email)
	if err := s.store.UpdateUser(ctx, user); err != nil {
		return nil, err
	}
	if input.Password != "" {
		hash, err := authpw.HashPassword(input.Password)
		if err != nil {
			return nil, err
		}
		if err := s.store.UpdateUserPassword(ctx, session.UserID, hash); err != nil {
			return nil, err
		}
	}

	s.pushFlash(ctx, session.UserID, "Profile updated.")
	return userPayload(user), nil
}

func userPayload(u store.User) map[string]any {
	return map[string]any{
		"id":    u.ID,
		"login": u.Login,
		"email": u.Email,
		"role":  u.RoleName,
	}
}
