package engine

import (
	"context"
	"errors"
	"strings"

	"luggo/internal/domain"
	"luggo/internal/engine/auth"
	"luggo/internal/repo"
)

// RegisterOptions are parameters for creating an account.
type RegisterOptions struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required,min=8,max=128"`
	Name     string `json:"name" validate:"required,max=200"`
	Phone    string `json:"phone" validate:"max=32"`
	Role     string `json:"role" validate:"required,oneof=customer executor admin"`
	// AllowAdmin permits creating admin accounts (CLI only).
	AllowAdmin bool `json:"-"`
}

func (e Engine) RegisterUser(ctx context.Context, opts RegisterOptions) (domain.User, error) {
	opts.Email = strings.ToLower(strings.TrimSpace(opts.Email))
	opts.Name = strings.TrimSpace(opts.Name)
	if err := validateStruct(opts); err != nil {
		return domain.User{}, err
	}
	if !auth.SelfRegistrable(opts.Role) && !opts.AllowAdmin {
		return domain.User{}, auth.Forbidden("register", "role "+opts.Role+" cannot self-register")
	}
	hash, err := auth.HashPassword(opts.Password)
	if err != nil {
		return domain.User{}, invalid("password", err.Error())
	}
	u := domain.User{
		ID:           newID(),
		Email:        opts.Email,
		PasswordHash: hash,
		Name:         opts.Name,
		Phone:        strings.TrimSpace(opts.Phone),
		Role:         opts.Role,
		CreatedAt:    e.stamp(),
	}
	if err := e.Repo.InsertUser(ctx, nil, u); err != nil {
		if errors.Is(err, repo.ErrConflict) {
			return domain.User{}, conflict("email %s already registered", opts.Email)
		}
		return domain.User{}, err
	}
	e.logger().Info("user registered", "user_id", u.ID, "role", u.Role)
	return u, nil
}

// Authenticate checks credentials and returns the matching user.
func (e Engine) Authenticate(ctx context.Context, email, password string) (domain.User, error) {
	u, err := e.Repo.GetUserByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return domain.User{}, auth.ErrInvalidCredentials
		}
		return domain.User{}, err
	}
	if err := auth.CheckPassword(u.PasswordHash, password); err != nil {
		return domain.User{}, err
	}
	return u, nil
}

func (e Engine) GetUser(ctx context.Context, id string) (domain.User, error) {
	u, err := e.Repo.GetUser(ctx, id)
	return u, lookup(err, "user", id)
}

// PublicProfile returns a user with contacts hidden unless the user opted in or
// the viewer is the user.
func (e Engine) PublicProfile(ctx context.Context, id, viewerID string) (domain.User, error) {
	u, err := e.GetUser(ctx, id)
	if err != nil {
		return u, err
	}
	if viewerID != u.ID && !u.ShowContacts {
		u.Email = ""
		u.Phone = ""
	}
	return u, nil
}

// ProfileUpdate holds optional profile fields.
type ProfileUpdate struct {
	Name         *string `json:"name" validate:"omitempty,min=1,max=200"`
	Phone        *string `json:"phone" validate:"omitempty,max=32"`
	ShowContacts *bool   `json:"show_contacts"`
}

func (e Engine) UpdateProfile(ctx context.Context, userID string, upd ProfileUpdate) (domain.User, error) {
	if err := validateStruct(upd); err != nil {
		return domain.User{}, err
	}
	err := e.Repo.UpdateUser(ctx, userID, repo.UserPatch{Name: upd.Name, Phone: upd.Phone, ShowContacts: upd.ShowContacts})
	if err != nil {
		return domain.User{}, lookup(err, "user", userID)
	}
	return e.GetUser(ctx, userID)
}

func (e Engine) ListUsers(ctx context.Context, role string) ([]domain.User, error) {
	if role != "" && !auth.ValidRole(role) {
		return nil, invalid("role", "unknown role "+role)
	}
	return e.Repo.ListUsers(ctx, role)
}
