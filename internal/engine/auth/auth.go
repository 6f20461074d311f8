package auth

import (
	"errors"
	"fmt"
	"strings"

	"golang.org/x/crypto/bcrypt"

	"luggo/internal/domain"
)

// ForbiddenError indicates the actor lacks the capability for an action.
type ForbiddenError struct {
	Action string
	Reason string
}

func (e ForbiddenError) Error() string {
	if e.Reason == "" {
		return fmt.Sprintf("not allowed to %s", e.Action)
	}
	return fmt.Sprintf("not allowed to %s: %s", e.Action, e.Reason)
}

func Forbidden(action, reason string) error {
	return ForbiddenError{Action: action, Reason: reason}
}

// Capabilities by role. Ownership checks are done by the engine on top of these.
const (
	CapCreateTask    = "task.create"
	CapSubmitBid     = "bid.submit"
	CapAdminister    = "admin"
	CapPublishNews   = "news.publish"
	CapGrantSubs     = "subscription.grant"
	CapCancelTask    = "task.cancel"
	CapDeleteTask    = "task.delete"
	CapHoldContracts = "subscription.hold"
)

var roleCapabilities = map[string][]string{
	domain.RoleCustomer: {CapCreateTask},
	domain.RoleExecutor: {CapSubmitBid, CapHoldContracts},
	domain.RoleAdmin:    {CapCreateTask, CapAdminister, CapPublishNews, CapGrantSubs, CapCancelTask, CapDeleteTask},
}

// Can reports whether role grants capability.
func Can(role, capability string) bool {
	for _, c := range roleCapabilities[role] {
		if c == capability {
			return true
		}
	}
	return false
}

// Require returns a ForbiddenError when role lacks capability.
func Require(role, capability string) error {
	if Can(role, capability) {
		return nil
	}
	return ForbiddenError{Action: capability, Reason: fmt.Sprintf("role %q", role)}
}

// Capabilities lists what a role may do.
func Capabilities(role string) []string {
	return append([]string(nil), roleCapabilities[role]...)
}

// ValidRole reports whether role is known. Only customer and executor can self-register.
func ValidRole(role string) bool {
	_, ok := roleCapabilities[role]
	return ok
}

func SelfRegistrable(role string) bool {
	return role == domain.RoleCustomer || role == domain.RoleExecutor
}

var ErrInvalidCredentials = errors.New("invalid credentials")

// HashPassword hashes a plaintext password with bcrypt.
func HashPassword(password string) (string, error) {
	if len(strings.TrimSpace(password)) < 8 {
		return "", errors.New("password must be at least 8 characters")
	}
	b, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// CheckPassword compares a bcrypt hash with a plaintext password.
func CheckPassword(hash, password string) error {
	if err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)); err != nil {
		return ErrInvalidCredentials
	}
	return nil
}
