package domain

import (
	"time"

	"github.com/creatorhub/backend/pkg/money"
	"github.com/google/uuid"
)

// Roles carried in the identity token.
const (
	RoleUser  = "user"
	RoleAdmin = "admin"
)

// Identity is the verified caller of an engine operation. It is built from a
// validated token and passed explicitly into every call.
type Identity struct {
	UserID string
	Role   string
}

// IsZero reports whether no authenticated user is attached.
func (i Identity) IsZero() bool { return i.UserID == "" }

// IsAdmin reports whether the identity carries the admin role.
func (i Identity) IsAdmin() bool { return i.Role == RoleAdmin }

// JWTClaims represents the JWT payload.
type JWTClaims struct {
	Sub  string `json:"sub"`
	Role string `json:"role"`
}

// User represents a registered user and the profile fields this service owns.
type User struct {
	ID          string    `json:"id"`
	Username    string    `json:"username"`
	DisplayName string    `json:"displayName"`
	Bio         string    `json:"bio"`
	Role        string    `json:"role"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

// CreateUserRequest is the validated input for creating a user (admin only).
type CreateUserRequest struct {
	Username       string       `json:"username" validate:"required,min=1,max=50"`
	DisplayName    string       `json:"displayName" validate:"required,max=100"`
	Role           string       `json:"role" validate:"omitempty,oneof=user admin"`
	InitialBalance money.Amount `json:"initialBalance" validate:"min=0"`
}

// ProfileResponse is a user profile with the creator's tiers and wallet.
type ProfileResponse struct {
	User
	Tiers   []*Tier       `json:"tiers"`
	Balance *money.Amount `json:"balance,omitempty"`
}

// NewUserID generates a new UUID for a user.
func NewUserID() string {
	return uuid.New().String()
}
