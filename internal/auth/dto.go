package auth

import (
	"github.com/agaseke/agaseke-backend/internal/users"
	"github.com/agaseke/agaseke-backend/pkg/auth/session"
	"github.com/agaseke/agaseke-backend/pkg/enums"
)

// LoginRequest captures the credentials sent to the login endpoint. Identity
// is a username or email.
type LoginRequest struct {
	Identity string `json:"identity" validate:"required"`
	Secret   string `json:"secret" validate:"required"`
}

// LoginChallenge is returned after the credential check; the code itself is
// sent to the user's contact address.
type LoginChallenge struct {
	SessionID string `json:"session_id"`
	ExpiresIn int64  `json:"expires_in"`
}

// VerifyLoginRequest finishes the login with the delivered code.
type VerifyLoginRequest struct {
	SessionID string `json:"session_id" validate:"required"`
	Code      string `json:"code" validate:"required,numeric"`
}

// LoginResponse contains the user and the grant produced by a successful login.
type LoginResponse struct {
	User  *users.UserDTO `json:"user"`
	Grant *session.Grant `json:"access_grant"`
}

// RefreshRequest redeems a refresh credential.
type RefreshRequest struct {
	RefreshCredential string `json:"refresh_credential" validate:"required"`
}

// RefreshResponse carries the rotated grant.
type RefreshResponse struct {
	Grant *session.Grant `json:"access_grant"`
}

// RegisterRequest contains the payload for self-service buyer and vendor signup.
type RegisterRequest struct {
	Username  string     `json:"username" validate:"required,min=3,max=64,handle"`
	Email     string     `json:"email" validate:"required,email"`
	Password  string     `json:"password" validate:"required,min=8"`
	FirstName string     `json:"first_name" validate:"required"`
	LastName  string     `json:"last_name" validate:"required"`
	Phone     *string    `json:"phone,omitempty" validate:"omitempty,e164"`
	Role      enums.Role `json:"role" validate:"required,oneof=buyer vendor"`
}

// AdminRegisterRequest is used by administrators to onboard agents and other administrators.
type AdminRegisterRequest struct {
	Username  string     `json:"username" validate:"required,min=3,max=64,handle"`
	Email     string     `json:"email" validate:"required,email"`
	Password  string     `json:"password" validate:"required,min=8"`
	FirstName string     `json:"first_name" validate:"required"`
	LastName  string     `json:"last_name" validate:"required"`
	Phone     *string    `json:"phone,omitempty" validate:"omitempty,e164"`
	Role      enums.Role `json:"role" validate:"required,oneof=agent administrator"`
}
