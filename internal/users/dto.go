package users

import (
	"strings"
	"time"

	"github.com/agaseke/agaseke-backend/pkg/db/models"
	"github.com/agaseke/agaseke-backend/pkg/enums"
	"github.com/google/uuid"
)

// visiblePhoneDigits is how much of a phone number the API ever returns.
const visiblePhoneDigits = 3

// UserDTO is the account as the API shows it: no credential material and
// the phone number masked down to its last digits.
type UserDTO struct {
	ID          uuid.UUID  `json:"id"`
	Username    string     `json:"username"`
	Email       string     `json:"email"`
	DisplayName string     `json:"display_name"`
	Phone       string     `json:"phone,omitempty"`
	Role        enums.Role `json:"role"`
	IsActive    bool       `json:"is_active"`
	LastLoginAt *time.Time `json:"last_login_at,omitempty"`
}

// CreateUserDTO is what the repository needs to insert an account. The
// password must already be hashed.
type CreateUserDTO struct {
	Username     string
	Email        string
	PasswordHash string
	FirstName    string
	LastName     string
	Phone        *string
	Role         enums.Role
	// IsActive defaults to true when nil.
	IsActive *bool
}

func FromModel(u *models.User) *UserDTO {
	if u == nil {
		return nil
	}
	dto := &UserDTO{
		ID:          u.ID,
		Username:    u.Username,
		Email:       u.Email,
		DisplayName: strings.TrimSpace(u.FirstName + " " + u.LastName),
		Role:        u.Role,
		IsActive:    u.IsActive,
		LastLoginAt: u.LastLoginAt,
	}
	if dto.DisplayName == "" {
		dto.DisplayName = u.Username
	}
	if u.Phone != nil {
		dto.Phone = MaskPhone(*u.Phone)
	}
	return dto
}

// MaskPhone keeps the leading + and the last few digits of a number.
func MaskPhone(phone string) string {
	phone = strings.TrimSpace(phone)
	if len(phone) <= visiblePhoneDigits {
		return phone
	}
	cut := len(phone) - visiblePhoneDigits
	prefix := ""
	if strings.HasPrefix(phone, "+") {
		prefix = "+"
	}
	return prefix + strings.Repeat("*", cut-len(prefix)) + phone[cut:]
}

func (c CreateUserDTO) ToModel() *models.User {
	user := &models.User{
		ID:           uuid.New(),
		Username:     c.Username,
		Email:        c.Email,
		PasswordHash: c.PasswordHash,
		FirstName:    c.FirstName,
		LastName:     c.LastName,
		Phone:        c.Phone,
		Role:         c.Role,
		IsActive:     true,
	}
	if c.IsActive != nil {
		user.IsActive = *c.IsActive
	}
	return user
}
