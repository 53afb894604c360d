package users

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/agaseke/agaseke-backend/pkg/db/models"
	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// ErrInvalidLookup is returned for a zero Lookup.
var ErrInvalidLookup = errors.New("invalid user lookup")

// Repository is the credential store's view of the users table.
type Repository struct {
	db *gorm.DB
}

// NewRepository constructs a users repo bound to the provided GORM DB.
func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

// Create inserts a new user and returns the persisted model.
func (r *Repository) Create(ctx context.Context, dto CreateUserDTO) (*models.User, error) {
	user := dto.ToModel()
	if err := r.db.WithContext(ctx).Create(user).Error; err != nil {
		return nil, err
	}
	return user, nil
}

// FindByID loads a user by their UUID.
func (r *Repository) FindByID(ctx context.Context, id uuid.UUID) (*models.User, error) {
	var user models.User
	if err := r.db.WithContext(ctx).First(&user, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &user, nil
}

// FindByHandle resolves a username or, case-insensitively, an email in one
// query. When a username and another account's email collide, the username
// wins.
func (r *Repository) FindByHandle(ctx context.Context, handle string) (*models.User, error) {
	handle = strings.TrimSpace(handle)
	var user models.User
	err := r.db.WithContext(ctx).
		Where("username = ? OR LOWER(email) = ?", handle, strings.ToLower(handle)).
		Order(clause.OrderBy{Expression: clause.Expr{SQL: "CASE WHEN username = ? THEN 0 ELSE 1 END", Vars: []any{handle}}}).
		Take(&user).Error
	if err != nil {
		return nil, err
	}
	return &user, nil
}

// Resolve loads the user a Lookup refers to. Unknown users yield gorm.ErrRecordNotFound.
func (r *Repository) Resolve(ctx context.Context, lookup Lookup) (*models.User, error) {
	if lookup.IsZero() {
		return nil, ErrInvalidLookup
	}
	switch lookup.kind {
	case lookupByID:
		return r.FindByID(ctx, lookup.id)
	default:
		return r.FindByHandle(ctx, lookup.handle)
	}
}

// UpdateLastLogin stamps a successful two-phase login. Unknown ids are a
// gorm.ErrRecordNotFound.
func (r *Repository) UpdateLastLogin(ctx context.Context, id uuid.UUID, at time.Time) error {
	res := r.db.WithContext(ctx).Model(&models.User{}).Where("id = ?", id).UpdateColumn("last_login_at", at.UTC())
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}
