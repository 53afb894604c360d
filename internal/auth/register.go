package auth

import (
	"context"
	"strings"

	"github.com/agaseke/agaseke-backend/internal/users"
	"github.com/agaseke/agaseke-backend/pkg/config"
	"github.com/agaseke/agaseke-backend/pkg/db"
	"github.com/agaseke/agaseke-backend/pkg/db/models"
	"github.com/agaseke/agaseke-backend/pkg/enums"
	pkgerrors "github.com/agaseke/agaseke-backend/pkg/errors"
	"github.com/agaseke/agaseke-backend/pkg/security"
	"gorm.io/gorm"
)

// RegisterService handles self-service signup for buyers and vendors.
type RegisterService interface {
	Register(ctx context.Context, req RegisterRequest) (*users.UserDTO, error)
}

type userCreator interface {
	Create(ctx context.Context, dto users.CreateUserDTO) (*models.User, error)
}

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

// RegisterServiceParams packages the dependencies for the registration flow.
type RegisterServiceParams struct {
	DB             txRunner
	PasswordConfig config.PasswordConfig
	// NewUserRepo binds a user repository to the registration transaction.
	NewUserRepo func(tx *gorm.DB) userCreator
}

type registerService struct {
	db          txRunner
	passwordCfg config.PasswordConfig
	newRepo     func(tx *gorm.DB) userCreator
}

// NewRegisterService builds a registration service with the provided dependencies.
func NewRegisterService(params RegisterServiceParams) (RegisterService, error) {
	if params.DB == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "database client required")
	}
	newRepo := params.NewUserRepo
	if newRepo == nil {
		newRepo = defaultUserRepo
	}
	return &registerService{
		db:          params.DB,
		passwordCfg: params.PasswordConfig,
		newRepo:     newRepo,
	}, nil
}

func defaultUserRepo(tx *gorm.DB) userCreator {
	return users.NewRepository(tx)
}

func (s *registerService) Register(ctx context.Context, req RegisterRequest) (*users.UserDTO, error) {
	if req.Role != enums.RoleBuyer && req.Role != enums.RoleVendor {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "role must be buyer or vendor")
	}
	return createUser(ctx, s.db, s.newRepo, s.passwordCfg, newUserInput{
		Username:  req.Username,
		Email:     req.Email,
		Password:  req.Password,
		FirstName: req.FirstName,
		LastName:  req.LastName,
		Phone:     req.Phone,
		Role:      req.Role,
	})
}

type newUserInput struct {
	Username  string
	Email     string
	Password  string
	FirstName string
	LastName  string
	Phone     *string
	Role      enums.Role
}

func createUser(ctx context.Context, runner txRunner, newRepo func(tx *gorm.DB) userCreator, passwordCfg config.PasswordConfig, in newUserInput) (*users.UserDTO, error) {
	username := strings.TrimSpace(in.Username)
	if username == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "username is required")
	}
	email := strings.ToLower(strings.TrimSpace(in.Email))
	if email == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "email is required")
	}
	if strings.TrimSpace(in.Password) == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "password is required")
	}
	var phone *string
	if in.Phone != nil {
		if trimmed := strings.TrimSpace(*in.Phone); trimmed != "" {
			phone = &trimmed
		}
	}

	passwordHash, err := security.HashPassword(in.Password, passwordCfg)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "hash password")
	}

	var created *users.UserDTO
	err = runner.WithTx(ctx, func(tx *gorm.DB) error {
		user, err := newRepo(tx).Create(ctx, users.CreateUserDTO{
			Username:     username,
			Email:        email,
			PasswordHash: passwordHash,
			FirstName:    strings.TrimSpace(in.FirstName),
			LastName:     strings.TrimSpace(in.LastName),
			Phone:        phone,
			Role:         in.Role,
		})
		if err != nil {
			if db.IsUniqueViolation(err, "") {
				return pkgerrors.New(pkgerrors.CodeConflict, "username or email already registered")
			}
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create user")
		}
		created = users.FromModel(user)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return created, nil
}
