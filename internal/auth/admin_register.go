package auth

import (
	"context"

	"github.com/agaseke/agaseke-backend/internal/users"
	"github.com/agaseke/agaseke-backend/pkg/config"
	"github.com/agaseke/agaseke-backend/pkg/enums"
	pkgerrors "github.com/agaseke/agaseke-backend/pkg/errors"
	"gorm.io/gorm"
)

// AdminRegisterService lets administrators create agent and administrator accounts.
type AdminRegisterService interface {
	Register(ctx context.Context, req AdminRegisterRequest) (*users.UserDTO, error)
}

// AdminRegisterServiceParams names the dependencies for the admin register flow.
type AdminRegisterServiceParams struct {
	DB             txRunner
	PasswordConfig config.PasswordConfig
	NewUserRepo    func(tx *gorm.DB) userCreator
}

type adminRegisterService struct {
	db          txRunner
	passwordCfg config.PasswordConfig
	newRepo     func(tx *gorm.DB) userCreator
}

// NewAdminRegisterService builds the operator onboarding service.
func NewAdminRegisterService(params AdminRegisterServiceParams) (AdminRegisterService, error) {
	if params.DB == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "database client required")
	}
	newRepo := params.NewUserRepo
	if newRepo == nil {
		newRepo = defaultUserRepo
	}
	return &adminRegisterService{
		db:          params.DB,
		passwordCfg: params.PasswordConfig,
		newRepo:     newRepo,
	}, nil
}

func (s *adminRegisterService) Register(ctx context.Context, req AdminRegisterRequest) (*users.UserDTO, error) {
	if req.Role != enums.RoleAgent && req.Role != enums.RoleAdmin {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "role must be agent or administrator")
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
