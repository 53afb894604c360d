package users

import (
	"context"
	"errors"
	"time"

	"github.com/agaseke/agaseke-backend/pkg/db/models"
	pkgerrors "github.com/agaseke/agaseke-backend/pkg/errors"
	"github.com/agaseke/agaseke-backend/pkg/security"
	"gorm.io/gorm"
)

const defaultVerifyTimeout = 5 * time.Second

type lookupRepository interface {
	Resolve(ctx context.Context, lookup Lookup) (*models.User, error)
}

// Verifier checks identity and secret pairs against the credential store.
type Verifier struct {
	repo    lookupRepository
	timeout time.Duration
}

// NewVerifier builds a Verifier; a non-positive timeout falls back to 5s.
func NewVerifier(repo lookupRepository, timeout time.Duration) (*Verifier, error) {
	if repo == nil {
		return nil, errors.New("users repository required")
	}
	if timeout <= 0 {
		timeout = defaultVerifyTimeout
	}
	return &Verifier{repo: repo, timeout: timeout}, nil
}

// Verify resolves identity and checks secret. Unknown, inactive and wrong
// secret all surface as AUTH_FAILURE; storage trouble is DEPENDENCY_ERROR.
func (v *Verifier) Verify(ctx context.Context, identity, secret string) (*models.User, error) {
	lookup := ParseLookup(identity)
	if lookup.IsZero() || secret == "" {
		return nil, pkgerrors.New(pkgerrors.CodeAuthFailure, "invalid credentials")
	}

	ctx, cancel := context.WithTimeout(ctx, v.timeout)
	defer cancel()

	user, err := v.repo.Resolve(ctx, lookup)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeAuthFailure, "invalid credentials")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "credential store unavailable")
	}

	if !user.IsActive {
		return nil, pkgerrors.New(pkgerrors.CodeAuthFailure, "invalid credentials")
	}

	ok, err := security.VerifyPassword(secret, user.PasswordHash)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "verify password")
	}
	if !ok {
		return nil, pkgerrors.New(pkgerrors.CodeAuthFailure, "invalid credentials")
	}
	return user, nil
}
