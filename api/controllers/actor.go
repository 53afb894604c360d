package controllers

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/agaseke/agaseke-backend/api/middleware"
	"github.com/agaseke/agaseke-backend/api/validators"
	"github.com/agaseke/agaseke-backend/pkg/enums"
	pkgerrors "github.com/agaseke/agaseke-backend/pkg/errors"
)

type actor struct {
	ID   uuid.UUID
	Role enums.Role
}

func actorFromRequest(r *http.Request) (actor, error) {
	id, err := uuid.Parse(middleware.UserIDFromContext(r.Context()))
	if err != nil {
		return actor{}, pkgerrors.New(pkgerrors.CodeUnauthorized, "invalid user id")
	}
	role, err := enums.ParseRole(middleware.RoleFromContext(r.Context()))
	if err != nil {
		return actor{}, pkgerrors.New(pkgerrors.CodeUnauthorized, "invalid actor role")
	}
	return actor{ID: id, Role: role}, nil
}

func orderIDParam(r *http.Request) (string, error) {
	return validators.OrderRef(chi.URLParam(r, "orderId"))
}
