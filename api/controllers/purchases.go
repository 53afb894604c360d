package controllers

import (
	"context"
	"net/http"
	"strings"

	"github.com/agaseke/agaseke-backend/api/responses"
	"github.com/agaseke/agaseke-backend/internal/purchases"
	"github.com/agaseke/agaseke-backend/pkg/db/models"
	"github.com/agaseke/agaseke-backend/pkg/enums"
	pkgerrors "github.com/agaseke/agaseke-backend/pkg/errors"
	"github.com/agaseke/agaseke-backend/pkg/logger"
	"github.com/google/uuid"
)

type purchaseLifecycle interface {
	Get(ctx context.Context, orderID string) (*models.Purchase, error)
	ListByBuyer(ctx context.Context, buyerID uuid.UUID, statuses ...enums.PurchaseStatus) ([]models.Purchase, error)
	Transition(ctx context.Context, input purchases.TransitionInput) (*purchases.TransitionResult, error)
}

type qrEncoder interface {
	Encode(purchaseRefs []string, buyerRef string) (string, error)
}

// PurchaseQR is the payload a buyer shows to the agent at handover.
type PurchaseQR struct {
	Payload  string   `json:"payload"`
	OrderIDs []string `json:"order_ids"`
}

// BuyerPurchases lists the caller's purchases, optionally filtered by ?status=a,b.
func BuyerPurchases(svc purchaseLifecycle, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "purchase service unavailable"))
			return
		}
		caller, err := actorFromRequest(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var statuses []enums.PurchaseStatus
		if raw := strings.TrimSpace(r.URL.Query().Get("status")); raw != "" {
			for _, part := range strings.Split(raw, ",") {
				status, err := enums.ParsePurchaseStatus(strings.TrimSpace(part))
				if err != nil {
					responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid status filter").WithDetails(map[string]any{"field": "status"}))
					return
				}
				statuses = append(statuses, status)
			}
		}

		rows, err := svc.ListByBuyer(r.Context(), caller.ID, statuses...)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, purchases.FromModels(rows))
	}
}

// BuyerPurchaseQR signs a pickup payload over the caller's purchases awaiting handover.
func BuyerPurchaseQR(svc purchaseLifecycle, codec qrEncoder, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil || codec == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "purchase service unavailable"))
			return
		}
		caller, err := actorFromRequest(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		rows, err := svc.ListByBuyer(r.Context(), caller.ID,
			enums.PurchaseStatusAwaitingPickup,
			enums.PurchaseStatusAwaitingDelivery,
			enums.PurchaseStatusOutForDelivery,
		)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		if len(rows) == 0 {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeNotFound, "no purchases awaiting handover"))
			return
		}

		refs := make([]string, 0, len(rows))
		for _, row := range rows {
			refs = append(refs, row.OrderID)
		}
		payload, err := codec.Encode(refs, caller.ID.String())
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, PurchaseQR{Payload: payload, OrderIDs: refs})
	}
}

// VendorPurchaseReady releases a pending purchase for pickup or delivery,
// depending on how it will reach the buyer.
func VendorPurchaseReady(svc purchaseLifecycle, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "purchase service unavailable"))
			return
		}
		caller, err := actorFromRequest(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		orderID, err := orderIDParam(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		current, err := svc.Get(r.Context(), orderID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		applyTransition(w, r, svc, logg, purchases.TransitionInput{
			OrderID:   orderID,
			Event:     purchases.ReadyEvent(current.DeliveryMethod),
			ActorID:   caller.ID,
			ActorRole: caller.Role,
		})
	}
}

// PurchaseCancel cancels a purchase on behalf of its buyer or an administrator.
func PurchaseCancel(svc purchaseLifecycle, logg *logger.Logger) http.HandlerFunc {
	return purchaseEvent(svc, enums.PurchaseEventCancel, logg)
}

// AgentPurchaseDispatch marks a delivery purchase as out for delivery.
func AgentPurchaseDispatch(svc purchaseLifecycle, logg *logger.Logger) http.HandlerFunc {
	return purchaseEvent(svc, enums.PurchaseEventDispatch, logg)
}

func purchaseEvent(svc purchaseLifecycle, event enums.PurchaseEvent, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "purchase service unavailable"))
			return
		}
		caller, err := actorFromRequest(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		orderID, err := orderIDParam(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		applyTransition(w, r, svc, logg, purchases.TransitionInput{
			OrderID:   orderID,
			Event:     event,
			ActorID:   caller.ID,
			ActorRole: caller.Role,
		})
	}
}

func applyTransition(w http.ResponseWriter, r *http.Request, svc purchaseLifecycle, logg *logger.Logger, input purchases.TransitionInput) {
	result, err := svc.Transition(r.Context(), input)
	if err != nil {
		responses.WriteError(r.Context(), logg, w, err)
		return
	}
	if logg != nil {
		ctx := logg.WithFields(logg.WithOrderID(r.Context(), input.OrderID), map[string]any{
			"event": string(input.Event),
			"from":  string(result.From),
			"to":    string(result.Purchase.Status),
		})
		logg.Info(ctx, "purchase.transitioned")
	}
	responses.WriteSuccess(w, purchases.FromModel(result.Purchase))
}
