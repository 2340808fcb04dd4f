package controllers

import (
	"net/http"
	"strings"

	"github.com/edgeup/edgeup-backend/api/responses"
	"github.com/edgeup/edgeup-backend/api/validators"
	"github.com/edgeup/edgeup-backend/internal/negotiations"
	pkgerrors "github.com/edgeup/edgeup-backend/pkg/errors"
	"github.com/edgeup/edgeup-backend/pkg/logger"
	"github.com/google/uuid"
)

type createNegotiationRequest struct {
	ProductID         uuid.UUID `json:"productId" validate:"required"`
	OfferedPriceCents int       `json:"offeredPriceCents" validate:"required,gt=0"`
	Quantity          int       `json:"quantity" validate:"gte=0"`
}

func NegotiationCreate(svc negotiations.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "negotiations service unavailable"))
			return
		}

		userID, err := currentUserID(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var req createNegotiationRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		negotiation, err := svc.Create(r.Context(), userID, negotiations.CreateNegotiationInput{
			ProductID:         req.ProductID,
			OfferedPriceCents: req.OfferedPriceCents,
			Quantity:          req.Quantity,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, negotiation)
	}
}

func NegotiationList(svc negotiations.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "negotiations service unavailable"))
			return
		}

		userID, err := currentUserID(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		side := negotiations.Side(strings.TrimSpace(r.URL.Query().Get("side")))
		switch side {
		case negotiations.SideAll, negotiations.SideBuyer, negotiations.SideSeller:
		default:
			responses.WriteError(r.Context(), logg, w,
				pkgerrors.New(pkgerrors.CodeValidation, "side must be buyer or seller"))
			return
		}

		limit, err := validators.ParseQueryInt(r, "limit", 0, 0, 100)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		result, err := svc.List(r.Context(), negotiations.ListParams{
			UserID: userID,
			Side:   side,
			Limit:  limit,
			Cursor: r.URL.Query().Get("cursor"),
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, result)
	}
}

// NegotiationLookup resolves a single negotiation by id or by the caller's
// latest offer on a product. A missing latest offer is a null body, not a 404.
func NegotiationLookup(svc negotiations.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "negotiations service unavailable"))
			return
		}

		userID, err := currentUserID(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		negotiationID, err := validators.ParseQueryUUID(r, "negotiationId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		productID, err := validators.ParseQueryUUID(r, "productId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		switch {
		case negotiationID != uuid.Nil:
			negotiation, err := svc.GetByID(r.Context(), userID, negotiationID)
			if err != nil {
				responses.WriteError(r.Context(), logg, w, err)
				return
			}
			responses.WriteSuccess(w, negotiation)
		case productID != uuid.Nil:
			negotiation, err := svc.LatestForProduct(r.Context(), userID, productID)
			if err != nil {
				responses.WriteError(r.Context(), logg, w, err)
				return
			}
			responses.WriteSuccess(w, negotiation)
		default:
			responses.WriteError(r.Context(), logg, w,
				pkgerrors.New(pkgerrors.CodeValidation, "negotiationId or productId is required"))
		}
	}
}

func NegotiationAccept(svc negotiations.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "negotiations service unavailable"))
			return
		}

		userID, err := currentUserID(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		negotiationID, err := pathUUID(r, "negotiationId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		negotiation, err := svc.Accept(r.Context(), userID, negotiationID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, negotiation)
	}
}

func NegotiationDecline(svc negotiations.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "negotiations service unavailable"))
			return
		}

		userID, err := currentUserID(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		negotiationID, err := pathUUID(r, "negotiationId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		negotiation, err := svc.Decline(r.Context(), userID, negotiationID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, negotiation)
	}
}
