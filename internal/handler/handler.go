// Package handler содержит HTTP-обработчики API сервиса Comproum.
package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gofrs/uuid/v5"
	"go.uber.org/zap"

	"github.com/mmeshcher/comproum/internal/activity"
	"github.com/mmeshcher/comproum/internal/address"
	"github.com/mmeshcher/comproum/internal/advisory"
	"github.com/mmeshcher/comproum/internal/feed"
	"github.com/mmeshcher/comproum/internal/matching"
	"github.com/mmeshcher/comproum/internal/middleware"
	"github.com/mmeshcher/comproum/internal/model"
	"github.com/mmeshcher/comproum/internal/negotiation"
	"github.com/mmeshcher/comproum/internal/repository"
	"github.com/mmeshcher/comproum/internal/service"
)

// Service определяет контракт бизнес-логики, используемой HTTP-обработчиками.
type Service interface {
	Register(ctx context.Context, in service.RegisterInput) (*model.User, error)
	Authenticate(ctx context.Context, username, password string) (*model.User, error)
	GetUser(ctx context.Context, id uuid.UUID) (*model.User, error)
	UpdateProfile(ctx context.Context, userID uuid.UUID, in service.ProfileInput) (*model.User, error)

	CreateIntent(ctx context.Context, buyerID uuid.UUID, in service.IntentInput) (*model.Intent, error)
	ListMyIntents(ctx context.Context, buyerID uuid.UUID) ([]model.Intent, error)
	GetIntent(ctx context.Context, userID, intentID uuid.UUID) (*model.Intent, error)
	CloseIntent(ctx context.Context, buyerID, intentID uuid.UUID) (*model.Intent, error)
	Opportunities(ctx context.Context, supplierID uuid.UUID, f matching.Filter) ([]model.Intent, error)
	OpportunityTopics(ctx context.Context, supplierID uuid.UUID) ([]string, error)

	ProposeOffer(ctx context.Context, supplierID, intentID uuid.UUID, in service.ProposeInput) (*model.Offer, error)
	Accept(ctx context.Context, buyerID, offerID uuid.UUID, in service.AcceptInput) (*model.Checkout, error)
	Reject(ctx context.Context, buyerID, offerID uuid.UUID) (*model.Offer, error)
	Counter(ctx context.Context, buyerID, offerID uuid.UUID, counterPrice int64, feedback string) (*model.Offer, error)
	Repropose(ctx context.Context, supplierID, offerID uuid.UUID, in service.ReproposeInput) (*model.Offer, error)
	ScheduleFollowUp(ctx context.Context, supplierID, offerID uuid.UUID, hours int) (*model.Offer, error)
	ListOffersByIntent(ctx context.Context, buyerID, intentID uuid.UUID, includeRejected bool) ([]model.Offer, error)
	ListMyOffers(ctx context.Context, supplierID uuid.UUID) ([]model.Offer, error)
	SupplierStats(ctx context.Context, supplierID uuid.UUID) (*model.SupplierStats, error)
	OfferHistory(ctx context.Context, userID, offerID uuid.UUID) ([]activity.Entry, error)

	Subscribe(topics ...string) (<-chan feed.Event, func())
}

// AddressLookup ищет адрес по почтовому индексу.
type AddressLookup interface {
	Lookup(ctx context.Context, postalCode string) (*model.Address, error)
}

// PriceAdvisor оценивает рыночную цену товара.
type PriceAdvisor interface {
	Enabled() bool
	Estimate(ctx context.Context, product string) (*advisory.Insight, error)
}

const defaultRefreshInterval = 5 * time.Second

// Handler реализует HTTP-обработчики API сервиса Comproum.
type Handler struct {
	service        Service
	logger         *zap.Logger
	authMiddleware *middleware.AuthMiddleware
	addresses      AddressLookup
	advisor        PriceAdvisor
	refresh        time.Duration
}

// NewHandler создаёт новый экземпляр обработчика HTTP-запросов.
// addresses и advisor могут быть nil: соответствующие маршруты отвечают 503.
func NewHandler(s Service, logger *zap.Logger, auth *middleware.AuthMiddleware,
	addresses AddressLookup, advisor PriceAdvisor, refresh time.Duration) *Handler {
	if refresh <= 0 {
		refresh = defaultRefreshInterval
	}
	return &Handler{
		service:        s,
		logger:         logger,
		authMiddleware: auth,
		addresses:      addresses,
		advisor:        advisor,
		refresh:        refresh,
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func decodeJSON(r *http.Request, v any) error {
	defer r.Body.Close()
	return json.NewDecoder(r.Body).Decode(v)
}

func badRequest(w http.ResponseWriter) {
	http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
}

func pathID(r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.FromString(chi.URLParam(r, "id"))
	return id, err == nil
}

func currentUser(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	userID, ok := middleware.GetUserIDFromContext(r.Context())
	if !ok {
		http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
	}
	return userID, ok
}

// statusFor сопоставляет ошибку слоя сервиса с кодом ответа.
func statusFor(err error) int {
	switch {
	case errors.Is(err, service.ErrValidation),
		errors.Is(err, model.ErrAmountOutOfRange),
		errors.Is(err, address.ErrInvalidPostalCode):
		return http.StatusUnprocessableEntity
	case errors.Is(err, service.ErrInvalidCredentials):
		return http.StatusUnauthorized
	case errors.Is(err, service.ErrForbidden):
		return http.StatusForbidden
	case errors.Is(err, repository.ErrNotFound),
		errors.Is(err, address.ErrNotFound),
		errors.Is(err, advisory.ErrNoInsight):
		return http.StatusNotFound
	case errors.Is(err, repository.ErrUserExists),
		errors.Is(err, repository.ErrDocumentExists),
		errors.Is(err, repository.ErrVersionConflict),
		errors.Is(err, repository.ErrIntentClosed),
		errors.Is(err, negotiation.ErrIllegalTransition):
		return http.StatusConflict
	}
	return http.StatusInternalServerError
}

// writeError отвечает кодом, соответствующим ошибке. Внутренние ошибки
// журналируются, клиенту уходит только текст статуса.
func (h *Handler) writeError(w http.ResponseWriter, msg string, err error, fields ...zap.Field) {
	status := statusFor(err)
	if status == http.StatusInternalServerError {
		h.logger.Error(msg, append(fields, zap.Error(err))...)
		http.Error(w, http.StatusText(status), status)
		return
	}
	if status == http.StatusUnprocessableEntity || status == http.StatusConflict {
		http.Error(w, err.Error(), status)
		return
	}
	http.Error(w, http.StatusText(status), status)
}
