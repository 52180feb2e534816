package handler

import (
	"errors"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/mmeshcher/comproum/internal/model"
	"github.com/mmeshcher/comproum/internal/service"
)

type proposeRequest struct {
	Price        float64  `json:"price"`
	Condition    string   `json:"condition"`
	Description  string   `json:"description"`
	Images       []string `json:"images"`
	PaymentTerms string   `json:"payment_terms"`
	ValidUntil   string   `json:"valid_until"`
}

func parseOptionalTime(s string) (time.Time, bool) {
	if s == "" {
		return time.Time{}, true
	}
	t, err := time.Parse(time.RFC3339, s)
	return t, err == nil
}

// ProposeOffer создаёт предложение текущего поставщика по интересу.
func (h *Handler) ProposeOffer(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUser(w, r)
	if !ok {
		return
	}
	intentID, ok := pathID(r)
	if !ok {
		badRequest(w)
		return
	}

	var req proposeRequest
	if err := decodeJSON(r, &req); err != nil {
		badRequest(w)
		return
	}
	validUntil, ok := parseOptionalTime(req.ValidUntil)
	if !ok {
		badRequest(w)
		return
	}
	price, err := model.ToCents(req.Price)
	if err != nil {
		h.writeError(w, "propose offer error", err)
		return
	}

	offer, err := h.service.ProposeOffer(r.Context(), userID, intentID, service.ProposeInput{
		Price:        price,
		Condition:    req.Condition,
		Description:  req.Description,
		Images:       req.Images,
		PaymentTerms: req.PaymentTerms,
		ValidUntil:   validUntil,
	})
	if err != nil {
		h.writeError(w, "propose offer error", err,
			zap.String("userID", userID.String()), zap.String("intentID", intentID.String()))
		return
	}

	writeJSON(w, http.StatusCreated, offerFromModel(offer))
}

// ListMyOffers возвращает предложения текущего поставщика.
func (h *Handler) ListMyOffers(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUser(w, r)
	if !ok {
		return
	}

	offers, err := h.service.ListMyOffers(r.Context(), userID)
	if err != nil {
		h.writeError(w, "list offers error", err, zap.String("userID", userID.String()))
		return
	}

	if len(offers) == 0 {
		w.WriteHeader(http.StatusNoContent)
		return
	}

	writeJSON(w, http.StatusOK, offersFromModel(offers))
}

// Stats возвращает сводку по предложениям текущего поставщика.
func (h *Handler) Stats(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUser(w, r)
	if !ok {
		return
	}

	stats, err := h.service.SupplierStats(r.Context(), userID)
	if err != nil {
		h.writeError(w, "supplier stats error", err, zap.String("userID", userID.String()))
		return
	}

	writeJSON(w, http.StatusOK, statsResponse{
		Total:           stats.Total,
		Pending:         stats.Pending,
		Accepted:        stats.Accepted,
		Rejected:        stats.Rejected,
		CounterOffered:  stats.CounterOffered,
		AcceptedRevenue: model.FromCents(stats.AcceptedRevenue),
	})
}

type acceptRequest struct {
	DeliveryAddress *addressDTO `json:"delivery_address"`
}

// Accept принимает предложение и возвращает данные для оформления.
// Тело запроса необязательно.
func (h *Handler) Accept(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUser(w, r)
	if !ok {
		return
	}
	offerID, ok := pathID(r)
	if !ok {
		badRequest(w)
		return
	}

	var req acceptRequest
	if err := decodeJSON(r, &req); err != nil && !errors.Is(err, io.EOF) {
		badRequest(w)
		return
	}

	var in service.AcceptInput
	if req.DeliveryAddress != nil {
		a := req.DeliveryAddress.toModel()
		in.DeliveryAddress = &a
	}

	checkout, err := h.service.Accept(r.Context(), userID, offerID, in)
	if err != nil {
		h.writeError(w, "accept offer error", err, zap.String("offerID", offerID.String()))
		return
	}

	writeJSON(w, http.StatusOK, checkoutResponse{
		Offer:               offerFromModel(&checkout.Offer),
		DeliveryAddress:     optionalAddress(checkout.DeliveryAddress),
		PaymentMethod:       optionalPayment(checkout.PaymentMethod),
		QuickPaymentEnabled: checkout.QuickPaymentEnabled,
	})
}

// Reject отклоняет предложение.
func (h *Handler) Reject(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUser(w, r)
	if !ok {
		return
	}
	offerID, ok := pathID(r)
	if !ok {
		badRequest(w)
		return
	}

	offer, err := h.service.Reject(r.Context(), userID, offerID)
	if err != nil {
		h.writeError(w, "reject offer error", err, zap.String("offerID", offerID.String()))
		return
	}

	writeJSON(w, http.StatusOK, offerFromModel(offer))
}

type counterRequest struct {
	CounterPrice float64 `json:"counter_price"`
	Feedback     string  `json:"feedback"`
}

// Counter отправляет поставщику встречную цену.
func (h *Handler) Counter(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUser(w, r)
	if !ok {
		return
	}
	offerID, ok := pathID(r)
	if !ok {
		badRequest(w)
		return
	}

	var req counterRequest
	if err := decodeJSON(r, &req); err != nil {
		badRequest(w)
		return
	}

	counterPrice, err := model.ToCents(req.CounterPrice)
	if err != nil {
		h.writeError(w, "counter offer error", err)
		return
	}

	offer, err := h.service.Counter(r.Context(), userID, offerID, counterPrice, req.Feedback)
	if err != nil {
		h.writeError(w, "counter offer error", err, zap.String("offerID", offerID.String()))
		return
	}

	writeJSON(w, http.StatusOK, offerFromModel(offer))
}

type reproposeRequest struct {
	Price        float64  `json:"price"`
	Description  string   `json:"description"`
	Images       []string `json:"images"`
	PaymentTerms string   `json:"payment_terms"`
	ValidUntil   string   `json:"valid_until"`
}

// Repropose обновляет условия предложения после встречной цены или отказа.
func (h *Handler) Repropose(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUser(w, r)
	if !ok {
		return
	}
	offerID, ok := pathID(r)
	if !ok {
		badRequest(w)
		return
	}

	var req reproposeRequest
	if err := decodeJSON(r, &req); err != nil {
		badRequest(w)
		return
	}
	validUntil, ok := parseOptionalTime(req.ValidUntil)
	if !ok {
		badRequest(w)
		return
	}
	price, err := model.ToCents(req.Price)
	if err != nil {
		h.writeError(w, "repropose offer error", err)
		return
	}

	offer, err := h.service.Repropose(r.Context(), userID, offerID, service.ReproposeInput{
		Price:        price,
		Description:  req.Description,
		Images:       req.Images,
		PaymentTerms: req.PaymentTerms,
		ValidUntil:   validUntil,
	})
	if err != nil {
		h.writeError(w, "repropose offer error", err, zap.String("offerID", offerID.String()))
		return
	}

	writeJSON(w, http.StatusOK, offerFromModel(offer))
}

type followUpRequest struct {
	Hours int `json:"hours"`
}

// FollowUp назначает напоминание поставщику.
func (h *Handler) FollowUp(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUser(w, r)
	if !ok {
		return
	}
	offerID, ok := pathID(r)
	if !ok {
		badRequest(w)
		return
	}

	var req followUpRequest
	if err := decodeJSON(r, &req); err != nil {
		badRequest(w)
		return
	}

	offer, err := h.service.ScheduleFollowUp(r.Context(), userID, offerID, req.Hours)
	if err != nil {
		h.writeError(w, "schedule follow-up error", err, zap.String("offerID", offerID.String()))
		return
	}

	writeJSON(w, http.StatusOK, offerFromModel(offer))
}

// History возвращает историю переговоров по предложению.
func (h *Handler) History(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUser(w, r)
	if !ok {
		return
	}
	offerID, ok := pathID(r)
	if !ok {
		badRequest(w)
		return
	}

	entries, err := h.service.OfferHistory(r.Context(), userID, offerID)
	if err != nil {
		h.writeError(w, "offer history error", err, zap.String("offerID", offerID.String()))
		return
	}

	writeJSON(w, http.StatusOK, historyFromModel(entries))
}
