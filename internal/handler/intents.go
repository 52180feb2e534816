package handler

import (
	"net/http"
	"strconv"

	"go.uber.org/zap"

	"github.com/mmeshcher/comproum/internal/matching"
	"github.com/mmeshcher/comproum/internal/model"
	"github.com/mmeshcher/comproum/internal/service"
)

type intentRequest struct {
	Type        string  `json:"type"`
	Category    string  `json:"category"`
	ProductName string  `json:"product_name"`
	Description string  `json:"description"`
	Budget      float64 `json:"budget"`
	Condition   string  `json:"condition"`
}

// CreateIntent публикует интерес покупателя.
func (h *Handler) CreateIntent(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUser(w, r)
	if !ok {
		return
	}

	var req intentRequest
	if err := decodeJSON(r, &req); err != nil {
		badRequest(w)
		return
	}
	budget, err := model.ToCents(req.Budget)
	if err != nil {
		h.writeError(w, "create intent error", err)
		return
	}

	intent, err := h.service.CreateIntent(r.Context(), userID, service.IntentInput{
		Type:        req.Type,
		Category:    req.Category,
		ProductName: req.ProductName,
		Description: req.Description,
		Budget:      budget,
		Condition:   req.Condition,
	})
	if err != nil {
		h.writeError(w, "create intent error", err, zap.String("userID", userID.String()))
		return
	}

	writeJSON(w, http.StatusCreated, intentFromModel(intent))
}

// ListIntents возвращает интересы текущего покупателя.
func (h *Handler) ListIntents(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUser(w, r)
	if !ok {
		return
	}

	intents, err := h.service.ListMyIntents(r.Context(), userID)
	if err != nil {
		h.writeError(w, "list intents error", err, zap.String("userID", userID.String()))
		return
	}

	if len(intents) == 0 {
		w.WriteHeader(http.StatusNoContent)
		return
	}

	writeJSON(w, http.StatusOK, intentsFromModel(intents))
}

// GetIntent возвращает интерес по идентификатору.
func (h *Handler) GetIntent(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUser(w, r)
	if !ok {
		return
	}
	intentID, ok := pathID(r)
	if !ok {
		badRequest(w)
		return
	}

	intent, err := h.service.GetIntent(r.Context(), userID, intentID)
	if err != nil {
		h.writeError(w, "get intent error", err, zap.String("intentID", intentID.String()))
		return
	}

	writeJSON(w, http.StatusOK, intentFromModel(intent))
}

// CloseIntent закрывает интерес по запросу владельца.
func (h *Handler) CloseIntent(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUser(w, r)
	if !ok {
		return
	}
	intentID, ok := pathID(r)
	if !ok {
		badRequest(w)
		return
	}

	intent, err := h.service.CloseIntent(r.Context(), userID, intentID)
	if err != nil {
		h.writeError(w, "close intent error", err, zap.String("intentID", intentID.String()))
		return
	}

	writeJSON(w, http.StatusOK, intentFromModel(intent))
}

// filterFromQuery собирает фильтр возможностей из параметров запроса.
func filterFromQuery(r *http.Request) matching.Filter {
	q := r.URL.Query()
	return matching.Filter{
		Query:     q.Get("q"),
		Type:      q.Get("type"),
		Condition: q.Get("condition"),
		MinBudget: matching.ParseBound(q.Get("min")),
		MaxBudget: matching.ParseBound(q.Get("max")),
		Sort:      matching.ParseSortKey(q.Get("sort")),
	}
}

// Opportunities возвращает открытые интересы, доступные текущему поставщику.
func (h *Handler) Opportunities(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUser(w, r)
	if !ok {
		return
	}

	intents, err := h.service.Opportunities(r.Context(), userID, filterFromQuery(r))
	if err != nil {
		h.writeError(w, "list opportunities error", err, zap.String("userID", userID.String()))
		return
	}

	writeJSON(w, http.StatusOK, intentsFromModel(intents))
}

// ListIntentOffers возвращает предложения по интересу его владельцу.
func (h *Handler) ListIntentOffers(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUser(w, r)
	if !ok {
		return
	}
	intentID, ok := pathID(r)
	if !ok {
		badRequest(w)
		return
	}

	includeRejected, _ := strconv.ParseBool(r.URL.Query().Get("include_rejected"))

	offers, err := h.service.ListOffersByIntent(r.Context(), userID, intentID, includeRejected)
	if err != nil {
		h.writeError(w, "list intent offers error", err, zap.String("intentID", intentID.String()))
		return
	}

	writeJSON(w, http.StatusOK, offersFromModel(offers))
}
