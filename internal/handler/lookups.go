package handler

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/mmeshcher/comproum/internal/address"
	"github.com/mmeshcher/comproum/internal/advisory"
)

// LookupAddress возвращает адрес по почтовому индексу.
func (h *Handler) LookupAddress(w http.ResponseWriter, r *http.Request) {
	if h.addresses == nil {
		http.Error(w, http.StatusText(http.StatusServiceUnavailable), http.StatusServiceUnavailable)
		return
	}

	postalCode := chi.URLParam(r, "postalCode")
	a, err := h.addresses.Lookup(r.Context(), postalCode)
	if err != nil {
		var rateErr *address.RateLimitError
		switch {
		case errors.As(err, &rateErr):
			if rateErr.RetryAfter > 0 {
				w.Header().Set("Retry-After", strconv.Itoa(int(rateErr.RetryAfter.Seconds())))
			}
			http.Error(w, http.StatusText(http.StatusTooManyRequests), http.StatusTooManyRequests)
		case errors.Is(err, address.ErrInvalidPostalCode), errors.Is(err, address.ErrNotFound):
			h.writeError(w, "address lookup error", err)
		default:
			h.logger.Warn("address lookup failed", zap.String("postalCode", postalCode), zap.Error(err))
			http.Error(w, http.StatusText(http.StatusBadGateway), http.StatusBadGateway)
		}
		return
	}

	writeJSON(w, http.StatusOK, addressFromModel(*a))
}

// Advise возвращает оценку рыночной цены товара.
func (h *Handler) Advise(w http.ResponseWriter, r *http.Request) {
	if h.advisor == nil || !h.advisor.Enabled() {
		http.Error(w, http.StatusText(http.StatusServiceUnavailable), http.StatusServiceUnavailable)
		return
	}

	product := strings.TrimSpace(r.URL.Query().Get("product"))
	if product == "" {
		badRequest(w)
		return
	}

	insight, err := h.advisor.Estimate(r.Context(), product)
	if err != nil {
		if errors.Is(err, advisory.ErrNoInsight) {
			h.writeError(w, "advisory error", err)
			return
		}
		h.logger.Warn("advisory request failed", zap.String("product", product), zap.Error(err))
		http.Error(w, http.StatusText(http.StatusBadGateway), http.StatusBadGateway)
		return
	}

	writeJSON(w, http.StatusOK, insightFromModel(insight))
}
