package handler

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"go.uber.org/zap"

	"github.com/mmeshcher/comproum/internal/feed"
)

// stream отправляет клиенту снимки в формате Server-Sent Events.
// Снимок перечитывается при каждом событии брокера по topics и на каждом
// тике опроса. Поток завершается при закрытии соединения.
func (h *Handler) stream(w http.ResponseWriter, r *http.Request, event string, topics []string,
	load func(context.Context) (any, error)) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	ctx := r.Context()

	events, cancel := h.service.Subscribe(topics...)
	defer cancel()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	// Опрос кладёт в канал только последний снимок.
	snapshots := make(chan any, 1)
	go feed.Poll(ctx, h.refresh, load, func(v any) {
		select {
		case <-snapshots:
		default:
		}
		snapshots <- v
	})

	send := func(v any) bool {
		data, err := json.Marshal(v)
		if err != nil {
			h.logger.Error("encode stream snapshot error", zap.Error(err))
			return false
		}
		if _, err := fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event, data); err != nil {
			return false
		}
		flusher.Flush()
		return true
	}

	for {
		select {
		case <-ctx.Done():
			return
		case v := <-snapshots:
			if !send(v) {
				return
			}
		case _, open := <-events:
			if !open {
				return
			}
			v, err := load(ctx)
			if err != nil {
				continue
			}
			if !send(v) {
				return
			}
		}
	}
}

// StreamOpportunities транслирует ленту возможностей текущего поставщика.
func (h *Handler) StreamOpportunities(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUser(w, r)
	if !ok {
		return
	}

	topics, err := h.service.OpportunityTopics(r.Context(), userID)
	if err != nil {
		h.writeError(w, "opportunity topics error", err, zap.String("userID", userID.String()))
		return
	}

	filter := filterFromQuery(r)
	h.stream(w, r, "opportunities", topics, func(ctx context.Context) (any, error) {
		intents, err := h.service.Opportunities(ctx, userID, filter)
		if err != nil {
			return nil, err
		}
		return intentsFromModel(intents), nil
	})
}

// StreamIntentOffers транслирует предложения по интересу его владельцу.
func (h *Handler) StreamIntentOffers(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUser(w, r)
	if !ok {
		return
	}
	intentID, ok := pathID(r)
	if !ok {
		badRequest(w)
		return
	}

	load := func(ctx context.Context) (any, error) {
		offers, err := h.service.ListOffersByIntent(ctx, userID, intentID, false)
		if err != nil {
			return nil, err
		}
		return offersFromModel(offers), nil
	}

	// Права доступа проверяются до открытия потока.
	if _, err := load(r.Context()); err != nil {
		h.writeError(w, "stream intent offers error", err, zap.String("intentID", intentID.String()))
		return
	}

	h.stream(w, r, "offers", []string{feed.IntentTopic(intentID)}, load)
}
