// Package negotiation реализует конечный автомат статусов предложения.
//
// Пакет не знает об акторах и хранилище: проверки владения выполняет
// сервисный слой, здесь только допустимость переходов и их эффект на Offer.
package negotiation

import (
	"errors"
	"fmt"
	"time"

	"github.com/mmeshcher/comproum/internal/model"
)

// Event описывает действие над предложением.
type Event string

const (
	EventAccept    Event = "accept"
	EventReject    Event = "reject"
	EventCounter   Event = "counter"
	EventRepropose Event = "repropose"
)

var (
	// ErrIllegalTransition возвращается, если действие недопустимо в текущем статусе.
	ErrIllegalTransition = errors.New("illegal offer transition")
	// ErrInvalidPrice возвращается при неположительной цене.
	ErrInvalidPrice = errors.New("price must be positive")
	// ErrInvalidCondition возвращается, если поставщик не зафиксировал состояние товара.
	ErrInvalidCondition = errors.New("offer condition must be NEW or USED")
)

// Next возвращает статус, в который предложение переходит по событию.
func Next(from model.OfferStatus, ev Event) (model.OfferStatus, error) {
	switch from {
	case model.OfferStatusPending:
		switch ev {
		case EventAccept:
			return model.OfferStatusAccepted, nil
		case EventReject:
			return model.OfferStatusRejected, nil
		case EventCounter:
			return model.OfferStatusCounterOffered, nil
		}
	case model.OfferStatusCounterOffered:
		switch ev {
		case EventAccept:
			return model.OfferStatusAccepted, nil
		case EventReject:
			return model.OfferStatusRejected, nil
		case EventRepropose:
			return model.OfferStatusPending, nil
		}
	case model.OfferStatusRejected:
		if ev == EventRepropose {
			return model.OfferStatusPending, nil
		}
	case model.OfferStatusAccepted:
	default:
		return "", fmt.Errorf("%w: unknown status %q", ErrIllegalTransition, from)
	}
	return "", fmt.Errorf("%w: %s from %s", ErrIllegalTransition, ev, from)
}

// Terms содержит условия, которые поставщик задаёт при повторном предложении.
type Terms struct {
	Price        int64
	Description  string
	Images       []string
	PaymentTerms string
	ValidUntil   time.Time
}

// Accept переводит предложение в ACCEPTED.
func Accept(o *model.Offer) error {
	next, err := Next(o.Status, EventAccept)
	if err != nil {
		return err
	}
	o.Status = next
	return nil
}

// Reject переводит предложение в REJECTED.
func Reject(o *model.Offer) error {
	next, err := Next(o.Status, EventReject)
	if err != nil {
		return err
	}
	o.Status = next
	return nil
}

// Counter фиксирует встречную цену покупателя. Исходная цена не меняется.
func Counter(o *model.Offer, counterPrice int64, feedback string) error {
	if counterPrice <= 0 {
		return ErrInvalidPrice
	}
	next, err := Next(o.Status, EventCounter)
	if err != nil {
		return err
	}
	o.Status = next
	o.CounterPrice = &counterPrice
	o.BuyerFeedback = feedback
	return nil
}

// Repropose обновляет условия предложения и возвращает его в PENDING.
// Идентификатор предложения сохраняется.
func Repropose(o *model.Offer, t Terms) error {
	if t.Price <= 0 {
		return ErrInvalidPrice
	}
	next, err := Next(o.Status, EventRepropose)
	if err != nil {
		return err
	}
	o.Status = next
	o.Price = t.Price
	o.Description = t.Description
	o.Images = append([]string(nil), t.Images...)
	if t.PaymentTerms != "" {
		o.PaymentTerms = t.PaymentTerms
	}
	o.ValidUntil = t.ValidUntil
	o.CounterPrice = nil
	o.BuyerFeedback = ""
	return nil
}

// ResolveCondition определяет состояние товара в предложении по предпочтению
// интереса и выбору поставщика. Для BOTH по умолчанию выбирается NEW.
// Выбор, противоречащий состоянию NEW или USED в интересе, отклоняется.
func ResolveCondition(intent, chosen model.Condition) (model.Condition, error) {
	switch {
	case chosen == model.ConditionBoth:
		return "", ErrInvalidCondition
	case intent != model.ConditionBoth:
		if chosen != "" && chosen != intent {
			return "", fmt.Errorf("%w: intent requires %s", ErrInvalidCondition, intent)
		}
		return intent, nil
	case chosen == "":
		return model.ConditionNew, nil
	}
	return chosen, nil
}
