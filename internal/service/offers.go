package service

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/gofrs/uuid/v5"
	"go.uber.org/zap"

	"github.com/mmeshcher/comproum/internal/activity"
	"github.com/mmeshcher/comproum/internal/feed"
	"github.com/mmeshcher/comproum/internal/model"
	"github.com/mmeshcher/comproum/internal/negotiation"
	"github.com/mmeshcher/comproum/internal/repository"
	"github.com/mmeshcher/comproum/internal/validation"
)

// Допустимый диапазон напоминания в часах.
const (
	MinFollowUpHours = 1
	MaxFollowUpHours = 720
)

// ProposeInput содержит условия нового предложения.
type ProposeInput struct {
	Price        int64
	Condition    string
	Description  string
	Images       []string
	PaymentTerms string
	ValidUntil   time.Time
}

// ReproposeInput содержит новые условия предложения после отказа или встречной цены.
type ReproposeInput struct {
	Price        int64
	Description  string
	Images       []string
	PaymentTerms string
	ValidUntil   time.Time
}

// AcceptInput задаёт необязательную замену адреса доставки при принятии.
type AcceptInput struct {
	DeliveryAddress *model.Address
}

func negotiationErr(err error) error {
	if errors.Is(err, negotiation.ErrInvalidPrice) || errors.Is(err, negotiation.ErrInvalidCondition) {
		return fmt.Errorf("%w: %w", ErrValidation, err)
	}
	return err
}

func (s *Service) publishOffer(o *model.Offer, intent *model.Intent, kind feed.Kind) {
	topics := []string{
		feed.IntentTopic(o.IntentID),
		feed.SupplierTopic(o.SupplierID),
		feed.BuyerTopic(intent.UserID),
	}
	if kind == feed.KindIntentClosed {
		topics = append(topics, feed.SegmentTopic(intent.Category))
	}
	s.broker.Publish(feed.Event{Kind: kind, IntentID: o.IntentID, OfferID: o.ID}, topics...)
}

func (s *Service) offerEntry(o *model.Offer, actor uuid.UUID, action activity.Action, from model.OfferStatus) activity.Entry {
	return activity.Entry{
		OfferID:      o.ID,
		IntentID:     o.IntentID,
		ActorID:      actor,
		Action:       action,
		FromStatus:   from,
		ToStatus:     o.Status,
		Price:        o.Price,
		CounterPrice: o.CounterPrice,
		Note:         o.BuyerFeedback,
	}
}

// ProposeOffer создаёт предложение поставщика по открытому интересу.
func (s *Service) ProposeOffer(ctx context.Context, supplierID, intentID uuid.UUID, in ProposeInput) (*model.Offer, error) {
	supplier, err := s.userWithRole(ctx, supplierID, model.RoleSupplier)
	if err != nil {
		return nil, err
	}

	intent, err := s.repo.GetIntent(ctx, intentID)
	if err != nil {
		return nil, err
	}
	if intent.UserID == supplier.ID || !supplier.HasSegment(intent.Category) {
		return nil, ErrForbidden
	}
	if intent.Status != model.IntentStatusOpen {
		return nil, repository.ErrIntentClosed
	}

	if in.Price <= 0 {
		return nil, negotiationErr(negotiation.ErrInvalidPrice)
	}
	if in.ValidUntil.IsZero() {
		return nil, invalid("valid until is required")
	}
	if !in.ValidUntil.After(s.now()) {
		return nil, invalid("valid until must be in the future")
	}

	var chosen model.Condition
	if in.Condition != "" {
		if chosen, err = model.ParseCondition(in.Condition); err != nil {
			return nil, fmt.Errorf("%w: %w", ErrValidation, err)
		}
	}
	condition, err := negotiation.ResolveCondition(intent.Condition, chosen)
	if err != nil {
		return nil, negotiationErr(err)
	}

	id, err := uuid.NewV4()
	if err != nil {
		return nil, fmt.Errorf("generate id: %w", err)
	}

	images := slices.Clone(in.Images)
	if images == nil {
		images = []string{}
	}
	o := &model.Offer{
		ID:           id,
		IntentID:     intent.ID,
		SupplierID:   supplier.ID,
		SupplierName: supplier.Name,
		ProductName:  intent.ProductName,
		Price:        in.Price,
		Condition:    condition,
		Description:  strings.TrimSpace(in.Description),
		Images:       images,
		PaymentTerms: strings.TrimSpace(in.PaymentTerms),
		Status:       model.OfferStatusPending,
		ValidUntil:   in.ValidUntil.UTC(),
		CreatedAt:    s.now(),
	}
	if err := s.repo.CreateOffer(ctx, o); err != nil {
		return nil, err
	}

	s.record(ctx, s.offerEntry(o, supplierID, activity.ActionPropose, ""))
	s.publishOffer(o, intent, feed.KindOfferChanged)

	s.logger.Info("offer proposed",
		zap.String("offer_id", o.ID.String()),
		zap.String("intent_id", intent.ID.String()),
		zap.Int64("price", o.Price))
	return o, nil
}

// loadForBuyer загружает предложение и интерес и проверяет, что покупатель владеет интересом.
func (s *Service) loadForBuyer(ctx context.Context, buyerID, offerID uuid.UUID) (*model.Offer, *model.Intent, error) {
	o, err := s.repo.GetOffer(ctx, offerID)
	if err != nil {
		return nil, nil, err
	}
	intent, err := s.repo.GetIntent(ctx, o.IntentID)
	if err != nil {
		return nil, nil, err
	}
	if intent.UserID != buyerID {
		return nil, nil, ErrForbidden
	}
	return o, intent, nil
}

// loadForSupplier загружает предложение и интерес и проверяет, что предложение принадлежит поставщику.
func (s *Service) loadForSupplier(ctx context.Context, supplierID, offerID uuid.UUID) (*model.Offer, *model.Intent, error) {
	o, err := s.repo.GetOffer(ctx, offerID)
	if err != nil {
		return nil, nil, err
	}
	if o.SupplierID != supplierID {
		return nil, nil, ErrForbidden
	}
	intent, err := s.repo.GetIntent(ctx, o.IntentID)
	if err != nil {
		return nil, nil, err
	}
	return o, intent, nil
}

// Accept принимает предложение, закрывает интерес и возвращает снимок для оформления.
// Если передан адрес доставки, он сохраняется в профиле покупателя.
func (s *Service) Accept(ctx context.Context, buyerID, offerID uuid.UUID, in AcceptInput) (*model.Checkout, error) {
	o, intent, err := s.loadForBuyer(ctx, buyerID, offerID)
	if err != nil {
		return nil, err
	}

	buyer, err := s.repo.GetUserByID(ctx, buyerID)
	if err != nil {
		return nil, err
	}
	if in.DeliveryAddress != nil {
		if err := validateAddress(*in.DeliveryAddress); err != nil {
			return nil, err
		}
	}

	if intent.Status != model.IntentStatusOpen && o.Status != model.OfferStatusAccepted {
		return nil, repository.ErrIntentClosed
	}

	from := o.Status
	if err := negotiation.Accept(o); err != nil {
		return nil, err
	}
	if err := s.repo.AcceptOffer(ctx, o); err != nil {
		return nil, err
	}

	if in.DeliveryAddress != nil {
		a := *in.DeliveryAddress
		a.Zip = validation.DigitsOnly(a.Zip)
		buyer.DeliveryAddress = &a
		if err := s.repo.UpdateUser(ctx, buyer); err != nil {
			s.logger.Warn("failed to store delivery address",
				zap.String("user_id", buyerID.String()), zap.Error(err))
		}
	}

	checkout := &model.Checkout{
		Offer:               *o,
		QuickPaymentEnabled: buyer.QuickPaymentEnabled,
	}
	delivery := buyer.RegistrationAddress
	if buyer.DeliveryAddress != nil {
		delivery = *buyer.DeliveryAddress
	}
	checkout.DeliveryAddress = &delivery
	if buyer.PaymentMethod != nil {
		p := *buyer.PaymentMethod
		checkout.PaymentMethod = &p
	}

	s.record(ctx, s.offerEntry(o, buyerID, activity.ActionAccept, from))
	s.publishOffer(o, intent, feed.KindIntentClosed)

	s.logger.Info("offer accepted",
		zap.String("offer_id", o.ID.String()),
		zap.String("intent_id", intent.ID.String()))
	return checkout, nil
}

// Reject отклоняет предложение.
func (s *Service) Reject(ctx context.Context, buyerID, offerID uuid.UUID) (*model.Offer, error) {
	o, intent, err := s.loadForBuyer(ctx, buyerID, offerID)
	if err != nil {
		return nil, err
	}

	from := o.Status
	if err := negotiation.Reject(o); err != nil {
		return nil, err
	}
	if err := s.repo.UpdateOffer(ctx, o); err != nil {
		return nil, err
	}

	s.record(ctx, s.offerEntry(o, buyerID, activity.ActionReject, from))
	s.publishOffer(o, intent, feed.KindOfferChanged)
	return o, nil
}

// Counter фиксирует встречную цену покупателя. Интерес должен быть открыт.
func (s *Service) Counter(ctx context.Context, buyerID, offerID uuid.UUID, counterPrice int64, feedback string) (*model.Offer, error) {
	o, intent, err := s.loadForBuyer(ctx, buyerID, offerID)
	if err != nil {
		return nil, err
	}
	if intent.Status != model.IntentStatusOpen {
		return nil, repository.ErrIntentClosed
	}

	from := o.Status
	if err := negotiation.Counter(o, counterPrice, strings.TrimSpace(feedback)); err != nil {
		return nil, negotiationErr(err)
	}
	if err := s.repo.UpdateOpenOffer(ctx, o); err != nil {
		return nil, err
	}

	s.record(ctx, s.offerEntry(o, buyerID, activity.ActionCounter, from))
	s.publishOffer(o, intent, feed.KindOfferChanged)
	return o, nil
}

// Repropose обновляет условия предложения поставщиком и возвращает его в PENDING.
// Идентификатор предложения и счётчик предложений интереса не меняются.
func (s *Service) Repropose(ctx context.Context, supplierID, offerID uuid.UUID, in ReproposeInput) (*model.Offer, error) {
	o, intent, err := s.loadForSupplier(ctx, supplierID, offerID)
	if err != nil {
		return nil, err
	}
	if intent.Status != model.IntentStatusOpen {
		return nil, repository.ErrIntentClosed
	}
	if in.ValidUntil.IsZero() {
		in.ValidUntil = o.ValidUntil
	}
	if !in.ValidUntil.After(s.now()) {
		return nil, invalid("valid until must be in the future")
	}

	from := o.Status
	err = negotiation.Repropose(o, negotiation.Terms{
		Price:        in.Price,
		Description:  strings.TrimSpace(in.Description),
		Images:       in.Images,
		PaymentTerms: strings.TrimSpace(in.PaymentTerms),
		ValidUntil:   in.ValidUntil.UTC(),
	})
	if err != nil {
		return nil, negotiationErr(err)
	}
	if err := s.repo.UpdateOpenOffer(ctx, o); err != nil {
		return nil, err
	}

	s.record(ctx, s.offerEntry(o, supplierID, activity.ActionRepropose, from))
	s.publishOffer(o, intent, feed.KindOfferChanged)
	return o, nil
}

// ScheduleFollowUp сохраняет время напоминания поставщику. Статус не меняется.
func (s *Service) ScheduleFollowUp(ctx context.Context, supplierID, offerID uuid.UUID, hours int) (*model.Offer, error) {
	if hours < MinFollowUpHours || hours > MaxFollowUpHours {
		return nil, invalid("follow-up hours must be between %d and %d", MinFollowUpHours, MaxFollowUpHours)
	}

	o, intent, err := s.loadForSupplier(ctx, supplierID, offerID)
	if err != nil {
		return nil, err
	}

	at := s.now().Add(time.Duration(hours) * time.Hour)
	o.FollowUpAt = &at
	if err := s.repo.UpdateOffer(ctx, o); err != nil {
		return nil, err
	}

	entry := s.offerEntry(o, supplierID, activity.ActionFollowUp, o.Status)
	entry.Note = fmt.Sprintf("follow-up at %s", at.Format(time.RFC3339))
	s.record(ctx, entry)
	s.publishOffer(o, intent, feed.KindOfferChanged)
	return o, nil
}

// ListOffersByIntent возвращает предложения по интересу его владельцу.
// Отклонённые предложения скрываются, если includeRejected не задан.
func (s *Service) ListOffersByIntent(ctx context.Context, buyerID, intentID uuid.UUID, includeRejected bool) ([]model.Offer, error) {
	intent, err := s.repo.GetIntent(ctx, intentID)
	if err != nil {
		return nil, err
	}
	if intent.UserID != buyerID {
		return nil, ErrForbidden
	}

	offers, err := s.repo.ListOffersByIntent(ctx, intentID)
	if err != nil {
		return nil, err
	}
	if includeRejected {
		return offers, nil
	}
	return slices.DeleteFunc(offers, func(o model.Offer) bool {
		return o.Status == model.OfferStatusRejected
	}), nil
}

// ListMyOffers возвращает предложения поставщика, новые первыми.
func (s *Service) ListMyOffers(ctx context.Context, supplierID uuid.UUID) ([]model.Offer, error) {
	if _, err := s.userWithRole(ctx, supplierID, model.RoleSupplier); err != nil {
		return nil, err
	}
	return s.repo.ListOffersBySupplier(ctx, supplierID)
}

// SupplierStats считает предложения поставщика по статусам и выручку по принятым.
func (s *Service) SupplierStats(ctx context.Context, supplierID uuid.UUID) (*model.SupplierStats, error) {
	offers, err := s.ListMyOffers(ctx, supplierID)
	if err != nil {
		return nil, err
	}

	stats := &model.SupplierStats{Total: len(offers)}
	for _, o := range offers {
		switch o.Status {
		case model.OfferStatusPending:
			stats.Pending++
		case model.OfferStatusAccepted:
			stats.Accepted++
			stats.AcceptedRevenue += o.Price
		case model.OfferStatusRejected:
			stats.Rejected++
		case model.OfferStatusCounterOffered:
			stats.CounterOffered++
		}
	}
	return stats, nil
}

// OfferHistory возвращает историю предложения его поставщику или владельцу интереса.
func (s *Service) OfferHistory(ctx context.Context, userID, offerID uuid.UUID) ([]activity.Entry, error) {
	o, err := s.repo.GetOffer(ctx, offerID)
	if err != nil {
		return nil, err
	}
	if o.SupplierID != userID {
		intent, err := s.repo.GetIntent(ctx, o.IntentID)
		if err != nil {
			return nil, err
		}
		if intent.UserID != userID {
			return nil, ErrForbidden
		}
	}
	return s.history.History(ctx, offerID)
}
