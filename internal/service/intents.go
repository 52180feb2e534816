package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/gofrs/uuid/v5"
	"go.uber.org/zap"

	"github.com/mmeshcher/comproum/internal/feed"
	"github.com/mmeshcher/comproum/internal/matching"
	"github.com/mmeshcher/comproum/internal/model"
	"github.com/mmeshcher/comproum/internal/repository"
)

// IntentInput содержит данные нового интереса.
type IntentInput struct {
	Type        string
	Category    string
	ProductName string
	Description string
	Budget      int64
	Condition   string
}

// CreateIntent публикует интерес покупателя и уведомляет поставщиков сегмента.
func (s *Service) CreateIntent(ctx context.Context, buyerID uuid.UUID, in IntentInput) (*model.Intent, error) {
	if _, err := s.userWithRole(ctx, buyerID, model.RoleBuyer); err != nil {
		return nil, err
	}

	typ, err := model.ParseIntentType(in.Type)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrValidation, err)
	}
	condition, err := model.ParseCondition(in.Condition)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrValidation, err)
	}
	if !model.IsCategory(in.Category) {
		return nil, invalid("unknown category %q", in.Category)
	}
	if strings.TrimSpace(in.ProductName) == "" {
		return nil, invalid("product name is required")
	}
	if in.Budget <= 0 {
		return nil, invalid("budget must be positive")
	}

	id, err := uuid.NewV4()
	if err != nil {
		return nil, fmt.Errorf("generate id: %w", err)
	}

	intent := &model.Intent{
		ID:          id,
		UserID:      buyerID,
		Type:        typ,
		Category:    in.Category,
		ProductName: strings.TrimSpace(in.ProductName),
		Description: strings.TrimSpace(in.Description),
		Budget:      in.Budget,
		Condition:   condition,
		Status:      model.IntentStatusOpen,
		CreatedAt:   s.now(),
	}
	if err := s.repo.CreateIntent(ctx, intent); err != nil {
		return nil, err
	}

	s.broker.Publish(feed.Event{Kind: feed.KindIntentCreated, IntentID: intent.ID},
		feed.SegmentTopic(intent.Category), feed.BuyerTopic(buyerID))

	s.logger.Info("intent created",
		zap.String("intent_id", intent.ID.String()),
		zap.String("category", intent.Category))
	return intent, nil
}

// ListMyIntents возвращает интересы покупателя, новые первыми.
func (s *Service) ListMyIntents(ctx context.Context, buyerID uuid.UUID) ([]model.Intent, error) {
	return s.repo.ListIntentsByUser(ctx, buyerID)
}

// GetIntent возвращает интерес владельцу или поставщику, которому он виден.
func (s *Service) GetIntent(ctx context.Context, userID, intentID uuid.UUID) (*model.Intent, error) {
	intent, err := s.repo.GetIntent(ctx, intentID)
	if err != nil {
		return nil, err
	}
	if intent.UserID == userID {
		return intent, nil
	}

	u, err := s.repo.GetUserByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	if u.Role != model.RoleSupplier || !u.HasSegment(intent.Category) {
		return nil, ErrForbidden
	}
	return intent, nil
}

// CloseIntent закрывает открытый интерес по запросу владельца.
func (s *Service) CloseIntent(ctx context.Context, buyerID, intentID uuid.UUID) (*model.Intent, error) {
	intent, err := s.repo.GetIntent(ctx, intentID)
	if err != nil {
		return nil, err
	}
	if intent.UserID != buyerID {
		return nil, ErrForbidden
	}
	if intent.Status != model.IntentStatusOpen {
		return nil, repository.ErrIntentClosed
	}

	intent.Status = model.IntentStatusClosed
	if err := s.repo.UpdateIntent(ctx, intent); err != nil {
		return nil, err
	}

	s.broker.Publish(feed.Event{Kind: feed.KindIntentClosed, IntentID: intent.ID},
		feed.IntentTopic(intent.ID), feed.SegmentTopic(intent.Category), feed.BuyerTopic(buyerID))
	return intent, nil
}

// Opportunities возвращает открытые интересы, видимые поставщику, с фильтрами.
func (s *Service) Opportunities(ctx context.Context, supplierID uuid.UUID, f matching.Filter) ([]model.Intent, error) {
	supplier, err := s.userWithRole(ctx, supplierID, model.RoleSupplier)
	if err != nil {
		return nil, err
	}

	open, err := s.repo.ListOpenIntents(ctx, supplier.BusinessSegments)
	if err != nil {
		return nil, err
	}

	return matching.ApplyFilters(matching.OpportunitiesFor(supplier, open), f), nil
}

// OpportunityTopics возвращает темы, на которые подписывается лента поставщика.
func (s *Service) OpportunityTopics(ctx context.Context, supplierID uuid.UUID) ([]string, error) {
	supplier, err := s.userWithRole(ctx, supplierID, model.RoleSupplier)
	if err != nil {
		return nil, err
	}

	topics := make([]string, 0, len(supplier.BusinessSegments)+1)
	for _, seg := range supplier.BusinessSegments {
		topics = append(topics, feed.SegmentTopic(seg))
	}
	return append(topics, feed.SupplierTopic(supplierID)), nil
}
