// Package memory реализует хранилище в памяти процесса. Используется, когда
// база данных не настроена, и в тестах сервисного слоя.
package memory

import (
	"cmp"
	"context"
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/gofrs/uuid/v5"

	"github.com/mmeshcher/comproum/internal/model"
	"github.com/mmeshcher/comproum/internal/repository"
	"github.com/mmeshcher/comproum/internal/validation"
)

// Store хранит пользователей, интересы и предложения под одним мьютексом.
type Store struct {
	mu      sync.RWMutex
	users   map[uuid.UUID]*model.User
	intents map[uuid.UUID]*model.Intent
	offers  map[uuid.UUID]*model.Offer
	now     func() time.Time
}

// New создаёт пустое хранилище.
func New() *Store {
	return &Store{
		users:   make(map[uuid.UUID]*model.User),
		intents: make(map[uuid.UUID]*model.Intent),
		offers:  make(map[uuid.UUID]*model.Offer),
		now:     func() time.Time { return time.Now().UTC() },
	}
}

func copyUser(u *model.User) model.User {
	c := *u
	c.PasswordHash = slices.Clone(u.PasswordHash)
	c.PasswordSalt = slices.Clone(u.PasswordSalt)
	c.BusinessSegments = slices.Clone(u.BusinessSegments)
	if u.DeliveryAddress != nil {
		a := *u.DeliveryAddress
		c.DeliveryAddress = &a
	}
	if u.PaymentMethod != nil {
		p := *u.PaymentMethod
		c.PaymentMethod = &p
	}
	return c
}

func copyOffer(o *model.Offer) model.Offer {
	c := *o
	c.Images = slices.Clone(o.Images)
	if c.Images == nil {
		c.Images = []string{}
	}
	if o.CounterPrice != nil {
		v := *o.CounterPrice
		c.CounterPrice = &v
	}
	if o.FollowUpAt != nil {
		v := *o.FollowUpAt
		c.FollowUpAt = &v
	}
	return c
}

// CreateUser добавляет пользователя, проверяя уникальность логина и документа.
func (s *Store) CreateUser(_ context.Context, u *model.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	digits := validation.DigitsOnly(u.Document)
	for _, existing := range s.users {
		if strings.EqualFold(existing.Username, u.Username) {
			return fmt.Errorf("%w: %s", repository.ErrUserExists, u.Username)
		}
		if digits != "" && validation.DigitsOnly(existing.Document) == digits {
			return fmt.Errorf("%w: %s", repository.ErrDocumentExists, u.Document)
		}
	}

	if u.Version == 0 {
		u.Version = 1
	}
	if u.CreatedAt.IsZero() {
		u.CreatedAt = s.now()
	}
	c := copyUser(u)
	s.users[u.ID] = &c
	return nil
}

// UpdateUser перезаписывает профиль пользователя с проверкой версии.
func (s *Store) UpdateUser(_ context.Context, u *model.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, ok := s.users[u.ID]
	if !ok || existing.Version != u.Version {
		return repository.ErrVersionConflict
	}

	digits := validation.DigitsOnly(u.Document)
	for id, other := range s.users {
		if id != u.ID && digits != "" && validation.DigitsOnly(other.Document) == digits {
			return fmt.Errorf("%w: %s", repository.ErrDocumentExists, u.Document)
		}
	}

	u.Version++
	c := copyUser(u)
	c.Username = existing.Username
	c.Role = existing.Role
	c.PasswordHash = existing.PasswordHash
	c.PasswordSalt = existing.PasswordSalt
	c.CreatedAt = existing.CreatedAt
	s.users[u.ID] = &c
	return nil
}

// GetUserByID возвращает пользователя по идентификатору.
func (s *Store) GetUserByID(_ context.Context, id uuid.UUID) (*model.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	u, ok := s.users[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	c := copyUser(u)
	return &c, nil
}

// GetUserByUsername ищет пользователя по логину без учёта регистра.
func (s *Store) GetUserByUsername(_ context.Context, username string) (*model.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, u := range s.users {
		if strings.EqualFold(u.Username, username) {
			c := copyUser(u)
			return &c, nil
		}
	}
	return nil, repository.ErrNotFound
}

// GetUserByDocument ищет пользователя по цифрам документа.
func (s *Store) GetUserByDocument(_ context.Context, document string) (*model.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, u := range s.users {
		if validation.SameDocument(u.Document, document) {
			c := copyUser(u)
			return &c, nil
		}
	}
	return nil, repository.ErrNotFound
}

// ListUsers возвращает пользователей в порядке регистрации.
func (s *Store) ListUsers(_ context.Context) ([]model.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	res := make([]model.User, 0, len(s.users))
	for _, u := range s.users {
		res = append(res, copyUser(u))
	}
	slices.SortFunc(res, func(a, b model.User) int { return a.CreatedAt.Compare(b.CreatedAt) })
	return res, nil
}

// CreateIntent добавляет интерес.
func (s *Store) CreateIntent(_ context.Context, in *model.Intent) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if in.Version == 0 {
		in.Version = 1
	}
	if in.CreatedAt.IsZero() {
		in.CreatedAt = s.now()
	}
	c := *in
	s.intents[in.ID] = &c
	return nil
}

// UpdateIntent меняет статус интереса с проверкой версии.
func (s *Store) UpdateIntent(_ context.Context, in *model.Intent) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, ok := s.intents[in.ID]
	if !ok || existing.Version != in.Version {
		return repository.ErrVersionConflict
	}
	existing.Status = in.Status
	existing.Version++
	in.Version = existing.Version
	return nil
}

// GetIntent возвращает интерес по идентификатору.
func (s *Store) GetIntent(_ context.Context, id uuid.UUID) (*model.Intent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	in, ok := s.intents[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	c := *in
	return &c, nil
}

func (s *Store) collectIntents(keep func(*model.Intent) bool) []model.Intent {
	res := make([]model.Intent, 0)
	for _, in := range s.intents {
		if keep(in) {
			res = append(res, *in)
		}
	}
	slices.SortFunc(res, func(a, b model.Intent) int {
		return cmp.Or(b.CreatedAt.Compare(a.CreatedAt), strings.Compare(a.ID.String(), b.ID.String()))
	})
	return res
}

// ListIntents возвращает все интересы, новые первыми.
func (s *Store) ListIntents(_ context.Context) ([]model.Intent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.collectIntents(func(*model.Intent) bool { return true }), nil
}

// ListIntentsByUser возвращает интересы покупателя, новые первыми.
func (s *Store) ListIntentsByUser(_ context.Context, userID uuid.UUID) ([]model.Intent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.collectIntents(func(in *model.Intent) bool { return in.UserID == userID }), nil
}

// ListOpenIntents возвращает открытые интересы в указанных категориях.
func (s *Store) ListOpenIntents(_ context.Context, categories []string) ([]model.Intent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.collectIntents(func(in *model.Intent) bool {
		return in.Status == model.IntentStatusOpen && slices.Contains(categories, in.Category)
	}), nil
}

func (s *Store) openIntent(id uuid.UUID) (*model.Intent, error) {
	in, ok := s.intents[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	if in.Status != model.IntentStatusOpen {
		return nil, repository.ErrIntentClosed
	}
	return in, nil
}

// CreateOffer добавляет предложение и увеличивает счётчик интереса атомарно.
func (s *Store) CreateOffer(_ context.Context, o *model.Offer) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	in, err := s.openIntent(o.IntentID)
	if err != nil {
		return err
	}

	if o.CreatedAt.IsZero() {
		o.CreatedAt = s.now()
	}
	o.UpdatedAt = o.CreatedAt
	o.Version = 1
	c := copyOffer(o)
	s.offers[o.ID] = &c

	in.OffersCount++
	in.Version++
	return nil
}

func (s *Store) replaceOffer(o *model.Offer) error {
	existing, ok := s.offers[o.ID]
	if !ok || existing.Version != o.Version {
		return repository.ErrVersionConflict
	}
	o.UpdatedAt = s.now()
	o.Version++
	c := copyOffer(o)
	c.IntentID = existing.IntentID
	c.SupplierID = existing.SupplierID
	c.CreatedAt = existing.CreatedAt
	s.offers[o.ID] = &c
	return nil
}

// UpdateOffer перезаписывает предложение с проверкой версии.
func (s *Store) UpdateOffer(_ context.Context, o *model.Offer) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.replaceOffer(o)
}

// UpdateOpenOffer перезаписывает предложение, только если его интерес открыт.
func (s *Store) UpdateOpenOffer(_ context.Context, o *model.Offer) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := s.openIntent(o.IntentID); err != nil {
		return err
	}
	return s.replaceOffer(o)
}

// AcceptOffer сохраняет принятое предложение и закрывает интерес атомарно.
func (s *Store) AcceptOffer(_ context.Context, o *model.Offer) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	in, err := s.openIntent(o.IntentID)
	if err != nil {
		return err
	}
	if err := s.replaceOffer(o); err != nil {
		return err
	}
	in.Status = model.IntentStatusClosed
	in.Version++
	return nil
}

// GetOffer возвращает предложение по идентификатору.
func (s *Store) GetOffer(_ context.Context, id uuid.UUID) (*model.Offer, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	o, ok := s.offers[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	c := copyOffer(o)
	return &c, nil
}

func (s *Store) collectOffers(keep func(*model.Offer) bool) []model.Offer {
	res := make([]model.Offer, 0)
	for _, o := range s.offers {
		if keep(o) {
			res = append(res, copyOffer(o))
		}
	}
	slices.SortFunc(res, func(a, b model.Offer) int {
		return cmp.Or(b.CreatedAt.Compare(a.CreatedAt), strings.Compare(a.ID.String(), b.ID.String()))
	})
	return res
}

// ListOffers возвращает все предложения, новые первыми.
func (s *Store) ListOffers(_ context.Context) ([]model.Offer, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.collectOffers(func(*model.Offer) bool { return true }), nil
}

// ListOffersByIntent возвращает предложения по интересу, новые первыми.
func (s *Store) ListOffersByIntent(_ context.Context, intentID uuid.UUID) ([]model.Offer, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.collectOffers(func(o *model.Offer) bool { return o.IntentID == intentID }), nil
}

// ListOffersBySupplier возвращает предложения поставщика, новые первыми.
func (s *Store) ListOffersBySupplier(_ context.Context, supplierID uuid.UUID) ([]model.Offer, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.collectOffers(func(o *model.Offer) bool { return o.SupplierID == supplierID }), nil
}

// Close ничего не делает; метод нужен для совместимости с PostgresRepository.
func (s *Store) Close() error {
	return nil
}
