// Package service реализует бизнес-логику сервиса Comproum: регистрацию,
// публикацию интересов, подбор возможностей и переговоры по предложениям.
package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/gofrs/uuid/v5"
	"go.uber.org/zap"

	"github.com/mmeshcher/comproum/internal/activity"
	"github.com/mmeshcher/comproum/internal/crypto"
	"github.com/mmeshcher/comproum/internal/feed"
	"github.com/mmeshcher/comproum/internal/model"
	"github.com/mmeshcher/comproum/internal/repository"
	"github.com/mmeshcher/comproum/internal/validation"
)

var (
	// ErrValidation оборачивает ошибки входных данных.
	ErrValidation = errors.New("validation failed")
	// ErrForbidden возвращается, если пользователь не владеет объектом или имеет не ту роль.
	ErrForbidden = errors.New("forbidden")
	// ErrInvalidCredentials возвращается при неверном логине или пароле.
	ErrInvalidCredentials = errors.New("invalid credentials")
)

func invalid(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrValidation, fmt.Sprintf(format, args...))
}

// Repository описывает контракт доступа к данным, используемый сервисом.
type Repository interface {
	Close() error

	CreateUser(ctx context.Context, u *model.User) error
	UpdateUser(ctx context.Context, u *model.User) error
	GetUserByID(ctx context.Context, id uuid.UUID) (*model.User, error)
	GetUserByUsername(ctx context.Context, username string) (*model.User, error)
	GetUserByDocument(ctx context.Context, document string) (*model.User, error)

	CreateIntent(ctx context.Context, in *model.Intent) error
	UpdateIntent(ctx context.Context, in *model.Intent) error
	GetIntent(ctx context.Context, id uuid.UUID) (*model.Intent, error)
	ListIntentsByUser(ctx context.Context, userID uuid.UUID) ([]model.Intent, error)
	ListOpenIntents(ctx context.Context, categories []string) ([]model.Intent, error)

	CreateOffer(ctx context.Context, o *model.Offer) error
	UpdateOffer(ctx context.Context, o *model.Offer) error
	UpdateOpenOffer(ctx context.Context, o *model.Offer) error
	AcceptOffer(ctx context.Context, o *model.Offer) error
	GetOffer(ctx context.Context, id uuid.UUID) (*model.Offer, error)
	ListOffersByIntent(ctx context.Context, intentID uuid.UUID) ([]model.Offer, error)
	ListOffersBySupplier(ctx context.Context, supplierID uuid.UUID) ([]model.Offer, error)
}

// Service содержит бизнес-логику сервиса.
type Service struct {
	repo    Repository
	broker  *feed.Broker
	history activity.Log
	logger  *zap.Logger
	now     func() time.Time
}

// NewService создаёт сервис. Если broker или history не заданы, используются
// реализации в памяти.
func NewService(repo Repository, broker *feed.Broker, history activity.Log, logger *zap.Logger) *Service {
	if broker == nil {
		broker = feed.NewBroker()
	}
	if history == nil {
		history = activity.NewMemoryLog()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		repo:    repo,
		broker:  broker,
		history: history,
		logger:  logger,
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// Close закрывает ресурсы сервиса.
func (s *Service) Close() error {
	if s.repo != nil {
		return s.repo.Close()
	}
	return nil
}

// Subscribe подписывает на события указанных тем.
func (s *Service) Subscribe(topics ...string) (<-chan feed.Event, func()) {
	return s.broker.Subscribe(topics...)
}

// RegisterInput содержит данные регистрации.
type RegisterInput struct {
	Name             string
	Username         string
	Password         string
	Email            string
	Phone            string
	Document         string
	Role             string
	Address          model.Address
	BusinessSegments []string
}

func validateSegments(segments []string) error {
	if len(segments) == 0 {
		return invalid("supplier must select at least one business segment")
	}
	for _, seg := range segments {
		if !model.IsCategory(seg) {
			return invalid("unknown business segment %q", seg)
		}
	}
	return nil
}

func validateAddress(a model.Address) error {
	if !validation.IsValidPostalCode(validation.DigitsOnly(a.Zip)) {
		return invalid("postal code must have 8 digits")
	}
	if strings.TrimSpace(a.Street) == "" || strings.TrimSpace(a.City) == "" {
		return invalid("street and city are required")
	}
	return nil
}

// Register регистрирует покупателя или поставщика.
func (s *Service) Register(ctx context.Context, in RegisterInput) (*model.User, error) {
	in.Username = strings.TrimSpace(in.Username)
	in.Name = strings.TrimSpace(in.Name)

	switch {
	case in.Name == "", in.Username == "", in.Password == "", in.Email == "", in.Document == "":
		return nil, invalid("name, username, password, email and document are required")
	case !validation.IsStrongPassword(in.Password):
		return nil, invalid("password must have at least %d characters with letters and digits",
			validation.MinPasswordLength)
	case !validation.IsValidEmail(in.Email):
		return nil, invalid("invalid email")
	case validation.DigitsOnly(in.Document) == "":
		return nil, invalid("document must contain digits")
	}

	role, err := model.ParseRole(in.Role)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrValidation, err)
	}
	if err := validateAddress(in.Address); err != nil {
		return nil, err
	}

	var segments []string
	if role == model.RoleSupplier {
		if err := validateSegments(in.BusinessSegments); err != nil {
			return nil, err
		}
		segments = in.BusinessSegments
	}

	if _, err := s.repo.GetUserByUsername(ctx, in.Username); err == nil {
		return nil, repository.ErrUserExists
	} else if !errors.Is(err, repository.ErrNotFound) {
		return nil, err
	}
	if _, err := s.repo.GetUserByDocument(ctx, in.Document); err == nil {
		return nil, repository.ErrDocumentExists
	} else if !errors.Is(err, repository.ErrNotFound) {
		return nil, err
	}

	salt, err := crypto.NewSalt()
	if err != nil {
		return nil, err
	}
	id, err := uuid.NewV4()
	if err != nil {
		return nil, fmt.Errorf("generate id: %w", err)
	}

	in.Address.Zip = validation.DigitsOnly(in.Address.Zip)
	u := &model.User{
		ID:                  id,
		Name:                in.Name,
		Username:            in.Username,
		PasswordHash:        crypto.HashPassword(in.Password, salt),
		PasswordSalt:        salt,
		Email:               strings.TrimSpace(in.Email),
		Phone:               strings.TrimSpace(in.Phone),
		Document:            strings.TrimSpace(in.Document),
		Role:                role,
		RegistrationAddress: in.Address,
		BusinessSegments:    segments,
		CreatedAt:           s.now(),
	}
	if err := s.repo.CreateUser(ctx, u); err != nil {
		return nil, err
	}

	s.logger.Info("user registered", zap.String("user_id", u.ID.String()), zap.String("role", string(u.Role)))
	return u, nil
}

// Authenticate проверяет логин и пароль и возвращает пользователя.
func (s *Service) Authenticate(ctx context.Context, username, password string) (*model.User, error) {
	u, err := s.repo.GetUserByUsername(ctx, strings.TrimSpace(username))
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrInvalidCredentials
		}
		return nil, err
	}

	if !crypto.VerifyPassword(password, u.PasswordSalt, u.PasswordHash) {
		return nil, ErrInvalidCredentials
	}
	return u, nil
}

// GetUser возвращает пользователя по идентификатору.
func (s *Service) GetUser(ctx context.Context, id uuid.UUID) (*model.User, error) {
	return s.repo.GetUserByID(ctx, id)
}

// ProfileInput содержит изменяемые поля профиля. Пустые поля не меняются.
// Version, если задан, должен совпадать с текущей версией профиля.
type ProfileInput struct {
	Name                string
	Email               string
	Phone               string
	Document            string
	RegistrationAddress *model.Address
	DeliveryAddress     *model.Address
	PaymentMethod       *model.PaymentMethod
	QuickPaymentEnabled *bool
	BusinessSegments    []string
	Version             int64
}

// UpdateProfile обновляет профиль пользователя.
func (s *Service) UpdateProfile(ctx context.Context, userID uuid.UUID, in ProfileInput) (*model.User, error) {
	u, err := s.repo.GetUserByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	if in.Version != 0 && in.Version != u.Version {
		return nil, repository.ErrVersionConflict
	}

	if v := strings.TrimSpace(in.Name); v != "" {
		u.Name = v
	}
	if v := strings.TrimSpace(in.Email); v != "" {
		if !validation.IsValidEmail(v) {
			return nil, invalid("invalid email")
		}
		u.Email = v
	}
	if v := strings.TrimSpace(in.Phone); v != "" {
		u.Phone = v
	}
	if v := strings.TrimSpace(in.Document); v != "" && !validation.SameDocument(v, u.Document) {
		if validation.DigitsOnly(v) == "" {
			return nil, invalid("document must contain digits")
		}
		if other, err := s.repo.GetUserByDocument(ctx, v); err == nil && other.ID != u.ID {
			return nil, repository.ErrDocumentExists
		} else if err != nil && !errors.Is(err, repository.ErrNotFound) {
			return nil, err
		}
		u.Document = v
	}
	if in.RegistrationAddress != nil {
		if err := validateAddress(*in.RegistrationAddress); err != nil {
			return nil, err
		}
		a := *in.RegistrationAddress
		a.Zip = validation.DigitsOnly(a.Zip)
		u.RegistrationAddress = a
	}

	switch u.Role {
	case model.RoleBuyer:
		if in.DeliveryAddress != nil {
			if err := validateAddress(*in.DeliveryAddress); err != nil {
				return nil, err
			}
			a := *in.DeliveryAddress
			a.Zip = validation.DigitsOnly(a.Zip)
			u.DeliveryAddress = &a
		}
		if in.PaymentMethod != nil {
			if _, err := model.ParsePaymentType(string(in.PaymentMethod.Type)); err != nil {
				return nil, fmt.Errorf("%w: %w", ErrValidation, err)
			}
			p := *in.PaymentMethod
			u.PaymentMethod = &p
		}
		if in.QuickPaymentEnabled != nil {
			u.QuickPaymentEnabled = *in.QuickPaymentEnabled
		}
	case model.RoleSupplier:
		if in.BusinessSegments != nil {
			if err := validateSegments(in.BusinessSegments); err != nil {
				return nil, err
			}
			u.BusinessSegments = in.BusinessSegments
		}
	}

	if err := s.repo.UpdateUser(ctx, u); err != nil {
		return nil, err
	}
	return u, nil
}

func (s *Service) userWithRole(ctx context.Context, userID uuid.UUID, role model.Role) (*model.User, error) {
	u, err := s.repo.GetUserByID(ctx, userID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrForbidden
		}
		return nil, err
	}
	if u.Role != role {
		return nil, fmt.Errorf("%w: %s role required", ErrForbidden, strings.ToLower(string(role)))
	}
	return u, nil
}

// record пишет запись истории; ошибки журналируются и не прерывают операцию.
func (s *Service) record(ctx context.Context, e activity.Entry) {
	if e.At.IsZero() {
		e.At = s.now()
	}
	if err := s.history.Record(ctx, e); err != nil {
		s.logger.Warn("failed to record offer activity",
			zap.String("offer_id", e.OfferID.String()),
			zap.String("action", string(e.Action)),
			zap.Error(err))
	}
}
