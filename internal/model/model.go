// Package model содержит доменные сущности сервиса Comproum.
package model

import (
	"errors"
	"fmt"
	"math"
	"slices"
	"time"

	"github.com/gofrs/uuid/v5"
)

// Role описывает роль пользователя. Роль фиксируется при регистрации.
type Role string

const (
	RoleBuyer    Role = "BUYER"
	RoleSupplier Role = "SUPPLIER"
)

// IntentType описывает цель публикации интереса.
type IntentType string

const (
	IntentTypeBuy   IntentType = "BUY"
	IntentTypeSell  IntentType = "SELL"
	IntentTypeTrade IntentType = "TRADE"
)

// Condition описывает состояние товара.
type Condition string

const (
	ConditionNew  Condition = "NEW"
	ConditionUsed Condition = "USED"
	ConditionBoth Condition = "BOTH"
)

// IntentStatus описывает статус интереса покупателя.
type IntentStatus string

const (
	IntentStatusOpen    IntentStatus = "OPEN"
	IntentStatusClosed  IntentStatus = "CLOSED"
	IntentStatusExpired IntentStatus = "EXPIRED"
)

// OfferStatus описывает статус предложения поставщика.
// Допустимые переходы определяет пакет negotiation.
type OfferStatus string

const (
	OfferStatusPending        OfferStatus = "PENDING"
	OfferStatusAccepted       OfferStatus = "ACCEPTED"
	OfferStatusRejected       OfferStatus = "REJECTED"
	OfferStatusCounterOffered OfferStatus = "COUNTER_OFFERED"
)

// PaymentType описывает способ оплаты покупателя.
type PaymentType string

const (
	PaymentCreditCard PaymentType = "CREDIT_CARD"
	PaymentPix        PaymentType = "PIX"
	PaymentBoleto     PaymentType = "BOLETO"
)

// Categories содержит фиксированный перечень сегментов, по которым интересы
// маршрутизируются поставщикам.
var Categories = []string{
	"Eletrônicos & TI",
	"Eletrodomésticos",
	"Moda & Acessórios",
	"Automotivo",
	"Móveis & Decoração",
	"Ferramentas & Construção",
	"Saúde & Beleza",
	"Esportes & Lazer",
	"Serviços Profissionais",
	"Outros",
}

// IsCategory сообщает, входит ли значение в перечень категорий.
func IsCategory(category string) bool {
	return slices.Contains(Categories, category)
}

// ParseRole разбирает роль пользователя.
func ParseRole(s string) (Role, error) {
	switch r := Role(s); r {
	case RoleBuyer, RoleSupplier:
		return r, nil
	}
	return "", fmt.Errorf("unknown role %q", s)
}

// ParseIntentType разбирает тип интереса.
func ParseIntentType(s string) (IntentType, error) {
	switch t := IntentType(s); t {
	case IntentTypeBuy, IntentTypeSell, IntentTypeTrade:
		return t, nil
	}
	return "", fmt.Errorf("unknown intent type %q", s)
}

// ParseCondition разбирает состояние товара.
func ParseCondition(s string) (Condition, error) {
	switch c := Condition(s); c {
	case ConditionNew, ConditionUsed, ConditionBoth:
		return c, nil
	}
	return "", fmt.Errorf("unknown condition %q", s)
}

// ParseIntentStatus разбирает статус интереса.
func ParseIntentStatus(s string) (IntentStatus, error) {
	switch st := IntentStatus(s); st {
	case IntentStatusOpen, IntentStatusClosed, IntentStatusExpired:
		return st, nil
	}
	return "", fmt.Errorf("unknown intent status %q", s)
}

// ParseOfferStatus разбирает статус предложения.
func ParseOfferStatus(s string) (OfferStatus, error) {
	switch st := OfferStatus(s); st {
	case OfferStatusPending, OfferStatusAccepted, OfferStatusRejected, OfferStatusCounterOffered:
		return st, nil
	}
	return "", fmt.Errorf("unknown offer status %q", s)
}

// ParsePaymentType разбирает способ оплаты.
func ParsePaymentType(s string) (PaymentType, error) {
	switch p := PaymentType(s); p {
	case PaymentCreditCard, PaymentPix, PaymentBoleto:
		return p, nil
	}
	return "", fmt.Errorf("unknown payment type %q", s)
}

// Address описывает адрес пользователя. В сделки копируется по значению.
type Address struct {
	Street       string
	Number       string
	Complement   string
	Neighborhood string
	City         string
	State        string
	Zip          string
}

// PaymentMethod описывает предпочтительный способ оплаты покупателя.
type PaymentMethod struct {
	Type    PaymentType
	Details string
}

// User представляет зарегистрированного покупателя или поставщика.
type User struct {
	ID                  uuid.UUID
	Name                string
	Username            string
	PasswordHash        []byte
	PasswordSalt        []byte
	Email               string
	Phone               string
	Document            string
	Role                Role
	RegistrationAddress Address
	DeliveryAddress     *Address
	PaymentMethod       *PaymentMethod
	QuickPaymentEnabled bool
	BusinessSegments    []string
	Version             int64
	CreatedAt           time.Time
}

// HasSegment сообщает, работает ли поставщик в указанной категории.
func (u *User) HasSegment(category string) bool {
	return slices.Contains(u.BusinessSegments, category)
}

// Intent описывает опубликованный покупателем интерес с целевым бюджетом.
type Intent struct {
	ID          uuid.UUID
	UserID      uuid.UUID
	Type        IntentType
	Category    string
	ProductName string
	Description string
	Budget      int64 // в сентаво
	Condition   Condition
	Status      IntentStatus
	OffersCount int
	Version     int64
	CreatedAt   time.Time
}

// Offer описывает предложение поставщика по интересу покупателя.
type Offer struct {
	ID            uuid.UUID
	IntentID      uuid.UUID
	SupplierID    uuid.UUID
	SupplierName  string
	ProductName   string
	Price         int64 // в сентаво
	CounterPrice  *int64
	Condition     Condition
	Description   string
	Images        []string
	PaymentTerms  string
	Status        OfferStatus
	ValidUntil    time.Time
	FollowUpAt    *time.Time
	BuyerFeedback string
	Version       int64
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// Checkout хранит снимок данных покупателя, зафиксированный при принятии предложения.
type Checkout struct {
	Offer               Offer
	DeliveryAddress     *Address
	PaymentMethod       *PaymentMethod
	QuickPaymentEnabled bool
}

// SupplierStats содержит сводку по предложениям поставщика.
type SupplierStats struct {
	Total           int
	Pending         int
	Accepted        int
	Rejected        int
	CounterOffered  int
	AcceptedRevenue int64
}

// ErrAmountOutOfRange возвращается, если сумму нельзя представить в сентаво.
var ErrAmountOutOfRange = errors.New("amount out of range")

// ToCents переводит сумму в реалах в сентаво. NaN, бесконечности и суммы,
// не помещающиеся в int64, отклоняются.
func ToCents(v float64) (int64, error) {
	c := math.Round(v * 100)
	// float64(math.MaxInt64) равно 2^63 и уже не помещается в int64.
	if math.IsNaN(c) || c >= math.MaxInt64 || c < math.MinInt64 {
		return 0, fmt.Errorf("%w: %v", ErrAmountOutOfRange, v)
	}
	return int64(c), nil
}

// FromCents переводит сумму в сентаво в реалы.
func FromCents(v int64) float64 {
	return float64(v) / 100
}
