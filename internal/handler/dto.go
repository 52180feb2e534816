package handler

import (
	"time"

	"github.com/mmeshcher/comproum/internal/activity"
	"github.com/mmeshcher/comproum/internal/advisory"
	"github.com/mmeshcher/comproum/internal/model"
)

// Суммы в API передаются в реалах, внутри сервиса хранятся в сентаво.

type addressDTO struct {
	Street       string `json:"street"`
	Number       string `json:"number"`
	Complement   string `json:"complement,omitempty"`
	Neighborhood string `json:"neighborhood"`
	City         string `json:"city"`
	State        string `json:"state"`
	Zip          string `json:"zip"`
}

func (a addressDTO) toModel() model.Address {
	return model.Address(a)
}

func addressFromModel(a model.Address) addressDTO {
	return addressDTO(a)
}

func optionalAddress(a *model.Address) *addressDTO {
	if a == nil {
		return nil
	}
	dto := addressFromModel(*a)
	return &dto
}

type paymentDTO struct {
	Type    string `json:"type"`
	Details string `json:"details,omitempty"`
}

func optionalPayment(p *model.PaymentMethod) *paymentDTO {
	if p == nil {
		return nil
	}
	return &paymentDTO{Type: string(p.Type), Details: p.Details}
}

type userResponse struct {
	ID                  string      `json:"id"`
	Name                string      `json:"name"`
	Username            string      `json:"username"`
	Email               string      `json:"email"`
	Phone               string      `json:"phone,omitempty"`
	Document            string      `json:"document"`
	Role                string      `json:"role"`
	RegistrationAddress addressDTO  `json:"registration_address"`
	DeliveryAddress     *addressDTO `json:"delivery_address,omitempty"`
	PaymentMethod       *paymentDTO `json:"payment_method,omitempty"`
	QuickPaymentEnabled bool        `json:"quick_payment_enabled"`
	BusinessSegments    []string    `json:"business_segments"`
	Version             int64       `json:"version"`
	CreatedAt           string      `json:"created_at"`
}

func userFromModel(u *model.User) userResponse {
	segments := u.BusinessSegments
	if segments == nil {
		segments = []string{}
	}
	return userResponse{
		ID:                  u.ID.String(),
		Name:                u.Name,
		Username:            u.Username,
		Email:               u.Email,
		Phone:               u.Phone,
		Document:            u.Document,
		Role:                string(u.Role),
		RegistrationAddress: addressFromModel(u.RegistrationAddress),
		DeliveryAddress:     optionalAddress(u.DeliveryAddress),
		PaymentMethod:       optionalPayment(u.PaymentMethod),
		QuickPaymentEnabled: u.QuickPaymentEnabled,
		BusinessSegments:    segments,
		Version:             u.Version,
		CreatedAt:           u.CreatedAt.Format(time.RFC3339),
	}
}

type intentResponse struct {
	ID          string  `json:"id"`
	UserID      string  `json:"user_id"`
	Type        string  `json:"type"`
	Category    string  `json:"category"`
	ProductName string  `json:"product_name"`
	Description string  `json:"description,omitempty"`
	Budget      float64 `json:"budget"`
	Condition   string  `json:"condition"`
	Status      string  `json:"status"`
	OffersCount int     `json:"offers_count"`
	CreatedAt   string  `json:"created_at"`
}

func intentFromModel(in *model.Intent) intentResponse {
	return intentResponse{
		ID:          in.ID.String(),
		UserID:      in.UserID.String(),
		Type:        string(in.Type),
		Category:    in.Category,
		ProductName: in.ProductName,
		Description: in.Description,
		Budget:      model.FromCents(in.Budget),
		Condition:   string(in.Condition),
		Status:      string(in.Status),
		OffersCount: in.OffersCount,
		CreatedAt:   in.CreatedAt.Format(time.RFC3339),
	}
}

func intentsFromModel(list []model.Intent) []intentResponse {
	resp := make([]intentResponse, 0, len(list))
	for i := range list {
		resp = append(resp, intentFromModel(&list[i]))
	}
	return resp
}

type offerResponse struct {
	ID            string   `json:"id"`
	IntentID      string   `json:"intent_id"`
	SupplierID    string   `json:"supplier_id"`
	SupplierName  string   `json:"supplier_name"`
	ProductName   string   `json:"product_name"`
	Price         float64  `json:"price"`
	CounterPrice  *float64 `json:"counter_price,omitempty"`
	Condition     string   `json:"condition"`
	Description   string   `json:"description,omitempty"`
	Images        []string `json:"images"`
	PaymentTerms  string   `json:"payment_terms,omitempty"`
	Status        string   `json:"status"`
	ValidUntil    string   `json:"valid_until,omitempty"`
	FollowUpAt    string   `json:"follow_up_at,omitempty"`
	BuyerFeedback string   `json:"buyer_feedback,omitempty"`
	Version       int64    `json:"version"`
	CreatedAt     string   `json:"created_at"`
	UpdatedAt     string   `json:"updated_at"`
}

func optionalMoney(v *int64) *float64 {
	if v == nil {
		return nil
	}
	f := model.FromCents(*v)
	return &f
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.Format(time.RFC3339)
}

func offerFromModel(o *model.Offer) offerResponse {
	images := o.Images
	if images == nil {
		images = []string{}
	}
	resp := offerResponse{
		ID:            o.ID.String(),
		IntentID:      o.IntentID.String(),
		SupplierID:    o.SupplierID.String(),
		SupplierName:  o.SupplierName,
		ProductName:   o.ProductName,
		Price:         model.FromCents(o.Price),
		CounterPrice:  optionalMoney(o.CounterPrice),
		Condition:     string(o.Condition),
		Description:   o.Description,
		Images:        images,
		PaymentTerms:  o.PaymentTerms,
		Status:        string(o.Status),
		ValidUntil:    formatTime(o.ValidUntil),
		BuyerFeedback: o.BuyerFeedback,
		Version:       o.Version,
		CreatedAt:     formatTime(o.CreatedAt),
		UpdatedAt:     formatTime(o.UpdatedAt),
	}
	if o.FollowUpAt != nil {
		resp.FollowUpAt = formatTime(*o.FollowUpAt)
	}
	return resp
}

func offersFromModel(list []model.Offer) []offerResponse {
	resp := make([]offerResponse, 0, len(list))
	for i := range list {
		resp = append(resp, offerFromModel(&list[i]))
	}
	return resp
}

type checkoutResponse struct {
	Offer               offerResponse `json:"offer"`
	DeliveryAddress     *addressDTO   `json:"delivery_address,omitempty"`
	PaymentMethod       *paymentDTO   `json:"payment_method,omitempty"`
	QuickPaymentEnabled bool          `json:"quick_payment_enabled"`
}

type statsResponse struct {
	Total           int     `json:"total"`
	Pending         int     `json:"pending"`
	Accepted        int     `json:"accepted"`
	Rejected        int     `json:"rejected"`
	CounterOffered  int     `json:"counter_offered"`
	AcceptedRevenue float64 `json:"accepted_revenue"`
}

type historyResponse struct {
	ActorID      string   `json:"actor_id"`
	Action       string   `json:"action"`
	FromStatus   string   `json:"from_status,omitempty"`
	ToStatus     string   `json:"to_status"`
	Price        float64  `json:"price"`
	CounterPrice *float64 `json:"counter_price,omitempty"`
	Note         string   `json:"note,omitempty"`
	At           string   `json:"at"`
}

func historyFromModel(entries []activity.Entry) []historyResponse {
	resp := make([]historyResponse, 0, len(entries))
	for _, e := range entries {
		resp = append(resp, historyResponse{
			ActorID:      e.ActorID.String(),
			Action:       string(e.Action),
			FromStatus:   string(e.FromStatus),
			ToStatus:     string(e.ToStatus),
			Price:        model.FromCents(e.Price),
			CounterPrice: optionalMoney(e.CounterPrice),
			Note:         e.Note,
			At:           e.At.Format(time.RFC3339),
		})
	}
	return resp
}

type sourceResponse struct {
	Title string `json:"title"`
	URI   string `json:"uri"`
}

type insightResponse struct {
	MinPrice float64          `json:"min_price"`
	MaxPrice float64          `json:"max_price"`
	Analysis string           `json:"analysis,omitempty"`
	Sources  []sourceResponse `json:"sources"`
}

func insightFromModel(in *advisory.Insight) insightResponse {
	resp := insightResponse{
		MinPrice: model.FromCents(in.MinPrice),
		MaxPrice: model.FromCents(in.MaxPrice),
		Analysis: in.Analysis,
		Sources:  make([]sourceResponse, 0, len(in.Sources)),
	}
	for _, s := range in.Sources {
		resp.Sources = append(resp.Sources, sourceResponse(s))
	}
	return resp
}
