package handler

import (
	"net/http"

	"go.uber.org/zap"

	"github.com/mmeshcher/comproum/internal/model"
	"github.com/mmeshcher/comproum/internal/service"
)

type registerRequest struct {
	Name             string     `json:"name"`
	Username         string     `json:"username"`
	Password         string     `json:"password"`
	Email            string     `json:"email"`
	Phone            string     `json:"phone"`
	Document         string     `json:"document"`
	Role             string     `json:"role"`
	Address          addressDTO `json:"address"`
	BusinessSegments []string   `json:"business_segments"`
}

type credentialsRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type authResponse struct {
	Token string       `json:"token"`
	User  userResponse `json:"user"`
}

func (h *Handler) startSession(w http.ResponseWriter, u *model.User, status int) {
	token, err := h.authMiddleware.SetAuthCookie(w, u.ID, u.Role)
	if err != nil {
		h.logger.Error("issue token error", zap.Error(err), zap.String("userID", u.ID.String()))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}
	writeJSON(w, status, authResponse{Token: token, User: userFromModel(u)})
}

// Register обрабатывает регистрацию нового пользователя и открывает сессию.
func (h *Handler) Register(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := decodeJSON(r, &req); err != nil {
		badRequest(w)
		return
	}

	if req.Username == "" || req.Password == "" {
		badRequest(w)
		return
	}

	u, err := h.service.Register(r.Context(), service.RegisterInput{
		Name:             req.Name,
		Username:         req.Username,
		Password:         req.Password,
		Email:            req.Email,
		Phone:            req.Phone,
		Document:         req.Document,
		Role:             req.Role,
		Address:          req.Address.toModel(),
		BusinessSegments: req.BusinessSegments,
	})
	if err != nil {
		h.writeError(w, "register user error", err)
		return
	}

	h.startSession(w, u, http.StatusCreated)
}

// Login выполняет аутентификацию пользователя и устанавливает cookie.
func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var req credentialsRequest
	if err := decodeJSON(r, &req); err != nil {
		badRequest(w)
		return
	}

	if req.Username == "" || req.Password == "" {
		badRequest(w)
		return
	}

	u, err := h.service.Authenticate(r.Context(), req.Username, req.Password)
	if err != nil {
		h.writeError(w, "login user error", err)
		return
	}

	h.startSession(w, u, http.StatusOK)
}

// Logout завершает сессию.
func (h *Handler) Logout(w http.ResponseWriter, r *http.Request) {
	h.authMiddleware.ClearAuthCookie(w)
	w.WriteHeader(http.StatusNoContent)
}

// Me возвращает профиль текущего пользователя.
func (h *Handler) Me(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUser(w, r)
	if !ok {
		return
	}

	u, err := h.service.GetUser(r.Context(), userID)
	if err != nil {
		h.writeError(w, "get user error", err, zap.String("userID", userID.String()))
		return
	}

	writeJSON(w, http.StatusOK, userFromModel(u))
}

type profileRequest struct {
	Name                string      `json:"name"`
	Email               string      `json:"email"`
	Phone               string      `json:"phone"`
	Document            string      `json:"document"`
	RegistrationAddress *addressDTO `json:"registration_address"`
	DeliveryAddress     *addressDTO `json:"delivery_address"`
	PaymentMethod       *paymentDTO `json:"payment_method"`
	QuickPaymentEnabled *bool       `json:"quick_payment_enabled"`
	BusinessSegments    []string    `json:"business_segments"`
	Version             int64       `json:"version"`
}

func (req profileRequest) toInput() (service.ProfileInput, error) {
	in := service.ProfileInput{
		Name:                req.Name,
		Email:               req.Email,
		Phone:               req.Phone,
		Document:            req.Document,
		QuickPaymentEnabled: req.QuickPaymentEnabled,
		BusinessSegments:    req.BusinessSegments,
		Version:             req.Version,
	}
	if req.RegistrationAddress != nil {
		a := req.RegistrationAddress.toModel()
		in.RegistrationAddress = &a
	}
	if req.DeliveryAddress != nil {
		a := req.DeliveryAddress.toModel()
		in.DeliveryAddress = &a
	}
	if req.PaymentMethod != nil {
		typ, err := model.ParsePaymentType(req.PaymentMethod.Type)
		if err != nil {
			return in, err
		}
		in.PaymentMethod = &model.PaymentMethod{Type: typ, Details: req.PaymentMethod.Details}
	}
	return in, nil
}

// UpdateProfile сохраняет изменения профиля с проверкой версии.
func (h *Handler) UpdateProfile(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUser(w, r)
	if !ok {
		return
	}

	var req profileRequest
	if err := decodeJSON(r, &req); err != nil {
		badRequest(w)
		return
	}

	in, err := req.toInput()
	if err != nil {
		http.Error(w, err.Error(), http.StatusUnprocessableEntity)
		return
	}

	u, err := h.service.UpdateProfile(r.Context(), userID, in)
	if err != nil {
		h.writeError(w, "update profile error", err, zap.String("userID", userID.String()))
		return
	}

	writeJSON(w, http.StatusOK, userFromModel(u))
}
