// Package address предоставляет клиент сервиса поиска адреса по почтовому индексу.
package address

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/mmeshcher/comproum/internal/model"
	"github.com/mmeshcher/comproum/internal/validation"
)

var (
	// ErrNotFound возвращается, если индекс не найден.
	ErrNotFound = errors.New("postal code not found")
	// ErrInvalidPostalCode возвращается, если индекс не состоит из 8 цифр.
	ErrInvalidPostalCode = errors.New("postal code must have 8 digits")
)

// RateLimitError возвращается при ответе 429.
type RateLimitError struct {
	RetryAfter time.Duration
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("address lookup rate limited, retry after %s", e.RetryAfter)
}

// Client инкапсулирует HTTP-взаимодействие с сервисом адресов.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

type lookupResponse struct {
	PostalCode   string `json:"cep"`
	Street       string `json:"logradouro"`
	Complement   string `json:"complemento"`
	Neighborhood string `json:"bairro"`
	City         string `json:"localidade"`
	State        string `json:"uf"`
	Erro         any    `json:"erro,omitempty"`
}

// NewClient создаёт HTTP-клиент для сервиса адресов по указанному адресу.
func NewClient(baseURL string) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: 5 * time.Second,
		},
	}
}

// Lookup возвращает адрес по почтовому индексу. Номер дома не заполняется.
func (c *Client) Lookup(ctx context.Context, postalCode string) (*model.Address, error) {
	if c == nil || c.baseURL == "" {
		return nil, fmt.Errorf("address client not configured")
	}

	cep := validation.DigitsOnly(postalCode)
	if !validation.IsValidPostalCode(cep) {
		return nil, ErrInvalidPostalCode
	}

	base := c.baseURL
	if !strings.HasPrefix(base, "http://") && !strings.HasPrefix(base, "https://") {
		base = "http://" + base
	}

	url := fmt.Sprintf("%s/ws/%s/json/", base, cep)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("do request: %w", err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
	case http.StatusBadRequest, http.StatusNotFound:
		return nil, ErrNotFound
	case http.StatusTooManyRequests:
		retryAfter := time.Duration(0)
		if v := resp.Header.Get("Retry-After"); v != "" {
			if seconds, parseErr := strconv.Atoi(v); parseErr == nil {
				retryAfter = time.Duration(seconds) * time.Second
			}
		}
		return nil, &RateLimitError{RetryAfter: retryAfter}
	default:
		return nil, fmt.Errorf("unexpected status: %d", resp.StatusCode)
	}

	var result lookupResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}

	if isErroFlag(result.Erro) {
		return nil, ErrNotFound
	}

	return &model.Address{
		Street:       result.Street,
		Complement:   result.Complement,
		Neighborhood: result.Neighborhood,
		City:         result.City,
		State:        result.State,
		Zip:          cep,
	}, nil
}

// isErroFlag распознаёт признак ошибки, который приходит как true или "true".
func isErroFlag(v any) bool {
	switch f := v.(type) {
	case bool:
		return f
	case string:
		return f == "true"
	}
	return false
}
