package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/gofrs/uuid/v5"
	"github.com/jackc/pgx/v5"

	"github.com/mmeshcher/comproum/internal/model"
	"github.com/mmeshcher/comproum/internal/validation"
)

const userColumns = `id, name, username, password_hash, password_salt, email, phone, document, role,
	registration_address, delivery_address, payment_method, quick_payment_enabled, business_segments,
	version, created_at`

type addressJSON struct {
	Street       string `json:"street"`
	Number       string `json:"number"`
	Complement   string `json:"complement,omitempty"`
	Neighborhood string `json:"neighborhood"`
	City         string `json:"city"`
	State        string `json:"state"`
	Zip          string `json:"zip"`
}

type paymentJSON struct {
	Type    string `json:"type"`
	Details string `json:"details"`
}

func encodeAddress(a *model.Address) ([]byte, error) {
	if a == nil {
		return nil, nil
	}
	return json.Marshal(addressJSON(*a))
}

func decodeAddress(raw []byte) (*model.Address, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	var a addressJSON
	if err := json.Unmarshal(raw, &a); err != nil {
		return nil, fmt.Errorf("decode address: %w", err)
	}
	res := model.Address(a)
	return &res, nil
}

func encodePayment(p *model.PaymentMethod) ([]byte, error) {
	if p == nil {
		return nil, nil
	}
	return json.Marshal(paymentJSON{Type: string(p.Type), Details: p.Details})
}

func decodePayment(raw []byte) (*model.PaymentMethod, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	var p paymentJSON
	if err := json.Unmarshal(raw, &p); err != nil {
		return nil, fmt.Errorf("decode payment method: %w", err)
	}
	pt, err := model.ParsePaymentType(p.Type)
	if err != nil {
		return nil, err
	}
	return &model.PaymentMethod{Type: pt, Details: p.Details}, nil
}

func scanUser(row scanner) (*model.User, error) {
	var (
		u                       model.User
		role                    string
		regAddr, delAddr, payRaw []byte
	)
	err := row.Scan(&u.ID, &u.Name, &u.Username, &u.PasswordHash, &u.PasswordSalt, &u.Email, &u.Phone,
		&u.Document, &role, &regAddr, &delAddr, &payRaw, &u.QuickPaymentEnabled, &u.BusinessSegments,
		&u.Version, &u.CreatedAt)
	if err != nil {
		return nil, err
	}

	if u.Role, err = model.ParseRole(role); err != nil {
		return nil, err
	}
	reg, err := decodeAddress(regAddr)
	if err != nil {
		return nil, err
	}
	if reg != nil {
		u.RegistrationAddress = *reg
	}
	if u.DeliveryAddress, err = decodeAddress(delAddr); err != nil {
		return nil, err
	}
	if u.PaymentMethod, err = decodePayment(payRaw); err != nil {
		return nil, err
	}
	return &u, nil
}

func userArgs(u *model.User) (reg, del, pay []byte, err error) {
	if reg, err = encodeAddress(&u.RegistrationAddress); err != nil {
		return nil, nil, nil, fmt.Errorf("encode address: %w", err)
	}
	if del, err = encodeAddress(u.DeliveryAddress); err != nil {
		return nil, nil, nil, fmt.Errorf("encode address: %w", err)
	}
	if pay, err = encodePayment(u.PaymentMethod); err != nil {
		return nil, nil, nil, fmt.Errorf("encode payment method: %w", err)
	}
	return reg, del, pay, nil
}

func segmentsOrEmpty(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}

// CreateUser создаёт нового пользователя.
func (r *PostgresRepository) CreateUser(ctx context.Context, u *model.User) error {
	reg, del, pay, err := userArgs(u)
	if err != nil {
		return err
	}
	if u.Version == 0 {
		u.Version = 1
	}
	if u.CreatedAt.IsZero() {
		u.CreatedAt = time.Now().UTC()
	}

	_, err = r.pool.Exec(ctx,
		`INSERT INTO users (`+userColumns+`, document_digits)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17)`,
		u.ID, u.Name, u.Username, u.PasswordHash, u.PasswordSalt, u.Email, u.Phone, u.Document, string(u.Role),
		reg, del, pay, u.QuickPaymentEnabled, segmentsOrEmpty(u.BusinessSegments), u.Version, u.CreatedAt,
		validation.DigitsOnly(u.Document),
	)
	if err != nil {
		if constraint, ok := uniqueConstraint(err); ok {
			if constraint == "users_document_digits_idx" {
				return fmt.Errorf("%w: %s", ErrDocumentExists, u.Document)
			}
			return fmt.Errorf("%w: %s", ErrUserExists, u.Username)
		}
		return fmt.Errorf("create user: %w", err)
	}
	return nil
}

// UpdateUser перезаписывает профиль пользователя с проверкой версии.
func (r *PostgresRepository) UpdateUser(ctx context.Context, u *model.User) error {
	reg, del, pay, err := userArgs(u)
	if err != nil {
		return err
	}

	tag, err := r.pool.Exec(ctx,
		`UPDATE users
		 SET name = $3, email = $4, phone = $5, document = $6, document_digits = $7,
		     registration_address = $8, delivery_address = $9, payment_method = $10,
		     quick_payment_enabled = $11, business_segments = $12, version = version + 1
		 WHERE id = $1 AND version = $2`,
		u.ID, u.Version, u.Name, u.Email, u.Phone, u.Document, validation.DigitsOnly(u.Document),
		reg, del, pay, u.QuickPaymentEnabled, segmentsOrEmpty(u.BusinessSegments),
	)
	if err != nil {
		if constraint, ok := uniqueConstraint(err); ok && constraint == "users_document_digits_idx" {
			return fmt.Errorf("%w: %s", ErrDocumentExists, u.Document)
		}
		return fmt.Errorf("update user: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrVersionConflict
	}

	u.Version++
	return nil
}

func (r *PostgresRepository) getUser(ctx context.Context, where string, arg any) (*model.User, error) {
	u, err := scanUser(r.pool.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE `+where, arg))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get user: %w", err)
	}
	return u, nil
}

// GetUserByID возвращает пользователя по идентификатору.
func (r *PostgresRepository) GetUserByID(ctx context.Context, id uuid.UUID) (*model.User, error) {
	return r.getUser(ctx, `id = $1`, id)
}

// GetUserByUsername возвращает пользователя по логину без учёта регистра.
func (r *PostgresRepository) GetUserByUsername(ctx context.Context, username string) (*model.User, error) {
	return r.getUser(ctx, `lower(username) = lower($1)`, username)
}

// GetUserByDocument возвращает пользователя по документу без учёта форматирования.
func (r *PostgresRepository) GetUserByDocument(ctx context.Context, document string) (*model.User, error) {
	digits := validation.DigitsOnly(document)
	if digits == "" {
		return nil, ErrNotFound
	}
	return r.getUser(ctx, `document_digits = $1`, digits)
}

// ListUsers возвращает всех пользователей в порядке регистрации.
func (r *PostgresRepository) ListUsers(ctx context.Context) ([]model.User, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+userColumns+` FROM users ORDER BY created_at`)
	if err != nil {
		return nil, fmt.Errorf("select users: %w", err)
	}
	defer rows.Close()

	var res []model.User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, fmt.Errorf("scan user: %w", err)
		}
		res = append(res, *u)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}
	return res, nil
}
