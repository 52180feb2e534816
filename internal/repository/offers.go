package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/gofrs/uuid/v5"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/mmeshcher/comproum/internal/model"
)

const offerColumns = `id, intent_id, supplier_id, supplier_name, product_name, price, counter_price,
	condition, description, images, payment_terms, status, valid_until, follow_up_at, buyer_feedback,
	version, created_at, updated_at`

func scanOffer(row scanner) (*model.Offer, error) {
	var (
		o                 model.Offer
		condition, status string
	)
	err := row.Scan(&o.ID, &o.IntentID, &o.SupplierID, &o.SupplierName, &o.ProductName, &o.Price,
		&o.CounterPrice, &condition, &o.Description, &o.Images, &o.PaymentTerms, &status, &o.ValidUntil,
		&o.FollowUpAt, &o.BuyerFeedback, &o.Version, &o.CreatedAt, &o.UpdatedAt)
	if err != nil {
		return nil, err
	}

	if o.Condition, err = model.ParseCondition(condition); err != nil {
		return nil, err
	}
	if o.Status, err = model.ParseOfferStatus(status); err != nil {
		return nil, err
	}
	if o.Images == nil {
		o.Images = []string{}
	}
	return &o, nil
}

func (r *PostgresRepository) queryOffers(ctx context.Context, query string, args ...any) ([]model.Offer, error) {
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("select offers: %w", err)
	}
	defer rows.Close()

	var res []model.Offer
	for rows.Next() {
		o, err := scanOffer(rows)
		if err != nil {
			return nil, fmt.Errorf("scan offer: %w", err)
		}
		res = append(res, *o)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}
	return res, nil
}

func imagesOrEmpty(images []string) []string {
	if images == nil {
		return []string{}
	}
	return images
}

// lockOpenIntent блокирует строку интереса до конца транзакции и проверяет, что он открыт.
func lockOpenIntent(ctx context.Context, tx pgx.Tx, intentID uuid.UUID) error {
	var status string
	err := tx.QueryRow(ctx, `SELECT status FROM intents WHERE id = $1 FOR UPDATE`, intentID).Scan(&status)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ErrNotFound
		}
		return fmt.Errorf("lock intent: %w", err)
	}
	if status != string(model.IntentStatusOpen) {
		return ErrIntentClosed
	}
	return nil
}

// CreateOffer сохраняет предложение и увеличивает счётчик предложений интереса
// в одной транзакции. Интерес должен быть открыт.
func (r *PostgresRepository) CreateOffer(ctx context.Context, o *model.Offer) error {
	now := time.Now().UTC()
	if o.CreatedAt.IsZero() {
		o.CreatedAt = now
	}
	o.UpdatedAt = o.CreatedAt
	o.Version = 1

	return r.withRetry(ctx, func() error {
		return r.inTx(ctx, func(tx pgx.Tx) error {
			if err := lockOpenIntent(ctx, tx, o.IntentID); err != nil {
				return err
			}

			_, err := tx.Exec(ctx,
				`INSERT INTO offers (`+offerColumns+`)
				 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18)`,
				o.ID, o.IntentID, o.SupplierID, o.SupplierName, o.ProductName, o.Price, o.CounterPrice,
				string(o.Condition), o.Description, imagesOrEmpty(o.Images), o.PaymentTerms, string(o.Status),
				o.ValidUntil, o.FollowUpAt, o.BuyerFeedback, o.Version, o.CreatedAt, o.UpdatedAt,
			)
			if err != nil {
				return fmt.Errorf("insert offer: %w", err)
			}

			_, err = tx.Exec(ctx,
				`UPDATE intents SET offers_count = offers_count + 1, version = version + 1 WHERE id = $1`,
				o.IntentID)
			if err != nil {
				return fmt.Errorf("increment offers count: %w", err)
			}
			return nil
		})
	})
}

type execer interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

func updateOffer(ctx context.Context, q execer, o *model.Offer) error {
	o.UpdatedAt = time.Now().UTC()

	tag, err := q.Exec(ctx,
		`UPDATE offers
		 SET price = $3, counter_price = $4, description = $5, images = $6, payment_terms = $7,
		     status = $8, valid_until = $9, follow_up_at = $10, buyer_feedback = $11,
		     updated_at = $12, version = version + 1
		 WHERE id = $1 AND version = $2`,
		o.ID, o.Version, o.Price, o.CounterPrice, o.Description, imagesOrEmpty(o.Images), o.PaymentTerms,
		string(o.Status), o.ValidUntil, o.FollowUpAt, o.BuyerFeedback, o.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("update offer: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrVersionConflict
	}

	o.Version++
	return nil
}

// UpdateOffer перезаписывает изменяемые поля предложения с проверкой версии.
// Счётчик предложений интереса не меняется.
func (r *PostgresRepository) UpdateOffer(ctx context.Context, o *model.Offer) error {
	return updateOffer(ctx, r.pool, o)
}

// UpdateOpenOffer перезаписывает предложение с проверкой версии, пока его
// интерес открыт. Строка интереса блокируется до конца транзакции, поэтому
// параллельное принятие другого предложения не оставит это в работе.
func (r *PostgresRepository) UpdateOpenOffer(ctx context.Context, o *model.Offer) error {
	version := o.Version

	err := r.withRetry(ctx, func() error {
		o.Version = version
		return r.inTx(ctx, func(tx pgx.Tx) error {
			if err := lockOpenIntent(ctx, tx, o.IntentID); err != nil {
				return err
			}
			return updateOffer(ctx, tx, o)
		})
	})
	if err != nil {
		o.Version = version
	}
	return err
}

// AcceptOffer сохраняет принятое предложение и закрывает его интерес в одной транзакции.
func (r *PostgresRepository) AcceptOffer(ctx context.Context, o *model.Offer) error {
	version := o.Version

	err := r.withRetry(ctx, func() error {
		o.Version = version
		return r.inTx(ctx, func(tx pgx.Tx) error {
			if err := lockOpenIntent(ctx, tx, o.IntentID); err != nil {
				return err
			}
			if err := updateOffer(ctx, tx, o); err != nil {
				return err
			}

			_, err := tx.Exec(ctx,
				`UPDATE intents SET status = 'CLOSED', version = version + 1 WHERE id = $1`,
				o.IntentID)
			if err != nil {
				return fmt.Errorf("close intent: %w", err)
			}
			return nil
		})
	})
	if err != nil {
		o.Version = version
	}
	return err
}

// GetOffer возвращает предложение по идентификатору.
func (r *PostgresRepository) GetOffer(ctx context.Context, id uuid.UUID) (*model.Offer, error) {
	o, err := scanOffer(r.pool.QueryRow(ctx, `SELECT `+offerColumns+` FROM offers WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get offer: %w", err)
	}
	return o, nil
}

// ListOffers возвращает все предложения, новые первыми.
func (r *PostgresRepository) ListOffers(ctx context.Context) ([]model.Offer, error) {
	return r.queryOffers(ctx, `SELECT `+offerColumns+` FROM offers ORDER BY created_at DESC`)
}

// ListOffersByIntent возвращает предложения по интересу, новые первыми.
func (r *PostgresRepository) ListOffersByIntent(ctx context.Context, intentID uuid.UUID) ([]model.Offer, error) {
	return r.queryOffers(ctx,
		`SELECT `+offerColumns+` FROM offers WHERE intent_id = $1 ORDER BY created_at DESC`, intentID)
}

// ListOffersBySupplier возвращает предложения поставщика, новые первыми.
func (r *PostgresRepository) ListOffersBySupplier(ctx context.Context, supplierID uuid.UUID) ([]model.Offer, error) {
	return r.queryOffers(ctx,
		`SELECT `+offerColumns+` FROM offers WHERE supplier_id = $1 ORDER BY created_at DESC`, supplierID)
}
