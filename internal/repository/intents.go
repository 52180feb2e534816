package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/gofrs/uuid/v5"
	"github.com/jackc/pgx/v5"

	"github.com/mmeshcher/comproum/internal/model"
)

const intentColumns = `id, user_id, type, category, product_name, description, budget, condition,
	status, offers_count, version, created_at`

func scanIntent(row scanner) (*model.Intent, error) {
	var (
		in                      model.Intent
		typ, condition, status string
	)
	err := row.Scan(&in.ID, &in.UserID, &typ, &in.Category, &in.ProductName, &in.Description,
		&in.Budget, &condition, &status, &in.OffersCount, &in.Version, &in.CreatedAt)
	if err != nil {
		return nil, err
	}

	if in.Type, err = model.ParseIntentType(typ); err != nil {
		return nil, err
	}
	if in.Condition, err = model.ParseCondition(condition); err != nil {
		return nil, err
	}
	if in.Status, err = model.ParseIntentStatus(status); err != nil {
		return nil, err
	}
	return &in, nil
}

func (r *PostgresRepository) queryIntents(ctx context.Context, query string, args ...any) ([]model.Intent, error) {
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("select intents: %w", err)
	}
	defer rows.Close()

	var res []model.Intent
	for rows.Next() {
		in, err := scanIntent(rows)
		if err != nil {
			return nil, fmt.Errorf("scan intent: %w", err)
		}
		res = append(res, *in)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}
	return res, nil
}

// CreateIntent сохраняет новый интерес.
func (r *PostgresRepository) CreateIntent(ctx context.Context, in *model.Intent) error {
	if in.Version == 0 {
		in.Version = 1
	}
	if in.CreatedAt.IsZero() {
		in.CreatedAt = time.Now().UTC()
	}

	_, err := r.pool.Exec(ctx,
		`INSERT INTO intents (`+intentColumns+`)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`,
		in.ID, in.UserID, string(in.Type), in.Category, in.ProductName, in.Description,
		in.Budget, string(in.Condition), string(in.Status), in.OffersCount, in.Version, in.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("create intent: %w", err)
	}
	return nil
}

// UpdateIntent меняет статус интереса с проверкой версии.
func (r *PostgresRepository) UpdateIntent(ctx context.Context, in *model.Intent) error {
	tag, err := r.pool.Exec(ctx,
		`UPDATE intents SET status = $3, version = version + 1
		 WHERE id = $1 AND version = $2`,
		in.ID, in.Version, string(in.Status),
	)
	if err != nil {
		return fmt.Errorf("update intent: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrVersionConflict
	}

	in.Version++
	return nil
}

// GetIntent возвращает интерес по идентификатору.
func (r *PostgresRepository) GetIntent(ctx context.Context, id uuid.UUID) (*model.Intent, error) {
	in, err := scanIntent(r.pool.QueryRow(ctx, `SELECT `+intentColumns+` FROM intents WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get intent: %w", err)
	}
	return in, nil
}

// ListIntents возвращает все интересы, новые первыми.
func (r *PostgresRepository) ListIntents(ctx context.Context) ([]model.Intent, error) {
	return r.queryIntents(ctx, `SELECT `+intentColumns+` FROM intents ORDER BY created_at DESC`)
}

// ListIntentsByUser возвращает интересы покупателя, новые первыми.
func (r *PostgresRepository) ListIntentsByUser(ctx context.Context, userID uuid.UUID) ([]model.Intent, error) {
	return r.queryIntents(ctx,
		`SELECT `+intentColumns+` FROM intents WHERE user_id = $1 ORDER BY created_at DESC`, userID)
}

// ListOpenIntents возвращает открытые интересы в указанных категориях, новые первыми.
func (r *PostgresRepository) ListOpenIntents(ctx context.Context, categories []string) ([]model.Intent, error) {
	if len(categories) == 0 {
		return nil, nil
	}
	return r.queryIntents(ctx,
		`SELECT `+intentColumns+` FROM intents
		 WHERE status = 'OPEN' AND category = ANY($1)
		 ORDER BY created_at DESC`, categories)
}
