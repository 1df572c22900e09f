package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/musicsupplies/promo-service/internal/models"
	"github.com/musicsupplies/promo-service/internal/service"
)

const usageColumns = `id, promo_code_id, account_number, order_id, discount_amount, redeemed_at, reversed_at`

const uniqueViolation = "23505"

func (s *PostgresStore) CountActiveUsage(ctx context.Context, promoID uuid.UUID, account string) (int, error) {
	query := `
		SELECT COUNT(*) FROM promo_code_usage
		WHERE promo_code_id = $1 AND account_number = $2 AND reversed_at IS NULL
	`
	var count int
	if err := s.db.QueryRowContext(ctx, query, promoID, account).Scan(&count); err != nil {
		return 0, fmt.Errorf("count active usage: %w", err)
	}
	return count, nil
}

// InsertUsage runs the whole redemption write in one serializable
// transaction. The promo row is locked first, so redemptions of the same
// code serialize on that lock; the partial unique index on
// promo_code_usage(order_id) WHERE reversed_at IS NULL backstops
// order-level races across different codes.
func (s *PostgresStore) InsertUsage(ctx context.Context, rec *models.UsageRecord, limits service.UsageLimits) (service.InsertOutcome, error) {
	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return 0, fmt.Errorf("begin tx: %w", err)
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()

	var usesRemaining sql.NullInt64
	lock := `SELECT uses_remaining FROM promo_codes WHERE id = $1 FOR UPDATE`
	if err := tx.QueryRowContext(ctx, lock, rec.PromoCodeID).Scan(&usesRemaining); err != nil {
		return 0, fmt.Errorf("lock promo row: %w", err)
	}

	var existing string
	dup := `SELECT id FROM promo_code_usage WHERE order_id = $1 AND reversed_at IS NULL`
	switch err := tx.QueryRowContext(ctx, dup, rec.OrderID).Scan(&existing); {
	case err == nil:
		return service.OutcomeDuplicateOrder, nil
	case errors.Is(err, sql.ErrNoRows):
		// proceed
	default:
		return 0, fmt.Errorf("check duplicate order: %w", err)
	}

	if limits.MaxPerAccount != nil {
		count := `
			SELECT COUNT(*) FROM promo_code_usage
			WHERE promo_code_id = $1 AND account_number = $2 AND reversed_at IS NULL
		`
		var used int
		if err := tx.QueryRowContext(ctx, count, rec.PromoCodeID, rec.AccountNumber).Scan(&used); err != nil {
			return 0, fmt.Errorf("count usage in tx: %w", err)
		}
		if used >= *limits.MaxPerAccount {
			return service.OutcomeAccountLimit, nil
		}
	}

	if limits.Tracked {
		if !usesRemaining.Valid || usesRemaining.Int64 <= 0 {
			return service.OutcomeExhausted, nil
		}
		decrement := `UPDATE promo_codes SET uses_remaining = uses_remaining - 1, updated_at = NOW() WHERE id = $1`
		if _, err := tx.ExecContext(ctx, decrement, rec.PromoCodeID); err != nil {
			return 0, fmt.Errorf("decrement uses_remaining: %w", err)
		}
	}

	insert := `
		INSERT INTO promo_code_usage (id, promo_code_id, account_number, order_id, discount_amount, redeemed_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`
	if _, err := tx.ExecContext(ctx, insert,
		rec.ID, rec.PromoCodeID, rec.AccountNumber, rec.OrderID, rec.DiscountAmount, rec.RedeemedAt,
	); err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && string(pqErr.Code) == uniqueViolation {
			return service.OutcomeDuplicateOrder, nil
		}
		return 0, fmt.Errorf("insert usage record: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit redemption: %w", err)
	}
	committed = true
	return service.OutcomeInserted, nil
}

func (s *PostgresStore) GetActiveUsageByOrder(ctx context.Context, orderID string) (*models.UsageRecord, error) {
	query := `SELECT ` + usageColumns + ` FROM promo_code_usage WHERE order_id = $1 AND reversed_at IS NULL`
	rec, err := scanUsage(s.db.QueryRowContext(ctx, query, orderID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("query usage by order: %w", err)
	}
	return rec, nil
}

// MarkReversed flips reversed_at and restores the global counter in the
// same transaction. The reversed_at IS NULL predicate makes a second
// call for the same order a no-op.
func (s *PostgresStore) MarkReversed(ctx context.Context, orderID string, now time.Time) (*models.UsageRecord, error) {
	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()

	reverse := `
		UPDATE promo_code_usage SET reversed_at = $2
		WHERE order_id = $1 AND reversed_at IS NULL
		RETURNING ` + usageColumns
	rec, err := scanUsage(tx.QueryRowContext(ctx, reverse, orderID, now))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("mark usage reversed: %w", err)
	}

	restore := `
		UPDATE promo_codes
		SET uses_remaining = LEAST(uses_remaining + 1, COALESCE(max_uses, uses_remaining + 1)),
		    updated_at = NOW()
		WHERE id = $1 AND uses_remaining IS NOT NULL
	`
	if _, err := tx.ExecContext(ctx, restore, rec.PromoCodeID); err != nil {
		return nil, fmt.Errorf("restore uses_remaining: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit reversal: %w", err)
	}
	committed = true
	return rec, nil
}

func (s *PostgresStore) ListUsage(ctx context.Context, promoID uuid.UUID, account string) ([]*models.UsageRecord, error) {
	query := `SELECT ` + usageColumns + ` FROM promo_code_usage WHERE promo_code_id = $1`
	args := []any{promoID}
	if account != "" {
		query += ` AND account_number = $2`
		args = append(args, account)
	}
	query += ` ORDER BY redeemed_at`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list usage: %w", err)
	}
	defer rows.Close()

	var out []*models.UsageRecord
	for rows.Next() {
		rec, err := scanUsage(rows)
		if err != nil {
			return nil, fmt.Errorf("scan usage row: %w", err)
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

func scanUsage(row rowScanner) (*models.UsageRecord, error) {
	var rec models.UsageRecord
	var reversed sql.NullTime
	err := row.Scan(
		&rec.ID, &rec.PromoCodeID, &rec.AccountNumber, &rec.OrderID,
		&rec.DiscountAmount, &rec.RedeemedAt, &reversed,
	)
	if err != nil {
		return nil, err
	}
	if reversed.Valid {
		rec.ReversedAt = &reversed.Time
	}
	return &rec, nil
}
