package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/musicsupplies/promo-service/internal/models"
)

// PostgresStore implements the service store contract on postgres. The
// promo-code side lives here; the ledger operations are in
// usage_repo.go.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

const promoColumns = `id, code, name, type, value, min_order_value, start_date, end_date,
       is_active, max_uses, uses_remaining, max_uses_per_account, created_at, updated_at`

func (s *PostgresStore) GetByCode(ctx context.Context, code string) (*models.PromoCode, error) {
	query := `SELECT ` + promoColumns + ` FROM promo_codes WHERE UPPER(code) = UPPER($1)`
	promo, err := scanPromo(s.db.QueryRowContext(ctx, query, code))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("query promo by code: %w", err)
	}
	return promo, nil
}

func (s *PostgresStore) Create(ctx context.Context, p *models.PromoCode) error {
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	query := `
		INSERT INTO promo_codes
		(id, code, name, type, value, min_order_value, start_date, end_date,
		 is_active, max_uses, uses_remaining, max_uses_per_account, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,NOW(),NOW())
	`
	_, err := s.db.ExecContext(ctx, query,
		p.ID, p.Code, p.Name, p.Kind, p.Value, p.MinOrderValue,
		nullTime(p.Window.Start), nullTime(p.Window.End),
		p.Active, nullInt(p.MaxUses), nullInt(p.UsesRemaining), nullInt(p.MaxUsesPerAccount),
	)
	if err != nil {
		return fmt.Errorf("insert promo: %w", err)
	}
	return nil
}

func (s *PostgresStore) Update(ctx context.Context, p *models.PromoCode) error {
	query := `
		UPDATE promo_codes SET
		  name = $2, type = $3, value = $4, min_order_value = $5,
		  start_date = $6, end_date = $7, is_active = $8,
		  max_uses = $9, uses_remaining = $10, max_uses_per_account = $11,
		  updated_at = NOW()
		WHERE id = $1
	`
	_, err := s.db.ExecContext(ctx, query,
		p.ID, p.Name, p.Kind, p.Value, p.MinOrderValue,
		nullTime(p.Window.Start), nullTime(p.Window.End), p.Active,
		nullInt(p.MaxUses), nullInt(p.UsesRemaining), nullInt(p.MaxUsesPerAccount),
	)
	if err != nil {
		return fmt.Errorf("update promo: %w", err)
	}
	return nil
}

func (s *PostgresStore) UpdateActive(ctx context.Context, code string, active bool) (*models.PromoCode, error) {
	query := `
		UPDATE promo_codes SET is_active = $2, updated_at = NOW()
		WHERE UPPER(code) = UPPER($1)
		RETURNING ` + promoColumns
	promo, err := scanPromo(s.db.QueryRowContext(ctx, query, code, active))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("update promo active flag: %w", err)
	}
	return promo, nil
}

func (s *PostgresStore) ListActive(ctx context.Context) ([]*models.PromoCode, error) {
	query := `SELECT ` + promoColumns + ` FROM promo_codes WHERE is_active = TRUE ORDER BY code`
	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list active promos: %w", err)
	}
	defer rows.Close()

	var out []*models.PromoCode
	for rows.Next() {
		promo, err := scanPromo(rows)
		if err != nil {
			return nil, fmt.Errorf("scan promo row: %w", err)
		}
		out = append(out, promo)
	}
	return out, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanPromo(row rowScanner) (*models.PromoCode, error) {
	var p models.PromoCode
	var start, end sql.NullTime
	var maxUses, usesLeft, maxPerAcct sql.NullInt64
	err := row.Scan(
		&p.ID, &p.Code, &p.Name, &p.Kind, &p.Value, &p.MinOrderValue,
		&start, &end, &p.Active, &maxUses, &usesLeft, &maxPerAcct,
		&p.CreatedAt, &p.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if start.Valid {
		p.Window.Start = &start.Time
	}
	if end.Valid {
		p.Window.End = &end.Time
	}
	p.MaxUses = intPtr(maxUses)
	p.UsesRemaining = intPtr(usesLeft)
	p.MaxUsesPerAccount = intPtr(maxPerAcct)
	return &p, nil
}

func intPtr(v sql.NullInt64) *int {
	if !v.Valid {
		return nil
	}
	n := int(v.Int64)
	return &n
}

func nullInt(v *int) sql.NullInt64 {
	if v == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: int64(*v), Valid: true}
}

func nullTime(v *time.Time) sql.NullTime {
	if v == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *v, Valid: true}
}
