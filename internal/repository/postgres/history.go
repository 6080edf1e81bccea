package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/utafrali/PriceTracker/internal/domain"
	"github.com/utafrali/PriceTracker/pkg/database"
	apperrors "github.com/utafrali/PriceTracker/pkg/errors"
)

// PriceHistoryRepository implements repository.PriceHistoryRepository using PostgreSQL.
type PriceHistoryRepository struct {
	db database.DBTX
}

// NewPriceHistoryRepository creates a new PostgreSQL-backed history repository.
func NewPriceHistoryRepository(db database.DBTX) *PriceHistoryRepository {
	return &PriceHistoryRepository{db: db}
}

// List returns the recorded points of a product ordered by recorded_at.
func (r *PriceHistoryRepository) List(ctx context.Context, q domain.HistoryQuery) (points []domain.PriceHistoryPoint, err error) {
	direction := "DESC"
	if q.Ascending {
		direction = "ASC"
	}
	query := `
		SELECT id, product_id, price, recorded_at
		FROM price_history
		WHERE product_id = $1
		ORDER BY recorded_at ` + direction + `, id`

	ctx, end := database.TraceQuery(ctx, "ListPriceHistory", query)
	defer func() { end(err) }()

	rows, err := r.db.Query(ctx, query, q.ProductID)
	if err != nil {
		return nil, fmt.Errorf("list price history: %w", err)
	}
	defer rows.Close()

	points = make([]domain.PriceHistoryPoint, 0)
	for rows.Next() {
		var pt domain.PriceHistoryPoint
		if err := rows.Scan(&pt.ID, &pt.ProductID, &pt.Price, &pt.RecordedAt); err != nil {
			return nil, fmt.Errorf("scan price history: %w", err)
		}
		points = append(points, pt)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate price history: %w", err)
	}
	return points, nil
}

// Append inserts the point and, unless a later point is already recorded,
// moves the product's current price to it, in a single transaction. A late
// point is kept as history and the product is returned unchanged.
func (r *PriceHistoryRepository) Append(ctx context.Context, pt *domain.PriceHistoryPoint) (p *domain.Product, err error) {
	const (
		insertQuery = `INSERT INTO price_history (id, product_id, price, recorded_at) VALUES ($1, $2, $3, $4)`
		updateQuery = `UPDATE products SET current_price = $1, updated_at = $2
			WHERE id = $3
			  AND NOT EXISTS (SELECT 1 FROM price_history WHERE product_id = $3 AND recorded_at > $2)
			RETURNING ` + productColumns
		currentQuery = `SELECT ` + productColumns + ` FROM products WHERE id = $1`
	)

	ctx, end := database.TraceQuery(ctx, "AppendPriceHistory", insertQuery)
	defer func() { end(err) }()

	tx, err := r.db.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin price history tx: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback(ctx)
		}
	}()

	if _, err = tx.Exec(ctx, insertQuery, pt.ID, pt.ProductID, pt.Price, pt.RecordedAt); err != nil {
		if isForeignKeyViolation(err) {
			return nil, apperrors.NotFound("product", pt.ProductID)
		}
		return nil, fmt.Errorf("insert price history: %w", err)
	}

	p, err = scanProduct(tx.QueryRow(ctx, updateQuery, pt.Price, pt.RecordedAt, pt.ProductID))
	if errors.Is(err, pgx.ErrNoRows) {
		// either a newer point exists or the product is gone
		p, err = scanProduct(tx.QueryRow(ctx, currentQuery, pt.ProductID))
	}
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apperrors.NotFound("product", pt.ProductID)
	}
	if err != nil {
		return nil, fmt.Errorf("update current price: %w", err)
	}

	if err = tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit price history: %w", err)
	}
	return p, nil
}
