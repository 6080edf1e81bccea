package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/utafrali/PriceTracker/internal/domain"
	"github.com/utafrali/PriceTracker/pkg/database"
	apperrors "github.com/utafrali/PriceTracker/pkg/errors"
)

const productColumns = `id, user_id, name, url, current_price, image_url, category, is_in_wishlist, created_at, updated_at`

// ProductRepository implements repository.ProductRepository using PostgreSQL.
type ProductRepository struct {
	db database.DBTX
}

// NewProductRepository creates a new PostgreSQL-backed product repository.
func NewProductRepository(db database.DBTX) *ProductRepository {
	return &ProductRepository{db: db}
}

// Create inserts a new product.
func (r *ProductRepository) Create(ctx context.Context, p *domain.Product) (err error) {
	query := `
		INSERT INTO products (` + productColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`

	ctx, end := database.TraceQuery(ctx, "InsertProduct", query)
	defer func() { end(err) }()

	_, err = r.db.Exec(ctx, query,
		p.ID,
		p.UserID,
		p.Name,
		p.URL,
		p.CurrentPrice,
		p.ImageURL,
		p.Category,
		p.IsInWishlist,
		p.CreatedAt,
		p.UpdatedAt,
	)
	if err != nil {
		switch {
		case isUniqueViolation(err):
			return apperrors.AlreadyExists("product", "id", p.ID)
		case isForeignKeyViolation(err):
			return apperrors.InvalidInput("user does not exist")
		}
		return fmt.Errorf("insert product: %w", err)
	}
	return nil
}

// GetByID retrieves a product by ID.
func (r *ProductRepository) GetByID(ctx context.Context, id string) (p *domain.Product, err error) {
	query := `SELECT ` + productColumns + ` FROM products WHERE id = $1`

	ctx, end := database.TraceQuery(ctx, "GetProduct", query)
	defer func() { end(err) }()

	p, err = scanProduct(r.db.QueryRow(ctx, query, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apperrors.NotFound("product", id)
	}
	if err != nil {
		return nil, fmt.Errorf("get product: %w", err)
	}
	return p, nil
}

// List returns all products of a user. The ORDER BY column comes from a
// fixed allow-list, never from caller text.
func (r *ProductRepository) List(ctx context.Context, q domain.ProductQuery) (products []domain.Product, err error) {
	if !domain.IsValidOrderBy(q.OrderBy) {
		return nil, apperrors.InvalidInput(fmt.Sprintf("cannot order products by %q", q.OrderBy))
	}
	orderBy := q.OrderBy
	if orderBy == "" {
		orderBy = domain.OrderByCreatedAt
	}
	direction := "DESC"
	if q.Ascending {
		direction = "ASC"
	}

	query := fmt.Sprintf(`SELECT %s FROM products WHERE user_id = $1 ORDER BY %s %s, id`, productColumns, orderBy, direction)

	ctx, end := database.TraceQuery(ctx, "ListProducts", query)
	defer func() { end(err) }()

	rows, err := r.db.Query(ctx, query, q.UserID)
	if err != nil {
		return nil, fmt.Errorf("list products: %w", err)
	}
	defer rows.Close()

	products = make([]domain.Product, 0)
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, fmt.Errorf("scan product: %w", err)
		}
		products = append(products, *p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate products: %w", err)
	}
	return products, nil
}

// Update applies a partial update and returns the stored row.
func (r *ProductRepository) Update(ctx context.Context, id string, patch domain.ProductPatch) (p *domain.Product, err error) {
	if err := patch.Validate(); err != nil {
		return nil, err
	}

	sets := make([]string, 0, 3)
	args := make([]any, 0, 4)
	if patch.IsInWishlist != nil {
		args = append(args, *patch.IsInWishlist)
		sets = append(sets, fmt.Sprintf("is_in_wishlist = $%d", len(args)))
	}
	if patch.CurrentPrice != nil {
		args = append(args, *patch.CurrentPrice)
		sets = append(sets, fmt.Sprintf("current_price = $%d", len(args)))
	}
	args = append(args, time.Now().UTC())
	sets = append(sets, fmt.Sprintf("updated_at = $%d", len(args)))
	args = append(args, id)

	query := fmt.Sprintf(`UPDATE products SET %s WHERE id = $%d RETURNING %s`,
		strings.Join(sets, ", "), len(args), productColumns)

	ctx, end := database.TraceQuery(ctx, "UpdateProduct", query)
	defer func() { end(err) }()

	p, err = scanProduct(r.db.QueryRow(ctx, query, args...))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apperrors.NotFound("product", id)
	}
	if err != nil {
		return nil, fmt.Errorf("update product: %w", err)
	}
	return p, nil
}

func scanProduct(row pgx.Row) (*domain.Product, error) {
	var p domain.Product
	err := row.Scan(
		&p.ID,
		&p.UserID,
		&p.Name,
		&p.URL,
		&p.CurrentPrice,
		&p.ImageURL,
		&p.Category,
		&p.IsInWishlist,
		&p.CreatedAt,
		&p.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &p, nil
}
