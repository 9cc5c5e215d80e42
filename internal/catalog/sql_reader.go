package catalog

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"strings"

	"github.com/GeorgeMcIntyre-Web/urbane-jungle/internal/domain"
	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"
)

//go:embed migrations
var migrationsFS embed.FS

const migrationsTable = "catalog_schema_migrations"

// SQLReader reads products and their images from the storefront database.
type SQLReader struct {
	db      *sql.DB
	dialect string
}

// NewSQLReader accepts "sqlite" or "postgres" as dialect.
func NewSQLReader(db *sql.DB, dialect string) *SQLReader {
	return &SQLReader{db: db, dialect: dialect}
}

func (r *SQLReader) RunMigrations() error {
	var (
		driver database.Driver
		err    error
	)
	switch r.dialect {
	case "sqlite":
		driver, err = sqlite.WithInstance(r.db, &sqlite.Config{MigrationsTable: migrationsTable})
	case "postgres":
		driver, err = postgres.WithInstance(r.db, &postgres.Config{MigrationsTable: migrationsTable})
	default:
		return fmt.Errorf("unsupported dialect %q", r.dialect)
	}
	if err != nil {
		return fmt.Errorf("could not create migration driver: %w", err)
	}

	src, err := iofs.New(migrationsFS, "migrations/"+r.dialect)
	if err != nil {
		return fmt.Errorf("could not open migrations: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", src, r.dialect, driver)
	if err != nil {
		return fmt.Errorf("could not create migrate instance: %w", err)
	}

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("could not run migrations: %w", err)
	}

	return nil
}

const selectProduct = `
	SELECT id, name, slug, base_price, sale_price, is_on_sale, stock_quantity, is_active
	FROM products`

func (r *SQLReader) GetProduct(ctx context.Context, id string) (domain.Product, error) {
	products, err := r.GetProducts(ctx, []string{id})
	if err != nil {
		return domain.Product{}, err
	}

	p, ok := products[id]
	if !ok || !p.Active {
		return domain.Product{}, ErrProductNotFound
	}
	return p, nil
}

func (r *SQLReader) GetProducts(ctx context.Context, ids []string) (map[string]domain.Product, error) {
	result := make(map[string]domain.Product, len(ids))
	if len(ids) == 0 {
		return result, nil
	}

	placeholders, args := inClause(ids)
	rows, err := r.db.QueryContext(ctx, selectProduct+` WHERE id IN (`+placeholders+`)`, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query products: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			p     domain.Product
			stock sql.NullInt32
		)
		err := rows.Scan(
			&p.ID,
			&p.Name,
			&p.Slug,
			&p.BasePrice,
			&p.SalePrice,
			&p.OnSale,
			&stock,
			&p.Active,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan product: %w", err)
		}
		if stock.Valid {
			s := stock.Int32
			p.Stock = &s
		}
		result[p.ID] = p
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}

	if err := r.attachImages(ctx, result, placeholders, args); err != nil {
		return nil, err
	}
	return result, nil
}

func (r *SQLReader) attachImages(ctx context.Context, products map[string]domain.Product, placeholders string, args []any) error {
	if len(products) == 0 {
		return nil
	}

	rows, err := r.db.QueryContext(ctx, `
		SELECT product_id, url, COALESCE(alt_text, ''), is_primary, sort_order
		FROM product_images
		WHERE product_id IN (`+placeholders+`)
		ORDER BY sort_order, id`, args...)
	if err != nil {
		return fmt.Errorf("failed to query product images: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			productID string
			img       domain.Image
		)
		if err := rows.Scan(&productID, &img.URL, &img.AltText, &img.Primary, &img.SortOrder); err != nil {
			return fmt.Errorf("failed to scan product image: %w", err)
		}
		p, ok := products[productID]
		if !ok {
			continue
		}
		p.Images = append(p.Images, img)
		products[productID] = p
	}
	return rows.Err()
}

func (r *SQLReader) Close() error {
	return r.db.Close()
}

func inClause(ids []string) (string, []any) {
	ph := make([]string, len(ids))
	args := make([]any, len(ids))
	for i, id := range ids {
		ph[i] = fmt.Sprintf("$%d", i+1)
		args[i] = id
	}
	return strings.Join(ph, ", "), args
}
