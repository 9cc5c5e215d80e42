package repository

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"time"

	"github.com/GeorgeMcIntyre-Web/urbane-jungle/internal/domain"
	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/google/uuid"
)

//go:embed migrations
var migrationsFS embed.FS

type Dialect string

const (
	DialectSQLite   Dialect = "sqlite"
	DialectPostgres Dialect = "postgres"
)

const migrationsTable = "cart_schema_migrations"

// SQLRepository implements CartRepository on SQLite or PostgreSQL. Both
// dialects share the same statements; only the schema differs.
type SQLRepository struct {
	db      *sql.DB
	dialect Dialect
	now     func() time.Time
}

func NewSQLRepository(db *sql.DB, dialect Dialect) *SQLRepository {
	return &SQLRepository{db: db, dialect: dialect, now: time.Now}
}

func (r *SQLRepository) RunMigrations() error {
	var (
		driver database.Driver
		err    error
	)
	switch r.dialect {
	case DialectSQLite:
		driver, err = sqlite.WithInstance(r.db, &sqlite.Config{MigrationsTable: migrationsTable})
	case DialectPostgres:
		driver, err = postgres.WithInstance(r.db, &postgres.Config{MigrationsTable: migrationsTable})
	default:
		return fmt.Errorf("unsupported dialect %q", r.dialect)
	}
	if err != nil {
		return fmt.Errorf("could not create migration driver: %w", err)
	}

	src, err := iofs.New(migrationsFS, "migrations/"+string(r.dialect))
	if err != nil {
		return fmt.Errorf("could not open migrations: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", src, string(r.dialect), driver)
	if err != nil {
		return fmt.Errorf("could not create migrate instance: %w", err)
	}

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("could not run migrations: %w", err)
	}
	return nil
}

const selectLineItem = `
	SELECT id, user_id, product_id, quantity, created_at, updated_at, seq
	FROM cart_items`

func (r *SQLRepository) List(ctx context.Context, userID string) ([]domain.LineItem, error) {
	rows, err := r.db.QueryContext(ctx, selectLineItem+`
		WHERE user_id = $1
		ORDER BY created_at DESC, seq DESC`, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to query cart items: %w", err)
	}
	defer rows.Close()

	items := make([]domain.LineItem, 0)
	for rows.Next() {
		item, err := scanLineItem(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan cart item: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}
	return items, nil
}

func (r *SQLRepository) Get(ctx context.Context, userID, itemID string) (*domain.LineItem, error) {
	row := r.db.QueryRowContext(ctx, selectLineItem+`
		WHERE id = $1 AND user_id = $2`, itemID, userID)
	item, err := scanLineItem(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrItemNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("query cart item: %w", err)
	}
	return &item, nil
}

// addItemQuery merges on the (user_id, product_id) key. The DO UPDATE only
// fires while the merged quantity stays within $6, so the stock check and the
// increment are a single statement. No row comes back when the guard rejects.
// The sum is widened so it cannot overflow an INTEGER column before the check.
const addItemQuery = `
	INSERT INTO cart_items (id, user_id, product_id, quantity, created_at, updated_at)
	VALUES ($1, $2, $3, $4, $5, $5)
	ON CONFLICT (user_id, product_id) DO UPDATE
	SET quantity = cart_items.quantity + excluded.quantity,
	    updated_at = excluded.updated_at
	WHERE CAST(cart_items.quantity AS BIGINT) + excluded.quantity <= $6
	RETURNING id`

func (r *SQLRepository) AddItem(ctx context.Context, userID, productID string, qty int32, limit int64) (*domain.LineItem, error) {
	if err := validateAdd(userID, productID, qty); err != nil {
		return nil, err
	}
	ceil := ceiling(limit)
	if int64(qty) > ceil {
		return nil, ErrStockExceeded
	}

	var id string
	err := r.db.QueryRowContext(ctx, addItemQuery,
		uuid.NewString(),
		userID,
		productID,
		qty,
		r.now().UTC(),
		ceil,
	).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrStockExceeded
	}
	if err != nil {
		return nil, fmt.Errorf("upsert cart item: %w", err)
	}

	return r.Get(ctx, userID, id)
}

func (r *SQLRepository) SetQuantity(ctx context.Context, userID, itemID string, qty int32) error {
	if qty <= 0 {
		return ErrInvalidInput
	}

	res, err := r.db.ExecContext(ctx, `
		UPDATE cart_items SET quantity = $1, updated_at = $2
		WHERE id = $3 AND user_id = $4`,
		qty, r.now().UTC(), itemID, userID)
	if err != nil {
		return fmt.Errorf("update cart item quantity: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update cart item quantity: %w", err)
	}
	if n == 0 {
		return ErrItemNotFound
	}
	return nil
}

func (r *SQLRepository) RemoveItem(ctx context.Context, userID, itemID string) (bool, error) {
	res, err := r.db.ExecContext(ctx, `DELETE FROM cart_items WHERE id = $1 AND user_id = $2`, itemID, userID)
	if err != nil {
		return false, fmt.Errorf("delete cart item: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("delete cart item: %w", err)
	}
	return n > 0, nil
}

func (r *SQLRepository) Clear(ctx context.Context, userID string) (int64, error) {
	res, err := r.db.ExecContext(ctx, `DELETE FROM cart_items WHERE user_id = $1`, userID)
	if err != nil {
		return 0, fmt.Errorf("clear cart: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("clear cart: %w", err)
	}
	return n, nil
}

func (r *SQLRepository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

func (r *SQLRepository) Close() error {
	return r.db.Close()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanLineItem(s rowScanner) (domain.LineItem, error) {
	var item domain.LineItem
	err := s.Scan(
		&item.ID,
		&item.UserID,
		&item.ProductID,
		&item.Quantity,
		&item.CreatedAt,
		&item.UpdatedAt,
		&item.Seq,
	)
	item.CreatedAt = item.CreatedAt.UTC()
	item.UpdatedAt = item.UpdatedAt.UTC()
	return item, err
}
