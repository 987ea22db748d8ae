package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"stock-service/internal/models"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
)

type Store struct {
	db *sqlx.DB
}

// NewStore creates a new database store
func NewStore(databaseURL string) (*Store, error) {
	db, err := sqlx.Connect("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &Store{db: db}, nil
}

// Close closes the database connection
func (s *Store) Close() error {
	return s.db.Close()
}

// GetDB returns the underlying database connection
func (s *Store) GetDB() *sqlx.DB {
	return s.db
}

// GetStoreByID retrieves a store by ID
func (s *Store) GetStoreByID(ctx context.Context, id int64) (*models.Store, error) {
	var st models.Store
	err := s.db.GetContext(ctx, &st, "SELECT * FROM stores WHERE id = $1", id)
	if err == sql.ErrNoRows {
		return nil, models.ErrStoreNotFound
	}
	if err != nil {
		return nil, err
	}
	return &st, nil
}

// GetStoreByName retrieves a store by its unique name
func (s *Store) GetStoreByName(ctx context.Context, name string) (*models.Store, error) {
	var st models.Store
	err := s.db.GetContext(ctx, &st, "SELECT * FROM stores WHERE name = $1", name)
	if err == sql.ErrNoRows {
		return nil, models.ErrStoreNotFound
	}
	if err != nil {
		return nil, err
	}
	return &st, nil
}

// GetProductByID retrieves a product by ID
func (s *Store) GetProductByID(ctx context.Context, id int64) (*models.Product, error) {
	var product models.Product
	err := s.db.GetContext(ctx, &product, "SELECT * FROM products WHERE id = $1", id)
	if err == sql.ErrNoRows {
		return nil, models.ErrProductNotFound
	}
	if err != nil {
		return nil, err
	}
	return &product, nil
}

// GetProductForStore retrieves a product only if it belongs to the store.
// Products are never shared across stores.
func (s *Store) GetProductForStore(ctx context.Context, productID, storeID int64) (*models.Product, error) {
	var product models.Product
	err := s.db.GetContext(ctx, &product,
		"SELECT * FROM products WHERE id = $1 AND store_id = $2", productID, storeID)
	if err == sql.ErrNoRows {
		return nil, models.ErrProductNotFound
	}
	if err != nil {
		return nil, err
	}
	return &product, nil
}

// GetProductsByIDs retrieves multiple products by IDs
func (s *Store) GetProductsByIDs(ctx context.Context, ids []int64) ([]models.Product, error) {
	if len(ids) == 0 {
		return []models.Product{}, nil
	}

	query, args, err := sqlx.In("SELECT * FROM products WHERE id IN (?)", ids)
	if err != nil {
		return nil, err
	}
	query = s.db.Rebind(query)

	var products []models.Product
	err = s.db.SelectContext(ctx, &products, query, args...)
	return products, err
}

// GetProductsByStore retrieves all products for a store
func (s *Store) GetProductsByStore(ctx context.Context, storeID int64) ([]models.Product, error) {
	var products []models.Product
	err := s.db.SelectContext(ctx, &products,
		"SELECT * FROM products WHERE store_id = $1 ORDER BY id", storeID)
	return products, err
}

// GetAllProducts retrieves every product across all stores
func (s *Store) GetAllProducts(ctx context.Context) ([]models.Product, error) {
	var products []models.Product
	err := s.db.SelectContext(ctx, &products, "SELECT * FROM products ORDER BY id")
	return products, err
}

// GetAllStores retrieves every store
func (s *Store) GetAllStores(ctx context.Context) ([]models.Store, error) {
	var stores []models.Store
	err := s.db.SelectContext(ctx, &stores, "SELECT * FROM stores ORDER BY id")
	return stores, err
}

// GetProductSnapshots returns the quantity view for the pull stream.
func (s *Store) GetProductSnapshots(ctx context.Context, ids []int64) ([]models.ProductSnapshot, error) {
	if len(ids) == 0 {
		return []models.ProductSnapshot{}, nil
	}

	query, args, err := sqlx.In(`
		SELECT id, total_quantity, total_quantity - reserved_quantity AS available_quantity,
		       reserved_quantity, updated_at
		FROM products WHERE id IN (?)`, ids)
	if err != nil {
		return nil, err
	}
	query = s.db.Rebind(query)

	var snapshots []models.ProductSnapshot
	err = s.db.SelectContext(ctx, &snapshots, query, args...)
	return snapshots, err
}

// IsEventProcessed checks if an event has been processed
func (s *Store) IsEventProcessed(ctx context.Context, eventID string) (bool, error) {
	var exists bool
	err := s.db.GetContext(ctx, &exists,
		"SELECT EXISTS(SELECT 1 FROM processed_events WHERE event_id = $1)", eventID)
	return exists, err
}

// MarkEventProcessed marks an event as processed
func (s *Store) MarkEventProcessed(ctx context.Context, eventID, eventType string) error {
	_, err := s.db.ExecContext(ctx,
		"INSERT INTO processed_events (event_id, event_type) VALUES ($1, $2) ON CONFLICT (event_id) DO NOTHING",
		eventID, eventType)
	return err
}
