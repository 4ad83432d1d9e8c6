package repositories

import (
	"context"
	"database/sql"
	"sync"

	"matchBack/internal/models"
)

// CatalogRepository reads the purchasable items the backend sells.
type CatalogRepository struct {
	DB      *sql.DB
	Dialect Dialect

	once sync.Once
	err  error
}

func NewCatalogRepository(db *sql.DB, dialect Dialect) *CatalogRepository {
	return &CatalogRepository{DB: db, Dialect: dialect}
}

func (r *CatalogRepository) ensureSchema(ctx context.Context) error {
	r.once.Do(func() {
		ddl := `
CREATE TABLE IF NOT EXISTS iap_products (
    id BIGINT UNSIGNED NOT NULL AUTO_INCREMENT,
    name VARCHAR(255) NOT NULL,
    description TEXT,
    price DECIMAL(10,2) NOT NULL DEFAULT 0,
    product_type VARCHAR(32) NOT NULL DEFAULT '',
    android_product_id VARCHAR(255) DEFAULT NULL,
    ios_product_id VARCHAR(255) DEFAULT NULL,
    active BOOLEAN NOT NULL DEFAULT TRUE,
    PRIMARY KEY (id)
) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`
		if r.Dialect == DialectPostgres {
			ddl = `
CREATE TABLE IF NOT EXISTS iap_products (
    id BIGSERIAL PRIMARY KEY,
    name VARCHAR(255) NOT NULL,
    description TEXT,
    price NUMERIC(10,2) NOT NULL DEFAULT 0,
    product_type VARCHAR(32) NOT NULL DEFAULT '',
    android_product_id VARCHAR(255),
    ios_product_id VARCHAR(255),
    active BOOLEAN NOT NULL DEFAULT TRUE
)`
		}
		_, r.err = r.DB.ExecContext(ctx, ddl)
	})
	return r.err
}

// ActiveEntries returns every catalog row with active = true.
func (r *CatalogRepository) ActiveEntries(ctx context.Context) ([]models.CatalogEntry, error) {
	if err := r.ensureSchema(ctx); err != nil {
		return nil, err
	}
	rows, err := r.DB.QueryContext(ctx, `
SELECT id, name, description, price, product_type, android_product_id, ios_product_id, active
FROM iap_products WHERE active = TRUE ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []models.CatalogEntry
	for rows.Next() {
		e, err := scanCatalogEntry(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return entries, nil
}

func scanCatalogEntry(scanner interface{ Scan(dest ...any) error }) (models.CatalogEntry, error) {
	var (
		e           models.CatalogEntry
		description sql.NullString
		android     sql.NullString
		ios         sql.NullString
	)
	if err := scanner.Scan(&e.ID, &e.Name, &description, &e.Price, &e.ProductType, &android, &ios, &e.Active); err != nil {
		return models.CatalogEntry{}, err
	}
	e.Description = description.String
	e.AndroidProductID = android.String
	e.IOSProductID = ios.String
	return e, nil
}
