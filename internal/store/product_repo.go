package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	"github.com/wearwatch/catalog-monitor/internal/models"
	"github.com/wearwatch/catalog-monitor/internal/retailer"
)

// ErrNotFound is returned by lookups that match no row.
var ErrNotFound = errors.New("store: not found")

// ProductRepo persists durable catalog products.
type ProductRepo struct {
	db *sql.DB
	q  *writeQueue
}

const productColumns = `id, retailer, product_code, url, normalized_url, title, brand,
	current_price, original_price, price_value, on_sale, stock, category,
	image_urls, description, neckline, sleeve_length,
	first_seen_at, last_seen_at, last_updated_at`

// Upsert inserts the product or updates the existing row keyed by
// (retailer, url). first_seen_at is preserved on update.
func (r *ProductRepo) Upsert(ctx context.Context, p *models.Product) error {
	now := time.Now().UTC()
	if p.FirstSeenAt.IsZero() {
		p.FirstSeenAt = now
	}
	p.LastSeenAt = now
	p.LastUpdatedAt = now

	images, err := json.Marshal(p.ImageURLs)
	if err != nil {
		return err
	}

	return r.q.do(ctx, func() error {
		res, err := r.db.ExecContext(ctx, `
			INSERT INTO products (
				retailer, product_code, url, normalized_url, title, brand,
				current_price, original_price, price_value, on_sale, stock, category,
				image_urls, description, neckline, sleeve_length, price_bucket,
				first_seen_at, last_seen_at, last_updated_at
			) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT(retailer, url) DO UPDATE SET
				product_code = excluded.product_code,
				normalized_url = excluded.normalized_url,
				title = excluded.title,
				brand = excluded.brand,
				current_price = excluded.current_price,
				original_price = excluded.original_price,
				price_value = excluded.price_value,
				on_sale = excluded.on_sale,
				stock = excluded.stock,
				category = excluded.category,
				image_urls = excluded.image_urls,
				description = excluded.description,
				neckline = excluded.neckline,
				sleeve_length = excluded.sleeve_length,
				price_bucket = excluded.price_bucket,
				last_seen_at = excluded.last_seen_at,
				last_updated_at = excluded.last_updated_at`,
			p.Retailer, nullString(p.ProductCode), p.URL, p.NormalizedURL, p.Title,
			nullString(p.Brand), p.CurrentPrice, nullFloat(p.OriginalPrice),
			p.PriceValue, boolInt(p.OnSale), string(p.Stock), nullString(p.Category),
			string(images), nullString(p.Description), nullString(p.Neckline),
			nullString(p.SleeveLength), retailer.PriceBucket(p.PriceValue),
			p.FirstSeenAt.Format(time.RFC3339), p.LastSeenAt.Format(time.RFC3339),
			p.LastUpdatedAt.Format(time.RFC3339))
		if err != nil {
			return err
		}
		if p.ID == 0 {
			if id, err := res.LastInsertId(); err == nil {
				p.ID = id
			}
		}
		return nil
	})
}

// TouchLastSeen refreshes last_seen_at without rewriting the product fields.
// last_updated_at tracks the latest row write, so it advances too: the
// timestamps always satisfy first_seen <= last_seen <= last_updated.
func (r *ProductRepo) TouchLastSeen(ctx context.Context, id int64, seen time.Time) error {
	return r.q.do(ctx, func() error {
		_, err := r.db.ExecContext(ctx,
			`UPDATE products SET last_seen_at = ?, last_updated_at = ? WHERE id = ?`,
			seen.UTC().Format(time.RFC3339), seen.UTC().Format(time.RFC3339), id)
		return err
	})
}

// FindByExactURL returns the product whose stored URL matches byte for byte.
func (r *ProductRepo) FindByExactURL(ctx context.Context, ret, url string) (*models.Product, error) {
	return r.one(ctx,
		`SELECT `+productColumns+` FROM products WHERE retailer = ? AND url = ?`,
		ret, url)
}

// FindByNormalizedURL matches against the stored normalized form.
func (r *ProductRepo) FindByNormalizedURL(ctx context.Context, ret, normalized string) (*models.Product, error) {
	return r.one(ctx,
		`SELECT `+productColumns+` FROM products WHERE retailer = ? AND normalized_url = ? ORDER BY id LIMIT 1`,
		ret, normalized)
}

// FindByCode matches on the retailer-specific product code.
func (r *ProductRepo) FindByCode(ctx context.Context, ret, code string) (*models.Product, error) {
	if code == "" {
		return nil, ErrNotFound
	}
	return r.one(ctx,
		`SELECT `+productColumns+` FROM products WHERE retailer = ? AND product_code = ? ORDER BY id LIMIT 1`,
		ret, code)
}

// CandidatesByPrice returns products in the same whole-unit price bucket,
// plus the neighboring buckets so near-boundary prices are not missed.
// Title similarity is the caller's concern.
func (r *ProductRepo) CandidatesByPrice(ctx context.Context, ret string, price float64) ([]*models.Product, error) {
	bucket := retailer.PriceBucket(price)
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+productColumns+` FROM products
		 WHERE retailer = ? AND price_bucket BETWEEN ? AND ?`,
		ret, bucket-1, bucket+1)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*models.Product
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func (r *ProductRepo) one(ctx context.Context, query string, args ...any) (*models.Product, error) {
	row := r.db.QueryRowContext(ctx, query, args...)
	p, err := scanProduct(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return p, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanProduct(row rowScanner) (*models.Product, error) {
	var (
		p                                  models.Product
		code, brand, category              sql.NullString
		images, desc, neckline, sleeve     sql.NullString
		original                           sql.NullFloat64
		onSale                             int
		stock, firstSeen, lastSeen, update string
	)
	err := row.Scan(&p.ID, &p.Retailer, &code, &p.URL, &p.NormalizedURL, &p.Title,
		&brand, &p.CurrentPrice, &original, &p.PriceValue, &onSale, &stock,
		&category, &images, &desc, &neckline, &sleeve,
		&firstSeen, &lastSeen, &update)
	if err != nil {
		return nil, err
	}
	p.ProductCode = code.String
	p.Brand = brand.String
	p.Category = category.String
	p.Description = desc.String
	p.Neckline = neckline.String
	p.SleeveLength = sleeve.String
	p.OnSale = onSale != 0
	p.Stock = models.StockState(stock)
	if original.Valid {
		v := original.Float64
		p.OriginalPrice = &v
	}
	if images.Valid && images.String != "" {
		if err := json.Unmarshal([]byte(images.String), &p.ImageURLs); err != nil {
			return nil, err
		}
	}
	p.FirstSeenAt = parseTime(firstSeen)
	p.LastSeenAt = parseTime(lastSeen)
	p.LastUpdatedAt = parseTime(update)
	return &p, nil
}
