package migrations

func init() {
	Register(Migration{
		Timestamp:   "20250301-000000",
		Description: "initial schema",
		Up: []string{
			`CREATE TABLE IF NOT EXISTS products (
				id INTEGER PRIMARY KEY AUTOINCREMENT,
				retailer TEXT NOT NULL,
				product_code TEXT,
				url TEXT NOT NULL,
				normalized_url TEXT NOT NULL,
				title TEXT NOT NULL,
				brand TEXT,
				current_price REAL NOT NULL DEFAULT 0,
				original_price REAL,
				price_value REAL NOT NULL DEFAULT 0,
				on_sale INTEGER NOT NULL DEFAULT 0,
				stock TEXT NOT NULL DEFAULT 'in_stock',
				category TEXT,
				image_urls TEXT,
				description TEXT,
				neckline TEXT,
				sleeve_length TEXT,
				price_bucket INTEGER NOT NULL DEFAULT 0,
				first_seen_at TEXT NOT NULL,
				last_seen_at TEXT NOT NULL,
				last_updated_at TEXT NOT NULL
			)`,
			`CREATE UNIQUE INDEX IF NOT EXISTS idx_products_retailer_url ON products(retailer, url)`,
			`CREATE INDEX IF NOT EXISTS idx_products_retailer_norm_url ON products(retailer, normalized_url)`,
			`CREATE INDEX IF NOT EXISTS idx_products_retailer_code ON products(retailer, product_code)`,
			`CREATE INDEX IF NOT EXISTS idx_products_price_bucket ON products(retailer, price_bucket)`,

			`CREATE TABLE IF NOT EXISTS catalog_observations (
				id TEXT PRIMARY KEY,
				retailer TEXT NOT NULL,
				category TEXT NOT NULL,
				product_code TEXT,
				url TEXT NOT NULL,
				title TEXT,
				price REAL NOT NULL DEFAULT 0,
				image_url TEXT,
				on_sale INTEGER NOT NULL DEFAULT 0,
				lifecycle TEXT NOT NULL,
				confidence REAL NOT NULL DEFAULT 0,
				discovered_date TEXT NOT NULL,
				created_at TEXT NOT NULL
			)`,
			`CREATE INDEX IF NOT EXISTS idx_observations_retailer_cat_date ON catalog_observations(retailer, category, discovered_date)`,
			`CREATE INDEX IF NOT EXISTS idx_observations_lifecycle ON catalog_observations(retailer, category, lifecycle)`,

			`CREATE TABLE IF NOT EXISTS baselines (
				id TEXT PRIMARY KEY,
				retailer TEXT NOT NULL,
				category TEXT NOT NULL,
				captured_date TEXT NOT NULL,
				pages_walked INTEGER NOT NULL DEFAULT 0,
				observation_count INTEGER NOT NULL DEFAULT 0,
				active INTEGER NOT NULL DEFAULT 1,
				metadata_json TEXT,
				created_at TEXT NOT NULL
			)`,
			`CREATE INDEX IF NOT EXISTS idx_baselines_retailer_cat ON baselines(retailer, category, active)`,

			`CREATE TABLE IF NOT EXISTS monitoring_runs (
				id TEXT PRIMARY KEY,
				run_type TEXT NOT NULL,
				retailers TEXT,
				categories TEXT,
				state TEXT NOT NULL,
				products_crawled INTEGER NOT NULL DEFAULT 0,
				new_products INTEGER NOT NULL DEFAULT 0,
				queued_for_review INTEGER NOT NULL DEFAULT 0,
				cancelled INTEGER NOT NULL DEFAULT 0,
				error_log TEXT,
				batch_file TEXT,
				started_at TEXT NOT NULL,
				completed_at TEXT,
				created_at TEXT NOT NULL,
				updated_at TEXT NOT NULL
			)`,

			`CREATE TABLE IF NOT EXISTS learned_patterns (
				id INTEGER PRIMARY KEY AUTOINCREMENT,
				retailer TEXT NOT NULL,
				function TEXT NOT NULL,
				element_type TEXT NOT NULL,
				kind TEXT NOT NULL,
				payload TEXT NOT NULL,
				success_count INTEGER NOT NULL DEFAULT 0,
				failure_count INTEGER NOT NULL DEFAULT 0,
				confidence REAL NOT NULL DEFAULT 0,
				visual_hints TEXT,
				created_at TEXT NOT NULL,
				updated_at TEXT NOT NULL,
				last_failed_at TEXT
			)`,
			`CREATE UNIQUE INDEX IF NOT EXISTS idx_patterns_identity ON learned_patterns(retailer, function, element_type, kind, payload)`,

			`CREATE TABLE IF NOT EXISTS markdown_cache (
				url TEXT PRIMARY KEY,
				markdown TEXT NOT NULL,
				canonical_url TEXT,
				captured_at TEXT NOT NULL
			)`,
		},
	})
}
