package database

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

type migration struct {
	name string
	sql  string
}

// Stock columns carry no CHECK (>= 0): POS-sourced orders are allowed to
// drive stock negative, so non-negativity is enforced by the order
// coordinator for customer-facing orders only.
var migrations = []migration{
	{
		name: "001_core_schema",
		sql: `
CREATE TABLE IF NOT EXISTS users (
	id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
	full_name TEXT NOT NULL,
	email TEXT NOT NULL UNIQUE,
	password_hash TEXT NOT NULL,
	role TEXT NOT NULL CHECK (role IN ('ADMIN', 'CASHIER', 'KITCHEN')),
	is_active BOOLEAN NOT NULL DEFAULT TRUE,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS customers (
	id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
	phone TEXT NOT NULL UNIQUE,
	name TEXT NOT NULL,
	loyalty_points INTEGER NOT NULL DEFAULT 0,
	total_spent NUMERIC(12,2) NOT NULL DEFAULT 0,
	visit_count INTEGER NOT NULL DEFAULT 0,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS menu_items (
	id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
	name TEXT NOT NULL,
	category TEXT NOT NULL DEFAULT '',
	price NUMERIC(10,2) NOT NULL,
	cost NUMERIC(10,2),
	quantity INTEGER NOT NULL DEFAULT 0,
	low_stock_threshold INTEGER NOT NULL DEFAULT 5,
	in_stock BOOLEAN NOT NULL DEFAULT TRUE,
	is_time_bound BOOLEAN NOT NULL DEFAULT FALSE,
	available_from TEXT,
	available_until TEXT,
	is_subscription BOOLEAN NOT NULL DEFAULT FALSE,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS ingredients (
	id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
	name TEXT NOT NULL UNIQUE,
	current_stock NUMERIC(12,3) NOT NULL DEFAULT 0,
	unit TEXT NOT NULL CHECK (unit IN ('g', 'ml', 'pcs', 'slice', 'kg', 'l')),
	cost_per_unit NUMERIC(10,4) NOT NULL DEFAULT 0,
	low_stock_threshold NUMERIC(12,3) NOT NULL DEFAULT 0,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS recipe_links (
	id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
	menu_item_id UUID NOT NULL REFERENCES menu_items(id) ON DELETE CASCADE,
	ingredient_id UUID NOT NULL REFERENCES ingredients(id) ON DELETE CASCADE,
	quantity_required NUMERIC(12,3) NOT NULL CHECK (quantity_required > 0),
	UNIQUE (menu_item_id, ingredient_id)
);

CREATE TABLE IF NOT EXISTS orders (
	id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
	session_id TEXT NOT NULL,
	customer_id UUID REFERENCES customers(id),
	guest_name TEXT,
	guest_phone TEXT,
	total_amount NUMERIC(12,2) NOT NULL,
	payment_method TEXT NOT NULL,
	order_type TEXT NOT NULL CHECK (order_type IN ('DINE_IN', 'TAKEAWAY', 'DELIVERY')),
	source TEXT NOT NULL DEFAULT 'online',
	delivery_address TEXT,
	delivery_slot TEXT,
	coupon_code TEXT,
	discount_amount NUMERIC(12,2),
	status TEXT NOT NULL DEFAULT 'PENDING' CHECK (status IN (
		'PENDING', 'ACCEPTED', 'COOKING', 'READY', 'SERVED',
		'OUT_FOR_DELIVERY', 'DELIVERED', 'PAID', 'COMPLETED', 'CANCELLED')),
	status_history JSONB NOT NULL DEFAULT '[]',
	created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_orders_session_created
	ON orders (session_id, created_at);
CREATE INDEX IF NOT EXISTS idx_orders_status ON orders (status);

CREATE TABLE IF NOT EXISTS order_items (
	id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
	order_id UUID NOT NULL REFERENCES orders(id) ON DELETE CASCADE,
	menu_item_id UUID NOT NULL REFERENCES menu_items(id),
	quantity INTEGER NOT NULL CHECK (quantity > 0),
	unit_price NUMERIC(10,2) NOT NULL,
	customization TEXT
);

CREATE INDEX IF NOT EXISTS idx_order_items_order ON order_items (order_id);

CREATE TABLE IF NOT EXISTS inventory_logs (
	id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
	order_id UUID NOT NULL REFERENCES orders(id) ON DELETE CASCADE,
	deductions JSONB NOT NULL,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_inventory_logs_order ON inventory_logs (order_id);

CREATE TABLE IF NOT EXISTS settings (
	key TEXT PRIMARY KEY,
	value BOOLEAN NOT NULL
);
`,
	},
	{
		name: "002_seed_settings",
		sql: `
INSERT INTO settings (key, value) VALUES ('kitchen_open', TRUE)
ON CONFLICT (key) DO NOTHING;
`,
	},
}

// RunMigrations applies pending embedded migrations in order, each in its
// own transaction, tracked in schema_migrations.
func RunMigrations(ctx context.Context, pool *pgxpool.Pool) error {
	_, err := pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS schema_migrations (
			name TEXT PRIMARY KEY,
			applied_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)`)
	if err != nil {
		return fmt.Errorf("create schema_migrations: %w", err)
	}

	applied := make(map[string]bool)
	rows, err := pool.Query(ctx, `SELECT name FROM schema_migrations`)
	if err != nil {
		return fmt.Errorf("list applied migrations: %w", err)
	}
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			rows.Close()
			return fmt.Errorf("scan migration name: %w", err)
		}
		applied[name] = true
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return fmt.Errorf("read applied migrations: %w", err)
	}

	for _, m := range migrations {
		if applied[m.name] {
			continue
		}
		tx, err := pool.Begin(ctx)
		if err != nil {
			return fmt.Errorf("begin migration %s: %w", m.name, err)
		}
		if _, err := tx.Exec(ctx, m.sql); err != nil {
			tx.Rollback(ctx) //nolint:errcheck
			return fmt.Errorf("apply migration %s: %w", m.name, err)
		}
		if _, err := tx.Exec(ctx,
			`INSERT INTO schema_migrations (name) VALUES ($1)`, m.name); err != nil {
			tx.Rollback(ctx) //nolint:errcheck
			return fmt.Errorf("record migration %s: %w", m.name, err)
		}
		if err := tx.Commit(ctx); err != nil {
			return fmt.Errorf("commit migration %s: %w", m.name, err)
		}
	}

	return nil
}
