package database

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
)

const menuItemColumns = `id, name, category, price, cost, quantity,
	low_stock_threshold, in_stock, is_time_bound, available_from,
	available_until, is_subscription, created_at, updated_at`

func scanMenuItem(row pgx.Row) (MenuItem, error) {
	var m MenuItem
	err := row.Scan(
		&m.ID, &m.Name, &m.Category, &m.Price, &m.Cost, &m.Quantity,
		&m.LowStockThreshold, &m.InStock, &m.IsTimeBound, &m.AvailableFrom,
		&m.AvailableUntil, &m.IsSubscription, &m.CreatedAt, &m.UpdatedAt,
	)
	return m, err
}

func (q *Queries) ListMenuItems(ctx context.Context) ([]MenuItem, error) {
	rows, err := q.db.Query(ctx,
		`SELECT `+menuItemColumns+` FROM menu_items ORDER BY category, name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []MenuItem
	for rows.Next() {
		m, err := scanMenuItem(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, m)
	}
	return items, rows.Err()
}

func (q *Queries) GetMenuItem(ctx context.Context, id uuid.UUID) (MenuItem, error) {
	return scanMenuItem(q.db.QueryRow(ctx,
		`SELECT `+menuItemColumns+` FROM menu_items WHERE id = $1`, id))
}

// GetMenuItemForOrder locks the menu item row for the rest of the enclosing
// transaction so concurrent placements cannot interleave quantity updates.
func (q *Queries) GetMenuItemForOrder(ctx context.Context, id uuid.UUID) (MenuItem, error) {
	return scanMenuItem(q.db.QueryRow(ctx,
		`SELECT `+menuItemColumns+` FROM menu_items WHERE id = $1 FOR UPDATE`, id))
}

type CreateMenuItemParams struct {
	Name              string
	Category          string
	Price             pgtype.Numeric
	Cost              pgtype.Numeric
	Quantity          int32
	LowStockThreshold int32
	InStock           bool
	IsTimeBound       bool
	AvailableFrom     pgtype.Text
	AvailableUntil    pgtype.Text
	IsSubscription    bool
}

func (q *Queries) CreateMenuItem(ctx context.Context, arg CreateMenuItemParams) (MenuItem, error) {
	return scanMenuItem(q.db.QueryRow(ctx, `
		INSERT INTO menu_items (
			name, category, price, cost, quantity, low_stock_threshold,
			in_stock, is_time_bound, available_from, available_until,
			is_subscription
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		RETURNING `+menuItemColumns,
		arg.Name, arg.Category, arg.Price, arg.Cost, arg.Quantity,
		arg.LowStockThreshold, arg.InStock, arg.IsTimeBound,
		arg.AvailableFrom, arg.AvailableUntil, arg.IsSubscription,
	))
}

type UpdateMenuItemParams struct {
	ID                uuid.UUID
	Name              string
	Category          string
	Price             pgtype.Numeric
	Cost              pgtype.Numeric
	Quantity          int32
	LowStockThreshold int32
	InStock           bool
	IsTimeBound       bool
	AvailableFrom     pgtype.Text
	AvailableUntil    pgtype.Text
	IsSubscription    bool
}

func (q *Queries) UpdateMenuItem(ctx context.Context, arg UpdateMenuItemParams) (MenuItem, error) {
	return scanMenuItem(q.db.QueryRow(ctx, `
		UPDATE menu_items SET
			name = $2, category = $3, price = $4, cost = $5, quantity = $6,
			low_stock_threshold = $7, in_stock = $8, is_time_bound = $9,
			available_from = $10, available_until = $11, is_subscription = $12,
			updated_at = now()
		WHERE id = $1
		RETURNING `+menuItemColumns,
		arg.ID, arg.Name, arg.Category, arg.Price, arg.Cost, arg.Quantity,
		arg.LowStockThreshold, arg.InStock, arg.IsTimeBound,
		arg.AvailableFrom, arg.AvailableUntil, arg.IsSubscription,
	))
}

func (q *Queries) DeleteMenuItem(ctx context.Context, id uuid.UUID) (uuid.UUID, error) {
	var deleted uuid.UUID
	err := q.db.QueryRow(ctx,
		`DELETE FROM menu_items WHERE id = $1 RETURNING id`, id).Scan(&deleted)
	return deleted, err
}

type DecrementMenuItemQuantityParams struct {
	ID       uuid.UUID
	Quantity int32
}

type DecrementMenuItemQuantityRow struct {
	Quantity int32
	InStock  bool
}

// DecrementMenuItemQuantity applies a relative decrement to a simple item's
// flat counter. The in_stock flip at quantity <= 0 happens in the same
// statement; recipe-backed items never pass through here and never auto-flip.
func (q *Queries) DecrementMenuItemQuantity(ctx context.Context, arg DecrementMenuItemQuantityParams) (DecrementMenuItemQuantityRow, error) {
	var row DecrementMenuItemQuantityRow
	err := q.db.QueryRow(ctx, `
		UPDATE menu_items SET
			quantity = quantity - $2,
			in_stock = CASE WHEN quantity - $2 <= 0 THEN FALSE ELSE in_stock END,
			updated_at = now()
		WHERE id = $1
		RETURNING quantity, in_stock`,
		arg.ID, arg.Quantity,
	).Scan(&row.Quantity, &row.InStock)
	return row, err
}

// --- Recipe links ---

type ListRecipeForOrderRow struct {
	IngredientID     uuid.UUID
	IngredientName   string
	Unit             string
	CurrentStock     pgtype.Numeric
	QuantityRequired pgtype.Numeric
}

// ListRecipeForOrder returns the item's recipe joined with live ingredient
// stock, locking the ingredient rows until the transaction ends. An empty
// result means the item is simple and its own quantity field is the stock.
func (q *Queries) ListRecipeForOrder(ctx context.Context, menuItemID uuid.UUID) ([]ListRecipeForOrderRow, error) {
	rows, err := q.db.Query(ctx, `
		SELECT i.id, i.name, i.unit, i.current_stock, rl.quantity_required
		FROM recipe_links rl
		JOIN ingredients i ON i.id = rl.ingredient_id
		WHERE rl.menu_item_id = $1
		ORDER BY i.name
		FOR UPDATE OF i`,
		menuItemID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var links []ListRecipeForOrderRow
	for rows.Next() {
		var l ListRecipeForOrderRow
		if err := rows.Scan(&l.IngredientID, &l.IngredientName, &l.Unit,
			&l.CurrentStock, &l.QuantityRequired); err != nil {
			return nil, err
		}
		links = append(links, l)
	}
	return links, rows.Err()
}

type ListRecipeLinksRow struct {
	ID               uuid.UUID
	IngredientID     uuid.UUID
	IngredientName   string
	Unit             string
	QuantityRequired pgtype.Numeric
}

func (q *Queries) ListRecipeLinks(ctx context.Context, menuItemID uuid.UUID) ([]ListRecipeLinksRow, error) {
	rows, err := q.db.Query(ctx, `
		SELECT rl.id, rl.ingredient_id, i.name, i.unit, rl.quantity_required
		FROM recipe_links rl
		JOIN ingredients i ON i.id = rl.ingredient_id
		WHERE rl.menu_item_id = $1
		ORDER BY i.name`,
		menuItemID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var links []ListRecipeLinksRow
	for rows.Next() {
		var l ListRecipeLinksRow
		if err := rows.Scan(&l.ID, &l.IngredientID, &l.IngredientName,
			&l.Unit, &l.QuantityRequired); err != nil {
			return nil, err
		}
		links = append(links, l)
	}
	return links, rows.Err()
}

type CreateRecipeLinkParams struct {
	MenuItemID       uuid.UUID
	IngredientID     uuid.UUID
	QuantityRequired pgtype.Numeric
}

func (q *Queries) CreateRecipeLink(ctx context.Context, arg CreateRecipeLinkParams) (RecipeLink, error) {
	var rl RecipeLink
	err := q.db.QueryRow(ctx, `
		INSERT INTO recipe_links (menu_item_id, ingredient_id, quantity_required)
		VALUES ($1, $2, $3)
		RETURNING id, menu_item_id, ingredient_id, quantity_required`,
		arg.MenuItemID, arg.IngredientID, arg.QuantityRequired,
	).Scan(&rl.ID, &rl.MenuItemID, &rl.IngredientID, &rl.QuantityRequired)
	return rl, err
}

func (q *Queries) DeleteRecipeLinksByMenuItem(ctx context.Context, menuItemID uuid.UUID) error {
	_, err := q.db.Exec(ctx,
		`DELETE FROM recipe_links WHERE menu_item_id = $1`, menuItemID)
	return err
}

type ReplaceRecipeLinksParams struct {
	MenuItemID    uuid.UUID
	IngredientIDs []uuid.UUID
	Quantities    []pgtype.Numeric
}

// ReplaceRecipeLinks swaps an item's full recipe in one statement so a
// concurrent order never observes a half-replaced recipe.
func (q *Queries) ReplaceRecipeLinks(ctx context.Context, arg ReplaceRecipeLinksParams) error {
	_, err := q.db.Exec(ctx, `
		WITH deleted AS (
			DELETE FROM recipe_links WHERE menu_item_id = $1
		)
		INSERT INTO recipe_links (menu_item_id, ingredient_id, quantity_required)
		SELECT $1, t.ingredient_id, t.quantity_required
		FROM unnest($2::uuid[], $3::numeric[]) AS t(ingredient_id, quantity_required)`,
		arg.MenuItemID, arg.IngredientIDs, arg.Quantities)
	return err
}
