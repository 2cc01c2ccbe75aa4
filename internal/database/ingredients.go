package database

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
)

const ingredientColumns = `id, name, current_stock, unit, cost_per_unit,
	low_stock_threshold, created_at, updated_at`

func scanIngredient(row pgx.Row) (Ingredient, error) {
	var i Ingredient
	err := row.Scan(
		&i.ID, &i.Name, &i.CurrentStock, &i.Unit, &i.CostPerUnit,
		&i.LowStockThreshold, &i.CreatedAt, &i.UpdatedAt,
	)
	return i, err
}

func (q *Queries) ListIngredients(ctx context.Context) ([]Ingredient, error) {
	rows, err := q.db.Query(ctx,
		`SELECT `+ingredientColumns+` FROM ingredients ORDER BY name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Ingredient
	for rows.Next() {
		i, err := scanIngredient(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, i)
	}
	return out, rows.Err()
}

func (q *Queries) ListLowStockIngredients(ctx context.Context) ([]Ingredient, error) {
	rows, err := q.db.Query(ctx,
		`SELECT `+ingredientColumns+` FROM ingredients
		WHERE current_stock <= low_stock_threshold ORDER BY name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Ingredient
	for rows.Next() {
		i, err := scanIngredient(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, i)
	}
	return out, rows.Err()
}

func (q *Queries) GetIngredient(ctx context.Context, id uuid.UUID) (Ingredient, error) {
	return scanIngredient(q.db.QueryRow(ctx,
		`SELECT `+ingredientColumns+` FROM ingredients WHERE id = $1`, id))
}

type CreateIngredientParams struct {
	Name              string
	CurrentStock      pgtype.Numeric
	Unit              string
	CostPerUnit       pgtype.Numeric
	LowStockThreshold pgtype.Numeric
}

func (q *Queries) CreateIngredient(ctx context.Context, arg CreateIngredientParams) (Ingredient, error) {
	return scanIngredient(q.db.QueryRow(ctx, `
		INSERT INTO ingredients (name, current_stock, unit, cost_per_unit, low_stock_threshold)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING `+ingredientColumns,
		arg.Name, arg.CurrentStock, arg.Unit, arg.CostPerUnit, arg.LowStockThreshold,
	))
}

type UpdateIngredientParams struct {
	ID                uuid.UUID
	Name              string
	Unit              string
	CostPerUnit       pgtype.Numeric
	LowStockThreshold pgtype.Numeric
}

// UpdateIngredient deliberately leaves current_stock alone; stock moves only
// through the relative decrement/restock statements.
func (q *Queries) UpdateIngredient(ctx context.Context, arg UpdateIngredientParams) (Ingredient, error) {
	return scanIngredient(q.db.QueryRow(ctx, `
		UPDATE ingredients SET
			name = $2, unit = $3, cost_per_unit = $4, low_stock_threshold = $5,
			updated_at = now()
		WHERE id = $1
		RETURNING `+ingredientColumns,
		arg.ID, arg.Name, arg.Unit, arg.CostPerUnit, arg.LowStockThreshold,
	))
}

func (q *Queries) DeleteIngredient(ctx context.Context, id uuid.UUID) (uuid.UUID, error) {
	var deleted uuid.UUID
	err := q.db.QueryRow(ctx,
		`DELETE FROM ingredients WHERE id = $1 RETURNING id`, id).Scan(&deleted)
	return deleted, err
}

type DecrementIngredientStockParams struct {
	ID     uuid.UUID
	Amount pgtype.Numeric
}

// DecrementIngredientStock is a relative update on a row the caller has
// already locked via ListRecipeForOrder.
func (q *Queries) DecrementIngredientStock(ctx context.Context, arg DecrementIngredientStockParams) error {
	_, err := q.db.Exec(ctx, `
		UPDATE ingredients SET
			current_stock = current_stock - $2,
			updated_at = now()
		WHERE id = $1`,
		arg.ID, arg.Amount)
	return err
}

type RestockIngredientParams struct {
	ID     uuid.UUID
	Amount pgtype.Numeric
}

func (q *Queries) RestockIngredient(ctx context.Context, arg RestockIngredientParams) (Ingredient, error) {
	return scanIngredient(q.db.QueryRow(ctx, `
		UPDATE ingredients SET
			current_stock = current_stock + $2,
			updated_at = now()
		WHERE id = $1
		RETURNING `+ingredientColumns,
		arg.ID, arg.Amount,
	))
}
