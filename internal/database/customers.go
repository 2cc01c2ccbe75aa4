package database

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
)

const customerColumns = `id, phone, name, loyalty_points, total_spent,
	visit_count, created_at, updated_at`

func scanCustomer(row pgx.Row) (Customer, error) {
	var c Customer
	err := row.Scan(
		&c.ID, &c.Phone, &c.Name, &c.LoyaltyPoints, &c.TotalSpent,
		&c.VisitCount, &c.CreatedAt, &c.UpdatedAt,
	)
	return c, err
}

type ListCustomersParams struct {
	Limit  int32
	Offset int32
}

func (q *Queries) ListCustomers(ctx context.Context, arg ListCustomersParams) ([]Customer, error) {
	rows, err := q.db.Query(ctx,
		`SELECT `+customerColumns+` FROM customers
		ORDER BY created_at DESC LIMIT $1 OFFSET $2`,
		arg.Limit, arg.Offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Customer
	for rows.Next() {
		c, err := scanCustomer(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func (q *Queries) GetCustomer(ctx context.Context, id uuid.UUID) (Customer, error) {
	return scanCustomer(q.db.QueryRow(ctx,
		`SELECT `+customerColumns+` FROM customers WHERE id = $1`, id))
}

func (q *Queries) GetCustomerByPhone(ctx context.Context, phone string) (Customer, error) {
	return scanCustomer(q.db.QueryRow(ctx,
		`SELECT `+customerColumns+` FROM customers WHERE phone = $1`, phone))
}

type CreateCustomerParams struct {
	Phone string
	Name  string
}

func (q *Queries) CreateCustomer(ctx context.Context, arg CreateCustomerParams) (Customer, error) {
	return scanCustomer(q.db.QueryRow(ctx, `
		INSERT INTO customers (phone, name)
		VALUES ($1, $2)
		RETURNING `+customerColumns,
		arg.Phone, arg.Name,
	))
}

type ApplyCustomerOrderStatsParams struct {
	ID     uuid.UUID
	Points int32
	Amount pgtype.Numeric
}

// ApplyCustomerOrderStats uses column-relative increments so concurrent
// orders from the same customer cannot lose updates.
func (q *Queries) ApplyCustomerOrderStats(ctx context.Context, arg ApplyCustomerOrderStatsParams) error {
	_, err := q.db.Exec(ctx, `
		UPDATE customers SET
			loyalty_points = loyalty_points + $2,
			total_spent = total_spent + $3,
			visit_count = visit_count + 1,
			updated_at = now()
		WHERE id = $1`,
		arg.ID, arg.Points, arg.Amount)
	return err
}
