package database

import "context"

func (q *Queries) GetSetting(ctx context.Context, key string) (bool, error) {
	var value bool
	err := q.db.QueryRow(ctx,
		`SELECT value FROM settings WHERE key = $1`, key).Scan(&value)
	return value, err
}

func (q *Queries) SetSetting(ctx context.Context, key string, value bool) error {
	_, err := q.db.Exec(ctx, `
		INSERT INTO settings (key, value) VALUES ($1, $2)
		ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value`,
		key, value)
	return err
}
