package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"
)

const instanceColumns = `name, status, jid, push_name, avatar, webhook_url, webhook_enabled, created_by, created_at, updated_at`

// UpsertInstance creates the instance row or touches updated_at when it exists.
func (db *DB) UpsertInstance(ctx context.Context, name string, createdBy *int64) (*Instance, error) {
	var inst Instance
	err := db.x.GetContext(ctx, &inst, `
		INSERT INTO gw_instances (name, created_by)
		VALUES ($1, $2)
		ON CONFLICT (name) DO UPDATE SET updated_at = NOW()
		RETURNING `+instanceColumns, name, createdBy)
	if err != nil {
		return nil, fmt.Errorf("upsert instance: %w", err)
	}
	return &inst, nil
}

// UpdateInstanceStatus records a lifecycle transition. Empty jid or pushName keep
// the stored values, except on logged_out, which clears both.
func (db *DB) UpdateInstanceStatus(ctx context.Context, name, status, jid, pushName string) error {
	_, err := db.x.ExecContext(ctx, `
		INSERT INTO gw_instances (name, status, jid, push_name)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (name) DO UPDATE SET
			status = EXCLUDED.status,
			jid = CASE
				WHEN EXCLUDED.status = 'logged_out' THEN ''
				WHEN EXCLUDED.jid <> '' THEN EXCLUDED.jid
				ELSE gw_instances.jid END,
			push_name = CASE
				WHEN EXCLUDED.status = 'logged_out' THEN ''
				WHEN EXCLUDED.push_name <> '' THEN EXCLUDED.push_name
				ELSE gw_instances.push_name END,
			updated_at = NOW()
	`, name, status, jid, pushName)
	if err != nil {
		return fmt.Errorf("update instance status: %w", err)
	}
	return nil
}

func (db *DB) UpdateInstanceAvatar(ctx context.Context, name, avatar string) error {
	_, err := db.x.ExecContext(ctx, `UPDATE gw_instances SET avatar = $2, updated_at = NOW() WHERE name = $1`, name, avatar)
	return err
}

func (db *DB) SetInstanceWebhook(ctx context.Context, name, url string, enabled bool) error {
	res, err := db.x.ExecContext(ctx, `
		UPDATE gw_instances SET webhook_url = $2, webhook_enabled = $3, updated_at = NOW()
		WHERE name = $1
	`, name, url, enabled)
	if err != nil {
		return fmt.Errorf("set instance webhook: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (db *DB) GetInstance(ctx context.Context, name string) (*Instance, error) {
	var inst Instance
	err := db.x.GetContext(ctx, &inst, `SELECT `+instanceColumns+` FROM gw_instances WHERE name = $1`, name)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &inst, nil
}

// ListInstances returns every instance when allowed is nil, otherwise only the
// named ones.
func (db *DB) ListInstances(ctx context.Context, allowed []string) ([]Instance, error) {
	instances := []Instance{}
	if allowed == nil {
		err := db.x.SelectContext(ctx, &instances, `SELECT `+instanceColumns+` FROM gw_instances ORDER BY created_at DESC`)
		return instances, err
	}
	if len(allowed) == 0 {
		return instances, nil
	}
	query, args, err := sqlx.In(`SELECT `+instanceColumns+` FROM gw_instances WHERE name IN (?) ORDER BY created_at DESC`, allowed)
	if err != nil {
		return nil, err
	}
	err = db.x.SelectContext(ctx, &instances, db.x.Rebind(query), args...)
	return instances, err
}

// DeleteInstance removes the instance and everything recorded under it.
func (db *DB) DeleteInstance(ctx context.Context, name string) error {
	tx, err := db.x.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	for _, stmt := range []string{
		`DELETE FROM gw_contacts WHERE instance = $1`,
		`DELETE FROM gw_groups WHERE instance = $1`,
		`DELETE FROM gw_messages WHERE instance = $1`,
		`DELETE FROM gw_webhook_deliveries WHERE instance = $1`,
	} {
		if _, err := tx.ExecContext(ctx, stmt, name); err != nil {
			return fmt.Errorf("delete instance data: %w", err)
		}
	}
	res, err := tx.ExecContext(ctx, `DELETE FROM gw_instances WHERE name = $1`, name)
	if err != nil {
		return fmt.Errorf("delete instance: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return tx.Commit()
}
