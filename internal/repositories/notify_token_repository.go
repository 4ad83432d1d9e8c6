package repositories

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"sync"
)

// NotifyTokenRepository stores FCM device tokens per user.
type NotifyTokenRepository struct {
	DB      *sql.DB
	Dialect Dialect

	once sync.Once
	err  error
}

func NewNotifyTokenRepository(db *sql.DB, dialect Dialect) *NotifyTokenRepository {
	return &NotifyTokenRepository{DB: db, Dialect: dialect}
}

func (r *NotifyTokenRepository) ensureSchema(ctx context.Context) error {
	r.once.Do(func() {
		ddl := `
CREATE TABLE IF NOT EXISTS notify_tokens (
    id BIGINT UNSIGNED NOT NULL AUTO_INCREMENT,
    user_id BIGINT NOT NULL,
    token VARCHAR(512) NOT NULL,
    created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
    PRIMARY KEY (id),
    UNIQUE KEY uniq_token (token),
    KEY idx_user_id (user_id)
) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`
		if r.Dialect == DialectPostgres {
			ddl = `
CREATE TABLE IF NOT EXISTS notify_tokens (
    id BIGSERIAL PRIMARY KEY,
    user_id BIGINT NOT NULL,
    token VARCHAR(512) NOT NULL UNIQUE,
    created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
)`
		}
		_, r.err = r.DB.ExecContext(ctx, ddl)
	})
	return r.err
}

func (r *NotifyTokenRepository) TokensByUser(ctx context.Context, userID int64) ([]string, error) {
	if err := r.ensureSchema(ctx); err != nil {
		return nil, err
	}
	rows, err := r.DB.QueryContext(ctx, r.Dialect.Rebind(`SELECT token FROM notify_tokens WHERE user_id = ?`), userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var tokens []string
	for rows.Next() {
		var token string
		if err := rows.Scan(&token); err != nil {
			return nil, err
		}
		tokens = append(tokens, token)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return tokens, nil
}

// Insert registers a token. A token moves to the latest user that registers it.
func (r *NotifyTokenRepository) Insert(ctx context.Context, userID int64, token string) error {
	if err := r.ensureSchema(ctx); err != nil {
		return err
	}
	token = strings.TrimSpace(token)
	if token == "" {
		return fmt.Errorf("token is required")
	}
	q := `INSERT INTO notify_tokens (user_id, token) VALUES (?, ?) ON DUPLICATE KEY UPDATE user_id = VALUES(user_id)`
	if r.Dialect == DialectPostgres {
		q = r.Dialect.Rebind(`INSERT INTO notify_tokens (user_id, token) VALUES (?, ?) ON CONFLICT (token) DO UPDATE SET user_id = EXCLUDED.user_id`)
	}
	_, err := r.DB.ExecContext(ctx, q, userID, token)
	return err
}

func (r *NotifyTokenRepository) Delete(ctx context.Context, token string) error {
	if err := r.ensureSchema(ctx); err != nil {
		return err
	}
	_, err := r.DB.ExecContext(ctx, r.Dialect.Rebind(`DELETE FROM notify_tokens WHERE token = ?`), token)
	return err
}
