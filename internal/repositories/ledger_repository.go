package repositories

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"sync"
	"time"

	"matchBack/internal/iap/classify"
	"matchBack/internal/models"
)

const alreadyProcessed = "already processed"

// LedgerRepository records store transactions and applies the entitlement
// they pay for. Every grant is keyed by transaction id, so replays are no-ops.
type LedgerRepository struct {
	DB      *sql.DB
	Dialect Dialect

	now  func() time.Time
	once sync.Once
	err  error
}

func NewLedgerRepository(db *sql.DB, dialect Dialect) *LedgerRepository {
	return &LedgerRepository{DB: db, Dialect: dialect, now: time.Now}
}

func (r *LedgerRepository) ensureSchema(ctx context.Context) error {
	r.once.Do(func() {
		for _, ddl := range ledgerDDL(r.Dialect) {
			if _, r.err = r.DB.ExecContext(ctx, ddl); r.err != nil {
				return
			}
		}
	})
	return r.err
}

// Migrate creates the ledger and entitlement tables if they are missing.
func (r *LedgerRepository) Migrate(ctx context.Context) error {
	return r.ensureSchema(ctx)
}

func ledgerDDL(d Dialect) []string {
	if d == DialectPostgres {
		return []string{`
CREATE TABLE IF NOT EXISTS iap_ledger (
    id BIGSERIAL PRIMARY KEY,
    transaction_id VARCHAR(255) NOT NULL UNIQUE,
    user_id BIGINT NOT NULL,
    product_id VARCHAR(255) NOT NULL DEFAULT '',
    platform VARCHAR(16) NOT NULL DEFAULT '',
    kind VARCHAR(32) NOT NULL DEFAULT '',
    purchase_token TEXT,
    receipt_payload TEXT,
    created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
)`, `
CREATE TABLE IF NOT EXISTS user_entitlements (
    user_id BIGINT PRIMARY KEY,
    is_premium BOOLEAN NOT NULL DEFAULT FALSE,
    premium_expires_at TIMESTAMPTZ NULL,
    boosts INT NOT NULL DEFAULT 0,
    superlikes INT NOT NULL DEFAULT 0,
    message_credits INT NOT NULL DEFAULT 0,
    gift_credits INT NOT NULL DEFAULT 0,
    updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
)`}
	}
	return []string{`
CREATE TABLE IF NOT EXISTS iap_ledger (
    id BIGINT UNSIGNED NOT NULL AUTO_INCREMENT,
    transaction_id VARCHAR(255) NOT NULL,
    user_id BIGINT NOT NULL,
    product_id VARCHAR(255) NOT NULL DEFAULT '',
    platform VARCHAR(16) NOT NULL DEFAULT '',
    kind VARCHAR(32) NOT NULL DEFAULT '',
    purchase_token TEXT,
    receipt_payload LONGTEXT,
    created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
    PRIMARY KEY (id),
    UNIQUE KEY uniq_transaction_id (transaction_id),
    KEY idx_user_id (user_id)
) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`, `
CREATE TABLE IF NOT EXISTS user_entitlements (
    user_id BIGINT NOT NULL,
    is_premium BOOLEAN NOT NULL DEFAULT FALSE,
    premium_expires_at DATETIME NULL,
    boosts INT NOT NULL DEFAULT 0,
    superlikes INT NOT NULL DEFAULT 0,
    message_credits INT NOT NULL DEFAULT 0,
    gift_credits INT NOT NULL DEFAULT 0,
    updated_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
    PRIMARY KEY (user_id)
) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`}
}

type ledgerRow struct {
	TransactionID string
	UserID        int64
	ProductID     string
	Platform      models.Platform
	Kind          string
	PurchaseToken string
	Receipt       string
}

// record inserts the ledger row and reports whether it is new.
func (r *LedgerRepository) record(ctx context.Context, tx *sql.Tx, row ledgerRow) (bool, error) {
	q := r.Dialect.insertIgnore("iap_ledger",
		"transaction_id, user_id, product_id, platform, kind, purchase_token, receipt_payload", 7)
	res, err := tx.ExecContext(ctx, q, row.TransactionID, row.UserID, row.ProductID, string(row.Platform), row.Kind, row.PurchaseToken, row.Receipt)
	if err != nil {
		return false, fmt.Errorf("insert ledger row: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func (r *LedgerRepository) ensureEntitlementRow(ctx context.Context, tx *sql.Tx, userID int64) error {
	_, err := tx.ExecContext(ctx, r.Dialect.insertIgnore("user_entitlements", "user_id", 1), userID)
	return err
}

// ProcessSubscription extends premium for the user by the period encoded in
// the product id, starting from the later of now and the current expiry.
// Grants classified as a consumable are refused without touching the ledger.
func (r *LedgerRepository) ProcessSubscription(ctx context.Context, g models.SubscriptionGrant) (res models.LedgerResult, err error) {
	if err = r.ensureSchema(ctx); err != nil {
		return models.LedgerResult{}, err
	}
	if strings.TrimSpace(g.TransactionID) == "" {
		return models.LedgerResult{}, fmt.Errorf("transaction_id is required")
	}
	if g.Category != "" && g.Category != models.CategorySubscription {
		return models.LedgerResult{Success: false, Message: "product " + g.ProductID + " is not a subscription"}, nil
	}

	tx, err := r.DB.BeginTx(ctx, nil)
	if err != nil {
		return models.LedgerResult{}, err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		} else {
			err = tx.Commit()
		}
	}()

	fresh, err := r.record(ctx, tx, ledgerRow{
		TransactionID: g.TransactionID,
		UserID:        g.UserID,
		ProductID:     g.ProductID,
		Platform:      g.Platform,
		Kind:          string(models.CategorySubscription),
		PurchaseToken: g.PurchaseToken,
		Receipt:       string(g.ReceiptPayload),
	})
	if err != nil {
		return models.LedgerResult{}, err
	}
	if !fresh {
		return models.LedgerResult{Success: true, Message: alreadyProcessed}, nil
	}
	if err = r.ensureEntitlementRow(ctx, tx, g.UserID); err != nil {
		return models.LedgerResult{}, err
	}

	var current sql.NullTime
	err = tx.QueryRowContext(ctx,
		r.Dialect.Rebind(`SELECT premium_expires_at FROM user_entitlements WHERE user_id = ? FOR UPDATE`),
		g.UserID,
	).Scan(&current)
	if err != nil {
		return models.LedgerResult{}, err
	}

	now := r.now().UTC()
	base := now
	if current.Valid && current.Time.After(now) {
		base = current.Time.UTC()
	}
	expires := subscriptionPeriodFor(g.ProductID).addTo(base)

	_, err = tx.ExecContext(ctx,
		r.Dialect.Rebind(`UPDATE user_entitlements SET is_premium = TRUE, premium_expires_at = ?, updated_at = ? WHERE user_id = ?`),
		expires, now, g.UserID,
	)
	if err != nil {
		return models.LedgerResult{}, err
	}
	return models.LedgerResult{
		Success: true,
		Message: "premium active until " + expires.Format(time.RFC3339),
	}, nil
}

// ProcessConsumablePurchase credits the balance the grant's category names,
// falling back to the product id when the category is unknown.
// Subscriptions are refused without touching the ledger.
func (r *LedgerRepository) ProcessConsumablePurchase(ctx context.Context, g models.ConsumableGrant) (res models.LedgerResult, err error) {
	if err = r.ensureSchema(ctx); err != nil {
		return models.LedgerResult{}, err
	}
	if strings.TrimSpace(g.TransactionID) == "" {
		return models.LedgerResult{}, fmt.Errorf("transaction_id is required")
	}
	column, ok := balanceColumn(g.Category, g.ProductID)
	if !ok {
		return models.LedgerResult{Success: false, Message: "product " + g.ProductID + " is not a consumable"}, nil
	}
	qty := classify.PackSize(g.ProductID)

	tx, err := r.DB.BeginTx(ctx, nil)
	if err != nil {
		return models.LedgerResult{}, err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		} else {
			err = tx.Commit()
		}
	}()

	fresh, err := r.record(ctx, tx, ledgerRow{
		TransactionID: g.TransactionID,
		UserID:        g.UserID,
		ProductID:     g.ProductID,
		Platform:      g.Platform,
		Kind:          column,
		Receipt:       string(g.ReceiptPayload),
	})
	if err != nil {
		return models.LedgerResult{}, err
	}
	if !fresh {
		return models.LedgerResult{Success: true, Message: alreadyProcessed}, nil
	}
	if err = r.ensureEntitlementRow(ctx, tx, g.UserID); err != nil {
		return models.LedgerResult{}, err
	}

	// column comes from balanceColumn, never from input.
	_, err = tx.ExecContext(ctx,
		r.Dialect.Rebind(`UPDATE user_entitlements SET `+column+` = `+column+` + ?, updated_at = ? WHERE user_id = ?`),
		qty, r.now().UTC(), g.UserID,
	)
	if err != nil {
		return models.LedgerResult{}, err
	}
	return models.LedgerResult{
		Success: true,
		Message: fmt.Sprintf("credited %d %s", qty, column),
	}, nil
}

type period struct {
	years, months, days int
}

func (p period) addTo(t time.Time) time.Time {
	return t.AddDate(p.years, p.months, p.days)
}

// subscriptionPeriodFor derives the billing period from the product id.
// Unrecognised ids are treated as monthly.
func subscriptionPeriodFor(productID string) period {
	s := strings.ToLower(productID)
	switch {
	case containsAny(s, "year", "annual", "12month", "12_month", "12m"):
		return period{years: 1}
	case containsAny(s, "6month", "6_month", "6m", "halfyear", "semiannual"):
		return period{months: 6}
	case containsAny(s, "3month", "3_month", "3m", "quarter"):
		return period{months: 3}
	case containsAny(s, "week", "7day", "7_day"):
		return period{days: 7}
	default:
		return period{months: 1}
	}
}

// balanceColumn maps a consumable category to its user_entitlements column.
// Credits are gift credits when the product id says so.
func balanceColumn(category models.ProductCategory, productID string) (string, bool) {
	if category == "" {
		category = classify.Heuristic(productID)
	}
	switch category {
	case models.CategoryBoost:
		return "boosts", true
	case models.CategorySuperLike:
		return "superlikes", true
	case models.CategoryCredit:
		if strings.Contains(strings.ToLower(productID), "gift") {
			return "gift_credits", true
		}
		return "message_credits", true
	default:
		return "", false
	}
}

func containsAny(s string, needles ...string) bool {
	for _, n := range needles {
		if strings.Contains(s, n) {
			return true
		}
	}
	return false
}
