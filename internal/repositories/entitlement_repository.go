package repositories

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"matchBack/internal/models"
)

// EntitlementRepository reads and clears premium flags and balances kept in
// user_entitlements. The table is created by LedgerRepository.
type EntitlementRepository struct {
	DB      *sql.DB
	Dialect Dialect
}

func NewEntitlementRepository(db *sql.DB, dialect Dialect) *EntitlementRepository {
	return &EntitlementRepository{DB: db, Dialect: dialect}
}

// PremiumRecord returns the user's premium flag. Users without a row are not premium.
func (r *EntitlementRepository) PremiumRecord(ctx context.Context, userID int64) (models.PremiumRecord, error) {
	rec := models.PremiumRecord{UserID: userID}
	var expires sql.NullTime
	err := r.DB.QueryRowContext(ctx,
		r.Dialect.Rebind(`SELECT is_premium, premium_expires_at FROM user_entitlements WHERE user_id = ?`),
		userID,
	).Scan(&rec.IsPremium, &expires)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return rec, nil
		}
		return models.PremiumRecord{}, err
	}
	if expires.Valid {
		t := expires.Time
		rec.ExpiresAt = &t
	}
	return rec, nil
}

// ClearPremium turns premium off and drops the expiry.
func (r *EntitlementRepository) ClearPremium(ctx context.Context, userID int64) error {
	_, err := r.DB.ExecContext(ctx,
		r.Dialect.Rebind(`UPDATE user_entitlements SET is_premium = FALSE, premium_expires_at = NULL WHERE user_id = ?`),
		userID,
	)
	return err
}

func (r *EntitlementRepository) UnusedBoosts(ctx context.Context, userID int64) (int, error) {
	return r.balance(ctx, `SELECT boosts FROM user_entitlements WHERE user_id = ?`, userID)
}

func (r *EntitlementRepository) SuperLikeAllowance(ctx context.Context, userID int64) (int, error) {
	return r.balance(ctx, `SELECT superlikes FROM user_entitlements WHERE user_id = ?`, userID)
}

func (r *EntitlementRepository) MessageCredits(ctx context.Context, userID int64) (int, error) {
	return r.balance(ctx, `SELECT message_credits FROM user_entitlements WHERE user_id = ?`, userID)
}

func (r *EntitlementRepository) GiftCredits(ctx context.Context, userID int64) (int, error) {
	return r.balance(ctx, `SELECT gift_credits FROM user_entitlements WHERE user_id = ?`, userID)
}

func (r *EntitlementRepository) balance(ctx context.Context, query string, userID int64) (int, error) {
	var n int
	err := r.DB.QueryRowContext(ctx, r.Dialect.Rebind(query), userID).Scan(&n)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	return n, err
}

// ClearExpiredPremium turns off every premium flag whose expiry is before now.
func (r *EntitlementRepository) ClearExpiredPremium(ctx context.Context, now time.Time) (int64, error) {
	res, err := r.DB.ExecContext(ctx,
		r.Dialect.Rebind(`UPDATE user_entitlements SET is_premium = FALSE, premium_expires_at = NULL WHERE is_premium = TRUE AND premium_expires_at IS NOT NULL AND premium_expires_at <= ?`),
		now,
	)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
