package entitlement

import (
	"context"
	"fmt"
	"sync"
	"time"

	"matchBack/internal/models"
)

// Logger provides minimal logging required by the entitlement queries.
type Logger interface {
	Infof(format string, args ...interface{})
	Errorf(format string, args ...interface{})
}

// Store reads and clears user entitlements.
type Store interface {
	PremiumRecord(ctx context.Context, userID int64) (models.PremiumRecord, error)
	ClearPremium(ctx context.Context, userID int64) error
	UnusedBoosts(ctx context.Context, userID int64) (int, error)
	SuperLikeAllowance(ctx context.Context, userID int64) (int, error)
	MessageCredits(ctx context.Context, userID int64) (int, error)
	GiftCredits(ctx context.Context, userID int64) (int, error)
}

// Service answers premium and balance questions for a user.
type Service struct {
	store  Store
	logger Logger
	now    func() time.Time
}

// NewService constructs a Service using the wall clock.
func NewService(store Store, logger Logger) *Service {
	return &Service{store: store, logger: logger, now: time.Now}
}

// CheckPremiumStatus reports whether the user has active premium. An expired
// premium flag is cleared in the store as a side effect of the read.
func (s *Service) CheckPremiumStatus(ctx context.Context, userID int64) (bool, error) {
	rec, err := s.store.PremiumRecord(ctx, userID)
	if err != nil {
		return false, fmt.Errorf("premium status for user %d: %w", userID, err)
	}
	if !rec.IsPremium {
		return false, nil
	}
	if rec.ExpiresAt == nil || rec.ExpiresAt.After(s.now()) {
		return true, nil
	}

	if err := s.store.ClearPremium(ctx, userID); err != nil {
		s.logger.Errorf("entitlement: clear expired premium for user %d: %v", userID, err)
	} else {
		s.logger.Infof("entitlement: premium of user %d expired at %s, cleared", userID, rec.ExpiresAt.UTC().Format(time.RFC3339))
	}
	return false, nil
}

// GetUserConsumables runs the four balance queries independently. A failed
// query leaves its field at zero.
func (s *Service) GetUserConsumables(ctx context.Context, userID int64) models.Consumables {
	var (
		out models.Consumables
		wg  sync.WaitGroup
	)
	queries := []struct {
		name  string
		fetch func(context.Context, int64) (int, error)
		dst   *int
	}{
		{"boosts", s.store.UnusedBoosts, &out.Boosts},
		{"superlikes", s.store.SuperLikeAllowance, &out.SuperLikes},
		{"message credits", s.store.MessageCredits, &out.MessageCredits},
		{"gift credits", s.store.GiftCredits, &out.GiftCredits},
	}
	for _, q := range queries {
		wg.Add(1)
		go func(name string, fetch func(context.Context, int64) (int, error), dst *int) {
			defer wg.Done()
			n, err := fetch(ctx, userID)
			if err != nil {
				s.logger.Errorf("entitlement: %s for user %d: %v", name, userID, err)
				return
			}
			*dst = n
		}(q.name, q.fetch, q.dst)
	}
	wg.Wait()
	return out
}
