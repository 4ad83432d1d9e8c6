package journal

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"matchBack/internal/iap/reconcile"
	"matchBack/internal/models"
)

// DefaultKey is the Redis list holding ledger failures awaiting review.
const DefaultKey = "iap:ledger_failures"

// Logger provides minimal logging required by the journal.
type Logger interface {
	Infof(format string, args ...interface{})
	Errorf(format string, args ...interface{})
}

// ListClient is the subset of *redis.Client the journal uses.
type ListClient interface {
	RPush(ctx context.Context, key string, values ...interface{}) *redis.IntCmd
	LRange(ctx context.Context, key string, start, stop int64) *redis.StringSliceCmd
	LTrim(ctx context.Context, key string, start, stop int64) *redis.StatusCmd
	LLen(ctx context.Context, key string) *redis.IntCmd
}

// Journal records ledger failures for manual reconciliation.
type Journal struct {
	rdb    ListClient
	key    string
	logger Logger
	now    func() time.Time
}

// New constructs a Journal on the given Redis list.
func New(rdb ListClient, key string, logger Logger) *Journal {
	if key == "" {
		key = DefaultKey
	}
	return &Journal{rdb: rdb, key: key, logger: logger, now: time.Now}
}

// Record appends a failure to the list.
func (j *Journal) Record(ctx context.Context, f models.LedgerFailure) error {
	if f.ID == "" {
		f.ID = uuid.NewString()
	}
	if f.OccurredAt.IsZero() {
		f.OccurredAt = j.now().UTC()
	}
	data, err := json.Marshal(f)
	if err != nil {
		return fmt.Errorf("marshal ledger failure: %w", err)
	}
	if err := j.rdb.RPush(ctx, j.key, data).Err(); err != nil {
		return fmt.Errorf("journal rpush: %w", err)
	}
	return nil
}

// Peek returns up to n of the oldest records without removing them.
func (j *Journal) Peek(ctx context.Context, n int) ([]models.LedgerFailure, error) {
	if n <= 0 {
		return nil, nil
	}
	raw, err := j.rdb.LRange(ctx, j.key, 0, int64(n-1)).Result()
	if err != nil {
		return nil, fmt.Errorf("journal lrange: %w", err)
	}
	out := make([]models.LedgerFailure, 0, len(raw))
	for _, item := range raw {
		var f models.LedgerFailure
		if err := json.Unmarshal([]byte(item), &f); err != nil {
			j.logger.Errorf("journal: skipping malformed record: %v", err)
			f = models.LedgerFailure{Reason: "malformed: " + item}
		}
		out = append(out, f)
	}
	return out, nil
}

// Trim drops the n oldest records. Records appended since Peek are kept.
func (j *Journal) Trim(ctx context.Context, n int) error {
	if n <= 0 {
		return nil
	}
	if err := j.rdb.LTrim(ctx, j.key, int64(n), -1).Err(); err != nil {
		return fmt.Errorf("journal ltrim: %w", err)
	}
	return nil
}

// Len returns the number of pending records.
func (j *Journal) Len(ctx context.Context) (int64, error) {
	return j.rdb.LLen(ctx, j.key).Result()
}

// Granted implements reconcile.Observer; grants need no journal entry.
func (j *Journal) Granted(ctx context.Context, userID int64, res reconcile.Result) {}

// LedgerFailed implements reconcile.Observer.
func (j *Journal) LedgerFailed(ctx context.Context, userID int64, res reconcile.Result) {
	reason := ""
	if res.LedgerErr != nil {
		reason = res.LedgerErr.Error()
	}
	err := j.Record(ctx, models.LedgerFailure{
		UserID:        userID,
		SKU:           res.SKU,
		TransactionID: res.TransactionID,
		Platform:      res.Platform,
		Category:      res.Category,
		Consumable:    res.Consumable,
		Reason:        reason,
		Finished:      res.FinishErr == nil,
	})
	if err != nil {
		j.logger.Errorf("journal: user %d tx %s not recorded: %v", userID, res.TransactionID, err)
	}
}
