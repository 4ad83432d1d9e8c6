package reconcile

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"matchBack/internal/iap/classify"
	"matchBack/internal/models"
)

// Logger provides minimal logging required by the reconciler.
type Logger interface {
	Infof(format string, args ...interface{})
	Errorf(format string, args ...interface{})
}

// Ledger is the backend that records entitlement grants. Both calls are
// idempotent per transaction id.
type Ledger interface {
	ProcessSubscription(ctx context.Context, g models.SubscriptionGrant) (models.LedgerResult, error)
	ProcessConsumablePurchase(ctx context.Context, g models.ConsumableGrant) (models.LedgerResult, error)
}

// Finisher closes a transaction with the store.
type Finisher interface {
	FinishTransaction(ctx context.Context, purchase models.PurchaseEvent, consumable bool) error
}

// ClassifierSource hands out the classifier of the current catalog snapshot.
type ClassifierSource interface {
	Classifier() *classify.Classifier
}

// Observer is told about ledger outcomes. Implementations must not block for long.
type Observer interface {
	Granted(ctx context.Context, userID int64, res Result)
	LedgerFailed(ctx context.Context, userID int64, res Result)
}

// Result describes what happened to one delivery.
type Result struct {
	SKU           string
	TransactionID string
	Platform      models.Platform
	Category      models.ProductCategory
	Consumable    bool
	Stage         Stage
	Ledger        models.LedgerResult
	LedgerErr     error
	FinishErr     error
}

// Granted reports whether the ledger accepted the purchase.
func (r Result) Granted() bool { return r.LedgerErr == nil }

// Reconciler turns store purchase deliveries into ledger grants for one user.
type Reconciler struct {
	userID      int64
	ledger      Ledger
	finisher    Finisher
	classifiers ClassifierSource
	observer    Observer
	logger      Logger

	mu sync.Mutex
}

// New constructs a Reconciler. observer may be nil.
func New(userID int64, ledger Ledger, finisher Finisher, classifiers ClassifierSource, observer Observer, logger Logger) *Reconciler {
	return &Reconciler{
		userID:      userID,
		ledger:      ledger,
		finisher:    finisher,
		classifiers: classifiers,
		observer:    observer,
		logger:      logger,
	}
}

// Handle runs classify -> ledger -> finish for a delivery. Deliveries are
// handled one at a time. The transaction is finished even when the ledger
// call fails; the same transaction id may be handled again on redelivery.
// Observers run after the delivery is released.
func (r *Reconciler) Handle(ctx context.Context, ev models.PurchaseEvent) Result {
	res := r.settle(ctx, ev)

	if r.observer != nil {
		if res.LedgerErr != nil {
			r.observer.LedgerFailed(ctx, r.userID, res)
		} else {
			r.observer.Granted(ctx, r.userID, res)
		}
	}
	return res
}

func (r *Reconciler) settle(ctx context.Context, ev models.PurchaseEvent) Result {
	r.mu.Lock()
	defer r.mu.Unlock()

	res := Result{
		SKU:           ev.SKU,
		TransactionID: ev.TransactionID,
		Platform:      ev.Platform,
		Stage:         StageReceived,
	}

	classifier := r.classifiers.Classifier()
	res.Category = classifier.Classify(ev.SKU)
	res.Consumable = classifier.IsConsumable(ev.SKU)
	advance(&res.Stage, StageClassified)

	res.Ledger, res.LedgerErr = r.grant(ctx, ev, res.Category, res.Consumable)
	advance(&res.Stage, StageLedgerAttempted)
	if res.LedgerErr != nil {
		r.logger.Errorf("reconcile: user %d tx %s sku %s: %v", r.userID, ev.TransactionID, ev.SKU, res.LedgerErr)
	}

	if err := r.finisher.FinishTransaction(ctx, ev, res.Consumable); err != nil {
		res.FinishErr = fmt.Errorf("finish transaction %s: %w", ev.TransactionID, err)
		r.logger.Errorf("reconcile: user %d: %v", r.userID, res.FinishErr)
	}
	advance(&res.Stage, StageFinalized)

	if res.LedgerErr == nil {
		r.logger.Infof("reconcile: user %d tx %s sku %s granted (%s)", r.userID, ev.TransactionID, ev.SKU, res.Ledger.Message)
	}
	return res
}

func (r *Reconciler) grant(ctx context.Context, ev models.PurchaseEvent, category models.ProductCategory, consumable bool) (models.LedgerResult, error) {
	if ev.TransactionID == "" {
		return models.LedgerResult{}, fmt.Errorf("%w: missing transaction id", models.ErrLedger)
	}

	var (
		out models.LedgerResult
		err error
	)
	if consumable {
		out, err = r.ledger.ProcessConsumablePurchase(ctx, models.ConsumableGrant{
			UserID:         r.userID,
			ProductID:      ev.SKU,
			TransactionID:  ev.TransactionID,
			Platform:       ev.Platform,
			Category:       category,
			ReceiptPayload: ev.RawPayload,
		})
	} else {
		out, err = r.ledger.ProcessSubscription(ctx, models.SubscriptionGrant{
			UserID:         r.userID,
			ProductID:      ev.SKU,
			TransactionID:  ev.TransactionID,
			PurchaseToken:  ev.ProofOfPurchase(),
			Platform:       ev.Platform,
			Category:       category,
			ReceiptPayload: ev.RawPayload,
		})
	}
	if err != nil {
		if errors.Is(err, models.ErrLedger) {
			return out, err
		}
		return out, fmt.Errorf("%w: %v", models.ErrLedger, err)
	}
	if !out.Success {
		return out, fmt.Errorf("%w: %s", models.ErrLedger, out.Message)
	}
	return out, nil
}

// Observers fans out to several observers in order.
type Observers []Observer

func (o Observers) Granted(ctx context.Context, userID int64, res Result) {
	for _, ob := range o {
		ob.Granted(ctx, userID, res)
	}
}

func (o Observers) LedgerFailed(ctx context.Context, userID int64, res Result) {
	for _, ob := range o {
		ob.LedgerFailed(ctx, userID, res)
	}
}
