package sweep

import (
	"context"

	"matchBack/internal/iap/reconcile"
	"matchBack/internal/models"
)

// Logger provides minimal logging required by the sweeper.
type Logger interface {
	Infof(format string, args ...interface{})
	Errorf(format string, args ...interface{})
}

// Source lists purchases the store still considers open.
type Source interface {
	PendingPurchases(ctx context.Context) ([]models.PurchaseEvent, error)
	AvailablePurchases(ctx context.Context) ([]models.PurchaseEvent, error)
}

// Handler reconciles a single purchase.
type Handler interface {
	Handle(ctx context.Context, ev models.PurchaseEvent) reconcile.Result
}

// Report summarizes one sweep.
type Report struct {
	Seen         int
	Granted      int
	LedgerFailed int
	FinishFailed int
}

// Sweeper replays unfinished purchases through the reconciler.
type Sweeper struct {
	source  Source
	handler Handler
	logger  Logger
}

// New constructs a Sweeper.
func New(source Source, handler Handler, logger Logger) *Sweeper {
	return &Sweeper{source: source, handler: handler, logger: logger}
}

// Sweep handles every open purchase once. Failures of one item never stop the
// sweep. When pending enumeration fails the available purchases are used.
func (s *Sweeper) Sweep(ctx context.Context) Report {
	var rep Report

	purchases, err := s.source.PendingPurchases(ctx)
	if err != nil {
		s.logger.Errorf("sweep: pending purchases failed, using available purchases: %v", err)
		purchases, err = s.source.AvailablePurchases(ctx)
		if err != nil {
			s.logger.Errorf("sweep: available purchases failed: %v", err)
			return rep
		}
	}

	seen := make(map[string]struct{}, len(purchases))
	for _, p := range purchases {
		key := p.TransactionID
		if key == "" {
			key = p.SKU + "|" + p.ProofOfPurchase()
		}
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		if ctx.Err() != nil {
			s.logger.Errorf("sweep: stopped after %d items: %v", rep.Seen, ctx.Err())
			break
		}

		rep.Seen++
		res := s.handleOne(ctx, p)
		if res.LedgerErr != nil {
			rep.LedgerFailed++
		} else {
			rep.Granted++
		}
		if res.FinishErr != nil {
			rep.FinishFailed++
		}
	}

	if rep.Seen > 0 {
		s.logger.Infof("sweep: %d open purchases, %d granted, %d ledger failures, %d finish failures",
			rep.Seen, rep.Granted, rep.LedgerFailed, rep.FinishFailed)
	}
	return rep
}

func (s *Sweeper) handleOne(ctx context.Context, p models.PurchaseEvent) (res reconcile.Result) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Errorf("sweep: tx %s panicked: %v", p.TransactionID, r)
			res = reconcile.Result{
				SKU:           p.SKU,
				TransactionID: p.TransactionID,
				LedgerErr:     models.ErrLedger,
			}
		}
	}()
	return s.handler.Handle(ctx, p)
}
