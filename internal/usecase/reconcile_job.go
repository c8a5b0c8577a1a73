package usecase

import (
	"context"
	"fmt"
	"time"

	"DigitFlow/internal/controller"
	domrepo "DigitFlow/internal/domain/repository"
	internalrepo "DigitFlow/internal/repository"
	"DigitFlow/pkg/logger"
	"DigitFlow/pkg/queue"
)

const reconcileLookupTimeout = 30 * time.Second

// ReconcileJob resolves trades that were accepted by the broker but whose
// settlement never arrived. It re-queries the contract and journals the
// outcome once known. Queue retry policy handles broker unavailability;
// exhausted attempts land in the dead letter queue for manual review.
//
// The controller's account view is not patched here: balance is refreshed
// from the broker on its own cadence and absorbs the missing delta.
type ReconcileJob struct {
	broker domrepo.Broker
	sink   controller.TradeSink
	log    *logger.Logger
}

func NewReconcileJob(broker domrepo.Broker, sink controller.TradeSink, log *logger.Logger) *ReconcileJob {
	return &ReconcileJob{broker: broker, sink: sink, log: log}
}

func (j *ReconcileJob) Name() string { return "trade-reconcile" }

func (j *ReconcileJob) Type() string { return internalrepo.ReconcileMessageType }

func (j *ReconcileJob) Handle(ctx context.Context, payload interface{}) error {
	msg, err := queue.ParsePayload[internalrepo.ReconcileMessage](payload)
	if err != nil {
		return fmt.Errorf("reconcile payload: %w", err)
	}
	rec, err := msg.ToTradeRecord()
	if err != nil {
		return fmt.Errorf("reconcile record: %w", err)
	}

	lookupCtx, cancel := context.WithTimeout(ctx, reconcileLookupTimeout)
	defer cancel()

	res, err := j.broker.AwaitResult(lookupCtx, rec.TradeID)
	if err != nil {
		return fmt.Errorf("reconcile lookup %s: %w", rec.TradeID, err)
	}

	rec.Outcome = res.Outcome
	rec.PnLDelta = res.PnLDelta
	rec.DigitActual = res.DigitActual
	if !res.SettledAt.IsZero() {
		rec.Timestamp = res.SettledAt
	}

	if err := j.sink.ProcessTrade(ctx, rec); err != nil {
		return fmt.Errorf("reconcile journal %s: %w", rec.TradeID, err)
	}

	j.log.Info("trade reconciled",
		logger.String("trade_id", rec.TradeID),
		logger.String("outcome", string(rec.Outcome)),
		logger.String("pnl_delta", rec.PnLDelta.String()),
		logger.String("cause", msg.Cause),
	)
	return nil
}

var _ queue.Job = (*ReconcileJob)(nil)
