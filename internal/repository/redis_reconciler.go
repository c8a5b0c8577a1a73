package repository

import (
	"context"

	"DigitFlow/internal/domain/models"
	"DigitFlow/pkg/queue"
)

// ReconcileMessageType routes ambiguous trade payloads to the reconcile job.
const ReconcileMessageType = "trade_reconcile"

// ReconcileMessage is a trade the broker accepted but whose settlement never
// arrived within the result timeout. Outcome fields are unset.
type ReconcileMessage struct {
	TradeMessage
	Cause string `json:"cause"`
}

// QueueReconciler hands ambiguous trades to the Redis-backed queue, where a
// registered job retries settlement lookup with the queue's retry/DLQ policy.
type QueueReconciler struct {
	q queue.QueueService
}

func NewQueueReconciler(q queue.QueueService) *QueueReconciler {
	return &QueueReconciler{q: q}
}

func (r *QueueReconciler) EnqueueReconciliation(ctx context.Context, rec *models.TradeRecord, cause error) error {
	msg := ReconcileMessage{TradeMessage: ToTradeMessage(rec)}
	if cause != nil {
		msg.Cause = cause.Error()
	}
	return r.q.PublishMessage(ctx, ReconcileMessageType, msg)
}
