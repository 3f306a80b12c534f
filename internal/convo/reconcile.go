package convo

import (
	"context"
	"errors"

	"aarogya-bot/internal/store"
)

// ConfirmPendingPayment scans the user's payment records newest-first and
// checks the first pending one against the gateway. When the gateway
// reports it paid, the stored record transitions to paid (matched by link
// identifier, so concurrent confirmations cannot double-count), a paid
// entry is appended and a confirmation text is returned. Otherwise the
// result is empty and the caller proceeds without a confirmation.
func (e *Engine) ConfirmPendingPayment(ctx context.Context, phone string) string {
	user, err := e.store.GetUserByPhone(ctx, phone)
	if err != nil {
		if !errors.Is(err, store.ErrNotConfigured) {
			e.logger.Warn("payment reconciliation lookup failed", "phone", phone, "error", err)
		}
		return ""
	}
	if user == nil {
		return ""
	}

	for i := len(user.Payments) - 1; i >= 0; i-- {
		record := user.Payments[i]
		if record.Status != store.PaymentPending || record.LinkID == "" {
			continue
		}

		info, err := e.gateway.IsPaymentComplete(ctx, record.LinkID)
		if err != nil {
			e.logger.Warn("payment status check failed", "phone", phone, "link_id", record.LinkID, "error", err)
			return ""
		}
		if info == nil {
			return ""
		}

		transitioned, err := e.store.MarkPaymentPaid(ctx, phone, record.LinkID, info.PaymentID)
		if err != nil {
			e.logger.Error("payment transition failed", "phone", phone, "link_id", record.LinkID, "error", err)
			return ""
		}
		if !transitioned {
			// Already confirmed elsewhere (webhook or a concurrent turn).
			return ""
		}

		paid := store.PaymentRecord{
			Amount:    info.Amount,
			LinkID:    record.LinkID,
			Status:    store.PaymentPaid,
			PaymentID: info.PaymentID,
			Time:      timestamp(),
		}
		if err := e.store.RecordPayment(ctx, phone, paid); err != nil {
			e.logger.Warn("paid record append failed", "phone", phone, "error", err)
		}
		e.logger.Info("payment confirmed", "phone", phone, "link_id", record.LinkID, "payment_id", info.PaymentID)
		return ConfirmationText(info.PaymentID)
	}
	return ""
}
