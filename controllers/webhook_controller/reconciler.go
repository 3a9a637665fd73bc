package webhook_controller

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	stripe "github.com/stripe/stripe-go/v82"

	"github.com/wanderstay/platform/clients"
	"github.com/wanderstay/platform/logger"
	"github.com/wanderstay/platform/models/booking_models"
	"github.com/wanderstay/platform/models/payment_models"
	"github.com/wanderstay/platform/models/realtor_models"
	"github.com/wanderstay/platform/models/shared_models"
	"github.com/wanderstay/platform/models/user_models"
)

// BookingStore is the booking persistence surface the reconciler needs.
type BookingStore interface {
	GetByID(ctx context.Context, id uuid.UUID) (*booking_models.Booking, error)
	Transition(ctx context.Context, id uuid.UUID,
		expected, next shared_models.BookingStatus, extra booking_models.TransitionExtra) (*booking_models.Booking, error)
	SetPayoutStatus(ctx context.Context, id uuid.UUID,
		expected, next shared_models.PayoutStatus) error
}

// PaymentStore is the payment persistence surface the reconciler needs.
type PaymentStore interface {
	GetByBookingID(ctx context.Context, bookingID uuid.UUID) (*payment_models.Payment, error)
	GetByTransactionID(ctx context.Context, provider, txnID string) (*payment_models.Payment, error)
	HasProcessedEvent(ctx context.Context, bookingID uuid.UUID, eventID string) (bool, error)
	MarkEventProcessed(ctx context.Context, bookingID uuid.UUID, eventID string) (bool, error)
	UpdateStatusAndReference(ctx context.Context, bookingID uuid.UUID,
		status shared_models.PaymentStatus, provider, txnID string) error
	SetTransferID(ctx context.Context, bookingID uuid.UUID, transferID string) error
	SetFees(ctx context.Context, bookingID uuid.UUID, gatewayFee, platformNet float64) error
	MarkPayoutReleased(ctx context.Context, bookingID uuid.UUID, at time.Time) error
}

// RealtorStore is the realtor persistence surface the reconciler needs.
type RealtorStore interface {
	GetByID(ctx context.Context, id uuid.UUID) (*realtor_models.Realtor, error)
	UpdateAccountStatusByStripeID(ctx context.Context, accountID string, payoutsEnabled bool) (bool, error)
}

// UserStore resolves user records for notifications.
type UserStore interface {
	GetByID(ctx context.Context, id uuid.UUID) (*user_models.User, error)
}

// Mailer sends transactional notifications. Failures are logged, never
// propagated.
type Mailer interface {
	SendPaymentReceipt(to string, bookingID uuid.UUID, amount float64, currency string) error
	SendPayoutNotice(to string, bookingID uuid.UUID, amount float64, currency string) error
}

// AuditRecorder records domain events for the admin audit trail.
type AuditRecorder interface {
	Record(ctx context.Context, action, entityType, entityID string, details map[string]interface{})
}

// Reconciler applies verified gateway events to bookings and payments. Every
// handler is split into a must-succeed phase (status transitions, payment
// reference) whose failure returns an error so the gateway redelivers, and a
// best-effort phase (fees, audit, email) whose failure is only logged.
type Reconciler struct {
	Bookings BookingStore
	Payments PaymentStore
	Realtors RealtorStore
	Users    UserStore
	Stripe   clients.StripeClientWrapper
	Paystack clients.PaystackClientWrapper
	Mailer   Mailer
	Audit    AuditRecorder

	// EscrowOffset is how long after confirmation a realtor payout is held.
	EscrowOffset time.Duration

	// Now is overridable in tests. Defaults to time.Now.
	Now func() time.Time
}

func (r *Reconciler) now() time.Time {
	if r.Now != nil {
		return r.Now()
	}
	return time.Now()
}

// HandleStripeEvent dispatches a signature-verified Stripe event. Unknown
// event types are acknowledged without action.
func (r *Reconciler) HandleStripeEvent(ctx context.Context, event stripe.Event) error {
	switch string(event.Type) {
	case "payment_intent.succeeded":
		var pi stripe.PaymentIntent
		if err := unmarshalEventObject(event, &pi); err != nil {
			return err
		}
		return r.handlePaymentIntentSucceeded(ctx, event.ID, &pi)

	case "payment_intent.payment_failed":
		var pi stripe.PaymentIntent
		if err := unmarshalEventObject(event, &pi); err != nil {
			return err
		}
		return r.handlePaymentIntentFailed(ctx, event.ID, &pi)

	case "charge.dispute.created":
		var dispute stripe.Dispute
		if err := unmarshalEventObject(event, &dispute); err != nil {
			return err
		}
		return r.handleDisputeCreated(ctx, event.ID, &dispute)

	case "transfer.created", "transfer.paid", "transfer.reversed", "transfer.failed":
		var tr stripe.Transfer
		if err := unmarshalEventObject(event, &tr); err != nil {
			return err
		}
		return r.handleTransferEvent(ctx, event.ID, string(event.Type), &tr)

	case "account.updated":
		var acct stripe.Account
		if err := unmarshalEventObject(event, &acct); err != nil {
			return err
		}
		return r.handleAccountUpdated(ctx, &acct)

	default:
		logger.InfoLogger.Infof("Ignoring unhandled Stripe event type %s (%s)", event.Type, event.ID)
		return nil
	}
}

func unmarshalEventObject(event stripe.Event, dst interface{}) error {
	if err := json.Unmarshal(event.Data.Raw, dst); err != nil {
		logger.ErrorLogger.Errorf("Failed to parse Stripe event %s payload: %v", event.ID, err)
		return err
	}
	return nil
}

// handlePaymentIntentSucceeded confirms the booking, stamps the escrow release
// date, and marks the payment completed.
func (r *Reconciler) handlePaymentIntentSucceeded(ctx context.Context, eventID string, pi *stripe.PaymentIntent) error {
	bookingID, ok := bookingIDFromMetadata(eventID, pi.Metadata)
	if !ok {
		return nil
	}

	skip, err := r.seenEvent(ctx, eventID, bookingID)
	if err != nil || skip {
		return err
	}

	if err := r.confirmBooking(ctx, bookingID, shared_models.GatewayStripe, pi.ID); err != nil {
		return err
	}

	applied, err := r.recordProcessed(ctx, eventID, bookingID)
	if err != nil || !applied {
		return err
	}

	// Best effort from here on.
	chargeID := ""
	if pi.LatestCharge != nil {
		chargeID = pi.LatestCharge.ID
	}
	r.recordStripeFees(ctx, bookingID, chargeID)
	r.auditAndNotifyConfirmation(ctx, eventID, bookingID)
	return nil
}

// handlePaystackChargeSuccess is the Paystack counterpart of a successful
// payment. The charge reference is re-verified with the gateway before any
// amounts from the event body are trusted.
func (r *Reconciler) handlePaystackChargeSuccess(ctx context.Context, eventID string, bookingID uuid.UUID, reference string) error {
	txn, err := r.Paystack.VerifyTransaction(ctx, reference)
	if err != nil {
		logger.ErrorLogger.Errorf("Failed to verify Paystack transaction %s: %v", reference, err)
		return err
	}
	if txn.Status != "success" {
		logger.WarnLogger.Warnf("Paystack charge event for %s carries non-success status %s, ignoring", reference, txn.Status)
		return nil
	}

	skip, err := r.seenEvent(ctx, eventID, bookingID)
	if err != nil || skip {
		return err
	}

	if err := r.confirmBooking(ctx, bookingID, shared_models.GatewayPaystack, reference); err != nil {
		return err
	}

	applied, err := r.recordProcessed(ctx, eventID, bookingID)
	if err != nil || !applied {
		return err
	}

	if payment, err := r.Payments.GetByBookingID(ctx, bookingID); err != nil {
		logger.WarnLogger.Warnf("Skipping fee computation for booking %s: %v", bookingID, err)
	} else {
		gatewayFee := minorToMajor(txn.Fees)
		net := computePlatformNet(payment.ServiceFeeAmount, payment.PlatformCommission, gatewayFee)
		if err := r.Payments.SetFees(ctx, bookingID, gatewayFee, net); err != nil {
			logger.WarnLogger.Warnf("Failed to record fees for booking %s: %v", bookingID, err)
		}
	}
	r.auditAndNotifyConfirmation(ctx, eventID, bookingID)
	return nil
}

// handlePaystackChargeFailed marks the payment failed and cancels a still
// pending booking, mirroring the Stripe failure path.
func (r *Reconciler) handlePaystackChargeFailed(ctx context.Context, eventID string, bookingID uuid.UUID, reference string) error {
	skip, err := r.seenEvent(ctx, eventID, bookingID)
	if err != nil || skip {
		return err
	}

	_, err = r.Bookings.Transition(ctx, bookingID,
		shared_models.BookingStatusPending, shared_models.BookingStatusCancelled,
		booking_models.TransitionExtra{})
	if err != nil {
		if errors.Is(err, booking_models.ErrStatusConflict) {
			// The booking already left PENDING: a stale failure event must
			// not downgrade a reconciled payment.
			logger.WarnLogger.Warnf("Booking %s already left PENDING, ignoring stale failure event %s", bookingID, eventID)
			_, err := r.recordProcessed(ctx, eventID, bookingID)
			return err
		}
		if !errors.Is(err, booking_models.ErrBookingNotFound) {
			return err
		}
	}

	if err := r.Payments.UpdateStatusAndReference(ctx, bookingID,
		shared_models.PaymentStatusFailed, shared_models.GatewayPaystack, reference); err != nil {
		return err
	}

	applied, err := r.recordProcessed(ctx, eventID, bookingID)
	if err != nil || !applied {
		return err
	}
	if r.Audit != nil {
		r.Audit.Record(ctx, "payment.failed", "booking", bookingID.String(),
			map[string]interface{}{"event_id": eventID})
	}
	return nil
}

// handlePaystackTransferEvent reconciles split-settlement transfer events. The
// funds move at charge time on Paystack, so success is bookkeeping only.
func (r *Reconciler) handlePaystackTransferEvent(ctx context.Context, eventID, eventType string, bookingID uuid.UUID, reference string) error {
	skip, err := r.seenEvent(ctx, eventID, bookingID)
	if err != nil || skip {
		return err
	}

	if eventType == "transfer.success" {
		settled := false
		err := r.Bookings.SetPayoutStatus(ctx, bookingID,
			shared_models.PayoutStatusPending, shared_models.PayoutStatusReleased)
		if err != nil {
			if !errors.Is(err, booking_models.ErrStatusConflict) {
				return err
			}
			logger.InfoLogger.Infof("Booking %s payout already settled, Paystack transfer.success is a no-op", bookingID)
			settled = true
		}
		applied, err := r.recordProcessed(ctx, eventID, bookingID)
		if err != nil || !applied || settled {
			return err
		}
		if err := r.Payments.MarkPayoutReleased(ctx, bookingID, r.now()); err != nil {
			logger.WarnLogger.Warnf("Failed to flag payout released for booking %s: %v", bookingID, err)
		}
		if r.Audit != nil {
			r.Audit.Record(ctx, "payout.released", "booking", bookingID.String(),
				map[string]interface{}{"event_id": eventID, "reference": reference})
		}
		return nil
	}

	err = r.Bookings.SetPayoutStatus(ctx, bookingID,
		shared_models.PayoutStatusPending, shared_models.PayoutStatusFailed)
	if err != nil && errors.Is(err, booking_models.ErrStatusConflict) {
		err = r.Bookings.SetPayoutStatus(ctx, bookingID,
			shared_models.PayoutStatusReleased, shared_models.PayoutStatusFailed)
	}
	if err != nil && !errors.Is(err, booking_models.ErrStatusConflict) {
		return err
	}
	applied, err := r.recordProcessed(ctx, eventID, bookingID)
	if err != nil || !applied {
		return err
	}
	logger.ErrorLogger.Errorf("Paystack transfer %s for booking %s failed, payout marked FAILED", reference, bookingID)
	if r.Audit != nil {
		r.Audit.Record(ctx, "payout.failed", "booking", bookingID.String(),
			map[string]interface{}{"event_id": eventID, "reference": reference, "cause": eventType})
	}
	return nil
}

// seenEvent is the read-side dedup check made before any write. True means
// the delivery is acknowledged without action: either the event was already
// applied or there is no payment row to apply it to.
func (r *Reconciler) seenEvent(ctx context.Context, eventID string, bookingID uuid.UUID) (bool, error) {
	seen, err := r.Payments.HasProcessedEvent(ctx, bookingID, eventID)
	if err != nil {
		if errors.Is(err, payment_models.ErrPaymentNotFound) {
			logger.WarnLogger.Warnf("Event %s references booking %s with no payment record, acknowledging", eventID, bookingID)
			return true, nil
		}
		return false, err
	}
	if seen {
		logger.InfoLogger.Infof("Event %s already processed for booking %s, skipping", eventID, bookingID)
		return true, nil
	}
	return false, nil
}

// recordProcessed writes the event id to the ledger only after the critical
// writes have landed: a failure in those writes leaves the event unclaimed,
// so the gateway's redelivery can finish the job. A false return means a
// concurrent delivery won the atomic append; the critical writes are
// idempotent by value, so the loser only skips the follow-ups.
func (r *Reconciler) recordProcessed(ctx context.Context, eventID string, bookingID uuid.UUID) (bool, error) {
	applied, err := r.Payments.MarkEventProcessed(ctx, bookingID, eventID)
	if err != nil {
		if errors.Is(err, payment_models.ErrPaymentNotFound) {
			logger.WarnLogger.Warnf("Payment row for booking %s vanished before event %s was recorded, acknowledging", bookingID, eventID)
			return false, nil
		}
		return false, err
	}
	if !applied {
		logger.InfoLogger.Infof("Event %s lost the append race for booking %s, skipping follow-ups", eventID, bookingID)
	}
	return applied, nil
}

// confirmBooking is the must-succeed phase shared by both gateways.
func (r *Reconciler) confirmBooking(ctx context.Context, bookingID uuid.UUID, provider, txnID string) error {
	release := r.now().Add(r.EscrowOffset)
	payoutPending := shared_models.PayoutStatusPending
	_, err := r.Bookings.Transition(ctx, bookingID,
		shared_models.BookingStatusPending, shared_models.BookingStatusConfirmed,
		booking_models.TransitionExtra{PayoutReleaseDate: &release, PayoutStatus: &payoutPending})
	if err != nil {
		if errors.Is(err, booking_models.ErrStatusConflict) {
			logger.WarnLogger.Warnf("Booking %s already left PENDING, continuing with payment update", bookingID)
		} else if errors.Is(err, booking_models.ErrBookingNotFound) {
			logger.WarnLogger.Warnf("Booking %s not found while confirming payment, acknowledging", bookingID)
			return nil
		} else {
			return err
		}
	}

	return r.Payments.UpdateStatusAndReference(ctx, bookingID,
		shared_models.PaymentStatusCompleted, provider, txnID)
}

// recordStripeFees pulls the settled balance transaction for the charge and
// persists the gateway fee and platform net. Best effort.
func (r *Reconciler) recordStripeFees(ctx context.Context, bookingID uuid.UUID, chargeID string) {
	if chargeID == "" {
		logger.WarnLogger.Warnf("No charge id on payment intent for booking %s, skipping fee computation", bookingID)
		return
	}
	bt, err := r.Stripe.GetChargeBalanceTransaction(ctx, chargeID)
	if err != nil {
		logger.WarnLogger.Warnf("Failed to fetch balance transaction for booking %s: %v", bookingID, err)
		return
	}
	payment, err := r.Payments.GetByBookingID(ctx, bookingID)
	if err != nil {
		logger.WarnLogger.Warnf("Skipping fee computation for booking %s: %v", bookingID, err)
		return
	}
	gatewayFee := minorToMajor(bt.Fee)
	net := computePlatformNet(payment.ServiceFeeAmount, payment.PlatformCommission, gatewayFee)
	if err := r.Payments.SetFees(ctx, bookingID, gatewayFee, net); err != nil {
		logger.WarnLogger.Warnf("Failed to record fees for booking %s: %v", bookingID, err)
	}
}

func (r *Reconciler) auditAndNotifyConfirmation(ctx context.Context, eventID string, bookingID uuid.UUID) {
	if r.Audit != nil {
		r.Audit.Record(ctx, "payment.confirmed", "booking", bookingID.String(),
			map[string]interface{}{"event_id": eventID})
	}
	if r.Mailer == nil || r.Users == nil {
		return
	}
	booking, err := r.Bookings.GetByID(ctx, bookingID)
	if err != nil {
		return
	}
	payment, err := r.Payments.GetByBookingID(ctx, bookingID)
	if err != nil {
		return
	}
	guest, err := r.Users.GetByID(ctx, booking.GuestID)
	if err != nil {
		logger.WarnLogger.Warnf("Cannot resolve guest %s for receipt email: %v", booking.GuestID, err)
		return
	}
	if err := r.Mailer.SendPaymentReceipt(guest.Email, bookingID, payment.Amount, payment.Currency); err != nil {
		logger.WarnLogger.Warnf("Failed to send receipt for booking %s: %v", bookingID, err)
	}
}

// handlePaymentIntentFailed marks the payment failed and cancels a still
// pending booking.
func (r *Reconciler) handlePaymentIntentFailed(ctx context.Context, eventID string, pi *stripe.PaymentIntent) error {
	bookingID, ok := bookingIDFromMetadata(eventID, pi.Metadata)
	if !ok {
		return nil
	}

	skip, err := r.seenEvent(ctx, eventID, bookingID)
	if err != nil || skip {
		return err
	}

	_, err = r.Bookings.Transition(ctx, bookingID,
		shared_models.BookingStatusPending, shared_models.BookingStatusCancelled,
		booking_models.TransitionExtra{})
	if err != nil {
		if errors.Is(err, booking_models.ErrStatusConflict) {
			// The booking already left PENDING: a stale failure event must
			// not downgrade a reconciled payment.
			logger.WarnLogger.Warnf("Booking %s already left PENDING, ignoring stale failure event %s", bookingID, eventID)
			_, err := r.recordProcessed(ctx, eventID, bookingID)
			return err
		}
		if !errors.Is(err, booking_models.ErrBookingNotFound) {
			return err
		}
	}

	if err := r.Payments.UpdateStatusAndReference(ctx, bookingID,
		shared_models.PaymentStatusFailed, shared_models.GatewayStripe, pi.ID); err != nil {
		return err
	}

	applied, err := r.recordProcessed(ctx, eventID, bookingID)
	if err != nil || !applied {
		return err
	}
	if r.Audit != nil {
		r.Audit.Record(ctx, "payment.failed", "booking", bookingID.String(),
			map[string]interface{}{"event_id": eventID})
	}
	return nil
}

// handleDisputeCreated cancels the disputed booking and freezes its payout so
// the sweep never pays a realtor for contested funds.
func (r *Reconciler) handleDisputeCreated(ctx context.Context, eventID string, dispute *stripe.Dispute) error {
	if dispute.PaymentIntent == nil {
		logger.WarnLogger.Warnf("Dispute event %s carries no payment intent, acknowledging", eventID)
		return nil
	}
	payment, err := r.Payments.GetByTransactionID(ctx, shared_models.GatewayStripe, dispute.PaymentIntent.ID)
	if err != nil {
		if errors.Is(err, payment_models.ErrPaymentNotFound) {
			logger.WarnLogger.Warnf("Dispute event %s references unknown transaction %s, acknowledging", eventID, dispute.PaymentIntent.ID)
			return nil
		}
		return err
	}
	bookingID := payment.BookingID

	skip, err := r.seenEvent(ctx, eventID, bookingID)
	if err != nil || skip {
		return err
	}

	payoutFailed := shared_models.PayoutStatusFailed
	_, err = r.Bookings.Transition(ctx, bookingID,
		shared_models.BookingStatusConfirmed, shared_models.BookingStatusCancelled,
		booking_models.TransitionExtra{PayoutStatus: &payoutFailed})
	if err != nil {
		if errors.Is(err, booking_models.ErrStatusConflict) || errors.Is(err, booking_models.ErrBookingNotFound) {
			logger.WarnLogger.Warnf("Dispute on booking %s: cancel skipped (%v)", bookingID, err)
		} else {
			return err
		}
	}

	applied, err := r.recordProcessed(ctx, eventID, bookingID)
	if err != nil || !applied {
		return err
	}

	logger.WarnLogger.Warnf("Dispute opened on booking %s (transaction %s), payout frozen", bookingID, dispute.PaymentIntent.ID)
	if r.Audit != nil {
		r.Audit.Record(ctx, "payment.disputed", "booking", bookingID.String(),
			map[string]interface{}{"event_id": eventID, "dispute_id": dispute.ID})
	}
	return nil
}

// handleTransferEvent reconciles connected-account transfer lifecycle events
// against the booking's payout state.
func (r *Reconciler) handleTransferEvent(ctx context.Context, eventID, eventType string, tr *stripe.Transfer) error {
	ref := tr.TransferGroup
	if v, ok := tr.Metadata["booking_id"]; ok && v != "" {
		ref = v
	}
	bookingID, err := uuid.Parse(ref)
	if err != nil {
		logger.WarnLogger.Warnf("Transfer event %s carries no booking reference (%q), acknowledging", eventID, ref)
		return nil
	}

	skip, err := r.seenEvent(ctx, eventID, bookingID)
	if err != nil || skip {
		return err
	}

	switch eventType {
	case "transfer.created":
		if err := r.Payments.SetTransferID(ctx, bookingID, tr.ID); err != nil {
			return err
		}
		_, err := r.recordProcessed(ctx, eventID, bookingID)
		return err

	case "transfer.paid":
		settled := false
		err := r.Bookings.SetPayoutStatus(ctx, bookingID,
			shared_models.PayoutStatusPending, shared_models.PayoutStatusReleased)
		if err != nil {
			if !errors.Is(err, booking_models.ErrStatusConflict) {
				return err
			}
			logger.InfoLogger.Infof("Booking %s payout already settled, transfer.paid is a no-op", bookingID)
			settled = true
		}
		applied, err := r.recordProcessed(ctx, eventID, bookingID)
		if err != nil || !applied || settled {
			return err
		}
		if err := r.Payments.MarkPayoutReleased(ctx, bookingID, r.now()); err != nil {
			logger.WarnLogger.Warnf("Failed to flag payout released for booking %s: %v", bookingID, err)
		}
		if r.Audit != nil {
			r.Audit.Record(ctx, "payout.released", "booking", bookingID.String(),
				map[string]interface{}{"event_id": eventID, "transfer_id": tr.ID})
		}
		return nil

	case "transfer.reversed", "transfer.failed":
		err := r.Bookings.SetPayoutStatus(ctx, bookingID,
			shared_models.PayoutStatusPending, shared_models.PayoutStatusFailed)
		if err != nil && errors.Is(err, booking_models.ErrStatusConflict) {
			err = r.Bookings.SetPayoutStatus(ctx, bookingID,
				shared_models.PayoutStatusReleased, shared_models.PayoutStatusFailed)
		}
		if err != nil && !errors.Is(err, booking_models.ErrStatusConflict) {
			return err
		}
		applied, err := r.recordProcessed(ctx, eventID, bookingID)
		if err != nil || !applied {
			return err
		}
		logger.ErrorLogger.Errorf("Transfer %s for booking %s %s, payout marked FAILED", tr.ID, bookingID, eventType)
		if r.Audit != nil {
			r.Audit.Record(ctx, "payout.failed", "booking", bookingID.String(),
				map[string]interface{}{"event_id": eventID, "transfer_id": tr.ID, "cause": eventType})
		}
		return nil
	}
	return nil
}

// handleAccountUpdated syncs a connected account's payout capability onto the
// owning realtor. Account-level events have no payment row, so they bypass the
// per-booking event ledger; the write is idempotent by value.
func (r *Reconciler) handleAccountUpdated(ctx context.Context, acct *stripe.Account) error {
	matched, err := r.Realtors.UpdateAccountStatusByStripeID(ctx, acct.ID, acct.PayoutsEnabled)
	if err != nil {
		return err
	}
	if !matched {
		logger.InfoLogger.Infof("account.updated for %s matched no realtor, onboarding may be in flight", acct.ID)
	}
	return nil
}

func bookingIDFromMetadata(eventID string, metadata map[string]string) (uuid.UUID, bool) {
	raw, ok := metadata["booking_id"]
	if !ok || raw == "" {
		logger.WarnLogger.Warnf("Event %s carries no booking_id metadata, acknowledging", eventID)
		return uuid.Nil, false
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		logger.WarnLogger.Warnf("Event %s carries malformed booking_id %q, acknowledging", eventID, raw)
		return uuid.Nil, false
	}
	return id, true
}
