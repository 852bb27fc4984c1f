package handler

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	stripe "github.com/stripe/stripe-go/v82"

	billingstripe "hearthledger/internal/billing/stripe"
	"hearthledger/internal/entitlement"
	"hearthledger/internal/store"
)

// WebhookHandler translates Stripe events into entitlement transitions. All
// entitlement writes go through the engine; the webhook never touches the
// entitlement rows directly.
type WebhookHandler struct {
	stripeClient *billingstripe.Client
	households   *store.HouseholdStore
	engine       *entitlement.Engine
	logger       *slog.Logger
}

func NewWebhookHandler(sc *billingstripe.Client, hs *store.HouseholdStore, engine *entitlement.Engine, logger *slog.Logger) *WebhookHandler {
	return &WebhookHandler{
		stripeClient: sc,
		households:   hs,
		engine:       engine,
		logger:       logger.With("component", "stripe_webhook"),
	}
}

func (h *WebhookHandler) HandleStripeWebhook(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, 65536))
	if err != nil {
		http.Error(w, "read body", http.StatusBadRequest)
		return
	}

	event, err := h.stripeClient.ConstructWebhookEvent(body, r.Header.Get("Stripe-Signature"))
	if err != nil {
		http.Error(w, "invalid signature", http.StatusBadRequest)
		return
	}

	switch event.Type {
	case "checkout.session.completed":
		h.handleCheckoutCompleted(r.Context(), event)
	case "invoice.paid":
		h.handleInvoicePaid(r.Context(), event)
	case "invoice.payment_failed":
		h.handleInvoicePaymentFailed(event)
	case "customer.subscription.updated":
		h.handleSubscriptionUpdated(r.Context(), event)
	case "customer.subscription.deleted":
		h.handleSubscriptionDeleted(r.Context(), event)
	}

	w.WriteHeader(http.StatusOK)
}

// handleCheckoutCompleted links the Stripe customer to the household named in
// the session's client reference. The entitlement itself advances on
// invoice.paid, which Stripe sends for the initial payment as well.
func (h *WebhookHandler) handleCheckoutCompleted(ctx context.Context, event stripe.Event) {
	var sess stripe.CheckoutSession
	if err := json.Unmarshal(event.Data.Raw, &sess); err != nil {
		h.logger.Error("unmarshal checkout session", "error", err)
		return
	}

	if sess.Customer == nil || sess.ClientReferenceID == "" {
		return
	}
	householdID, err := strconv.ParseInt(sess.ClientReferenceID, 10, 64)
	if err != nil {
		h.logger.Error("bad client reference id", "value", sess.ClientReferenceID)
		return
	}

	household, err := h.households.GetByID(householdID)
	if err != nil || household == nil {
		h.logger.Error("household for checkout not found", "household_id", householdID, "error", err)
		return
	}
	if household.StripeCustomerID == nil {
		if err := h.households.SetStripeCustomerID(householdID, sess.Customer.ID); err != nil {
			h.logger.Error("set stripe customer id", "household_id", householdID, "error", err)
			return
		}
	}
	h.logger.Info("checkout completed", "household_id", householdID, "customer", sess.Customer.ID)
}

func (h *WebhookHandler) handleInvoicePaid(ctx context.Context, event stripe.Event) {
	var invoice stripe.Invoice
	if err := json.Unmarshal(event.Data.Raw, &invoice); err != nil {
		h.logger.Error("unmarshal invoice", "error", err)
		return
	}
	if invoice.Customer == nil {
		return
	}

	household, err := h.households.GetByStripeCustomerID(invoice.Customer.ID)
	if err != nil || household == nil {
		h.logger.Warn("invoice for unknown customer", "customer", invoice.Customer.ID, "error", err)
		return
	}

	periodEnd := invoicePeriodEnd(invoice)
	if periodEnd.IsZero() {
		h.logger.Warn("invoice missing period end", "customer", invoice.Customer.ID)
		return
	}

	if _, err := h.engine.RecordPurchase(ctx, household.ID, periodEnd); err != nil {
		h.logger.Error("record purchase", "household_id", household.ID, "error", err)
		return
	}
	h.logger.Info("purchase recorded", "household_id", household.ID, "period_end", periodEnd)
}

// handleInvoicePaymentFailed only logs. A lapsed renewal surfaces on its own:
// once the paid-through date passes, reads derive the grace state.
func (h *WebhookHandler) handleInvoicePaymentFailed(event stripe.Event) {
	var invoice stripe.Invoice
	if err := json.Unmarshal(event.Data.Raw, &invoice); err != nil {
		h.logger.Error("unmarshal invoice", "error", err)
		return
	}
	customer := ""
	if invoice.Customer != nil {
		customer = invoice.Customer.ID
	}
	h.logger.Warn("invoice payment failed", "customer", customer)
}

func (h *WebhookHandler) handleSubscriptionUpdated(ctx context.Context, event stripe.Event) {
	var sub stripe.Subscription
	if err := json.Unmarshal(event.Data.Raw, &sub); err != nil {
		h.logger.Error("unmarshal subscription", "error", err)
		return
	}
	if sub.Customer == nil {
		return
	}

	household, err := h.households.GetByStripeCustomerID(sub.Customer.ID)
	if err != nil || household == nil {
		return
	}

	if sub.CancelAtPeriodEnd {
		if _, err := h.engine.RecordCancellation(ctx, household.ID); err != nil {
			h.logger.Error("record cancellation", "household_id", household.ID, "error", err)
		}
		return
	}

	// A reactivated subscription shows up here with cancel_at_period_end off;
	// re-recording the paid-through date clears the cancellation mark.
	if periodEnd := subscriptionPeriodEnd(sub); !periodEnd.IsZero() {
		if _, err := h.engine.RecordPurchase(ctx, household.ID, periodEnd); err != nil && !isNoOpPurchase(err) {
			h.logger.Error("record renewal", "household_id", household.ID, "error", err)
		}
	}
}

func (h *WebhookHandler) handleSubscriptionDeleted(ctx context.Context, event stripe.Event) {
	var sub stripe.Subscription
	if err := json.Unmarshal(event.Data.Raw, &sub); err != nil {
		h.logger.Error("unmarshal subscription", "error", err)
		return
	}
	if sub.Customer == nil {
		return
	}

	household, err := h.households.GetByStripeCustomerID(sub.Customer.ID)
	if err != nil || household == nil {
		return
	}

	if _, err := h.engine.RecordCancellation(ctx, household.ID); err != nil {
		h.logger.Error("record cancellation on delete", "household_id", household.ID, "error", err)
		return
	}
	h.logger.Info("subscription deleted", "household_id", household.ID)
}

// invoicePeriodEnd picks the paid-through date from the invoice's line items,
// falling back to the invoice-level period.
func invoicePeriodEnd(invoice stripe.Invoice) time.Time {
	var end int64
	if invoice.Lines != nil {
		for _, line := range invoice.Lines.Data {
			if line.Period != nil && line.Period.End > end {
				end = line.Period.End
			}
		}
	}
	if end == 0 {
		end = invoice.PeriodEnd
	}
	if end == 0 {
		return time.Time{}
	}
	return time.Unix(end, 0).UTC()
}

func subscriptionPeriodEnd(sub stripe.Subscription) time.Time {
	var end int64
	if sub.Items != nil {
		for _, item := range sub.Items.Data {
			if item.CurrentPeriodEnd > end {
				end = item.CurrentPeriodEnd
			}
		}
	}
	if end == 0 {
		return time.Time{}
	}
	return time.Unix(end, 0).UTC()
}

// isNoOpPurchase filters the rejection for a period end that does not extend
// the stored one. Subscription update events replay older periods sometimes.
func isNoOpPurchase(err error) bool {
	return errors.Is(err, entitlement.ErrInvalidRenewalWindow)
}
