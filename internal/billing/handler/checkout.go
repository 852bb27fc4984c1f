package handler

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"

	"hearthledger/internal/auth"
	billingstripe "hearthledger/internal/billing/stripe"
	"hearthledger/internal/store"
)

// CheckoutHandler starts Stripe checkout and billing portal sessions for
// household admins.
type CheckoutHandler struct {
	stripeClient *billingstripe.Client
	households   *store.HouseholdStore
	users        *store.UserStore
	returnURL    string
	logger       *slog.Logger
}

func NewCheckoutHandler(sc *billingstripe.Client, hs *store.HouseholdStore, us *store.UserStore, returnURL string, logger *slog.Logger) *CheckoutHandler {
	return &CheckoutHandler{
		stripeClient: sc,
		households:   hs,
		users:        us,
		returnURL:    returnURL,
		logger:       logger.With("component", "checkout"),
	}
}

// CreateCheckoutSession creates a Stripe checkout session and returns its URL.
func (h *CheckoutHandler) CreateCheckoutSession(w http.ResponseWriter, r *http.Request) {
	if !h.stripeClient.Configured() {
		http.Error(w, "billing not configured", http.StatusServiceUnavailable)
		return
	}

	ac, ok := auth.FromContext(r.Context())
	if !ok {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	var req struct {
		Interval string `json:"interval"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request", http.StatusBadRequest)
		return
	}
	if req.Interval == "" {
		req.Interval = "monthly"
	}

	customerID, err := h.ensureCustomer(ac)
	if err != nil {
		h.logger.Error("ensure stripe customer", "household_id", ac.HouseholdID, "error", err)
		http.Error(w, "failed to create customer", http.StatusInternalServerError)
		return
	}

	url, err := h.stripeClient.CreateCheckoutSession(customerID, h.stripeClient.PriceIDForInterval(req.Interval), ac.HouseholdID)
	if err != nil {
		h.logger.Error("create checkout session", "household_id", ac.HouseholdID, "error", err)
		http.Error(w, "failed to create checkout session", http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"url": url})
}

// CreateBillingPortalSession returns a Stripe billing portal URL for the
// household's existing customer.
func (h *CheckoutHandler) CreateBillingPortalSession(w http.ResponseWriter, r *http.Request) {
	if !h.stripeClient.Configured() {
		http.Error(w, "billing not configured", http.StatusServiceUnavailable)
		return
	}

	ac, ok := auth.FromContext(r.Context())
	if !ok {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	household, err := h.households.GetByID(ac.HouseholdID)
	if err != nil || household == nil {
		http.Error(w, "household not found", http.StatusNotFound)
		return
	}
	if household.StripeCustomerID == nil {
		http.Error(w, "no billing account", http.StatusConflict)
		return
	}

	url, err := h.stripeClient.CreateBillingPortalSession(*household.StripeCustomerID, h.returnURL)
	if err != nil {
		h.logger.Error("create portal session", "household_id", ac.HouseholdID, "error", err)
		http.Error(w, "failed to create portal session", http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"url": url})
}

// ensureCustomer returns the household's Stripe customer ID, creating the
// customer on first checkout.
func (h *CheckoutHandler) ensureCustomer(ac auth.AuthContext) (string, error) {
	household, err := h.households.GetByID(ac.HouseholdID)
	if err != nil {
		return "", err
	}
	if household == nil {
		return "", fmt.Errorf("household %d not found", ac.HouseholdID)
	}
	if household.StripeCustomerID != nil {
		return *household.StripeCustomerID, nil
	}

	user, err := h.users.GetByID(ac.UserID)
	if err != nil {
		return "", err
	}
	if user == nil {
		return "", fmt.Errorf("user %d not found", ac.UserID)
	}

	customerID, err := h.stripeClient.CreateCustomer(user.Email, household.Name)
	if err != nil {
		return "", err
	}
	if err := h.households.SetStripeCustomerID(household.ID, customerID); err != nil {
		return "", err
	}
	return customerID, nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
