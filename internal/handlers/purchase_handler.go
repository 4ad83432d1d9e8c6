package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"matchBack/internal/iap/billing"
	"matchBack/internal/iap/entitlement"
	"matchBack/internal/iap/present"
	"matchBack/internal/iap/reconcile"
	"matchBack/internal/iap/session"
	"matchBack/internal/models"
)

// SessionLookup returns the live billing session of a user.
type SessionLookup interface {
	Get(userID int64) (*session.Session, bool)
}

// TokenRegistrar stores FCM tokens for entitlement pushes.
type TokenRegistrar interface {
	Insert(ctx context.Context, userID int64, token string) error
}

// PurchaseHandler serves the in-app purchase API of the app.
type PurchaseHandler struct {
	Sessions     SessionLookup
	Entitlements *entitlement.Service
	Tokens       TokenRegistrar
}

func NewPurchaseHandler(sessions SessionLookup, entitlements *entitlement.Service, tokens TokenRegistrar) *PurchaseHandler {
	return &PurchaseHandler{Sessions: sessions, Entitlements: entitlements, Tokens: tokens}
}

type purchaseResponse struct {
	Outcome   reconcile.OutcomeKind  `json:"outcome"`
	SKU       string                 `json:"sku,omitempty"`
	SKUSource reconcile.SKUSource    `json:"sku_source,omitempty"`
	Category  models.ProductCategory `json:"category,omitempty"`
	Message   present.Message        `json:"message"`
}

func userIDFrom(r *http.Request) int64 {
	userID, _ := r.Context().Value("user_id").(int)
	return int64(userID)
}

// session writes the error response itself when the user has no live session.
func (h *PurchaseHandler) session(w http.ResponseWriter, r *http.Request) (*session.Session, bool) {
	userID := userIDFrom(r)
	if userID == 0 {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return nil, false
	}
	if h.Sessions == nil {
		http.Error(w, "iap is not configured", http.StatusNotImplemented)
		return nil, false
	}
	s, ok := h.Sessions.Get(userID)
	if !ok {
		http.Error(w, models.ErrSessionNotFound.Error(), http.StatusConflict)
		return nil, false
	}
	return s, true
}

// GetProducts lists store products of the caller's session, optionally
// filtered by ?type=.
func (h *PurchaseHandler) GetProducts(w http.ResponseWriter, r *http.Request) {
	s, ok := h.session(w, r)
	if !ok {
		return
	}
	products := s.Resolver.Products()
	if t := strings.TrimSpace(r.URL.Query().Get("type")); t != "" {
		category, err := models.ParseCategory(t)
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		products = s.Resolver.ProductsByType(category)
	}
	if products == nil {
		products = []models.StoreProduct{}
	}
	_ = json.NewEncoder(w).Encode(map[string]any{
		"platform": s.Platform,
		"products": products,
	})
}

// Purchase starts a buy flow. The store delivers the result over the bridge;
// the response only reports whether the request was accepted.
func (h *PurchaseHandler) Purchase(w http.ResponseWriter, r *http.Request) {
	s, ok := h.session(w, r)
	if !ok {
		return
	}
	var req struct {
		Product  string `json:"product"`
		Category string `json:"category"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid body: "+err.Error(), http.StatusBadRequest)
		return
	}
	req.Product = strings.TrimSpace(req.Product)
	if req.Product == "" {
		http.Error(w, models.ErrInvalidProductID.Error()+": product is required", http.StatusBadRequest)
		return
	}
	var category models.ProductCategory
	if strings.TrimSpace(req.Category) != "" {
		c, err := models.ParseCategory(req.Category)
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		category = c
	}

	outcome := s.Requester.Buy(r.Context(), req.Product, category)
	_ = json.NewEncoder(w).Encode(purchaseResponse{
		Outcome:   outcome.Kind,
		SKU:       outcome.SKU,
		SKUSource: outcome.SKUSource,
		Category:  outcome.Category,
		Message:   present.ForOutcome(outcome),
	})
}

// Refresh reloads the catalog and store products of the caller's session.
func (h *PurchaseHandler) Refresh(w http.ResponseWriter, r *http.Request) {
	s, ok := h.session(w, r)
	if !ok {
		return
	}
	resp := map[string]any{"status": "ok"}
	if err := s.Resolver.Refresh(r.Context()); err != nil {
		resp["status"] = "degraded"
		resp["error"] = err.Error()
	}
	resp["products"] = len(s.Resolver.Products())
	_ = json.NewEncoder(w).Encode(resp)
}

func (h *PurchaseHandler) PremiumStatus(w http.ResponseWriter, r *http.Request) {
	userID := userIDFrom(r)
	if userID == 0 {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}
	active, err := h.Entitlements.CheckPremiumStatus(r.Context(), userID)
	if err != nil {
		http.Error(w, "premium status: "+err.Error(), http.StatusInternalServerError)
		return
	}
	_ = json.NewEncoder(w).Encode(map[string]bool{"is_premium": active})
}

func (h *PurchaseHandler) Consumables(w http.ResponseWriter, r *http.Request) {
	userID := userIDFrom(r)
	if userID == 0 {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}
	_ = json.NewEncoder(w).Encode(h.Entitlements.GetUserConsumables(r.Context(), userID))
}

// ManageSubscriptions asks the device to open the store's subscription page.
func (h *PurchaseHandler) ManageSubscriptions(w http.ResponseWriter, r *http.Request) {
	s, ok := h.session(w, r)
	if !ok {
		return
	}
	var req struct {
		SKU string `json:"sku"`
	}
	if r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "invalid body: "+err.Error(), http.StatusBadRequest)
			return
		}
	}
	if err := s.Provider.OpenSubscriptionManagement(r.Context(), strings.TrimSpace(req.SKU)); err != nil {
		status := http.StatusBadGateway
		if errors.Is(err, models.ErrConnection) || errors.Is(err, billing.ErrBridgeClosed) {
			status = http.StatusServiceUnavailable
		}
		http.Error(w, "open subscription management: "+err.Error(), status)
		return
	}
	_ = json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}

// RegisterNotifyToken stores the caller's FCM token.
func (h *PurchaseHandler) RegisterNotifyToken(w http.ResponseWriter, r *http.Request) {
	userID := userIDFrom(r)
	if userID == 0 {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}
	var req struct {
		Token string `json:"token"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid body: "+err.Error(), http.StatusBadRequest)
		return
	}
	if strings.TrimSpace(req.Token) == "" {
		http.Error(w, "token is required", http.StatusBadRequest)
		return
	}
	if err := h.Tokens.Insert(r.Context(), userID, req.Token); err != nil {
		http.Error(w, "failed to insert token", http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusCreated)
}
