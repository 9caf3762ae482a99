package api

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/ojachat/ojachat/internal/admin"
	"github.com/ojachat/ojachat/internal/api/middleware"
	"github.com/ojachat/ojachat/internal/cart"
	"github.com/ojachat/ojachat/internal/chat"
	"github.com/ojachat/ojachat/internal/events"
	"github.com/ojachat/ojachat/internal/gate"
	"github.com/ojachat/ojachat/internal/order"
)

// featureChatMessages gates and meters chat sends.
const featureChatMessages = "chat_messages"

// errLimitReached marks a send refused by the usage gate.
var errLimitReached = errors.New("message limit reached")

type Handlers struct {
	states    *StateRegistry
	gate      *gate.Gate
	orders    *order.Service
	admin     *admin.Service
	publisher events.Publisher
	audit     *admin.AuditWriter // nil disables audit writes
}

func NewHandlers(states *StateRegistry, g *gate.Gate, orders *order.Service, adminSvc *admin.Service, publisher events.Publisher, audit *admin.AuditWriter) *Handlers {
	return &Handlers{
		states:    states,
		gate:      g,
		orders:    orders,
		admin:     adminSvc,
		publisher: publisher,
		audit:     audit,
	}
}

func (h *Handlers) state(w http.ResponseWriter, r *http.Request) (*UserState, string, bool) {
	userID := middleware.GetUserID(r.Context())
	if userID == "" {
		respondError(w, "unauthorized", http.StatusUnauthorized)
		return nil, "", false
	}
	state, err := h.states.For(userID)
	if err != nil {
		log.Printf("[API] Failed to load state for %s: %v", userID, err)
		respondError(w, "internal error", http.StatusInternalServerError)
		return nil, "", false
	}
	return state, userID, true
}

// Cart Handlers

type cartView struct {
	Items       []cart.Item `json:"items"`
	TotalItems  int         `json:"total_items"`
	TotalAmount int         `json:"total_amount"`
}

func viewCart(c *cart.Store) cartView {
	return cartView{Items: c.Items(), TotalItems: c.TotalItems(), TotalAmount: c.TotalAmount()}
}

func (h *Handlers) GetCart(w http.ResponseWriter, r *http.Request) {
	state, _, ok := h.state(w, r)
	if !ok {
		return
	}
	respondJSON(w, http.StatusOK, viewCart(state.Cart))
}

func (h *Handlers) AddToCart(w http.ResponseWriter, r *http.Request) {
	state, userID, ok := h.state(w, r)
	if !ok {
		return
	}

	var item cart.Item
	if err := json.NewDecoder(r.Body).Decode(&item); err != nil {
		respondError(w, err.Error(), http.StatusBadRequest)
		return
	}
	if err := state.Cart.AddItem(item); err != nil {
		respondError(w, err.Error(), http.StatusBadRequest)
		return
	}

	h.auditWrite(userID, "cart.add", item.ID, r)
	respondJSON(w, http.StatusOK, viewCart(state.Cart))
}

func (h *Handlers) UpdateCartItem(w http.ResponseWriter, r *http.Request) {
	state, _, ok := h.state(w, r)
	if !ok {
		return
	}

	var req struct {
		ID       string `json:"id"`
		Quantity int    `json:"quantity"`
		Color    string `json:"color"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, err.Error(), http.StatusBadRequest)
		return
	}
	if err := state.Cart.UpdateQuantity(req.ID, req.Quantity, req.Color); err != nil {
		respondError(w, err.Error(), http.StatusBadRequest)
		return
	}
	respondJSON(w, http.StatusOK, viewCart(state.Cart))
}

func (h *Handlers) RemoveFromCart(w http.ResponseWriter, r *http.Request) {
	state, _, ok := h.state(w, r)
	if !ok {
		return
	}

	id := extractPathParam(r.URL.Path, "/cart/items/")
	color := r.URL.Query().Get("color")
	if err := state.Cart.RemoveItem(id, color); err != nil {
		respondError(w, err.Error(), http.StatusBadRequest)
		return
	}
	respondJSON(w, http.StatusOK, viewCart(state.Cart))
}

func (h *Handlers) ClearCart(w http.ResponseWriter, r *http.Request) {
	state, _, ok := h.state(w, r)
	if !ok {
		return
	}
	state.Cart.Clear()
	respondJSON(w, http.StatusOK, viewCart(state.Cart))
}

// Chat Handlers

func (h *Handlers) ListChatSessions(w http.ResponseWriter, r *http.Request) {
	state, _, ok := h.state(w, r)
	if !ok {
		return
	}
	respondJSON(w, http.StatusOK, state.Chat.Sessions())
}

func (h *Handlers) NewChatSession(w http.ResponseWriter, r *http.Request) {
	state, userID, ok := h.state(w, r)
	if !ok {
		return
	}

	session := state.Chat.NewSession()

	err := events.Emit(r.Context(), h.publisher, events.TypeSessionStarted, userID, events.SessionStarted{
		SessionID: session.ID,
		UserID:    userID,
		StartedAt: session.Timestamp,
	})
	if err != nil {
		log.Printf("[API] Failed to publish SessionStarted: %v", err)
	}

	respondJSON(w, http.StatusCreated, session)
}

func (h *Handlers) SwitchChatSession(w http.ResponseWriter, r *http.Request) {
	state, _, ok := h.state(w, r)
	if !ok {
		return
	}

	id := extractPathParam(r.URL.Path, "/chat/sessions/")
	id = strings.TrimSuffix(id, "/activate")
	if err := state.Chat.SwitchSession(id); err != nil {
		respondError(w, "session not found", http.StatusNotFound)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handlers) SendChatMessage(w http.ResponseWriter, r *http.Request) {
	state, userID, ok := h.state(w, r)
	if !ok {
		return
	}

	var req struct {
		Text string `json:"text"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, err.Error(), http.StatusBadRequest)
		return
	}

	reply, err := h.gatedChatSend(r.Context(), userID, state.Chat, req.Text)
	if err != nil {
		switch {
		case errors.Is(err, errLimitReached):
			respondError(w, err.Error(), http.StatusPaymentRequired)
		case errors.Is(err, chat.ErrEmptyMessage):
			respondError(w, err.Error(), http.StatusBadRequest)
		case errors.Is(err, chat.ErrSuperseded):
			// A newer session took over mid-flight; nothing was appended.
			respondError(w, "send superseded", http.StatusConflict)
		case errors.Is(err, chat.ErrRelayUnavailable):
			// The fallback message rides in the body so the client can
			// render it; the status tells it apart from a real reply.
			respondJSON(w, http.StatusBadGateway, reply)
		default:
			respondError(w, err.Error(), http.StatusBadGateway)
		}
		return
	}

	respondJSON(w, http.StatusOK, reply)
}

// gatedChatSend is the one path to the relay for typed and voice messages
// alike: limit check before the send, metering only after a real reply.
func (h *Handlers) gatedChatSend(ctx context.Context, userID string, chatLog *chat.Log, text string) (*chat.Message, error) {
	if h.gate.HasReachedLimit(ctx, userID, featureChatMessages) {
		return nil, errLimitReached
	}

	reply, err := chatLog.SendMessage(ctx, text)
	if err != nil {
		return reply, err
	}

	h.trackChatUsage(ctx, userID)
	return reply, nil
}

func (h *Handlers) trackChatUsage(ctx context.Context, userID string) {
	if err := h.gate.TrackUsage(ctx, userID, featureChatMessages, 1); err != nil {
		log.Printf("[API] Failed to track usage for %s: %v", userID, err)
	}
	err := events.Emit(ctx, h.publisher, events.TypeUsageTracked, userID, events.UsageTracked{
		UserID:    userID,
		Feature:   featureChatMessages,
		Amount:    1,
		TrackedAt: time.Now(),
	})
	if err != nil {
		log.Printf("[API] Failed to publish UsageTracked: %v", err)
	}
}

// Gate Handlers

func (h *Handlers) CheckFeature(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())
	feature := r.URL.Query().Get("name")
	if feature == "" {
		respondError(w, "missing feature name", http.StatusBadRequest)
		return
	}

	result := h.gate.CheckFeature(r.Context(), userID, feature)
	respondJSON(w, http.StatusOK, map[string]any{
		"feature":  feature,
		"decision": result.Decision.String(),
		"allowed":  h.gate.HasFeatureAccess(r.Context(), userID, feature),
	})
}

func (h *Handlers) CheckLimit(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())
	feature := r.URL.Query().Get("name")
	if feature == "" {
		respondError(w, "missing feature name", http.StatusBadRequest)
		return
	}

	result := h.gate.CheckLimit(r.Context(), userID, feature)
	respondJSON(w, http.StatusOK, map[string]any{
		"feature":  feature,
		"decision": result.Decision.String(),
		"reached":  h.gate.HasReachedLimit(r.Context(), userID, feature),
	})
}

func (h *Handlers) RefreshSubscription(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())
	if err := h.gate.Refresh(r.Context(), userID); err != nil {
		if errors.Is(err, gate.ErrNoActiveSubscription) {
			respondError(w, "no active subscription", http.StatusNotFound)
			return
		}
		respondError(w, "subscription unavailable", http.StatusBadGateway)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Order Handlers

func (h *Handlers) Checkout(w http.ResponseWriter, r *http.Request) {
	state, userID, ok := h.state(w, r)
	if !ok {
		return
	}

	var req struct {
		DeliveryAddress string `json:"delivery_address"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, err.Error(), http.StatusBadRequest)
		return
	}

	placed, err := h.orders.PlaceOrder(r.Context(), userID, state.Cart, req.DeliveryAddress)
	if err != nil {
		if errors.Is(err, order.ErrEmptyOrder) {
			respondError(w, "cart is empty", http.StatusBadRequest)
			return
		}
		respondError(w, err.Error(), http.StatusBadGateway)
		return
	}

	h.auditWrite(userID, "order.place", placed.ID, r)
	respondJSON(w, http.StatusCreated, placed)
}

func (h *Handlers) GetOrders(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())
	orders, err := h.orders.ListOrders(r.Context(), userID)
	if err != nil {
		respondError(w, err.Error(), http.StatusBadGateway)
		return
	}
	respondJSON(w, http.StatusOK, orders)
}

func (h *Handlers) GetOrder(w http.ResponseWriter, r *http.Request) {
	id := extractPathParam(r.URL.Path, "/orders/")

	o, err := h.orders.GetOrder(r.Context(), id)
	if err != nil {
		if errors.Is(err, order.ErrOrderNotFound) {
			respondError(w, "order not found", http.StatusNotFound)
			return
		}
		respondError(w, err.Error(), http.StatusBadGateway)
		return
	}

	// Users only see their own orders; admins see all.
	userID := middleware.GetUserID(r.Context())
	if o.UserID != userID && !isAdmin(r) {
		respondError(w, "forbidden", http.StatusForbidden)
		return
	}
	respondJSON(w, http.StatusOK, o)
}

// Admin Handlers

func (h *Handlers) AdminDashboard(w http.ResponseWriter, r *http.Request) {
	dash, err := h.admin.Dashboard(r.Context())
	if err != nil {
		respondError(w, err.Error(), http.StatusInternalServerError)
		return
	}
	respondJSON(w, http.StatusOK, dash)
}

func (h *Handlers) AdminAuditLogs(w http.ResponseWriter, r *http.Request) {
	rows, err := h.admin.AuditLogs(r.Context(), listFilterFromQuery(r))
	if err != nil {
		respondError(w, err.Error(), http.StatusBadGateway)
		return
	}
	respondJSON(w, http.StatusOK, rows)
}

func (h *Handlers) AdminSystemLogs(w http.ResponseWriter, r *http.Request) {
	rows, err := h.admin.SystemLogs(r.Context(), listFilterFromQuery(r))
	if err != nil {
		respondError(w, err.Error(), http.StatusBadGateway)
		return
	}
	respondJSON(w, http.StatusOK, rows)
}

func (h *Handlers) AdminOrders(w http.ResponseWriter, r *http.Request) {
	f := listFilterFromQuery(r)
	f.Action = r.URL.Query().Get("status")
	rows, err := h.admin.Orders(r.Context(), f)
	if err != nil {
		respondError(w, err.Error(), http.StatusBadGateway)
		return
	}
	respondJSON(w, http.StatusOK, rows)
}

func (h *Handlers) AdminUsers(w http.ResponseWriter, r *http.Request) {
	rows, err := h.admin.Users(r.Context(), listFilterFromQuery(r))
	if err != nil {
		respondError(w, err.Error(), http.StatusBadGateway)
		return
	}
	respondJSON(w, http.StatusOK, rows)
}

func listFilterFromQuery(r *http.Request) admin.ListFilter {
	q := r.URL.Query()
	f := admin.ListFilter{
		UserID:    q.Get("user_id"),
		Action:    q.Get("action"),
		Level:     q.Get("level"),
		Search:    q.Get("q"),
		SortBy:    q.Get("sort"),
		Ascending: q.Get("dir") == "asc",
	}
	if v := q.Get("from"); v != "" {
		if ts, err := time.Parse(time.RFC3339, v); err == nil {
			f.From = ts
		}
	}
	if v := q.Get("to"); v != "" {
		if ts, err := time.Parse(time.RFC3339, v); err == nil {
			f.To = ts
		}
	}
	if n, err := strconv.Atoi(q.Get("limit")); err == nil {
		f.Limit = n
	}
	if n, err := strconv.Atoi(q.Get("offset")); err == nil {
		f.Offset = n
	}
	return f
}

// Helper functions

func (h *Handlers) auditWrite(userID, action, resource string, r *http.Request) {
	if h.audit == nil {
		return
	}
	h.audit.WriteAsync(admin.AuditLog{
		UserID:    userID,
		Action:    action,
		Resource:  resource,
		IPAddress: r.RemoteAddr,
	})
}

func respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func respondError(w http.ResponseWriter, message string, status int) {
	respondJSON(w, status, map[string]string{"error": message})
}

func extractPathParam(path, prefix string) string {
	return strings.TrimPrefix(path, prefix)
}

// isAdmin checks if the current user has admin role
func isAdmin(r *http.Request) bool {
	claims, ok := middleware.GetUserFromContext(r.Context())
	if !ok {
		return false
	}
	return claims.Role == "admin"
}
