package api

import (
	"log"
	"net/http"
	"strings"

	"github.com/ojachat/ojachat/internal/api/middleware"
	"github.com/ojachat/ojachat/internal/auth"
)

func NewRouter(handlers *Handlers, authHandlers *AuthHandlers, voiceHandlers *VoiceHandlers, validator *auth.Validator) http.Handler {
	mux := http.NewServeMux()
	authed := middleware.AuthMiddleware(validator)
	adminOnly := func(h http.Handler) http.Handler {
		return authed(middleware.RequireRole("admin")(h))
	}

	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	// Auth
	mux.HandleFunc("/auth/signin", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			methodNotAllowed(w)
			return
		}
		authHandlers.SignIn(w, r)
	})
	mux.Handle("/auth/signout", authed(methodHandler(http.MethodPost, authHandlers.SignOut)))
	mux.Handle("/auth/refresh", authed(methodHandler(http.MethodPost, authHandlers.Refresh)))
	mux.Handle("/auth/me", authed(methodHandler(http.MethodGet, authHandlers.Me)))
	mux.Handle("/auth/profile", authed(methodHandler(http.MethodPost, authHandlers.SaveProfile)))

	// Cart
	mux.Handle("/cart", authed(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodGet:
			handlers.GetCart(w, r)
		case http.MethodDelete:
			handlers.ClearCart(w, r)
		default:
			methodNotAllowed(w)
		}
	})))
	mux.Handle("/cart/items", authed(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodPost:
			handlers.AddToCart(w, r)
		case http.MethodPut:
			handlers.UpdateCartItem(w, r)
		default:
			methodNotAllowed(w)
		}
	})))
	mux.Handle("/cart/items/", authed(methodHandler(http.MethodDelete, handlers.RemoveFromCart)))

	// Chat
	mux.Handle("/chat/sessions", authed(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodGet:
			handlers.ListChatSessions(w, r)
		case http.MethodPost:
			handlers.NewChatSession(w, r)
		default:
			methodNotAllowed(w)
		}
	})))
	mux.Handle("/chat/sessions/", authed(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if strings.HasSuffix(r.URL.Path, "/activate") && r.Method == http.MethodPost {
			handlers.SwitchChatSession(w, r)
			return
		}
		methodNotAllowed(w)
	})))
	mux.Handle("/chat/messages", authed(methodHandler(http.MethodPost, handlers.SendChatMessage)))

	// Gate
	mux.Handle("/gate/feature", authed(methodHandler(http.MethodGet, handlers.CheckFeature)))
	mux.Handle("/gate/limit", authed(methodHandler(http.MethodGet, handlers.CheckLimit)))
	mux.Handle("/subscription/refresh", authed(methodHandler(http.MethodPost, handlers.RefreshSubscription)))

	// Orders
	mux.Handle("/checkout", authed(methodHandler(http.MethodPost, handlers.Checkout)))
	mux.Handle("/orders", authed(methodHandler(http.MethodGet, handlers.GetOrders)))
	mux.Handle("/orders/", authed(methodHandler(http.MethodGet, handlers.GetOrder)))

	// Voice
	mux.Handle("/voice/start", authed(methodHandler(http.MethodPost, voiceHandlers.Start)))
	mux.Handle("/voice/send", authed(methodHandler(http.MethodPost, voiceHandlers.Send)))
	mux.Handle("/voice/stop", authed(methodHandler(http.MethodPost, voiceHandlers.Stop)))

	// Admin
	mux.Handle("/admin/dashboard", adminOnly(methodHandler(http.MethodGet, handlers.AdminDashboard)))
	mux.Handle("/admin/audit-logs", adminOnly(methodHandler(http.MethodGet, handlers.AdminAuditLogs)))
	mux.Handle("/admin/system-logs", adminOnly(methodHandler(http.MethodGet, handlers.AdminSystemLogs)))
	mux.Handle("/admin/orders", adminOnly(methodHandler(http.MethodGet, handlers.AdminOrders)))
	mux.Handle("/admin/users", adminOnly(methodHandler(http.MethodGet, handlers.AdminUsers)))

	return withLogging(mux)
}

func methodHandler(method string, fn http.HandlerFunc) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != method {
			methodNotAllowed(w)
			return
		}
		fn(w, r)
	})
}

func methodNotAllowed(w http.ResponseWriter) {
	respondError(w, "method not allowed", http.StatusMethodNotAllowed)
}

func withLogging(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		log.Printf("[API] %s %s", r.Method, r.URL.Path)
		next.ServeHTTP(w, r)
	})
}
