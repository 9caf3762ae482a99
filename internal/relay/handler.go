package relay

import (
	"bytes"
	"encoding/json"
	"io"
	"log"
	"net/http"
	"time"

	"github.com/ojachat/ojachat/internal/auth"
)

// Handler is the relay service itself: it accepts the chat POST, forwards it
// to the workflow engine, and passes the {output} envelope back verbatim.
type Handler struct {
	workflowURL string
	apiKeyHash  string // bcrypt hash; empty disables the key check
	httpClient  *http.Client
}

func NewHandler(workflowURL, apiKeyHash string, httpClient *http.Client) *Handler {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 90 * time.Second}
	}
	return &Handler{workflowURL: workflowURL, apiKeyHash: apiKeyHash, httpClient: httpClient}
}

// Router returns the HTTP handler for the relay service.
func (h *Handler) Router() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/chat", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}
		h.handleChat(w, r)
	})
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	return mux
}

func (h *Handler) handleChat(w http.ResponseWriter, r *http.Request) {
	if h.apiKeyHash != "" && !auth.CheckAPIKey(r.Header.Get("X-API-Key"), h.apiKeyHash) {
		respondError(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	var req Request
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if req.ChatInput == "" {
		respondError(w, "chatInput is required", http.StatusBadRequest)
		return
	}

	body, err := json.Marshal(req)
	if err != nil {
		respondError(w, "internal error", http.StatusInternalServerError)
		return
	}

	upstream, err := http.NewRequestWithContext(r.Context(), http.MethodPost, h.workflowURL, bytes.NewReader(body))
	if err != nil {
		respondError(w, "internal error", http.StatusInternalServerError)
		return
	}
	upstream.Header.Set("Content-Type", "application/json")

	resp, err := h.httpClient.Do(upstream)
	if err != nil {
		log.Printf("[Relay] Workflow call failed: %v", err)
		respondError(w, "workflow unavailable", http.StatusBadGateway)
		return
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil || resp.StatusCode != http.StatusOK {
		log.Printf("[Relay] Workflow returned status %d", resp.StatusCode)
		respondError(w, "workflow error", http.StatusBadGateway)
		return
	}

	// Normalize to the {output} envelope whatever the workflow returned.
	w.Header().Set("Content-Type", "application/json")
	if json.Valid(raw) && bytes.Contains(raw, []byte(`"output"`)) {
		w.Write(raw)
		return
	}
	json.NewEncoder(w).Encode(map[string]string{"output": string(raw)})
}

func respondError(w http.ResponseWriter, message string, status int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": message})
}
