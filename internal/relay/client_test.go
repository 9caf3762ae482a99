package relay

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClient_Send_PlainTextOutput(t *testing.T) {
	var got Request
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewDecoder(r.Body).Decode(&got)
		json.NewEncoder(w).Encode(map[string]string{"output": "Here are some sneakers for you."})
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "", nil)
	reply, err := c.Send(context.Background(), "session-1", "show me sneakers")

	require.NoError(t, err)
	assert.Equal(t, "show me sneakers", got.ChatInput)
	assert.Equal(t, "session-1", got.SessionID)
	assert.Equal(t, "Here are some sneakers for you.", reply.Text)
	assert.Empty(t, reply.Products)
}

func TestClient_Send_StructuredOutput(t *testing.T) {
	structured := `{"text":"Found 2 options","products":[{"id":"p1","name":"Air Max","price":45000}],"actionButtons":[{"label":"Add to cart","action":"add_to_cart"}]}`
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]string{"output": structured})
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "", nil)
	reply, err := c.Send(context.Background(), "session-1", "sneakers")

	require.NoError(t, err)
	assert.Equal(t, "Found 2 options", reply.Text)
	require.Len(t, reply.Products, 1)
	assert.Equal(t, "Air Max", reply.Products[0].Name)
	require.Len(t, reply.ActionButtons, 1)
	assert.Equal(t, "add_to_cart", reply.ActionButtons[0].Action)
}

func TestClient_Send_NonOKStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "", nil)
	_, err := c.Send(context.Background(), "session-1", "hello")

	assert.Error(t, err)
}

func TestClient_Send_SetsAPIKeyHeader(t *testing.T) {
	var gotKey string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotKey = r.Header.Get("X-API-Key")
		json.NewEncoder(w).Encode(map[string]string{"output": "ok"})
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "relay-key-0123456789abcdef", nil)
	_, err := c.Send(context.Background(), "s", "hi")

	require.NoError(t, err)
	assert.Equal(t, "relay-key-0123456789abcdef", gotKey)
}

func TestParseReply(t *testing.T) {
	tests := []struct {
		name   string
		output string
		want   Reply
	}{
		{
			name:   "plain text",
			output: "Hello there",
			want:   Reply{Text: "Hello there"},
		},
		{
			name:   "json with text",
			output: `{"text":"hi","richComponent":"product_grid"}`,
			want:   Reply{Text: "hi", RichComponent: "product_grid"},
		},
		{
			name:   "json without text falls back to raw",
			output: `{"foo":"bar"}`,
			want:   Reply{Text: `{"foo":"bar"}`},
		},
		{
			name:   "whitespace trimmed",
			output: "  hi \n",
			want:   Reply{Text: "hi"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, *ParseReply(tt.output))
		})
	}
}
