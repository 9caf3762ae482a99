package supabase

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T, handler http.Handler) (*Client, *httptest.Server) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	c, err := New(Config{
		URL:    srv.URL,
		APIKey: "test-key",
		Retry:  RetryConfig{MaxRetries: 2, InitialBackoff: time.Millisecond, BackoffMultiplier: 1},
	})
	require.NoError(t, err)
	return c, srv
}

func TestNew_RequiresURLAndKey(t *testing.T) {
	_, err := New(Config{APIKey: "k"})
	assert.ErrorIs(t, err, ErrMissingURL)

	_, err = New(Config{URL: "http://x"})
	assert.ErrorIs(t, err, ErrMissingAPIKey)
}

func TestQuery_Get_BuildsPostgRESTRequest(t *testing.T) {
	var gotPath, gotQuery, gotAPIKey, gotAuth string
	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotQuery = r.URL.RawQuery
		gotAPIKey = r.Header.Get("apikey")
		gotAuth = r.Header.Get("Authorization")
		json.NewEncoder(w).Encode([]map[string]any{{"id": "sub-1"}})
	}))

	var rows []struct {
		ID string `json:"id"`
	}
	err := c.From("user_subscriptions").
		Select("*").
		Eq("user_id", "u-1").
		Eq("status", "active").
		Order("created_at", false).
		Limit(1).
		Get(context.Background(), &rows)

	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "sub-1", rows[0].ID)
	assert.Equal(t, "/rest/v1/user_subscriptions", gotPath)
	assert.Contains(t, gotQuery, "user_id=eq.u-1")
	assert.Contains(t, gotQuery, "status=eq.active")
	assert.Contains(t, gotQuery, "order=created_at.desc")
	assert.Contains(t, gotQuery, "limit=1")
	assert.Equal(t, "test-key", gotAPIKey)
	assert.Equal(t, "Bearer test-key", gotAuth)
}

func TestQuery_Single_SetsAcceptHeader(t *testing.T) {
	var gotAccept string
	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAccept = r.Header.Get("Accept")
		json.NewEncoder(w).Encode(map[string]any{"id": "p-1"})
	}))

	var row struct {
		ID string `json:"id"`
	}
	err := c.From("profiles").Eq("id", "p-1").Single().Get(context.Background(), &row)

	require.NoError(t, err)
	assert.Equal(t, "application/vnd.pgrst.object+json", gotAccept)
}

func TestClient_WithToken_UsesUserBearer(t *testing.T) {
	var gotAuth, gotAPIKey string
	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		gotAPIKey = r.Header.Get("apikey")
		w.Write([]byte("[]"))
	}))

	var rows []any
	err := c.WithToken("user-jwt").From("orders").Get(context.Background(), &rows)

	require.NoError(t, err)
	assert.Equal(t, "Bearer user-jwt", gotAuth)
	assert.Equal(t, "test-key", gotAPIKey, "project key still accompanies user requests")
}

func TestClient_RetriesOn503ThenSucceeds(t *testing.T) {
	var calls atomic.Int32
	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.Write([]byte(`[{"id":"ok"}]`))
	}))

	var rows []struct {
		ID string `json:"id"`
	}
	err := c.From("orders").Get(context.Background(), &rows)

	require.NoError(t, err)
	assert.Equal(t, int32(3), calls.Load())
	require.Len(t, rows, 1)
}

func TestClient_DoesNotRetryOn400(t *testing.T) {
	var calls atomic.Int32
	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"message":"bad filter"}`))
	}))

	err := c.From("orders").Get(context.Background(), &[]any{})

	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusBadRequest, apiErr.StatusCode)
	assert.Equal(t, "bad filter", apiErr.Message)
	assert.Equal(t, int32(1), calls.Load())
}

func TestClient_RetryReplaysRequestBody(t *testing.T) {
	var calls atomic.Int32
	var lastBody []byte
	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body := make([]byte, r.ContentLength)
		r.Body.Read(body)
		lastBody = body
		if calls.Add(1) < 2 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		w.Write([]byte("[]"))
	}))

	err := c.From("subscription_usage").Insert(context.Background(),
		map[string]any{"feature_name": "chat"}, nil)

	require.NoError(t, err)
	assert.Equal(t, int32(2), calls.Load())
	assert.JSONEq(t, `{"feature_name":"chat"}`, string(lastBody))
}

func TestRPC_PostsParams(t *testing.T) {
	var gotPath string
	var gotBody map[string]any
	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		json.NewDecoder(r.Body).Decode(&gotBody)
		w.Write([]byte(`5`))
	}))

	var total int
	err := c.RPC(context.Background(), "increment_feature_usage",
		map[string]any{"p_feature": "chat", "p_amount": 1}, &total)

	require.NoError(t, err)
	assert.Equal(t, "/rest/v1/rpc/increment_feature_usage", gotPath)
	assert.Equal(t, "chat", gotBody["p_feature"])
	assert.Equal(t, 5, total)
}

func TestAuth_SignInAndRefresh(t *testing.T) {
	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/auth/v1/token", r.URL.Path)
		grant := r.URL.Query().Get("grant_type")
		var body map[string]string
		json.NewDecoder(r.Body).Decode(&body)

		switch grant {
		case "password":
			assert.Equal(t, "a@b.c", body["email"])
			json.NewEncoder(w).Encode(Session{AccessToken: "at-1", RefreshToken: "rt-1"})
		case "refresh_token":
			assert.Equal(t, "rt-1", body["refresh_token"])
			json.NewEncoder(w).Encode(Session{AccessToken: "at-2", RefreshToken: "rt-2"})
		default:
			t.Errorf("unexpected grant type %q", grant)
		}
	}))

	sess, err := c.SignInWithPassword(context.Background(), "a@b.c", "secret123")
	require.NoError(t, err)
	assert.Equal(t, "at-1", sess.AccessToken)

	next, err := c.RefreshSession(context.Background(), sess.RefreshToken)
	require.NoError(t, err)
	assert.Equal(t, "at-2", next.AccessToken)
}

func TestStorage_UploadAndPublicURL(t *testing.T) {
	var gotPath, gotUpsert string
	c, srv := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotUpsert = r.Header.Get("x-upsert")
		w.WriteHeader(http.StatusOK)
	}))

	b := c.Storage("avatars")
	err := b.Upload(context.Background(), "u-1/avatar.png", []byte{0x89}, "image/png")

	require.NoError(t, err)
	assert.Equal(t, "/storage/v1/object/avatars/u-1/avatar.png", gotPath)
	assert.Equal(t, "true", gotUpsert)
	assert.Equal(t, srv.URL+"/storage/v1/object/public/avatars/u-1/avatar.png",
		b.PublicURL("u-1/avatar.png"))
}

func TestRetryConfig_Backoff(t *testing.T) {
	r := RetryConfig{InitialBackoff: 100 * time.Millisecond, MaxBackoff: 300 * time.Millisecond, BackoffMultiplier: 2}

	assert.Equal(t, 100*time.Millisecond, r.backoff(1))
	assert.Equal(t, 200*time.Millisecond, r.backoff(2))
	assert.Equal(t, 300*time.Millisecond, r.backoff(3), "capped at MaxBackoff")
}
