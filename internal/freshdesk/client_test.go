package freshdesk

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/spec-kit/ticket-sync/internal/config"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewClient(config.FreshdeskConfig{BaseURL: srv.URL, APIKey: "key", TimeoutSeconds: 5, PerPage: 100}, zap.NewNop())
}

func TestFetchUpdatedSinceBuildsIncrementalQuery(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		user, pass, ok := r.BasicAuth()
		require.True(t, ok)
		require.Equal(t, "key", user)
		require.Equal(t, "X", pass)
		require.Equal(t, "/tickets", r.URL.Path)
		q := r.URL.Query()
		require.Equal(t, "updated_at", q.Get("order_by"))
		require.Equal(t, "desc", q.Get("order_type"))
		require.Equal(t, "100", q.Get("per_page"))
		require.Equal(t, "2024-05-01T10:00:00Z", q.Get("updated_since"))
		_, _ = w.Write([]byte(`[{"id":77,"subject":"Help","description_text":"plain","description":"<p>html</p>","status":2,"updated_at":"2024-05-01T11:00:00Z"},
			{"id":78,"subject":"Closed","description":"<p>only html</p>","status":5,"updated_at":"2024-05-01T11:00:00Z"}]`))
	})

	since := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	tickets, err := client.FetchUpdatedSince(context.Background(), &since)
	require.NoError(t, err)
	require.Len(t, tickets, 2)
	require.Equal(t, "77", tickets[0].ExternalID())
	require.True(t, tickets[0].IsOpen())
	require.Equal(t, "plain", tickets[0].DescriptionBody())
	require.False(t, tickets[1].IsOpen())
	require.Equal(t, "<p>only html</p>", tickets[1].DescriptionBody())
}

func TestFetchUpdatedSinceFullSyncOmitsWatermark(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		require.False(t, r.URL.Query().Has("updated_since"))
		_, _ = w.Write([]byte(`[]`))
	})
	tickets, err := client.FetchUpdatedSince(context.Background(), nil)
	require.NoError(t, err)
	require.Empty(t, tickets)
}

func TestFetchUpdatedSinceSurfacesAPIError(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	})
	_, err := client.FetchUpdatedSince(context.Background(), nil)
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	require.Equal(t, http.StatusTooManyRequests, apiErr.StatusCode)
}

func TestFetchConversationThread(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/tickets/77/conversations":
			_, _ = w.Write([]byte(`[{"id":1,"body_text":"hello","private":true,"incoming":false,"user_id":9,"created_at":"2024-05-01T10:00:00Z"},{"id":2,"body_text":null}]`))
		default:
			http.NotFound(w, r)
		}
	})

	turns, err := client.FetchConversationThread(context.Background(), "77")
	require.NoError(t, err)
	require.Len(t, turns, 2)
	require.Equal(t, "hello", turns[0].BodyText)
	require.True(t, turns[0].IsPrivate)
	require.Equal(t, int64(9), *turns[0].UserID)
	require.Empty(t, turns[1].BodyText)

	turns, err = client.FetchConversationThread(context.Background(), "404")
	require.NoError(t, err)
	require.Empty(t, turns)
}

func TestPushReply(t *testing.T) {
	var body map[string]string
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "/tickets/77/reply", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		w.WriteHeader(http.StatusCreated)
	})
	require.NoError(t, client.PushReply(context.Background(), "77", "Thanks"))
	require.Equal(t, map[string]string{"body": "Thanks"}, body)
}

func TestUnconfiguredClient(t *testing.T) {
	client := NewClient(config.FreshdeskConfig{}, zap.NewNop())
	_, err := client.FetchUpdatedSince(context.Background(), nil)
	require.ErrorIs(t, err, ErrNotConfigured)
}
