package alarm

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/require"
)

func testMessage() *Message {
	return &Message{
		AlarmID:     "a1",
		AlarmName:   "error spike",
		Description: "too many errors",
		Query:       `level="ERROR"`,
		Condition:   "> 5",
		Metric:      9,
		WindowMin:   5,
		TriggeredAt: 1717243200000,
	}
}

func TestMessageText(t *testing.T) {
	text := testMessage().Text()

	require.True(t, strings.HasPrefix(text, "ALARM TRIGGERED: error spike"))
	require.Contains(t, text, `Query: level="ERROR"`)
	require.Contains(t, text, "Condition: > 5")
	require.Contains(t, text, "Metric: 9")
	require.Contains(t, text, "Time Window: 5 minutes")
}

func TestWebhookDispatcherDelivers(t *testing.T) {
	var received Message
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "application/json", r.Header.Get("Content-Type"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&received))
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	d := NewWebhookDispatcher(testLogger())
	err := d.Send(context.Background(), Channel{Type: ChannelWebhook, Destination: server.URL}, testMessage())
	require.NoError(t, err)
	require.Equal(t, "error spike", received.AlarmName)
	require.Equal(t, 9, received.Metric)
}

func TestWebhookDispatcherRetriesServerErrors(t *testing.T) {
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) < 3 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	d := NewWebhookDispatcher(testLogger())
	err := d.Send(context.Background(), Channel{Type: ChannelWebhook, Destination: server.URL}, testMessage())
	require.NoError(t, err)
	require.GreaterOrEqual(t, atomic.LoadInt32(&calls), int32(3))
}

func TestWebhookDispatcherNoRetryOnClientError(t *testing.T) {
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer server.Close()

	d := NewWebhookDispatcher(testLogger())
	err := d.Send(context.Background(), Channel{Type: ChannelWebhook, Destination: server.URL}, testMessage())
	require.Error(t, err)
	require.Equal(t, int32(1), atomic.LoadInt32(&calls), "client errors must not be retried")
}

func TestRouterRoutesByChannelType(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	router := NewRouter(testLogger())
	ctx := context.Background()
	msg := testMessage()

	require.NoError(t, router.Send(ctx, Channel{Type: ChannelWebhook, Destination: server.URL}, msg))
	require.NoError(t, router.Send(ctx, Channel{Type: ChannelSlack, Destination: "#alerts"}, msg))
	require.NoError(t, router.Send(ctx, Channel{Type: ChannelEmail, Destination: "oncall@example.com"}, msg))

	err := router.Send(ctx, Channel{Type: "carrier-pigeon", Destination: "roof"}, msg)
	require.Error(t, err)
	require.Contains(t, err.Error(), "unsupported")
}
