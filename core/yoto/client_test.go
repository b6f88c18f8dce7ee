package yoto

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/earchibald/yoto-smart-stream-sub004/config"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestServer(t *testing.T, handler func(w http.ResponseWriter, r *http.Request)) (*httptest.Server, *Client) {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(handler))
	t.Cleanup(srv.Close)

	client := NewClient(&config.Config{
		YotoAPIURL:       srv.URL,
		YotoClientID:     "client-id",
		YotoClientSecret: "client-secret",
	})
	return srv, client
}

func TestClientTokenRefreshAndCaching(t *testing.T) {
	tokenRequests := 0
	_, client := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/oauth/token":
			tokenRequests++
			require.NoError(t, r.ParseForm())
			assert.Equal(t, "client_credentials", r.PostForm.Get("grant_type"))
			assert.Equal(t, "client-id", r.PostForm.Get("client_id"))
			json.NewEncoder(w).Encode(map[string]interface{}{
				"access_token": "tok-abc",
				"token_type":   "Bearer",
				"expires_in":   3600,
			})
		case "/device-v2/devices/mine":
			assert.Equal(t, "Bearer tok-abc", r.Header.Get("Authorization"))
			io.WriteString(w, `{"devices":[{"deviceId":"dev-1","name":"Kitchen","online":true}]}`)
		default:
			t.Fatalf("unexpected path %s", r.URL.Path)
		}
	})

	devices, err := client.Devices(context.Background())
	require.NoError(t, err)
	require.Len(t, devices, 1)
	assert.Equal(t, "dev-1", devices[0].DeviceID)
	assert.True(t, devices[0].Online)

	// Second call reuses the cached token.
	_, err = client.Devices(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, tokenRequests)
}

func TestClientTokenFailure(t *testing.T) {
	_, client := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "bad credentials", http.StatusUnauthorized)
	})

	_, err := client.Devices(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "401")
}

func TestClientStatus(t *testing.T) {
	_, client := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/oauth/token":
			json.NewEncoder(w).Encode(map[string]interface{}{"access_token": "tok", "expires_in": 3600})
		case "/device-v2/dev-1/status":
			io.WriteString(w, `{"device":{"online":true,"playing":true,"volume":9,"batteryLevel":47,"trackTitle":"Story Time"}}`)
		default:
			t.Fatalf("unexpected path %s", r.URL.Path)
		}
	})

	status, err := client.Status(context.Background(), "dev-1")
	require.NoError(t, err)
	assert.Equal(t, "dev-1", status.DeviceID)
	assert.True(t, status.Playing)
	assert.Equal(t, 9, status.Volume)
	require.NotNil(t, status.BatteryLevel)
	assert.Equal(t, 47, *status.BatteryLevel)
	require.NotNil(t, status.TrackTitle)
	assert.Equal(t, "Story Time", *status.TrackTitle)
	assert.Nil(t, status.ActiveCard)
}

func TestClientSendCommand(t *testing.T) {
	var gotBody map[string]interface{}
	_, client := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/oauth/token":
			json.NewEncoder(w).Encode(map[string]interface{}{"access_token": "tok", "expires_in": 3600})
		case "/device-v2/dev-1/command":
			require.Equal(t, http.MethodPost, r.Method)
			gotBody = nil // fresh map per request; Decode merges into a populated one
			require.NoError(t, json.NewDecoder(r.Body).Decode(&gotBody))
			w.WriteHeader(http.StatusOK)
		default:
			t.Fatalf("unexpected path %s", r.URL.Path)
		}
	})

	vol := 7
	require.NoError(t, client.SendCommand(context.Background(), "dev-1", "volume", &vol))
	assert.Equal(t, "volume", gotBody["command"])
	assert.Equal(t, float64(7), gotBody["volume"])

	require.NoError(t, client.SendCommand(context.Background(), "dev-1", "pause", nil))
	_, hasVolume := gotBody["volume"]
	assert.False(t, hasVolume)
}

func TestClientCardLookup(t *testing.T) {
	_, client := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/oauth/token":
			json.NewEncoder(w).Encode(map[string]interface{}{"access_token": "tok", "expires_in": 3600})
		case "/content/card-7":
			io.WriteString(w, `{"card":{"cardId":"card-7","title":"Sleepy Songs","coverUrl":"https://cdn/cover.png"}}`)
		default:
			t.Fatalf("unexpected path %s", r.URL.Path)
		}
	})

	card, err := client.Card(context.Background(), "card-7")
	require.NoError(t, err)
	assert.Equal(t, "card-7", card.CardID)
	assert.Equal(t, "Sleepy Songs", card.Title)
	assert.Equal(t, "https://cdn/cover.png", card.CoverURL)
}

func TestClientCardsList(t *testing.T) {
	_, client := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/oauth/token":
			json.NewEncoder(w).Encode(map[string]interface{}{"access_token": "tok", "expires_in": 3600})
		case "/content/mine":
			io.WriteString(w, `{"cards":[{"cardId":"card-1","title":"A"},{"cardId":"card-2","title":"B"}]}`)
		default:
			t.Fatalf("unexpected path %s", r.URL.Path)
		}
	})

	cards, err := client.Cards(context.Background())
	require.NoError(t, err)
	require.Len(t, cards, 2)
	assert.Equal(t, "card-2", cards[1].CardID)
}

func TestClientSendCommandUpstreamError(t *testing.T) {
	_, client := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/oauth/token" {
			json.NewEncoder(w).Encode(map[string]interface{}{"access_token": "tok", "expires_in": 3600})
			return
		}
		http.Error(w, "device offline", http.StatusConflict)
	})

	err := client.SendCommand(context.Background(), "dev-1", "play", nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "409")
}
