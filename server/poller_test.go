package server

import (
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/earchibald/yoto-smart-stream-sub004/config"
	"github.com/earchibald/yoto-smart-stream-sub004/core/yoto"
	"github.com/earchibald/yoto-smart-stream-sub004/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeDeviceRepo is an in-memory device registry.
type fakeDeviceRepo struct {
	upserts map[string]*model.Device
	touched map[string]time.Time
}

func newFakeDeviceRepo() *fakeDeviceRepo {
	return &fakeDeviceRepo{
		upserts: make(map[string]*model.Device),
		touched: make(map[string]time.Time),
	}
}

func (r *fakeDeviceRepo) UpsertDevice(device *model.Device) error {
	r.upserts[device.ID] = device
	return nil
}

func (r *fakeDeviceRepo) GetDeviceByID(id string) (*model.Device, error) {
	return r.upserts[id], nil
}

func (r *fakeDeviceRepo) GetAllDevices() ([]*model.Device, error) {
	out := make([]*model.Device, 0, len(r.upserts))
	for _, d := range r.upserts {
		out = append(out, d)
	}
	return out, nil
}

func (r *fakeDeviceRepo) TouchLastSeen(id string, at time.Time) error {
	r.touched[id] = at
	return nil
}

func (r *fakeDeviceRepo) DeleteDevice(id string) error {
	delete(r.upserts, id)
	return nil
}

func newPollerBackend(t *testing.T) *yoto.Client {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/oauth/token":
			io.WriteString(w, `{"access_token":"tok","expires_in":3600}`)
		case "/device-v2/devices/mine":
			io.WriteString(w, `{"devices":[
				{"deviceId":"dev-1","name":"Kitchen","online":true,"deviceModel":"v3"},
				{"deviceId":"dev-2","name":"Bedroom","online":false,"deviceModel":"mini"}
			]}`)
		case "/device-v2/dev-1/status":
			io.WriteString(w, `{"device":{"online":true,"playing":true,"volume":22}}`)
		case "/device-v2/dev-2/status":
			io.WriteString(w, `{"device":{"online":false,"playing":false,"volume":4}}`)
		default:
			t.Fatalf("unexpected path %s", r.URL.Path)
		}
	}))
	t.Cleanup(srv.Close)

	return yoto.NewClient(&config.Config{
		YotoAPIURL:       srv.URL,
		YotoClientID:     "client-id",
		YotoClientSecret: "client-secret",
	})
}

func TestPollerRefreshCachesAndRegisters(t *testing.T) {
	client := newPollerBackend(t)
	store := newFakeStateStore()
	repo := newFakeDeviceRepo()

	p := NewStatusPoller(client, store, repo, nil, time.Second)
	p.refresh()

	// Both devices land in the state cache, with the volume clamped.
	require.Len(t, store.states, 2)
	assert.True(t, store.states["dev-1"].Playing)
	assert.Equal(t, model.MaxVolume, store.states["dev-1"].Volume)
	assert.Equal(t, 4, store.states["dev-2"].Volume)

	// Both land in the registry; only the online one gets a last-seen touch.
	require.Len(t, repo.upserts, 2)
	assert.Equal(t, "Kitchen", repo.upserts["dev-1"].Name)
	assert.Equal(t, "mini", repo.upserts["dev-2"].Family)
	assert.Contains(t, repo.touched, "dev-1")
	assert.NotContains(t, repo.touched, "dev-2")
}
