package websocket

import (
	"encoding/json"
	"testing"

	"notesync-be/internal/metrics"
	"notesync-be/internal/pkg/logger"
	"notesync-be/pkg/events"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(hub *Hub, tenant, device string, buffer int) *Client {
	return &Client{hub: hub, Tenant: tenant, DeviceID: device, send: make(chan []byte, buffer)}
}

func drain(c *Client) []map[string]interface{} {
	var out []map[string]interface{}
	for {
		select {
		case data, ok := <-c.send:
			if !ok {
				return out
			}
			var m map[string]interface{}
			_ = json.Unmarshal(data, &m)
			out = append(out, m)
		default:
			return out
		}
	}
}

func TestHub_TenantScopedDelivery(t *testing.T) {
	hub := NewHub(logger.NewNopLogger(), metrics.NewNop())
	a1 := newTestClient(hub, "acme", "phone", 4)
	a2 := newTestClient(hub, "acme", "laptop", 4)
	b := newTestClient(hub, "globex", "phone", 4)
	for _, c := range []*Client{a1, a2, b} {
		hub.Connect(c)
	}

	hub.BroadcastLocal(events.New(events.CategoryNote, events.NoteDeleted, "acme", map[string]interface{}{"uniqueid": "n1"}))

	for _, c := range []*Client{a1, a2} {
		got := drain(c)
		require.Len(t, got, 1)
		assert.Equal(t, "note_deleted", got[0]["event"])
		assert.Equal(t, "acme", got[0]["tenant"])
		assert.Equal(t, "n1", got[0]["uniqueid"])
	}
	assert.Empty(t, drain(b))
}

func TestHub_UnscopedEventReachesEveryone(t *testing.T) {
	hub := NewHub(logger.NewNopLogger(), metrics.NewNop())
	a := newTestClient(hub, "acme", "phone", 4)
	b := newTestClient(hub, "globex", "phone", 4)
	hub.Connect(a)
	hub.Connect(b)

	hub.BroadcastLocal(events.New(events.CategoryNote, "maintenance", "", nil))

	assert.Len(t, drain(a), 1)
	assert.Len(t, drain(b), 1)
}

func TestHub_DisconnectPrunesEmptyTenants(t *testing.T) {
	m := metrics.NewNop()
	hub := NewHub(logger.NewNopLogger(), m)
	a := newTestClient(hub, "acme", "phone", 1)
	hub.Connect(a)
	assert.Equal(t, 1, hub.Tenants())
	assert.Equal(t, float64(1), testutil.ToFloat64(m.ClientsConnected))

	hub.Disconnect(a)
	hub.Disconnect(a)
	assert.Zero(t, hub.Tenants())
	assert.Zero(t, testutil.ToFloat64(m.ClientsConnected))
}

func TestHub_SlowClientIsDropped(t *testing.T) {
	hub := NewHub(logger.NewNopLogger(), metrics.NewNop())
	slow := newTestClient(hub, "acme", "phone", 1)
	fast := newTestClient(hub, "acme", "laptop", 4)
	hub.Connect(slow)
	hub.Connect(fast)

	for i := 0; i < 2; i++ {
		hub.BroadcastLocal(events.New(events.CategoryNote, events.NoteUpdated, "acme", nil))
	}

	assert.Equal(t, 1, hub.Count("acme"))
	assert.Len(t, drain(fast), 2)
	// the slow client got the first event and then its channel was closed
	assert.Len(t, drain(slow), 1)
	_, open := <-slow.send
	assert.False(t, open)
}

func TestHub_CloseAll(t *testing.T) {
	hub := NewHub(logger.NewNopLogger(), metrics.NewNop())
	a := newTestClient(hub, "acme", "phone", 1)
	hub.Connect(a)

	hub.CloseAll()
	assert.Zero(t, hub.Tenants())
	_, open := <-a.send
	assert.False(t, open)
}
