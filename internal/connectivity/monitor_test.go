package connectivity

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/notehub/notehub-client/internal/logging"
)

func newTestMonitor(opts ...Option) *Monitor {
	return NewMonitor("http://localhost:0/health", logging.Nop(), opts...)
}

func TestSubscribe_receivesInitialState(t *testing.T) {
	m := newTestMonitor(WithInitialState(true))

	var got []bool
	unsub := m.Subscribe(func(online bool) { got = append(got, online) })
	defer unsub()

	require.Equal(t, []bool{true}, got, "subscriber must receive the current value immediately")
}

func TestSetOnline_notifiesOnTransitionOnly(t *testing.T) {
	m := newTestMonitor()

	var got []bool
	unsub := m.Subscribe(func(online bool) { got = append(got, online) })
	defer unsub()

	m.SetOnline(false) // no transition, already offline
	m.SetOnline(true)
	m.SetOnline(true) // no transition
	m.SetOnline(false)

	assert.Equal(t, []bool{false, true, false}, got)
	assert.False(t, m.IsOnline())
}

func TestUnsubscribe_stopsNotifications(t *testing.T) {
	m := newTestMonitor()

	calls := 0
	unsub := m.Subscribe(func(bool) { calls++ })
	unsub()

	m.SetOnline(true)
	assert.Equal(t, 1, calls, "only the immediate initial call should have happened")
}

func TestCheckServerConnectivity_reachable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	m := newTestMonitor()
	assert.True(t, m.CheckServerConnectivity(context.Background(), srv.URL, 0))
}

func TestCheckServerConnectivity_serverError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	m := newTestMonitor()
	assert.False(t, m.CheckServerConnectivity(context.Background(), srv.URL, 0))
}

func TestCheckServerConnectivity_unreachable(t *testing.T) {
	m := newTestMonitor()
	// Nothing listens on this port.
	assert.False(t, m.CheckServerConnectivity(context.Background(), "http://127.0.0.1:1/health", 0))
}

func TestCheckServerConnectivity_timeout(t *testing.T) {
	slow := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(200 * time.Millisecond)
	}))
	defer slow.Close()

	m := newTestMonitor()
	assert.False(t, m.CheckServerConnectivity(context.Background(), slow.URL, 10*time.Millisecond))
}

func TestStartProbing_feedsState(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	m := NewMonitor(srv.URL, logging.Nop())

	transitioned := make(chan bool, 1)
	unsub := m.Subscribe(func(online bool) {
		if online {
			select {
			case transitioned <- true:
			default:
			}
		}
	})
	defer unsub()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go m.StartProbing(ctx, time.Hour)

	select {
	case <-transitioned:
	case <-time.After(2 * time.Second):
		t.Fatal("probe loop never reported online")
	}
}
