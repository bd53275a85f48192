package websocket

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tuan204-dev/iot-next/internal/domain"
)

func feedServer(t *testing.T, frames ...string) *httptest.Server {
	t.Helper()
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		for _, f := range frames {
			if err := conn.WriteMessage(websocket.TextMessage, []byte(f)); err != nil {
				return
			}
		}
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}))
	t.Cleanup(srv.Close)
	return srv
}

func wsURL(srv *httptest.Server) string {
	return "ws" + strings.TrimPrefix(srv.URL, "http")
}

func TestCollectorReadsFrames(t *testing.T) {
	srv := feedServer(t,
		`{"event":"connect","data":{}}`,
		`{"event":"sensor_data","data":{"temperature":24,"humidity":60}}`,
		`not json`,
		`{"event":"light","data":{"value":512,"unit":"lx"}}`,
	)

	c, err := NewCollector(Config{URL: wsURL(srv), ReconnectInterval: 10 * time.Millisecond}, nil)
	require.NoError(t, err)

	out := make(chan *domain.Reading, 4)
	require.NoError(t, c.Start(out))
	defer c.Stop()

	var got []*domain.Reading
	timeout := time.After(2 * time.Second)
	for len(got) < 2 {
		select {
		case r := <-out:
			got = append(got, r)
		case <-timeout:
			t.Fatalf("timed out, got %d readings", len(got))
		}
	}

	v, ok := got[0].Value(domain.Humidity)
	assert.True(t, ok)
	assert.Equal(t, 60.0, v)
	assert.False(t, got[0].ReceivedAt.IsZero())

	v, ok = got[1].Value(domain.Light)
	assert.True(t, ok)
	assert.Equal(t, 512.0, v)
}

func TestCollectorStopWhileDisconnected(t *testing.T) {
	c, err := NewCollector(Config{URL: "ws://127.0.0.1:1/feed", ReconnectInterval: 10 * time.Millisecond}, nil)
	require.NoError(t, err)
	require.NoError(t, c.Start(make(chan *domain.Reading)))

	time.Sleep(30 * time.Millisecond)
	assert.False(t, c.Connected())

	done := make(chan error, 1)
	go func() { done <- c.Stop() }()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("stop did not return")
	}
}

func TestServeReturnsWhenCancelledBeforeRegistering(t *testing.T) {
	srv := feedServer(t)

	c, err := NewCollector(Config{URL: wsURL(srv)}, nil)
	require.NoError(t, err)

	conn, _, err := websocket.DefaultDialer.Dial(wsURL(srv), nil)
	require.NoError(t, err)

	// Cancelled between a successful dial and the read loop.
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	done := make(chan struct{})
	go func() {
		c.serve(ctx, conn, make(chan *domain.Reading))
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("serve blocked on a silent feed after cancellation")
	}
	assert.False(t, c.Connected())
}

func TestCollectorStopWhileConnected(t *testing.T) {
	srv := feedServer(t)

	c, err := NewCollector(Config{URL: wsURL(srv), ReconnectInterval: 10 * time.Millisecond}, nil)
	require.NoError(t, err)
	require.NoError(t, c.Start(make(chan *domain.Reading)))

	require.Eventually(t, c.Connected, 2*time.Second, 5*time.Millisecond)

	done := make(chan error, 1)
	go func() { done <- c.Stop() }()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("stop did not return")
	}
}

func TestConfigValidate(t *testing.T) {
	cfg := Config{URL: "http://example.com"}
	cfg.ApplyDefaults()
	assert.Error(t, cfg.Validate())
	assert.Equal(t, 5*time.Second, cfg.ReconnectInterval)

	cfg = Config{}
	assert.Error(t, cfg.Validate())

	cfg = Config{URL: "wss://example.com/socket"}
	assert.NoError(t, cfg.Validate())
}
