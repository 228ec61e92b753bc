package ws

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/Wyydra/peercall/internal/core/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClient struct {
	id      string
	failing bool

	mu     sync.Mutex
	events []Event
	closed bool
}

func (c *fakeClient) ID() string { return c.id }

func (c *fakeClient) Send(ev Event) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.failing {
		return errors.New("broken pipe")
	}
	c.events = append(c.events, ev)
	return nil
}

func (c *fakeClient) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	return nil
}

func (c *fakeClient) received() []Event {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]Event(nil), c.events...)
}

func (c *fakeClient) isClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

func startHub(t *testing.T) *Hub {
	h := NewHub()
	go h.Run()
	t.Cleanup(h.Stop)
	return h
}

func TestHubBroadcastsEvents(t *testing.T) {
	h := startHub(t)
	a := &fakeClient{id: "a"}
	b := &fakeClient{id: "b"}
	h.Register(a)
	h.Register(b)

	ctx := context.Background()
	require.NoError(t, h.PublishStatus(ctx, domain.Status{CallState: domain.CallConnecting}))
	entry, err := domain.NewLogEntry(time.Now(), domain.LevelInfo, "Calling bob")
	require.NoError(t, err)
	require.NoError(t, h.PublishLog(ctx, *entry))

	for _, c := range []*fakeClient{a, b} {
		require.Eventually(t, func() bool { return len(c.received()) == 2 }, time.Second, 5*time.Millisecond)
		got := c.received()
		assert.Equal(t, EventStatus, got[0].Event)
		assert.Equal(t, domain.CallConnecting, got[0].Status.CallState)
		assert.Equal(t, EventLog, got[1].Event)
		assert.Equal(t, "Calling bob", got[1].Log.Message)
	}
}

func TestHubReplaysLastStatus(t *testing.T) {
	h := startHub(t)
	first := &fakeClient{id: "first"}
	h.Register(first)

	require.NoError(t, h.PublishStatus(context.Background(), domain.Status{CallState: domain.CallConnected}))
	require.Eventually(t, func() bool { return len(first.received()) == 1 }, time.Second, 5*time.Millisecond)

	late := &fakeClient{id: "late"}
	h.Register(late)
	require.Eventually(t, func() bool { return len(late.received()) == 1 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, domain.CallConnected, late.received()[0].Status.CallState)
}

func TestHubDropsFailingClient(t *testing.T) {
	h := startHub(t)
	bad := &fakeClient{id: "bad", failing: true}
	h.Register(bad)

	require.NoError(t, h.PublishStatus(context.Background(), domain.Status{}))
	require.Eventually(t, bad.isClosed, time.Second, 5*time.Millisecond)
}

func TestHubUnregisterClosesClient(t *testing.T) {
	h := startHub(t)
	c := &fakeClient{id: "c"}
	h.Register(c)
	h.Unregister(c)
	require.Eventually(t, c.isClosed, time.Second, 5*time.Millisecond)
}
