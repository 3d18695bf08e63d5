package models

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func runHub(t *testing.T) (*Hub, func()) {
	t.Helper()
	hub := NewHub()
	ctx, cancel := context.WithCancel(context.Background())
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		hub.Run(ctx)
	}()
	return hub, func() {
		cancel()
		wg.Wait()
	}
}

func TestHubRoutesByUserAndTent(t *testing.T) {
	hub, stop := runHub(t)
	defer stop()

	alice := hub.NewClient(nil, "alice", "tent-1")
	aliceGlobal := hub.NewClient(nil, "alice", "")
	bob := hub.NewClient(nil, "bob", "tent-1")
	carol := hub.NewClient(nil, "carol", "tent-2")
	for _, c := range []*Client{alice, aliceGlobal, bob, carol} {
		hub.Register(c)
	}

	assert.True(t, hub.IsUserConnected("tent-1", "alice"))
	assert.False(t, hub.IsUserConnected("tent-2", "alice"))

	assert.True(t, hub.SendMessageToUser("alice", []byte("hi")))
	assert.Equal(t, "hi", string(<-alice.Send))
	assert.Equal(t, "hi", string(<-aliceGlobal.Send))
	assert.Len(t, bob.Send, 0)
	assert.Len(t, carol.Send, 0)

	assert.False(t, hub.SendMessageToUser("nobody", []byte("x")))
}

func TestHubUnregisterClosesSend(t *testing.T) {
	hub, stop := runHub(t)
	defer stop()

	c := hub.NewClient(nil, "alice", "tent-1")
	hub.Register(c)
	hub.Unregister(c)

	_, ok := <-c.Send
	assert.False(t, ok)
	assert.False(t, hub.IsUserConnected("tent-1", "alice"))

	// unregistering twice is harmless
	hub.Unregister(c)
}

func TestHubDropsWhenBufferFull(t *testing.T) {
	hub, stop := runHub(t)
	defer stop()

	c := hub.NewClient(nil, "alice", "")
	hub.Register(c)
	for i := 0; i < sendBuffer; i++ {
		require.True(t, hub.SendMessageToUser("alice", []byte("m")))
	}
	assert.False(t, hub.SendMessageToUser("alice", []byte("overflow")))
}

func TestHubPushEvent(t *testing.T) {
	hub, stop := runHub(t)
	defer stop()

	c := hub.NewClient(nil, "alice", "")
	hub.Register(c)

	ok, err := hub.PushEvent("alice", Event{Type: NotifyNewInquiry, Payload: map[string]string{"id": "1"}})
	require.NoError(t, err)
	assert.True(t, ok)
	assert.JSONEq(t, `{"type":"new_inquiry","payload":{"id":"1"}}`, string(<-c.Send))
}

func TestHubPushEventStaysInItsTent(t *testing.T) {
	hub, stop := runHub(t)
	defer stop()

	inTent := hub.NewClient(nil, "alice", "tent-1")
	otherTent := hub.NewClient(nil, "alice", "tent-2")
	unscoped := hub.NewClient(nil, "alice", "")
	for _, c := range []*Client{inTent, otherTent, unscoped} {
		hub.Register(c)
	}

	ok, err := hub.PushEvent("alice", Event{Type: NotifyNewInquiry, TentID: "tent-1", Payload: "x"})
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Len(t, inTent.Send, 1)
	assert.Len(t, unscoped.Send, 1)
	assert.Len(t, otherTent.Send, 0)

	ok, err = hub.PushEvent("alice", Event{Type: NotifyNewInquiry, TentID: "tent-3", Payload: "x"})
	require.NoError(t, err)
	assert.True(t, ok, "unscoped connection still receives it")
	assert.Len(t, otherTent.Send, 0)
}

func TestRunClosesClientsOnShutdown(t *testing.T) {
	hub, stop := runHub(t)
	c := hub.NewClient(nil, "alice", "tent-1")
	hub.Register(c)
	stop()

	_, ok := <-c.Send
	assert.False(t, ok)
}

func TestTentMembership(t *testing.T) {
	tent := Tent{Members: []TentMember{
		{UserID: "a", Role: RoleManager},
		{UserID: "b", Role: RoleClient},
	}}
	assert.True(t, tent.HasMember("a"))
	assert.False(t, tent.HasMember("c"))
	assert.Equal(t, "b", tent.OtherMember("a").UserID)
	assert.Equal(t, RoleClient, OppositeRole(RoleManager))
	assert.Equal(t, RoleManager, OppositeRole(RoleClient))
}
