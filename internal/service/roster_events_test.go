package service

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/noah-isme/classroom-api/internal/dto"
)

func receiveEvent(t *testing.T, ch <-chan dto.RosterChangeEvent) dto.RosterChangeEvent {
	t.Helper()
	select {
	case event := <-ch:
		return event
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for roster event")
		return dto.RosterChangeEvent{}
	}
}

func requireNoEvent(t *testing.T, ch <-chan dto.RosterChangeEvent) {
	t.Helper()
	select {
	case event := <-ch:
		t.Fatalf("unexpected roster event %+v", event)
	case <-time.After(100 * time.Millisecond):
	}
}

func TestRosterEventsLocalFanOut(t *testing.T) {
	events := NewRosterEvents(nil, "", nil, testLogger())
	first, stopFirst := events.Subscribe()
	second, stopSecond := events.Subscribe()
	defer stopSecond()

	events.Publish(context.Background(), NewRosterChange("sections", RosterActionCreate, 7))

	got := receiveEvent(t, first)
	require.Equal(t, "sections", got.Table)
	require.Equal(t, RosterActionCreate, got.Action)
	require.Equal(t, []uint{7}, got.IDs)
	require.NotEmpty(t, got.ID)
	require.Equal(t, got.ID, receiveEvent(t, second).ID)

	stopFirst()
	stopFirst()
	_, open := <-first
	require.False(t, open)

	events.Publish(context.Background(), NewRosterChange("students", RosterActionDelete, 1, 2))
	require.Equal(t, []uint{1, 2}, receiveEvent(t, second).IDs)
}

func TestRosterEventsAcrossInstancesViaRedis(t *testing.T) {
	mr, client := newTestRedis(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	nodeA := NewRosterEvents(client, "classroom:events", nil, testLogger())
	nodeB := NewRosterEvents(client, "classroom:events", nil, testLogger())
	nodeA.Start(ctx)
	nodeB.Start(ctx)

	require.Eventually(t, func() bool {
		return mr.PubSubNumSub("classroom:events:roster")["classroom:events:roster"] == 2
	}, 2*time.Second, 10*time.Millisecond)

	localA, stopA := nodeA.Subscribe()
	defer stopA()
	remoteB, stopB := nodeB.Subscribe()
	defer stopB()

	nodeA.Publish(ctx, NewRosterChange("teachers", RosterActionUpdate, 100))

	remote := receiveEvent(t, remoteB)
	require.Equal(t, "teachers", remote.Table)
	require.Equal(t, []uint{100}, remote.IDs)

	local := receiveEvent(t, localA)
	require.Equal(t, remote.ID, local.ID)
	requireNoEvent(t, localA)
}

func TestRosterEventsDeliverEachRemoteEventOnce(t *testing.T) {
	mr, client := newTestRedis(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	node := NewRosterEvents(client, "classroom:events", nil, testLogger())
	node.Start(ctx)
	require.Eventually(t, func() bool {
		return mr.PubSubNumSub("classroom:events:roster")["classroom:events:roster"] == 1
	}, 2*time.Second, 10*time.Millisecond)

	subscriber, stop := node.Subscribe()
	defer stop()

	// A peer publishing over redis and NATS delivers the same envelope twice.
	payload, err := json.Marshal(rosterEnvelope{Source: "peer", Event: NewRosterChange("sections", RosterActionUpdate, 3), SentAt: time.Now().UTC()})
	require.NoError(t, err)
	require.NoError(t, client.Publish(ctx, "classroom:events:roster", payload).Err())
	require.NoError(t, client.Publish(ctx, "classroom:events:roster", payload).Err())

	require.Equal(t, []uint{3}, receiveEvent(t, subscriber).IDs)
	requireNoEvent(t, subscriber)

	next, err := json.Marshal(rosterEnvelope{Source: "peer", Event: NewRosterChange("sections", RosterActionUpdate, 4), SentAt: time.Now().UTC()})
	require.NoError(t, err)
	require.NoError(t, client.Publish(ctx, "classroom:events:roster", next).Err())
	require.Equal(t, []uint{4}, receiveEvent(t, subscriber).IDs)
}

func TestRecentIDsEvictsOldest(t *testing.T) {
	seen := newRecentIDs(2)
	require.True(t, seen.add("a"))
	require.False(t, seen.add("a"))
	require.True(t, seen.add("b"))
	require.True(t, seen.add("c"))
	require.True(t, seen.add("a"), "oldest id is forgotten once capacity is exceeded")
	require.False(t, seen.add("c"))
}
