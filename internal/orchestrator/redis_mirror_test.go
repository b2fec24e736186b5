package orchestrator

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/example/mediaflow/internal/models"
)

func newMiniMirror(t *testing.T) (*RedisMirror, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	m, err := NewRedisMirror(context.Background(), mr.Addr(), "", 0, "mediaflow:runs:", time.Hour)
	require.NoError(t, err)
	t.Cleanup(func() { _ = m.Close() })
	m.Logger = discard
	return m, mr
}

func TestRedisMirrorPublishesAndStoresEvents(t *testing.T) {
	m, mr := newMiniMirror(t)
	ctx := context.Background()

	sub := m.Client.Subscribe(ctx, m.Channel("r1"))
	defer sub.Close()
	_, err := sub.Receive(ctx)
	require.NoError(t, err)
	live := sub.Channel()

	evs := []models.RunEvent{
		{Seq: 1, RunID: "r1", Type: models.EventStepStart, StepID: "a"},
		{Seq: 2, RunID: "r1", Type: models.EventStepComplete, StepID: "a", OutputURL: "https://cdn.test/a.png"},
		{Seq: 3, RunID: "r1", Type: models.EventDone, Status: models.RunSuccess},
	}
	for _, ev := range evs {
		m.Observe(ctx, ev)
	}

	for _, want := range evs {
		select {
		case msg := <-live:
			var got models.RunEvent
			require.NoError(t, json.Unmarshal([]byte(msg.Payload), &got))
			assert.Equal(t, want.Seq, got.Seq)
			assert.Equal(t, want.Type, got.Type)
		case <-time.After(2 * time.Second):
			t.Fatalf("no published event for seq %d", want.Seq)
		}
	}

	history, err := m.History(ctx, "r1")
	require.NoError(t, err)
	require.Len(t, history, 3)
	assert.Equal(t, "https://cdn.test/a.png", history[1].OutputURL)
	assert.Equal(t, models.RunSuccess, history[2].Status)
	assert.Equal(t, time.Hour, mr.TTL(m.ListKey("r1")))

	empty, err := m.History(ctx, "unknown")
	require.NoError(t, err)
	assert.Empty(t, empty)
}

func TestRedisMirrorCapsList(t *testing.T) {
	m, _ := newMiniMirror(t)
	m.MaxEvents = 2
	ctx := context.Background()

	for seq := 1; seq <= 5; seq++ {
		m.Observe(ctx, models.RunEvent{Seq: seq, RunID: "r2", Type: models.EventStepStart})
	}

	history, err := m.History(ctx, "r2")
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.Equal(t, 4, history[0].Seq)
	assert.Equal(t, 5, history[1].Seq)
}

func TestRedisMirrorAsRunObserver(t *testing.T) {
	m, _ := newMiniMirror(t)
	o := newTestOrchestrator(0, m)

	info, err := o.StartRun(StartRequest{Plan: twoStepPlan()})
	require.NoError(t, err)
	ch, unsub, err := o.Subscribe(info.ID)
	require.NoError(t, err)
	defer unsub()
	evs := drain(t, ch)

	var history []models.RunEvent
	assert.Eventually(t, func() bool {
		history, err = m.History(context.Background(), info.ID)
		return err == nil && len(history) == len(evs)
	}, 2*time.Second, 10*time.Millisecond)
	for i := range evs {
		assert.Equal(t, evs[i].Seq, history[i].Seq)
		assert.Equal(t, evs[i].Type, history[i].Type)
	}
}
