package conversation

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistry_GetOrCreateReusesExistingSession(t *testing.T) {
	reg := NewRegistry(nil, nil)

	s1 := reg.GetOrCreate(context.Background(), "conv1", "kb1", "owner1")
	s2 := reg.GetOrCreate(context.Background(), "conv1", "kb1", "owner1")

	assert.Same(t, s1, s2)
	assert.Equal(t, 1, reg.Len())
}

func TestRegistry_EvictRemovesSession(t *testing.T) {
	reg := NewRegistry(nil, nil)
	reg.GetOrCreate(context.Background(), "conv1", "kb1", "owner1")

	require.True(t, reg.Evict(context.Background(), "conv1"))
	assert.Equal(t, 0, reg.Len())
	assert.False(t, reg.Evict(context.Background(), "conv1"))
}

func TestSession_RememberTruncatesToHistoryLimit(t *testing.T) {
	s := newSession("conv1", "kb1", "owner1")
	for i := 0; i < historyLimit+5; i++ {
		s.remember(testMessage("m", i))
	}
	recent := s.recentMessages()
	require.Len(t, recent, historyLimit)
	assert.Equal(t, "m14", recent[len(recent)-1].ID)
}

func TestRegistry_IdleSessionsReportsPastTTL(t *testing.T) {
	reg := NewRegistry(nil, nil)
	reg.GetOrCreate(context.Background(), "conv1", "kb1", "owner1")

	idle := reg.idleSessions(time.Now().Add(time.Hour), time.Minute)
	assert.Equal(t, []string{"conv1"}, idle)

	fresh := reg.idleSessions(time.Now(), time.Hour)
	assert.Empty(t, fresh)
}

func TestRunGC_EvictsIdleSessionsAndStopsOnCancel(t *testing.T) {
	reg := NewRegistry(nil, nil)
	reg.GetOrCreate(context.Background(), "conv1", "kb1", "owner1")

	ctx, cancel := context.WithCancel(context.Background())
	deps := Deps{IdleTTL: time.Millisecond, GCEvery: time.Millisecond}

	done := make(chan struct{})
	go func() {
		RunGC(ctx, reg, deps, nil)
		close(done)
	}()

	require.Eventually(t, func() bool { return reg.Len() == 0 }, time.Second, time.Millisecond)
	cancel()
	<-done
}
