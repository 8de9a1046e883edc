package agent

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ragcore/ragcore/internal/domain"
)

func TestMirrorExecution_RoundTripsThroughRedis(t *testing.T) {
	srv, err := miniredis.Run()
	require.NoError(t, err)
	defer srv.Close()

	client := redis.NewClient(&redis.Options{Addr: srv.Addr()})
	defer client.Close()

	exec := domain.WorkflowExecution{
		ID:           "exec-1",
		WorkflowName: WorkflowSimpleQA,
		Status:       domain.WorkflowCompleted,
		StepResults:  map[string]string{"search": "hits"},
	}
	mirrorExecution(context.Background(), client, exec)

	got, ok := LoadExecution(context.Background(), client, "exec-1")
	require.True(t, ok)
	assert.Equal(t, exec.WorkflowName, got.WorkflowName)
	assert.Equal(t, exec.Status, got.Status)
	assert.Equal(t, "hits", got.StepResults["search"])

	srv.FastForward(executionTTL + 1)
	_, ok = LoadExecution(context.Background(), client, "exec-1")
	assert.False(t, ok)
}

func TestLoadExecution_MissingKeyReturnsFalse(t *testing.T) {
	srv, err := miniredis.Run()
	require.NoError(t, err)
	defer srv.Close()
	client := redis.NewClient(&redis.Options{Addr: srv.Addr()})
	defer client.Close()

	_, ok := LoadExecution(context.Background(), client, "nope")
	assert.False(t, ok)
}

func TestLoadExecution_NilMirrorReturnsFalse(t *testing.T) {
	_, ok := LoadExecution(context.Background(), nil, "x")
	assert.False(t, ok)
}
