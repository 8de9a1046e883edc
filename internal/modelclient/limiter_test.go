package modelclient

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestConcurrencyLimiter_AllowWithinBurst(t *testing.T) {
	l := NewConcurrencyLimiter(1, 2)
	assert.True(t, l.Allow())
	assert.True(t, l.Allow())
	assert.False(t, l.Allow())
}

func TestConcurrencyLimiter_WaitRespectsCancellation(t *testing.T) {
	l := NewConcurrencyLimiter(0.001, 1)
	l.Allow() // drain the single token

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	err := l.Wait(ctx)
	assert.Error(t, err)
}

func TestConcurrencyLimiter_DefaultsBurstToOne(t *testing.T) {
	l := NewConcurrencyLimiter(10, 0)
	assert.True(t, l.Allow())
}
