package modelclient

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ragcore/ragcore/pkg/fn"
	"github.com/ragcore/ragcore/pkg/resilience"
)

type fakeEmbedder struct {
	calls int
	fail  int
	out   [][]float32
}

func (f *fakeEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	f.calls++
	if f.calls <= f.fail {
		return nil, errors.New("backend down")
	}
	return f.out, nil
}

func testOpts() ResilienceOpts {
	return ResilienceOpts{
		Breaker: resilience.BreakerOpts{FailThreshold: 5, Timeout: time.Second, HalfOpenMax: 1},
		Limiter: struct {
			RatePerSecond float64
			Burst         int
		}{RatePerSecond: 1000, Burst: 10},
		Retry: fn.RetryOpts{MaxAttempts: 3, InitialWait: time.Millisecond, MaxWait: 10 * time.Millisecond, Jitter: false},
	}
}

func TestResilientEmbedder_RetriesTransientFailure(t *testing.T) {
	inner := &fakeEmbedder{fail: 1, out: [][]float32{{1, 0}}}
	r := WrapEmbedder(inner, testOpts())

	out, err := r.EmbedBatch(t.Context(), []string{"a"})
	require.NoError(t, err)
	assert.Equal(t, [][]float32{{1, 0}}, out)
	assert.Equal(t, 2, inner.calls)
}

func TestResilientEmbedder_GivesUpAfterMaxAttempts(t *testing.T) {
	inner := &fakeEmbedder{fail: 10}
	r := WrapEmbedder(inner, testOpts())

	_, err := r.EmbedBatch(t.Context(), []string{"a"})
	assert.Error(t, err)
	assert.Equal(t, 3, inner.calls)
}

type fakeReranker struct {
	called bool
}

func (f *fakeReranker) Rerank(ctx context.Context, query string, passages []string, topK int) ([]Scored, error) {
	f.called = true
	return []Scored{{Index: 0, Score: 1}}, nil
}

func TestResilientReranker_DelegatesToInner(t *testing.T) {
	inner := &fakeReranker{}
	r := WrapReranker(inner, testOpts())

	out, err := r.Rerank(t.Context(), "q", []string{"a"}, 1)
	require.NoError(t, err)
	assert.True(t, inner.called)
	assert.Len(t, out, 1)
}

type fakeVision struct {
	calls int
	fail  int
}

func (f *fakeVision) DescribeImage(ctx context.Context, image []byte, prompt string) (string, error) {
	f.calls++
	if f.calls <= f.fail {
		return "", errors.New("down")
	}
	return "a diagram", nil
}

func TestResilientVisionLanguage_Retries(t *testing.T) {
	inner := &fakeVision{fail: 1}
	r := WrapVisionLanguage(inner, testOpts())

	out, err := r.DescribeImage(t.Context(), []byte{0x89, 'P', 'N', 'G'}, "describe")
	require.NoError(t, err)
	assert.Equal(t, "a diagram", out)
}
